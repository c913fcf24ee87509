package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/guiyumin/clipget/internal/core/downloader"
	"github.com/guiyumin/clipget/internal/core/extractor"
	"github.com/guiyumin/clipget/internal/core/link"
	"github.com/guiyumin/clipget/internal/core/manager"
	"github.com/guiyumin/clipget/internal/core/platform"
	"github.com/guiyumin/clipget/internal/core/store"
)

type stubResolver struct {
	mu    sync.Mutex
	calls int
	err   error
	empty bool
}

func (r *stubResolver) Resolve(_ context.Context, rawURL string) (*extractor.VideoInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	res := link.Classify(rawURL)
	info := &extractor.VideoInfo{
		ID:        res.VideoID,
		SourceURL: res.CanonicalURL,
		Platform:  res.Platform,
		Title:     "a clip",
		Qualities: []extractor.QualityOption{},
	}
	if !r.empty {
		info.Qualities = []extractor.QualityOption{
			{Tier: platform.Quality1080p, URL: "https://video.twimg.com/1080.mp4"},
			{Tier: platform.Quality720p, URL: "https://video.twimg.com/720.mp4"},
		}
	}
	return info, nil
}

// stubTransfer finishes at once unless the URL is slow, in which case it
// runs until cancelled.
type stubTransfer struct{}

func (stubTransfer) Do(ctx context.Context, _ downloader.Sink, req downloader.Request, progress downloader.ProgressFunc) (*downloader.Result, error) {
	progress(50, 100)
	if strings.Contains(req.URL, "slow") {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	progress(100, 100)
	return &downloader.Result{Location: "/downloads/" + req.FileName, Size: 100}, nil
}

type slowResolver struct{ stubResolver }

func (r *slowResolver) Resolve(ctx context.Context, rawURL string) (*extractor.VideoInfo, error) {
	info, err := r.stubResolver.Resolve(ctx, rawURL)
	if info != nil {
		info.Qualities = []extractor.QualityOption{{Tier: platform.Quality720p, URL: "https://video.twimg.com/slow.mp4"}}
	}
	return info, err
}

type envelope struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func newTestServer(t *testing.T, res Resolver, apiKey string) (*Server, *manager.Manager) {
	t.Helper()
	m := manager.New(store.NewMemoryStore(), stubTransfer{}, nil)
	return New(res, m, Options{APIKey: apiKey, Language: "en", Quality: "720p"}), m
}

func do(t *testing.T, s *Server, method, path string, body interface{}, header map[string]string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: bad body %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decoding %s: %v", raw, err)
	}
}

const tweet = "https://x.com/someone/status/1234567890"

func TestHealthAndPlatforms(t *testing.T) {
	s, _ := newTestServer(t, &stubResolver{}, "")

	code, env := do(t, s, http.MethodGet, "/api/health", nil, nil)
	if code != http.StatusOK || env.Code != 200 {
		t.Fatalf("health = %d %+v", code, env)
	}

	code, env = do(t, s, http.MethodGet, "/api/platforms", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("platforms = %d", code)
	}
	var list []map[string]interface{}
	decode(t, env.Data, &list)
	if len(list) != len(platform.Supported()) {
		t.Errorf("got %d platforms, want %d", len(list), len(platform.Supported()))
	}

	if code, _ := do(t, s, http.MethodGet, "/api/nope", nil, nil); code != http.StatusNotFound {
		t.Errorf("unknown route = %d", code)
	}
}

func TestAPIKey(t *testing.T) {
	s, _ := newTestServer(t, &stubResolver{}, "secret")

	tests := []struct {
		path string
		key  string
		want int
	}{
		{"/api/health", "", http.StatusOK},
		{"/api/platforms", "", http.StatusOK},
		{"/api/queue", "", http.StatusUnauthorized},
		{"/api/queue", "wrong", http.StatusUnauthorized},
		{"/api/queue", "secret", http.StatusOK},
		{"/api/downloads", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		code, _ := do(t, s, http.MethodGet, tt.path, nil, map[string]string{"X-API-Key": tt.key})
		if code != tt.want {
			t.Errorf("GET %s with key %q = %d, want %d", tt.path, tt.key, code, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	s, _ := newTestServer(t, &stubResolver{}, "")

	code, env := do(t, s, http.MethodPost, "/api/classify", ClassifyRequest{Text: "look at this " + tweet + " lol"}, nil)
	if code != http.StatusOK {
		t.Fatalf("classify = %d %s", code, env.Message)
	}
	var got struct {
		Valid    bool   `json:"valid"`
		Platform string `json:"platform"`
		VideoID  string `json:"video_id"`
	}
	decode(t, env.Data, &got)
	if !got.Valid || got.Platform != string(platform.Twitter) || got.VideoID != "1234567890" {
		t.Errorf("classify = %+v", got)
	}

	if code, _ := do(t, s, http.MethodPost, "/api/classify", map[string]string{}, nil); code != http.StatusBadRequest {
		t.Errorf("empty body = %d", code)
	}
}

func TestResolveUsesCache(t *testing.T) {
	res := &stubResolver{}
	s, _ := newTestServer(t, res, "")

	for i := 0; i < 2; i++ {
		code, env := do(t, s, http.MethodPost, "/api/resolve", ResolveRequest{URL: tweet}, nil)
		if code != http.StatusOK {
			t.Fatalf("resolve = %d %s", code, env.Message)
		}
		var info extractor.VideoInfo
		decode(t, env.Data, &info)
		if len(info.Qualities) != 2 {
			t.Errorf("qualities = %+v", info.Qualities)
		}
	}
	if res.calls != 1 {
		t.Errorf("resolver called %d times, want 1", res.calls)
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name     string
		resolver *stubResolver
		url      string
		want     int
		wantMsg  string
	}{
		{"unsupported", &stubResolver{}, "https://vimeo.com/1", http.StatusBadRequest, "Instagram"},
		{"upstream", &stubResolver{err: &extractor.FetchError{URL: tweet, StatusCode: 500}}, tweet, http.StatusBadGateway, "Could not reach"},
		{"timeout", &stubResolver{err: &extractor.FetchError{URL: tweet, Err: context.DeadlineExceeded}}, tweet, http.StatusGatewayTimeout, "timed out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, tt.resolver, "")
			code, env := do(t, s, http.MethodPost, "/api/resolve", ResolveRequest{URL: tt.url}, nil)
			if code != tt.want || !strings.Contains(env.Message, tt.wantMsg) {
				t.Errorf("got %d %q, want %d containing %q", code, env.Message, tt.want, tt.wantMsg)
			}
		})
	}

	s, _ := newTestServer(t, &stubResolver{empty: true}, "")
	code, env := do(t, s, http.MethodPost, "/api/downloads", DownloadRequest{URL: tweet}, nil)
	if code != http.StatusUnprocessableEntity {
		t.Errorf("download of an empty post = %d %q", code, env.Message)
	}
}

func TestDownloadLifecycle(t *testing.T) {
	s, m := newTestServer(t, &stubResolver{}, "")

	code, env := do(t, s, http.MethodPost, "/api/downloads", DownloadRequest{URL: tweet, Quality: "1080p", Filename: "my clip"}, nil)
	if code != http.StatusAccepted {
		t.Fatalf("create = %d %s", code, env.Message)
	}
	var rec store.Record
	decode(t, env.Data, &rec)
	if rec.Quality != platform.Quality1080p || rec.FileName != "my clip.mp4" || rec.Platform != platform.Twitter {
		t.Errorf("record = %+v", rec)
	}
	m.Wait()

	code, env = do(t, s, http.MethodGet, "/api/downloads/"+rec.ID, nil, nil)
	decode(t, env.Data, &rec)
	if code != http.StatusOK || rec.Status != store.StatusCompleted || rec.Progress != 100 {
		t.Errorf("get = %d %+v", code, rec)
	}

	var list []store.Record
	_, env = do(t, s, http.MethodGet, "/api/downloads?status=completed,failed", nil, nil)
	decode(t, env.Data, &list)
	if len(list) != 1 {
		t.Errorf("list = %d records", len(list))
	}
	_, env = do(t, s, http.MethodGet, "/api/downloads?status=pending", nil, nil)
	decode(t, env.Data, &list)
	if len(list) != 0 {
		t.Errorf("pending list = %d records", len(list))
	}
	if code, _ := do(t, s, http.MethodGet, "/api/downloads?status=bogus", nil, nil); code != http.StatusBadRequest {
		t.Errorf("bogus status = %d", code)
	}

	var stats store.Stats
	_, env = do(t, s, http.MethodGet, "/api/stats", nil, nil)
	decode(t, env.Data, &stats)
	if stats.Total != 1 || stats.ByStatus[store.StatusCompleted] != 1 || stats.ByPlatform["twitter"] != 1 {
		t.Errorf("stats = %+v", stats)
	}

	if code, env := do(t, s, http.MethodDelete, "/api/downloads/"+rec.ID, nil, nil); code != http.StatusOK || env.Message != "download removed" {
		t.Errorf("delete = %d %q", code, env.Message)
	}
	if code, _ := do(t, s, http.MethodGet, "/api/downloads/"+rec.ID, nil, nil); code != http.StatusNotFound {
		t.Errorf("get after delete = %d", code)
	}
	if code, _ := do(t, s, http.MethodDelete, "/api/downloads/missing", nil, nil); code != http.StatusNotFound {
		t.Errorf("delete missing = %d", code)
	}
}

func waitForState(t *testing.T, m *manager.Manager, kind manager.StateKind) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for m.State().Kind != kind {
		if time.Now().After(deadline) {
			t.Fatalf("state = %+v, want %s", m.State(), kind)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDeleteCancelsActiveDownload(t *testing.T) {
	s, m := newTestServer(t, &slowResolver{}, "")

	_, env := do(t, s, http.MethodPost, "/api/downloads", DownloadRequest{URL: tweet}, nil)
	var rec store.Record
	decode(t, env.Data, &rec)
	waitForState(t, m, manager.Downloading)

	code, env := do(t, s, http.MethodDelete, "/api/downloads/"+rec.ID, nil, nil)
	if code != http.StatusOK || env.Message != "download cancelled" {
		t.Fatalf("cancel = %d %q", code, env.Message)
	}
	m.Wait()

	_, env = do(t, s, http.MethodGet, "/api/downloads/"+rec.ID, nil, nil)
	decode(t, env.Data, &rec)
	if rec.Status != store.StatusPaused {
		t.Errorf("status = %s, want paused", rec.Status)
	}

	code, env = do(t, s, http.MethodDelete, "/api/history", nil, nil)
	if code != http.StatusOK {
		t.Errorf("clear history = %d", code)
	}
	var cleared struct{ Removed int }
	decode(t, env.Data, &cleared)
	if cleared.Removed != 0 {
		t.Errorf("paused record was cleared from history")
	}
}

func TestQueueEvents(t *testing.T) {
	s, m := newTestServer(t, &slowResolver{}, "")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/queue/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer resp.Body.Close()

	events := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if name, found := strings.CutPrefix(sc.Text(), "event:"); found {
				events <- strings.TrimSpace(name)
			}
		}
		close(events)
	}()

	next := func() string {
		select {
		case e := <-events:
			return e
		case <-time.After(2 * time.Second):
			t.Fatal("no event")
			return ""
		}
	}
	if e := next(); e != "state" {
		t.Fatalf("first event = %q, want the replayed state", e)
	}

	do(t, s, http.MethodPost, "/api/downloads", DownloadRequest{URL: tweet}, nil)
	seen := map[string]bool{}
	for !seen["progress"] || !seen["state"] {
		seen[next()] = true
	}

	m.CancelAll(context.Background())
	m.Wait()
}
