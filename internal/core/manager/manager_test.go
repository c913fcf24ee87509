package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/guiyumin/clipget/internal/core/downloader"
	"github.com/guiyumin/clipget/internal/core/extractor"
	"github.com/guiyumin/clipget/internal/core/platform"
	"github.com/guiyumin/clipget/internal/core/store"
)

// gatedTransfer blocks every transfer until its URL is released, reporting
// the configured progress first.
type gatedTransfer struct {
	started  chan string
	progress []int64 // bytes read reported before blocking, of total 100

	mu    sync.Mutex
	gates map[string]chan error
}

func newGatedTransfer() *gatedTransfer {
	return &gatedTransfer{started: make(chan string, 16), gates: make(map[string]chan error)}
}

func (g *gatedTransfer) gate(url string) chan error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[url]
	if !ok {
		ch = make(chan error, 1)
		g.gates[url] = ch
	}
	return ch
}

// release lets the transfer of url finish with err.
func (g *gatedTransfer) release(url string, err error) {
	g.gate(url) <- err
}

func (g *gatedTransfer) Do(ctx context.Context, _ downloader.Sink, req downloader.Request, progress downloader.ProgressFunc) (*downloader.Result, error) {
	g.started <- req.URL
	for _, n := range g.progress {
		progress(n, 100)
	}
	select {
	case err := <-g.gate(req.URL):
		if err != nil {
			return nil, err
		}
		return &downloader.Result{Location: "/downloads/" + req.FileName, Size: 100}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type recordingNotifier struct {
	mu        sync.Mutex
	progress  map[string][]int
	completed []string
	failed    []string
	cancelled []string
	all       int
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{progress: make(map[string][]int)}
}

func (n *recordingNotifier) ShowProgress(id, _ string, pct int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress[id] = append(n.progress[id], pct)
}

func (n *recordingNotifier) ShowComplete(id, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, id)
}

func (n *recordingNotifier) ShowFailed(id, _, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, id)
}

func (n *recordingNotifier) Cancel(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, id)
}

func (n *recordingNotifier) CancelAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.all++
}

func video(i int) (*extractor.VideoInfo, extractor.QualityOption) {
	info := &extractor.VideoInfo{
		ID:        fmt.Sprint(i),
		SourceURL: fmt.Sprintf("https://www.tiktok.com/@someone/video/%d", i),
		Platform:  platform.TikTok,
		Title:     fmt.Sprintf("clip %d", i),
	}
	opt := extractor.QualityOption{Tier: platform.Quality720p, URL: fmt.Sprintf("https://cdn.example.com/%d.mp4", i)}
	return info, opt
}

func waitStarted(t *testing.T, g *gatedTransfer) string {
	t.Helper()
	select {
	case u := <-g.started:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("no transfer started")
		return ""
	}
}

func assertNotStarted(t *testing.T, g *gatedTransfer) {
	t.Helper()
	select {
	case u := <-g.started:
		t.Fatalf("unexpected transfer of %s", u)
	case <-time.After(50 * time.Millisecond):
	}
}

func getRecord(t *testing.T, st store.Store, id string) *store.Record {
	t.Helper()
	r, err := st.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return r
}

func TestConcurrencyLimit(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	g := newGatedTransfer()
	m := New(st, g, nil, WithMaxConcurrent(2))

	var ids []string
	for i := 1; i <= 3; i++ {
		info, opt := video(i)
		id, err := m.Enqueue(ctx, info, opt, "")
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, id)
	}

	first, second := waitStarted(t, g), waitStarted(t, g)
	assertNotStarted(t, g)
	if started := map[string]bool{first: true, second: true}; !started["https://cdn.example.com/1.mp4"] || !started["https://cdn.example.com/2.mp4"] {
		t.Errorf("started %s, %s; want the first two enqueued", first, second)
	}
	if s := m.State(); s != (QueueState{Kind: Downloading, Active: 2, Queued: 1}) {
		t.Errorf("State = %+v", s)
	}
	if r := getRecord(t, st, ids[2]); r.Status != store.StatusPending {
		t.Errorf("third record status = %s, want pending", r.Status)
	}

	g.release(first, nil)
	if third := waitStarted(t, g); third != "https://cdn.example.com/3.mp4" {
		t.Errorf("third transfer = %s", third)
	}
	g.release(second, nil)
	g.release("https://cdn.example.com/3.mp4", nil)
	m.Wait()

	for _, id := range ids {
		r := getRecord(t, st, id)
		if r.Status != store.StatusCompleted || r.FilePath == "" || r.FileSize != 100 || r.CompletedAt == nil {
			t.Errorf("record %s = %+v", id, r)
		}
	}
	if s := m.State(); s.Kind != Idle {
		t.Errorf("State after Wait = %+v", s)
	}
}

func TestCancelRunningPauses(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	n := newRecordingNotifier()
	g := newGatedTransfer()
	m := New(st, g, n, WithMaxConcurrent(1))

	info, opt := video(1)
	running, _ := m.Enqueue(ctx, info, opt, "")
	info2, opt2 := video(2)
	queued, _ := m.Enqueue(ctx, info2, opt2, "")
	waitStarted(t, g)

	if err := m.CancelDownload(ctx, queued); err != nil {
		t.Fatalf("cancel queued: %v", err)
	}
	if err := m.CancelDownload(ctx, running); err != nil {
		t.Fatalf("cancel running: %v", err)
	}
	m.Wait()
	assertNotStarted(t, g)

	if r := getRecord(t, st, running); r.Status != store.StatusPaused || r.Error != "" {
		t.Errorf("running record = %+v, want paused without error", r)
	}
	if r := getRecord(t, st, queued); r.Status != store.StatusFailed || r.Error != CancelledMessage {
		t.Errorf("queued record = %+v, want failed %q", r, CancelledMessage)
	}
	if len(n.failed) != 0 {
		t.Errorf("failure notified for a cancellation: %v", n.failed)
	}
	if len(n.cancelled) != 2 {
		t.Errorf("cancel notifications = %v", n.cancelled)
	}
	if err := m.CancelDownload(ctx, running); !errors.Is(err, ErrNotActive) {
		t.Errorf("second cancel err = %v, want ErrNotActive", err)
	}
}

func TestCancelAll(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	n := newRecordingNotifier()
	g := newGatedTransfer()
	m := New(st, g, n, WithMaxConcurrent(1))

	for i := 1; i <= 3; i++ {
		info, opt := video(i)
		if _, err := m.Enqueue(ctx, info, opt, ""); err != nil {
			t.Fatal(err)
		}
	}
	waitStarted(t, g)
	m.CancelAll(ctx)
	m.Wait()
	assertNotStarted(t, g)

	recs, _ := m.Records(ctx, store.StatusPaused)
	if len(recs) != 1 {
		t.Errorf("paused records = %d, want 1", len(recs))
	}
	recs, _ = m.Records(ctx, store.StatusFailed)
	if len(recs) != 2 {
		t.Errorf("failed records = %d, want 2", len(recs))
	}
	if n.all != 1 {
		t.Errorf("CancelAll notified %d times", n.all)
	}
}

func TestFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	n := newRecordingNotifier()
	g := newGatedTransfer()
	m := New(st, g, n)

	info, opt := video(1)
	bad, _ := m.Enqueue(ctx, info, opt, "")
	info2, opt2 := video(2)
	good, _ := m.Enqueue(ctx, info2, opt2, "")
	waitStarted(t, g)
	waitStarted(t, g)

	g.release(opt.URL, &downloader.StatusError{Code: 403})
	g.release(opt2.URL, nil)
	m.Wait()

	if r := getRecord(t, st, bad); r.Status != store.StatusFailed || r.Error == "" {
		t.Errorf("failed record = %+v", r)
	}
	if r := getRecord(t, st, good); r.Status != store.StatusCompleted {
		t.Errorf("sibling record = %+v", r)
	}
	if len(n.failed) != 1 || n.failed[0] != bad {
		t.Errorf("failed notifications = %v", n.failed)
	}
}

// brokenStartStore fails the first record update, which is the move to
// downloading.
type brokenStartStore struct {
	store.Store
	mu     sync.Mutex
	broken bool
}

func (s *brokenStartStore) Update(ctx context.Context, id string, fn func(r *store.Record) error) (*store.Record, error) {
	s.mu.Lock()
	fail := !s.broken
	s.broken = true
	s.mu.Unlock()
	if fail {
		return nil, errors.New("disk full")
	}
	return s.Store.Update(ctx, id, fn)
}

func TestStartFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	st := &brokenStartStore{Store: store.NewMemoryStore()}
	n := newRecordingNotifier()
	g := newGatedTransfer()
	m := New(st, g, n)

	events, stop := m.SubscribeProgress()
	defer stop()

	info, opt := video(1)
	id, err := m.Enqueue(ctx, info, opt, "")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	m.Wait()
	assertNotStarted(t, g)

	if r := getRecord(t, st, id); r.Status != store.StatusFailed || r.Error != "disk full" {
		t.Errorf("record = %+v, want failed with the start error", r)
	}
	if len(n.failed) != 1 || n.failed[0] != id {
		t.Errorf("failed notifications = %v", n.failed)
	}
	select {
	case ev := <-events:
		if ev.ID != id || ev.Status != store.StatusFailed {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no failure event")
	}
}

func TestProgressOnlyIncreases(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	n := newRecordingNotifier()
	g := newGatedTransfer()
	g.progress = []int64{0, 10, 10, 50, 30, 70, 69, 99}
	m := New(st, g, n)

	events, stop := m.SubscribeProgress()
	defer stop()

	info, opt := video(1)
	id, _ := m.Enqueue(ctx, info, opt, "")
	waitStarted(t, g)
	g.release(opt.URL, nil)
	m.Wait()

	want := []int{10, 50, 70, 99}
	got := n.progress[id]
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("notified progress = %v, want %v", got, want)
	}

	var seen []int
	for len(seen) < len(want)+1 {
		select {
		case ev := <-events:
			seen = append(seen, ev.Percent)
			if ev.Status == store.StatusCompleted && ev.Percent != 100 {
				t.Errorf("final event = %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("events so far %v", seen)
		}
	}
	if fmt.Sprint(seen) != fmt.Sprint(append(want, 100)) {
		t.Errorf("progress events = %v", seen)
	}
}

func TestSubscribeState(t *testing.T) {
	ctx := context.Background()
	g := newGatedTransfer()
	m := New(store.NewMemoryStore(), g, nil)

	states, stop := m.Subscribe()
	defer stop()
	if s := <-states; s.Kind != Idle {
		t.Errorf("initial state = %+v", s)
	}

	info, opt := video(1)
	if _, err := m.Enqueue(ctx, info, opt, ""); err != nil {
		t.Fatal(err)
	}
	waitStarted(t, g)
	if s := <-states; s.Kind != Downloading || s.Active != 1 {
		t.Errorf("state after enqueue = %+v", s)
	}

	g.release(opt.URL, nil)
	m.Wait()
	if s := <-states; s.Kind != Idle {
		t.Errorf("state after completion = %+v", s)
	}
}

func TestEnqueueRejectsMissingURL(t *testing.T) {
	m := New(store.NewMemoryStore(), newGatedTransfer(), nil)
	info, opt := video(1)
	opt.URL = ""
	if _, err := m.Enqueue(context.Background(), info, opt, ""); !errors.Is(err, ErrNoMediaURL) {
		t.Errorf("err = %v, want ErrNoMediaURL", err)
	}
	if recs, _ := m.Records(context.Background()); len(recs) != 0 {
		t.Errorf("a record was created: %+v", recs)
	}
}

func TestRemoveAndClearHistory(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	g := newGatedTransfer()
	m := New(st, g, nil, WithMaxConcurrent(1))

	info, opt := video(1)
	done, _ := m.Enqueue(ctx, info, opt, "custom name")
	waitStarted(t, g)
	if err := m.Remove(ctx, done); !errors.Is(err, ErrStillActive) {
		t.Errorf("Remove of a running download err = %v", err)
	}
	g.release(opt.URL, nil)
	m.Wait()

	if r := getRecord(t, st, done); r.FileName != "custom name.mp4" {
		t.Errorf("FileName = %q", r.FileName)
	}

	info2, opt2 := video(2)
	failed, _ := m.Enqueue(ctx, info2, opt2, "")
	waitStarted(t, g)
	g.release(opt2.URL, errors.New("reset"))
	m.Wait()

	n, err := m.ClearHistory(ctx)
	if err != nil || n != 2 {
		t.Errorf("ClearHistory = %d, %v", n, err)
	}
	if _, err := st.Get(ctx, failed); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("failed record still present: %v", err)
	}
}
