package extractor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/guiyumin/clipget/internal/core/link"
	"github.com/guiyumin/clipget/internal/core/platform"
)

// stubFetcher serves canned bodies by URL prefix and records every request.
type stubFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string]error
	calls  []string
	header []map[string]string
}

func (f *stubFetcher) Fetch(_ context.Context, url string, headers map[string]string) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	f.header = append(f.header, headers)
	for prefix, err := range f.errs {
		if strings.HasPrefix(url, prefix) {
			return nil, err
		}
	}
	for prefix, body := range f.pages {
		if strings.HasPrefix(url, prefix) {
			return &Response{StatusCode: 200, URL: url, Body: []byte(body)}, nil
		}
	}
	return nil, &FetchError{URL: url, StatusCode: 404}
}

func classify(t *testing.T, u string) link.Result {
	t.Helper()
	res := link.Classify(u)
	if !res.Valid {
		t.Fatalf("Classify(%q) rejected the url", u)
	}
	return res
}

func TestEmbedURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.instagram.com/reel/Cabc123/", "https://www.instagram.com/p/Cabc123/embed/captioned/"},
		{"https://www.tiktok.com/@someone/video/7234567890123456789", "https://www.tiktok.com/embed/v2/7234567890123456789"},
		{"https://vm.tiktok.com/ZMabc123/", ""},
		{"https://www.pinterest.com/pin/123456789/", "https://assets.pinterest.com/ext/embed.html?id=123456789"},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", ""},
		{"https://x.com/someone/status/1234567890", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := EmbedURL(classify(t, tt.url)); got != tt.want {
				t.Errorf("EmbedURL = %q, want %q", got, tt.want)
			}
		})
	}

	fb := EmbedURL(classify(t, "https://www.facebook.com/watch/?v=123456"))
	if !strings.HasPrefix(fb, "https://www.facebook.com/plugins/video.php?href=https%3A%2F%2F") {
		t.Errorf("facebook embed url = %q", fb)
	}
}

func TestEmbedStrategy(t *testing.T) {
	f := &stubFetcher{pages: map[string]string{
		"https://www.instagram.com/p/Cabc123/embed/": `<html><body>
			<div class="UsernameText">someone</div>
			<div class="Caption">A caption
			 over two lines</div>
			<img class="EmbeddedMediaImage" src="https://scontent.cdninstagram.com/thumb.jpg">
			<script>window.__data = {"video_url":"https:\/\/scontent.cdninstagram.com\/v\/clip.mp4?x=1"};</script>
		</body></html>`,
	}}
	s := &EmbedStrategy{Fetcher: f}

	info, err := s.Resolve(context.Background(), classify(t, "https://www.instagram.com/reel/Cabc123/"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !info.Playable() {
		t.Fatalf("expected playable descriptor, got %+v", info)
	}
	if got := info.Qualities[0].URL; got != "https://scontent.cdninstagram.com/v/clip.mp4?x=1" {
		t.Errorf("media url = %q", got)
	}
	if info.Author != "someone" || info.ThumbnailURL != "https://scontent.cdninstagram.com/thumb.jpg" {
		t.Errorf("metadata = %+v", info)
	}
	if !strings.HasPrefix(info.Title, "A caption") {
		t.Errorf("Title = %q", info.Title)
	}
	if f.header[0]["Referer"] == "" {
		t.Error("embed request sent without a referer")
	}

	if _, err := s.Resolve(context.Background(), classify(t, "https://youtu.be/dQw4w9WgXcQ")); !errors.Is(err, ErrNotApplicable) {
		t.Errorf("youtube embed err = %v, want ErrNotApplicable", err)
	}
}

const syndicationBody = `{
	"__typename": "Tweet",
	"text": "look at this",
	"user": {"screen_name": "someone", "profile_image_url_https": "https://pbs.twimg.com/a.jpg"},
	"mediaDetails": [{
		"type": "video",
		"media_url_https": "https://pbs.twimg.com/thumb.jpg",
		"video_info": {
			"duration_millis": 10000,
			"variants": [
				{"content_type": "application/x-mpegURL", "url": "https://video.twimg.com/pl.m3u8"},
				{"bitrate": 632000, "content_type": "video/mp4", "url": "https://video.twimg.com/vid/480x852/low.mp4"},
				{"bitrate": 2176000, "content_type": "video/mp4", "url": "https://video.twimg.com/vid/720x1280/high.mp4"},
				{"bitrate": 950000, "content_type": "video/mp4", "url": "https://video.twimg.com/vid/plain.mp4"}
			]
		}
	}]
}`

func TestSyndicationStrategy(t *testing.T) {
	f := &stubFetcher{pages: map[string]string{twitterSyndicationURL: syndicationBody}}
	s := &SyndicationStrategy{Fetcher: f}

	info, err := s.Resolve(context.Background(), classify(t, "https://x.com/someone/status/1234567890"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.Contains(f.calls[0], "id=1234567890") {
		t.Errorf("request url = %s", f.calls[0])
	}
	if info.Author != "someone" || info.Duration != 10 {
		t.Errorf("metadata = %+v", info)
	}

	tiers := map[platform.QualityTier]string{}
	for _, q := range info.Qualities {
		tiers[q.Tier] = q.URL
	}
	if tiers[platform.Quality720p] != "https://video.twimg.com/vid/720x1280/high.mp4" {
		t.Errorf("720p = %q", tiers[platform.Quality720p])
	}
	if tiers[platform.Quality480p] != "https://video.twimg.com/vid/480x852/low.mp4" {
		t.Errorf("480p = %q", tiers[platform.Quality480p])
	}
	if len(info.Qualities) != 3 {
		t.Errorf("got %d qualities, want 3 mp4 variants", len(info.Qualities))
	}
	for _, q := range info.Qualities {
		if q.URL == "https://video.twimg.com/vid/720x1280/high.mp4" && q.EstimatedSize != 2176000/8*10 {
			t.Errorf("EstimatedSize = %d", q.EstimatedSize)
		}
	}
}

func TestSyndicationPrefersBitrateWithoutDuration(t *testing.T) {
	body := `{
		"__typename": "Tweet",
		"mediaDetails": [{
			"type": "animated_gif",
			"video_info": {
				"variants": [
					{"bitrate": 0, "content_type": "video/mp4", "url": "https://video.twimg.com/gif/a.mp4"},
					{"bitrate": 2176000, "content_type": "video/mp4", "url": "https://video.twimg.com/gif/b.mp4"},
					{"bitrate": 832000, "content_type": "video/mp4", "url": "https://video.twimg.com/gif/c.mp4"}
				]
			}
		}]
	}`
	f := &stubFetcher{pages: map[string]string{twitterSyndicationURL: body}}
	s := &SyndicationStrategy{Fetcher: f}

	info, err := s.Resolve(context.Background(), classify(t, "https://x.com/someone/status/1234567890"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	var urls []string
	for _, q := range info.Qualities {
		urls = append(urls, q.URL)
	}
	want := "https://video.twimg.com/gif/b.mp4,https://video.twimg.com/gif/c.mp4,https://video.twimg.com/gif/a.mp4"
	if got := strings.Join(urls, ","); got != want {
		t.Errorf("variant order = %s, want %s", got, want)
	}
}

func TestSyndicationUnavailable(t *testing.T) {
	tests := []struct {
		body string
		code string
	}{
		{`{"__typename":"TweetTombstone","tombstone":{"text":{"text":"gone"}}}`, TwitterErrorUnavailable},
		{`{"__typename":"TweetUnavailable","reason":"NsfwLoggedOut"}`, TwitterErrorNSFW},
		{`{"__typename":"TweetUnavailable","reason":"Protected"}`, TwitterErrorProtected},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			s := &SyndicationStrategy{Fetcher: &stubFetcher{pages: map[string]string{twitterSyndicationURL: tt.body}}}
			_, err := s.Resolve(context.Background(), classify(t, "https://twitter.com/someone/status/99"))
			var twErr *TwitterError
			if !errors.As(err, &twErr) || twErr.Code != tt.code {
				t.Errorf("err = %v, want TwitterError %s", err, tt.code)
			}
		})
	}
}

func TestProxyStrategy(t *testing.T) {
	f := &stubFetcher{pages: map[string]string{
		"https://vxtwitter.com/someone/status/42": `<html><head>
			<meta property="og:description" content="tweet text">
			<meta property="og:video" content="https://video.twimg.com/vid/a.mp4">
		</head></html>`,
	}}
	s := &ProxyStrategy{Fetcher: f}

	info, err := s.Resolve(context.Background(), classify(t, "https://x.com/someone/status/42"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !info.Playable() || info.Title != "tweet text" {
		t.Errorf("info = %+v", info)
	}
	if !strings.Contains(f.header[0]["User-Agent"], "Discordbot") {
		t.Errorf("User-Agent = %q", f.header[0]["User-Agent"])
	}
}

func TestPageStrategySignature(t *testing.T) {
	f := &stubFetcher{pages: map[string]string{
		"https://www.instagram.com/": `<meta property="og:title" content="post">`,
	}}
	s := &PageStrategy{Fetcher: f}

	info, err := s.Resolve(context.Background(), classify(t, "https://www.instagram.com/p/Cabc123/"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if info.Playable() || info.Title != "post" {
		t.Errorf("info = %+v", info)
	}
	h := f.header[0]
	if !strings.Contains(h["User-Agent"], "iPhone") || !strings.Contains(h["Cookie"], "ig_nrcb=1") {
		t.Errorf("instagram page headers = %v", h)
	}
}

type stubRenderer struct {
	out   *Rendered
	err   error
	delay time.Duration
}

func (r *stubRenderer) Render(ctx context.Context, _ string) (*Rendered, error) {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.out, r.err
}

func TestRenderStrategy(t *testing.T) {
	res := classify(t, "https://www.tiktok.com/@someone/video/7234567890123456789")

	t.Run("captured request fallback", func(t *testing.T) {
		s := &RenderStrategy{Renderer: &stubRenderer{out: &Rendered{
			HTML:     `<html><head><title>rendered</title></head></html>`,
			Captured: []string{"https://v16.tiktokcdn.com/video/tos/clip?mime=mp4"},
		}}}
		info, err := s.Resolve(context.Background(), res)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if !info.Playable() || info.Qualities[0].URL != "https://v16.tiktokcdn.com/video/tos/clip?mime=mp4" {
			t.Errorf("info = %+v", info)
		}
		if info.Qualities[0].Headers["Referer"] != res.CanonicalURL {
			t.Errorf("Referer = %q", info.Qualities[0].Headers["Referer"])
		}
	})

	t.Run("timeout is not an error", func(t *testing.T) {
		s := &RenderStrategy{Renderer: &stubRenderer{delay: time.Second}, Timeout: 20 * time.Millisecond}
		info, err := s.Resolve(context.Background(), res)
		if err != nil || info != nil {
			t.Errorf("Resolve = %v, %v; want nil, nil", info, err)
		}
	})

	t.Run("caller cancellation is returned", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s := &RenderStrategy{Renderer: &stubRenderer{delay: time.Second}}
		if _, err := s.Resolve(ctx, res); !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}
