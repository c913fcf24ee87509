package extractor

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/guiyumin/clipget/internal/core/i18n"
	"github.com/guiyumin/clipget/internal/core/link"
	"github.com/guiyumin/clipget/internal/core/platform"
)

// fakeStrategy returns a canned result and counts its calls.
type fakeStrategy struct {
	name  string
	info  *VideoInfo
	err   error
	calls int
}

func (s *fakeStrategy) Name() string { return s.name }

func (s *fakeStrategy) Resolve(context.Context, link.Result) (*VideoInfo, error) {
	s.calls++
	if s.info == nil {
		return nil, s.err
	}
	cp := *s.info
	cp.Qualities = append([]QualityOption(nil), s.info.Qualities...)
	return &cp, s.err
}

func playable(u string) *VideoInfo {
	return &VideoInfo{Qualities: []QualityOption{{Tier: platform.Quality720p, URL: u}}}
}

func newTestResolver(t *testing.T, p platform.Platform, strategies ...*fakeStrategy) *Resolver {
	t.Helper()
	opts := []Option{}
	names := []string{}
	for _, s := range strategies {
		opts = append(opts, WithStrategy(s))
		names = append(names, s.name)
	}
	opts = append(opts, WithPlan(p, names...))
	r, err := New(&stubFetcher{}, nil, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

const tweetURL = "https://x.com/someone/status/1234567890"

func TestResolveStopsAtFirstPlayable(t *testing.T) {
	first := &fakeStrategy{name: "a", info: &VideoInfo{Title: "metadata only", Author: "someone"}}
	second := &fakeStrategy{name: "b", info: playable("https://video.twimg.com/b.mp4")}
	third := &fakeStrategy{name: "c", info: playable("https://video.twimg.com/c.mp4")}
	r := newTestResolver(t, platform.Twitter, first, second, third)

	info, err := r.Resolve(context.Background(), tweetURL)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first.calls != 1 || second.calls != 1 || third.calls != 0 {
		t.Errorf("calls = %d/%d/%d, want 1/1/0", first.calls, second.calls, third.calls)
	}
	if info.Qualities[0].URL != "https://video.twimg.com/b.mp4" {
		t.Errorf("media = %q", info.Qualities[0].URL)
	}
	if info.Title != "metadata only" || info.Author != "someone" {
		t.Errorf("metadata was not merged: %+v", info)
	}
	if info.ID != "1234567890" || info.Platform != platform.Twitter || info.SourceURL != tweetURL {
		t.Errorf("identity = %s %s %s", info.ID, info.Platform, info.SourceURL)
	}
}

func TestResolveSkipsFailuresAndNotApplicable(t *testing.T) {
	na := &fakeStrategy{name: "a", err: ErrNotApplicable}
	broken := &fakeStrategy{name: "b", err: &FetchError{URL: "https://x", StatusCode: 500}}
	good := &fakeStrategy{name: "c", info: playable("https://video.twimg.com/c.mp4")}
	r := newTestResolver(t, platform.Twitter, na, broken, good)

	info, err := r.Resolve(context.Background(), tweetURL)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !info.Playable() || good.calls != 1 {
		t.Errorf("info = %+v, calls = %d", info, good.calls)
	}
}

func TestResolveNoMediaFound(t *testing.T) {
	broken := &fakeStrategy{name: "a", err: errors.New("boom")}
	empty := &fakeStrategy{name: "b", info: &VideoInfo{ThumbnailURL: "https://pbs.twimg.com/t.jpg"}}
	r := newTestResolver(t, platform.Twitter, broken, empty)

	info, err := r.Resolve(context.Background(), tweetURL)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if info.Playable() || info.Qualities == nil || len(info.Qualities) != 0 {
		t.Errorf("Qualities = %#v, want empty", info.Qualities)
	}
	if info.Title != platform.Twitter.DisplayName()+" Video" {
		t.Errorf("Title = %q, want default", info.Title)
	}
	if info.ThumbnailURL == "" {
		t.Error("thumbnail from the metadata-only result was dropped")
	}
}

func TestResolveAllFail(t *testing.T) {
	dnsErr := &FetchError{URL: "https://x", Err: &net.DNSError{Err: "no such host", Name: "x"}}
	r := newTestResolver(t, platform.Twitter,
		&fakeStrategy{name: "a", err: errors.New("first")},
		&fakeStrategy{name: "b", err: dnsErr},
	)

	_, err := r.Resolve(context.Background(), tweetURL)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fetchErr != dnsErr {
		t.Errorf("got %v, want the last strategy error", fetchErr)
	}
	if fetchErr.Kind() != FetchConnectivity {
		t.Errorf("Kind = %s", fetchErr.Kind())
	}

	r = newTestResolver(t, platform.Twitter, &fakeStrategy{name: "a", err: errors.New("plain")})
	_, err = r.Resolve(context.Background(), tweetURL)
	if !errors.As(err, &fetchErr) || fetchErr.Err.Error() != "plain" {
		t.Errorf("err = %v, want wrapped plain error", err)
	}
}

func TestResolveKeepsTweetError(t *testing.T) {
	r := newTestResolver(t, platform.Twitter,
		&fakeStrategy{name: "syndication", err: &TwitterError{Code: TwitterErrorProtected, Message: "protected"}},
		&fakeStrategy{name: "proxy", err: &FetchError{URL: "https://proxy", StatusCode: 404}},
		&fakeStrategy{name: "page", err: errors.New("no video in page")},
	)

	_, err := r.Resolve(context.Background(), tweetURL)
	var twErr *TwitterError
	if !errors.As(err, &twErr) || twErr.Code != TwitterErrorProtected {
		t.Fatalf("err = %v, want the protected tweet error", err)
	}
	if got := Describe(err, i18n.GetTranslations("en")); got != i18n.GetTranslations("en").Errors.TweetProtected {
		t.Errorf("Describe = %q", got)
	}
}

func TestResolveUnsupported(t *testing.T) {
	r, err := New(&stubFetcher{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, u := range []string{"", "hello", "https://vimeo.com/123"} {
		_, err := r.Resolve(context.Background(), u)
		if !errors.Is(err, ErrUnsupportedURL) {
			t.Errorf("Resolve(%q) err = %v, want ErrUnsupportedURL", u, err)
		}
	}
}

func TestResolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &fakeStrategy{name: "a", info: playable("https://v/a.mp4")}
	r := newTestResolver(t, platform.Twitter, s)
	if _, err := r.Resolve(ctx, tweetURL); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if s.calls != 0 {
		t.Errorf("strategy ran after cancellation")
	}
}

func TestResolveCapsText(t *testing.T) {
	s := &fakeStrategy{name: "a", info: &VideoInfo{
		Title:       strings.Repeat("t", 300),
		Description: strings.Repeat("d", 300),
		Author:      strings.Repeat("a", 300),
		Qualities:   []QualityOption{{Tier: platform.Quality720p, URL: "https://v/a.mp4"}},
	}}
	r := newTestResolver(t, platform.Twitter, s)
	info, err := r.Resolve(context.Background(), tweetURL)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(info.Title) != MaxTitleRunes || len(info.Description) != MaxDescriptionRunes || len(info.Author) != MaxAuthorRunes {
		t.Errorf("lengths = %d/%d/%d", len(info.Title), len(info.Description), len(info.Author))
	}
}

func TestNewPlans(t *testing.T) {
	r, err := New(&stubFetcher{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := strings.Join(r.Plan(platform.Twitter), ","); got != "syndication,proxy,page" {
		t.Errorf("twitter plan without renderer = %s", got)
	}

	r, err = New(&stubFetcher{}, &stubRenderer{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := strings.Join(r.Plan(platform.Instagram), ","); got != "embed,page,render" {
		t.Errorf("instagram plan = %s", got)
	}

	if _, err := New(&stubFetcher{}, nil, WithPlan(platform.YouTube, "page", "nope")); err == nil {
		t.Error("expected an error for an unknown strategy")
	}
}

func TestFetchErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  *FetchError
		want FetchKind
	}{
		{"status", &FetchError{StatusCode: 404}, FetchNetwork},
		{"deadline", &FetchError{Err: context.DeadlineExceeded}, FetchTimeout},
		{"dns", &FetchError{Err: &net.DNSError{Err: "no such host"}}, FetchConnectivity},
		{"dial", &FetchError{Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}, FetchConnectivity},
		{"other", &FetchError{Err: errors.New("reset")}, FetchNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Kind(); got != tt.want {
				t.Errorf("Kind = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	tr := i18n.GetTranslations("en")
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"no media", nil, tr.Errors.NoMedia},
		{"timeout", &FetchError{Err: context.DeadlineExceeded}, tr.Errors.Timeout},
		{"offline", &FetchError{Err: &net.DNSError{Err: "no such host"}}, tr.Errors.Connectivity},
		{"network", &FetchError{StatusCode: 500}, tr.Errors.Network},
		{"protected tweet", &FetchError{Err: &TwitterError{Code: TwitterErrorProtected}}, tr.Errors.TweetProtected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.err, tr); got != tt.want {
				t.Errorf("Describe = %q, want %q", got, tt.want)
			}
		})
	}

	msg := Describe(&UnsupportedURLError{URL: "x"}, tr)
	for _, name := range platform.DisplayNames() {
		if !strings.Contains(msg, name) {
			t.Errorf("unsupported message %q does not name %s", msg, name)
		}
	}
}
