package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// DefaultSettleDelay is how long a rendered page is left to populate.
const DefaultSettleDelay = 2 * time.Second

// Rendered is what a page looked like after its scripts ran.
type Rendered struct {
	URL       string // final URL after redirects
	HTML      string
	Title     string
	Thumbnail string
	Author    string
	MediaURL  string   // source of the page's video player
	Captured  []string // video-like sub-resource requests, in request order
}

// Renderer loads a page in a scripting-capable browser.
type Renderer interface {
	Render(ctx context.Context, url string) (*Rendered, error)
}

// RodRenderer renders with a headless Chrome driven by go-rod.
type RodRenderer struct {
	Visible     bool
	Bin         string // browser binary, else $ROD_BROWSER, else rod's download
	UserDataDir string
	Settle      time.Duration
}

var _ Renderer = (*RodRenderer)(nil)

func (r *RodRenderer) Render(ctx context.Context, rawURL string) (*Rendered, error) {
	profile, err := r.profileDir()
	if err != nil {
		return nil, fmt.Errorf("failed to create browser profile: %w", err)
	}
	defer os.RemoveAll(profile)

	l := r.createLauncher(profile)
	defer l.Cleanup()

	controlURL, err := l.Context(ctx).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer browser.Close()

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	capture := &requestCapture{}
	stop := capture.listen(page)
	defer stop()

	if err := page.Navigate(rawURL); err != nil {
		return nil, fmt.Errorf("navigating to %s: %w", rawURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", rawURL, err)
	}

	settle := r.Settle
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	select {
	case <-time.After(settle):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("reading rendered page: %w", err)
	}

	out := &Rendered{
		URL:       rawURL,
		HTML:      html,
		Title:     evalString(page, `() => document.title`),
		Thumbnail: evalString(page, `() => { const m = document.querySelector('meta[property="og:image"]'); return m ? m.content : ''; }`),
		Author:    evalString(page, `() => { const m = document.querySelector('meta[name="author"]'); return m ? m.content : ''; }`),
		MediaURL:  playerSource(page),
	}
	if info, err := page.Info(); err == nil && info.URL != "" {
		out.URL = info.URL
	}
	out.Captured = append(capture.urls(), performanceEntries(page)...)
	return out, nil
}

// requestCapture records video-like requests while a page loads.
type requestCapture struct {
	mu   sync.Mutex
	seen []string
}

func (c *requestCapture) add(u string) {
	if !IsVideoURL(u) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.seen {
		if s == u {
			return
		}
	}
	c.seen = append(c.seen, u)
}

func (c *requestCapture) urls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.seen...)
}

// listen subscribes to network events until the returned func is called.
func (c *requestCapture) listen(page *rod.Page) func() {
	_ = proto.NetworkEnable{}.Call(page)

	listenerCtx, stopListener := context.WithCancel(page.GetContext())
	done := make(chan struct{})
	go func() {
		defer close(done)
		page.Context(listenerCtx).EachEvent(func(ev *proto.NetworkRequestWillBeSent) {
			c.add(ev.Request.URL)
		})()
	}()
	return func() {
		stopListener()
		<-done
	}
}

func evalString(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(res.Value.String())
}

// playerSource asks the page's video player for what it is playing.
func playerSource(page *rod.Page) string {
	src := evalString(page, `() => {
		const video = document.querySelector('video');
		if (!video) return '';
		if (video.currentSrc) return video.currentSrc;
		if (video.src) return video.src;
		const source = video.querySelector('source[src]');
		return source ? source.src : '';
	}`)
	// MediaSource players expose blob: URLs that cannot be fetched.
	if !isHTTPURL(src) {
		return ""
	}
	return src
}

// performanceEntries returns video-like resources from the Performance API.
func performanceEntries(page *rod.Page) []string {
	res, err := page.Eval(`() => performance.getEntriesByType('resource').map(r => r.name)`)
	if err != nil {
		return nil
	}
	var out []string
	for _, v := range res.Value.Arr() {
		if u := v.String(); IsVideoURL(u) {
			out = append(out, u)
		}
	}
	return out
}

// profileDir makes a fresh user-data directory under UserDataDir. Chrome
// locks its profile, so concurrent renders cannot share one.
func (r *RodRenderer) profileDir() (string, error) {
	base := r.UserDataDir
	if base == "" {
		base = filepath.Join(os.TempDir(), "clipget-browser")
	}
	if err := os.MkdirAll(base, 0700); err != nil {
		return "", err
	}
	return os.MkdirTemp(base, "profile-")
}

func (r *RodRenderer) createLauncher(userDataDir string) *launcher.Launcher {
	l := launcher.New().
		Headless(!r.Visible).
		UserDataDir(userDataDir).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("disable-extensions").
		Set("disable-background-networking").
		Set("disable-sync").
		Set("no-first-run").
		Set("mute-audio").
		Set("window-size", "1280,900").
		Set("user-agent", userAgentDesktop)

	bin := r.Bin
	if bin == "" {
		bin = os.Getenv("ROD_BROWSER")
	}
	if bin != "" {
		l = l.Bin(bin)
	}
	return l
}
