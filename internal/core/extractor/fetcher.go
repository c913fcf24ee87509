package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// MaxBodySize caps how much of a page the fetcher reads.
const MaxBodySize = 8 << 20

// DefaultFetchTimeout bounds a single page fetch.
const DefaultFetchTimeout = 30 * time.Second

// Request signatures. Platforms serve different markup to different
// clients, so strategies pick the one their source expects.
const (
	userAgentDesktop = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	userAgentAndroid = "Mozilla/5.0 (Linux; Android 13; SM-G998B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
	userAgentIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1"
	userAgentDiscord = "Mozilla/5.0 (compatible; Discordbot/2.0; +https://discordapp.com)"
)

// Response is a fetched resource after redirects.
type Response struct {
	StatusCode int
	URL        string
	Body       []byte
}

// Fetcher retrieves a URL with the given request headers. Implementations
// follow redirects and return a *FetchError for transport failures and
// non-2xx answers.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) (*Response, error)
}

// FetchKind classifies a fetch failure for user-facing messages.
type FetchKind string

const (
	FetchConnectivity FetchKind = "connectivity"
	FetchTimeout      FetchKind = "timeout"
	FetchNetwork      FetchKind = "network"
)

// FetchError is a failure to retrieve a strategy's source.
type FetchError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Kind tells a lost connection apart from a timeout or any other failure.
func (e *FetchError) Kind() FetchKind {
	if e.StatusCode != 0 || e.Err == nil {
		return FetchNetwork
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return FetchTimeout
	}
	var netErr net.Error
	if errors.As(e.Err, &netErr) && netErr.Timeout() {
		return FetchTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(e.Err, &dnsErr) {
		return FetchConnectivity
	}
	var opErr *net.OpError
	if errors.As(e.Err, &opErr) && opErr.Op == "dial" {
		return FetchConnectivity
	}
	return FetchNetwork
}

// HTTPFetcher is the net/http Fetcher.
type HTTPFetcher struct {
	Client  *http.Client
	MaxBody int64
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher returns a fetcher whose requests time out after timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPFetcher{
		Client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
		},
		MaxBody: MaxBodySize,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgentAndroid)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	max := f.MaxBody
	if max <= 0 {
		max = MaxBodySize
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, max))
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	return &Response{
		StatusCode: resp.StatusCode,
		URL:        resp.Request.URL.String(),
		Body:       body,
	}, nil
}
