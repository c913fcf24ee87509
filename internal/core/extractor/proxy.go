package extractor

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/guiyumin/clipget/internal/core/link"
	"github.com/guiyumin/clipget/internal/core/platform"
)

// ProxyStrategy reads a tweet through an embed-fix mirror, which answers
// chat-preview crawlers with plain og:video tags.
type ProxyStrategy struct {
	Fetcher Fetcher
	// Host replaces the tweet's host, "https://vxtwitter.com" by default.
	Host string
}

var _ Strategy = (*ProxyStrategy)(nil)

func (s *ProxyStrategy) Name() string { return "proxy" }

func (s *ProxyStrategy) Resolve(ctx context.Context, res link.Result) (*VideoInfo, error) {
	if res.Platform != platform.Twitter {
		return nil, ErrNotApplicable
	}
	u, err := url.Parse(res.CanonicalURL)
	if err != nil || !strings.Contains(u.Path, "/status/") {
		return nil, ErrNotApplicable
	}
	host := s.Host
	if host == "" {
		host = "https://vxtwitter.com"
	}
	proxyURL := strings.TrimSuffix(host, "/") + u.Path

	resp, err := s.Fetcher.Fetch(ctx, proxyURL, map[string]string{"User-Agent": userAgentDiscord})
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing proxy page: %w", err)
	}

	meta := readMeta(doc)
	info := &VideoInfo{
		Title:        firstNonEmpty(meta.Description, meta.Title),
		ThumbnailURL: meta.Thumbnail,
		Author:       metaContent(doc, "twitter:creator", "og:site_name"),
	}
	if media := ogVideo(doc); isHTTPURL(media) {
		info.Qualities = []QualityOption{{Tier: platform.DefaultQuality, URL: unescapeURL(media)}}
	}
	return info, nil
}
