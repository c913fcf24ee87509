package extractor

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/guiyumin/clipget/internal/core/link"
	"github.com/guiyumin/clipget/internal/core/platform"
)

var numericIDRegex = regexp.MustCompile(`^\d+$`)

// EmbedStrategy reads the public embed widget a platform serves for a post.
type EmbedStrategy struct {
	Fetcher Fetcher
}

var _ Strategy = (*EmbedStrategy)(nil)

func (s *EmbedStrategy) Name() string { return "embed" }

// EmbedURL returns the embed endpoint for res, or "" when the platform has
// none or the link carries no usable id.
func EmbedURL(res link.Result) string {
	switch res.Platform {
	case platform.Instagram:
		if res.VideoID != "" {
			return fmt.Sprintf("https://www.instagram.com/p/%s/embed/captioned/", res.VideoID)
		}
	case platform.TikTok:
		if numericIDRegex.MatchString(res.VideoID) {
			return "https://www.tiktok.com/embed/v2/" + res.VideoID
		}
	case platform.Facebook:
		return "https://www.facebook.com/plugins/video.php?href=" + url.QueryEscape(res.CanonicalURL)
	case platform.Pinterest:
		if numericIDRegex.MatchString(res.VideoID) {
			return "https://assets.pinterest.com/ext/embed.html?id=" + res.VideoID
		}
	}
	return ""
}

func (s *EmbedStrategy) Resolve(ctx context.Context, res link.Result) (*VideoInfo, error) {
	embedURL := EmbedURL(res)
	if embedURL == "" {
		return nil, ErrNotApplicable
	}

	resp, err := s.Fetcher.Fetch(ctx, embedURL, map[string]string{
		"User-Agent": userAgentDesktop,
		"Referer":    res.CanonicalURL,
	})
	if err != nil {
		return nil, err
	}
	html := string(resp.Body)
	doc, err := parseHTML(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing embed page: %w", err)
	}

	meta := readMeta(doc)
	info := &VideoInfo{
		Title:        firstNonEmpty(strings.TrimSpace(doc.Find(".Caption").First().Text()), meta.Title),
		Description:  meta.Description,
		ThumbnailURL: firstNonEmpty(doc.Find("img.EmbeddedMediaImage").First().AttrOr("src", ""), meta.Thumbnail),
		Author:       firstNonEmpty(strings.TrimSpace(doc.Find(".UsernameText").First().Text()), meta.Author),
	}

	if media := embedMediaURL(doc, html); media != "" {
		info.Qualities = []QualityOption{{
			Tier:    platform.DefaultQuality,
			URL:     media,
			Headers: map[string]string{"Referer": embedURL},
		}}
	}
	return info, nil
}

// embedMediaURL tries each extraction in turn; the first hit wins.
func embedMediaURL(doc *goquery.Document, html string) string {
	candidates := []func() string{
		func() string { return findSubmatch(videoURLRegex, html) },
		func() string { return findSubmatch(contentURLRegex, html) },
		func() string { return findSubmatch(dataVideoRegex, html) },
		func() string { return videoElementSrc(doc) },
		func() string { return findMediaURL(html) },
		func() string { return findCDNMediaURL(html) },
	}
	for _, c := range candidates {
		if u := c(); isHTTPURL(u) {
			return u
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
