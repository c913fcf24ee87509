package extractor

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/guiyumin/clipget/internal/core/link"
	"github.com/guiyumin/clipget/internal/core/platform"
)

// pageHeaders are the request signatures that get the fullest markup from
// each platform.
var pageHeaders = map[platform.Platform]map[string]string{
	platform.Instagram: {
		"User-Agent": userAgentIPhone,
		"Cookie":     "ig_did=; ig_nrcb=1;",
	},
	platform.TikTok: {
		"User-Agent": userAgentAndroid,
		"Referer":    "https://www.tiktok.com/",
	},
	platform.Twitter:   {"User-Agent": userAgentDesktop},
	platform.YouTube:   {"User-Agent": userAgentDesktop},
	platform.Facebook:  {"User-Agent": userAgentDesktop},
	platform.Pinterest: {"User-Agent": userAgentDesktop},
}

// PageStrategy scrapes the post's own page.
type PageStrategy struct {
	Fetcher Fetcher
}

var _ Strategy = (*PageStrategy)(nil)

func (s *PageStrategy) Name() string { return "page" }

func (s *PageStrategy) Resolve(ctx context.Context, res link.Result) (*VideoInfo, error) {
	if res.CanonicalURL == "" {
		return nil, ErrNotApplicable
	}
	resp, err := s.Fetcher.Fetch(ctx, res.CanonicalURL, pageHeaders[res.Platform])
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}

	info := scrapeDocument(res.Platform, doc, string(resp.Body), firstNonEmpty(resp.URL, res.CanonicalURL))
	for i := range info.Qualities {
		info.Qualities[i].Headers = map[string]string{"Referer": res.CanonicalURL}
	}
	return info, nil
}

// scrapeDocument reads metadata and media from a page, whether fetched or
// rendered. base resolves relative element sources.
func scrapeDocument(p platform.Platform, doc *goquery.Document, html, base string) *VideoInfo {
	meta := readMeta(doc)
	info := &VideoInfo{
		Title:        meta.Title,
		Description:  meta.Description,
		ThumbnailURL: meta.Thumbnail,
		Author:       meta.Author,
		Duration:     metaDuration(doc),
	}
	info.Qualities = pageMediaOptions(p, doc, html, base)
	return info
}

// pageMediaOptions runs the media search chain; the first step that finds
// anything wins. Only the script step can yield more than one option.
func pageMediaOptions(p platform.Platform, doc *goquery.Document, html, base string) []QualityOption {
	single := func(u string) []QualityOption {
		return []QualityOption{{Tier: platform.DefaultQuality, URL: u}}
	}

	if u := ogVideo(doc); isHTTPURL(u) && !isPlayerPage(doc) {
		return single(unescapeURL(u))
	}
	if u := jsonLDContentURL(doc); isHTTPURL(u) {
		return single(u)
	}
	if opts := scriptFieldOptions(p, html); len(opts) > 0 {
		return opts
	}
	if u := resolveRef(base, videoElementSrc(doc)); isHTTPURL(u) {
		return single(u)
	}
	if u := findMediaURL(html); isHTTPURL(u) {
		return single(u)
	}
	return nil
}

// isPlayerPage reports whether og:video points at an HTML player rather
// than a media file.
func isPlayerPage(doc *goquery.Document) bool {
	return strings.HasPrefix(metaContent(doc, "og:video:type"), "text/html")
}

func metaDuration(doc *goquery.Document) int {
	v := metaContent(doc, "video:duration", "og:video:duration")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// resolveRef resolves ref against base, leaving it unchanged when either
// does not parse.
func resolveRef(base, ref string) string {
	if ref == "" || isHTTPURL(ref) {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
