package extractor

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/guiyumin/clipget/internal/core/platform"
)

var (
	contentURLRegex = regexp.MustCompile(`"contentUrl"\s*:\s*"([^"]+)"`)
	videoURLRegex   = regexp.MustCompile(`"video_url"\s*:\s*"([^"]+)"`)
	dataVideoRegex  = regexp.MustCompile(`data-video-url="([^"]+)"`)

	// Media files linked anywhere in a page, JSON-escaped or not.
	mediaURLRegex = regexp.MustCompile(`https?:(?:\\?/){2}[^"'\s<>]+?\.(?:mp4|webm|mov|m4v)(?:[?#\\][^"'\s<>]*)?`)

	cdnMediaRegex = regexp.MustCompile(`https?:(?:\\?/){2}[^"'\s<>]*(?:cdninstagram\.com|scontent|tiktokcdn|fbcdn\.net|video\.twimg\.com|pinimg\.com)[^"'\s<>]*\.mp4[^"'\s<>]*`)

	urlUnescaper = strings.NewReplacer(
		`\u0026`, "&",
		`\u002F`, "/",
		`\u002f`, "/",
		`\/`, "/",
		"&amp;", "&",
	)
)

// scriptField is a platform-specific JSON key that carries a media URL in
// the page's embedded scripts.
type scriptField struct {
	Tier    platform.QualityTier
	Pattern *regexp.Regexp
}

func field(tier platform.QualityTier, pattern string) scriptField {
	return scriptField{Tier: tier, Pattern: regexp.MustCompile(pattern)}
}

// Watermark-free fields come before watermarked ones.
var scriptFields = map[platform.Platform][]scriptField{
	platform.TikTok: {
		field(platform.Quality720p, `"playAddr"\s*:\s*"([^"]+)"`),
		field(platform.Quality720p, `"downloadAddr"\s*:\s*"([^"]+)"`),
		field(platform.Quality720p, `"play_addr"\s*:\s*\{[^}]*"url_list"\s*:\s*\["([^"]+)"`),
	},
	platform.Facebook: {
		field(platform.Quality1080p, `"playable_url_quality_hd"\s*:\s*"([^"]+)"`),
		field(platform.Quality720p, `"playable_url"\s*:\s*"([^"]+)"`),
		field(platform.Quality1080p, `"hd_src"\s*:\s*"([^"]+)"`),
		field(platform.Quality720p, `"sd_src"\s*:\s*"([^"]+)"`),
	},
	platform.Instagram: {
		field(platform.Quality720p, `"video_url"\s*:\s*"([^"]+)"`),
		field(platform.Quality720p, `"video_versions"\s*:\s*\[\{"type":\d+,"url":"([^"]+)"`),
		field(platform.Quality720p, `"playback_url"\s*:\s*"([^"]+)"`),
	},
	platform.Twitter: {
		field(platform.Quality720p, `(https://video\.twimg\.com[^"\s]+\.mp4[^"\s]*)`),
	},
	platform.Pinterest: {
		field(platform.Quality720p, `"V_720P"\s*:\s*\{[^}]*"url"\s*:\s*"([^"]+)"`),
	},
}

// pageMeta is the preview metadata of a page.
type pageMeta struct {
	Title       string
	Description string
	Thumbnail   string
	Author      string
}

func parseHTML(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// metaContent returns the content of the first non-empty meta tag among
// keys, looked up by property and by name.
func metaContent(doc *goquery.Document, keys ...string) string {
	for _, key := range keys {
		sel := doc.Find(`meta[property="` + key + `"], meta[name="` + key + `"]`)
		for i := range sel.Nodes {
			if v := strings.TrimSpace(sel.Eq(i).AttrOr("content", "")); v != "" {
				return v
			}
		}
	}
	return ""
}

func readMeta(doc *goquery.Document) pageMeta {
	m := pageMeta{
		Title:       metaContent(doc, "og:title", "twitter:title"),
		Description: metaContent(doc, "og:description", "description", "twitter:description"),
		Thumbnail:   metaContent(doc, "og:image", "og:image:secure_url", "twitter:image"),
		Author:      metaContent(doc, "author", "og:site_name"),
	}
	if m.Title == "" {
		m.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return m
}

// ogVideo reads the structured video tags.
func ogVideo(doc *goquery.Document) string {
	return metaContent(doc, "og:video", "og:video:url", "og:video:secure_url", "twitter:player:stream")
}

// jsonLDContentURL returns the first contentUrl in the page's JSON-LD blocks.
func jsonLDContentURL(doc *goquery.Document) string {
	var found string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := contentURLRegex.FindStringSubmatch(s.Text()); m != nil {
			found = unescapeURL(m[1])
			return false
		}
		return true
	})
	return found
}

// videoElementSrc returns the src of the first <source> inside a <video>,
// else of the <video> itself.
func videoElementSrc(doc *goquery.Document) string {
	if src, ok := doc.Find("video source[src]").First().Attr("src"); ok && strings.TrimSpace(src) != "" {
		return strings.TrimSpace(src)
	}
	if src, ok := doc.Find("video[src]").First().Attr("src"); ok {
		return strings.TrimSpace(src)
	}
	return ""
}

// scriptFieldOptions collects every platform field present in html.
func scriptFieldOptions(p platform.Platform, html string) []QualityOption {
	var opts []QualityOption
	for _, f := range scriptFields[p] {
		if m := f.Pattern.FindStringSubmatch(html); m != nil {
			if u := unescapeURL(m[1]); isHTTPURL(u) {
				opts = append(opts, QualityOption{Tier: f.Tier, URL: u})
			}
		}
	}
	return opts
}

func findMediaURL(html string) string {
	return unescapeURL(mediaURLRegex.FindString(html))
}

func findCDNMediaURL(html string) string {
	return unescapeURL(cdnMediaRegex.FindString(html))
}

func findSubmatch(re *regexp.Regexp, html string) string {
	if m := re.FindStringSubmatch(html); m != nil {
		return unescapeURL(m[1])
	}
	return ""
}

// unescapeURL reverses the JSON and HTML escaping found in page sources.
func unescapeURL(s string) string {
	return strings.TrimSpace(urlUnescaper.Replace(s))
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

// IsVideoURL is the heuristic for sub-resource requests observed while a
// page renders: a media extension, or a video marker next to a CDN marker.
func IsVideoURL(u string) bool {
	lower := strings.ToLower(u)
	if strings.Contains(lower, ".m3u8") || strings.Contains(lower, ".mpd") {
		return false
	}
	for _, ext := range []string{".mp4", ".webm", ".mov", ".m4v"} {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	marker := strings.Contains(lower, "video") || strings.Contains(lower, "playback") || strings.Contains(lower, "stream")
	host := strings.Contains(lower, "cdn") || strings.Contains(lower, "media")
	return marker && host
}
