package link

import (
	"regexp"

	"github.com/guiyumin/clipget/internal/core/platform"
)

// Rule is one recognised URL shape. Pattern may capture one or two groups;
// when the second group is non-empty it is the video id, otherwise the first.
type Rule struct {
	Platform platform.Platform
	Name     string
	Pattern  *regexp.Regexp
}

// rule compiles a case-insensitive pattern anchored at the start of the input.
// Every pattern accepts an optional scheme.
func rule(p platform.Platform, name, pattern string) Rule {
	return Rule{
		Platform: p,
		Name:     name,
		Pattern:  regexp.MustCompile(`(?i)^(?:https?://)?` + pattern),
	}
}

// catalogue is evaluated top to bottom; the first match wins.
var catalogue = []Rule{
	// Instagram
	rule(platform.Instagram, "post", `(?:www\.)?instagram\.com/(?:p|reel|tv|reels)/([A-Za-z0-9_-]+)`),
	rule(platform.Instagram, "short", `(?:www\.)?instagr\.am/(?:p|reel)/([A-Za-z0-9_-]+)`),
	rule(platform.Instagram, "story", `(?:www\.)?instagram\.com/stories/([^/?#]+)/([0-9]+)`),
	rule(platform.Instagram, "igtv", `(?:www\.)?instagram\.com/([^/?#]+)/(?:channel|igtv)/([A-Za-z0-9_-]+)`),
	rule(platform.Instagram, "share", `(?:www\.)?instagram\.com/share/([A-Za-z0-9_-]+)`),

	// TikTok
	rule(platform.TikTok, "video", `(?:www\.|m\.)?tiktok\.com/@([^/?#]+)/video/([0-9]+)`),
	rule(platform.TikTok, "vm", `(?:vm|vt)\.tiktok\.com/([A-Za-z0-9]+)`),
	rule(platform.TikTok, "t", `(?:www\.)?tiktok\.com/t/([A-Za-z0-9]+)`),
	rule(platform.TikTok, "mobile", `(?:m\.)?tiktok\.com/v/([0-9]+)`),
	rule(platform.TikTok, "share", `(?:www\.)?tiktok\.com/share/video/([0-9]+)`),
	rule(platform.TikTok, "embed", `(?:www\.)?tiktok\.com/embed/(?:v2/)?([0-9]+)`),
	rule(platform.TikTok, "profile", `(?:www\.)?tiktok\.com/@([^/?#]+)`),

	// Twitter / X
	rule(platform.Twitter, "x", `(?:www\.)?x\.com/([^/?#]+)/status/([0-9]+)`),
	rule(platform.Twitter, "twitter", `(?:www\.)?twitter\.com/([^/?#]+)/status/([0-9]+)`),
	rule(platform.Twitter, "mobile", `mobile\.(?:twitter|x)\.com/([^/?#]+)/status/([0-9]+)`),
	rule(platform.Twitter, "fixer", `(?:www\.)?(?:fx|vx|fixv|fixup)(?:twitter|x)\.com/([^/?#]+)/status/([0-9]+)`),
	rule(platform.Twitter, "nitter", `(?:www\.)?nitter\.[a-z.]+/([^/?#]+)/status/([0-9]+)`),
	rule(platform.Twitter, "tco", `t\.co/([A-Za-z0-9]+)`),

	// YouTube
	rule(platform.YouTube, "watch", `(?:www\.|m\.|music\.)?youtube\.com/watch\?(?:[^#]*&)?v=([A-Za-z0-9_-]{11})`),
	rule(platform.YouTube, "short", `youtu\.be/([A-Za-z0-9_-]{11})`),
	rule(platform.YouTube, "shorts", `(?:www\.|m\.)?youtube\.com/shorts/([A-Za-z0-9_-]{11})`),
	rule(platform.YouTube, "embed", `(?:www\.)?youtube\.com/(?:embed|v)/([A-Za-z0-9_-]{11})`),
	rule(platform.YouTube, "attribution", `(?:www\.)?youtube\.com/attribution_link\?.*v%3D([A-Za-z0-9_-]{11})`),
	rule(platform.YouTube, "live", `(?:www\.|m\.)?youtube\.com/live/([A-Za-z0-9_-]{11})`),
	rule(platform.YouTube, "clip", `(?:www\.)?youtube\.com/clip/([A-Za-z0-9_-]+)`),
	rule(platform.YouTube, "nocookie", `(?:www\.)?youtube-nocookie\.com/embed/([A-Za-z0-9_-]{11})`),

	// Facebook
	rule(platform.Facebook, "watch", `(?:www\.|m\.|web\.)?facebook\.com/watch/?\?v=([0-9]+)`),
	rule(platform.Facebook, "videos", `(?:www\.|m\.|web\.)?facebook\.com/([^/?#]+)/videos/(?:[^/?#]+/)?([0-9]+)`),
	rule(platform.Facebook, "fbwatch", `fb\.watch/([A-Za-z0-9_-]+)`),
	rule(platform.Facebook, "reel", `(?:www\.|m\.)?facebook\.com/reel/([0-9]+)`),
	rule(platform.Facebook, "video.php", `(?:www\.|m\.)?facebook\.com/video\.php\?(?:[^#]*&)?v=([0-9]+)`),
	rule(platform.Facebook, "story", `(?:www\.|m\.)?facebook\.com/stories/([0-9]+)`),
	rule(platform.Facebook, "share", `(?:www\.|m\.)?facebook\.com/share/(?:v|r)/([A-Za-z0-9_-]+)`),
	rule(platform.Facebook, "gaming", `fb\.gg/v/([0-9]+)`),

	// Pinterest
	rule(platform.Pinterest, "pin", `(?:[a-z]{2}\.|www\.)?pinterest\.[a-z.]+/pin/([0-9]+)`),
	rule(platform.Pinterest, "short", `pin\.it/([A-Za-z0-9]+)`),
	rule(platform.Pinterest, "video", `(?:[a-z]{2}\.|www\.)?pinterest\.[a-z.]+/pin/create/video/([0-9]+)`),
}

// Catalogue returns a copy of the rule table in evaluation order.
func Catalogue() []Rule {
	out := make([]Rule, len(catalogue))
	copy(out, catalogue)
	return out
}

var examples = map[platform.Platform]string{
	platform.Instagram: "https://www.instagram.com/reel/ABC123xyz/",
	platform.TikTok:    "https://www.tiktok.com/@user/video/1234567890",
	platform.Twitter:   "https://x.com/user/status/1234567890",
	platform.YouTube:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	platform.Facebook:  "https://www.facebook.com/watch/?v=1234567890",
	platform.Pinterest: "https://www.pinterest.com/pin/1234567890/",
}

// ExampleURL returns a sample link for p, or "" for Unknown.
func ExampleURL(p platform.Platform) string {
	return examples[p]
}

// SupportedFormats lists human-readable link shapes per platform, for help output.
func SupportedFormats() map[platform.Platform][]string {
	return map[platform.Platform][]string{
		platform.Instagram: {
			"instagram.com/p/xxx",
			"instagram.com/reel/xxx",
			"instagram.com/reels/xxx",
			"instagram.com/tv/xxx",
			"instagram.com/stories/user/xxx",
			"instagr.am/p/xxx",
		},
		platform.TikTok: {
			"tiktok.com/@user/video/xxx",
			"vm.tiktok.com/xxx",
			"vt.tiktok.com/xxx",
			"tiktok.com/t/xxx",
			"m.tiktok.com/v/xxx",
		},
		platform.Twitter: {
			"x.com/user/status/xxx",
			"twitter.com/user/status/xxx",
			"mobile.twitter.com/user/status/xxx",
			"vxtwitter.com/user/status/xxx",
			"t.co/xxx",
		},
		platform.YouTube: {
			"youtube.com/watch?v=xxx",
			"youtu.be/xxx",
			"youtube.com/shorts/xxx",
			"youtube.com/embed/xxx",
			"youtube.com/live/xxx",
			"music.youtube.com/watch?v=xxx",
		},
		platform.Facebook: {
			"facebook.com/watch/?v=xxx",
			"facebook.com/user/videos/xxx",
			"fb.watch/xxx",
			"facebook.com/reel/xxx",
			"m.facebook.com/watch/?v=xxx",
		},
		platform.Pinterest: {
			"pinterest.com/pin/xxx",
			"pin.it/xxx",
			"tr.pinterest.com/pin/xxx",
		},
	}
}
