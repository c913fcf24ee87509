package platform

import "strings"

// Platform identifies the social network a link belongs to.
type Platform string

const (
	Instagram Platform = "instagram"
	TikTok    Platform = "tiktok"
	Twitter   Platform = "twitter"
	YouTube   Platform = "youtube"
	Facebook  Platform = "facebook"
	Pinterest Platform = "pinterest"
	Unknown   Platform = "unknown"
)

// Info holds the user-facing attributes of a platform.
type Info struct {
	DisplayName string
	ShortName   string
	Description string
}

var infos = map[Platform]Info{
	Instagram: {"Instagram", "IG", "Reels, posts, IGTV and stories"},
	TikTok:    {"TikTok", "TT", "Videos and short links"},
	Twitter:   {"X (Twitter)", "X", "Tweets with video"},
	YouTube:   {"YouTube", "YT", "Videos, shorts and live replays"},
	Facebook:  {"Facebook", "FB", "Videos, reels and watch links"},
	Pinterest: {"Pinterest", "Pin", "Video pins"},
	Unknown:   {"Unknown", "?", "Unsupported link"},
}

var supported = []Platform{Instagram, TikTok, Twitter, YouTube, Facebook, Pinterest}

// Supported returns every platform except Unknown, in catalogue order.
func Supported() []Platform {
	out := make([]Platform, len(supported))
	copy(out, supported)
	return out
}

// Info returns the display attributes for p. Unrecognised values get Unknown's.
func (p Platform) Info() Info {
	if info, ok := infos[p]; ok {
		return info
	}
	return infos[Unknown]
}

func (p Platform) DisplayName() string { return p.Info().DisplayName }

func (p Platform) ShortName() string { return p.Info().ShortName }

func (p Platform) String() string { return string(p) }

// Parse maps a platform key (case-insensitive) to a Platform.
// "x" is accepted as an alias for Twitter.
func Parse(s string) Platform {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "x" {
		return Twitter
	}
	for _, p := range supported {
		if string(p) == key {
			return p
		}
	}
	return Unknown
}

// DisplayNames lists the display names of all supported platforms.
func DisplayNames() []string {
	names := make([]string, 0, len(supported))
	for _, p := range supported {
		names = append(names, p.DisplayName())
	}
	return names
}
