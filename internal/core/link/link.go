// Package link recognises social media post URLs and normalises them.
package link

import (
	"regexp"
	"strings"

	"github.com/guiyumin/clipget/internal/core/platform"
)

// Result describes what Classify found in a link.
type Result struct {
	Platform     platform.Platform
	VideoID      string // empty when the shape carries no id
	CanonicalURL string
	Valid        bool
	Rule         string // name of the matching catalogue rule
}

// urlPattern is the platform-independent URL grammar used to pull links out of shared text.
var urlPattern = regexp.MustCompile(`https?://[\w\-._~:/?#\[\]@!$&'()*+,;=%]+`)

// Classify matches text against the catalogue. It never fails; unrecognised
// input yields an invalid Result carrying the trimmed input.
func Classify(text string) Result {
	trimmed := strings.TrimSpace(text)
	for _, r := range catalogue {
		m := r.Pattern.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		var id string
		if len(m) > 2 && m[2] != "" {
			id = m[2]
		} else if len(m) > 1 {
			id = m[1]
		}
		return Result{
			Platform:     r.Platform,
			VideoID:      id,
			CanonicalURL: Canonicalize(trimmed),
			Valid:        true,
			Rule:         r.Name,
		}
	}
	return Result{
		Platform:     platform.Unknown,
		CanonicalURL: trimmed,
	}
}

// Canonicalize forces a secure scheme onto u. It is idempotent.
func Canonicalize(u string) string {
	u = strings.TrimSpace(u)
	lower := strings.ToLower(u)
	switch {
	case strings.HasPrefix(lower, "https://"):
		return "https://" + u[len("https://"):]
	case strings.HasPrefix(lower, "http://"):
		return "https://" + u[len("http://"):]
	default:
		return "https://" + u
	}
}

// IsSupported reports whether u belongs to a supported platform.
func IsSupported(u string) bool {
	return Classify(u).Valid
}

// DetectPlatform returns the platform of u, or Unknown.
func DetectPlatform(u string) platform.Platform {
	return Classify(u).Platform
}

// ExtractURL returns the first http(s) URL found in text.
func ExtractURL(text string) (string, bool) {
	u := urlPattern.FindString(text)
	return u, u != ""
}

// ExtractSupportedURL returns the first URL in text that belongs to a
// supported platform. When none does, the first URL of any kind is returned.
func ExtractSupportedURL(text string) (string, bool) {
	urls := urlPattern.FindAllString(text, -1)
	if len(urls) == 0 {
		return "", false
	}
	for _, u := range urls {
		if IsSupported(u) {
			return u, true
		}
	}
	return urls[0], true
}
