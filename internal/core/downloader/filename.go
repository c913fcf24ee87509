package downloader

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/gosimple/slug"
)

// MaxNameRunes caps the base name of a downloaded file.
const MaxNameRunes = 50

// DefaultExt is used when the media URL carries no recognised extension.
const DefaultExt = ".mp4"

var (
	urlRegex   = regexp.MustCompile(`https?://\S+`)
	spaceRegex = regexp.MustCompile(`\s+`)

	// Characters that are invalid on at least one common filesystem.
	illegalReplacer = strings.NewReplacer(
		"\\", "_",
		"/", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)

	windowsReserved = map[string]bool{
		"CON": true, "PRN": true, "AUX": true, "NUL": true,
		"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
		"COM6": true, "COM7": true, "COM8": true, "COM9": true,
		"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
		"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
	}

	mediaExts = map[string]bool{
		".mp4": true, ".m4v": true, ".mov": true, ".webm": true, ".mkv": true,
		".mp3": true, ".m4a": true,
	}
)

// SanitizeFileName makes name safe to use as a file base name on any
// platform. The result is never empty; "video" is used when nothing usable
// remains.
func SanitizeFileName(name string) string {
	result := urlRegex.ReplaceAllString(name, "")
	result = illegalReplacer.Replace(result)

	result = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t' || r == '\r':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, result)

	result = spaceRegex.ReplaceAllString(result, " ")
	result = strings.TrimSpace(result)

	runes := []rune(result)
	if len(runes) > MaxNameRunes {
		result = string(runes[:MaxNameRunes])
	}

	// Windows rejects names ending in a dot or space.
	result = strings.TrimRight(result, ". ")

	if result == "" {
		return "video"
	}
	if windowsReserved[strings.ToUpper(result)] {
		result = "_" + result
	}
	return result
}

// SlugFileName is an ASCII-only alternative to SanitizeFileName.
func SlugFileName(name string) string {
	s := slug.Make(urlRegex.ReplaceAllString(name, ""))
	if runes := []rune(s); len(runes) > MaxNameRunes {
		s = strings.TrimRight(string(runes[:MaxNameRunes]), "-")
	}
	if s == "" {
		return "video"
	}
	return s
}

// MediaExt returns the extension (with dot) of the media at rawURL, or
// DefaultExt when it cannot be determined.
func MediaExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return DefaultExt
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if mediaExts[ext] {
		return ext
	}
	return DefaultExt
}

// OutputName builds the file name for a download: the sanitized name plus
// the extension of mediaURL.
func OutputName(name, mediaURL string, useSlug bool) string {
	base := SanitizeFileName(name)
	if useSlug {
		base = SlugFileName(name)
	}
	return base + MediaExt(mediaURL)
}
