package extractor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/guiyumin/clipget/internal/core/link"
	"github.com/guiyumin/clipget/internal/core/platform"
)

// Field caps applied to every descriptor the resolver returns.
const (
	MaxTitleRunes       = 100
	MaxDescriptionRunes = 200
	MaxAuthorRunes      = 100
)

// Strategy is one way of finding the media behind a classified link.
type Strategy interface {
	// Name is the identifier used in resolver plans and config.
	Name() string

	// Resolve returns ErrNotApplicable when the strategy has nothing to try
	// for this link. A descriptor without qualities still carries metadata.
	Resolve(ctx context.Context, res link.Result) (*VideoInfo, error)
}

// VideoInfo is a resolved post: its metadata and the downloadable qualities.
type VideoInfo struct {
	ID              string            `json:"id"`
	SourceURL       string            `json:"source_url"`
	Platform        platform.Platform `json:"platform"`
	Title           string            `json:"title"`
	Description     string            `json:"description,omitempty"`
	ThumbnailURL    string            `json:"thumbnail_url,omitempty"`
	Duration        int               `json:"duration,omitempty"` // seconds
	Author          string            `json:"author,omitempty"`
	AuthorAvatarURL string            `json:"author_avatar_url,omitempty"`
	Qualities       []QualityOption   `json:"qualities"`
}

// QualityOption is one downloadable rendition.
type QualityOption struct {
	Tier          platform.QualityTier `json:"tier"`
	EstimatedSize int64                `json:"estimated_size,omitempty"`
	URL           string               `json:"url"`
	Headers       map[string]string    `json:"headers,omitempty"`
}

// FormattedSize renders the estimated size, or "" when unknown.
func (q QualityOption) FormattedSize() string {
	if q.EstimatedSize <= 0 {
		return ""
	}
	mb := float64(q.EstimatedSize) / (1024 * 1024)
	if mb >= 1024 {
		return fmt.Sprintf("%.1f GB", mb/1024)
	}
	return fmt.Sprintf("%.1f MB", mb)
}

// Playable reports whether at least one quality has a media URL.
func (v *VideoInfo) Playable() bool {
	if v == nil {
		return false
	}
	for _, q := range v.Qualities {
		if q.URL != "" {
			return true
		}
	}
	return false
}

// Best returns the highest quality, or nil.
func (v *VideoInfo) Best() *QualityOption {
	if len(v.Qualities) == 0 {
		return nil
	}
	return &v.Qualities[0]
}

// Default returns the 720p option when present, else the option whose
// priority is closest to it.
func (v *VideoInfo) Default() *QualityOption {
	return v.closest(platform.DefaultQuality)
}

// Select returns the option for tier, falling back to Best.
func (v *VideoInfo) Select(tier platform.QualityTier) *QualityOption {
	for i := range v.Qualities {
		if v.Qualities[i].Tier == tier {
			return &v.Qualities[i]
		}
	}
	return v.Best()
}

// Choose picks the option for a user preference: "best", a tier such as
// "1080p", or "" for the default tier.
func (v *VideoInfo) Choose(pref string) *QualityOption {
	switch strings.ToLower(strings.TrimSpace(pref)) {
	case "":
		return v.Default()
	case "best":
		return v.Best()
	}
	return v.Select(platform.ParseQuality(pref))
}

func (v *VideoInfo) closest(tier platform.QualityTier) *QualityOption {
	var best *QualityOption
	bestDist := 0
	for i := range v.Qualities {
		d := v.Qualities[i].Tier.Priority() - tier.Priority()
		if d < 0 {
			d = -d
		}
		if best == nil || d < bestDist {
			best, bestDist = &v.Qualities[i], d
		}
	}
	return best
}

// FormattedDuration renders m:ss (or h:mm:ss), "" when unknown.
func (v *VideoInfo) FormattedDuration() string {
	if v.Duration <= 0 {
		return ""
	}
	h, m, s := v.Duration/3600, (v.Duration%3600)/60, v.Duration%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// DescriptorID returns the classifier's id when there is one, else a stable
// name-based UUID of the canonical URL.
func DescriptorID(res link.Result) string {
	if res.VideoID != "" {
		return res.VideoID
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(res.CanonicalURL)).String()
}

// normalizeQualities drops options without a URL, keeps the first option
// per tier and orders them best first.
func normalizeQualities(opts []QualityOption) []QualityOption {
	seen := make(map[platform.QualityTier]bool)
	out := make([]QualityOption, 0, len(opts))
	for _, o := range opts {
		if o.URL == "" || seen[o.Tier] {
			continue
		}
		if !o.Tier.Valid() {
			o.Tier = platform.DefaultQuality
			if seen[o.Tier] {
				continue
			}
		}
		seen[o.Tier] = true
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Tier.Priority() < out[j].Tier.Priority()
	})
	return out
}

// capText collapses newlines and limits s to max runes.
func capText(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max]))
}
