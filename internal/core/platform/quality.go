package platform

import (
	"strconv"
	"strings"
)

// QualityTier is one of the fixed download quality levels.
type QualityTier string

const (
	Quality4K        QualityTier = "4k"
	Quality1440p     QualityTier = "1440p"
	Quality1080p     QualityTier = "1080p"
	Quality720p      QualityTier = "720p"
	Quality480p      QualityTier = "480p"
	Quality360p      QualityTier = "360p"
	QualityAudioOnly QualityTier = "audio"
)

// DefaultQuality is used whenever a requested quality cannot be interpreted.
const DefaultQuality = Quality720p

type tierInfo struct {
	Label      string
	Resolution string
	Priority   int // lower is better
	Height     int
}

var tiers = map[QualityTier]tierInfo{
	Quality4K:        {"4K", "2160p", 1, 2160},
	Quality1440p:     {"1440p", "1440p", 2, 1440},
	Quality1080p:     {"1080p", "1080p", 3, 1080},
	Quality720p:      {"720p", "720p", 4, 720},
	Quality480p:      {"480p", "480p", 5, 480},
	Quality360p:      {"360p", "360p", 6, 360},
	QualityAudioOnly: {"Audio", "MP3", 10, 0},
}

// Tiers lists all tiers from best to worst.
func Tiers() []QualityTier {
	return []QualityTier{Quality4K, Quality1440p, Quality1080p, Quality720p, Quality480p, Quality360p, QualityAudioOnly}
}

func (q QualityTier) info() tierInfo {
	if ti, ok := tiers[q]; ok {
		return ti
	}
	return tiers[DefaultQuality]
}

func (q QualityTier) Label() string      { return q.info().Label }
func (q QualityTier) Resolution() string { return q.info().Resolution }
func (q QualityTier) Priority() int      { return q.info().Priority }
func (q QualityTier) String() string     { return q.info().Label }

// Valid reports whether q is one of the known tiers.
func (q QualityTier) Valid() bool {
	_, ok := tiers[q]
	return ok
}

// ParseQuality accepts a tier key, label or resolution ("1080p", "1080",
// "4k", "2160p", "audio", "mp3"). Anything else yields DefaultQuality.
func ParseQuality(s string) QualityTier {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return DefaultQuality
	}
	if key == "mp3" || key == "audio_only" {
		return QualityAudioOnly
	}
	for q, ti := range tiers {
		if key == string(q) || key == strings.ToLower(ti.Label) || key == strings.ToLower(ti.Resolution) {
			return q
		}
	}
	if h, err := strconv.Atoi(strings.TrimSuffix(key, "p")); err == nil {
		return TierForHeight(h)
	}
	return DefaultQuality
}

// TierForHeight returns the highest tier whose height does not exceed h.
// Heights below 360 still map to 360p; zero or negative is unknown.
func TierForHeight(h int) QualityTier {
	switch {
	case h <= 0:
		return DefaultQuality
	case h >= 2160:
		return Quality4K
	case h >= 1440:
		return Quality1440p
	case h >= 1080:
		return Quality1080p
	case h >= 720:
		return Quality720p
	case h >= 480:
		return Quality480p
	default:
		return Quality360p
	}
}

// TierForBitrate estimates a tier from a video bitrate in bits per second.
func TierForBitrate(bps int) QualityTier {
	switch {
	case bps >= 2000000:
		return Quality1080p
	case bps >= 1000000:
		return Quality720p
	case bps >= 500000:
		return Quality480p
	default:
		return Quality360p
	}
}
