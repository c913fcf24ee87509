package store

import (
	"fmt"
	"time"

	"github.com/guiyumin/clipget/internal/core/platform"
)

// Status is the lifecycle state of a download record.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusPending, StatusDownloading, StatusPaused, StatusCompleted, StatusFailed}
}

// ParseStatus returns the status named s and whether it is known.
func ParseStatus(s string) (Status, bool) {
	for _, st := range Statuses() {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusPaused
}

// Active reports whether s is pending or downloading.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusDownloading
}

var transitions = map[Status][]Status{
	StatusPending:     {StatusDownloading, StatusFailed},
	StatusDownloading: {StatusCompleted, StatusFailed, StatusPaused},
}

// CanTransition reports whether a record may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError is returned when a status change violates the lifecycle.
type TransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("record %s: cannot move from %s to %s", e.ID, e.From, e.To)
}

// Record is the persisted state of one download attempt.
type Record struct {
	ID           string               `json:"id"`
	OriginalURL  string               `json:"original_url"`
	Platform     platform.Platform    `json:"platform"`
	Title        string               `json:"title"`
	FileName     string               `json:"file_name"`
	ThumbnailURL string               `json:"thumbnail_url,omitempty"`
	Author       string               `json:"author,omitempty"`
	Duration     int64                `json:"duration,omitempty"` // seconds
	Quality      platform.QualityTier `json:"quality"`
	MediaURL     string               `json:"media_url"`
	Headers      map[string]string    `json:"headers,omitempty"`
	FilePath     string               `json:"file_path,omitempty"`
	FileSize     int64                `json:"file_size,omitempty"`
	Status       Status               `json:"status"`
	Progress     int                  `json:"progress"`
	Error        string               `json:"error,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	if r.Headers != nil {
		h := make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			h[k] = v
		}
		r.Headers = h
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		r.CompletedAt = &t
	}
	return r
}

// FormattedSize renders FileSize for display, or "" when unknown.
func (r Record) FormattedSize() string {
	if r.FileSize <= 0 {
		return ""
	}
	return FormatBytes(r.FileSize)
}

// FormattedDuration renders Duration as m:ss, or "" when unknown.
func (r Record) FormattedDuration() string {
	if r.Duration <= 0 {
		return ""
	}
	return fmt.Sprintf("%d:%02d", r.Duration/60, r.Duration%60)
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.2f GB", float64(n)/gb)
	case n >= mb:
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	case n >= kb:
		return fmt.Sprintf("%.1f KB", float64(n)/kb)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
