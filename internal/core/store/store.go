// Package store persists download records.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("record not found")

// ExistsError is returned by Create when the id is already taken.
type ExistsError struct {
	ID string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("record already exists: %s", e.ID)
}

// Order selects the timestamp List sorts by, newest first.
type Order int

const (
	OrderCreated Order = iota
	OrderCompleted
)

// Filter narrows List results. An empty Statuses slice matches every record.
type Filter struct {
	Statuses []Status
	OrderBy  Order
}

func (f Filter) matches(r *Record) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if r.Status == s {
			return true
		}
	}
	return false
}

// Store is keyed storage for download records. Update applies fn to the
// current record atomically; if fn returns an error nothing is written.
type Store interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, id string, fn func(r *Record) error) (*Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter) ([]Record, error)
}

// sortRecords orders records newest first by the filter's timestamp.
// Records without a completion time sort last under OrderCompleted.
func sortRecords(records []Record, order Order) {
	sort.SliceStable(records, func(i, j int) bool {
		if order == OrderCompleted {
			a, b := records[i].CompletedAt, records[j].CompletedAt
			switch {
			case a == nil && b == nil:
				return records[i].CreatedAt.After(records[j].CreatedAt)
			case a == nil:
				return false
			case b == nil:
				return true
			}
			return a.After(*b)
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}

func transition(r *Record, to Status) error {
	if !CanTransition(r.Status, to) {
		return &TransitionError{ID: r.ID, From: r.Status, To: to}
	}
	r.Status = to
	return nil
}

// MarkDownloading moves a pending record to downloading with zero progress.
func MarkDownloading(ctx context.Context, s Store, id string) (*Record, error) {
	return s.Update(ctx, id, func(r *Record) error {
		if err := transition(r, StatusDownloading); err != nil {
			return err
		}
		r.Progress = 0
		return nil
	})
}

// SetProgress raises the progress of a downloading record. Values are clamped
// to [0,100] and a lower value than the stored one is ignored.
func SetProgress(ctx context.Context, s Store, id string, percent int) (*Record, error) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return s.Update(ctx, id, func(r *Record) error {
		if r.Status != StatusDownloading {
			return &TransitionError{ID: r.ID, From: r.Status, To: StatusDownloading}
		}
		if percent > r.Progress {
			r.Progress = percent
		}
		return nil
	})
}

// MarkCompleted finalises a record with its output location and size.
func MarkCompleted(ctx context.Context, s Store, id, filePath string, size int64, at time.Time) (*Record, error) {
	if filePath == "" {
		return nil, fmt.Errorf("record %s: completion requires a file path", id)
	}
	if size < 0 {
		return nil, fmt.Errorf("record %s: negative file size %d", id, size)
	}
	return s.Update(ctx, id, func(r *Record) error {
		if err := transition(r, StatusCompleted); err != nil {
			return err
		}
		r.FilePath = filePath
		r.FileSize = size
		r.Progress = 100
		r.Error = ""
		t := at
		r.CompletedAt = &t
		return nil
	})
}

// MarkFailed records a failure. An empty message is replaced with a generic one.
func MarkFailed(ctx context.Context, s Store, id, message string) (*Record, error) {
	if message == "" {
		message = "download failed"
	}
	return s.Update(ctx, id, func(r *Record) error {
		if err := transition(r, StatusFailed); err != nil {
			return err
		}
		r.Error = message
		return nil
	})
}

// MarkPaused records a user cancellation of an in-flight download.
func MarkPaused(ctx context.Context, s Store, id string) (*Record, error) {
	return s.Update(ctx, id, func(r *Record) error {
		return transition(r, StatusPaused)
	})
}

// Rename changes the user-visible file name of a record.
func Rename(ctx context.Context, s Store, id, name string) (*Record, error) {
	if name == "" {
		return nil, errors.New("file name must not be empty")
	}
	return s.Update(ctx, id, func(r *Record) error {
		r.FileName = name
		return nil
	})
}

// DeleteByStatus removes every record in one of the given statuses and
// returns how many were removed.
func DeleteByStatus(ctx context.Context, s Store, statuses ...Status) (int, error) {
	records, err := s.List(ctx, Filter{Statuses: statuses})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range records {
		if err := s.Delete(ctx, r.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return n, err
		}
		n++
	}
	return n, nil
}

// Stats summarises stored records.
type Stats struct {
	Total      int            `json:"total"`
	ByStatus   map[Status]int `json:"by_status"`
	ByPlatform map[string]int `json:"by_platform"`
}

// Count tallies records by status and platform.
func Count(ctx context.Context, s Store) (*Stats, error) {
	records, err := s.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	st := &Stats{
		ByStatus:   make(map[Status]int),
		ByPlatform: make(map[string]int),
	}
	for _, r := range records {
		st.Total++
		st.ByStatus[r.Status]++
		st.ByPlatform[string(r.Platform)]++
	}
	return st, nil
}
