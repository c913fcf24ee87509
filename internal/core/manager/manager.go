// Package manager runs downloads through a bounded FIFO queue.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guiyumin/clipget/internal/core/downloader"
	"github.com/guiyumin/clipget/internal/core/extractor"
	"github.com/guiyumin/clipget/internal/core/notify"
	"github.com/guiyumin/clipget/internal/core/store"
)

// DefaultMaxConcurrent is how many transfers run at once.
const DefaultMaxConcurrent = 2

// CancelledMessage is the error recorded for a queued download cancelled
// before it started.
const CancelledMessage = "cancelled"

var (
	// ErrNoMediaURL is returned by Enqueue for an option without a URL.
	ErrNoMediaURL = errors.New("quality option has no media url")

	// ErrNotActive is returned when cancelling a download that is neither
	// queued nor running.
	ErrNotActive = errors.New("download is not queued or running")

	// ErrStillActive is returned when removing a download that has not
	// finished.
	ErrStillActive = errors.New("download is still queued or running")
)

// Transferer streams a request into a sink.
type Transferer interface {
	Do(ctx context.Context, sink downloader.Sink, req downloader.Request, progress downloader.ProgressFunc) (*downloader.Result, error)
}

// StateKind summarises the queue.
type StateKind string

const (
	Idle        StateKind = "idle"
	Queued      StateKind = "queued"
	Downloading StateKind = "downloading"
)

// QueueState is the aggregate queue state published to subscribers.
type QueueState struct {
	Kind   StateKind `json:"kind"`
	Active int       `json:"active"`
	Queued int       `json:"queued"`
}

// ProgressEvent reports a percent increase, or with a terminal Status the
// end of a download.
type ProgressEvent struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Percent int          `json:"percent"`
	Read    int64        `json:"read"`
	Total   int64        `json:"total"`
	Status  store.Status `json:"status"`
}

type job struct {
	id        string
	name      string
	req       downloader.Request
	cancel    context.CancelFunc
	cancelled bool
	percent   int
}

// Manager owns the download queue. The zero value is not usable; use New.
type Manager struct {
	store    store.Store
	transfer Transferer
	notifier notify.Notifier
	sink     downloader.Sink
	limit    int
	slug     bool

	mu       sync.Mutex
	idle     *sync.Cond
	queue    []*job
	active   map[string]*job
	state    QueueState
	nextSub  int
	stateSub map[int]chan QueueState
	progSub  map[int]chan ProgressEvent
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxConcurrent sets how many transfers run at once.
func WithMaxConcurrent(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.limit = n
		}
	}
}

// WithSink sets where downloads are written. The default is the working
// directory.
func WithSink(s downloader.Sink) Option {
	return func(m *Manager) {
		m.sink = s
	}
}

// WithSlugNames stores files under ASCII slugs of their titles.
func WithSlugNames(on bool) Option {
	return func(m *Manager) {
		m.slug = on
	}
}

// New returns a manager writing records to st. A nil notifier discards
// notifications.
func New(st store.Store, tr Transferer, n notify.Notifier, opts ...Option) *Manager {
	if n == nil {
		n = notify.Nop{}
	}
	m := &Manager{
		store:    st,
		transfer: tr,
		notifier: n,
		sink:     &downloader.FileSink{Dir: "."},
		limit:    DefaultMaxConcurrent,
		active:   make(map[string]*job),
		state:    QueueState{Kind: Idle},
		stateSub: make(map[int]chan QueueState),
		progSub:  make(map[int]chan ProgressEvent),
	}
	m.idle = sync.NewCond(&m.mu)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sink returns where downloads are written.
func (m *Manager) Sink() downloader.Sink {
	return m.sink
}

// Enqueue records a pending download of opt and schedules it. It returns
// the record id without waiting for the transfer.
func (m *Manager) Enqueue(ctx context.Context, info *extractor.VideoInfo, opt extractor.QualityOption, fileName string) (string, error) {
	if opt.URL == "" {
		return "", ErrNoMediaURL
	}
	if fileName == "" {
		fileName = info.Title
	}
	name := downloader.OutputName(fileName, opt.URL, m.slug)

	rec := &store.Record{
		ID:           uuid.NewString(),
		OriginalURL:  info.SourceURL,
		Platform:     info.Platform,
		Title:        info.Title,
		FileName:     name,
		ThumbnailURL: info.ThumbnailURL,
		Author:       info.Author,
		Duration:     int64(info.Duration),
		Quality:      opt.Tier,
		MediaURL:     opt.URL,
		Headers:      opt.Headers,
		Status:       store.StatusPending,
		CreatedAt:    time.Now(),
	}
	if err := m.store.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to create download record: %w", err)
	}

	m.mu.Lock()
	m.queue = append(m.queue, &job{
		id:   rec.ID,
		name: name,
		req:  downloader.Request{URL: opt.URL, Headers: opt.Headers, FileName: name},
	})
	m.drainLocked()
	m.mu.Unlock()

	return rec.ID, nil
}

// drainLocked starts queued jobs while slots are free. m.mu must be held.
func (m *Manager) drainLocked() {
	for len(m.queue) > 0 && len(m.active) < m.limit {
		j := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]

		if _, err := store.MarkDownloading(context.Background(), m.store, j.id); err != nil {
			log.Printf("manager: cannot start %s: %v", j.id, err)
			m.failStartLocked(j, err)
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		j.cancel = cancel
		m.active[j.id] = j
		go m.run(ctx, j)
	}
	m.publishStateLocked()
}

// failStartLocked settles a job whose record could not enter downloading.
func (m *Manager) failStartLocked(j *job, err error) {
	if _, mErr := store.MarkFailed(context.Background(), m.store, j.id, err.Error()); mErr != nil {
		log.Printf("manager: failing %s: %v", j.id, mErr)
	}
	m.notifier.ShowFailed(j.id, j.name, err.Error())
	m.publishProgressLocked(ProgressEvent{ID: j.id, Name: j.name, Status: store.StatusFailed})
}

func (m *Manager) run(ctx context.Context, j *job) {
	defer j.cancel()

	res, err := m.transfer.Do(ctx, m.sink, j.req, func(read, total int64) {
		if pct, ok := downloader.Percent(read, total); ok {
			m.reportProgress(j, pct, read, total)
		}
	})
	m.finish(j, res, err)
}

// reportProgress forwards pct only when it rose.
func (m *Manager) reportProgress(j *job, pct int, read, total int64) {
	m.mu.Lock()
	if pct <= j.percent {
		m.mu.Unlock()
		return
	}
	j.percent = pct
	m.publishProgressLocked(ProgressEvent{ID: j.id, Name: j.name, Percent: pct, Read: read, Total: total, Status: store.StatusDownloading})
	m.mu.Unlock()

	if _, err := store.SetProgress(context.Background(), m.store, j.id, pct); err != nil {
		log.Printf("manager: progress of %s: %v", j.id, err)
	}
	m.notifier.ShowProgress(j.id, j.name, pct)
}

func (m *Manager) finish(j *job, res *downloader.Result, err error) {
	m.mu.Lock()
	cancelled := j.cancelled
	m.mu.Unlock()

	ctx := context.Background()
	ev := ProgressEvent{ID: j.id, Name: j.name, Percent: j.percent}
	switch {
	case err == nil:
		if _, err := store.MarkCompleted(ctx, m.store, j.id, res.Location, res.Size, time.Now()); err != nil {
			log.Printf("manager: completing %s: %v", j.id, err)
		}
		m.notifier.ShowComplete(j.id, j.name)
		ev.Status, ev.Percent, ev.Read, ev.Total = store.StatusCompleted, 100, res.Size, res.Size
	case cancelled || errors.Is(err, context.Canceled):
		if _, err := store.MarkPaused(ctx, m.store, j.id); err != nil {
			log.Printf("manager: pausing %s: %v", j.id, err)
		}
		m.notifier.Cancel(j.id)
		ev.Status = store.StatusPaused
	default:
		if _, mErr := store.MarkFailed(ctx, m.store, j.id, err.Error()); mErr != nil {
			log.Printf("manager: failing %s: %v", j.id, mErr)
		}
		m.notifier.ShowFailed(j.id, j.name, err.Error())
		ev.Status = store.StatusFailed
	}

	m.mu.Lock()
	delete(m.active, j.id)
	m.publishProgressLocked(ev)
	m.drainLocked()
	m.mu.Unlock()
}

// CancelDownload stops a running download, leaving it paused, or drops a
// queued one, marking it failed.
func (m *Manager) CancelDownload(ctx context.Context, id string) error {
	m.mu.Lock()
	if j, ok := m.active[id]; ok {
		j.cancelled = true
		j.cancel()
		m.mu.Unlock()
		return nil
	}
	for i, j := range m.queue {
		if j.id != id {
			continue
		}
		m.queue = append(m.queue[:i], m.queue[i+1:]...)
		m.publishStateLocked()
		m.mu.Unlock()

		m.dropQueued(ctx, id)
		return nil
	}
	m.mu.Unlock()
	return ErrNotActive
}

// CancelAll stops every running download and drops the queue.
func (m *Manager) CancelAll(ctx context.Context) {
	m.mu.Lock()
	for _, j := range m.active {
		j.cancelled = true
		j.cancel()
	}
	dropped := m.queue
	m.queue = nil
	m.publishStateLocked()
	m.mu.Unlock()

	for _, j := range dropped {
		m.dropQueued(ctx, j.id)
	}
	m.notifier.CancelAll()
}

func (m *Manager) dropQueued(ctx context.Context, id string) {
	if _, err := store.MarkFailed(ctx, m.store, id, CancelledMessage); err != nil {
		log.Printf("manager: cancelling queued %s: %v", id, err)
	}
	m.notifier.Cancel(id)
}

// State returns the current queue state.
func (m *Manager) State() QueueState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe returns a channel holding the latest queue state; a slow reader
// sees only the most recent value. The current state is delivered at once.
func (m *Manager) Subscribe() (<-chan QueueState, func()) {
	ch := make(chan QueueState, 1)
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.stateSub[id] = ch
	ch <- m.state
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.stateSub, id)
			close(ch)
			m.mu.Unlock()
		})
	}
}

// SubscribeProgress returns a channel of progress events. Events are dropped
// for a reader that falls more than its buffer behind.
func (m *Manager) SubscribeProgress() (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 256)
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.progSub[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.progSub, id)
			close(ch)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) publishStateLocked() {
	st := QueueState{Kind: Idle, Active: len(m.active), Queued: len(m.queue)}
	switch {
	case st.Active > 0:
		st.Kind = Downloading
	case st.Queued > 0:
		st.Kind = Queued
	}
	if st == m.state {
		return
	}
	m.state = st
	for _, ch := range m.stateSub {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
	if st.Kind == Idle {
		m.idle.Broadcast()
	}
}

func (m *Manager) publishProgressLocked(ev ProgressEvent) {
	for _, ch := range m.progSub {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Wait blocks until nothing is queued or running.
func (m *Manager) Wait() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.active) > 0 || len(m.queue) > 0 {
		m.idle.Wait()
	}
}

// Remove deletes a finished download's record.
func (m *Manager) Remove(ctx context.Context, id string) error {
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status.Active() {
		return ErrStillActive
	}
	return m.store.Delete(ctx, id)
}

// ClearHistory deletes completed and failed records.
func (m *Manager) ClearHistory(ctx context.Context) (int, error) {
	return store.DeleteByStatus(ctx, m.store, store.StatusCompleted, store.StatusFailed)
}

// Records lists stored downloads, newest first, optionally by status.
func (m *Manager) Records(ctx context.Context, statuses ...store.Status) ([]store.Record, error) {
	return m.store.List(ctx, store.Filter{Statuses: statuses})
}

// Get returns one stored download.
func (m *Manager) Get(ctx context.Context, id string) (*store.Record, error) {
	return m.store.Get(ctx, id)
}

// Stats tallies stored downloads by status and platform.
func (m *Manager) Stats(ctx context.Context) (*store.Stats, error) {
	return store.Count(ctx, m.store)
}
