package downloader

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"
)

// placeholderTotal is used until the server announces a length.
const placeholderTotal = 100 * 1024 * 1024 * 1024

// MultiBar renders one progress bar per download for batch mode.
type MultiBar struct {
	pc *mpb.Progress

	mu   sync.Mutex
	bars map[string]*jobBar
}

type jobBar struct {
	bar      *mpb.Bar
	start    time.Time
	lastRead int64
}

// NewMultiBar writes bars to out until ctx is done or Wait returns.
// A nil out discards the output.
func NewMultiBar(ctx context.Context, out io.Writer) *MultiBar {
	opts := []mpb.ContainerOption{mpb.WithWidth(64)}
	if out != nil {
		opts = append(opts, mpb.WithOutput(out))
	} else {
		opts = append(opts, mpb.WithOutput(io.Discard))
	}
	return &MultiBar{
		pc:   mpb.NewWithContext(ctx, opts...),
		bars: make(map[string]*jobBar),
	}
}

// Add creates the bar for id. Adding an id twice is a no-op.
func (m *MultiBar) Add(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bars[id]; ok {
		return
	}
	if r := []rune(name); len(r) > 30 {
		name = string(r[:29]) + "…"
	}
	bar := m.pc.AddBar(placeholderTotal,
		mpb.BarWidth(24),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: 31, C: decor.DidentRight}),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.Percentage(decor.WC{W: 5}), "done"),
			decor.AverageSpeed(decor.UnitKB, " %.1f", decor.WC{W: 15, C: decor.DidentRight}),
		),
	)
	m.bars[id] = &jobBar{bar: bar, start: time.Now()}
}

// Update moves the bar for id to read bytes out of total (-1 if unknown).
func (m *MultiBar) Update(id string, read, total int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bars[id]
	if !ok || read < b.lastRead {
		return
	}
	if total > 0 {
		b.bar.SetTotal(total, false)
	}
	b.bar.IncrInt64(read-b.lastRead, time.Since(b.start))
	b.lastRead = read
}

// Done completes the bar for id, whatever the outcome of the download.
func (m *MultiBar) Done(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bars[id]; ok {
		b.finish()
		delete(m.bars, id)
	}
}

func (b *jobBar) finish() {
	total := b.lastRead
	if total <= 0 {
		total = 1
	}
	b.bar.SetTotal(total, true)
}

// Wait completes any bar still running and waits for the final render.
func (m *MultiBar) Wait() {
	m.mu.Lock()
	for id, b := range m.bars {
		b.finish()
		delete(m.bars, id)
	}
	m.mu.Unlock()
	m.pc.Wait()
}
