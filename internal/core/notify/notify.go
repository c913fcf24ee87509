// Package notify reports download progress to the user.
package notify

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/fatih/color"
)

// Notifier receives progress and outcome updates for downloads, keyed by
// record id.
type Notifier interface {
	ShowProgress(id, name string, percent int)
	ShowComplete(id, name string)
	ShowFailed(id, name, message string)
	Cancel(id string)
	CancelAll()
}

// Nop discards every notification.
type Nop struct{}

func (Nop) ShowProgress(string, string, int)  {}
func (Nop) ShowComplete(string, string)       {}
func (Nop) ShowFailed(string, string, string) {}
func (Nop) Cancel(string)                     {}
func (Nop) CancelAll()                        {}

// ProgressStep is the percentage granularity Console prints at.
const ProgressStep = 25

// Console prints coloured one-line updates. Progress is printed only when a
// download crosses a ProgressStep boundary.
type Console struct {
	out io.Writer

	mu   sync.Mutex
	last map[string]int
}

// NewConsole writes to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out, last: make(map[string]int)}
}

func (c *Console) ShowProgress(id, name string, percent int) {
	step := percent / ProgressStep * ProgressStep
	c.mu.Lock()
	prev, seen := c.last[id]
	if seen && step <= prev {
		c.mu.Unlock()
		return
	}
	c.last[id] = step
	c.mu.Unlock()

	fmt.Fprintf(c.out, "%s %s %d%%\n", color.CyanString("↓"), name, step)
}

func (c *Console) ShowComplete(id, name string) {
	c.forget(id)
	fmt.Fprintf(c.out, "%s %s\n", color.GreenString("✓"), name)
}

func (c *Console) ShowFailed(id, name, message string) {
	c.forget(id)
	fmt.Fprintf(c.out, "%s %s: %s\n", color.RedString("✗"), name, message)
}

func (c *Console) Cancel(id string) {
	c.forget(id)
}

func (c *Console) CancelAll() {
	c.mu.Lock()
	c.last = make(map[string]int)
	c.mu.Unlock()
}

func (c *Console) forget(id string) {
	c.mu.Lock()
	delete(c.last, id)
	c.mu.Unlock()
}

// Log writes outcomes to the standard logger. Progress is not logged.
type Log struct{}

func (Log) ShowProgress(string, string, int) {}

func (Log) ShowComplete(id, name string) {
	log.Printf("download %s completed: %s", id, name)
}

func (Log) ShowFailed(id, name, message string) {
	log.Printf("download %s failed: %s: %s", id, name, message)
}

func (Log) Cancel(id string) {
	log.Printf("download %s cancelled", id)
}

func (Log) CancelAll() {
	log.Printf("all downloads cancelled")
}
