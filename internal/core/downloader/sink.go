package downloader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Sink is where downloaded bytes end up.
type Sink interface {
	// Create opens a new destination for a file called name.
	Create(ctx context.Context, name string) (Output, error)
	// Name identifies the sink in logs and messages.
	Name() string
}

// Output receives the bytes of one download. Exactly one of Commit or Abort
// must be called; Abort discards everything written so far.
type Output interface {
	io.Writer
	Commit() (location string, err error)
	Abort() error
}

// FileSink writes downloads into a local directory.
type FileSink struct {
	Dir string
}

var _ Sink = (*FileSink)(nil)

func (s *FileSink) Name() string { return "file:" + s.Dir }

func (s *FileSink) Create(ctx context.Context, name string) (Output, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	// the exclusive create of the .part file reserves the name
	p := filepath.Join(dir, name)
	for i := 0; ; i++ {
		final := numberedPath(p, i)
		if exists(final) {
			continue
		}
		part := final + ".part"
		f, err := os.OpenFile(part, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
		return &fileOutput{f: f, part: part, final: final}, nil
	}
}

type fileOutput struct {
	f     *os.File
	part  string
	final string
}

func (o *fileOutput) Write(p []byte) (int, error) {
	return o.f.Write(p)
}

func (o *fileOutput) Commit() (string, error) {
	if err := o.f.Close(); err != nil {
		os.Remove(o.part)
		return "", fmt.Errorf("failed to close output file: %w", err)
	}
	if err := os.Rename(o.part, o.final); err != nil {
		os.Remove(o.part)
		return "", fmt.Errorf("failed to finalize output file: %w", err)
	}
	return RenameByMagicBytes(o.final), nil
}

func (o *fileOutput) Abort() error {
	o.f.Close()
	if err := os.Remove(o.part); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// uniquePath appends " (n)" before the extension until p does not exist.
func uniquePath(p string) string {
	for i := 0; ; i++ {
		candidate := numberedPath(p, i)
		if !exists(candidate) && !exists(candidate+".part") {
			return candidate
		}
	}
}

// numberedPath returns p for n == 0, else p with " (n)" before its extension.
func numberedPath(p string, n int) string {
	if n == 0 {
		return p
	}
	ext := filepath.Ext(p)
	return fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(p, ext), n, ext)
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
