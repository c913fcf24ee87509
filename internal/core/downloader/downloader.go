package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultUserAgent is the default User-Agent header used for downloads
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ChunkSize is the read size of the copy loop. Cancellation and progress are
// checked once per chunk.
const ChunkSize = 32 * 1024

// Request describes one media file to fetch.
type Request struct {
	URL      string
	Headers  map[string]string
	FileName string
}

// Result is a finished transfer.
type Result struct {
	// Location is the local path or remote URL the bytes were written to.
	Location string
	Size     int64
}

// ProgressFunc receives the bytes read so far and the expected total, which
// is -1 when the server does not announce a length.
type ProgressFunc func(read, total int64)

// StatusError is returned when the media server answers with a non-200 code.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status: %d %s", e.Code, http.StatusText(e.Code))
}

// Transfer streams media URLs into a Sink.
type Transfer struct {
	Client    *http.Client
	UserAgent string
}

// New returns a Transfer with sane defaults.
func New() *Transfer {
	return &Transfer{
		Client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 60 * time.Second,
			},
		},
		UserAgent: DefaultUserAgent,
	}
}

// Do downloads req.URL into sink. On any error, including cancellation of
// ctx, the partial output is discarded.
func (t *Transfer) Do(ctx context.Context, sink Sink, req Request, progress ProgressFunc) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	ua := t.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	httpReq.Header.Set("User-Agent", ua)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	out, err := sink.Create(ctx, req.FileName)
	if err != nil {
		return nil, err
	}

	total := resp.ContentLength
	if total <= 0 {
		total = -1
	}
	written, err := copyChunks(ctx, out, resp.Body, total, progress)
	if err != nil {
		if abortErr := out.Abort(); abortErr != nil {
			err = errors.Join(err, fmt.Errorf("discarding partial file: %w", abortErr))
		}
		return nil, err
	}
	if total > 0 && written != total {
		out.Abort()
		return nil, fmt.Errorf("incomplete download: got %d of %d bytes", written, total)
	}

	location, err := out.Commit()
	if err != nil {
		return nil, err
	}
	return &Result{Location: location, Size: written}, nil
}

func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress ProgressFunc) (int64, error) {
	buf := make([]byte, ChunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("failed to write: %w", err)
			}
			written += int64(n)
			if progress != nil {
				progress(written, total)
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			return written, fmt.Errorf("failed to read: %w", readErr)
		}
	}
}

// Percent converts a byte count into a whole percentage. ok is false when
// the total is unknown.
func Percent(read, total int64) (pct int, ok bool) {
	if total <= 0 {
		return 0, false
	}
	pct = int(read * 100 / total)
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return pct, true
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		return "??:??"
	}
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	if m > 60 {
		h := m / 60
		m = m % 60
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
