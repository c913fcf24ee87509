package downloader

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	gowebdav "github.com/emersion/go-webdav"
	"github.com/guiyumin/clipget/internal/core/webdav"
)

// mp4Payload starts with an ftyp box so magic-byte detection keeps .mp4.
func mp4Payload(size int) []byte {
	b := make([]byte, size)
	copy(b, []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'})
	for i := 12; i < size; i++ {
		b[i] = byte(i)
	}
	return b
}

func serveBytes(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") != "https://example.com/" {
			http.Error(w, "missing referer", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTransferToFile(t *testing.T) {
	payload := mp4Payload(100 * 1024)
	srv := serveBytes(t, payload)
	dir := t.TempDir()

	var last int64
	var calls int
	res, err := New().Do(context.Background(), &FileSink{Dir: dir}, Request{
		URL:      srv.URL + "/v.mp4",
		Headers:  map[string]string{"Referer": "https://example.com/"},
		FileName: "clip.mp4",
	}, func(read, total int64) {
		calls++
		if read < last {
			t.Errorf("progress went backwards: %d after %d", read, last)
		}
		if total != int64(len(payload)) {
			t.Errorf("total = %d; want %d", total, len(payload))
		}
		last = read
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Size != int64(len(payload)) || last != res.Size {
		t.Errorf("size = %d, last progress = %d; want %d", res.Size, last, len(payload))
	}
	if calls < 2 {
		t.Errorf("progress called %d times; want one call per chunk", calls)
	}
	if res.Location != filepath.Join(dir, "clip.mp4") {
		t.Errorf("location = %s", res.Location)
	}
	got, err := os.ReadFile(res.Location)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("file content differs from payload")
	}
}

func TestTransferBadStatus(t *testing.T) {
	srv := serveBytes(t, mp4Payload(10))
	dir := t.TempDir()

	_, err := New().Do(context.Background(), &FileSink{Dir: dir}, Request{
		URL:      srv.URL,
		FileName: "clip.mp4",
	}, nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden {
		t.Fatalf("error = %v; want StatusError 403", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("left %d files behind", len(entries))
	}
}

func TestTransferCancelRemovesPartial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(1<<20))
		w.Write(mp4Payload(64 * 1024))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := New().Do(ctx, &FileSink{Dir: dir}, Request{URL: srv.URL, FileName: "clip.mp4"},
		func(read, total int64) {
			cancel()
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v; want context.Canceled", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("partial output not removed: %v", entries)
	}
}

func TestFileSinkAvoidsCollisions(t *testing.T) {
	dir := t.TempDir()
	sink := &FileSink{Dir: dir}
	var locations []string
	for i := 0; i < 3; i++ {
		out, err := sink.Create(context.Background(), "clip.mp4")
		if err != nil {
			t.Fatal(err)
		}
		out.Write(mp4Payload(32))
		loc, err := out.Commit()
		if err != nil {
			t.Fatal(err)
		}
		locations = append(locations, filepath.Base(loc))
	}
	want := []string{"clip.mp4", "clip (1).mp4", "clip (2).mp4"}
	for i := range want {
		if locations[i] != want[i] {
			t.Errorf("location[%d] = %s; want %s", i, locations[i], want[i])
		}
	}
}

func TestFileSinkConcurrentSameName(t *testing.T) {
	dir := t.TempDir()
	sink := &FileSink{Dir: dir}

	const n = 8
	outs := make([]Output, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := sink.Create(context.Background(), "clip.mp4")
			if err != nil {
				t.Error(err)
				return
			}
			outs[i] = out
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, out := range outs {
		if out == nil {
			t.FailNow()
		}
		out.Write(mp4Payload(32))
		loc, err := out.Commit()
		if err != nil {
			t.Fatal(err)
		}
		if seen[loc] {
			t.Errorf("two downloads committed to %s", loc)
		}
		seen[loc] = true
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != n {
		t.Errorf("%d files in output dir, want %d", len(entries), n)
	}
}

func TestFileSinkFixesExtension(t *testing.T) {
	dir := t.TempDir()
	out, err := (&FileSink{Dir: dir}).Create(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatal(err)
	}
	out.Write([]byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F, 0x42, 0x82, 0x84, 'w', 'e', 'b', 'm'})
	loc, err := out.Commit()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(loc) != ".webm" {
		t.Errorf("location = %s; want .webm extension", loc)
	}
}

func TestWebDAVSink(t *testing.T) {
	root := t.TempDir()
	srv := httptest.NewServer(&gowebdav.Handler{FileSystem: gowebdav.LocalFileSystem(root)})
	defer srv.Close()

	client, err := webdav.NewClient(srv.URL+"/videos", "", "")
	if err != nil {
		t.Fatal(err)
	}
	sink := &WebDAVSink{Client: client}
	out, err := sink.Create(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatal(err)
	}
	payload := mp4Payload(4096)
	out.Write(payload)
	loc, err := out.Commit()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(loc, "/videos/clip.mp4") {
		t.Errorf("location = %s", loc)
	}
	got, err := os.ReadFile(filepath.Join(root, "videos", "clip.mp4"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("uploaded content differs")
	}

	// Aborted uploads leave nothing behind.
	out, err = sink.Create(context.Background(), "other.mp4")
	if err != nil {
		t.Fatal(err)
	}
	out.Write(payload[:100])
	if err := out.Abort(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "videos", "other.mp4")); !os.IsNotExist(err) {
		t.Errorf("aborted upload still present: %v", err)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		read, total int64
		want        int
		ok          bool
	}{
		{0, 100, 0, true},
		{50, 100, 50, true},
		{999, 1000, 99, true},
		{1000, 1000, 100, true},
		{2000, 1000, 100, true},
		{10, 0, 0, false},
		{10, -1, 0, false},
	}
	for _, tt := range tests {
		got, ok := Percent(tt.read, tt.total)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Percent(%d, %d) = %d, %v; want %d, %v", tt.read, tt.total, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "My Video", "My Video"},
		{"illegal chars", `a/b\c:d*e?f"g<h>i|j`, "a_b_c_d_e_f_g_h_i_j"},
		{"whitespace", "  line one\nline\ttwo  ", "line one line two"},
		{"control chars", "a\x00b\x07c", "abc"},
		{"url removed", "watch this https://t.co/abc now", "watch this now"},
		{"trailing dots", "ends with dots...", "ends with dots"},
		{"empty", "", "video"},
		{"only illegal whitespace", " \n\t ", "video"},
		{"reserved", "con", "_con"},
		{"long", strings.Repeat("é", 80), strings.Repeat("é", MaxNameRunes)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFileName(tt.input); got != tt.want {
				t.Errorf("SanitizeFileName(%q) = %q; want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		name, mediaURL string
		slug           bool
		want           string
	}{
		{"Holiday", "https://cdn.example.com/a/b.mp4?sig=1", false, "Holiday.mp4"},
		{"Holiday", "https://cdn.example.com/a/b.webm", false, "Holiday.webm"},
		{"Holiday", "https://cdn.example.com/a/stream", false, "Holiday.mp4"},
		{"Çok Güzel Video!", "https://cdn.example.com/v.mov", true, "cok-guzel-video.mov"},
		{"", "::bad url", true, "video.mp4"},
	}
	for _, tt := range tests {
		if got := OutputName(tt.name, tt.mediaURL, tt.slug); got != tt.want {
			t.Errorf("OutputName(%q, %q, %v) = %q; want %q", tt.name, tt.mediaURL, tt.slug, got, tt.want)
		}
	}
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   string
	}{
		{"mp4", []byte("\x00\x00\x00\x18ftypisom"), "mp4"},
		{"mov", []byte("\x00\x00\x00\x14ftypqt  "), "mov"},
		{"webm", []byte("\x1a\x45\xdf\xa3\x9f\x42\x82\x84webm"), "webm"},
		{"mkv", []byte("\x1a\x45\xdf\xa3\x9f\x42\x82\x88matroska"), "mkv"},
		{"mp3 id3", []byte("ID3\x04\x00"), "mp3"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "jpg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "png"},
		{"html", []byte("<!DOCTYPE html>"), ""},
		{"short", []byte{0x00}, ""},
	}
	for _, tt := range tests {
		if got := DetectType(tt.header); got != tt.want {
			t.Errorf("%s: DetectType = %q; want %q", tt.name, got, tt.want)
		}
	}
}

func TestMultiBar(t *testing.T) {
	mb := NewMultiBar(context.Background(), nil)
	mb.Add("a", "first clip")
	mb.Add("b", strings.Repeat("long name ", 10))
	mb.Update("a", 10, 100)
	mb.Update("a", 5, 100) // ignored
	mb.Update("a", 100, 100)
	mb.Done("a")
	mb.Update("b", 10, -1)
	mb.Wait()
}
