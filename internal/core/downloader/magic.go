package downloader

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DetectFileType sniffs the first bytes of the file at path.
// Returns the extension (without dot), or "" when the type is unknown.
func DetectFileType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	header := make([]byte, 64)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}
	return DetectType(header[:n]), nil
}

// DetectType returns the extension (without dot) matching the magic bytes
// at the start of header.
func DetectType(header []byte) string {
	n := len(header)
	if n < 4 {
		return ""
	}

	// ISO base media: ....ftyp<brand>
	if n >= 12 && string(header[4:8]) == "ftyp" {
		switch string(header[8:12]) {
		case "qt  ":
			return "mov"
		case "M4V ", "M4VH", "M4VP":
			return "m4v"
		case "M4A ", "M4B ":
			return "m4a"
		}
		return "mp4"
	}

	// EBML: Matroska or WebM, told apart by the DocType.
	if bytes.Equal(header[0:4], []byte{0x1A, 0x45, 0xDF, 0xA3}) {
		if bytes.Contains(header, []byte("matroska")) {
			return "mkv"
		}
		return "webm"
	}

	if n >= 3 && string(header[0:3]) == "ID3" {
		return "mp3"
	}
	if header[0] == 0xFF && (header[1]&0xE0) == 0xE0 && (header[1]&0x06) != 0 {
		return "mp3"
	}

	if n >= 12 && string(header[0:4]) == "RIFF" && string(header[8:12]) == "WEBP" {
		return "webp"
	}
	if n >= 8 && bytes.Equal(header[0:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}) {
		return "png"
	}
	if n >= 6 && (string(header[0:6]) == "GIF87a" || string(header[0:6]) == "GIF89a") {
		return "gif"
	}
	if bytes.Equal(header[0:3], []byte{0xFF, 0xD8, 0xFF}) {
		return "jpg"
	}

	return ""
}

// RenameByMagicBytes renames the file when its content does not match its
// extension. Returns the final path (renamed or original).
func RenameByMagicBytes(path string) string {
	detectedExt, err := DetectFileType(path)
	if err != nil || detectedExt == "" {
		return path
	}

	ext := filepath.Ext(path)
	currentExt := strings.TrimPrefix(ext, ".")
	if currentExt == "" || strings.EqualFold(currentExt, detectedExt) {
		return path
	}

	newPath := uniquePath(path[:len(path)-len(ext)] + "." + detectedExt)
	if err := os.Rename(path, newPath); err != nil {
		return path
	}
	return newPath
}
