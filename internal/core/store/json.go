package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// JSONStore is a MemoryStore mirrored to a JSON file. The file is rewritten
// after every mutation via a temporary file and rename, so readers never
// observe a partially written document.
type JSONStore struct {
	*MemoryStore
	filename string
}

var _ Store = (*JSONStore)(nil)

// OpenJSONStore loads filename if it exists and returns a store that keeps it
// up to date. Records left downloading by a previous process are marked
// failed, since transfers do not survive a restart.
func OpenJSONStore(filename string) (*JSONStore, error) {
	s := &JSONStore{
		MemoryStore: NewMemoryStore(),
		filename:    filename,
	}

	records, err := readRecords(filename)
	if err != nil {
		return nil, err
	}
	for i := range records {
		r := records[i]
		if r.Status.Active() {
			r.Status = StatusFailed
			r.Error = "interrupted"
		}
		s.records[r.ID] = &r
	}
	s.onChange = s.write
	return s, nil
}

func readRecords(filename string) ([]Record, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}
	return records, nil
}

// write persists the current records. Called with the memory store lock held.
func (s *JSONStore) write() error {
	records := s.snapshot()
	sortRecords(records, OrderCreated)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing records: %w", err)
	}

	dir := filepath.Dir(s.filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.filename)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.filename); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", s.filename, err)
	}
	return nil
}

// Path returns the backing file name.
func (s *JSONStore) Path() string {
	return s.filename
}
