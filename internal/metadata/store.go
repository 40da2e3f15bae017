package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Record is the cached checksum of one file
type Record struct {
	Path         string `json:"path"`
	Checksum     string `json:"checksum"`
	LastModified uint64 `json:"last_modified"`
}

// Store persists records as a single JSON document. Every save rewrites the
// whole collection; nothing is ever evicted.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a store backed by the file at path
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger,
	}
}

// Path returns the backing file location
func (s *Store) Path() string {
	return s.path
}

// Load reads all records. A missing, empty or unparsable file yields an
// empty collection.
func (s *Store) Load() ([]Record, error) {
	h, records, err := s.open()
	if err != nil {
		return nil, err
	}
	if err := h.close(); err != nil {
		return nil, err
	}
	return records, nil
}

// Save replaces the store content with records
func (s *Store) Save(records []Record) error {
	h, _, err := s.open()
	if err != nil {
		return err
	}
	if err := h.write(records); err != nil {
		_ = h.close()
		return err
	}
	return h.close()
}

// Clear deletes the backing file. Clearing an absent store is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete metadata store: %w", err)
	}
	s.logger.Info("metadata store cleared", "path", s.path)
	return nil
}

// handle is an open store file held for one read-modify-write cycle
type handle struct {
	file *os.File
}

// open creates the file if needed and decodes its current content
func (s *Store) open() (*handle, []Record, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create metadata store directory: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("failed to read metadata store: %w", err)
	}

	return &handle{file: f}, s.decode(data), nil
}

func (s *Store) decode(data []byte) []Record {
	records := make([]Record, 0)
	if len(data) == 0 {
		return records
	}
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn("metadata store is corrupt, starting with an empty cache",
			"path", s.path,
			"error", err)
		return make([]Record, 0)
	}
	if records == nil {
		// literal "null"
		return make([]Record, 0)
	}
	return records
}

// write truncates the file and writes records from the start
func (h *handle) write(records []Record) error {
	if records == nil {
		records = make([]Record, 0)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode metadata store: %w", err)
	}
	data := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	if err := h.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate metadata store: %w", err)
	}
	if _, err := h.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind metadata store: %w", err)
	}
	if _, err := h.file.Write(data); err != nil {
		return fmt.Errorf("failed to write metadata store: %w", err)
	}
	return nil
}

func (h *handle) close() error {
	if err := h.file.Close(); err != nil {
		return fmt.Errorf("failed to close metadata store: %w", err)
	}
	return nil
}
