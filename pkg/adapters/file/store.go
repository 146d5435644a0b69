// Package file persists tensor records as JSON documents in a directory.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sbm367/syft/pkg/domain"
	"github.com/sbm367/syft/pkg/tensor"
)

const ext = ".json"

// Store implements ports.TensorStore using the local filesystem.
// Each record is one file; its sequence number preserves insertion order.
type Store struct {
	BasePath string

	mu  sync.Mutex
	seq int64
}

type document struct {
	Seq    int64          `json:"seq"`
	ID     string         `json:"id"`
	Tensor *tensor.Tensor `json:"tensor"`
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".syft/tensors".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".syft", "tensors")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.BasePath, url.PathEscape(id)+ext)
}

// Save persists the record atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) Save(ctx context.Context, rec domain.Record) error {
	if rec.ID == "" {
		return domain.ErrInvalidTensorID
	}
	if rec.Tensor == nil {
		return fmt.Errorf("tensor %s: no data", rec.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure tensor directory: %w", err)
	}

	destPath := s.path(rec.ID)
	doc := document{ID: rec.ID, Tensor: rec.Tensor}
	if existing, err := readDocument(destPath); err == nil {
		doc.Seq = existing.Seq
	} else {
		next, err := s.nextSeqLocked()
		if err != nil {
			return err
		}
		doc.Seq = next
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tensor %s: %w", rec.ID, err)
	}

	// Same directory so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-*"+ext+".part")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Cannot rename an open file on Windows.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// On Windows, os.Rename fails if dest exists.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing tensor file for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// nextSeqLocked returns a sequence number above every record on disk.
func (s *Store) nextSeqLocked() (int64, error) {
	if s.seq == 0 {
		docs, err := s.readAll()
		if err != nil {
			return 0, err
		}
		for _, d := range docs {
			if d.Seq > s.seq {
				s.seq = d.Seq
			}
		}
	}
	s.seq++
	return s.seq, nil
}

// Load retrieves a record from its JSON file.
func (s *Store) Load(ctx context.Context, id string) (domain.Record, error) {
	if id == "" {
		return domain.Record{}, domain.ErrInvalidTensorID
	}
	doc, err := readDocument(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Record{}, fmt.Errorf("%w: %s", domain.ErrTensorNotFound, id)
		}
		return domain.Record{}, err
	}
	return domain.Record{ID: doc.ID, Tensor: doc.Tensor}, nil
}

// Delete removes the record file.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return domain.ErrInvalidTensorID
	}
	err := os.Remove(s.path(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete tensor file: %w", err)
	}
	return nil
}

// List returns every record ordered by first save.
func (s *Store) List(ctx context.Context) ([]domain.Record, error) {
	docs, err := s.readAll()
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Seq < docs[j].Seq })

	records := make([]domain.Record, 0, len(docs))
	for _, d := range docs {
		records = append(records, domain.Record{ID: d.ID, Tensor: d.Tensor})
	}
	return records, nil
}

func (s *Store) readAll() ([]document, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list tensors: %w", err)
	}

	var docs []document
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		doc, err := readDocument(filepath.Join(s.BasePath, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue // deleted concurrently
			}
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func readDocument(path string) (document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return document{}, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}
	return doc, nil
}
