// Package localfile keeps the whole catalog in one JSON file keyed by docId.
// Every operation reads the full file and every mutation rewrites it. Writes
// are serialised inside the process only; one writer process at a time.
package localfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"metarepo/internal/model"
	"metarepo/internal/repository"
)

// Store is the single-file implementation of repository.DocumentRepository.
type Store struct {
	path string
	mu   sync.Mutex
	log  *zap.Logger
}

var _ repository.DocumentRepository = (*Store)(nil)

// New returns a store persisting to path, creating its directory if needed.
func New(path string, log *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("local catalog path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}
	return &Store{path: path, log: log.With(zap.String("component", "localfile"))}, nil
}

func (s *Store) Find(_ context.Context, filters repository.Filters, allowedGroups []string, page int) ([]model.Document, error) {
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	catalog, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var matched []model.Document
	for _, id := range ids {
		doc := catalog[id]
		if len(allowedGroups) > 0 && !containsString(allowedGroups, doc.Tenant()) {
			continue
		}
		ok, err := matches(&doc, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, doc)
		}
	}

	out := []model.Document{}
	start := repository.Offset(page)
	if start >= len(matched) {
		return out, nil
	}
	end := start + repository.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return append(out, matched[start:end]...), nil
}

func (s *Store) Notate(_ context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	catalog, err := s.read()
	if err != nil {
		return err
	}
	if _, exists := catalog[doc.DocID]; exists {
		return fmt.Errorf("%w: document %s already exists", model.ErrConflict, doc.DocID)
	}
	stored := *doc
	stored.Normalize()
	catalog[doc.DocID] = stored
	return s.write(catalog)
}

func (s *Store) Update(_ context.Context, docID string, patch *model.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	catalog, err := s.read()
	if err != nil {
		return err
	}
	doc, ok := catalog[docID]
	if !ok {
		return fmt.Errorf("%w: document %s", model.ErrNotFound, docID)
	}
	doc.Apply(patch)
	catalog[docID] = doc
	return s.write(catalog)
}

// Ping checks that the catalog file is readable.
func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.read()
	return err
}

func (s *Store) read() (map[string]model.Document, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]model.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read catalog: %w", model.ErrStorage, err)
	}
	catalog := map[string]model.Document{}
	if len(b) == 0 {
		return catalog, nil
	}
	if err := json.Unmarshal(b, &catalog); err != nil {
		return nil, fmt.Errorf("%w: decode catalog: %w", model.ErrStorage, err)
	}
	for id, doc := range catalog {
		doc.Normalize()
		catalog[id] = doc
	}
	return catalog, nil
}

// write replaces the catalog through a temp file and rename so a crash never
// leaves a truncated catalog behind.
func (s *Store) write(catalog map[string]model.Document) error {
	b, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode catalog: %w", model.ErrStorage, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp catalog: %w", model.ErrStorage, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write catalog: %w", model.ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync catalog: %w", model.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close catalog: %w", model.ErrStorage, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("%w: replace catalog: %w", model.ErrStorage, err)
	}
	s.log.Debug("catalog written", zap.Int("documents", len(catalog)))
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
