package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonasehrlich/ek-scraper/internal/model"
)

// adEntry is what the file store keeps per recorded identity. The id set
// is the source of truth; the rest is metadata for auditing and pruning.
type adEntry struct {
	Title     string    `json:"title,omitempty"`
	URL       string    `json:"url,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

type fileData struct {
	Version  int                           `json:"version"`
	Searches map[string]map[string]adEntry `json:"searches"`
}

// FileStore keeps the whole state in memory and writes it out once on
// Close via a temp-file-plus-rename, so a crash mid-write never leaves a
// corrupt store behind.
type FileStore struct {
	path    string
	persist bool
	logger  *slog.Logger

	mu   sync.RWMutex
	data fileData
	now  func() time.Time
}

// Open loads the store at path, or initializes an empty one when the file
// does not exist yet. A file written by a different schema version yields
// a *VersionError.
func Open(path string, logger *slog.Logger) (*FileStore, error) {
	st := newFileStore(logger)
	st.path = path
	st.persist = true

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("data store does not exist yet, will be created on close", slog.String("path", path))
		return st, nil
	case err != nil:
		return nil, fmt.Errorf("read data store: %w", err)
	}
	if len(raw) == 0 {
		return st, nil
	}

	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse data store %s: %w", path, err)
	}
	if data.Version != SchemaVersion {
		return nil, &VersionError{Source: path, Got: data.Version, Want: SchemaVersion}
	}
	if data.Searches == nil {
		data.Searches = make(map[string]map[string]adEntry)
	}
	st.data = data
	return st, nil
}

// OpenEphemeral returns a file store that never touches the disk. Used
// for temp-data-store runs, where state is discarded at exit.
func OpenEphemeral(logger *slog.Logger) *FileStore {
	return newFileStore(logger)
}

func newFileStore(logger *slog.Logger) *FileStore {
	return &FileStore{
		logger: logger,
		data: fileData{
			Version:  SchemaVersion,
			Searches: make(map[string]map[string]adEntry),
		},
		now: time.Now,
	}
}

// Seen implements Store.
func (s *FileStore) Seen(_ context.Context, search string, ids []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	part := s.data.Searches[search]
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		_, ok := part[id]
		seen[id] = ok
	}
	return seen, nil
}

// Record implements Store.
func (s *FileStore) Record(_ context.Context, search string, ads []model.AdRecord) error {
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	part := s.data.Searches[search]
	if part == nil {
		part = make(map[string]adEntry, len(ads))
		s.data.Searches[search] = part
	}
	for _, ad := range ads {
		entry, ok := part[ad.ID]
		if !ok {
			entry.FirstSeen = now
		}
		entry.Title = ad.Title
		entry.URL = ad.URL
		entry.LastSeen = now
		part[ad.ID] = entry
	}
	return nil
}

// Prune implements Store.
func (s *FileStore) Prune(_ context.Context, search string, observed []string) (int, error) {
	keep := make(map[string]struct{}, len(observed))
	for _, id := range observed {
		keep[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	part := s.data.Searches[search]
	dropped := 0
	for id := range part {
		if _, ok := keep[id]; !ok {
			delete(part, id)
			dropped++
		}
	}
	return dropped, nil
}

// Len reports the number of recorded ids for a search.
func (s *FileStore) Len(search string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Searches[search])
}

// Close persists the store. Ephemeral stores just drop their state.
func (s *FileStore) Close(_ context.Context) error {
	if !s.persist {
		return nil
	}

	s.mu.RLock()
	raw, err := json.MarshalIndent(s.data, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal data store: %w", err)
	}

	// Write to a sibling temp file and rename over the target, so a
	// concurrent reader never observes a half-written store.
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp data store: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp data store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp data store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace data store: %w", err)
	}
	s.logger.Debug("data store persisted", slog.String("path", s.path))
	return nil
}
