package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/emberworks/fireside/pkg/cryptox"
	"github.com/emberworks/fireside/pkg/idx"
)

// FileStore keeps records in a single JSON document on disk, written
// with 0600 permissions. With a passphrase set, the document is sealed
// with cryptox so refresh tokens are not stored in the clear.
type FileStore struct {
	path       string
	passphrase string

	mu sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens (or will create on first Put) the store at path.
// An empty passphrase means plain-text storage, which is what the
// round-trip contract permits; sealing is opt-in.
func NewFileStore(path, passphrase string) *FileStore {
	return &FileStore{path: path, passphrase: passphrase}
}

func (s *FileStore) load() (map[string]Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]Record), nil
	}
	if err != nil {
		return nil, fmt.Errorf("tokenstore: read %s: %w", s.path, err)
	}

	if s.passphrase != "" {
		data, err = cryptox.Open(data, s.passphrase)
		if err != nil {
			return nil, fmt.Errorf("tokenstore: unseal %s: %w", s.path, err)
		}
	}

	records := make(map[string]Record)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("tokenstore: decode %s: %w", s.path, err)
	}
	return records, nil
}

func (s *FileStore) save(records map[string]Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenstore: encode records: %w", err)
	}

	if s.passphrase != "" {
		data, err = cryptox.Seal(data, s.passphrase)
		if err != nil {
			return fmt.Errorf("tokenstore: seal records: %w", err)
		}
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("tokenstore: write %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) Put(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return Record{}, err
	}

	if existing, ok := records[rec.Name]; ok {
		rec.ID = existing.ID
	} else if rec.ID.IsZero() {
		rec.ID = idx.New()
	}
	rec.UpdatedAt = time.Now().UTC()
	records[rec.Name] = rec

	if err := s.save(records); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *FileStore) Get(_ context.Context, name string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return Record{}, err
	}
	rec, ok := records[name]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *FileStore) List(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *FileStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := records[name]; !ok {
		return ErrNotFound
	}
	delete(records, name)
	return s.save(records)
}

func (s *FileStore) Close() error { return nil }
