package wallets

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/ipboard/internal/domain"
)

// DefaultPath is the collection file read by the dashboard.
const DefaultPath = "known_domains.json"

// JSONStore holds the collection in memory and rewrites the whole file on Flush,
// atomically via a temp file.
type JSONStore struct {
	path       string
	autoReload bool

	mu         sync.RWMutex
	records    map[string]domain.WalletRecord
	version    uint64 // bumped on every local write
	flushed    uint64 // version last written to disk
	modTime    time.Time
	size       int64
	duplicates int

	flushMu sync.Mutex
}

// JSONOption configures a JSONStore.
type JSONOption func(*JSONStore)

// WithAutoReload re-reads the file on access when another process has replaced it.
// Unflushed local writes are never discarded.
func WithAutoReload() JSONOption {
	return func(s *JSONStore) {
		s.autoReload = true
	}
}

// NewJSONStore opens the collection at path. A missing file is an empty collection.
func NewJSONStore(path string, opts ...JSONOption) (*JSONStore, error) {
	if path == "" {
		path = DefaultPath
	}

	s := &JSONStore{path: path, records: make(map[string]domain.WalletRecord)}
	for _, opt := range opts {
		opt(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

// Path returns the backing file.
func (s *JSONStore) Path() string {
	return s.path
}

// Duplicates returns how many case-variant duplicates were merged on the last load.
func (s *JSONStore) Duplicates() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.duplicates
}

// load must be called with mu held for writing.
func (s *JSONStore) load() error {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.records = make(map[string]domain.WalletRecord)
			return nil
		}
		return errors.Wrap(err, "stat wallet collection")
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		return errors.Wrap(err, "read wallet collection")
	}

	records := make(map[string]domain.WalletRecord)
	duplicates := 0
	if len(payload) > 0 {
		var list []domain.WalletRecord
		if err := json.Unmarshal(payload, &list); err != nil {
			return errors.Wrap(err, "decode wallet collection")
		}

		windows := domain.DefaultWindows()
		for _, r := range list {
			key := r.Key()
			if key == "" {
				continue
			}
			r.FillMissingStats(windows)
			if existing, ok := records[key]; ok {
				duplicates++
				r = preferred(existing, r)
			}
			records[key] = r
		}
	}

	s.records = records
	s.duplicates = duplicates
	s.modTime = info.ModTime()
	s.size = info.Size()

	return nil
}

func (s *JSONStore) reloadIfChanged() error {
	if !s.autoReload {
		return nil
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrap(err, "stat wallet collection")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.version != s.flushed || (info.ModTime().Equal(s.modTime) && info.Size() == s.size) {
		return nil
	}

	return s.load()
}

func (s *JSONStore) Get(_ context.Context, address string) (domain.WalletRecord, error) {
	if err := s.reloadIfChanged(); err != nil {
		return domain.WalletRecord{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[domain.AddressKey(address)]
	if !ok {
		return domain.WalletRecord{}, errors.Wrap(domain.ErrWalletNotFound, address)
	}
	return r.Clone(), nil
}

func (s *JSONStore) Upsert(_ context.Context, record domain.WalletRecord) error {
	if record.Key() == "" {
		return errors.New("wallet address is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.Key()] = record.Clone()
	s.version++
	return nil
}

func (s *JSONStore) ListAll(_ context.Context) ([]domain.WalletRecord, error) {
	if err := s.reloadIfChanged(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshot(), nil
}

func (s *JSONStore) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.AddressKey(address)
	if _, ok := s.records[key]; ok {
		delete(s.records, key)
		s.version++
	}
	return nil
}

// Flush writes the whole collection. On failure the previous file is left intact.
func (s *JSONStore) Flush(_ context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.RLock()
	list := s.snapshot()
	version := s.version
	s.mu.RUnlock()

	payload, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode wallet collection")
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create wallet collection dir")
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write wallet collection temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "persist wallet collection")
	}

	s.mu.Lock()
	s.flushed = version
	if info, err := os.Stat(s.path); err == nil {
		s.modTime = info.ModTime()
		s.size = info.Size()
	}
	s.mu.Unlock()

	return nil
}

// snapshot must be called with mu held.
func (s *JSONStore) snapshot() []domain.WalletRecord {
	out := make([]domain.WalletRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	SortForLeaderboard(out)
	return out
}
