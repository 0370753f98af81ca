// Package txcache keeps, per wallet, the classified non-spam transactions that
// are still inside the widest finite stats window, so bounded windows stay exact
// when scans only fetch new history.
package txcache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/ipboard/internal/domain"
)

const defaultCacheDir = "./data/txcache"

// ErrNotCached is returned by Load when a wallet has no cache file yet.
var ErrNotCached = errors.New("wallet has no transaction cache")

// Store writes one JSON file per wallet.
type Store struct {
	dir string
}

// NewStore creates the cache directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = defaultCacheDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create tx cache dir")
	}

	return &Store{dir: dir}, nil
}

func (s *Store) path(address string) string {
	return filepath.Join(s.dir, domain.AddressKey(address)+".json")
}

// Load returns the cached transactions of a wallet. An existing but empty cache
// yields nil; a wallet that was never cached yields ErrNotCached.
func (s *Store) Load(address string) ([]domain.ClassifiedTransaction, error) {
	if s == nil {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path(address))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotCached
		}
		return nil, errors.Wrap(err, "read tx cache")
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var txs []domain.ClassifiedTransaction
	if err := json.Unmarshal(payload, &txs); err != nil {
		return nil, errors.Wrap(err, "decode tx cache")
	}

	return txs, nil
}

// Save replaces the cached transactions of a wallet atomically.
func (s *Store) Save(address string, txs []domain.ClassifiedTransaction) error {
	if s == nil {
		return nil
	}

	payload, err := json.Marshal(txs)
	if err != nil {
		return errors.Wrap(err, "encode tx cache")
	}

	path := s.path(address)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write tx cache temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "persist tx cache")
	}

	return nil
}

// Window merges fresh into cached, drops spam, duplicates and anything older
// than span before now, and returns the result newest first. Fresh entries win
// on duplicate hashes.
func Window(cached, fresh []domain.ClassifiedTransaction, now time.Time, span time.Duration) []domain.ClassifiedTransaction {
	cutoff := now.Add(-span)
	seen := make(map[string]struct{}, len(cached)+len(fresh))
	out := make([]domain.ClassifiedTransaction, 0, len(cached)+len(fresh))

	for _, group := range [][]domain.ClassifiedTransaction{fresh, cached} {
		for _, tx := range group {
			if tx.IsSpam || tx.Timestamp.Before(cutoff) {
				continue
			}
			if _, dup := seen[tx.Hash]; dup {
				continue
			}
			seen[tx.Hash] = struct{}{}
			out = append(out, tx)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	return out
}
