package wallets

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/ipboard/internal/domain"
)

// MemoryStore keeps records in a map. Flush is a no-op.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.WalletRecord
}

// NewMemoryStore creates a store seeded with records.
func NewMemoryStore(records ...domain.WalletRecord) *MemoryStore {
	s := &MemoryStore{records: make(map[string]domain.WalletRecord, len(records))}
	for _, r := range records {
		s.records[r.Key()] = r.Clone()
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, address string) (domain.WalletRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[domain.AddressKey(address)]
	if !ok {
		return domain.WalletRecord{}, errors.Wrap(domain.ErrWalletNotFound, address)
	}
	return r.Clone(), nil
}

func (s *MemoryStore) Upsert(_ context.Context, record domain.WalletRecord) error {
	if record.Key() == "" {
		return errors.New("wallet address is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.Key()] = record.Clone()
	return nil
}

func (s *MemoryStore) ListAll(_ context.Context) ([]domain.WalletRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.WalletRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	SortForLeaderboard(out)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, domain.AddressKey(address))
	return nil
}

func (s *MemoryStore) Flush(context.Context) error {
	return nil
}
