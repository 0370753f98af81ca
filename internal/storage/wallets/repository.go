// Package wallets persists leaderboard records.
package wallets

import (
	"context"
	"sort"

	"github.com/vadiminshakov/ipboard/internal/domain"
)

// Repository is the wallet collection used by the scanner and the dashboard.
// Implementations are safe for concurrent use and key records by lower-cased address.
type Repository interface {
	Get(ctx context.Context, address string) (domain.WalletRecord, error)
	Upsert(ctx context.Context, record domain.WalletRecord) error
	ListAll(ctx context.Context) ([]domain.WalletRecord, error)
	Delete(ctx context.Context, address string) error
	// Flush makes pending writes durable.
	Flush(ctx context.Context) error
}

// SortForLeaderboard orders records by transaction count, highest first, then by address.
func SortForLeaderboard(records []domain.WalletRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].TransactionCount != records[j].TransactionCount {
			return records[i].TransactionCount > records[j].TransactionCount
		}
		return records[i].Key() < records[j].Key()
	})
}

// preferred picks which of two records sharing an address survives deduplication.
func preferred(a, b domain.WalletRecord) domain.WalletRecord {
	if b.LastScannedTimestamp > a.LastScannedTimestamp {
		return b
	}
	if b.LastScannedTimestamp == a.LastScannedTimestamp && !a.HasDomainName() && b.HasDomainName() {
		return b
	}
	return a
}
