package discovery

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ipboard/internal/domain"
)

// Denylist names garbage entries to remove from the collection.
type Denylist struct {
	Names     []string
	Addresses []string
}

// DefaultDenylist returns the entries known to be explorer artifacts.
func DefaultDenylist() Denylist {
	return Denylist{
		Names:     []string{"0xb964d803efcbaa6f138363ff0f4aef5ab977e74f.ip"},
		Addresses: []string{"0xEF22268496adaa326f77a089aa64F41B77c9E7c1"},
	}
}

func (d Denylist) matches(rec domain.WalletRecord) bool {
	for _, name := range d.Names {
		if strings.EqualFold(rec.Name, name) {
			return true
		}
	}
	for _, addr := range d.Addresses {
		if domain.AddressKey(addr) == rec.Key() {
			return true
		}
	}
	return false
}

// ApplyDenylist deletes matching wallets and returns how many were removed.
func ApplyDenylist(ctx context.Context, repo walletRepository, deny Denylist, logger *zap.Logger) (int, error) {
	records, err := repo.ListAll(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list wallets")
	}

	removed := 0
	for _, rec := range records {
		if !deny.matches(rec) {
			continue
		}
		if err := repo.Delete(ctx, rec.Address); err != nil {
			return removed, errors.Wrap(err, "delete wallet")
		}
		logger.Info("removed denylisted wallet", zap.String("address", rec.Address), zap.String("name", rec.Name))
		removed++
	}

	if removed > 0 {
		if err := repo.Flush(ctx); err != nil {
			return removed, errors.Wrap(err, "flush wallets")
		}
	}

	return removed, nil
}

// RepairBroken resets the watermark of wallets that report transactions but
// hold no all-time stats, so the next run scans their full history.
func RepairBroken(ctx context.Context, repo walletRepository, logger *zap.Logger) (int, error) {
	records, err := repo.ListAll(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list wallets")
	}

	repaired := 0
	for _, rec := range records {
		if !rec.NeedsRescan() {
			continue
		}
		rec.LastScannedTimestamp = 0
		if err := repo.Upsert(ctx, rec); err != nil {
			return repaired, errors.Wrap(err, "reset wallet")
		}
		repaired++
	}

	if repaired > 0 {
		if err := repo.Flush(ctx); err != nil {
			return repaired, errors.Wrap(err, "flush wallets")
		}
	}
	logger.Info("broken wallets reset", zap.Int("count", repaired))

	return repaired, nil
}
