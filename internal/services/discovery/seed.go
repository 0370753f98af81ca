// Package discovery grows and cleans the wallet collection: seed list import,
// name-service token walks, denylist removal and broken-record repair.
package discovery

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ipboard/internal/domain"
)

type walletRepository interface {
	Get(ctx context.Context, address string) (domain.WalletRecord, error)
	Upsert(ctx context.Context, record domain.WalletRecord) error
	ListAll(ctx context.Context) ([]domain.WalletRecord, error)
	Delete(ctx context.Context, address string) error
	Flush(ctx context.Context) error
}

// ParseSeedList reads one address per line. Lines not starting with 0x are
// skipped, invalid addresses are skipped, duplicates are dropped.
func ParseSeedList(r io.Reader) ([]string, error) {
	var (
		out  []string
		seen = map[string]struct{}{}
	)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "0x") {
			continue
		}
		// lists sometimes carry a name after the address
		if i := strings.IndexAny(line, " \t,;"); i > 0 {
			line = line[:i]
		}
		addr, err := domain.NormalizeAddress(line)
		if err != nil {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read seed list")
	}

	return out, nil
}

// ImportSeedFile adds every unknown address from path as an unnamed wallet
// and returns how many were added.
func ImportSeedFile(ctx context.Context, repo walletRepository, path string, logger *zap.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open seed list")
	}
	defer f.Close()

	addresses, err := ParseSeedList(f)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, addr := range addresses {
		_, err := repo.Get(ctx, addr)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrWalletNotFound) {
			return added, errors.Wrap(err, "read wallet")
		}
		if err := repo.Upsert(ctx, domain.NewWalletRecord(addr, "")); err != nil {
			return added, errors.Wrap(err, "add wallet")
		}
		added++
	}

	if err := repo.Flush(ctx); err != nil {
		return added, errors.Wrap(err, "flush wallets")
	}
	logger.Info("seed list imported",
		zap.String("path", path),
		zap.Int("listed", len(addresses)),
		zap.Int("added", added),
	)

	return added, nil
}
