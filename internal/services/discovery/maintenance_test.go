package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ipboard/internal/domain"
	"github.com/vadiminshakov/ipboard/internal/storage/wallets"
)

func TestApplyDenylist(t *testing.T) {
	repo := wallets.NewMemoryStore(
		domain.NewWalletRecord("0x1111111111111111111111111111111111111111", "0xb964d803efcbaa6f138363ff0f4aef5ab977e74f.ip"),
		domain.NewWalletRecord("0xef22268496adaa326f77a089aa64f41b77c9e7c1", "spam.ip"),
		domain.NewWalletRecord("0x2222222222222222222222222222222222222222", "keep.ip"),
	)

	removed, err := ApplyDenylist(context.Background(), repo, DefaultDenylist(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	all, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "keep.ip", all[0].Name)
}

func TestRepairBroken(t *testing.T) {
	broken := domain.NewWalletRecord("0x1111111111111111111111111111111111111111", "broken.ip")
	broken.TransactionCount = 12
	broken.LastScannedTimestamp = 1700000000000

	healthy := domain.NewWalletRecord("0x2222222222222222222222222222222222222222", "ok.ip")
	healthy.TransactionCount = 3
	healthy.LastScannedTimestamp = 1700000000000
	healthy.LastStats[domain.WindowAll] = domain.WindowStats{Count: 3, Volume: "1 IP"}

	idle := domain.NewWalletRecord("0x3333333333333333333333333333333333333333", "idle.ip")
	idle.LastScannedTimestamp = 1700000000000

	repo := wallets.NewMemoryStore(broken, healthy, idle)

	repaired, err := RepairBroken(context.Background(), repo, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	got, err := repo.Get(context.Background(), broken.Address)
	require.NoError(t, err)
	assert.False(t, got.IsScanned())

	for _, addr := range []string{healthy.Address, idle.Address} {
		got, err := repo.Get(context.Background(), addr)
		require.NoError(t, err)
		assert.True(t, got.IsScanned())
	}
}
