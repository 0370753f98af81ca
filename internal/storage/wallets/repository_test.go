package wallets

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/ipboard/internal/domain"
)

const (
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
)

func record(address, name string, txCount int64) domain.WalletRecord {
	r := domain.NewWalletRecord(address, name)
	r.TransactionCount = txCount
	return r
}

func repositories(t *testing.T) map[string]Repository {
	t.Helper()

	jsonStore, err := NewJSONStore(t.TempDir() + "/known_domains.json")
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]Repository{
		"memory": NewMemoryStore(),
		"json":   jsonStore,
		"redis":  NewRedisStore(client, "test:wallets"),
	}
}

func TestRepository_Contract(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := repo.Get(ctx, alice)
			assert.ErrorIs(t, err, domain.ErrWalletNotFound)

			require.NoError(t, repo.Upsert(ctx, record(alice, "alice.ip", 3)))
			require.NoError(t, repo.Upsert(ctx, record(bob, "bob.ip", 10)))

			got, err := repo.Get(ctx, "0x1111111111111111111111111111111111111111")
			require.NoError(t, err)
			assert.Equal(t, "alice.ip", got.Name)

			// identity is case-insensitive
			upper := record("0x1111111111111111111111111111111111111111", "alice.ip", 5)
			upper.Address = "0X1111111111111111111111111111111111111111"
			require.NoError(t, repo.Upsert(ctx, upper))

			all, err := repo.ListAll(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "bob.ip", all[0].Name, "sorted by transaction count")
			assert.Equal(t, int64(5), all[1].TransactionCount)

			require.NoError(t, repo.Delete(ctx, bob))
			require.NoError(t, repo.Flush(ctx))

			all, err = repo.ListAll(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)

			assert.Error(t, repo.Upsert(ctx, domain.WalletRecord{}))
		})
	}
}

func TestRepository_ReturnsCopies(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.Upsert(ctx, record(alice, "alice.ip", 1)))

			got, err := repo.Get(ctx, alice)
			require.NoError(t, err)
			got.LastStats["24h"] = domain.WindowStats{Count: 99}

			again, err := repo.Get(ctx, alice)
			require.NoError(t, err)
			assert.Equal(t, int64(0), again.LastStats["24h"].Count)
		})
	}
}
