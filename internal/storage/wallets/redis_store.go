package wallets

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/vadiminshakov/ipboard/internal/domain"
)

// DefaultRedisKey is the hash holding one JSON record per address.
const DefaultRedisKey = "ipboard:wallets"

// RedisOptions locates the shared store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisStore keeps the collection in a Redis hash so several scanners and
// dashboards can share it. Writes are immediate; Flush is a no-op.
type RedisStore struct {
	client *goredis.Client
	key    string
}

// ConnectRedis dials Redis and verifies the connection.
func ConnectRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis at %s", opts.Addr)
	}

	return NewRedisStore(client, opts.Key), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *goredis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Get(ctx context.Context, address string) (domain.WalletRecord, error) {
	payload, err := s.client.HGet(ctx, s.key, domain.AddressKey(address)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.WalletRecord{}, errors.Wrap(domain.ErrWalletNotFound, address)
		}
		return domain.WalletRecord{}, errors.Wrap(err, "redis hget wallet")
	}

	return decodeRecord(payload)
}

func (s *RedisStore) Upsert(ctx context.Context, record domain.WalletRecord) error {
	if record.Key() == "" {
		return errors.New("wallet address is required")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "encode wallet")
	}

	return errors.Wrap(s.client.HSet(ctx, s.key, record.Key(), payload).Err(), "redis hset wallet")
}

func (s *RedisStore) ListAll(ctx context.Context) ([]domain.WalletRecord, error) {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis hgetall wallets")
	}

	out := make([]domain.WalletRecord, 0, len(all))
	for field, payload := range all {
		r, err := decodeRecord([]byte(payload))
		if err != nil {
			return nil, errors.Wrapf(err, "wallet %s", field)
		}
		out = append(out, r)
	}
	SortForLeaderboard(out)

	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, address string) error {
	return errors.Wrap(s.client.HDel(ctx, s.key, domain.AddressKey(address)).Err(), "redis hdel wallet")
}

func (s *RedisStore) Flush(context.Context) error {
	return nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeRecord(payload []byte) (domain.WalletRecord, error) {
	var r domain.WalletRecord
	if err := json.Unmarshal(payload, &r); err != nil {
		return domain.WalletRecord{}, errors.Wrap(err, "decode wallet")
	}
	r.FillMissingStats(domain.DefaultWindows())
	return r, nil
}
