package scanner

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ipboard/internal/clients"
	"github.com/vadiminshakov/ipboard/internal/domain"
	"github.com/vadiminshakov/ipboard/internal/services/aggregator"
	"github.com/vadiminshakov/ipboard/internal/services/classifier"
	"github.com/vadiminshakov/ipboard/internal/services/fetcher"
	"github.com/vadiminshakov/ipboard/internal/storage/txcache"
	"github.com/vadiminshakov/ipboard/internal/storage/wallets"
)

const (
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
	carol = "0x3333333333333333333333333333333333333333"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func ip(units int64) decimal.Decimal {
	return decimal.NewFromInt(units).Shift(18)
}

func swap(hash string, age time.Duration, value decimal.Decimal) domain.Transaction {
	return domain.Transaction{
		Hash:            hash,
		Timestamp:       now.Add(-age),
		Value:           value,
		Status:          domain.TxStatusOK,
		Method:          "swapExactETHForTokens",
		RawInputPresent: true,
		Types:           []string{domain.TxTypeContractCall},
		To:              &domain.Destination{Address: "0x9999999999999999999999999999999999999999"},
	}
}

func license(hash string, age time.Duration) domain.Transaction {
	tx := swap(hash, age, decimal.Zero)
	tx.Method = "mintLicenseTokens"
	return tx
}

func reverted(hash string, age time.Duration) domain.Transaction {
	tx := swap(hash, age, ip(5))
	tx.Status = domain.TxStatusError
	return tx
}

type fetchCall struct {
	address string
	since   int64
}

// fakeFetcher serves newest-first histories and cuts them at the watermark like the real fetcher.
type fakeFetcher struct {
	mu      sync.Mutex
	history map[string][]domain.Transaction
	errs    map[string]error
	calls   []fetchCall
}

func (f *fakeFetcher) FetchTransactionsSince(_ context.Context, address string, since int64, _ int) (*fetcher.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, fetchCall{address: address, since: since})
	if err := f.errs[address]; err != nil {
		return nil, err
	}

	res := &fetcher.Result{Pages: 1}
	for _, tx := range f.history[address] {
		if tx.Timestamp.UnixMilli() <= since {
			res.ReachedWatermark = true
			break
		}
		res.Transactions = append(res.Transactions, tx)
	}
	return res, nil
}

type fakeAccounts struct {
	info     map[string]*clients.AddressInfo
	counters map[string]int64
	tokens   map[string][]clients.TokenBalance
}

func (f *fakeAccounts) GetAddress(_ context.Context, address string) (*clients.AddressInfo, error) {
	info, ok := f.info[address]
	if !ok {
		return nil, errors.New("address info unavailable")
	}
	return info, nil
}

func (f *fakeAccounts) GetCounters(_ context.Context, address string) (*clients.AddressCounters, error) {
	n, ok := f.counters[address]
	if !ok {
		return nil, errors.New("counters unavailable")
	}
	return &clients.AddressCounters{TransactionsCount: json.Number(strconv.FormatInt(n, 10))}, nil
}

func (f *fakeAccounts) GetTokenBalances(_ context.Context, address string) ([]clients.TokenBalance, error) {
	tokens, ok := f.tokens[address]
	if !ok {
		return nil, errors.New("token balances unavailable")
	}
	return tokens, nil
}

type fakeJournal struct {
	mu     sync.Mutex
	events []domain.ScanEvent
}

func (j *fakeJournal) Append(event domain.ScanEvent) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.events = append(j.events, event)
	return uint64(len(j.events)), nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.ScanEvent
}

func (p *fakePublisher) Publish(_ context.Context, event domain.ScanEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)
	return nil
}

// countingRepo counts flushes and can fail them.
type countingRepo struct {
	*wallets.MemoryStore
	flushes  int
	flushErr error
}

func (r *countingRepo) Flush(context.Context) error {
	r.flushes++
	return r.flushErr
}

type harness struct {
	repo      *countingRepo
	accounts  *fakeAccounts
	fetcher   *fakeFetcher
	journal   *fakeJournal
	publisher *fakePublisher
	cache     *txcache.Store
	scanner   *Scanner
}

func newHarness(t *testing.T, cfg Config, records ...domain.WalletRecord) *harness {
	t.Helper()

	cache, err := txcache.NewStore(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		repo:      &countingRepo{MemoryStore: wallets.NewMemoryStore(records...)},
		accounts:  &fakeAccounts{info: map[string]*clients.AddressInfo{}, counters: map[string]int64{}, tokens: map[string][]clients.TokenBalance{}},
		fetcher:   &fakeFetcher{history: map[string][]domain.Transaction{}, errs: map[string]error{}},
		journal:   &fakeJournal{},
		publisher: &fakePublisher{},
		cache:     cache,
	}
	h.scanner = New(
		h.repo,
		h.accounts,
		h.fetcher,
		aggregator.New(classifier.New(classifier.DefaultRules())),
		cfg,
		zap.NewNop(),
		WithCache(h.cache),
		WithJournal(h.journal),
		WithPublisher(h.publisher),
		WithClock(func() time.Time { return now }),
	)

	return h
}

func (h *harness) stored(t *testing.T, address string) domain.WalletRecord {
	t.Helper()

	rec, err := h.repo.Get(context.Background(), address)
	require.NoError(t, err)
	return rec
}
