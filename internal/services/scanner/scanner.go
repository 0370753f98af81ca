// Package scanner runs the per-wallet scan cycle: account snapshot, incremental
// history fetch, classification, merge into the stored record and windowed
// aggregation. The batch driver in batch.go applies it to the whole collection.
package scanner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ipboard/internal/clients"
	"github.com/vadiminshakov/ipboard/internal/domain"
	"github.com/vadiminshakov/ipboard/internal/services/aggregator"
	"github.com/vadiminshakov/ipboard/internal/services/fetcher"
	"github.com/vadiminshakov/ipboard/internal/storage/txcache"
)

const (
	defaultConcurrency  = 10
	defaultSaveEvery    = 20
	defaultLoopInterval = time.Hour
	defaultLiveMaxPages = 10
)

type walletRepository interface {
	Get(ctx context.Context, address string) (domain.WalletRecord, error)
	Upsert(ctx context.Context, record domain.WalletRecord) error
	ListAll(ctx context.Context) ([]domain.WalletRecord, error)
	Flush(ctx context.Context) error
}

type accountReader interface {
	GetAddress(ctx context.Context, address string) (*clients.AddressInfo, error)
	GetCounters(ctx context.Context, address string) (*clients.AddressCounters, error)
	GetTokenBalances(ctx context.Context, address string) ([]clients.TokenBalance, error)
}

type transactionFetcher interface {
	FetchTransactionsSince(ctx context.Context, address string, since int64, maxPages int) (*fetcher.Result, error)
}

type txCache interface {
	Load(address string) ([]domain.ClassifiedTransaction, error)
	Save(address string, txs []domain.ClassifiedTransaction) error
}

type eventJournal interface {
	Append(event domain.ScanEvent) (uint64, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, event domain.ScanEvent) error
}

// Config tunes the batch driver.
type Config struct {
	Concurrency int
	SaveEvery   int
	BatchDelay  time.Duration
	// MaxPages bounds history pages per wallet in a batch scan; 0 uses the fetcher default.
	MaxPages int
	// LiveMaxPages bounds history pages for dashboard previews.
	LiveMaxPages int
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.SaveEvery <= 0 {
		c.SaveEvery = defaultSaveEvery
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	}
	if c.LiveMaxPages <= 0 {
		c.LiveMaxPages = defaultLiveMaxPages
	}
	return c
}

// Scanner owns the scan cycle. Journal, publisher and cache are optional.
type Scanner struct {
	repo       walletRepository
	accounts   accountReader
	fetcher    transactionFetcher
	aggregator *aggregator.Aggregator
	cache      txCache
	journal    eventJournal
	publisher  eventPublisher
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithCache enables the rolling transaction cache behind finite windows.
func WithCache(c txCache) Option {
	return func(s *Scanner) {
		s.cache = c
	}
}

// WithJournal appends an event per scanned wallet.
func WithJournal(j eventJournal) Option {
	return func(s *Scanner) {
		s.journal = j
	}
}

// WithPublisher broadcasts an event per scanned wallet.
func WithPublisher(p eventPublisher) Option {
	return func(s *Scanner) {
		s.publisher = p
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) {
		s.now = now
	}
}

// New creates a Scanner.
func New(
	repo walletRepository,
	accounts accountReader,
	f transactionFetcher,
	agg *aggregator.Aggregator,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Scanner {
	s := &Scanner{
		repo:       repo,
		accounts:   accounts,
		fetcher:    f,
		aggregator: agg,
		cfg:        cfg.withDefaults(),
		logger:     logger.With(zap.String("component", "scanner")),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// outcome is the computed, not yet persisted, result of one wallet scan.
type outcome struct {
	record domain.WalletRecord
	window []domain.ClassifiedTransaction
	// skipCache leaves a missing cache missing, so stored finite stats survive.
	skipCache bool
	fetched   int
	newSpam   int64
	pages     int
	partial   bool
}

// ScanAddress scans one wallet, creating its record when unknown, and flushes the repository.
func (s *Scanner) ScanAddress(ctx context.Context, address string) (domain.ScanEvent, error) {
	addr, err := domain.NormalizeAddress(address)
	if err != nil {
		return domain.ScanEvent{}, err
	}

	rec, err := s.repo.Get(ctx, addr)
	if errors.Is(err, domain.ErrWalletNotFound) {
		rec = domain.NewWalletRecord(addr, "")
	} else if err != nil {
		return domain.ScanEvent{}, errors.Wrap(err, "read wallet")
	}

	event, err := s.ScanWallet(ctx, rec, uuid.NewString())
	if err != nil {
		return event, err
	}
	if err := s.repo.Flush(ctx); err != nil {
		return event, errors.Wrap(err, "flush wallets")
	}

	return event, nil
}

// ScanWallet runs one scan cycle for rec and persists the result. Fetch failures
// leave the stored record untouched and are reported through the event status.
func (s *Scanner) ScanWallet(ctx context.Context, rec domain.WalletRecord, runID string) (domain.ScanEvent, error) {
	l := s.logger.With(zap.String("address", rec.Address))
	event := domain.ScanEvent{
		RunID:   runID,
		Address: rec.Key(),
		Name:    rec.Name,
	}

	h := history{missing: true}
	if s.cache != nil && rec.IsScanned() {
		cached, err := s.cache.Load(rec.Key())
		switch {
		case err == nil:
			h = history{cached: cached}
		case errors.Is(err, txcache.ErrNotCached):
			l.Debug("no transaction cache for scanned wallet")
		default:
			l.Warn("failed to load transaction cache", zap.Error(err))
		}
	}

	out, err := s.compute(ctx, rec, h, s.cfg.MaxPages)
	if err != nil {
		event.Status = failureStatus(err)
		event.Error = err.Error()
		l.Warn("wallet scan failed", zap.String("status", string(event.Status)), zap.Error(err))
		s.emit(ctx, l, event)
		return event, err
	}

	if err := s.persist(ctx, out); err != nil {
		event.Status = domain.ScanStatusFailed
		event.Error = err.Error()
		l.Error("failed to persist wallet", zap.Error(err))
		s.emit(ctx, l, event)
		return event, err
	}

	event.Status = domain.ScanStatusOK
	if out.partial {
		event.Status = domain.ScanStatusPartial
	}
	event.Name = out.record.Name
	event.NewTransactions = out.fetched
	event.NewSpam = out.newSpam
	event.TransactionCount = out.record.TransactionCount
	event.LastScannedTimestamp = out.record.LastScannedTimestamp
	event.Pages = out.pages

	l.Debug("wallet scanned",
		zap.Int("new_transactions", out.fetched),
		zap.Int64("new_spam", out.newSpam),
		zap.Int("pages", out.pages),
		zap.Bool("partial", out.partial),
	)
	s.emit(ctx, l, event)

	return event, nil
}

// Preview computes a record from live explorer data without persisting anything.
// Known wallets keep their stored name and account fields when calls fail.
func (s *Scanner) Preview(ctx context.Context, address string) (domain.WalletRecord, error) {
	addr, err := domain.NormalizeAddress(address)
	if err != nil {
		return domain.WalletRecord{}, err
	}

	base := domain.NewWalletRecord(addr, "")
	if stored, err := s.repo.Get(ctx, addr); err == nil {
		base.Name = stored.Name
		base.Balance = stored.Balance
		base.NetWorthUSD = stored.NetWorthUSD
		base.RawTransactionCount = stored.RawTransactionCount
	}

	out, err := s.compute(ctx, base, history{}, s.cfg.LiveMaxPages)
	if err != nil {
		return domain.WalletRecord{}, err
	}

	return out.record, nil
}

// history is the cached part of a wallet's finite windows. missing is set when
// a scanned wallet has no readable cache, so its stored finite stats are the
// only record of transactions older than the watermark.
type history struct {
	cached  []domain.ClassifiedTransaction
	missing bool
}

func (s *Scanner) compute(ctx context.Context, rec domain.WalletRecord, h history, maxPages int) (*outcome, error) {
	rec = rec.Clone()
	rec.FillMissingStats(s.aggregator.Windows())
	wasScanned := rec.IsScanned()
	now := s.now()

	s.applySnapshot(ctx, &rec)

	res, err := s.fetcher.FetchTransactionsSince(ctx, rec.Key(), rec.LastScannedTimestamp, maxPages)
	if err != nil {
		return nil, err
	}

	fresh := s.aggregator.Classify(res.Transactions)
	var newSpam int64
	for _, tx := range fresh {
		if tx.IsSpam {
			newSpam++
		}
	}

	newest := res.Newest()
	if !wasScanned {
		// a full-history walk recounts spam from scratch
		rec.KnownSpamCount = 0
	}
	rec.KnownSpamCount += newSpam
	rec.AdvanceWatermark(newest)
	rec.TouchActive(newest)
	rec.RecountTransactions()
	if rec.FirstSeenTx == "" && !wasScanned && !res.Partial && len(res.Transactions) > 0 {
		rec.FirstSeenTx = res.Transactions[len(res.Transactions)-1].Hash
	}

	window := txcache.Window(h.cached, fresh, now, domain.WidestFiniteSpan(s.aggregator.Windows()))
	tallies := s.aggregator.Tallies(window, now)

	var all aggregator.Tally
	if wasScanned {
		all = aggregator.TallyFromStats(rec.LastStats[domain.WindowAll], rec.AllTimeVolume())
	}
	for _, tx := range fresh {
		var t aggregator.Tally
		t.Add(tx)
		all = all.Merge(t)
	}
	tallies[domain.WindowAll] = all

	stored := rec.LastStats
	rec.LastStats = aggregator.Render(tallies)
	keepFinite := wasScanned && h.missing && len(fresh) == 0
	if keepFinite {
		for label, st := range stored {
			if label != domain.WindowAll {
				rec.LastStats[label] = st
			}
		}
	}
	rec.AllTimeVolumeWei = all.VolumeWei.String()
	rec.UpdatedAt = now.UnixMilli()

	return &outcome{
		record:    rec,
		window:    window,
		skipCache: keepFinite,
		fetched:   len(res.Transactions),
		newSpam:   newSpam,
		pages:     res.Pages,
		partial:   res.Partial,
	}, nil
}

// persist saves the cache before the record, so a record never claims a
// watermark whose window transactions were not stored.
func (s *Scanner) persist(ctx context.Context, out *outcome) error {
	if s.cache != nil && !out.skipCache {
		if err := s.cache.Save(out.record.Key(), out.window); err != nil {
			return errors.Wrap(err, "save transaction cache")
		}
	}

	return errors.Wrap(s.repo.Upsert(ctx, out.record), "upsert wallet")
}

func (s *Scanner) emit(ctx context.Context, l *zap.Logger, event domain.ScanEvent) {
	event.At = s.now().UnixMilli()

	if s.journal != nil {
		seq, err := s.journal.Append(event)
		if err != nil {
			l.Warn("failed to append scan event", zap.Error(err))
		} else {
			event.Seq = seq
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, event); err != nil {
			l.Warn("failed to publish scan event", zap.Error(err))
		}
	}
}

func failureStatus(err error) domain.ScanStatus {
	if errors.Is(err, domain.ErrRateLimitExceeded) {
		return domain.ScanStatusRateLimited
	}
	return domain.ScanStatusFailed
}
