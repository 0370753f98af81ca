package scanner

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/ipboard/internal/domain"
)

// RunSummary reports one pass over the collection.
type RunSummary struct {
	RunID    string
	Total    int
	Scanned  int
	Statuses map[domain.ScanStatus]int
	Duration time.Duration
}

// Prioritize orders records for scanning: never-scanned wallets first, then the oldest watermark.
func Prioritize(records []domain.WalletRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.IsScanned() != b.IsScanned() {
			return !a.IsScanned()
		}
		if a.LastScannedTimestamp != b.LastScannedTimestamp {
			return a.LastScannedTimestamp < b.LastScannedTimestamp
		}
		return a.Key() < b.Key()
	})
}

// Run scans every stored wallet once. Per-wallet failures are counted, not
// returned. Listing or flushing the collection is the only fatal error.
func (s *Scanner) Run(ctx context.Context) (*RunSummary, error) {
	started := s.now()
	summary := &RunSummary{
		RunID:    uuid.NewString(),
		Statuses: make(map[domain.ScanStatus]int),
	}
	l := s.logger.With(zap.String("run_id", summary.RunID))

	records, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list wallets")
	}
	Prioritize(records)
	summary.Total = len(records)

	l.Info("scan run started",
		zap.Int("wallets", len(records)),
		zap.Int("concurrency", s.cfg.Concurrency),
	)

	var (
		mu          sync.Mutex
		sinceFlush  int
		interrupted error
	)
	for start := 0; start < len(records); start += s.cfg.Concurrency {
		if err := ctx.Err(); err != nil {
			interrupted = err
			break
		}

		end := min(start+s.cfg.Concurrency, len(records))
		var g errgroup.Group
		g.SetLimit(s.cfg.Concurrency)
		for _, rec := range records[start:end] {
			g.Go(func() error {
				event, _ := s.ScanWallet(ctx, rec, summary.RunID)
				mu.Lock()
				summary.Statuses[event.Status]++
				summary.Scanned++
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		sinceFlush += end - start
		if sinceFlush >= s.cfg.SaveEvery {
			if err := s.repo.Flush(ctx); err != nil {
				return summary, errors.Wrap(err, "flush wallets")
			}
			sinceFlush = 0
			l.Debug("wallets flushed", zap.Int("progress", end), zap.Int("total", len(records)))
		}

		if end < len(records) && s.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.BatchDelay):
			}
		}
	}

	if err := s.repo.Flush(context.WithoutCancel(ctx)); err != nil {
		return summary, errors.Wrap(err, "flush wallets")
	}
	summary.Duration = s.now().Sub(started)

	l.Info("scan run finished",
		zap.Int("scanned", summary.Scanned),
		zap.Int("ok", summary.Statuses[domain.ScanStatusOK]),
		zap.Int("partial", summary.Statuses[domain.ScanStatusPartial]),
		zap.Int("rate_limited", summary.Statuses[domain.ScanStatusRateLimited]),
		zap.Int("failed", summary.Statuses[domain.ScanStatusFailed]),
		zap.Duration("duration", summary.Duration),
	)

	return summary, interrupted
}

// Loop runs the batch immediately and then every interval until ctx is done.
func (s *Scanner) Loop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultLoopInterval
	}
	if _, err := s.Run(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("starting scan loop", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("context done, stopping scan loop")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				return err
			}
		}
	}
}
