package internal

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/ipboard/config"
	"github.com/vadiminshakov/ipboard/dashboard"
	"github.com/vadiminshakov/ipboard/internal/clients"
	natspub "github.com/vadiminshakov/ipboard/internal/pubsub/nats"
	"github.com/vadiminshakov/ipboard/internal/services/discovery"
	"github.com/vadiminshakov/ipboard/internal/services/fetcher"
	"github.com/vadiminshakov/ipboard/internal/services/scanner"
	"github.com/vadiminshakov/ipboard/internal/storage/scanjournal"
	"github.com/vadiminshakov/ipboard/internal/storage/txcache"
	"github.com/vadiminshakov/ipboard/internal/storage/wallets"
)

// Board wires the leaderboard components for one process.
type Board struct {
	Config    config.Config
	Wallets   wallets.Repository
	Explorer  *clients.ExplorerClient
	Scanner   *scanner.Scanner
	Names     *discovery.NameService
	Journal   *scanjournal.WALStore
	Publisher *natspub.Publisher

	logger  *zap.Logger
	closers []closeFunc
}

// BoardOption configures NewBoard.
type BoardOption func(*boardOptions)

type boardOptions struct {
	autoReload bool
}

// WithAutoReload makes a JSON wallet store pick up files written by another process.
func WithAutoReload() BoardOption {
	return func(o *boardOptions) {
		o.autoReload = true
	}
}

// NewBoard opens the stores and builds the scanner and discovery services.
func NewBoard(ctx context.Context, conf config.Config, logger *zap.Logger, opts ...BoardOption) (*Board, error) {
	var o boardOptions
	for _, opt := range opts {
		opt(&o)
	}

	b := &Board{Config: conf, logger: logger}

	repo, closeRepo, err := NewWalletRepository(ctx, conf.Storage, o.autoReload, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open wallet store")
	}
	b.Wallets = repo
	b.closers = append(b.closers, closeRepo)

	cache, err := txcache.NewStore(conf.Storage.TxCacheDir)
	if err != nil {
		b.Close()
		return nil, errors.Wrap(err, "failed to open transaction cache")
	}

	journal, err := scanjournal.NewWALStore(conf.Storage.JournalDir)
	if err != nil {
		b.Close()
		return nil, errors.Wrap(err, "failed to open scan journal")
	}
	b.Journal = journal
	b.closers = append(b.closers, journal.Close)

	scanOpts := []scanner.Option{scanner.WithCache(cache), scanner.WithJournal(journal)}
	if conf.NATS.URL != "" {
		pub, err := natspub.Connect(conf.NATS.URL, conf.NATS.Subject, logger)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Publisher = pub
		logger.Info("publishing scan events to NATS",
			zap.String("subject", pub.Subject()),
			zap.Bool("ready", pub.Ready()),
			zap.String("status", pub.Status().String()))
		b.closers = append(b.closers, pub.Close)
		scanOpts = append(scanOpts, scanner.WithPublisher(pub))
	}

	if conf.Explorer.APIKey == "" {
		logger.Warn("no explorer API key configured, requests are anonymous", zap.String("env", config.EnvAPIKey))
	}

	policy := NewRetryPolicy(conf.Explorer)
	b.Explorer = NewExplorerClient(conf.Explorer)
	f := fetcher.New(b.Explorer, logger,
		fetcher.WithRetrier(policy.NewRetrier()),
		fetcher.WithMaxPages(conf.Scan.MaxPages),
	)

	b.Scanner = scanner.New(repo, b.Explorer, f, NewAggregator(conf.Classifier, logger), scanner.Config{
		Concurrency:  conf.Scan.Concurrency,
		SaveEvery:    conf.Scan.SaveEvery,
		BatchDelay:   conf.Scan.BatchDelay,
		MaxPages:     conf.Scan.MaxPages,
		LiveMaxPages: conf.Scan.LiveMaxPages,
	}, logger, scanOpts...)

	b.Names = discovery.NewNameService(b.Explorer, repo, policy.NewRetrier(),
		conf.Discovery.NameContract, conf.Discovery.MaxPages, logger)

	return b, nil
}

// Close releases stores and connections in reverse order of opening.
func (b *Board) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			b.logger.Warn("failed to close component", zap.Error(err))
		}
	}
	b.closers = nil
}

// Serve runs the dashboard and, when withScanner is set, the batch loop next to it.
func (b *Board) Serve(ctx context.Context, withScanner bool) error {
	srv := dashboard.NewServer(b.Config.Dashboard.Addr, b.Wallets, b.Scanner, b.Journal)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.logger.Info("dashboard listening", zap.String("addr", b.Config.Dashboard.Addr), zap.Strings("tls_domains", b.Config.Dashboard.TLSDomains))
		if len(b.Config.Dashboard.TLSDomains) > 0 {
			return srv.StartWithAutoTLS(ctx, b.Config.Dashboard.TLSDomains, b.Config.Dashboard.CertCacheDir)
		}
		return srv.Start(ctx)
	})
	if withScanner {
		g.Go(func() error {
			err := b.Scanner.Loop(ctx, b.Config.Scan.Interval)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

// DiscoveryReport summarizes one discovery pass.
type DiscoveryReport struct {
	Seeded int
	Names  *discovery.NameReport
}

// Discover imports the seed file when it exists and, when withNames is set,
// walks the name-service collection.
func (b *Board) Discover(ctx context.Context, seedPath string, withNames bool) (*DiscoveryReport, error) {
	if seedPath == "" {
		seedPath = b.Config.Discovery.SeedFile
	}

	report := &DiscoveryReport{}
	if _, err := os.Stat(seedPath); err == nil {
		n, err := discovery.ImportSeedFile(ctx, b.Wallets, seedPath, b.logger)
		if err != nil {
			return nil, err
		}
		report.Seeded = n
	} else {
		b.logger.Info("no seed file, skipping import", zap.String("path", seedPath))
	}

	if withNames {
		names, err := b.Names.Sync(ctx)
		if err != nil {
			return report, err
		}
		report.Names = names
	}

	return report, nil
}

// RepairReport summarizes one maintenance pass.
type RepairReport struct {
	Removed int
	Reset   int
}

// Repair drops denylisted wallets and queues broken records for a full rescan.
func (b *Board) Repair(ctx context.Context) (*RepairReport, error) {
	deny := discovery.Denylist{Names: b.Config.Discovery.DenyNames, Addresses: b.Config.Discovery.DenyAddresses}

	removed, err := discovery.ApplyDenylist(ctx, b.Wallets, deny, b.logger)
	if err != nil {
		return nil, err
	}
	reset, err := discovery.RepairBroken(ctx, b.Wallets, b.logger)
	if err != nil {
		return nil, err
	}

	return &RepairReport{Removed: removed, Reset: reset}, nil
}
