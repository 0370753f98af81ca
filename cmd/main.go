// Command ipboard maintains a leaderboard of ".ip" wallets on Story mainnet.
// It scans wallet histories through the Storyscan explorer, keeps windowed
// activity stats in a wallet store and serves them on a dashboard.
//
// Usage:
//
//	ipboard setup                         write config.gen.yaml and .env interactively
//	ipboard discover [--seed Story.txt] [--names=false]
//	ipboard scan [--address 0x...] [--loop]
//	ipboard serve [--with-scanner] [--addr :8080]
//	ipboard repair
//	ipboard top [-n 20]
//
// Every command accepts --config config.yaml and --debug.
//
// Environment variables:
//
//	STORYSCAN_API_KEY   explorer API key (optional, anonymous requests are rate limited harder)
//	REDIS_PASSWORD      password for the redis wallet store
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/ipboard/config"
	"github.com/vadiminshakov/ipboard/internal"
	"github.com/vadiminshakov/ipboard/internal/report"
	"github.com/vadiminshakov/ipboard/internal/setup"
)

const usage = `usage: ipboard <command> [flags]

commands:
  setup      run the configuration wizard
  discover   import the seed list and walk the .ip name service
  scan       scan every stored wallet, or one with --address
  serve      run the dashboard
  repair     remove denylisted wallets and queue broken ones for a rescan
  top        print the leaderboard
`

type common struct {
	configPath string
	debug      bool
	overrides  config.Overrides
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "path to yaml config, example: config.yaml")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging")
}

func (c *common) load() (config.Config, *zap.Logger, error) {
	conf, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := c.overrides.Apply(&conf); err != nil {
		return config.Config{}, nil, err
	}

	var logger *zap.Logger
	if c.debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return config.Config{}, nil, err
	}

	return conf, logger, nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "setup":
		err = setup.RunTUI(".")
	case "discover":
		err = runDiscover(ctx, args)
	case "scan":
		err = runScan(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "repair":
		err = runRepair(ctx, args)
	case "top":
		err = runTop(ctx, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func openBoard(ctx context.Context, c *common, opts ...internal.BoardOption) (*internal.Board, *zap.Logger, error) {
	conf, logger, err := c.load()
	if err != nil {
		return nil, nil, err
	}

	board, err := internal.NewBoard(ctx, conf, logger, opts...)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}

	return board, logger, nil
}

func runDiscover(ctx context.Context, args []string) error {
	var c common
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	c.register(fs)
	c.overrides.RegisterStoreFlags(fs)
	seed := fs.String("seed", "", "seed list of addresses, one per line, example: Story.txt")
	names := fs.Bool("names", true, "walk the .ip name-service collection")
	_ = fs.Parse(args)

	board, logger, err := openBoard(ctx, &c)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer board.Close()

	rep, err := board.Discover(ctx, *seed, *names)
	if err != nil {
		return err
	}

	fields := []zap.Field{zap.Int("seeded", rep.Seeded)}
	if rep.Names != nil {
		fields = append(fields, zap.Int("names_added", rep.Names.Added), zap.Int("names_renamed", rep.Names.Renamed))
	}
	logger.Info("discovery finished", fields...)
	return nil
}

func runScan(ctx context.Context, args []string) error {
	var c common
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	c.register(fs)
	c.overrides.RegisterScanFlags(fs)
	address := fs.String("address", "", "scan only this wallet, example: 0xabc...")
	loop := fs.Bool("loop", false, "keep scanning, pausing --interval between runs")
	_ = fs.Parse(args)

	board, logger, err := openBoard(ctx, &c)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer board.Close()

	if *address != "" {
		event, err := board.Scanner.ScanAddress(ctx, *address)
		if err != nil {
			return err
		}
		logger.Info("wallet scanned",
			zap.String("address", event.Address),
			zap.String("status", string(event.Status)),
			zap.Int("new_transactions", event.NewTransactions),
			zap.Int64("transaction_count", event.TransactionCount),
		)
		return nil
	}

	if *loop {
		return board.Scanner.Loop(ctx, board.Config.Scan.Interval)
	}

	summary, err := board.Scanner.Run(ctx)
	if summary != nil {
		logger.Info("scan finished",
			zap.String("run_id", summary.RunID),
			zap.Int("scanned", summary.Scanned),
			zap.Int("total", summary.Total),
			zap.Duration("duration", summary.Duration),
		)
	}
	return err
}

func runServe(ctx context.Context, args []string) error {
	var c common
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	c.register(fs)
	c.overrides.RegisterServeFlags(fs)
	withScanner := fs.Bool("with-scanner", false, "run the batch scanner loop in the same process")
	_ = fs.Parse(args)

	board, logger, err := openBoard(ctx, &c, internal.WithAutoReload())
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer board.Close()

	return board.Serve(ctx, *withScanner)
}

func runRepair(ctx context.Context, args []string) error {
	var c common
	fs := flag.NewFlagSet("repair", flag.ExitOnError)
	c.register(fs)
	c.overrides.RegisterStoreFlags(fs)
	_ = fs.Parse(args)

	board, logger, err := openBoard(ctx, &c)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer board.Close()

	rep, err := board.Repair(ctx)
	if err != nil {
		return err
	}
	logger.Info("repair finished", zap.Int("removed", rep.Removed), zap.Int("reset", rep.Reset))
	return nil
}

func runTop(ctx context.Context, args []string) error {
	var c common
	fs := flag.NewFlagSet("top", flag.ExitOnError)
	c.register(fs)
	c.overrides.RegisterStoreFlags(fs)
	n := fs.Int("n", 20, "number of wallets to print")
	_ = fs.Parse(args)

	conf, logger, err := c.load()
	if err != nil {
		return err
	}
	defer logger.Sync()

	repo, closeRepo, err := internal.NewWalletRepository(ctx, conf.Storage, false, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	records, err := repo.ListAll(ctx)
	if err != nil {
		return err
	}

	fmt.Println(report.RenderTop(records, *n, time.Now()))
	return nil
}
