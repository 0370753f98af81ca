package config

import (
	"flag"
	"fmt"
	"time"
)

// Overrides are command line values applied on top of the loaded config.
// Zero values leave the config untouched.
type Overrides struct {
	Store       string
	Backend     string
	Concurrency int
	MaxPages    int
	BatchDelay  time.Duration
	Interval    time.Duration
	Addr        string
	NATSURL     string
}

// RegisterScanFlags binds the flags shared by commands that scan wallets.
func (o *Overrides) RegisterScanFlags(fs *flag.FlagSet) {
	o.registerStoreFlags(fs)
	fs.IntVar(&o.Concurrency, "concurrency", 0, "wallets scanned in parallel, example: 10")
	fs.IntVar(&o.MaxPages, "maxpages", 0, "history pages fetched per wallet per scan, example: 100")
	fs.DurationVar(&o.BatchDelay, "batchdelay", 0, "pause between scan batches, example: 200ms")
	fs.DurationVar(&o.Interval, "interval", 0, "pause between full runs in loop mode, example: 1h")
	fs.StringVar(&o.NATSURL, "nats", "", "publish scan events to this nats server, example: nats://127.0.0.1:4222")
}

// RegisterServeFlags binds the dashboard flags.
func (o *Overrides) RegisterServeFlags(fs *flag.FlagSet) {
	o.RegisterScanFlags(fs)
	fs.StringVar(&o.Addr, "addr", "", "dashboard listen address, example: :8080")
}

// RegisterStoreFlags binds only the wallet store flags.
func (o *Overrides) RegisterStoreFlags(fs *flag.FlagSet) {
	o.registerStoreFlags(fs)
}

func (o *Overrides) registerStoreFlags(fs *flag.FlagSet) {
	fs.StringVar(&o.Store, "store", "", "wallet collection file, example: known_domains.json")
	fs.StringVar(&o.Backend, "backend", "", "wallet store backend: json or redis")
}

// Apply validates the overrides and writes the set ones into cfg.
func (o Overrides) Apply(cfg *Config) error {
	switch o.Backend {
	case "":
	case BackendJSON, BackendRedis:
		cfg.Storage.Backend = o.Backend
	default:
		return fmt.Errorf("invalid --backend provided: --backend=%s", o.Backend)
	}
	if o.Concurrency < 0 {
		return fmt.Errorf("invalid --concurrency provided: --concurrency=%d", o.Concurrency)
	}
	if o.MaxPages < 0 {
		return fmt.Errorf("invalid --maxpages provided: --maxpages=%d", o.MaxPages)
	}

	setString(&cfg.Storage.Path, o.Store)
	setString(&cfg.Dashboard.Addr, o.Addr)
	setString(&cfg.NATS.URL, o.NATSURL)
	setDuration(&cfg.Scan.BatchDelay, o.BatchDelay)
	setDuration(&cfg.Scan.Interval, o.Interval)
	if o.Concurrency > 0 {
		cfg.Scan.Concurrency = o.Concurrency
	}
	if o.MaxPages > 0 {
		cfg.Scan.MaxPages = o.MaxPages
	}

	return nil
}
