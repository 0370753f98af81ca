package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/ipboard/internal/clients"
	"github.com/vadiminshakov/ipboard/internal/services/classifier"
	"github.com/vadiminshakov/ipboard/internal/services/discovery"
	"github.com/vadiminshakov/ipboard/internal/storage/wallets"
)

const (
	// EnvAPIKey holds the explorer API key. It is never read from yaml.
	EnvAPIKey = "STORYSCAN_API_KEY"
	// EnvRedisPassword holds the redis password for the redis backend.
	EnvRedisPassword = "REDIS_PASSWORD"

	BackendJSON  = "json"
	BackendRedis = "redis"
)

var weiPerUnit = decimal.New(1, 18)

type Config struct {
	Explorer   ExplorerConfig
	Storage    StorageConfig
	Scan       ScanConfig
	Classifier ClassifierConfig
	Discovery  DiscoveryConfig
	Dashboard  DashboardConfig
	NATS       NATSConfig
}

type ExplorerConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

type StorageConfig struct {
	Backend       string
	Path          string
	TxCacheDir    string
	JournalDir    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
}

type ScanConfig struct {
	Concurrency  int
	SaveEvery    int
	BatchDelay   time.Duration
	MaxPages     int
	LiveMaxPages int
	Interval     time.Duration
}

type ClassifierConfig struct {
	ValueThresholdWei decimal.Decimal
	AssetContracts    []string
	SwapRouterHints   []string
}

type DiscoveryConfig struct {
	NameContract  string
	MaxPages      int
	SeedFile      string
	DenyNames     []string
	DenyAddresses []string
}

type DashboardConfig struct {
	Addr         string
	TLSDomains   []string
	CertCacheDir string
}

type NATSConfig struct {
	URL     string
	Subject string
}

// ConfigTmp is the yaml layout. Numbers are kept as strings so that empty
// values fall back to defaults.
type ConfigTmp struct {
	Explorer   ExplorerTmp   `yaml:"explorer"`
	Storage    StorageTmp    `yaml:"storage"`
	Scan       ScanTmp       `yaml:"scan"`
	Classifier ClassifierTmp `yaml:"classifier"`
	Discovery  DiscoveryTmp  `yaml:"discovery"`
	Dashboard  DashboardTmp  `yaml:"dashboard"`
	NATS       NATSTmp       `yaml:"nats,omitempty"`
}

type ExplorerTmp struct {
	BaseURL       string        `yaml:"base_url,omitempty"`
	Timeout       time.Duration `yaml:"timeout,omitempty"`
	MaxRetriesStr string        `yaml:"max_retries,omitempty"`
}

type StorageTmp struct {
	Backend    string   `yaml:"backend,omitempty"`
	Path       string   `yaml:"path,omitempty"`
	TxCacheDir string   `yaml:"tx_cache_dir,omitempty"`
	JournalDir string   `yaml:"journal_dir,omitempty"`
	Redis      RedisTmp `yaml:"redis,omitempty"`
}

type RedisTmp struct {
	Addr  string `yaml:"addr,omitempty"`
	DBStr string `yaml:"db,omitempty"`
	Key   string `yaml:"key,omitempty"`
}

type ScanTmp struct {
	ConcurrencyStr  string        `yaml:"concurrency,omitempty"`
	SaveEveryStr    string        `yaml:"save_every,omitempty"`
	BatchDelay      time.Duration `yaml:"batch_delay,omitempty"`
	MaxPagesStr     string        `yaml:"max_pages,omitempty"`
	LiveMaxPagesStr string        `yaml:"live_max_pages,omitempty"`
	Interval        time.Duration `yaml:"interval,omitempty"`
}

type ClassifierTmp struct {
	ValueThresholdWei string   `yaml:"value_threshold_wei,omitempty"`
	ValueThresholdUSD string   `yaml:"value_threshold_usd,omitempty"`
	ReferencePrice    string   `yaml:"reference_price,omitempty"`
	AssetContracts    []string `yaml:"asset_contracts,omitempty"`
	SwapRouterHints   []string `yaml:"swap_router_hints,omitempty"`
}

type DiscoveryTmp struct {
	NameContract  string   `yaml:"name_contract,omitempty"`
	MaxPagesStr   string   `yaml:"max_pages,omitempty"`
	SeedFile      string   `yaml:"seed_file,omitempty"`
	DenyNames     []string `yaml:"deny_names,omitempty"`
	DenyAddresses []string `yaml:"deny_addresses,omitempty"`
}

type DashboardTmp struct {
	Addr         string   `yaml:"addr,omitempty"`
	TLSDomains   []string `yaml:"tls_domains,omitempty"`
	CertCacheDir string   `yaml:"cert_cache_dir,omitempty"`
}

type NATSTmp struct {
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// Default returns the configuration used without a yaml file.
func Default() Config {
	deny := discovery.DefaultDenylist()
	rules := classifier.DefaultRules()

	return Config{
		Explorer: ExplorerConfig{
			BaseURL:    clients.DefaultExplorerURL,
			Timeout:    15 * time.Second,
			MaxRetries: 5,
		},
		Storage: StorageConfig{
			Backend:    BackendJSON,
			Path:       wallets.DefaultPath,
			TxCacheDir: "./data/txcache",
			JournalDir: "./wal/scans",
			RedisAddr:  "localhost:6379",
			RedisKey:   wallets.DefaultRedisKey,
		},
		Scan: ScanConfig{
			Concurrency:  10,
			SaveEvery:    20,
			BatchDelay:   200 * time.Millisecond,
			MaxPages:     100,
			LiveMaxPages: 10,
			Interval:     time.Hour,
		},
		Classifier: ClassifierConfig{
			ValueThresholdWei: rules.ValueThresholdWei,
			AssetContracts:    rules.AssetContracts,
			SwapRouterHints:   rules.SwapRouterHints,
		},
		Discovery: DiscoveryConfig{
			NameContract:  discovery.DefaultNameContract,
			MaxPages:      1000,
			SeedFile:      "Story.txt",
			DenyNames:     deny.Names,
			DenyAddresses: deny.Addresses,
		},
		Dashboard: DashboardConfig{
			Addr:         ":8080",
			CertCacheDir: "cert-cache",
		},
	}
}

// Load reads path (an empty path uses Default) and the environment. A .env
// file in the working directory is loaded first when present.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		f, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		var tmp ConfigTmp
		if err := yaml.Unmarshal(f, &tmp); err != nil {
			return Config{}, fmt.Errorf("failed to parse yaml config %s: %w", path, err)
		}
		if cfg, err = fromTmp(tmp); err != nil {
			return Config{}, err
		}
	}

	cfg.Explorer.APIKey = strings.TrimSpace(os.Getenv(EnvAPIKey))
	cfg.Storage.RedisPassword = os.Getenv(EnvRedisPassword)

	return cfg, nil
}

func fromTmp(c ConfigTmp) (Config, error) {
	cfg := Default()
	var err error

	setString(&cfg.Explorer.BaseURL, c.Explorer.BaseURL)
	setDuration(&cfg.Explorer.Timeout, c.Explorer.Timeout)
	if cfg.Explorer.MaxRetries, err = parseInt(c.Explorer.MaxRetriesStr, cfg.Explorer.MaxRetries, 1, "explorer.max_retries"); err != nil {
		return Config{}, err
	}

	switch backend := strings.ToLower(c.Storage.Backend); backend {
	case "":
	case BackendJSON, BackendRedis:
		cfg.Storage.Backend = backend
	default:
		return Config{}, fmt.Errorf("incorrect 'storage.backend' param in yaml config: %s (must be json or redis)", c.Storage.Backend)
	}
	setString(&cfg.Storage.Path, c.Storage.Path)
	setString(&cfg.Storage.TxCacheDir, c.Storage.TxCacheDir)
	setString(&cfg.Storage.JournalDir, c.Storage.JournalDir)
	setString(&cfg.Storage.RedisAddr, c.Storage.Redis.Addr)
	setString(&cfg.Storage.RedisKey, c.Storage.Redis.Key)
	if cfg.Storage.RedisDB, err = parseInt(c.Storage.Redis.DBStr, cfg.Storage.RedisDB, 0, "storage.redis.db"); err != nil {
		return Config{}, err
	}

	if cfg.Scan.Concurrency, err = parseInt(c.Scan.ConcurrencyStr, cfg.Scan.Concurrency, 1, "scan.concurrency"); err != nil {
		return Config{}, err
	}
	if cfg.Scan.SaveEvery, err = parseInt(c.Scan.SaveEveryStr, cfg.Scan.SaveEvery, 1, "scan.save_every"); err != nil {
		return Config{}, err
	}
	if cfg.Scan.MaxPages, err = parseInt(c.Scan.MaxPagesStr, cfg.Scan.MaxPages, 1, "scan.max_pages"); err != nil {
		return Config{}, err
	}
	if cfg.Scan.LiveMaxPages, err = parseInt(c.Scan.LiveMaxPagesStr, cfg.Scan.LiveMaxPages, 1, "scan.live_max_pages"); err != nil {
		return Config{}, err
	}
	setDuration(&cfg.Scan.BatchDelay, c.Scan.BatchDelay)
	setDuration(&cfg.Scan.Interval, c.Scan.Interval)

	if cfg.Classifier.ValueThresholdWei, err = parseThreshold(c.Classifier, cfg.Classifier.ValueThresholdWei); err != nil {
		return Config{}, err
	}
	if len(c.Classifier.AssetContracts) > 0 {
		cfg.Classifier.AssetContracts = c.Classifier.AssetContracts
	}
	if len(c.Classifier.SwapRouterHints) > 0 {
		cfg.Classifier.SwapRouterHints = c.Classifier.SwapRouterHints
	}

	setString(&cfg.Discovery.NameContract, c.Discovery.NameContract)
	setString(&cfg.Discovery.SeedFile, c.Discovery.SeedFile)
	if cfg.Discovery.MaxPages, err = parseInt(c.Discovery.MaxPagesStr, cfg.Discovery.MaxPages, 1, "discovery.max_pages"); err != nil {
		return Config{}, err
	}
	if len(c.Discovery.DenyNames) > 0 {
		cfg.Discovery.DenyNames = c.Discovery.DenyNames
	}
	if len(c.Discovery.DenyAddresses) > 0 {
		cfg.Discovery.DenyAddresses = c.Discovery.DenyAddresses
	}

	setString(&cfg.Dashboard.Addr, c.Dashboard.Addr)
	setString(&cfg.Dashboard.CertCacheDir, c.Dashboard.CertCacheDir)
	cfg.Dashboard.TLSDomains = c.Dashboard.TLSDomains

	cfg.NATS = NATSConfig{URL: c.NATS.URL, Subject: c.NATS.Subject}

	return cfg, nil
}

// parseThreshold prefers an explicit wei value; otherwise a USD threshold is
// converted at the reference price.
func parseThreshold(c ClassifierTmp, fallback decimal.Decimal) (decimal.Decimal, error) {
	if c.ValueThresholdWei != "" {
		wei, err := decimal.NewFromString(c.ValueThresholdWei)
		if err != nil || !wei.IsPositive() {
			return decimal.Decimal{}, fmt.Errorf("incorrect 'classifier.value_threshold_wei' param in yaml config (must be a positive integer), error: %v", err)
		}
		return wei.Truncate(0), nil
	}
	if c.ValueThresholdUSD == "" {
		return fallback, nil
	}

	usd, err := decimal.NewFromString(c.ValueThresholdUSD)
	if err != nil || !usd.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("incorrect 'classifier.value_threshold_usd' param in yaml config (must be a positive decimal), error: %v", err)
	}
	price, err := decimal.NewFromString(c.ReferencePrice)
	if err != nil || !price.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("incorrect 'classifier.reference_price' param in yaml config (required with value_threshold_usd), error: %v", err)
	}

	return usd.Div(price).Mul(weiPerUnit).Truncate(0), nil
}

func parseInt(raw string, fallback, minValue int, name string) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("incorrect '%s' param in yaml config (must be an integer), error: %w", name, err)
	}
	if n < minValue {
		return 0, fmt.Errorf("incorrect '%s' param in yaml config (must be at least %d)", name, minValue)
	}
	return n, nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}
