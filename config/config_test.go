package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvAPIKey, " key-from-env ")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "key-from-env", cfg.Explorer.APIKey)
	assert.Equal(t, BackendJSON, cfg.Storage.Backend)
	assert.Equal(t, 10, cfg.Scan.Concurrency)
	assert.Equal(t, 20, cfg.Scan.SaveEvery)
	assert.Equal(t, "63000000000000000", cfg.Classifier.ValueThresholdWei.String())
	assert.NotEmpty(t, cfg.Discovery.DenyNames)
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvRedisPassword, "hunter2")

	path := writeConfig(t, `
explorer:
  base_url: http://localhost:4000/api/v2
  timeout: 3s
  max_retries: "2"
storage:
  backend: redis
  redis:
    addr: redis:6379
    db: "4"
scan:
  concurrency: "4"
  batch_delay: 1s
  live_max_pages: "5"
classifier:
  value_threshold_wei: "1000"
  swap_router_hints: [uniswap]
dashboard:
  addr: ":9090"
  tls_domains: [board.example.com]
nats:
  url: nats://127.0.0.1:4222
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:4000/api/v2", cfg.Explorer.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Explorer.Timeout)
	assert.Equal(t, 2, cfg.Explorer.MaxRetries)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "redis:6379", cfg.Storage.RedisAddr)
	assert.Equal(t, 4, cfg.Storage.RedisDB)
	assert.Equal(t, "hunter2", cfg.Storage.RedisPassword)
	assert.Equal(t, 4, cfg.Scan.Concurrency)
	assert.Equal(t, 20, cfg.Scan.SaveEvery)
	assert.Equal(t, time.Second, cfg.Scan.BatchDelay)
	assert.Equal(t, 5, cfg.Scan.LiveMaxPages)
	assert.Equal(t, "1000", cfg.Classifier.ValueThresholdWei.String())
	assert.Equal(t, []string{"uniswap"}, cfg.Classifier.SwapRouterHints)
	assert.NotEmpty(t, cfg.Classifier.AssetContracts)
	assert.Equal(t, ":9090", cfg.Dashboard.Addr)
	assert.Equal(t, []string{"board.example.com"}, cfg.Dashboard.TLSDomains)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
}

func TestLoad_ThresholdFromUSD(t *testing.T) {
	path := writeConfig(t, `
classifier:
  value_threshold_usd: "0.5"
  reference_price: "2"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "250000000000000000", cfg.Classifier.ValueThresholdWei.String())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{name: "unknown backend", body: "storage:\n  backend: mongo\n", msg: "storage.backend"},
		{name: "zero concurrency", body: "scan:\n  concurrency: \"0\"\n", msg: "scan.concurrency"},
		{name: "non numeric pages", body: "scan:\n  max_pages: lots\n", msg: "scan.max_pages"},
		{name: "negative wei", body: "classifier:\n  value_threshold_wei: \"-1\"\n", msg: "classifier.value_threshold_wei"},
		{name: "usd without price", body: "classifier:\n  value_threshold_usd: \"0.1\"\n", msg: "classifier.reference_price"},
		{name: "broken yaml", body: "scan: [", msg: "failed to parse yaml config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestOverrides_Apply(t *testing.T) {
	var o Overrides
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	o.RegisterServeFlags(fs)
	require.NoError(t, fs.Parse([]string{"--concurrency", "3", "--addr", ":7000", "--store", "w.json", "--interval", "10m"}))

	cfg := Default()
	require.NoError(t, o.Apply(&cfg))

	assert.Equal(t, 3, cfg.Scan.Concurrency)
	assert.Equal(t, ":7000", cfg.Dashboard.Addr)
	assert.Equal(t, "w.json", cfg.Storage.Path)
	assert.Equal(t, 10*time.Minute, cfg.Scan.Interval)
	assert.Equal(t, 100, cfg.Scan.MaxPages)

	bad := Overrides{Backend: "sqlite"}
	assert.Error(t, bad.Apply(&cfg))
}
