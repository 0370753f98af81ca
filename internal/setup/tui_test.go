package setup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/ipboard/config"
)

func TestBuildConfig(t *testing.T) {
	a := defaultAnswers()
	a.Backend = config.BackendRedis
	a.RedisAddr = "redis:6379"
	a.TLSDomain = " board.example.com "

	tmp, err := BuildConfig(a)
	require.NoError(t, err)
	assert.Equal(t, "redis:6379", tmp.Storage.Redis.Addr)
	assert.Empty(t, tmp.Storage.Path)
	assert.Equal(t, time.Hour, tmp.Scan.Interval)
	assert.Equal(t, []string{"board.example.com"}, tmp.Dashboard.TLSDomains)

	a.Concurrency = "0"
	_, err = BuildConfig(a)
	assert.Error(t, err)

	a = defaultAnswers()
	a.Interval = "soon"
	_, err = BuildConfig(a)
	assert.Error(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	a := defaultAnswers()
	a.APIKey = "secret-key"
	a.Concurrency = "7"
	a.Interval = "30m"

	path, err := Save(dir, a)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-key")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Scan.Concurrency)
	assert.Equal(t, 30*time.Minute, cfg.Scan.Interval)
	assert.Equal(t, config.BackendJSON, cfg.Storage.Backend)

	envPath := filepath.Join(dir, EnvFile)
	info, err := os.Stat(envPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	env, err := godotenv.Read(envPath)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", env[config.EnvAPIKey])
}

func TestSave_KeepsOtherEnvEntries(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, EnvFile)
	require.NoError(t, os.WriteFile(envPath, []byte("REDIS_PASSWORD=pw\n"), 0600))

	a := defaultAnswers()
	a.APIKey = "k"
	_, err := Save(dir, a)
	require.NoError(t, err)

	env, err := godotenv.Read(envPath)
	require.NoError(t, err)
	assert.Equal(t, "pw", env[config.EnvRedisPassword])
	assert.Equal(t, "k", env[config.EnvAPIKey])
}

func TestSave_NoKeyNoEnvFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Save(dir, defaultAnswers())
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, EnvFile))
	assert.True(t, os.IsNotExist(err))
}

func TestSummaryHidesKey(t *testing.T) {
	a := defaultAnswers()
	a.APIKey = "secret-key"
	s := a.Summary()
	assert.NotContains(t, s, "secret-key")
	assert.Contains(t, s, "API key: set")
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validatePositive("3"))
	assert.Error(t, validatePositive("-1"))
	assert.Error(t, validatePositive("x"))
	assert.NoError(t, validateDuration("90s"))
	assert.Error(t, validateDuration("0s"))
	assert.Error(t, validateNotEmpty("  "))
}
