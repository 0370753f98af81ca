package internal

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vadiminshakov/ipboard/config"
	"github.com/vadiminshakov/ipboard/internal/clients"
	"github.com/vadiminshakov/ipboard/internal/services/aggregator"
	"github.com/vadiminshakov/ipboard/internal/services/classifier"
	"github.com/vadiminshakov/ipboard/internal/services/fetcher"
	"github.com/vadiminshakov/ipboard/internal/storage/wallets"
)

type closeFunc func() error

// NewWalletRepository opens the wallet store selected by the storage backend.
// The returned close function releases the store's connections.
func NewWalletRepository(ctx context.Context, cfg config.StorageConfig, autoReload bool, logger *zap.Logger) (wallets.Repository, closeFunc, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		store, err := wallets.ConnectRedis(ctx, wallets.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.BackendJSON, "":
		var opts []wallets.JSONOption
		if autoReload {
			opts = append(opts, wallets.WithAutoReload())
		}
		store, err := wallets.NewJSONStore(cfg.Path, opts...)
		if err != nil {
			return nil, nil, err
		}
		if n := store.Duplicates(); n > 0 {
			logger.Warn("merged duplicate wallet records on load", zap.String("path", store.Path()), zap.Int("duplicates", n))
		}
		return store, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// NewAggregator builds the classifier rules from config and wraps them in an aggregator.
func NewAggregator(cfg config.ClassifierConfig, logger *zap.Logger) *aggregator.Aggregator {
	rules := classifier.DefaultRules()
	if !cfg.ValueThresholdWei.IsZero() {
		rules.ValueThresholdWei = cfg.ValueThresholdWei
	}
	if len(cfg.AssetContracts) > 0 {
		rules.AssetContracts = cfg.AssetContracts
	}
	if len(cfg.SwapRouterHints) > 0 {
		rules.SwapRouterHints = cfg.SwapRouterHints
	}

	c := classifier.New(rules)
	logger.Debug("classifier configured", zap.String("value_threshold_wei", c.Threshold().String()))

	return aggregator.New(c)
}

// NewRetryPolicy returns the explorer retry policy with the configured budget.
func NewRetryPolicy(cfg config.ExplorerConfig) fetcher.RetryPolicy {
	policy := fetcher.DefaultRetryPolicy()
	if cfg.MaxRetries > 0 {
		policy.MaxRetries = cfg.MaxRetries
	}
	return policy
}

// NewExplorerClient creates the explorer client from config.
func NewExplorerClient(cfg config.ExplorerConfig) *clients.ExplorerClient {
	return clients.NewExplorerClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
}
