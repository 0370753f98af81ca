package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// UnknownName is shown for wallets without a resolved ".ip" domain.
	UnknownName = "Unknown"
	// DomainSuffix identifies names issued by the chain's name service.
	DomainSuffix = ".ip"
	// VolumeUnit is the native token label used in rendered volumes.
	VolumeUnit = "IP"
)

// WindowStats is the per-window summary persisted in last_stats.
type WindowStats struct {
	Count        int64  `json:"count"`
	Volume       string `json:"volume"`
	SwapCount    int64  `json:"swap_count"`
	LicenseCount int64  `json:"license_count"`
	AssetCount   int64  `json:"asset_count"`
	OtherCount   int64  `json:"other_count"`
}

// WalletRecord is one leaderboard row. Timestamps are unix milliseconds.
type WalletRecord struct {
	Address              string                 `json:"address"`
	Name                 string                 `json:"name"`
	Balance              string                 `json:"balance"`
	NetWorthUSD          float64                `json:"net_worth_usd"`
	TransactionCount     int64                  `json:"transaction_count"`
	RawTransactionCount  int64                  `json:"raw_transaction_count"`
	LastActive           int64                  `json:"last_active"`
	LastScannedTimestamp int64                  `json:"last_scanned_timestamp"`
	KnownSpamCount       int64                  `json:"known_spam_count"`
	AllTimeVolumeWei     string                 `json:"all_time_volume_wei,omitempty"`
	LastStats            map[string]WindowStats `json:"last_stats"`
	FirstSeenTx          string                 `json:"first_seen_tx,omitempty"`
	UpdatedAt            int64                  `json:"updated_at,omitempty"`
}

// NewWalletRecord returns a zero-valued record for a newly discovered address.
func NewWalletRecord(address, name string) WalletRecord {
	if strings.TrimSpace(name) == "" {
		name = UnknownName
	}

	return WalletRecord{
		Address:   address,
		Name:      name,
		Balance:   "0.00",
		LastStats: EmptyStats(DefaultWindows()),
	}
}

// EmptyStats returns zero stats for every window.
func EmptyStats(windows []Window) map[string]WindowStats {
	stats := make(map[string]WindowStats, len(windows))
	for _, w := range windows {
		stats[w.Label] = WindowStats{Volume: "0 " + VolumeUnit}
	}

	return stats
}

// Key is the case-normalized identity of the record.
func (r WalletRecord) Key() string {
	return AddressKey(r.Address)
}

// IsScanned reports whether at least one scan cycle completed.
func (r WalletRecord) IsScanned() bool {
	return r.LastScannedTimestamp > 0
}

// HasDomainName reports whether the record carries a resolved ".ip" name.
func (r WalletRecord) HasDomainName() bool {
	return strings.HasSuffix(strings.ToLower(r.Name), DomainSuffix)
}

// AdvanceWatermark moves the scan watermark forward, never backward.
func (r *WalletRecord) AdvanceWatermark(ms int64) {
	if ms > r.LastScannedTimestamp {
		r.LastScannedTimestamp = ms
	}
}

// TouchActive records activity at ms if it is newer than what is stored.
func (r *WalletRecord) TouchActive(ms int64) {
	if ms > r.LastActive {
		r.LastActive = ms
	}
}

// RecountTransactions derives the non-spam lifetime count.
func (r *WalletRecord) RecountTransactions() {
	r.TransactionCount = r.RawTransactionCount - r.KnownSpamCount
	if r.TransactionCount < 0 {
		r.TransactionCount = 0
	}
}

// NeedsRescan reports records that claim activity but hold no aggregated stats.
func (r WalletRecord) NeedsRescan() bool {
	return r.TransactionCount > 0 && r.LastStats[WindowAll].Count == 0
}

// AllTimeVolume parses the all-time wei accumulator. Unparseable values read as zero.
func (r WalletRecord) AllTimeVolume() decimal.Decimal {
	if r.AllTimeVolumeWei == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(r.AllTimeVolumeWei)
	if err != nil {
		return decimal.Zero
	}

	return v
}

// FillMissingStats adds zero stats for windows a legacy record lacks.
func (r *WalletRecord) FillMissingStats(windows []Window) {
	if r.LastStats == nil {
		r.LastStats = make(map[string]WindowStats, len(windows))
	}
	for _, w := range windows {
		if _, ok := r.LastStats[w.Label]; !ok {
			r.LastStats[w.Label] = WindowStats{Volume: "0 " + VolumeUnit}
		}
	}
}

// Clone returns a copy that shares no maps with r.
func (r WalletRecord) Clone() WalletRecord {
	c := r
	if r.LastStats != nil {
		c.LastStats = make(map[string]WindowStats, len(r.LastStats))
		for k, v := range r.LastStats {
			c.LastStats[k] = v
		}
	}

	return c
}
