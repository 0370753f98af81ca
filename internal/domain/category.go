package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category is the semantic bucket of a non-spam transaction.
type Category string

const (
	CategorySwap    Category = "swap"
	CategoryLicense Category = "license"
	CategoryAsset   Category = "asset"
	CategoryOther   Category = "other"
)

// Classification is the verdict for a single transaction.
// Category is set for spam too, but spam is never aggregated.
type Classification struct {
	IsSpam        bool     `json:"is_spam"`
	Category      Category `json:"category"`
	IsInteraction bool     `json:"is_interaction"`
	IsHighValue   bool     `json:"is_high_value"`
}

// CountsTowardVolume reports whether the transaction value is economically meaningful flow.
func (c Classification) CountsTowardVolume() bool {
	return c.IsInteraction || c.IsHighValue
}

// ClassifiedTransaction is the compact form kept in the rolling cache.
type ClassifiedTransaction struct {
	Hash      string          `json:"hash"`
	Timestamp time.Time       `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
	Classification
}
