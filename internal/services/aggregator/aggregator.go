package aggregator

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/ipboard/internal/domain"
)

var minDisplay = decimal.New(1, -2)

type txClassifier interface {
	Classify(tx domain.Transaction) domain.Classification
}

// Aggregator folds classified transactions into per-window statistics.
type Aggregator struct {
	classifier txClassifier
	windows    []domain.Window
}

// New creates an Aggregator over domain.DefaultWindows.
func New(c txClassifier) *Aggregator {
	return &Aggregator{
		classifier: c,
		windows:    domain.DefaultWindows(),
	}
}

// Windows returns the window set in use.
func (a *Aggregator) Windows() []domain.Window {
	return a.windows
}

// Aggregate classifies txs and renders stats for every window ending at now.
func (a *Aggregator) Aggregate(txs []domain.Transaction, now time.Time) map[string]domain.WindowStats {
	return Render(a.Tallies(a.Classify(txs), now))
}

// Classify attaches a classification to each transaction, keeping order.
func (a *Aggregator) Classify(txs []domain.Transaction) []domain.ClassifiedTransaction {
	out := make([]domain.ClassifiedTransaction, 0, len(txs))
	for _, tx := range txs {
		out = append(out, domain.ClassifiedTransaction{
			Hash:           tx.Hash,
			Timestamp:      tx.Timestamp,
			Value:          tx.Value,
			Classification: a.classifier.Classify(tx),
		})
	}

	return out
}

// Tallies counts txs into every window. Spam is skipped.
func (a *Aggregator) Tallies(txs []domain.ClassifiedTransaction, now time.Time) map[string]Tally {
	tallies := make(map[string]Tally, len(a.windows))
	for _, w := range a.windows {
		var t Tally
		for _, tx := range txs {
			if w.Contains(tx.Timestamp, now) {
				t.Add(tx)
			}
		}
		tallies[w.Label] = t
	}

	return tallies
}

// Render formats tallies into persisted stats.
func Render(tallies map[string]Tally) map[string]domain.WindowStats {
	stats := make(map[string]domain.WindowStats, len(tallies))
	for label, t := range tallies {
		stats[label] = t.Stats()
	}

	return stats
}

// FormatVolume renders wei in native units: "0 IP", "<0.01 IP", or
// the value rounded to two places with thousands grouping, like "1,234.5 IP".
func FormatVolume(wei decimal.Decimal) string {
	if wei.Sign() <= 0 {
		return "0 " + domain.VolumeUnit
	}

	units := wei.Shift(-18)
	if units.LessThan(minDisplay) {
		return "<0.01 " + domain.VolumeUnit
	}

	rounded := units.Round(2)
	whole := rounded.Truncate(0)

	var b strings.Builder
	b.WriteString(humanize.BigComma(whole.BigInt()))
	if frac := rounded.Sub(whole); !frac.IsZero() {
		// "0.50" -> ".5"
		b.WriteString(strings.TrimRight(frac.StringFixed(2), "0")[1:])
	}
	b.WriteString(" ")
	b.WriteString(domain.VolumeUnit)

	return b.String()
}
