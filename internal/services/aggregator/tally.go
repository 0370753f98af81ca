package aggregator

import (
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/ipboard/internal/domain"
)

// Tally holds the raw counters behind WindowStats, so all-time stats can be
// accumulated across scans without re-reading old history.
type Tally struct {
	Count        int64
	SwapCount    int64
	LicenseCount int64
	AssetCount   int64
	OtherCount   int64
	VolumeWei    decimal.Decimal
}

// Add counts one transaction. Spam is ignored.
func (t *Tally) Add(tx domain.ClassifiedTransaction) {
	if tx.IsSpam {
		return
	}

	t.Count++
	switch tx.Category {
	case domain.CategorySwap:
		t.SwapCount++
	case domain.CategoryLicense:
		t.LicenseCount++
	case domain.CategoryAsset:
		t.AssetCount++
	default:
		t.OtherCount++
	}

	if tx.CountsTowardVolume() {
		t.VolumeWei = t.VolumeWei.Add(tx.Value)
	}
}

// Merge returns the sum of two tallies.
func (t Tally) Merge(o Tally) Tally {
	return Tally{
		Count:        t.Count + o.Count,
		SwapCount:    t.SwapCount + o.SwapCount,
		LicenseCount: t.LicenseCount + o.LicenseCount,
		AssetCount:   t.AssetCount + o.AssetCount,
		OtherCount:   t.OtherCount + o.OtherCount,
		VolumeWei:    t.VolumeWei.Add(o.VolumeWei),
	}
}

// Stats renders the tally.
func (t Tally) Stats() domain.WindowStats {
	return domain.WindowStats{
		Count:        t.Count,
		Volume:       FormatVolume(t.VolumeWei),
		SwapCount:    t.SwapCount,
		LicenseCount: t.LicenseCount,
		AssetCount:   t.AssetCount,
		OtherCount:   t.OtherCount,
	}
}

// TallyFromStats restores a tally from persisted stats and its wei accumulator.
func TallyFromStats(s domain.WindowStats, volumeWei decimal.Decimal) Tally {
	return Tally{
		Count:        s.Count,
		SwapCount:    s.SwapCount,
		LicenseCount: s.LicenseCount,
		AssetCount:   s.AssetCount,
		OtherCount:   s.OtherCount,
		VolumeWei:    volumeWei,
	}
}
