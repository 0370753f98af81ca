// Package report renders the leaderboard for terminals.
package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/vadiminshakov/ipboard/internal/domain"
	"github.com/vadiminshakov/ipboard/internal/storage/wallets"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	rankStyle   = cellStyle.Foreground(lipgloss.Color("#626262"))
)

// Headers of the leaderboard table.
var Headers = []string{"#", "Name", "Address", "Txs", "24h", "7d", "30d Volume", "Balance", "Last Active"}

// Rows returns the top n records as table rows, ranked by transaction count.
// n <= 0 returns every record.
func Rows(records []domain.WalletRecord, n int, now time.Time) [][]string {
	sorted := make([]domain.WalletRecord, len(records))
	copy(sorted, records)
	wallets.SortForLeaderboard(sorted)
	if n > 0 && n < len(sorted) {
		sorted = sorted[:n]
	}

	rows := make([][]string, 0, len(sorted))
	for i, r := range sorted {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			r.Name,
			shortAddress(domain.ChecksumAddress(r.Address)),
			humanize.Comma(r.TransactionCount),
			humanize.Comma(r.LastStats["24h"].Count),
			humanize.Comma(r.LastStats["7d"].Count),
			r.LastStats["30d"].Volume,
			r.Balance + " " + domain.VolumeUnit,
			lastActive(r.LastActive, now),
		})
	}

	return rows
}

// RenderTop renders the top n records as a bordered table.
func RenderTop(records []domain.WalletRecord, n int, now time.Time) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#3C3C3C"))).
		Headers(Headers...).
		Rows(Rows(records, n, now)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return rankStyle
			default:
				return cellStyle
			}
		})

	return t.String()
}

func shortAddress(addr string) string {
	if len(addr) < 12 {
		return addr
	}
	return fmt.Sprintf("%s…%s", addr[:6], addr[len(addr)-4:])
}

func lastActive(ms int64, now time.Time) string {
	if ms <= 0 {
		return "never"
	}
	return humanize.RelTime(time.UnixMilli(ms), now, "ago", "from now")
}
