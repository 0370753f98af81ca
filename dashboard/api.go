package dashboard

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/ipboard/internal/domain"
	"github.com/vadiminshakov/ipboard/internal/storage/wallets"
)

// PageSize is the number of wallets per leaderboard page.
const PageSize = 50

// WalletPage is the /api/wallets response.
type WalletPage struct {
	Total int                   `json:"total"`
	Page  int                   `json:"page"`
	Pages int                   `json:"pages"`
	Items []domain.WalletRecord `json:"items"`
}

// WalletDetail is the /api/wallets/{address} response. Source is "cache" or "live".
type WalletDetail struct {
	Source string              `json:"source"`
	Wallet domain.WalletRecord `json:"wallet"`
}

func (s *Server) handleWallets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page := 1
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid page", http.StatusBadRequest)
			return
		}
		page = n
	}

	sortBy := q.Get("sort")
	less, ok := sorters[sortBy]
	if !ok {
		http.Error(w, "invalid sort", http.StatusBadRequest)
		return
	}

	records, err := s.Wallets.ListAll(r.Context())
	if err != nil {
		http.Error(w, "failed to load wallets", http.StatusInternalServerError)
		log.Printf("list wallets: %v", err)
		return
	}

	records = filterWallets(records, q.Get("q"))
	wallets.SortForLeaderboard(records)
	if less != nil {
		sort.SliceStable(records, func(i, j int) bool { return less(records[i], records[j]) })
	}

	resp := WalletPage{
		Total: len(records),
		Page:  page,
		Pages: (len(records) + PageSize - 1) / PageSize,
		Items: []domain.WalletRecord{},
	}
	if start := (page - 1) * PageSize; start < len(records) {
		resp.Items = records[start:min(start+PageSize, len(records))]
	}

	writeJSON(w, resp)
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	addr, err := domain.NormalizeAddress(r.PathValue("address"))
	if err != nil {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}

	rec, err := s.Wallets.Get(r.Context(), addr)
	known := err == nil
	if err != nil && !errors.Is(err, domain.ErrWalletNotFound) {
		log.Printf("get wallet %s: %v", addr, err)
	}

	if known && rec.IsScanned() && !rec.NeedsRescan() {
		writeJSON(w, WalletDetail{Source: "cache", Wallet: rec})
		return
	}

	if s.Live != nil {
		live, err := s.Live.Preview(r.Context(), addr)
		if err == nil {
			writeJSON(w, WalletDetail{Source: "live", Wallet: live})
			return
		}
		log.Printf("live preview %s: %v", addr, err)
	}

	if !known {
		http.Error(w, "wallet not found", http.StatusNotFound)
		return
	}
	writeJSON(w, WalletDetail{Source: "cache", Wallet: rec})
}

func (s *Server) handleKnownDomains(w http.ResponseWriter, r *http.Request) {
	records, err := s.Wallets.ListAll(r.Context())
	if err != nil {
		http.Error(w, "failed to load wallets", http.StatusInternalServerError)
		log.Printf("list wallets: %v", err)
		return
	}
	wallets.SortForLeaderboard(records)
	if records == nil {
		records = []domain.WalletRecord{}
	}

	writeJSON(w, records)
}

// sorters maps the sort parameter to an ordering; nil keeps the leaderboard order.
var sorters = map[string]func(a, b domain.WalletRecord) bool{
	"":             nil,
	"transactions": nil,
	"balance": func(a, b domain.WalletRecord) bool {
		return parseBalance(a.Balance).GreaterThan(parseBalance(b.Balance))
	},
	"net_worth": func(a, b domain.WalletRecord) bool {
		return a.NetWorthUSD > b.NetWorthUSD
	},
	"last_active": func(a, b domain.WalletRecord) bool {
		return a.LastActive > b.LastActive
	},
}

func parseBalance(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}

func filterWallets(records []domain.WalletRecord, query string) []domain.WalletRecord {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return records
	}

	out := records[:0]
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.Name), query) || strings.Contains(r.Key(), query) {
			out = append(out, r)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json response: %v", err)
	}
}
