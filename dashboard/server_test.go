package dashboard

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/ipboard/internal/domain"
	"github.com/vadiminshakov/ipboard/internal/storage/wallets"
)

type fakeLive struct {
	record domain.WalletRecord
	err    error
	calls  int
}

func (f *fakeLive) Preview(_ context.Context, address string) (domain.WalletRecord, error) {
	f.calls++
	if f.err != nil {
		return domain.WalletRecord{}, f.err
	}
	rec := f.record
	rec.Address = address
	return rec, nil
}

type fakeJournal struct {
	records []domain.ScanEventRecord
}

func (f *fakeJournal) EventsAfter(index uint64) ([]domain.ScanEventRecord, error) {
	var out []domain.ScanEventRecord
	for _, r := range f.records {
		if r.Index > index {
			out = append(out, r)
		}
	}
	return out, nil
}

func addr(i int) string {
	return fmt.Sprintf("0x%040x", i)
}

func scanned(i int, name string, txs int64) domain.WalletRecord {
	rec := domain.NewWalletRecord(addr(i), name)
	rec.TransactionCount = txs
	rec.LastScannedTimestamp = 1700000000000
	rec.LastStats[domain.WindowAll] = domain.WindowStats{Count: txs, Volume: "1 IP"}
	return rec
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestHandleWallets_Pagination(t *testing.T) {
	var records []domain.WalletRecord
	for i := 1; i <= 120; i++ {
		records = append(records, scanned(i, fmt.Sprintf("w%d.ip", i), int64(i)))
	}
	s := NewServer(":0", wallets.NewMemoryStore(records...), nil, nil)

	rr := get(t, s.Handler(), "/api/wallets?page=3")
	require.Equal(t, http.StatusOK, rr.Code)

	var page WalletPage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, 120, page.Total)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 3, page.Pages)
	require.Len(t, page.Items, 20)
	assert.Equal(t, int64(20), page.Items[0].TransactionCount)

	rr = get(t, s.Handler(), "/api/wallets")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, int64(120), page.Items[0].TransactionCount)
	assert.Len(t, page.Items, PageSize)

	rr = get(t, s.Handler(), "/api/wallets?page=9")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Empty(t, page.Items)
	assert.Contains(t, rr.Body.String(), `"items":[]`)
}

func TestHandleWallets_FilterAndSort(t *testing.T) {
	alice := scanned(1, "Alice.ip", 5)
	alice.Balance = "10.00"
	alice.LastActive = 100
	bob := scanned(2, "bob.ip", 50)
	bob.Balance = "2.00"
	bob.NetWorthUSD = 99
	bob.LastActive = 300
	carol := scanned(3, "carol.ip", 1)
	carol.Balance = "100.50"
	carol.LastActive = 200
	s := NewServer(":0", wallets.NewMemoryStore(alice, bob, carol), nil, nil)

	names := func(target string) []string {
		rr := get(t, s.Handler(), target)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var page WalletPage
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
		var out []string
		for _, r := range page.Items {
			out = append(out, r.Name)
		}
		return out
	}

	assert.Equal(t, []string{"bob.ip", "Alice.ip", "carol.ip"}, names("/api/wallets"))
	assert.Equal(t, []string{"Alice.ip"}, names("/api/wallets?q=ALICE"))
	assert.Equal(t, []string{"bob.ip"}, names("/api/wallets?q="+addr(2)[30:]))
	assert.Equal(t, []string{"carol.ip", "Alice.ip", "bob.ip"}, names("/api/wallets?sort=balance"))
	assert.Equal(t, []string{"bob.ip", "Alice.ip", "carol.ip"}, names("/api/wallets?sort=net_worth"))
	assert.Equal(t, []string{"bob.ip", "carol.ip", "Alice.ip"}, names("/api/wallets?sort=last_active"))

	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/api/wallets?sort=name").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/api/wallets?page=0").Code)
}

func TestHandleWallet_Detail(t *testing.T) {
	cached := scanned(1, "alice.ip", 5)
	stale := domain.NewWalletRecord(addr(2), "stale.ip")
	stale.TransactionCount = 9
	liveRecord := scanned(0, "live.ip", 9)

	tests := []struct {
		name       string
		address    string
		live       *fakeLive
		wantCode   int
		wantSource string
		wantName   string
		wantCalls  int
	}{
		{name: "cached wallet", address: addr(1), live: &fakeLive{}, wantCode: 200, wantSource: "cache", wantName: "alice.ip"},
		{name: "wallet without stats goes live", address: addr(2), live: &fakeLive{record: liveRecord}, wantCode: 200, wantSource: "live", wantName: "live.ip", wantCalls: 1},
		{name: "live failure falls back to cache", address: addr(2), live: &fakeLive{err: errors.New("429")}, wantCode: 200, wantSource: "cache", wantName: "stale.ip", wantCalls: 1},
		{name: "unknown wallet goes live", address: addr(7), live: &fakeLive{record: liveRecord}, wantCode: 200, wantSource: "live", wantName: "live.ip", wantCalls: 1},
		{name: "unknown wallet and live failure", address: addr(7), live: &fakeLive{err: errors.New("down")}, wantCode: 404, wantCalls: 1},
		{name: "invalid address", address: "nope", live: &fakeLive{}, wantCode: 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(":0", wallets.NewMemoryStore(cached, stale), tt.live, nil)

			rr := get(t, s.Handler(), "/api/wallets/"+tt.address)
			require.Equal(t, tt.wantCode, rr.Code)
			assert.Equal(t, tt.wantCalls, tt.live.calls)
			if tt.wantCode != http.StatusOK {
				return
			}

			var detail WalletDetail
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &detail))
			assert.Equal(t, tt.wantSource, detail.Source)
			assert.Equal(t, tt.wantName, detail.Wallet.Name)
		})
	}
}

func TestHandleWallet_NoLivePreviewer(t *testing.T) {
	s := NewServer(":0", wallets.NewMemoryStore(), nil, nil)
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/api/wallets/"+addr(1)).Code)
}

func TestHandleKnownDomains(t *testing.T) {
	s := NewServer(":0", wallets.NewMemoryStore(scanned(1, "a.ip", 1), scanned(2, "b.ip", 2)), nil, nil)

	rr := get(t, s.Handler(), "/known_domains.json")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var records []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "b.ip", records[0]["name"])
	assert.Contains(t, records[0], "last_scanned_timestamp")

	empty := get(t, NewServer(":0", wallets.NewMemoryStore(), nil, nil).Handler(), "/known_domains.json")
	assert.Equal(t, "[]\n", empty.Body.String())
}

func TestStaticIndex(t *testing.T) {
	s := NewServer(":0", wallets.NewMemoryStore(), nil, nil)

	rr := get(t, s.Handler(), "/")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), ".ip leaderboard")

	req := httptest.NewRequest(http.MethodGet, "/app.js", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	gz := httptest.NewRecorder()
	s.Handler().ServeHTTP(gz, req)
	assert.Equal(t, "gzip", gz.Header().Get("Content-Encoding"))
}

func TestScanStream(t *testing.T) {
	journal := &fakeJournal{records: []domain.ScanEventRecord{
		{Index: 1, Event: domain.ScanEvent{Seq: 1, Address: addr(1), Status: domain.ScanStatusOK}},
		{Index: 2, Event: domain.ScanEvent{Seq: 2, Address: addr(2), Status: domain.ScanStatusFailed}},
		{Index: 3, Event: domain.ScanEvent{Seq: 3, Address: addr(3), Status: domain.ScanStatusPartial}},
	}}
	srv := httptest.NewServer(NewServer(":0", wallets.NewMemoryStore(), nil, journal).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/scans/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", "1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var ids, data []string
	sc := bufio.NewScanner(resp.Body)
	for len(data) < 2 && sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "id: "):
			ids = append(ids, strings.TrimPrefix(line, "id: "))
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
	}

	assert.Equal(t, []string{"2", "3"}, ids)
	require.Len(t, data, 2)
	assert.Contains(t, data[0], `"status":"failed"`)
}

func TestScanStream_NoJournal(t *testing.T) {
	s := NewServer(":0", wallets.NewMemoryStore(), nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/scans/stream").Code)
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, uint64(5), parseLastEventID("5", "9"))
	assert.Equal(t, uint64(9), parseLastEventID("", "9"))
	assert.Equal(t, uint64(0), parseLastEventID("abc", ""))
	assert.Equal(t, uint64(0), parseLastEventID("", ""))
}
