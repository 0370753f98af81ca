package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/ipboard/internal/domain"
)

const (
	// DefaultExplorerURL is the Story mainnet Blockscout API root.
	DefaultExplorerURL     = "https://www.storyscan.io/api/v2"
	defaultExplorerTimeout = 15 * time.Second

	apiKeyHeader    = "X-API-Key"
	maxErrorBodyLen = 256
)

var (
	// ErrRateLimited is wrapped into errors for HTTP 429 responses.
	ErrRateLimited = errors.New("explorer rate limit hit")
	// ErrMalformedResponse is wrapped into errors for bodies that fail to decode.
	ErrMalformedResponse = errors.New("malformed explorer response")
)

// StatusError is returned for non-2xx responses other than 429.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("explorer returned status %d: %s", e.Code, e.Body)
}

// ExplorerClient reads address data from a Blockscout v2 REST API.
type ExplorerClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewExplorerClient creates a client. An empty apiKey sends anonymous requests.
func NewExplorerClient(baseURL, apiKey string, timeout time.Duration) *ExplorerClient {
	if baseURL == "" {
		baseURL = DefaultExplorerURL
	}
	if timeout <= 0 {
		timeout = defaultExplorerTimeout
	}

	return &ExplorerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetAddress returns native balance, exchange rate and domain name of an address.
func (c *ExplorerClient) GetAddress(ctx context.Context, address string) (*AddressInfo, error) {
	var info AddressInfo
	if err := c.get(ctx, "/addresses/"+address, nil, &info); err != nil {
		return nil, err
	}

	return &info, nil
}

// GetCounters returns the explorer's lifetime counters for an address.
func (c *ExplorerClient) GetCounters(ctx context.Context, address string) (*AddressCounters, error) {
	var counters AddressCounters
	if err := c.get(ctx, "/addresses/"+address+"/counters", nil, &counters); err != nil {
		return nil, err
	}

	return &counters, nil
}

// GetTokenBalances returns fungible and non-fungible token holdings.
func (c *ExplorerClient) GetTokenBalances(ctx context.Context, address string) ([]TokenBalance, error) {
	var balances []TokenBalance
	if err := c.get(ctx, "/addresses/"+address+"/token-balances", nil, &balances); err != nil {
		return nil, err
	}

	return balances, nil
}

// GetTransactionsPage returns one page of history, newest first. A nil cursor requests the first page.
// Pending transactions are skipped and counted in TransactionsPage.Pending.
func (c *ExplorerClient) GetTransactionsPage(ctx context.Context, address string, cursor url.Values) (*TransactionsPage, error) {
	var raw transactionsResponse
	if err := c.get(ctx, "/addresses/"+address+"/transactions", cursor, &raw); err != nil {
		return nil, err
	}

	page := &TransactionsPage{
		Transactions: make([]domain.Transaction, 0, len(raw.Items)),
		Next:         pageParamsToQuery(raw.NextPageParams),
	}
	for _, item := range raw.Items {
		if item.isPending() {
			page.Pending++
			continue
		}
		tx, err := item.toDomain()
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedResponse, "transaction %s: %v", item.Hash, err)
		}
		page.Transactions = append(page.Transactions, tx)
	}

	return page, nil
}

// GetTokenInstances returns one page of NFT instances of a collection.
func (c *ExplorerClient) GetTokenInstances(ctx context.Context, contract string, cursor url.Values) (*TokenInstancesPage, error) {
	var raw tokenInstancesResponse
	if err := c.get(ctx, "/tokens/"+contract+"/instances", cursor, &raw); err != nil {
		return nil, err
	}

	return &TokenInstancesPage{
		Instances: raw.Items,
		Next:      pageParamsToQuery(raw.NextPageParams),
	}, nil
}

func (c *ExplorerClient) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read response of %s", path)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return errors.Wrapf(ErrRateLimited, "GET %s", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: truncate(string(body), maxErrorBodyLen)}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return errors.Wrapf(ErrMalformedResponse, "decode %s: %v", path, err)
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
