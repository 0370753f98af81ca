package clients

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/ipboard/internal/domain"
)

// AddressInfo is the subset of /addresses/{addr} the scanner consumes.
type AddressInfo struct {
	Hash          string      `json:"hash"`
	CoinBalance   json.Number `json:"coin_balance"`
	ExchangeRate  json.Number `json:"exchange_rate"`
	EnsDomainName string      `json:"ens_domain_name"`
	IsContract    bool        `json:"is_contract"`
}

// AddressCounters is the /addresses/{addr}/counters document.
type AddressCounters struct {
	TransactionsCount   json.Number `json:"transactions_count"`
	TokenTransfersCount json.Number `json:"token_transfers_count"`
	GasUsageCount       json.Number `json:"gas_usage_count"`
}

// Transactions parses the lifetime transaction counter.
func (c AddressCounters) Transactions() (int64, error) {
	if c.TransactionsCount == "" {
		return 0, errors.New("transactions_count is empty")
	}

	return strconv.ParseInt(c.TransactionsCount.String(), 10, 64)
}

// TokenBalance is one entry of /addresses/{addr}/token-balances.
type TokenBalance struct {
	Value json.Number `json:"value"`
	Token TokenInfo   `json:"token"`
}

// TokenInfo describes a token contract.
type TokenInfo struct {
	Address      string      `json:"address"`
	AddressHash  string      `json:"address_hash"`
	Name         string      `json:"name"`
	Symbol       string      `json:"symbol"`
	Type         string      `json:"type"`
	Decimals     json.Number `json:"decimals"`
	ExchangeRate json.Number `json:"exchange_rate"`
}

// TransactionsPage is one page of history converted to the domain model.
type TransactionsPage struct {
	Transactions []domain.Transaction
	// Next is nil on the last page.
	Next url.Values
	// Pending counts items still in the mempool; they are left out of Transactions.
	Pending int
}

// TokenInstance is one NFT of a collection.
type TokenInstance struct {
	ID       json.Number    `json:"id"`
	Owner    *AddressRef    `json:"owner"`
	Metadata *TokenMetadata `json:"metadata"`
}

// OwnerAddress returns the current holder, if known.
func (i TokenInstance) OwnerAddress() string {
	if i.Owner == nil {
		return ""
	}
	return i.Owner.Hash
}

// Name returns the metadata name, if any.
func (i TokenInstance) Name() string {
	if i.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(i.Metadata.Name)
}

// TokenInstancesPage is one page of /tokens/{contract}/instances.
type TokenInstancesPage struct {
	Instances []TokenInstance
	Next      url.Values
}

// TokenMetadata is the decoded metadata of an NFT instance.
type TokenMetadata struct {
	Name string `json:"name"`
}

type addressTag struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type addressMetadata struct {
	Tags []addressTag `json:"tags"`
}

// AddressRef is an address as embedded in other explorer documents.
type AddressRef struct {
	Hash          string           `json:"hash"`
	Name          string           `json:"name"`
	IsContract    bool             `json:"is_contract"`
	EnsDomainName string           `json:"ens_domain_name"`
	Metadata      *addressMetadata `json:"metadata"`
}

type decodedInput struct {
	MethodCall string `json:"method_call"`
	MethodID   string `json:"method_id"`
}

type apiTransaction struct {
	Hash             string          `json:"hash"`
	Timestamp        string          `json:"timestamp"`
	Value            json.Number     `json:"value"`
	Status           string          `json:"status"`
	Result           string          `json:"result"`
	Method           string          `json:"method"`
	DecodedInput     json.RawMessage `json:"decoded_input"`
	To               *AddressRef     `json:"to"`
	From             *AddressRef     `json:"from"`
	RawInput         string          `json:"raw_input"`
	TransactionTypes []string        `json:"transaction_types"`
}

type transactionsResponse struct {
	Items          []apiTransaction `json:"items"`
	NextPageParams map[string]any   `json:"next_page_params"`
}

type tokenInstancesResponse struct {
	Items          []TokenInstance `json:"items"`
	NextPageParams map[string]any  `json:"next_page_params"`
}

// isPending reports whether the explorer has not mined the transaction yet.
// Such items carry a null timestamp and status.
func (t apiTransaction) isPending() bool {
	return t.Timestamp == "" || t.Result == "pending"
}

func (t apiTransaction) toDomain() (domain.Transaction, error) {
	ts, err := time.Parse(time.RFC3339Nano, t.Timestamp)
	if err != nil {
		return domain.Transaction{}, errors.Wrap(err, "parse timestamp")
	}

	value := decimal.Zero
	if t.Value != "" {
		value, err = decimal.NewFromString(t.Value.String())
		if err != nil {
			return domain.Transaction{}, errors.Wrap(err, "parse value")
		}
	}

	tx := domain.Transaction{
		Hash:            t.Hash,
		Timestamp:       ts.UTC(),
		Value:           value,
		Status:          domain.TxStatusOK,
		Method:          t.Method,
		RawInputPresent: t.RawInput != "" && t.RawInput != "0x",
		Types:           t.TransactionTypes,
	}
	if t.Status == string(domain.TxStatusError) {
		tx.Status = domain.TxStatusError
	}

	if len(t.DecodedInput) > 0 && string(t.DecodedInput) != "null" {
		var decoded decodedInput
		if err := json.Unmarshal(t.DecodedInput, &decoded); err == nil {
			tx.DecodedMethodCall = decoded.MethodCall
		}
		tx.DecodedPayload = string(t.DecodedInput)
	}

	if t.To != nil {
		dest := &domain.Destination{
			Address:    t.To.Hash,
			Name:       t.To.Name,
			IsContract: t.To.IsContract,
		}
		if t.To.Metadata != nil {
			for _, tag := range t.To.Metadata.Tags {
				dest.Tags = append(dest.Tags, tag.Name)
			}
		}
		tx.To = dest
	}
	if t.From != nil {
		tx.From = t.From.Hash
	}

	return tx, nil
}

// pageParamsToQuery turns an opaque next_page_params object into query values.
func pageParamsToQuery(params map[string]any) url.Values {
	if len(params) == 0 {
		return nil
	}

	q := make(url.Values, len(params))
	for k, v := range params {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			q.Set(k, val)
		case json.Number:
			q.Set(k, val.String())
		case bool:
			q.Set(k, strconv.FormatBool(val))
		case float64:
			q.Set(k, strconv.FormatFloat(val, 'f', -1, 64))
		default:
			q.Set(k, fmt.Sprint(val))
		}
	}

	return q
}
