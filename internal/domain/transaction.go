package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxStatus is the execution status reported by the explorer.
type TxStatus string

const (
	TxStatusOK    TxStatus = "ok"
	TxStatusError TxStatus = "error"
)

// Transaction type tags the explorer attaches to a transaction.
const (
	TxTypeContractCall  = "contract_call"
	TxTypeTokenTransfer = "token_transfer"
)

// Destination describes the receiving side of a transaction.
type Destination struct {
	Address    string
	Name       string
	Tags       []string
	IsContract bool
}

// Transaction is a read-only view of one explorer transaction.
type Transaction struct {
	Hash              string
	Timestamp         time.Time
	Value             decimal.Decimal // wei
	Status            TxStatus
	Method            string
	DecodedMethodCall string
	// DecodedPayload is the raw decoded_input document, used for parameter hints.
	DecodedPayload  string
	To              *Destination
	From            string
	RawInputPresent bool
	Types           []string
}

// HasType reports whether the transaction carries the given type tag.
func (t Transaction) HasType(tag string) bool {
	for _, v := range t.Types {
		if v == tag {
			return true
		}
	}

	return false
}
