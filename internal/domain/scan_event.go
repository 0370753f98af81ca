package domain

// ScanStatus is the outcome of one wallet scan.
type ScanStatus string

const (
	ScanStatusOK          ScanStatus = "ok"
	ScanStatusPartial     ScanStatus = "partial"
	ScanStatusRateLimited ScanStatus = "rate_limited"
	ScanStatusFailed      ScanStatus = "failed"
)

// ScanEvent is appended to the scan journal after every wallet scan.
type ScanEvent struct {
	Seq                  uint64     `json:"seq"`
	RunID                string     `json:"run_id"`
	Address              string     `json:"address"`
	Name                 string     `json:"name"`
	Status               ScanStatus `json:"status"`
	NewTransactions      int        `json:"new_transactions"`
	NewSpam              int64      `json:"new_spam"`
	TransactionCount     int64      `json:"transaction_count"`
	LastScannedTimestamp int64      `json:"last_scanned_timestamp"`
	Pages                int        `json:"pages"`
	Error                string     `json:"error,omitempty"`
	At                   int64      `json:"at"`
}

// ScanEventRecord pairs an event with its journal index.
type ScanEventRecord struct {
	Index uint64
	Event ScanEvent
}
