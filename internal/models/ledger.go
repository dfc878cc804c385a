package models

import "time"

// LedgerEventType distinguishes the two event kinds emitted by the contract.
type LedgerEventType string

const (
	LedgerEventUpload   LedgerEventType = "Upload"
	LedgerEventDownload LedgerEventType = "Download"
)

// LedgerEvent is one decoded entry of the on-chain audit trail.
type LedgerEvent struct {
	TxHash      string          `json:"tx_hash"`
	BlockNumber uint64          `json:"block_number"`
	Timestamp   time.Time       `json:"timestamp"`
	EventType   LedgerEventType `json:"event_type"`
	Initiator   string          `json:"initiator"`
	Filename    string          `json:"filename"`
	PaperID     int64           `json:"paper_id"`
}
