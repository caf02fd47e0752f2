// Package transmission implements the hl7log transmission ledger.
package transmission

import (
	"context"
	"errors"
	"time"
)

// MessageType is the hl7log msg_type column
type MessageType string

const (
	TypeVXU MessageType = "VXU"
	TypeQBP MessageType = "QBP"
	TypeORD MessageType = "ORD"
)

// Result codes written for inbound result files
const (
	ResultPatientMatched = "PT"
	ResultCheck          = "CHK"
)

// ErrAlreadyRecorded is returned when a conditional insert was suppressed by the dedup key
var ErrAlreadyRecorded = errors.New("transmission already recorded")

// ErrNotFound is returned when no ledger row matches a lookup
var ErrNotFound = errors.New("transmission not found")

// Record is one hl7log row
type Record struct {
	ID       int64       `json:"id"`
	Type     MessageType `json:"msg_type"`
	Partner  string      `json:"msg_partner"`
	Source   string      `json:"link_source"`
	Key      string      `json:"link_key"`
	Body     string      `json:"msg_body"`
	Response string      `json:"msg_response"`
	Result   string      `json:"msg_result"`
	// DedupKey is empty for rows that may repeat
	DedupKey  string    `json:"dedup_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DedupKey builds the unique key stored for submissions that must be logged once
func DedupKey(t MessageType, source, key string) string {
	return string(t) + ":" + source + ":" + key
}

// Filter narrows ledger listings. Zero values match everything.
type Filter struct {
	Type   MessageType
	Result *string
	Source string
	Key    string
	Limit  int
}

// SummaryRow counts ledger rows for one (type, result) pair
type SummaryRow struct {
	Type   MessageType `json:"msg_type"`
	Result string      `json:"msg_result"`
	Count  int64       `json:"count"`
}

// Store persists ledger rows
type Store interface {
	// InsertRecord writes r and fills its ID and CreatedAt. It reports false
	// without error when a row with the same dedup key already exists.
	InsertRecord(ctx context.Context, r *Record) (bool, error)
	ListRecords(ctx context.Context, f Filter) ([]*Record, error)
	SummarizeRecords(ctx context.Context) ([]SummaryRow, error)
	FindRecords(ctx context.Context, t MessageType, source, key string) ([]*Record, error)
}
