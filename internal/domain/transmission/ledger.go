package transmission

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-iis/internal/hl7v2/ack"
	"github.com/drfirst/go-iis/internal/observability/metrics"
)

// DefaultListLimit caps listings that do not set a limit
const DefaultListLimit = 100

// Entry describes one transmission attempt to be logged
type Entry struct {
	Type     MessageType
	Partner  string
	Source   string
	Key      string
	Body     string
	Response string
	// Result is used as-is for ORD entries. VXU and QBP results are derived
	// from Response.
	Result string
}

// Ledger records transmission attempts, one row per attempt
type Ledger struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewLedger creates a ledger over the given store
func NewLedger(store Store, m *metrics.Metrics, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:   store,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("ledger"),
	}
}

// Record derives the result code, inserts one row and returns it.
// VXU rows carry a dedup key; a second VXU for the same record yields ErrAlreadyRecorded.
func (l *Ledger) Record(ctx context.Context, e Entry) (*Record, error) {
	ctx, span := l.tracer.Start(ctx, "ledger_record",
		trace.WithAttributes(
			attribute.String("msg_type", string(e.Type)),
			attribute.String("link_source", e.Source),
			attribute.String("link_key", e.Key),
		))
	defer span.End()

	rec := &Record{
		Type:     e.Type,
		Partner:  e.Partner,
		Source:   e.Source,
		Key:      e.Key,
		Body:     e.Body,
		Response: e.Response,
		Result:   resultFor(e),
	}
	if e.Type == TypeVXU {
		rec.DedupKey = DedupKey(e.Type, e.Source, e.Key)
	}

	inserted, err := l.store.InsertRecord(ctx, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, fmt.Errorf("record %s %s/%s: %w", e.Type, e.Source, e.Key, err)
	}
	if !inserted {
		l.metrics.LedgerConflict()
		span.SetAttributes(attribute.Bool("duplicate", true))
		return nil, fmt.Errorf("%s: %w", rec.DedupKey, ErrAlreadyRecorded)
	}

	l.metrics.LedgerWritten(string(rec.Type), rec.Result)
	l.logger.Debug("transmission recorded",
		zap.Int64("id", rec.ID),
		zap.String("msg_type", string(rec.Type)),
		zap.String("link_source", rec.Source),
		zap.String("link_key", rec.Key),
		zap.String("msg_result", rec.Result),
	)
	return rec, nil
}

// List returns rows matching the filter, newest first
func (l *Ledger) List(ctx context.Context, f Filter) ([]*Record, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	recs, err := l.store.ListRecords(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list transmissions: %w", err)
	}
	return recs, nil
}

// Summary counts rows per (type, result)
func (l *Ledger) Summary(ctx context.Context) ([]SummaryRow, error) {
	rows, err := l.store.SummarizeRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("summarize transmissions: %w", err)
	}
	return rows, nil
}

// Find returns every row logged for a source record, or ErrNotFound
func (l *Ledger) Find(ctx context.Context, t MessageType, source, key string) ([]*Record, error) {
	recs, err := l.store.FindRecords(ctx, t, source, key)
	if err != nil {
		return nil, fmt.Errorf("find transmission: %w", err)
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs, nil
}

// IsConflict reports whether err is a suppressed duplicate insert
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyRecorded)
}

func resultFor(e Entry) string {
	if e.Type == TypeORD {
		return e.Result
	}
	return string(ack.Interpret(e.Response).Code)
}
