package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/drfirst/go-iis/internal/domain/transmission"
)

const ledgerColumns = `id, msg_type, COALESCE(msg_partner, ''), link_source, link_key,
	COALESCE(msg_body, ''), COALESCE(msg_response, ''), COALESCE(msg_result, ''),
	COALESCE(dedup_key, ''), created_at`

// InsertRecord implements transmission.Store. A suppressed insert reports false.
func (d *DB) InsertRecord(ctx context.Context, r *transmission.Record) (bool, error) {
	var dedup sql.NullString
	if r.DedupKey != "" {
		dedup = sql.NullString{String: r.DedupKey, Valid: true}
	}
	args := []any{string(r.Type), r.Partner, r.Source, r.Key, r.Body, r.Response, r.Result, dedup}
	query := d.dialect.rebind(d.dialect.insertLedger())

	if d.dialect.name() == DriverPostgres {
		err := d.db.QueryRowContext(ctx, query, args...).Scan(&r.ID, &r.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("insert hl7log: %w", err)
		}
		return true, nil
	}

	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert hl7log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert hl7log: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return false, fmt.Errorf("insert hl7log id: %w", err)
	}
	r.CreatedAt = time.Now().UTC()
	return true, nil
}

// ListRecords implements transmission.Store
func (d *DB) ListRecords(ctx context.Context, f transmission.Filter) ([]*transmission.Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "msg_type = ?")
		args = append(args, string(f.Type))
	}
	if f.Result != nil {
		where = append(where, "COALESCE(msg_result, '') = ?")
		args = append(args, *f.Result)
	}
	if f.Source != "" {
		where = append(where, "link_source = ?")
		args = append(args, f.Source)
	}
	if f.Key != "" {
		where = append(where, "link_key = ?")
		args = append(args, f.Key)
	}

	query := "SELECT " + ledgerColumns + " FROM hl7log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := d.db.QueryContext(ctx, d.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list hl7log: %w", err)
	}
	defer rows.Close()

	var out []*transmission.Record
	for rows.Next() {
		var (
			r       transmission.Record
			msgType string
			created sql.NullTime
		)
		err := rows.Scan(&r.ID, &msgType, &r.Partner, &r.Source, &r.Key,
			&r.Body, &r.Response, &r.Result, &r.DedupKey, &created)
		if err != nil {
			return nil, fmt.Errorf("scan hl7log: %w", err)
		}
		r.Type = transmission.MessageType(msgType)
		r.CreatedAt = created.Time
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hl7log: %w", err)
	}
	return out, nil
}

// SummarizeRecords implements transmission.Store
func (d *DB) SummarizeRecords(ctx context.Context) ([]transmission.SummaryRow, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT msg_type, COALESCE(msg_result, '') AS result, COUNT(*)
		FROM hl7log
		GROUP BY msg_type, COALESCE(msg_result, '')
		ORDER BY msg_type, result`)
	if err != nil {
		return nil, fmt.Errorf("summarize hl7log: %w", err)
	}
	defer rows.Close()

	var out []transmission.SummaryRow
	for rows.Next() {
		var (
			row     transmission.SummaryRow
			msgType string
		)
		if err := rows.Scan(&msgType, &row.Result, &row.Count); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		row.Type = transmission.MessageType(msgType)
		out = append(out, row)
	}
	return out, rows.Err()
}

// FindRecords implements transmission.Store
func (d *DB) FindRecords(ctx context.Context, t transmission.MessageType, source, key string) ([]*transmission.Record, error) {
	return d.ListRecords(ctx, transmission.Filter{Type: t, Source: source, Key: key})
}
