package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/codex/internal/ir"
)

// Append inserts an audit record. Duplicate ids are silently ignored so a
// retried append is idempotent; a different record reusing a seq is an error.
func (s *Store) Append(ctx context.Context, rec ir.AuditRecord) error {
	idsJSON, err := marshalIDs(rec.EntityIDs)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_records (id, seq, action, entity_ids, timestamp, actor)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.Seq,
		rec.Action,
		idsJSON,
		toMicros(rec.Timestamp),
		rec.Actor,
	)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// LoadAll returns every audit record ordered by seq.
//
// Returns an empty slice (not nil) if the ledger is empty.
func (s *Store) LoadAll(ctx context.Context) ([]ir.AuditRecord, error) {
	return s.queryAudit(ctx, `
		SELECT id, seq, action, entity_ids, timestamp, actor
		FROM audit_records
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
}

// LoadSince returns up to limit records with seq greater than after.
// A non-positive limit means no limit.
func (s *Store) LoadSince(ctx context.Context, after int64, limit int) ([]ir.AuditRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryAudit(ctx, `
		SELECT id, seq, action, entity_ids, timestamp, actor
		FROM audit_records
		WHERE seq > ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
		LIMIT ?
	`, after, limit)
}

// LoadByAction returns all records for one action ordered by seq.
func (s *Store) LoadByAction(ctx context.Context, action string) ([]ir.AuditRecord, error) {
	return s.queryAudit(ctx, `
		SELECT id, seq, action, entity_ids, timestamp, actor
		FROM audit_records
		WHERE action = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, action)
}

// MaxSeq returns the highest recorded seq, or 0 for an empty ledger. The
// engine resumes its audit sequence from this value.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM audit_records`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

func (s *Store) queryAudit(ctx context.Context, query string, args ...any) ([]ir.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	records := []ir.AuditRecord{}
	for rows.Next() {
		var (
			rec     ir.AuditRecord
			idsJSON string
			ts      int64
		)
		if err := rows.Scan(&rec.ID, &rec.Seq, &rec.Action, &idsJSON, &ts, &rec.Actor); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		ids, err := unmarshalIDs(idsJSON)
		if err != nil {
			return nil, fmt.Errorf("audit record %s: %w", rec.ID, err)
		}
		rec.EntityIDs = ids
		rec.Timestamp = fromMicros(ts)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}
