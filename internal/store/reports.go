package store

import (
	"context"
	"fmt"

	"github.com/roach88/codex/internal/ir"
)

// SaveReport stores a validation report. Reports are content-addressed, so
// saving the same report twice is a no-op.
func (s *Store) SaveReport(ctx context.Context, r ir.ValidationReport) error {
	body, err := marshalBody(r)
	if err != nil {
		return fmt.Errorf("save report %s: %w", r.ID, err)
	}
	pass := 0
	if r.Pass {
		pass = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO validation_reports (id, mode, timestamp, pass, fingerprint, body)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.ID,
		string(r.Mode),
		toMicros(r.Timestamp),
		pass,
		r.CatalogFingerprint,
		body,
	)
	if err != nil {
		return fmt.Errorf("save report %s: %w", r.ID, err)
	}
	return nil
}

// LoadReports returns the most recent reports, newest last. A non-positive
// limit returns all of them.
func (s *Store) LoadReports(ctx context.Context, limit int) ([]ir.ValidationReport, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM (
			SELECT body, timestamp, id FROM validation_reports
			ORDER BY timestamp DESC, id COLLATE BINARY DESC
			LIMIT ?
		) ORDER BY timestamp ASC, id COLLATE BINARY ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	reports := []ir.ValidationReport{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		var r ir.ValidationReport
		if err := unmarshalBody(body, &r); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return reports, nil
}
