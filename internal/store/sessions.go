package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/codex/internal/ir"
)

// ArchiveSession stores a terminal session. Archiving the same session twice
// is a no-op; live sessions are rejected.
func (s *Store) ArchiveSession(ctx context.Context, sess ir.FusionSession) error {
	if !sess.State.Terminal() {
		return fmt.Errorf("archive session %s: state %s is not terminal", sess.ID, sess.State)
	}
	participants, err := marshalIDs(sess.ParticipantIDs)
	if err != nil {
		return fmt.Errorf("archive session %s: %w", sess.ID, err)
	}
	body, err := marshalBody(sess)
	if err != nil {
		return fmt.Errorf("archive session %s: %w", sess.ID, err)
	}

	closedAt := sess.CreatedAt
	if sess.ClosedAt != nil {
		closedAt = *sess.ClosedAt
	}
	digest := ""
	if sess.Outcome != nil {
		digest = sess.Outcome.Digest
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fusion_sessions
		(id, state, fusion_type, participants, created_at, closed_at, abort_reason, outcome_digest, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		string(sess.State),
		sess.FusionType,
		participants,
		toMicros(sess.CreatedAt),
		toMicros(closedAt),
		sess.AbortReason,
		digest,
		body,
	)
	if err != nil {
		return fmt.Errorf("archive session %s: %w", sess.ID, err)
	}
	return nil
}

// LoadSession returns one archived session or ir.NotFound.
func (s *Store) LoadSession(ctx context.Context, id string) (ir.FusionSession, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM fusion_sessions WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.FusionSession{}, ir.NotFound(id)
	}
	if err != nil {
		return ir.FusionSession{}, fmt.Errorf("load session %s: %w", id, err)
	}
	var sess ir.FusionSession
	if err := unmarshalBody(body, &sess); err != nil {
		return ir.FusionSession{}, fmt.Errorf("load session %s: %w", id, err)
	}
	return sess, nil
}

// LoadSessions returns archived sessions ordered by close time. An empty
// state returns both resolved and aborted sessions.
func (s *Store) LoadSessions(ctx context.Context, state ir.SessionState) ([]ir.FusionSession, error) {
	query := `SELECT body FROM fusion_sessions ORDER BY closed_at ASC, id COLLATE BINARY ASC`
	var args []any
	if state != "" {
		query = `SELECT body FROM fusion_sessions WHERE state = ? ORDER BY closed_at ASC, id COLLATE BINARY ASC`
		args = append(args, string(state))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []ir.FusionSession{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		var sess ir.FusionSession
		if err := unmarshalBody(body, &sess); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}
