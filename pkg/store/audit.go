package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/opencorpdata/corpmap/pkg/errors"
	"github.com/opencorpdata/corpmap/pkg/logging"
)

// appendAudit writes one audit row inside the caller's transaction. The
// audit log is append-only; nothing in the store updates or deletes rows.
func (s *Store) appendAudit(ctx context.Context, tx *sql.Tx, action, entityKey, batchID, detail string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit_log (action, entity_key, batch_id, detail, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		action, entityKey, batchID, detail,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.WrapStore("insert", "audit_log", entityKey, err)
	}
	return nil
}

// auditBestEffort records an audit row outside any transaction, for events
// like refresh failures where there is nothing else to commit.
func (s *Store) auditBestEffort(ctx context.Context, action, entityKey, batchID, detail string) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return s.appendAudit(ctx, tx, action, entityKey, batchID, detail)
	})
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("action", action).Msg("Failed to append audit entry")
	}
}

// AuditTrail returns the most recent audit entries, newest first. A
// non-positive limit returns everything.
func (s *Store) AuditTrail(ctx context.Context, limit int) ([]AuditEntry, error) {
	query := `SELECT id, action, entity_key, batch_id, detail, created_at
        FROM audit_log ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapStore("query", "audit_log", "", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		var createdAt string
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.EntityKey,
			&entry.BatchID, &entry.Detail, &createdAt); err != nil {
			return nil, errors.WrapStore("scan", "audit_log", "", err)
		}
		entry.CreatedAt = parseTimestamp(createdAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
