package repository

import (
	"context"
	"encoding/json"

	"github.com/itam-hq/be-procurement/internal/platform/database"
	"github.com/itam-hq/be-procurement/internal/platform/errors"
)

// AuditRepository appends and reads immutable field-change records. The table
// carries a delete-prevention trigger, so Append is the only mutation exposed.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditLogEntry) error {
	changesJSON, err := json.Marshal(entry.Changes)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit changes")
	}

	query := `
		INSERT INTO audit_log (entity_type, entity_id, changed_by, changes)
		VALUES ($1, $2, $3, $4)
		RETURNING id, changed_at
	`

	err = r.db.QueryRow(ctx, query,
		entry.EntityType, entry.EntityID, entry.ChangedBy, changesJSON,
	).Scan(&entry.ID, &entry.ChangedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// ListByEntity returns the change history for one entity, oldest first.
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]*AuditLogEntry, error) {
	query := `
		SELECT id, entity_type, entity_id, changed_by, changed_at, changes
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY changed_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, entityType, entityID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	entries := make([]*AuditLogEntry, 0)
	for rows.Next() {
		entry := &AuditLogEntry{}
		var changesJSON []byte
		err := rows.Scan(
			&entry.ID, &entry.EntityType, &entry.EntityID,
			&entry.ChangedBy, &entry.ChangedAt, &changesJSON,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
		}
		if err := json.Unmarshal(changesJSON, &entry.Changes); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit changes")
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
