package repository

import (
	"context"

	"github.com/itam-hq/be-procurement/internal/platform/database"
	"github.com/itam-hq/be-procurement/internal/platform/errors"
)

// TrackingRepository handles the append-only order tracking timeline.
type TrackingRepository struct {
	db *database.DB
}

// NewTrackingRepository creates a new TrackingRepository.
func NewTrackingRepository(db *database.DB) *TrackingRepository {
	return &TrackingRepository{db: db}
}

// Append inserts one tracking note. Entries are never updated or deleted.
func (r *TrackingRepository) Append(ctx context.Context, entry *OrderTrackingEntry) error {
	query := `
		INSERT INTO order_tracking_entries (proposal_id, status_content, note, actor_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		entry.ProposalID, entry.StatusContent, entry.Note, entry.ActorID,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append tracking entry")
	}
	return nil
}

// ListByProposal returns a proposal's timeline, newest first.
func (r *TrackingRepository) ListByProposal(ctx context.Context, proposalID string) ([]*OrderTrackingEntry, error) {
	query := `
		SELECT id, proposal_id, status_content, note, actor_id, created_at
		FROM order_tracking_entries
		WHERE proposal_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.Query(ctx, query, proposalID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get tracking entries")
	}
	defer rows.Close()

	entries := make([]*OrderTrackingEntry, 0)
	for rows.Next() {
		entry := &OrderTrackingEntry{}
		err := rows.Scan(
			&entry.ID, &entry.ProposalID, &entry.StatusContent,
			&entry.Note, &entry.ActorID, &entry.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan tracking entry")
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
