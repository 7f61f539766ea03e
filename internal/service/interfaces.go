package service

import (
	"context"

	"github.com/itam-hq/be-procurement/internal/repository"
)

// Store interfaces are declared here, at the point of use. The postgres
// repositories satisfy them in production; internal/store/memory satisfies
// them in tests and DB-less development runs.

// ProposalStore persists the proposal aggregate.
type ProposalStore interface {
	Create(ctx context.Context, p *repository.Proposal) error
	GetByID(ctx context.Context, id string) (*repository.Proposal, error)
	List(ctx context.Context, f repository.ProposalFilter) ([]*repository.Proposal, int64, error)
	// ReplaceItems applies an edit: header fields plus a wholesale item
	// replacement, in one transaction. Must not touch status.
	ReplaceItems(ctx context.Context, p *repository.Proposal) error
	// UpdateWorkflow persists workflow state only if the row still carries
	// the expected status; otherwise it reports a conflict and writes nothing.
	UpdateWorkflow(ctx context.Context, p *repository.Proposal, expected repository.ProposalStatus) error
	// LinkReceipt sets the goods-receipt back-reference.
	LinkReceipt(ctx context.Context, id, receiptID string) error
}

// UserStore resolves user records.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*repository.User, error)
}

// PermissionStore reads permission grants.
type PermissionStore interface {
	ListAllCodes(ctx context.Context) ([]repository.PermissionCode, error)
	ListCodesForUser(ctx context.Context, userID string) ([]repository.PermissionCode, error)
}

// AuditStore persists immutable field-change records.
type AuditStore interface {
	Append(ctx context.Context, entry *repository.AuditLogEntry) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]*repository.AuditLogEntry, error)
}

// TrackingStore persists the append-only order tracking timeline.
type TrackingStore interface {
	Append(ctx context.Context, entry *repository.OrderTrackingEntry) error
	ListByProposal(ctx context.Context, proposalID string) ([]*repository.OrderTrackingEntry, error)
}

// Notifier publishes workflow events for the notification service. All
// publishing is fire-and-forget; implementations must never fail the calling
// operation.
type Notifier interface {
	PublishProposalEvent(ctx context.Context, eventType, proposalID, actorID string, payload map[string]any)
}
