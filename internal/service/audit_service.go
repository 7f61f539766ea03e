package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/itam-hq/be-procurement/internal/repository"
)

// AuditService computes field-level diffs between entity snapshots and
// appends immutable change records. A call that finds no difference writes
// nothing. Failures are logged and swallowed so audit logging can never block
// the primary business transaction.
type AuditService struct {
	store AuditStore
	log   zerolog.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(store AuditStore, log zerolog.Logger) *AuditService {
	return &AuditService{store: store, log: log}
}

// Record diffs two snapshots and appends one entry when at least one field
// differs. Values are canonicalized before comparison so a date and its
// string serialization compare equal.
func (s *AuditService) Record(ctx context.Context, entityType, entityID string, before, after map[string]any, actorID string) {
	changes := diffSnapshots(before, after)
	if len(changes) == 0 {
		return
	}

	entry := &repository.AuditLogEntry{
		EntityType: entityType,
		EntityID:   entityID,
		ChangedBy:  actorID,
		Changes:    changes,
	}
	if err := s.store.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("entity_type", entityType).
			Str("entity_id", entityID).
			Msg("Failed to append audit entry")
	}
}

// History returns the recorded changes for one entity, oldest first.
func (s *AuditService) History(ctx context.Context, entityType, entityID string) ([]*repository.AuditLogEntry, error) {
	return s.store.ListByEntity(ctx, entityType, entityID)
}

// diffSnapshots compares the union of both snapshots' keys.
func diffSnapshots(before, after map[string]any) map[string]repository.FieldChange {
	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}

	changes := make(map[string]repository.FieldChange)
	for k := range keys {
		from := canonicalValue(before[k])
		to := canonicalValue(after[k])
		if from != to {
			changes[k] = repository.FieldChange{From: from, To: to}
		}
	}
	return changes
}

// canonicalValue renders a snapshot value as a comparable string. Date-valued
// times collapse to YYYY-MM-DD, timestamps to RFC 3339 UTC, and strings that
// parse as either form are normalized the same way.
func canonicalValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case *string:
		if val == nil {
			return ""
		}
		return canonicalValue(*val)
	case *time.Time:
		if val == nil {
			return ""
		}
		return canonicalTime(*val)
	case time.Time:
		return canonicalTime(val)
	case string:
		if t, err := time.Parse("2006-01-02", val); err == nil {
			return canonicalTime(t)
		}
		if t, err := time.Parse(time.RFC3339, val); err == nil {
			return canonicalTime(t)
		}
		return val
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", val), "0"), ".")
	case *float64:
		if val == nil {
			return ""
		}
		return canonicalValue(*val)
	default:
		return fmt.Sprint(val)
	}
}

func canonicalTime(t time.Time) string {
	u := t.UTC()
	if u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0 {
		return u.Format("2006-01-02")
	}
	return u.Format(time.RFC3339)
}

// proposalSnapshot flattens the auditable fields of a proposal. Stage and
// fulfillment stamps are included so workflow actions show up in the same
// trail as edits.
func proposalSnapshot(p *repository.Proposal) map[string]any {
	items := make([]string, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, fmt.Sprintf("%s|%s|%g|%g",
			item.ProductName, item.ProductCode, item.Quantity, item.UnitPrice))
	}
	sort.Strings(items)

	return map[string]any{
		"name":                   p.Name,
		"proposal_date":          p.ProposalDate,
		"scope":                  string(p.Scope),
		"quantity":               p.Quantity,
		"currency":               p.Currency,
		"status":                 string(p.Status),
		"subtotal":               p.Subtotal,
		"vat_percent":            p.VATPercent,
		"vat_amount":             p.VATAmount,
		"total_amount":           p.TotalAmount,
		"supplier_info":          p.SupplierInfo,
		"rejection_reason":       p.RejectionReason,
		"linked_receipt_id":      p.LinkedReceiptID,
		"current_stage_deadline": p.CurrentStageDeadline,
		"team_approved_by":       p.Team.ActorID,
		"team_approved_at":       p.Team.At,
		"it_consulted_by":        p.IT.ActorID,
		"it_consulted_at":        p.IT.At,
		"finance_reviewed_by":    p.Finance.ActorID,
		"finance_reviewed_at":    p.Finance.At,
		"director_approved_by":   p.Director.ActorID,
		"director_approved_at":   p.Director.At,
		"purchasing_started_at":  p.Fulfillment.Purchasing.At,
		"payment_confirmed_at":   p.Fulfillment.Payment.At,
		"goods_received_at":      p.Fulfillment.GoodsReceived.At,
		"handed_over_at":         p.Fulfillment.Handover.At,
		"invoice_received_at":    p.Fulfillment.Invoice.At,
		"items":                  strings.Join(items, "; "),
	}
}
