package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/itam-hq/be-procurement/internal/platform/errors"
	"github.com/itam-hq/be-procurement/internal/repository"
)

// WorkflowConfig carries the advisory SLA windows. Deadlines are stamped for
// dashboards only; crossing one never auto-transitions a proposal.
type WorkflowConfig struct {
	StageSLA       time.Duration // per approval stage, default 2 days
	FulfillmentSLA time.Duration // approval to completion, default 14 days
}

// WorkflowService drives a proposal through the approval state machine and
// the post-approval fulfillment checklist. Every transition consults the
// permission resolver, persists through a status-conditional write, and is
// recorded by the audit service.
type WorkflowService struct {
	proposals   ProposalStore
	users       UserStore
	permissions *PermissionService
	audit       *AuditService
	notifier    Notifier
	cfg         WorkflowConfig
	log         zerolog.Logger

	now func() time.Time
}

// NewWorkflowService creates a new WorkflowService. notifier may be nil when
// no event bus is configured.
func NewWorkflowService(
	proposals ProposalStore,
	users UserStore,
	permissions *PermissionService,
	audit *AuditService,
	notifier Notifier,
	cfg WorkflowConfig,
	log zerolog.Logger,
) *WorkflowService {
	if cfg.StageSLA <= 0 {
		cfg.StageSLA = 48 * time.Hour
	}
	if cfg.FulfillmentSLA <= 0 {
		cfg.FulfillmentSLA = 14 * 24 * time.Hour
	}
	return &WorkflowService{
		proposals:   proposals,
		users:       users,
		permissions: permissions,
		audit:       audit,
		notifier:    notifier,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

// ActionRequest is one workflow action invocation.
type ActionRequest struct {
	ProposalID   string
	Action       Action
	ActorID      string
	Note         string
	SupplierInfo string // consult_it only
	Reason       string // reject only, required
}

// ActionResult reports the outcome of an applied action.
type ActionResult struct {
	Status   repository.ProposalStatus `json:"status"`
	Message  string                    `json:"message"`
	Proposal *repository.Proposal      `json:"proposal"`
}

// Apply executes one named action against a proposal: whitelist check,
// permission guard, effect, then a persist that is conditional on the status
// read at the start. An unauthorized or invalid attempt leaves the proposal
// untouched.
func (s *WorkflowService) Apply(ctx context.Context, req *ActionRequest) (*ActionResult, error) {
	if !req.Action.Known() {
		return nil, errors.InvalidInput("action", fmt.Sprintf("unknown action %q", req.Action))
	}

	p, err := s.proposals.GetByID(ctx, req.ProposalID)
	if err != nil {
		return nil, err
	}
	sourceStatus := p.Status

	if !transitionAllowed(req.Action, sourceStatus) {
		return nil, errors.Newf(errors.ErrCodeConflict,
			"action %q is not valid from status %q", req.Action, sourceStatus)
	}

	actor, err := s.users.GetUser(ctx, req.ActorID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "unknown acting user")
	}
	if err := s.checkGuard(ctx, req.Action, actor, p); err != nil {
		return nil, err
	}

	before := proposalSnapshot(p)

	message, err := s.applyEffect(req, actor, p)
	if err != nil {
		return nil, err
	}

	p.UpdatedBy = &actor.ID
	if err := s.proposals.UpdateWorkflow(ctx, p, sourceStatus); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, EntityTypeProposal, p.ID, before, proposalSnapshot(p), actor.ID)
	s.publish(ctx, req.Action, p, actor.ID)

	s.log.Info().
		Str("proposal_id", p.ID).
		Str("action", string(req.Action)).
		Str("actor_id", actor.ID).
		Str("from_status", string(sourceStatus)).
		Str("to_status", string(p.Status)).
		Msg("Workflow action applied")

	return &ActionResult{Status: p.Status, Message: message, Proposal: p}, nil
}

// ── guards ───────────────────────────────────────────────────────────────────

// checkGuard enforces the permission or ownership predicate for an action.
// Admins pass every guard; an empty resolved permission set denies.
func (s *WorkflowService) checkGuard(ctx context.Context, action Action, actor *repository.User, p *repository.Proposal) error {
	if actor.IsAdmin {
		return nil
	}

	perms := s.permissions.Resolve(ctx, actor.ID)

	if action == ActionReject {
		if perms.Has(rejectPermission[p.Status]) {
			return nil
		}
		return errors.New(errors.ErrCodeUnauthorized,
			"user is not authorized to reject at this stage")
	}

	required := actionPermission[action]
	if perms.Has(required) {
		return nil
	}
	// The team stage additionally accepts the proposer's department manager.
	if action == ActionApproveTeam && actor.IsManager && actor.DepartmentID == p.ProposerDepartmentID {
		return nil
	}
	return errors.Newf(errors.ErrCodeUnauthorized,
		"user lacks permission %q", required)
}

// ── effects ──────────────────────────────────────────────────────────────────

func (s *WorkflowService) applyEffect(req *ActionRequest, actor *repository.User, p *repository.Proposal) (string, error) {
	now := s.now()

	switch req.Action {
	case ActionApproveTeam:
		p.Team = stamp(actor.ID, now, req.Note)
		p.Status = repository.StatusTeamApproved
		s.setDeadline(p, now, s.cfg.StageSLA)
		return "proposal approved at team stage", nil

	case ActionConsultIT:
		p.IT = stamp(actor.ID, now, req.Note)
		if strings.TrimSpace(req.SupplierInfo) != "" {
			info := req.SupplierInfo
			p.SupplierInfo = &info
		}
		p.Status = repository.StatusITConsulted
		s.setDeadline(p, now, s.cfg.StageSLA)
		return "IT consultation recorded", nil

	case ActionReviewFinance:
		p.Finance = stamp(actor.ID, now, req.Note)
		p.Status = repository.StatusFinanceReviewed
		s.setDeadline(p, now, s.cfg.StageSLA)
		return "finance review recorded", nil

	case ActionApproveDirector:
		p.Director = stamp(actor.ID, now, req.Note)
		p.Status = repository.StatusApproved
		s.setDeadline(p, now, s.cfg.FulfillmentSLA)
		return "proposal approved; fulfillment may begin", nil

	case ActionStartPurchasing:
		p.Fulfillment.Purchasing = fact(actor.ID, now)
	case ActionConfirmPayment:
		p.Fulfillment.Payment = fact(actor.ID, now)
	case ActionConfirmGoodsReceived:
		p.Fulfillment.GoodsReceived = fact(actor.ID, now)
	case ActionConfirmHandover:
		p.Fulfillment.Handover = fact(actor.ID, now)
	case ActionConfirmInvoice:
		p.Fulfillment.Invoice = fact(actor.ID, now)

	case ActionReject:
		if strings.TrimSpace(req.Reason) == "" {
			return "", errors.InvalidInput("reason", "rejection reason is required")
		}
		reason := req.Reason
		p.Status = repository.StatusRejected
		p.RejectionReason = &reason
		p.RejectedBy = &actor.ID
		p.RejectedAt = &now
		p.CurrentStageDeadline = nil
		return "proposal rejected", nil
	}

	// Fulfillment facts fall through to the shared completion check: the
	// transition to completed fires the instant all five are present,
	// regardless of order.
	if p.Fulfillment.Complete() {
		p.Status = repository.StatusCompleted
		p.CurrentStageDeadline = nil
		return "fulfillment fact recorded; all five present, proposal completed", nil
	}
	return "fulfillment fact recorded", nil
}

func (s *WorkflowService) setDeadline(p *repository.Proposal, now time.Time, sla time.Duration) {
	deadline := now.Add(sla)
	p.CurrentStageDeadline = &deadline
}

func (s *WorkflowService) publish(ctx context.Context, action Action, p *repository.Proposal, actorID string) {
	if s.notifier == nil {
		return
	}
	s.notifier.PublishProposalEvent(ctx, string(action), p.ID, actorID, map[string]any{
		"status":       string(p.Status),
		"proposer_id":  p.ProposerID,
		"total_amount": p.TotalAmount,
		"currency":     p.Currency,
	})
}

func stamp(actorID string, at time.Time, note string) repository.StageStamp {
	st := repository.StageStamp{ActorID: &actorID, At: &at}
	if strings.TrimSpace(note) != "" {
		n := note
		st.Note = &n
	}
	return st
}

func fact(actorID string, at time.Time) repository.FulfillmentFact {
	return repository.FulfillmentFact{ActorID: &actorID, At: &at}
}
