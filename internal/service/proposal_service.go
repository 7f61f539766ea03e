package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/itam-hq/be-procurement/internal/platform/errors"
	"github.com/itam-hq/be-procurement/internal/repository"
)

// EntityTypeProposal is the audit entity type for proposals.
const EntityTypeProposal = "config_proposal"

// ProposalService handles proposal creation, edits and reads. Workflow
// actions live in WorkflowService.
type ProposalService struct {
	proposals   ProposalStore
	permissions *PermissionService
	audit       *AuditService
	log         zerolog.Logger
}

// NewProposalService creates a new ProposalService.
func NewProposalService(
	proposals ProposalStore,
	permissions *PermissionService,
	audit *AuditService,
	log zerolog.Logger,
) *ProposalService {
	return &ProposalService{
		proposals:   proposals,
		permissions: permissions,
		audit:       audit,
		log:         log,
	}
}

// ProposalItemRequest is one line of a create or edit request.
type ProposalItemRequest struct {
	ProductName string  `json:"product_name"`
	ProductCode string  `json:"product_code"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// CreateProposalRequest carries a new purchase request.
type CreateProposalRequest struct {
	Name         string                 `json:"name"`
	ProposalDate string                 `json:"proposal_date"`
	Scope        string                 `json:"scope"`
	Quantity     int                    `json:"quantity"`
	Currency     string                 `json:"currency"`
	VATPercent   float64                `json:"vat_percent"`
	Items        []*ProposalItemRequest `json:"items"`
	ActorID      string                 `json:"-"`
	DepartmentID string                 `json:"-"`
}

// EditProposalRequest replaces a proposal's line items and header fields.
type EditProposalRequest struct {
	ID           string                 `json:"-"`
	Name         string                 `json:"name"`
	ProposalDate string                 `json:"proposal_date"`
	Scope        string                 `json:"scope"`
	Quantity     int                    `json:"quantity"`
	Currency     string                 `json:"currency"`
	VATPercent   float64                `json:"vat_percent"`
	SupplierInfo *string                `json:"supplier_info"`
	Items        []*ProposalItemRequest `json:"items"`
	ActorID      string                 `json:"-"`
}

// Create validates and stores a new proposal in state new. Any authenticated
// user may create; the proposer is the acting user.
func (s *ProposalService) Create(ctx context.Context, req *CreateProposalRequest) (*repository.Proposal, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.InvalidInput("name", "must not be empty")
	}

	proposalDate, err := parseProposalDate(req.ProposalDate)
	if err != nil {
		return nil, err
	}
	scope, err := parseScope(req.Scope)
	if err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return nil, errors.InvalidInput("currency", "must be a 3-letter ISO code")
	}
	if len(req.Items) < 1 {
		return nil, errors.InvalidInput("items", "proposal must have at least 1 item")
	}

	actor, err := s.permissions.users.GetUser(ctx, req.ActorID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "unknown acting user")
	}

	p := &repository.Proposal{
		Name:                 strings.TrimSpace(req.Name),
		ProposalDate:         proposalDate,
		ProposerID:           actor.ID,
		ProposerDepartmentID: actor.DepartmentID,
		Scope:                scope,
		Quantity:             req.Quantity,
		Currency:             currency,
		Status:               repository.StatusNew,
		VATPercent:           req.VATPercent,
		CreatedBy:            actor.ID,
		Items:                buildItems(req.Items),
	}
	p.RecomputeTotals()

	if err := s.proposals.Create(ctx, p); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("proposal_id", p.ID).
		Str("proposer_id", p.ProposerID).
		Int("item_count", len(p.Items)).
		Float64("total_amount", p.TotalAmount).
		Msg("Proposal created")

	return p, nil
}

// Edit replaces a proposal's items wholesale and recomputes monetary totals.
// Permitted to the creator or an admin while the proposal is not terminal,
// and to consult_it permission holders while the proposal sits in the IT
// review window (team_approved or it_consulted). Never changes status.
func (s *ProposalService) Edit(ctx context.Context, req *EditProposalRequest) (*repository.Proposal, error) {
	p, err := s.proposals.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if p.Status.Terminal() {
		return nil, errors.Newf(errors.ErrCodeConflict,
			"cannot edit proposal with status %q", p.Status)
	}

	actor, err := s.permissions.users.GetUser(ctx, req.ActorID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "unknown acting user")
	}
	if !s.canEdit(ctx, actor, p) {
		return nil, errors.New(errors.ErrCodeUnauthorized,
			"user is not permitted to edit this proposal")
	}

	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.InvalidInput("name", "must not be empty")
	}
	proposalDate, err := parseProposalDate(req.ProposalDate)
	if err != nil {
		return nil, err
	}
	scope, err := parseScope(req.Scope)
	if err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return nil, errors.InvalidInput("currency", "must be a 3-letter ISO code")
	}
	if len(req.Items) < 1 {
		return nil, errors.InvalidInput("items", "proposal must have at least 1 item")
	}

	before := proposalSnapshot(p)

	p.Name = strings.TrimSpace(req.Name)
	p.ProposalDate = proposalDate
	p.Scope = scope
	p.Quantity = req.Quantity
	p.Currency = currency
	p.VATPercent = req.VATPercent
	if req.SupplierInfo != nil {
		p.SupplierInfo = req.SupplierInfo
	}
	p.Items = buildItems(req.Items)
	p.RecomputeTotals()
	p.UpdatedBy = &actor.ID

	if err := s.proposals.ReplaceItems(ctx, p); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, EntityTypeProposal, p.ID, before, proposalSnapshot(p), actor.ID)

	s.log.Info().
		Str("proposal_id", p.ID).
		Str("edited_by", actor.ID).
		Float64("total_amount", p.TotalAmount).
		Msg("Proposal edited")

	return p, nil
}

// LinkReceipt records the goods-receipt back-reference once inventory books
// the delivery. Permitted to delivery confirmers and admins, and only after
// the proposal has cleared approval.
func (s *ProposalService) LinkReceipt(ctx context.Context, id, receiptID, actorID string) (*repository.Proposal, error) {
	if strings.TrimSpace(receiptID) == "" {
		return nil, errors.InvalidInput("receipt_id", "must not be empty")
	}

	p, err := s.proposals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != repository.StatusApproved && p.Status != repository.StatusCompleted {
		return nil, errors.Newf(errors.ErrCodeConflict,
			"goods receipt cannot be linked while status is %q", p.Status)
	}

	actor, err := s.permissions.users.GetUser(ctx, actorID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "unknown acting user")
	}
	if !actor.IsAdmin && !s.permissions.Resolve(ctx, actor.ID).Has(repository.PermConfirmDelivery) {
		return nil, errors.Newf(errors.ErrCodeUnauthorized,
			"user lacks permission %q", repository.PermConfirmDelivery)
	}

	before := proposalSnapshot(p)
	if err := s.proposals.LinkReceipt(ctx, id, receiptID); err != nil {
		return nil, err
	}
	p.LinkedReceiptID = &receiptID
	s.audit.Record(ctx, EntityTypeProposal, p.ID, before, proposalSnapshot(p), actor.ID)

	s.log.Info().
		Str("proposal_id", p.ID).
		Str("receipt_id", receiptID).
		Str("linked_by", actor.ID).
		Msg("Goods receipt linked")

	return p, nil
}

// Get retrieves a proposal with its items.
func (s *ProposalService) Get(ctx context.Context, id string) (*repository.Proposal, error) {
	return s.proposals.GetByID(ctx, id)
}

// List retrieves proposals matching the filter with pagination.
func (s *ProposalService) List(ctx context.Context, f repository.ProposalFilter) ([]*repository.Proposal, int64, error) {
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.proposals.List(ctx, f)
}

// canEdit implements the edit gate: creator or admin always; consult_it
// holders while the proposal is in the IT review window so IT can correct
// configuration and pricing mid-review.
func (s *ProposalService) canEdit(ctx context.Context, actor *repository.User, p *repository.Proposal) bool {
	if actor.IsAdmin || actor.ID == p.CreatedBy {
		return true
	}
	if p.Status == repository.StatusTeamApproved || p.Status == repository.StatusITConsulted {
		return s.permissions.Resolve(ctx, actor.ID).Has(repository.PermConsultIT)
	}
	return false
}

func buildItems(reqs []*ProposalItemRequest) []*repository.ProposalItem {
	items := make([]*repository.ProposalItem, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, &repository.ProposalItem{
			ProductName: strings.TrimSpace(r.ProductName),
			ProductCode: strings.TrimSpace(r.ProductCode),
			Quantity:    r.Quantity,
			UnitPrice:   r.UnitPrice,
		})
	}
	return items
}

func parseProposalDate(raw string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.InvalidInput("proposal_date", "invalid date format, expected YYYY-MM-DD")
	}
	return t, nil
}

func parseScope(raw string) (repository.ProposalScope, error) {
	switch repository.ProposalScope(strings.ToLower(raw)) {
	case repository.ScopeShared:
		return repository.ScopeShared, nil
	case repository.ScopePersonal:
		return repository.ScopePersonal, nil
	case "":
		return repository.ScopeShared, nil
	default:
		return "", errors.InvalidInput("scope", "must be shared or personal")
	}
}
