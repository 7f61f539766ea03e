package repository

import (
	"math"
	"time"
)

// ── Workflow vocabulary ──────────────────────────────────────────────────────

// ProposalStatus is the closed set of workflow states a proposal moves
// through. rejected and completed are terminal.
type ProposalStatus string

const (
	StatusNew             ProposalStatus = "new"
	StatusTeamApproved    ProposalStatus = "team_approved"
	StatusITConsulted     ProposalStatus = "it_consulted"
	StatusFinanceReviewed ProposalStatus = "finance_reviewed"
	StatusApproved        ProposalStatus = "approved"
	StatusCompleted       ProposalStatus = "completed"
	StatusRejected        ProposalStatus = "rejected"
)

// AllStatuses lists every valid proposal status.
func AllStatuses() []ProposalStatus {
	return []ProposalStatus{
		StatusNew, StatusTeamApproved, StatusITConsulted,
		StatusFinanceReviewed, StatusApproved, StatusCompleted, StatusRejected,
	}
}

// Valid reports whether s is one of the enumerated states.
func (s ProposalStatus) Valid() bool {
	switch s {
	case StatusNew, StatusTeamApproved, StatusITConsulted,
		StatusFinanceReviewed, StatusApproved, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further stage-advancing action is permitted.
func (s ProposalStatus) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// ProposalScope distinguishes shared kit from personal equipment requests.
type ProposalScope string

const (
	ScopeShared   ProposalScope = "shared"
	ScopePersonal ProposalScope = "personal"
)

// ── Permissions ──────────────────────────────────────────────────────────────

// PermissionCode is one entry in the flat permission namespace.
type PermissionCode string

const (
	PermApproveTeam       PermissionCode = "config_proposals.approve_team"
	PermConsultIT         PermissionCode = "config_proposals.consult_it"
	PermReviewFinance     PermissionCode = "config_proposals.review_finance"
	PermApproveDirector   PermissionCode = "config_proposals.approve_director"
	PermExecutePurchase   PermissionCode = "config_proposals.execute_purchase"
	PermExecuteAccounting PermissionCode = "config_proposals.execute_accounting"
	PermConfirmDelivery   PermissionCode = "config_proposals.confirm_delivery"
)

// Permission pairs a code with its display name.
type Permission struct {
	Code PermissionCode
	Name string
}

// PermissionCatalogue is the full set of permission codes this service
// recognizes, used to seed the permissions table and as the admin grant set.
func PermissionCatalogue() []Permission {
	return []Permission{
		{PermApproveTeam, "Approve proposals at the team stage"},
		{PermConsultIT, "Review configurations and suppliers (IT)"},
		{PermReviewFinance, "Review proposals against budget (finance)"},
		{PermApproveDirector, "Give final director approval"},
		{PermExecutePurchase, "Execute purchasing"},
		{PermExecuteAccounting, "Confirm payments and invoices"},
		{PermConfirmDelivery, "Confirm goods receipt and handover"},
	}
}

// PermissionSet is the resolved effective permission set for a user.
type PermissionSet map[PermissionCode]struct{}

// Has reports membership. The empty set denies everything.
func (s PermissionSet) Has(code PermissionCode) bool {
	_, ok := s[code]
	return ok
}

// Codes returns the set's members as a slice for serialization.
func (s PermissionSet) Codes() []PermissionCode {
	codes := make([]PermissionCode, 0, len(s))
	for c := range s {
		codes = append(codes, c)
	}
	return codes
}

// Role is a named bundle of permissions.
type Role struct {
	ID   string
	Name string
}

// User is the slice of the user record this service needs: identity,
// department membership, and the admin/manager flags the guards consult.
type User struct {
	ID           string
	FullName     string
	DepartmentID string
	IsAdmin      bool
	IsManager    bool
}

// ── Proposal aggregate ───────────────────────────────────────────────────────

// StageStamp records who acted at one approval stage and when.
type StageStamp struct {
	ActorID *string
	At      *time.Time
	Note    *string
}

// Set reports whether the stage has been stamped.
func (st StageStamp) Set() bool { return st.At != nil }

// FulfillmentFact is one of the five independent post-approval facts.
type FulfillmentFact struct {
	ActorID *string
	At      *time.Time
}

// Recorded reports whether the fact has been stamped.
func (f FulfillmentFact) Recorded() bool { return f.At != nil }

// Fulfillment is the post-approval checklist. Completion is a conjunction of
// all five facts, order-independent.
type Fulfillment struct {
	Purchasing    FulfillmentFact
	Payment       FulfillmentFact
	GoodsReceived FulfillmentFact
	Handover      FulfillmentFact
	Invoice       FulfillmentFact
}

// Complete reports whether every fulfillment fact has been recorded.
func (f Fulfillment) Complete() bool {
	return f.Purchasing.Recorded() &&
		f.Payment.Recorded() &&
		f.GoodsReceived.Recorded() &&
		f.Handover.Recorded() &&
		f.Invoice.Recorded()
}

// Proposal is one purchase request moving through approval.
type Proposal struct {
	ID                   string
	Name                 string
	ProposalDate         time.Time
	ProposerID           string
	ProposerDepartmentID string
	Scope                ProposalScope
	Quantity             int // identical kit copies
	Currency             string
	Status               ProposalStatus

	Subtotal    float64
	VATPercent  float64
	VATAmount   float64
	TotalAmount float64

	Team     StageStamp
	IT       StageStamp
	Finance  StageStamp
	Director StageStamp

	SupplierInfo    *string
	RejectionReason *string
	RejectedBy      *string
	RejectedAt      *time.Time

	CurrentStageDeadline *time.Time
	Fulfillment          Fulfillment
	LinkedReceiptID      *string

	CreatedBy string
	CreatedAt time.Time
	UpdatedBy *string
	UpdatedAt time.Time

	Items []*ProposalItem
}

// ProposalItem is one line of a proposal. Items are replaced wholesale on
// edit, never patched in place.
type ProposalItem struct {
	ID          string
	ProposalID  string
	ProductName string
	ProductCode string
	Quantity    float64
	UnitPrice   float64
	LineTotal   float64
}

// RecomputeTotals recalculates line totals and the monetary roll-up.
// Negative quantities and prices are clamped to zero so form entry stays
// forgiving; rounding is to two decimal places.
func (p *Proposal) RecomputeTotals() {
	if p.Quantity < 0 {
		p.Quantity = 0
	}
	subtotal := 0.0
	for _, item := range p.Items {
		item.Quantity = math.Max(0, item.Quantity)
		item.UnitPrice = math.Max(0, item.UnitPrice)
		item.LineTotal = Round2(item.Quantity * item.UnitPrice)
		subtotal += item.LineTotal
	}
	p.Subtotal = Round2(subtotal)
	if p.VATPercent < 0 {
		p.VATPercent = 0
	}
	base := p.Subtotal * float64(p.Quantity)
	p.VATAmount = Round2(base * p.VATPercent / 100)
	p.TotalAmount = Round2(base * (1 + p.VATPercent/100))
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ── Supporting records ───────────────────────────────────────────────────────

// OrderTrackingEntry is one append-only free-text note on a proposal's
// timeline. It never drives the state machine.
type OrderTrackingEntry struct {
	ID            string
	ProposalID    string
	StatusContent string
	Note          string
	ActorID       string
	CreatedAt     time.Time
}

// FieldChange is one before/after pair in an audit entry.
type FieldChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// AuditLogEntry is one immutable field-level change record.
type AuditLogEntry struct {
	ID         string
	EntityType string
	EntityID   string
	ChangedBy  string
	ChangedAt  time.Time
	Changes    map[string]FieldChange
}

// ProposalFilter narrows List queries.
type ProposalFilter struct {
	Status     *ProposalStatus
	ProposerID *string
	FromDate   *string // YYYY-MM-DD, inclusive
	ToDate     *string // YYYY-MM-DD, inclusive
	OverdueAt  *time.Time
	Limit      int
	Offset     int
}
