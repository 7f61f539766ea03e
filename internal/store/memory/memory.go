// Package memory provides in-memory implementations of the service store
// interfaces. They back unit tests and the development fallback used when no
// database is configured; the postgres repositories are the production path.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/itam-hq/be-procurement/internal/platform/errors"
	"github.com/itam-hq/be-procurement/internal/repository"
)

// ── Proposal store ───────────────────────────────────────────────────────────

// ProposalStore is a mutex-guarded in-memory proposal store.
type ProposalStore struct {
	mu        sync.RWMutex
	proposals map[string]*repository.Proposal

	// Err, when set, is returned by every operation. Test hook for
	// persistence-failure paths.
	Err error
}

// NewProposalStore creates an empty proposal store.
func NewProposalStore() *ProposalStore {
	return &ProposalStore{proposals: make(map[string]*repository.Proposal)}
}

// Create stores a new proposal, assigning IDs and timestamps.
func (s *ProposalStore) Create(ctx context.Context, p *repository.Proposal) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now
	for _, item := range p.Items {
		item.ID = uuid.NewString()
		item.ProposalID = p.ID
	}
	s.proposals[p.ID] = cloneProposal(p)
	return nil
}

// GetByID returns a copy of the stored proposal.
func (s *ProposalStore) GetByID(ctx context.Context, id string) (*repository.Proposal, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, errors.NotFound("proposal", id)
	}
	return cloneProposal(p), nil
}

// List filters and pages stored proposals, newest first.
func (s *ProposalStore) List(ctx context.Context, f repository.ProposalFilter) ([]*repository.Proposal, int64, error) {
	if s.Err != nil {
		return nil, 0, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*repository.Proposal, 0)
	for _, p := range s.proposals {
		if f.Status != nil && p.Status != *f.Status {
			continue
		}
		if f.ProposerID != nil && p.ProposerID != *f.ProposerID {
			continue
		}
		if f.FromDate != nil && p.ProposalDate.Format("2006-01-02") < *f.FromDate {
			continue
		}
		if f.ToDate != nil && p.ProposalDate.Format("2006-01-02") > *f.ToDate {
			continue
		}
		if f.OverdueAt != nil {
			if p.Status.Terminal() || p.CurrentStageDeadline == nil ||
				!p.CurrentStageDeadline.Before(*f.OverdueAt) {
				continue
			}
		}
		matched = append(matched, cloneProposal(p))
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return []*repository.Proposal{}, total, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

// ReplaceItems applies an edit to the stored proposal without touching its
// workflow state.
func (s *ProposalStore) ReplaceItems(ctx context.Context, p *repository.Proposal) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.proposals[p.ID]
	if !ok {
		return errors.NotFound("proposal", p.ID)
	}

	stored.Name = p.Name
	stored.ProposalDate = p.ProposalDate
	stored.Scope = p.Scope
	stored.Quantity = p.Quantity
	stored.Currency = p.Currency
	stored.Subtotal = p.Subtotal
	stored.VATPercent = p.VATPercent
	stored.VATAmount = p.VATAmount
	stored.TotalAmount = p.TotalAmount
	stored.SupplierInfo = clonePtr(p.SupplierInfo)
	stored.UpdatedBy = clonePtr(p.UpdatedBy)
	stored.UpdatedAt = time.Now()

	stored.Items = make([]*repository.ProposalItem, 0, len(p.Items))
	for _, item := range p.Items {
		c := *item
		c.ID = uuid.NewString()
		c.ProposalID = p.ID
		stored.Items = append(stored.Items, &c)
	}
	p.UpdatedAt = stored.UpdatedAt
	return nil
}

// UpdateWorkflow persists workflow state conditional on the expected status,
// mirroring the postgres repository's optimistic update.
func (s *ProposalStore) UpdateWorkflow(ctx context.Context, p *repository.Proposal, expected repository.ProposalStatus) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.proposals[p.ID]
	if !ok {
		return errors.NotFound("proposal", p.ID)
	}
	if stored.Status != expected {
		return errors.Newf(errors.ErrCodeConflict,
			"proposal status changed concurrently (expected %q, now %q)", expected, stored.Status)
	}

	items := stored.Items
	updated := cloneProposal(p)
	updated.Items = items
	updated.UpdatedAt = time.Now()
	s.proposals[p.ID] = updated
	p.UpdatedAt = updated.UpdatedAt
	return nil
}

// LinkReceipt sets the receipt back-reference.
func (s *ProposalStore) LinkReceipt(ctx context.Context, id, receiptID string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.proposals[id]
	if !ok {
		return errors.NotFound("proposal", id)
	}
	stored.LinkedReceiptID = &receiptID
	return nil
}

// ── Identity store (users, roles, permission grants) ─────────────────────────

// IdentityStore holds users and role-based permission grants.
type IdentityStore struct {
	mu        sync.RWMutex
	users     map[string]*repository.User
	roles     map[string]map[repository.PermissionCode]struct{}
	userRoles map[string][]string
	catalogue []repository.PermissionCode

	// Err, when set, is returned by every read. Test hook for the
	// degrade-to-empty-set resolver behavior.
	Err error
}

// NewIdentityStore creates a store pre-loaded with the permission catalogue.
func NewIdentityStore() *IdentityStore {
	catalogue := make([]repository.PermissionCode, 0)
	for _, p := range repository.PermissionCatalogue() {
		catalogue = append(catalogue, p.Code)
	}
	return &IdentityStore{
		users:     make(map[string]*repository.User),
		roles:     make(map[string]map[repository.PermissionCode]struct{}),
		userRoles: make(map[string][]string),
		catalogue: catalogue,
	}
}

// AddUser registers a user.
func (s *IdentityStore) AddUser(u repository.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

// AddRole registers a role granting the given permission codes.
func (s *IdentityStore) AddRole(name string, codes ...repository.PermissionCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grants := make(map[repository.PermissionCode]struct{}, len(codes))
	for _, c := range codes {
		grants[c] = struct{}{}
	}
	s.roles[name] = grants
}

// AssignRole grants a role to a user.
func (s *IdentityStore) AssignRole(userID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userRoles[userID] = append(s.userRoles[userID], role)
}

// GetUser retrieves one user.
func (s *IdentityStore) GetUser(ctx context.Context, id string) (*repository.User, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, errors.NotFound("user", id)
	}
	c := *u
	return &c, nil
}

// ListAllCodes returns the full permission catalogue.
func (s *IdentityStore) ListAllCodes(ctx context.Context) ([]repository.PermissionCode, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]repository.PermissionCode, len(s.catalogue))
	copy(out, s.catalogue)
	return out, nil
}

// ListCodesForUser unions the codes granted through every assigned role.
func (s *IdentityStore) ListCodesForUser(ctx context.Context, userID string) ([]repository.PermissionCode, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	union := make(map[repository.PermissionCode]struct{})
	for _, role := range s.userRoles[userID] {
		for code := range s.roles[role] {
			union[code] = struct{}{}
		}
	}
	codes := make([]repository.PermissionCode, 0, len(union))
	for code := range union {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		return strings.Compare(string(codes[i]), string(codes[j])) < 0
	})
	return codes, nil
}

// ── Audit store ──────────────────────────────────────────────────────────────

// AuditStore is an append-only in-memory audit log.
type AuditStore struct {
	mu      sync.RWMutex
	entries []*repository.AuditLogEntry

	// Err, when set, fails Append. Test hook for the swallow-on-failure path.
	Err error
}

// NewAuditStore creates an empty audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// Append stores one entry.
func (s *AuditStore) Append(ctx context.Context, entry *repository.AuditLogEntry) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = uuid.NewString()
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now()
	}
	c := *entry
	changes := make(map[string]repository.FieldChange, len(entry.Changes))
	for k, v := range entry.Changes {
		changes[k] = v
	}
	c.Changes = changes
	s.entries = append(s.entries, &c)
	return nil
}

// ListByEntity returns entries for one entity, oldest first.
func (s *AuditStore) ListByEntity(ctx context.Context, entityType, entityID string) ([]*repository.AuditLogEntry, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*repository.AuditLogEntry, 0)
	for _, e := range s.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

// ── Tracking store ───────────────────────────────────────────────────────────

// TrackingStore is an append-only in-memory order tracking timeline.
type TrackingStore struct {
	mu      sync.RWMutex
	seq     int
	entries []*repository.OrderTrackingEntry
	order   map[string]int // entry id -> insertion sequence
}

// NewTrackingStore creates an empty tracking store.
func NewTrackingStore() *TrackingStore {
	return &TrackingStore{order: make(map[string]int)}
}

// Append stores one entry.
func (s *TrackingStore) Append(ctx context.Context, entry *repository.OrderTrackingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = uuid.NewString()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.seq++
	s.order[entry.ID] = s.seq
	c := *entry
	s.entries = append(s.entries, &c)
	return nil
}

// ListByProposal returns a proposal's timeline, newest first.
func (s *TrackingStore) ListByProposal(ctx context.Context, proposalID string) ([]*repository.OrderTrackingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*repository.OrderTrackingEntry, 0)
	for _, e := range s.entries {
		if e.ProposalID == proposalID {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.order[out[i].ID] > s.order[out[j].ID]
	})
	return out, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func cloneStamp(st repository.StageStamp) repository.StageStamp {
	return repository.StageStamp{
		ActorID: clonePtr(st.ActorID),
		At:      clonePtr(st.At),
		Note:    clonePtr(st.Note),
	}
}

func cloneFact(f repository.FulfillmentFact) repository.FulfillmentFact {
	return repository.FulfillmentFact{ActorID: clonePtr(f.ActorID), At: clonePtr(f.At)}
}

func cloneProposal(p *repository.Proposal) *repository.Proposal {
	c := *p
	c.Team = cloneStamp(p.Team)
	c.IT = cloneStamp(p.IT)
	c.Finance = cloneStamp(p.Finance)
	c.Director = cloneStamp(p.Director)
	c.SupplierInfo = clonePtr(p.SupplierInfo)
	c.RejectionReason = clonePtr(p.RejectionReason)
	c.RejectedBy = clonePtr(p.RejectedBy)
	c.RejectedAt = clonePtr(p.RejectedAt)
	c.CurrentStageDeadline = clonePtr(p.CurrentStageDeadline)
	c.LinkedReceiptID = clonePtr(p.LinkedReceiptID)
	c.UpdatedBy = clonePtr(p.UpdatedBy)
	c.Fulfillment = repository.Fulfillment{
		Purchasing:    cloneFact(p.Fulfillment.Purchasing),
		Payment:       cloneFact(p.Fulfillment.Payment),
		GoodsReceived: cloneFact(p.Fulfillment.GoodsReceived),
		Handover:      cloneFact(p.Fulfillment.Handover),
		Invoice:       cloneFact(p.Fulfillment.Invoice),
	}
	c.Items = make([]*repository.ProposalItem, 0, len(p.Items))
	for _, item := range p.Items {
		ic := *item
		c.Items = append(c.Items, &ic)
	}
	return &c
}
