package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/itam-hq/be-procurement/internal/platform/errors"
	"github.com/itam-hq/be-procurement/internal/repository"
	"github.com/itam-hq/be-procurement/internal/store/memory"
)

type capturedEvent struct {
	EventType  string
	ProposalID string
	ActorID    string
	Payload    map[string]any
}

type fakeNotifier struct {
	events []capturedEvent
}

func (f *fakeNotifier) PublishProposalEvent(_ context.Context, eventType, proposalID, actorID string, payload map[string]any) {
	f.events = append(f.events, capturedEvent{eventType, proposalID, actorID, payload})
}

type WorkflowServiceSuite struct {
	suite.Suite
	proposals *memory.ProposalStore
	identity  *memory.IdentityStore
	audits    *memory.AuditStore
	notifier  *fakeNotifier
	svc       *WorkflowService
	clock     time.Time
}

func TestWorkflowServiceSuite(t *testing.T) {
	suite.Run(t, new(WorkflowServiceSuite))
}

func (s *WorkflowServiceSuite) SetupTest() {
	s.proposals = memory.NewProposalStore()
	s.identity = memory.NewIdentityStore()
	s.audits = memory.NewAuditStore()
	s.notifier = &fakeNotifier{}
	s.clock = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	s.identity.AddUser(repository.User{ID: "admin", FullName: "Root", IsAdmin: true})
	s.identity.AddUser(repository.User{ID: "alice", FullName: "Alice", DepartmentID: "dept-eng"})
	s.identity.AddUser(repository.User{ID: "mgr", FullName: "Eng Manager", DepartmentID: "dept-eng", IsManager: true})
	s.identity.AddUser(repository.User{ID: "othermgr", FullName: "Sales Manager", DepartmentID: "dept-sales", IsManager: true})
	s.identity.AddUser(repository.User{ID: "teamlead", FullName: "Team Lead", DepartmentID: "dept-eng"})
	s.identity.AddUser(repository.User{ID: "itc", FullName: "IT Consultant"})
	s.identity.AddUser(repository.User{ID: "fin", FullName: "Finance"})
	s.identity.AddUser(repository.User{ID: "dir", FullName: "Director"})
	s.identity.AddUser(repository.User{ID: "buyer", FullName: "Purchasing"})
	s.identity.AddUser(repository.User{ID: "acct", FullName: "Accounting"})
	s.identity.AddUser(repository.User{ID: "wh", FullName: "Warehouse"})

	s.identity.AddRole("team_approver", repository.PermApproveTeam)
	s.identity.AddRole("it_consultant", repository.PermConsultIT)
	s.identity.AddRole("finance_reviewer", repository.PermReviewFinance)
	s.identity.AddRole("director", repository.PermApproveDirector)
	s.identity.AddRole("purchasing", repository.PermExecutePurchase)
	s.identity.AddRole("accounting", repository.PermExecuteAccounting)
	s.identity.AddRole("warehouse", repository.PermConfirmDelivery)

	s.identity.AssignRole("teamlead", "team_approver")
	s.identity.AssignRole("itc", "it_consultant")
	s.identity.AssignRole("fin", "finance_reviewer")
	s.identity.AssignRole("dir", "director")
	s.identity.AssignRole("buyer", "purchasing")
	s.identity.AssignRole("acct", "accounting")
	s.identity.AssignRole("wh", "warehouse")

	nop := zerolog.Nop()
	permSvc := NewPermissionService(s.identity, s.identity, nop)
	auditSvc := NewAuditService(s.audits, nop)
	s.svc = NewWorkflowService(s.proposals, s.identity, permSvc, auditSvc, s.notifier, WorkflowConfig{}, nop)
	s.svc.now = func() time.Time { return s.clock }
}

func (s *WorkflowServiceSuite) newProposal(status repository.ProposalStatus) *repository.Proposal {
	p := &repository.Proposal{
		Name:                 "Laptops for onboarding",
		ProposalDate:         time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		ProposerID:           "alice",
		ProposerDepartmentID: "dept-eng",
		Scope:                repository.ScopeShared,
		Quantity:             2,
		Currency:             "VND",
		Status:               status,
		CreatedBy:            "alice",
		Items: []*repository.ProposalItem{
			{ProductName: "ThinkPad T14", ProductCode: "TP-T14", Quantity: 1, UnitPrice: 25000000},
		},
	}
	p.RecomputeTotals()
	s.Require().NoError(s.proposals.Create(context.Background(), p))
	return p
}

func (s *WorkflowServiceSuite) apply(id string, action Action, actorID string) (*ActionResult, error) {
	return s.svc.Apply(context.Background(), &ActionRequest{
		ProposalID: id,
		Action:     action,
		ActorID:    actorID,
	})
}

func (s *WorkflowServiceSuite) TestApprovalChain() {
	ctx := context.Background()
	p := s.newProposal(repository.StatusNew)

	res, err := s.svc.Apply(ctx, &ActionRequest{
		ProposalID: p.ID, Action: ActionApproveTeam, ActorID: "teamlead", Note: "standard kit",
	})
	s.Require().NoError(err)
	s.Equal(repository.StatusTeamApproved, res.Status)
	s.Require().NotNil(res.Proposal.Team.At)
	s.Equal("teamlead", *res.Proposal.Team.ActorID)
	s.Equal("standard kit", *res.Proposal.Team.Note)
	s.Require().NotNil(res.Proposal.CurrentStageDeadline)
	s.Equal(s.clock.Add(48*time.Hour), *res.Proposal.CurrentStageDeadline)

	res, err = s.svc.Apply(ctx, &ActionRequest{
		ProposalID: p.ID, Action: ActionConsultIT, ActorID: "itc",
		SupplierInfo: "FPT Trading, quote #8841",
	})
	s.Require().NoError(err)
	s.Equal(repository.StatusITConsulted, res.Status)
	s.Require().NotNil(res.Proposal.SupplierInfo)
	s.Equal("FPT Trading, quote #8841", *res.Proposal.SupplierInfo)

	res, err = s.apply(p.ID, ActionReviewFinance, "fin")
	s.Require().NoError(err)
	s.Equal(repository.StatusFinanceReviewed, res.Status)

	res, err = s.apply(p.ID, ActionApproveDirector, "dir")
	s.Require().NoError(err)
	s.Equal(repository.StatusApproved, res.Status)
	s.Require().NotNil(res.Proposal.CurrentStageDeadline)
	s.Equal(s.clock.Add(14*24*time.Hour), *res.Proposal.CurrentStageDeadline)

	stored, err := s.proposals.GetByID(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(repository.StatusApproved, stored.Status)
	s.True(stored.Team.Set())
	s.True(stored.IT.Set())
	s.True(stored.Finance.Set())
	s.True(stored.Director.Set())
}

func (s *WorkflowServiceSuite) TestFulfillmentOrderIndependent() {
	ctx := context.Background()

	// Two scrambled orders must both land on completed after the fifth fact.
	orders := [][]struct {
		action Action
		actor  string
	}{
		{
			{ActionStartPurchasing, "buyer"},
			{ActionConfirmPayment, "acct"},
			{ActionConfirmGoodsReceived, "wh"},
			{ActionConfirmHandover, "wh"},
			{ActionConfirmInvoice, "acct"},
		},
		{
			{ActionConfirmInvoice, "acct"},
			{ActionConfirmHandover, "wh"},
			{ActionStartPurchasing, "buyer"},
			{ActionConfirmGoodsReceived, "wh"},
			{ActionConfirmPayment, "acct"},
		},
	}

	for _, order := range orders {
		p := s.newProposal(repository.StatusApproved)
		for i, step := range order {
			res, err := s.apply(p.ID, step.action, step.actor)
			s.Require().NoError(err)
			if i < len(order)-1 {
				s.Equal(repository.StatusApproved, res.Status, "must stay approved until all five facts")
			} else {
				s.Equal(repository.StatusCompleted, res.Status)
				s.Nil(res.Proposal.CurrentStageDeadline)
			}
		}
		stored, err := s.proposals.GetByID(ctx, p.ID)
		s.Require().NoError(err)
		s.True(stored.Fulfillment.Complete())
	}
}

func (s *WorkflowServiceSuite) TestFulfillmentRestampAllowed() {
	p := s.newProposal(repository.StatusApproved)

	_, err := s.apply(p.ID, ActionStartPurchasing, "buyer")
	s.Require().NoError(err)

	s.clock = s.clock.Add(time.Hour)
	res, err := s.apply(p.ID, ActionStartPurchasing, "admin")
	s.Require().NoError(err)
	s.Equal(repository.StatusApproved, res.Status)
	s.Equal("admin", *res.Proposal.Fulfillment.Purchasing.ActorID)
}

func (s *WorkflowServiceSuite) TestInvalidTransitions() {
	// Every (action, status) pair outside the whitelist must fail with a
	// conflict, using an admin actor so the permission guard cannot mask the
	// transition check.
	valid := map[Action]map[repository.ProposalStatus]bool{
		ActionApproveTeam:          {repository.StatusNew: true},
		ActionConsultIT:            {repository.StatusTeamApproved: true},
		ActionReviewFinance:        {repository.StatusITConsulted: true},
		ActionApproveDirector:      {repository.StatusFinanceReviewed: true},
		ActionStartPurchasing:      {repository.StatusApproved: true},
		ActionConfirmPayment:       {repository.StatusApproved: true},
		ActionConfirmGoodsReceived: {repository.StatusApproved: true},
		ActionConfirmHandover:      {repository.StatusApproved: true},
		ActionConfirmInvoice:       {repository.StatusApproved: true},
		ActionReject: {
			repository.StatusNew: true, repository.StatusTeamApproved: true,
			repository.StatusITConsulted: true, repository.StatusFinanceReviewed: true,
		},
	}

	for _, action := range AllActions() {
		for _, status := range repository.AllStatuses() {
			if valid[action][status] {
				continue
			}
			p := s.newProposal(status)
			_, err := s.svc.Apply(context.Background(), &ActionRequest{
				ProposalID: p.ID, Action: action, ActorID: "admin", Reason: "n/a",
			})
			s.Require().Error(err, "action %s from %s must be refused", action, status)
			s.Equal(errors.ErrCodeConflict, errors.CodeOf(err), "action %s from %s", action, status)

			stored, getErr := s.proposals.GetByID(context.Background(), p.ID)
			s.Require().NoError(getErr)
			s.Equal(status, stored.Status, "refused action must not mutate the proposal")
		}
	}
}

func (s *WorkflowServiceSuite) TestUnknownAction() {
	p := s.newProposal(repository.StatusNew)
	_, err := s.apply(p.ID, Action("escalate"), "admin")
	s.Require().Error(err)
	s.Equal(errors.ErrCodeInvalidInput, errors.CodeOf(err))
}

func (s *WorkflowServiceSuite) TestGuards() {
	s.Run("permission holder passes", func() {
		p := s.newProposal(repository.StatusNew)
		_, err := s.apply(p.ID, ActionApproveTeam, "teamlead")
		s.NoError(err)
	})

	s.Run("admin bypasses every guard", func() {
		p := s.newProposal(repository.StatusTeamApproved)
		_, err := s.apply(p.ID, ActionConsultIT, "admin")
		s.NoError(err)
	})

	s.Run("manager of the proposing department may team-approve", func() {
		p := s.newProposal(repository.StatusNew)
		_, err := s.apply(p.ID, ActionApproveTeam, "mgr")
		s.NoError(err)
	})

	s.Run("manager of another department is refused", func() {
		p := s.newProposal(repository.StatusNew)
		_, err := s.apply(p.ID, ActionApproveTeam, "othermgr")
		s.Require().Error(err)
		s.Equal(errors.ErrCodeUnauthorized, errors.CodeOf(err))
	})

	s.Run("user with no grants is refused", func() {
		p := s.newProposal(repository.StatusNew)
		_, err := s.apply(p.ID, ActionApproveTeam, "alice")
		s.Require().Error(err)
		s.Equal(errors.ErrCodeUnauthorized, errors.CodeOf(err))
	})

	s.Run("wrong stage permission is refused", func() {
		p := s.newProposal(repository.StatusTeamApproved)
		_, err := s.apply(p.ID, ActionConsultIT, "fin")
		s.Require().Error(err)
		s.Equal(errors.ErrCodeUnauthorized, errors.CodeOf(err))
	})

	s.Run("unknown actor is refused", func() {
		p := s.newProposal(repository.StatusNew)
		_, err := s.apply(p.ID, ActionApproveTeam, "ghost")
		s.Require().Error(err)
		s.Equal(errors.ErrCodeUnauthorized, errors.CodeOf(err))
	})

	s.Run("identity store failure refuses the action", func() {
		p := s.newProposal(repository.StatusNew)
		s.identity.Err = errors.New(errors.ErrCodeInternal, "identity store down")
		defer func() { s.identity.Err = nil }()

		_, err := s.apply(p.ID, ActionApproveTeam, "teamlead")
		s.Require().Error(err)
		s.Equal(errors.ErrCodeUnauthorized, errors.CodeOf(err))
	})
}

func (s *WorkflowServiceSuite) TestReject() {
	ctx := context.Background()

	rejecters := map[repository.ProposalStatus]string{
		repository.StatusNew:             "teamlead",
		repository.StatusTeamApproved:    "itc",
		repository.StatusITConsulted:     "fin",
		repository.StatusFinanceReviewed: "dir",
	}

	for status, actor := range rejecters {
		p := s.newProposal(status)
		res, err := s.svc.Apply(ctx, &ActionRequest{
			ProposalID: p.ID, Action: ActionReject, ActorID: actor,
			Reason: "over budget for this quarter",
		})
		s.Require().NoError(err, "reject from %s by %s", status, actor)
		s.Equal(repository.StatusRejected, res.Status)
		s.Require().NotNil(res.Proposal.RejectionReason)
		s.Equal("over budget for this quarter", *res.Proposal.RejectionReason)
		s.Equal(actor, *res.Proposal.RejectedBy)
		s.NotNil(res.Proposal.RejectedAt)
		s.Nil(res.Proposal.CurrentStageDeadline)

		// rejected is terminal
		_, err = s.apply(p.ID, ActionApproveTeam, "admin")
		s.Require().Error(err)
		s.Equal(errors.ErrCodeConflict, errors.CodeOf(err))
	}

	s.Run("reason is required", func() {
		p := s.newProposal(repository.StatusNew)
		_, err := s.svc.Apply(ctx, &ActionRequest{
			ProposalID: p.ID, Action: ActionReject, ActorID: "teamlead",
		})
		s.Require().Error(err)
		s.Equal(errors.ErrCodeInvalidInput, errors.CodeOf(err))

		stored, getErr := s.proposals.GetByID(ctx, p.ID)
		s.Require().NoError(getErr)
		s.Equal(repository.StatusNew, stored.Status)
	})

	s.Run("only the pending stage's approver may reject", func() {
		p := s.newProposal(repository.StatusTeamApproved)
		_, err := s.svc.Apply(ctx, &ActionRequest{
			ProposalID: p.ID, Action: ActionReject, ActorID: "teamlead",
			Reason: "changed my mind",
		})
		s.Require().Error(err)
		s.Equal(errors.ErrCodeUnauthorized, errors.CodeOf(err))
	})
}

// racingStore moves the proposal forward between the service's read and its
// conditional write, standing in for a second concurrent approver.
type racingStore struct {
	*memory.ProposalStore
	once  bool
	svcID string
}

func (r *racingStore) GetByID(ctx context.Context, id string) (*repository.Proposal, error) {
	p, err := r.ProposalStore.GetByID(ctx, id)
	if err == nil && !r.once && id == r.svcID {
		r.once = true
		winner := *p
		winner.Status = repository.StatusTeamApproved
		if uerr := r.ProposalStore.UpdateWorkflow(ctx, &winner, repository.StatusNew); uerr != nil {
			return nil, uerr
		}
	}
	return p, err
}

func (s *WorkflowServiceSuite) TestConcurrentApproverLosesWithConflict() {
	p := s.newProposal(repository.StatusNew)

	nop := zerolog.Nop()
	racing := &racingStore{ProposalStore: s.proposals, svcID: p.ID}
	permSvc := NewPermissionService(s.identity, s.identity, nop)
	auditSvc := NewAuditService(s.audits, nop)
	svc := NewWorkflowService(racing, s.identity, permSvc, auditSvc, nil, WorkflowConfig{}, nop)
	svc.now = func() time.Time { return s.clock }

	_, err := svc.Apply(context.Background(), &ActionRequest{
		ProposalID: p.ID, Action: ActionApproveTeam, ActorID: "teamlead",
	})
	s.Require().Error(err)
	s.Equal(errors.ErrCodeConflict, errors.CodeOf(err))

	stored, getErr := s.proposals.GetByID(context.Background(), p.ID)
	s.Require().NoError(getErr)
	s.Equal(repository.StatusTeamApproved, stored.Status, "the first writer's state must survive")
}

func (s *WorkflowServiceSuite) TestAuditAndEvents() {
	ctx := context.Background()
	p := s.newProposal(repository.StatusNew)

	_, err := s.apply(p.ID, ActionApproveTeam, "teamlead")
	s.Require().NoError(err)

	entries, err := s.audits.ListByEntity(ctx, EntityTypeProposal, p.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("teamlead", entries[0].ChangedBy)
	change, ok := entries[0].Changes["status"]
	s.Require().True(ok, "status change must be audited")
	s.Equal("new", change.From)
	s.Equal("team_approved", change.To)

	s.Require().Len(s.notifier.events, 1)
	s.Equal("approve_team", s.notifier.events[0].EventType)
	s.Equal(p.ID, s.notifier.events[0].ProposalID)
	s.Equal("teamlead", s.notifier.events[0].ActorID)
	s.Equal("team_approved", s.notifier.events[0].Payload["status"])
}

func (s *WorkflowServiceSuite) TestPersistenceFailureSurfacesInternal() {
	p := s.newProposal(repository.StatusNew)
	s.proposals.Err = errors.New(errors.ErrCodeInternal, "connection reset")
	defer func() { s.proposals.Err = nil }()

	_, err := s.apply(p.ID, ActionApproveTeam, "admin")
	s.Require().Error(err)
	s.Equal(errors.ErrCodeInternal, errors.CodeOf(err))
}
