package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/itam-hq/be-procurement/internal/platform/errors"
	"github.com/itam-hq/be-procurement/internal/repository"
)

type ProposalStoreSuite struct {
	suite.Suite
	store *ProposalStore
}

func TestProposalStoreSuite(t *testing.T) {
	suite.Run(t, new(ProposalStoreSuite))
}

func (s *ProposalStoreSuite) SetupTest() {
	s.store = NewProposalStore()
}

func (s *ProposalStoreSuite) seed(status repository.ProposalStatus) *repository.Proposal {
	p := &repository.Proposal{
		Name:         "Access points",
		ProposalDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		ProposerID:   "alice",
		Status:       status,
		Currency:     "VND",
		CreatedBy:    "alice",
		Items: []*repository.ProposalItem{
			{ProductName: "AP", Quantity: 2, UnitPrice: 100},
		},
	}
	s.Require().NoError(s.store.Create(context.Background(), p))
	return p
}

func (s *ProposalStoreSuite) TestUpdateWorkflowConditional() {
	ctx := context.Background()
	p := s.seed(repository.StatusNew)

	p.Status = repository.StatusTeamApproved
	s.Require().NoError(s.store.UpdateWorkflow(ctx, p, repository.StatusNew))

	// Same expected status a second time must lose.
	p.Status = repository.StatusITConsulted
	err := s.store.UpdateWorkflow(ctx, p, repository.StatusNew)
	s.Require().Error(err)
	s.Equal(errors.ErrCodeConflict, errors.CodeOf(err))

	stored, err := s.store.GetByID(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(repository.StatusTeamApproved, stored.Status)
	s.Len(stored.Items, 1, "workflow updates keep items intact")
}

func (s *ProposalStoreSuite) TestReturnedCopiesAreIsolated() {
	ctx := context.Background()
	p := s.seed(repository.StatusNew)

	got, err := s.store.GetByID(ctx, p.ID)
	s.Require().NoError(err)
	got.Name = "mutated"
	got.Items[0].UnitPrice = 999

	again, err := s.store.GetByID(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal("Access points", again.Name)
	s.InDelta(100.0, again.Items[0].UnitPrice, 0.001)
}

func (s *ProposalStoreSuite) TestReplaceItemsLeavesWorkflowAlone() {
	ctx := context.Background()
	p := s.seed(repository.StatusTeamApproved)

	p.Items = []*repository.ProposalItem{
		{ProductName: "AP Pro", Quantity: 1, UnitPrice: 300},
	}
	p.Name = "Access points, revised"
	s.Require().NoError(s.store.ReplaceItems(ctx, p))

	stored, err := s.store.GetByID(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(repository.StatusTeamApproved, stored.Status)
	s.Equal("Access points, revised", stored.Name)
	s.Require().Len(stored.Items, 1)
	s.Equal("AP Pro", stored.Items[0].ProductName)
}

func (s *ProposalStoreSuite) TestListFilters() {
	ctx := context.Background()
	s.seed(repository.StatusNew)
	approved := s.seed(repository.StatusApproved)

	status := repository.StatusApproved
	got, total, err := s.store.List(ctx, repository.ProposalFilter{Status: &status})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.EqualValues(1, total)
	s.Equal(approved.ID, got[0].ID)

	s.Run("terminal proposals are never overdue", func() {
		now := time.Now()
		past := now.Add(-time.Hour)
		rejected := s.seed(repository.StatusRejected)
		rejected.CurrentStageDeadline = &past
		s.Require().NoError(s.store.UpdateWorkflow(ctx, rejected, repository.StatusRejected))

		got, _, err := s.store.List(ctx, repository.ProposalFilter{OverdueAt: &now})
		s.Require().NoError(err)
		s.Empty(got)
	})
}

func (s *ProposalStoreSuite) TestLinkReceipt() {
	ctx := context.Background()
	p := s.seed(repository.StatusCompleted)

	s.Require().NoError(s.store.LinkReceipt(ctx, p.ID, "rcpt-17"))

	stored, err := s.store.GetByID(ctx, p.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored.LinkedReceiptID)
	s.Equal("rcpt-17", *stored.LinkedReceiptID)

	err = s.store.LinkReceipt(ctx, "nope", "rcpt-17")
	s.Require().Error(err)
	s.Equal(errors.ErrCodeNotFound, errors.CodeOf(err))
}
