package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/itam-hq/be-procurement/internal/platform/errors"
	"github.com/itam-hq/be-procurement/internal/store/memory"
)

type AuditServiceSuite struct {
	suite.Suite
	store *memory.AuditStore
	svc   *AuditService
}

func TestAuditServiceSuite(t *testing.T) {
	suite.Run(t, new(AuditServiceSuite))
}

func (s *AuditServiceSuite) SetupTest() {
	s.store = memory.NewAuditStore()
	s.svc = NewAuditService(s.store, zerolog.Nop())
}

func (s *AuditServiceSuite) TestRecord() {
	ctx := context.Background()

	s.Run("identical snapshots write nothing", func() {
		snap := map[string]any{"name": "Laptop", "total_amount": 660.0}
		s.svc.Record(ctx, "config_proposal", "p1", snap, snap, "alice")

		entries, err := s.svc.History(ctx, "config_proposal", "p1")
		s.Require().NoError(err)
		s.Empty(entries)
	})

	s.Run("changed fields are recorded with before and after", func() {
		before := map[string]any{"name": "Laptop", "status": "new", "total_amount": 660.0}
		after := map[string]any{"name": "Laptop", "status": "team_approved", "total_amount": 726.0}
		s.svc.Record(ctx, "config_proposal", "p2", before, after, "mgr")

		entries, err := s.svc.History(ctx, "config_proposal", "p2")
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal("mgr", entries[0].ChangedBy)
		s.False(entries[0].ChangedAt.IsZero())
		s.Len(entries[0].Changes, 2)
		s.Equal("new", entries[0].Changes["status"].From)
		s.Equal("team_approved", entries[0].Changes["status"].To)
		s.Equal("660", entries[0].Changes["total_amount"].From)
		s.Equal("726", entries[0].Changes["total_amount"].To)
	})

	s.Run("keys present on only one side still diff", func() {
		s.svc.Record(ctx, "config_proposal", "p3",
			map[string]any{},
			map[string]any{"supplier_info": "FPT Trading"},
			"itc")

		entries, err := s.svc.History(ctx, "config_proposal", "p3")
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal("", entries[0].Changes["supplier_info"].From)
		s.Equal("FPT Trading", entries[0].Changes["supplier_info"].To)
	})

	s.Run("store failure is swallowed", func() {
		s.store.Err = errors.New(errors.ErrCodeInternal, "disk full")
		s.svc.Record(ctx, "config_proposal", "p4",
			map[string]any{"name": "a"},
			map[string]any{"name": "b"},
			"alice")
		s.store.Err = nil

		entries, err := s.svc.History(ctx, "config_proposal", "p4")
		s.Require().NoError(err)
		s.Empty(entries)
	})
}

func (s *AuditServiceSuite) TestCanonicalization() {
	ctx := context.Background()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	s.Run("a date and its string form compare equal", func() {
		s.svc.Record(ctx, "config_proposal", "c1",
			map[string]any{"proposal_date": date},
			map[string]any{"proposal_date": "2026-03-01"},
			"alice")

		entries, err := s.svc.History(ctx, "config_proposal", "c1")
		s.Require().NoError(err)
		s.Empty(entries)
	})

	s.Run("nil pointers compare equal to absent values", func() {
		var nilStr *string
		var nilTime *time.Time
		s.svc.Record(ctx, "config_proposal", "c2",
			map[string]any{"supplier_info": nilStr, "rejected_at": nilTime},
			map[string]any{"supplier_info": nil, "rejected_at": nil},
			"alice")

		entries, err := s.svc.History(ctx, "config_proposal", "c2")
		s.Require().NoError(err)
		s.Empty(entries)
	})

	s.Run("timestamps normalize to UTC", func() {
		loc := time.FixedZone("ICT", 7*3600)
		local := time.Date(2026, 3, 1, 17, 30, 0, 0, loc)
		utc := local.UTC()
		s.svc.Record(ctx, "config_proposal", "c3",
			map[string]any{"team_approved_at": &local},
			map[string]any{"team_approved_at": utc},
			"alice")

		entries, err := s.svc.History(ctx, "config_proposal", "c3")
		s.Require().NoError(err)
		s.Empty(entries)
	})

	s.Run("trailing float zeroes are trimmed", func() {
		s.svc.Record(ctx, "config_proposal", "c4",
			map[string]any{"subtotal": 200.0},
			map[string]any{"subtotal": 200.5},
			"alice")

		entries, err := s.svc.History(ctx, "config_proposal", "c4")
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal("200", entries[0].Changes["subtotal"].From)
		s.Equal("200.5", entries[0].Changes["subtotal"].To)
	})
}
