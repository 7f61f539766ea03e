package service

import (
	"context"
	"strings"

	"github.com/itam-hq/be-procurement/internal/platform/errors"
	"github.com/itam-hq/be-procurement/internal/repository"
)

// TrackingService manages the free-text order tracking timeline. The log is
// informational only and never drives the state machine.
type TrackingService struct {
	store     TrackingStore
	proposals ProposalStore
}

// NewTrackingService creates a new TrackingService.
func NewTrackingService(store TrackingStore, proposals ProposalStore) *TrackingService {
	return &TrackingService{store: store, proposals: proposals}
}

// Append adds one note to a proposal's timeline. The only validation is that
// status_content carries text; the note is free-form by design.
func (s *TrackingService) Append(ctx context.Context, proposalID, statusContent, note, actorID string) (*repository.OrderTrackingEntry, error) {
	if strings.TrimSpace(statusContent) == "" {
		return nil, errors.InvalidInput("status_content", "must not be empty")
	}
	if _, err := s.proposals.GetByID(ctx, proposalID); err != nil {
		return nil, err
	}

	entry := &repository.OrderTrackingEntry{
		ProposalID:    proposalID,
		StatusContent: statusContent,
		Note:          note,
		ActorID:       actorID,
	}
	if err := s.store.Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// List returns a proposal's timeline, newest first.
func (s *TrackingService) List(ctx context.Context, proposalID string) ([]*repository.OrderTrackingEntry, error) {
	return s.store.ListByProposal(ctx, proposalID)
}
