package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/itam-hq/be-procurement/internal/repository"
)

// PermissionService computes the effective permission set for a user.
//
// Resolution is read-only and never fails outward: any storage error degrades
// to the empty set so that dashboards and template rendering keep working.
// Callers performing state-changing actions treat an empty set as deny.
type PermissionService struct {
	users UserStore
	perms PermissionStore
	log   zerolog.Logger
}

// NewPermissionService creates a new PermissionService.
func NewPermissionService(users UserStore, perms PermissionStore, log zerolog.Logger) *PermissionService {
	return &PermissionService{users: users, perms: perms, log: log}
}

// Resolve returns the effective permission codes for userID. Admins get the
// full catalogue, queried fresh so new permissions apply immediately; other
// users get the union of codes granted through their roles. An empty userID
// or any lookup failure resolves to the empty set.
func (s *PermissionService) Resolve(ctx context.Context, userID string) repository.PermissionSet {
	set := make(repository.PermissionSet)
	if userID == "" {
		return set
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Permission resolution failed; resolving empty set")
		return set
	}

	var codes []repository.PermissionCode
	if user.IsAdmin {
		codes, err = s.perms.ListAllCodes(ctx)
	} else {
		codes, err = s.perms.ListCodesForUser(ctx, userID)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Permission resolution failed; resolving empty set")
		return set
	}

	for _, code := range codes {
		set[code] = struct{}{}
	}
	return set
}
