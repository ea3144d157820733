// Package access implements the authorization capability consumed by the
// file service: personal files require ownership, team files require a
// membership role.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/scenekeeper/internal/common"
	"github.com/dmitrijs2005/scenekeeper/internal/server/models"
	"github.com/dmitrijs2005/scenekeeper/internal/server/repositories/users"
)

// Control decides whether a user may read or write a given file.
// Both methods return nil on success and common.ErrForbidden on denial.
type Control interface {
	CanRead(ctx context.Context, userID string, file *models.File) error
	CanWrite(ctx context.Context, userID string, file *models.File) error

	// CanCreateIn authorizes creating a file in the given scope. A nil
	// teamID (personal scope) is always allowed.
	CanCreateIn(ctx context.Context, userID string, teamID *string) error
}

// Service derives access from ownership and team membership roles.
type Service struct {
	users users.Repository
}

func NewService(users users.Repository) *Service {
	return &Service{users: users}
}

func (s *Service) CanRead(ctx context.Context, userID string, file *models.File) error {
	return s.check(ctx, userID, file, false)
}

func (s *Service) CanWrite(ctx context.Context, userID string, file *models.File) error {
	return s.check(ctx, userID, file, true)
}

func (s *Service) check(ctx context.Context, userID string, file *models.File, write bool) error {
	if file.TeamID == nil {
		if file.OwnerUserID != userID {
			return common.ErrForbidden
		}
		return nil
	}

	role, err := s.users.GetTeamRole(ctx, *file.TeamID, userID)
	if errors.Is(err, common.ErrNotFound) {
		return common.ErrForbidden
	}
	if err != nil {
		return fmt.Errorf("failed to resolve team role: %w", err)
	}

	if write {
		switch role {
		case models.TeamRoleOwner, models.TeamRoleAdmin, models.TeamRoleMember:
			return nil
		default:
			return common.ErrForbidden
		}
	}
	return nil
}

func (s *Service) CanCreateIn(ctx context.Context, userID string, teamID *string) error {
	if teamID == nil {
		return nil
	}
	_, err := s.users.GetTeamRole(ctx, *teamID, userID)
	if errors.Is(err, common.ErrNotFound) {
		return common.ErrForbidden
	}
	return err
}
