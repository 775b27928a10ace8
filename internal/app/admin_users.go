package app

import (
	"context"
	"strings"

	"carmarket/api/internal/rbac"
	"carmarket/api/internal/store"
)

// ListUsers returns a page of users for the admin console.
func (s *Service) ListUsers(ctx context.Context, search string, limit, offset int) (map[string]any, error) {
	users, total, err := s.store.ListUsers(ctx, strings.TrimSpace(search), limit, offset)
	if err != nil {
		return nil, err
	}

	formatted := make([]map[string]any, len(users))
	for i, u := range users {
		formatted[i] = map[string]any{
			"id":              u.ID,
			"email":           u.Email,
			"firstName":       u.FirstName,
			"lastName":        u.LastName,
			"phone":           u.Phone,
			"role":            u.Role,
			"isActive":        u.IsActive,
			"isEmailVerified": u.IsEmailVerified,
			"createdAt":       u.CreatedAt,
		}
	}

	return map[string]any{
		"users": formatted,
		"total": total,
	}, nil
}

func (s *Service) UpdateUserRole(ctx context.Context, adminID, userID, role string) error {
	role = strings.ToLower(strings.TrimSpace(role))
	if !rbac.Valid(role) {
		return validationError("Unknown role", map[string]any{"role": role})
	}
	if userID == adminID && role != string(rbac.RoleAdmin) {
		return conflict("SELF_DEMOTION", "Admins cannot remove their own admin role", nil)
	}
	if err := s.store.UpdateUserRole(ctx, userID, role); err != nil {
		return err
	}
	s.afterCommit(ctx, func(ctx context.Context) {
		s.audit(ctx, store.ActivityLog{
			Category:     store.CategoryAdminAction,
			Message:      "User role changed",
			UserID:       adminID,
			TargetUserID: userID,
			Metadata:     map[string]any{"role": role},
		})
	})
	return nil
}

// SetUserActive enables or disables an account. Disabled users fail session
// lookup on their next request.
func (s *Service) SetUserActive(ctx context.Context, adminID, userID string, active bool) error {
	if userID == adminID && !active {
		return conflict("SELF_DEACTIVATION", "Admins cannot deactivate their own account", nil)
	}
	if err := s.store.SetUserActive(ctx, userID, active); err != nil {
		return err
	}
	s.afterCommit(ctx, func(ctx context.Context) {
		s.audit(ctx, store.ActivityLog{
			Category:     store.CategoryAdminAction,
			Message:      "User status changed",
			UserID:       adminID,
			TargetUserID: userID,
			Metadata:     map[string]any{"isActive": active},
		})
	})
	return nil
}
