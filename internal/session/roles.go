package session

import (
	"errors"
	"slices"

	"vox-chat/internal/domain"
	voxerrors "vox-chat/pkg/errors"
)

// IsPermissionDenied reports whether err came from a permission check.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, voxerrors.ErrForbidden) || errors.Is(err, voxerrors.ErrUnnamed)
}

func (s *Store) Roles() []domain.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rolesCopy()
}

func (s *Store) rolesCopy() []domain.Role {
	out := make([]domain.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r.Clone())
	}
	return out
}

// Assignments returns the display-name keyed role assignments.
func (s *Store) Assignments() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assignmentsCopy()
}

func (s *Store) assignmentsCopy() map[string][]string {
	out := make(map[string][]string, len(s.assignments))
	for name, ids := range s.assignments {
		out[name] = slices.Clone(ids)
	}
	return out
}

// ReplaceRoles swaps the whole role list. The actor needs ADMINISTRATOR and
// the new list must keep exactly one administrator role with at least one
// holder.
func (s *Store) ReplaceRoles(actorID string, roles []domain.Role) ([]domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require(actorID, domain.PermAdministrator); err != nil {
		return nil, err
	}
	for _, r := range roles {
		for _, p := range r.Permissions {
			if !p.Valid() {
				return nil, voxerrors.ErrInvalidInput
			}
		}
	}
	if err := s.evaluator().CheckRoleReplacement(roles); err != nil {
		return nil, err
	}

	next := make([]domain.Role, 0, len(roles))
	for _, r := range roles {
		perms := make([]domain.Permission, 0, len(r.Permissions))
		for _, p := range r.Permissions {
			if !slices.Contains(perms, p) {
				perms = append(perms, p)
			}
		}
		r.Permissions = perms
		next = append(next, r)
	}
	s.roles = next
	return s.rolesCopy(), nil
}

// AssignRoles replaces the role ids of one display name. The actor needs
// MANAGE_ROLES and the change may not strip the last administrator.
func (s *Store) AssignRoles(actorID, name string, roleIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require(actorID, domain.PermManageRoles); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(roleIDs))
	for _, id := range roleIDs {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if err := s.evaluator().CheckAssignment(name, ids); err != nil {
		return nil, err
	}
	s.assignments[name] = ids
	return slices.Clone(ids), nil
}
