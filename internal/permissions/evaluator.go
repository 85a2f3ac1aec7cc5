// Package permissions resolves what a display name may do from its role
// assignments. Everything here is pure; callers pass in the state to read.
package permissions

import (
	"fmt"

	"vox-chat/internal/domain"
	voxerrors "vox-chat/pkg/errors"
)

// Set is a bitmap of granted permissions.
type Set uint64

var bits = func() map[domain.Permission]Set {
	m := make(map[domain.Permission]Set, len(domain.AllPermissions))
	for i, p := range domain.AllPermissions {
		m[p] = 1 << i
	}
	return m
}()

func SetOf(perms ...domain.Permission) Set {
	var s Set
	for _, p := range perms {
		s |= bits[p]
	}
	return s
}

// Has reports whether p is granted. ADMINISTRATOR grants everything.
func (s Set) Has(p domain.Permission) bool {
	if s&bits[domain.PermAdministrator] != 0 {
		return true
	}
	flag, ok := bits[p]
	return ok && s&flag == flag
}

// Evaluator answers permission questions over one view of roles and
// display-name keyed assignments.
type Evaluator struct {
	roles       map[string]domain.Role
	assignments map[string][]string
}

func New(roles []domain.Role, assignments map[string][]string) Evaluator {
	byID := make(map[string]domain.Role, len(roles))
	for _, r := range roles {
		byID[r.ID] = r
	}
	return Evaluator{roles: byID, assignments: assignments}
}

// Granted unions the permission sets of every role assigned to name.
func (e Evaluator) Granted(name string) Set {
	if name == "" {
		return 0
	}
	var s Set
	for _, id := range e.assignments[name] {
		if r, ok := e.roles[id]; ok {
			s |= SetOf(r.Permissions...)
		}
	}
	return s
}

func (e Evaluator) Has(name string, p domain.Permission) bool {
	return e.Granted(name).Has(p)
}

// AdministratorHolders counts display names holding a role that carries
// ADMINISTRATOR.
func (e Evaluator) AdministratorHolders() int {
	n := 0
	for _, ids := range e.assignments {
		if e.holdsAdministrator(ids) {
			n++
		}
	}
	return n
}

func (e Evaluator) holdsAdministrator(ids []string) bool {
	for _, id := range ids {
		if r, ok := e.roles[id]; ok && r.IsAdministrator() {
			return true
		}
	}
	return false
}

// CheckRoleReplacement validates a full replacement of the role list.
// Exactly one role must carry ADMINISTRATOR, and if anyone holds it today
// someone must still hold it afterwards.
func (e Evaluator) CheckRoleReplacement(next []domain.Role) error {
	admins := 0
	seen := make(map[string]bool, len(next))
	for _, r := range next {
		if r.ID == "" {
			return fmt.Errorf("role without id: %w", voxerrors.ErrInvalidInput)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate role id %q: %w", r.ID, voxerrors.ErrInvalidInput)
		}
		seen[r.ID] = true
		if r.IsAdministrator() {
			admins++
		}
	}
	if admins != 1 {
		return voxerrors.ErrAdministratorRole
	}
	if e.AdministratorHolders() > 0 && New(next, e.assignments).AdministratorHolders() == 0 {
		return voxerrors.ErrLastAdministrator
	}
	return nil
}

// CheckAssignment validates replacing name's role ids with roleIDs.
func (e Evaluator) CheckAssignment(name string, roleIDs []string) error {
	if name == "" {
		return fmt.Errorf("assignment without user: %w", voxerrors.ErrInvalidInput)
	}
	for _, id := range roleIDs {
		if _, ok := e.roles[id]; !ok {
			return fmt.Errorf("role %q: %w", id, voxerrors.ErrNotFound)
		}
	}
	if e.AdministratorHolders() == 0 {
		return nil
	}
	next := make(map[string][]string, len(e.assignments)+1)
	for k, v := range e.assignments {
		next[k] = v
	}
	next[name] = roleIDs
	if (Evaluator{roles: e.roles, assignments: next}).AdministratorHolders() == 0 {
		return voxerrors.ErrLastAdministrator
	}
	return nil
}

// AdministratorRoleID returns the id of the role carrying ADMINISTRATOR.
func AdministratorRoleID(roles []domain.Role) (string, bool) {
	for _, r := range roles {
		if r.IsAdministrator() {
			return r.ID, true
		}
	}
	return "", false
}
