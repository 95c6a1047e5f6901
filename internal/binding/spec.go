package binding

import (
	"fmt"

	"github.com/pztrick/television/internal/domain"
	"github.com/pztrick/television/internal/registry"
)

// DefaultStream is the stream channel shared by bindings that do not name one.
const DefaultStream domain.Channel = "television-updates"

// AllFields selects every declared field.
const AllFields = "__all__"

// ActionList is the permission action checked by the list channel.
const ActionList domain.Action = "list"

// Role selects preset group and permission rules.
type Role string

const (
	RoleStaff     Role = "staff"
	RoleSuperuser Role = "superuser"
	// RoleOwner scopes entities to their owning user. Not supported yet.
	RoleOwner Role = "owner"
)

// Fields selects which declared entity fields are serialized and writable.
// The zero value selects every field.
type Fields struct {
	names []string
	none  bool
}

// All selects every declared field.
func All() Fields { return Fields{} }

// Only selects the named fields. Only(AllFields) is the same as All().
func Only(names ...string) Fields {
	if len(names) == 1 && names[0] == AllFields {
		return All()
	}
	return Fields{names: append([]string(nil), names...)}
}

// NoFields emits only pk and send members.
func NoFields() Fields { return Fields{none: true} }

// ParseFields interprets the configuration forms "__all__", a name list, or nil.
func ParseFields(names []string, none bool) Fields {
	switch {
	case none:
		return NoFields()
	case len(names) == 0:
		return All()
	default:
		return Only(names...)
	}
}

// GroupRule picks the groups a change made by actor is broadcast to.
type GroupRule func(actor domain.Identity) []domain.Group

// PermissionRule decides whether id may perform action on the entity with pk.
// pk is nil for list and create.
type PermissionRule func(id domain.Identity, action domain.Action, pk *int64) bool

// Spec describes how one model is exposed. It is read once by Register.
type Spec[T any] struct {
	// Model is the label clients use, e.g. "core.task". The list channel is "<Model>.list".
	Model       string
	Fields      Fields
	Exclude     []string
	SendMembers []string
	Role        Role
	// OwnerField names the owning user for RoleOwner.
	OwnerField string
	Stream     domain.Channel
	GroupRule  GroupRule
	Permission PermissionRule
	// DenyCode is returned when Permission rejects a caller. Defaults by role.
	DenyCode string
	// MutationGuards replace the permission check for inbound create, update and delete.
	MutationGuards []registry.Guard
	Store          domain.EntityStore[T]
}

// rules resolves the role presets and explicit overrides.
func (s Spec[T]) rules() (GroupRule, PermissionRule, string, error) {
	groups, perm, code := s.GroupRule, s.Permission, s.DenyCode

	switch s.Role {
	case RoleStaff:
		if groups == nil {
			groups = func(domain.Identity) []domain.Group { return []domain.Group{domain.GroupStaff} }
		}
		if perm == nil {
			perm = func(id domain.Identity, _ domain.Action, _ *int64) bool { return id.IsStaff }
		}
		if code == "" {
			code = domain.CodeNoStaff
		}
	case RoleSuperuser:
		if groups == nil {
			groups = func(domain.Identity) []domain.Group { return []domain.Group{domain.GroupSuperusers} }
		}
		if perm == nil {
			perm = func(id domain.Identity, _ domain.Action, _ *int64) bool { return id.IsSuperuser }
		}
		if code == "" {
			code = domain.CodeNoSudo
		}
	case RoleOwner:
		return nil, nil, "", fmt.Errorf("owner-scoped binding for %s: %w", s.Model, domain.ErrNotImplemented)
	case "":
		if groups == nil || perm == nil {
			return nil, nil, "", fmt.Errorf("binding %s: needs a role or both a group rule and a permission rule", s.Model)
		}
		if code == "" {
			code = domain.CodeNoAuth
		}
	default:
		return nil, nil, "", fmt.Errorf("binding %s: unknown role %q", s.Model, s.Role)
	}
	return groups, perm, code, nil
}
