package permission

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrRoleManagerFrozen = errors.New("role manager frozen")
	ErrEmptyRole         = errors.New("role name empty")
	ErrDuplicateRole     = errors.New("role already registered")
	ErrWildcardDisabled  = errors.New("registry does not reserve a wildcard bit")
)

// RoleManager holds one [Mask64] per role name.
//
// RoleManager instances are configured during initialization and then frozen.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string]Mask64
	frozen bool
}

func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[string]Mask64),
	}
}

// RegisterRole grants roleName exactly the listed permissions. Every name must be
// registered in the underlying [Registry].
func (rm *RoleManager) RegisterRole(roleName string, permissionNames []string) error {
	var mask Mask64
	for _, perm := range permissionNames {
		bit, ok := rm.registry.Bit(perm)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPermission, perm)
		}
		mask.Set(bit)
	}
	return rm.store(roleName, mask)
}

// RegisterWildcard grants roleName every permission, present and future.
func (rm *RoleManager) RegisterWildcard(roleName string) error {
	if !rm.registry.WildcardReserved() {
		return ErrWildcardDisabled
	}
	var mask Mask64
	mask.Set(wildcardBit)
	return rm.store(roleName, mask)
}

func (rm *RoleManager) store(roleName string, mask Mask64) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return ErrRoleManagerFrozen
	}
	if roleName == "" {
		return ErrEmptyRole
	}
	if _, exists := rm.roles[roleName]; exists {
		return ErrDuplicateRole
	}
	rm.roles[roleName] = mask
	return nil
}

// Mask returns the mask registered for roleName.
func (rm *RoleManager) Mask(roleName string) (Mask64, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	mask, ok := rm.roles[roleName]
	return mask, ok
}

// Has reports whether roleName holds permission. Unknown roles hold nothing; a
// wildcard role holds everything, including unregistered names.
func (rm *RoleManager) Has(roleName, permission string) bool {
	mask, ok := rm.Mask(roleName)
	if !ok {
		return false
	}
	if rm.registry.WildcardReserved() && mask.Wildcard() {
		return true
	}
	bit, ok := rm.registry.Bit(permission)
	if !ok {
		return false
	}
	return mask.Has(bit, false)
}

// Permissions lists the names held by roleName in registration order.
func (rm *RoleManager) Permissions(roleName string) []string {
	if _, ok := rm.Mask(roleName); !ok {
		return nil
	}
	out := make([]string, 0, rm.registry.Count())
	for _, name := range rm.registry.Names() {
		if rm.Has(roleName, name) {
			out = append(out, name)
		}
	}
	return out
}

func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}
