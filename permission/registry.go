package permission

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrRegistryFrozen    = errors.New("registry frozen")
	ErrEmptyPermission   = errors.New("permission name cannot be empty")
	ErrDuplicate         = errors.New("permission already registered")
	ErrPermissionLimit   = errors.New("permission limit exceeded")
	ErrUnknownPermission = errors.New("permission not registered")
)

// Registry maps permission names to bit positions within a [Mask64].
type Registry struct {
	wildcardReserved bool

	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    bool
}

// NewRegistry creates an empty [Registry]. With wildcardReserved, bit 63 is kept for
// the wildcard and at most 63 names can be registered.
func NewRegistry(wildcardReserved bool) *Registry {
	return &Registry{
		wildcardReserved: wildcardReserved,
		nameToBit:        make(map[string]int),
		bitToName:        make(map[int]string),
	}
}

// Register assigns the next available bit to the named permission.
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, ErrRegistryFrozen
	}
	if name == "" {
		return -1, ErrEmptyPermission
	}
	if _, exists := r.nameToBit[name]; exists {
		return -1, ErrDuplicate
	}

	nextBit := len(r.nameToBit)
	limit := 64
	if r.wildcardReserved {
		limit = wildcardBit
	}
	if nextBit >= limit {
		return -1, ErrPermissionLimit
	}

	r.nameToBit[name] = nextBit
	r.bitToName[nextBit] = name
	return nextBit, nil
}

// Bit returns the bit index for the named permission, or false if not registered.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Name returns the permission name for the given bit index, or false if unassigned.
func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// Names returns the registered names in bit order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bits := make([]int, 0, len(r.bitToName))
	for bit := range r.bitToName {
		bits = append(bits, bit)
	}
	sort.Ints(bits)
	out := make([]string, 0, len(bits))
	for _, bit := range bits {
		out = append(out, r.bitToName[bit])
	}
	return out
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered permissions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}

// WildcardReserved reports whether bit 63 is the wildcard.
func (r *Registry) WildcardReserved() bool {
	return r.wildcardReserved
}
