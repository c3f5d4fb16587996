package permission

import (
	"errors"
	"sort"
	"sync"
)

// RoleManager maps roles to the capabilities they grant by default.
//
// RoleManager instances are configured during initialization, frozen, and
// then only read.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	grants map[Role][]string
	frozen bool
}

// NewRoleManager returns a RoleManager validating grants against registry.
func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		grants:   make(map[Role][]string),
	}
}

// Grant sets the default capabilities of role, replacing earlier grants.
// Every capability must already be registered.
func (rm *RoleManager) Grant(role Role, capabilities []string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return errors.New("role manager frozen")
	}
	if !role.Valid() {
		return ErrUnknownRole
	}
	if rm.registry != nil {
		if err := rm.registry.Validate(capabilities); err != nil {
			return err
		}
	}

	rm.grants[role] = dedupe(capabilities)
	return nil
}

// Capabilities returns a copy of the default capabilities of role.
func (rm *RoleManager) Capabilities(role Role) []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	caps := rm.grants[role]
	if len(caps) == 0 {
		return nil
	}
	out := make([]string, len(caps))
	copy(out, caps)
	return out
}

// Expand returns the union of explicit and the default capabilities of role,
// sorted and without duplicates.
func (rm *RoleManager) Expand(role Role, explicit []string) []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	all := make([]string, 0, len(explicit)+len(rm.grants[role]))
	all = append(all, explicit...)
	all = append(all, rm.grants[role]...)
	return dedupe(all)
}

// Freeze prevents further grants.
func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
