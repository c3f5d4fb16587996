package permission

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownCapability is returned when a capability was never registered.
var ErrUnknownCapability = errors.New("unknown capability")

const maxCapabilityLength = 128

// Registry is the set of capability names a deployment recognizes.
type Registry struct {
	mu     sync.RWMutex
	names  map[string]struct{}
	frozen bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register adds a capability. Must be called before [Registry.Freeze].
func (r *Registry) Register(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errors.New("registry frozen")
	}
	if err := validCapabilityName(name); err != nil {
		return err
	}
	if _, exists := r.names[name]; exists {
		return errors.New("capability already registered")
	}

	r.names[name] = struct{}{}
	return nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.names[name]
	return ok
}

// Validate returns ErrUnknownCapability naming the first unregistered entry.
func (r *Registry) Validate(names []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range names {
		if _, ok := r.names[n]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCapability, n)
		}
	}
	return nil
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Count returns the number of registered capabilities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// Names returns the registered capabilities in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.names))
	for n := range r.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func validCapabilityName(name string) error {
	if name == "" {
		return errors.New("capability name cannot be empty")
	}
	if len(name) > maxCapabilityLength {
		return errors.New("capability name too long")
	}
	if strings.TrimSpace(name) != name || strings.ContainsAny(name, " \t\r\n|") {
		return errors.New("capability name contains invalid characters")
	}
	return nil
}
