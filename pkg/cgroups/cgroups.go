package cgroups

import (
	"sort"

	"github.com/Orochimarufan/cdev/pkg/device"
)

// Manager adjusts a container's device control group.
type Manager interface {
	// Name is the identifier CGROUP assignments refer to.
	Name() string

	// Allow grants the container access to the device.
	Allow(container string, dev device.Device) error

	// Deny revokes the container's access to the device.
	Deny(container string, dev device.Device) error
}

// Registry is an immutable name→manager lookup, built once at startup.
type Registry struct {
	managers map[string]Manager
}

// NewRegistry builds a registry from the given managers.
func NewRegistry(managers ...Manager) *Registry {
	r := &Registry{managers: make(map[string]Manager, len(managers))}
	for _, m := range managers {
		r.managers[m.Name()] = m
	}
	return r
}

// Get returns the manager registered under name.
func (r *Registry) Get(name string) (Manager, bool) {
	m, ok := r.managers[name]
	return m, ok
}

// Names returns the registered manager names, sorted. Filter-rule
// presets use this to validate CGROUP values at parse time.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.managers))
	for name := range r.managers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
