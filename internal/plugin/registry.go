package plugin

import (
	"errors"
	"sort"
)

// ErrNoPlugins means the plugin directory yielded nothing usable. A
// daemon with no plugins is a configuration error, so this is fatal at
// startup.
var ErrNoPlugins = errors.New("no plugins loaded")

// Registry holds the fixed, ordered set of plugins for the daemon's
// lifetime. Dispatch order is lexicographic by plugin name; plugins are
// not ranked and every one is offered every mention.
type Registry struct {
	descriptors []Descriptor
}

// NewRegistry builds a registry from the given plugins, sorted by name.
// Duplicate names keep the first occurrence.
func NewRegistry(plugins []Plugin) (*Registry, error) {
	if len(plugins) == 0 {
		return nil, ErrNoPlugins
	}

	sorted := make([]Plugin, len(plugins))
	copy(sorted, plugins)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name() < sorted[j].Name()
	})

	r := &Registry{}
	seen := make(map[string]bool)
	for _, p := range sorted {
		if seen[p.Name()] {
			continue
		}
		seen[p.Name()] = true
		r.descriptors = append(r.descriptors, Descriptor{
			Name:     p.Name(),
			Position: len(r.descriptors),
			Plugin:   p,
		})
	}
	return r, nil
}

// Descriptors returns all plugins in dispatch order.
func (r *Registry) Descriptors() []Descriptor {
	return r.descriptors
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	return len(r.descriptors)
}

// Names returns plugin names in dispatch order, for status display.
func (r *Registry) Names() []string {
	names := make([]string, len(r.descriptors))
	for i, d := range r.descriptors {
		names[i] = d.Name
	}
	return names
}
