package game

import (
	"fmt"
	"sort"
)

// Registry maps game ids to registered plugins.
type Registry struct {
	plugins map[string]Plugin
}

func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

func (r *Registry) Register(p Plugin) error {
	id := p.ID()
	if _, dup := r.plugins[id]; dup {
		return fmt.Errorf("game %q already registered", id)
	}
	r.plugins[id] = p
	return nil
}

func (r *Registry) Get(id string) (Plugin, bool) {
	p, ok := r.plugins[id]
	return p, ok
}

// IDs returns the registered game ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.plugins))
	for id := range r.plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
