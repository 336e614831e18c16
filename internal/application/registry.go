package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ericfisherdev/blimp/internal/domain/model"
	"github.com/ericfisherdev/blimp/internal/domain/port/driven"
)

// Registry maps app names to adapters and action names to handlers.
// It is built once at startup and never mutated afterwards, so concurrent
// reads need no locking.
type Registry struct {
	apps  map[string]*registeredApp
	names []string
}

type registeredApp struct {
	adapter driven.AppAdapter
	actions map[string]driven.Action
	order   []string
}

// AppInfo describes a registered app for catalog listings.
type AppInfo struct {
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Actions     []ActionInfo `json:"actions"`
}

// ActionInfo describes one action of a registered app.
type ActionInfo struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	ReadOnly    bool              `json:"read_only"`
	Fields      []model.FieldSpec `json:"fields"`
}

// NewRegistry builds a Registry from adapters. It rejects empty or duplicate
// app names, duplicate action names and actions without a handler.
func NewRegistry(adapters ...driven.AppAdapter) (*Registry, error) {
	r := &Registry{apps: make(map[string]*registeredApp, len(adapters))}

	for _, a := range adapters {
		if a == nil {
			return nil, errors.New("nil adapter")
		}
		name := NormalizeAppName(a.Name())
		if name == "" {
			return nil, errors.New("adapter with empty name")
		}
		if _, dup := r.apps[name]; dup {
			return nil, fmt.Errorf("duplicate adapter %q", name)
		}

		entry := &registeredApp{adapter: a, actions: make(map[string]driven.Action)}
		for _, act := range a.Actions() {
			if act.Name == "" {
				return nil, fmt.Errorf("adapter %q: action with empty name", name)
			}
			if act.Handler == nil {
				return nil, fmt.Errorf("adapter %q: action %q has no handler", name, act.Name)
			}
			if _, dup := entry.actions[act.Name]; dup {
				return nil, fmt.Errorf("adapter %q: duplicate action %q", name, act.Name)
			}
			entry.actions[act.Name] = act
			entry.order = append(entry.order, act.Name)
		}
		sort.Strings(entry.order)

		r.apps[name] = entry
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)

	return r, nil
}

// NormalizeAppName trims and lower-cases an app name from a request path.
func NormalizeAppName(app string) string {
	return strings.ToLower(strings.TrimSpace(app))
}

// Lookup returns the adapter registered under app.
func (r *Registry) Lookup(app string) (driven.AppAdapter, bool) {
	entry, ok := r.apps[NormalizeAppName(app)]
	if !ok {
		return nil, false
	}
	return entry.adapter, true
}

// Action returns the named action of app. Action names are case-sensitive.
func (r *Registry) Action(app, action string) (driven.Action, bool) {
	entry, ok := r.apps[NormalizeAppName(app)]
	if !ok {
		return driven.Action{}, false
	}
	act, ok := entry.actions[action]
	return act, ok
}

// Apps returns the registered app names, sorted.
func (r *Registry) Apps() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Catalog describes every registered app and action, sorted by name.
func (r *Registry) Catalog() []AppInfo {
	catalog := make([]AppInfo, 0, len(r.names))
	for _, name := range r.names {
		entry := r.apps[name]
		info := AppInfo{
			Name:        name,
			DisplayName: entry.adapter.DisplayName(),
			Actions:     make([]ActionInfo, 0, len(entry.order)),
		}
		for _, actName := range entry.order {
			act := entry.actions[actName]
			fields := act.Fields
			if fields == nil {
				fields = []model.FieldSpec{}
			}
			info.Actions = append(info.Actions, ActionInfo{
				Name:        act.Name,
				Description: act.Description,
				ReadOnly:    act.ReadOnly,
				Fields:      fields,
			})
		}
		catalog = append(catalog, info)
	}
	return catalog
}
