package sandbox

import (
	"fmt"
	"sort"
)

// Manager maps sandbox names to resolved handles for one invocation. A fresh
// manager is built per invocation and discarded with it.
type Manager struct {
	handles map[string]*Handle
}

func NewManager(configs map[string]Config) (*Manager, error) {
	handles := make(map[string]*Handle, len(configs))
	for name, cfg := range configs {
		h, err := NewHandle(name, cfg)
		if err != nil {
			return nil, err
		}
		handles[name] = h
	}
	return &Manager{handles: handles}, nil
}

// Handle returns the handle for a declared sandbox name.
func (m *Manager) Handle(name string) (*Handle, error) {
	h, ok := m.handles[name]
	if !ok {
		return nil, fmt.Errorf("unknown sandbox %q", name)
	}
	return h, nil
}

// Names returns the declared sandbox names, sorted.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.handles))
	for name := range m.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
