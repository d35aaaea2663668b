package cmd

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultRegistry holds the commands registered from package init functions.
var DefaultRegistry = NewRegistry()

// Registry stores commands by name. Dispatch is left to adapters.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds c. A second command with the same name is rejected.
func (r *Registry) Register(c Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := c.Name()
	if name == "" {
		return fmt.Errorf("command has no name")
	}
	if _, dup := r.commands[name]; dup {
		return fmt.Errorf("command %q already registered", name)
	}
	r.commands[name] = c
	return nil
}

// MustRegister is Register for init functions.
func (r *Registry) MustRegister(c Command) {
	if err := r.Register(c); err != nil {
		panic(err)
	}
}

// Get returns the command with the given name, or nil.
func (r *Registry) Get(name string) Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commands[name]
}

// All returns every command sorted by name.
func (r *Registry) All() []Command {
	r.mu.RLock()
	list := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		list = append(list, c)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}
