// Package cmd is the transport-neutral command core. A command has a name, a
// one-line description and a Run method; adapters decide how it is exposed
// and what travels in Invocation.Data.
package cmd

import "context"

// Invocation is the input of one command run. Data holds the adapter context,
// for example the Discord session plus interaction.
type Invocation struct {
	Args []string
	Data any
}

// Arg returns the i-th positional argument, or "" when absent.
func (inv *Invocation) Arg(i int) string {
	if inv == nil || i < 0 || i >= len(inv.Args) {
		return ""
	}
	return inv.Args[i]
}

// Command is implemented by everything the registry holds.
type Command interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}
