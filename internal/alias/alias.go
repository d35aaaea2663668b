// Package alias turns the identifiers users type into canonical panel server
// IDs. Everything here is pure: no I/O, no state.
package alias

import (
	"fmt"
	"strings"

	"github.com/keshon/ptero-bot/internal/fault"
	"github.com/keshon/ptero-bot/internal/storage"
)

// Resolve maps identifier through the guild's aliases. Unknown identifiers
// are returned unchanged and treated as canonical; they are validated only
// when the panel is called.
func Resolve(cfg storage.TenantConfig, identifier string) string {
	if identifier == "" {
		return ""
	}
	if id, ok := cfg.ServerAliases[storage.AliasKey(identifier)]; ok {
		return id
	}
	return identifier
}

// Target picks the server a command acts on: the resolved explicit
// identifier, else the guild default.
func Target(cfg storage.TenantConfig, identifier string) (string, error) {
	if identifier != "" {
		return Resolve(cfg, identifier), nil
	}
	if cfg.DefaultServerID != "" {
		return cfg.DefaultServerID, nil
	}
	return "", fault.New(fault.NoTargetConfigured, "resolve", "no server identifier given and no default server set")
}

// Describe renders the parenthesised suffix shown next to a server name:
// the typed alias and the ID when they differ from what is already shown,
// otherwise just the ID.
func Describe(input, canonical, displayName string) string {
	in := strings.ToLower(input)
	if input != "" && in != strings.ToLower(canonical) && in != strings.ToLower(displayName) {
		return fmt.Sprintf("(alias: `%s`, ID: `%s`)", input, canonical)
	}
	return fmt.Sprintf("(ID: `%s`)", canonical)
}
