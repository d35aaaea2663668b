// /internal/storage/storage.go
package storage

import (
	"errors"
	"fmt"
	"log"
	"maps"
	"os"
	"strings"

	"github.com/keshon/ptero-bot/datastore"
	"github.com/keshon/ptero-bot/internal/fault"
)

// TenantConfig is the panel binding of one guild.
type TenantConfig struct {
	PanelURL        string            `json:"panel_url,omitempty"`
	APIKey          string            `json:"api_key,omitempty"`
	ServerAliases   map[string]string `json:"server_aliases"`
	DefaultServerID string            `json:"default_server_id,omitempty"`

	// written by earlier releases; folded into DefaultServerID on read
	LegacyDefault string `json:"default_pterodactyl_server_uuid,omitempty"`
}

// Configured reports whether both the panel URL and the API key are set.
func (c TenantConfig) Configured() bool {
	return c.PanelURL != "" && c.APIKey != ""
}

// Storage is the process-wide tenant registry. Reads are lock-free; every
// mutation is serialized and written through to disk before it returns.
type Storage struct {
	ds *datastore.DataStore[TenantConfig]
}

// New opens the registry at filePath, keeping backups rotated copies.
func New(filePath string, backups int) (*Storage, error) {
	cfg := datastore.DefaultConfig(filePath)
	cfg.BackupCount = backups
	cfg.Logger = log.New(os.Stderr, "", log.LstdFlags)

	ds, err := datastore.NewWithConfig[TenantConfig](cfg)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	log.Printf("[INFO] Loaded panel configuration for %d guilds from %s", len(ds.Keys()), filePath)
	return &Storage{ds: ds}, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

// Get returns a shape-complete copy of the guild's config.
func (s *Storage) Get(guildID string) (TenantConfig, bool) {
	rec, ok := s.ds.Get(guildID)
	if !ok {
		return TenantConfig{}, false
	}
	return normalize(rec), true
}

// Tenants returns the IDs of all configured guilds, sorted.
func (s *Storage) Tenants() []string {
	return s.ds.Keys()
}

// Mutate applies fn to the guild's config, creating it if needed, and then
// persists the whole registry. fn receives a private copy; returning an error
// discards it and leaves both memory and disk untouched.
func (s *Storage) Mutate(guildID string, fn func(*TenantConfig) error) error {
	err := s.ds.Update(func(data map[string]TenantConfig) error {
		rec := normalize(data[guildID])
		if err := fn(&rec); err != nil {
			return err
		}
		data[guildID] = rec
		return nil
	})
	return persistFault(err)
}

// Persist retries a registry write that failed earlier.
func (s *Storage) Persist() error {
	return persistFault(s.ds.SaveToFile())
}

// AliasKey is the stored form of an alias name.
func AliasKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (s *Storage) SetAPIKey(guildID, apiKey string) error {
	return s.Mutate(guildID, func(c *TenantConfig) error {
		c.APIKey = strings.TrimSpace(apiKey)
		return nil
	})
}

func (s *Storage) SetPanelURL(guildID, panelURL string) error {
	return s.Mutate(guildID, func(c *TenantConfig) error {
		c.PanelURL = strings.TrimRight(strings.TrimSpace(panelURL), "/")
		return nil
	})
}

// SetDefault stores a canonical server ID as the guild default. Callers
// resolve aliases first.
func (s *Storage) SetDefault(guildID, serverID string) error {
	return s.Mutate(guildID, func(c *TenantConfig) error {
		c.DefaultServerID = strings.TrimSpace(serverID)
		return nil
	})
}

// SetAlias maps alias (case-insensitive) to serverID, overwriting any
// existing mapping.
func (s *Storage) SetAlias(guildID, alias, serverID string) error {
	return s.Mutate(guildID, func(c *TenantConfig) error {
		c.ServerAliases[AliasKey(alias)] = strings.TrimSpace(serverID)
		return nil
	})
}

// DeleteAlias removes alias and returns the server ID it pointed at. A
// missing alias is fault.AliasNotFound and nothing is written.
func (s *Storage) DeleteAlias(guildID, alias string) (string, error) {
	key := AliasKey(alias)
	var removed string
	err := s.Mutate(guildID, func(c *TenantConfig) error {
		id, ok := c.ServerAliases[key]
		if !ok {
			e := fault.New(fault.AliasNotFound, "delete_alias", "")
			e.Target = key
			return e
		}
		removed = id
		delete(c.ServerAliases, key)
		return nil
	})
	return removed, err
}

// normalize returns a copy with every optional field present and its own
// alias map, so callers may modify it freely.
func normalize(c TenantConfig) TenantConfig {
	if c.ServerAliases == nil {
		c.ServerAliases = map[string]string{}
	} else {
		c.ServerAliases = maps.Clone(c.ServerAliases)
	}
	if c.DefaultServerID == "" && c.LegacyDefault != "" {
		c.DefaultServerID = c.LegacyDefault
	}
	c.LegacyDefault = ""
	return c
}

func persistFault(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, datastore.ErrPersist) {
		log.Printf("[ERR] Failed to save panel configuration: %v", err)
		return fault.Wrap(fault.PersistenceError, "persist", err)
	}
	return err
}
