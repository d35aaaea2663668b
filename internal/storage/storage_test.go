package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/keshon/ptero-bot/internal/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStorage(t *testing.T) (*Storage, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ptero_guild_configs.json")
	s, err := New(path, 0)
	require.NoError(t, err)
	return s, path
}

func TestGetMissingTenant(t *testing.T) {
	s, _ := newStorage(t)
	_, ok := s.Get("g1")
	assert.False(t, ok)
}

func TestGetBackfillsOptionalFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	raw := `{"42": {"panel_url": "https://panel.example.com", "api_key": "ptlc_abcdefgh"}}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0600))

	s, err := New(path, 0)
	require.NoError(t, err)

	cfg, ok := s.Get("42")
	require.True(t, ok)
	assert.NotNil(t, cfg.ServerAliases)
	assert.Empty(t, cfg.ServerAliases)
	assert.Equal(t, "", cfg.DefaultServerID)
	assert.True(t, cfg.Configured())
}

func TestGetMigratesLegacyDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	raw := `{"42": {"server_aliases": {"survival": "abc"}, "default_pterodactyl_server_uuid": "abc"}}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0600))

	s, err := New(path, 0)
	require.NoError(t, err)

	cfg, ok := s.Get("42")
	require.True(t, ok)
	assert.Equal(t, "abc", cfg.DefaultServerID)
	assert.Equal(t, "", cfg.LegacyDefault)
}

func TestGetReturnsPrivateCopy(t *testing.T) {
	s, _ := newStorage(t)
	require.NoError(t, s.SetAlias("g1", "survival", "abc-123"))

	cfg, _ := s.Get("g1")
	cfg.ServerAliases["hacked"] = "x"

	again, _ := s.Get("g1")
	assert.NotContains(t, again.ServerAliases, "hacked")
}

func TestSetAliasOverwrites(t *testing.T) {
	s, _ := newStorage(t)
	require.NoError(t, s.SetAlias("g1", "Survival", "abc-123"))
	require.NoError(t, s.SetAlias("g1", "SURVIVAL", "def-456"))

	cfg, _ := s.Get("g1")
	assert.Equal(t, map[string]string{"survival": "def-456"}, cfg.ServerAliases)
}

func TestSetPanelURLStripsTrailingSlash(t *testing.T) {
	s, _ := newStorage(t)
	require.NoError(t, s.SetPanelURL("g1", "https://panel.example.com//"))

	cfg, _ := s.Get("g1")
	assert.Equal(t, "https://panel.example.com", cfg.PanelURL)
}

func TestDeleteAlias(t *testing.T) {
	s, _ := newStorage(t)
	require.NoError(t, s.SetAlias("g1", "survival", "abc-123"))

	id, err := s.DeleteAlias("g1", "SURVIVAL")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)

	cfg, _ := s.Get("g1")
	assert.Empty(t, cfg.ServerAliases)
}

func TestDeleteMissingAliasLeavesFileUnchanged(t *testing.T) {
	s, path := newStorage(t)
	require.NoError(t, s.SetAlias("g1", "survival", "abc-123"))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = s.DeleteAlias("g1", "creative")
	assert.True(t, fault.Is(err, fault.AliasNotFound))

	_, err = s.DeleteAlias("unknown-guild", "creative")
	assert.True(t, fault.Is(err, fault.AliasNotFound))
	assert.Equal(t, []string{"g1"}, s.Tenants(), "failed delete must not create a tenant")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDefaultSurvivesAliasDeletion(t *testing.T) {
	s, _ := newStorage(t)
	require.NoError(t, s.SetAlias("g1", "survival", "abc-123"))
	require.NoError(t, s.SetDefault("g1", "abc-123"))
	_, err := s.DeleteAlias("g1", "survival")
	require.NoError(t, err)

	cfg, _ := s.Get("g1")
	assert.Equal(t, "abc-123", cfg.DefaultServerID)
}

func TestPersistReloadRoundTrip(t *testing.T) {
	s, path := newStorage(t)
	require.NoError(t, s.SetPanelURL("g1", "https://panel.example.com/"))
	require.NoError(t, s.SetAPIKey("g1", "ptlc_secret_key"))
	require.NoError(t, s.SetAlias("g1", "survival", "abc-123"))
	require.NoError(t, s.SetDefault("g1", "abc-123"))
	require.NoError(t, s.SetAlias("g2", "lobby", "zzz"))

	reloaded, err := New(path, 0)
	require.NoError(t, err)

	for _, id := range []string{"g1", "g2"} {
		want, _ := s.Get(id)
		got, ok := reloaded.Get(id)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, s.Tenants(), reloaded.Tenants())
}

func TestMutateErrorIsPassedThrough(t *testing.T) {
	s, _ := newStorage(t)
	err := s.Mutate("g1", func(c *TenantConfig) error {
		c.APIKey = "changed"
		return fault.New(fault.InvalidInput, "set_api", "bad")
	})
	assert.True(t, fault.Is(err, fault.InvalidInput))

	_, ok := s.Get("g1")
	assert.False(t, ok)
}

func TestMutatePersistenceFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	s, err := New(filepath.Join(dir, "cfg.json"), 0)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	err = s.SetAPIKey("g1", "ptlc_key")
	assert.True(t, fault.Is(err, fault.PersistenceError))

	cfg, ok := s.Get("g1")
	require.True(t, ok, "memory stays authoritative")
	assert.Equal(t, "ptlc_key", cfg.APIKey)
}

func TestConcurrentSetAliasSameTenant(t *testing.T) {
	s, path := newStorage(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.SetAlias("g1", fmt.Sprintf("alias-%d", i), fmt.Sprintf("id-%d", i)))
		}(i)
	}
	wg.Wait()

	reloaded, err := New(path, 0)
	require.NoError(t, err)
	cfg, _ := reloaded.Get("g1")
	assert.Len(t, cfg.ServerAliases, 16)
	for i := 0; i < 16; i++ {
		assert.Equal(t, fmt.Sprintf("id-%d", i), cfg.ServerAliases[fmt.Sprintf("alias-%d", i)])
	}
}

func TestSettersNormalizeInput(t *testing.T) {
	s, _ := newStorage(t)
	require.NoError(t, s.SetAlias("g1", "  Survival ", " abc-123 "))
	require.NoError(t, s.SetAPIKey("g1", " ptlc_key "))
	require.NoError(t, s.SetPanelURL("g1", " https://panel.example.com/ "))

	cfg, _ := s.Get("g1")
	assert.Equal(t, map[string]string{"survival": "abc-123"}, cfg.ServerAliases)
	assert.Equal(t, "ptlc_key", cfg.APIKey)
	assert.Equal(t, "https://panel.example.com", cfg.PanelURL)

	_, err := s.DeleteAlias("g1", " SURVIVAL ")
	assert.NoError(t, err)
}

func TestTwoProcessesShareRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ptero_guild_configs.json")
	cli, err := New(path, 0)
	require.NoError(t, err)
	bot, err := New(path, 0)
	require.NoError(t, err)

	require.NoError(t, cli.SetAlias("g1", "fromcli", "c-1"))
	require.NoError(t, bot.SetAlias("g1", "frombot", "b-1"))

	reloaded, err := New(path, 0)
	require.NoError(t, err)
	cfg, _ := reloaded.Get("g1")
	assert.Equal(t, map[string]string{"fromcli": "c-1", "frombot": "b-1"}, cfg.ServerAliases)

	seen, _ := cli.Get("g1")
	assert.Equal(t, "b-1", seen.ServerAliases["frombot"], "the other writer's change is visible on read")
}
