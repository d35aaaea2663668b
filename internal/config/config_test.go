package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("DISCORD_BOT_TOKEN", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ptero_guild_configs.json", cfg.StoragePath)
	assert.Equal(t, 3, cfg.StorageBackups)
	assert.Equal(t, 10*time.Second, cfg.PanelReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.PanelActionTimeout)
	assert.Equal(t, 5.0, cfg.PanelRateLimit)
	assert.True(t, cfg.InitSlashCommands)
	assert.Empty(t, cfg.DiscordToken)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("DISCORD_BOT_TOKEN", "legacy-token")
	t.Setenv("STORAGE_PATH", "/tmp/x.json")
	t.Setenv("PANEL_READ_TIMEOUT", "3s")
	t.Setenv("DISCORD_GUILD_BLACKLIST", "1,2")
	t.Setenv("INIT_SLASH_COMMANDS", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "legacy-token", cfg.DiscordToken)
	assert.Equal(t, "/tmp/x.json", cfg.StoragePath)
	assert.Equal(t, 3*time.Second, cfg.PanelReadTimeout)
	assert.Equal(t, []string{"1", "2"}, cfg.DiscordGuildBlacklist)
	assert.False(t, cfg.InitSlashCommands)

	t.Setenv("DISCORD_TOKEN", "primary")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.DiscordToken)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("PANEL_RATE_LIMIT", "0")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("PANEL_RATE_LIMIT", "5")
	t.Setenv("PANEL_READ_TIMEOUT", "soon")
	_, err = Load()
	assert.Error(t, err)
}
