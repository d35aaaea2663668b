package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"
)

func init() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, falling back to system environment variables")
	}
}

type Config struct {
	DiscordToken      string `env:"DISCORD_TOKEN"`
	DiscordBotToken   string `env:"DISCORD_BOT_TOKEN"`
	InitSlashCommands bool   `env:"INIT_SLASH_COMMANDS" envDefault:"true"`
	// guilds the bot leaves as soon as it sees them
	DiscordGuildBlacklist []string `env:"DISCORD_GUILD_BLACKLIST" envSeparator:","`
	DeveloperID           string   `env:"DEVELOPER_ID"`
	CommandCacheDir       string   `env:"COMMAND_CACHE_DIR" envDefault:"data/commands"`

	StoragePath    string `env:"STORAGE_PATH" envDefault:"ptero_guild_configs.json"`
	StorageBackups int    `env:"STORAGE_BACKUPS" envDefault:"3"`

	PanelReadTimeout   time.Duration `env:"PANEL_READ_TIMEOUT" envDefault:"10s"`
	PanelActionTimeout time.Duration `env:"PANEL_ACTION_TIMEOUT" envDefault:"15s"`
	PanelRateLimit     float64       `env:"PANEL_RATE_LIMIT" envDefault:"5"`

	MetricsAddr string `env:"METRICS_ADDR"`

	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"10"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
}

// Load parses the environment. DISCORD_BOT_TOKEN is accepted as an alias of
// DISCORD_TOKEN.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DiscordToken == "" {
		cfg.DiscordToken = cfg.DiscordBotToken
	}
	if cfg.StorageBackups < 0 {
		return nil, fmt.Errorf("STORAGE_BACKUPS must not be negative")
	}
	if cfg.PanelRateLimit <= 0 {
		return nil, fmt.Errorf("PANEL_RATE_LIMIT must be positive")
	}
	return &cfg, nil
}

// New is Load for main packages: any error is fatal.
func New() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("[ERR] Invalid configuration: %v", err)
	}
	return cfg
}

// SetupLogging tees the standard logger into a rotated file when LOG_FILE is
// set. The returned closer is never nil.
func (c *Config) SetupLogging() io.Closer {
	if c.LogFile == "" {
		return io.NopCloser(nil)
	}
	lj := &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, lj))
	log.Printf("[INFO] Logging to %s (max %d MB, %d backups)", c.LogFile, c.LogMaxSizeMB, c.LogMaxBackups)
	return lj
}
