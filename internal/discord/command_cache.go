package discord

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
)

// commandCache remembers, per guild, the hash of every command last
// registered there.
type commandCache struct {
	dir string
}

func (c commandCache) path(guildID string) string {
	return filepath.Join(c.dir, guildID+".json")
}

func (c commandCache) load(guildID string) map[string]string {
	hashes := make(map[string]string)
	raw, err := os.ReadFile(c.path(guildID))
	if err == nil {
		_ = json.Unmarshal(raw, &hashes)
	}
	return hashes
}

func (c commandCache) save(guildID string, hashes map[string]string) {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		log.Printf("[WARN] Failed to create command cache dir: %v", err)
		return
	}
	data, _ := json.MarshalIndent(hashes, "", "  ")
	if err := os.WriteFile(c.path(guildID), data, 0644); err != nil {
		log.Printf("[WARN] [%s] Failed to save command cache: %v", guildID, err)
	}
}
