package discord

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/keshon/ptero-bot/internal/bot"
	"github.com/keshon/ptero-bot/internal/command"
	"github.com/keshon/ptero-bot/internal/config"
	"github.com/keshon/ptero-bot/internal/dispatch"
	"github.com/keshon/ptero-bot/pkg/cmd"
	"github.com/keshon/ptero-bot/pkg/util"

	"github.com/bwmarrin/discordgo"
)

// interactionTimeout bounds one slash command. Deferred interactions stay
// answerable for 15 minutes, so this is far from the Discord limit.
const interactionTimeout = 2 * time.Minute

// Bot is a Discord bot
type Bot struct {
	dg         *discordgo.Session
	cfg        *config.Config
	dispatcher *dispatch.Dispatcher
	cache      commandCache
	syncing    sync.Map // guild ID -> *sync.Mutex

	ctx context.Context

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func NewBot(cfg *config.Config, d *dispatch.Dispatcher) *Bot {
	return &Bot{
		cfg:        cfg,
		dispatcher: d,
		cache:      commandCache{dir: cfg.CommandCacheDir},
	}
}

// Run connects to Discord and blocks until ctx is done. In-flight commands
// are allowed to finish before it returns.
func (b *Bot) Run(ctx context.Context) error {
	if b.cfg.DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN is not set")
	}
	dg, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	b.dg = dg
	b.ctx = ctx

	dg.Identify.Intents = discordgo.IntentsGuilds
	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onInteractionCreate)
	dg.AddHandler(b.onGuildCreate)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer dg.Close()

	<-ctx.Done()
	log.Println("[INFO] ❎ Shutdown signal received. Waiting for running commands...")
	b.drain()
	return nil
}

// begin admits an interaction unless shutdown has started. Every true
// result must be paired with b.wg.Done.
func (b *Bot) begin() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing {
		return false
	}
	b.wg.Add(1)
	return true
}

// drain refuses new interactions and waits for admitted ones.
func (b *Bot) drain() {
	b.mu.Lock()
	b.closing = true
	b.mu.Unlock()
	b.wg.Wait()
}

// registerWorkers bounds concurrent per-guild command syncs on startup.
const registerWorkers = 4

// onReady is called when the bot is ready
func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	var guilds []string
	for _, g := range r.Guilds {
		if !b.leaveIfBlacklisted(s, g.ID, g.Name) {
			guilds = append(guilds, g.ID)
		}
	}

	if b.cfg.InitSlashCommands {
		err := util.Parallel(b.ctx, guilds, registerWorkers, func(ctx context.Context, guildID string) error {
			if err := b.registerCommands(guildID); err != nil {
				return fmt.Errorf("guild %s: %w", guildID, err)
			}
			return nil
		})
		if err != nil {
			log.Println("[ERR] Error registering slash commands:", err)
		}
	} else {
		log.Println("[INFO] Registering slash commands skipped")
	}

	log.Printf("[INFO] ✅ Discord bot %v is running in %d guilds.", r.User.Username, len(guilds))
}

// onGuildCreate fires for every guild on connect and when the bot joins one.
func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if b.leaveIfBlacklisted(s, g.Guild.ID, g.Guild.Name) {
		return
	}
	if !b.cfg.InitSlashCommands {
		return
	}
	if err := b.registerCommands(g.Guild.ID); err != nil {
		log.Printf("[ERR] Failed to register commands for guild %s: %v", g.Guild.ID, err)
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.CommandType != discordgo.ChatApplicationCommand {
		return
	}

	c, ok := command.GetCommand(data.Name)
	if !ok {
		log.Printf("[WARN] Unknown command: %s", data.Name)
		return
	}

	if !b.begin() {
		log.Printf("[INFO] Ignoring /%s during shutdown", data.Name)
		return
	}
	defer b.wg.Done()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(b.ctx), interactionTimeout)
	defer cancel()

	inv := &cmd.Invocation{Data: &command.SlashInteractionContext{
		Session:     s,
		Event:       i,
		Dispatcher:  b.dispatcher,
		DeveloperID: b.cfg.DeveloperID,
	}}
	if err := c.Run(ctx, inv); err != nil {
		log.Println("[ERR] Error running slash command:", err)
		_ = bot.RespondEmbedEphemeral(s, i, &discordgo.MessageEmbed{
			Description: "❌ An internal bot error occurred. Please contact its administrator.",
			Color:       bot.ColorError,
		})
	}
}

func (b *Bot) leaveIfBlacklisted(s *discordgo.Session, guildID, name string) bool {
	if !slices.Contains(b.cfg.DiscordGuildBlacklist, guildID) {
		return false
	}
	log.Printf("[INFO] Leaving blacklisted guild: %s (%s)", guildID, name)
	if err := s.GuildLeave(guildID); err != nil {
		log.Printf("[ERR] Failed to leave guild %s: %v", guildID, err)
	}
	return true
}

// registerCommands brings the guild's slash commands in line with the
// registry: obsolete ones are deleted, changed ones re-created.
func (b *Bot) registerCommands(guildID string) error {
	mu, _ := b.syncing.LoadOrStore(guildID, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	appID := b.dg.State.User.ID
	if appID == "" {
		user, err := b.dg.User("@me")
		if err != nil {
			return err
		}
		appID = user.ID
	}

	existing, err := b.dg.ApplicationCommands(appID, guildID)
	if err != nil {
		return fmt.Errorf("list commands: %w", err)
	}
	localHashes := b.cache.load(guildID)

	wanted, wantedHashes := wantedCommands()

	for _, old := range existing {
		if _, ok := wantedHashes[old.Name]; !ok {
			log.Printf("[INFO] [%s] Deleting obsolete command: %s", guildID, old.Name)
			if err := b.dg.ApplicationCommandDelete(appID, guildID, old.ID); err != nil {
				log.Printf("[ERR] [%s] Failed to delete %s: %v", guildID, old.Name, err)
			}
			delete(localHashes, old.Name)
		}
	}

	registered := make(map[string]bool, len(existing))
	for _, ex := range existing {
		registered[ex.Name] = true
	}

	var changed []*discordgo.ApplicationCommand
	for _, def := range wanted {
		if !registered[def.Name] || localHashes[def.Name] != wantedHashes[def.Name] {
			changed = append(changed, def)
		}
	}

	if len(changed) > 0 {
		log.Printf("[INFO] [%s] %d commands changed, updating...", guildID, len(changed))
		for _, def := range b.createCommands(appID, guildID, changed) {
			localHashes[def.Name] = wantedHashes[def.Name]
		}
	}

	b.cache.save(guildID, localHashes)
	return nil
}

func wantedCommands() ([]*discordgo.ApplicationCommand, map[string]string) {
	var wanted []*discordgo.ApplicationCommand
	hashes := make(map[string]string)
	for _, c := range command.AllCommands() {
		if def := command.SlashDefinition(c); def != nil {
			wanted = append(wanted, def)
			hashes[def.Name] = hashCommand(def)
		}
	}
	return wanted, hashes
}

// createCommands creates cmds at no more than 40 per second and returns the
// ones that succeeded.
func (b *Bot) createCommands(appID, guildID string, cmds []*discordgo.ApplicationCommand) []*discordgo.ApplicationCommand {
	ticker := time.NewTicker(time.Second / 40)
	defer ticker.Stop()

	var (
		mu sync.Mutex
		ok []*discordgo.ApplicationCommand
		wg sync.WaitGroup
	)
	for _, def := range cmds {
		wg.Add(1)
		go func(def *discordgo.ApplicationCommand) {
			defer wg.Done()
			<-ticker.C

			if _, err := b.dg.ApplicationCommandCreate(appID, guildID, def); err != nil {
				log.Printf("[ERR] [%s] Can't create command %s: %v", guildID, def.Name, err)
				return
			}
			log.Printf("[DONE] [%s] Command created: %s", guildID, def.Name)
			mu.Lock()
			ok = append(ok, def)
			mu.Unlock()
		}(def)
	}
	wg.Wait()
	return ok
}
