package command

import (
	"github.com/keshon/ptero-bot/internal/dispatch"
	"github.com/keshon/ptero-bot/pkg/cmd"

	"github.com/bwmarrin/discordgo"
)

// SlashInteractionContext is what the Discord runtime passes in
// cmd.Invocation.Data when a slash command fires.
type SlashInteractionContext struct {
	Session     *discordgo.Session
	Event       *discordgo.InteractionCreate
	Dispatcher  *dispatch.Dispatcher
	DeveloperID string
}

// SlashProvider is implemented by commands exposed as slash commands.
type SlashProvider interface {
	SlashDefinition() *discordgo.ApplicationCommand
}

// DiscordMeta lets middleware read a command's requirements without knowing
// its concrete type.
type DiscordMeta interface {
	UserPermissions() []int64
}

// RegisterCommand wraps c with mws and adds it to the default registry.
func RegisterCommand(c cmd.Command, mws ...cmd.Middleware) {
	cmd.DefaultRegistry.MustRegister(cmd.Apply(c, mws...))
}

func GetCommand(name string) (cmd.Command, bool) {
	c := cmd.DefaultRegistry.Get(name)
	return c, c != nil
}

func AllCommands() []cmd.Command {
	return cmd.DefaultRegistry.All()
}

// SlashDefinition returns the slash definition of c or of the command it wraps.
func SlashDefinition(c cmd.Command) *discordgo.ApplicationCommand {
	sp, ok := cmd.Root(c).(SlashProvider)
	if !ok {
		return nil
	}
	def := sp.SlashDefinition()
	if def != nil && def.Type == 0 {
		def.Type = discordgo.ChatApplicationCommand
	}
	return def
}
