package middleware

import (
	"context"
	"log"
	"time"

	"github.com/keshon/ptero-bot/internal/bot"
	"github.com/keshon/ptero-bot/internal/command"
	"github.com/keshon/ptero-bot/pkg/cmd"

	"github.com/bwmarrin/discordgo"
)

// WithCommandLogger logs every slash command run. Only the subcommand name is
// logged; option values may carry API keys.
func WithCommandLogger() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			v, ok := inv.Data.(*command.SlashInteractionContext)
			if !ok {
				return c.Run(ctx, inv)
			}

			start := time.Now()
			err := c.Run(ctx, inv)

			user := bot.InteractionUser(v.Event)
			name := "/" + c.Name()
			if sub := subcommand(v.Event); sub != "" {
				name += " " + sub
			}
			if err != nil {
				log.Printf("[ERR] [%s] %s by %s (%s) failed after %s: %v", v.Event.GuildID, name, user.Username, user.ID, time.Since(start).Round(time.Millisecond), err)
			} else {
				log.Printf("[INFO] [%s] %s by %s (%s) in %s", v.Event.GuildID, name, user.Username, user.ID, time.Since(start).Round(time.Millisecond))
			}
			return err
		})
	}
}

func subcommand(e *discordgo.InteractionCreate) string {
	if e == nil || e.Interaction == nil || e.Type != discordgo.InteractionApplicationCommand {
		return ""
	}
	data := e.ApplicationCommandData()
	if len(data.Options) == 0 || data.Options[0].Type != discordgo.ApplicationCommandOptionSubCommand {
		return ""
	}
	return data.Options[0].Name
}
