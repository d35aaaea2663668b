package middleware

import (
	"context"

	"github.com/keshon/ptero-bot/internal/bot"
	"github.com/keshon/ptero-bot/internal/command"
	"github.com/keshon/ptero-bot/pkg/cmd"
)

// replyEphemeral is swapped out in tests.
var replyEphemeral = bot.RespondEphemeral

// WithGuildOnly rejects slash commands issued outside a guild.
func WithGuildOnly() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			v, ok := inv.Data.(*command.SlashInteractionContext)
			if ok && v.Event.GuildID == "" {
				return replyEphemeral(v.Session, v.Event, "🚫 This command can only be used in a guild.")
			}
			return c.Run(ctx, inv)
		})
	}
}
