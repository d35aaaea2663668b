package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/keshon/ptero-bot/internal/command"
	"github.com/keshon/ptero-bot/pkg/cmd"

	"github.com/bwmarrin/discordgo"
)

var permissionNames = map[int64]string{
	discordgo.PermissionAdministrator: "Administrator",
	discordgo.PermissionManageGuild:   "Manage Server",
}

// WithUserPermissionCheck lets a member through when they are an
// administrator, the configured developer, or hold any of the permissions
// the command declares. Permissions come from the interaction payload, which
// Discord resolves for the invoking channel.
func WithUserPermissionCheck() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			v, ok := inv.Data.(*command.SlashInteractionContext)
			if !ok {
				return c.Run(ctx, inv)
			}

			meta, ok := cmd.Root(c).(command.DiscordMeta)
			if !ok || len(meta.UserPermissions()) == 0 {
				return c.Run(ctx, inv)
			}

			m := v.Event.Member
			if m == nil || m.User == nil {
				return replyEphemeral(v.Session, v.Event, "🚫 This command can only be used in a guild.")
			}
			if v.DeveloperID != "" && m.User.ID == v.DeveloperID {
				return c.Run(ctx, inv)
			}
			if m.Permissions&discordgo.PermissionAdministrator != 0 {
				return c.Run(ctx, inv)
			}

			required := meta.UserPermissions()
			for _, p := range required {
				if m.Permissions&p != 0 {
					return c.Run(ctx, inv)
				}
			}
			return replyEphemeral(v.Session, v.Event, deniedMessage(m.User.ID, required))
		})
	}
}

func deniedMessage(userID string, required []int64) string {
	if len(required) == 1 && required[0] == discordgo.PermissionAdministrator {
		return fmt.Sprintf("🚫 <@%s>, you do not have administrator permissions on this Discord guild to use this command!", userID)
	}
	var allowed []string
	for _, p := range required {
		name := permissionNames[p]
		if name == "" {
			name = fmt.Sprintf("0x%x", p)
		}
		allowed = append(allowed, name)
	}
	return fmt.Sprintf(
		"🚫 You need at least one of the following permissions to run this command:\n`%s`",
		strings.Join(allowed, "`, `"),
	)
}
