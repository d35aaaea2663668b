package ptero

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/keshon/ptero-bot/internal/bot"
	"github.com/keshon/ptero-bot/internal/dispatch"
	"github.com/keshon/ptero-bot/internal/fault"
	"github.com/keshon/ptero-bot/internal/panel"

	"github.com/bwmarrin/discordgo"
)

const maxEmbedDescription = 4000

var signalNames = map[panel.Signal]string{
	panel.SignalStart:   "Start",
	panel.SignalStop:    "Stop",
	panel.SignalRestart: "Restart",
	panel.SignalKill:    "Forced stop",
}

// errorText turns a dispatch error into the message shown to the user.
func errorText(err error, action, guildName string) string {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		return "❌ An internal bot error occurred. Please contact its administrator."
	}

	target := fe.Target
	switch fe.Kind {
	case fault.NotConfigured:
		return fmt.Sprintf("❌ Pterodactyl configuration for guild **%s** is incomplete. "+
			"An administrator must use `/ptero set_api` and `/ptero set_url` commands.", guildName)
	case fault.NoTargetConfigured:
		return "❌ No server identifier provided, and no default Pterodactyl server is set for this guild. " +
			"Use `/ptero set_default <ID_or_alias>` or provide an identifier in the command."
	case fault.NotFound:
		return fmt.Sprintf("❌ Pterodactyl server with ID `%s` not found.", target)
	case fault.Forbidden:
		if target == "" {
			return fmt.Sprintf("❌ Insufficient permissions (API key) for '%s'.", action)
		}
		return fmt.Sprintf("❌ Insufficient permissions (API key) for '%s' on server `%s`.", action, target)
	case fault.Conflict:
		detail := fe.Detail
		if detail == "" {
			detail = "Request conflict (e.g., server already in that state)."
		}
		return fmt.Sprintf("⚠️ Cannot '%s' on `%s`. %s", action, target, detail)
	case fault.BadGateway:
		return fmt.Sprintf("❌ The panel could not reach the node running `%s` (HTTP %d). Try again later.", target, http.StatusBadGateway)
	case fault.Unreachable:
		return fmt.Sprintf("❌ A connection error occurred while contacting the panel: %s", fe.Detail)
	case fault.RemoteError:
		if fe.Status == 0 {
			return fmt.Sprintf("❌ Unexpected panel response: %s", fe.Detail)
		}
		msg := fmt.Sprintf("❌ HTTP Error: %d", fe.Status)
		if fe.Detail != "" {
			msg += " - " + fe.Detail
		}
		return msg
	case fault.PersistenceError:
		return "❌ The configuration could not be saved. Please try again later."
	case fault.InvalidInput:
		return "❌ " + fe.Detail
	case fault.AliasNotFound:
		return fmt.Sprintf("❌ Alias `'%s'` not found.", target)
	}
	return "❌ An internal bot error occurred. Please contact its administrator."
}

func stateColor(state string) int {
	switch state {
	case "running":
		return bot.ColorOK
	case "starting", "stopping":
		return bot.ColorWarn
	case "offline":
		return bot.ColorError
	}
	return bot.ColorMuted
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func footer(guildName, by string) *discordgo.MessageEmbedFooter {
	return &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Discord Guild: %s | By: %s", guildName, by)}
}

func statusEmbed(res *dispatch.StatusResult, guildName, by string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "📊 Status: " + res.Name,
		Description: fmt.Sprintf("Pterodactyl ID: `%s`", res.ID),
		Color:       stateColor(res.State),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Status", Value: capitalize(res.State), Inline: true},
			{Name: "CPU", Value: res.CPU + " / " + res.CPULimit, Inline: true},
			{Name: "RAM", Value: res.Memory + " / " + res.MemoryLimit, Inline: true},
			{Name: "Disk", Value: res.Disk + " / " + res.DiskLimit, Inline: true},
			{Name: "Network (Received)", Value: res.NetworkRx, Inline: true},
			{Name: "Network (Sent)", Value: res.NetworkTx, Inline: true},
		},
		Footer:    footer(guildName, by),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func queueEmbed(res *dispatch.QueueStatusResult, guildName, by string) *discordgo.MessageEmbed {
	inQueue, color := "No ❌", bot.ColorMuted
	if res.Queued {
		inQueue, color = "Yes ✅", bot.ColorInfo
	}
	embed := &discordgo.MessageEmbed{
		Title:       "🕒 Queue Status: " + res.Name,
		Description: fmt.Sprintf("Pterodactyl ID: `%s`", res.ID),
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "In Queue?", Value: inQueue, Inline: true},
			{Name: "Queue Length", Value: fmt.Sprint(res.QueueLength), Inline: true},
		},
		Footer:    footer(guildName, by),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if res.Queued && res.Position != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Your Position", Value: fmt.Sprint(*res.Position), Inline: true})
	}
	if res.EstimatedTime != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Estimated Time", Value: res.EstimatedTime, Inline: true})
	}
	return embed
}

func configEmbed(view dispatch.ConfigView, guildName string) *discordgo.MessageEmbed {
	panelURL := "Not set. Use `/ptero set_url <URL>`."
	if view.PanelURL != "" {
		panelURL = "`" + view.PanelURL + "`"
	}
	apiKey := "Not set. Use `/ptero set_api <KEY>`."
	if view.APIKeyMasked != "" {
		apiKey = "`" + view.APIKeyMasked + "`"
	}
	def := "Not set. Use `/ptero set_default <ID_or_alias>`."
	if view.DefaultServerID != "" {
		def = fmt.Sprintf("**%s** (ID: `%s`)", view.DefaultServerName, view.DefaultServerID)
	}
	return &discordgo.MessageEmbed{
		Title: "⚙️ Pterodactyl Configuration for: " + guildName,
		Color: bot.ColorConfig,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Panel URL", Value: panelURL},
			{Name: "API Key", Value: apiKey},
			{Name: "Default Pterodactyl Server", Value: def},
			{Name: "Aliases", Value: fmt.Sprint(view.Aliases)},
		},
	}
}

func aliasesEmbed(entries []dispatch.AliasEntry, guildName string) *discordgo.MessageEmbed {
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "`%s` ➡️ `%s`\n", e.Alias, e.ServerID)
	}
	return &discordgo.MessageEmbed{
		Title:       "📜 Defined Pterodactyl Aliases for: " + guildName,
		Description: truncateDescription(sb.String()),
		Color:       bot.ColorInfo,
	}
}

func serversEmbed(list *dispatch.ServerList) *discordgo.MessageEmbed {
	lines := make([]string, 0, len(list.Servers))
	for _, s := range list.Servers {
		lines = append(lines, fmt.Sprintf("**Name:** `%s`\n  **ID (identifier):** `%s`\n  **UUID:** `%s`\n", s.Name, s.Identifier, s.UUID))
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🖥️ Available Pterodactyl Servers (%d)", len(list.Servers)),
		Description: truncateDescription(strings.Join(lines, "\n")),
		Color:       bot.ColorList,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Panel: " + list.PanelURL},
	}
}

// truncateDescription keeps a description within the embed limit.
func truncateDescription(s string) string {
	if utf8.RuneCountInString(s) <= maxEmbedDescription {
		return s
	}
	return fault.Truncate(s, 3900) + "\n\n... (list too long, partial list shown)"
}

func helpEmbed(guildName string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Help - Pterodactyl Bot for: " + guildName,
		Description: "List of available commands (administrator permissions required):",
		Color:       bot.ColorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Bot Configuration", Value: "`/ptero set_api <API_KEY>`\n`/ptero set_url <PANEL_URL>`\n`/ptero set_default <ID_or_alias>`\n`/ptero config`"},
			{Name: "Server Alias Management", Value: "`/ptero set_alias <alias_name> <PTERO_SERVER_ID>`\n`/ptero delete_alias <alias_name>`\n`/ptero aliases`"},
			{Name: "Pterodactyl Server Information", Value: "`/ptero list_servers`"},
			{Name: "Pterodactyl Server Control", Value: "`/ptero status [ID_or_alias]`\n" +
				"`/ptero start [ID_or_alias]`\n" +
				"`/ptero stop [ID_or_alias]`\n" +
				"`/ptero restart [ID_or_alias]`\n" +
				"`/ptero kill [ID_or_alias]`\n" +
				"`/ptero command <command> [ID_or_alias]`"},
			{Name: "Pterodactyl Server Queue", Value: "`/ptero join_queue [ID_or_alias]`\n`/ptero queue_status [ID_or_alias]`"},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "In control commands, [ID_or_alias] is optional if a default server is set."},
	}
}

func powerMessage(res *dispatch.ActionResult) string {
	return fmt.Sprintf("✅ Command '%s' sent to **%s** %s.", signalNames[res.Signal], res.Name, res.Label())
}

func commandMessage(res *dispatch.ActionResult) string {
	return fmt.Sprintf("✅ Command `%s` sent to **%s** %s.", res.Command, res.Name, res.Label())
}

func joinQueueMessage(res *dispatch.QueueJoinResult) string {
	msg := fmt.Sprintf("✅ %s (Server: **%s**)", res.Message, res.Name)
	if res.Position != nil {
		msg += fmt.Sprintf(" Position in queue: %d.", *res.Position)
	}
	return msg
}
