// Package ptero is the /ptero slash command group. Each subcommand maps onto
// one dispatch.Dispatcher method; this package only parses options and
// renders results.
package ptero

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/keshon/ptero-bot/internal/bot"
	"github.com/keshon/ptero-bot/internal/command"
	"github.com/keshon/ptero-bot/internal/dispatch"
	"github.com/keshon/ptero-bot/internal/fault"
	"github.com/keshon/ptero-bot/internal/middleware"
	"github.com/keshon/ptero-bot/internal/panel"
	"github.com/keshon/ptero-bot/pkg/cmd"

	"github.com/bwmarrin/discordgo"
)

func init() {
	command.RegisterCommand(
		&PteroCommand{},
		middleware.WithGuildOnly(),
		middleware.WithUserPermissionCheck(),
		middleware.WithCommandLogger(),
	)
}

type PteroCommand struct{}

func (c *PteroCommand) Name() string        { return "ptero" }
func (c *PteroCommand) Description() string { return "Control Pterodactyl servers" }
func (c *PteroCommand) UserPermissions() []int64 {
	return []int64{discordgo.PermissionAdministrator}
}

func identifierOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "server_identifier",
		Description: "ID or alias of the server (optional, if default is set).",
	}
}

func subcommandDef(name, description string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: description,
		Options:     opts,
	}
}

func requiredString(name, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: description,
		Required:    true,
	}
}

func (c *PteroCommand) SlashDefinition() *discordgo.ApplicationCommand {
	var adminOnly int64 = discordgo.PermissionAdministrator
	noDM := false
	return &discordgo.ApplicationCommand{
		Name:                     c.Name(),
		Description:              c.Description(),
		DefaultMemberPermissions: &adminOnly,
		DMPermission:             &noDM,
		Options: []*discordgo.ApplicationCommandOption{
			subcommandDef("set_api", "Sets the Pterodactyl API key for this guild.",
				requiredString("api_key", "Your API key from the Pterodactyl panel")),
			subcommandDef("set_url", "Sets the Pterodactyl panel URL for this guild.",
				requiredString("panel_url", "Full URL of your Pterodactyl panel (e.g., https://panel.example.com)")),
			subcommandDef("set_default", "Sets the default Pterodactyl server for this Discord guild.",
				requiredString("server_identifier", "ID (UUID) or alias of the Pterodactyl server to be set as default.")),
			subcommandDef("config", "Displays the current Pterodactyl configuration for this guild."),
			subcommandDef("set_alias", "Sets or updates an alias for a Pterodactyl server ID.",
				requiredString("alias_name", "Friendly name for the server (e.g., 'survival')"),
				requiredString("ptero_server_id", "Actual server ID (UUID) from the Pterodactyl panel")),
			subcommandDef("delete_alias", "Deletes a defined Pterodactyl server alias.",
				requiredString("alias_name", "Name of the alias to delete")),
			subcommandDef("aliases", "Displays a list of defined Pterodactyl server aliases."),
			subcommandDef("help", "Displays a list of available Pterodactyl bot commands."),
			subcommandDef("status", "Checks the status and resources of a Pterodactyl server.", identifierOption()),
			subcommandDef("start", "Starts a Pterodactyl server.", identifierOption()),
			subcommandDef("stop", "Stops a Pterodactyl server.", identifierOption()),
			subcommandDef("restart", "Restarts a Pterodactyl server.", identifierOption()),
			subcommandDef("kill", "Forces a Pterodactyl server to stop (kill).", identifierOption()),
			subcommandDef("command", "Sends a command to the Pterodactyl server console.",
				requiredString("command", "Command to send"), identifierOption()),
			subcommandDef("join_queue", "Joins the queue for a Pterodactyl server.", identifierOption()),
			subcommandDef("queue_status", "Checks the status of the queue for a Pterodactyl server.", identifierOption()),
			subcommandDef("list_servers", "Displays a list of Pterodactyl servers available for the API key."),
		},
	}
}

// publicSubcommands answer in the channel; everything else is ephemeral.
var publicSubcommands = map[string]bool{
	"status": true, "start": true, "stop": true, "restart": true, "kill": true,
	"command": true, "join_queue": true, "queue_status": true,
}

// reply sends the single followup of a deferred interaction.
type reply struct {
	s *discordgo.Session
	e *discordgo.InteractionCreate
}

func (r reply) text(msg string) error { return bot.Followup(r.s, r.e, msg) }
func (r reply) embed(embed *discordgo.MessageEmbed) error {
	return bot.FollowupEmbed(r.s, r.e, embed)
}

func (c *PteroCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	v, ok := inv.Data.(*command.SlashInteractionContext)
	if !ok {
		return nil
	}
	s, e := v.Session, v.Event

	data := e.ApplicationCommandData()
	if len(data.Options) == 0 {
		return bot.RespondEphemeral(s, e, "No subcommand provided.")
	}
	sub := data.Options[0]

	ack := bot.RespondDeferredEphemeral
	if publicSubcommands[sub.Name] {
		ack = bot.RespondDeferred
	}
	if err := ack(s, e); err != nil {
		log.Printf("[ERR] Failed to defer interaction: %v", err)
		return err
	}

	h := handler{
		d:       v.Dispatcher,
		guildID: e.GuildID,
		guild:   bot.GuildName(s, e.GuildID),
		by:      bot.DisplayName(e),
		opts:    options(sub),
		out:     reply{s: s, e: e},
	}
	return h.run(ctx, sub.Name)
}

func options(sub *discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	out := make(map[string]string, len(sub.Options))
	for _, o := range sub.Options {
		if o.Type == discordgo.ApplicationCommandOptionString {
			out[o.Name] = o.StringValue()
		}
	}
	return out
}

type output interface {
	text(string) error
	embed(*discordgo.MessageEmbed) error
}

// handler runs one subcommand for one guild.
type handler struct {
	d       *dispatch.Dispatcher
	guildID string
	guild   string
	by      string
	opts    map[string]string
	out     output
}

func (h handler) fail(err error, action string) error {
	var fe *fault.Error
	if errors.As(err, &fe) {
		log.Printf("[WARN] [%s] %s failed: kind=%s op=%s target=%s: %v", h.guildID, action, fe.Kind, fe.Op, fe.Target, err)
	} else {
		log.Printf("[ERR] [%s] %s failed: %v", h.guildID, action, err)
	}
	return h.out.text(errorText(err, action, h.guild))
}

func (h handler) run(ctx context.Context, name string) error {
	id := h.opts["server_identifier"]

	switch name {
	case "set_api":
		if err := h.d.SetAPI(h.guildID, h.opts["api_key"]); err != nil {
			return h.fail(err, name)
		}
		return h.out.text(fmt.Sprintf("✅ Pterodactyl API key for guild **%s** has been set.", h.guild))

	case "set_url":
		u, err := h.d.SetURL(h.guildID, h.opts["panel_url"])
		if err != nil {
			return h.fail(err, name)
		}
		return h.out.text(fmt.Sprintf("✅ Pterodactyl panel URL for guild **%s** has been set to: `%s`", h.guild, u))

	case "set_default":
		t, err := h.d.SetDefault(ctx, h.guildID, id)
		if err != nil {
			return h.fail(err, name)
		}
		return h.out.text(fmt.Sprintf("✅ Pterodactyl server **%s** (ID: `%s`) has been set as default for **%s**.", t.Name, t.ID, h.guild))

	case "config":
		return h.out.embed(configEmbed(h.d.Config(ctx, h.guildID), h.guild))

	case "set_alias":
		stored, err := h.d.SetAlias(h.guildID, h.opts["alias_name"], h.opts["ptero_server_id"])
		if err != nil {
			return h.fail(err, name)
		}
		return h.out.text(fmt.Sprintf("✅ Alias `'%s'` has been set for Pterodactyl server ID: `%s`.", stored, h.opts["ptero_server_id"]))

	case "delete_alias":
		removed, err := h.d.DeleteAlias(h.guildID, h.opts["alias_name"])
		if err != nil {
			return h.fail(err, name)
		}
		return h.out.text(fmt.Sprintf("✅ Alias `'%s'` has been deleted.", removed))

	case "aliases":
		entries := h.d.ListAliases(h.guildID)
		if len(entries) == 0 {
			return h.out.text("ℹ️ No Pterodactyl server aliases defined for this Discord guild.")
		}
		return h.out.embed(aliasesEmbed(entries, h.guild))

	case "help":
		return h.out.embed(helpEmbed(h.guild))

	case "status":
		res, err := h.d.Status(ctx, h.guildID, id)
		if err != nil {
			return h.fail(err, name)
		}
		return h.out.embed(statusEmbed(res, h.guild, h.by))

	case "start", "stop", "restart", "kill":
		signal := panel.Signal(name)
		res, err := h.d.Power(ctx, h.guildID, id, signal)
		if err != nil {
			return h.fail(err, signalNames[signal])
		}
		return h.out.text(powerMessage(res))

	case "command":
		res, err := h.d.Command(ctx, h.guildID, id, h.opts["command"])
		if err != nil {
			return h.fail(err, "command")
		}
		return h.out.text(commandMessage(res))

	case "join_queue":
		res, err := h.d.JoinQueue(ctx, h.guildID, id)
		if err != nil {
			return h.fail(err, "join queue")
		}
		return h.out.text(joinQueueMessage(res))

	case "queue_status":
		res, err := h.d.QueueStatus(ctx, h.guildID, id)
		if err != nil {
			return h.fail(err, "queue status")
		}
		return h.out.embed(queueEmbed(res, h.guild, h.by))

	case "list_servers":
		list, err := h.d.ListServers(ctx, h.guildID)
		if err != nil {
			return h.fail(err, "list servers")
		}
		if len(list.Servers) == 0 {
			return h.out.text("ℹ️ No Pterodactyl servers found for the configured API key.")
		}
		return h.out.embed(serversEmbed(list))
	}

	return h.out.text(fmt.Sprintf("Unknown subcommand: %s", name))
}
