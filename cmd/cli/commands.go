package main

import (
	"fmt"
	"strings"

	"github.com/keshon/ptero-bot/internal/dispatch"
	"github.com/keshon/ptero-bot/internal/panel"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func ok(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
}

func field(cmd *cobra.Command, name, value string) {
	fmt.Fprintf(cmd.OutOrStdout(), "  %-14s %s\n", name+":", value)
}

func orNotSet(v string) string {
	if v == "" {
		return color.YellowString("not set")
	}
	return v
}

// optionalArg returns args[i] or "" so the guild default applies.
func optionalArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func tenantsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tenants",
		Short: "List guilds present in the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := a.store.Tenants()
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No guilds configured.")
				return nil
			}
			for _, id := range ids {
				cfg, _ := a.store.Get(id)
				state := color.GreenString("configured")
				if !cfg.Configured() {
					state = color.YellowString("incomplete")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d aliases\n", id, state, len(cfg.ServerAliases))
			}
			return nil
		},
	}
}

func configCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config <guild>",
		Short: "Show a guild's panel binding (API key masked)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view := a.d.Config(cmd.Context(), args[0])
			fmt.Fprintln(cmd.OutOrStdout(), color.New(color.Bold).Sprintf("Guild %s", args[0]))
			field(cmd, "Panel URL", orNotSet(view.PanelURL))
			field(cmd, "API key", orNotSet(view.APIKeyMasked))
			def := orNotSet(view.DefaultServerID)
			if view.DefaultServerID != "" {
				def = fmt.Sprintf("%s (%s)", view.DefaultServerName, view.DefaultServerID)
			}
			field(cmd, "Default", def)
			field(cmd, "Aliases", fmt.Sprint(view.Aliases))
			return nil
		},
	}
}

func setURLCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-url <guild> <url>",
		Short: "Set a guild's panel URL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.d.SetURL(args[0], args[1])
			if err != nil {
				return err
			}
			ok(cmd, "Panel URL set to %s", u)
			return nil
		},
	}
}

func setAPICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-api <guild> <key>",
		Short: "Set a guild's panel API key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.d.SetAPI(args[0], args[1]); err != nil {
				return err
			}
			ok(cmd, "API key set (%s)", dispatch.MaskKey(strings.TrimSpace(args[1])))
			return nil
		},
	}
}

func setDefaultCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-default <guild> <id-or-alias>",
		Short: "Set a guild's default server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.d.SetDefault(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			ok(cmd, "Default server set to %s (%s)", t.Name, t.ID)
			return nil
		},
	}
}

func aliasCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alias",
		Short: "Manage server aliases",
	}

	set := &cobra.Command{
		Use:   "set <guild> <alias> <server-id>",
		Short: "Create or overwrite an alias",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			stored, err := a.d.SetAlias(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			ok(cmd, "Alias '%s' -> %s", stored, strings.TrimSpace(args[2]))
			return nil
		},
	}
	del := &cobra.Command{
		Use:   "delete <guild> <alias>",
		Short: "Remove an alias",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := a.d.DeleteAlias(args[0], args[1])
			if err != nil {
				return err
			}
			ok(cmd, "Alias '%s' deleted", removed)
			return nil
		},
	}
	list := &cobra.Command{
		Use:   "list <guild>",
		Short: "List aliases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := a.d.ListAliases(args[0])
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No aliases defined.")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", color.CyanString(e.Alias), e.ServerID)
			}
			return nil
		},
	}

	cmd.AddCommand(set, del, list)
	return cmd
}

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <guild> [id-or-alias]",
		Short: "Show live resource usage of a server",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.d.Status(cmd.Context(), args[0], optionalArg(args, 1))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.New(color.Bold).Sprint(res.Name), res.Label())
			field(cmd, "State", stateString(res.State))
			field(cmd, "CPU", res.CPU+" / "+res.CPULimit)
			field(cmd, "RAM", res.Memory+" / "+res.MemoryLimit)
			field(cmd, "Disk", res.Disk+" / "+res.DiskLimit)
			field(cmd, "Network in", res.NetworkRx)
			field(cmd, "Network out", res.NetworkTx)
			return nil
		},
	}
}

func stateString(state string) string {
	switch state {
	case "running":
		return color.GreenString(state)
	case "starting", "stopping":
		return color.YellowString(state)
	case "offline":
		return color.RedString(state)
	}
	return state
}

func powerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "power <guild> <start|stop|restart|kill> [id-or-alias]",
		Short:     "Send a power signal",
		Args:      cobra.RangeArgs(2, 3),
		ValidArgs: []string{"start", "stop", "restart", "kill"},
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.d.Power(cmd.Context(), args[0], optionalArg(args, 2), panel.Signal(args[1]))
			if err != nil {
				return err
			}
			ok(cmd, "Signal '%s' sent to %s %s", res.Signal, res.Name, res.Label())
			return nil
		},
	}
}

func consoleCmd(a *app) *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "command <guild> <console command...>",
		Short: "Write a line to the server console",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			line := strings.Join(args[1:], " ")
			res, err := a.d.Command(cmd.Context(), args[0], server, line)
			if err != nil {
				return err
			}
			ok(cmd, "Command `%s` sent to %s %s", res.Command, res.Name, res.Label())
			return nil
		},
	}
	cmd.Flags().StringVarP(&server, "server", "s", "", "server ID or alias (default: guild default)")
	return cmd
}

func queueCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Admission queue operations",
	}
	join := &cobra.Command{
		Use:   "join <guild> [id-or-alias]",
		Short: "Queue a server",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.d.JoinQueue(cmd.Context(), args[0], optionalArg(args, 1))
			if err != nil {
				return err
			}
			ok(cmd, "%s (%s)", res.Message, res.Name)
			if res.Position != nil {
				field(cmd, "Position", fmt.Sprint(*res.Position))
			}
			return nil
		},
	}
	status := &cobra.Command{
		Use:   "status <guild> [id-or-alias]",
		Short: "Show a server's queue state",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.d.QueueStatus(cmd.Context(), args[0], optionalArg(args, 1))
			if err != nil {
				return err
			}
			queued := color.YellowString("no")
			if res.Queued {
				queued = color.GreenString("yes")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.New(color.Bold).Sprint(res.Name), res.Label())
			field(cmd, "Queued", queued)
			field(cmd, "Queue length", fmt.Sprint(res.QueueLength))
			if res.Queued && res.Position != nil {
				field(cmd, "Position", fmt.Sprint(*res.Position))
			}
			if res.EstimatedTime != "" {
				field(cmd, "ETA", res.EstimatedTime)
			}
			return nil
		},
	}
	cmd.AddCommand(join, status)
	return cmd
}

func serversCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "servers <guild>",
		Short: "List servers visible to the guild's API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.d.ListServers(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Panel %s: %d servers\n", list.PanelURL, len(list.Servers))
			for _, s := range list.Servers {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", color.CyanString(s.Identifier), s.Name, s.UUID)
			}
			return nil
		},
	}
}
