// ptero-cli edits the guild registry and drives panel servers from a shell,
// using the same registry file and dispatcher as the bot.
package main

import (
	"fmt"
	"os"

	"github.com/keshon/ptero-bot/internal/config"
	"github.com/keshon/ptero-bot/internal/dispatch"
	"github.com/keshon/ptero-bot/internal/panel"
	"github.com/keshon/ptero-bot/internal/storage"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// app is built by the root command before any subcommand runs.
type app struct {
	cfg   *config.Config
	store *storage.Storage
	d     *dispatch.Dispatcher
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	a := &app{}
	var storagePath string

	root := &cobra.Command{
		Use:           "ptero-cli",
		Short:         "Manage guild panel bindings and servers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if storagePath != "" {
				cfg.StoragePath = storagePath
			}
			store, err := storage.New(cfg.StoragePath, cfg.StorageBackups)
			if err != nil {
				return err
			}
			a.cfg, a.store = cfg, store
			a.d = dispatch.New(store, panel.New(panel.Options{
				ReadTimeout:   cfg.PanelReadTimeout,
				ActionTimeout: cfg.PanelActionTimeout,
			}), nil)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.store == nil {
				return nil
			}
			return a.store.Close()
		},
	}
	root.PersistentFlags().StringVar(&storagePath, "storage", "", "registry file (default $STORAGE_PATH)")

	root.AddCommand(
		tenantsCmd(a),
		configCmd(a),
		setURLCmd(a),
		setAPICmd(a),
		setDefaultCmd(a),
		aliasCmd(a),
		statusCmd(a),
		powerCmd(a),
		consoleCmd(a),
		queueCmd(a),
		serversCmd(a),
	)
	return root
}
