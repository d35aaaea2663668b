// Command discord runs the Pterodactyl control bot.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/keshon/ptero-bot/internal/command/ptero"

	"github.com/keshon/ptero-bot/internal/config"
	"github.com/keshon/ptero-bot/internal/discord"
	"github.com/keshon/ptero-bot/internal/dispatch"
	"github.com/keshon/ptero-bot/internal/metrics"
	"github.com/keshon/ptero-bot/internal/panel"
	"github.com/keshon/ptero-bot/internal/storage"
	"github.com/keshon/ptero-bot/pkg/jobmgr"
	"github.com/keshon/ptero-bot/pkg/ratelimit"

	"golang.org/x/time/rate"
)

func main() {
	cfg := config.New()
	logFile := cfg.SetupLogging()
	defer logFile.Close()

	log.Println("[INFO] Starting Pterodactyl bot...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(cfg.StoragePath, cfg.StorageBackups)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	m := metrics.New()
	limits := ratelimit.DefaultSettings()
	limits.Initial = rate.Limit(cfg.PanelRateLimit)
	if limits.Max < limits.Initial {
		limits.Max = limits.Initial
	}
	gateway := panel.New(panel.Options{
		ReadTimeout:   cfg.PanelReadTimeout,
		ActionTimeout: cfg.PanelActionTimeout,
		RateLimit:     limits,
		Metrics:       m,
	})
	dispatcher := dispatch.New(store, gateway, m)

	jobs := jobmgr.NewManager(ctx, jobmgr.LogReporter)
	if cfg.MetricsAddr != "" {
		_ = jobs.StartAsync("metrics", func(ctx context.Context) error {
			return metrics.Serve(ctx, cfg.MetricsAddr, m)
		})
	}

	bot := discord.NewBot(cfg, dispatcher)
	_ = jobs.StartAsync("discord", func(ctx context.Context) error {
		// the bot going away takes the whole process with it
		defer cancel()
		return bot.Run(ctx)
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Printf("[INFO] Received signal %s, shutting down...", s)
		cancel()
	case <-ctx.Done():
	}
	log.Println("[INFO]", jobs.Status())

	if err := jobs.Wait(); err != nil {
		log.Println("[ERR] Shutdown after job failure:", err)
		return
	}
	log.Println("[INFO] All jobs exited cleanly")
}
