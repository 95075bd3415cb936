package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"storyline/pkg/channel"
	"storyline/pkg/channel/discord"
	"storyline/pkg/channel/messenger"
	"storyline/pkg/channel/telegram"
	"storyline/pkg/config"
	"storyline/pkg/fallback"
	"storyline/pkg/gateway"
	"storyline/pkg/logger"
	"storyline/pkg/session"
	"storyline/pkg/store/memory"
	redisstore "storyline/pkg/store/redis"
	sqlitestore "storyline/pkg/store/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the channel gateway",
	Long:  "Runs Storyline as a gateway over the enabled chat channels with health, status, and metrics endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		registry, err := demoStories()
		if err != nil {
			log.Error("Failed to register stories", "error", err)
			return
		}

		store, err := openStore(cfg.Store)
		if err != nil {
			log.Error("Failed to open session store", "error", err)
			return
		}

		adapters, err := enabledAdapters(cfg, log)
		if err != nil {
			log.Error("Gateway configuration invalid", "error", err)
			return
		}

		responder, err := fallback.FromConfig(cfg.Fallback)
		if err != nil {
			log.Error("Fallback configuration invalid", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := gateway.NewService(cfg, registry, store, adapters, responder, log)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}

		log.Info("Gateway started", "channels", enabledChannelNames(adapters), "store", storeDriver(cfg.Store), "stories", registry.Len())
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Gateway runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// openStore builds the session store named by config. An unset driver means
// the in-memory store.
func openStore(cfg config.StoreConfig) (session.Store, error) {
	switch storeDriver(cfg) {
	case "memory":
		return memory.New(), nil
	case "redis":
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return nil, errors.New("store.redis.addr is required for the redis driver")
		}
		opts := make([]redisstore.Option, 0, 2)
		if cfg.Redis.Prefix != "" {
			opts = append(opts, redisstore.WithPrefix(cfg.Redis.Prefix))
		}
		if cfg.Redis.TTLMinutes > 0 {
			opts = append(opts, redisstore.WithTTL(time.Duration(cfg.Redis.TTLMinutes)*time.Minute))
		}
		return redisstore.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, opts...), nil
	case "sqlite":
		if strings.TrimSpace(cfg.SQLite.Path) == "" {
			return nil, errors.New("store.sqlite.path is required for the sqlite driver")
		}
		return sqlitestore.Open(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func storeDriver(cfg config.StoreConfig) string {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		return "memory"
	}
	return driver
}

func enabledAdapters(cfg *config.Config, log *slog.Logger) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 3)

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("configure telegram channel: %w", err)
		}
		adapters = append(adapters, adapter)
	}

	if cfg.Channels.Discord.Enabled {
		adapter, err := discord.NewAdapter(cfg.Channels.Discord, log)
		if err != nil {
			return nil, fmt.Errorf("configure discord channel: %w", err)
		}
		adapters = append(adapters, adapter)
	}

	if cfg.Channels.Messenger.Enabled {
		adapter, err := messenger.NewAdapter(cfg.Channels.Messenger, log)
		if err != nil {
			return nil, fmt.Errorf("configure messenger channel: %w", err)
		}
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 {
		return nil, errors.New("no channels are enabled")
	}

	return adapters, nil
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}
