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

	"planetbot/pkg/channel"
	"planetbot/pkg/channel/discord"
	"planetbot/pkg/channel/telegram"
	"planetbot/pkg/config"
	"planetbot/pkg/gateway"
	"planetbot/pkg/logger"
	"planetbot/pkg/store"

	"github.com/spf13/cobra"
)

const (
	discordChannelName  = "discord"
	telegramChannelName = "telegram"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run channel gateway mode",
	Long:  "Connects the enabled chat channels, answers planet commands, and serves health and readiness endpoints.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.gateway")

		adapters, err := enabledAdapters(cfg, log)
		if err != nil {
			return fmt.Errorf("gateway configuration invalid: %w", err)
		}

		source, sourceName, err := newPlanetSource(cfg, log)
		if err != nil {
			return fmt.Errorf("configure planet source: %w", err)
		}

		opts := gateway.Options{Planets: source}
		if cfg.Watcher.Enabled {
			state, err := store.Open(cfg.Watcher.StatePath)
			if err != nil {
				return fmt.Errorf("open watcher state: %w", err)
			}
			defer state.Close()
			opts.State = state
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := gateway.NewService(cfg, adapters, opts, log)
		if err != nil {
			return fmt.Errorf("initialize gateway service: %w", err)
		}

		log.Info("Gateway started", "channels", enabledChannelNames(adapters), "planet_source", sourceName, "watcher", cfg.Watcher.Enabled)
		if err := svc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Gateway runtime failed", "error", err)
			return err
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}

func enabledAdapters(cfg *config.Config, log *slog.Logger) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 2)

	if cfg.Channels.Discord.Enabled {
		adapter, err := discord.NewAdapter(cfg.Channels.Discord, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", discordChannelName, err)
		}
		adapters = append(adapters, adapter)
	}

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", telegramChannelName, err)
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
