/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"planetbot/pkg/bus"
	"planetbot/pkg/channel/console"
	"planetbot/pkg/command"
	"planetbot/pkg/config"
	"planetbot/pkg/delivery"
	"planetbot/pkg/dispatch"
	"planetbot/pkg/logger"
	"planetbot/pkg/planet"
	"planetbot/pkg/response"
	"planetbot/pkg/ui/chat"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var messageText string

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a command or start an interactive console",
	Long:  "Runs bot commands against a local console channel. With a message it dispatches once; piped input is dispatched line by line; otherwise an interactive console opens.",
	RunE: func(cmd *cobra.Command, args []string) error {
		message := resolveMessage(args)

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		interactive := message == "" && isTerminal(os.Stdin)
		log := logger.Discard()
		if !interactive {
			if log, err = logger.New(cfg.Logging); err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
		}

		source, sourceName, err := newPlanetSource(cfg, log)
		if err != nil {
			return fmt.Errorf("configure planet source: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		piped := message == "" && !interactive
		var in io.Reader
		var out io.Writer
		if piped {
			in, out = os.Stdin, os.Stdout
		}

		adapter := console.NewAdapter(in, out)
		dispatcher, err := newConsoleDispatcher(cfg, source, adapter, log)
		if err != nil {
			return err
		}

		prompt := promptFunc(dispatcher, adapter)
		info := chat.RuntimeInfo{Source: sourceName, PlanetID: cfg.Planets.StaticID}

		switch {
		case piped:
			return runLines(ctx, dispatcher, adapter, os.Stderr)
		case interactive:
			return chat.RunInteractive(ctx, prompt, info)
		case isTerminal(os.Stdout):
			return chat.RunOneShot(ctx, prompt, message, info)
		default:
			return runOnce(ctx, prompt, message, os.Stdout)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&messageText, "message", "m", "", "message to dispatch once")
}

// resolveMessage returns the message untrimmed so "!newplanet " stays a
// non-match. Blank input resolves to "".
func resolveMessage(args []string) string {
	if strings.TrimSpace(messageText) != "" {
		return messageText
	}

	message := strings.Join(args, " ")
	if strings.TrimSpace(message) == "" {
		return ""
	}
	return message
}

// newConsoleDispatcher wires the production builder and matcher to the console.
func newConsoleDispatcher(cfg *config.Config, source planet.Source, adapter *console.Adapter, log *slog.Logger) (*dispatch.Dispatcher, error) {
	router, err := delivery.NewRouter(map[string]delivery.Sender{console.ChannelName: adapter})
	if err != nil {
		return nil, err
	}

	builder := response.NewBuilder(source, response.Options{
		URLTemplate:       cfg.Planets.URLTemplate,
		AnnounceChannelID: bus.ChannelID(cfg.Planets.AnnounceChannelID),
	}, log)

	return dispatch.New(command.NewDefaultRegistry(), builder, router, dispatch.Options{SendTimeout: cfg.Bot.SendTimeout()}, log)
}

// promptFunc dispatches text and returns what the console received.
func promptFunc(dispatcher *dispatch.Dispatcher, adapter *console.Adapter) chat.PromptFunc {
	return func(ctx context.Context, text string) ([]string, error) {
		result := dispatcher.Handle(ctx, console.Message(text))

		sent := adapter.Drain()
		lines := make([]string, 0, len(sent))
		for _, msg := range sent {
			lines = append(lines, console.FormatReply(msg))
		}

		return lines, result.Err
	}
}

func runOnce(ctx context.Context, prompt chat.PromptFunc, message string, out io.Writer) error {
	lines, err := prompt(ctx, message)
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		fmt.Fprintln(out, "no command matched, nothing sent")
	}

	return nil
}

// runLines dispatches every input line; the console echoes replies itself.
func runLines(ctx context.Context, dispatcher *dispatch.Dispatcher, adapter *console.Adapter, errOut io.Writer) error {
	return adapter.Run(ctx, func(ctx context.Context, msg bus.InboundMessage) bool {
		if result := dispatcher.Handle(ctx, msg); result.Err != nil {
			fmt.Fprintf(errOut, "⚠️ %s: %v\n", msg.Content, result.Err)
		}
		adapter.Drain()
		return true
	})
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
