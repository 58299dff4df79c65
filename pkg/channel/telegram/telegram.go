package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"planetbot/pkg/bus"
	"planetbot/pkg/channel"
	"planetbot/pkg/config"
	"planetbot/pkg/failure"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"

// Adapter bridges Telegram updates into the bot.
type Adapter struct {
	bot       *telego.Bot
	allowFrom channel.AllowList
	log       *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs a bot client.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		bot:       bot,
		allowFrom: channel.NewAllowList(cfg.AllowFrom),
		log:       log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in bus messages and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts Telegram long polling and forwards messages to sink.
func (a *Adapter) Run(ctx context.Context, sink channel.Sink) error {
	if sink == nil {
		return errors.New("sink is required")
	}

	updates, err := a.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			inbound, ok := a.toInbound(update)
			if !ok {
				continue
			}

			a.log.Debug("Received message", "chat_id", inbound.ChatID, "sender_id", inbound.SenderID, "content", channel.PreviewText(inbound.Content))
			if !sink(ctx, inbound) {
				a.log.Warn("Dropped inbound message", "chat_id", inbound.ChatID)
			}
		}
	}
}

// toInbound keeps text messages from allowed human senders.
func (a *Adapter) toInbound(update telego.Update) (bus.InboundMessage, bool) {
	message := update.Message
	if message == nil || message.Text == "" {
		return bus.InboundMessage{}, false
	}
	if message.From == nil || message.From.IsBot {
		return bus.InboundMessage{}, false
	}

	senderID := strconv.FormatInt(message.From.ID, 10)
	if !a.allowFrom.Allows(senderID) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return bus.InboundMessage{}, false
	}

	return bus.InboundMessage{
		Channel:  channelName,
		SenderID: senderID,
		ChatID:   bus.ChannelID(strconv.FormatInt(message.Chat.ID, 10)),
		Content:  message.Text,
		Metadata: map[string]string{
			"update_id": strconv.Itoa(update.UpdateID),
		},
	}, true
}

// Send posts msg to its chat. Telegram has no threads in plain chats, so a
// thread title becomes the first line.
func (a *Adapter) Send(ctx context.Context, msg bus.OutboundMessage) error {
	chatID, err := parseChatID(msg.ChatID)
	if err != nil {
		return err
	}

	if _, err := a.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), renderText(msg))); err != nil {
		return fmt.Errorf("send telegram message to %d: %w", chatID, err)
	}

	return nil
}

func parseChatID(id bus.ChannelID) (int64, error) {
	if !id.Valid() {
		return 0, failure.InvalidPayload(bus.ErrInvalidChannelID.Error())
	}

	chatID, err := strconv.ParseInt(id.String(), 10, 64)
	if err != nil {
		return 0, failure.InvalidPayload(fmt.Sprintf("telegram chat id %q is not numeric", id.String()))
	}

	return chatID, nil
}

func renderText(msg bus.OutboundMessage) string {
	if msg.Thread == "" {
		return msg.Content
	}
	return msg.Thread + "\n\n" + msg.Content
}
