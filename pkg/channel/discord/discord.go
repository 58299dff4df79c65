package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"planetbot/pkg/bus"
	"planetbot/pkg/channel"
	"planetbot/pkg/config"

	"github.com/bwmarrin/discordgo"
)

const (
	channelName          = "discord"
	threadArchiveMinutes = 60
)

// api is the subset of *discordgo.Session used to post replies.
type api interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ThreadStart(channelID, name string, typ discordgo.ChannelType, archiveDuration int, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// Adapter bridges Discord gateway messages into the bot.
type Adapter struct {
	session   *discordgo.Session
	rest      api
	allowFrom channel.AllowList
	log       *slog.Logger
}

// NewAdapter validates Discord configuration and prepares a bot session.
// No connection is made until Run.
func NewAdapter(cfg config.DiscordConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.discord.token is required")
	}
	token = strings.TrimPrefix(token, "Bot ")

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentDirectMessages | discordgo.IntentMessageContent
	// Handlers run one at a time so messages reach the queue in gateway order.
	session.SyncEvents = true

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		session:   session,
		rest:      session,
		allowFrom: channel.NewAllowList(cfg.AllowFrom),
		log:       log.With("component", "channel.discord"),
	}, nil
}

// Name returns the channel identifier used in bus messages and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run opens the gateway connection and forwards messages to sink until ctx is done.
// Failing to connect is returned immediately.
func (a *Adapter) Run(ctx context.Context, sink channel.Sink) error {
	if sink == nil {
		return errors.New("sink is required")
	}

	removeHandler := a.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		a.handleMessage(ctx, selfID(s), m.Message, sink)
	})
	defer removeHandler()

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	defer func() {
		if err := a.session.Close(); err != nil {
			a.log.Debug("Failed to close discord session", "error", err)
		}
	}()

	a.log.Info("Discord channel started")
	<-ctx.Done()
	return nil
}

func (a *Adapter) handleMessage(ctx context.Context, self string, m *discordgo.Message, sink channel.Sink) {
	inbound, ok := a.toInbound(self, m)
	if !ok {
		return
	}

	a.log.Debug("Received message", "chat_id", inbound.ChatID, "sender_id", inbound.SenderID, "content", channel.PreviewText(inbound.Content))
	if !sink(ctx, inbound) {
		a.log.Warn("Dropped inbound message", "chat_id", inbound.ChatID)
	}
}

// toInbound converts a gateway message, skipping bots, ourselves, and
// senders outside allow_from.
func (a *Adapter) toInbound(self string, m *discordgo.Message) (bus.InboundMessage, bool) {
	if m == nil || m.Author == nil {
		return bus.InboundMessage{}, false
	}
	if m.Author.Bot || (self != "" && m.Author.ID == self) {
		return bus.InboundMessage{}, false
	}
	if !a.allowFrom.Allows(m.Author.ID) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", m.Author.ID)
		return bus.InboundMessage{}, false
	}

	metadata := map[string]string{"message_id": m.ID}
	if m.GuildID != "" {
		metadata["guild_id"] = m.GuildID
	}

	return bus.InboundMessage{
		Channel:  channelName,
		SenderID: m.Author.ID,
		ChatID:   bus.ChannelID(m.ChannelID),
		Content:  m.Content,
		Metadata: metadata,
	}, true
}

// Send posts msg. A thread title opens a public thread first and posts inside it.
func (a *Adapter) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !msg.ChatID.Valid() {
		return bus.ErrInvalidChannelID
	}

	target := msg.ChatID.String()
	if msg.Thread != "" {
		thread, err := a.rest.ThreadStart(target, msg.Thread, discordgo.ChannelTypeGuildPublicThread, threadArchiveMinutes, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("start discord thread in %s: %w", target, err)
		}
		target = thread.ID
	}

	if _, err := a.rest.ChannelMessageSend(target, msg.Content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send discord message to %s: %w", target, err)
	}

	return nil
}

func selfID(s *discordgo.Session) string {
	if s == nil || s.State == nil || s.State.User == nil {
		return ""
	}
	return s.State.User.ID
}
