// Package response turns matched commands into outbound chat messages.
package response

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"planetbot/pkg/bus"
	"planetbot/pkg/command"
	"planetbot/pkg/failure"
	"planetbot/pkg/planet"
)

const (
	newPlanetPrefix   = "A new planet has been added: "
	simulationPrefix  = "Check out the new planet simulation: "
	threadTitlePrefix = "🛰️ New planet: "

	ReplyThreadCreated = "A new thread has been created for the latest planet!"
	ReplyNoPlanets     = "No new planets found"
	ReplyCheckFailed   = "An error occurred while checking for new planets"
)

type Options struct {
	// URLTemplate contains an {id} placeholder. Empty uses planet.DefaultURLTemplate.
	URLTemplate string

	// AnnounceChannelID receives planet threads. Empty announces in the origin channel.
	AnnounceChannelID bus.ChannelID
}

// Builder renders replies. It never performs I/O itself; planet ids come from source.
type Builder struct {
	source   planet.Source
	template string
	announce bus.ChannelID
	log      *slog.Logger
}

func NewBuilder(source planet.Source, opts Options, log *slog.Logger) *Builder {
	if source == nil {
		source = planet.StaticSource{}
	}
	if log == nil {
		log = slog.Default()
	}

	template := strings.TrimSpace(opts.URLTemplate)
	if template == "" {
		template = planet.DefaultURLTemplate
	}

	return &Builder{
		source:   source,
		template: template,
		announce: bus.ChannelID(opts.AnnounceChannelID.String()),
		log:      log.With("component", "response.builder"),
	}
}

// Build returns the replies for cmd, in send order, addressed relative to origin.
//
// An error means nothing may be sent for this command.
func (b *Builder) Build(ctx context.Context, cmd command.Command, origin bus.InboundMessage) ([]bus.OutboundMessage, error) {
	if !origin.ChatID.Valid() {
		return nil, failure.InvalidPayload("origin channel id is empty")
	}

	switch cmd.Kind {
	case command.KindNewPlanet:
		return b.newPlanet(ctx, origin)
	case command.KindCheckNewPlanet:
		return b.checkNewPlanet(ctx, origin)
	default:
		return nil, failure.InvalidPayload(fmt.Sprintf("no response for command %q", cmd.Kind))
	}
}

func (b *Builder) newPlanet(ctx context.Context, origin bus.InboundMessage) ([]bus.OutboundMessage, error) {
	latest, ok, err := b.source.Latest(ctx)
	if err != nil {
		return nil, failure.Wrap(failure.ErrorUpstream, "resolve planet id", err)
	}
	if !ok || strings.TrimSpace(latest.ID) == "" {
		return nil, failure.InvalidPayload("planet id is empty")
	}

	msg, err := bus.NewOutboundMessage(origin.Channel, origin.ChatID, NewPlanetContent(b.template, latest.ID))
	if err != nil {
		return nil, failure.InvalidPayload(err.Error())
	}

	return []bus.OutboundMessage{msg}, nil
}

func (b *Builder) checkNewPlanet(ctx context.Context, origin bus.InboundMessage) ([]bus.OutboundMessage, error) {
	latest, ok, err := b.source.Latest(ctx)
	if err != nil {
		b.log.Error("Failed to check for new planets", "error", err)
		return b.reply(origin, ReplyCheckFailed)
	}
	if !ok {
		return b.reply(origin, ReplyNoPlanets)
	}
	if strings.TrimSpace(latest.ID) == "" {
		return nil, failure.InvalidPayload("latest planet has no id")
	}

	target := b.announce
	if !target.Valid() {
		target = origin.ChatID
	}

	announcement, err := Announcement(origin.Channel, target, b.template, latest)
	if err != nil {
		return nil, failure.InvalidPayload(err.Error())
	}
	ack, err := bus.NewOutboundMessage(origin.Channel, origin.ChatID, ReplyThreadCreated)
	if err != nil {
		return nil, failure.InvalidPayload(err.Error())
	}

	return []bus.OutboundMessage{announcement, ack}, nil
}

func (b *Builder) reply(origin bus.InboundMessage, text string) ([]bus.OutboundMessage, error) {
	msg, err := bus.NewOutboundMessage(origin.Channel, origin.ChatID, text)
	if err != nil {
		return nil, failure.InvalidPayload(err.Error())
	}
	return []bus.OutboundMessage{msg}, nil
}

// FailureReply tells the origin chat that a !check_new_planet reply could not
// be delivered. Other commands get no fallback.
func (b *Builder) FailureReply(cmd command.Command, origin bus.InboundMessage) (bus.OutboundMessage, bool) {
	if cmd.Kind != command.KindCheckNewPlanet {
		return bus.OutboundMessage{}, false
	}

	msg, err := bus.NewOutboundMessage(origin.Channel, origin.ChatID, ReplyCheckFailed)
	if err != nil {
		return bus.OutboundMessage{}, false
	}
	return msg, true
}

// NewPlanetContent formats the !newplanet reply for a non-empty id.
func NewPlanetContent(template string, id string) string {
	return newPlanetPrefix + planet.URL(template, id)
}

// Announcement builds the thread-opening message for a planet.
func Announcement(channel string, target bus.ChannelID, template string, p planet.Planet) (bus.OutboundMessage, error) {
	if strings.TrimSpace(p.ID) == "" {
		return bus.OutboundMessage{}, fmt.Errorf("planet id is empty")
	}

	msg, err := bus.NewOutboundMessage(channel, target, simulationPrefix+planet.URL(template, p.ID))
	if err != nil {
		return bus.OutboundMessage{}, err
	}

	return msg.InThread(threadTitlePrefix + p.DisplayName()), nil
}
