package channel

import (
	"context"

	"planetbot/pkg/bus"
)

// Sink accepts one inbound message for dispatch. It returns false when the
// message could not be queued.
type Sink func(context.Context, bus.InboundMessage) bool

// Adapter bridges one chat platform (for example Discord) into the bot.
type Adapter interface {
	Name() string
	Run(context.Context, Sink) error
	Send(context.Context, bus.OutboundMessage) error
}
