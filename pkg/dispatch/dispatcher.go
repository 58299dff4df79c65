// Package dispatch runs each inbound message through match, build, and send.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"planetbot/pkg/bus"
	"planetbot/pkg/channel"
	"planetbot/pkg/command"
	"planetbot/pkg/failure"
)

const DefaultSendTimeout = 10 * time.Second

// Matcher recognizes a command in one message.
type Matcher interface {
	Match(event bus.InboundMessage) (command.Command, bool)
}

// Builder renders the replies for a matched command.
type Builder interface {
	Build(ctx context.Context, cmd command.Command, origin bus.InboundMessage) ([]bus.OutboundMessage, error)
}

// FailureReplier is an optional Builder extension. When a reply for cmd
// fails to send, the dispatcher makes one attempt at the reply it returns.
type FailureReplier interface {
	FailureReply(cmd command.Command, origin bus.InboundMessage) (bus.OutboundMessage, bool)
}

// Sender delivers one message to the chat platform.
type Sender interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// Observer receives structured dispatch events. *bus.MessageBus satisfies it.
type Observer interface {
	PublishEvent(ctx context.Context, event bus.Event) bool
}

// Source yields inbound messages in arrival order. *bus.MessageBus satisfies it.
type Source interface {
	ConsumeInbound(ctx context.Context) (bus.InboundMessage, bool)
}

type Outcome string

const (
	OutcomeNoAction  Outcome = "no_action"
	OutcomeDelivered Outcome = "delivered"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// Result describes what happened to one inbound message.
type Result struct {
	Outcome Outcome
	Command command.Command
	Sent    []bus.OutboundMessage
	Err     error
}

type Options struct {
	SendTimeout time.Duration
	Observer    Observer
}

type Dispatcher struct {
	matcher  Matcher
	builder  Builder
	sender   Sender
	observer Observer
	timeout  time.Duration
	log      *slog.Logger
}

func New(matcher Matcher, builder Builder, sender Sender, opts Options, log *slog.Logger) (*Dispatcher, error) {
	if matcher == nil {
		return nil, errors.New("command matcher is required")
	}
	if builder == nil {
		return nil, errors.New("response builder is required")
	}
	if sender == nil {
		return nil, errors.New("sender is required")
	}

	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		matcher:  matcher,
		builder:  builder,
		sender:   sender,
		observer: opts.Observer,
		timeout:  timeout,
		log:      log.With("component", "dispatch"),
	}, nil
}

// Handle dispatches one message. Errors are contained in the returned Result.
func (d *Dispatcher) Handle(ctx context.Context, event bus.InboundMessage) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	cmd, ok := d.matcher.Match(event)
	if !ok {
		return Result{Outcome: OutcomeNoAction}
	}

	d.log.Info("Command matched", "command", cmd.Kind, "channel", event.Channel, "chat_id", event.ChatID, "sender_id", event.SenderID)
	d.emit(ctx, bus.Event{Type: bus.EventCommandMatched, Channel: event.Channel, ChatID: event.ChatID, Command: string(cmd.Kind)})

	payloads, err := d.builder.Build(ctx, cmd, event)
	if err != nil {
		d.log.Error("Refusing to send reply", "command", cmd.Kind, "chat_id", event.ChatID, "category", failure.CategoryFromError(err), "error", err)
		d.emit(ctx, failureEvent(bus.EventPayloadRejected, event, cmd, err))
		return Result{Outcome: OutcomeRejected, Command: cmd, Err: err}
	}

	sent := make([]bus.OutboundMessage, 0, len(payloads))
	for _, payload := range payloads {
		if err := d.send(ctx, payload); err != nil {
			d.log.Error("Failed to send reply", "command", cmd.Kind, "channel", payload.Channel, "chat_id", payload.ChatID, "category", failure.CategoryFromError(err), "error", err)
			d.emit(ctx, failureEvent(bus.EventDeliveryFailed, event, cmd, err))
			if fallback, ok := d.sendFailureReply(ctx, cmd, event); ok {
				sent = append(sent, fallback)
			}
			return Result{Outcome: OutcomeFailed, Command: cmd, Sent: sent, Err: err}
		}

		d.log.Info("Sent reply", "command", cmd.Kind, "channel", payload.Channel, "chat_id", payload.ChatID, "content", channel.PreviewText(payload.Content))
		sent = append(sent, payload)
	}

	d.emit(ctx, bus.Event{Type: bus.EventDeliverySucceeded, Channel: event.Channel, ChatID: event.ChatID, Command: string(cmd.Kind)})
	return Result{Outcome: OutcomeDelivered, Command: cmd, Sent: sent}
}

// Run handles messages from source one at a time until ctx is done or the
// source closes.
func (d *Dispatcher) Run(ctx context.Context, source Source) error {
	if source == nil {
		return errors.New("message source is required")
	}

	for {
		event, ok := source.ConsumeInbound(ctx)
		if !ok {
			return ctx.Err()
		}

		d.Handle(ctx, event)
	}
}

// send bounds one delivery by the configured timeout. Shutdown does not cut
// an in-flight send short; the timeout does.
func (d *Dispatcher) send(ctx context.Context, payload bus.OutboundMessage) error {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	err := d.sender.Send(sendCtx, payload)
	if err == nil {
		return nil
	}

	var categorized *failure.Error
	if errors.As(err, &categorized) {
		return err
	}
	if errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
		return failure.Wrap(failure.ErrorDeliveryTimeout, "send to "+payload.ChatID.String(), err)
	}
	return failure.Wrap(failure.ErrorDeliveryFailed, "send to "+payload.ChatID.String(), err)
}

// sendFailureReply reports a failed delivery back to the origin chat when the
// builder supplies a reply for it. The outcome of the command stays failed.
func (d *Dispatcher) sendFailureReply(ctx context.Context, cmd command.Command, origin bus.InboundMessage) (bus.OutboundMessage, bool) {
	replier, ok := d.builder.(FailureReplier)
	if !ok {
		return bus.OutboundMessage{}, false
	}
	reply, ok := replier.FailureReply(cmd, origin)
	if !ok {
		return bus.OutboundMessage{}, false
	}

	if err := d.send(ctx, reply); err != nil {
		d.log.Error("Failed to send failure reply", "command", cmd.Kind, "channel", reply.Channel, "chat_id", reply.ChatID, "category", failure.CategoryFromError(err), "error", err)
		return bus.OutboundMessage{}, false
	}

	d.log.Info("Sent failure reply", "command", cmd.Kind, "channel", reply.Channel, "chat_id", reply.ChatID)
	return reply, true
}

func (d *Dispatcher) emit(ctx context.Context, event bus.Event) {
	if d.observer == nil {
		return
	}
	d.observer.PublishEvent(context.WithoutCancel(ctx), event)
}

func failureEvent(eventType bus.EventType, origin bus.InboundMessage, cmd command.Command, err error) bus.Event {
	return bus.Event{
		Type:     eventType,
		Channel:  origin.Channel,
		ChatID:   origin.ChatID,
		Command:  string(cmd.Kind),
		Category: failure.CategoryFromError(err),
		Error:    err.Error(),
	}
}
