// Package delivery routes outbound messages to the adapter that owns their channel.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"planetbot/pkg/bus"
	"planetbot/pkg/failure"
)

// Sender delivers one message over a single platform.
type Sender interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// Router is immutable after construction.
type Router struct {
	senders  map[string]Sender
	fallback string
}

// NewRouter maps adapter names to senders. With exactly one sender, messages
// without a channel name go to it.
func NewRouter(senders map[string]Sender) (*Router, error) {
	if len(senders) == 0 {
		return nil, errors.New("at least one sender is required")
	}

	routes := make(map[string]Sender, len(senders))
	for name, sender := range senders {
		key := strings.TrimSpace(name)
		if key == "" {
			return nil, errors.New("sender name is required")
		}
		if sender == nil {
			return nil, fmt.Errorf("sender %q is nil", key)
		}
		routes[key] = sender
	}

	router := &Router{senders: routes}
	if len(routes) == 1 {
		for name := range routes {
			router.fallback = name
		}
	}

	return router, nil
}

// Send refuses invalid destinations before any adapter is called.
func (r *Router) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !msg.ChatID.Valid() {
		return failure.InvalidPayload(bus.ErrInvalidChannelID.Error())
	}
	if strings.TrimSpace(msg.Content) == "" {
		return failure.InvalidPayload(bus.ErrEmptyContent.Error())
	}

	name := strings.TrimSpace(msg.Channel)
	if name == "" {
		name = r.fallback
	}

	sender, ok := r.senders[name]
	if !ok {
		return failure.New(failure.ErrorNoRoute, fmt.Sprintf("no adapter for channel %q", msg.Channel))
	}

	return sender.Send(ctx, msg)
}

// Names lists routed adapter names in sorted order.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.senders))
	for name := range r.senders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
