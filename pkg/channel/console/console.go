// Package console is a local stdin/stdout channel for trying commands without a chat platform.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"planetbot/pkg/bus"
	"planetbot/pkg/channel"
)

const (
	ChannelName = "console"
	ChatID      = bus.ChannelID("console")
	SenderID    = "local"
)

// Adapter reads one message per input line and records every reply.
type Adapter struct {
	in  io.Reader
	out io.Writer

	mu   sync.Mutex
	sent []bus.OutboundMessage
}

// NewAdapter reads from in and echoes replies to out. Either may be nil.
func NewAdapter(in io.Reader, out io.Writer) *Adapter {
	if in == nil {
		in = strings.NewReader("")
	}
	if out == nil {
		out = io.Discard
	}
	return &Adapter{in: in, out: out}
}

func (a *Adapter) Name() string {
	return ChannelName
}

// Run forwards each non-empty line to sink and returns at end of input.
func (a *Adapter) Run(ctx context.Context, sink channel.Sink) error {
	if sink == nil {
		return errors.New("sink is required")
	}

	scanner := bufio.NewScanner(a.in)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}

		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		sink(ctx, Message(line))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read console input: %w", err)
	}
	return nil
}

// Send records msg and echoes it to the output writer.
func (a *Adapter) Send(_ context.Context, msg bus.OutboundMessage) error {
	if !msg.ChatID.Valid() {
		return bus.ErrInvalidChannelID
	}

	a.mu.Lock()
	a.sent = append(a.sent, msg)
	a.mu.Unlock()

	_, err := fmt.Fprintln(a.out, FormatReply(msg))
	return err
}

// Drain returns and clears the replies recorded since the last call.
func (a *Adapter) Drain() []bus.OutboundMessage {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := a.sent
	a.sent = nil
	return out
}

// Message wraps typed text as an inbound console message.
func Message(text string) bus.InboundMessage {
	return bus.InboundMessage{Channel: ChannelName, ChatID: ChatID, SenderID: SenderID, Content: text}
}

// FormatReply renders a reply the way a chat client would show it.
func FormatReply(msg bus.OutboundMessage) string {
	if msg.Thread == "" {
		return "🪐 " + msg.Content
	}
	return fmt.Sprintf("🧵 [%s] %s", msg.Thread, msg.Content)
}
