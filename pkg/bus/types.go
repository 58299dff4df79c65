package bus

import (
	"errors"
	"strings"
)

// ChannelID identifies the chat, channel, or thread a message belongs to.
type ChannelID string

// Valid reports whether the id can be used as a send destination.
func (id ChannelID) Valid() bool {
	return strings.TrimSpace(string(id)) != ""
}

func (id ChannelID) String() string {
	return strings.TrimSpace(string(id))
}

// InboundMessage is one chat message received by an adapter.
type InboundMessage struct {
	Channel  string            `json:"channel"`
	SenderID string            `json:"sender_id"`
	ChatID   ChannelID         `json:"chat_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is one reply addressed to a channel on an adapter.
//
// Build values with NewOutboundMessage so ChatID is always a valid destination.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   ChannelID         `json:"chat_id"`
	Content  string            `json:"content"`
	Thread   string            `json:"thread,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

var (
	ErrInvalidChannelID = errors.New("channel id is empty")
	ErrEmptyContent     = errors.New("message content is empty")
)

// NewOutboundMessage validates the destination and content of a reply.
func NewOutboundMessage(channel string, chatID ChannelID, content string) (OutboundMessage, error) {
	if !chatID.Valid() {
		return OutboundMessage{}, ErrInvalidChannelID
	}
	if strings.TrimSpace(content) == "" {
		return OutboundMessage{}, ErrEmptyContent
	}

	return OutboundMessage{
		Channel: strings.TrimSpace(channel),
		ChatID:  ChannelID(chatID.String()),
		Content: content,
	}, nil
}

// InThread returns a copy of the message that opens a new thread with the given title.
func (m OutboundMessage) InThread(title string) OutboundMessage {
	m.Thread = strings.TrimSpace(title)
	return m
}
