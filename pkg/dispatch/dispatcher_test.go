package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"planetbot/pkg/bus"
	"planetbot/pkg/command"
	"planetbot/pkg/failure"
	"planetbot/pkg/planet"
	"planetbot/pkg/response"

	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []bus.OutboundMessage
	errs  []error
	delay time.Duration
}

func (s *recordingSender) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.delay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)

	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func (s *recordingSender) snapshot() []bus.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]bus.OutboundMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

type recordingObserver struct {
	mu     sync.Mutex
	events []bus.Event
}

func (o *recordingObserver) PublishEvent(_ context.Context, event bus.Event) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
	return true
}

func (o *recordingObserver) types() []bus.EventType {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]bus.EventType, 0, len(o.events))
	for _, event := range o.events {
		out = append(out, event.Type)
	}
	return out
}

func newTestDispatcher(t *testing.T, planetID string, sender Sender, observer Observer) *Dispatcher {
	t.Helper()

	builder := response.NewBuilder(planet.StaticSource{ID: planetID}, response.Options{}, nil)
	d, err := New(command.NewDefaultRegistry(), builder, sender, Options{SendTimeout: 200 * time.Millisecond, Observer: observer}, nil)
	require.NoError(t, err)
	return d
}

func event(chatID bus.ChannelID, content string) bus.InboundMessage {
	return bus.InboundMessage{Channel: "discord", ChatID: chatID, SenderID: "7", Content: content}
}

func TestHandleNoMatchSendsNothing(t *testing.T) {
	sender := &recordingSender{}
	observer := &recordingObserver{}
	d := newTestDispatcher(t, "42", sender, observer)

	for _, content := range []string{"", "  ", "hello", "!newplanet ", "!NEWPLANET", "!newplanet 42"} {
		result := d.Handle(context.Background(), event("100", content))
		require.Equal(t, OutcomeNoAction, result.Outcome, "content %q", content)
		require.NoError(t, result.Err)
	}

	require.Empty(t, sender.snapshot())
	require.Empty(t, observer.types())
}

func TestHandleNewPlanetEndToEnd(t *testing.T) {
	sender := &recordingSender{}
	observer := &recordingObserver{}
	d := newTestDispatcher(t, "42", sender, observer)

	result := d.Handle(context.Background(), event("100", "!newplanet"))
	require.Equal(t, OutcomeDelivered, result.Outcome)
	require.NoError(t, result.Err)
	require.Equal(t, command.KindNewPlanet, result.Command.Kind)

	sent := sender.snapshot()
	require.Len(t, sent, 1)
	require.Equal(t, bus.ChannelID("100"), sent[0].ChatID)
	require.Equal(t, "discord", sent[0].Channel)
	require.Equal(t, "A new planet has been added: https://play.skinetics.tech/tests/planets/42", sent[0].Content)
	require.Equal(t, sent, result.Sent)

	require.Equal(t, []bus.EventType{bus.EventCommandMatched, bus.EventDeliverySucceeded}, observer.types())
}

func TestHandleEmptyPlanetIDSendsNothing(t *testing.T) {
	sender := &recordingSender{}
	observer := &recordingObserver{}
	d := newTestDispatcher(t, "", sender, observer)

	result := d.Handle(context.Background(), event("100", "!newplanet"))
	require.Equal(t, OutcomeRejected, result.Outcome)
	require.Equal(t, failure.ErrorInvalidPayload, failure.CategoryFromError(result.Err))
	require.Empty(t, sender.snapshot())

	require.Equal(t, []bus.EventType{bus.EventCommandMatched, bus.EventPayloadRejected}, observer.types())
	require.Equal(t, failure.ErrorInvalidPayload, observer.events[1].Category)
}

func TestHandlePreservesArrivalOrder(t *testing.T) {
	sender := &recordingSender{}
	d := newTestDispatcher(t, "42", sender, nil)

	d.Handle(context.Background(), event("1", "!newplanet"))
	d.Handle(context.Background(), event("2", "!newplanet"))

	sent := sender.snapshot()
	require.Len(t, sent, 2)
	require.Equal(t, bus.ChannelID("1"), sent[0].ChatID)
	require.Equal(t, bus.ChannelID("2"), sent[1].ChatID)
}

func TestHandleDeliveryFailureIsContained(t *testing.T) {
	sender := &recordingSender{errs: []error{errors.New("rate limited")}}
	observer := &recordingObserver{}
	d := newTestDispatcher(t, "42", sender, observer)

	first := d.Handle(context.Background(), event("1", "!newplanet"))
	require.Equal(t, OutcomeFailed, first.Outcome)
	require.Equal(t, failure.ErrorDeliveryFailed, failure.CategoryFromError(first.Err))
	require.ErrorContains(t, first.Err, "rate limited")
	require.Empty(t, first.Sent)

	second := d.Handle(context.Background(), event("2", "!newplanet"))
	require.Equal(t, OutcomeDelivered, second.Outcome)

	sent := sender.snapshot()
	require.Len(t, sent, 2, "second event must get its own send attempt")
	require.Equal(t, bus.ChannelID("2"), sent[1].ChatID)

	require.Equal(t, []bus.EventType{
		bus.EventCommandMatched, bus.EventDeliveryFailed,
		bus.EventCommandMatched, bus.EventDeliverySucceeded,
	}, observer.types())
}

func TestHandleSendTimeout(t *testing.T) {
	sender := &recordingSender{delay: time.Second}
	d := newTestDispatcher(t, "42", sender, nil)

	start := time.Now()
	result := d.Handle(context.Background(), event("1", "!newplanet"))
	require.Less(t, time.Since(start), 900*time.Millisecond)
	require.Equal(t, OutcomeFailed, result.Outcome)
	require.Equal(t, failure.ErrorDeliveryTimeout, failure.CategoryFromError(result.Err))
}

func TestHandleSendSurvivesCallerCancellation(t *testing.T) {
	sender := &recordingSender{delay: 20 * time.Millisecond}
	d := newTestDispatcher(t, "42", sender, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := d.Handle(ctx, event("1", "!newplanet"))
	require.Equal(t, OutcomeDelivered, result.Outcome)
	require.Len(t, sender.snapshot(), 1)
}

func TestHandleStopsAfterFirstFailedPayload(t *testing.T) {
	builder := staticBuilder{payloads: []bus.OutboundMessage{
		{Channel: "discord", ChatID: "1", Content: "first"},
		{Channel: "discord", ChatID: "1", Content: "second"},
	}}
	sender := &recordingSender{errs: []error{errors.New("boom")}}
	d, err := New(command.NewDefaultRegistry(), builder, sender, Options{}, nil)
	require.NoError(t, err)

	result := d.Handle(context.Background(), event("1", "!newplanet"))
	require.Equal(t, OutcomeFailed, result.Outcome)
	require.Len(t, sender.snapshot(), 1)
}

func TestHandleCheckNewPlanetThreadFailureRepliesInOrigin(t *testing.T) {
	builder := response.NewBuilder(planet.StaticSource{ID: "7", Name: "Kepler"}, response.Options{}, nil)
	sender := &recordingSender{errs: []error{errors.New("missing permissions")}}
	observer := &recordingObserver{}
	d, err := New(command.NewDefaultRegistry(), builder, sender, Options{SendTimeout: 200 * time.Millisecond, Observer: observer}, nil)
	require.NoError(t, err)

	result := d.Handle(context.Background(), event("100", "!check_new_planet"))
	require.Equal(t, OutcomeFailed, result.Outcome)
	require.ErrorContains(t, result.Err, "missing permissions")

	sent := sender.snapshot()
	require.Len(t, sent, 2, "thread attempt, then the failure reply")
	require.Equal(t, "🛰️ New planet: Kepler", sent[0].Thread)
	require.Equal(t, bus.ChannelID("100"), sent[1].ChatID)
	require.Equal(t, response.ReplyCheckFailed, sent[1].Content)
	require.Empty(t, sent[1].Thread)
	require.Equal(t, sent[1:], result.Sent)

	require.Equal(t, []bus.EventType{bus.EventCommandMatched, bus.EventDeliveryFailed}, observer.types())
}

func TestHandleFailureReplyFailureIsContained(t *testing.T) {
	builder := response.NewBuilder(planet.StaticSource{ID: "7"}, response.Options{}, nil)
	sender := &recordingSender{errs: []error{errors.New("boom"), errors.New("still down")}}
	d, err := New(command.NewDefaultRegistry(), builder, sender, Options{}, nil)
	require.NoError(t, err)

	result := d.Handle(context.Background(), event("100", "!check_new_planet"))
	require.Equal(t, OutcomeFailed, result.Outcome)
	require.ErrorContains(t, result.Err, "boom")
	require.Empty(t, result.Sent)
	require.Len(t, sender.snapshot(), 2)

	next := d.Handle(context.Background(), event("100", "!newplanet"))
	require.Equal(t, OutcomeDelivered, next.Outcome)
}

func TestRunDispatchesQueueSequentially(t *testing.T) {
	mb := bus.NewMessageBus()
	t.Cleanup(mb.Close)

	sender := &recordingSender{errs: []error{errors.New("boom")}}
	d := newTestDispatcher(t, "42", sender, mb)

	events, unsubscribe := mb.SubscribeEvents(context.Background(), 16)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, mb) }()

	for _, ev := range []bus.InboundMessage{event("1", "!newplanet"), event("2", "ignored"), event("3", "!newplanet")} {
		require.True(t, mb.PublishInbound(ctx, ev))
	}

	require.Eventually(t, func() bool { return len(sender.snapshot()) == 2 }, time.Second, 10*time.Millisecond)
	sent := sender.snapshot()
	require.Equal(t, bus.ChannelID("1"), sent[0].ChatID)
	require.Equal(t, bus.ChannelID("3"), sent[1].ChatID)

	var failed int
	timeout := time.After(time.Second)
	for failed == 0 {
		select {
		case ev := <-events:
			if ev.Type == bus.EventDeliveryFailed {
				failed++
				require.Equal(t, bus.ChannelID("1"), ev.ChatID)
			}
		case <-timeout:
			t.Fatal("expected delivery failure event")
		}
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRunStopsWhenBusCloses(t *testing.T) {
	mb := bus.NewMessageBus()
	d := newTestDispatcher(t, "42", &recordingSender{}, nil)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background(), mb) }()
	mb.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after bus close")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	builder := response.NewBuilder(nil, response.Options{}, nil)
	registry := command.NewDefaultRegistry()

	_, err := New(nil, builder, &recordingSender{}, Options{}, nil)
	require.Error(t, err)
	_, err = New(registry, nil, &recordingSender{}, Options{}, nil)
	require.Error(t, err)
	_, err = New(registry, builder, nil, Options{}, nil)
	require.Error(t, err)
}

type staticBuilder struct {
	payloads []bus.OutboundMessage
}

func (b staticBuilder) Build(context.Context, command.Command, bus.InboundMessage) ([]bus.OutboundMessage, error) {
	return b.payloads, nil
}
