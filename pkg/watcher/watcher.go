// Package watcher announces newly registered planets on a cron schedule.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"planetbot/pkg/bus"
	"planetbot/pkg/planet"
	"planetbot/pkg/response"

	"github.com/adhocore/gronx"
)

// State remembers the last announced planet per target.
type State interface {
	LastAnnounced(ctx context.Context, target string) (string, bool, error)
	MarkAnnounced(ctx context.Context, target string, planetID string) error
}

type Sender interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

type Observer interface {
	PublishEvent(ctx context.Context, event bus.Event) bool
}

type Options struct {
	Schedule    string
	Channel     string
	ChannelID   bus.ChannelID
	URLTemplate string
	SendTimeout time.Duration
	Observer    Observer
}

type Watcher struct {
	source   planet.Source
	state    State
	sender   Sender
	observer Observer

	schedule  string
	channel   string
	channelID bus.ChannelID
	template  string
	timeout   time.Duration

	now func() time.Time
	log *slog.Logger
}

func New(source planet.Source, state State, sender Sender, opts Options, log *slog.Logger) (*Watcher, error) {
	if source == nil || state == nil || sender == nil {
		return nil, errors.New("planet source, state, and sender are required")
	}

	schedule := strings.TrimSpace(opts.Schedule)
	cron := gronx.New()
	if !cron.IsValid(schedule) {
		return nil, fmt.Errorf("invalid watcher schedule %q", opts.Schedule)
	}
	if !opts.ChannelID.Valid() {
		return nil, errors.New("watcher.channel_id is required")
	}

	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &Watcher{
		source:    source,
		state:     state,
		sender:    sender,
		observer:  opts.Observer,
		schedule:  schedule,
		channel:   strings.TrimSpace(opts.Channel),
		channelID: bus.ChannelID(opts.ChannelID.String()),
		template:  opts.URLTemplate,
		timeout:   timeout,
		now:       time.Now,
		log:       log.With("component", "watcher"),
	}, nil
}

// Run checks once per schedule tick until ctx is done. Check errors are logged.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info("Planet watcher started", "schedule", w.schedule, "channel", w.channel, "chat_id", w.channelID)

	for {
		next, err := gronx.NextTickAfter(w.schedule, w.now(), false)
		if err != nil {
			return fmt.Errorf("compute next watcher tick: %w", err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if _, err := w.Check(ctx); err != nil {
			w.log.Error("Planet check failed", "error", err)
		}
	}
}

// Check announces the latest planet when it differs from the last one recorded.
// The first planet ever seen is recorded without announcing.
func (w *Watcher) Check(ctx context.Context) (bool, error) {
	latest, ok, err := w.source.Latest(ctx)
	if err != nil {
		return false, fmt.Errorf("fetch latest planet: %w", err)
	}
	if !ok || strings.TrimSpace(latest.ID) == "" {
		return false, nil
	}

	target := w.target()
	last, seen, err := w.state.LastAnnounced(ctx, target)
	if err != nil {
		return false, err
	}
	if !seen {
		w.log.Info("Recording planet baseline", "planet_id", latest.ID)
		return false, w.state.MarkAnnounced(ctx, target, latest.ID)
	}
	if last == latest.ID {
		return false, nil
	}

	msg, err := response.Announcement(w.channel, w.channelID, w.template, latest)
	if err != nil {
		return false, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.sender.Send(sendCtx, msg); err != nil {
		return false, fmt.Errorf("announce planet %s: %w", latest.ID, err)
	}

	if err := w.state.MarkAnnounced(ctx, target, latest.ID); err != nil {
		return true, err
	}

	w.log.Info("Announced new planet", "planet_id", latest.ID, "name", latest.DisplayName())
	if w.observer != nil {
		w.observer.PublishEvent(ctx, bus.Event{
			Type:    bus.EventPlanetAnnounced,
			Channel: w.channel,
			ChatID:  w.channelID,
			Payload: map[string]string{"planet_id": latest.ID},
		})
	}

	return true, nil
}

func (w *Watcher) target() string {
	return w.channel + ":" + w.channelID.String()
}
