// Package command recognizes chat commands by exact trigger text.
package command

import (
	"errors"
	"fmt"
	"strings"

	"planetbot/pkg/bus"
)

// Kind tags the recognized command variant.
type Kind string

const (
	KindNewPlanet      Kind = "new_planet"
	KindCheckNewPlanet Kind = "check_new_planet"
)

const (
	TriggerNewPlanet      = "!newplanet"
	TriggerCheckNewPlanet = "!check_new_planet"
)

// Command is a matched trigger plus its parsed arguments.
type Command struct {
	Kind    Kind
	Trigger string
	Args    []string
}

// Trigger maps one literal message text to a command kind.
type Trigger struct {
	Text string
	Kind Kind

	// FoldCase compares case-insensitively. The whole content must still match.
	FoldCase bool
}

// Registry is an immutable ordered trigger table. It is safe for concurrent use.
type Registry struct {
	triggers []Trigger
}

// NewRegistry validates triggers and freezes them in the given order.
func NewRegistry(triggers ...Trigger) (*Registry, error) {
	if len(triggers) == 0 {
		return nil, errors.New("at least one trigger is required")
	}

	seen := make(map[string]struct{}, len(triggers))
	frozen := make([]Trigger, 0, len(triggers))
	for _, trigger := range triggers {
		if strings.TrimSpace(trigger.Text) == "" {
			return nil, errors.New("trigger text is required")
		}
		if trigger.Kind == "" {
			return nil, fmt.Errorf("trigger %q has no command kind", trigger.Text)
		}

		key := trigger.Text
		if trigger.FoldCase {
			key = strings.ToLower(key)
		}
		if _, ok := seen[key]; ok {
			return nil, fmt.Errorf("duplicate trigger %q", trigger.Text)
		}
		seen[key] = struct{}{}
		frozen = append(frozen, trigger)
	}

	return &Registry{triggers: frozen}, nil
}

// DefaultTriggers returns the bot's built-in command set.
func DefaultTriggers() []Trigger {
	return []Trigger{
		{Text: TriggerNewPlanet, Kind: KindNewPlanet},
		{Text: TriggerCheckNewPlanet, Kind: KindCheckNewPlanet, FoldCase: true},
	}
}

// NewDefaultRegistry builds a registry over DefaultTriggers.
func NewDefaultRegistry() *Registry {
	registry, err := NewRegistry(DefaultTriggers()...)
	if err != nil {
		panic(err)
	}
	return registry
}

// Match compares the whole message content against each trigger in order.
func (r *Registry) Match(event bus.InboundMessage) (Command, bool) {
	if r == nil {
		return Command{}, false
	}

	for _, trigger := range r.triggers {
		if trigger.matches(event.Content) {
			return Command{Kind: trigger.Kind, Trigger: trigger.Text}, true
		}
	}

	return Command{}, false
}

// Triggers returns a copy of the registered triggers.
func (r *Registry) Triggers() []Trigger {
	if r == nil {
		return nil
	}

	out := make([]Trigger, len(r.triggers))
	copy(out, r.triggers)
	return out
}

func (t Trigger) matches(content string) bool {
	if t.FoldCase {
		return strings.EqualFold(content, t.Text)
	}
	return content == t.Text
}
