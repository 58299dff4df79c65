// Package planet resolves the most recently registered planet and its public URL.
package planet

import (
	"context"
	"net/url"
	"strings"
)

const (
	DefaultURLTemplate = "https://play.skinetics.tech/tests/planets/{id}"
	idPlaceholder      = "{id}"
)

type Planet struct {
	ID   string
	Name string
}

// Source yields the latest registered planet. ok is false when none exist.
type Source interface {
	Latest(ctx context.Context) (planet Planet, ok bool, err error)
}

// StaticSource always yields the same configured planet id.
type StaticSource struct {
	ID   string
	Name string
}

func (s StaticSource) Latest(context.Context) (Planet, bool, error) {
	id := strings.TrimSpace(s.ID)
	if id == "" {
		return Planet{}, false, nil
	}

	return Planet{ID: id, Name: strings.TrimSpace(s.Name)}, true, nil
}

// URL substitutes the path-escaped id into template. The id must be non-empty.
func URL(template string, id string) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultURLTemplate
	}
	escaped := url.PathEscape(strings.TrimSpace(id))

	if !strings.Contains(template, idPlaceholder) {
		return strings.TrimRight(template, "/") + "/" + escaped
	}
	return strings.ReplaceAll(template, idPlaceholder, escaped)
}

// DisplayName falls back to the id when the planet has no name.
func (p Planet) DisplayName() string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return strings.TrimSpace(p.ID)
}
