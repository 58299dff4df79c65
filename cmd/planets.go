package cmd

import (
	"log/slog"
	"strings"

	"planetbot/pkg/config"
	"planetbot/pkg/planet"
)

const (
	sourceRegistry = "registry"
	sourceStatic   = "static"
)

// newPlanetSource prefers the registry when one is configured.
func newPlanetSource(cfg *config.Config, log *slog.Logger) (planet.Source, string, error) {
	registry := cfg.Planets.Registry
	if strings.TrimSpace(registry.URL) == "" {
		return planet.StaticSource{ID: cfg.Planets.StaticID}, sourceStatic, nil
	}

	client, err := planet.NewRegistryClient(planet.RegistryOptions{
		BaseURL: registry.URL,
		APIKey:  registry.APIKey,
		Table:   registry.Table,
		Timeout: registry.RequestTimeout(),
	}, log)
	if err != nil {
		return nil, "", err
	}

	return client, sourceRegistry, nil
}
