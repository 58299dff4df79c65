package planet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTable          = "planetsss"
	defaultRequestTimeout = 10 * time.Second
	maxErrorBodyBytes     = 512
)

type RegistryOptions struct {
	BaseURL string
	APIKey  string
	Table   string
	Timeout time.Duration
}

// RegistryClient reads planets from a Supabase (PostgREST) table.
type RegistryClient struct {
	baseURL    string
	apiKey     string
	table      string
	httpClient *http.Client
	log        *slog.Logger
}

type planetRow struct {
	ID      json.RawMessage `json:"id"`
	Content string          `json:"content"`
}

func NewRegistryClient(opts RegistryOptions, log *slog.Logger) (*RegistryClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("planets.registry.url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("parse planets.registry.url: %w", err)
	}

	table := strings.TrimSpace(opts.Table)
	if table == "" {
		table = defaultTable
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	if log == nil {
		log = slog.Default()
	}

	return &RegistryClient{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		table:      table,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With("component", "planet.registry"),
	}, nil
}

// Latest fetches the row with the highest id.
func (c *RegistryClient) Latest(ctx context.Context) (Planet, bool, error) {
	query := url.Values{}
	query.Set("select", "id,content")
	query.Set("order", "id.desc")
	query.Set("limit", "1")
	endpoint := c.baseURL + "/rest/v1/" + url.PathEscape(c.table) + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Planet{}, false, fmt.Errorf("build planet request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Planet{}, false, fmt.Errorf("fetch latest planet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return Planet{}, false, fmt.Errorf("fetch latest planet: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rows []planetRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return Planet{}, false, fmt.Errorf("decode planet rows: %w", err)
	}
	if len(rows) == 0 {
		c.log.Debug("Planet registry is empty", "table", c.table)
		return Planet{}, false, nil
	}

	return Planet{ID: rawID(rows[0].ID), Name: strings.TrimSpace(rows[0].Content)}, true, nil
}

// rawID accepts numeric and string ids. null yields "".
func rawID(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}

	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		return strings.TrimSpace(text)
	}

	return string(trimmed)
}
