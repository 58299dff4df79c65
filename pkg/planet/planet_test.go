package planet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestURL(t *testing.T) {
	tests := []struct {
		name     string
		template string
		id       string
		want     string
	}{
		{name: "default template", template: "", id: "42", want: "https://play.skinetics.tech/tests/planets/42"},
		{name: "explicit template", template: DefaultURLTemplate, id: " 7 ", want: "https://play.skinetics.tech/tests/planets/7"},
		{name: "escapes id", template: DefaultURLTemplate, id: "a/b c", want: "https://play.skinetics.tech/tests/planets/a%2Fb%20c"},
		{name: "template without placeholder", template: "https://example.test/p/", id: "9", want: "https://example.test/p/9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := URL(tt.template, tt.id); got != tt.want {
				t.Fatalf("URL(%q, %q) = %q, want %q", tt.template, tt.id, got, tt.want)
			}
		})
	}
}

func TestStaticSource(t *testing.T) {
	p, ok, err := StaticSource{ID: " 42 "}.Latest(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "42", p.ID)
	require.Equal(t, "42", p.DisplayName())

	_, ok, err = StaticSource{}.Latest(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRawID(t *testing.T) {
	tests := map[string]string{
		`42`:    "42",
		`"abc"`: "abc",
		`" x "`: "x",
		`null`:  "",
		``:      "",
		`1.5e3`: "1.5e3",
	}

	for raw, want := range tests {
		if got := rawID(json.RawMessage(raw)); got != want {
			t.Fatalf("rawID(%s) = %q, want %q", raw, got, want)
		}
	}
}

func TestRegistryClientLatest(t *testing.T) {
	var gotPath, gotQuery, gotKey, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id": 42, "content": "Kepler-42b"}]`))
	}))
	t.Cleanup(server.Close)

	client, err := NewRegistryClient(RegistryOptions{BaseURL: server.URL + "/", APIKey: "secret", Timeout: time.Second}, nil)
	require.NoError(t, err)

	p, ok, err := client.Latest(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Planet{ID: "42", Name: "Kepler-42b"}, p)

	require.Equal(t, "/rest/v1/planetsss", gotPath)
	require.Equal(t, "limit=1&order=id.desc&select=id%2Ccontent", gotQuery)
	require.Equal(t, "secret", gotKey)
	require.Equal(t, "Bearer secret", gotAuth)
}

func TestRegistryClientEmptyTable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(server.Close)

	client, err := NewRegistryClient(RegistryOptions{BaseURL: server.URL, Table: "planets"}, nil)
	require.NoError(t, err)

	_, ok, err := client.Latest(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRegistryClientStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	client, err := NewRegistryClient(RegistryOptions{BaseURL: server.URL}, nil)
	require.NoError(t, err)

	_, _, err = client.Latest(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 401")
}

func TestNewRegistryClientRequiresURL(t *testing.T) {
	_, err := NewRegistryClient(RegistryOptions{}, nil)
	require.Error(t, err)

	_, err = NewRegistryClient(RegistryOptions{BaseURL: "not a url"}, nil)
	require.Error(t, err)
}
