package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/keshon/ptero-bot/internal/fault"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, storagePath string, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true

	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--storage", storagePath}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestRegistryCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")

	out, err := execute(t, path, "set-url", "g1", "https://panel.example.com/")
	require.NoError(t, err)
	assert.Contains(t, out, "https://panel.example.com")

	out, err = execute(t, path, "set-api", "g1", "ptlc_1234567890abcdef")
	require.NoError(t, err)
	assert.Contains(t, out, "ptlc...cdef")
	assert.NotContains(t, out, "ptlc_1234567890abcdef")

	_, err = execute(t, path, "alias", "set", "g1", "Survival", "abc-123")
	require.NoError(t, err)

	out, err = execute(t, path, "alias", "list", "g1")
	require.NoError(t, err)
	assert.Contains(t, out, "survival\tabc-123")

	out, err = execute(t, path, "tenants")
	require.NoError(t, err)
	assert.Contains(t, out, "g1\tconfigured\t1 aliases")

	_, err = execute(t, path, "alias", "delete", "g1", "missing")
	assert.Equal(t, fault.AliasNotFound, fault.KindOf(err))
}

func TestInvalidURLRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	_, err := execute(t, path, "set-url", "g1", "panel.example.com")
	assert.Equal(t, fault.InvalidInput, fault.KindOf(err))
}

func TestStatusAgainstPanel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/client/servers/abc-123":
			_, _ = io.WriteString(w, `{"attributes":{"name":"Survival"}}`)
		case "/api/client/servers/abc-123/resources":
			_, _ = io.WriteString(w, `{"attributes":{"current_state":"running","resources":{"memory_bytes":104857600},"limits":{"memory":2048}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "cfg.json")
	_, err := execute(t, path, "set-url", "g1", srv.URL)
	require.NoError(t, err)
	_, err = execute(t, path, "set-api", "g1", "ptlc_1234567890abcdef")
	require.NoError(t, err)
	_, err = execute(t, path, "set-default", "g1", "abc-123")
	require.NoError(t, err)

	out, err := execute(t, path, "status", "g1")
	require.NoError(t, err)
	assert.Contains(t, out, "Survival")
	assert.Contains(t, out, "100.00 MB / 2048 MB")
}

func TestServerCommandNeedsConfiguration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	_, err := execute(t, path, "power", "g1", "start")
	assert.Equal(t, fault.NotConfigured, fault.KindOf(err))
}
