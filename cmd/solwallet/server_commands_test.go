package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runApp runs the CLI with args and returns what it wrote to stdout.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &bytes.Buffer{}
	err := app.Run(append([]string{"solwallet"}, args...))
	return out.String(), err
}

func TestHealthCommand_Success(t *testing.T) {
	// Create test server that returns 200 OK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "server", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Server is healthy")
	assert.Contains(t, out, server.URL)
}

func TestHealthCommand_Failure(t *testing.T) {
	// Create test server that returns 500
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := runApp(t, "--server-url", server.URL, "server", "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unhealthy status: 500")
}

func TestHealthCommand_MissingServerURL(t *testing.T) {
	_, err := runApp(t, "--server-url", "", "server", "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server-url is required")
}

func TestVersionCommand(t *testing.T) {
	out, err := runApp(t, "server", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "solwallet CLI")
	assert.Contains(t, out, "Version: dev")
}
