package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func mockGateway(t *testing.T, handler http.HandlerFunc) (host, port string) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The real gateway (echo) always sends a JSON content type; resty
		// only unmarshals SetResult targets when it sees one.
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	url := strings.TrimPrefix(server.URL, "http://")
	parts := strings.Split(url, ":")
	return parts[0], parts[1]
}

func TestStatusCommand_Running(t *testing.T) {
	host, port := mockGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/status" {
			status := StatusResponse{
				Running:       true,
				Version:       "1.0.0",
				UptimeSeconds: 3600,
				Providers:     map[string]bool{"claude": true, "openai": false},
			}
			status.Sessions.Total = 2
			status.Sessions.Connections = 1
			_ = json.NewEncoder(w).Encode(status)
		}
	})

	cmd := NewStatusCommand()
	b := bytes.NewBufferString("")
	cmd.SetOut(b)
	cmd.SetArgs([]string{"--host", host, "--port", port})

	err := cmd.Execute()
	assert.NoError(t, err)

	out := b.String()
	assert.Contains(t, out, "running at")
	assert.Contains(t, out, "Version:   1.0.0")
	assert.Contains(t, out, "Providers: 1/2 healthy")
	assert.Contains(t, out, "Sessions:  2 active, 1 connections")
}

func TestStatusCommand_NotRunning(t *testing.T) {
	t.Setenv("CHATHUB_STATE_DIR", t.TempDir())

	cmd := NewStatusCommand()
	b := bytes.NewBufferString("")
	cmd.SetOut(b)
	cmd.SetArgs([]string{"--host", "127.0.0.1", "--port", "1"})

	err := cmd.Execute()
	assert.NoError(t, err)
	assert.Contains(t, b.String(), "not running")
}

func TestStatusCommand_JSON(t *testing.T) {
	host, port := mockGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(StatusResponse{Running: true, Version: "1.0.0"})
	})

	cmd := NewStatusCommand()
	b := bytes.NewBufferString("")
	cmd.SetOut(b)
	cmd.SetArgs([]string{"--host", host, "--port", port, "--json"})

	err := cmd.Execute()
	assert.NoError(t, err)

	var parsed StatusResponse
	assert.NoError(t, json.Unmarshal(b.Bytes(), &parsed))
	assert.True(t, parsed.Running)
}
