package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidassist/docpipe/constants"
	"github.com/rapidassist/docpipe/internal/jobs"
)

func TestHubBroadcastsJobUpdates(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	events := make(chan jobs.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx, events)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// the register happens in ServeHTTP before Dial returns, but give
	// the hub goroutine a beat before publishing
	time.Sleep(20 * time.Millisecond)
	events <- jobs.Event{
		JobID:    "abc-123",
		Type:     jobs.JobTypeFolder,
		Status:   constants.JobStatusActive,
		Progress: 40,
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "job_update", msg["type"])
	assert.Equal(t, "abc-123", msg["jobId"])
	assert.Equal(t, "active", msg["status"])
	assert.Equal(t, float64(40), msg["progress"])
}

func TestHubDropsDeadClients(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	conn.Close()

	// the read pump notices the close and evicts the client
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.Lock()
		n := len(hub.clients)
		hub.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("closed client was never evicted")
}
