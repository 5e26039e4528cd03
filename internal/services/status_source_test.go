package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astroconnect/internal/models"
	"astroconnect/internal/upstream"
)

// countingStatusAPI returns a scripted sequence of status answers and
// counts how often it was asked.
type countingStatusAPI struct {
	*fakeAPI

	mu      sync.Mutex
	calls   int
	answers []statusAnswer
}

type statusAnswer struct {
	result *upstream.StatusResult
	err    error
}

func (c *countingStatusAPI) GetRequestStatus(ctx context.Context, requestID string) (*upstream.StatusResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.calls
	c.calls++
	if idx >= len(c.answers) {
		idx = len(c.answers) - 1
	}
	answer := c.answers[idx]
	return answer.result, answer.err
}

func (c *countingStatusAPI) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func drainUpdates(t *testing.T, updates <-chan StatusUpdate) []StatusUpdate {
	t.Helper()
	var got []StatusUpdate
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return got
			}
			got = append(got, update)
		case <-time.After(2 * time.Second):
			t.Fatal("status source did not finish")
		}
	}
}

func TestPollingSourceStopsAfterTerminal(t *testing.T) {
	api := &countingStatusAPI{fakeAPI: newFakeAPI(), answers: []statusAnswer{
		{result: &upstream.StatusResult{Status: models.StatusWaiting}},
		{result: &upstream.StatusResult{Status: models.StatusConnected, SessionID: "sess-1"}},
	}}
	source := NewPollingSource(api, 10*time.Millisecond)

	updates := drainUpdates(t, source.Watch(context.Background(), "req-1"))

	require.Len(t, updates, 2)
	assert.Equal(t, models.StatusWaiting, updates[0].Result.Status)
	assert.Equal(t, models.StatusConnected, updates[1].Result.Status)

	// No further polls once the terminal status was delivered
	settled := api.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, api.callCount())
	assert.Equal(t, 2, settled)
}

func TestPollingSourceToleratesTransientErrors(t *testing.T) {
	api := &countingStatusAPI{fakeAPI: newFakeAPI(), answers: []statusAnswer{
		{err: &upstream.APIError{StatusCode: http.StatusServiceUnavailable}},
		{err: &upstream.APIError{StatusCode: http.StatusTooManyRequests}},
		{result: &upstream.StatusResult{Status: models.StatusRejected}},
	}}
	source := NewPollingSource(api, 10*time.Millisecond)

	updates := drainUpdates(t, source.Watch(context.Background(), "req-1"))

	// The dropped polls never surface; only the real answer does
	require.Len(t, updates, 1)
	require.NoError(t, updates[0].Err)
	assert.Equal(t, models.StatusRejected, updates[0].Result.Status)
	assert.Equal(t, 3, api.callCount())
}

func TestPollingSourceDeliversHardError(t *testing.T) {
	api := &countingStatusAPI{fakeAPI: newFakeAPI(), answers: []statusAnswer{
		{err: &upstream.APIError{StatusCode: http.StatusNotFound, Message: "request not found"}},
	}}
	source := NewPollingSource(api, 10*time.Millisecond)

	updates := drainUpdates(t, source.Watch(context.Background(), "req-1"))

	require.Len(t, updates, 1)
	require.Error(t, updates[0].Err)
	assert.Equal(t, 1, api.callCount())
}

func TestPollingSourceStopsOnCancel(t *testing.T) {
	api := &countingStatusAPI{fakeAPI: newFakeAPI(), answers: []statusAnswer{
		{result: &upstream.StatusResult{Status: models.StatusWaiting}},
	}}
	source := NewPollingSource(api, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	updates := source.Watch(ctx, "req-1")

	// First delivery arrives, then the watcher is cancelled
	select {
	case update := <-updates:
		require.NotNil(t, update.Result)
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
	}
	cancel()

	select {
	case _, ok := <-updates:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after cancel")
	}
}

func TestPushSourceDeliversUntilTerminal(t *testing.T) {
	upgrader := gorillaws.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "req-1", r.URL.Query().Get("request_id"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		frames := [][]byte{
			[]byte(`{"status":"waiting","queue":{"position":2}}`),
			[]byte(`not json`),
			[]byte(`{"status":"connected","session_id":"sess-1"}`),
		}
		for _, frame := range frames {
			if err := conn.WriteMessage(gorillaws.TextMessage, frame); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	source := NewPushSource(wsURL, "key", NewPollingSource(newFakeAPI(), 10*time.Millisecond))

	updates := drainUpdates(t, source.Watch(context.Background(), "req-1"))

	// The malformed frame is discarded, the rest arrive in order
	require.Len(t, updates, 2)
	assert.Equal(t, models.StatusWaiting, updates[0].Result.Status)
	require.NotNil(t, updates[0].Result.Queue)
	assert.Equal(t, 2, updates[0].Result.Queue.Position)
	assert.Equal(t, models.StatusConnected, updates[1].Result.Status)
	assert.Equal(t, "sess-1", updates[1].Result.SessionID)
}
