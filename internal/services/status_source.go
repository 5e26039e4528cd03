package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"astroconnect/internal/monitoring"
	"astroconnect/internal/upstream"
	"astroconnect/pkg/logger"

	"github.com/gorilla/websocket"
)

// StatusUpdate is one delivery from a StatusSource. Err is set only for
// failures the tracker cannot ride out by waiting for the next delivery.
type StatusUpdate struct {
	Result *upstream.StatusResult
	Err    error
}

// StatusSource streams status results for a request until the context is
// cancelled or a terminal status has been delivered. The polling and push
// implementations are interchangeable; trackers never know which one they
// are driven by.
type StatusSource interface {
	Watch(ctx context.Context, requestID string) <-chan StatusUpdate
}

// PollingSource asks the backend for status on a fixed interval. Transient
// backend failures are tolerated silently so a single dropped poll never
// kills a request the user is still waiting on.
type PollingSource struct {
	api      upstream.SessionAPI
	interval time.Duration
}

func NewPollingSource(api upstream.SessionAPI, interval time.Duration) *PollingSource {
	return &PollingSource{api: api, interval: interval}
}

func (s *PollingSource) Watch(ctx context.Context, requestID string) <-chan StatusUpdate {
	updates := make(chan StatusUpdate)

	go func() {
		defer close(updates)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			result, err := s.api.GetRequestStatus(ctx, requestID)
			if err != nil {
				if isTransient(err) {
					monitoring.TrackPollError()
					logger.WithError(err).WithField("request_id", requestID).Warn("Status poll failed, will retry")
				} else {
					select {
					case updates <- StatusUpdate{Err: err}:
					case <-ctx.Done():
					}
					return
				}
			} else {
				select {
				case updates <- StatusUpdate{Result: result}:
				case <-ctx.Done():
					return
				}
				if result.Status.Terminal() {
					return
				}
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return updates
}

func isTransient(err error) bool {
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Network-level failures come back wrapped, not as APIError
	return true
}

// PushSource subscribes to the backend's websocket status channel and
// falls back to polling while the socket is down. Deliveries look exactly
// like poll results so trackers stay source-agnostic.
type PushSource struct {
	wsURL    string
	apiKey   string
	fallback *PollingSource
}

func NewPushSource(wsURL, apiKey string, fallback *PollingSource) *PushSource {
	return &PushSource{wsURL: wsURL, apiKey: apiKey, fallback: fallback}
}

func (s *PushSource) Watch(ctx context.Context, requestID string) <-chan StatusUpdate {
	updates := make(chan StatusUpdate)

	go func() {
		defer close(updates)

		for ctx.Err() == nil {
			if done := s.watchSocket(ctx, requestID, updates); done {
				return
			}

			// Socket is down. Poll until it is worth redialing.
			if done := s.pollWhileDisconnected(ctx, requestID, updates); done {
				return
			}
		}
	}()

	return updates
}

// watchSocket reads deliveries from one socket connection. Returns true
// when watching is finished, false when the socket dropped and the caller
// should fall back.
func (s *PushSource) watchSocket(ctx context.Context, requestID string, updates chan<- StatusUpdate) bool {
	header := map[string][]string{}
	if s.apiKey != "" {
		header["Authorization"] = []string{"Bearer " + s.apiKey}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL+"?request_id="+requestID, header)
	if err != nil {
		logger.WithError(err).Warn("Status push channel unavailable, falling back to polling")
		return false
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true
			}
			logger.WithError(err).Warn("Status push channel dropped, falling back to polling")
			return false
		}

		var result upstream.StatusResult
		if err := json.Unmarshal(data, &result); err != nil {
			logger.WithError(err).Warn("Discarding malformed status push")
			continue
		}

		select {
		case updates <- StatusUpdate{Result: &result}:
		case <-ctx.Done():
			return true
		}
		if result.Status.Terminal() {
			return true
		}
	}
}

// pollWhileDisconnected runs a handful of poll rounds before the caller
// tries the socket again.
func (s *PushSource) pollWhileDisconnected(ctx context.Context, requestID string, updates chan<- StatusUpdate) bool {
	inner, cancel := context.WithCancel(ctx)
	defer cancel()

	polls := s.fallback.Watch(inner, requestID)
	for i := 0; i < 5; i++ {
		select {
		case update, ok := <-polls:
			if !ok {
				return true
			}
			select {
			case updates <- update:
			case <-ctx.Done():
				return true
			}
			if update.Err != nil || (update.Result != nil && update.Result.Status.Terminal()) {
				return true
			}
		case <-ctx.Done():
			return true
		}
	}
	return false
}
