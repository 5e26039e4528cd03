package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"astroconnect/internal/models"
	"astroconnect/internal/monitoring"
	"astroconnect/internal/upstream"
	"astroconnect/internal/websocket"
	"astroconnect/pkg/logger"
)

// RequestStore is the persistence boundary for active requests.
// *store.RequestStore is the Redis-backed implementation.
type RequestStore interface {
	SaveActive(ctx context.Context, request *models.ConnectionRequest) error
	LoadActive(ctx context.Context, userID string) (*models.ConnectionRequest, error)
	ClearActive(ctx context.Context, userID string) error
	ListActive(ctx context.Context) ([]*models.ConnectionRequest, error)
}

var (
	ErrInvalidSessionType = errors.New("invalid session type")
	ErrActiveRequest      = errors.New("an active request already exists")
	ErrNoActiveRequest    = errors.New("no active request")
	ErrProviderOffline    = errors.New("provider is offline")
)

// InsufficientBalanceError carries the gate result so the UI can show the
// exact shortfall and a recharge prompt.
type InsufficientBalanceError struct {
	Check *BalanceCheck
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: need %s more", e.Check.Shortfall.StringFixed(2))
}

// RequestService owns the request lifecycle on behalf of UI clients. It
// enforces the one-active-request rule, drives a status source per
// request, animates the waiting countdown, and pushes every transition to
// the user's socket.
type RequestService struct {
	api    upstream.API
	wallet *WalletService
	store  RequestStore
	hub    *websocket.Hub
	source StatusSource

	countdown time.Duration

	mu       sync.Mutex
	trackers map[string]*tracker // keyed by user ID
}

// tracker is the in-memory lifecycle state for one active request.
type tracker struct {
	request *models.ConnectionRequest
	queue   *models.QueueEntry

	// countdownUntil drives the cosmetic waiting timer. It resets every
	// time the request re-enters waiting; it never times the request out.
	countdownUntil time.Time

	cancel context.CancelFunc
	mu     sync.Mutex
}

func NewRequestService(api upstream.API, wallet *WalletService, requestStore RequestStore, hub *websocket.Hub, source StatusSource, countdownSeconds int) *RequestService {
	return &RequestService{
		api:       api,
		wallet:    wallet,
		store:     requestStore,
		hub:       hub,
		source:    source,
		countdown: time.Duration(countdownSeconds) * time.Second,
		trackers:  make(map[string]*tracker),
	}
}

// Create starts a new connection request after the availability and
// balance gates pass. Exactly one request may be active per user.
func (s *RequestService) Create(ctx context.Context, userID, providerID string, kind models.SessionType) (*models.RequestView, error) {
	if !kind.Valid() {
		return nil, ErrInvalidSessionType
	}

	s.mu.Lock()
	if _, exists := s.trackers[userID]; exists {
		s.mu.Unlock()
		return nil, ErrActiveRequest
	}
	s.mu.Unlock()

	// A request persisted by a previous process counts as active too
	if existing, err := s.store.LoadActive(ctx, userID); err == nil && !existing.Status.Terminal() {
		return nil, ErrActiveRequest
	}

	provider, err := s.api.GetProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load provider: %w", err)
	}
	// Busy providers still accept queue entries; only offline blocks
	if !provider.Online {
		return nil, ErrProviderOffline
	}

	check, err := s.wallet.Check(ctx, userID, provider.PricePerMinute)
	if err != nil {
		return nil, err
	}
	if !check.Sufficient {
		return nil, &InsufficientBalanceError{Check: check}
	}

	request, err := s.api.CreateRequest(ctx, userID, providerID, kind)
	if err != nil {
		return nil, err
	}
	if request.Status == "" {
		request.Status = models.StatusConnecting
	}
	request.ProviderName = provider.Name
	request.ProviderImage = provider.Image
	request.PricePerMinute = provider.PricePerMinute

	if err := s.store.SaveActive(ctx, request); err != nil {
		logger.WithError(err).WithField("request_id", request.ID).Error("Failed to persist request")
	}

	t := s.startTracker(request)

	logger.LogRequestEvent("request_created", request.ID, userID, map[string]interface{}{
		"provider_id": providerID,
		"type":        string(kind),
	})

	return s.viewOf(t), nil
}

// Current returns the user's active request, or ErrNoActiveRequest.
func (s *RequestService) Current(ctx context.Context, userID string) (*models.RequestView, error) {
	s.mu.Lock()
	t, exists := s.trackers[userID]
	s.mu.Unlock()
	if !exists {
		return nil, ErrNoActiveRequest
	}
	return s.viewOf(t), nil
}

// Cancel withdraws the user's active request. The tracker stops before
// the backend call so a status delivery can never race the cancel. When
// the provider accepted in the meantime, the accept wins and the caller
// gets the connected request back with ErrActiveRequest semantics.
func (s *RequestService) Cancel(ctx context.Context, userID string) (*models.RequestView, error) {
	s.mu.Lock()
	t, exists := s.trackers[userID]
	if exists {
		delete(s.trackers, userID)
	}
	s.mu.Unlock()
	if !exists {
		return nil, ErrNoActiveRequest
	}

	t.cancel()

	t.mu.Lock()
	requestID := t.request.ID
	t.mu.Unlock()

	if err := s.api.CancelRequest(ctx, requestID); err != nil {
		var apiErr *upstream.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 409 {
			// Lost the race: the provider accepted first
			if result, statusErr := s.api.GetRequestStatus(ctx, requestID); statusErr == nil && result.Status == models.StatusConnected {
				s.mu.Lock()
				s.trackers[userID] = t
				s.mu.Unlock()
				s.applyResult(t, result)
				return s.viewOf(t), nil
			}
		}
		// The request still dies locally; the backend TTL cleans up its side
		logger.WithError(err).WithField("request_id", requestID).Warn("Backend cancel failed")
	}

	s.finishTracker(t, models.StatusCancelled, "")
	return s.viewOf(t), nil
}

// RestoreActive reloads persisted requests after a restart and resumes
// status tracking for each. Requests that went terminal while the process
// was down resolve on their first status delivery.
func (s *RequestService) RestoreActive(ctx context.Context) error {
	requests, err := s.store.ListActive(ctx)
	if err != nil {
		return err
	}

	restored := 0
	for _, request := range requests {
		if request.Status.Terminal() {
			s.store.ClearActive(ctx, request.UserID)
			continue
		}
		s.startTracker(request)
		restored++
	}

	if restored > 0 {
		logger.Infof("Restored %d active requests after restart", restored)
	}
	return nil
}

// ActiveCount reports how many requests the gateway is tracking.
func (s *RequestService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trackers)
}

func (s *RequestService) startTracker(request *models.ConnectionRequest) *tracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &tracker{
		request: request,
		cancel:  cancel,
	}
	if request.Status == models.StatusWaiting {
		t.countdownUntil = time.Now().Add(s.countdown)
	}

	s.mu.Lock()
	s.trackers[request.UserID] = t
	s.mu.Unlock()

	go s.run(ctx, t)
	return t
}

// run consumes status deliveries until the request goes terminal.
func (s *RequestService) run(ctx context.Context, t *tracker) {
	t.mu.Lock()
	requestID := t.request.ID
	t.mu.Unlock()

	for update := range s.source.Watch(ctx, requestID) {
		if update.Err != nil {
			// The backend no longer knows the request; treat it as expired
			logger.WithError(update.Err).WithField("request_id", requestID).Error("Status source failed")
			s.finishTracker(t, models.StatusTimeout, "status unavailable")
			return
		}
		s.applyResult(t, update.Result)

		t.mu.Lock()
		terminal := t.request.Status.Terminal()
		t.mu.Unlock()
		if terminal {
			return
		}
	}
}

// applyResult folds one backend status into the tracker and pushes the
// transition to the user.
func (s *RequestService) applyResult(t *tracker, result *upstream.StatusResult) {
	t.mu.Lock()
	previous := t.request.Status
	t.request.Status = result.Status
	t.request.UpdatedAt = time.Now()
	if result.SessionID != "" {
		t.request.SessionID = result.SessionID
	}
	if result.RejectReason != "" {
		t.request.RejectReason = result.RejectReason
	}
	if !result.ExpiresAt.IsZero() {
		t.request.ExpiresAt = result.ExpiresAt
	}
	t.queue = result.Queue

	// Every waiting delivery restarts the cosmetic countdown, including
	// queue position changes while already waiting
	if result.Status == models.StatusWaiting {
		t.countdownUntil = time.Now().Add(s.countdown)
	}

	request := *t.request
	t.mu.Unlock()

	ctx, cancelPersist := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPersist()

	switch {
	case request.Status.Terminal():
		s.completeRequest(ctx, t, &request, previous)
	default:
		if err := s.store.SaveActive(ctx, &request); err != nil {
			logger.WithError(err).WithField("request_id", request.ID).Error("Failed to persist request")
		}
		s.pushStatus(t, &request)
	}
}

// completeRequest handles the terminal transition: metrics, persistence
// cleanup, tracker removal, and the final push.
func (s *RequestService) completeRequest(ctx context.Context, t *tracker, request *models.ConnectionRequest, previous models.RequestStatus) {
	s.mu.Lock()
	if s.trackers[request.UserID] == t {
		delete(s.trackers, request.UserID)
	}
	s.mu.Unlock()

	t.cancel()

	if err := s.store.ClearActive(ctx, request.UserID); err != nil {
		logger.WithError(err).WithField("user_id", request.UserID).Error("Failed to clear persisted request")
	}

	waited := time.Since(request.CreatedAt)
	monitoring.TrackOutcome(string(request.Type), string(request.Status), waited)

	logger.LogRequestEvent("request_"+string(request.Status), request.ID, request.UserID, map[string]interface{}{
		"previous":      string(previous),
		"waited_secs":   waited.Seconds(),
		"session_id":    request.SessionID,
		"reject_reason": request.RejectReason,
	})

	s.pushStatus(t, request)

	if request.Status == models.StatusConnected {
		msg := websocket.NewWSMessage(websocket.MessageTypeSessionStarted, "", map[string]interface{}{
			"session_id": request.SessionID,
			"request_id": request.ID,
			"type":       string(request.Type),
		})
		s.hub.BroadcastToUser(request.UserID, msg)
	}
}

// finishTracker forces a terminal status locally, outside the normal
// status flow (cancel, status source failure).
func (s *RequestService) finishTracker(t *tracker, status models.RequestStatus, reason string) {
	t.mu.Lock()
	previous := t.request.Status
	if t.request.Status.Terminal() {
		t.mu.Unlock()
		return
	}
	t.request.Status = status
	t.request.UpdatedAt = time.Now()
	if reason != "" {
		t.request.RejectReason = reason
	}
	request := *t.request
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.completeRequest(ctx, t, &request, previous)
}

func (s *RequestService) pushStatus(t *tracker, request *models.ConnectionRequest) {
	view := s.viewOf(t)

	msg := websocket.NewWSMessage(websocket.MessageTypeRequestStatus, "", map[string]interface{}{
		"request":           view.Request,
		"remaining_seconds": view.RemainingSeconds,
	})
	s.hub.BroadcastToUser(request.UserID, msg)

	if view.Queue != nil {
		queueMsg := websocket.NewWSMessage(websocket.MessageTypeQueueUpdate, "", map[string]interface{}{
			"queue": view.Queue,
		})
		s.hub.BroadcastToUser(request.UserID, queueMsg)
	}
}

func (s *RequestService) viewOf(t *tracker) *models.RequestView {
	t.mu.Lock()
	defer t.mu.Unlock()

	request := *t.request
	view := &models.RequestView{
		Request: &request,
		Queue:   t.queue,
	}
	if request.Status == models.StatusWaiting {
		remaining := time.Until(t.countdownUntil)
		if remaining > 0 {
			view.RemainingSeconds = int(remaining.Round(time.Second).Seconds())
		}
	}
	return view
}
