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

	"github.com/shopspring/decimal"
)

var (
	ErrCallNotActive     = errors.New("no active call for session")
	ErrCallAlreadyJoined = errors.New("call already joined")
	ErrSessionNotActive  = errors.New("session is not active")
	ErrWrongSessionType  = errors.New("session is not a call")
)

// Track is one local media capture (mic or camera). Stop must be safe to
// call more than once.
type Track interface {
	Kind() string // "audio" or "video"
	Stop() error
}

// MediaDevice acquires local tracks for a call. Video sessions get both
// an audio and a video track; voice calls get audio only.
type MediaDevice interface {
	AcquireTracks(ctx context.Context, kind models.SessionType) ([]Track, error)
}

// CallState is the client-facing view of a joined call.
type CallState struct {
	Session       *models.Session    `json:"session"`
	Token         *models.MediaToken `json:"media_token,omitempty"`
	Degraded      bool               `json:"degraded"` // joined without media credentials
	Muted         bool               `json:"muted"`
	VideoEnabled  bool               `json:"video_enabled"`
	SpeakerOn     bool               `json:"speaker_on"`
	ElapsedSecs   int64              `json:"elapsed_seconds"`
	EstimatedCost decimal.Decimal    `json:"estimated_cost"`
}

// activeCall is the in-memory state of one joined call.
type activeCall struct {
	session   *models.Session
	token     *models.MediaToken
	degraded  bool
	tracks    []Track
	startedAt time.Time

	muted     bool
	videoOn   bool
	speakerOn bool

	cancel context.CancelFunc
	mu     sync.Mutex
}

// CallService owns the call view lifecycle: local media tracks are
// acquired on join and released on every exit path, and a one-second
// ticker keeps the running cost estimate on screen. The estimate is
// display-only; the end-session call returns the cost that bills.
type CallService struct {
	api    upstream.API
	hub    *websocket.Hub
	device MediaDevice
	tick   time.Duration

	mu    sync.Mutex
	calls map[string]*activeCall // keyed by session ID
}

func NewCallService(api upstream.API, hub *websocket.Hub, device MediaDevice, tick time.Duration) *CallService {
	if tick <= 0 {
		tick = time.Second
	}
	return &CallService{
		api:    api,
		hub:    hub,
		device: device,
		tick:   tick,
		calls:  make(map[string]*activeCall),
	}
}

// Join enters a call session. Media credentials failing is survivable
// (the call joins degraded and the UI offers a retry); failing to acquire
// local tracks is not, and anything already acquired is released.
func (s *CallService) Join(ctx context.Context, sessionID, userID string) (*CallState, error) {
	s.mu.Lock()
	if _, exists := s.calls[sessionID]; exists {
		s.mu.Unlock()
		return nil, ErrCallAlreadyJoined
	}
	s.mu.Unlock()

	session, err := s.api.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, ErrSessionNotActive
	}
	if session.Type != models.SessionTypeCall && session.Type != models.SessionTypeVideo {
		return nil, ErrWrongSessionType
	}

	call := &activeCall{
		session:   session,
		startedAt: session.StartTime,
		videoOn:   session.Type == models.SessionTypeVideo,
		speakerOn: true,
	}
	if call.startedAt.IsZero() {
		call.startedAt = time.Now()
	}

	call.token, err = s.api.GetMediaToken(ctx, sessionID)
	if err != nil {
		logger.WithError(err).WithField("session_id", sessionID).Warn("Media credentials unavailable, joining degraded")
		call.degraded = true
	}

	call.tracks, err = s.device.AcquireTracks(ctx, session.Type)
	if err != nil {
		releaseTracks(call.tracks)
		return nil, fmt.Errorf("failed to acquire media tracks: %w", err)
	}

	tickerCtx, cancel := context.WithCancel(context.Background())
	call.cancel = cancel

	s.mu.Lock()
	if _, exists := s.calls[sessionID]; exists {
		s.mu.Unlock()
		cancel()
		releaseTracks(call.tracks)
		return nil, ErrCallAlreadyJoined
	}
	s.calls[sessionID] = call
	s.mu.Unlock()

	go s.runCostTicker(tickerCtx, call)

	monitoring.TrackSessionStart(string(session.Type))
	logger.LogSessionEvent("call_joined", sessionID, userID, map[string]interface{}{
		"degraded": call.degraded,
		"tracks":   len(call.tracks),
	})

	return s.stateOf(call), nil
}

// State returns the current call view.
func (s *CallService) State(sessionID string) (*CallState, error) {
	call, err := s.callFor(sessionID)
	if err != nil {
		return nil, err
	}
	return s.stateOf(call), nil
}

// RetryMedia re-fetches credentials for a call that joined degraded.
func (s *CallService) RetryMedia(ctx context.Context, sessionID string) (*CallState, error) {
	call, err := s.callFor(sessionID)
	if err != nil {
		return nil, err
	}

	token, err := s.api.GetMediaToken(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	call.mu.Lock()
	call.token = token
	call.degraded = false
	call.mu.Unlock()

	return s.stateOf(call), nil
}

// ToggleMute flips the microphone flag and reports the new value.
func (s *CallService) ToggleMute(sessionID string) (bool, error) {
	call, err := s.callFor(sessionID)
	if err != nil {
		return false, err
	}
	call.mu.Lock()
	call.muted = !call.muted
	muted := call.muted
	call.mu.Unlock()
	return muted, nil
}

// ToggleVideo flips the camera flag. Voice-only calls refuse.
func (s *CallService) ToggleVideo(sessionID string) (bool, error) {
	call, err := s.callFor(sessionID)
	if err != nil {
		return false, err
	}
	call.mu.Lock()
	defer call.mu.Unlock()
	if call.session.Type != models.SessionTypeVideo {
		return false, ErrWrongSessionType
	}
	call.videoOn = !call.videoOn
	return call.videoOn, nil
}

// ToggleSpeaker flips the speaker flag and reports the new value.
func (s *CallService) ToggleSpeaker(sessionID string) (bool, error) {
	call, err := s.callFor(sessionID)
	if err != nil {
		return false, err
	}
	call.mu.Lock()
	call.speakerOn = !call.speakerOn
	speakerOn := call.speakerOn
	call.mu.Unlock()
	return speakerOn, nil
}

// End hangs up: tracks are released and the ticker stops no matter what
// the backend says, and the backend's summary is the cost of record.
func (s *CallService) End(ctx context.Context, sessionID, userID string) (*models.SessionSummary, error) {
	call, err := s.takeCall(sessionID)
	if err != nil {
		return nil, err
	}
	defer s.teardown(call)

	summary, err := s.api.EndSession(ctx, sessionID)
	if err != nil {
		// The backend settles the session on its own timeout; local
		// cleanup already happened either way
		logger.WithError(err).WithField("session_id", sessionID).Error("End session call failed")
		return nil, err
	}

	logger.LogSessionEvent("call_ended", sessionID, userID, map[string]interface{}{
		"duration":   summary.Duration,
		"total_cost": summary.TotalCost.String(),
	})

	s.pushEnded(call, summary)
	return summary, nil
}

// HandleRemoteEnd tears down a call the backend reports as over, for
// example when the provider hung up first.
func (s *CallService) HandleRemoteEnd(sessionID string, summary *models.SessionSummary) {
	call, err := s.takeCall(sessionID)
	if err != nil {
		return
	}
	s.teardown(call)
	s.pushEnded(call, summary)
}

// HandleDisconnect releases a user's call resources when their socket goes
// away mid-call, for example on navigating off the call screen. The backend
// session is left to an explicit or remote end.
func (s *CallService) HandleDisconnect(sessionID, userID string) {
	s.mu.Lock()
	call, exists := s.calls[sessionID]
	if exists && call.session.UserID != userID {
		exists = false
	}
	if exists {
		delete(s.calls, sessionID)
	}
	s.mu.Unlock()
	if !exists {
		return
	}

	s.teardown(call)
	logger.LogSessionEvent("call_disconnected", sessionID, userID, nil)
}

// takeCall removes the call from the active set so teardown runs once.
func (s *CallService) takeCall(sessionID string) (*activeCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, exists := s.calls[sessionID]
	if !exists {
		return nil, ErrCallNotActive
	}
	delete(s.calls, sessionID)
	return call, nil
}

func (s *CallService) teardown(call *activeCall) {
	call.cancel()

	call.mu.Lock()
	tracks := call.tracks
	call.tracks = nil
	sessionType := call.session.Type
	call.mu.Unlock()

	releaseTracks(tracks)
	monitoring.TrackSessionEnd(string(sessionType))
}

func (s *CallService) pushEnded(call *activeCall, summary *models.SessionSummary) {
	data := map[string]interface{}{
		"session_id": call.session.ID,
	}
	if summary != nil {
		data["duration"] = summary.Duration
		data["total_cost"] = summary.TotalCost
	}
	msg := websocket.NewWSMessage(websocket.MessageTypeSessionEnded, "", data)
	s.hub.BroadcastToUser(call.session.UserID, msg)
}

// runCostTicker pushes the running estimate once per tick until teardown.
func (s *CallService) runCostTicker(ctx context.Context, call *activeCall) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			elapsed := int64(time.Since(call.startedAt).Seconds())
			estimate := models.EstimateCost(elapsed, call.session.PricePerMinute)

			msg := websocket.NewWSMessage(websocket.MessageTypeCostTick, "", map[string]interface{}{
				"elapsed_seconds": elapsed,
				"estimated_cost":  estimate,
			})
			msg.SetSessionID(call.session.ID)
			s.hub.BroadcastToUser(call.session.UserID, msg)
		}
	}
}

func (s *CallService) callFor(sessionID string) (*activeCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, exists := s.calls[sessionID]
	if !exists {
		return nil, ErrCallNotActive
	}
	return call, nil
}

func (s *CallService) stateOf(call *activeCall) *CallState {
	call.mu.Lock()
	defer call.mu.Unlock()

	elapsed := int64(time.Since(call.startedAt).Seconds())
	return &CallState{
		Session:       call.session,
		Token:         call.token,
		Degraded:      call.degraded,
		Muted:         call.muted,
		VideoEnabled:  call.videoOn,
		SpeakerOn:     call.speakerOn,
		ElapsedSecs:   elapsed,
		EstimatedCost: models.EstimateCost(elapsed, call.session.PricePerMinute),
	}
}

func releaseTracks(tracks []Track) {
	for _, track := range tracks {
		if err := track.Stop(); err != nil {
			logger.WithError(err).WithField("kind", track.Kind()).Warn("Failed to stop media track")
		}
	}
}
