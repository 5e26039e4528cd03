package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"astroconnect/internal/models"
	"astroconnect/internal/websocket"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTrack struct {
	kind string

	mu      sync.Mutex
	stopped int
}

func (f *fakeTrack) Kind() string { return f.kind }

func (f *fakeTrack) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeTrack) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type fakeDevice struct {
	tracks []Track
	err    error
}

func (f *fakeDevice) AcquireTracks(ctx context.Context, kind models.SessionType) ([]Track, error) {
	if f.err != nil {
		return f.tracks, f.err
	}
	return f.tracks, nil
}

func callSession(kind models.SessionType) *models.Session {
	return &models.Session{
		ID:             "sess-1",
		UserID:         "user-1",
		ProviderID:     "astro-9",
		Type:           kind,
		Status:         models.SessionActive,
		StartTime:      time.Now().Add(-90 * time.Second),
		PricePerMinute: decimal.NewFromInt(10),
	}
}

// stubSessionAPI overrides the session endpoints on top of fakeAPI.
type stubSessionAPI struct {
	*fakeAPI
	session  *models.Session
	endErr   error
	tokenErr error
}

func (s *stubSessionAPI) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.session, nil
}

func (s *stubSessionAPI) GetMediaToken(ctx context.Context, sessionID string) (*models.MediaToken, error) {
	if s.tokenErr != nil {
		return nil, s.tokenErr
	}
	return s.fakeAPI.GetMediaToken(ctx, sessionID)
}

func (s *stubSessionAPI) EndSession(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	if s.endErr != nil {
		return nil, s.endErr
	}
	return &models.SessionSummary{
		SessionID: sessionID,
		Duration:  600,
		TotalCost: decimal.NewFromInt(100),
	}, nil
}

func newCallServiceWith(t *testing.T, api *stubSessionAPI, device MediaDevice) *CallService {
	t.Helper()
	hub := websocket.NewHub()
	go hub.Run()
	return NewCallService(api, hub, device, time.Hour)
}

func TestJoinAcquiresTracks(t *testing.T) {
	api := &stubSessionAPI{fakeAPI: newFakeAPI(), session: callSession(models.SessionTypeVideo)}
	audio := &fakeTrack{kind: "audio"}
	video := &fakeTrack{kind: "video"}
	svc := newCallServiceWith(t, api, &fakeDevice{tracks: []Track{audio, video}})

	state, err := svc.Join(context.Background(), "sess-1", "user-1")
	require.NoError(t, err)

	assert.False(t, state.Degraded)
	assert.True(t, state.VideoEnabled)
	assert.True(t, state.SpeakerOn)
	assert.False(t, state.Muted)
	assert.GreaterOrEqual(t, state.ElapsedSecs, int64(90))
	// 90s at 10/min rounds up to 2 minutes
	assert.True(t, state.EstimatedCost.Equal(decimal.NewFromInt(20)))

	_, err = svc.Join(context.Background(), "sess-1", "user-1")
	assert.ErrorIs(t, err, ErrCallAlreadyJoined)
}

func TestJoinDegradedWithoutMediaToken(t *testing.T) {
	api := &stubSessionAPI{
		fakeAPI:  newFakeAPI(),
		session:  callSession(models.SessionTypeCall),
		tokenErr: errors.New("credentials unavailable"),
	}
	audio := &fakeTrack{kind: "audio"}
	svc := newCallServiceWith(t, api, &fakeDevice{tracks: []Track{audio}})

	state, err := svc.Join(context.Background(), "sess-1", "user-1")
	require.NoError(t, err)
	assert.True(t, state.Degraded)
	assert.Nil(t, state.Token)

	// A later retry clears the degraded flag
	api.tokenErr = nil
	state, err = svc.RetryMedia(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.False(t, state.Degraded)
	require.NotNil(t, state.Token)
}

func TestJoinTrackFailureReleasesAcquired(t *testing.T) {
	api := &stubSessionAPI{fakeAPI: newFakeAPI(), session: callSession(models.SessionTypeVideo)}
	audio := &fakeTrack{kind: "audio"}
	device := &fakeDevice{tracks: []Track{audio}, err: errors.New("camera busy")}
	svc := newCallServiceWith(t, api, device)

	_, err := svc.Join(context.Background(), "sess-1", "user-1")
	require.Error(t, err)
	assert.Equal(t, 1, audio.stopCount())

	_, err = svc.State("sess-1")
	assert.ErrorIs(t, err, ErrCallNotActive)
}

func TestJoinRejectsInactiveSession(t *testing.T) {
	session := callSession(models.SessionTypeCall)
	session.Status = models.SessionCompleted
	api := &stubSessionAPI{fakeAPI: newFakeAPI(), session: session}
	svc := newCallServiceWith(t, api, &fakeDevice{})

	_, err := svc.Join(context.Background(), "sess-1", "user-1")
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestJoinRejectsChatSession(t *testing.T) {
	api := &stubSessionAPI{fakeAPI: newFakeAPI(), session: callSession(models.SessionTypeChat)}
	svc := newCallServiceWith(t, api, &fakeDevice{})

	_, err := svc.Join(context.Background(), "sess-1", "user-1")
	assert.ErrorIs(t, err, ErrWrongSessionType)
}

func TestToggles(t *testing.T) {
	api := &stubSessionAPI{fakeAPI: newFakeAPI(), session: callSession(models.SessionTypeVideo)}
	svc := newCallServiceWith(t, api, &fakeDevice{tracks: []Track{&fakeTrack{kind: "audio"}}})

	_, err := svc.Join(context.Background(), "sess-1", "user-1")
	require.NoError(t, err)

	muted, err := svc.ToggleMute("sess-1")
	require.NoError(t, err)
	assert.True(t, muted)
	muted, err = svc.ToggleMute("sess-1")
	require.NoError(t, err)
	assert.False(t, muted)

	videoOn, err := svc.ToggleVideo("sess-1")
	require.NoError(t, err)
	assert.False(t, videoOn) // video sessions start with camera on

	speakerOn, err := svc.ToggleSpeaker("sess-1")
	require.NoError(t, err)
	assert.False(t, speakerOn) // speaker starts on
}

func TestToggleVideoOnVoiceCall(t *testing.T) {
	api := &stubSessionAPI{fakeAPI: newFakeAPI(), session: callSession(models.SessionTypeCall)}
	svc := newCallServiceWith(t, api, &fakeDevice{tracks: []Track{&fakeTrack{kind: "audio"}}})

	_, err := svc.Join(context.Background(), "sess-1", "user-1")
	require.NoError(t, err)

	_, err = svc.ToggleVideo("sess-1")
	assert.ErrorIs(t, err, ErrWrongSessionType)
}

func TestEndReleasesTracksAndReturnsSummary(t *testing.T) {
	api := &stubSessionAPI{fakeAPI: newFakeAPI(), session: callSession(models.SessionTypeCall)}
	audio := &fakeTrack{kind: "audio"}
	svc := newCallServiceWith(t, api, &fakeDevice{tracks: []Track{audio}})

	_, err := svc.Join(context.Background(), "sess-1", "user-1")
	require.NoError(t, err)

	summary, err := svc.End(context.Background(), "sess-1", "user-1")
	require.NoError(t, err)

	// The backend figure wins over any local estimate
	assert.Equal(t, int64(600), summary.Duration)
	assert.True(t, summary.TotalCost.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 1, audio.stopCount())

	_, err = svc.State("sess-1")
	assert.ErrorIs(t, err, ErrCallNotActive)
}

func TestEndReleasesTracksEvenWhenBackendFails(t *testing.T) {
	api := &stubSessionAPI{
		fakeAPI: newFakeAPI(),
		session: callSession(models.SessionTypeCall),
		endErr:  errors.New("backend unavailable"),
	}
	audio := &fakeTrack{kind: "audio"}
	svc := newCallServiceWith(t, api, &fakeDevice{tracks: []Track{audio}})

	_, err := svc.Join(context.Background(), "sess-1", "user-1")
	require.NoError(t, err)

	_, err = svc.End(context.Background(), "sess-1", "user-1")
	require.Error(t, err)

	assert.Equal(t, 1, audio.stopCount())
	_, err = svc.State("sess-1")
	assert.ErrorIs(t, err, ErrCallNotActive)
}

func TestRemoteEndTearsDown(t *testing.T) {
	api := &stubSessionAPI{fakeAPI: newFakeAPI(), session: callSession(models.SessionTypeCall)}
	audio := &fakeTrack{kind: "audio"}
	svc := newCallServiceWith(t, api, &fakeDevice{tracks: []Track{audio}})

	_, err := svc.Join(context.Background(), "sess-1", "user-1")
	require.NoError(t, err)

	svc.HandleRemoteEnd("sess-1", &models.SessionSummary{SessionID: "sess-1"})

	assert.Equal(t, 1, audio.stopCount())
	_, err = svc.State("sess-1")
	assert.ErrorIs(t, err, ErrCallNotActive)
}

func TestDisconnectReleasesTracks(t *testing.T) {
	api := &stubSessionAPI{fakeAPI: newFakeAPI(), session: callSession(models.SessionTypeCall)}
	audio := &fakeTrack{kind: "audio"}
	svc := newCallServiceWith(t, api, &fakeDevice{tracks: []Track{audio}})

	_, err := svc.Join(context.Background(), "sess-1", "user-1")
	require.NoError(t, err)

	svc.HandleDisconnect("sess-1", "user-1")

	assert.Equal(t, 1, audio.stopCount())
	_, err = svc.State("sess-1")
	assert.ErrorIs(t, err, ErrCallNotActive)
}

func TestDisconnectIgnoresOtherUsers(t *testing.T) {
	api := &stubSessionAPI{fakeAPI: newFakeAPI(), session: callSession(models.SessionTypeCall)}
	audio := &fakeTrack{kind: "audio"}
	svc := newCallServiceWith(t, api, &fakeDevice{tracks: []Track{audio}})

	_, err := svc.Join(context.Background(), "sess-1", "user-1")
	require.NoError(t, err)

	svc.HandleDisconnect("sess-1", "someone-else")

	assert.Equal(t, 0, audio.stopCount())
	_, err = svc.State("sess-1")
	require.NoError(t, err)
}

func TestEstimateCostRoundsUpToMinute(t *testing.T) {
	rate := decimal.NewFromInt(15)

	assert.True(t, models.EstimateCost(0, rate).IsZero())
	assert.True(t, models.EstimateCost(1, rate).Equal(decimal.NewFromInt(15)))
	assert.True(t, models.EstimateCost(60, rate).Equal(decimal.NewFromInt(15)))
	assert.True(t, models.EstimateCost(61, rate).Equal(decimal.NewFromInt(30)))
	assert.True(t, models.EstimateCost(179, rate).Equal(decimal.NewFromInt(45)))
}
