package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astroconnect/internal/models"
)

func TestTrackManagerVoiceGetsAudioOnly(t *testing.T) {
	manager := NewTrackManager()

	tracks, err := manager.AcquireTracks(context.Background(), models.SessionTypeCall)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "audio", tracks[0].Kind())
	assert.Equal(t, 1, manager.OpenTracks())
}

func TestTrackManagerVideoGetsBothTracks(t *testing.T) {
	manager := NewTrackManager()

	tracks, err := manager.AcquireTracks(context.Background(), models.SessionTypeVideo)
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "audio", tracks[0].Kind())
	assert.Equal(t, "video", tracks[1].Kind())
	assert.Equal(t, 2, manager.OpenTracks())
}

func TestTrackManagerStopIsIdempotent(t *testing.T) {
	manager := NewTrackManager()

	tracks, err := manager.AcquireTracks(context.Background(), models.SessionTypeCall)
	require.NoError(t, err)

	require.NoError(t, tracks[0].Stop())
	require.NoError(t, tracks[0].Stop())
	assert.Equal(t, 0, manager.OpenTracks())
}

func TestTrackManagerServesCallService(t *testing.T) {
	manager := NewTrackManager()
	backend := &stubSessionAPI{fakeAPI: newFakeAPI(), session: callSession(models.SessionTypeCall)}
	svc := newCallServiceWith(t, backend, manager)

	_, err := svc.Join(context.Background(), "sess-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, manager.OpenTracks())

	_, err = svc.End(context.Background(), "sess-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, manager.OpenTracks())
}
