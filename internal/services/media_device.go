package services

import (
	"context"
	"sync"

	"astroconnect/internal/models"
	"astroconnect/pkg/logger"
)

// TrackManager is the default MediaDevice. The gateway does not touch
// hardware; tracks are handles for media resources negotiated by the
// client, and the manager's job is to make acquire and release
// observable and idempotent.
type TrackManager struct {
	mu   sync.Mutex
	open int
}

func NewTrackManager() *TrackManager {
	return &TrackManager{}
}

// AcquireTracks returns an audio track, plus a video track for video
// sessions.
func (m *TrackManager) AcquireTracks(ctx context.Context, kind models.SessionType) ([]Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tracks := []Track{m.newTrack("audio")}
	if kind == models.SessionTypeVideo {
		tracks = append(tracks, m.newTrack("video"))
	}
	return tracks, nil
}

var _ MediaDevice = (*TrackManager)(nil)

func (m *TrackManager) newTrack(kind string) *trackHandle {
	m.mu.Lock()
	m.open++
	m.mu.Unlock()

	return &trackHandle{manager: m, kind: kind}
}

// OpenTracks reports how many tracks are currently held.
func (m *TrackManager) OpenTracks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

type trackHandle struct {
	manager *TrackManager
	kind    string

	mu      sync.Mutex
	stopped bool
}

func (t *trackHandle) Kind() string { return t.kind }

// Stop releases the handle. Safe to call more than once.
func (t *trackHandle) Stop() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	t.mu.Unlock()

	t.manager.mu.Lock()
	t.manager.open--
	t.manager.mu.Unlock()

	logger.WithField("kind", t.kind).Debug("media track released")
	return nil
}
