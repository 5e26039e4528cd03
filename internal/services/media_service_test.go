package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"astroconnect/internal/config"
	"astroconnect/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMediaAPI struct {
	token *models.MediaToken
	err   error
}

func (f *fakeMediaAPI) GetMediaToken(ctx context.Context, sessionID string) (*models.MediaToken, error) {
	return f.token, f.err
}

func mediaConfig() config.MediaConfig {
	return config.MediaConfig{
		TURNSecret:    "shared-secret",
		TURNRealm:     "astroconnect.example.com",
		TURNURLs:      []string{"turn.astroconnect.example.com:3478"},
		STUNServers:   []string{"stun.l.google.com:19302"},
		CredentialTTL: time.Hour,
	}
}

func TestCredentialsPrefersBackendToken(t *testing.T) {
	api := &fakeMediaAPI{token: &models.MediaToken{Room: "room-1", Token: "backend"}}
	svc := NewMediaService(api, mediaConfig())

	token, err := svc.Credentials(context.Background(), "sess-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "backend", token.Token)
}

func TestCredentialsFallsBackToTURN(t *testing.T) {
	api := &fakeMediaAPI{err: errors.New("backend down")}
	svc := NewMediaService(api, mediaConfig())

	token, err := svc.Credentials(context.Background(), "sess-1", "user-1")
	require.NoError(t, err)

	assert.Equal(t, "sess-1", token.Room)
	require.Len(t, token.ICE, 2)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, token.ICE[0].URLs)

	turn := token.ICE[1]
	assert.Contains(t, turn.URLs[0], "turn:turn.astroconnect.example.com:3478")
	assert.True(t, strings.HasSuffix(turn.Username, ":user-1"))
	assert.NotEmpty(t, turn.Credential)
}

func TestCredentialsFallbackNeedsSecret(t *testing.T) {
	api := &fakeMediaAPI{err: errors.New("backend down")}
	cfg := mediaConfig()
	cfg.TURNSecret = ""
	svc := NewMediaService(api, cfg)

	_, err := svc.Credentials(context.Background(), "sess-1", "user-1")
	assert.Error(t, err)
}

func TestTURNCredentialsDeterministic(t *testing.T) {
	expires := time.Unix(1900000000, 0)

	user1, cred1 := TURNCredentials("user-1", "secret", expires)
	user2, cred2 := TURNCredentials("user-1", "secret", expires)
	assert.Equal(t, user1, user2)
	assert.Equal(t, cred1, cred2)
	assert.Equal(t, "1900000000:user-1", user1)

	_, other := TURNCredentials("user-1", "different", expires)
	assert.NotEqual(t, cred1, other)
}
