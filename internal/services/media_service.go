package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"

	"astroconnect/internal/config"
	"astroconnect/internal/models"
	"astroconnect/internal/upstream"
	"astroconnect/pkg/logger"
)

// MediaService hands the call view its connection credentials. The
// backend-issued token is preferred; when it cannot be fetched the
// service mints time-limited TURN credentials from the shared secret so
// a call can still be attempted.
type MediaService struct {
	api upstream.MediaAPI
	cfg config.MediaConfig
}

func NewMediaService(api upstream.MediaAPI, cfg config.MediaConfig) *MediaService {
	return &MediaService{api: api, cfg: cfg}
}

// Credentials returns the media token for a session, falling back to
// locally minted TURN credentials when the backend cannot supply one.
func (s *MediaService) Credentials(ctx context.Context, sessionID, userID string) (*models.MediaToken, error) {
	token, err := s.api.GetMediaToken(ctx, sessionID)
	if err == nil {
		return token, nil
	}

	if s.cfg.TURNSecret == "" {
		return nil, err
	}
	logger.WithError(err).WithField("session_id", sessionID).Warn("Backend media token unavailable, using TURN fallback")

	return s.fallbackToken(sessionID, userID), nil
}

// fallbackToken builds an ICE server list from the configured TURN fleet
// using the long-term credential mechanism.
func (s *MediaService) fallbackToken(sessionID, userID string) *models.MediaToken {
	expiresAt := time.Now().Add(s.cfg.CredentialTTL)
	username, credential := TURNCredentials(userID, s.cfg.TURNSecret, expiresAt)

	var ice []models.ICEServer
	for _, stun := range s.cfg.STUNServers {
		ice = append(ice, models.ICEServer{URLs: []string{"stun:" + stun}})
	}
	for _, turn := range s.cfg.TURNURLs {
		ice = append(ice, models.ICEServer{
			URLs: []string{
				fmt.Sprintf("turn:%s?transport=udp", turn),
				fmt.Sprintf("turn:%s?transport=tcp", turn),
			},
			Username:   username,
			Credential: credential,
		})
	}

	return &models.MediaToken{
		Room:      sessionID,
		ExpiresAt: expiresAt,
		ICE:       ice,
	}
}

// TURNCredentials derives ephemeral TURN credentials the way coturn's
// use-auth-secret mode expects: the username carries the expiry and the
// credential is an HMAC-SHA1 over it.
func TURNCredentials(userID, sharedSecret string, expiresAt time.Time) (string, string) {
	username := fmt.Sprintf("%d:%s", expiresAt.Unix(), userID)

	mac := hmac.New(sha1.New, []byte(sharedSecret))
	mac.Write([]byte(username))
	credential := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return username, credential
}
