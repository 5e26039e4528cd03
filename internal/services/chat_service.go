package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"astroconnect/internal/models"
	"astroconnect/internal/monitoring"
	"astroconnect/internal/upstream"
	"astroconnect/internal/websocket"
	"astroconnect/pkg/logger"
)

var (
	ErrSessionNotOpen = errors.New("chat session not open")
	ErrAlreadyLoading = errors.New("an older page is already loading")
	ErrNoOlderPages   = errors.New("no older messages")
	ErrEmptyMessage   = errors.New("message content is empty")
)

const defaultPageSize = 50

// ChatService keeps an in-memory message cache per open session and makes
// sends feel instant: the message appears immediately with a temp ID, and
// the cache rolls back if the backend refuses it. The backend's copy of a
// message always replaces the optimistic one.
type ChatService struct {
	api        upstream.ChatAPI
	hub        *websocket.Hub
	pageSize   int
	quietAfter time.Duration

	mu       sync.Mutex
	sessions map[string]*chatCache
	typing   map[string]*typingState // keyed by sessionID + ":" + userID
}

// chatCache holds one session's messages, ascending by creation time.
type chatCache struct {
	mu         sync.Mutex
	messages   []models.ChatMessage
	hasMore    bool
	nextCursor string
	loading    bool
}

type typingState struct {
	timer *time.Timer
}

func NewChatService(api upstream.ChatAPI, hub *websocket.Hub, quietAfter time.Duration) *ChatService {
	if quietAfter <= 0 {
		quietAfter = 2 * time.Second
	}
	return &ChatService{
		api:        api,
		hub:        hub,
		pageSize:   defaultPageSize,
		quietAfter: quietAfter,
		sessions:   make(map[string]*chatCache),
		typing:     make(map[string]*typingState),
	}
}

// Open loads the latest page for a session and starts caching it. Opening
// an already-open session refreshes the cache in place.
func (s *ChatService) Open(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	page, err := s.api.GetMessages(ctx, sessionID, "", s.pageSize)
	if err != nil {
		return nil, err
	}

	cache := &chatCache{
		messages:   mergeMessages(nil, page.Messages),
		hasMore:    page.HasMore,
		nextCursor: page.NextCursor,
	}

	s.mu.Lock()
	s.sessions[sessionID] = cache
	s.mu.Unlock()

	return cache.snapshot(), nil
}

// Close drops the session cache and any pending typing timers.
func (s *ChatService) Close(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	prefix := sessionID + ":"
	for key, state := range s.typing {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			state.timer.Stop()
			delete(s.typing, key)
		}
	}
}

// Messages returns the current cache contents, oldest first.
func (s *ChatService) Messages(sessionID string) ([]models.ChatMessage, error) {
	cache, err := s.cacheFor(sessionID)
	if err != nil {
		return nil, err
	}
	return cache.snapshot(), nil
}

// HasMore reports whether older pages remain.
func (s *ChatService) HasMore(sessionID string) bool {
	cache, err := s.cacheFor(sessionID)
	if err != nil {
		return false
	}
	cache.mu.Lock()
	defer cache.mu.Unlock()
	return cache.hasMore
}

// LoadOlder fetches the page before the oldest cached message. Only one
// load may run at a time and none once the history is exhausted.
func (s *ChatService) LoadOlder(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	cache, err := s.cacheFor(sessionID)
	if err != nil {
		return nil, err
	}

	cache.mu.Lock()
	if !cache.hasMore {
		cache.mu.Unlock()
		return nil, ErrNoOlderPages
	}
	if cache.loading {
		cache.mu.Unlock()
		return nil, ErrAlreadyLoading
	}
	cache.loading = true
	cursor := cache.nextCursor
	cache.mu.Unlock()

	page, err := s.api.GetMessages(ctx, sessionID, cursor, s.pageSize)

	cache.mu.Lock()
	cache.loading = false
	if err != nil {
		cache.mu.Unlock()
		return nil, err
	}
	cache.messages = mergeMessages(cache.messages, page.Messages)
	cache.hasMore = page.HasMore
	cache.nextCursor = page.NextCursor
	snapshot := append([]models.ChatMessage(nil), cache.messages...)
	cache.mu.Unlock()

	return snapshot, nil
}

// Send delivers a message optimistically. The returned message is the
// backend's copy; on failure the cache is restored to its pre-send state
// and the error is returned for the composer to surface.
func (s *ChatService) Send(ctx context.Context, sessionID, senderID, content string, kind models.MessageType) (*models.ChatMessage, error) {
	if content == "" {
		return nil, ErrEmptyMessage
	}
	cache, err := s.cacheFor(sessionID)
	if err != nil {
		return nil, err
	}

	optimistic := models.ChatMessage{
		ID:         models.NewTempID(time.Now()),
		SessionID:  sessionID,
		SenderID:   senderID,
		SenderType: models.SenderUser,
		Type:       kind,
		Content:    content,
		Status:     models.MessageSending,
		CreatedAt:  time.Now(),
	}

	cache.mu.Lock()
	before := append([]models.ChatMessage(nil), cache.messages...)
	cache.messages = append(cache.messages, optimistic)
	cache.mu.Unlock()

	s.pushMessage(sessionID, senderID, &optimistic)

	sent, err := s.api.SendMessage(ctx, sessionID, senderID, content, kind)
	if err != nil {
		cache.mu.Lock()
		cache.messages = before
		cache.mu.Unlock()

		monitoring.TrackMessage("failed")
		logger.WithError(err).WithField("session_id", sessionID).Warn("Message send failed, cache rolled back")

		// The refetch runs regardless of outcome so anything that landed
		// upstream mid-send still reaches the cache
		s.refresh(ctx, sessionID, cache)
		return nil, err
	}

	if sent.Status == "" {
		sent.Status = models.MessageSent
	}

	cache.mu.Lock()
	replaced := false
	for i := range cache.messages {
		if cache.messages[i].ID == optimistic.ID {
			cache.messages[i] = *sent
			replaced = true
			break
		}
	}
	if !replaced {
		cache.messages = mergeMessages(cache.messages, []models.ChatMessage{*sent})
	}
	cache.mu.Unlock()

	monitoring.TrackMessage("sent")
	s.pushMessage(sessionID, senderID, sent)

	// Converge with whatever else landed upstream during the send
	s.refresh(ctx, sessionID, cache)

	return sent, nil
}

// ReceiveRemote folds a message delivered by the backend push channel
// into the cache and fans it out to the session room.
func (s *ChatService) ReceiveRemote(sessionID string, message *models.ChatMessage) error {
	cache, err := s.cacheFor(sessionID)
	if err != nil {
		return err
	}

	cache.mu.Lock()
	cache.messages = mergeMessages(cache.messages, []models.ChatMessage{*message})
	cache.mu.Unlock()

	s.pushMessage(sessionID, message.SenderID, message)
	return nil
}

// Typing reports composer activity. The first keystroke announces typing
// upstream right away; the stop announcement waits for a quiet window so
// a steady typist produces exactly one start and one stop.
func (s *ChatService) Typing(ctx context.Context, sessionID, userID string) {
	key := sessionID + ":" + userID

	s.mu.Lock()
	state, active := s.typing[key]
	if active {
		state.timer.Reset(s.quietAfter)
		s.mu.Unlock()
		return
	}
	state = &typingState{}
	state.timer = time.AfterFunc(s.quietAfter, func() {
		s.stopTyping(sessionID, userID, key)
	})
	s.typing[key] = state
	s.mu.Unlock()

	if err := s.api.SendTyping(ctx, sessionID, userID, true); err != nil {
		logger.WithError(err).Debug("Failed to announce typing")
	}
	s.hub.BroadcastTyping(sessionID, userID, true)
}

func (s *ChatService) stopTyping(sessionID, userID, key string) {
	s.mu.Lock()
	delete(s.typing, key)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.api.SendTyping(ctx, sessionID, userID, false); err != nil {
		logger.WithError(err).Debug("Failed to announce typing stop")
	}
	s.hub.BroadcastTyping(sessionID, userID, false)
}

// IsTyping reports whether a user's quiet window is still open.
func (s *ChatService) IsTyping(sessionID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, active := s.typing[sessionID+":"+userID]
	return active
}

func (s *ChatService) cacheFor(sessionID string) (*chatCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cache, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotOpen
	}
	return cache, nil
}

// refresh re-fetches the latest page and merges it over the cache so the
// ordering converges on the backend's after an optimistic send.
func (s *ChatService) refresh(ctx context.Context, sessionID string, cache *chatCache) {
	page, err := s.api.GetMessages(ctx, sessionID, "", s.pageSize)
	if err != nil {
		logger.WithError(err).WithField("session_id", sessionID).Debug("Post-send refresh failed")
		return
	}

	cache.mu.Lock()
	cache.messages = mergeMessages(cache.messages, page.Messages)
	cache.mu.Unlock()
}

func (s *ChatService) pushMessage(sessionID, senderID string, message *models.ChatMessage) {
	msg := websocket.NewWSMessage(websocket.MessageTypeNewMessage, "", map[string]interface{}{
		"message": message,
	})
	msg.SetSessionID(sessionID)
	s.hub.BroadcastToSessionExcept(sessionID, senderID, msg)
}

func (c *chatCache) snapshot() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ChatMessage(nil), c.messages...)
}

// mergeMessages combines two message sets, deduplicating by ID and keeping
// ascending creation order.
func mergeMessages(existing, incoming []models.ChatMessage) []models.ChatMessage {
	byID := make(map[string]models.ChatMessage, len(existing)+len(incoming))
	var order []string

	add := func(msg models.ChatMessage) {
		if _, seen := byID[msg.ID]; !seen {
			order = append(order, msg.ID)
		}
		byID[msg.ID] = msg
	}
	for _, msg := range existing {
		add(msg)
	}
	for _, msg := range incoming {
		add(msg)
	}

	merged := make([]models.ChatMessage, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	return merged
}
