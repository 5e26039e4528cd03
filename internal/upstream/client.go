package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"astroconnect/internal/config"
	"astroconnect/internal/models"
	"astroconnect/pkg/logger"

	"github.com/shopspring/decimal"
)

// Client is the HTTP implementation of API against the consultation backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ API = (*Client)(nil)

func NewClient(cfg config.UpstreamConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr := json.NewDecoder(resp.Body).Decode(apiErr); decodeErr != nil {
			logger.Debugf("Upstream error body was not JSON: %v", decodeErr)
		}
		return apiErr
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode upstream response: %w", err)
	}
	return nil
}

func (c *Client) CreateRequest(ctx context.Context, userID, providerID string, kind models.SessionType) (*models.ConnectionRequest, error) {
	payload := map[string]string{
		"user_id":     userID,
		"provider_id": providerID,
		"type":        string(kind),
	}
	var request models.ConnectionRequest
	if err := c.do(ctx, http.MethodPost, "/v1/requests", payload, &request); err != nil {
		return nil, err
	}
	return &request, nil
}

func (c *Client) GetRequestStatus(ctx context.Context, requestID string) (*StatusResult, error) {
	var result StatusResult
	if err := c.do(ctx, http.MethodGet, "/v1/requests/"+url.PathEscape(requestID)+"/status", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) CancelRequest(ctx context.Context, requestID string) error {
	return c.do(ctx, http.MethodPost, "/v1/requests/"+url.PathEscape(requestID)+"/cancel", nil, nil)
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) EndSession(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	var summary models.SessionSummary
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/end", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *Client) RateSession(ctx context.Context, sessionID string, rating int) error {
	payload := map[string]int{"rating": rating}
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/rating", payload, nil)
}

func (c *Client) GetSessionHistory(ctx context.Context, userID string, limit int) ([]models.Session, error) {
	path := "/v1/users/" + url.PathEscape(userID) + "/sessions?limit=" + strconv.Itoa(limit)
	var sessions []models.Session
	if err := c.do(ctx, http.MethodGet, path, nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (c *Client) SendMessage(ctx context.Context, sessionID, senderID, content string, kind models.MessageType) (*models.ChatMessage, error) {
	payload := map[string]string{
		"sender_id": senderID,
		"content":   content,
		"type":      string(kind),
	}
	var message models.ChatMessage
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/messages", payload, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

func (c *Client) GetMessages(ctx context.Context, sessionID, before string, limit int) (*models.MessagePage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if before != "" {
		query.Set("before", before)
	}
	var page models.MessagePage
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/messages?" + query.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) SendTyping(ctx context.Context, sessionID, senderID string, typing bool) error {
	payload := map[string]interface{}{
		"sender_id": senderID,
		"typing":    typing,
	}
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/typing", payload, nil)
}

func (c *Client) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var result struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(userID)+"/wallet", nil, &result); err != nil {
		return decimal.Zero, err
	}
	return result.Balance, nil
}

func (c *Client) GetProvider(ctx context.Context, providerID string) (*models.Provider, error) {
	var provider models.Provider
	if err := c.do(ctx, http.MethodGet, "/v1/providers/"+url.PathEscape(providerID), nil, &provider); err != nil {
		return nil, err
	}
	return &provider, nil
}

func (c *Client) GetMediaToken(ctx context.Context, sessionID string) (*models.MediaToken, error) {
	var token models.MediaToken
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID)+"/media-token", nil, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// WaitHealthy pings the backend until it answers or the deadline passes.
// Used at boot so restore-on-start does not race an unreachable backend.
func (c *Client) WaitHealthy(ctx context.Context, deadline time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		if err := c.do(ctx, http.MethodGet, "/v1/health", nil, nil); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("upstream not healthy within %s: %w", deadline, ctx.Err())
		case <-ticker.C:
		}
	}
}
