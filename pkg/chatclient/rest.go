package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spec-kit/support-chat-service/internal/api/dto"
)

// RESTClient talks to the HTTP surface of the chat service. It is the
// fallback transport when the websocket is down and the loader used for
// rehydration after a reconnect.
type RESTClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewRESTClient builds a client for the given base URL and bearer token.
// A nil httpClient falls back to http.DefaultClient.
func NewRESTClient(baseURL, token string, httpClient *http.Client) *RESTClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RESTClient{baseURL: baseURL, token: token, http: httpClient}
}

type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

// ListSessions fetches sessions visible to the caller. Staff callers may
// scope by customerID; pass "" for no scoping.
func (c *RESTClient) ListSessions(ctx context.Context, customerID string) ([]dto.EnrichedSessionResponse, error) {
	path := "/support-chat"
	if customerID != "" {
		path += "?customerId=" + customerID
	}
	var out []dto.EnrichedSessionResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSession fetches one session with its full message history.
func (c *RESTClient) GetSession(ctx context.Context, chatID string) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodGet, "/support-chat/"+chatID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSession opens a chat for an order.
func (c *RESTClient) CreateSession(ctx context.Context, req dto.CreateSessionRequest) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPost, "/support-chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AppendMessage posts a message over HTTP.
func (c *RESTClient) AppendMessage(ctx context.Context, req dto.AppendMessageRequest) (*Message, error) {
	var out Message
	if err := c.do(ctx, http.MethodPost, "/support-chat/message", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetStatus transitions a session. Staff only.
func (c *RESTClient) SetStatus(ctx context.Context, chatID, status string) (*Session, error) {
	var out Session
	req := dto.UpdateStatusRequest{Status: status}
	if err := c.do(ctx, http.MethodPut, "/support-chat/"+chatID, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkRead marks the counterpart's messages as read.
func (c *RESTClient) MarkRead(ctx context.Context, chatID string) (*dto.MarkReadResponse, error) {
	var out dto.MarkReadResponse
	req := dto.MarkReadRequest{ChatID: chatID}
	if err := c.do(ctx, http.MethodPost, "/support-chat/read-messages", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RESTClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var envelope errorEnvelope
		if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil {
			envelope.Error.Status = resp.StatusCode
			return envelope.Error
		}
		return &APIError{Status: resp.StatusCode, Code: "internal_error", Message: http.StatusText(resp.StatusCode)}
	}

	if out == nil {
		return nil
	}
	var envelope dataEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
