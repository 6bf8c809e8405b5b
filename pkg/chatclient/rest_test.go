package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-chat-service/internal/api/dto"
)

func TestRESTClientDecodesEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "/support-chat/sess-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"id":       "sess-1",
			"orderId":  "ORD123456",
			"status":   "active",
			"messages": []map[string]any{{"id": "msg-1", "chatId": "sess-1", "content": "hi"}},
		}})
	}))
	defer server.Close()

	client := NewRESTClient(server.URL, "token-1", nil)
	session, err := client.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", session.ID)
	require.Len(t, session.Messages, 1)
	assert.Equal(t, "msg-1", session.Messages[0].ID)
}

func TestRESTClientMapsErrorCodes(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		code     string
		sentinel error
	}{
		{"conflict", http.StatusConflict, "CONFLICT", ErrConflict},
		{"not found", http.StatusNotFound, "NOT_FOUND", ErrNotFound},
		{"invalid state", http.StatusUnprocessableEntity, "INVALID_STATE", ErrInvalidState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{
					"code":    tc.code,
					"message": "nope",
				}})
			}))
			defer server.Close()

			client := NewRESTClient(server.URL, "token-1", nil)
			_, err := client.GetSession(context.Background(), "sess-1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.sentinel)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.status, apiErr.Status)
		})
	}
}

func TestRESTClientAppendAndMarkRead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/support-chat/message":
			var req dto.AppendMessageRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "sess-1", req.ChatID)
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
				"id": "msg-9", "chatId": req.ChatID, "content": req.Content,
			}})
		case "/support-chat/read-messages":
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
				"updated": true, "count": 3,
			}})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewRESTClient(server.URL, "token-1", nil)
	ctx := context.Background()

	msg, err := client.AppendMessage(ctx, dto.AppendMessageRequest{ChatID: "sess-1", Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "msg-9", msg.ID)

	resp, err := client.MarkRead(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, resp.Updated)
	assert.Equal(t, int64(3), resp.Count)
}

func TestRESTClientUnreachableIsTransportError(t *testing.T) {
	client := NewRESTClient("http://127.0.0.1:1", "token-1", nil)
	_, err := client.GetSession(context.Background(), "sess-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportUnavailable)
}
