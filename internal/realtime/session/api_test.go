package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	domainchat "github.com/yungbote/teamchat-backend/internal/domain/chat"
	"github.com/yungbote/teamchat-backend/internal/domain/identity"
)

func TestHTTPAPIListMessagesRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path != "/api/internal_chat/messages/direct/7" {
			t.Errorf("path: want=%q got=%q", "/api/internal_chat/messages/direct/7", r.URL.Path)
		}
		if got := r.URL.Query().Get("per_page"); got != "20" {
			t.Errorf("per_page: want=%q got=%q", "20", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization: want=%q got=%q", "Bearer tok", got)
		}
		if got := r.Header.Get("X-Account-Id"); got != "3" {
			t.Errorf("account header: want=%q got=%q", "3", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": 11, "content": "hi"}},
			"meta": map[string]any{"room_id": 5, "total_count": 1, "has_more": false},
		})
	}))
	t.Cleanup(srv.Close)

	api := NewHTTPAPI(srv.URL)
	api.RetryBackoff = time.Millisecond
	page, err := api.ListMessages(context.Background(), identity.Credentials{AccountID: 3, Token: "tok"}, domainchat.RoomKindDirect, "7", 20)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls: want=2 got=%d", calls.Load())
	}
	if page.RoomID != 5 || len(page.Messages) != 1 || page.Messages[0].ID != 11 {
		t.Fatalf("page: got=%+v", page)
	}
}

func TestHTTPAPISendDoesNotRetryAndDecodesError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body struct {
			Message struct {
				Content         string `json:"content"`
				ClientMessageID string `json:"client_message_id"`
			} `json:"message"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Message.ClientMessageID != "c-1" {
			t.Errorf("client id: want=%q got=%q", "c-1", body.Message.ClientMessageID)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"bus down","code":"transport"}}`))
	}))
	t.Cleanup(srv.Close)

	api := NewHTTPAPI(srv.URL)
	_, err := api.SendMessage(context.Background(), identity.Credentials{AccountID: 1, Token: "tok"}, SendRequest{
		RoomKind:        domainchat.RoomKindGeneral,
		RoomIdentifier:  "general",
		Content:         "hello",
		ClientMessageID: "c-1",
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error: want *APIError got=%T %v", err, err)
	}
	if apiErr.Status != http.StatusServiceUnavailable || apiErr.Code != "transport" || apiErr.Message != "bus down" {
		t.Fatalf("api error: got=%+v", apiErr)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls: want=1 got=%d", calls.Load())
	}
}
