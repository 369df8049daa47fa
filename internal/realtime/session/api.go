package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	domainchat "github.com/yungbote/teamchat-backend/internal/domain/chat"
	"github.com/yungbote/teamchat-backend/internal/domain/identity"
	"github.com/yungbote/teamchat-backend/internal/platform/httpx"
)

type RoomPage struct {
	RoomID     int64
	Messages   []domainchat.MessageView
	TotalCount int64
	HasMore    bool
	// Reason is set when the server answered with an empty state instead of a room.
	Reason string
}

type SendRequest struct {
	RoomKind        domainchat.RoomKind
	RoomIdentifier  string
	Content         string
	ClientMessageID string
}

type API interface {
	ListMessages(ctx context.Context, creds identity.Credentials, kind domainchat.RoomKind, identifier string, perPage int) (RoomPage, error)
	SendMessage(ctx context.Context, creds identity.Credentials, req SendRequest) (domainchat.MessageView, error)
}

// APIError is a non-2xx answer carrying the server's {error:{message,code}} body.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api %d", e.Status)
}

func (e *APIError) HTTPStatusCode() int { return e.Status }

// HTTPAPI talks to the JSON endpoints under BaseURL + "/api/internal_chat".
// GETs that fail transiently are retried up to Retries times; sends never are.
type HTTPAPI struct {
	BaseURL      string
	Client       *http.Client
	Retries      int
	RetryBackoff time.Duration
}

func NewHTTPAPI(baseURL string) *HTTPAPI {
	return &HTTPAPI{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Client:       &http.Client{Timeout: 15 * time.Second},
		Retries:      2,
		RetryBackoff: 250 * time.Millisecond,
	}
}

func (a *HTTPAPI) ListMessages(ctx context.Context, creds identity.Credentials, kind domainchat.RoomKind, identifier string, perPage int) (RoomPage, error) {
	path := "/api/internal_chat/messages/" + url.PathEscape(string(kind))
	if kind != domainchat.RoomKindGeneral || identifier != "" {
		id := identifier
		if id == "" {
			id = domainchat.GeneralChatID
		}
		path += "/" + url.PathEscape(id)
	}
	if perPage > 0 {
		path += "?per_page=" + strconv.Itoa(perPage)
	}
	var body struct {
		Data []domainchat.MessageView `json:"data"`
		Meta struct {
			RoomID     int64  `json:"room_id"`
			TotalCount int64  `json:"total_count"`
			HasMore    bool   `json:"has_more"`
			Error      string `json:"error"`
		} `json:"meta"`
	}
	if err := a.getWithRetry(ctx, creds, path, &body); err != nil {
		return RoomPage{}, err
	}
	return RoomPage{
		RoomID:     body.Meta.RoomID,
		Messages:   body.Data,
		TotalCount: body.Meta.TotalCount,
		HasMore:    body.Meta.HasMore,
		Reason:     body.Meta.Error,
	}, nil
}

func (a *HTTPAPI) SendMessage(ctx context.Context, creds identity.Credentials, req SendRequest) (domainchat.MessageView, error) {
	payload := map[string]any{
		"message": map[string]any{
			"content":           req.Content,
			"room_type":         req.RoomKind,
			"room_id":           req.RoomIdentifier,
			"client_message_id": req.ClientMessageID,
		},
	}
	var body struct {
		Data domainchat.MessageView `json:"data"`
	}
	if err := a.do(ctx, creds, http.MethodPost, "/api/internal_chat/messages", payload, &body); err != nil {
		return domainchat.MessageView{}, err
	}
	return body.Data, nil
}

func (a *HTTPAPI) getWithRetry(ctx context.Context, creds identity.Credentials, path string, out any) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = a.do(ctx, creds, http.MethodGet, path, nil, out)
		if err == nil || attempt >= a.Retries || !httpx.IsRetryableError(err) {
			return err
		}
		if serr := httpx.Sleep(ctx, httpx.Backoff(attempt, a.RetryBackoff, 5*time.Second)); serr != nil {
			return err
		}
	}
}

func (a *HTTPAPI) do(ctx context.Context, creds identity.Credentials, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}
	if creds.AccountID > 0 {
		req.Header.Set("X-Account-Id", strconv.FormatInt(creds.AccountID, 10))
	}

	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var env struct {
			Error struct {
				Message string `json:"message"`
				Code    string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
