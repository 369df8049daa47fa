package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yungbote/teamchat-backend/internal/domain/identity"
	"github.com/yungbote/teamchat-backend/internal/realtime"
)

// Conn yields frames from one subscription connection until it fails or is closed.
type Conn interface {
	ReadFrame() (realtime.Frame, error)
	Close() error
}

type Transport interface {
	Dial(ctx context.Context, creds identity.Credentials) (Conn, error)
}

// AuthError is a handshake the server refused; retrying with the same
// credentials cannot succeed.
type AuthError struct {
	Status int
	Reason string
}

func (e *AuthError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("subscription rejected: %s", e.Reason)
	}
	return fmt.Sprintf("subscription rejected: http %d", e.Status)
}

func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// WebsocketTransport dials the server's /internal_chat/ws endpoint.
type WebsocketTransport struct {
	URL    string
	Dialer *websocket.Dialer
}

func NewWebsocketTransport(rawURL string) *WebsocketTransport {
	return &WebsocketTransport{
		URL: rawURL,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (t *WebsocketTransport) Dial(ctx context.Context, creds identity.Credentials) (Conn, error) {
	u, err := url.Parse(t.URL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}
	q := u.Query()
	q.Set("account_id", strconv.FormatInt(creds.AccountID, 10))
	q.Set("user_id", strconv.FormatInt(creds.UserID, 10))
	q.Set("token", creds.Token)
	u.RawQuery = q.Encode()

	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &AuthError{Status: resp.StatusCode}
		}
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadFrame() (realtime.Frame, error) {
	var f realtime.Frame
	if err := c.conn.ReadJSON(&f); err != nil {
		return realtime.Frame{}, err
	}
	return f, nil
}

func (c *wsConn) Close() error { return c.conn.Close() }
