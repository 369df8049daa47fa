package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	domainchat "github.com/yungbote/teamchat-backend/internal/domain/chat"
	"github.com/yungbote/teamchat-backend/internal/domain/identity"
	"github.com/yungbote/teamchat-backend/internal/http/middleware"
	"github.com/yungbote/teamchat-backend/internal/http/response"
	"github.com/yungbote/teamchat-backend/internal/platform/apierr"
	"github.com/yungbote/teamchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
	"github.com/yungbote/teamchat-backend/internal/realtime"
	"github.com/yungbote/teamchat-backend/internal/services/auth"
	chatsvc "github.com/yungbote/teamchat-backend/internal/services/chat"
)

type RealtimeHandler struct {
	log       *logger.Logger
	hub       *realtime.Hub
	chat      chatsvc.ChatService
	auth      auth.IdentityProvider
	upgrader  websocket.Upgrader
	heartbeat time.Duration
}

// NewRealtimeHandler serves the account broadcast over websocket and SSE.
// allowedOrigins empty accepts any Origin.
// A nil chat service leaves the socket receive-only.
func NewRealtimeHandler(log *logger.Logger, hub *realtime.Hub, chat chatsvc.ChatService, provider auth.IdentityProvider, allowedOrigins []string, heartbeat time.Duration) *RealtimeHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = struct{}{}
		}
	}
	return &RealtimeHandler{
		log:       log.With("handler", "RealtimeHandler"),
		hub:       hub,
		chat:      chat,
		auth:      provider,
		heartbeat: heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(allowed) == 0 || origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// GET /api/internal_chat/ws?account_id&user_id&token
//
// Bad or missing tokens fail the handshake with 401. A valid token without
// access to the requested account upgrades and then receives a reject frame.
func (h *RealtimeHandler) Websocket(c *gin.Context) {
	creds := identity.Credentials{
		AccountID: middleware.RequestedAccountID(c),
		Token:     bearerOrQueryToken(c),
	}
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("invalid user_id"))
			return
		}
		creds.UserID = id
	}
	if creds.Token == "" {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing token"))
		return
	}

	caller, authErr := h.auth.Authenticate(c.Request.Context(), creds)
	if authErr != nil && !errors.Is(authErr, auth.ErrNoAccountAccess) {
		status, code := http.StatusUnauthorized, "unauthorized"
		if !errors.Is(authErr, auth.ErrUnauthorized) {
			h.log.Warn("websocket authentication failed", "account_id", creds.AccountID, "error", authErr)
			status, code = http.StatusInternalServerError, "auth_failed"
		}
		response.RespondError(c, status, code, authErr)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	if authErr != nil {
		h.log.Info("websocket subscription rejected", "account_id", creds.AccountID, "user_id", creds.UserID)
		realtime.RejectWebsocket(conn, authErr.Error())
		return
	}

	sub := h.hub.Subscribe(caller.AccountID, caller.ID, realtime.TransportWebsocket)
	h.log.Info("websocket subscribed", "account_id", caller.AccountID, "user_id", caller.ID, "subscriber_id", sub.ID)
	var inbound realtime.InboundHandler
	if h.chat != nil {
		inbound = &socketSender{log: h.log, chat: h.chat, caller: caller}
	}
	h.hub.ServeWebsocket(c.Request.Context(), conn, sub, inbound)
}

// socketSender posts send frames as the socket's authenticated caller. The
// created message reaches every subscriber, this socket included, through the
// normal broadcast; the ack only carries the caller's copy.
type socketSender struct {
	log    *logger.Logger
	chat   chatsvc.ChatService
	caller identity.Identity
}

func (s *socketSender) HandleClientFrame(ctx context.Context, f realtime.ClientFrame) realtime.Frame {
	kind := f.ChatType
	if kind == "" {
		kind = domainchat.RoomKindGeneral
	}
	ident := f.RoomIdentifier()
	if kind == domainchat.RoomKindGeneral && ident == "" {
		ident = domainchat.GeneralChatID
	}
	view, err := s.chat.SendMessage(ctx, s.caller, chatsvc.SendMessageInput{
		RoomKind:        string(kind),
		RoomIdentifier:  ident,
		Content:         f.Content,
		ClientMessageID: f.ClientMessageID,
	})
	if err != nil {
		ae := apierr.From(err, "send_failed")
		if ae.Status >= http.StatusInternalServerError {
			s.log.Warn("socket send failed", "account_id", s.caller.AccountID, "user_id", s.caller.ID, "error", err)
		}
		return realtime.Frame{Type: realtime.FrameSendError, Code: ae.Code, ClientMessageID: f.ClientMessageID, Reason: ae.Err.Error()}
	}
	return realtime.Frame{Type: realtime.FrameSendAck, ClientMessageID: view.ClientMessageID, Message: view}
}

// GET /api/internal_chat/stream
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	caller, ok := ctxutil.Caller(c.Request.Context())
	if !ok {
		unauthorized(c)
		return
	}
	sub := h.hub.Subscribe(caller.AccountID, caller.ID, realtime.TransportSSE)
	h.log.Info("sse subscribed", "account_id", caller.AccountID, "user_id", caller.ID, "subscriber_id", sub.ID)
	h.hub.ServeSSE(c.Writer, c.Request, sub, h.heartbeat)
}

func bearerOrQueryToken(c *gin.Context) string {
	if t := strings.TrimSpace(c.Query("token")); t != "" {
		return t
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
