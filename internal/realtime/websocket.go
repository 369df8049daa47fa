package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yungbote/teamchat-backend/internal/domain/chat"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 64 * 1024
	replyBuffer    = 8
)

func channelName(sub *Subscriber) string { return chat.AccountChannel(sub.AccountID) }

// ServeWebsocket confirms the subscription and pumps envelopes until the peer
// goes away or the subscriber is removed. Client frames go to inbound and the
// replies share the single writer. It closes conn and unsubscribes.
func (h *Hub) ServeWebsocket(ctx context.Context, conn *websocket.Conn, sub *Subscriber, inbound InboundHandler) {
	defer func() {
		h.Unsubscribe(sub)
		_ = conn.Close()
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Frame{Type: FrameConfirmSubscription, Channel: channelName(sub)}); err != nil {
		h.log.Debug("websocket confirm failed", "subscriber_id", sub.ID, "error", err)
		return
	}

	replies := make(chan Frame, replyBuffer)
	writerDone := make(chan struct{})
	defer close(writerDone)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		h.readClientFrames(ctx, conn, sub, inbound, replies, writerDone)
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-readerDone:
			return
		case reply := <-replies:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		case env, ok := <-sub.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := conn.WriteJSON(Frame{Type: FrameMessage, Envelope: &env}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readClientFrames processes pongs, detects close and turns send frames into replies.
func (h *Hub) readClientFrames(ctx context.Context, conn *websocket.Conn, sub *Subscriber, inbound InboundHandler, replies chan<- Frame, writerDone <-chan struct{}) {
	conn.SetReadLimit(maxInboundSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read error", "subscriber_id", sub.ID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		reply := h.replyTo(ctx, raw, inbound)
		select {
		case replies <- reply:
		case <-writerDone:
			return
		}
	}
}

func (h *Hub) replyTo(ctx context.Context, raw []byte, inbound InboundHandler) Frame {
	var f ClientFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{Type: FrameSendError, Code: "invalid_frame", Reason: "frame is not valid JSON"}
	}
	if f.Type != ClientFrameSend {
		return Frame{Type: FrameSendError, Code: "invalid_frame", ClientMessageID: f.ClientMessageID, Reason: "unsupported frame type " + f.Type}
	}
	if inbound == nil {
		return Frame{Type: FrameSendError, Code: "unsupported", ClientMessageID: f.ClientMessageID, Reason: "sending over the socket is disabled"}
	}
	return inbound.HandleClientFrame(ctx, f)
}

// RejectWebsocket sends a reject frame and closes conn.
func RejectWebsocket(conn *websocket.Conn, reason string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(Frame{Type: FrameRejectSubscription, Reason: reason})
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
	_ = conn.Close()
}
