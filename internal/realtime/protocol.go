package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/yungbote/teamchat-backend/internal/domain/chat"
)

// Frame types on the subscription socket.
const (
	FrameConfirmSubscription = "confirm_subscription"
	FrameRejectSubscription  = "reject_subscription"
	FrameMessage             = "message"
	FrameSendAck             = "send_ack"
	FrameSendError           = "send_error"
)

// ClientFrameSend is the only frame a subscriber may send besides control frames.
const ClientFrameSend = "send"

type Frame struct {
	Type            string            `json:"type"`
	Channel         string            `json:"channel,omitempty"`
	Envelope        *chat.Envelope    `json:"envelope,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	Code            string            `json:"code,omitempty"`
	ClientMessageID string            `json:"client_message_id,omitempty"`
	Message         *chat.MessageView `json:"message,omitempty"`
}

// ClientFrame is a message posted over the socket. The room is named by
// chat_type plus chat_id; team_id and recipient_id are accepted for team and
// direct rooms when chat_id is empty.
type ClientFrame struct {
	Type            string        `json:"type"`
	ChatType        chat.RoomKind `json:"chat_type"`
	ChatID          FlexID        `json:"chat_id"`
	TeamID          FlexID        `json:"team_id"`
	RecipientID     FlexID        `json:"recipient_id"`
	Content         string        `json:"content"`
	ClientMessageID string        `json:"client_message_id"`
}

// RoomIdentifier picks the identifier field that applies to the frame's kind.
func (f ClientFrame) RoomIdentifier() string {
	if id := strings.TrimSpace(string(f.ChatID)); id != "" {
		return id
	}
	switch f.ChatType {
	case chat.RoomKindTeam:
		return strings.TrimSpace(string(f.TeamID))
	case chat.RoomKindDirect:
		return strings.TrimSpace(string(f.RecipientID))
	}
	return ""
}

// FlexID accepts a JSON string or number.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

// InboundHandler answers a client frame with the frame written back to the
// same socket.
type InboundHandler interface {
	HandleClientFrame(ctx context.Context, f ClientFrame) Frame
}
