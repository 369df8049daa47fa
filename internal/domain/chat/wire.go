package chat

import (
	"strconv"
	"time"
)

// TimeLayout is ISO-8601 with millisecond precision, always rendered in UTC.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

func FormatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

type SenderView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type AttachmentView struct {
	ID          int64  `json:"id"`
	FileName    string `json:"file_name"`
	URL         string `json:"url"`
	ThumbURL    string `json:"thumb_url"`
	ByteSize    int64  `json:"byte_size"`
	ContentType string `json:"content_type"`
}

// MessageView is the wire shape shared by the HTTP responses, the broadcast
// envelope and the client session.
type MessageView struct {
	ID              int64            `json:"id"`
	Content         *string          `json:"content"`
	Sender          SenderView       `json:"sender"`
	SenderID        int64            `json:"sender_id"`
	CreatedAt       string           `json:"created_at"`
	MessageType     MessageType      `json:"message_type"`
	ChatType        RoomKind         `json:"chat_type"`
	ChatID          string           `json:"chat_id"`
	RoomID          int64            `json:"room_id"`
	Attachments     []AttachmentView `json:"attachments"`
	Edited          bool             `json:"edited"`
	Deleted         bool             `json:"deleted"`
	EditedAt        string           `json:"edited_at,omitempty"`
	DeletedAt       string           `json:"deleted_at,omitempty"`
	ClientMessageID string           `json:"client_message_id,omitempty"`
}

// NewMessageView renders msg as seen by viewerID; chat_id of a direct room is the viewer's counterpart.
func NewMessageView(msg *Message, room *Room, sender SenderView, viewerID int64) MessageView {
	v := MessageView{
		ID:              msg.ID,
		Content:         msg.Content,
		Sender:          sender,
		SenderID:        msg.SenderID,
		CreatedAt:       FormatTime(msg.CreatedAt),
		MessageType:     msg.MessageType,
		RoomID:          msg.RoomID,
		Attachments:     []AttachmentView{},
		Edited:          msg.IsEdited(),
		Deleted:         msg.IsDeleted(),
		ClientMessageID: msg.ClientMessageID,
	}
	if v.MessageType == "" {
		v.MessageType = TypeFor(msg.Text(), len(msg.Attachments))
	}
	if room != nil {
		v.ChatType = room.Kind
		v.ChatID = room.ChatID(viewerID)
	}
	if msg.EditedAt != nil {
		v.EditedAt = FormatTime(*msg.EditedAt)
	}
	if msg.DeletedAt != nil {
		v.DeletedAt = FormatTime(*msg.DeletedAt)
		v.Content = nil
		return v
	}
	for _, a := range msg.Attachments {
		v.Attachments = append(v.Attachments, AttachmentView{
			ID:          a.ID,
			FileName:    a.FileName,
			URL:         a.URL,
			ThumbURL:    a.ThumbURL,
			ByteSize:    a.ByteSize,
			ContentType: a.ContentType,
		})
	}
	return v
}

type EnvelopeEvent string

const (
	EventNewMessage     EnvelopeEvent = "new_message"
	EventMessageUpdated EnvelopeEvent = "message_updated"
	EventMessageDeleted EnvelopeEvent = "message_deleted"
)

// Envelope is the transient notification fanned out on an account channel.
type Envelope struct {
	Event          EnvelopeEvent `json:"event"`
	AccountID      int64         `json:"account_id"`
	RoomKind       RoomKind      `json:"room_kind"`
	RoomIdentifier string        `json:"room_identifier"`
	ChatType       RoomKind      `json:"chat_type"`
	ChatID         string        `json:"chat_id"`
	Message        MessageView   `json:"message"`
	Timestamp      string        `json:"timestamp"`
}

const AccountChannelPrefix = "internal_chat_"

// AccountChannel names the per-account stream.
func AccountChannel(accountID int64) string {
	return AccountChannelPrefix + strconv.FormatInt(accountID, 10)
}
