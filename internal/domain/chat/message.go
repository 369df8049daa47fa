package chat

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type MessageType string

const (
	MessageTypeText       MessageType = "text"
	MessageTypeAttachment MessageType = "attachment"
)

type Membership struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID     int64      `gorm:"column:room_id;not null;index:idx_chat_membership_room_user,unique,priority:1" json:"room_id"`
	UserID     int64      `gorm:"column:user_id;not null;index:idx_chat_membership_room_user,unique,priority:2;index" json:"user_id"`
	AccountID  int64      `gorm:"column:account_id;not null;index" json:"account_id"`
	LastReadAt *time.Time `gorm:"column:last_read_at" json:"last_read_at,omitempty"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null" json:"updated_at"`
}

func (Membership) TableName() string { return "chat_room_membership" }

// ReadMark is the point after which messages count as unread.
func (m *Membership) ReadMark() time.Time {
	if m.LastReadAt != nil {
		return *m.LastReadAt
	}
	return m.CreatedAt
}

// Message content is NULL once soft-deleted. ClientMessageID is the sender's
// optimistic-entry key and is unique per room when non-empty.
type Message struct {
	ID              int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID       int64          `gorm:"column:account_id;not null;index" json:"account_id"`
	RoomID          int64          `gorm:"column:room_id;not null;index:idx_chat_room_message_room_created,priority:1" json:"room_id"`
	SenderID        int64          `gorm:"column:sender_id;not null;index" json:"sender_id"`
	Content         *string        `gorm:"column:content;type:text" json:"content"`
	MessageType     MessageType    `gorm:"column:message_type;type:varchar(16);not null;default:'text'" json:"message_type"`
	Metadata        datatypes.JSON `gorm:"type:jsonb;column:metadata;not null;default:'{}'" json:"metadata,omitempty"`
	ClientMessageID string         `gorm:"column:client_message_id;type:varchar(64);not null;default:''" json:"client_message_id,omitempty"`

	CreatedAt time.Time  `gorm:"not null;index:idx_chat_room_message_room_created,priority:2" json:"created_at"`
	UpdatedAt time.Time  `gorm:"not null" json:"updated_at"`
	EditedAt  *time.Time `gorm:"column:edited_at" json:"edited_at,omitempty"`
	EditedBy  *int64     `gorm:"column:edited_by" json:"edited_by,omitempty"`
	DeletedAt *time.Time `gorm:"column:deleted_at;index" json:"deleted_at,omitempty"`
	DeletedBy *int64     `gorm:"column:deleted_by" json:"deleted_by,omitempty"`

	Attachments []Attachment `gorm:"foreignKey:MessageID" json:"attachments,omitempty"`
}

func (Message) TableName() string { return "chat_room_message" }

func (m *Message) IsDeleted() bool { return m != nil && m.DeletedAt != nil }

func (m *Message) IsEdited() bool { return m != nil && m.EditedAt != nil }

func (m *Message) Text() string {
	if m == nil || m.Content == nil {
		return ""
	}
	return *m.Content
}

type Attachment struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageID   int64     `gorm:"column:message_id;not null;index" json:"message_id"`
	RoomID      int64     `gorm:"column:room_id;not null;index" json:"room_id"`
	FileName    string    `gorm:"column:file_name;type:varchar(255);not null;default:''" json:"file_name"`
	URL         string    `gorm:"column:url;type:text;not null" json:"url"`
	ThumbURL    string    `gorm:"column:thumb_url;type:text;not null;default:''" json:"thumb_url"`
	ByteSize    int64     `gorm:"column:byte_size;not null;default:0" json:"byte_size"`
	ContentType string    `gorm:"column:content_type;type:varchar(128);not null;default:''" json:"content_type"`
	StorageKey  string    `gorm:"column:storage_key;type:text;not null;default:''" json:"-"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (Attachment) TableName() string { return "chat_room_attachment" }

// ValidateContent enforces that a live message carries text or at least one attachment.
func ValidateContent(content string, attachments int) error {
	if strings.TrimSpace(content) == "" && attachments == 0 {
		return Validation("chat.message", "content or attachments required")
	}
	return nil
}

// MaxClientMessageIDLength matches the client_message_id column width.
const MaxClientMessageIDLength = 64

func ValidateClientMessageID(id string) error {
	if len(id) > MaxClientMessageIDLength {
		return Validation("chat.message", fmt.Sprintf("client_message_id exceeds %d characters", MaxClientMessageIDLength))
	}
	return nil
}

func TypeFor(content string, attachments int) MessageType {
	if attachments > 0 && strings.TrimSpace(content) == "" {
		return MessageTypeAttachment
	}
	return MessageTypeText
}
