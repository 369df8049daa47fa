package chat

import domainchat "github.com/yungbote/teamchat-backend/internal/domain/chat"

type GeneralRoomView struct {
	ID          string              `json:"id"`
	RoomID      int64               `json:"room_id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Type        domainchat.RoomKind `json:"type"`
	RoomType    domainchat.RoomKind `json:"room_type"`
	Identifier  string              `json:"identifier"`
	UnreadCount int64               `json:"unread_count"`
}

// TeamRoomView.RoomID is nil until somebody opens the team room.
type TeamRoomView struct {
	ID          int64               `json:"id"`
	RoomID      *int64              `json:"room_id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Type        domainchat.RoomKind `json:"type"`
	RoomType    domainchat.RoomKind `json:"room_type"`
	Identifier  string              `json:"identifier"`
	MemberCount int                 `json:"member_count"`
	UnreadCount int64               `json:"unread_count"`
}

type DirectPeerView struct {
	ID                 int64               `json:"id"`
	RoomID             *int64              `json:"room_id"`
	Name               string              `json:"name"`
	Email              string              `json:"email,omitempty"`
	AvatarURL          string              `json:"avatar_url"`
	AvailabilityStatus string              `json:"availability_status"`
	Kind               string              `json:"kind"`
	Type               domainchat.RoomKind `json:"type"`
	RoomType           domainchat.RoomKind `json:"room_type"`
	Identifier         string              `json:"identifier"`
	UnreadCount        int64               `json:"unread_count"`
}

type RoomsListing struct {
	General        GeneralRoomView  `json:"general"`
	Teams          []TeamRoomView   `json:"teams"`
	DirectMessages []DirectPeerView `json:"direct_messages"`
}

type ParticipantView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url"`
}

type DirectRoomView struct {
	ID           int64               `json:"id"`
	RoomID       int64               `json:"room_id"`
	Name         string              `json:"name"`
	Type         domainchat.RoomKind `json:"type"`
	RoomType     domainchat.RoomKind `json:"room_type"`
	Identifier   string              `json:"identifier"`
	TargetUserID int64               `json:"target_user_id"`
	Participants []ParticipantView   `json:"participants"`
}

type MessagesMeta struct {
	RoomID     int64  `json:"room_id,omitempty"`
	TotalCount int64  `json:"total_count"`
	PerPage    int    `json:"per_page"`
	HasMore    bool   `json:"has_more"`
	Error      string `json:"error,omitempty"`
}

type MessagesPage struct {
	Data []domainchat.MessageView `json:"data"`
	Meta MessagesMeta             `json:"meta"`
}

type ReadReceipt struct {
	RoomID      int64  `json:"room_id"`
	LastReadAt  string `json:"last_read_at"`
	UnreadCount int64  `json:"unread_count"`
}
