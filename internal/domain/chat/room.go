package chat

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type RoomKind string

const (
	RoomKindGeneral RoomKind = "general"
	RoomKindTeam    RoomKind = "team"
	RoomKindDirect  RoomKind = "direct"
)

// GeneralChatID is the sentinel chat identifier of the account-wide room.
const GeneralChatID = "general"

func ParseRoomKind(raw string) (RoomKind, bool) {
	switch RoomKind(strings.ToLower(strings.TrimSpace(raw))) {
	case RoomKindGeneral:
		return RoomKindGeneral, true
	case RoomKindTeam:
		return RoomKindTeam, true
	case RoomKindDirect:
		return RoomKindDirect, true
	default:
		return "", false
	}
}

// Room is unique per (account_id, canonical_key); the key encodes the kind so one
// index covers the general, per-team and per-pair invariants.
type Room struct {
	ID           int64    `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID    int64    `gorm:"column:account_id;not null;index:idx_chat_room_account_key,unique,priority:1" json:"account_id"`
	Kind         RoomKind `gorm:"column:kind;type:varchar(16);not null;index" json:"kind"`
	CanonicalKey string   `gorm:"column:canonical_key;type:varchar(128);not null;index:idx_chat_room_account_key,unique,priority:2" json:"canonical_key"`

	TeamID *int64 `gorm:"column:team_id;index" json:"team_id,omitempty"`

	// Direct rooms only. DirectKey is the unprefixed "<lo>-<hi>" pair.
	DirectKey        string `gorm:"column:direct_key;type:varchar(64);not null;default:''" json:"direct_key,omitempty"`
	DirectLowUserID  *int64 `gorm:"column:direct_low_user_id;index" json:"-"`
	DirectHighUserID *int64 `gorm:"column:direct_high_user_id;index" json:"-"`

	Slug        string         `gorm:"column:slug;type:varchar(128);not null;default:''" json:"slug"`
	Name        string         `gorm:"column:name;type:varchar(255);not null;default:''" json:"name"`
	Description string         `gorm:"column:description;type:text;not null;default:''" json:"description"`
	Metadata    datatypes.JSON `gorm:"type:jsonb;column:metadata;not null;default:'{}'" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Room) TableName() string { return "chat_room" }

func (r *Room) HasParticipant(userID int64) bool {
	if r == nil || r.Kind != RoomKindDirect {
		return false
	}
	return (r.DirectLowUserID != nil && *r.DirectLowUserID == userID) ||
		(r.DirectHighUserID != nil && *r.DirectHighUserID == userID)
}

// Counterpart returns the other participant of a direct room, 0 when userID is not one of them.
func (r *Room) Counterpart(userID int64) int64 {
	if !r.HasParticipant(userID) || r.DirectLowUserID == nil || r.DirectHighUserID == nil {
		return 0
	}
	if *r.DirectLowUserID == userID {
		return *r.DirectHighUserID
	}
	return *r.DirectLowUserID
}

// ChatID is the client-facing identifier of the room as seen by viewer.
func (r *Room) ChatID(viewerID int64) string {
	if r == nil {
		return ""
	}
	switch r.Kind {
	case RoomKindGeneral:
		return GeneralChatID
	case RoomKindTeam:
		if r.TeamID != nil {
			return strconv.FormatInt(*r.TeamID, 10)
		}
	case RoomKindDirect:
		if other := r.Counterpart(viewerID); other != 0 {
			return strconv.FormatInt(other, 10)
		}
		return strconv.FormatInt(r.ID, 10)
	}
	return ""
}

type RoomMetadata struct {
	ParticipantIDs []int64 `json:"participant_ids,omitempty"`
	CreatedBy      int64   `json:"created_by,omitempty"`
}

func EncodeRoomMetadata(md RoomMetadata) datatypes.JSON {
	raw, err := json.Marshal(md)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(raw)
}

func DecodeRoomMetadata(raw datatypes.JSON) RoomMetadata {
	var md RoomMetadata
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &md)
	}
	return md
}

func GeneralCanonicalKey() string { return GeneralChatID }

func TeamCanonicalKey(teamID int64) string { return fmt.Sprintf("team-%d", teamID) }

// SortedPair orders two user ids ascending so direct keys ignore who initiated.
func SortedPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

func DirectKey(a, b int64) string {
	lo, hi := SortedPair(a, b)
	return fmt.Sprintf("%d-%d", lo, hi)
}

func DirectCanonicalKey(a, b int64) string { return "direct-" + DirectKey(a, b) }

// ParseDirectKey accepts both "direct-<lo>-<hi>" and the bare "<lo>-<hi>" pair.
func ParseDirectKey(raw string) (int64, int64, bool) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "direct-")
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, errA := strconv.ParseInt(parts[0], 10, 64)
	b, errB := strconv.ParseInt(parts[1], 10, 64)
	if errA != nil || errB != nil || a <= 0 || b <= 0 {
		return 0, 0, false
	}
	lo, hi := SortedPair(a, b)
	return lo, hi, true
}

// DirectRoomName renders "A & B" with names ordered like the participant ids.
func DirectRoomName(loName, hiName string) string {
	return strings.TrimSpace(loName) + " & " + strings.TrimSpace(hiName)
}
