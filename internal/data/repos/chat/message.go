package chat

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/teamchat-backend/internal/domain"
	"github.com/yungbote/teamchat-backend/internal/platform/dbctx"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

type MessageRepo interface {
	Create(dbc dbctx.Context, msg *types.Message) error
	GetByID(dbc dbctx.Context, id int64) (*types.Message, error)
	GetByClientID(dbc dbctx.Context, roomID int64, clientMessageID string) (*types.Message, error)
	// ListWindow returns the most recent active messages with id < beforeID
	// (no bound when beforeID <= 0), ordered oldest first.
	ListWindow(dbc dbctx.Context, roomID, beforeID int64, limit int) ([]*types.Message, error)
	// ListAfter pages forward from afterID in ascending order.
	ListAfter(dbc dbctx.Context, roomID, afterID int64, limit int) ([]*types.Message, error)
	CountActive(dbc dbctx.Context, roomID int64) (int64, error)
	CountActiveBefore(dbc dbctx.Context, roomID, beforeID int64) (int64, error)
	CountUnread(dbc dbctx.Context, roomID, userID int64, since time.Time) (int64, error)
	UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, log *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: log.With("repo", "MessageRepo")}
}

func preloadAttachments(tx *gorm.DB) *gorm.DB {
	return tx.Order("id ASC")
}

func (r *messageRepo) Create(dbc dbctx.Context, msg *types.Message) error {
	if msg == nil || msg.RoomID <= 0 || msg.SenderID <= 0 {
		return fmt.Errorf("missing room_id or sender_id")
	}
	if len(msg.Metadata) == 0 {
		msg.Metadata = []byte("{}")
	}
	return dbc.DB(r.db).Omit("Attachments").Create(msg).Error
}

func (r *messageRepo) GetByID(dbc dbctx.Context, id int64) (*types.Message, error) {
	var out []*types.Message
	if err := dbc.DB(r.db).
		Preload("Attachments", preloadAttachments).
		Where("id = ?", id).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *messageRepo) GetByClientID(dbc dbctx.Context, roomID int64, clientMessageID string) (*types.Message, error) {
	if clientMessageID == "" {
		return nil, nil
	}
	var out []*types.Message
	if err := dbc.DB(r.db).
		Preload("Attachments", preloadAttachments).
		Where("room_id = ? AND client_message_id = ?", roomID, clientMessageID).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *messageRepo) ListWindow(dbc dbctx.Context, roomID, beforeID int64, limit int) ([]*types.Message, error) {
	if roomID <= 0 {
		return nil, fmt.Errorf("missing room_id")
	}
	limit = ClampLimit(limit)
	q := dbc.DB(r.db).
		Preload("Attachments", preloadAttachments).
		Where("room_id = ? AND deleted_at IS NULL", roomID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var out []*types.Message
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *messageRepo) ListAfter(dbc dbctx.Context, roomID, afterID int64, limit int) ([]*types.Message, error) {
	if roomID <= 0 {
		return nil, fmt.Errorf("missing room_id")
	}
	limit = ClampLimit(limit)
	var out []*types.Message
	if err := dbc.DB(r.db).
		Preload("Attachments", preloadAttachments).
		Where("room_id = ? AND deleted_at IS NULL AND id > ?", roomID, afterID).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *messageRepo) CountActive(dbc dbctx.Context, roomID int64) (int64, error) {
	return r.CountActiveBefore(dbc, roomID, 0)
}

func (r *messageRepo) CountActiveBefore(dbc dbctx.Context, roomID, beforeID int64) (int64, error) {
	q := dbc.DB(r.db).
		Model(&types.Message{}).
		Where("room_id = ? AND deleted_at IS NULL", roomID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *messageRepo) CountUnread(dbc dbctx.Context, roomID, userID int64, since time.Time) (int64, error) {
	var n int64
	if err := dbc.DB(r.db).
		Model(&types.Message{}).
		Where("room_id = ? AND deleted_at IS NULL AND sender_id <> ? AND created_at > ?", roomID, userID, since.UTC()).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *messageRepo) UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error {
	if id <= 0 {
		return fmt.Errorf("missing message id")
	}
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.DB(r.db).
		Model(&types.Message{}).
		Where("id = ?", id).
		Updates(updates).Error
}
