package chat

import (
	"gorm.io/gorm"

	types "github.com/yungbote/teamchat-backend/internal/domain"
	"github.com/yungbote/teamchat-backend/internal/platform/dbctx"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
)

type AttachmentRepo interface {
	Create(dbc dbctx.Context, rows []*types.Attachment) ([]*types.Attachment, error)
	ListByMessage(dbc dbctx.Context, messageID int64) ([]*types.Attachment, error)
}

type attachmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAttachmentRepo(db *gorm.DB, log *logger.Logger) AttachmentRepo {
	return &attachmentRepo{db: db, log: log.With("repo", "AttachmentRepo")}
}

func (r *attachmentRepo) Create(dbc dbctx.Context, rows []*types.Attachment) ([]*types.Attachment, error) {
	if len(rows) == 0 {
		return []*types.Attachment{}, nil
	}
	if err := dbc.DB(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *attachmentRepo) ListByMessage(dbc dbctx.Context, messageID int64) ([]*types.Attachment, error) {
	var out []*types.Attachment
	if err := dbc.DB(r.db).
		Where("message_id = ?", messageID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
