package chat

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/teamchat-backend/internal/domain"
	"github.com/yungbote/teamchat-backend/internal/platform/dbctx"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
)

type MembershipRepo interface {
	AddIfAbsent(dbc dbctx.Context, m *types.Membership) (bool, error)
	Get(dbc dbctx.Context, roomID, userID int64) (*types.Membership, error)
	Remove(dbc dbctx.Context, roomID, userID int64) error
	ListByRoom(dbc dbctx.Context, roomID int64) ([]*types.Membership, error)
	ListByUser(dbc dbctx.Context, accountID, userID int64) ([]*types.Membership, error)
	CountByRoom(dbc dbctx.Context, roomID int64) (int64, error)
	SetLastReadAt(dbc dbctx.Context, roomID, userID int64, at time.Time) error
}

type membershipRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMembershipRepo(db *gorm.DB, log *logger.Logger) MembershipRepo {
	return &membershipRepo{db: db, log: log.With("repo", "MembershipRepo")}
}

func (r *membershipRepo) AddIfAbsent(dbc dbctx.Context, m *types.Membership) (bool, error) {
	if m == nil || m.RoomID <= 0 || m.UserID <= 0 {
		return false, fmt.Errorf("missing room_id or user_id")
	}
	res := dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *membershipRepo) Get(dbc dbctx.Context, roomID, userID int64) (*types.Membership, error) {
	var out []*types.Membership
	if err := dbc.DB(r.db).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *membershipRepo) Remove(dbc dbctx.Context, roomID, userID int64) error {
	return dbc.DB(r.db).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&types.Membership{}).Error
}

func (r *membershipRepo) ListByRoom(dbc dbctx.Context, roomID int64) ([]*types.Membership, error) {
	var out []*types.Membership
	if err := dbc.DB(r.db).
		Where("room_id = ?", roomID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *membershipRepo) ListByUser(dbc dbctx.Context, accountID, userID int64) ([]*types.Membership, error) {
	var out []*types.Membership
	if err := dbc.DB(r.db).
		Where("account_id = ? AND user_id = ?", accountID, userID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *membershipRepo) CountByRoom(dbc dbctx.Context, roomID int64) (int64, error) {
	var n int64
	if err := dbc.DB(r.db).
		Model(&types.Membership{}).
		Where("room_id = ?", roomID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *membershipRepo) SetLastReadAt(dbc dbctx.Context, roomID, userID int64, at time.Time) error {
	return dbc.DB(r.db).
		Model(&types.Membership{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Updates(map[string]interface{}{
			"last_read_at": at.UTC(),
			"updated_at":   time.Now().UTC(),
		}).Error
}
