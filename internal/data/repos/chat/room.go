package chat

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/teamchat-backend/internal/domain"
	domainchat "github.com/yungbote/teamchat-backend/internal/domain/chat"
	"github.com/yungbote/teamchat-backend/internal/platform/dbctx"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
)

type RoomRepo interface {
	// CreateIfAbsent inserts room unless (account_id, canonical_key) already exists.
	// created=false means another writer won and the caller should re-read.
	CreateIfAbsent(dbc dbctx.Context, room *types.Room) (bool, error)
	GetByKey(dbc dbctx.Context, accountID int64, canonicalKey string) (*types.Room, error)
	GetByID(dbc dbctx.Context, accountID, id int64) (*types.Room, error)
	ListByKind(dbc dbctx.Context, accountID int64, kind domainchat.RoomKind) ([]*types.Room, error)
	ListDirectForUser(dbc dbctx.Context, accountID, userID int64) ([]*types.Room, error)
	UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error
}

type roomRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRoomRepo(db *gorm.DB, log *logger.Logger) RoomRepo {
	return &roomRepo{db: db, log: log.With("repo", "RoomRepo")}
}

func (r *roomRepo) CreateIfAbsent(dbc dbctx.Context, room *types.Room) (bool, error) {
	if room == nil {
		return false, fmt.Errorf("missing room")
	}
	if room.AccountID <= 0 || strings.TrimSpace(room.CanonicalKey) == "" {
		return false, fmt.Errorf("missing account_id or canonical_key")
	}
	if len(room.Metadata) == 0 {
		room.Metadata = []byte("{}")
	}
	res := dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "canonical_key"}},
			DoNothing: true,
		}).
		Create(room)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *roomRepo) GetByKey(dbc dbctx.Context, accountID int64, canonicalKey string) (*types.Room, error) {
	if accountID <= 0 {
		return nil, fmt.Errorf("missing account_id")
	}
	var out []*types.Room
	if err := dbc.DB(r.db).
		Where("account_id = ? AND canonical_key = ?", accountID, canonicalKey).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *roomRepo) GetByID(dbc dbctx.Context, accountID, id int64) (*types.Room, error) {
	if id <= 0 {
		return nil, nil
	}
	var out []*types.Room
	if err := dbc.DB(r.db).
		Where("account_id = ? AND id = ?", accountID, id).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *roomRepo) ListByKind(dbc dbctx.Context, accountID int64, kind domainchat.RoomKind) ([]*types.Room, error) {
	var out []*types.Room
	if err := dbc.DB(r.db).
		Where("account_id = ? AND kind = ?", accountID, kind).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *roomRepo) ListDirectForUser(dbc dbctx.Context, accountID, userID int64) ([]*types.Room, error) {
	var out []*types.Room
	if err := dbc.DB(r.db).
		Where("account_id = ? AND kind = ?", accountID, domainchat.RoomKindDirect).
		Where("direct_low_user_id = ? OR direct_high_user_id = ?", userID, userID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *roomRepo) UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error {
	if id <= 0 {
		return fmt.Errorf("missing room id")
	}
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.DB(r.db).
		Model(&types.Room{}).
		Where("id = ?", id).
		Updates(updates).Error
}
