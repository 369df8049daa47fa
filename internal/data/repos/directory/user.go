package directory

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/teamchat-backend/internal/domain"
	domaindir "github.com/yungbote/teamchat-backend/internal/domain/directory"
	"github.com/yungbote/teamchat-backend/internal/domain/identity"
	"github.com/yungbote/teamchat-backend/internal/platform/dbctx"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
)

type UserRepo interface {
	CreateAccount(dbc dbctx.Context, account *types.Account) error
	GetAccount(dbc dbctx.Context, id int64) (*types.Account, error)
	UpsertUser(dbc dbctx.Context, user *types.User) error
	GetUser(dbc dbctx.Context, id int64) (*types.User, error)
	GetUsers(dbc dbctx.Context, ids []int64) (map[int64]*types.User, error)
	AddAccountUser(dbc dbctx.Context, au *types.AccountUser) error
	GetAccountUser(dbc dbctx.Context, accountID, userID int64) (*types.AccountUser, error)
	ListAccountMembers(dbc dbctx.Context, accountID int64) ([]domaindir.Member, error)
	GrantSuperUserAccess(dbc dbctx.Context, accountID, userID int64) error
	HasSuperUserAccess(dbc dbctx.Context, accountID, userID int64) (bool, error)
	ListSuperUsers(dbc dbctx.Context, accountID int64) ([]*types.User, error)
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, log *logger.Logger) UserRepo {
	return &userRepo{db: db, log: log.With("repo", "UserRepo")}
}

func (r *userRepo) CreateAccount(dbc dbctx.Context, account *types.Account) error {
	if account == nil || strings.TrimSpace(account.Name) == "" {
		return fmt.Errorf("missing account name")
	}
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(account).Error
}

func (r *userRepo) GetAccount(dbc dbctx.Context, id int64) (*types.Account, error) {
	var out []*types.Account
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

// UpsertUser keys on email so fixtures can be reapplied.
func (r *userRepo) UpsertUser(dbc dbctx.Context, user *types.User) error {
	if user == nil || strings.TrimSpace(user.Email) == "" {
		return fmt.Errorf("missing user email")
	}
	if user.Kind == "" {
		user.Kind = identity.KindMember
	}
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "avatar_url", "kind", "updated_at"}),
		}).
		Create(user).Error
}

func (r *userRepo) GetUser(dbc dbctx.Context, id int64) (*types.User, error) {
	var out []*types.User
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *userRepo) GetUsers(dbc dbctx.Context, ids []int64) (map[int64]*types.User, error) {
	out := map[int64]*types.User{}
	if len(ids) == 0 {
		return out, nil
	}
	var rows []*types.User
	if err := dbc.DB(r.db).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, u := range rows {
		out[u.ID] = u
	}
	return out, nil
}

func (r *userRepo) AddAccountUser(dbc dbctx.Context, au *types.AccountUser) error {
	if au == nil || au.AccountID <= 0 || au.UserID <= 0 {
		return fmt.Errorf("missing account_id or user_id")
	}
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role", "availability_status", "updated_at"}),
		}).
		Create(au).Error
}

func (r *userRepo) GetAccountUser(dbc dbctx.Context, accountID, userID int64) (*types.AccountUser, error) {
	var out []*types.AccountUser
	if err := dbc.DB(r.db).
		Where("account_id = ? AND user_id = ?", accountID, userID).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *userRepo) ListAccountMembers(dbc dbctx.Context, accountID int64) ([]domaindir.Member, error) {
	type row struct {
		types.User
		AvailabilityStatus string `gorm:"column:availability_status"`
	}
	var rows []row
	if err := dbc.DB(r.db).
		Table("chat_user").
		Select("chat_user.*, account_user.availability_status").
		Joins("JOIN account_user ON account_user.user_id = chat_user.id").
		Where("account_user.account_id = ?", accountID).
		Order("chat_user.display_name ASC").
		Order("chat_user.id ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domaindir.Member, 0, len(rows))
	for _, rw := range rows {
		out = append(out, domaindir.Member{User: rw.User, AvailabilityStatus: rw.AvailabilityStatus})
	}
	return out, nil
}

func (r *userRepo) GrantSuperUserAccess(dbc dbctx.Context, accountID, userID int64) error {
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&types.SuperUserAccess{AccountID: accountID, UserID: userID}).Error
}

func (r *userRepo) HasSuperUserAccess(dbc dbctx.Context, accountID, userID int64) (bool, error) {
	var n int64
	if err := dbc.DB(r.db).
		Model(&types.SuperUserAccess{}).
		Where("account_id = ? AND user_id = ?", accountID, userID).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *userRepo) ListSuperUsers(dbc dbctx.Context, accountID int64) ([]*types.User, error) {
	var out []*types.User
	if err := dbc.DB(r.db).
		Model(&types.User{}).
		Joins("JOIN super_user_access ON super_user_access.user_id = chat_user.id").
		Where("super_user_access.account_id = ? AND chat_user.kind = ?", accountID, identity.KindSuperUser).
		Order("chat_user.id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
