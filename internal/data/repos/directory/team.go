package directory

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/teamchat-backend/internal/domain"
	"github.com/yungbote/teamchat-backend/internal/platform/dbctx"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
)

type TeamRepo interface {
	Create(dbc dbctx.Context, team *types.Team) error
	GetByID(dbc dbctx.Context, id int64) (*types.Team, error)
	ListByAccount(dbc dbctx.Context, accountID int64) ([]*types.Team, error)
	AddMember(dbc dbctx.Context, teamID, userID int64) error
	ListMemberIDs(dbc dbctx.Context, teamID int64) ([]int64, error)
	ListTeamIDsForUser(dbc dbctx.Context, accountID, userID int64) ([]int64, error)
}

type teamRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTeamRepo(db *gorm.DB, log *logger.Logger) TeamRepo {
	return &teamRepo{db: db, log: log.With("repo", "TeamRepo")}
}

func (r *teamRepo) Create(dbc dbctx.Context, team *types.Team) error {
	if team == nil || team.AccountID <= 0 || team.Name == "" {
		return fmt.Errorf("missing account_id or team name")
	}
	return dbc.DB(r.db).Create(team).Error
}

func (r *teamRepo) GetByID(dbc dbctx.Context, id int64) (*types.Team, error) {
	var out []*types.Team
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *teamRepo) ListByAccount(dbc dbctx.Context, accountID int64) ([]*types.Team, error) {
	var out []*types.Team
	if err := dbc.DB(r.db).
		Where("account_id = ?", accountID).
		Order("name ASC").
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *teamRepo) AddMember(dbc dbctx.Context, teamID, userID int64) error {
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "team_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&types.TeamMember{TeamID: teamID, UserID: userID}).Error
}

func (r *teamRepo) ListMemberIDs(dbc dbctx.Context, teamID int64) ([]int64, error) {
	var ids []int64
	if err := dbc.DB(r.db).
		Model(&types.TeamMember{}).
		Where("team_id = ?", teamID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *teamRepo) ListTeamIDsForUser(dbc dbctx.Context, accountID, userID int64) ([]int64, error) {
	var ids []int64
	if err := dbc.DB(r.db).
		Model(&types.TeamMember{}).
		Joins("JOIN team ON team.id = team_member.team_id").
		Where("team.account_id = ? AND team_member.user_id = ?", accountID, userID).
		Order("team_member.team_id ASC").
		Pluck("team_member.team_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
