// Package directory answers who belongs to an account and which teams it owns.
package directory

import (
	"context"

	"github.com/yungbote/teamchat-backend/internal/data/repos"
	types "github.com/yungbote/teamchat-backend/internal/domain"
	"github.com/yungbote/teamchat-backend/internal/domain/identity"
	"github.com/yungbote/teamchat-backend/internal/platform/dbctx"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
)

// Peer is an account user together with the account-scoped presence field.
type Peer struct {
	Identity           identity.Identity
	AvailabilityStatus string
}

// Directory lookups return (nil, nil) for anything that does not exist.
// Callers inside a write transaction must resolve what they need first:
// lookups run on their own connection.
type Directory interface {
	FindTeam(ctx context.Context, teamID int64) (*types.Team, error)
	TeamMembers(ctx context.Context, teamID int64) ([]int64, error)
	ListTeams(ctx context.Context, accountID int64) ([]*types.Team, error)
	// FindAccountUser returns the user if they are a member of the account or a
	// super user holding an access grant for it.
	FindAccountUser(ctx context.Context, accountID, userID int64) (*identity.Identity, error)
	ListAccountUsers(ctx context.Context, accountID int64) ([]Peer, error)
	ListSuperUsers(ctx context.Context, accountID int64) ([]identity.Identity, error)
	// Profiles is a best-effort batch lookup for rendering senders.
	Profiles(ctx context.Context, accountID int64, ids []int64) (map[int64]identity.Identity, error)
}

type repoDirectory struct {
	log   *logger.Logger
	users repos.UserRepo
	teams repos.TeamRepo
}

func New(log *logger.Logger, users repos.UserRepo, teams repos.TeamRepo) Directory {
	return &repoDirectory{
		log:   log.With("service", "Directory"),
		users: users,
		teams: teams,
	}
}

func (d *repoDirectory) FindTeam(ctx context.Context, teamID int64) (*types.Team, error) {
	if teamID <= 0 {
		return nil, nil
	}
	return d.teams.GetByID(dbctx.Context{Ctx: ctx}, teamID)
}

func (d *repoDirectory) TeamMembers(ctx context.Context, teamID int64) ([]int64, error) {
	return d.teams.ListMemberIDs(dbctx.Context{Ctx: ctx}, teamID)
}

func (d *repoDirectory) ListTeams(ctx context.Context, accountID int64) ([]*types.Team, error) {
	return d.teams.ListByAccount(dbctx.Context{Ctx: ctx}, accountID)
}

func (d *repoDirectory) FindAccountUser(ctx context.Context, accountID, userID int64) (*identity.Identity, error) {
	if accountID <= 0 || userID <= 0 {
		return nil, nil
	}
	dbc := dbctx.Context{Ctx: ctx}
	u, err := d.users.GetUser(dbc, userID)
	if err != nil || u == nil {
		return nil, err
	}
	au, err := d.users.GetAccountUser(dbc, accountID, userID)
	if err != nil {
		return nil, err
	}
	if au == nil {
		if u.Kind != identity.KindSuperUser {
			return nil, nil
		}
		ok, err := d.users.HasSuperUserAccess(dbc, accountID, userID)
		if err != nil || !ok {
			return nil, err
		}
	}
	id := u.Identity(accountID)
	return &id, nil
}

func (d *repoDirectory) ListAccountUsers(ctx context.Context, accountID int64) ([]Peer, error) {
	members, err := d.users.ListAccountMembers(dbctx.Context{Ctx: ctx}, accountID)
	if err != nil {
		return nil, err
	}
	out := make([]Peer, 0, len(members))
	for i := range members {
		out = append(out, Peer{
			Identity:           members[i].User.Identity(accountID),
			AvailabilityStatus: members[i].AvailabilityStatus,
		})
	}
	return out, nil
}

func (d *repoDirectory) ListSuperUsers(ctx context.Context, accountID int64) ([]identity.Identity, error) {
	users, err := d.users.ListSuperUsers(dbctx.Context{Ctx: ctx}, accountID)
	if err != nil {
		return nil, err
	}
	out := make([]identity.Identity, 0, len(users))
	for _, u := range users {
		out = append(out, u.Identity(accountID))
	}
	return out, nil
}

func (d *repoDirectory) Profiles(ctx context.Context, accountID int64, ids []int64) (map[int64]identity.Identity, error) {
	users, err := d.users.GetUsers(dbctx.Context{Ctx: ctx}, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]identity.Identity, len(users))
	for id, u := range users {
		out[id] = u.Identity(accountID)
	}
	return out, nil
}
