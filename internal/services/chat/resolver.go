package chat

import (
	"context"
	"strconv"
	"strings"

	"github.com/yungbote/teamchat-backend/internal/data/repos"
	types "github.com/yungbote/teamchat-backend/internal/domain"
	domainchat "github.com/yungbote/teamchat-backend/internal/domain/chat"
	"github.com/yungbote/teamchat-backend/internal/domain/identity"
	"github.com/yungbote/teamchat-backend/internal/platform/dbctx"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
	"github.com/yungbote/teamchat-backend/internal/services/directory"
)

// RoomRef is a resolved room address. RoomID is set only when the identifier
// named an existing room; everything else is enough to ensure the room.
type RoomRef struct {
	Kind          domainchat.RoomKind
	AccountID     int64
	ChatID        string
	CanonicalKey  string
	TeamID        int64
	Team          *types.Team
	CounterpartID int64
	Counterpart   *identity.Identity
	RoomID        int64
}

type Resolver interface {
	Resolve(ctx context.Context, kind domainchat.RoomKind, identifier string, caller identity.Identity) (RoomRef, error)
}

type resolver struct {
	log   *logger.Logger
	dir   directory.Directory
	rooms repos.RoomRepo
}

func NewResolver(log *logger.Logger, dir directory.Directory, rooms repos.RoomRepo) Resolver {
	return &resolver{log: log.With("service", "RoomResolver"), dir: dir, rooms: rooms}
}

// Resolve never writes.
func (r *resolver) Resolve(ctx context.Context, kind domainchat.RoomKind, identifier string, caller identity.Identity) (RoomRef, error) {
	const op = "chat.resolve"
	if !caller.Valid() {
		return RoomRef{}, domainchat.Validation(op, "caller is required")
	}
	switch kind {
	case domainchat.RoomKindGeneral:
		return RoomRef{
			Kind:         domainchat.RoomKindGeneral,
			AccountID:    caller.AccountID,
			ChatID:       domainchat.GeneralChatID,
			CanonicalKey: domainchat.GeneralCanonicalKey(),
		}, nil
	case domainchat.RoomKindTeam:
		return r.resolveTeam(ctx, identifier, caller)
	case domainchat.RoomKindDirect:
		return r.resolveDirect(ctx, identifier, caller)
	default:
		return RoomRef{}, domainchat.Validation(op, "unknown room kind "+strconv.Quote(string(kind)))
	}
}

func (r *resolver) resolveTeam(ctx context.Context, identifier string, caller identity.Identity) (RoomRef, error) {
	const op = "chat.resolve.team"
	raw := strings.TrimPrefix(strings.TrimSpace(identifier), "team-")
	teamID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || teamID <= 0 {
		return RoomRef{}, domainchat.NotFound(op, "team not found")
	}
	team, err := r.dir.FindTeam(ctx, teamID)
	if err != nil {
		return RoomRef{}, domainchat.Wrap(domainchat.CodeStorage, op, err)
	}
	if team == nil || !team.BelongsTo(caller.AccountID) {
		return RoomRef{}, domainchat.NotFound(op, "team not found")
	}
	return RoomRef{
		Kind:         domainchat.RoomKindTeam,
		AccountID:    caller.AccountID,
		ChatID:       strconv.FormatInt(team.ID, 10),
		CanonicalKey: domainchat.TeamCanonicalKey(team.ID),
		TeamID:       team.ID,
		Team:         team,
	}, nil
}

// resolveDirect accepts a direct room id the caller participates in, a counterpart
// user id, or a legacy "<lo>-<hi>" pair that includes the caller. Room ids win
// over user ids when both could match.
func (r *resolver) resolveDirect(ctx context.Context, identifier string, caller identity.Identity) (RoomRef, error) {
	const op = "chat.resolve.direct"
	raw := strings.TrimPrefix(strings.TrimSpace(identifier), "direct-")
	if raw == "" {
		return RoomRef{}, domainchat.NotFound(op, "direct room not found")
	}

	var (
		counterpartID int64
		roomID        int64
	)
	if lo, hi, ok := domainchat.ParseDirectKey(raw); ok {
		switch caller.ID {
		case lo:
			counterpartID = hi
		case hi:
			counterpartID = lo
		default:
			return RoomRef{}, domainchat.NotFound(op, "direct room not found")
		}
	} else {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return RoomRef{}, domainchat.NotFound(op, "direct room not found")
		}
		room, err := r.rooms.GetByID(dbctx.Context{Ctx: ctx}, caller.AccountID, id)
		if err != nil {
			return RoomRef{}, domainchat.Wrap(domainchat.CodeStorage, op, err)
		}
		if room != nil && room.Kind == domainchat.RoomKindDirect && room.HasParticipant(caller.ID) {
			counterpartID = room.Counterpart(caller.ID)
			roomID = room.ID
		} else {
			counterpartID = id
		}
	}
	if counterpartID == caller.ID {
		return RoomRef{}, domainchat.Validation(op, "cannot open a direct room with yourself")
	}
	counterpart, err := r.dir.FindAccountUser(ctx, caller.AccountID, counterpartID)
	if err != nil {
		return RoomRef{}, domainchat.Wrap(domainchat.CodeStorage, op, err)
	}
	if counterpart == nil {
		return RoomRef{}, domainchat.NotFound(op, "user not found")
	}
	return RoomRef{
		Kind:          domainchat.RoomKindDirect,
		AccountID:     caller.AccountID,
		ChatID:        strconv.FormatInt(counterpartID, 10),
		CanonicalKey:  domainchat.DirectCanonicalKey(caller.ID, counterpartID),
		CounterpartID: counterpartID,
		Counterpart:   counterpart,
		RoomID:        roomID,
	}, nil
}
