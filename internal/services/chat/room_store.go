package chat

import (
	"context"
	"strings"
	"time"

	"github.com/yungbote/teamchat-backend/internal/data/db"
	"github.com/yungbote/teamchat-backend/internal/data/repos"
	types "github.com/yungbote/teamchat-backend/internal/domain"
	domainchat "github.com/yungbote/teamchat-backend/internal/domain/chat"
	"github.com/yungbote/teamchat-backend/internal/observability"
	"github.com/yungbote/teamchat-backend/internal/platform/dbctx"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
	"github.com/yungbote/teamchat-backend/internal/services/directory"
)

const (
	DefaultGeneralRoomName        = "General"
	defaultGeneralRoomDescription = "Conversation for everyone in the account"
)

// RoomStore makes rooms and memberships exist. Every Ensure is idempotent and
// concurrent callers converge on the same row through the unique canonical key.
type RoomStore interface {
	EnsureGeneral(dbc dbctx.Context, accountID int64) (*types.Room, error)
	EnsureTeam(dbc dbctx.Context, accountID int64, team *types.Team) (*types.Room, error)
	EnsureDirect(dbc dbctx.Context, accountID, userA, userB int64) (*types.Room, error)
	Ensure(dbc dbctx.Context, ref RoomRef) (*types.Room, error)
	// Find returns an existing room for ref without creating one.
	Find(dbc dbctx.Context, ref RoomRef) (*types.Room, error)
	Get(dbc dbctx.Context, accountID, roomID int64) (*types.Room, error)
	ListDirect(dbc dbctx.Context, accountID, userID int64) ([]*types.Room, error)
	AddMember(dbc dbctx.Context, room *types.Room, userID int64) error
	RemoveMember(dbc dbctx.Context, room *types.Room, userID int64) error
	IsMember(dbc dbctx.Context, room *types.Room, userID int64) (bool, error)
	MarkRead(dbc dbctx.Context, room *types.Room, userID int64, at time.Time) (*types.Membership, error)
}

type RoomStoreConfig struct {
	GeneralRoomName string
}

type roomStore struct {
	log         *logger.Logger
	rooms       repos.RoomRepo
	members     repos.MembershipRepo
	dir         directory.Directory
	tx          db.TxRunner
	metrics     *observability.Metrics
	generalName string
}

func NewRoomStore(
	log *logger.Logger,
	rooms repos.RoomRepo,
	members repos.MembershipRepo,
	dir directory.Directory,
	tx db.TxRunner,
	metrics *observability.Metrics,
	cfg RoomStoreConfig,
) RoomStore {
	name := strings.TrimSpace(cfg.GeneralRoomName)
	if name == "" {
		name = DefaultGeneralRoomName
	}
	return &roomStore{
		log:         log.With("service", "RoomStore"),
		rooms:       rooms,
		members:     members,
		dir:         dir,
		tx:          tx,
		metrics:     metrics,
		generalName: name,
	}
}

func (s *roomStore) EnsureGeneral(dbc dbctx.Context, accountID int64) (*types.Room, error) {
	const op = "chat.room.ensure_general"
	if accountID <= 0 {
		return nil, domainchat.Validation(op, "account is required")
	}
	key := domainchat.GeneralCanonicalKey()
	return s.getOrCreate(dbc, op, &types.Room{
		AccountID:    accountID,
		Kind:         domainchat.RoomKindGeneral,
		CanonicalKey: key,
		Slug:         key,
		Name:         s.generalName,
		Description:  defaultGeneralRoomDescription,
		Metadata:     domainchat.EncodeRoomMetadata(domainchat.RoomMetadata{}),
	})
}

// EnsureTeam also mirrors the team's current members into room memberships.
func (s *roomStore) EnsureTeam(dbc dbctx.Context, accountID int64, team *types.Team) (*types.Room, error) {
	const op = "chat.room.ensure_team"
	if team == nil || team.ID <= 0 {
		return nil, domainchat.Validation(op, "team is required")
	}
	if !team.BelongsTo(accountID) {
		return nil, domainchat.InvalidState(op, "team belongs to a different account")
	}
	memberIDs, err := s.dir.TeamMembers(ctxOf(dbc), team.ID)
	if err != nil {
		return nil, domainchat.Wrap(domainchat.CodeStorage, op, err)
	}
	key := domainchat.TeamCanonicalKey(team.ID)
	teamID := team.ID
	var room *types.Room
	err = db.InTxOrJoin(s.tx, dbc, func(txc dbctx.Context) error {
		r, err := s.getOrCreate(txc, op, &types.Room{
			AccountID:    accountID,
			Kind:         domainchat.RoomKindTeam,
			CanonicalKey: key,
			TeamID:       &teamID,
			Slug:         key,
			Name:         team.Name,
			Description:  team.Description,
			Metadata:     domainchat.EncodeRoomMetadata(domainchat.RoomMetadata{}),
		})
		if err != nil {
			return err
		}
		for _, userID := range memberIDs {
			if err := s.AddMember(txc, r, userID); err != nil {
				return err
			}
		}
		room = r
		return nil
	})
	if err != nil {
		return nil, db.MapError(op, err)
	}
	return room, nil
}

// EnsureDirect is symmetric in its user arguments.
func (s *roomStore) EnsureDirect(dbc dbctx.Context, accountID, userA, userB int64) (*types.Room, error) {
	const op = "chat.room.ensure_direct"
	if accountID <= 0 || userA <= 0 || userB <= 0 {
		return nil, domainchat.Validation(op, "account and both users are required")
	}
	if userA == userB {
		return nil, domainchat.Validation(op, "cannot open a direct room with yourself")
	}
	lo, hi := domainchat.SortedPair(userA, userB)
	key := domainchat.DirectCanonicalKey(lo, hi)

	// Names are looked up before the transaction; see directory.Directory.
	existing, err := s.rooms.GetByKey(dbc, accountID, key)
	if err != nil {
		return nil, db.MapError(op, err)
	}
	name := ""
	if existing == nil {
		name = s.directName(ctxOf(dbc), accountID, lo, hi)
	}

	var room *types.Room
	err = db.InTxOrJoin(s.tx, dbc, func(txc dbctx.Context) error {
		r := existing
		if r == nil {
			created, err := s.getOrCreate(txc, op, &types.Room{
				AccountID:        accountID,
				Kind:             domainchat.RoomKindDirect,
				CanonicalKey:     key,
				DirectKey:        domainchat.DirectKey(lo, hi),
				DirectLowUserID:  &lo,
				DirectHighUserID: &hi,
				Slug:             key,
				Name:             name,
				Metadata: domainchat.EncodeRoomMetadata(domainchat.RoomMetadata{
					ParticipantIDs: []int64{lo, hi},
					CreatedBy:      userA,
				}),
			})
			if err != nil {
				return err
			}
			r = created
		}
		for _, userID := range []int64{lo, hi} {
			if err := s.AddMember(txc, r, userID); err != nil {
				return err
			}
		}
		room = r
		return nil
	})
	if err != nil {
		return nil, db.MapError(op, err)
	}
	return room, nil
}

func (s *roomStore) directName(ctx context.Context, accountID, lo, hi int64) string {
	profiles, err := s.dir.Profiles(ctx, accountID, []int64{lo, hi})
	if err != nil {
		s.log.Warn("direct room name lookup failed", "account_id", accountID, "error", err)
	}
	nameOf := func(id int64) string {
		if p, ok := profiles[id]; ok && p.Name() != "" {
			return p.Name()
		}
		return "User " + itoa(id)
	}
	return domainchat.DirectRoomName(nameOf(lo), nameOf(hi))
}

func (s *roomStore) Ensure(dbc dbctx.Context, ref RoomRef) (*types.Room, error) {
	switch ref.Kind {
	case domainchat.RoomKindGeneral:
		return s.EnsureGeneral(dbc, ref.AccountID)
	case domainchat.RoomKindTeam:
		team := ref.Team
		if team == nil {
			t, err := s.dir.FindTeam(ctxOf(dbc), ref.TeamID)
			if err != nil {
				return nil, domainchat.Wrap(domainchat.CodeStorage, "chat.room.ensure", err)
			}
			if t == nil {
				return nil, domainchat.NotFound("chat.room.ensure", "team not found")
			}
			team = t
		}
		return s.EnsureTeam(dbc, ref.AccountID, team)
	case domainchat.RoomKindDirect:
		if ref.RoomID > 0 {
			room, err := s.rooms.GetByID(dbc, ref.AccountID, ref.RoomID)
			if err != nil {
				return nil, db.MapError("chat.room.ensure", err)
			}
			if room != nil && room.Kind == domainchat.RoomKindDirect {
				return room, nil
			}
		}
		lo, hi, ok := domainchat.ParseDirectKey(ref.CanonicalKey)
		if !ok {
			return nil, domainchat.Validation("chat.room.ensure", "invalid direct room key")
		}
		return s.EnsureDirect(dbc, ref.AccountID, lo, hi)
	default:
		return nil, domainchat.Validation("chat.room.ensure", "unknown room kind")
	}
}

func (s *roomStore) Find(dbc dbctx.Context, ref RoomRef) (*types.Room, error) {
	if ref.RoomID > 0 {
		room, err := s.rooms.GetByID(dbc, ref.AccountID, ref.RoomID)
		return room, db.MapError("chat.room.find", err)
	}
	room, err := s.rooms.GetByKey(dbc, ref.AccountID, ref.CanonicalKey)
	return room, db.MapError("chat.room.find", err)
}

func (s *roomStore) Get(dbc dbctx.Context, accountID, roomID int64) (*types.Room, error) {
	room, err := s.rooms.GetByID(dbc, accountID, roomID)
	if err != nil {
		return nil, db.MapError("chat.room.get", err)
	}
	if room == nil {
		return nil, domainchat.NotFound("chat.room.get", "room not found")
	}
	return room, nil
}

func (s *roomStore) ListDirect(dbc dbctx.Context, accountID, userID int64) ([]*types.Room, error) {
	rooms, err := s.rooms.ListDirectForUser(dbc, accountID, userID)
	return rooms, db.MapError("chat.room.list_direct", err)
}

// getOrCreate inserts with ON CONFLICT DO NOTHING and re-reads on a lost race.
func (s *roomStore) getOrCreate(dbc dbctx.Context, op string, candidate *types.Room) (*types.Room, error) {
	existing, err := s.rooms.GetByKey(dbc, candidate.AccountID, candidate.CanonicalKey)
	if err != nil {
		return nil, db.MapError(op, err)
	}
	if existing != nil {
		return existing, nil
	}
	created, err := s.rooms.CreateIfAbsent(dbc, candidate)
	if err != nil && !db.IsUniqueViolation(err) {
		return nil, db.MapError(op, err)
	}
	if created {
		s.metrics.IncRoomCreated(string(candidate.Kind))
		s.log.Debug("room created",
			"account_id", candidate.AccountID,
			"room_id", candidate.ID,
			"canonical_key", candidate.CanonicalKey,
		)
		return candidate, nil
	}
	existing, err = s.rooms.GetByKey(dbc, candidate.AccountID, candidate.CanonicalKey)
	if err != nil {
		return nil, db.MapError(op, err)
	}
	if existing == nil {
		return nil, domainchat.NewError(domainchat.CodeStorage, op, "room vanished after conflicting insert", nil)
	}
	return existing, nil
}

func (s *roomStore) AddMember(dbc dbctx.Context, room *types.Room, userID int64) error {
	const op = "chat.room.add_member"
	if room == nil || userID <= 0 {
		return domainchat.Validation(op, "room and user are required")
	}
	_, err := s.members.AddIfAbsent(dbc, &types.Membership{RoomID: room.ID, UserID: userID, AccountID: room.AccountID})
	if err != nil && !db.IsUniqueViolation(err) {
		return db.MapError(op, err)
	}
	return nil
}

func (s *roomStore) RemoveMember(dbc dbctx.Context, room *types.Room, userID int64) error {
	if room == nil {
		return domainchat.Validation("chat.room.remove_member", "room is required")
	}
	return db.MapError("chat.room.remove_member", s.members.Remove(dbc, room.ID, userID))
}

func (s *roomStore) IsMember(dbc dbctx.Context, room *types.Room, userID int64) (bool, error) {
	if room == nil {
		return false, nil
	}
	m, err := s.members.Get(dbc, room.ID, userID)
	if err != nil {
		return false, db.MapError("chat.room.is_member", err)
	}
	return m != nil, nil
}

// MarkRead joins the room when needed and moves the read marker to at.
func (s *roomStore) MarkRead(dbc dbctx.Context, room *types.Room, userID int64, at time.Time) (*types.Membership, error) {
	const op = "chat.room.mark_read"
	if err := s.AddMember(dbc, room, userID); err != nil {
		return nil, err
	}
	if err := s.members.SetLastReadAt(dbc, room.ID, userID, at.UTC()); err != nil {
		return nil, db.MapError(op, err)
	}
	m, err := s.members.Get(dbc, room.ID, userID)
	if err != nil {
		return nil, db.MapError(op, err)
	}
	if m == nil {
		return nil, domainchat.NewError(domainchat.CodeStorage, op, "membership missing after mark", nil)
	}
	return m, nil
}
