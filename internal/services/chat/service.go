package chat

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	chatrepo "github.com/yungbote/teamchat-backend/internal/data/repos/chat"
	types "github.com/yungbote/teamchat-backend/internal/domain"
	domainchat "github.com/yungbote/teamchat-backend/internal/domain/chat"
	"github.com/yungbote/teamchat-backend/internal/domain/identity"
	"github.com/yungbote/teamchat-backend/internal/observability"
	"github.com/yungbote/teamchat-backend/internal/platform/attachments"
	"github.com/yungbote/teamchat-backend/internal/platform/dbctx"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
	"github.com/yungbote/teamchat-backend/internal/services/directory"
)

const unknownSenderName = "Unknown"

type SendMessageInput struct {
	RoomKind        string
	RoomIdentifier  string
	Content         string
	ClientMessageID string
	Attachments     []attachments.Upload
	Metadata        map[string]any
}

type ListMessagesInput struct {
	RoomKind       string
	RoomIdentifier string
	Query          ListQuery
}

type ChatService interface {
	ListRooms(ctx context.Context, caller identity.Identity) (*RoomsListing, error)
	OpenDirectRoom(ctx context.Context, caller identity.Identity, targetUserID int64) (*DirectRoomView, error)
	// ListMessages answers an unresolvable room with an empty page whose meta
	// carries the reason; only storage failures are returned as errors.
	ListMessages(ctx context.Context, caller identity.Identity, in ListMessagesInput) (*MessagesPage, error)
	SendMessage(ctx context.Context, caller identity.Identity, in SendMessageInput) (*domainchat.MessageView, error)
	EditMessage(ctx context.Context, caller identity.Identity, messageID int64, content string) (*domainchat.MessageView, error)
	DeleteMessage(ctx context.Context, caller identity.Identity, messageID int64) (*domainchat.MessageView, error)
	MarkRead(ctx context.Context, caller identity.Identity, roomKind, roomIdentifier string) (*ReadReceipt, error)
}

type chatService struct {
	log      *logger.Logger
	resolver Resolver
	rooms    RoomStore
	ledger   Ledger
	dir      directory.Directory
	notify   Notifier
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewChatService(
	log *logger.Logger,
	resolver Resolver,
	rooms RoomStore,
	ledger Ledger,
	dir directory.Directory,
	notify Notifier,
	metrics *observability.Metrics,
) ChatService {
	return &chatService{
		log:      log.With("service", "ChatService"),
		resolver: resolver,
		rooms:    rooms,
		ledger:   ledger,
		dir:      dir,
		notify:   notify,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *chatService) ListRooms(ctx context.Context, caller identity.Identity) (*RoomsListing, error) {
	const op = "chat.list_rooms"
	if !caller.Valid() {
		return nil, domainchat.Validation(op, "caller is required")
	}
	dbc := dbctx.Context{Ctx: ctx}
	accountID := caller.AccountID

	general, err := s.rooms.EnsureGeneral(dbc, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.rooms.AddMember(dbc, general, caller.ID); err != nil {
		return nil, err
	}
	generalUnread, err := s.ledger.UnreadCount(dbc, general, caller.ID)
	if err != nil {
		return nil, err
	}
	out := &RoomsListing{
		General: GeneralRoomView{
			ID:          domainchat.GeneralChatID,
			RoomID:      general.ID,
			Name:        general.Name,
			Description: general.Description,
			Type:        domainchat.RoomKindGeneral,
			RoomType:    domainchat.RoomKindGeneral,
			Identifier:  domainchat.GeneralChatID,
			UnreadCount: generalUnread,
		},
		Teams:          []TeamRoomView{},
		DirectMessages: []DirectPeerView{},
	}

	teams, err := s.dir.ListTeams(ctx, accountID)
	if err != nil {
		return nil, domainchat.Wrap(domainchat.CodeStorage, op, err)
	}
	for _, team := range teams {
		memberIDs, err := s.dir.TeamMembers(ctx, team.ID)
		if err != nil {
			return nil, domainchat.Wrap(domainchat.CodeStorage, op, err)
		}
		view := TeamRoomView{
			ID:          team.ID,
			Name:        team.Name,
			Description: team.Description,
			Type:        domainchat.RoomKindTeam,
			RoomType:    domainchat.RoomKindTeam,
			Identifier:  itoa(team.ID),
			MemberCount: len(memberIDs),
		}
		room, err := s.rooms.Find(dbc, RoomRef{AccountID: accountID, CanonicalKey: domainchat.TeamCanonicalKey(team.ID)})
		if err != nil {
			return nil, err
		}
		if room != nil {
			id := room.ID
			view.RoomID = &id
			if view.UnreadCount, err = s.ledger.UnreadCount(dbc, room, caller.ID); err != nil {
				return nil, err
			}
		}
		out.Teams = append(out.Teams, view)
	}

	directRooms, err := s.rooms.ListDirect(dbc, accountID, caller.ID)
	if err != nil {
		return nil, err
	}
	byPeer := make(map[int64]*types.Room, len(directRooms))
	for _, r := range directRooms {
		byPeer[r.Counterpart(caller.ID)] = r
	}

	peers, err := s.dir.ListAccountUsers(ctx, accountID)
	if err != nil {
		return nil, domainchat.Wrap(domainchat.CodeStorage, op, err)
	}
	seen := map[int64]bool{caller.ID: true}
	for _, p := range peers {
		if seen[p.Identity.ID] {
			continue
		}
		seen[p.Identity.ID] = true
		view, err := s.peerView(dbc, caller, p.Identity, p.AvailabilityStatus, byPeer[p.Identity.ID])
		if err != nil {
			return nil, err
		}
		out.DirectMessages = append(out.DirectMessages, view)
	}
	if caller.IsSuperUser() {
		supers, err := s.dir.ListSuperUsers(ctx, accountID)
		if err != nil {
			return nil, domainchat.Wrap(domainchat.CodeStorage, op, err)
		}
		for _, su := range supers {
			if seen[su.ID] {
				continue
			}
			seen[su.ID] = true
			view, err := s.peerView(dbc, caller, su, "", byPeer[su.ID])
			if err != nil {
				return nil, err
			}
			out.DirectMessages = append(out.DirectMessages, view)
		}
	}
	sort.SliceStable(out.DirectMessages, func(i, j int) bool {
		a, b := out.DirectMessages[i], out.DirectMessages[j]
		if !strings.EqualFold(a.Name, b.Name) {
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (s *chatService) peerView(dbc dbctx.Context, caller, peer identity.Identity, availability string, room *types.Room) (DirectPeerView, error) {
	view := DirectPeerView{
		ID:                 peer.ID,
		Name:               peer.Name(),
		Email:              peer.Email,
		AvatarURL:          peer.AvatarURL,
		AvailabilityStatus: availability,
		Kind:               string(peer.Kind),
		Type:               domainchat.RoomKindDirect,
		RoomType:           domainchat.RoomKindDirect,
		Identifier:         itoa(peer.ID),
	}
	if room == nil {
		return view, nil
	}
	id := room.ID
	view.RoomID = &id
	n, err := s.ledger.UnreadCount(dbc, room, caller.ID)
	if err != nil {
		return DirectPeerView{}, err
	}
	view.UnreadCount = n
	return view, nil
}

func (s *chatService) OpenDirectRoom(ctx context.Context, caller identity.Identity, targetUserID int64) (*DirectRoomView, error) {
	const op = "chat.open_direct"
	if !caller.Valid() {
		return nil, domainchat.Validation(op, "caller is required")
	}
	if targetUserID <= 0 {
		return nil, domainchat.Validation(op, "target_user_id is required")
	}
	if targetUserID == caller.ID {
		return nil, domainchat.Validation(op, "cannot open a direct room with yourself")
	}
	target, err := s.dir.FindAccountUser(ctx, caller.AccountID, targetUserID)
	if err != nil {
		return nil, domainchat.Wrap(domainchat.CodeStorage, op, err)
	}
	if target == nil {
		return nil, domainchat.NotFound(op, "user not found")
	}
	room, err := s.rooms.EnsureDirect(dbctx.Context{Ctx: ctx}, caller.AccountID, caller.ID, targetUserID)
	if err != nil {
		return nil, err
	}
	participants := []ParticipantView{
		{ID: caller.ID, Name: caller.Name(), Email: caller.Email, AvatarURL: caller.AvatarURL},
		{ID: target.ID, Name: target.Name(), Email: target.Email, AvatarURL: target.AvatarURL},
	}
	sort.Slice(participants, func(i, j int) bool { return participants[i].ID < participants[j].ID })
	return &DirectRoomView{
		ID:           room.ID,
		RoomID:       room.ID,
		Name:         room.Name,
		Type:         domainchat.RoomKindDirect,
		RoomType:     domainchat.RoomKindDirect,
		Identifier:   itoa(targetUserID),
		TargetUserID: targetUserID,
		Participants: participants,
	}, nil
}

func (s *chatService) ListMessages(ctx context.Context, caller identity.Identity, in ListMessagesInput) (*MessagesPage, error) {
	limit := in.Query.Limit
	empty := func(reason string) *MessagesPage {
		return &MessagesPage{
			Data: []domainchat.MessageView{},
			Meta: MessagesMeta{PerPage: chatrepo.ClampLimit(limit), Error: reason},
		}
	}
	kind, ok := domainchat.ParseRoomKind(in.RoomKind)
	if !ok {
		return empty("room not found"), nil
	}
	ref, err := s.resolver.Resolve(ctx, kind, in.RoomIdentifier, caller)
	if err != nil {
		if isResolutionMiss(err) {
			return empty("room not found"), nil
		}
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	room, err := s.rooms.Ensure(dbc, ref)
	if err != nil {
		if isResolutionMiss(err) {
			return empty("room not found"), nil
		}
		return nil, err
	}
	if room.Kind == domainchat.RoomKindGeneral {
		if err := s.rooms.AddMember(dbc, room, caller.ID); err != nil {
			return nil, err
		}
	}

	page, err := s.ledger.List(dbc, room, in.Query)
	if err != nil {
		return nil, err
	}
	views := s.render(ctx, caller, room, page.Messages)
	return &MessagesPage{
		Data: views,
		Meta: MessagesMeta{
			RoomID:     room.ID,
			TotalCount: page.TotalCount,
			PerPage:    page.Limit,
			HasMore:    page.HasMore,
		},
	}, nil
}

func (s *chatService) SendMessage(ctx context.Context, caller identity.Identity, in SendMessageInput) (*domainchat.MessageView, error) {
	const op = "chat.send_message"
	ctx, span := observability.StartSpan(ctx, "chat.SendMessage",
		attribute.String("room.kind", in.RoomKind),
		attribute.Int64("account.id", caller.AccountID),
	)
	defer span.End()

	view, err := s.sendMessage(ctx, caller, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domainchat.CodeOf(err)))
		s.log.Debug("send message failed", "op", op, "account_id", caller.AccountID, "user_id", caller.ID, "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("message.id", view.ID), attribute.Int64("room.id", view.RoomID))
	return view, nil
}

func (s *chatService) sendMessage(ctx context.Context, caller identity.Identity, in SendMessageInput) (*domainchat.MessageView, error) {
	const op = "chat.send_message"
	if !caller.Valid() {
		return nil, domainchat.Validation(op, "caller is required")
	}
	kind, ok := domainchat.ParseRoomKind(in.RoomKind)
	if !ok {
		return nil, domainchat.Validation(op, "unknown room kind")
	}
	if err := domainchat.ValidateContent(in.Content, len(in.Attachments)); err != nil {
		return nil, err
	}
	for _, up := range in.Attachments {
		if err := attachments.Validate(up); err != nil {
			return nil, domainchat.Validation(op, err.Error())
		}
	}
	ref, err := s.resolver.Resolve(ctx, kind, in.RoomIdentifier, caller)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	room, err := s.rooms.Ensure(dbc, ref)
	if err != nil {
		return nil, err
	}
	if err := s.rooms.AddMember(dbc, room, caller.ID); err != nil {
		return nil, err
	}

	msg, err := s.ledger.Append(dbc, AppendInput{
		Room:            room,
		SenderID:        caller.ID,
		Content:         in.Content,
		Attachments:     in.Attachments,
		Metadata:        in.Metadata,
		ClientMessageID: in.ClientMessageID,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncMessageAppended(string(room.Kind))

	view := domainchat.NewMessageView(msg, room, senderOf(caller), caller.ID)
	s.notify.MessageCreated(ctx, room, view)
	return &view, nil
}

func (s *chatService) EditMessage(ctx context.Context, caller identity.Identity, messageID int64, content string) (*domainchat.MessageView, error) {
	dbc := dbctx.Context{Ctx: ctx}
	_, room, err := s.roomOfMessage(dbc, caller, messageID)
	if err != nil {
		return nil, err
	}
	msg, err := s.ledger.Edit(dbc, messageID, content, caller)
	if err != nil {
		return nil, err
	}
	s.metrics.IncMessageEdited()
	view := domainchat.NewMessageView(msg, room, senderOf(caller), caller.ID)
	s.notify.MessageUpdated(ctx, room, view)
	return &view, nil
}

func (s *chatService) DeleteMessage(ctx context.Context, caller identity.Identity, messageID int64) (*domainchat.MessageView, error) {
	dbc := dbctx.Context{Ctx: ctx}
	before, room, err := s.roomOfMessage(dbc, caller, messageID)
	if err != nil {
		return nil, err
	}
	alreadyDeleted := before.IsDeleted()
	msg, err := s.ledger.SoftDelete(dbc, messageID, caller)
	if err != nil {
		return nil, err
	}
	views := s.render(ctx, caller, room, []*types.Message{msg})
	view := views[0]
	if !alreadyDeleted {
		s.metrics.IncMessageDeleted()
		s.notify.MessageDeleted(ctx, room, view)
	}
	return &view, nil
}

// roomOfMessage hides messages of other accounts behind NotFound.
func (s *chatService) roomOfMessage(dbc dbctx.Context, caller identity.Identity, messageID int64) (*types.Message, *types.Room, error) {
	const op = "chat.message.room"
	if !caller.Valid() {
		return nil, nil, domainchat.Validation(op, "caller is required")
	}
	msg, err := s.ledger.Get(dbc, messageID)
	if err != nil {
		return nil, nil, err
	}
	if msg.AccountID != caller.AccountID {
		return nil, nil, domainchat.NotFound(op, "message not found")
	}
	room, err := s.rooms.Get(dbc, caller.AccountID, msg.RoomID)
	if err != nil {
		return nil, nil, err
	}
	return msg, room, nil
}

func (s *chatService) MarkRead(ctx context.Context, caller identity.Identity, roomKind, roomIdentifier string) (*ReadReceipt, error) {
	const op = "chat.mark_read"
	kind, ok := domainchat.ParseRoomKind(roomKind)
	if !ok {
		return nil, domainchat.Validation(op, "unknown room kind")
	}
	ref, err := s.resolver.Resolve(ctx, kind, roomIdentifier, caller)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	room, err := s.rooms.Ensure(dbc, ref)
	if err != nil {
		return nil, err
	}
	m, err := s.rooms.MarkRead(dbc, room, caller.ID, s.now())
	if err != nil {
		return nil, err
	}
	unread, err := s.ledger.UnreadCount(dbc, room, caller.ID)
	if err != nil {
		return nil, err
	}
	return &ReadReceipt{
		RoomID:      room.ID,
		LastReadAt:  domainchat.FormatTime(m.ReadMark()),
		UnreadCount: unread,
	}, nil
}

// render resolves sender profiles in one batch; unknown senders still render.
func (s *chatService) render(ctx context.Context, caller identity.Identity, room *types.Room, msgs []*types.Message) []domainchat.MessageView {
	out := make([]domainchat.MessageView, 0, len(msgs))
	if len(msgs) == 0 {
		return out
	}
	ids := make([]int64, 0, len(msgs))
	seen := map[int64]bool{}
	for _, m := range msgs {
		if !seen[m.SenderID] {
			seen[m.SenderID] = true
			ids = append(ids, m.SenderID)
		}
	}
	profiles, err := s.dir.Profiles(ctx, caller.AccountID, ids)
	if err != nil {
		s.log.Warn("sender profile lookup failed", "account_id", caller.AccountID, "room_id", room.ID, "error", err)
		profiles = nil
	}
	for _, m := range msgs {
		sender := domainchat.SenderView{ID: m.SenderID, Name: unknownSenderName}
		if m.SenderID == caller.ID {
			sender = senderOf(caller)
		} else if p, ok := profiles[m.SenderID]; ok {
			sender = senderOf(p)
		}
		out = append(out, domainchat.NewMessageView(m, room, sender, caller.ID))
	}
	return out
}

func senderOf(id identity.Identity) domainchat.SenderView {
	name := id.Name()
	if name == "" {
		name = unknownSenderName
	}
	return domainchat.SenderView{ID: id.ID, Name: name, AvatarURL: id.AvatarURL}
}

func isResolutionMiss(err error) bool {
	switch domainchat.CodeOf(err) {
	case domainchat.CodeNotFound, domainchat.CodeValidation, domainchat.CodeInvalidState:
		return true
	default:
		return false
	}
}

