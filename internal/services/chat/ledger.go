package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/teamchat-backend/internal/data/db"
	"github.com/yungbote/teamchat-backend/internal/data/repos"
	chatrepo "github.com/yungbote/teamchat-backend/internal/data/repos/chat"
	types "github.com/yungbote/teamchat-backend/internal/domain"
	domainchat "github.com/yungbote/teamchat-backend/internal/domain/chat"
	"github.com/yungbote/teamchat-backend/internal/domain/identity"
	"github.com/yungbote/teamchat-backend/internal/platform/attachments"
	"github.com/yungbote/teamchat-backend/internal/platform/dbctx"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
)

type AppendInput struct {
	Room            *types.Room
	SenderID        int64
	Content         string
	Attachments     []attachments.Upload
	Metadata        map[string]any
	ClientMessageID string
}

// ListQuery pages backwards from BeforeID unless AfterID is set.
type ListQuery struct {
	BeforeID int64
	AfterID  int64
	Limit    int
}

type Page struct {
	Messages   []*types.Message
	TotalCount int64
	Limit      int
	HasMore    bool
}

type Ledger interface {
	Append(dbc dbctx.Context, in AppendInput) (*types.Message, error)
	Get(dbc dbctx.Context, messageID int64) (*types.Message, error)
	List(dbc dbctx.Context, room *types.Room, q ListQuery) (Page, error)
	SoftDelete(dbc dbctx.Context, messageID int64, actor identity.Identity) (*types.Message, error)
	Edit(dbc dbctx.Context, messageID int64, content string, actor identity.Identity) (*types.Message, error)
	ActiveCount(dbc dbctx.Context, room *types.Room) (int64, error)
	// UnreadCount is 0 for users without a membership in room.
	UnreadCount(dbc dbctx.Context, room *types.Room, userID int64) (int64, error)
}

type ledger struct {
	log         *logger.Logger
	messages    repos.MessageRepo
	attachments repos.AttachmentRepo
	members     repos.MembershipRepo
	store       attachments.Store
	tx          db.TxRunner
	now         func() time.Time
}

func NewLedger(
	log *logger.Logger,
	messages repos.MessageRepo,
	attachmentRepo repos.AttachmentRepo,
	members repos.MembershipRepo,
	store attachments.Store,
	tx db.TxRunner,
) Ledger {
	return &ledger{
		log:         log.With("service", "MessageLedger"),
		messages:    messages,
		attachments: attachmentRepo,
		members:     members,
		store:       store,
		tx:          tx,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (l *ledger) Append(dbc dbctx.Context, in AppendInput) (*types.Message, error) {
	const op = "chat.ledger.append"
	if in.Room == nil || in.Room.ID <= 0 {
		return nil, domainchat.Validation(op, "room is required")
	}
	if in.SenderID <= 0 {
		return nil, domainchat.Validation(op, "sender is required")
	}
	if err := domainchat.ValidateContent(in.Content, len(in.Attachments)); err != nil {
		return nil, err
	}
	if len(in.Attachments) > 0 && l.store == nil {
		return nil, domainchat.InvalidState(op, "attachments are not enabled")
	}
	clientID := strings.TrimSpace(in.ClientMessageID)
	if err := domainchat.ValidateClientMessageID(clientID); err != nil {
		return nil, err
	}
	if clientID != "" {
		existing, err := l.messages.GetByClientID(dbc, in.Room.ID, clientID)
		if err != nil {
			return nil, db.MapError(op, err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	content := strings.TrimSpace(in.Content)
	msg := &types.Message{
		AccountID:       in.Room.AccountID,
		RoomID:          in.Room.ID,
		SenderID:        in.SenderID,
		Content:         &content,
		MessageType:     domainchat.TypeFor(content, len(in.Attachments)),
		Metadata:        encodeMetadata(in.Metadata),
		ClientMessageID: clientID,
		CreatedAt:       l.now(),
	}

	var stored []string
	err := db.InTxOrJoin(l.tx, dbc, func(txc dbctx.Context) error {
		if err := l.messages.Create(txc, msg); err != nil {
			return err
		}
		if len(in.Attachments) == 0 {
			return nil
		}
		rows := make([]*types.Attachment, 0, len(in.Attachments))
		for _, up := range in.Attachments {
			blob, err := l.store.Put(ctxOf(txc), msg.ID, up)
			if err != nil {
				return domainchat.NewError(domainchat.CodeStorage, op, "attachment upload failed", err)
			}
			stored = append(stored, blob.Key)
			if blob.ThumbKey != "" {
				stored = append(stored, blob.ThumbKey)
			}
			rows = append(rows, &types.Attachment{
				MessageID:   msg.ID,
				RoomID:      msg.RoomID,
				FileName:    attachments.SanitizeFileName(up.FileName),
				URL:         blob.URL,
				ThumbURL:    blob.ThumbURL,
				ByteSize:    blob.ByteSize,
				ContentType: blob.ContentType,
				StorageKey:  blob.Key,
				CreatedAt:   msg.CreatedAt,
			})
		}
		created, err := l.attachments.Create(txc, rows)
		if err != nil {
			return err
		}
		msg.Attachments = make([]types.Attachment, 0, len(created))
		for _, a := range created {
			msg.Attachments = append(msg.Attachments, *a)
		}
		return nil
	})
	if err != nil {
		l.discardBlobs(ctxOf(dbc), stored)
		if clientID != "" && db.IsUniqueViolation(err) {
			// A concurrent resend with the same client id won the insert.
			existing, getErr := l.messages.GetByClientID(dbc, in.Room.ID, clientID)
			if getErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, db.MapError(op, err)
	}
	if msg.Attachments == nil {
		msg.Attachments = []types.Attachment{}
	}
	return msg, nil
}

// discardBlobs is best effort; orphans are only logged.
func (l *ledger) discardBlobs(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := l.store.Delete(ctx, key); err != nil {
			l.log.Warn("attachment cleanup failed", "storage_key", key, "error", err)
		}
	}
}

func encodeMetadata(md map[string]any) datatypes.JSON {
	if len(md) == 0 {
		return datatypes.JSON([]byte("{}"))
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(raw)
}

func (l *ledger) Get(dbc dbctx.Context, messageID int64) (*types.Message, error) {
	const op = "chat.ledger.get"
	msg, err := l.messages.GetByID(dbc, messageID)
	if err != nil {
		return nil, db.MapError(op, err)
	}
	if msg == nil {
		return nil, domainchat.NotFound(op, "message not found")
	}
	return msg, nil
}

func (l *ledger) List(dbc dbctx.Context, room *types.Room, q ListQuery) (Page, error) {
	const op = "chat.ledger.list"
	if room == nil {
		return Page{}, domainchat.Validation(op, "room is required")
	}
	limit := chatrepo.ClampLimit(q.Limit)
	total, err := l.messages.CountActive(dbc, room.ID)
	if err != nil {
		return Page{}, db.MapError(op, err)
	}
	page := Page{TotalCount: total, Limit: limit}

	if q.AfterID > 0 {
		msgs, err := l.messages.ListAfter(dbc, room.ID, q.AfterID, limit)
		if err != nil {
			return Page{}, db.MapError(op, err)
		}
		page.Messages = msgs
		if n := len(msgs); n > 0 {
			upTo, err := l.messages.CountActiveBefore(dbc, room.ID, msgs[n-1].ID+1)
			if err != nil {
				return Page{}, db.MapError(op, err)
			}
			page.HasMore = total > upTo
		}
		return page, nil
	}

	msgs, err := l.messages.ListWindow(dbc, room.ID, q.BeforeID, limit)
	if err != nil {
		return Page{}, db.MapError(op, err)
	}
	page.Messages = msgs
	if len(msgs) > 0 {
		older, err := l.messages.CountActiveBefore(dbc, room.ID, msgs[0].ID)
		if err != nil {
			return Page{}, db.MapError(op, err)
		}
		page.HasMore = older > 0
	}
	return page, nil
}

// SoftDelete is allowed for the sender and for super users. Deleting twice is a no-op.
func (l *ledger) SoftDelete(dbc dbctx.Context, messageID int64, actor identity.Identity) (*types.Message, error) {
	const op = "chat.ledger.delete"
	msg, err := l.Get(dbc, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != actor.ID && !actor.IsSuperUser() {
		return nil, domainchat.Forbidden(op, "only the sender can delete this message")
	}
	if msg.IsDeleted() {
		return msg, nil
	}
	now := l.now()
	actorID := actor.ID
	if err := l.messages.UpdateFields(dbc, msg.ID, map[string]interface{}{
		"content":    nil,
		"deleted_at": now,
		"deleted_by": actorID,
	}); err != nil {
		return nil, db.MapError(op, err)
	}
	msg.Content = nil
	msg.DeletedAt = &now
	msg.DeletedBy = &actorID
	return msg, nil
}

func (l *ledger) Edit(dbc dbctx.Context, messageID int64, content string, actor identity.Identity) (*types.Message, error) {
	const op = "chat.ledger.edit"
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domainchat.Validation(op, "content is required")
	}
	msg, err := l.Get(dbc, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != actor.ID {
		return nil, domainchat.Forbidden(op, "only the sender can edit this message")
	}
	if msg.IsDeleted() {
		return nil, domainchat.InvalidState(op, "message was deleted")
	}
	now := l.now()
	actorID := actor.ID
	if err := l.messages.UpdateFields(dbc, msg.ID, map[string]interface{}{
		"content":      content,
		"message_type": domainchat.MessageTypeText,
		"edited_at":    now,
		"edited_by":    actorID,
	}); err != nil {
		return nil, db.MapError(op, err)
	}
	msg.Content = &content
	msg.MessageType = domainchat.MessageTypeText
	msg.EditedAt = &now
	msg.EditedBy = &actorID
	return msg, nil
}

func (l *ledger) ActiveCount(dbc dbctx.Context, room *types.Room) (int64, error) {
	if room == nil {
		return 0, nil
	}
	n, err := l.messages.CountActive(dbc, room.ID)
	return n, db.MapError("chat.ledger.active_count", err)
}

func (l *ledger) UnreadCount(dbc dbctx.Context, room *types.Room, userID int64) (int64, error) {
	const op = "chat.ledger.unread_count"
	if room == nil {
		return 0, nil
	}
	m, err := l.members.Get(dbc, room.ID, userID)
	if err != nil {
		return 0, db.MapError(op, err)
	}
	if m == nil {
		return 0, nil
	}
	n, err := l.messages.CountUnread(dbc, room.ID, userID, m.ReadMark())
	return n, db.MapError(op, err)
}
