package chat

import (
	"context"
	"time"

	types "github.com/yungbote/teamchat-backend/internal/domain"
	domainchat "github.com/yungbote/teamchat-backend/internal/domain/chat"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
)

// Notifier turns persisted changes into envelopes. Failures are logged and
// never surface to the caller: the ledger is already authoritative.
type Notifier interface {
	MessageCreated(ctx context.Context, room *types.Room, view domainchat.MessageView)
	MessageUpdated(ctx context.Context, room *types.Room, view domainchat.MessageView)
	MessageDeleted(ctx context.Context, room *types.Room, view domainchat.MessageView)
}

type notifier struct {
	log  *logger.Logger
	emit EnvelopeEmitter
	now  func() time.Time
}

func NewNotifier(log *logger.Logger, emit EnvelopeEmitter) Notifier {
	return &notifier{
		log:  log.With("service", "ChatNotifier"),
		emit: emit,
		now:  time.Now,
	}
}

func (n *notifier) MessageCreated(ctx context.Context, room *types.Room, view domainchat.MessageView) {
	n.send(ctx, domainchat.EventNewMessage, room, view)
}

func (n *notifier) MessageUpdated(ctx context.Context, room *types.Room, view domainchat.MessageView) {
	n.send(ctx, domainchat.EventMessageUpdated, room, view)
}

func (n *notifier) MessageDeleted(ctx context.Context, room *types.Room, view domainchat.MessageView) {
	n.send(ctx, domainchat.EventMessageDeleted, room, view)
}

func (n *notifier) send(ctx context.Context, event domainchat.EnvelopeEvent, room *types.Room, view domainchat.MessageView) {
	if n == nil || n.emit == nil || room == nil {
		return
	}
	env := BuildEnvelope(event, room, view, n.now())
	if err := n.emit.Emit(ctx, env); err != nil {
		n.log.Warn("envelope publish failed",
			"event", event,
			"account_id", room.AccountID,
			"room_id", room.ID,
			"message_id", view.ID,
			"error", err,
		)
	}
}

// BuildEnvelope addresses the room by its canonical key; chat_id is the one
// the sender sees, so direct-room receivers match on room_id instead.
func BuildEnvelope(event domainchat.EnvelopeEvent, room *types.Room, view domainchat.MessageView, at time.Time) domainchat.Envelope {
	return domainchat.Envelope{
		Event:          event,
		AccountID:      room.AccountID,
		RoomKind:       room.Kind,
		RoomIdentifier: room.CanonicalKey,
		ChatType:       room.Kind,
		ChatID:         view.ChatID,
		Message:        view,
		Timestamp:      at.UTC().Format(time.RFC3339),
	}
}
