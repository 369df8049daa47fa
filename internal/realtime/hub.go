package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/teamchat-backend/internal/domain/chat"
	"github.com/yungbote/teamchat-backend/internal/observability"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
)

const DefaultBufferSize = 64

type HubConfig struct {
	BufferSize int
	Metrics    *observability.Metrics
}

// accountChannel serializes fan-out for one account so every subscriber
// observes envelopes in publish order.
type accountChannel struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

// Hub is the in-process broadcast point. It never blocks a publisher on a
// slow subscriber: a full buffer drops the envelope for that subscriber only.
type Hub struct {
	log        *logger.Logger
	metrics    *observability.Metrics
	bufferSize int

	mu       sync.RWMutex
	channels map[int64]*accountChannel
}

func NewHub(log *logger.Logger, cfg HubConfig) *Hub {
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Hub{
		log:        log.With("component", "RealtimeHub"),
		metrics:    cfg.Metrics,
		bufferSize: size,
		channels:   make(map[int64]*accountChannel),
	}
}

func (h *Hub) channel(accountID int64, create bool) *accountChannel {
	h.mu.RLock()
	ch := h.channels[accountID]
	h.mu.RUnlock()
	if ch != nil || !create {
		return ch
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch = h.channels[accountID]; ch == nil {
		ch = &accountChannel{subs: make(map[*Subscriber]struct{})}
		h.channels[accountID] = ch
	}
	return ch
}

func (h *Hub) Subscribe(accountID, userID int64, transport string) *Subscriber {
	sub := &Subscriber{
		ID:        uuid.NewString(),
		AccountID: accountID,
		UserID:    userID,
		Transport: transport,
		outbound:  make(chan chat.Envelope, h.bufferSize),
		done:      make(chan struct{}),
	}
	ch := h.channel(accountID, true)
	ch.mu.Lock()
	ch.subs[sub] = struct{}{}
	ch.mu.Unlock()
	h.metrics.SubscriberAdded()
	h.log.Debug("subscriber added",
		"subscriber_id", sub.ID,
		"channel", chat.AccountChannel(accountID),
		"user_id", userID,
		"transport", transport,
	)
	return sub
}

// Unsubscribe is idempotent. The subscriber's outbound channel is closed once
// no further envelope can be delivered to it.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	ch := h.channel(sub.AccountID, false)
	if ch == nil {
		return
	}
	ch.mu.Lock()
	_, ok := ch.subs[sub]
	if ok {
		delete(ch.subs, sub)
		sub.close()
	}
	ch.mu.Unlock()
	if !ok {
		return
	}
	h.metrics.SubscriberRemoved()
	h.log.Debug("subscriber removed",
		"subscriber_id", sub.ID,
		"channel", chat.AccountChannel(sub.AccountID),
		"dropped", sub.Dropped(),
	)
}

// Publish fans env out to the account's subscribers and returns how many
// accepted it.
func (h *Hub) Publish(accountID int64, env chat.Envelope) int {
	ch := h.channel(accountID, false)
	if ch == nil {
		return 0
	}
	delivered := 0
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for sub := range ch.subs {
		if sub.offer(env) {
			delivered++
			continue
		}
		h.metrics.IncEnvelopeDropped(sub.Transport)
		h.log.Warn("dropping envelope; outbound buffer full",
			"subscriber_id", sub.ID,
			"channel", chat.AccountChannel(accountID),
			"event", env.Event,
			"message_id", env.Message.ID,
		)
	}
	h.metrics.IncEnvelopePublished()
	return delivered
}

func (h *Hub) SubscriberCount(accountID int64) int {
	ch := h.channel(accountID, false)
	if ch == nil {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.subs)
}

// Close drops every subscriber, ending their serve loops.
func (h *Hub) Close() {
	h.mu.RLock()
	chans := make([]*accountChannel, 0, len(h.channels))
	for _, ch := range h.channels {
		chans = append(chans, ch)
	}
	h.mu.RUnlock()
	for _, ch := range chans {
		ch.mu.Lock()
		for sub := range ch.subs {
			delete(ch.subs, sub)
			sub.close()
			h.metrics.SubscriberRemoved()
		}
		ch.mu.Unlock()
	}
}
