package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/yungbote/teamchat-backend/internal/domain/chat"
)

const (
	TransportWebsocket = "websocket"
	TransportSSE       = "sse"
)

type Subscriber struct {
	ID        string
	AccountID int64
	UserID    int64
	Transport string

	outbound  chan chat.Envelope
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

// Outbound is closed after the subscriber is removed from the hub.
func (s *Subscriber) Outbound() <-chan chat.Envelope { return s.outbound }

func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// offer must be called with the account channel lock held.
func (s *Subscriber) offer(env chat.Envelope) bool {
	select {
	case s.outbound <- env:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		close(s.outbound)
	})
}
