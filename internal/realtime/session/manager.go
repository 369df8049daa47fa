// Package session keeps one client's view of a chat room in sync with the server:
// it owns the subscription lifecycle, applies broadcast envelopes to the open room
// and reconciles optimistic sends with the authoritative messages.
package session

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	domainchat "github.com/yungbote/teamchat-backend/internal/domain/chat"
	"github.com/yungbote/teamchat-backend/internal/domain/identity"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
	"github.com/yungbote/teamchat-backend/internal/realtime"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateSubscribed   State = "subscribed"
	StateError        State = "error"
)

const (
	DefaultReconnectDelay         = time.Second
	DefaultMaxConsecutiveFailures = 10
	DefaultPerPage                = 50
)

// TransportError is surfaced once dialing has failed too many times in a row.
type TransportError struct {
	Failures int
	Last     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("subscription transport failed %d times: %v", e.Failures, e.Last)
}

func (e *TransportError) Unwrap() error { return e.Last }

// SendError keeps the content of a failed send so the caller can restore its input.
type SendError struct {
	Content string
	Err     error
}

func (e *SendError) Error() string { return "send failed: " + e.Err.Error() }

func (e *SendError) Unwrap() error { return e.Err }

var ErrNoRoom = errors.New("no room is open")

// Entry is one line of the open room. Temp entries are optimistic echoes
// waiting for the server's copy.
type Entry struct {
	Message domainchat.MessageView
	Temp    bool
}

type Room struct {
	Kind       domainchat.RoomKind
	Identifier string
	RoomID     int64
	ChatID     string
}

type Snapshot struct {
	State   State
	Err     error
	Room    *Room
	Entries []Entry
}

type Config struct {
	Transport              Transport
	API                    API
	ReconnectDelay         time.Duration
	MaxConsecutiveFailures int
	PerPage                int
}

type Manager struct {
	log *logger.Logger
	cfg Config

	mu        sync.Mutex
	state     State
	err       error
	creds     identity.Credentials
	hasCreds  bool
	pendingFP string
	liveFP    string
	gen       uint64
	conn      Conn
	timer     *time.Timer
	failures  int
	resync    bool
	closed    bool

	room    *Room
	entries []Entry

	nextObserver int
	observers    map[int]chan Snapshot
}

func NewManager(log *logger.Logger, cfg Config) *Manager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = DefaultPerPage
	}
	return &Manager{
		log:       log.With("service", "SessionManager"),
		cfg:       cfg,
		state:     StateDisconnected,
		observers: map[int]chan Snapshot{},
	}
}

func fingerprint(c identity.Credentials) string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(c.AccountID, 10) + ":" + strconv.FormatInt(c.UserID, 10) + ":" + c.Token))
	return hex.EncodeToString(sum[:])
}

// SetCredentials (re)subscribes when the credentials differ from the live or
// pending subscription.
func (m *Manager) SetCredentials(c identity.Credentials) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	fp := fingerprint(c)
	if m.hasCreds {
		if m.state == StateSubscribed && fp == m.liveFP {
			return
		}
		if m.state == StateConnecting && fp == m.pendingFP {
			return
		}
	}
	m.creds = c
	m.hasCreds = true
	m.failures = 0
	m.resync = false
	m.connectLocked()
}

// ForceResubscribe drops any pending reconnect and dials now.
func (m *Manager) ForceResubscribe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.hasCreds {
		return
	}
	m.failures = 0
	m.resync = true
	m.connectLocked()
}

func (m *Manager) connectLocked() {
	m.stopTimerLocked()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.gen++
	m.state = StateConnecting
	m.err = nil
	m.pendingFP = fingerprint(m.creds)
	m.publishLocked()
	go m.run(m.gen, m.creds)
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) run(gen uint64, creds identity.Credentials) {
	conn, err := m.cfg.Transport.Dial(context.Background(), creds)

	m.mu.Lock()
	if m.gen != gen || m.closed {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		m.dialFailedLocked(gen, err)
		m.mu.Unlock()
		return
	}
	m.conn = conn
	m.mu.Unlock()

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			m.disconnected(gen, err)
			return
		}
		if !m.handleFrame(gen, frame) {
			_ = conn.Close()
			return
		}
	}
}

func (m *Manager) dialFailedLocked(gen uint64, err error) {
	m.conn = nil
	if IsAuthError(err) {
		m.state = StateError
		m.err = err
		m.log.Warn("subscription refused", "account_id", m.creds.AccountID, "error", err)
		m.publishLocked()
		return
	}
	m.failures++
	if m.failures >= m.cfg.MaxConsecutiveFailures {
		m.state = StateError
		m.err = &TransportError{Failures: m.failures, Last: err}
		m.log.Error("subscription gave up", "failures", m.failures, "error", err)
		m.publishLocked()
		return
	}
	m.state = StateDisconnected
	m.publishLocked()
	m.scheduleReconnectLocked(gen)
}

func (m *Manager) disconnected(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.closed {
		return
	}
	m.conn = nil
	m.liveFP = ""
	m.state = StateDisconnected
	m.log.Debug("subscription lost", "error", err)
	m.publishLocked()
	m.scheduleReconnectLocked(gen)
}

// scheduleReconnectLocked arms the single reconnect timer for gen. A newer
// generation makes the callback a no-op.
func (m *Manager) scheduleReconnectLocked(gen uint64) {
	m.stopTimerLocked()
	m.resync = true
	m.timer = time.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.gen != gen || m.closed {
			return
		}
		m.timer = nil
		m.connectLocked()
	})
}

// handleFrame returns false once the connection should stop being read.
func (m *Manager) handleFrame(gen uint64, f realtime.Frame) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.closed {
		return false
	}
	switch f.Type {
	case realtime.FrameConfirmSubscription:
		m.state = StateSubscribed
		m.err = nil
		m.failures = 0
		m.liveFP = m.pendingFP
		if m.resync && m.room != nil {
			go m.refetch(gen, *m.room)
		}
		m.resync = false
		m.publishLocked()
	case realtime.FrameRejectSubscription:
		m.state = StateError
		m.err = &AuthError{Reason: f.Reason}
		m.conn = nil
		m.publishLocked()
		return false
	case realtime.FrameMessage:
		if f.Envelope != nil && m.applyLocked(*f.Envelope) {
			m.publishLocked()
		}
	}
	return true
}

// Matches reports whether env belongs to the room.
func (r *Room) Matches(env domainchat.Envelope) bool {
	if r == nil {
		return false
	}
	if r.RoomID > 0 && env.Message.RoomID == r.RoomID {
		return true
	}
	kind := env.ChatType
	if kind == "" {
		kind = env.RoomKind
	}
	if kind == domainchat.RoomKindGeneral && r.Kind == domainchat.RoomKindGeneral {
		return true
	}
	return kind == r.Kind && env.ChatID != "" && env.ChatID == r.ChatID
}

// applyLocked reports whether env changed the entries. Only new messages are
// added; updates and deletes touch an entry that is already loaded.
func (m *Manager) applyLocked(env domainchat.Envelope) bool {
	if !m.room.Matches(env) {
		return false
	}
	switch env.Event {
	case domainchat.EventMessageDeleted:
		return m.removeByIDLocked(env.Message.ID)
	case domainchat.EventMessageUpdated:
		if env.Message.Deleted {
			return m.removeByIDLocked(env.Message.ID)
		}
		return m.replaceLocked(env.Message)
	default:
		m.upsertLocked(env.Message)
		return true
	}
}

// upsertLocked splices out the temp entry with the same client id, then
// replaces by id in place or inserts in id order ahead of pending temps.
func (m *Manager) upsertLocked(msg domainchat.MessageView) {
	if msg.ClientMessageID != "" {
		m.removeTempLocked(msg.ClientMessageID)
	}
	if m.replaceLocked(msg) {
		return
	}
	at := len(m.entries)
	for i := range m.entries {
		if m.entries[i].Temp || m.entries[i].Message.ID > msg.ID {
			at = i
			break
		}
	}
	m.entries = slices.Insert(m.entries, at, Entry{Message: msg})
}

func (m *Manager) replaceLocked(msg domainchat.MessageView) bool {
	for i := range m.entries {
		if !m.entries[i].Temp && m.entries[i].Message.ID == msg.ID {
			m.entries[i].Message = msg
			return true
		}
	}
	return false
}

func (m *Manager) removeByIDLocked(id int64) bool {
	for i := range m.entries {
		if !m.entries[i].Temp && m.entries[i].Message.ID == id {
			m.entries = slices.Delete(m.entries, i, i+1)
			return true
		}
	}
	return false
}

func (m *Manager) removeTempLocked(clientID string) {
	for i := range m.entries {
		if m.entries[i].Temp && m.entries[i].Message.ClientMessageID == clientID {
			m.entries = slices.Delete(m.entries, i, i+1)
			return
		}
	}
}

// OpenRoom loads the latest page of a room and makes it the target of envelopes.
func (m *Manager) OpenRoom(ctx context.Context, kind domainchat.RoomKind, identifier string) (RoomPage, error) {
	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()

	page, err := m.cfg.API.ListMessages(ctx, creds, kind, identifier, m.cfg.PerPage)
	if err != nil {
		return RoomPage{}, err
	}
	room := &Room{
		Kind:       kind,
		Identifier: identifier,
		RoomID:     page.RoomID,
		ChatID:     chatIDFor(kind, identifier),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.room = room
	m.entries = make([]Entry, 0, len(page.Messages))
	for _, msg := range page.Messages {
		m.entries = append(m.entries, Entry{Message: msg})
	}
	m.publishLocked()
	return page, nil
}

func chatIDFor(kind domainchat.RoomKind, identifier string) string {
	id := strings.TrimSpace(identifier)
	switch kind {
	case domainchat.RoomKindGeneral:
		return domainchat.GeneralChatID
	case domainchat.RoomKindTeam:
		return strings.TrimPrefix(id, "team-")
	default:
		return strings.TrimPrefix(id, "direct-")
	}
}

func (m *Manager) refetch(gen uint64, room Room) {
	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()

	page, err := m.cfg.API.ListMessages(context.Background(), creds, room.Kind, room.Identifier, m.cfg.PerPage)
	if err != nil {
		m.log.Warn("room refetch after reconnect failed", "room_id", room.RoomID, "error", err)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.room == nil || m.room.Kind != room.Kind || m.room.Identifier != room.Identifier {
		return
	}
	m.entries = rebuildEntries(page.Messages, m.entries)
	m.publishLocked()
}

// rebuildEntries replaces the confirmed entries with the server window, in id
// order, and keeps temps whose send has not been reconciled after it.
func rebuildEntries(window []domainchat.MessageView, current []Entry) []Entry {
	confirmed := make(map[string]struct{}, len(window))
	out := make([]Entry, 0, len(window)+len(current))
	for _, msg := range window {
		out = append(out, Entry{Message: msg})
		if msg.ClientMessageID != "" {
			confirmed[msg.ClientMessageID] = struct{}{}
		}
	}
	slices.SortStableFunc(out, func(a, b Entry) int { return cmp.Compare(a.Message.ID, b.Message.ID) })
	for _, e := range current {
		if !e.Temp {
			continue
		}
		if _, ok := confirmed[e.Message.ClientMessageID]; ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Send echoes content as a temp entry, then posts it. The server copy replaces
// the echo whether it arrives through the response or the broadcast.
func (m *Manager) Send(ctx context.Context, content string) (domainchat.MessageView, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return domainchat.MessageView{}, &SendError{Content: content, Err: errors.New("content is required")}
	}

	m.mu.Lock()
	if m.room == nil {
		m.mu.Unlock()
		return domainchat.MessageView{}, &SendError{Content: content, Err: ErrNoRoom}
	}
	room := *m.room
	creds := m.creds
	clientID := uuid.NewString()
	text := trimmed
	m.entries = append(m.entries, Entry{
		Temp: true,
		Message: domainchat.MessageView{
			Content:         &text,
			Sender:          domainchat.SenderView{ID: creds.UserID},
			SenderID:        creds.UserID,
			CreatedAt:       domainchat.FormatTime(time.Now()),
			MessageType:     domainchat.MessageTypeText,
			ChatType:        room.Kind,
			ChatID:          room.ChatID,
			RoomID:          room.RoomID,
			Attachments:     []domainchat.AttachmentView{},
			ClientMessageID: clientID,
		},
	})
	m.publishLocked()
	m.mu.Unlock()

	view, err := m.cfg.API.SendMessage(ctx, creds, SendRequest{
		RoomKind:        room.Kind,
		RoomIdentifier:  room.Identifier,
		Content:         trimmed,
		ClientMessageID: clientID,
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.removeTempLocked(clientID)
		m.publishLocked()
		return domainchat.MessageView{}, &SendError{Content: content, Err: err}
	}
	if view.ClientMessageID == "" {
		view.ClientMessageID = clientID
	}
	if m.room != nil && m.room.Kind == room.Kind && m.room.Identifier == room.Identifier {
		m.upsertLocked(view)
		if m.room.RoomID == 0 {
			m.room.RoomID = view.RoomID
		}
		m.publishLocked()
	}
	return view, nil
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	s := Snapshot{State: m.state, Err: m.err}
	if m.room != nil {
		r := *m.room
		s.Room = &r
	}
	s.Entries = append([]Entry(nil), m.entries...)
	return s
}

// Subscribe delivers the current snapshot and every later change. Slow observers
// only see the latest snapshot.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Snapshot, 1)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextObserver
	m.nextObserver++
	m.observers[id] = ch
	ch <- m.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := m.observers[id]; ok {
				delete(m.observers, id)
				close(c)
			}
		})
	}
}

func (m *Manager) publishLocked() {
	if len(m.observers) == 0 {
		return
	}
	snap := m.snapshotLocked()
	for _, ch := range m.observers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

// Close stops reconnecting, drops the connection and closes every observer.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.gen++
	m.stopTimerLocked()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.state = StateDisconnected
	for id, ch := range m.observers {
		delete(m.observers, id)
		close(ch)
	}
}
