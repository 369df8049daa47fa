package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	domainchat "github.com/yungbote/teamchat-backend/internal/domain/chat"
	"github.com/yungbote/teamchat-backend/internal/domain/identity"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
	"github.com/yungbote/teamchat-backend/internal/realtime"
)

var errConnClosed = errors.New("fake conn closed")

type fakeConn struct {
	frames    chan realtime.Frame
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan realtime.Frame, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadFrame() (realtime.Frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.closed:
		return realtime.Frame{}, errConnClosed
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// fakeTransport fails dials while errs is non-empty, then hands out fresh conns.
type fakeTransport struct {
	mu     sync.Mutex
	errs   []error
	always error
	dials  int
	conns  []*fakeConn
	dialed chan *fakeConn
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{dialed: make(chan *fakeConn, 16)}
}

func (t *fakeTransport) Dial(_ context.Context, _ identity.Credentials) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	if t.always != nil {
		return nil, t.always
	}
	if len(t.errs) > 0 {
		err := t.errs[0]
		t.errs = t.errs[1:]
		return nil, err
	}
	c := newFakeConn()
	t.conns = append(t.conns, c)
	t.dialed <- c
	return c, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

type fakeAPI struct {
	mu        sync.Mutex
	page      RoomPage
	listCalls int
	send      func(req SendRequest) (domainchat.MessageView, error)
}

func (a *fakeAPI) ListMessages(_ context.Context, _ identity.Credentials, _ domainchat.RoomKind, _ string, _ int) (RoomPage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listCalls++
	return a.page, nil
}

func (a *fakeAPI) SendMessage(_ context.Context, _ identity.Credentials, req SendRequest) (domainchat.MessageView, error) {
	return a.send(req)
}

func (a *fakeAPI) lists() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listCalls
}

func textView(id, roomID int64, content, clientID string) domainchat.MessageView {
	c := content
	return domainchat.MessageView{
		ID:              id,
		Content:         &c,
		SenderID:        1,
		MessageType:     domainchat.MessageTypeText,
		ChatType:        domainchat.RoomKindGeneral,
		ChatID:          domainchat.GeneralChatID,
		RoomID:          roomID,
		ClientMessageID: clientID,
	}
}

func newTestManager(tr Transport, api API) *Manager {
	return NewManager(logger.Nop(), Config{
		Transport:              tr,
		API:                    api,
		ReconnectDelay:         10 * time.Millisecond,
		MaxConsecutiveFailures: 3,
	})
}

func waitFor(t *testing.T, m *Manager, what string, pred func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := m.Snapshot()
		if pred(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s: state=%q err=%v entries=%d", what, s.State, s.Err, len(s.Entries))
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func nextConn(t *testing.T, tr *fakeTransport) *fakeConn {
	t.Helper()
	select {
	case c := <-tr.dialed:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("no dial happened")
		return nil
	}
}

func inState(st State) func(Snapshot) bool {
	return func(s Snapshot) bool { return s.State == st }
}

var creds = identity.Credentials{AccountID: 1, UserID: 1, Token: "t1"}

func TestSetCredentialsSubscribesOnce(t *testing.T) {
	tr := newFakeTransport()
	m := newTestManager(tr, &fakeAPI{})
	defer m.Close()

	m.SetCredentials(creds)
	if s := m.Snapshot(); s.State != StateConnecting {
		t.Fatalf("state: want=%q got=%q", StateConnecting, s.State)
	}
	conn := nextConn(t, tr)
	m.SetCredentials(creds)
	conn.frames <- realtime.Frame{Type: realtime.FrameConfirmSubscription}
	waitFor(t, m, "subscribed", inState(StateSubscribed))

	m.SetCredentials(creds)
	time.Sleep(20 * time.Millisecond)
	if n := tr.dialCount(); n != 1 {
		t.Fatalf("dials with unchanged credentials: want=1 got=%d", n)
	}

	m.SetCredentials(identity.Credentials{AccountID: 1, UserID: 1, Token: "t2"})
	nextConn(t, tr)
	if n := tr.dialCount(); n != 2 {
		t.Fatalf("dials after token change: want=2 got=%d", n)
	}
}

func TestAuthRejectionStopsRetrying(t *testing.T) {
	tr := newFakeTransport()
	tr.always = &AuthError{Status: 401}
	m := newTestManager(tr, &fakeAPI{})
	defer m.Close()

	m.SetCredentials(creds)
	s := waitFor(t, m, "error", inState(StateError))
	if !IsAuthError(s.Err) {
		t.Fatalf("err: want AuthError got=%v", s.Err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := tr.dialCount(); n != 1 {
		t.Fatalf("dials after auth failure: want=1 got=%d", n)
	}
}

func TestRejectFrameIsTerminal(t *testing.T) {
	tr := newFakeTransport()
	m := newTestManager(tr, &fakeAPI{})
	defer m.Close()

	m.SetCredentials(creds)
	conn := nextConn(t, tr)
	conn.frames <- realtime.Frame{Type: realtime.FrameRejectSubscription, Reason: "bad token"}
	s := waitFor(t, m, "error", inState(StateError))
	if !IsAuthError(s.Err) {
		t.Fatalf("err: want AuthError got=%v", s.Err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := tr.dialCount(); n != 1 {
		t.Fatalf("dials after reject: want=1 got=%d", n)
	}
}

func TestDialFailuresSurfaceTransportError(t *testing.T) {
	tr := newFakeTransport()
	tr.always = errors.New("connection refused")
	m := newTestManager(tr, &fakeAPI{})
	defer m.Close()

	m.SetCredentials(creds)
	s := waitFor(t, m, "transport error", inState(StateError))
	var te *TransportError
	if !errors.As(s.Err, &te) || te.Failures != 3 {
		t.Fatalf("err: want TransportError after 3 failures got=%v", s.Err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := tr.dialCount(); n != 3 {
		t.Fatalf("dials: want=3 got=%d", n)
	}
}

func TestReconnectRefetchesOpenRoom(t *testing.T) {
	tr := newFakeTransport()
	api := &fakeAPI{page: RoomPage{RoomID: 7, Messages: []domainchat.MessageView{textView(1, 7, "first", "")}}}
	m := newTestManager(tr, api)
	defer m.Close()

	m.SetCredentials(creds)
	conn := nextConn(t, tr)
	conn.frames <- realtime.Frame{Type: realtime.FrameConfirmSubscription}
	waitFor(t, m, "subscribed", inState(StateSubscribed))
	if _, err := m.OpenRoom(context.Background(), domainchat.RoomKindGeneral, ""); err != nil {
		t.Fatalf("OpenRoom: %v", err)
	}

	api.mu.Lock()
	api.page.Messages = append(api.page.Messages, textView(2, 7, "missed", ""))
	api.mu.Unlock()

	_ = conn.Close()
	waitFor(t, m, "disconnected", inState(StateDisconnected))
	second := nextConn(t, tr)
	second.frames <- realtime.Frame{Type: realtime.FrameConfirmSubscription}
	s := waitFor(t, m, "refetched", func(s Snapshot) bool { return s.State == StateSubscribed && len(s.Entries) == 2 })
	if s.Entries[1].Message.ID != 2 {
		t.Fatalf("merged entry: want id=2 got=%d", s.Entries[1].Message.ID)
	}
	if n := api.lists(); n != 2 {
		t.Fatalf("list calls: want=2 got=%d", n)
	}
}

func TestForceResubscribeReplacesPendingTimer(t *testing.T) {
	tr := newFakeTransport()
	m := NewManager(logger.Nop(), Config{Transport: tr, API: &fakeAPI{}, ReconnectDelay: time.Hour})
	defer m.Close()

	m.SetCredentials(creds)
	conn := nextConn(t, tr)
	_ = conn.Close()
	waitFor(t, m, "disconnected", inState(StateDisconnected))

	m.ForceResubscribe()
	nextConn(t, tr)
	if n := tr.dialCount(); n != 2 {
		t.Fatalf("dials: want=2 got=%d", n)
	}
}

func TestEnvelopesApplyOnlyToOpenRoom(t *testing.T) {
	tr := newFakeTransport()
	api := &fakeAPI{page: RoomPage{RoomID: 7}}
	m := newTestManager(tr, api)
	defer m.Close()

	m.SetCredentials(creds)
	conn := nextConn(t, tr)
	conn.frames <- realtime.Frame{Type: realtime.FrameConfirmSubscription}
	waitFor(t, m, "subscribed", inState(StateSubscribed))
	if _, err := m.OpenRoom(context.Background(), domainchat.RoomKindGeneral, ""); err != nil {
		t.Fatalf("OpenRoom: %v", err)
	}

	team := domainchat.Envelope{Event: domainchat.EventNewMessage, ChatType: domainchat.RoomKindTeam, ChatID: "3", Message: textView(10, 9, "team", "")}
	team.Message.ChatType = domainchat.RoomKindTeam
	conn.frames <- realtime.Frame{Type: realtime.FrameMessage, Envelope: &team}
	general := domainchat.Envelope{Event: domainchat.EventNewMessage, ChatType: domainchat.RoomKindGeneral, ChatID: "general", Message: textView(11, 7, "hi all", "")}
	conn.frames <- realtime.Frame{Type: realtime.FrameMessage, Envelope: &general}

	s := waitFor(t, m, "general message", func(s Snapshot) bool { return len(s.Entries) == 1 })
	if s.Entries[0].Message.ID != 11 {
		t.Fatalf("entry: want id=11 got=%d", s.Entries[0].Message.ID)
	}

	edited := general
	edited.Event = domainchat.EventMessageUpdated
	edited.Message = textView(11, 7, "hi everyone", "")
	edited.Message.Edited = true
	conn.frames <- realtime.Frame{Type: realtime.FrameMessage, Envelope: &edited}
	s = waitFor(t, m, "edit applied", func(s Snapshot) bool { return len(s.Entries) == 1 && s.Entries[0].Message.Edited })
	if got := *s.Entries[0].Message.Content; got != "hi everyone" {
		t.Fatalf("content: want=%q got=%q", "hi everyone", got)
	}
}

func entryIDs(entries []Entry) []int64 {
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Message.ID)
	}
	return ids
}

func generalEnvelope(event domainchat.EnvelopeEvent, msg domainchat.MessageView) *domainchat.Envelope {
	return &domainchat.Envelope{Event: event, ChatType: domainchat.RoomKindGeneral, ChatID: domainchat.GeneralChatID, Message: msg}
}

func TestUpdatesForUnloadedMessagesAreIgnored(t *testing.T) {
	tr := newFakeTransport()
	api := &fakeAPI{page: RoomPage{RoomID: 7, Messages: []domainchat.MessageView{textView(5, 7, "five", ""), textView(6, 7, "six", "")}}}
	m := newTestManager(tr, api)
	defer m.Close()

	m.SetCredentials(creds)
	conn := nextConn(t, tr)
	conn.frames <- realtime.Frame{Type: realtime.FrameConfirmSubscription}
	waitFor(t, m, "subscribed", inState(StateSubscribed))
	if _, err := m.OpenRoom(context.Background(), domainchat.RoomKindGeneral, ""); err != nil {
		t.Fatalf("OpenRoom: %v", err)
	}

	deletedOld := textView(2, 7, "", "")
	deletedOld.Deleted = true
	conn.frames <- realtime.Frame{Type: realtime.FrameMessage, Envelope: generalEnvelope(domainchat.EventMessageDeleted, deletedOld)}
	conn.frames <- realtime.Frame{Type: realtime.FrameMessage, Envelope: generalEnvelope(domainchat.EventMessageUpdated, textView(3, 7, "edited old", ""))}
	deletedFive := textView(5, 7, "", "")
	deletedFive.Deleted = true
	conn.frames <- realtime.Frame{Type: realtime.FrameMessage, Envelope: generalEnvelope(domainchat.EventMessageDeleted, deletedFive)}
	// new_message frames are applied in order, so this one marks that the earlier frames were handled.
	conn.frames <- realtime.Frame{Type: realtime.FrameMessage, Envelope: generalEnvelope(domainchat.EventNewMessage, textView(8, 7, "eight", ""))}

	s := waitFor(t, m, "new message", func(s Snapshot) bool {
		ids := entryIDs(s.Entries)
		return len(ids) > 0 && ids[len(ids)-1] == 8
	})
	if got := entryIDs(s.Entries); !slices.Equal(got, []int64{6, 8}) {
		t.Fatalf("entries: want=[6 8] got=%v", got)
	}
}

func TestNewMessageIsPlacedBeforePendingSends(t *testing.T) {
	tr := newFakeTransport()
	release := make(chan struct{})
	api := &fakeAPI{page: RoomPage{RoomID: 7, Messages: []domainchat.MessageView{textView(1, 7, "one", "")}}}
	api.send = func(req SendRequest) (domainchat.MessageView, error) {
		<-release
		return textView(9, 7, req.Content, req.ClientMessageID), nil
	}
	m := newTestManager(tr, api)
	defer m.Close()

	m.SetCredentials(creds)
	conn := nextConn(t, tr)
	conn.frames <- realtime.Frame{Type: realtime.FrameConfirmSubscription}
	waitFor(t, m, "subscribed", inState(StateSubscribed))
	if _, err := m.OpenRoom(context.Background(), domainchat.RoomKindGeneral, ""); err != nil {
		t.Fatalf("OpenRoom: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), "mine")
		done <- err
	}()
	waitFor(t, m, "temp entry", func(s Snapshot) bool { return len(s.Entries) == 2 })

	conn.frames <- realtime.Frame{Type: realtime.FrameMessage, Envelope: generalEnvelope(domainchat.EventNewMessage, textView(4, 7, "theirs", ""))}
	s := waitFor(t, m, "broadcast", func(s Snapshot) bool { return len(s.Entries) == 3 })
	if got := entryIDs(s.Entries); !slices.Equal(got, []int64{1, 4, 0}) || !s.Entries[2].Temp {
		t.Fatalf("entries: want=[1 4 temp] got=%v", got)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := entryIDs(m.Snapshot().Entries); !slices.Equal(got, []int64{1, 4, 9}) {
		t.Fatalf("entries after send: want=[1 4 9] got=%v", got)
	}
}

func TestReconnectRebuildsFromServerWindow(t *testing.T) {
	tr := newFakeTransport()
	release := make(chan struct{})
	api := &fakeAPI{page: RoomPage{RoomID: 7, Messages: []domainchat.MessageView{textView(1, 7, "one", ""), textView(2, 7, "two", "")}}}
	api.send = func(req SendRequest) (domainchat.MessageView, error) {
		<-release
		return textView(20, 7, req.Content, req.ClientMessageID), nil
	}
	m := newTestManager(tr, api)
	defer m.Close()

	m.SetCredentials(creds)
	conn := nextConn(t, tr)
	conn.frames <- realtime.Frame{Type: realtime.FrameConfirmSubscription}
	waitFor(t, m, "subscribed", inState(StateSubscribed))
	if _, err := m.OpenRoom(context.Background(), domainchat.RoomKindGeneral, ""); err != nil {
		t.Fatalf("OpenRoom: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), "pending")
		done <- err
	}()
	waitFor(t, m, "temp entry", func(s Snapshot) bool { return len(s.Entries) == 3 })

	// While disconnected, message 1 is deleted and message 3 arrives.
	api.mu.Lock()
	api.page.Messages = []domainchat.MessageView{textView(2, 7, "two", ""), textView(3, 7, "missed", "")}
	api.mu.Unlock()

	_ = conn.Close()
	waitFor(t, m, "disconnected", inState(StateDisconnected))
	second := nextConn(t, tr)
	second.frames <- realtime.Frame{Type: realtime.FrameConfirmSubscription}
	s := waitFor(t, m, "refetched", func(s Snapshot) bool {
		return len(s.Entries) == 3 && s.Entries[1].Message.ID == 3
	})
	if got := entryIDs(s.Entries); !slices.Equal(got, []int64{2, 3, 0}) {
		t.Fatalf("entries: want=[2 3 temp] got=%v", got)
	}
	if !s.Entries[2].Temp || *s.Entries[2].Message.Content != "pending" {
		t.Fatalf("pending entry: got=%+v", s.Entries[2])
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := entryIDs(m.Snapshot().Entries); !slices.Equal(got, []int64{2, 3, 20}) {
		t.Fatalf("entries after send: want=[2 3 20] got=%v", got)
	}
}

func TestRoomMatches(t *testing.T) {
	direct := &Room{Kind: domainchat.RoomKindDirect, Identifier: "5", RoomID: 40, ChatID: "5"}
	cases := []struct {
		name string
		env  domainchat.Envelope
		want bool
	}{
		{"room id", domainchat.Envelope{ChatType: domainchat.RoomKindDirect, ChatID: "1", Message: domainchat.MessageView{RoomID: 40}}, true},
		{"kind and chat id", domainchat.Envelope{ChatType: domainchat.RoomKindDirect, ChatID: "5", Message: domainchat.MessageView{RoomID: 41}}, true},
		{"other direct", domainchat.Envelope{ChatType: domainchat.RoomKindDirect, ChatID: "6", Message: domainchat.MessageView{RoomID: 41}}, false},
		{"general", domainchat.Envelope{ChatType: domainchat.RoomKindGeneral, ChatID: "general", Message: domainchat.MessageView{RoomID: 1}}, false},
	}
	for _, tc := range cases {
		if got := direct.Matches(tc.env); got != tc.want {
			t.Fatalf("%s: want=%v got=%v", tc.name, tc.want, got)
		}
	}
	general := &Room{Kind: domainchat.RoomKindGeneral, ChatID: domainchat.GeneralChatID}
	if !general.Matches(domainchat.Envelope{ChatType: domainchat.RoomKindGeneral, Message: domainchat.MessageView{RoomID: 99}}) {
		t.Fatalf("general sentinel should match")
	}
}

func TestSendReconcilesWithBroadcast(t *testing.T) {
	tr := newFakeTransport()
	release := make(chan struct{})
	var sent SendRequest
	api := &fakeAPI{page: RoomPage{RoomID: 7}}
	api.send = func(req SendRequest) (domainchat.MessageView, error) {
		sent = req
		<-release
		return textView(20, 7, req.Content, req.ClientMessageID), nil
	}
	m := newTestManager(tr, api)
	defer m.Close()

	m.SetCredentials(creds)
	conn := nextConn(t, tr)
	conn.frames <- realtime.Frame{Type: realtime.FrameConfirmSubscription}
	if _, err := m.OpenRoom(context.Background(), domainchat.RoomKindGeneral, ""); err != nil {
		t.Fatalf("OpenRoom: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), " hello ")
		done <- err
	}()
	s := waitFor(t, m, "temp entry", func(s Snapshot) bool { return len(s.Entries) == 1 })
	if !s.Entries[0].Temp || s.Entries[0].Message.ClientMessageID == "" {
		t.Fatalf("temp entry: got=%+v", s.Entries[0])
	}
	clientID := s.Entries[0].Message.ClientMessageID

	env := domainchat.Envelope{Event: domainchat.EventNewMessage, ChatType: domainchat.RoomKindGeneral, ChatID: "general", Message: textView(20, 7, "hello", clientID)}
	conn.frames <- realtime.Frame{Type: realtime.FrameMessage, Envelope: &env}
	waitFor(t, m, "broadcast reconciled", func(s Snapshot) bool { return len(s.Entries) == 1 && !s.Entries[0].Temp })

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent.ClientMessageID != clientID || sent.Content != "hello" {
		t.Fatalf("request: got=%+v", sent)
	}
	s = m.Snapshot()
	if len(s.Entries) != 1 || s.Entries[0].Message.ID != 20 {
		t.Fatalf("entries after response: got=%+v", s.Entries)
	}
}

func TestSendFailureRestoresContent(t *testing.T) {
	tr := newFakeTransport()
	api := &fakeAPI{page: RoomPage{RoomID: 7}}
	api.send = func(SendRequest) (domainchat.MessageView, error) {
		return domainchat.MessageView{}, &APIError{Status: 422, Message: "content is required"}
	}
	m := newTestManager(tr, api)
	defer m.Close()

	if _, err := m.Send(context.Background(), "early"); !errors.Is(err, ErrNoRoom) {
		t.Fatalf("send without room: want ErrNoRoom got=%v", err)
	}
	if _, err := m.OpenRoom(context.Background(), domainchat.RoomKindGeneral, ""); err != nil {
		t.Fatalf("OpenRoom: %v", err)
	}
	_, err := m.Send(context.Background(), "draft text")
	var se *SendError
	if !errors.As(err, &se) || se.Content != "draft text" {
		t.Fatalf("err: want SendError with content got=%v", err)
	}
	if n := len(m.Snapshot().Entries); n != 0 {
		t.Fatalf("entries after failure: want=0 got=%d", n)
	}
}

func TestSubscribeDeliversLatestSnapshot(t *testing.T) {
	m := newTestManager(newFakeTransport(), &fakeAPI{})
	ch, cancel := m.Subscribe()
	first := <-ch
	if first.State != StateDisconnected {
		t.Fatalf("initial: want=%q got=%q", StateDisconnected, first.State)
	}
	m.SetCredentials(creds)
	select {
	case s := <-ch:
		if s.State != StateConnecting {
			t.Fatalf("after SetCredentials: want=%q got=%q", StateConnecting, s.State)
		}
	case <-time.After(time.Second):
		t.Fatalf("no snapshot after SetCredentials")
	}
	cancel()
	cancel()
	m.Close()
}
