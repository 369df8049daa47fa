package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yungbote/teamchat-backend/internal/data/db"
	"github.com/yungbote/teamchat-backend/internal/data/repos"
	"github.com/yungbote/teamchat-backend/internal/data/repos/testutil"
	domainchat "github.com/yungbote/teamchat-backend/internal/domain/chat"
	"github.com/yungbote/teamchat-backend/internal/http/middleware"
	"github.com/yungbote/teamchat-backend/internal/observability"
	"github.com/yungbote/teamchat-backend/internal/platform/attachments"
	"github.com/yungbote/teamchat-backend/internal/realtime"
	"github.com/yungbote/teamchat-backend/internal/services/auth"
	chatsvc "github.com/yungbote/teamchat-backend/internal/services/chat"
	"github.com/yungbote/teamchat-backend/internal/services/directory"
)

type testEnv struct {
	engine *gin.Engine
	tokens *auth.JWTProvider
	hub    *realtime.Hub
	blobs  *attachments.MemoryStore
	acct   int64
	alice  int64
	bob    int64
	other  int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := t.Context()

	acct := testutil.SeedAccount(t, ctx, gdb, "Acme")
	otherAcct := testutil.SeedAccount(t, ctx, gdb, "Globex")
	alice := testutil.SeedUser(t, ctx, gdb, acct.ID, "alice")
	bob := testutil.SeedUser(t, ctx, gdb, acct.ID, "bob")
	other := testutil.SeedUser(t, ctx, gdb, otherAcct.ID, "mallory")

	metrics := observability.New()
	roomRepo := repos.NewRoomRepo(gdb, log)
	members := repos.NewMembershipRepo(gdb, log)
	dir := directory.New(log, repos.NewUserRepo(gdb, log), repos.NewTeamRepo(gdb, log))
	tx := db.NewGormTxRunner(gdb)
	blobs := attachments.NewMemoryStore()
	hub := realtime.NewHub(log, realtime.HubConfig{Metrics: metrics})
	t.Cleanup(hub.Close)

	svc := chatsvc.NewChatService(
		log,
		chatsvc.NewResolver(log, dir, roomRepo),
		chatsvc.NewRoomStore(log, roomRepo, members, dir, tx, metrics, chatsvc.RoomStoreConfig{}),
		chatsvc.NewLedger(log, repos.NewMessageRepo(gdb, log), repos.NewAttachmentRepo(gdb, log), members, blobs, tx),
		dir,
		chatsvc.NewNotifier(log, &chatsvc.HubEmitter{Hub: hub}),
		metrics,
	)
	tokens, err := auth.NewJWTProvider(log, dir, "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewJWTProvider: %v", err)
	}

	chat := NewChatHandler(log, svc, 50)
	rt := NewRealtimeHandler(log, hub, svc, tokens, nil, time.Second)
	am := middleware.NewAuthMiddleware(log, tokens)

	r := gin.New()
	api := r.Group("/api/internal_chat")
	api.GET("/ws", rt.Websocket)
	protected := api.Group("")
	protected.Use(am.RequireAuth())
	protected.GET("/rooms", chat.ListRooms)
	protected.POST("/rooms", chat.CreateRoom)
	protected.POST("/rooms/:room_kind/:room_identifier/read", chat.MarkRead)
	protected.GET("/messages/:room_kind", chat.ListMessages)
	protected.GET("/messages/:room_kind/:room_identifier", chat.ListMessages)
	protected.POST("/messages", chat.SendMessage)
	protected.PATCH("/messages/:id", chat.EditMessage)
	protected.DELETE("/messages/:id", chat.DeleteMessage)

	return &testEnv{
		engine: r,
		tokens: tokens,
		hub:    hub,
		blobs:  blobs,
		acct:   acct.ID,
		alice:  alice.ID,
		bob:    bob.ID,
		other:  other.ID,
	}
}

func (e *testEnv) token(t *testing.T, userID int64) string {
	t.Helper()
	tok, err := e.tokens.IssueToken(userID, e.acct)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestRequiresToken(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/api/internal_chat/rooms", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status: want=%d got=%d", http.StatusUnauthorized, w.Code)
	}
	body := decode[struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}](t, w)
	if body.Error.Code != "unauthorized" {
		t.Fatalf("code: want=%q got=%q", "unauthorized", body.Error.Code)
	}
}

func TestSendAndListGeneral(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token(t, e.alice)

	w := e.do(t, http.MethodPost, "/api/internal_chat/messages", tok, map[string]any{
		"message": map[string]any{"content": "hello", "client_message_id": "c-1"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("send status: want=%d got=%d body=%s", http.StatusCreated, w.Code, w.Body.String())
	}
	sent := decode[struct {
		Data domainchat.MessageView `json:"data"`
	}](t, w)
	if sent.Data.Content == nil || *sent.Data.Content != "hello" {
		t.Fatalf("content: want=%q got=%v", "hello", sent.Data.Content)
	}
	if sent.Data.ChatType != domainchat.RoomKindGeneral || sent.Data.ClientMessageID != "c-1" {
		t.Fatalf("view: got=%+v", sent.Data)
	}

	w = e.do(t, http.MethodGet, "/api/internal_chat/messages/general?per_page=10", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status: want=%d got=%d", http.StatusOK, w.Code)
	}
	page := decode[chatsvc.MessagesPage](t, w)
	if len(page.Data) != 1 || page.Data[0].ID != sent.Data.ID {
		t.Fatalf("page: got=%+v", page.Data)
	}
	if page.Meta.TotalCount != 1 || page.Meta.PerPage != 10 || page.Meta.HasMore {
		t.Fatalf("meta: got=%+v", page.Meta)
	}
}

func TestSendValidationIs422(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/api/internal_chat/messages", e.token(t, e.alice), map[string]any{"content": "   "})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: want=%d got=%d body=%s", http.StatusUnprocessableEntity, w.Code, w.Body.String())
	}
}

func TestSendRejectsOverlongClientMessageID(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/api/internal_chat/messages", e.token(t, e.alice), map[string]any{
		"content":           "hello",
		"client_message_id": strings.Repeat("x", domainchat.MaxClientMessageIDLength+1),
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: want=%d got=%d body=%s", http.StatusUnprocessableEntity, w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodPost, "/api/internal_chat/messages", e.token(t, e.alice), map[string]any{
		"content":           "hello",
		"client_message_id": strings.Repeat("x", domainchat.MaxClientMessageIDLength),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status at limit: want=%d got=%d body=%s", http.StatusCreated, w.Code, w.Body.String())
	}
}

func TestSendMultipartAttachment(t *testing.T) {
	e := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("room_type", "direct")
	_ = mw.WriteField("room_id", strconv.FormatInt(e.bob, 10))
	fw, err := mw.CreateFormFile("attachments[]", "notes.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = fw.Write([]byte("meeting notes"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/internal_chat/messages", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.token(t, e.alice))
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status: want=%d got=%d body=%s", http.StatusCreated, w.Code, w.Body.String())
	}
	sent := decode[struct {
		Data domainchat.MessageView `json:"data"`
	}](t, w)
	if sent.Data.MessageType != domainchat.MessageTypeAttachment {
		t.Fatalf("message type: want=%q got=%q", domainchat.MessageTypeAttachment, sent.Data.MessageType)
	}
	if len(sent.Data.Attachments) != 1 || sent.Data.Attachments[0].FileName != "notes.txt" {
		t.Fatalf("attachments: got=%+v", sent.Data.Attachments)
	}
	if want := strconv.FormatInt(e.bob, 10); sent.Data.ChatID != want {
		t.Fatalf("chat id: want=%q got=%q", want, sent.Data.ChatID)
	}
	if e.blobs.Len() != 1 {
		t.Fatalf("stored blobs: want=1 got=%d", e.blobs.Len())
	}
}

func TestEditAndDeleteByOtherUserForbidden(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/api/internal_chat/messages", e.token(t, e.alice), map[string]any{"content": "mine"})
	sent := decode[struct {
		Data domainchat.MessageView `json:"data"`
	}](t, w)
	path := "/api/internal_chat/messages/" + strconv.FormatInt(sent.Data.ID, 10)

	w = e.do(t, http.MethodPatch, path, e.token(t, e.bob), map[string]any{"content": "hijack"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("edit by bob: want=%d got=%d", http.StatusForbidden, w.Code)
	}
	w = e.do(t, http.MethodDelete, path, e.token(t, e.bob), nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("delete by bob: want=%d got=%d", http.StatusForbidden, w.Code)
	}

	w = e.do(t, http.MethodPatch, path, e.token(t, e.alice), map[string]any{"message": map[string]any{"content": "mine, edited"}})
	if w.Code != http.StatusOK {
		t.Fatalf("edit by alice: want=%d got=%d body=%s", http.StatusOK, w.Code, w.Body.String())
	}
	edited := decode[struct {
		Data domainchat.MessageView `json:"data"`
	}](t, w)
	if !edited.Data.Edited || edited.Data.Content == nil || *edited.Data.Content != "mine, edited" {
		t.Fatalf("edited: got=%+v", edited.Data)
	}

	w = e.do(t, http.MethodDelete, path, e.token(t, e.alice), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete by alice: want=%d got=%d", http.StatusOK, w.Code)
	}
	w = e.do(t, http.MethodDelete, "/api/internal_chat/messages/abc", e.token(t, e.alice), nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: want=%d got=%d", http.StatusBadRequest, w.Code)
	}
}

func TestCreateRoomAndUnknownRoom(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token(t, e.alice)

	w := e.do(t, http.MethodPost, "/api/internal_chat/rooms", tok, map[string]any{
		"room": map[string]any{"room_type": "direct", "target_user_id": e.bob},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("create: want=%d got=%d body=%s", http.StatusOK, w.Code, w.Body.String())
	}
	created := decode[struct {
		Data chatsvc.DirectRoomView `json:"data"`
	}](t, w)
	if created.Data.TargetUserID != e.bob || len(created.Data.Participants) != 2 {
		t.Fatalf("room: got=%+v", created.Data)
	}

	w = e.do(t, http.MethodPost, "/api/internal_chat/rooms", tok, map[string]any{"room_type": "team", "target_user_id": e.bob})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("team room: want=%d got=%d", http.StatusUnprocessableEntity, w.Code)
	}
	w = e.do(t, http.MethodPost, "/api/internal_chat/rooms", tok, map[string]any{"target_user_id": e.other})
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign target: want=%d got=%d", http.StatusNotFound, w.Code)
	}

	w = e.do(t, http.MethodGet, "/api/internal_chat/messages/direct/"+strconv.FormatInt(e.other, 10), tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unknown room: want=%d got=%d", http.StatusOK, w.Code)
	}
	page := decode[chatsvc.MessagesPage](t, w)
	if len(page.Data) != 0 || page.Meta.Error == "" {
		t.Fatalf("unknown room page: got=%+v", page)
	}
}

func TestListRoomsAndMarkRead(t *testing.T) {
	e := newTestEnv(t)
	bobID := strconv.FormatInt(e.bob, 10)
	e.do(t, http.MethodPost, "/api/internal_chat/messages", e.token(t, e.bob), map[string]any{
		"room_type": "direct", "room_id": e.alice, "content": "ping",
	})

	tok := e.token(t, e.alice)
	w := e.do(t, http.MethodGet, "/api/internal_chat/rooms", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rooms: want=%d got=%d", http.StatusOK, w.Code)
	}
	listing := decode[chatsvc.RoomsListing](t, w)
	if len(listing.DirectMessages) != 1 || listing.DirectMessages[0].UnreadCount != 1 {
		t.Fatalf("direct peers: got=%+v", listing.DirectMessages)
	}

	w = e.do(t, http.MethodPost, "/api/internal_chat/rooms/direct/"+bobID+"/read", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("read: want=%d got=%d body=%s", http.StatusOK, w.Code, w.Body.String())
	}
	receipt := decode[struct {
		Data chatsvc.ReadReceipt `json:"data"`
	}](t, w)
	if receipt.Data.UnreadCount != 0 {
		t.Fatalf("unread after read: want=0 got=%d", receipt.Data.UnreadCount)
	}
}

func TestWebsocketConfirmsAndDelivers(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.engine)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/internal_chat/ws?account_id=" +
		strconv.FormatInt(e.acct, 10) + "&token=" + e.token(t, e.bob)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var confirm realtime.Frame
	if err := conn.ReadJSON(&confirm); err != nil {
		t.Fatalf("read confirm: %v", err)
	}
	if confirm.Type != realtime.FrameConfirmSubscription || confirm.Channel != domainchat.AccountChannel(e.acct) {
		t.Fatalf("confirm: got=%+v", confirm)
	}

	body, _ := json.Marshal(map[string]any{"content": "live"})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/internal_chat/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token(t, e.alice))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send status: want=%d got=%d", http.StatusCreated, resp.StatusCode)
	}

	var frame realtime.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read message: %v", err)
	}
	if frame.Type != realtime.FrameMessage || frame.Envelope == nil {
		t.Fatalf("frame: got=%+v", frame)
	}
	if frame.Envelope.Event != domainchat.EventNewMessage || frame.Envelope.RoomIdentifier != domainchat.GeneralCanonicalKey() {
		t.Fatalf("envelope: got=%+v", frame.Envelope)
	}
	if frame.Envelope.Message.Content == nil || *frame.Envelope.Message.Content != "live" {
		t.Fatalf("envelope content: got=%v", frame.Envelope.Message.Content)
	}
}

func TestWebsocketRejectsBadCredentials(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.engine)
	t.Cleanup(srv.Close)
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/internal_chat/ws"

	_, resp, err := websocket.DefaultDialer.Dial(base+"?account_id="+strconv.FormatInt(e.acct, 10)+"&token=garbage", nil)
	if err == nil {
		t.Fatalf("dial with bad token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: want=%d got=%v", http.StatusUnauthorized, resp)
	}

	// A token for a user outside the account upgrades and is rejected in-band.
	tok, err := e.tokens.IssueToken(e.other, 0)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(base+"?account_id="+strconv.FormatInt(e.acct, 10)+"&token="+tok, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame realtime.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read reject: %v", err)
	}
	if frame.Type != realtime.FrameRejectSubscription {
		t.Fatalf("frame type: want=%q got=%q", realtime.FrameRejectSubscription, frame.Type)
	}
}

func TestWebsocketSendFrameCreatesMessage(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.engine)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/internal_chat/ws?account_id=" +
		strconv.FormatInt(e.acct, 10) + "&token=" + e.token(t, e.bob)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var confirm realtime.Frame
	if err := conn.ReadJSON(&confirm); err != nil || confirm.Type != realtime.FrameConfirmSubscription {
		t.Fatalf("confirm: got=%+v err=%v", confirm, err)
	}

	if err := conn.WriteJSON(map[string]any{
		"type":              realtime.ClientFrameSend,
		"chat_type":         "direct",
		"recipient_id":      e.alice,
		"content":           "over the socket",
		"client_message_id": "ws-1",
	}); err != nil {
		t.Fatalf("write send: %v", err)
	}

	// The ack and the broadcast of the new message may arrive in either order.
	var ack, broadcast *realtime.Frame
	for ack == nil || broadcast == nil {
		var f realtime.Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read: %v", err)
		}
		switch f.Type {
		case realtime.FrameSendAck:
			ack = &f
		case realtime.FrameMessage:
			broadcast = &f
		default:
			t.Fatalf("unexpected frame: %+v", f)
		}
	}
	if ack.ClientMessageID != "ws-1" || ack.Message == nil || ack.Message.ChatType != domainchat.RoomKindDirect {
		t.Fatalf("ack: got=%+v", ack)
	}
	if ack.Message.ChatID != strconv.FormatInt(e.alice, 10) {
		t.Fatalf("ack chat_id: want=%d got=%q", e.alice, ack.Message.ChatID)
	}
	if broadcast.Envelope == nil || broadcast.Envelope.Message.ID != ack.Message.ID {
		t.Fatalf("broadcast: got=%+v", broadcast.Envelope)
	}

	w := e.do(t, http.MethodGet, "/api/internal_chat/messages/direct/"+strconv.FormatInt(e.bob, 10), e.token(t, e.alice), nil)
	page := decode[chatsvc.MessagesPage](t, w)
	if len(page.Data) != 1 || page.Data[0].Content == nil || *page.Data[0].Content != "over the socket" {
		t.Fatalf("stored page: got=%+v", page.Data)
	}

	if err := conn.WriteJSON(map[string]any{
		"type":              realtime.ClientFrameSend,
		"chat_type":         "direct",
		"recipient_id":      e.other,
		"content":           "hello?",
		"client_message_id": "ws-2",
	}); err != nil {
		t.Fatalf("write send: %v", err)
	}
	var failed realtime.Frame
	if err := conn.ReadJSON(&failed); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if failed.Type != realtime.FrameSendError || failed.ClientMessageID != "ws-2" || failed.Code == "" {
		t.Fatalf("error frame: got=%+v", failed)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	var invalid realtime.Frame
	if err := conn.ReadJSON(&invalid); err != nil {
		t.Fatalf("read invalid frame reply: %v", err)
	}
	if invalid.Type != realtime.FrameSendError || invalid.Code != "invalid_frame" {
		t.Fatalf("invalid frame reply: got=%+v", invalid)
	}
}
