package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/teamchat-backend/internal/http/response"
	"github.com/yungbote/teamchat-backend/internal/platform/attachments"
	"github.com/yungbote/teamchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
	chatsvc "github.com/yungbote/teamchat-backend/internal/services/chat"
)

const maxAttachmentsPerMessage = 10

type ChatHandler struct {
	log            *logger.Logger
	chat           chatsvc.ChatService
	defaultPerPage int
}

func NewChatHandler(log *logger.Logger, chat chatsvc.ChatService, defaultPerPage int) *ChatHandler {
	return &ChatHandler{
		log:            log.With("handler", "ChatHandler"),
		chat:           chat,
		defaultPerPage: defaultPerPage,
	}
}

func unauthorized(c *gin.Context) {
	response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
}

// GET /api/internal_chat/rooms
func (h *ChatHandler) ListRooms(c *gin.Context) {
	caller, ok := ctxutil.Caller(c.Request.Context())
	if !ok {
		unauthorized(c)
		return
	}
	listing, err := h.chat.ListRooms(c.Request.Context(), caller)
	if err != nil {
		response.RespondErr(c, err, "list_rooms_failed")
		return
	}
	response.RespondOK(c, listing)
}

type createRoomFields struct {
	RoomType     string     `json:"room_type"`
	TargetUserID flexString `json:"target_user_id"`
}

type createRoomReq struct {
	Room *createRoomFields `json:"room"`
	createRoomFields
}

// POST /api/internal_chat/rooms
func (h *ChatHandler) CreateRoom(c *gin.Context) {
	caller, ok := ctxutil.Caller(c.Request.Context())
	if !ok {
		unauthorized(c)
		return
	}
	var req createRoomReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	fields := req.createRoomFields
	if req.Room != nil {
		fields = *req.Room
	}
	if fields.RoomType != "" && fields.RoomType != "direct" {
		response.RespondError(c, http.StatusUnprocessableEntity, "validation", errors.New("room type not supported"))
		return
	}
	targetID, err := strconv.ParseInt(string(fields.TargetUserID), 10, 64)
	if err != nil || targetID <= 0 {
		response.RespondError(c, http.StatusUnprocessableEntity, "validation", errors.New("target_user_id is required"))
		return
	}
	room, err := h.chat.OpenDirectRoom(c.Request.Context(), caller, targetID)
	if err != nil {
		response.RespondErr(c, err, "create_room_failed")
		return
	}
	response.RespondOK(c, gin.H{"data": room})
}

// GET /api/internal_chat/messages/:room_kind/:room_identifier?before_id&after_id&per_page
// GET /api/internal_chat/messages/general
func (h *ChatHandler) ListMessages(c *gin.Context) {
	caller, ok := ctxutil.Caller(c.Request.Context())
	if !ok {
		unauthorized(c)
		return
	}
	kind := c.Param("room_kind")
	if kind == "" {
		kind = "general"
	}
	identifier := c.Param("room_identifier")
	if identifier == "" && kind == "general" {
		identifier = "general"
	}
	q := chatsvc.ListQuery{
		BeforeID: queryInt64(c, "before_id"),
		AfterID:  queryInt64(c, "after_id"),
		Limit:    int(queryInt64(c, "per_page")),
	}
	if q.Limit <= 0 {
		q.Limit = h.defaultPerPage
	}
	page, err := h.chat.ListMessages(c.Request.Context(), caller, chatsvc.ListMessagesInput{
		RoomKind:       kind,
		RoomIdentifier: identifier,
		Query:          q,
	})
	if err != nil {
		response.RespondErr(c, err, "list_messages_failed")
		return
	}
	response.RespondOK(c, page)
}

type sendMessageFields struct {
	Content         string     `json:"content"`
	RoomType        string     `json:"room_type"`
	RoomID          flexString `json:"room_id"`
	ClientMessageID string     `json:"client_message_id"`
}

type sendMessageReq struct {
	Message *sendMessageFields `json:"message"`
	sendMessageFields
}

// POST /api/internal_chat/messages (JSON or multipart with attachments[])
func (h *ChatHandler) SendMessage(c *gin.Context) {
	caller, ok := ctxutil.Caller(c.Request.Context())
	if !ok {
		unauthorized(c)
		return
	}
	var (
		fields  sendMessageFields
		uploads []attachments.Upload
		err     error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fields, uploads, err = h.bindMultipart(c)
	} else {
		var req sendMessageReq
		err = c.ShouldBindJSON(&req)
		fields = req.sendMessageFields
		if req.Message != nil {
			fields = *req.Message
		}
	}
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if fields.RoomType == "" {
		fields.RoomType = "general"
	}
	if fields.RoomID == "" {
		fields.RoomID = "general"
	}

	view, err := h.chat.SendMessage(c.Request.Context(), caller, chatsvc.SendMessageInput{
		RoomKind:        fields.RoomType,
		RoomIdentifier:  string(fields.RoomID),
		Content:         fields.Content,
		ClientMessageID: fields.ClientMessageID,
		Attachments:     uploads,
	})
	if err != nil {
		response.RespondErr(c, err, "send_message_failed")
		return
	}
	response.RespondCreated(c, gin.H{"data": view})
}

func (h *ChatHandler) bindMultipart(c *gin.Context) (sendMessageFields, []attachments.Upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return sendMessageFields{}, nil, err
	}
	value := func(keys ...string) string {
		for _, k := range keys {
			if v := form.Value[k]; len(v) > 0 {
				return v[0]
			}
		}
		return ""
	}
	fields := sendMessageFields{
		Content:         value("message[content]", "content"),
		RoomType:        value("message[room_type]", "room_type"),
		RoomID:          flexString(value("message[room_id]", "room_id")),
		ClientMessageID: value("message[client_message_id]", "client_message_id"),
	}
	var files []*multipart.FileHeader
	for _, k := range []string{"attachments[]", "attachments", "message[attachments][]"} {
		files = append(files, form.File[k]...)
	}
	if len(files) > maxAttachmentsPerMessage {
		return fields, nil, fmt.Errorf("at most %d attachments per message", maxAttachmentsPerMessage)
	}
	uploads := make([]attachments.Upload, 0, len(files))
	for _, fh := range files {
		up, err := readUpload(fh)
		if err != nil {
			return fields, nil, err
		}
		uploads = append(uploads, up)
	}
	return fields, uploads, nil
}

func readUpload(fh *multipart.FileHeader) (attachments.Upload, error) {
	if fh.Size > attachments.MaxUploadBytes {
		return attachments.Upload{}, fmt.Errorf("attachment %q exceeds %d bytes", fh.Filename, attachments.MaxUploadBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return attachments.Upload{}, err
	}
	defer f.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(f, attachments.MaxUploadBytes+1)); err != nil {
		return attachments.Upload{}, err
	}
	if buf.Len() > attachments.MaxUploadBytes {
		return attachments.Upload{}, fmt.Errorf("attachment %q exceeds %d bytes", fh.Filename, attachments.MaxUploadBytes)
	}
	return attachments.Upload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        buf.Bytes(),
	}, nil
}

type editMessageReq struct {
	Content string `json:"content"`
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
}

// PATCH /api/internal_chat/messages/:id
func (h *ChatHandler) EditMessage(c *gin.Context) {
	caller, ok := ctxutil.Caller(c.Request.Context())
	if !ok {
		unauthorized(c)
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_message_id", errors.New("invalid message id"))
		return
	}
	var req editMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	content := req.Content
	if req.Message != nil {
		content = req.Message.Content
	}
	view, err := h.chat.EditMessage(c.Request.Context(), caller, id, content)
	if err != nil {
		response.RespondErr(c, err, "edit_message_failed")
		return
	}
	response.RespondOK(c, gin.H{"data": view})
}

// DELETE /api/internal_chat/messages/:id
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	caller, ok := ctxutil.Caller(c.Request.Context())
	if !ok {
		unauthorized(c)
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_message_id", errors.New("invalid message id"))
		return
	}
	view, err := h.chat.DeleteMessage(c.Request.Context(), caller, id)
	if err != nil {
		response.RespondErr(c, err, "delete_message_failed")
		return
	}
	response.RespondOK(c, gin.H{"data": view})
}

// POST /api/internal_chat/rooms/:room_kind/:room_identifier/read
func (h *ChatHandler) MarkRead(c *gin.Context) {
	caller, ok := ctxutil.Caller(c.Request.Context())
	if !ok {
		unauthorized(c)
		return
	}
	receipt, err := h.chat.MarkRead(c.Request.Context(), caller, c.Param("room_kind"), c.Param("room_identifier"))
	if err != nil {
		response.RespondErr(c, err, "mark_read_failed")
		return
	}
	response.RespondOK(c, gin.H{"data": receipt})
}

func queryInt64(c *gin.Context, key string) int64 {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// flexString accepts a JSON string or number; clients send room ids both ways.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}
