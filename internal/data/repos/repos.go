package repos

import (
	"github.com/yungbote/teamchat-backend/internal/data/repos/chat"
	"github.com/yungbote/teamchat-backend/internal/data/repos/directory"
)

type RoomRepo = chat.RoomRepo
type MembershipRepo = chat.MembershipRepo
type MessageRepo = chat.MessageRepo
type AttachmentRepo = chat.AttachmentRepo

type UserRepo = directory.UserRepo
type TeamRepo = directory.TeamRepo

var (
	NewRoomRepo       = chat.NewRoomRepo
	NewMembershipRepo = chat.NewMembershipRepo
	NewMessageRepo    = chat.NewMessageRepo
	NewAttachmentRepo = chat.NewAttachmentRepo

	NewUserRepo = directory.NewUserRepo
	NewTeamRepo = directory.NewTeamRepo
)
