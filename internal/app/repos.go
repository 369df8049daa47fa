package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/teamchat-backend/internal/data/repos"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
)

type Repos struct {
	Room       repos.RoomRepo
	Membership repos.MembershipRepo
	Message    repos.MessageRepo
	Attachment repos.AttachmentRepo
	User       repos.UserRepo
	Team       repos.TeamRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Room:       repos.NewRoomRepo(db, log),
		Membership: repos.NewMembershipRepo(db, log),
		Message:    repos.NewMessageRepo(db, log),
		Attachment: repos.NewAttachmentRepo(db, log),
		User:       repos.NewUserRepo(db, log),
		Team:       repos.NewTeamRepo(db, log),
	}
}
