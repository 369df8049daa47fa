package domain

import (
	"github.com/yungbote/teamchat-backend/internal/domain/chat"
	"github.com/yungbote/teamchat-backend/internal/domain/directory"
)

type (
	Room       = chat.Room
	Membership = chat.Membership
	Message    = chat.Message
	Attachment = chat.Attachment

	Account         = directory.Account
	User            = directory.User
	AccountUser     = directory.AccountUser
	SuperUserAccess = directory.SuperUserAccess
	Team            = directory.Team
	TeamMember      = directory.TeamMember
)

// Models lists every persisted type in migration order.
func Models() []any {
	return []any{
		&Account{},
		&User{},
		&AccountUser{},
		&SuperUserAccess{},
		&Team{},
		&TeamMember{},
		&Room{},
		&Membership{},
		&Message{},
		&Attachment{},
	}
}
