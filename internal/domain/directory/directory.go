package directory

import (
	"time"

	"github.com/yungbote/teamchat-backend/internal/domain/identity"
)

type Account struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"column:name;type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Account) TableName() string { return "account" }

// User is global; account membership lives in AccountUser. Super users reach
// other accounts through SuperUserAccess grants.
type User struct {
	ID          int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Email       string        `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	DisplayName string        `gorm:"column:display_name;type:varchar(255);not null;default:''" json:"display_name"`
	AvatarURL   string        `gorm:"column:avatar_url;type:text;not null;default:''" json:"avatar_url"`
	Kind        identity.Kind `gorm:"column:kind;type:varchar(16);not null;default:'member';index" json:"kind"`
	CreatedAt   time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "chat_user" }

func (u *User) Identity(accountID int64) identity.Identity {
	kind := u.Kind
	if kind == "" {
		kind = identity.KindMember
	}
	return identity.Identity{
		ID:          u.ID,
		AccountID:   accountID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		AvatarURL:   u.AvatarURL,
		Kind:        kind,
	}
}

type AccountUser struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID          int64     `gorm:"column:account_id;not null;index:idx_account_user_account_user,unique,priority:1" json:"account_id"`
	UserID             int64     `gorm:"column:user_id;not null;index:idx_account_user_account_user,unique,priority:2;index" json:"user_id"`
	Role               string    `gorm:"column:role;type:varchar(32);not null;default:'agent'" json:"role"`
	AvailabilityStatus string    `gorm:"column:availability_status;type:varchar(32);not null;default:'offline'" json:"availability_status"`
	CreatedAt          time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time `gorm:"not null" json:"updated_at"`
}

func (AccountUser) TableName() string { return "account_user" }

type SuperUserAccess struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64     `gorm:"column:account_id;not null;index:idx_super_user_access_account_user,unique,priority:1" json:"account_id"`
	UserID    int64     `gorm:"column:user_id;not null;index:idx_super_user_access_account_user,unique,priority:2" json:"user_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (SuperUserAccess) TableName() string { return "super_user_access" }

type Team struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID   int64     `gorm:"column:account_id;not null;index" json:"account_id"`
	Name        string    `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Description string    `gorm:"column:description;type:text;not null;default:''" json:"description"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Team) TableName() string { return "team" }

func (t *Team) BelongsTo(accountID int64) bool { return t != nil && t.AccountID == accountID }

type TeamMember struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TeamID    int64     `gorm:"column:team_id;not null;index:idx_team_member_team_user,unique,priority:1" json:"team_id"`
	UserID    int64     `gorm:"column:user_id;not null;index:idx_team_member_team_user,unique,priority:2;index" json:"user_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (TeamMember) TableName() string { return "team_member" }

// Member is a user as seen from one account, with the account-scoped presence field.
type Member struct {
	User               User
	AvailabilityStatus string
}
