// Package identity holds the resolved caller value shared by every layer.
// A caller is either an ordinary account member or a cross-account super user;
// downstream code asks capabilities of the value instead of branching on its origin.
package identity

import "strings"

type Kind string

const (
	KindMember    Kind = "member"
	KindSuperUser Kind = "super_user"
)

type Identity struct {
	ID          int64  `json:"id"`
	AccountID   int64  `json:"account_id"`
	DisplayName string `json:"name"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatar_url"`
	Kind        Kind   `json:"kind"`
}

func (i Identity) IsSuperUser() bool { return i.Kind == KindSuperUser }

func (i Identity) Valid() bool { return i.ID > 0 && i.AccountID > 0 }

// Name falls back to the email local part when no display name is set.
func (i Identity) Name() string {
	if n := strings.TrimSpace(i.DisplayName); n != "" {
		return n
	}
	if at := strings.Index(i.Email, "@"); at > 0 {
		return i.Email[:at]
	}
	return i.Email
}

// Credentials are what a client presents when authenticating a request or a subscription.
type Credentials struct {
	AccountID int64
	UserID    int64
	Token     string
}
