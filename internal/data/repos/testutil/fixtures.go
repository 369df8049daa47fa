package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/teamchat-backend/internal/domain"
	"github.com/yungbote/teamchat-backend/internal/domain/identity"
)

func SeedAccount(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *types.Account {
	tb.Helper()
	a := &types.Account{Name: name}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed account: %v", err)
	}
	return a
}

// SeedUser creates a user and, when accountID > 0, attaches it to that account.
func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, accountID int64, name string) *types.User {
	tb.Helper()
	u := &types.User{
		Email:       uuid.NewString()[:8] + "@example.com",
		DisplayName: name,
		AvatarURL:   "https://cdn.example.com/" + name + ".png",
		Kind:        identity.KindMember,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	if accountID > 0 {
		SeedAccountUser(tb, ctx, tx, accountID, u.ID)
	}
	return u
}

func SeedAccountUser(tb testing.TB, ctx context.Context, tx *gorm.DB, accountID, userID int64) *types.AccountUser {
	tb.Helper()
	au := &types.AccountUser{AccountID: accountID, UserID: userID, Role: "agent", AvailabilityStatus: "online"}
	if err := tx.WithContext(ctx).Create(au).Error; err != nil {
		tb.Fatalf("seed account user: %v", err)
	}
	return au
}

// SeedSuperUser creates a super user with access grants to the given accounts.
func SeedSuperUser(tb testing.TB, ctx context.Context, tx *gorm.DB, name string, accountIDs ...int64) *types.User {
	tb.Helper()
	u := &types.User{
		Email:       uuid.NewString()[:8] + "@ops.example.com",
		DisplayName: name,
		Kind:        identity.KindSuperUser,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed super user: %v", err)
	}
	for _, accountID := range accountIDs {
		if err := tx.WithContext(ctx).Create(&types.SuperUserAccess{AccountID: accountID, UserID: u.ID}).Error; err != nil {
			tb.Fatalf("seed super user access: %v", err)
		}
	}
	return u
}

func SeedTeam(tb testing.TB, ctx context.Context, tx *gorm.DB, accountID int64, name string, memberIDs ...int64) *types.Team {
	tb.Helper()
	t := &types.Team{AccountID: accountID, Name: name}
	if err := tx.WithContext(ctx).Create(t).Error; err != nil {
		tb.Fatalf("seed team: %v", err)
	}
	for _, userID := range memberIDs {
		if err := tx.WithContext(ctx).Create(&types.TeamMember{TeamID: t.ID, UserID: userID}).Error; err != nil {
			tb.Fatalf("seed team member: %v", err)
		}
	}
	return t
}
