package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/teamchat-backend/internal/domain/identity"
	"github.com/yungbote/teamchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
	"github.com/yungbote/teamchat-backend/internal/services/directory"
)

type fakeDirectory struct {
	directory.Directory
	users map[int64]map[int64]identity.Identity
}

func (f *fakeDirectory) FindAccountUser(_ context.Context, accountID, userID int64) (*identity.Identity, error) {
	if byUser, ok := f.users[accountID]; ok {
		if id, ok := byUser[userID]; ok {
			return &id, nil
		}
	}
	return nil, nil
}

func newProvider(t *testing.T) *JWTProvider {
	t.Helper()
	dir := &fakeDirectory{users: map[int64]map[int64]identity.Identity{
		1: {7: {ID: 7, AccountID: 1, DisplayName: "Ana", Kind: identity.KindMember}},
		2: {7: {ID: 7, AccountID: 2, DisplayName: "Ana", Kind: identity.KindMember}},
	}}
	p, err := NewJWTProvider(logger.Nop(), dir, "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewJWTProvider: %v", err)
	}
	return p
}

func TestAuthenticateRoundTrip(t *testing.T) {
	p := newProvider(t)
	tok, err := p.IssueToken(7, 1)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	got, err := p.Authenticate(context.Background(), identity.Credentials{AccountID: 1, UserID: 7, Token: tok})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != 7 || got.AccountID != 1 || got.Name() != "Ana" {
		t.Fatalf("identity: got=%+v", got)
	}
	if _, err := p.Authenticate(context.Background(), identity.Credentials{Token: "Bearer " + tok}); err != nil {
		t.Fatalf("bearer prefix should be accepted: %v", err)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	p := newProvider(t)
	pinned, _ := p.IssueToken(7, 1)
	unpinned, _ := p.IssueToken(7, 0)
	stranger, _ := p.IssueToken(8, 1)

	other, _ := NewJWTProvider(logger.Nop(), &fakeDirectory{}, "other-secret", time.Hour)
	forged, _ := other.IssueToken(7, 1)

	expiredP := newProvider(t)
	expiredP.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := expiredP.IssueToken(7, 1)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, JWTClaims{UserID: 7, AccountID: 1})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := []struct {
		name  string
		creds identity.Credentials
		want  error
	}{
		{"empty", identity.Credentials{AccountID: 1}, ErrUnauthorized},
		{"garbage", identity.Credentials{AccountID: 1, Token: "nope"}, ErrUnauthorized},
		{"wrong secret", identity.Credentials{AccountID: 1, Token: forged}, ErrUnauthorized},
		{"expired", identity.Credentials{AccountID: 1, Token: expired}, ErrUnauthorized},
		{"alg none", identity.Credentials{AccountID: 1, Token: unsigned}, ErrUnauthorized},
		{"user mismatch", identity.Credentials{AccountID: 1, UserID: 9, Token: pinned}, ErrUnauthorized},
		{"account mismatch", identity.Credentials{AccountID: 2, Token: pinned}, ErrUnauthorized},
		{"unpinned without account", identity.Credentials{Token: unpinned}, ErrUnauthorized},
		{"not in account", identity.Credentials{AccountID: 3, Token: unpinned}, ErrNoAccountAccess},
		{"unknown user", identity.Credentials{AccountID: 1, Token: stranger}, ErrNoAccountAccess},
	}
	for _, tc := range cases {
		_, err := p.Authenticate(context.Background(), tc.creds)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: want=%v got=%v", tc.name, tc.want, err)
		}
	}

	if got, err := p.Authenticate(context.Background(), identity.Credentials{AccountID: 2, Token: unpinned}); err != nil || got.AccountID != 2 {
		t.Fatalf("unpinned token should select the requested account: got=%+v err=%v", got, err)
	}
}

func TestSetContextFromToken(t *testing.T) {
	p := newProvider(t)
	tok, _ := p.IssueToken(7, 1)
	ctx, err := p.SetContextFromToken(context.Background(), tok, 0)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	caller, ok := ctxutil.Caller(ctx)
	if !ok || caller.ID != 7 {
		t.Fatalf("caller: want id=7 got=%+v ok=%v", caller, ok)
	}
}
