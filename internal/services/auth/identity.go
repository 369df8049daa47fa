// Package auth turns presented credentials into a resolved identity.Identity.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/teamchat-backend/internal/domain/identity"
	"github.com/yungbote/teamchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
	"github.com/yungbote/teamchat-backend/internal/services/directory"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoAccountAccess means the token is valid but the user cannot act in the requested account.
	ErrNoAccountAccess = errors.New("no access to account")
)

type IdentityProvider interface {
	Authenticate(ctx context.Context, creds identity.Credentials) (identity.Identity, error)
}

// JWTClaims carry the user and, optionally, the account the token is pinned to.
// A token without account_id may act in any account the user can reach.
type JWTClaims struct {
	UserID    int64 `json:"user_id"`
	AccountID int64 `json:"account_id,omitempty"`
	jwt.RegisteredClaims
}

type JWTProvider struct {
	log       *logger.Logger
	dir       directory.Directory
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

var _ IdentityProvider = (*JWTProvider)(nil)

func NewJWTProvider(log *logger.Logger, dir directory.Directory, secret string, accessTTL time.Duration) (*JWTProvider, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("missing JWT_SECRET_KEY")
	}
	if accessTTL <= 0 {
		accessTTL = 24 * time.Hour
	}
	return &JWTProvider{
		log:       log.With("service", "JWTProvider"),
		dir:       dir,
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
	}, nil
}

func (p *JWTProvider) GetAccessTTL() time.Duration {
	return p.accessTTL
}

// IssueToken mints an HS256 access token. accountID may be 0.
func (p *JWTProvider) IssueToken(userID, accountID int64) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("invalid user id %d", userID)
	}
	now := p.now()
	claims := JWTClaims{
		UserID:    userID,
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userID),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

func (p *JWTProvider) ParseToken(tokenString string) (*JWTClaims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tokenString), "Bearer "))
	if tokenString == "" {
		return nil, ErrUnauthorized
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(p.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid || claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: invalid or expired token", ErrUnauthorized)
	}
	return claims, nil
}

// Authenticate verifies the token and that the presented account/user agree with it,
// then loads the caller from the directory.
func (p *JWTProvider) Authenticate(ctx context.Context, creds identity.Credentials) (identity.Identity, error) {
	claims, err := p.ParseToken(creds.Token)
	if err != nil {
		return identity.Identity{}, err
	}
	if creds.UserID > 0 && creds.UserID != claims.UserID {
		return identity.Identity{}, fmt.Errorf("%w: user mismatch", ErrUnauthorized)
	}
	accountID := claims.AccountID
	switch {
	case accountID == 0:
		accountID = creds.AccountID
	case creds.AccountID > 0 && creds.AccountID != accountID:
		return identity.Identity{}, fmt.Errorf("%w: account mismatch", ErrUnauthorized)
	}
	if accountID <= 0 {
		return identity.Identity{}, fmt.Errorf("%w: missing account", ErrUnauthorized)
	}
	caller, err := p.dir.FindAccountUser(ctx, accountID, claims.UserID)
	if err != nil {
		p.log.Warn("directory lookup failed", "account_id", accountID, "user_id", claims.UserID, "error", err)
		return identity.Identity{}, err
	}
	if caller == nil {
		return identity.Identity{}, ErrNoAccountAccess
	}
	return *caller, nil
}

// SetContextFromToken attaches the resolved caller to ctx.
func (p *JWTProvider) SetContextFromToken(ctx context.Context, tokenString string, accountID int64) (context.Context, error) {
	caller, err := p.Authenticate(ctx, identity.Credentials{AccountID: accountID, Token: tokenString})
	if err != nil {
		return ctx, err
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{TokenString: tokenString, Identity: caller}), nil
}
