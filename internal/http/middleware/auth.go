package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/teamchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
	"github.com/yungbote/teamchat-backend/internal/services/auth"
)

const headerAccountID = "X-Account-Id"

// TokenAuthenticator resolves a bearer token into a caller attached to ctx.
type TokenAuthenticator interface {
	SetContextFromToken(ctx context.Context, tokenString string, accountID int64) (context.Context, error)
}

type AuthMiddleware struct {
	log  *logger.Logger
	auth TokenAuthenticator
}

func NewAuthMiddleware(log *logger.Logger, authenticator TokenAuthenticator) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "AuthMiddleware"), auth: authenticator}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractTokenFromAll(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid token", "code": "unauthorized"},
			})
			return
		}
		accountID := RequestedAccountID(c)
		ctx, err := am.auth.SetContextFromToken(c.Request.Context(), tokenString, accountID)
		if err != nil {
			status, code := http.StatusUnauthorized, "unauthorized"
			if errors.Is(err, auth.ErrNoAccountAccess) {
				status, code = http.StatusForbidden, "forbidden"
			} else if !errors.Is(err, auth.ErrUnauthorized) {
				am.log.Warn("authentication failed", "account_id", accountID, "error", err)
				status, code = http.StatusInternalServerError, "auth_failed"
			}
			c.AbortWithStatusJSON(status, gin.H{
				"error": gin.H{"message": err.Error(), "code": code},
			})
			return
		}
		c.Request = c.Request.WithContext(ctx)
		if _, ok := ctxutil.Caller(ctx); !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"message": "forbidden", "code": "forbidden"},
			})
			return
		}
		c.Next()
	}
}

// RequestedAccountID reads the account from ?account_id or X-Account-Id; 0 when absent.
func RequestedAccountID(c *gin.Context) int64 {
	raw := strings.TrimSpace(c.Query("account_id"))
	if raw == "" {
		raw = strings.TrimSpace(c.GetHeader(headerAccountID))
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

func extractTokenFromAll(c *gin.Context) string {
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
