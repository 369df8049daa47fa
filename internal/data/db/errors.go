package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yungbote/teamchat-backend/internal/domain/chat"
)

// ErrConflict marks a unique-constraint violation. Callers doing get-or-create
// treat it as "row already exists" and re-read.
var ErrConflict = errors.New("unique constraint conflict")

func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.TrimSpace(pgErr.Code) == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "already exists")
}

// MapError classifies infrastructure failures into chat error codes.
// Already classified errors pass through untouched.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *chat.Error
	if errors.As(err, &ce) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return chat.Wrap(chat.CodeNotFound, op, err)
	case IsUniqueViolation(err):
		return chat.NewError(chat.CodeInvalidState, op, "duplicate key", errors.Join(ErrConflict, err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return chat.Wrap(chat.CodeStorage, op, err)
	default:
		return chat.Wrap(chat.CodeStorage, op, err)
	}
}
