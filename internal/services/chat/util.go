package chat

import (
	"context"
	"strconv"

	"github.com/yungbote/teamchat-backend/internal/platform/dbctx"
)

func ctxOf(dbc dbctx.Context) context.Context {
	if dbc.Ctx == nil {
		return context.Background()
	}
	return dbc.Ctx
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
