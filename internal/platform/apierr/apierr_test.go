package apierr

import (
	"errors"
	"net/http"
	"testing"

	domainchat "github.com/yungbote/teamchat-backend/internal/domain/chat"
)

func TestFromMapsChatCodes(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domainchat.NotFound("op", "room not found"), http.StatusNotFound, "not_found"},
		{domainchat.Validation("op", "content is required"), http.StatusUnprocessableEntity, "validation"},
		{domainchat.Forbidden("op", "nope"), http.StatusForbidden, "forbidden"},
		{domainchat.InvalidState("op", "deleted"), http.StatusConflict, "invalid_state"},
		{domainchat.NewError(domainchat.CodeTransport, "op", "bus down", nil), http.StatusServiceUnavailable, "transport"},
		{domainchat.NewError(domainchat.CodeStorage, "op", "pq: relation missing", nil), http.StatusInternalServerError, "storage"},
		{errors.New("boom"), http.StatusInternalServerError, "send_failed"},
	}
	for _, tc := range cases {
		got := From(tc.err, "send_failed")
		if got.Status != tc.status || got.Code != tc.code {
			t.Fatalf("%v: want=%d/%s got=%d/%s", tc.err, tc.status, tc.code, got.Status, got.Code)
		}
	}
	if got := From(domainchat.NewError(domainchat.CodeStorage, "op", "pq: relation missing", nil), "x"); got.Error() != "Internal Server Error" {
		t.Fatalf("storage message leaked: got=%q", got.Error())
	}
	if From(nil, "x") != nil {
		t.Fatalf("nil error should map to nil")
	}
}
