package chat

import (
	"context"
	"fmt"

	domainchat "github.com/yungbote/teamchat-backend/internal/domain/chat"
	"github.com/yungbote/teamchat-backend/internal/realtime"
	"github.com/yungbote/teamchat-backend/internal/realtime/bus"
)

type EnvelopeEmitter interface {
	Emit(ctx context.Context, env domainchat.Envelope) error
}

// HubEmitter delivers to subscribers connected to this instance only.
type HubEmitter struct{ Hub *realtime.Hub }

func (e *HubEmitter) Emit(_ context.Context, env domainchat.Envelope) error {
	if e == nil || e.Hub == nil {
		return nil
	}
	e.Hub.Publish(env.AccountID, env)
	return nil
}

// RedisEmitter publishes through the bus; every instance's forwarder
// republishes into its own hub. When the bus is down the envelope still
// reaches local subscribers through Fallback.
type RedisEmitter struct {
	Bus      bus.Bus
	Fallback *realtime.Hub
}

func (e *RedisEmitter) Emit(ctx context.Context, env domainchat.Envelope) error {
	if e == nil || e.Bus == nil {
		return nil
	}
	if err := e.Bus.Publish(ctx, env); err != nil {
		if e.Fallback != nil {
			e.Fallback.Publish(env.AccountID, env)
		}
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
