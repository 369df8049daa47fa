package bus

import (
	"context"

	"github.com/yungbote/teamchat-backend/internal/domain/chat"
)

// Bus carries envelopes between instances; each instance forwards what it
// receives into its local hub.
type Bus interface {
	Publish(ctx context.Context, env chat.Envelope) error
	StartForwarder(ctx context.Context, onEnvelope func(env chat.Envelope)) error
	Close() error
}
