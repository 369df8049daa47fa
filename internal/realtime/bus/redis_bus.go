package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/teamchat-backend/internal/domain/chat"
	"github.com/yungbote/teamchat-backend/internal/observability"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces the per-account channels, e.g. "teamchat:".
	Prefix  string
	Metrics *observability.Metrics
}

type redisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	prefix  string
	metrics *observability.Metrics
}

func NewRedisBus(log *logger.Logger, cfg RedisConfig) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisBus(log, rdb, cfg), nil
}

// NewRedisBusFromClient wraps an existing client; the bus takes ownership of it.
func NewRedisBusFromClient(log *logger.Logger, rdb *goredis.Client, cfg RedisConfig) Bus {
	return newRedisBus(log, rdb, cfg)
}

func newRedisBus(log *logger.Logger, rdb *goredis.Client, cfg RedisConfig) *redisBus {
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = "teamchat:"
	}
	return &redisBus{
		log:     log.With("service", "RedisEnvelopeBus"),
		rdb:     rdb,
		prefix:  prefix,
		metrics: cfg.Metrics,
	}
}

func (b *redisBus) Client() *goredis.Client { return b.rdb }

func (b *redisBus) topic(accountID int64) string {
	return b.prefix + chat.AccountChannel(accountID)
}

func (b *redisBus) Publish(ctx context.Context, env chat.Envelope) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis envelope bus not initialized")
	}
	if env.AccountID <= 0 {
		return fmt.Errorf("envelope without account_id")
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.topic(env.AccountID), raw).Err(); err != nil {
		b.metrics.IncBusError("publish")
		return err
	}
	return nil
}

// StartForwarder pattern-subscribes to every account channel and returns once
// the subscription is live.
func (b *redisBus) StartForwarder(ctx context.Context, onEnvelope func(env chat.Envelope)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis envelope bus not initialized")
	}
	if onEnvelope == nil {
		return fmt.Errorf("onEnvelope callback required")
	}
	pattern := b.prefix + chat.AccountChannelPrefix + "*"
	sub := b.rdb.PSubscribe(ctx, pattern)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	b.log.Info("redis forwarder started", "pattern", pattern)

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var env chat.Envelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					b.metrics.IncBusError("decode")
					b.log.Warn("bad redis envelope payload", "channel", m.Channel, "error", err)
					continue
				}
				onEnvelope(env)
			}
		}
	}()
	return nil
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
