package changes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"precedent/internal/logger"
)

const DefaultChannel = "precedent.changes"

type RedisConfig struct {
	Addr        string
	Channel     string
	DialTimeout time.Duration
}

// Redis shares notifications between server instances over Redis pub/sub.
// Local handlers run synchronously on Publish; messages echoed back from Redis
// with this instance's origin are ignored.
type Redis struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
	origin  string
	hub     hub

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRedis(ctx context.Context, cfg RedisConfig, log *logger.Logger) (*Redis, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	ch := strings.TrimSpace(cfg.Channel)
	if ch == "" {
		ch = DefaultChannel
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: timeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{
		log:     log.With("service", "RedisChangeBus", "channel", ch),
		rdb:     rdb,
		channel: ch,
		origin:  uuid.NewString(),
	}, nil
}

func (b *Redis) Subscribe(h Handler) func() {
	return b.hub.subscribe(h)
}

func (b *Redis) Publish(ctx context.Context, n Notification) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis change bus not initialized")
	}
	n.Origin = b.origin
	b.hub.dispatch(n)
	raw, err := encode(n)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// Start subscribes to the channel and forwards remote notifications to local
// handlers until ctx is done or Close is called.
func (b *Redis) Start(ctx context.Context) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis change bus not initialized")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return fmt.Errorf("redis change bus already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	b.cancel = cancel
	b.done = make(chan struct{})
	go func() {
		defer close(b.done)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				n, err := decode([]byte(m.Payload))
				if err != nil {
					b.log.Warn("bad change payload", "error", err)
					continue
				}
				if n.Origin == b.origin {
					continue
				}
				b.hub.dispatch(n)
			}
		}
	}()
	return nil
}

func (b *Redis) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	return b.rdb.Close()
}

func encode(n Notification) ([]byte, error) {
	return json.Marshal(n)
}

func decode(raw []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return Notification{}, err
	}
	if n.Kind == "" {
		return Notification{}, fmt.Errorf("notification without kind")
	}
	return n, nil
}
