// Package queue provides the Redis mailboxes that carry exchange messages
// between processes.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Common errors.
var (
	ErrMailboxEmpty    = errors.New("mailbox is empty")
	ErrMessageNotFound = errors.New("message not found")
)

// DefaultTTL bounds how long an undelivered message is kept.
const DefaultTTL = 24 * time.Hour

// Envelope is one message in a mailbox.
type Envelope struct {
	ID        string    `json:"id"`
	Kind      uint8     `json:"kind"`
	Status    string    `json:"status,omitempty"`
	ParamID   []byte    `json:"param_id,omitempty"`
	Payload   []byte    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Mailbox is a set of named FIFO boxes.
type Mailbox interface {
	// Push appends env to box.
	Push(ctx context.Context, box string, env *Envelope) error
	// Pop blocks until box holds a message or ctx is done.
	Pop(ctx context.Context, box string) (*Envelope, error)
	// Close closes the connection.
	Close() error
}

// RedisMailbox implements Mailbox with a Redis list of ids per box and one
// key per message.
type RedisMailbox struct {
	client    *redis.Client
	boxPrefix string
	msgPrefix string
	seqKey    string
	ttl       time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL of undelivered messages. Zero means DefaultTTL.
	TTL time.Duration
}

// NewRedisMailbox connects and pings the server.
func NewRedisMailbox(cfg RedisConfig) (*RedisMailbox, error) {
	client := redis.NewClient(&redis.Options{
		Addr:                  cfg.Addr,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		ContextTimeoutEnabled: true,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisMailbox{
		client:    client,
		boxPrefix: "afhe:box:",
		msgPrefix: "afhe:msg:",
		seqKey:    "afhe:seq",
		ttl:       ttl,
	}, nil
}

func (m *RedisMailbox) Push(ctx context.Context, box string, env *Envelope) error {
	if env.ID == "" {
		seq, err := m.client.Incr(ctx, m.seqKey).Result()
		if err != nil {
			return fmt.Errorf("allocate message id: %w", err)
		}
		env.ID = strconv.FormatInt(seq, 10)
	}
	env.CreatedAt = time.Now()

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	pipe := m.client.Pipeline()
	pipe.Set(ctx, m.msgPrefix+env.ID, data, m.ttl)
	pipe.LPush(ctx, m.boxPrefix+box, env.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push message: %w", err)
	}

	return nil
}

func (m *RedisMailbox) Pop(ctx context.Context, box string) (*Envelope, error) {
	result, err := m.client.BRPop(ctx, 0, m.boxPrefix+box).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("pop message: %w", err)
	}

	if len(result) < 2 {
		return nil, ErrMailboxEmpty
	}

	key := m.msgPrefix + result[1]
	data, err := m.client.GetDel(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}

	return &env, nil
}

// Purge drops every pending message id of box.
func (m *RedisMailbox) Purge(ctx context.Context, box string) error {
	return m.client.Del(ctx, m.boxPrefix+box).Err()
}

func (m *RedisMailbox) Close() error {
	return m.client.Close()
}
