// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package exchange

import (
	"context"
	"fmt"

	"github.com/luxfi/afhe/internal/queue"
)

// Role picks the side of a Redis session.
type Role uint8

const (
	RoleHost Role = iota
	RoleGuest
)

func (r Role) String() string {
	if r == RoleGuest {
		return "guest"
	}
	return "host"
}

// RedisConfig holds Redis connection settings.
type RedisConfig = queue.RedisConfig

// RedisTransport carries messages through a pair of Redis mailboxes, one per
// direction, named after the session.
type RedisTransport struct {
	mb    *queue.RedisMailbox
	inbox string
	peer  string
}

// NewRedisTransport connects to Redis for one side of session.
func NewRedisTransport(cfg RedisConfig, session string, role Role) (*RedisTransport, error) {
	if session == "" {
		return nil, fmt.Errorf("exchange: empty session name")
	}
	mb, err := queue.NewRedisMailbox(cfg)
	if err != nil {
		return nil, err
	}
	t := &RedisTransport{mb: mb}
	t.inbox = session + ":" + role.String()
	if role == RoleHost {
		t.peer = session + ":" + RoleGuest.String()
	} else {
		t.peer = session + ":" + RoleHost.String()
	}
	return t, nil
}

func (t *RedisTransport) Send(ctx context.Context, m *Message) error {
	env := &queue.Envelope{
		Kind:    uint8(m.Kind),
		Status:  m.Status,
		ParamID: m.ParamID[:],
		Payload: m.Payload,
	}
	return t.mb.Push(ctx, t.peer, env)
}

func (t *RedisTransport) Receive(ctx context.Context) (*Message, error) {
	env, err := t.mb.Pop(ctx, t.inbox)
	if err != nil {
		return nil, err
	}
	m := &Message{Kind: Kind(env.Kind), Status: env.Status, Payload: env.Payload}
	if len(env.ParamID) != 0 && len(env.ParamID) != len(m.ParamID) {
		return nil, fmt.Errorf("exchange: parameter-id of %d bytes", len(env.ParamID))
	}
	copy(m.ParamID[:], env.ParamID)
	return m, nil
}

// Purge drops anything left in this side's inbox from an earlier session.
func (t *RedisTransport) Purge(ctx context.Context) error {
	return t.mb.Purge(ctx, t.inbox)
}

func (t *RedisTransport) Close() error {
	return t.mb.Close()
}
