// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package exchange

import (
	"context"
	"sync"
)

// pipeDepth is how many messages may be in flight per direction.
const pipeDepth = 16

type pipeEnd struct {
	in   <-chan *Message
	out  chan<- *Message
	done chan struct{}
	peer <-chan struct{}
	once sync.Once
}

// NewPipe returns the two ends of an in-memory transport.
func NewPipe() (Transport, Transport) {
	ab := make(chan *Message, pipeDepth)
	ba := make(chan *Message, pipeDepth)
	a := &pipeEnd{in: ba, out: ab, done: make(chan struct{})}
	b := &pipeEnd{in: ab, out: ba, done: make(chan struct{})}
	a.peer, b.peer = b.done, a.done
	return a, b
}

func (p *pipeEnd) Send(ctx context.Context, m *Message) error {
	select {
	case <-p.done:
		return ErrClosed
	case <-p.peer:
		return ErrClosed
	default:
	}
	select {
	case p.out <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrClosed
	case <-p.peer:
		return ErrClosed
	}
}

// Receive drains messages sent before the peer closed.
func (p *pipeEnd) Receive(ctx context.Context) (*Message, error) {
	select {
	case m := <-p.in:
		return m, nil
	default:
	}
	select {
	case m := <-p.in:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrClosed
	case <-p.peer:
		select {
		case m := <-p.in:
			return m, nil
		default:
			return nil, ErrClosed
		}
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
