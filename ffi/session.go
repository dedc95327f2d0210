// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package ffi is the flat, handle-based surface of afhe for callers on the
// other side of a foreign function interface.
//
// A Session owns every object it hands out. Objects are addressed by Handle
// and must be released with Free. No method panics or returns an error:
// failures are recorded in the session's error slot and the method returns a
// sentinel (handle 0, -1, nil or ""). Callers check the sentinel after each
// call and then read LastError.
//
// The handle table is safe for concurrent use. The error slot is not, so a
// session belongs to one thread.
package ffi

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/luxfi/afhe"
)

// Handle addresses an object owned by a Session. Zero is never valid.
type Handle uint64

// InvalidHandle is returned by failed constructors.
const InvalidHandle Handle = 0

// Session is one caller's handle table and error slot.
type Session struct {
	mu      sync.Mutex
	objects map[Handle]any
	next    Handle

	lastErr  string
	lastCode int

	log *zap.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. Recovered panics are logged at error level.
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSession returns an empty session.
func NewSession(opts ...Option) *Session {
	s := &Session{objects: make(map[Handle]any), log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LastError returns the most recent failure message, or "" if the slot is
// clear. Reading does not clear it.
func (s *Session) LastError() string { return s.lastErr }

// LastCode returns the code of the most recent failure, or CodeOK.
func (s *Session) LastCode() int { return s.lastCode }

// ClearError empties the error slot.
func (s *Session) ClearError() {
	s.lastErr = ""
	s.lastCode = CodeOK
}

// Report records err in the error slot. Bindings use it for argument errors
// found before any session call.
func (s *Session) Report(err error) { s.fail(err) }

func (s *Session) fail(err error) {
	s.lastErr = err.Error()
	s.lastCode = Code(err)
}

// guard runs fn, converting a returned error or a panic into the slot.
func (s *Session) guard(op string, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("recovered panic", zap.String("op", op), zap.Any("panic", r))
			s.lastErr = fmt.Sprintf("%s: %v", op, r)
			s.lastCode = CodePanic
			ok = false
		}
	}()
	if err := fn(); err != nil {
		s.fail(err)
		return false
	}
	return true
}

func (s *Session) put(v any) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.objects[s.next] = v
	return s.next
}

// Free releases h. It returns CodeOK, or -1 with the slot set when h is not
// live.
func (s *Session) Free(h Handle) int {
	s.mu.Lock()
	_, ok := s.objects[h]
	delete(s.objects, h)
	s.mu.Unlock()
	if !ok {
		s.fail(badHandle(h, "object"))
		return -1
	}
	return CodeOK
}

// Live returns the number of handles not yet freed.
func (s *Session) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Close releases every handle.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = make(map[Handle]any)
}

func badHandle(h Handle, what string) error {
	return &afhe.Error{Kind: afhe.KindInvalidArgument, Msg: fmt.Sprintf("handle %d is not a live %s", h, what)}
}

func lookup[T any](s *Session, h Handle, what string) (T, error) {
	s.mu.Lock()
	v, ok := s.objects[h]
	s.mu.Unlock()
	t, isT := v.(T)
	if !ok || !isT {
		var zero T
		return zero, badHandle(h, what)
	}
	return t, nil
}
