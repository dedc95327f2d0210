// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package exchange runs the host/guest protocol that shares an afhe context,
// optionally a secret key, and ciphertexts between independent processes.
//
// The host generates the context and sends its parameters with the validity
// status. The guest rebuilds the context from those bytes and aborts unless it
// reaches the same status and parameter-id. Afterwards the guest either
// imports the host's secret key for shared decryption or generates its own.
package exchange

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/luxfi/afhe"
)

// Kind tags a Message.
type Kind uint8

const (
	KindParameters Kind = iota + 1
	KindSecretKey
	KindPublicKey
	KindCiphertext
	KindAbort
)

func (k Kind) String() string {
	switch k {
	case KindParameters:
		return "parameters"
	case KindSecretKey:
		return "secret key"
	case KindPublicKey:
		return "public key"
	case KindCiphertext:
		return "ciphertext"
	case KindAbort:
		return "abort"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is one protocol step on the wire.
type Message struct {
	Kind Kind
	// Status is the sender's context status for parameter messages and the
	// reason for aborts.
	Status  string
	ParamID afhe.ParameterID
	Payload []byte
}

// Transport moves messages between the two parties.
type Transport interface {
	Send(ctx context.Context, m *Message) error
	Receive(ctx context.Context) (*Message, error)
	Close() error
}

// State is a party's position in the protocol.
type State uint8

const (
	StateUninitialized State = iota
	StateContextReady
	StateKeysReady
	StateCryptoLive
)

func (s State) String() string {
	switch s {
	case StateContextReady:
		return "context-ready"
	case StateKeysReady:
		return "keys-ready"
	case StateCryptoLive:
		return "crypto-live"
	default:
		return "uninitialized"
	}
}

var (
	ErrState   = errors.New("exchange: step not allowed in this state")
	ErrAborted = errors.New("exchange: peer aborted")
	ErrClosed  = errors.New("exchange: transport closed")
)

// Option configures a party.
type Option func(*party)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *party) {
		if log != nil {
			p.log = log
		}
	}
}

// WithCompression sets the compression of outgoing artifacts. Incoming
// artifacts describe their own compression.
func WithCompression(mode afhe.CompressionMode) Option {
	return func(p *party) { p.mode = mode }
}

type party struct {
	fhe   *afhe.Context
	tr    Transport
	state State
	mode  afhe.CompressionMode
	log   *zap.Logger
}

func newParty(fhe *afhe.Context, tr Transport, role string, opts []Option) party {
	p := party{fhe: fhe, tr: tr, mode: afhe.CompressionZstd, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&p)
	}
	p.log = p.log.With(zap.String("role", role))
	return p
}

// State returns the protocol state.
func (p *party) State() State { return p.state }

// Context returns the facade the party drives.
func (p *party) Context() *afhe.Context { return p.fhe }

// Reset returns the party to the start. The context is regenerated by the
// next exchange.
func (p *party) Reset() { p.state = StateUninitialized }

func (p *party) require(states ...State) error {
	for _, s := range states {
		if p.state == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrState, p.state)
}

func (p *party) advance(s State) {
	if s > p.state {
		p.log.Debug("state", zap.Stringer("from", p.state), zap.Stringer("to", s))
		p.state = s
	}
}

// receive waits for a message of kind want. An abort from the peer is
// reported as a parameter mismatch.
func (p *party) receive(ctx context.Context, want Kind) (*Message, error) {
	m, err := p.tr.Receive(ctx)
	if err != nil {
		return nil, fmt.Errorf("receive %s: %w", want, err)
	}
	switch m.Kind {
	case want:
		return m, nil
	case KindAbort:
		p.log.Warn("peer aborted", zap.String("reason", m.Status))
		return nil, &afhe.Error{Kind: afhe.KindParameterMismatch, Msg: "peer aborted: " + m.Status, Err: ErrAborted}
	default:
		return nil, &afhe.Error{Kind: afhe.KindInvalidArgument, Msg: fmt.Sprintf("expected %s message, got %s", want, m.Kind)}
	}
}

func (p *party) send(ctx context.Context, kind Kind, obj afhe.Saveable, id afhe.ParameterID) error {
	blob, err := afhe.Save(obj, p.mode)
	if err != nil {
		return err
	}
	if err := p.tr.Send(ctx, &Message{Kind: kind, ParamID: id, Payload: blob}); err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}
	p.log.Debug("sent", zap.Stringer("kind", kind), zap.Int("bytes", len(blob)))
	return nil
}

// SendCiphertext ships ct to the peer.
func (p *party) SendCiphertext(ctx context.Context, ct *afhe.Ciphertext) error {
	if err := p.require(StateKeysReady, StateCryptoLive); err != nil {
		return err
	}
	if err := p.send(ctx, KindCiphertext, ct, ct.ParameterID()); err != nil {
		return err
	}
	p.advance(StateCryptoLive)
	return nil
}

// ReceiveCiphertext loads the next ciphertext from the peer under this
// party's context. A ciphertext from other parameters is refused.
func (p *party) ReceiveCiphertext(ctx context.Context) (*afhe.Ciphertext, error) {
	if err := p.require(StateKeysReady, StateCryptoLive); err != nil {
		return nil, err
	}
	m, err := p.receive(ctx, KindCiphertext)
	if err != nil {
		return nil, err
	}
	ct, err := p.fhe.LoadCiphertext(m.Payload)
	if err != nil {
		p.log.Error("ciphertext refused", zap.Error(err))
		return nil, err
	}
	p.advance(StateCryptoLive)
	return ct, nil
}

// Host generates the context and leads the exchange.
type Host struct{ party }

// NewHost returns a host driving fhe over tr.
func NewHost(fhe *afhe.Context, tr Transport, opts ...Option) *Host {
	return &Host{newParty(fhe, tr, "host", opts)}
}

// ShareContext generates the context from params and sends the parameters.
// A rejected parameter set is returned as ParameterValidationFailed and
// nothing is sent.
func (h *Host) ShareContext(ctx context.Context, params afhe.Parameters) error {
	if err := h.require(StateUninitialized); err != nil {
		return err
	}
	if status := h.fhe.GenerateParameters(params); status != afhe.StatusValid {
		return &afhe.Error{Kind: afhe.KindParameterValidationFailed, Msg: status}
	}
	p, err := h.fhe.Parameters()
	if err != nil {
		return err
	}
	blob, err := afhe.Save(p, h.mode)
	if err != nil {
		return err
	}
	m := &Message{
		Kind:    KindParameters,
		Status:  h.fhe.Status(),
		ParamID: h.fhe.ParameterID(h.fhe.MaxLevel()),
		Payload: blob,
	}
	if err := h.tr.Send(ctx, m); err != nil {
		return fmt.Errorf("send parameters: %w", err)
	}
	h.log.Info("context shared", zap.Stringer("param_id", m.ParamID), zap.Int("bytes", len(blob)))
	h.advance(StateContextReady)
	return nil
}

// GenerateKeys creates the host key pair.
func (h *Host) GenerateKeys() error {
	if err := h.require(StateContextReady); err != nil {
		return err
	}
	if err := h.fhe.GenerateKeys(); err != nil {
		return err
	}
	h.advance(StateKeysReady)
	return nil
}

// ShareSecretKey sends the secret key so the guest can decrypt. Only do this
// when the guest is meant to share decryption capability.
func (h *Host) ShareSecretKey(ctx context.Context) error {
	if err := h.require(StateKeysReady, StateCryptoLive); err != nil {
		return err
	}
	sk := h.fhe.SecretKey()
	if err := h.send(ctx, KindSecretKey, sk, sk.ParameterID()); err != nil {
		return err
	}
	h.log.Warn("secret key shared with guest")
	return nil
}

// SendPlaintext encrypts pt under the host key and sends it.
func (h *Host) SendPlaintext(ctx context.Context, pt *afhe.Plaintext) error {
	if err := h.require(StateKeysReady, StateCryptoLive); err != nil {
		return err
	}
	ct, err := h.fhe.Encrypt(pt)
	if err != nil {
		return err
	}
	return h.SendCiphertext(ctx, ct)
}

// Guest joins an exchange led by a host.
type Guest struct{ party }

// NewGuest returns a guest driving fhe over tr.
func NewGuest(fhe *afhe.Context, tr Transport, opts ...Option) *Guest {
	return &Guest{newParty(fhe, tr, "guest", opts)}
}

// Join receives the host parameters and rebuilds the context. The guest
// sends an abort and fails with ParameterMismatch unless it reaches the same
// status and parameter-id as the host.
func (g *Guest) Join(ctx context.Context) error {
	if err := g.require(StateUninitialized); err != nil {
		return err
	}
	m, err := g.receive(ctx, KindParameters)
	if err != nil {
		return err
	}

	status := g.fhe.GenerateFromBlob(m.Payload, true)
	var reason string
	switch {
	case status != m.Status:
		reason = fmt.Sprintf("status %q, host reported %q", status, m.Status)
	case g.fhe.ParameterID(g.fhe.MaxLevel()) != m.ParamID:
		reason = fmt.Sprintf("parameter-id %s, host reported %s", g.fhe.ParameterID(g.fhe.MaxLevel()), m.ParamID)
	}
	if reason != "" {
		g.log.Error("aborting exchange", zap.String("reason", reason))
		if err := g.tr.Send(ctx, &Message{Kind: KindAbort, Status: reason}); err != nil {
			g.log.Warn("abort not delivered", zap.Error(err))
		}
		return &afhe.Error{Kind: afhe.KindParameterMismatch, Msg: "context mismatch: " + reason}
	}

	g.log.Info("joined", zap.Stringer("param_id", m.ParamID))
	g.advance(StateContextReady)
	return nil
}

// ImportSecretKey receives the host secret key and derives the public key
// from it.
func (g *Guest) ImportSecretKey(ctx context.Context) error {
	if err := g.require(StateContextReady); err != nil {
		return err
	}
	m, err := g.receive(ctx, KindSecretKey)
	if err != nil {
		return err
	}
	sk, err := g.fhe.LoadKey(afhe.KeySecret, m.Payload)
	if err != nil {
		return err
	}
	if err := g.fhe.GenerateKeysFromSecret(sk); err != nil {
		return err
	}
	g.advance(StateKeysReady)
	return nil
}

// GenerateOwnKeys creates a key pair only the guest knows.
func (g *Guest) GenerateOwnKeys() error {
	if err := g.require(StateContextReady); err != nil {
		return err
	}
	if err := g.fhe.GenerateKeys(); err != nil {
		return err
	}
	g.advance(StateKeysReady)
	return nil
}

// SharePublicKey sends the guest public key so the host can encrypt for the
// guest alone.
func (g *Guest) SharePublicKey(ctx context.Context) error {
	if err := g.require(StateKeysReady, StateCryptoLive); err != nil {
		return err
	}
	pk := g.fhe.PublicKey()
	return g.send(ctx, KindPublicKey, pk, pk.ParameterID())
}

// ReceivePublicKey installs the guest public key. Later encryptions on the
// host are readable by the guest only. A host that generated its own keys
// refuses, since its secret key would no longer match the public key.
func (h *Host) ReceivePublicKey(ctx context.Context) error {
	if err := h.require(StateContextReady); err != nil {
		return err
	}
	m, err := h.receive(ctx, KindPublicKey)
	if err != nil {
		return err
	}
	pk, err := h.fhe.LoadKey(afhe.KeyPublic, m.Payload)
	if err != nil {
		return err
	}
	if err := h.fhe.SetEvaluationKey(pk); err != nil {
		return err
	}
	h.advance(StateKeysReady)
	return nil
}
