// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package afhe

import (
	"errors"

	"go.uber.org/zap"

	"github.com/luxfi/afhe/backend"
)

// State is the lifecycle position of a Context.
type State uint8

const (
	StateUninitialized State = iota
	StateReady
	StateKeyed
	StateFullyKeyed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateKeyed:
		return "keyed"
	case StateFullyKeyed:
		return "fully-keyed"
	default:
		return "uninitialized"
	}
}

// Context is a validated parameter set on one backend together with its key
// material.
type Context struct {
	backend  Backend
	provider backend.Provider
	log      *zap.Logger

	params    Parameters
	bctx      backend.Context
	status    string
	modSwitch bool
	state     State

	sk, pk, rlk, gks *Key
	eval             backend.Evaluator
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(c *Context) {
		if log != nil {
			c.log = log
		}
	}
}

// New returns an uninitialized Context on backend b.
func New(b Backend, opts ...Option) (*Context, error) {
	provider, err := Resolve(b)
	if err != nil {
		return nil, err
	}
	c := &Context{backend: b, provider: provider, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(zap.Stringer("backend", b))
	return c, nil
}

// Generate validates the parameters and builds the context. The result is
// StatusValid on success and "<diagnostic>: <message>" otherwise.
//
// For bfv and bgv a positive plainBits enables batching and derives the plain
// modulus; plainModulus must then be zero. For ckks plainBits is the log2 of
// the encoding scale and coeffBitSizes is required.
func (c *Context) Generate(scheme Scheme, polyDegree, plainBits int, plainModulus uint64, secLevel int, coeffBitSizes []int) string {
	p := Parameters{
		Scheme:        scheme,
		PolyDegree:    polyDegree,
		PlainModulus:  plainModulus,
		SecurityLevel: secLevel,
		CoeffBitSizes: coeffBitSizes,
	}
	if scheme == SchemeCKKS {
		p.LogScale = plainBits
	} else {
		p.PlainBits = plainBits
	}
	return c.GenerateParameters(p)
}

// GenerateParameters is Generate taking a Parameters value.
func (c *Context) GenerateParameters(p Parameters) string {
	return c.build(p, p.PlainBits > 0, false)
}

// GenerateFromBlob rebuilds the context from a saved Parameters blob. A plain
// modulus that does not allow batching is an error unless ignoreBatchingErrors
// is set, in which case the context is built without a slot encoder.
func (c *Context) GenerateFromBlob(data []byte, ignoreBatchingErrors bool) string {
	p, err := LoadParameters(data)
	if err != nil {
		c.reset("invalid_argument: " + err.Error())
		return c.status
	}
	batching := p.Scheme != SchemeCKKS
	if batching && !c.provider.SupportsBatching(p.logN(), p.PlainModulus) {
		if !ignoreBatchingErrors {
			c.reset("invalid_argument: encryption parameters are not valid for batching")
			return c.status
		}
		batching = false
	}
	return c.build(p, batching, false)
}

func (c *Context) build(p Parameters, batching, keepKeys bool) string {
	resolved, err := p.resolve(c.provider)
	if err == nil {
		var bctx backend.Context
		bctx, err = c.provider.NewContext(resolved.literal(batching))
		if err == nil {
			c.install(resolved, bctx, keepKeys)
			return c.status
		}
	}

	var verr *backend.ValidationError
	if !errors.As(err, &verr) {
		verr = backend.Invalid("invalid_parameters", "%v", err)
	}
	c.reset(verr.Error())
	c.log.Debug("parameters rejected", zap.String("status", c.status))
	return c.status
}

func (c *Context) install(p Parameters, bctx backend.Context, keepKeys bool) {
	c.params = p
	c.bctx = bctx
	c.status = StatusValid
	c.modSwitch = true
	c.eval = nil
	if !keepKeys {
		c.sk, c.pk, c.rlk, c.gks = nil, nil, nil, nil
		c.state = StateReady
	}
	c.log.Debug("context generated",
		zap.Stringer("scheme", p.Scheme),
		zap.Int("poly_degree", p.PolyDegree),
		zap.Uint64("plain_modulus", p.PlainModulus),
		zap.Ints("coeff_bits", p.CoeffBitSizes),
		zap.Int("slots", bctx.SlotCount()),
	)
}

func (c *Context) reset(status string) {
	c.params = Parameters{}
	c.bctx = nil
	c.status = status
	c.modSwitch = false
	c.state = StateUninitialized
	c.sk, c.pk, c.rlk, c.gks = nil, nil, nil, nil
	c.eval = nil
}

// DisableModSwitch rebuilds the context from the held parameters with only the
// top of the modulus chain usable. Keys survive the rebuild.
func (c *Context) DisableModSwitch() error {
	if err := c.ready(); err != nil {
		return err
	}
	bctx, err := c.provider.NewContext(c.bctx.Literal())
	if err != nil {
		return wrapError(KindGenericBackendFailure, err, "rebuild context")
	}
	c.install(c.params, bctx, true)
	c.modSwitch = false
	return nil
}

func (c *Context) ready() error {
	if c.bctx == nil {
		return errNotInitialized()
	}
	return nil
}

// Backend returns the backend selector.
func (c *Context) Backend() Backend { return c.backend }

// Status returns the result of the last Generate call.
func (c *Context) Status() string { return c.status }

// State returns the lifecycle state.
func (c *Context) State() State { return c.state }

// Scheme returns the scheme of the generated context.
func (c *Context) Scheme() Scheme { return c.params.Scheme }

// Parameters returns the resolved parameters: the plain modulus is literal
// and the default chain is spelled out.
func (c *Context) Parameters() (Parameters, error) {
	if err := c.ready(); err != nil {
		return Parameters{}, err
	}
	p := c.params
	p.CoeffBitSizes = append([]int(nil), p.CoeffBitSizes...)
	return p, nil
}

// PlainModulus returns the plaintext modulus, zero for ckks.
func (c *Context) PlainModulus() uint64 { return c.params.PlainModulus }

// PolyDegree returns the ring degree.
func (c *Context) PolyDegree() int { return c.params.PolyDegree }

// SlotCount returns the number of slots of the attached slot encoder, or zero
// when there is none.
func (c *Context) SlotCount() int {
	if c.bctx == nil {
		return 0
	}
	return c.bctx.SlotCount()
}

// MaxLevel returns the level of freshly encrypted ciphertexts.
func (c *Context) MaxLevel() int {
	if c.bctx == nil {
		return -1
	}
	return c.bctx.MaxLevel()
}

// ModSwitchEnabled reports whether levels below the top may be used.
func (c *Context) ModSwitchEnabled() bool { return c.modSwitch }

// ParameterID returns the parameter-id of level on this context's chain.
func (c *Context) ParameterID(level int) ParameterID { return c.params.ID(level) }

// checkID accepts an artifact tagged with id at level.
func (c *Context) checkID(id ParameterID, level int) error {
	if err := c.ready(); err != nil {
		return err
	}
	if level < 0 || level > c.bctx.MaxLevel() {
		return newError(KindParameterMismatch, "level %d is outside the modulus chain", level)
	}
	if !c.modSwitch && level != c.bctx.MaxLevel() {
		return newError(KindParameterMismatch, "level %d is unusable with modulus switching disabled", level)
	}
	if id != c.ParameterID(level) {
		return newError(KindParameterMismatch, "parameter-id %s does not match the context at level %d", id, level)
	}
	return nil
}

func (c *Context) evaluator() (backend.Evaluator, error) {
	if c.eval != nil {
		return c.eval, nil
	}
	var rlk, gks backend.Object
	if c.rlk != nil {
		rlk = c.rlk.obj
	}
	if c.gks != nil {
		gks = c.gks.obj
	}
	eval, err := c.bctx.NewEvaluator(rlk, gks)
	if err != nil {
		return nil, wrapError(KindGenericBackendFailure, err, "create evaluator")
	}
	c.eval = eval
	return eval, nil
}
