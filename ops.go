// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package afhe

import (
	"github.com/luxfi/afhe/backend"
)

func (c *Context) checkCiphertext(ct *Ciphertext) error {
	if err := c.ready(); err != nil {
		return err
	}
	if ct == nil || ct.obj == nil {
		return newError(KindInvalidArgument, "ciphertext is nil")
	}
	return c.checkID(ct.id, ct.Level())
}

func (c *Context) checkPlaintext(pt *Plaintext) error {
	if err := c.ready(); err != nil {
		return err
	}
	if pt == nil || pt.obj == nil {
		return newError(KindInvalidArgument, "plaintext is nil")
	}
	return c.checkID(pt.id, pt.Level())
}

// Encrypt encrypts pt under the public key.
func (c *Context) Encrypt(pt *Plaintext) (*Ciphertext, error) {
	if err := c.checkPlaintext(pt); err != nil {
		return nil, err
	}
	if c.pk == nil {
		return nil, errNoKey("encryption")
	}
	ct, err := c.bctx.Encrypt(c.pk.obj, pt.obj)
	if err != nil {
		return nil, wrapError(KindGenericBackendFailure, err, "encrypt")
	}
	return c.wrapCiphertext(ct), nil
}

// Decrypt decrypts ct with the secret key.
func (c *Context) Decrypt(ct *Ciphertext) (*Plaintext, error) {
	if err := c.checkCiphertext(ct); err != nil {
		return nil, err
	}
	if c.sk == nil {
		return nil, errNoKey("decryption")
	}
	pt, err := c.bctx.Decrypt(c.sk.obj, ct.obj)
	if err != nil {
		return nil, wrapError(KindGenericBackendFailure, err, "decrypt")
	}
	return c.wrapPlaintext(pt), nil
}

// NoiseBudget returns the invariant noise budget of ct in bits: how much
// more noise it can take before decryption fails. Zero means the ciphertext
// no longer decrypts correctly. Only bfv and bgv define a budget.
func (c *Context) NoiseBudget(ct *Ciphertext) (int, error) {
	if err := c.checkCiphertext(ct); err != nil {
		return 0, err
	}
	if c.params.Scheme == SchemeCKKS {
		return 0, newError(KindInvalidArgument, "noise budget is not defined for ckks")
	}
	if c.sk == nil {
		return 0, errNoKey("measuring the noise budget")
	}
	bits, err := c.bctx.NoiseBudget(c.sk.obj, ct.obj)
	if err != nil {
		return 0, wrapError(KindGenericBackendFailure, err, "noise budget")
	}
	return bits, nil
}

type binaryOp func(backend.Evaluator, backend.Ciphertext, backend.Ciphertext) (backend.Ciphertext, error)
type plainOp func(backend.Evaluator, backend.Ciphertext, backend.Object) (backend.Ciphertext, error)
type unaryOp func(backend.Evaluator, backend.Ciphertext) (backend.Ciphertext, error)

func (c *Context) binary(name string, a, b *Ciphertext, op binaryOp) (*Ciphertext, error) {
	if err := c.checkCiphertext(a); err != nil {
		return nil, err
	}
	if err := c.checkCiphertext(b); err != nil {
		return nil, err
	}
	eval, err := c.evaluator()
	if err != nil {
		return nil, err
	}
	out, err := op(eval, a.obj, b.obj)
	if err != nil {
		return nil, wrapError(KindGenericBackendFailure, err, "%s", name)
	}
	return c.wrapCiphertext(out), nil
}

func (c *Context) withPlain(name string, a *Ciphertext, pt *Plaintext, op plainOp) (*Ciphertext, error) {
	if err := c.checkCiphertext(a); err != nil {
		return nil, err
	}
	if err := c.checkPlaintext(pt); err != nil {
		return nil, err
	}
	eval, err := c.evaluator()
	if err != nil {
		return nil, err
	}
	out, err := op(eval, a.obj, pt.obj)
	if err != nil {
		return nil, wrapError(KindGenericBackendFailure, err, "%s", name)
	}
	return c.wrapCiphertext(out), nil
}

func (c *Context) unary(name string, a *Ciphertext, op unaryOp) (*Ciphertext, error) {
	if err := c.checkCiphertext(a); err != nil {
		return nil, err
	}
	eval, err := c.evaluator()
	if err != nil {
		return nil, err
	}
	out, err := op(eval, a.obj)
	if err != nil {
		return nil, wrapError(KindGenericBackendFailure, err, "%s", name)
	}
	return c.wrapCiphertext(out), nil
}

// Add returns a + b.
func (c *Context) Add(a, b *Ciphertext) (*Ciphertext, error) {
	return c.binary("add", a, b, backend.Evaluator.Add)
}

// AddPlain returns a + pt.
func (c *Context) AddPlain(a *Ciphertext, pt *Plaintext) (*Ciphertext, error) {
	return c.withPlain("add plain", a, pt, backend.Evaluator.AddPlain)
}

// Subtract returns a - b.
func (c *Context) Subtract(a, b *Ciphertext) (*Ciphertext, error) {
	return c.binary("subtract", a, b, backend.Evaluator.Sub)
}

// SubtractPlain returns a - pt.
func (c *Context) SubtractPlain(a *Ciphertext, pt *Plaintext) (*Ciphertext, error) {
	return c.withPlain("subtract plain", a, pt, backend.Evaluator.SubPlain)
}

// Multiply returns a * b without relinearizing.
func (c *Context) Multiply(a, b *Ciphertext) (*Ciphertext, error) {
	return c.binary("multiply", a, b, backend.Evaluator.Mul)
}

// MultiplyPlain returns a * pt.
func (c *Context) MultiplyPlain(a *Ciphertext, pt *Plaintext) (*Ciphertext, error) {
	return c.withPlain("multiply plain", a, pt, backend.Evaluator.MulPlain)
}

// Square returns a * a without relinearizing.
func (c *Context) Square(a *Ciphertext) (*Ciphertext, error) {
	return c.Multiply(a, a)
}

// Negate returns -a.
func (c *Context) Negate(a *Ciphertext) (*Ciphertext, error) {
	return c.unary("negate", a, backend.Evaluator.Negate)
}

// Relinearize reduces a to two components.
func (c *Context) Relinearize(a *Ciphertext) (*Ciphertext, error) {
	if c.bctx != nil && c.rlk == nil {
		return nil, errNoKey("relinearization")
	}
	return c.unary("relinearize", a, backend.Evaluator.Relinearize)
}

// Power returns a^exponent by square-and-multiply, relinearizing after each
// product. It needs relinearization keys and is not available for ckks.
func (c *Context) Power(a *Ciphertext, exponent uint64) (*Ciphertext, error) {
	if err := c.checkCiphertext(a); err != nil {
		return nil, err
	}
	switch {
	case c.params.Scheme == SchemeCKKS:
		return nil, newError(KindInvalidArgument, "power is not available for ckks")
	case exponent == 0:
		return nil, newError(KindInvalidArgument, "exponent must be positive")
	case exponent == 1:
		return a, nil
	case c.rlk == nil:
		return nil, errNoKey("power")
	}

	mulRelin := func(x, y *Ciphertext) (*Ciphertext, error) {
		prod, err := c.Multiply(x, y)
		if err != nil {
			return nil, err
		}
		return c.Relinearize(prod)
	}

	var acc *Ciphertext
	base := a
	for e := exponent; e > 0; e >>= 1 {
		if e&1 == 1 {
			if acc == nil {
				acc = base
			} else {
				next, err := mulRelin(acc, base)
				if err != nil {
					return nil, err
				}
				acc = next
			}
		}
		if e > 1 {
			next, err := mulRelin(base, base)
			if err != nil {
				return nil, err
			}
			base = next
		}
	}
	return acc, nil
}

// Rotate rotates the slots of a by steps; positive steps rotate left. It needs
// galois keys.
func (c *Context) Rotate(a *Ciphertext, steps int) (*Ciphertext, error) {
	if c.bctx != nil && c.gks == nil {
		return nil, errNoKey("rotation")
	}
	if c.bctx != nil && c.bctx.SlotCount() == 0 {
		return nil, newError(KindInvalidArgument, "rotation needs a slot encoder")
	}
	return c.unary("rotate", a, func(e backend.Evaluator, x backend.Ciphertext) (backend.Ciphertext, error) {
		return e.Rotate(x, steps)
	})
}

// ModSwitchToNext moves a one level down the modulus chain.
func (c *Context) ModSwitchToNext(a *Ciphertext) (*Ciphertext, error) {
	if err := c.checkDescent(a); err != nil {
		return nil, err
	}
	return c.unary("modulus switch", a, backend.Evaluator.ModSwitch)
}

// Rescale divides a ckks ciphertext by the last prime of its level.
func (c *Context) Rescale(a *Ciphertext) (*Ciphertext, error) {
	if c.bctx != nil && c.params.Scheme != SchemeCKKS {
		return nil, newError(KindInvalidArgument, "rescale is only available for ckks")
	}
	if err := c.checkDescent(a); err != nil {
		return nil, err
	}
	return c.unary("rescale", a, backend.Evaluator.Rescale)
}

func (c *Context) checkDescent(a *Ciphertext) error {
	if err := c.checkCiphertext(a); err != nil {
		return err
	}
	if !c.modSwitch {
		return newError(KindInvalidArgument, "modulus switching is disabled")
	}
	if a.Level() == 0 {
		return newError(KindInvalidArgument, "ciphertext is already at the last level")
	}
	return nil
}
