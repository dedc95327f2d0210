// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package lattigo

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"

	"github.com/luxfi/afhe/backend"
)

func wrap(ct *rlwe.Ciphertext, err error) (backend.Ciphertext, error) {
	if err != nil {
		return nil, err
	}
	return &ciphertext{ct}, nil
}

func operands(a, b backend.Ciphertext) (*rlwe.Ciphertext, *rlwe.Ciphertext, error) {
	x, err := asCiphertext(a)
	if err != nil {
		return nil, nil, err
	}
	y, err := asCiphertext(b)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

func plainOperands(a backend.Ciphertext, pt backend.Object) (*rlwe.Ciphertext, *rlwe.Plaintext, error) {
	x, err := asCiphertext(a)
	if err != nil {
		return nil, nil, err
	}
	p, err := asPlaintext(pt)
	if err != nil {
		return nil, nil, err
	}
	return x, p, nil
}

// rotate decomposes steps into the power-of-two rotations that have keys.
func rotate(ct *rlwe.Ciphertext, steps, span int, by func(*rlwe.Ciphertext, int) (*rlwe.Ciphertext, error)) (*rlwe.Ciphertext, error) {
	steps %= span
	if steps < 0 {
		steps += span
	}
	out := ct.CopyNew()
	for bit := 1; bit < span; bit <<= 1 {
		if steps&bit == 0 {
			continue
		}
		next, err := by(out, bit)
		if err != nil {
			return nil, fmt.Errorf("rotate by %d: %w", bit, err)
		}
		out = next
	}
	return out, nil
}

// ===== BFV / BGV =====

type integerEvaluator struct {
	params bgv.Parameters
	eval   *bgv.Evaluator
	// leveler is a plain BGV evaluator; its Rescale is the modulus switch for
	// both integer schemes.
	leveler *bgv.Evaluator
}

func (e *integerEvaluator) Add(a, b backend.Ciphertext) (backend.Ciphertext, error) {
	x, y, err := operands(a, b)
	if err != nil {
		return nil, err
	}
	return wrap(e.eval.AddNew(x, y))
}

func (e *integerEvaluator) AddPlain(a backend.Ciphertext, pt backend.Object) (backend.Ciphertext, error) {
	x, p, err := plainOperands(a, pt)
	if err != nil {
		return nil, err
	}
	return wrap(e.eval.AddNew(x, p))
}

func (e *integerEvaluator) Sub(a, b backend.Ciphertext) (backend.Ciphertext, error) {
	x, y, err := operands(a, b)
	if err != nil {
		return nil, err
	}
	return wrap(e.eval.SubNew(x, y))
}

func (e *integerEvaluator) SubPlain(a backend.Ciphertext, pt backend.Object) (backend.Ciphertext, error) {
	x, p, err := plainOperands(a, pt)
	if err != nil {
		return nil, err
	}
	return wrap(e.eval.SubNew(x, p))
}

func (e *integerEvaluator) Mul(a, b backend.Ciphertext) (backend.Ciphertext, error) {
	x, y, err := operands(a, b)
	if err != nil {
		return nil, err
	}
	return wrap(e.eval.MulNew(x, y))
}

func (e *integerEvaluator) MulPlain(a backend.Ciphertext, pt backend.Object) (backend.Ciphertext, error) {
	x, p, err := plainOperands(a, pt)
	if err != nil {
		return nil, err
	}
	return wrap(e.eval.MulNew(x, p))
}

func (e *integerEvaluator) Negate(a backend.Ciphertext) (backend.Ciphertext, error) {
	x, err := asCiphertext(a)
	if err != nil {
		return nil, err
	}
	return wrap(e.eval.MulNew(x, int64(-1)))
}

func (e *integerEvaluator) Relinearize(a backend.Ciphertext) (backend.Ciphertext, error) {
	x, err := asCiphertext(a)
	if err != nil {
		return nil, err
	}
	return wrap(e.eval.RelinearizeNew(x))
}

func (e *integerEvaluator) ModSwitch(a backend.Ciphertext) (backend.Ciphertext, error) {
	x, err := asCiphertext(a)
	if err != nil {
		return nil, err
	}
	out := rlwe.NewCiphertext(e.params, x.Degree(), x.Level())
	if err := e.leveler.Rescale(x, out); err != nil {
		return nil, err
	}
	return &ciphertext{out}, nil
}

func (e *integerEvaluator) Rescale(backend.Ciphertext) (backend.Ciphertext, error) {
	return nil, fmt.Errorf("%w: rescale needs ckks", ErrWrongScheme)
}

func (e *integerEvaluator) Rotate(a backend.Ciphertext, steps int) (backend.Ciphertext, error) {
	x, err := asCiphertext(a)
	if err != nil {
		return nil, err
	}
	return wrap(rotate(x, steps, e.params.N()>>1, e.eval.RotateColumnsNew))
}

// ===== CKKS =====

type realEvaluator struct {
	params ckks.Parameters
	eval   *ckks.Evaluator
}

func (e *realEvaluator) Add(a, b backend.Ciphertext) (backend.Ciphertext, error) {
	x, y, err := operands(a, b)
	if err != nil {
		return nil, err
	}
	return wrap(e.eval.AddNew(x, y))
}

func (e *realEvaluator) AddPlain(a backend.Ciphertext, pt backend.Object) (backend.Ciphertext, error) {
	x, p, err := plainOperands(a, pt)
	if err != nil {
		return nil, err
	}
	return wrap(e.eval.AddNew(x, p))
}

func (e *realEvaluator) Sub(a, b backend.Ciphertext) (backend.Ciphertext, error) {
	x, y, err := operands(a, b)
	if err != nil {
		return nil, err
	}
	return wrap(e.eval.SubNew(x, y))
}

func (e *realEvaluator) SubPlain(a backend.Ciphertext, pt backend.Object) (backend.Ciphertext, error) {
	x, p, err := plainOperands(a, pt)
	if err != nil {
		return nil, err
	}
	return wrap(e.eval.SubNew(x, p))
}

func (e *realEvaluator) Mul(a, b backend.Ciphertext) (backend.Ciphertext, error) {
	x, y, err := operands(a, b)
	if err != nil {
		return nil, err
	}
	return wrap(e.eval.MulNew(x, y))
}

func (e *realEvaluator) MulPlain(a backend.Ciphertext, pt backend.Object) (backend.Ciphertext, error) {
	x, p, err := plainOperands(a, pt)
	if err != nil {
		return nil, err
	}
	return wrap(e.eval.MulNew(x, p))
}

func (e *realEvaluator) Negate(a backend.Ciphertext) (backend.Ciphertext, error) {
	x, err := asCiphertext(a)
	if err != nil {
		return nil, err
	}
	return wrap(e.eval.MulNew(x, -1))
}

func (e *realEvaluator) Relinearize(a backend.Ciphertext) (backend.Ciphertext, error) {
	x, err := asCiphertext(a)
	if err != nil {
		return nil, err
	}
	return wrap(e.eval.RelinearizeNew(x))
}

func (e *realEvaluator) ModSwitch(a backend.Ciphertext) (backend.Ciphertext, error) {
	x, err := asCiphertext(a)
	if err != nil {
		return nil, err
	}
	return &ciphertext{e.eval.DropLevelNew(x, 1)}, nil
}

func (e *realEvaluator) Rescale(a backend.Ciphertext) (backend.Ciphertext, error) {
	x, err := asCiphertext(a)
	if err != nil {
		return nil, err
	}
	out := rlwe.NewCiphertext(e.params, x.Degree(), x.Level())
	if err := e.eval.Rescale(x, out); err != nil {
		return nil, err
	}
	return &ciphertext{out}, nil
}

func (e *realEvaluator) Rotate(a backend.Ciphertext, steps int) (backend.Ciphertext, error) {
	x, err := asCiphertext(a)
	if err != nil {
		return nil, err
	}
	return wrap(rotate(x, steps, e.params.MaxSlots(), e.eval.RotateNew))
}
