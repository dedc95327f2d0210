// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package afhe

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/luxfi/afhe/backend"
)

// Plaintext is an encoded message bound to the parameters that produced it.
type Plaintext struct {
	obj  backend.Object
	id   ParameterID
	bctx backend.Context
}

// Level returns the chain level of the plaintext.
func (p *Plaintext) Level() int { return p.obj.Level() }

// ParameterID returns the id of the parameters the plaintext belongs to.
func (p *Plaintext) ParameterID() ParameterID { return p.id }

// Coefficients returns the polynomial coefficients of a coefficient-encoded
// plaintext.
func (p *Plaintext) Coefficients() ([]uint64, error) {
	coeffs, err := p.bctx.DecodeCoeffs(p.obj)
	if err != nil {
		return nil, wrapError(KindInvalidArgument, err, "decode coefficients")
	}
	return coeffs, nil
}

// Hex formats the plaintext as a hexadecimal polynomial, highest degree
// first, for example "1x^2 + Ax^1 + 3". Slot-encoded plaintexts fail with
// ErrInvalidArgument.
func (p *Plaintext) Hex() (string, error) {
	coeffs, err := p.Coefficients()
	if err != nil {
		return "", err
	}
	return formatPoly(coeffs, 16), nil
}

// DecimalString is Hex with decimal coefficients. A constant plaintext prints
// as a plain number.
func (p *Plaintext) DecimalString() (string, error) {
	coeffs, err := p.Coefficients()
	if err != nil {
		return "", err
	}
	return formatPoly(coeffs, 10), nil
}

// String is Hex for fmt. It returns "" when the plaintext does not hold
// coefficients.
func (p *Plaintext) String() string {
	s, _ := p.Hex()
	return s
}

// Decimal is DecimalString without the error.
func (p *Plaintext) Decimal() string {
	s, _ := p.DecimalString()
	return s
}

func formatPoly(coeffs []uint64, base int) string {
	var terms []string
	for i := len(coeffs) - 1; i >= 0; i-- {
		if coeffs[i] == 0 {
			continue
		}
		c := strings.ToUpper(strconv.FormatUint(coeffs[i], base))
		if i == 0 {
			terms = append(terms, c)
		} else {
			terms = append(terms, fmt.Sprintf("%sx^%d", c, i))
		}
	}
	if len(terms) == 0 {
		return "0"
	}
	return strings.Join(terms, " + ")
}

// parsePoly reads the polynomial syntax written by formatPoly.
func parsePoly(s string, base int) ([]uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty polynomial")
	}
	var coeffs []uint64
	for _, term := range strings.Split(s, "+") {
		term = strings.TrimSpace(term)
		coeff, exp := term, "0"
		if i := strings.IndexAny(term, "xX"); i >= 0 {
			coeff, exp = term[:i], term[i+1:]
			if !strings.HasPrefix(exp, "^") {
				return nil, fmt.Errorf("term %q: missing exponent", term)
			}
			exp = exp[1:]
		}
		c, err := strconv.ParseUint(coeff, base, 64)
		if err != nil {
			return nil, fmt.Errorf("term %q: coefficient: %w", term, err)
		}
		e, err := strconv.Atoi(exp)
		if err != nil || e < 0 {
			return nil, fmt.Errorf("term %q: bad exponent", term)
		}
		if e >= len(coeffs) {
			coeffs = append(coeffs, make([]uint64, e+1-len(coeffs))...)
		}
		coeffs[e] += c
	}
	return coeffs, nil
}

// NewPlaintext encodes a hexadecimal polynomial such as "1x^2 + Ax^1 + 3" as
// plaintext coefficients. Only bfv and bgv support coefficient encoding.
func (c *Context) NewPlaintext(hexPoly string) (*Plaintext, error) {
	coeffs, err := parsePoly(hexPoly, 16)
	if err != nil {
		return nil, wrapError(KindInvalidArgument, err, "parse plaintext")
	}
	return c.EncodeCoefficients(coeffs)
}

// NewPlaintextDecimal is NewPlaintext with decimal coefficients, so "117" is
// the constant 117.
func (c *Context) NewPlaintextDecimal(decPoly string) (*Plaintext, error) {
	coeffs, err := parsePoly(decPoly, 10)
	if err != nil {
		return nil, wrapError(KindInvalidArgument, err, "parse plaintext")
	}
	return c.EncodeCoefficients(coeffs)
}

// EncodeCoefficients encodes coeffs as the plaintext polynomial. Every
// coefficient must be below the plain modulus.
func (c *Context) EncodeCoefficients(coeffs []uint64) (*Plaintext, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if c.params.Scheme == SchemeCKKS {
		return nil, newError(KindInvalidArgument, "coefficient encoding is not available for ckks")
	}
	if len(coeffs) > c.params.PolyDegree {
		return nil, newError(KindInvalidArgument, "polynomial of degree %d exceeds the ring degree", len(coeffs)-1)
	}
	for i, v := range coeffs {
		if v >= c.params.PlainModulus {
			return nil, newError(KindInvalidArgument, "coefficient %d of x^%d is not below the plain modulus %d", v, i, c.params.PlainModulus)
		}
	}
	obj, err := c.bctx.EncodeCoeffs(coeffs)
	if err != nil {
		return nil, wrapError(KindGenericBackendFailure, err, "encode plaintext")
	}
	return c.wrapPlaintext(obj), nil
}

func (c *Context) wrapPlaintext(obj backend.Object) *Plaintext {
	return &Plaintext{obj: obj, id: c.ParameterID(obj.Level()), bctx: c.bctx}
}

// Ciphertext is an encrypted message bound to the parameters that produced it.
type Ciphertext struct {
	obj backend.Ciphertext
	id  ParameterID
}

// Size is the number of polynomial components. It grows under
// multiplication and returns to two after relinearization.
func (ct *Ciphertext) Size() int { return ct.obj.Degree() + 1 }

// Level returns the chain level.
func (ct *Ciphertext) Level() int { return ct.obj.Level() }

// Scale returns the encoding scale. It is only meaningful for ckks.
func (ct *Ciphertext) Scale() float64 { return ct.obj.Scale() }

// ParameterID returns the id of the parameters and level the ciphertext
// belongs to.
func (ct *Ciphertext) ParameterID() ParameterID { return ct.id }

func (c *Context) wrapCiphertext(obj backend.Ciphertext) *Ciphertext {
	return &Ciphertext{obj: obj, id: c.ParameterID(obj.Level())}
}
