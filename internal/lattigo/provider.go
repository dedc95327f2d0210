// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package lattigo implements the afhe backend on top of tuneinsight/lattigo/v6.
//
// BFV is served by the scale-invariant BGV evaluator, BGV by the plain one and
// CKKS by the ckks package. Native objects are held in small wrappers that
// satisfy backend.Object.
package lattigo

//go:generate go run ../backendgen --src . --dst ../lux

import (
	"errors"

	"github.com/tuneinsight/lattigo/v6/ring"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"

	"github.com/luxfi/afhe/backend"
)

// Name is the backend selector.
const Name = "lattigo"

var (
	ErrForeignObject  = errors.New("object was not produced by the lattigo backend")
	ErrNoSlotEncoder  = errors.New("context has no slot encoder")
	ErrWrongScheme    = errors.New("operation not available for this scheme")
	ErrDegreeMismatch = errors.New("object ring degree does not match context")
	ErrLevelRange     = errors.New("object level outside the modulus chain")
	errNoBatchPrime   = errors.New("no prime of the requested size supports batching")
)

// Provider builds lattigo contexts.
type Provider struct{}

// New returns the lattigo provider.
func New() *Provider { return &Provider{} }

func (*Provider) Name() string { return Name }

// BatchingModulus walks down from 2^bits in steps of 2N and returns the first prime.
func (*Provider) BatchingModulus(logN, bits int) (uint64, error) {
	if bits < 2 || bits > 60 {
		return 0, errNoBatchPrime
	}
	m := uint64(2) << logN
	hi := uint64(1) << bits
	lo := uint64(1) << (bits - 1)
	if m >= hi {
		return 0, errNoBatchPrime
	}
	for q := hi - m + 1; q > lo; q -= m {
		if ring.IsPrime(q) {
			return q, nil
		}
		if q < m {
			break
		}
	}
	return 0, errNoBatchPrime
}

func (*Provider) SupportsBatching(logN int, t uint64) bool {
	m := uint64(2) << logN
	return t > 2 && t%m == 1 && ring.IsPrime(t)
}

// NewContext validates lit against lattigo and builds the context.
func (p *Provider) NewContext(lit backend.Literal) (backend.Context, error) {
	switch lit.Scheme {
	case backend.SchemeBFV, backend.SchemeBGV:
		t := lit.PlainModulus
		if !ring.IsPrime(t) || (t-1)%16 != 0 {
			return nil, backend.Invalid("invalid_plain_modulus",
				"plain_modulus %d must be a prime congruent to 1 modulo 16", t)
		}
		if lit.Batching && !p.SupportsBatching(lit.LogN, t) {
			return nil, backend.Invalid("invalid_argument", "encryption parameters are not valid for batching")
		}
		params, err := bgv.NewParametersFromLiteral(bgv.ParametersLiteral{
			LogN:             lit.LogN,
			LogQ:             lit.LogQ,
			LogP:             lit.LogP,
			PlaintextModulus: t,
		})
		if err != nil {
			return nil, backend.Invalid("invalid_parameters", "%v", err)
		}
		return newIntegerContext(lit, params), nil

	case backend.SchemeCKKS:
		params, err := ckks.NewParametersFromLiteral(ckks.ParametersLiteral{
			LogN:            lit.LogN,
			LogQ:            lit.LogQ,
			LogP:            lit.LogP,
			LogDefaultScale: lit.LogScale,
		})
		if err != nil {
			return nil, backend.Invalid("invalid_parameters", "%v", err)
		}
		return newRealContext(lit, params), nil

	default:
		return nil, backend.Invalid("invalid_argument", "unsupported scheme %s", lit.Scheme)
	}
}
