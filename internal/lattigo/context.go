// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package lattigo

import (
	"fmt"
	"math"
	"math/big"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"

	"github.com/luxfi/afhe/backend"
)

// context is shared by both scheme families. Exactly one of intParams or
// realParams is populated.
type context struct {
	lit    backend.Literal
	params rlwe.Parameters
	kgen   *rlwe.KeyGenerator

	intParams *bgv.Parameters
	intEnc    *bgv.Encoder

	realParams *ckks.Parameters
	realEnc    *ckks.Encoder
}

func newIntegerContext(lit backend.Literal, params bgv.Parameters) *context {
	return &context{
		lit:       lit,
		params:    params.Parameters,
		kgen:      rlwe.NewKeyGenerator(params),
		intParams: &params,
		intEnc:    bgv.NewEncoder(params),
	}
}

func newRealContext(lit backend.Literal, params ckks.Parameters) *context {
	return &context{
		lit:        lit,
		params:     params.Parameters,
		kgen:       rlwe.NewKeyGenerator(params),
		realParams: &params,
		realEnc:    ckks.NewEncoder(params),
	}
}

func (c *context) Literal() backend.Literal { return c.lit }
func (c *context) N() int                   { return c.params.N() }
func (c *context) MaxLevel() int            { return c.params.MaxLevel() }

func (c *context) PlainModulus() uint64 {
	if c.intParams == nil {
		return 0
	}
	return c.intParams.PlaintextModulus()
}

func (c *context) SlotCount() int {
	switch {
	case c.realParams != nil:
		return c.realParams.MaxSlots()
	case c.lit.Batching:
		return c.intParams.MaxSlots()
	default:
		return 0
	}
}

// rotationSteps lists the power-of-two rotations covered by GenGaloisKeys.
func (c *context) rotationSteps() []int {
	var steps []int
	for k := 1; k < c.N()>>1; k <<= 1 {
		steps = append(steps, k)
	}
	return steps
}

// ===== Keys =====

func (c *context) GenKeyPair() (backend.Object, backend.Object, error) {
	sk, pk := c.kgen.GenKeyPairNew()
	return &secretKey{sk, c.MaxLevel()}, &publicKey{pk, c.MaxLevel()}, nil
}

func (c *context) GenPublicKey(sk backend.Object) (backend.Object, error) {
	s, err := asSecretKey(sk)
	if err != nil {
		return nil, err
	}
	if s.Value.Q.N() != c.N() {
		return nil, ErrDegreeMismatch
	}
	return &publicKey{c.kgen.GenPublicKeyNew(s), c.MaxLevel()}, nil
}

func (c *context) GenRelinKey(sk backend.Object) (backend.Object, error) {
	s, err := asSecretKey(sk)
	if err != nil {
		return nil, err
	}
	return &relinKey{c.kgen.GenRelinearizationKeyNew(s), c.MaxLevel()}, nil
}

func (c *context) GenGaloisKeys(sk backend.Object) (backend.Object, error) {
	s, err := asSecretKey(sk)
	if err != nil {
		return nil, err
	}
	gks := c.kgen.GenGaloisKeysNew(c.params.GaloisElements(c.rotationSteps()), s)
	return &galoisKeys{rlwe.NewMemEvaluationKeySet(nil, gks...), c.MaxLevel()}, nil
}

// ===== Encryption =====

func (c *context) Encrypt(pk backend.Object, pt backend.Object) (backend.Ciphertext, error) {
	k, err := asPublicKey(pk)
	if err != nil {
		return nil, err
	}
	p, err := asPlaintext(pt)
	if err != nil {
		return nil, err
	}
	ct, err := rlwe.NewEncryptor(c.params, k).EncryptNew(p)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return &ciphertext{ct}, nil
}

func (c *context) Decrypt(sk backend.Object, ct backend.Ciphertext) (backend.Object, error) {
	k, err := asSecretKey(sk)
	if err != nil {
		return nil, err
	}
	x, err := asCiphertext(ct)
	if err != nil {
		return nil, err
	}
	return &plaintext{rlwe.NewDecryptor(c.params, k).DecryptNew(x)}, nil
}

// NoiseBudget decrypts ct without decoding. The encoder stores m/t, so the
// decryption times t is m + t*e; its largest centered coefficient is compared
// against half of Q at ct's level.
func (c *context) NoiseBudget(sk backend.Object, ct backend.Ciphertext) (int, error) {
	if c.intParams == nil {
		return 0, fmt.Errorf("%w: noise budget of %s", ErrWrongScheme, c.lit.Scheme)
	}
	k, err := asSecretKey(sk)
	if err != nil {
		return 0, err
	}
	x, err := asCiphertext(ct)
	if err != nil {
		return 0, err
	}
	pt := rlwe.NewDecryptor(c.params, k).DecryptNew(x)
	ringQ := c.params.RingQ().AtLevel(x.Level())
	if pt.IsNTT {
		ringQ.INTT(pt.Value, pt.Value)
	}
	ringQ.MulScalar(pt.Value, c.intParams.PlaintextModulus(), pt.Value)

	coeffs := make([]*big.Int, c.N())
	for i := range coeffs {
		coeffs[i] = new(big.Int)
	}
	ringQ.PolyToBigintCentered(pt.Value, 1, coeffs)
	_, _, logMax := rlwe.NormStats(coeffs)
	if math.IsInf(logMax, -1) {
		logMax = 0
	}
	return max(0, int(math.Floor(ringQ.LogModuli()-1-logMax))), nil
}

func (c *context) NewEvaluator(rlk, galois backend.Object) (backend.Evaluator, error) {
	r, err := asRelinKey(rlk)
	if err != nil {
		return nil, err
	}
	gks, err := asGaloisKeys(galois)
	if err != nil {
		return nil, err
	}
	evk := rlwe.NewMemEvaluationKeySet(r, gks...)

	if c.realParams != nil {
		return &realEvaluator{params: *c.realParams, eval: ckks.NewEvaluator(*c.realParams, evk)}, nil
	}
	return &integerEvaluator{
		params:  *c.intParams,
		eval:    bgv.NewEvaluator(*c.intParams, evk, c.lit.Scheme == backend.SchemeBFV),
		leveler: bgv.NewEvaluator(*c.intParams, nil),
	}, nil
}

// ===== Encoding =====

func (c *context) newIntegerPlaintext(batched bool) *rlwe.Plaintext {
	pt := rlwe.NewPlaintext(c.params, c.MaxLevel())
	pt.Scale = c.intParams.DefaultScale()
	pt.LogDimensions = c.intParams.LogMaxDimensions()
	pt.IsBatched = batched
	return pt
}

func (c *context) EncodeCoeffs(coeffs []uint64) (backend.Object, error) {
	if c.intParams == nil {
		return nil, fmt.Errorf("%w: coefficient encoding needs bfv or bgv", ErrWrongScheme)
	}
	if len(coeffs) > c.N() {
		return nil, fmt.Errorf("encode: %d coefficients exceed degree %d", len(coeffs), c.N())
	}
	t := c.intParams.PlaintextModulus()
	reduced := make([]uint64, len(coeffs))
	for i, v := range coeffs {
		reduced[i] = v % t
	}
	pt := c.newIntegerPlaintext(false)
	if err := c.intEnc.Encode(reduced, pt); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return &plaintext{pt}, nil
}

func (c *context) DecodeCoeffs(pt backend.Object) ([]uint64, error) {
	p, err := asPlaintext(pt)
	if err != nil {
		return nil, err
	}
	if c.intParams == nil {
		return nil, fmt.Errorf("%w: coefficient decoding needs bfv or bgv", ErrWrongScheme)
	}
	if p.IsBatched {
		return nil, fmt.Errorf("decode: plaintext holds slots, not coefficients")
	}
	coeffs := make([]uint64, c.N())
	if err := c.intEnc.Decode(p, coeffs); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return coeffs, nil
}

func (c *context) EncodeInts(values []int64) (backend.Object, error) {
	if c.intParams == nil {
		return nil, fmt.Errorf("%w: integer encoding needs bfv or bgv", ErrWrongScheme)
	}
	if !c.lit.Batching {
		return nil, ErrNoSlotEncoder
	}
	pt := c.newIntegerPlaintext(true)
	if err := c.intEnc.Encode(values, pt); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return &plaintext{pt}, nil
}

func (c *context) DecodeInts(pt backend.Object) ([]int64, error) {
	p, err := asPlaintext(pt)
	if err != nil {
		return nil, err
	}
	if c.intParams == nil {
		return nil, fmt.Errorf("%w: integer decoding needs bfv or bgv", ErrWrongScheme)
	}
	if !c.lit.Batching || !p.IsBatched {
		return nil, ErrNoSlotEncoder
	}
	values := make([]int64, c.SlotCount())
	if err := c.intEnc.Decode(p, values); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return values, nil
}

func (c *context) EncodeFloats(values []float64) (backend.Object, error) {
	if c.realParams == nil {
		return nil, fmt.Errorf("%w: real encoding needs ckks", ErrWrongScheme)
	}
	pt := ckks.NewPlaintext(*c.realParams, c.MaxLevel())
	if err := c.realEnc.Encode(values, pt); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return &plaintext{pt}, nil
}

func (c *context) DecodeFloats(pt backend.Object) ([]float64, error) {
	p, err := asPlaintext(pt)
	if err != nil {
		return nil, err
	}
	if c.realParams == nil {
		return nil, fmt.Errorf("%w: real decoding needs ckks", ErrWrongScheme)
	}
	values := make([]float64, c.SlotCount())
	if err := c.realEnc.Decode(p, values); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return values, nil
}

// ===== Serialization =====

func (c *context) Unmarshal(kind backend.Kind, data []byte) (backend.Object, error) {
	switch kind {
	case backend.KindPlaintext:
		pt := new(rlwe.Plaintext)
		if err := pt.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("unmarshal plaintext: %w", err)
		}
		if err := c.checkShape(pt.Value.N(), pt.Level()); err != nil {
			return nil, err
		}
		return &plaintext{pt}, nil

	case backend.KindCiphertext:
		ct := new(rlwe.Ciphertext)
		if err := ct.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("unmarshal ciphertext: %w", err)
		}
		if len(ct.Value) == 0 {
			return nil, fmt.Errorf("unmarshal ciphertext: no components")
		}
		if err := c.checkShape(ct.Value[0].N(), ct.Level()); err != nil {
			return nil, err
		}
		return &ciphertext{ct}, nil

	case backend.KindSecretKey:
		sk := new(rlwe.SecretKey)
		if err := sk.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("unmarshal secret key: %w", err)
		}
		if sk.Value.Q.N() != c.N() {
			return nil, ErrDegreeMismatch
		}
		return &secretKey{sk, c.MaxLevel()}, nil

	case backend.KindPublicKey:
		pk := new(rlwe.PublicKey)
		if err := pk.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("unmarshal public key: %w", err)
		}
		if pk.Value[0].Q.N() != c.N() {
			return nil, ErrDegreeMismatch
		}
		return &publicKey{pk, c.MaxLevel()}, nil

	case backend.KindRelinKey:
		rlk := new(rlwe.RelinearizationKey)
		if err := rlk.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("unmarshal relinearization key: %w", err)
		}
		return &relinKey{rlk, c.MaxLevel()}, nil

	case backend.KindGaloisKeys:
		set := new(rlwe.MemEvaluationKeySet)
		if err := set.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("unmarshal galois keys: %w", err)
		}
		return &galoisKeys{set, c.MaxLevel()}, nil

	default:
		return nil, fmt.Errorf("unmarshal: unknown object kind %d", kind)
	}
}

func (c *context) checkShape(n, level int) error {
	if n != c.N() {
		return fmt.Errorf("%w: got %d, want %d", ErrDegreeMismatch, n, c.N())
	}
	if level < 0 || level > c.MaxLevel() {
		return fmt.Errorf("%w: level %d, max %d", ErrLevelRange, level, c.MaxLevel())
	}
	return nil
}
