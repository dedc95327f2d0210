// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package ffi

import (
	"fmt"
	"math"

	"github.com/luxfi/afhe"
)

func (s *Session) handle(op string, fn func() (any, error)) Handle {
	h := InvalidHandle
	s.guard(op, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		h = s.put(v)
		return nil
	})
	return h
}

func (s *Session) code(op string, fn func() error) int {
	if s.guard(op, fn) {
		return CodeOK
	}
	return -1
}

func (s *Session) bytes(op string, fn func() ([]byte, error)) []byte {
	var out []byte
	s.guard(op, func() (err error) {
		out, err = fn()
		return err
	})
	return out
}

func (s *Session) text(op string, fn func() (string, error)) string {
	var out string
	s.guard(op, func() (err error) {
		out, err = fn()
		return err
	})
	return out
}

func (s *Session) integer(op string, fn func() (int, error)) int {
	out := -1
	s.guard(op, func() (err error) {
		n, err := fn()
		if err == nil {
			out = n
		}
		return err
	})
	return out
}

func (s *Session) context(h Handle) (*afhe.Context, error) {
	return lookup[*afhe.Context](s, h, "context")
}

func (s *Session) ciphertext(h Handle) (*afhe.Ciphertext, error) {
	return lookup[*afhe.Ciphertext](s, h, "ciphertext")
}

func (s *Session) plaintext(h Handle) (*afhe.Plaintext, error) {
	return lookup[*afhe.Plaintext](s, h, "plaintext")
}

func (s *Session) key(h Handle) (*afhe.Key, error) {
	return lookup[*afhe.Key](s, h, "key")
}

func compression(mode int) (afhe.CompressionMode, error) {
	if mode < 0 || mode > math.MaxUint8 {
		return 0, &afhe.Error{Kind: afhe.KindUnsupportedCompressionMode, Msg: fmt.Sprintf("Unsupported Compression Mode: %d", mode)}
	}
	return afhe.CompressionMode(mode), nil
}

// Selectors. An unknown name returns 0 and records the error.

func (s *Session) BackendFromString(name string) int {
	b, err := afhe.ParseBackend(name)
	if err != nil {
		s.fail(err)
	}
	return int(b)
}

func (s *Session) SchemeFromString(name string) int {
	v, err := afhe.ParseScheme(name)
	if err != nil {
		s.fail(err)
	}
	return int(v)
}

func (s *Session) KeyTypeFromString(name string) int {
	k, err := afhe.ParseKeyType(name)
	if err != nil {
		s.fail(err)
	}
	return int(k)
}

func (s *Session) CompressionFromString(name string) int {
	m, err := afhe.ParseCompressionMode(name)
	if err != nil {
		s.fail(err)
	}
	return int(m)
}

// Context lifecycle.

// InitBackend creates an empty context on backend b.
func (s *Session) InitBackend(b int) Handle {
	return s.handle("init backend", func() (any, error) {
		if b <= 0 || b > math.MaxUint8 {
			return nil, &afhe.Error{Kind: afhe.KindUnsupportedBackend, Msg: fmt.Sprintf("Unsupported Backend: %d", b)}
		}
		return afhe.New(afhe.Backend(b), afhe.WithLogger(s.log))
	})
}

// GenerateContext returns the context status. A parameter validation
// failure is reported through the status only; "" means the call itself
// failed.
func (s *Session) GenerateContext(ctx Handle, scheme, polyDegree, plainBits int, plainModulus uint64, secLevel int, coeffBitSizes []int) string {
	return s.text("generate context", func() (string, error) {
		c, err := s.context(ctx)
		if err != nil {
			return "", err
		}
		if scheme < 0 || scheme > math.MaxUint8 {
			scheme = int(afhe.SchemeNone)
		}
		return c.Generate(afhe.Scheme(scheme), polyDegree, plainBits, plainModulus, secLevel, coeffBitSizes), nil
	})
}

func (s *Session) GenerateContextFromBlob(ctx Handle, data []byte, ignoreBatchingErrors bool) string {
	return s.text("generate context from blob", func() (string, error) {
		c, err := s.context(ctx)
		if err != nil {
			return "", err
		}
		return c.GenerateFromBlob(data, ignoreBatchingErrors), nil
	})
}

func (s *Session) DisableModSwitch(ctx Handle) int {
	return s.code("disable mod switch", func() error {
		c, err := s.context(ctx)
		if err != nil {
			return err
		}
		return c.DisableModSwitch()
	})
}

func (s *Session) SaveParameters(ctx Handle, mode int) []byte {
	return s.bytes("save parameters", func() ([]byte, error) {
		c, err := s.context(ctx)
		if err != nil {
			return nil, err
		}
		m, err := compression(mode)
		if err != nil {
			return nil, err
		}
		return c.SaveParameters(m)
	})
}

func (s *Session) SaveParametersSize(ctx Handle, mode int) int {
	return s.integer("save parameters size", func() (int, error) {
		c, err := s.context(ctx)
		if err != nil {
			return 0, err
		}
		m, err := compression(mode)
		if err != nil {
			return 0, err
		}
		p, err := c.Parameters()
		if err != nil {
			return 0, err
		}
		return afhe.SaveSize(p, m)
	})
}

func (s *Session) SlotCount(ctx Handle) int {
	return s.integer("slot count", func() (int, error) {
		c, err := s.context(ctx)
		if err != nil {
			return 0, err
		}
		if c.State() == afhe.StateUninitialized {
			return 0, &afhe.Error{Kind: afhe.KindContextNotInitialized, Msg: "context has not been generated"}
		}
		return c.SlotCount(), nil
	})
}

// Keys.

func (s *Session) GenerateKeys(ctx Handle) int {
	return s.code("generate keys", func() error {
		c, err := s.context(ctx)
		if err != nil {
			return err
		}
		return c.GenerateKeys()
	})
}

func (s *Session) GenerateKeysFromSecret(ctx, sk Handle) int {
	return s.code("generate keys from secret", func() error {
		c, err := s.context(ctx)
		if err != nil {
			return err
		}
		k, err := s.key(sk)
		if err != nil {
			return err
		}
		return c.GenerateKeysFromSecret(k)
	})
}

func (s *Session) GenerateRelinKeys(ctx Handle) int {
	return s.code("generate relin keys", func() error {
		c, err := s.context(ctx)
		if err != nil {
			return err
		}
		return c.GenerateRelinKeys()
	})
}

func (s *Session) GenerateGaloisKeys(ctx Handle) int {
	return s.code("generate galois keys", func() error {
		c, err := s.context(ctx)
		if err != nil {
			return err
		}
		return c.GenerateGaloisKeys()
	})
}

// GetKey returns a new handle to the context's key of keyType.
func (s *Session) GetKey(ctx Handle, keyType int) Handle {
	return s.handle("get key", func() (any, error) {
		c, err := s.context(ctx)
		if err != nil {
			return nil, err
		}
		if keyType < 0 || keyType > math.MaxUint8 {
			return nil, &afhe.Error{Kind: afhe.KindUnsupportedKeyType, Msg: fmt.Sprintf("Unsupported Key Type: %d", keyType)}
		}
		var k *afhe.Key
		switch afhe.KeyType(keyType) {
		case afhe.KeyPublic:
			k = c.PublicKey()
		case afhe.KeySecret:
			k = c.SecretKey()
		case afhe.KeyRelin:
			k = c.RelinKeys()
		case afhe.KeyGalois:
			k = c.GaloisKeys()
		default:
			return nil, &afhe.Error{Kind: afhe.KindUnsupportedKeyType, Msg: fmt.Sprintf("Unsupported Key Type: %d", keyType)}
		}
		if k == nil {
			return nil, &afhe.Error{Kind: afhe.KindKeyNotGenerated, Msg: afhe.KeyType(keyType).String() + " key has not been generated"}
		}
		return k, nil
	})
}

func (s *Session) SetEvaluationKey(ctx, key Handle) int {
	return s.code("set evaluation key", func() error {
		c, err := s.context(ctx)
		if err != nil {
			return err
		}
		k, err := s.key(key)
		if err != nil {
			return err
		}
		return c.SetEvaluationKey(k)
	})
}

func (s *Session) KeyType(key Handle) int {
	return s.integer("key type", func() (int, error) {
		k, err := s.key(key)
		if err != nil {
			return 0, err
		}
		return int(k.Type()), nil
	})
}

func (s *Session) LoadKey(ctx Handle, keyType int, data []byte) Handle {
	return s.handle("load key", func() (any, error) {
		c, err := s.context(ctx)
		if err != nil {
			return nil, err
		}
		if keyType < 0 || keyType > math.MaxUint8 {
			return nil, &afhe.Error{Kind: afhe.KindUnsupportedKeyType, Msg: fmt.Sprintf("Unsupported Key Type: %d", keyType)}
		}
		return c.LoadKey(afhe.KeyType(keyType), data)
	})
}

// Plaintexts.

func (s *Session) NewPlaintext(ctx Handle, hexPoly string) Handle {
	return s.handle("new plaintext", func() (any, error) {
		c, err := s.context(ctx)
		if err != nil {
			return nil, err
		}
		return c.NewPlaintext(hexPoly)
	})
}

func (s *Session) NewPlaintextDecimal(ctx Handle, decPoly string) Handle {
	return s.handle("new plaintext", func() (any, error) {
		c, err := s.context(ctx)
		if err != nil {
			return nil, err
		}
		return c.NewPlaintextDecimal(decPoly)
	})
}

// PlaintextValue returns the hexadecimal polynomial of pt.
func (s *Session) PlaintextValue(pt Handle) string {
	return s.text("plaintext value", func() (string, error) {
		p, err := s.plaintext(pt)
		if err != nil {
			return "", err
		}
		return p.Hex()
	})
}

func (s *Session) PlaintextDecimal(pt Handle) string {
	return s.text("plaintext decimal", func() (string, error) {
		p, err := s.plaintext(pt)
		if err != nil {
			return "", err
		}
		return p.DecimalString()
	})
}

func (s *Session) LoadPlaintext(ctx Handle, data []byte) Handle {
	return s.handle("load plaintext", func() (any, error) {
		c, err := s.context(ctx)
		if err != nil {
			return nil, err
		}
		return c.LoadPlaintext(data)
	})
}

func (s *Session) EncodeInt(ctx Handle, values []int64) Handle {
	return s.handle("encode int", func() (any, error) {
		c, err := s.context(ctx)
		if err != nil {
			return nil, err
		}
		return c.EncodeInt(values)
	})
}

func (s *Session) DecodeInt(ctx, pt Handle) []int64 {
	var out []int64
	s.guard("decode int", func() error {
		c, err := s.context(ctx)
		if err != nil {
			return err
		}
		p, err := s.plaintext(pt)
		if err != nil {
			return err
		}
		out, err = c.DecodeInt(p)
		return err
	})
	return out
}

func (s *Session) EncodeDouble(ctx Handle, values []float64) Handle {
	return s.handle("encode double", func() (any, error) {
		c, err := s.context(ctx)
		if err != nil {
			return nil, err
		}
		return c.EncodeDouble(values)
	})
}

func (s *Session) EncodeDoubleValue(ctx Handle, v float64) Handle {
	return s.handle("encode double value", func() (any, error) {
		c, err := s.context(ctx)
		if err != nil {
			return nil, err
		}
		return c.EncodeDoubleValue(v)
	})
}

func (s *Session) DecodeDouble(ctx, pt Handle) []float64 {
	var out []float64
	s.guard("decode double", func() error {
		c, err := s.context(ctx)
		if err != nil {
			return err
		}
		p, err := s.plaintext(pt)
		if err != nil {
			return err
		}
		out, err = c.DecodeDouble(p)
		return err
	})
	return out
}

// Ciphertexts.

func (s *Session) Encrypt(ctx, pt Handle) Handle {
	return s.handle("encrypt", func() (any, error) {
		c, err := s.context(ctx)
		if err != nil {
			return nil, err
		}
		p, err := s.plaintext(pt)
		if err != nil {
			return nil, err
		}
		return c.Encrypt(p)
	})
}

func (s *Session) Decrypt(ctx, ct Handle) Handle {
	return s.handle("decrypt", func() (any, error) {
		c, err := s.context(ctx)
		if err != nil {
			return nil, err
		}
		x, err := s.ciphertext(ct)
		if err != nil {
			return nil, err
		}
		return c.Decrypt(x)
	})
}

// CiphertextSize returns the number of polynomials in ct.
func (s *Session) CiphertextSize(ct Handle) int {
	return s.integer("ciphertext size", func() (int, error) {
		x, err := s.ciphertext(ct)
		if err != nil {
			return 0, err
		}
		return x.Size(), nil
	})
}

func (s *Session) CiphertextLevel(ct Handle) int {
	return s.integer("ciphertext level", func() (int, error) {
		x, err := s.ciphertext(ct)
		if err != nil {
			return 0, err
		}
		return x.Level(), nil
	})
}

// NoiseBudget returns the invariant noise budget of ct in bits.
func (s *Session) NoiseBudget(ctx, ct Handle) int {
	return s.integer("noise budget", func() (int, error) {
		c, err := s.context(ctx)
		if err != nil {
			return 0, err
		}
		x, err := s.ciphertext(ct)
		if err != nil {
			return 0, err
		}
		return c.NoiseBudget(x)
	})
}

func (s *Session) LoadCiphertext(ctx Handle, data []byte) Handle {
	return s.handle("load ciphertext", func() (any, error) {
		c, err := s.context(ctx)
		if err != nil {
			return nil, err
		}
		return c.LoadCiphertext(data)
	})
}

func (s *Session) saveable(h Handle) (afhe.Saveable, error) {
	s.mu.Lock()
	v, ok := s.objects[h]
	s.mu.Unlock()
	if obj, isObj := v.(afhe.Saveable); ok && isObj {
		return obj, nil
	}
	return nil, badHandle(h, "key, plaintext or ciphertext")
}

// Save serializes the key, plaintext or ciphertext behind h.
func (s *Session) Save(h Handle, mode int) []byte {
	return s.bytes("save", func() ([]byte, error) {
		obj, err := s.saveable(h)
		if err != nil {
			return nil, err
		}
		m, err := compression(mode)
		if err != nil {
			return nil, err
		}
		return afhe.Save(obj, m)
	})
}

// SaveSize bounds the length of Save(h, mode).
func (s *Session) SaveSize(h Handle, mode int) int {
	return s.integer("save size", func() (int, error) {
		obj, err := s.saveable(h)
		if err != nil {
			return 0, err
		}
		m, err := compression(mode)
		if err != nil {
			return 0, err
		}
		return afhe.SaveSize(obj, m)
	})
}

// Evaluation.

type binaryOp func(*afhe.Context, *afhe.Ciphertext, *afhe.Ciphertext) (*afhe.Ciphertext, error)

type plainOp func(*afhe.Context, *afhe.Ciphertext, *afhe.Plaintext) (*afhe.Ciphertext, error)

type unaryOp func(*afhe.Context, *afhe.Ciphertext) (*afhe.Ciphertext, error)

func (s *Session) binary(op string, ctx, a, b Handle, fn binaryOp) Handle {
	return s.handle(op, func() (any, error) {
		c, err := s.context(ctx)
		if err != nil {
			return nil, err
		}
		x, err := s.ciphertext(a)
		if err != nil {
			return nil, err
		}
		y, err := s.ciphertext(b)
		if err != nil {
			return nil, err
		}
		return fn(c, x, y)
	})
}

func (s *Session) withPlain(op string, ctx, a, pt Handle, fn plainOp) Handle {
	return s.handle(op, func() (any, error) {
		c, err := s.context(ctx)
		if err != nil {
			return nil, err
		}
		x, err := s.ciphertext(a)
		if err != nil {
			return nil, err
		}
		p, err := s.plaintext(pt)
		if err != nil {
			return nil, err
		}
		return fn(c, x, p)
	})
}

func (s *Session) unary(op string, ctx, a Handle, fn unaryOp) Handle {
	return s.handle(op, func() (any, error) {
		c, err := s.context(ctx)
		if err != nil {
			return nil, err
		}
		x, err := s.ciphertext(a)
		if err != nil {
			return nil, err
		}
		return fn(c, x)
	})
}

func (s *Session) Add(ctx, a, b Handle) Handle {
	return s.binary("add", ctx, a, b, (*afhe.Context).Add)
}

func (s *Session) Subtract(ctx, a, b Handle) Handle {
	return s.binary("subtract", ctx, a, b, (*afhe.Context).Subtract)
}

func (s *Session) Multiply(ctx, a, b Handle) Handle {
	return s.binary("multiply", ctx, a, b, (*afhe.Context).Multiply)
}

func (s *Session) AddPlain(ctx, a, pt Handle) Handle {
	return s.withPlain("add plain", ctx, a, pt, (*afhe.Context).AddPlain)
}

func (s *Session) SubtractPlain(ctx, a, pt Handle) Handle {
	return s.withPlain("subtract plain", ctx, a, pt, (*afhe.Context).SubtractPlain)
}

func (s *Session) MultiplyPlain(ctx, a, pt Handle) Handle {
	return s.withPlain("multiply plain", ctx, a, pt, (*afhe.Context).MultiplyPlain)
}

func (s *Session) Square(ctx, a Handle) Handle {
	return s.unary("square", ctx, a, (*afhe.Context).Square)
}

func (s *Session) Negate(ctx, a Handle) Handle {
	return s.unary("negate", ctx, a, (*afhe.Context).Negate)
}

func (s *Session) Relinearize(ctx, a Handle) Handle {
	return s.unary("relinearize", ctx, a, (*afhe.Context).Relinearize)
}

func (s *Session) ModSwitchToNext(ctx, a Handle) Handle {
	return s.unary("mod switch", ctx, a, (*afhe.Context).ModSwitchToNext)
}

func (s *Session) Rescale(ctx, a Handle) Handle {
	return s.unary("rescale", ctx, a, (*afhe.Context).Rescale)
}

func (s *Session) Power(ctx, a Handle, exponent uint64) Handle {
	return s.unary("power", ctx, a, func(c *afhe.Context, x *afhe.Ciphertext) (*afhe.Ciphertext, error) {
		return c.Power(x, exponent)
	})
}

func (s *Session) Rotate(ctx, a Handle, steps int) Handle {
	return s.unary("rotate", ctx, a, func(c *afhe.Context, x *afhe.Ciphertext) (*afhe.Ciphertext, error) {
		return c.Rotate(x, steps)
	})
}
