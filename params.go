// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package afhe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/zeebo/blake3"

	"github.com/luxfi/afhe/backend"
)

// Parameters is the raw parameter set a Context is generated from.
type Parameters struct {
	Scheme     Scheme
	PolyDegree int
	// PlainModulus and PlainBits are mutually exclusive. A positive PlainBits
	// enables batching and lets the backend pick the modulus.
	PlainModulus uint64
	PlainBits    int
	// SecurityLevel is 128, 192 or 256. Zero skips the security check.
	SecurityLevel int
	// CoeffBitSizes is the coefficient modulus chain. The last entry is the
	// special key-switching prime when the chain has more than one entry.
	CoeffBitSizes []int
	// LogScale is the log2 of the CKKS encoding scale.
	LogScale int
}

// Bounds on the bit sizes accepted for moduli.
const (
	MinModulusBits = 2
	MaxModulusBits = 60
)

// Standard polynomial degrees.
const (
	MinPolyDegree = 1024
	MaxPolyDegree = 32768
)

// Largest total coefficient modulus, in bits, for each degree and security
// level of the HomomorphicEncryption.org standard.
var maxCoeffBits = map[int]map[int]int{
	128: {1024: 27, 2048: 54, 4096: 109, 8192: 218, 16384: 438, 32768: 881},
	192: {1024: 19, 2048: 37, 4096: 75, 8192: 152, 16384: 305, 32768: 611},
	256: {1024: 14, 2048: 29, 4096: 58, 8192: 118, 16384: 237, 32768: 476},
}

// MaxCoeffBits returns the largest secure total modulus size, or 0 when the
// pair is not tabulated.
func MaxCoeffBits(polyDegree, securityLevel int) int {
	return maxCoeffBits[securityLevel][polyDegree]
}

// DefaultCoeffBitSizes splits the secure budget for the pair into primes of at
// most 45 bits.
func DefaultCoeffBitSizes(polyDegree, securityLevel int) []int {
	if securityLevel == 0 {
		securityLevel = 128
	}
	total := MaxCoeffBits(polyDegree, securityLevel)
	if total == 0 {
		return nil
	}
	n := (total + 44) / 45
	sizes := make([]int, n)
	for i := range sizes {
		sizes[i] = total / n
	}
	for i := 0; i < total%n; i++ {
		sizes[n-1-i]++
	}
	return sizes
}

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

// validate checks the parameters before any backend sees them.
func (p Parameters) validate() *backend.ValidationError {
	if p.PolyDegree < MinPolyDegree || p.PolyDegree > MaxPolyDegree || !isPowerOfTwo(p.PolyDegree) {
		return backend.Invalid("invalid_argument", "non-standard poly_modulus_degree")
	}
	switch p.SecurityLevel {
	case 0, 128, 192, 256:
	default:
		return backend.Invalid("invalid_argument", "invalid security level")
	}

	switch p.Scheme {
	case SchemeBFV, SchemeBGV:
		switch {
		case p.PlainBits > 0 && p.PlainModulus > 0:
			return backend.Invalid("invalid_argument", "plain_modulus and plain_modulus_bits are mutually exclusive")
		case p.PlainBits > 0:
			if p.PlainBits < MinModulusBits || p.PlainBits > MaxModulusBits {
				return backend.Invalid("invalid_plain_modulus_bit_count",
					"plain_modulus's bit count is not bounded by PLAIN_MOD_BIT_COUNT_MIN(MAX)")
			}
		case p.PlainModulus == 0:
			return backend.Invalid("invalid_plain_modulus", "plain_modulus is not set")
		default:
			if n := bits.Len64(p.PlainModulus); n < MinModulusBits || n > MaxModulusBits {
				return backend.Invalid("invalid_plain_modulus_bit_count",
					"plain_modulus's bit count is not bounded by PLAIN_MOD_BIT_COUNT_MIN(MAX)")
			}
		}
	case SchemeCKKS:
		switch {
		case p.PlainModulus > 0 || p.PlainBits > 0:
			return backend.Invalid("invalid_argument", "ckks does not take a plain_modulus")
		case len(p.CoeffBitSizes) == 0:
			return backend.Invalid("invalid_argument", "ckks requires coeff_modulus bit sizes")
		case p.LogScale <= 0 || p.LogScale > MaxModulusBits:
			return backend.Invalid("invalid_argument", "ckks requires a positive scale of at most 60 bits")
		}
	default:
		return backend.Invalid("invalid_argument", "unsupported scheme %s", p.Scheme)
	}

	total := 0
	for _, b := range p.CoeffBitSizes {
		if b < MinModulusBits || b > MaxModulusBits {
			return backend.Invalid("invalid_coeff_modulus_bit_count",
				"coeff_modulus's primes' bit counts are not bounded by USER_MOD_BIT_COUNT_MIN(MAX)")
		}
		total += b
	}
	if p.SecurityLevel != 0 && total > MaxCoeffBits(p.PolyDegree, p.SecurityLevel) {
		return backend.Invalid("invalid_parameters_insecure",
			"parameters are not compliant with HomomorphicEncryption.org security standard")
	}
	return nil
}

// resolve validates p, fills the default chain and derives the batching
// modulus. The returned parameters always carry a literal plain modulus.
func (p Parameters) resolve(provider backend.Provider) (Parameters, error) {
	p.CoeffBitSizes = append([]int(nil), p.CoeffBitSizes...)
	if p.Scheme != SchemeCKKS && len(p.CoeffBitSizes) == 0 {
		p.CoeffBitSizes = DefaultCoeffBitSizes(p.PolyDegree, p.SecurityLevel)
	}
	if err := p.validate(); err != nil {
		return p, err
	}
	if p.PlainBits > 0 {
		t, err := provider.BatchingModulus(p.logN(), p.PlainBits)
		if err != nil {
			return p, backend.Invalid("invalid_plain_modulus", "%v", err)
		}
		p.PlainModulus = t
		p.PlainBits = 0
	}
	return p, nil
}

func (p Parameters) logN() int { return bits.TrailingZeros(uint(p.PolyDegree)) }

func (p Parameters) literal(batching bool) backend.Literal {
	lit := backend.Literal{
		Scheme:       p.Scheme,
		LogN:         p.logN(),
		PlainModulus: p.PlainModulus,
		LogQ:         p.CoeffBitSizes,
		LogScale:     p.LogScale,
		Batching:     batching && p.Scheme != SchemeCKKS,
	}
	if n := len(p.CoeffBitSizes); n > 1 {
		lit.LogQ = p.CoeffBitSizes[:n-1]
		lit.LogP = p.CoeffBitSizes[n-1:]
	}
	return lit
}

const paramsHeaderSize = 15

// BinarySize is the length of the canonical encoding.
func (p Parameters) BinarySize() int { return paramsHeaderSize + len(p.CoeffBitSizes) }

// MarshalBinary returns the canonical encoding: scheme, log degree, security
// level, plain modulus, log scale and the chain, little endian. PlainBits is
// not encoded, so only resolved parameters round-trip.
func (p Parameters) MarshalBinary() ([]byte, error) {
	if len(p.CoeffBitSizes) > 255 {
		return nil, newError(KindInvalidArgument, "too many coefficient moduli: %d", len(p.CoeffBitSizes))
	}
	var buf bytes.Buffer
	buf.Grow(p.BinarySize())
	buf.WriteByte(byte(p.Scheme))
	buf.WriteByte(byte(p.logN()))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(p.SecurityLevel))
	_ = binary.Write(&buf, binary.LittleEndian, p.PlainModulus)
	_ = binary.Write(&buf, binary.LittleEndian, uint16(p.LogScale))
	buf.WriteByte(byte(len(p.CoeffBitSizes)))
	for _, b := range p.CoeffBitSizes {
		buf.WriteByte(byte(b))
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes the canonical encoding.
func (p *Parameters) UnmarshalBinary(data []byte) error {
	if len(data) < paramsHeaderSize {
		return fmt.Errorf("parameters: %d bytes, want at least %d", len(data), paramsHeaderSize)
	}
	n := int(data[14])
	if len(data) != paramsHeaderSize+n {
		return fmt.Errorf("parameters: %d bytes for %d moduli", len(data), n)
	}
	if data[1] > 30 {
		return fmt.Errorf("parameters: log degree %d out of range", data[1])
	}
	*p = Parameters{
		Scheme:        Scheme(data[0]),
		PolyDegree:    1 << data[1],
		SecurityLevel: int(binary.LittleEndian.Uint16(data[2:4])),
		PlainModulus:  binary.LittleEndian.Uint64(data[4:12]),
		LogScale:      int(binary.LittleEndian.Uint16(data[12:14])),
		CoeffBitSizes: make([]int, n),
	}
	for i := range p.CoeffBitSizes {
		p.CoeffBitSizes[i] = int(data[paramsHeaderSize+i])
	}
	return nil
}

// ParameterID identifies one level of the modulus chain of p.
type ParameterID [32]byte

func (id ParameterID) String() string { return fmt.Sprintf("%x", id[:8]) }

// ID returns the parameter-id of level.
func (p Parameters) ID(level int) ParameterID {
	enc, _ := p.MarshalBinary()
	h := blake3.New()
	_, _ = h.Write(enc)
	var lvl [4]byte
	binary.LittleEndian.PutUint32(lvl[:], uint32(level))
	_, _ = h.Write(lvl[:])
	var id ParameterID
	copy(id[:], h.Sum(nil))
	return id
}
