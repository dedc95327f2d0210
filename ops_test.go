// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package afhe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encryptHex(t *testing.T, c *Context, poly string) *Ciphertext {
	t.Helper()
	pt, err := c.NewPlaintext(poly)
	require.NoError(t, err)
	ct, err := c.Encrypt(pt)
	require.NoError(t, err)
	return ct
}

func decryptHex(t *testing.T, c *Context, ct *Ciphertext) string {
	t.Helper()
	pt, err := c.Decrypt(ct)
	require.NoError(t, err)
	return pt.String()
}

func TestAddScenario(t *testing.T) {
	for _, b := range backends {
		for _, scheme := range []Scheme{SchemeBFV, SchemeBGV} {
			t.Run(b.String()+"/"+scheme.String(), func(t *testing.T) {
				c := keyedContext(t, b, scheme, smallDegree, 0, smallModulus, nil)

				sum, err := c.Add(encryptHex(t, c, "100"), encryptHex(t, c, "17"))
				require.NoError(t, err)
				assert.Equal(t, "117", decryptHex(t, c, sum))
			})
		}
	}
}

func TestDecimalPlaintext(t *testing.T) {
	c := keyedContext(t, BackendLattigo, SchemeBFV, smallDegree, 0, smallModulus, nil)

	a, err := c.NewPlaintextDecimal("100")
	require.NoError(t, err)
	b, err := c.NewPlaintextDecimal("17")
	require.NoError(t, err)
	ca, err := c.Encrypt(a)
	require.NoError(t, err)

	sum, err := c.AddPlain(ca, b)
	require.NoError(t, err)
	pt, err := c.Decrypt(sum)
	require.NoError(t, err)
	assert.Equal(t, "117", pt.Decimal())
	assert.Equal(t, "75", pt.String())
}

func TestPolynomialFormat(t *testing.T) {
	c := keyedContext(t, BackendLattigo, SchemeBFV, smallDegree, 0, smallModulus, nil)

	pt, err := c.NewPlaintext("1x^2 + Ax^1 + 3")
	require.NoError(t, err)
	assert.Equal(t, "1x^2 + Ax^1 + 3", pt.String())
	assert.Equal(t, "1x^2 + 10x^1 + 3", pt.Decimal())

	coeffs, err := pt.Coefficients()
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 10, 1}, coeffs[:3])

	zero, err := c.NewPlaintext("0")
	require.NoError(t, err)
	assert.Equal(t, "0", zero.String())

	for _, bad := range []string{"", "x^2", "1x2", "G", "1x^-1"} {
		_, err := c.NewPlaintext(bad)
		assert.ErrorIs(t, err, ErrInvalidArgument, bad)
	}

	// 0x3001 is the plain modulus itself.
	_, err = c.NewPlaintext("3001")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSubtractNegate(t *testing.T) {
	c := keyedContext(t, BackendLattigo, SchemeBFV, smallDegree, 0, smallModulus, nil)

	diff, err := c.Subtract(encryptHex(t, c, "2x^1 + 9"), encryptHex(t, c, "1x^1 + 4"))
	require.NoError(t, err)
	assert.Equal(t, "1x^1 + 5", decryptHex(t, c, diff))

	neg, err := c.Negate(encryptHex(t, c, "1"))
	require.NoError(t, err)
	assert.Equal(t, "3000", decryptHex(t, c, neg))

	pt, err := c.NewPlaintext("1")
	require.NoError(t, err)
	back, err := c.SubtractPlain(neg, pt)
	require.NoError(t, err)
	assert.Equal(t, "2FFF", decryptHex(t, c, back))
}

func TestMultiplyRelinearize(t *testing.T) {
	for _, b := range backends {
		for _, scheme := range []Scheme{SchemeBFV, SchemeBGV} {
			t.Run(b.String()+"/"+scheme.String(), func(t *testing.T) {
				c := keyedContext(t, b, scheme, 4096, 0, 65537, nil)

				prod, err := c.Multiply(encryptHex(t, c, "1x^1 + 1"), encryptHex(t, c, "1x^1 + 1"))
				require.NoError(t, err)
				assert.Equal(t, 3, prod.Size())

				_, err = c.Relinearize(prod)
				require.ErrorIs(t, err, ErrKeyNotGenerated)

				require.NoError(t, c.GenerateRelinKeys())
				relin, err := c.Relinearize(prod)
				require.NoError(t, err)
				assert.Equal(t, 2, relin.Size())
				assert.Equal(t, "1x^2 + 2x^1 + 1", decryptHex(t, c, relin))

				pt, err := c.NewPlaintext("3")
				require.NoError(t, err)
				scaled, err := c.MultiplyPlain(relin, pt)
				require.NoError(t, err)
				assert.Equal(t, "3x^2 + 6x^1 + 3", decryptHex(t, c, scaled))
			})
		}
	}
}

func TestSquarePower(t *testing.T) {
	c := keyedContext(t, BackendLattigo, SchemeBFV, 8192, 0, 65537, nil)
	ct := encryptHex(t, c, "3")

	sq, err := c.Square(ct)
	require.NoError(t, err)
	assert.Equal(t, "9", decryptHex(t, c, sq))

	_, err = c.Power(ct, 3)
	require.ErrorIs(t, err, ErrKeyNotGenerated)

	require.NoError(t, c.GenerateRelinKeys())
	_, err = c.Power(ct, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)

	same, err := c.Power(ct, 1)
	require.NoError(t, err)
	assert.Equal(t, "3", decryptHex(t, c, same))

	cube, err := c.Power(ct, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, cube.Size())
	assert.Equal(t, "1B", decryptHex(t, c, cube))

	fourth, err := c.Power(ct, 4)
	require.NoError(t, err)
	assert.Equal(t, "51", decryptHex(t, c, fourth))
}

func TestBatchedIntegers(t *testing.T) {
	for _, b := range backends {
		t.Run(b.String(), func(t *testing.T) {
			c := keyedContext(t, b, SchemeBGV, 4096, 20, 0, nil)

			x, err := c.EncodeInt([]int64{1, 2, 3, 4})
			require.NoError(t, err)
			y, err := c.EncodeInt([]int64{10, 20, 30, -40})
			require.NoError(t, err)
			cx, err := c.Encrypt(x)
			require.NoError(t, err)
			cy, err := c.Encrypt(y)
			require.NoError(t, err)

			sum, err := c.Add(cx, cy)
			require.NoError(t, err)
			pt, err := c.Decrypt(sum)
			require.NoError(t, err)
			got, err := c.DecodeInt(pt)
			require.NoError(t, err)
			require.Len(t, got, c.SlotCount())
			assert.Equal(t, []int64{11, 22, 33, -36}, got[:4])
			assert.Zero(t, got[4])

			// Coefficient syntax is meaningless for slot plaintexts.
			assert.Empty(t, pt.String())
			_, err = pt.Hex()
			assert.ErrorIs(t, err, ErrInvalidArgument)
			_, err = pt.DecimalString()
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestEncodeIntWithoutBatching(t *testing.T) {
	c := keyedContext(t, BackendLattigo, SchemeBFV, smallDegree, 0, smallModulus, nil)
	_, err := c.EncodeInt([]int64{1})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = c.EncodeDouble([]float64{1})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRotate(t *testing.T) {
	c := keyedContext(t, BackendLattigo, SchemeBFV, 4096, 20, 0, nil)
	pt, err := c.EncodeInt([]int64{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	ct, err := c.Encrypt(pt)
	require.NoError(t, err)

	_, err = c.Rotate(ct, 1)
	require.ErrorIs(t, err, ErrKeyNotGenerated)

	require.NoError(t, c.GenerateGaloisKeys())
	for _, steps := range []int{1, 3, 5} {
		rot, err := c.Rotate(ct, steps)
		require.NoError(t, err)
		dec, err := c.Decrypt(rot)
		require.NoError(t, err)
		got, err := c.DecodeInt(dec)
		require.NoError(t, err)
		assert.Equal(t, int64(1+steps), got[0], "steps %d", steps)
	}
}

func TestCKKS(t *testing.T) {
	for _, b := range backends {
		t.Run(b.String(), func(t *testing.T) {
			c := keyedContext(t, b, SchemeCKKS, 8192, 40, 0, []int{60, 40, 40, 60})
			require.NoError(t, c.GenerateRelinKeys())
			assert.Equal(t, 4096, c.SlotCount())

			want := []float64{0.5, 1.25, -2.5, 3.75}
			x, err := c.EncodeDouble(want)
			require.NoError(t, err)
			cx, err := c.Encrypt(x)
			require.NoError(t, err)
			assert.InDelta(t, float64(uint64(1)<<40), cx.Scale(), 1)

			half, err := c.EncodeDoubleValue(0.5)
			require.NoError(t, err)
			sum, err := c.AddPlain(cx, half)
			require.NoError(t, err)
			got := decodeReal(t, c, sum)
			stats, err := MeasurePrecision([]float64{1, 1.75, -2, 4.25}, got)
			require.NoError(t, err)
			assert.Greater(t, stats.Bits, 15.0)

			prod, err := c.Multiply(cx, cx)
			require.NoError(t, err)
			prod, err = c.Relinearize(prod)
			require.NoError(t, err)
			prod, err = c.Rescale(prod)
			require.NoError(t, err)
			assert.Equal(t, c.MaxLevel()-1, prod.Level())
			got = decodeReal(t, c, prod)
			for i, v := range want {
				assert.InDelta(t, v*v, got[i], 1e-3)
			}

			_, err = c.Power(cx, 2)
			require.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func decodeReal(t *testing.T, c *Context, ct *Ciphertext) []float64 {
	t.Helper()
	pt, err := c.Decrypt(ct)
	require.NoError(t, err)
	values, err := c.DecodeDouble(pt)
	require.NoError(t, err)
	return values
}

func TestModSwitch(t *testing.T) {
	t.Run("bfv", func(t *testing.T) {
		c := keyedContext(t, BackendLattigo, SchemeBFV, 4096, 0, 65537, nil)
		ct := encryptHex(t, c, "2Ax^3 + 7")

		lower, err := c.ModSwitchToNext(ct)
		require.NoError(t, err)
		assert.Equal(t, ct.Level()-1, lower.Level())
		assert.NotEqual(t, ct.ParameterID(), lower.ParameterID())
		assert.Equal(t, "2Ax^3 + 7", decryptHex(t, c, lower))

		_, err = c.ModSwitchToNext(lower)
		require.ErrorIs(t, err, ErrInvalidArgument)

		_, err = c.Rescale(ct)
		require.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("ckks", func(t *testing.T) {
		c := keyedContext(t, BackendLattigo, SchemeCKKS, 8192, 40, 0, []int{60, 40, 40, 60})
		pt, err := c.EncodeDouble([]float64{1.5})
		require.NoError(t, err)
		ct, err := c.Encrypt(pt)
		require.NoError(t, err)

		lower, err := c.ModSwitchToNext(ct)
		require.NoError(t, err)
		assert.Equal(t, ct.Level()-1, lower.Level())
		assert.InDelta(t, 1.5, decodeReal(t, c, lower)[0], 1e-6)
	})
}

func TestOperandsFromOtherContext(t *testing.T) {
	a := keyedContext(t, BackendLattigo, SchemeBFV, smallDegree, 0, smallModulus, nil)
	b := keyedContext(t, BackendLattigo, SchemeBFV, 4096, 0, 65537, nil)

	_, err := b.Add(encryptHex(t, b, "1"), encryptHex(t, a, "1"))
	require.ErrorIs(t, err, ErrParameterMismatch)

	_, err = b.Decrypt(encryptHex(t, a, "1"))
	require.ErrorIs(t, err, ErrParameterMismatch)

	_, err = b.Add(nil, encryptHex(t, b, "1"))
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestEncryptWithoutKeys(t *testing.T) {
	c := newContext(t, BackendLattigo)
	require.Equal(t, StatusValid, c.Generate(SchemeBFV, smallDegree, 0, smallModulus, 128, nil))
	pt, err := c.NewPlaintext("1")
	require.NoError(t, err)

	_, err = c.Encrypt(pt)
	require.ErrorIs(t, err, ErrKeyNotGenerated)
}

func TestNoiseBudget(t *testing.T) {
	for _, b := range backends {
		for _, scheme := range []Scheme{SchemeBFV, SchemeBGV} {
			t.Run(b.String()+"/"+scheme.String(), func(t *testing.T) {
				c := keyedContext(t, b, scheme, 4096, 0, 65537, nil)
				require.NoError(t, c.GenerateRelinKeys())

				x := encryptHex(t, c, "1x^1 + 1")
				fresh, err := c.NoiseBudget(x)
				require.NoError(t, err)
				assert.Positive(t, fresh)

				sq, err := c.Multiply(x, x)
				require.NoError(t, err)
				sq, err = c.Relinearize(sq)
				require.NoError(t, err)
				after, err := c.NoiseBudget(sq)
				require.NoError(t, err)
				assert.Positive(t, after)
				assert.Less(t, after, fresh)
				assert.Equal(t, "1x^2 + 2x^1 + 1", decryptHex(t, c, sq))

				_, err = c.NoiseBudget(nil)
				require.ErrorIs(t, err, ErrInvalidArgument)
			})
		}
	}

	ckks := keyedContext(t, BackendLattigo, SchemeCKKS, 8192, 40, 0, []int{60, 40, 40, 60})
	pt, err := ckks.EncodeDoubleValue(1.5)
	require.NoError(t, err)
	ct, err := ckks.Encrypt(pt)
	require.NoError(t, err)
	_, err = ckks.NoiseBudget(ct)
	require.ErrorIs(t, err, ErrInvalidArgument)
}
