// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package ffi

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/zlib"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/afhe"
)

func readyContext(t *testing.T, s *Session) Handle {
	t.Helper()
	ctx := s.InitBackend(int(afhe.BackendLux))
	require.NotEqual(t, InvalidHandle, ctx, s.LastError())
	status := s.GenerateContext(ctx, int(afhe.SchemeBFV), 1024, 0, 12289, 128, nil)
	require.Equal(t, afhe.StatusValid, status)
	require.Equal(t, CodeOK, s.GenerateKeys(ctx), s.LastError())
	return ctx
}

func TestUnsupportedBackendSentinels(t *testing.T) {
	s := NewSession()

	b := s.BackendFromString("seal")
	assert.Zero(t, b)
	assert.Equal(t, "Unsupported Backend: seal", s.LastError())
	assert.Equal(t, CodeUnsupportedBackend, s.LastCode())

	ctx := s.InitBackend(b)
	assert.Equal(t, InvalidHandle, ctx)
	assert.NotEmpty(t, s.LastError())

	assert.Equal(t, InvalidHandle, s.NewPlaintext(ctx, "1"))
	assert.Equal(t, InvalidHandle, s.Encrypt(ctx, 1))
	assert.Equal(t, InvalidHandle, s.GetKey(ctx, int(afhe.KeyPublic)))
	assert.Equal(t, InvalidHandle, s.LoadCiphertext(ctx, []byte{1, 2}))
	assert.Equal(t, InvalidHandle, s.Add(ctx, 1, 2))
	assert.Empty(t, s.GenerateContext(ctx, int(afhe.SchemeBFV), 1024, 0, 12289, 128, nil))
	assert.Nil(t, s.SaveParameters(ctx, 0))
	assert.Equal(t, -1, s.GenerateKeys(ctx))
	assert.Equal(t, -1, s.SlotCount(ctx))
	assert.Equal(t, CodeInvalidArgument, s.LastCode())
	assert.Zero(t, s.Live())

	s.ClearError()
	assert.Empty(t, s.LastError())
	assert.Equal(t, CodeOK, s.LastCode())
}

func TestOutOfRangeBackend(t *testing.T) {
	s := NewSession()
	assert.Equal(t, InvalidHandle, s.InitBackend(257))
	assert.Equal(t, CodeUnsupportedBackend, s.LastCode())
	assert.Equal(t, "Unsupported Backend: 257", s.LastError())
	assert.Equal(t, InvalidHandle, s.InitBackend(-1))
	assert.Equal(t, "Unsupported Backend: -1", s.LastError())
	assert.Equal(t, InvalidHandle, s.InitBackend(9))
	assert.Equal(t, "Unsupported Backend: 9", s.LastError())
}

func TestSelectors(t *testing.T) {
	s := NewSession()
	assert.Equal(t, int(afhe.BackendLattigo), s.BackendFromString("lattigo"))
	assert.Equal(t, int(afhe.SchemeBGV), s.SchemeFromString("bgv"))
	assert.Equal(t, int(afhe.KeyRelin), s.KeyTypeFromString("relin"))
	assert.Equal(t, int(afhe.CompressionZstd), s.CompressionFromString("zstd"))
	assert.Empty(t, s.LastError())

	assert.Zero(t, s.SchemeFromString(""))
	assert.Equal(t, "Unsupported Scheme: null", s.LastError())
	assert.Zero(t, s.KeyTypeFromString("bootstrap"))
	assert.Equal(t, CodeUnsupportedKeyType, s.LastCode())
}

func TestValidationStatusIsNotAnError(t *testing.T) {
	s := NewSession()
	ctx := s.InitBackend(int(afhe.BackendLattigo))
	status := s.GenerateContext(ctx, int(afhe.SchemeBFV), 1000, 0, 12289, 128, nil)
	assert.Contains(t, status, "invalid_argument")
	assert.Empty(t, s.LastError())

	assert.Equal(t, -1, s.SlotCount(ctx))
	assert.Equal(t, CodeContextNotInitialized, s.LastCode())
}

func TestAdditionScenario(t *testing.T) {
	s := NewSession()
	ctx := readyContext(t, s)

	a := s.Encrypt(ctx, s.NewPlaintext(ctx, "100"))
	b := s.Encrypt(ctx, s.NewPlaintext(ctx, "17"))
	require.NotEqual(t, InvalidHandle, a, s.LastError())
	require.NotEqual(t, InvalidHandle, b, s.LastError())

	sum := s.Add(ctx, a, b)
	require.NotEqual(t, InvalidHandle, sum, s.LastError())
	assert.Equal(t, 2, s.CiphertextSize(sum))

	pt := s.Decrypt(ctx, sum)
	assert.Equal(t, "117", s.PlaintextValue(pt))
	assert.Equal(t, "279", s.PlaintextDecimal(pt))
	assert.Empty(t, s.LastError())
}

func TestExportReload(t *testing.T) {
	s := NewSession()
	ctx := readyContext(t, s)
	ct := s.Encrypt(ctx, s.NewPlaintextDecimal(ctx, "42"))
	sk := s.GetKey(ctx, int(afhe.KeySecret))
	require.NotEqual(t, InvalidHandle, sk, s.LastError())
	assert.Equal(t, int(afhe.KeySecret), s.KeyType(sk))

	params := s.SaveParameters(ctx, int(afhe.CompressionZstd))
	require.NotNil(t, params, s.LastError())
	assert.LessOrEqual(t, len(params), s.SaveParametersSize(ctx, int(afhe.CompressionZstd)))
	blob := s.Save(ct, int(afhe.CompressionZlib))
	require.NotNil(t, blob, s.LastError())
	assert.LessOrEqual(t, len(blob), s.SaveSize(ct, int(afhe.CompressionZlib)))
	skBlob := s.Save(sk, int(afhe.CompressionNone))
	assert.Len(t, skBlob, s.SaveSize(sk, int(afhe.CompressionNone)))

	other := s.InitBackend(int(afhe.BackendLux))
	require.Equal(t, afhe.StatusValid, s.GenerateContextFromBlob(other, params, false))
	imported := s.LoadKey(other, int(afhe.KeySecret), skBlob)
	require.NotEqual(t, InvalidHandle, imported, s.LastError())
	require.Equal(t, CodeOK, s.GenerateKeysFromSecret(other, imported))

	loaded := s.LoadCiphertext(other, blob)
	require.NotEqual(t, InvalidHandle, loaded, s.LastError())
	assert.Equal(t, "42", s.PlaintextDecimal(s.Decrypt(other, loaded)))
}

func TestKeyErrors(t *testing.T) {
	s := NewSession()
	ctx := s.InitBackend(int(afhe.BackendLux))
	require.Equal(t, afhe.StatusValid, s.GenerateContext(ctx, int(afhe.SchemeBFV), 1024, 0, 12289, 128, nil))

	assert.Equal(t, -1, s.GenerateRelinKeys(ctx))
	assert.Equal(t, CodeKeyNotGenerated, s.LastCode())
	assert.Equal(t, "key generation must be called before relinearization key generation", s.LastError())

	assert.Equal(t, InvalidHandle, s.GetKey(ctx, int(afhe.KeyPublic)))
	assert.Equal(t, CodeKeyNotGenerated, s.LastCode())
	assert.Equal(t, InvalidHandle, s.GetKey(ctx, 9))
	assert.Equal(t, CodeUnsupportedKeyType, s.LastCode())
	assert.Equal(t, InvalidHandle, s.LoadKey(ctx, int(afhe.KeyNone), nil))
	assert.Equal(t, CodeUnsupportedKeyType, s.LastCode())
}

func TestHandleTypesAreChecked(t *testing.T) {
	s := NewSession()
	ctx := readyContext(t, s)
	pt := s.NewPlaintext(ctx, "5")

	assert.Equal(t, InvalidHandle, s.Decrypt(ctx, pt))
	assert.Contains(t, s.LastError(), "is not a live ciphertext")
	assert.Equal(t, InvalidHandle, s.Encrypt(pt, pt))
	assert.Contains(t, s.LastError(), "is not a live context")
	assert.Nil(t, s.Save(ctx, 0))
}

func TestFree(t *testing.T) {
	s := NewSession()
	ctx := readyContext(t, s)
	pt := s.NewPlaintext(ctx, "1")
	assert.Equal(t, 2, s.Live())

	assert.Equal(t, CodeOK, s.Free(pt))
	assert.Equal(t, -1, s.Free(pt))
	assert.Equal(t, CodeInvalidArgument, s.LastCode())
	assert.Equal(t, "", s.PlaintextValue(pt))

	s.Close()
	assert.Zero(t, s.Live())
}

func TestGuardRecoversPanics(t *testing.T) {
	s := NewSession()
	ok := s.guard("explode", func() error { panic("index out of range") })
	assert.False(t, ok)
	assert.Equal(t, CodePanic, s.LastCode())
	assert.Equal(t, "explode: index out of range", s.LastError())
}

func TestCode(t *testing.T) {
	assert.Equal(t, CodeOK, Code(nil))
	assert.Equal(t, CodeGenericBackendFailure, Code(assert.AnError))
	assert.Equal(t, CodeParameterMismatch, Code(&afhe.Error{Kind: afhe.KindParameterMismatch}))
	assert.Equal(t, CodeUnsupportedCompressionMode, Code(&afhe.Error{Kind: afhe.KindUnsupportedCompressionMode}))
}

func TestBatchedAndRealEncoding(t *testing.T) {
	s := NewSession()
	ctx := s.InitBackend(int(afhe.BackendLattigo))
	require.Equal(t, afhe.StatusValid, s.GenerateContext(ctx, int(afhe.SchemeBFV), 4096, 20, 0, 128, nil))
	require.Equal(t, CodeOK, s.GenerateKeys(ctx))
	assert.Equal(t, 4096, s.SlotCount(ctx))

	ct := s.Encrypt(ctx, s.EncodeInt(ctx, []int64{1, -2, 3}))
	twice := s.Add(ctx, ct, ct)
	got := s.DecodeInt(ctx, s.Decrypt(ctx, twice))
	require.NotNil(t, got, s.LastError())
	assert.Equal(t, []int64{2, -4, 6}, got[:3])

	ckks := s.InitBackend(int(afhe.BackendLattigo))
	require.Equal(t, afhe.StatusValid, s.GenerateContext(ckks, int(afhe.SchemeCKKS), 8192, 40, 0, 128, []int{60, 40, 40, 60}))
	require.Equal(t, CodeOK, s.GenerateKeys(ckks))
	x := s.Encrypt(ckks, s.EncodeDoubleValue(ckks, 1.5))
	vals := s.DecodeDouble(ckks, s.Decrypt(ckks, x))
	require.NotEmpty(t, vals, s.LastError())
	assert.InDelta(t, 1.5, vals[0], 1e-3)

	assert.Nil(t, s.DecodeInt(ckks, s.EncodeDouble(ckks, []float64{1})))
	assert.NotEmpty(t, s.LastError())
}

func TestReport(t *testing.T) {
	s := NewSession()
	s.Report(&afhe.Error{Kind: afhe.KindInvalidArgument, Msg: "encrypt: need 2 arguments, got 1"})
	assert.Equal(t, CodeInvalidArgument, s.LastCode())
	assert.Equal(t, "encrypt: need 2 arguments, got 1", s.LastError())
}

// inflating returns a zlib blob that declares a 64 byte payload and inflates
// to 16 MiB.
func inflating(t *testing.T) []byte {
	t.Helper()
	var stream bytes.Buffer
	w := zlib.NewWriter(&stream)
	_, err := w.Write(make([]byte, 16<<20))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	b := make([]byte, afhe.HeaderSize+8+stream.Len())
	binary.LittleEndian.PutUint16(b[0:2], afhe.Magic)
	b[2] = afhe.HeaderSize
	b[3] = afhe.VersionMajor
	b[4] = afhe.VersionMinor
	b[5] = byte(afhe.CompressionZlib)
	binary.LittleEndian.PutUint64(b[8:16], uint64(len(b)))
	binary.LittleEndian.PutUint64(b[16:24], 64)
	copy(b[24:], stream.Bytes())
	return b
}

func TestSentinelsLeaveAnError(t *testing.T) {
	s := NewSession()
	ctx := s.InitBackend(int(afhe.BackendLattigo))
	require.Equal(t, afhe.StatusValid, s.GenerateContext(ctx, int(afhe.SchemeBFV), 4096, 20, 0, 128, nil))
	require.Equal(t, CodeOK, s.GenerateKeys(ctx), s.LastError())
	slots := s.EncodeInt(ctx, []int64{1, 2, 3})
	require.NotEqual(t, InvalidHandle, slots, s.LastError())
	assert.Positive(t, s.NoiseBudget(ctx, s.Encrypt(ctx, slots)), s.LastError())
	bomb := inflating(t)

	calls := map[string]struct {
		failed func() bool
		code   int
	}{
		"plaintext value":   {func() bool { return s.PlaintextValue(slots) == "" }, CodeInvalidArgument},
		"plaintext decimal": {func() bool { return s.PlaintextDecimal(slots) == "" }, CodeInvalidArgument},
		"load ciphertext":   {func() bool { return s.LoadCiphertext(ctx, bomb) == InvalidHandle }, CodeInvalidArgument},
		"load plaintext":    {func() bool { return s.LoadPlaintext(ctx, bomb) == InvalidHandle }, CodeInvalidArgument},
		"save":              {func() bool { return s.Save(slots, 9) == nil }, CodeUnsupportedCompressionMode},
		"save size":         {func() bool { return s.SaveSize(slots, 9) == -1 }, CodeUnsupportedCompressionMode},
		"decode int":        {func() bool { return s.DecodeInt(ctx, InvalidHandle) == nil }, CodeInvalidArgument},
		"rescale":           {func() bool { return s.Rescale(ctx, s.Encrypt(ctx, slots)) == InvalidHandle }, CodeInvalidArgument},
		"noise budget":      {func() bool { return s.NoiseBudget(ctx, slots) == -1 }, CodeInvalidArgument},
		"get key":           {func() bool { return s.GetKey(ctx, 300) == InvalidHandle }, CodeUnsupportedKeyType},
		"load key":          {func() bool { return s.LoadKey(ctx, 9, nil) == InvalidHandle }, CodeUnsupportedKeyType},
	}
	for name, call := range calls {
		s.ClearError()
		assert.True(t, call.failed(), name)
		assert.NotEmpty(t, s.LastError(), name)
		assert.Equal(t, call.code, s.LastCode(), name)
	}

	s.GetKey(ctx, 300)
	assert.Equal(t, "Unsupported Key Type: 300", s.LastError())
	s.LoadKey(ctx, 9, nil)
	assert.Equal(t, "Unsupported Key Type: 9", s.LastError())
}
