// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package exchange

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/luxfi/afhe"
)

var testParams = afhe.Parameters{
	Scheme:        afhe.SchemeBFV,
	PolyDegree:    1024,
	PlainModulus:  12289,
	SecurityLevel: 128,
}

func newFHE(t *testing.T, b afhe.Backend) *afhe.Context {
	t.Helper()
	c, err := afhe.New(b)
	require.NoError(t, err)
	return c
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func pair(t *testing.T, hb, gb afhe.Backend) (*Host, *Guest) {
	t.Helper()
	a, b := NewPipe()
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })
	log := zaptest.NewLogger(t)
	return NewHost(newFHE(t, hb), a, WithLogger(log)), NewGuest(newFHE(t, gb), b, WithLogger(log))
}

func decryptHex(t *testing.T, c *afhe.Context, ct *afhe.Ciphertext) string {
	t.Helper()
	pt, err := c.Decrypt(ct)
	require.NoError(t, err)
	return pt.String()
}

func TestSharedSecretFlow(t *testing.T) {
	ctx := testCtx(t)
	host, guest := pair(t, afhe.BackendLux, afhe.BackendLux)

	require.NoError(t, host.ShareContext(ctx, testParams))
	require.NoError(t, guest.Join(ctx))
	assert.Equal(t, StateContextReady, host.State())
	assert.Equal(t, StateContextReady, guest.State())
	assert.Equal(t, host.Context().ParameterID(0), guest.Context().ParameterID(0))

	require.NoError(t, host.GenerateKeys())
	require.NoError(t, host.ShareSecretKey(ctx))
	require.NoError(t, guest.ImportSecretKey(ctx))

	pt, err := host.Context().NewPlaintext("100")
	require.NoError(t, err)
	require.NoError(t, host.SendPlaintext(ctx, pt))
	ct, err := guest.ReceiveCiphertext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "100", decryptHex(t, guest.Context(), ct))

	// Guest computes on its side and returns the result.
	one, err := guest.Context().NewPlaintext("17")
	require.NoError(t, err)
	sum, err := guest.Context().AddPlain(ct, one)
	require.NoError(t, err)
	require.NoError(t, guest.SendCiphertext(ctx, sum))

	back, err := host.ReceiveCiphertext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "117", decryptHex(t, host.Context(), back))
	assert.Equal(t, StateCryptoLive, host.State())
	assert.Equal(t, StateCryptoLive, guest.State())
}

func TestGuestOwnKeysFlow(t *testing.T) {
	ctx := testCtx(t)
	host, guest := pair(t, afhe.BackendLattigo, afhe.BackendLattigo)

	require.NoError(t, host.ShareContext(ctx, testParams))
	require.NoError(t, guest.Join(ctx))
	require.NoError(t, guest.GenerateOwnKeys())
	require.NoError(t, guest.SharePublicKey(ctx))
	require.NoError(t, host.ReceivePublicKey(ctx))
	assert.Equal(t, StateKeysReady, host.State())
	assert.Nil(t, host.Context().SecretKey())

	pt, err := host.Context().NewPlaintext("2A")
	require.NoError(t, err)
	require.NoError(t, host.SendPlaintext(ctx, pt))

	ct, err := guest.ReceiveCiphertext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2A", decryptHex(t, guest.Context(), ct))
}

func TestReceivePublicKeyKeepsHostPair(t *testing.T) {
	ctx := testCtx(t)
	host, guest := pair(t, afhe.BackendLux, afhe.BackendLux)

	require.NoError(t, host.ShareContext(ctx, testParams))
	require.NoError(t, guest.Join(ctx))
	require.NoError(t, host.GenerateKeys())
	require.NoError(t, guest.GenerateOwnKeys())
	require.NoError(t, guest.SharePublicKey(ctx))

	err := host.ReceivePublicKey(ctx)
	require.ErrorIs(t, err, ErrState)
	assert.Equal(t, StateKeysReady, host.State())

	// The host still decrypts what it encrypts.
	pt, err := host.Context().NewPlaintext("2A")
	require.NoError(t, err)
	ct, err := host.Context().Encrypt(pt)
	require.NoError(t, err)
	assert.Equal(t, "2A", decryptHex(t, host.Context(), ct))
}

// tamper rewrites outgoing parameter messages.
type tamper struct {
	Transport
	edit func(*Message)
}

func (t tamper) Send(ctx context.Context, m *Message) error {
	if m.Kind == KindParameters {
		cp := *m
		t.edit(&cp)
		m = &cp
	}
	return t.Transport.Send(ctx, m)
}

func TestJoinMismatchAborts(t *testing.T) {
	cases := map[string]func(*Message){
		"status":       func(m *Message) { m.Status = "invalid_argument: non-standard poly_modulus_degree" },
		"parameter id": func(m *Message) { m.ParamID[0] ^= 0xFF },
	}
	for name, edit := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := testCtx(t)
			a, b := NewPipe()
			t.Cleanup(func() { _ = a.Close(); _ = b.Close() })
			host := NewHost(newFHE(t, afhe.BackendLux), tamper{Transport: a, edit: edit})
			guest := NewGuest(newFHE(t, afhe.BackendLux), b)

			require.NoError(t, host.ShareContext(ctx, testParams))
			err := guest.Join(ctx)
			require.ErrorIs(t, err, afhe.ErrParameterMismatch)
			assert.Equal(t, StateUninitialized, guest.State())

			require.NoError(t, host.GenerateKeys())
			_, err = host.ReceiveCiphertext(ctx)
			require.ErrorIs(t, err, afhe.ErrParameterMismatch)
			require.ErrorIs(t, err, ErrAborted)
		})
	}
}

func TestShareContextRejectsParameters(t *testing.T) {
	host, _ := pair(t, afhe.BackendLux, afhe.BackendLux)
	bad := testParams
	bad.PolyDegree = 1000

	err := host.ShareContext(testCtx(t), bad)
	require.ErrorIs(t, err, afhe.ErrParameterValidationFailed)
	assert.Contains(t, err.Error(), "non-standard poly_modulus_degree")
	assert.Equal(t, StateUninitialized, host.State())
}

func TestStepsOutOfOrder(t *testing.T) {
	ctx := testCtx(t)
	host, guest := pair(t, afhe.BackendLux, afhe.BackendLux)

	require.ErrorIs(t, host.GenerateKeys(), ErrState)
	require.ErrorIs(t, host.ShareSecretKey(ctx), ErrState)
	require.ErrorIs(t, guest.GenerateOwnKeys(), ErrState)
	_, err := guest.ReceiveCiphertext(ctx)
	require.ErrorIs(t, err, ErrState)

	require.NoError(t, host.ShareContext(ctx, testParams))
	require.ErrorIs(t, host.ShareContext(ctx, testParams), ErrState)

	host.Reset()
	assert.Equal(t, StateUninitialized, host.State())
}

func TestUnexpectedMessageKind(t *testing.T) {
	ctx := testCtx(t)
	host, guest := pair(t, afhe.BackendLux, afhe.BackendLux)
	require.NoError(t, host.ShareContext(ctx, testParams))
	require.NoError(t, guest.Join(ctx))
	require.NoError(t, host.GenerateKeys())
	require.NoError(t, host.ShareSecretKey(ctx))

	require.NoError(t, guest.GenerateOwnKeys())
	_, err := guest.ReceiveCiphertext(ctx)
	require.ErrorIs(t, err, afhe.ErrInvalidArgument)
}

func TestPipeClose(t *testing.T) {
	a, b := NewPipe()
	ctx := testCtx(t)
	require.NoError(t, a.Send(ctx, &Message{Kind: KindAbort}))
	require.NoError(t, a.Close())

	m, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, KindAbort, m.Kind)

	_, err = b.Receive(ctx)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, b.Send(ctx, &Message{}), ErrClosed)
}

func TestPipeReceiveHonoursContext(t *testing.T) {
	_, b := NewPipe()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := b.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisTransportFlow(t *testing.T) {
	addr := os.Getenv("AFHE_REDIS_ADDR")
	if addr == "" {
		t.Skip("AFHE_REDIS_ADDR not set")
	}
	ctx := testCtx(t)
	session := "test-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	ht, err := NewRedisTransport(RedisConfig{Addr: addr, TTL: time.Minute}, session, RoleHost)
	require.NoError(t, err)
	gt, err := NewRedisTransport(RedisConfig{Addr: addr, TTL: time.Minute}, session, RoleGuest)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ht.Purge(context.Background())
		_ = gt.Purge(context.Background())
		_ = ht.Close()
		_ = gt.Close()
	})

	host := NewHost(newFHE(t, afhe.BackendLux), ht)
	guest := NewGuest(newFHE(t, afhe.BackendLux), gt)
	require.NoError(t, host.ShareContext(ctx, testParams))
	require.NoError(t, guest.Join(ctx))
	require.NoError(t, host.GenerateKeys())
	require.NoError(t, host.ShareSecretKey(ctx))
	require.NoError(t, guest.ImportSecretKey(ctx))

	pt, err := host.Context().NewPlaintext("1x^1 + 5")
	require.NoError(t, err)
	require.NoError(t, host.SendPlaintext(ctx, pt))
	ct, err := guest.ReceiveCiphertext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1x^1 + 5", decryptHex(t, guest.Context(), ct))
}

func TestNewRedisTransportEmptySession(t *testing.T) {
	_, err := NewRedisTransport(RedisConfig{Addr: "127.0.0.1:1"}, "", RoleHost)
	require.Error(t, err)
}
