package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/luxfi/afhe"
	"github.com/luxfi/afhe/internal/storage"
)

func bfvConfig(degree int) Config {
	return Config{
		Backend: afhe.BackendLux,
		Parameters: afhe.Parameters{
			Scheme:        afhe.SchemeBFV,
			PolyDegree:    degree,
			PlainModulus:  12289,
			SecurityLevel: 128,
		},
		Compression: afhe.CompressionZstd,
	}
}

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	s, err := New(cfg, storage.NewMemoryStorage(64), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func encrypt(t *testing.T, ts *httptest.Server, value string) storage.Handle {
	t.Helper()
	resp := post(t, ts, "/encrypt", EncryptRequest{Value: value})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[HandleResponse](t, resp).Handle
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, bfvConfig(1024))
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	h := decodeBody[HealthResponse](t, resp)
	assert.Equal(t, afhe.StatusValid, h.Status)
	assert.Equal(t, "lux", h.Backend)
	assert.Equal(t, "bfv", h.Scheme)
	assert.Equal(t, 1024, h.PolyDegree)
	assert.Len(t, h.ParameterID, 64)
	assert.False(t, h.RelinKeys)
}

func TestEncryptEvaluateDecrypt(t *testing.T) {
	ts := newTestServer(t, bfvConfig(1024))
	a := encrypt(t, ts, "100")
	b := encrypt(t, ts, "17")

	resp := post(t, ts, "/evaluate", EvaluateRequest{Op: "add", Lhs: string(a), Rhs: string(b)})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sum := decodeBody[HandleResponse](t, resp)
	assert.Equal(t, 2, sum.Size)

	resp = post(t, ts, "/decrypt", DecryptRequest{Handle: string(sum.Handle)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody[DecryptResponse](t, resp)
	assert.Equal(t, "117", out.Hex)
	assert.Equal(t, "279", out.Decimal)

	resp = post(t, ts, "/evaluate", EvaluateRequest{Op: "sub", Lhs: string(sum.Handle), Rhs: "11", Plain: true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	diff := decodeBody[HandleResponse](t, resp)
	out = decodeBody[DecryptResponse](t, post(t, ts, "/decrypt", DecryptRequest{Handle: string(diff.Handle)}))
	assert.Equal(t, "106", out.Hex)
}

func TestEncryptDecimal(t *testing.T) {
	ts := newTestServer(t, bfvConfig(1024))
	resp := post(t, ts, "/encrypt", EncryptRequest{Value: "255", Base: 10})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	h := decodeBody[HandleResponse](t, resp).Handle

	out := decodeBody[DecryptResponse](t, post(t, ts, "/decrypt", DecryptRequest{Handle: string(h)}))
	assert.Equal(t, "FF", out.Hex)

	resp = post(t, ts, "/encrypt", EncryptRequest{Value: "1", Base: 8})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCiphertextRoundTrip(t *testing.T) {
	ts := newTestServer(t, bfvConfig(1024))
	h := encrypt(t, ts, "2A")

	resp, err := http.Get(ts.URL + "/ciphertexts/" + string(h))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	blob, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	up, err := http.Post(ts.URL+"/ciphertexts", "application/octet-stream", bytes.NewReader(blob))
	require.NoError(t, err)
	defer up.Body.Close()
	require.Equal(t, http.StatusCreated, up.StatusCode)
	assert.Equal(t, h, decodeBody[HandleResponse](t, up).Handle)
}

func TestUploadFromOtherParametersConflicts(t *testing.T) {
	ts := newTestServer(t, bfvConfig(1024))
	other := newTestServer(t, bfvConfig(2048))
	h := encrypt(t, other, "1")

	resp, err := http.Get(other.URL + "/ciphertexts/" + string(h))
	require.NoError(t, err)
	defer resp.Body.Close()
	blob, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	up, err := http.Post(ts.URL+"/ciphertexts", "application/octet-stream", bytes.NewReader(blob))
	require.NoError(t, err)
	defer up.Body.Close()
	assert.Equal(t, http.StatusConflict, up.StatusCode)
	assert.Equal(t, "parameter mismatch", decodeBody[errorResponse](t, up).Kind)
}

func TestParametersEndpoint(t *testing.T) {
	ts := newTestServer(t, bfvConfig(1024))
	resp, err := http.Get(ts.URL + "/parameters?compression=zlib")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, afhe.StatusValid, resp.Header.Get("X-Afhe-Status"))
	blob, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	hdr, err := afhe.ReadHeader(blob)
	require.NoError(t, err)
	assert.Equal(t, afhe.CompressionZlib, hdr.Compression)

	c, err := afhe.New(afhe.BackendLattigo)
	require.NoError(t, err)
	assert.Equal(t, afhe.StatusValid, c.GenerateFromBlob(blob, false))

	bad, err := http.Get(ts.URL + "/parameters?compression=lz4")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestMultiplyWithRelinearization(t *testing.T) {
	cfg := Config{
		Backend: afhe.BackendLattigo,
		Parameters: afhe.Parameters{
			Scheme:        afhe.SchemeBFV,
			PolyDegree:    4096,
			PlainModulus:  65537,
			SecurityLevel: 128,
			CoeffBitSizes: []int{36, 36, 37},
		},
		RelinKeys: true,
	}
	ts := newTestServer(t, cfg)
	a := encrypt(t, ts, "1x^1 + 1")

	sq := decodeBody[HandleResponse](t, post(t, ts, "/evaluate", EvaluateRequest{Op: "square", Lhs: string(a)}))
	assert.Equal(t, 3, sq.Size)
	rl := decodeBody[HandleResponse](t, post(t, ts, "/evaluate", EvaluateRequest{Op: "relinearize", Lhs: string(sq.Handle)}))
	assert.Equal(t, 2, rl.Size)

	out := decodeBody[DecryptResponse](t, post(t, ts, "/decrypt", DecryptRequest{Handle: string(rl.Handle)}))
	assert.Equal(t, "1x^2 + 2x^1 + 1", out.Hex)
}

func TestEvaluateErrors(t *testing.T) {
	ts := newTestServer(t, bfvConfig(1024))
	a := encrypt(t, ts, "1")
	missing := storage.ComputeHandle([]byte("missing"))

	cases := []struct {
		name string
		req  EvaluateRequest
		code int
	}{
		{"unknown op", EvaluateRequest{Op: "divide", Lhs: string(a), Rhs: string(a)}, http.StatusBadRequest},
		{"bad handle", EvaluateRequest{Op: "negate", Lhs: "nope"}, http.StatusBadRequest},
		{"missing handle", EvaluateRequest{Op: "negate", Lhs: string(missing)}, http.StatusNotFound},
		{"no relin keys", EvaluateRequest{Op: "relinearize", Lhs: string(a)}, http.StatusPreconditionFailed},
		{"rescale on bfv", EvaluateRequest{Op: "rescale", Lhs: string(a)}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := post(t, ts, "/evaluate", tc.req)
			assert.Equal(t, tc.code, resp.StatusCode)
			assert.NotEmpty(t, decodeBody[errorResponse](t, resp).Error)
		})
	}

	resp, err := http.Post(ts.URL+"/evaluate", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, bfvConfig(1024))
	encrypt(t, ts, "1")
	post(t, ts, "/evaluate", EvaluateRequest{Op: "divide"})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `afhe_operations_total{op="encrypt"} 1`)
	assert.Contains(t, string(body), "afhe_operation_failures_total")
	assert.Contains(t, string(body), "afhe_stored_ciphertext_bytes")
}

func TestNewRejectsParameters(t *testing.T) {
	cfg := bfvConfig(1000)
	_, err := New(cfg, storage.NewMemoryStorage(1))
	require.ErrorIs(t, err, afhe.ErrParameterValidationFailed)
}
