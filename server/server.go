// Package server exposes one afhe context over HTTP.
//
// The server owns the keys. Clients submit plaintext values or serialized
// ciphertexts, run homomorphic operations on stored ciphertexts by handle, and
// fetch or decrypt the results. Uploaded ciphertexts are checked against the
// server parameters and refused with 409 Conflict when they do not match.
package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/luxfi/afhe"
	"github.com/luxfi/afhe/internal/storage"
)

// maxUpload bounds request bodies.
const maxUpload = 64 << 20

// Config holds server configuration.
type Config struct {
	Backend     afhe.Backend
	Parameters  afhe.Parameters
	Compression afhe.CompressionMode
	// RelinKeys and GaloisKeys generate the evaluation keys multiply/power and
	// rotate need.
	RelinKeys  bool
	GaloisKeys bool
}

// Server is the afhe HTTP host.
type Server struct {
	cfg   Config
	store storage.Storage
	log   *zap.Logger

	registry *prometheus.Registry
	metrics  *Metrics

	// mu serializes access to fhe, which is not safe for concurrent use.
	mu  sync.Mutex
	fhe *afhe.Context
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// New generates the context and keys described by cfg.
func New(cfg Config, store storage.Storage, opts ...Option) (*Server, error) {
	s := &Server{cfg: cfg, store: store, log: zap.NewNop(), registry: prometheus.NewRegistry()}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = NewMetrics(s.registry)

	fhe, err := afhe.New(cfg.Backend, afhe.WithLogger(s.log))
	if err != nil {
		return nil, err
	}
	if status := fhe.GenerateParameters(cfg.Parameters); status != afhe.StatusValid {
		return nil, &afhe.Error{Kind: afhe.KindParameterValidationFailed, Msg: status}
	}
	if err := fhe.GenerateKeys(); err != nil {
		return nil, fmt.Errorf("generate keys: %w", err)
	}
	if cfg.RelinKeys {
		if err := fhe.GenerateRelinKeys(); err != nil {
			return nil, fmt.Errorf("generate relin keys: %w", err)
		}
	}
	if cfg.GaloisKeys {
		if err := fhe.GenerateGaloisKeys(); err != nil {
			return nil, fmt.Errorf("generate galois keys: %w", err)
		}
	}
	s.fhe = fhe

	s.log.Info("context ready",
		zap.Stringer("backend", cfg.Backend),
		zap.Stringer("scheme", fhe.Scheme()),
		zap.Int("poly_degree", fhe.PolyDegree()),
		zap.Stringer("param_id", fhe.ParameterID(fhe.MaxLevel())),
	)
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /parameters", s.handleParameters)

	mux.HandleFunc("POST /encrypt", s.handleEncrypt)
	mux.HandleFunc("POST /evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /decrypt", s.handleDecrypt)

	mux.HandleFunc("GET /ciphertexts/{handle}", s.handleGetCiphertext)
	mux.HandleFunc("POST /ciphertexts", s.handlePutCiphertext)

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusFor maps an error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidHandle), errors.Is(err, storage.ErrInvalidBlob):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrStorageFull):
		return http.StatusInsufficientStorage
	}
	switch afhe.KindOf(err) {
	case afhe.KindParameterMismatch:
		return http.StatusConflict
	case afhe.KindInvalidArgument, afhe.KindUnsupportedScheme, afhe.KindUnsupportedKeyType,
		afhe.KindUnsupportedCompressionMode:
		return http.StatusBadRequest
	case afhe.KindKeyNotGenerated, afhe.KindContextNotInitialized:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	code := statusFor(err)
	kind := ""
	var e *afhe.Error
	if errors.As(err, &e) {
		kind = e.Kind.String()
	}
	s.metrics.failures.WithLabelValues(op, kind).Inc()
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("op", op), zap.Error(err))
	} else {
		s.log.Debug("request rejected", zap.String("op", op), zap.Error(err))
	}
	writeJSON(w, code, errorResponse{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpload)).Decode(v); err != nil {
		return &afhe.Error{Kind: afhe.KindInvalidArgument, Msg: "decode request", Err: err}
	}
	return nil
}

// observe counts op and records its latency.
func (s *Server) observe(op string) func() {
	start := time.Now()
	s.metrics.requests.WithLabelValues(op).Inc()
	return func() {
		s.metrics.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// HealthResponse describes the served context.
type HealthResponse struct {
	Status      string `json:"status"`
	Backend     string `json:"backend"`
	Scheme      string `json:"scheme"`
	PolyDegree  int    `json:"poly_degree"`
	SlotCount   int    `json:"slot_count"`
	MaxLevel    int    `json:"max_level"`
	ParameterID string `json:"param_id"`
	RelinKeys   bool   `json:"relin_keys"`
	GaloisKeys  bool   `json:"galois_keys"`
}

func paramID(c *afhe.Context) string {
	id := c.ParameterID(c.MaxLevel())
	return hex.EncodeToString(id[:])
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := HealthResponse{
		Status:      s.fhe.Status(),
		Backend:     s.fhe.Backend().String(),
		Scheme:      s.fhe.Scheme().String(),
		PolyDegree:  s.fhe.PolyDegree(),
		SlotCount:   s.fhe.SlotCount(),
		MaxLevel:    s.fhe.MaxLevel(),
		ParameterID: paramID(s.fhe),
		RelinKeys:   s.fhe.RelinKeys() != nil,
		GaloisKeys:  s.fhe.GaloisKeys() != nil,
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

// handleParameters returns the serialized parameters. The context status is
// sent in the X-Afhe-Status header.
func (s *Server) handleParameters(w http.ResponseWriter, r *http.Request) {
	defer s.observe("parameters")()

	mode := s.cfg.Compression
	if name := r.URL.Query().Get("compression"); name != "" {
		var err error
		if mode, err = afhe.ParseCompressionMode(name); err != nil {
			s.fail(w, "parameters", err)
			return
		}
	}

	s.mu.Lock()
	blob, err := s.fhe.SaveParameters(mode)
	status := s.fhe.Status()
	s.mu.Unlock()
	if err != nil {
		s.fail(w, "parameters", err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Afhe-Status", status)
	_, _ = w.Write(blob)
}

// EncryptRequest carries the value to encrypt. Value is a polynomial in Base
// 16 (the default) or 10; Ints and Reals fill the slots of batched bfv/bgv
// and ckks contexts.
type EncryptRequest struct {
	Value string    `json:"value,omitempty"`
	Base  int       `json:"base,omitempty"`
	Ints  []int64   `json:"ints,omitempty"`
	Reals []float64 `json:"reals,omitempty"`
}

// HandleResponse names a stored ciphertext.
type HandleResponse struct {
	Handle storage.Handle `json:"handle"`
	Size   int            `json:"size"`
	Level  int            `json:"level"`
}

func (s *Server) encode(req *EncryptRequest) (*afhe.Plaintext, error) {
	switch {
	case req.Ints != nil:
		return s.fhe.EncodeInt(req.Ints)
	case req.Reals != nil:
		return s.fhe.EncodeDouble(req.Reals)
	case req.Base == 10:
		return s.fhe.NewPlaintextDecimal(req.Value)
	case req.Base == 0 || req.Base == 16:
		return s.fhe.NewPlaintext(req.Value)
	default:
		return nil, &afhe.Error{Kind: afhe.KindInvalidArgument, Msg: fmt.Sprintf("unsupported base %d", req.Base)}
	}
}

func (s *Server) handleEncrypt(w http.ResponseWriter, r *http.Request) {
	defer s.observe("encrypt")()

	var req EncryptRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, "encrypt", err)
		return
	}

	s.mu.Lock()
	resp, err := s.encrypt(r, &req)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, "encrypt", err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) encrypt(r *http.Request, req *EncryptRequest) (*HandleResponse, error) {
	pt, err := s.encode(req)
	if err != nil {
		return nil, err
	}
	ct, err := s.fhe.Encrypt(pt)
	if err != nil {
		return nil, err
	}
	return s.put(r, ct)
}

// put stores ct and describes it.
func (s *Server) put(r *http.Request, ct *afhe.Ciphertext) (*HandleResponse, error) {
	blob, err := afhe.Save(ct, s.cfg.Compression)
	if err != nil {
		return nil, err
	}
	h, err := s.store.Store(r.Context(), blob)
	if err != nil {
		return nil, err
	}
	s.metrics.storedSize.Observe(float64(len(blob)))
	return &HandleResponse{Handle: h, Size: ct.Size(), Level: ct.Level()}, nil
}

// get loads the ciphertext stored under handle.
func (s *Server) get(r *http.Request, handle string) (*afhe.Ciphertext, error) {
	h, err := storage.ParseHandle(handle)
	if err != nil {
		return nil, err
	}
	blob, err := s.store.Load(r.Context(), h)
	if err != nil {
		return nil, err
	}
	return s.fhe.LoadCiphertext(blob)
}

// EvaluateRequest names an operation over stored ciphertexts. Rhs is a
// ciphertext handle for binary operations; Plain makes it a hexadecimal
// plaintext polynomial instead.
type EvaluateRequest struct {
	Op       string `json:"op"`
	Lhs      string `json:"lhs"`
	Rhs      string `json:"rhs,omitempty"`
	Plain    bool   `json:"plain,omitempty"`
	Exponent uint64 `json:"exponent,omitempty"`
	Steps    int    `json:"steps,omitempty"`
}

type (
	binaryFunc func(*afhe.Context, *afhe.Ciphertext, *afhe.Ciphertext) (*afhe.Ciphertext, error)
	plainFunc  func(*afhe.Context, *afhe.Ciphertext, *afhe.Plaintext) (*afhe.Ciphertext, error)
	unaryFunc  func(*afhe.Context, *afhe.Ciphertext) (*afhe.Ciphertext, error)
)

var (
	binaryOps = map[string]binaryFunc{
		"add": (*afhe.Context).Add,
		"sub": (*afhe.Context).Subtract,
		"mul": (*afhe.Context).Multiply,
	}
	plainOps = map[string]plainFunc{
		"add": (*afhe.Context).AddPlain,
		"sub": (*afhe.Context).SubtractPlain,
		"mul": (*afhe.Context).MultiplyPlain,
	}
	unaryOps = map[string]unaryFunc{
		"square":      (*afhe.Context).Square,
		"negate":      (*afhe.Context).Negate,
		"relinearize": (*afhe.Context).Relinearize,
		"modswitch":   (*afhe.Context).ModSwitchToNext,
		"rescale":     (*afhe.Context).Rescale,
	}
)

func (s *Server) evaluate(r *http.Request, req *EvaluateRequest) (*afhe.Ciphertext, error) {
	lhs, err := s.get(r, req.Lhs)
	if err != nil {
		return nil, err
	}
	switch req.Op {
	case "power":
		return s.fhe.Power(lhs, req.Exponent)
	case "rotate":
		return s.fhe.Rotate(lhs, req.Steps)
	}
	if op, ok := unaryOps[req.Op]; ok {
		return op(s.fhe, lhs)
	}
	if op, ok := plainOps[req.Op]; ok && req.Plain {
		pt, err := s.fhe.NewPlaintext(req.Rhs)
		if err != nil {
			return nil, err
		}
		return op(s.fhe, lhs, pt)
	}
	if op, ok := binaryOps[req.Op]; ok && !req.Plain {
		rhs, err := s.get(r, req.Rhs)
		if err != nil {
			return nil, err
		}
		return op(s.fhe, lhs, rhs)
	}
	return nil, &afhe.Error{Kind: afhe.KindInvalidArgument, Msg: "unsupported operation: " + req.Op}
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	defer s.observe("evaluate")()

	var req EvaluateRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, "evaluate", err)
		return
	}

	s.mu.Lock()
	var resp *HandleResponse
	ct, err := s.evaluate(r, &req)
	if err == nil {
		resp, err = s.put(r, ct)
	}
	s.mu.Unlock()
	if err != nil {
		s.fail(w, "evaluate/"+req.Op, err)
		return
	}
	s.log.Debug("evaluated", zap.String("op", req.Op), zap.String("handle", string(resp.Handle)))
	writeJSON(w, http.StatusCreated, resp)
}

// DecryptRequest selects how the plaintext is decoded: "poly" (the default),
// "int" or "real". Expect, for "real", reports the precision against known
// values.
type DecryptRequest struct {
	Handle   string    `json:"handle"`
	Encoding string    `json:"encoding,omitempty"`
	Expect   []float64 `json:"expect,omitempty"`
}

// DecryptResponse holds the decoded plaintext.
type DecryptResponse struct {
	Hex       string               `json:"hex,omitempty"`
	Decimal   string               `json:"decimal,omitempty"`
	Ints      []int64              `json:"ints,omitempty"`
	Reals     []float64            `json:"reals,omitempty"`
	Precision *afhe.PrecisionStats `json:"precision,omitempty"`
}

func (s *Server) decrypt(r *http.Request, req *DecryptRequest) (*DecryptResponse, error) {
	ct, err := s.get(r, req.Handle)
	if err != nil {
		return nil, err
	}
	pt, err := s.fhe.Decrypt(ct)
	if err != nil {
		return nil, err
	}

	var resp DecryptResponse
	switch req.Encoding {
	case "", "poly":
		if resp.Hex, err = pt.Hex(); err == nil {
			resp.Decimal, err = pt.DecimalString()
		}
	case "int":
		resp.Ints, err = s.fhe.DecodeInt(pt)
	case "real":
		resp.Reals, err = s.fhe.DecodeDouble(pt)
		if err == nil && len(req.Expect) > 0 {
			var ps afhe.PrecisionStats
			ps, err = afhe.MeasurePrecision(req.Expect, resp.Reals)
			resp.Precision = &ps
		}
	default:
		err = &afhe.Error{Kind: afhe.KindInvalidArgument, Msg: "unsupported encoding: " + req.Encoding}
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *Server) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	defer s.observe("decrypt")()

	var req DecryptRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, "decrypt", err)
		return
	}

	s.mu.Lock()
	resp, err := s.decrypt(r, &req)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, "decrypt", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetCiphertext(w http.ResponseWriter, r *http.Request) {
	defer s.observe("download")()

	h, err := storage.ParseHandle(r.PathValue("handle"))
	if err != nil {
		s.fail(w, "download", err)
		return
	}
	blob, err := s.store.Load(r.Context(), h)
	if err != nil {
		s.fail(w, "download", err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(blob)
}

// handlePutCiphertext accepts a serialized ciphertext. It is loaded under the
// server context first, so ciphertexts from other parameters never reach
// storage.
func (s *Server) handlePutCiphertext(w http.ResponseWriter, r *http.Request) {
	defer s.observe("upload")()

	blob, err := io.ReadAll(io.LimitReader(r.Body, maxUpload))
	if err != nil {
		s.fail(w, "upload", &afhe.Error{Kind: afhe.KindInvalidArgument, Msg: "read body", Err: err})
		return
	}

	s.mu.Lock()
	ct, err := s.fhe.LoadCiphertext(blob)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, "upload", err)
		return
	}

	h, err := s.store.Store(r.Context(), blob)
	if err != nil {
		s.fail(w, "upload", err)
		return
	}
	s.metrics.storedSize.Observe(float64(len(blob)))
	writeJSON(w, http.StatusCreated, HandleResponse{Handle: h, Size: ct.Size(), Level: ct.Level()})
}
