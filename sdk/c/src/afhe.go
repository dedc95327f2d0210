// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025, Lux Industries Inc
//
// CGO exports for the afhe C API.
//
// Every call takes a session id from afhe_session_new. Object-returning calls
// return 0 on failure, int-returning calls return -1, and string or buffer
// calls return NULL; afhe_last_error then describes the failure. Returned
// strings and buffers are malloc'd copies owned by the caller and released
// with afhe_string_free and afhe_bytes_free. Handles are released with
// afhe_free.

package main

/*
#include <stdlib.h>
#include <stdint.h>
#include <stdbool.h>
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/luxfi/afhe"
	"github.com/luxfi/afhe/ffi"
)

// =============================================================================
// Session Management
// =============================================================================

type sessionTable struct {
	mu       sync.RWMutex
	sessions map[uint64]*ffi.Session
	nextID   uint64
}

var sessions = &sessionTable{sessions: make(map[uint64]*ffi.Session)}

func (t *sessionTable) put(s *ffi.Session) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	t.sessions[t.nextID] = s
	return t.nextID
}

func (t *sessionTable) get(id C.uint64_t) *ffi.Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessions[uint64(id)]
}

func (t *sessionTable) delete(id C.uint64_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[uint64(id)]; ok {
		s.Close()
		delete(t.sessions, uint64(id))
	}
}

//export afhe_session_new
func afhe_session_new() C.uint64_t {
	return C.uint64_t(sessions.put(ffi.NewSession()))
}

//export afhe_session_free
func afhe_session_free(s C.uint64_t) {
	sessions.delete(s)
}

//export afhe_free
func afhe_free(s C.uint64_t, h C.uint64_t) C.int {
	sess := sessions.get(s)
	if sess == nil {
		return -1
	}
	return C.int(sess.Free(ffi.Handle(h)))
}

// =============================================================================
// Errors and Version
// =============================================================================

//export afhe_last_error
func afhe_last_error(s C.uint64_t) *C.char {
	sess := sessions.get(s)
	if sess == nil {
		return C.CString("unknown session")
	}
	if msg := sess.LastError(); msg != "" {
		return C.CString(msg)
	}
	return nil
}

//export afhe_last_code
func afhe_last_code(s C.uint64_t) C.int {
	sess := sessions.get(s)
	if sess == nil {
		return C.int(ffi.CodeInvalidArgument)
	}
	return C.int(sess.LastCode())
}

//export afhe_clear_error
func afhe_clear_error(s C.uint64_t) {
	if sess := sessions.get(s); sess != nil {
		sess.ClearError()
	}
}

//export afhe_version_info
func afhe_version_info(major *C.int, minor *C.int) {
	if major != nil {
		*major = C.int(afhe.VersionMajor)
	}
	if minor != nil {
		*minor = C.int(afhe.VersionMinor)
	}
}

//export afhe_string_free
func afhe_string_free(str *C.char) {
	if str != nil {
		C.free(unsafe.Pointer(str))
	}
}

//export afhe_bytes_free
func afhe_bytes_free(data unsafe.Pointer) {
	if data != nil {
		C.free(data)
	}
}

// =============================================================================
// Conversions
// =============================================================================

func goString(str *C.char) string {
	if str == nil {
		return ""
	}
	return C.GoString(str)
}

func goBytes(data *C.uint8_t, size C.size_t) []byte {
	if data == nil || size == 0 {
		return nil
	}
	return C.GoBytes(unsafe.Pointer(data), C.int(size))
}

func cString(sess *ffi.Session, str string) *C.char {
	if str == "" && sess.LastError() != "" {
		return nil
	}
	return C.CString(str)
}

func cBytes(b []byte, size *C.size_t) *C.uint8_t {
	if b == nil {
		return nil
	}
	if size != nil {
		*size = C.size_t(len(b))
	}
	return (*C.uint8_t)(C.CBytes(b))
}

func cArray[T any](values []T, count *C.size_t) unsafe.Pointer {
	if values == nil {
		return nil
	}
	if count != nil {
		*count = C.size_t(len(values))
	}
	var zero T
	n := len(values) * int(unsafe.Sizeof(zero))
	if n == 0 {
		return C.malloc(1)
	}
	p := C.malloc(C.size_t(n))
	copy(unsafe.Slice((*T)(p), len(values)), values)
	return p
}

func goArray[T, E any](data *E, count C.size_t) []T {
	if data == nil || count == 0 {
		return nil
	}
	return append([]T(nil), unsafe.Slice((*T)(unsafe.Pointer(data)), int(count))...)
}

// =============================================================================
// Selectors
// =============================================================================

//export afhe_backend_from_string
func afhe_backend_from_string(s C.uint64_t, name *C.char) C.int {
	if sess := sessions.get(s); sess != nil {
		return C.int(sess.BackendFromString(goString(name)))
	}
	return 0
}

//export afhe_scheme_from_string
func afhe_scheme_from_string(s C.uint64_t, name *C.char) C.int {
	if sess := sessions.get(s); sess != nil {
		return C.int(sess.SchemeFromString(goString(name)))
	}
	return 0
}

//export afhe_key_type_from_string
func afhe_key_type_from_string(s C.uint64_t, name *C.char) C.int {
	if sess := sessions.get(s); sess != nil {
		return C.int(sess.KeyTypeFromString(goString(name)))
	}
	return 0
}

//export afhe_compression_from_string
func afhe_compression_from_string(s C.uint64_t, name *C.char) C.int {
	if sess := sessions.get(s); sess != nil {
		return C.int(sess.CompressionFromString(goString(name)))
	}
	return 0
}

// =============================================================================
// Context
// =============================================================================

//export afhe_init_backend
func afhe_init_backend(s C.uint64_t, backend C.int) C.uint64_t {
	if sess := sessions.get(s); sess != nil {
		return C.uint64_t(sess.InitBackend(int(backend)))
	}
	return 0
}

//export afhe_generate_context
func afhe_generate_context(s C.uint64_t, ctx C.uint64_t, scheme C.int, polyDegree C.uint64_t,
	plainBits C.uint64_t, plainModulus C.uint64_t, secLevel C.uint64_t,
	coeffBitSizes *C.uint64_t, coeffCount C.size_t) *C.char {
	sess := sessions.get(s)
	if sess == nil {
		return nil
	}
	var sizes []int
	for _, v := range goArray[uint64](coeffBitSizes, coeffCount) {
		sizes = append(sizes, int(v))
	}
	status := sess.GenerateContext(ffi.Handle(ctx), int(scheme), int(polyDegree), int(plainBits),
		uint64(plainModulus), int(secLevel), sizes)
	return cString(sess, status)
}

//export afhe_generate_context_from_blob
func afhe_generate_context_from_blob(s C.uint64_t, ctx C.uint64_t, data *C.uint8_t, size C.size_t, ignoreBatchingErrors C.bool) *C.char {
	sess := sessions.get(s)
	if sess == nil {
		return nil
	}
	status := sess.GenerateContextFromBlob(ffi.Handle(ctx), goBytes(data, size), bool(ignoreBatchingErrors))
	return cString(sess, status)
}

//export afhe_disable_mod_switch
func afhe_disable_mod_switch(s C.uint64_t, ctx C.uint64_t) C.int {
	if sess := sessions.get(s); sess != nil {
		return C.int(sess.DisableModSwitch(ffi.Handle(ctx)))
	}
	return -1
}

//export afhe_save_parameters
func afhe_save_parameters(s C.uint64_t, ctx C.uint64_t, mode C.int, size *C.size_t) *C.uint8_t {
	if sess := sessions.get(s); sess != nil {
		return cBytes(sess.SaveParameters(ffi.Handle(ctx), int(mode)), size)
	}
	return nil
}

//export afhe_save_parameters_size
func afhe_save_parameters_size(s C.uint64_t, ctx C.uint64_t, mode C.int) C.int {
	if sess := sessions.get(s); sess != nil {
		return C.int(sess.SaveParametersSize(ffi.Handle(ctx), int(mode)))
	}
	return -1
}

//export afhe_slot_count
func afhe_slot_count(s C.uint64_t, ctx C.uint64_t) C.int {
	if sess := sessions.get(s); sess != nil {
		return C.int(sess.SlotCount(ffi.Handle(ctx)))
	}
	return -1
}

// =============================================================================
// Keys
// =============================================================================

//export afhe_generate_keys
func afhe_generate_keys(s C.uint64_t, ctx C.uint64_t) C.int {
	if sess := sessions.get(s); sess != nil {
		return C.int(sess.GenerateKeys(ffi.Handle(ctx)))
	}
	return -1
}

//export afhe_generate_keys_from_secret
func afhe_generate_keys_from_secret(s C.uint64_t, ctx C.uint64_t, sk C.uint64_t) C.int {
	if sess := sessions.get(s); sess != nil {
		return C.int(sess.GenerateKeysFromSecret(ffi.Handle(ctx), ffi.Handle(sk)))
	}
	return -1
}

//export afhe_generate_relin_keys
func afhe_generate_relin_keys(s C.uint64_t, ctx C.uint64_t) C.int {
	if sess := sessions.get(s); sess != nil {
		return C.int(sess.GenerateRelinKeys(ffi.Handle(ctx)))
	}
	return -1
}

//export afhe_generate_galois_keys
func afhe_generate_galois_keys(s C.uint64_t, ctx C.uint64_t) C.int {
	if sess := sessions.get(s); sess != nil {
		return C.int(sess.GenerateGaloisKeys(ffi.Handle(ctx)))
	}
	return -1
}

//export afhe_get_key
func afhe_get_key(s C.uint64_t, ctx C.uint64_t, keyType C.int) C.uint64_t {
	if sess := sessions.get(s); sess != nil {
		return C.uint64_t(sess.GetKey(ffi.Handle(ctx), int(keyType)))
	}
	return 0
}

//export afhe_set_evaluation_key
func afhe_set_evaluation_key(s C.uint64_t, ctx C.uint64_t, key C.uint64_t) C.int {
	if sess := sessions.get(s); sess != nil {
		return C.int(sess.SetEvaluationKey(ffi.Handle(ctx), ffi.Handle(key)))
	}
	return -1
}

//export afhe_load_key
func afhe_load_key(s C.uint64_t, ctx C.uint64_t, keyType C.int, data *C.uint8_t, size C.size_t) C.uint64_t {
	if sess := sessions.get(s); sess != nil {
		return C.uint64_t(sess.LoadKey(ffi.Handle(ctx), int(keyType), goBytes(data, size)))
	}
	return 0
}

// =============================================================================
// Plaintexts
// =============================================================================

//export afhe_plaintext_new
func afhe_plaintext_new(s C.uint64_t, ctx C.uint64_t, hexPoly *C.char) C.uint64_t {
	if sess := sessions.get(s); sess != nil {
		return C.uint64_t(sess.NewPlaintext(ffi.Handle(ctx), goString(hexPoly)))
	}
	return 0
}

//export afhe_plaintext_new_decimal
func afhe_plaintext_new_decimal(s C.uint64_t, ctx C.uint64_t, decPoly *C.char) C.uint64_t {
	if sess := sessions.get(s); sess != nil {
		return C.uint64_t(sess.NewPlaintextDecimal(ffi.Handle(ctx), goString(decPoly)))
	}
	return 0
}

//export afhe_plaintext_value
func afhe_plaintext_value(s C.uint64_t, pt C.uint64_t) *C.char {
	if sess := sessions.get(s); sess != nil {
		return cString(sess, sess.PlaintextValue(ffi.Handle(pt)))
	}
	return nil
}

//export afhe_plaintext_decimal
func afhe_plaintext_decimal(s C.uint64_t, pt C.uint64_t) *C.char {
	if sess := sessions.get(s); sess != nil {
		return cString(sess, sess.PlaintextDecimal(ffi.Handle(pt)))
	}
	return nil
}

//export afhe_load_plaintext
func afhe_load_plaintext(s C.uint64_t, ctx C.uint64_t, data *C.uint8_t, size C.size_t) C.uint64_t {
	if sess := sessions.get(s); sess != nil {
		return C.uint64_t(sess.LoadPlaintext(ffi.Handle(ctx), goBytes(data, size)))
	}
	return 0
}

//export afhe_encode_int
func afhe_encode_int(s C.uint64_t, ctx C.uint64_t, values *C.int64_t, count C.size_t) C.uint64_t {
	if sess := sessions.get(s); sess != nil {
		return C.uint64_t(sess.EncodeInt(ffi.Handle(ctx), goArray[int64](values, count)))
	}
	return 0
}

//export afhe_decode_int
func afhe_decode_int(s C.uint64_t, ctx C.uint64_t, pt C.uint64_t, count *C.size_t) *C.int64_t {
	if sess := sessions.get(s); sess != nil {
		return (*C.int64_t)(cArray(sess.DecodeInt(ffi.Handle(ctx), ffi.Handle(pt)), count))
	}
	return nil
}

//export afhe_encode_double
func afhe_encode_double(s C.uint64_t, ctx C.uint64_t, values *C.double, count C.size_t) C.uint64_t {
	if sess := sessions.get(s); sess != nil {
		return C.uint64_t(sess.EncodeDouble(ffi.Handle(ctx), goArray[float64](values, count)))
	}
	return 0
}

//export afhe_encode_double_value
func afhe_encode_double_value(s C.uint64_t, ctx C.uint64_t, value C.double) C.uint64_t {
	if sess := sessions.get(s); sess != nil {
		return C.uint64_t(sess.EncodeDoubleValue(ffi.Handle(ctx), float64(value)))
	}
	return 0
}

//export afhe_decode_double
func afhe_decode_double(s C.uint64_t, ctx C.uint64_t, pt C.uint64_t, count *C.size_t) *C.double {
	if sess := sessions.get(s); sess != nil {
		return (*C.double)(cArray(sess.DecodeDouble(ffi.Handle(ctx), ffi.Handle(pt)), count))
	}
	return nil
}

// =============================================================================
// Ciphertexts
// =============================================================================

//export afhe_encrypt
func afhe_encrypt(s C.uint64_t, ctx C.uint64_t, pt C.uint64_t) C.uint64_t {
	if sess := sessions.get(s); sess != nil {
		return C.uint64_t(sess.Encrypt(ffi.Handle(ctx), ffi.Handle(pt)))
	}
	return 0
}

//export afhe_decrypt
func afhe_decrypt(s C.uint64_t, ctx C.uint64_t, ct C.uint64_t) C.uint64_t {
	if sess := sessions.get(s); sess != nil {
		return C.uint64_t(sess.Decrypt(ffi.Handle(ctx), ffi.Handle(ct)))
	}
	return 0
}

//export afhe_ciphertext_size
func afhe_ciphertext_size(s C.uint64_t, ct C.uint64_t) C.int {
	if sess := sessions.get(s); sess != nil {
		return C.int(sess.CiphertextSize(ffi.Handle(ct)))
	}
	return -1
}

//export afhe_ciphertext_level
func afhe_ciphertext_level(s C.uint64_t, ct C.uint64_t) C.int {
	if sess := sessions.get(s); sess != nil {
		return C.int(sess.CiphertextLevel(ffi.Handle(ct)))
	}
	return -1
}

//export afhe_noise_budget
func afhe_noise_budget(s C.uint64_t, ctx C.uint64_t, ct C.uint64_t) C.int {
	if sess := sessions.get(s); sess != nil {
		return C.int(sess.NoiseBudget(ffi.Handle(ctx), ffi.Handle(ct)))
	}
	return -1
}

//export afhe_load_ciphertext
func afhe_load_ciphertext(s C.uint64_t, ctx C.uint64_t, data *C.uint8_t, size C.size_t) C.uint64_t {
	if sess := sessions.get(s); sess != nil {
		return C.uint64_t(sess.LoadCiphertext(ffi.Handle(ctx), goBytes(data, size)))
	}
	return 0
}

// afhe_save serializes a key, plaintext or ciphertext handle.
//
//export afhe_save
func afhe_save(s C.uint64_t, h C.uint64_t, mode C.int, size *C.size_t) *C.uint8_t {
	if sess := sessions.get(s); sess != nil {
		return cBytes(sess.Save(ffi.Handle(h), int(mode)), size)
	}
	return nil
}

//export afhe_save_size
func afhe_save_size(s C.uint64_t, h C.uint64_t, mode C.int) C.int {
	if sess := sessions.get(s); sess != nil {
		return C.int(sess.SaveSize(ffi.Handle(h), int(mode)))
	}
	return -1
}

// =============================================================================
// Evaluation
// =============================================================================

func binary(s, ctx, a, b C.uint64_t, op func(*ffi.Session, ffi.Handle, ffi.Handle, ffi.Handle) ffi.Handle) C.uint64_t {
	if sess := sessions.get(s); sess != nil {
		return C.uint64_t(op(sess, ffi.Handle(ctx), ffi.Handle(a), ffi.Handle(b)))
	}
	return 0
}

func unary(s, ctx, a C.uint64_t, op func(*ffi.Session, ffi.Handle, ffi.Handle) ffi.Handle) C.uint64_t {
	if sess := sessions.get(s); sess != nil {
		return C.uint64_t(op(sess, ffi.Handle(ctx), ffi.Handle(a)))
	}
	return 0
}

//export afhe_add
func afhe_add(s, ctx, a, b C.uint64_t) C.uint64_t {
	return binary(s, ctx, a, b, (*ffi.Session).Add)
}

//export afhe_add_plain
func afhe_add_plain(s, ctx, a, pt C.uint64_t) C.uint64_t {
	return binary(s, ctx, a, pt, (*ffi.Session).AddPlain)
}

//export afhe_subtract
func afhe_subtract(s, ctx, a, b C.uint64_t) C.uint64_t {
	return binary(s, ctx, a, b, (*ffi.Session).Subtract)
}

//export afhe_subtract_plain
func afhe_subtract_plain(s, ctx, a, pt C.uint64_t) C.uint64_t {
	return binary(s, ctx, a, pt, (*ffi.Session).SubtractPlain)
}

//export afhe_multiply
func afhe_multiply(s, ctx, a, b C.uint64_t) C.uint64_t {
	return binary(s, ctx, a, b, (*ffi.Session).Multiply)
}

//export afhe_multiply_plain
func afhe_multiply_plain(s, ctx, a, pt C.uint64_t) C.uint64_t {
	return binary(s, ctx, a, pt, (*ffi.Session).MultiplyPlain)
}

//export afhe_square
func afhe_square(s, ctx, a C.uint64_t) C.uint64_t {
	return unary(s, ctx, a, (*ffi.Session).Square)
}

//export afhe_negate
func afhe_negate(s, ctx, a C.uint64_t) C.uint64_t {
	return unary(s, ctx, a, (*ffi.Session).Negate)
}

//export afhe_relinearize
func afhe_relinearize(s, ctx, a C.uint64_t) C.uint64_t {
	return unary(s, ctx, a, (*ffi.Session).Relinearize)
}

//export afhe_mod_switch_to_next
func afhe_mod_switch_to_next(s, ctx, a C.uint64_t) C.uint64_t {
	return unary(s, ctx, a, (*ffi.Session).ModSwitchToNext)
}

//export afhe_rescale
func afhe_rescale(s, ctx, a C.uint64_t) C.uint64_t {
	return unary(s, ctx, a, (*ffi.Session).Rescale)
}

//export afhe_power
func afhe_power(s, ctx, a C.uint64_t, exponent C.uint64_t) C.uint64_t {
	if sess := sessions.get(s); sess != nil {
		return C.uint64_t(sess.Power(ffi.Handle(ctx), ffi.Handle(a), uint64(exponent)))
	}
	return 0
}

//export afhe_rotate
func afhe_rotate(s, ctx, a C.uint64_t, steps C.int) C.uint64_t {
	if sess := sessions.get(s); sess != nil {
		return C.uint64_t(sess.Rotate(ffi.Handle(ctx), ffi.Handle(a), int(steps)))
	}
	return 0
}

// Required for C shared library
func main() {}
