// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package afhe

import (
	"encoding/binary"

	"github.com/luxfi/afhe/backend"
)

// ========== Header ==========

// Magic opens every serialized artifact.
const Magic uint16 = 0xAF4E

// HeaderSize is the fixed length of Header on the wire.
const HeaderSize = 16

// Header precedes every payload. It can be read on its own to size-check a
// blob before the payload is parsed.
type Header struct {
	Magic        uint16
	HeaderSize   uint8
	VersionMajor uint8
	VersionMinor uint8
	Compression  CompressionMode
	Reserved     uint16
	// TotalSize counts the header and the payload.
	TotalSize uint64
}

func (h Header) put(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], h.Magic)
	b[2] = h.HeaderSize
	b[3] = h.VersionMajor
	b[4] = h.VersionMinor
	b[5] = byte(h.Compression)
	binary.LittleEndian.PutUint16(b[6:8], h.Reserved)
	binary.LittleEndian.PutUint64(b[8:16], h.TotalSize)
}

// ReadHeader decodes and checks the header at the start of b.
func ReadHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, newError(KindInvalidArgument, "blob of %d bytes is shorter than the header", len(b))
	}
	h := Header{
		Magic:        binary.LittleEndian.Uint16(b[0:2]),
		HeaderSize:   b[2],
		VersionMajor: b[3],
		VersionMinor: b[4],
		Compression:  CompressionMode(b[5]),
		Reserved:     binary.LittleEndian.Uint16(b[6:8]),
		TotalSize:    binary.LittleEndian.Uint64(b[8:16]),
	}
	switch {
	case h.Magic != Magic:
		return h, newError(KindInvalidArgument, "bad magic %#04x", h.Magic)
	case h.HeaderSize != HeaderSize:
		return h, newError(KindInvalidArgument, "bad header size %d", h.HeaderSize)
	case h.VersionMajor != VersionMajor:
		return h, newError(KindInvalidArgument, "unsupported format version %d.%d", h.VersionMajor, h.VersionMinor)
	case h.Reserved != 0:
		return h, newError(KindInvalidArgument, "reserved header field is %d", h.Reserved)
	case h.TotalSize < HeaderSize:
		return h, newError(KindInvalidArgument, "total size %d is shorter than the header", h.TotalSize)
	}
	if _, ok := compressionNames[h.Compression]; !ok {
		return h, newError(KindInvalidArgument, "unknown compression mode %d", h.Compression)
	}
	return h, nil
}

// ========== Envelope ==========

// rawSizeLen is the u64 uncompressed length that leads a compressed payload.
const rawSizeLen = 8

// envelopeSize is kind, parameter-id and level.
const envelopeSize = 1 + 32 + 4

type envelope struct {
	kind  backend.Kind
	id    ParameterID
	level int
	body  []byte
}

func (e envelope) marshal() []byte {
	b := make([]byte, envelopeSize+len(e.body))
	b[0] = byte(e.kind)
	copy(b[1:33], e.id[:])
	binary.LittleEndian.PutUint32(b[33:37], uint32(e.level))
	copy(b[envelopeSize:], e.body)
	return b
}

func parseEnvelope(b []byte) (envelope, error) {
	if len(b) < envelopeSize {
		return envelope{}, newError(KindInvalidArgument, "payload of %d bytes is shorter than the envelope", len(b))
	}
	var e envelope
	e.kind = backend.Kind(b[0])
	copy(e.id[:], b[1:33])
	e.level = int(binary.LittleEndian.Uint32(b[33:37]))
	e.body = b[envelopeSize:]
	return e, nil
}

// ========== Save ==========

// Saveable is anything Save accepts: Parameters, *Key, *Plaintext and
// *Ciphertext.
type Saveable interface {
	envelope() (envelope, error)
	bodySize() int
}

func (p Parameters) envelope() (envelope, error) {
	body, err := p.MarshalBinary()
	if err != nil {
		return envelope{}, err
	}
	return envelope{kind: backend.KindParameters, body: body}, nil
}

func (p Parameters) bodySize() int { return p.BinarySize() }

func objectEnvelope(obj backend.Object, id ParameterID) (envelope, error) {
	body, err := obj.MarshalBinary()
	if err != nil {
		return envelope{}, wrapError(KindGenericBackendFailure, err, "marshal %s", obj.Kind())
	}
	return envelope{kind: obj.Kind(), id: id, level: obj.Level(), body: body}, nil
}

func (k *Key) envelope() (envelope, error)        { return objectEnvelope(k.obj, k.id) }
func (k *Key) bodySize() int                      { return k.obj.BinarySize() }
func (p *Plaintext) envelope() (envelope, error)  { return objectEnvelope(p.obj, p.id) }
func (p *Plaintext) bodySize() int                { return p.obj.BinarySize() }
func (ct *Ciphertext) envelope() (envelope, error) { return objectEnvelope(ct.obj, ct.id) }
func (ct *Ciphertext) bodySize() int               { return ct.obj.BinarySize() }

// Save serializes obj behind a header, compressing the payload with mode.
func Save(obj Saveable, mode CompressionMode) ([]byte, error) {
	if obj == nil {
		return nil, newError(KindInvalidArgument, "nothing to save")
	}
	codec, err := compressorFor(mode)
	if err != nil {
		return nil, err
	}
	env, err := obj.envelope()
	if err != nil {
		return nil, err
	}
	payload := env.marshal()
	if codec != nil {
		if len(payload) > MaxPayloadSize {
			return nil, newError(KindInvalidArgument, "payload of %d bytes exceeds %d", len(payload), MaxPayloadSize)
		}
		packed, err := codec.compress(payload)
		if err != nil {
			return nil, wrapError(KindGenericBackendFailure, err, "compress with %s", mode)
		}
		framed := make([]byte, rawSizeLen+len(packed))
		binary.LittleEndian.PutUint64(framed, uint64(len(payload)))
		copy(framed[rawSizeLen:], packed)
		payload = framed
	}
	out := make([]byte, HeaderSize+len(payload))
	Header{
		Magic:        Magic,
		HeaderSize:   HeaderSize,
		VersionMajor: VersionMajor,
		VersionMinor: VersionMinor,
		Compression:  mode,
		TotalSize:    uint64(len(out)),
	}.put(out)
	copy(out[HeaderSize:], payload)
	return out, nil
}

// SaveSize returns the size Save would produce: exact without compression, an
// upper bound otherwise.
func SaveSize(obj Saveable, mode CompressionMode) (int, error) {
	if obj == nil {
		return 0, newError(KindInvalidArgument, "nothing to save")
	}
	codec, err := compressorFor(mode)
	if err != nil {
		return 0, err
	}
	n := envelopeSize + obj.bodySize()
	if codec != nil {
		n = rawSizeLen + codec.bound(n)
	}
	return HeaderSize + n, nil
}

// ========== Load ==========

func open(b []byte) (envelope, error) {
	h, err := ReadHeader(b)
	if err != nil {
		return envelope{}, err
	}
	if h.TotalSize != uint64(len(b)) {
		return envelope{}, newError(KindInvalidArgument, "blob is %d bytes, header declares %d", len(b), h.TotalSize)
	}
	codec, err := compressorFor(h.Compression)
	if err != nil {
		return envelope{}, err
	}
	payload := b[HeaderSize:]
	if codec != nil {
		if payload, err = inflate(codec, h, payload); err != nil {
			return envelope{}, err
		}
	}
	return parseEnvelope(payload)
}

// inflate reads the declared raw size ahead of a compressed stream and
// decompresses no more than that.
func inflate(codec *compressor, h Header, b []byte) ([]byte, error) {
	if h.VersionMinor < 1 {
		return nil, newError(KindInvalidArgument, "format version %d.%d has no raw size for %s payloads", h.VersionMajor, h.VersionMinor, h.Compression)
	}
	if len(b) < rawSizeLen {
		return nil, newError(KindInvalidArgument, "%s payload of %d bytes is missing its raw size", h.Compression, len(b))
	}
	size := binary.LittleEndian.Uint64(b[:rawSizeLen])
	if size > MaxPayloadSize {
		return nil, newError(KindInvalidArgument, "declared raw size %d exceeds %d", size, MaxPayloadSize)
	}
	out, err := codec.decompress(b[rawSizeLen:], int(size))
	if err != nil {
		return nil, wrapError(KindInvalidArgument, err, "decompress %s payload", h.Compression)
	}
	if uint64(len(out)) != size {
		return nil, newError(KindInvalidArgument, "%s payload inflated to %d bytes, header declares %d", h.Compression, len(out), size)
	}
	return out, nil
}

// LoadParameters reads a saved parameter set.
func LoadParameters(data []byte) (Parameters, error) {
	env, err := open(data)
	if err != nil {
		return Parameters{}, err
	}
	if env.kind != backend.KindParameters {
		return Parameters{}, newError(KindInvalidArgument, "blob holds %s, not parameters", env.kind)
	}
	var p Parameters
	if err := p.UnmarshalBinary(env.body); err != nil {
		return Parameters{}, wrapError(KindInvalidArgument, err, "read parameters")
	}
	return p, nil
}

func (c *Context) load(data []byte, want backend.Kind) (backend.Object, ParameterID, error) {
	if err := c.ready(); err != nil {
		return nil, ParameterID{}, err
	}
	env, err := open(data)
	if err != nil {
		return nil, ParameterID{}, err
	}
	if env.kind != want {
		return nil, ParameterID{}, newError(KindInvalidArgument, "blob holds %s, not %s", env.kind, want)
	}
	if err := c.checkID(env.id, env.level); err != nil {
		return nil, ParameterID{}, err
	}
	obj, err := c.bctx.Unmarshal(env.kind, env.body)
	if err != nil {
		return nil, ParameterID{}, wrapError(KindParameterMismatch, err, "load %s", want)
	}
	if obj.Level() != env.level {
		return nil, ParameterID{}, newError(KindParameterMismatch, "%s is at level %d, envelope says %d", want, obj.Level(), env.level)
	}
	return obj, env.id, nil
}

// LoadCiphertext reads a ciphertext saved under identical parameters.
func (c *Context) LoadCiphertext(data []byte) (*Ciphertext, error) {
	obj, id, err := c.load(data, backend.KindCiphertext)
	if err != nil {
		return nil, err
	}
	ct, ok := obj.(backend.Ciphertext)
	if !ok {
		return nil, newError(KindGenericBackendFailure, "backend returned %T for a ciphertext", obj)
	}
	return &Ciphertext{obj: ct, id: id}, nil
}

// LoadPlaintext reads a plaintext saved under identical parameters.
func (c *Context) LoadPlaintext(data []byte) (*Plaintext, error) {
	obj, id, err := c.load(data, backend.KindPlaintext)
	if err != nil {
		return nil, err
	}
	return &Plaintext{obj: obj, id: id, bctx: c.bctx}, nil
}

// LoadKey reads a key of type typ saved under identical parameters. The key
// is returned, not installed.
func (c *Context) LoadKey(typ KeyType, data []byte) (*Key, error) {
	kind := typ.kind()
	if kind == backend.KindNone {
		return nil, newError(KindUnsupportedKeyType, "Unsupported Key Type: %s", numbered(keyTypeNames, typ))
	}
	obj, id, err := c.load(data, kind)
	if err != nil {
		return nil, err
	}
	return &Key{typ: typ, obj: obj, id: id}, nil
}

// SaveParameters is Save applied to the context's resolved parameters.
func (c *Context) SaveParameters(mode CompressionMode) ([]byte, error) {
	p, err := c.Parameters()
	if err != nil {
		return nil, err
	}
	return Save(p, mode)
}
