// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package afhe

import (
	"bytes"
	"fmt"
	"io"
)

// MaxPayloadSize caps the decompressed payload a blob may declare.
const MaxPayloadSize = 1 << 30

// compressor is one compiled-in compression mode. The zlib and zstd modes
// register themselves unless built with the afhe_nozlib or afhe_nozstd tags.
type compressor struct {
	compress func([]byte) ([]byte, error)
	// decompress fails once the output would exceed size bytes.
	decompress func(b []byte, size int) ([]byte, error)
	// bound is the largest compressed size of n input bytes.
	bound func(n int) int
}

var compressors = map[CompressionMode]*compressor{}

func register(mode CompressionMode, c *compressor) { compressors[mode] = c }

// compressorFor returns nil for CompressionNone.
func compressorFor(mode CompressionMode) (*compressor, error) {
	if mode == CompressionNone {
		return nil, nil
	}
	if c, ok := compressors[mode]; ok {
		return c, nil
	}
	return nil, newError(KindUnsupportedCompressionMode, "compression mode %s is not compiled in", mode)
}

// CompressionAvailable reports whether mode can be used in this build.
func CompressionAvailable(mode CompressionMode) bool {
	_, err := compressorFor(mode)
	return err == nil
}

// readLimited drains r, failing as soon as more than size bytes come out.
func readLimited(r io.Reader, size int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(size)
	n, err := buf.ReadFrom(io.LimitReader(r, int64(size)+1))
	if err != nil {
		return nil, err
	}
	if n > int64(size) {
		return nil, fmt.Errorf("decompressed payload exceeds the declared %d bytes", size)
	}
	return buf.Bytes(), nil
}
