// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

//go:build !afhe_nozstd

package afhe

import (
	"github.com/klauspost/compress/zstd"
)

func init() {
	// Nil writers and readers are safe for concurrent EncodeAll/DecodeAll.
	// With the cap limit, DecodeAll never grows dst past its capacity.
	enc, _ := zstd.NewWriter(nil)
	dec, _ := zstd.NewReader(nil,
		zstd.WithDecodeAllCapLimit(true),
		zstd.WithDecoderMaxMemory(MaxPayloadSize),
	)
	register(CompressionZstd, &compressor{
		compress: func(b []byte) ([]byte, error) {
			return enc.EncodeAll(b, make([]byte, 0, len(b))), nil
		},
		decompress: func(b []byte, size int) ([]byte, error) {
			return dec.DecodeAll(b, make([]byte, 0, size))
		},
		bound: func(n int) int {
			const block = 128 << 10
			margin := 0
			if n < block {
				margin = (block - n) >> 11
			}
			return n + (n >> 8) + margin
		},
	})
}
