// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

//go:build !afhe_nozlib

package afhe

import (
	"bytes"

	"github.com/klauspost/compress/zlib"
)

func init() {
	register(CompressionZlib, &compressor{
		compress: func(b []byte) ([]byte, error) {
			var buf bytes.Buffer
			w := zlib.NewWriter(&buf)
			if _, err := w.Write(b); err != nil {
				return nil, err
			}
			if err := w.Close(); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
		decompress: func(b []byte, size int) ([]byte, error) {
			r, err := zlib.NewReader(bytes.NewReader(b))
			if err != nil {
				return nil, err
			}
			defer r.Close()
			return readLimited(r, size)
		},
		// deflate stored-block overhead plus the zlib wrapper
		bound: func(n int) int {
			return n + (n >> 12) + (n >> 14) + (n >> 25) + 13 + 6
		},
	})
}
