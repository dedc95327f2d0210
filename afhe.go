// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package afhe is a backend-agnostic facade over homomorphic encryption
// libraries for the BFV, BGV and CKKS schemes.
//
// A Context turns raw parameters into a validated cryptographic context on one
// backend, holds the key material and forwards arithmetic to the backend:
//   - Generate and GenerateFromBlob build the context and report a status string
//   - GenerateKeys, GenerateRelinKeys and GenerateGaloisKeys drive the key lifecycle
//   - Save and the Load methods move artifacts across process boundaries
//
// Every artifact carries a parameter-id, so objects built under one parameter
// set are refused by a context built from another.
//
// A Context is not safe for concurrent use.
package afhe

// Serialization format version written into every header.
const (
	VersionMajor = 1
	VersionMinor = 1
)

// StatusValid is the status of a successfully generated context.
const StatusValid = "success: valid"
