// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by morsefs
// components. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2), so the same status snapshot always produces the same bytes and
// two reads of an idle mount's status file compare equal.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Types serialized here carry `cbor` struct tags.
package codec
