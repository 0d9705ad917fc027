// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by every
// bureau-mux package that touches the wire.
//
// The multiplexer protocol is a sequence of self-delimiting CBOR data
// items on a Unix stream socket. There is no length prefix: a reader
// knows a message is complete when the CBOR item is well-formed. This
// package supplies the two modes every package must agree on so that the
// same logical value always produces identical bytes:
//
//   - The encoder uses Core Deterministic Encoding (RFC 8949 §4.2):
//     smallest integer encoding, shortest float encoding that preserves
//     the value, no indefinite-length items.
//   - The decoder accepts standard CBOR, including indefinite-length
//     items written by other implementations.
//
// For buffer-oriented operations (the reactor hands us byte slices):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//	rest, err := codec.UnmarshalFirst(buffer, &value)
//
// UnmarshalFirst is the streaming primitive. When buffer ends in the
// middle of a data item it fails with an error matching io.ErrUnexpectedEOF
// (or io.EOF for an empty buffer); callers that buffer socket reads use
// that to distinguish "wait for more bytes" from a corrupt stream.
package codec
