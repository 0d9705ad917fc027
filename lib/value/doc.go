// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package value implements the self-describing value model carried by
// the multiplexer's RPC protocol.
//
// A [Value] is a tagged union of nil, bool, signed integer, unsigned
// integer, float, text string, byte string, array, and map. Maps are
// ordered sequences of key/value [Pair]s: duplicate keys are preserved
// and [Value.Lookup] returns the first match.
//
// The wire form is CBOR (RFC 8949) produced through lib/codec. Encoding
// uses the smallest integer and float representations. Decoding maps
// non-negative integers to [KindUint] and negative integers to
// [KindInt]; callers coerce with [Value.AsUint] and [Value.AsInt], which
// accept either class when the magnitude fits. CBOR tags and simple
// values other than false, true, null, and undefined are rejected with
// [ErrUnsupported].
//
// Decoded values never alias the input buffer. A connection may compact
// or reuse its receive buffer as soon as a decode call returns.
//
// [DecodeFirst] decodes the first item of a byte stream and reports how
// many bytes it used, returning [ErrIncomplete] when the stream ends
// inside the item. [Decode] requires the buffer to hold exactly one
// item.
package value
