// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package value

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/bureau-mux/lib/codec"
)

var (
	// ErrIncomplete means the input ended inside a data item. Streaming
	// callers treat it as "wait for more bytes".
	ErrIncomplete = errors.New("value: incomplete data item")

	// ErrMalformed means the input is not well-formed CBOR.
	ErrMalformed = errors.New("value: malformed data item")

	// ErrUnsupported means the input is well-formed CBOR but uses an
	// encoding outside the value model (tags, simple values, integers
	// below math.MinInt64).
	ErrUnsupported = errors.New("value: unsupported encoding")

	// ErrTrailingData means Decode found bytes after the first item.
	ErrTrailingData = errors.New("value: trailing data after item")
)

// CBOR major types.
const (
	majorUnsigned   = 0
	majorNegative   = 1
	majorByteString = 2
	majorTextString = 3
	majorArray      = 4
	majorMap        = 5
	majorTag        = 6
	majorSimple     = 7
)

const (
	simpleFalse     = 20
	simpleTrue      = 21
	simpleNull      = 22
	simpleUndefined = 23
	simpleFloat16   = 25
	simpleFloat32   = 26
	simpleFloat64   = 27
	indefinite      = 31
	breakByte       = 0xff
)

// Encode returns the CBOR encoding of v.
func Encode(v Value) ([]byte, error) {
	return v.MarshalCBOR()
}

// Decode decodes data, which must hold exactly one data item.
// Truncated input is reported as ErrIncomplete and extra bytes as
// ErrTrailingData.
func Decode(data []byte) (Value, error) {
	decoded, consumed, err := DecodeFirst(data)
	if err != nil {
		return Value{}, err
	}
	if consumed != len(data) {
		return Value{}, fmt.Errorf("%w: %d bytes", ErrTrailingData, len(data)-consumed)
	}
	return decoded, nil
}

// DecodeFirst decodes the first data item in data and returns it with
// the number of bytes it occupied. An empty or truncated input returns
// ErrIncomplete and consumes nothing.
func DecodeFirst(data []byte) (Value, int, error) {
	if len(data) == 0 {
		return Value{}, 0, ErrIncomplete
	}
	var decoded Value
	rest, err := codec.UnmarshalFirst(data, &decoded)
	if err != nil {
		return Value{}, 0, classify(err)
	}
	return decoded, len(data) - len(rest), nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrUnsupported), errors.Is(err, ErrMalformed):
		return err
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return ErrIncomplete
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

// MarshalCBOR implements cbor.Marshaler. Array and map heads are
// written directly so map entries keep their order and duplicate keys;
// scalars go through lib/codec for the smallest encodings.
func (v Value) MarshalCBOR() ([]byte, error) {
	return v.appendCBOR(nil)
}

func (v Value) appendCBOR(buffer []byte) ([]byte, error) {
	switch v.kind {
	case KindNil:
		return append(buffer, majorSimple<<5|simpleNull), nil
	case KindBool:
		if v.boolean {
			return append(buffer, majorSimple<<5|simpleTrue), nil
		}
		return append(buffer, majorSimple<<5|simpleFalse), nil
	case KindInt:
		return appendScalar(buffer, v.signed)
	case KindUint:
		return appendScalar(buffer, v.unsigned)
	case KindFloat:
		return appendScalar(buffer, v.float)
	case KindString:
		return appendScalar(buffer, v.text)
	case KindBinary:
		// A nil slice would encode as null.
		if v.binary == nil {
			return appendScalar(buffer, []byte{})
		}
		return appendScalar(buffer, v.binary)
	case KindArray:
		buffer = appendHead(buffer, majorArray, uint64(len(v.items)))
		var err error
		for i, item := range v.items {
			if buffer, err = item.appendCBOR(buffer); err != nil {
				return nil, fmt.Errorf("array element %d: %w", i, err)
			}
		}
		return buffer, nil
	case KindMap:
		buffer = appendHead(buffer, majorMap, uint64(len(v.pairs)))
		var err error
		for i, pair := range v.pairs {
			if buffer, err = pair.Key.appendCBOR(buffer); err != nil {
				return nil, fmt.Errorf("map key %d: %w", i, err)
			}
			if buffer, err = pair.Value.appendCBOR(buffer); err != nil {
				return nil, fmt.Errorf("map value %d: %w", i, err)
			}
		}
		return buffer, nil
	}
	return nil, fmt.Errorf("%w: kind %s", ErrUnsupported, v.kind)
}

func appendScalar(buffer []byte, scalar any) ([]byte, error) {
	encoded, err := codec.Marshal(scalar)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", scalar, err)
	}
	return append(buffer, encoded...), nil
}

// appendHead writes a CBOR initial byte plus argument in the shortest
// form.
func appendHead(buffer []byte, major byte, argument uint64) []byte {
	switch {
	case argument < 24:
		return append(buffer, major<<5|byte(argument))
	case argument <= 0xff:
		return append(buffer, major<<5|24, byte(argument))
	case argument <= 0xffff:
		return binary.BigEndian.AppendUint16(append(buffer, major<<5|25), uint16(argument))
	case argument <= 0xffffffff:
		return binary.BigEndian.AppendUint32(append(buffer, major<<5|26), uint32(argument))
	}
	return binary.BigEndian.AppendUint64(append(buffer, major<<5|27), argument)
}

// readHead parses the initial byte and argument at the start of data.
// For indefinite-length items it returns isIndefinite and no argument.
func readHead(data []byte) (major byte, argument uint64, headLength int, isIndefinite bool, err error) {
	if len(data) == 0 {
		return 0, 0, 0, false, ErrIncomplete
	}
	major = data[0] >> 5
	additional := data[0] & 0x1f
	switch {
	case additional < 24:
		return major, uint64(additional), 1, false, nil
	case additional == indefinite:
		return major, 0, 1, true, nil
	case additional > 27:
		return 0, 0, 0, false, fmt.Errorf("%w: reserved additional info %d", ErrMalformed, additional)
	}
	width := 1 << (additional - 24)
	if len(data) < 1+width {
		return 0, 0, 0, false, ErrIncomplete
	}
	switch width {
	case 1:
		argument = uint64(data[1])
	case 2:
		argument = uint64(binary.BigEndian.Uint16(data[1:]))
	case 4:
		argument = uint64(binary.BigEndian.Uint32(data[1:]))
	case 8:
		argument = binary.BigEndian.Uint64(data[1:])
	}
	return major, argument, 1 + width, false, nil
}

// UnmarshalCBOR implements cbor.Unmarshaler. The decoder hands it
// exactly one well-formed item.
func (v *Value) UnmarshalCBOR(data []byte) error {
	if len(data) == 0 {
		return ErrIncomplete
	}
	switch data[0] >> 5 {
	case majorUnsigned:
		var unsigned uint64
		if err := codec.Unmarshal(data, &unsigned); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		*v = Uint(unsigned)
	case majorNegative:
		var signed int64
		if err := codec.Unmarshal(data, &signed); err != nil {
			return fmt.Errorf("%w: negative integer out of range: %v", ErrUnsupported, err)
		}
		*v = Int(signed)
	case majorByteString:
		var raw []byte
		if err := codec.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		*v = Binary(bytes.Clone(raw))
	case majorTextString:
		var text string
		if err := codec.Unmarshal(data, &text); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		*v = String(text)
	case majorArray:
		var items []Value
		if err := codec.Unmarshal(data, &items); err != nil {
			return err
		}
		*v = Array(items...)
	case majorMap:
		pairs, err := decodePairs(data)
		if err != nil {
			return err
		}
		*v = Map(pairs...)
	case majorTag:
		return fmt.Errorf("%w: tagged item", ErrUnsupported)
	case majorSimple:
		return v.unmarshalSimple(data)
	}
	return nil
}

func (v *Value) unmarshalSimple(data []byte) error {
	switch data[0] & 0x1f {
	case simpleFalse:
		*v = Bool(false)
	case simpleTrue:
		*v = Bool(true)
	case simpleNull, simpleUndefined:
		*v = Nil()
	case simpleFloat16, simpleFloat32, simpleFloat64:
		var float float64
		if err := codec.Unmarshal(data, &float); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		*v = Float(float)
	default:
		return fmt.Errorf("%w: simple value 0x%02x", ErrUnsupported, data[0])
	}
	return nil
}

// decodePairs walks a map item entry by entry. Decoding into a Go map
// would lose both order and duplicate keys.
func decodePairs(data []byte) ([]Pair, error) {
	_, count, headLength, isIndefinite, err := readHead(data)
	if err != nil {
		return nil, err
	}
	remaining := data[headLength:]
	var pairs []Pair
	if !isIndefinite {
		// Each entry takes at least two bytes; a count larger than that
		// cannot be honest and must not size an allocation.
		if count <= uint64(len(remaining)/2) {
			pairs = make([]Pair, 0, count)
		}
	}
	for entry := uint64(0); isIndefinite || entry < count; entry++ {
		if isIndefinite && len(remaining) > 0 && remaining[0] == breakByte {
			break
		}
		var pair Pair
		if remaining, err = codec.UnmarshalFirst(remaining, &pair.Key); err != nil {
			return nil, classify(err)
		}
		if remaining, err = codec.UnmarshalFirst(remaining, &pair.Value); err != nil {
			return nil, classify(err)
		}
		pairs = append(pairs, pair)
	}
	if pairs == nil {
		pairs = []Pair{}
	}
	return pairs, nil
}
