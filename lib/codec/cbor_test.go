// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

// sampleRequest mirrors the shape of a request frame so the tests
// exercise the same encodings the protocol produces.
type sampleRequest struct {
	_       struct{} `cbor:",toarray"`
	Type    uint8
	MsgID   uint32
	Method  string
	Payload []byte
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleRequest{Type: 0, MsgID: 7, Method: "spawn_pty", Payload: []byte("ls\r")}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleRequest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.MsgID != original.MsgID || decoded.Method != original.Method || !bytes.Equal(decoded.Payload, original.Payload) {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	message := map[string]any{"rows": 24, "cols": 80, "command": "/bin/sh"}

	first, err := Marshal(message)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(message)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestSmallestIntegerEncoding(t *testing.T) {
	tests := []struct {
		value any
		want  []byte
	}{
		{uint64(0), []byte{0x00}},
		{uint64(23), []byte{0x17}},
		{uint64(24), []byte{0x18, 0x18}},
		{int64(-1), []byte{0x20}},
		{int64(500), []byte{0x19, 0x01, 0xf4}},
	}
	for _, test := range tests {
		data, err := Marshal(test.value)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", test.value, err)
		}
		if !bytes.Equal(data, test.want) {
			t.Errorf("Marshal(%v) = %x, want %x", test.value, data, test.want)
		}
	}
}

func TestUnmarshalFirstReturnsRest(t *testing.T) {
	first, err := Marshal("hello")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(uint64(42))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	sequence := append(append([]byte{}, first...), second...)

	var text string
	rest, err := UnmarshalFirst(sequence, &text)
	if err != nil {
		t.Fatalf("UnmarshalFirst: %v", err)
	}
	if text != "hello" {
		t.Errorf("first item = %q, want %q", text, "hello")
	}
	if !bytes.Equal(rest, second) {
		t.Errorf("rest = %x, want %x", rest, second)
	}
}

func TestUnmarshalFirstTruncated(t *testing.T) {
	data, err := Marshal([]any{uint64(0), uint64(1), "spawn_pty", []any{}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	for length := 1; length < len(data); length++ {
		var target any
		_, err := UnmarshalFirst(data[:length], &target)
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("prefix of %d bytes: got %v, want io.ErrUnexpectedEOF", length, err)
		}
	}

	var target any
	if _, err := UnmarshalFirst(nil, &target); !errors.Is(err, io.EOF) {
		t.Errorf("empty input: got %v, want io.EOF", err)
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var target any
	if err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &target); err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}

func TestUnmarshalRejectsTrailingData(t *testing.T) {
	var target uint64
	if err := Unmarshal([]byte{0x01, 0x02}, &target); err == nil {
		t.Error("Unmarshal should reject bytes after the first item")
	}
}

func TestByteStringRoundtrip(t *testing.T) {
	// []byte must encode as a CBOR byte string (major type 2), not a
	// text string: PTY input is arbitrary bytes, not UTF-8.
	original := []byte{0x1b, '[', 'A', 0xff}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if data[0]>>5 != 2 {
		t.Fatalf("major type = %d, want 2", data[0]>>5)
	}

	var decoded []byte
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !bytes.Equal(decoded, original) {
		t.Errorf("byte string roundtrip: got %q, want %q", decoded, original)
	}
}

func TestWellformed(t *testing.T) {
	data, err := Marshal([]any{uint64(2), "wake", []any{}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := Wellformed(data); err != nil {
		t.Errorf("Wellformed(complete) = %v", err)
	}
	if err := Wellformed(data[:len(data)-1]); err == nil {
		t.Error("Wellformed accepted a truncated item")
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal([]any{uint64(2), "redraw", []any{}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(notation, `"redraw"`) {
		t.Errorf("notation %q does not contain \"redraw\"", notation)
	}
}

func TestDiagnoseFirst(t *testing.T) {
	item1, err := Marshal("hello")
	if err != nil {
		t.Fatalf("Marshal item 1: %v", err)
	}
	item2, err := Marshal(int64(42))
	if err != nil {
		t.Fatalf("Marshal item 2: %v", err)
	}
	sequence := append(append([]byte{}, item1...), item2...)

	notation, remaining, err := DiagnoseFirst(sequence)
	if err != nil {
		t.Fatalf("DiagnoseFirst: %v", err)
	}
	if !strings.Contains(notation, `"hello"`) {
		t.Errorf("first item notation %q does not contain \"hello\"", notation)
	}
	if !bytes.Equal(remaining, item2) {
		t.Errorf("remaining = %x, want %x", remaining, item2)
	}
}

func BenchmarkMarshal(b *testing.B) {
	message := []any{uint64(0), uint64(42), "attach_pty", []any{uint64(3)}}

	b.ReportAllocs()
	for b.Loop() {
		Marshal(message)
	}
}
