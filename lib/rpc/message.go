// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/bureau-mux/lib/value"
)

var (
	// ErrMalformedHeader means the message is not an array or its
	// discriminator, msgid, method, or params slot has the wrong type.
	ErrMalformedHeader = errors.New("rpc: malformed message header")

	// ErrArity means the array length does not match the message type.
	ErrArity = errors.New("rpc: wrong message arity")

	// ErrTruncated means a buffer expected to hold a whole message ended
	// early.
	ErrTruncated = errors.New("rpc: truncated message")

	// ErrNeedMoreData is returned only by DecodeNext, for a buffer that
	// holds a proper prefix of a message. It is not a stream fault.
	ErrNeedMoreData = errors.New("rpc: need more data")

	// ErrInvalidValue means the bytes are not a valid value encoding or
	// use an unsupported one.
	ErrInvalidValue = errors.New("rpc: invalid value encoding")

	// ErrTrailingData means Decode found bytes after the message.
	ErrTrailingData = errors.New("rpc: trailing data after message")
)

// MessageType is the discriminator in the first array slot.
type MessageType uint8

const (
	TypeRequest      MessageType = 0
	TypeResponse     MessageType = 1
	TypeNotification MessageType = 2
)

func (messageType MessageType) String() string {
	switch messageType {
	case TypeRequest:
		return "request"
	case TypeResponse:
		return "response"
	case TypeNotification:
		return "notification"
	}
	return fmt.Sprintf("MessageType(%d)", uint8(messageType))
}

// Message is a decoded request, response, or notification. Fields that
// do not apply to Type are zero.
type Message struct {
	Type MessageType

	// MsgID is set for requests and responses.
	MsgID uint32

	// Method and Params are set for requests and notifications. Params
	// is always an array.
	Method string
	Params value.Value

	// Error and Result are set for responses. A nil Error means success.
	Error  value.Value
	Result value.Value
}

// NewRequest builds a request. params are wrapped in an array.
func NewRequest(msgid uint32, method string, params ...value.Value) Message {
	return Message{Type: TypeRequest, MsgID: msgid, Method: method, Params: value.Array(params...)}
}

// NewResponse builds a success response.
func NewResponse(msgid uint32, result value.Value) Message {
	return Message{Type: TypeResponse, MsgID: msgid, Result: result}
}

// NewErrorResponse builds a response with a non-nil error slot and a
// nil result.
func NewErrorResponse(msgid uint32, errorValue value.Value) Message {
	return Message{Type: TypeResponse, MsgID: msgid, Error: errorValue}
}

// NewNotification builds a notification. params are wrapped in an
// array.
func NewNotification(method string, params ...value.Value) Message {
	return Message{Type: TypeNotification, Method: method, Params: value.Array(params...)}
}

// Arg returns params element i, or nil when absent.
func (m Message) Arg(i int) value.Value {
	return m.Params.Index(i)
}

// Err returns a *RemoteError when a response carries a non-nil error
// slot.
func (m Message) Err() error {
	if m.Type != TypeResponse || m.Error.IsNil() {
		return nil
	}
	return &RemoteError{MsgID: m.MsgID, Value: m.Error}
}

// RemoteError is an application error returned by the peer in a
// response's error slot.
type RemoteError struct {
	MsgID uint32
	Value value.Value
}

func (e *RemoteError) Error() string {
	if text, ok := e.Value.AsString(); ok {
		return fmt.Sprintf("remote error (msgid %d): %s", e.MsgID, text)
	}
	return fmt.Sprintf("remote error (msgid %d): %s", e.MsgID, e.Value)
}

// ToValue returns the array form of m.
func (m Message) ToValue() (value.Value, error) {
	switch m.Type {
	case TypeRequest:
		return value.Array(
			value.Uint(uint64(TypeRequest)),
			value.Uint(uint64(m.MsgID)),
			value.String(m.Method),
			paramsOrEmpty(m.Params),
		), nil
	case TypeResponse:
		return value.Array(
			value.Uint(uint64(TypeResponse)),
			value.Uint(uint64(m.MsgID)),
			m.Error,
			m.Result,
		), nil
	case TypeNotification:
		return value.Array(
			value.Uint(uint64(TypeNotification)),
			value.String(m.Method),
			paramsOrEmpty(m.Params),
		), nil
	}
	return value.Value{}, fmt.Errorf("%w: message type %d", ErrMalformedHeader, m.Type)
}

func paramsOrEmpty(params value.Value) value.Value {
	if params.IsNil() {
		return value.Array()
	}
	return params
}

// Encode returns the wire bytes of m.
func Encode(m Message) ([]byte, error) {
	array, err := m.ToValue()
	if err != nil {
		return nil, err
	}
	return value.Encode(array)
}

// FromValue interprets a decoded array as a message.
func FromValue(v value.Value) (Message, error) {
	if v.Kind() != value.KindArray || v.Len() == 0 {
		return Message{}, fmt.Errorf("%w: expected non-empty array, got %s", ErrMalformedHeader, v.Kind())
	}
	discriminator, ok := v.Index(0).AsUint()
	if !ok {
		return Message{}, fmt.Errorf("%w: discriminator %s", ErrMalformedHeader, v.Index(0))
	}

	switch MessageType(discriminator) {
	case TypeRequest:
		if v.Len() != 4 {
			return Message{}, fmt.Errorf("%w: request has %d elements, want 4", ErrArity, v.Len())
		}
		msgid, err := msgidAt(v, 1)
		if err != nil {
			return Message{}, err
		}
		method, params, err := methodAndParams(v, 2)
		if err != nil {
			return Message{}, err
		}
		return Message{Type: TypeRequest, MsgID: msgid, Method: method, Params: params}, nil

	case TypeResponse:
		if v.Len() != 4 {
			return Message{}, fmt.Errorf("%w: response has %d elements, want 4", ErrArity, v.Len())
		}
		msgid, err := msgidAt(v, 1)
		if err != nil {
			return Message{}, err
		}
		return Message{Type: TypeResponse, MsgID: msgid, Error: v.Index(2), Result: v.Index(3)}, nil

	case TypeNotification:
		if v.Len() != 3 {
			return Message{}, fmt.Errorf("%w: notification has %d elements, want 3", ErrArity, v.Len())
		}
		method, params, err := methodAndParams(v, 1)
		if err != nil {
			return Message{}, err
		}
		return Message{Type: TypeNotification, Method: method, Params: params}, nil
	}
	return Message{}, fmt.Errorf("%w: unknown discriminator %d", ErrMalformedHeader, discriminator)
}

func msgidAt(v value.Value, index int) (uint32, error) {
	msgid, ok := v.Index(index).AsUint32()
	if !ok {
		return 0, fmt.Errorf("%w: msgid %s", ErrMalformedHeader, v.Index(index))
	}
	return msgid, nil
}

func methodAndParams(v value.Value, index int) (string, value.Value, error) {
	method, ok := v.Index(index).AsString()
	if !ok {
		return "", value.Value{}, fmt.Errorf("%w: method %s", ErrMalformedHeader, v.Index(index))
	}
	params := v.Index(index + 1)
	if params.Kind() != value.KindArray {
		return "", value.Value{}, fmt.Errorf("%w: params of %q is %s, want array", ErrMalformedHeader, method, params.Kind())
	}
	return method, params, nil
}

// Decode decodes a buffer holding exactly one complete message.
func Decode(data []byte) (Message, error) {
	decoded, err := value.Decode(data)
	if err != nil {
		switch {
		case errors.Is(err, value.ErrIncomplete):
			return Message{}, fmt.Errorf("%w: %d bytes", ErrTruncated, len(data))
		case errors.Is(err, value.ErrTrailingData):
			return Message{}, fmt.Errorf("%w: %v", ErrTrailingData, err)
		}
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return FromValue(decoded)
}

// DecodeNext decodes the message at the front of data and reports how
// many bytes it used. When data holds only a prefix of a message it
// returns ErrNeedMoreData and zero. Any other error is a stream fault;
// consumed still reports the length of a decodable but invalid message
// so a caller may log it.
func DecodeNext(data []byte) (message Message, consumed int, err error) {
	decoded, consumed, err := value.DecodeFirst(data)
	if err != nil {
		if errors.Is(err, value.ErrIncomplete) {
			return Message{}, 0, ErrNeedMoreData
		}
		return Message{}, 0, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	message, err = FromValue(decoded)
	return message, consumed, err
}
