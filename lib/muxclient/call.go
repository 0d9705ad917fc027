// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package muxclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bureau-foundation/bureau-mux/lib/muxproto"
	"github.com/bureau-foundation/bureau-mux/lib/rpc"
	"github.com/bureau-foundation/bureau-mux/lib/value"
)

// Call makes one blocking request on a fresh connection and returns its
// result. Notifications arriving before the response are discarded.
// It is meant for one-shot commands and does not use a reactor.
func Call(ctx context.Context, socketPath, method string, params ...value.Value) (value.Value, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return value.Nil(), fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	const msgid = 1
	data, err := rpc.Encode(rpc.NewRequest(msgid, method, params...))
	if err != nil {
		return value.Nil(), fmt.Errorf("encoding %s: %w", method, err)
	}
	if _, err := conn.Write(data); err != nil {
		return value.Nil(), fmt.Errorf("sending %s: %w", method, contextError(ctx, err))
	}

	var buffer []byte
	chunk := make([]byte, receiveSize)
	for {
		for len(buffer) > 0 {
			message, n, err := rpc.DecodeNext(buffer)
			if errors.Is(err, rpc.ErrNeedMoreData) {
				break
			}
			if err != nil {
				return value.Nil(), fmt.Errorf("decoding %s response: %w", method, err)
			}
			buffer = buffer[n:]
			if message.Type != rpc.TypeResponse || message.MsgID != msgid {
				continue
			}
			if err := message.Err(); err != nil {
				return value.Nil(), fmt.Errorf("%s: %w", method, err)
			}
			return message.Result, nil
		}
		n, err := conn.Read(chunk)
		if n > 0 {
			buffer = append(buffer, chunk[:n]...)
			continue
		}
		if err != nil {
			return value.Nil(), fmt.Errorf("waiting for %s response: %w", method, contextError(ctx, err))
		}
	}
}

// contextError prefers the context's error over the deadline error it
// provoked.
func contextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// ListSessions returns the server's sessions in id order.
func ListSessions(ctx context.Context, socketPath string) ([]muxproto.SessionInfo, error) {
	result, err := Call(ctx, socketPath, muxproto.MethodListPTYs)
	if err != nil {
		return nil, err
	}
	if result.Kind() != value.KindArray {
		return nil, fmt.Errorf("list_ptys returned %s, want array", result.Kind())
	}
	sessions := make([]muxproto.SessionInfo, 0, result.Len())
	for _, item := range result.Items() {
		info, err := muxproto.ParseSessionInfo(item)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, info)
	}
	return sessions, nil
}

// KillSession sends SIGHUP to a session's process.
func KillSession(ctx context.Context, socketPath string, sessionID uint64) error {
	_, err := Call(ctx, socketPath, muxproto.MethodKillPTY, value.Uint(sessionID))
	return err
}

// Ping checks that a server is answering on socketPath.
func Ping(ctx context.Context, socketPath string) error {
	result, err := Call(ctx, socketPath, muxproto.MethodPing)
	if err != nil {
		return err
	}
	if pong, _ := result.AsString(); pong != muxproto.Pong {
		return fmt.Errorf("ping returned %s", result)
	}
	return nil
}
