// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package muxclient

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/bureau-mux/lib/muxproto"
	"github.com/bureau-foundation/bureau-mux/lib/rpc"
	"github.com/bureau-foundation/bureau-mux/lib/testutil"
	"github.com/bureau-foundation/bureau-mux/lib/value"
)

// serveOnce accepts one connection, reads one request, and writes the
// messages respond returns for it. The request arrives on the returned
// channel.
func serveOnce(t *testing.T, respond func(rpc.Message) []rpc.Message) (string, <-chan rpc.Message) {
	t.Helper()
	path := filepath.Join(testutil.SocketDir(t), "mux.sock")
	listener, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	requests := make(chan rpc.Message, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var buffer []byte
		chunk := make([]byte, 4096)
		for {
			n, err := conn.Read(chunk)
			if err != nil {
				return
			}
			buffer = append(buffer, chunk[:n]...)
			request, _, err := rpc.DecodeNext(buffer)
			if errors.Is(err, rpc.ErrNeedMoreData) {
				continue
			}
			if err != nil {
				return
			}
			requests <- request
			for _, message := range respond(request) {
				data, err := rpc.Encode(message)
				if err != nil {
					return
				}
				conn.Write(data)
			}
			// Hold the connection open until the caller hangs up.
			conn.Read(chunk)
			return
		}
	}()
	return path, requests
}

func TestCallReturnsResult(t *testing.T) {
	path, requests := serveOnce(t, func(request rpc.Message) []rpc.Message {
		return []rpc.Message{
			rpc.NewNotification(muxproto.NotifyRedraw, value.Array()),
			rpc.NewResponse(request.MsgID, value.String(muxproto.Pong)),
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Ping(ctx, path); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	request := testutil.RequireReceive(t, requests, 5*time.Second, "waiting for request")
	if request.Method != muxproto.MethodPing || request.Type != rpc.TypeRequest {
		t.Errorf("request = %v %q, want ping request", request.Type, request.Method)
	}
}

func TestCallRemoteError(t *testing.T) {
	path, _ := serveOnce(t, func(request rpc.Message) []rpc.Message {
		return []rpc.Message{rpc.NewErrorResponse(request.MsgID, value.String("no such session"))}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := KillSession(ctx, path, 9)
	var remote *rpc.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("KillSession error = %v, want *rpc.RemoteError", err)
	}
}

func TestListSessions(t *testing.T) {
	started := time.Unix(1700000000, 0)
	path, requests := serveOnce(t, func(request rpc.Message) []rpc.Message {
		return []rpc.Message{rpc.NewResponse(request.MsgID, value.Array(
			muxproto.SessionInfo{ID: 1, PID: 100, Rows: 24, Cols: 80, Clients: 1, Command: "/bin/sh", StartedAt: started}.Value(),
			muxproto.SessionInfo{ID: 3, PID: 102, Rows: 50, Cols: 132, Command: "htop", StartedAt: started}.Value(),
		))}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sessions, err := ListSessions(ctx, path)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].ID != 1 || sessions[0].Command != "/bin/sh" || sessions[0].Clients != 1 {
		t.Errorf("sessions[0] = %+v", sessions[0])
	}
	if sessions[1].ID != 3 || sessions[1].Rows != 50 || sessions[1].Cols != 132 || !sessions[1].StartedAt.Equal(started) {
		t.Errorf("sessions[1] = %+v", sessions[1])
	}
	request := testutil.RequireReceive(t, requests, 5*time.Second, "waiting for request")
	if request.Method != muxproto.MethodListPTYs {
		t.Errorf("method = %q, want %q", request.Method, muxproto.MethodListPTYs)
	}
}

func TestCallNoServer(t *testing.T) {
	path := filepath.Join(testutil.SocketDir(t), "absent.sock")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Ping(ctx, path); err == nil {
		t.Fatal("Ping succeeded with no server")
	}
}

func TestCallHonorsContext(t *testing.T) {
	path, _ := serveOnce(t, func(rpc.Message) []rpc.Message { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := Ping(ctx, path)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Ping error = %v, want context.DeadlineExceeded", err)
	}
}
