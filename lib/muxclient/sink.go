// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package muxclient

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/bureau-mux/lib/clock"
	"github.com/bureau-foundation/bureau-mux/lib/muxproto"
	"github.com/bureau-foundation/bureau-mux/lib/reactor"
	"github.com/bureau-foundation/bureau-mux/lib/rpc"
	"github.com/bureau-foundation/bureau-mux/lib/value"
)

// InputSink sends user input to the attached session from any
// goroutine. It writes directly to the connection's descriptor and
// shares nothing with the reactor except the quit flag and the msgid
// counter. Methods are safe for concurrent use; after the client
// closes they return reactor.ErrClosed.
type InputSink struct {
	writer    *reactor.FDWriter
	sessionID uint64
	msgids    *atomic.Uint32
	quit      *atomic.Bool
}

func newInputSink(writer *reactor.FDWriter, sessionID uint64, msgids *atomic.Uint32, quit *atomic.Bool) *InputSink {
	return &InputSink{writer: writer, sessionID: sessionID, msgids: msgids, quit: quit}
}

// SessionID returns the attached session.
func (s *InputSink) SessionID() uint64 { return s.sessionID }

// SendInput forwards keyboard bytes to the session.
func (s *InputSink) SendInput(data []byte) error {
	return s.write(rpc.NewNotification(muxproto.NotifyInput, value.Binary(data)))
}

// SendResize reports a new terminal size.
func (s *InputSink) SendResize(rows, cols int) error {
	return s.write(rpc.NewNotification(muxproto.NotifyResize,
		value.Uint(uint64(rows)), value.Uint(uint64(cols))))
}

// Wake sends a keepalive.
func (s *InputSink) Wake() error {
	return s.write(rpc.NewNotification(muxproto.NotifyWake))
}

// Quit asks the client to close. It sets the quit flag and sends a
// detach request; the reply wakes the reactor, which sees the flag and
// closes the connection. The session keeps running on the server.
func (s *InputSink) Quit() error {
	s.quit.Store(true)
	return s.write(rpc.NewRequest(s.msgids.Add(1), muxproto.MethodDetachPTY, value.Uint(s.sessionID)))
}

// Keepalive sends Wake every interval until ctx is done or a write
// fails.
func (s *InputSink) Keepalive(ctx context.Context, c clock.Clock, interval time.Duration) error {
	ticker := c.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Wake(); err != nil {
				return fmt.Errorf("sending keepalive: %w", err)
			}
		}
	}
}

func (s *InputSink) write(message rpc.Message) error {
	data, err := rpc.Encode(message)
	if err != nil {
		return err
	}
	_, err = s.writer.Write(data)
	return err
}
