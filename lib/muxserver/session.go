// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package muxserver

import (
	"errors"
	"io"
	"slices"
	"syscall"
	"time"

	"github.com/bureau-foundation/bureau-mux/lib/muxproto"
	"github.com/bureau-foundation/bureau-mux/lib/ptyproc"
	"github.com/bureau-foundation/bureau-mux/lib/reactor"
	"github.com/bureau-foundation/bureau-mux/lib/redraw"
	"github.com/bureau-foundation/bureau-mux/lib/rpc"
	"github.com/bureau-foundation/bureau-mux/lib/screen"
	"github.com/bureau-foundation/bureau-mux/lib/value"
)

const ptyReadSize = 16 * 1024

const (
	tagPTYRead uint16 = iota + 1
	tagPTYWrite
)

// session is one PTY and the screen model fed by its output. The PTY
// master is read and written through the reactor; the child is reaped
// by a goroutine that only logs.
type session struct {
	server    *Server
	id        uint64
	process   ptyproc.Process
	fd        int
	command   string
	startedAt time.Time

	screen *screen.Screen
	chunk  []byte
	input  outbox

	// clients are attached connections in attach order.
	clients []*connection
	closed  bool
}

func (s *Server) spawnSession(options muxproto.SpawnOptions) (*session, error) {
	command := options.Command
	if command == "" {
		command = s.shell
	}
	if command == "" {
		return nil, errors.New("no command given and no default shell configured")
	}
	rows := options.Rows
	if rows == 0 {
		rows = s.rows
	}
	columns := options.Cols
	if columns == 0 {
		columns = s.columns
	}

	process, err := s.spawner.Spawn(ptyproc.Options{
		Command: command,
		Args:    options.Args,
		Dir:     options.Dir,
		Rows:    rows,
		Columns: columns,
	})
	if err != nil {
		return nil, err
	}

	s.nextSessionID++
	sess := &session{
		server:    s,
		id:        s.nextSessionID,
		process:   process,
		fd:        process.FD(),
		command:   command,
		startedAt: s.clock.Now(),
		screen:    screen.New(rows, columns),
		chunk:     make([]byte, ptyReadSize),
	}
	sess.input = newOutbox(sess.fd, reactor.Context{Handler: sess, Tag: tagPTYWrite})
	// Clients start from a Snapshot, so the blank initial screen is
	// never broadcast as a delta.
	sess.screen.Flush()
	s.sessions[sess.id] = sess
	s.logger.Info("session spawned",
		"session", sess.id,
		"pid", process.PID(),
		"command", command,
		"rows", rows,
		"cols", columns,
	)

	go s.reap(sess.id, process)
	sess.read()
	s.evaluateDrain()
	return sess, nil
}

// reap waits for the child and logs how it ended. Session teardown is
// driven by the PTY reporting EOF on the reactor thread, not by this
// goroutine.
func (s *Server) reap(id uint64, process ptyproc.Process) {
	code, err := process.Wait()
	if err != nil {
		s.logger.Warn("waiting for session process", "session", id, "error", err)
		return
	}
	s.logger.Info("session process exited", "session", id, "exit_code", code)
}

func (sess *session) read() {
	sess.server.reactor.Recv(sess.fd, sess.chunk, reactor.Context{Handler: sess, Tag: tagPTYRead})
}

// HandleCompletion implements reactor.Handler.
func (sess *session) HandleCompletion(completion reactor.Completion) {
	if sess.closed {
		return
	}
	switch completion.Tag {
	case tagPTYRead:
		if completion.Err != nil {
			sess.end(completion.Err)
			return
		}
		if completion.N == 0 {
			sess.end(io.EOF)
			return
		}
		sess.screen.Write(sess.chunk[:completion.N])
		sess.broadcast(sess.screen.Flush())
		sess.read()
	case tagPTYWrite:
		if completion.Err != nil {
			sess.server.logger.Debug("writing to pty failed", "session", sess.id, "error", completion.Err)
			sess.input.drop()
			return
		}
		sess.input.sent(sess.server.reactor, completion.N)
	}
}

// end tears the session down after its PTY reports EOF or an error.
// Linux reports a PTY whose child has gone with EIO.
func (sess *session) end(reason error) {
	sess.closed = true
	sess.input.drop()
	sess.server.reactor.Close(sess.fd, reactor.Context{})
	if err := sess.process.Release(); err != nil {
		sess.server.logger.Debug("releasing pty", "session", sess.id, "error", err)
	}
	sess.server.logger.Debug("pty closed", "session", sess.id, "reason", reason)

	exited := rpc.NewNotification(muxproto.NotifyPTYExited, value.Uint(sess.id))
	for _, conn := range sess.clients {
		conn.session = nil
		conn.send(exited)
	}
	sess.clients = nil
	sess.server.removeSession(sess)
}

func (sess *session) attach(conn *connection) {
	if conn.session == sess {
		return
	}
	if conn.session != nil {
		conn.session.detach(conn)
	}
	sess.clients = append(sess.clients, conn)
	conn.session = sess
}

func (sess *session) detach(conn *connection) {
	sess.clients = slices.DeleteFunc(sess.clients, func(attached *connection) bool {
		return attached == conn
	})
	conn.session = nil
}

// broadcast sends one redraw notification carrying events to every
// attached client. The encoded bytes are shared between their outboxes.
func (sess *session) broadcast(events []redraw.Event) {
	if len(events) == 0 || len(sess.clients) == 0 {
		return
	}
	data, err := rpc.Encode(redrawNotification(events))
	if err != nil {
		sess.server.logger.Error("encoding redraw", "session", sess.id, "error", err)
		return
	}
	for _, conn := range sess.clients {
		conn.outbox.push(sess.server.reactor, data)
	}
}

func redrawNotification(events []redraw.Event) rpc.Message {
	return rpc.NewNotification(muxproto.NotifyRedraw, redraw.Encode(events)...)
}

// write queues client input for the PTY.
func (sess *session) write(data []byte) {
	sess.input.push(sess.server.reactor, data)
}

func (sess *session) resize(rows, columns int) error {
	if err := sess.process.Resize(rows, columns); err != nil {
		return err
	}
	sess.screen.Resize(rows, columns)
	sess.broadcast(sess.screen.Flush())
	return nil
}

// kill asks the child to hang up. The session ends when the PTY
// reports EOF.
func (sess *session) kill() error {
	return sess.process.Signal(syscall.SIGHUP)
}

func (sess *session) info() muxproto.SessionInfo {
	rows, columns := sess.screen.Size()
	return muxproto.SessionInfo{
		ID:        sess.id,
		PID:       sess.process.PID(),
		Rows:      rows,
		Cols:      columns,
		Clients:   len(sess.clients),
		Command:   sess.command,
		StartedAt: sess.startedAt,
	}
}
