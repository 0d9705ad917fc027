// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package muxserver

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/bureau-foundation/bureau-mux/lib/clock"
	"github.com/bureau-foundation/bureau-mux/lib/ptyproc"
	"github.com/bureau-foundation/bureau-mux/lib/reactor"
)

// State is the server's position in its lifecycle.
type State int

const (
	// StateAccepting has an accept outstanding on the listener.
	StateAccepting State = iota
	// StateDraining has stopped accepting and is closing the listener.
	StateDraining
	// StateTerminated has closed the listener.
	StateTerminated
)

func (state State) String() string {
	switch state {
	case StateAccepting:
		return "accepting"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int(state))
}

// Completion tags for operations the server itself owns.
const (
	tagAccept uint16 = iota + 1
	tagListenerClose
)

// Options configures a Server.
type Options struct {
	Reactor reactor.Reactor
	Spawner ptyproc.Spawner

	// Clock stamps session start times. Nil means clock.Real().
	Clock clock.Clock

	// Logger receives the server's structured events. Nil discards
	// them.
	Logger *slog.Logger

	// Shell, Rows and Columns are used by spawn_pty when the request
	// does not override them.
	Shell   string
	Rows    int
	Columns int
}

// Server is the session server. Create it with New, then either call
// Serve, or call Start and drive the reactor yourself.
type Server struct {
	reactor reactor.Reactor
	spawner ptyproc.Spawner
	clock   clock.Clock
	logger  *slog.Logger

	shell   string
	rows    int
	columns int

	state      State
	listenFD   int
	acceptTask *reactor.Task

	clients       map[int]*connection
	sessions      map[uint64]*session
	nextSessionID uint64
}

// New creates a server. It does not listen until Start or Serve.
func New(options Options) *Server {
	if options.Reactor == nil {
		panic("muxserver: Options.Reactor is required")
	}
	if options.Spawner == nil {
		panic("muxserver: Options.Spawner is required")
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	serverClock := options.Clock
	if serverClock == nil {
		serverClock = clock.Real()
	}
	return &Server{
		reactor:  options.Reactor,
		spawner:  options.Spawner,
		clock:    serverClock,
		logger:   logger,
		shell:    options.Shell,
		rows:     max(options.Rows, 1),
		columns:  max(options.Columns, 1),
		listenFD: reactor.NoFD,
		clients:  make(map[int]*connection),
		sessions: make(map[uint64]*session),
	}
}

// Serve listens on socketPath, runs the reactor until the server has
// terminated, and removes the socket file. A stale socket file at
// socketPath is removed first.
func (s *Server) Serve(socketPath string) error {
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket %s: %w", socketPath, err)
	}
	listenFD, err := reactor.ListenUnix(socketPath)
	if err != nil {
		return err
	}
	defer os.Remove(socketPath)

	s.logger.Info("session server listening", "path", socketPath)
	s.Start(listenFD)
	if err := s.reactor.Run(); err != nil {
		return fmt.Errorf("running reactor: %w", err)
	}
	s.logger.Info("session server terminated", "path", socketPath)
	return nil
}

// Start takes ownership of a listening descriptor and submits the first
// accept.
func (s *Server) Start(listenFD int) {
	s.listenFD = listenFD
	s.state = StateAccepting
	s.submitAccept()
}

func (s *Server) submitAccept() {
	s.acceptTask = s.reactor.Accept(s.listenFD, reactor.Context{Handler: s, Tag: tagAccept})
}

// State returns the lifecycle state.
func (s *Server) State() State { return s.state }

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int { return len(s.clients) }

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int { return len(s.sessions) }

// ShouldExit reports whether the server has neither clients nor
// sessions.
func (s *Server) ShouldExit() bool {
	return len(s.clients) == 0 && len(s.sessions) == 0
}

// evaluateDrain runs after every registry or session-table change. When
// the server should exit while still accepting, the accept is
// cancelled before evaluateDrain returns.
func (s *Server) evaluateDrain() {
	if s.state != StateAccepting || !s.ShouldExit() {
		return
	}
	s.logger.Info("no clients or sessions remain, draining")
	s.state = StateDraining
	s.reactor.Cancel(s.acceptTask, reactor.Context{})
}

// HandleCompletion implements reactor.Handler for the listener.
func (s *Server) HandleCompletion(completion reactor.Completion) {
	switch completion.Tag {
	case tagAccept:
		s.handleAccept(completion)
	case tagListenerClose:
		if completion.Err != nil {
			s.logger.Warn("closing listener failed", "error", completion.Err)
		}
		s.state = StateTerminated
		s.listenFD = reactor.NoFD
	}
}

func (s *Server) handleAccept(completion reactor.Completion) {
	s.acceptTask = nil
	if s.state != StateAccepting {
		// An accept that won the race with Cancel still produced a
		// descriptor nobody will serve.
		if completion.Err == nil {
			s.reactor.Close(completion.NewFD, reactor.Context{})
		}
		s.reactor.Close(s.listenFD, reactor.Context{Handler: s, Tag: tagListenerClose})
		return
	}
	if completion.Err != nil {
		if errors.Is(completion.Err, reactor.ErrClosed) {
			s.logger.Error("listener closed underneath the server", "error", completion.Err)
			s.state = StateTerminated
			s.listenFD = reactor.NoFD
			return
		}
		// Accept is not retried. Connected clients and live sessions
		// are still served until they finish.
		s.logger.Error("accept failed, closing listener",
			"error", completion.Err,
			"clients", len(s.clients),
			"sessions", len(s.sessions),
		)
		s.state = StateDraining
		s.reactor.Close(s.listenFD, reactor.Context{Handler: s, Tag: tagListenerClose})
		return
	}

	s.addClient(completion.NewFD)
	s.submitAccept()
}

func (s *Server) addClient(fd int) {
	conn := newConnection(s, fd)
	s.clients[fd] = conn
	s.logger.Debug("client connected", "fd", fd, "clients", len(s.clients))
	conn.receive()
	s.evaluateDrain()
}

// removeClient unregisters conn and closes its descriptor, failing
// anything still pending on it.
func (s *Server) removeClient(conn *connection, reason error) {
	if conn.closed {
		return
	}
	conn.closed = true
	conn.outbox.drop()
	if conn.session != nil {
		conn.session.detach(conn)
	}
	delete(s.clients, conn.fd)
	s.reactor.Close(conn.fd, reactor.Context{})

	if reason != nil {
		s.logger.Debug("client disconnected", "fd", conn.fd, "reason", reason, "clients", len(s.clients))
	} else {
		s.logger.Debug("client disconnected", "fd", conn.fd, "clients", len(s.clients))
	}
	s.evaluateDrain()
}

// removeSession unregisters a session whose PTY has closed.
func (s *Server) removeSession(sess *session) {
	delete(s.sessions, sess.id)
	s.logger.Info("session ended", "session", sess.id, "sessions", len(s.sessions))
	s.evaluateDrain()
}

// sortedSessions returns the live sessions in id order.
func (s *Server) sortedSessions() []*session {
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].id < sessions[j].id })
	return sessions
}
