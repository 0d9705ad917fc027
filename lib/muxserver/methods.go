// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package muxserver

import (
	"fmt"

	"github.com/bureau-foundation/bureau-mux/lib/muxproto"
	"github.com/bureau-foundation/bureau-mux/lib/rpc"
	"github.com/bureau-foundation/bureau-mux/lib/value"
)

// requestFunc answers a request. followups are sent after the
// response, in order.
type requestFunc func(s *Server, conn *connection, params value.Value) (result value.Value, followups []rpc.Message, err error)

type notificationFunc func(s *Server, conn *connection, params value.Value) error

var requestMethods = map[string]requestFunc{
	muxproto.MethodPing:      handlePing,
	muxproto.MethodSpawnPTY:  handleSpawnPTY,
	muxproto.MethodAttachPTY: handleAttachPTY,
	muxproto.MethodDetachPTY: handleDetachPTY,
	muxproto.MethodListPTYs:  handleListPTYs,
	muxproto.MethodKillPTY:   handleKillPTY,
}

var notificationMethods = map[string]notificationFunc{
	muxproto.NotifyInput:  handleInput,
	muxproto.NotifyResize: handleResize,
	muxproto.NotifyWake:   handleWake,
}

func handlePing(s *Server, conn *connection, params value.Value) (value.Value, []rpc.Message, error) {
	return value.String(muxproto.Pong), nil, nil
}

func handleSpawnPTY(s *Server, conn *connection, params value.Value) (value.Value, []rpc.Message, error) {
	options, err := muxproto.ParseSpawnOptions(params.Index(0))
	if err != nil {
		return value.Nil(), nil, err
	}
	sess, err := s.spawnSession(options)
	if err != nil {
		return value.Nil(), nil, fmt.Errorf("spawning session: %w", err)
	}
	return value.Uint(sess.id), nil, nil
}

func handleAttachPTY(s *Server, conn *connection, params value.Value) (value.Value, []rpc.Message, error) {
	sess, err := s.lookupSession(params.Index(0))
	if err != nil {
		return value.Nil(), nil, err
	}
	sess.attach(conn)
	s.logger.Debug("client attached", "fd", conn.fd, "session", sess.id, "attached", len(sess.clients))
	return value.Bool(true), []rpc.Message{redrawNotification(sess.screen.Snapshot())}, nil
}

// handleDetachPTY detaches from the given session, or from whatever
// session the client is attached to when no id is given. Detaching
// while not attached succeeds.
func handleDetachPTY(s *Server, conn *connection, params value.Value) (value.Value, []rpc.Message, error) {
	if conn.session == nil {
		return value.Bool(true), nil, nil
	}
	if id := params.Index(0); !id.IsNil() {
		sess, err := s.lookupSession(id)
		if err != nil {
			return value.Nil(), nil, err
		}
		if sess != conn.session {
			return value.Nil(), nil, fmt.Errorf("not attached to session %d", sess.id)
		}
	}
	s.logger.Debug("client detached", "fd", conn.fd, "session", conn.session.id)
	conn.session.detach(conn)
	return value.Bool(true), nil, nil
}

func handleListPTYs(s *Server, conn *connection, params value.Value) (value.Value, []rpc.Message, error) {
	sessions := s.sortedSessions()
	infos := make([]value.Value, len(sessions))
	for i, sess := range sessions {
		infos[i] = sess.info().Value()
	}
	return value.Array(infos...), nil, nil
}

func handleKillPTY(s *Server, conn *connection, params value.Value) (value.Value, []rpc.Message, error) {
	sess, err := s.lookupSession(params.Index(0))
	if err != nil {
		return value.Nil(), nil, err
	}
	if err := sess.kill(); err != nil {
		return value.Nil(), nil, fmt.Errorf("signalling session %d: %w", sess.id, err)
	}
	s.logger.Info("session killed", "session", sess.id)
	return value.Bool(true), nil, nil
}

func handleInput(s *Server, conn *connection, params value.Value) error {
	if conn.session == nil {
		return fmt.Errorf("input from fd %d with no attached session", conn.fd)
	}
	data, ok := params.Index(0).AsBinary()
	if !ok {
		return fmt.Errorf("input param is %s, want binary", params.Index(0).Kind())
	}
	conn.session.write(data)
	return nil
}

func handleResize(s *Server, conn *connection, params value.Value) error {
	if conn.session == nil {
		return fmt.Errorf("resize from fd %d with no attached session", conn.fd)
	}
	rows, columns, err := muxproto.ParseSize(params)
	if err != nil {
		return err
	}
	return conn.session.resize(rows, columns)
}

func handleWake(s *Server, conn *connection, params value.Value) error {
	return nil
}

func (s *Server) lookupSession(id value.Value) (*session, error) {
	number, ok := id.AsUint()
	if !ok {
		return nil, fmt.Errorf("session id is %s, want unsigned integer", id.Kind())
	}
	sess, exists := s.sessions[number]
	if !exists {
		return nil, fmt.Errorf("no session %d", number)
	}
	return sess, nil
}
