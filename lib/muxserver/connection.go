// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package muxserver

import (
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/bureau-mux/lib/reactor"
	"github.com/bureau-foundation/bureau-mux/lib/rpc"
	"github.com/bureau-foundation/bureau-mux/lib/value"
)

const (
	// receiveSize is the capacity of each connection's receive buffer.
	receiveSize = 64 * 1024

	// maxPending bounds the undecoded bytes held for one client.
	maxPending = 16 << 20
)

const (
	tagReceive uint16 = iota + 1
	tagSend
)

// connection is one client in the registry.
type connection struct {
	server *Server
	fd     int

	chunk   []byte
	pending []byte
	outbox  outbox

	// session is the session this client is attached to, if any.
	session *session
	closed  bool
}

func newConnection(server *Server, fd int) *connection {
	conn := &connection{
		server: server,
		fd:     fd,
		chunk:  make([]byte, receiveSize),
	}
	conn.outbox = newOutbox(fd, reactor.Context{Handler: conn, Tag: tagSend})
	return conn
}

func (c *connection) receive() {
	c.server.reactor.Recv(c.fd, c.chunk, reactor.Context{Handler: c, Tag: tagReceive})
}

// HandleCompletion implements reactor.Handler.
func (c *connection) HandleCompletion(completion reactor.Completion) {
	if c.closed {
		return
	}
	switch completion.Tag {
	case tagReceive:
		c.handleReceive(completion)
	case tagSend:
		if completion.Err != nil {
			c.server.removeClient(c, completion.Err)
			return
		}
		c.outbox.sent(c.server.reactor, completion.N)
	}
}

func (c *connection) handleReceive(completion reactor.Completion) {
	if completion.Err != nil {
		c.server.removeClient(c, completion.Err)
		return
	}
	if completion.N == 0 {
		c.server.removeClient(c, io.EOF)
		return
	}

	c.pending = append(c.pending, c.chunk[:completion.N]...)
	if len(c.pending) > maxPending {
		c.server.removeClient(c, fmt.Errorf("%d undecoded bytes exceed the %d byte limit", len(c.pending), maxPending))
		return
	}
	consumed := 0
	for consumed < len(c.pending) {
		message, n, err := rpc.DecodeNext(c.pending[consumed:])
		if errors.Is(err, rpc.ErrNeedMoreData) {
			break
		}
		if err != nil {
			c.server.logger.Warn("dropping client after malformed message", "fd", c.fd, "error", err)
			c.server.removeClient(c, err)
			return
		}
		consumed += n
		c.dispatch(message)
		if c.closed {
			return
		}
	}
	remaining := copy(c.pending, c.pending[consumed:])
	c.pending = c.pending[:remaining]

	c.receive()
}

func (c *connection) dispatch(message rpc.Message) {
	switch message.Type {
	case rpc.TypeRequest:
		c.handleRequest(message)
	case rpc.TypeNotification:
		c.handleNotification(message)
	case rpc.TypeResponse:
		c.server.logger.Debug("ignoring response from client", "fd", c.fd, "msgid", message.MsgID)
	}
}

func (c *connection) handleRequest(request rpc.Message) {
	method, known := requestMethods[request.Method]
	if !known {
		c.send(rpc.NewErrorResponse(request.MsgID,
			value.String(fmt.Sprintf("unknown method %q", request.Method))))
		return
	}
	result, followups, err := method(c.server, c, request.Params)
	if err != nil {
		c.server.logger.Debug("request failed", "method", request.Method, "msgid", request.MsgID, "error", err)
		c.send(rpc.NewErrorResponse(request.MsgID, value.String(err.Error())))
		return
	}
	c.send(rpc.NewResponse(request.MsgID, result))
	for _, followup := range followups {
		c.send(followup)
	}
}

func (c *connection) handleNotification(notification rpc.Message) {
	method, known := notificationMethods[notification.Method]
	if !known {
		c.server.logger.Debug("ignoring unknown notification", "fd", c.fd, "method", notification.Method)
		return
	}
	if err := method(c.server, c, notification.Params); err != nil {
		c.server.logger.Debug("notification failed", "method", notification.Method, "error", err)
	}
}

// send encodes message and queues it behind any send in flight.
func (c *connection) send(message rpc.Message) {
	if c.closed {
		return
	}
	data, err := rpc.Encode(message)
	if err != nil {
		c.server.logger.Error("encoding message", "method", message.Method, "error", err)
		return
	}
	c.outbox.push(c.server.reactor, data)
}
