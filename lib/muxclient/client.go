// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package muxclient

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bureau-foundation/bureau-mux/lib/muxproto"
	"github.com/bureau-foundation/bureau-mux/lib/reactor"
	"github.com/bureau-foundation/bureau-mux/lib/redraw"
	"github.com/bureau-foundation/bureau-mux/lib/rpc"
	"github.com/bureau-foundation/bureau-mux/lib/value"
	"golang.org/x/sys/unix"
)

var (
	// ErrSessionExited closes the client when the attached session's
	// process ends.
	ErrSessionExited = errors.New("muxclient: session exited")

	// ErrDisconnected closes the client when the server hangs up
	// without being asked to.
	ErrDisconnected = errors.New("muxclient: server closed the connection")
)

// State is the client's position in its lifecycle.
type State int

const (
	StateUnconnected State = iota
	StateConnecting
	StateConnected
	StateAwaitingSession
	StateAttached
	StateClosing
	StateClosed
)

func (state State) String() string {
	switch state {
	case StateUnconnected:
		return "unconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAwaitingSession:
		return "awaiting-session"
	case StateAttached:
		return "attached"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(state))
}

// Renderer consumes a session. All three methods are called on the
// goroutine driving the reactor.
type Renderer interface {
	// Attached reports the session id once the server has acknowledged
	// the attach. sink is valid until Closed.
	Attached(sessionID uint64, sink *InputSink)

	// Redraw receives the params of one redraw notification verbatim:
	// an array of [event-name, args...] tuples.
	Redraw(batch value.Value)

	// Closed is called exactly once. err is nil after a requested quit.
	Closed(err error)
}

// Options configures a Client.
type Options struct {
	Reactor    reactor.Reactor
	SocketPath string

	// SessionID attaches to an existing session. Zero spawns a new one
	// with Spawn.
	SessionID uint64
	Spawn     muxproto.SpawnOptions

	Renderer Renderer

	// Logger nil discards.
	Logger *slog.Logger
}

const receiveSize = 64 * 1024

const (
	tagSocket uint16 = iota + 1
	tagConnect
	tagReceive
	tagSend
	tagClose
)

// Client is one connection to the session server.
type Client struct {
	reactor    reactor.Reactor
	socketPath string
	spawn      muxproto.SpawnOptions
	renderer   Renderer
	logger     *slog.Logger

	state     State
	fd        int
	sessionID uint64
	err       error

	chunk    []byte
	buffer   []byte
	outgoing []byte
	sending  bool

	// msgids is shared with the InputSink, which issues the detach
	// request from another goroutine.
	msgids        atomic.Uint32
	quit          atomic.Bool
	pendingSpawn  uint32
	pendingAttach uint32

	highlights map[uint32]redraw.Attributes
	sink       *InputSink
}

// New creates a client. Nothing happens until Start.
func New(options Options) *Client {
	if options.Reactor == nil || options.Renderer == nil {
		panic("muxclient: Options.Reactor and Options.Renderer are required")
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		reactor:    options.Reactor,
		socketPath: options.SocketPath,
		spawn:      options.Spawn,
		renderer:   options.Renderer,
		logger:     logger,
		fd:         reactor.NoFD,
		sessionID:  options.SessionID,
		chunk:      make([]byte, receiveSize),
		highlights: make(map[uint32]redraw.Attributes),
	}
}

// Start submits the socket operation that begins connecting.
func (c *Client) Start() {
	if c.state != StateUnconnected {
		return
	}
	c.state = StateConnecting
	c.reactor.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0, reactor.Context{Handler: c, Tag: tagSocket})
}

// Run starts the client and drives the reactor until the connection has
// closed. It returns the error the connection closed with.
func (c *Client) Run() error {
	c.Start()
	if err := c.reactor.Run(); err != nil {
		return err
	}
	return c.err
}

// State returns the lifecycle state.
func (c *Client) State() State { return c.state }

// SessionID returns the session id, or zero before one is known.
func (c *Client) SessionID() uint64 { return c.sessionID }

// Highlight returns the attributes defined for id by an hl_attr_define
// event. Id zero is always the default attributes. Call it from the
// Renderer.
func (c *Client) Highlight(id uint32) (redraw.Attributes, bool) {
	if id == 0 {
		return redraw.DefaultAttributes, true
	}
	attributes, ok := c.highlights[id]
	return attributes, ok
}

// HandleCompletion implements reactor.Handler.
func (c *Client) HandleCompletion(completion reactor.Completion) {
	switch completion.Tag {
	case tagSocket:
		c.handleSocket(completion)
	case tagConnect:
		c.handleConnect(completion)
	case tagReceive:
		c.handleReceive(completion)
	case tagSend:
		c.handleSend(completion)
	case tagClose:
		c.state = StateClosed
		c.logger.Debug("connection closed", "error", c.err)
		c.renderer.Closed(c.err)
	}
}

func (c *Client) handleSocket(completion reactor.Completion) {
	if completion.Err != nil {
		c.state = StateClosed
		c.err = fmt.Errorf("creating socket: %w", completion.Err)
		c.renderer.Closed(c.err)
		return
	}
	c.fd = completion.NewFD
	c.reactor.Connect(c.fd, &unix.SockaddrUnix{Name: c.socketPath}, reactor.Context{Handler: c, Tag: tagConnect})
}

func (c *Client) handleConnect(completion reactor.Completion) {
	if completion.Err != nil {
		c.closeWith(fmt.Errorf("connecting to %s: %w", c.socketPath, completion.Err))
		return
	}
	c.state = StateConnected
	c.logger.Debug("connected", "path", c.socketPath)
	c.receive()

	c.state = StateAwaitingSession
	if c.sessionID != 0 {
		c.pendingAttach = c.request(muxproto.MethodAttachPTY, value.Uint(c.sessionID))
		return
	}
	c.pendingSpawn = c.request(muxproto.MethodSpawnPTY, c.spawn.Value())
}

func (c *Client) receive() {
	c.reactor.Recv(c.fd, c.chunk, reactor.Context{Handler: c, Tag: tagReceive})
}

func (c *Client) handleReceive(completion reactor.Completion) {
	if c.state >= StateClosing {
		return
	}
	if completion.Err != nil {
		c.closeWith(fmt.Errorf("receiving: %w", completion.Err))
		return
	}
	if completion.N == 0 {
		if c.quit.Load() {
			c.closeWith(nil)
		} else {
			c.closeWith(ErrDisconnected)
		}
		return
	}

	c.buffer = append(c.buffer, c.chunk[:completion.N]...)
	consumed := 0
	for consumed < len(c.buffer) {
		message, n, err := rpc.DecodeNext(c.buffer[consumed:])
		if errors.Is(err, rpc.ErrNeedMoreData) {
			break
		}
		if err != nil {
			c.closeWith(fmt.Errorf("decoding from server: %w", err))
			return
		}
		consumed += n
		c.dispatch(message)
		if c.state >= StateClosing {
			return
		}
	}
	remaining := copy(c.buffer, c.buffer[consumed:])
	c.buffer = c.buffer[:remaining]

	if c.quit.Load() {
		c.closeWith(nil)
		return
	}
	c.receive()
}

func (c *Client) dispatch(message rpc.Message) {
	switch message.Type {
	case rpc.TypeResponse:
		c.handleResponse(message)
	case rpc.TypeNotification:
		c.handleNotification(message)
	case rpc.TypeRequest:
		c.logger.Debug("ignoring request from server", "method", message.Method)
	}
}

func (c *Client) handleResponse(response rpc.Message) {
	switch {
	case c.pendingSpawn != 0 && response.MsgID == c.pendingSpawn:
		c.pendingSpawn = 0
		if err := response.Err(); err != nil {
			c.closeWith(fmt.Errorf("spawning session: %w", err))
			return
		}
		id, ok := response.Result.AsUint()
		if !ok || id == 0 {
			c.closeWith(fmt.Errorf("spawn_pty returned %s, want session id", response.Result))
			return
		}
		c.sessionID = id
		c.pendingAttach = c.request(muxproto.MethodAttachPTY, value.Uint(id))

	case c.pendingAttach != 0 && response.MsgID == c.pendingAttach:
		c.pendingAttach = 0
		if err := response.Err(); err != nil {
			c.closeWith(fmt.Errorf("attaching to session %d: %w", c.sessionID, err))
			return
		}
		c.state = StateAttached
		c.sink = newInputSink(reactor.NewFDWriter(c.fd), c.sessionID, &c.msgids, &c.quit)
		c.logger.Info("attached", "session", c.sessionID)
		c.renderer.Attached(c.sessionID, c.sink)

	default:
		c.logger.Debug("unmatched response", "msgid", response.MsgID, "error", response.Err())
	}
}

func (c *Client) handleNotification(notification rpc.Message) {
	switch notification.Method {
	case muxproto.NotifyRedraw:
		c.cacheHighlights(notification.Params)
		c.renderer.Redraw(notification.Params)
	case muxproto.NotifyPTYExited:
		if id, _ := notification.Arg(0).AsUint(); id == c.sessionID {
			c.closeWith(ErrSessionExited)
		}
	default:
		c.logger.Debug("ignoring notification", "method", notification.Method)
	}
}

// cacheHighlights records every hl_attr_define in a redraw batch.
func (c *Client) cacheHighlights(batch value.Value) {
	for _, tuple := range batch.Items() {
		items := tuple.Items()
		if len(items) == 0 {
			continue
		}
		if name, _ := items[0].AsString(); name != redraw.NameHighlightDefine {
			continue
		}
		for _, args := range items[1:] {
			id, ok := args.Index(0).AsUint32()
			attributes, err := redraw.ParseAttributes(args.Index(1))
			if !ok || err != nil {
				c.logger.Debug("skipping malformed highlight definition", "args", args.String())
				continue
			}
			c.highlights[id] = attributes
		}
	}
}

// request queues a request through the reactor and returns its msgid.
func (c *Client) request(method string, params ...value.Value) uint32 {
	msgid := c.msgids.Add(1)
	data, err := rpc.Encode(rpc.NewRequest(msgid, method, params...))
	if err != nil {
		c.closeWith(fmt.Errorf("encoding %s: %w", method, err))
		return msgid
	}
	c.outgoing = append(c.outgoing, data...)
	if !c.sending {
		c.sending = true
		c.reactor.Send(c.fd, c.outgoing, reactor.Context{Handler: c, Tag: tagSend})
	}
	return msgid
}

func (c *Client) handleSend(completion reactor.Completion) {
	if c.state >= StateClosing {
		return
	}
	if completion.Err != nil {
		c.closeWith(fmt.Errorf("sending: %w", completion.Err))
		return
	}
	c.outgoing = c.outgoing[completion.N:]
	if len(c.outgoing) == 0 {
		c.sending = false
		c.outgoing = nil
		return
	}
	c.reactor.Send(c.fd, c.outgoing, reactor.Context{Handler: c, Tag: tagSend})
}

// closeWith begins closing. The Renderer hears err when the close
// completes.
func (c *Client) closeWith(err error) {
	if c.state >= StateClosing {
		return
	}
	c.state = StateClosing
	c.err = err
	if c.sink != nil {
		c.sink.writer.Detach()
	}
	c.reactor.Close(c.fd, reactor.Context{Handler: c, Tag: tagClose})
}
