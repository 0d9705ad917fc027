// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package muxserver

import "github.com/bureau-foundation/bureau-mux/lib/reactor"

// outbox serializes sends on one descriptor: one buffer in flight, the
// rest queued FIFO.
type outbox struct {
	fd       int
	context  reactor.Context
	busy     bool
	inFlight []byte
	queue    [][]byte
}

func newOutbox(fd int, context reactor.Context) outbox {
	return outbox{fd: fd, context: context}
}

// push sends data now if nothing is in flight, otherwise queues it.
func (o *outbox) push(r reactor.Reactor, data []byte) {
	if len(data) == 0 {
		return
	}
	if o.busy {
		o.queue = append(o.queue, data)
		return
	}
	o.busy = true
	o.inFlight = data
	r.Send(o.fd, data, o.context)
}

// sent accounts for a completed send of n bytes and submits the next
// one: the unsent remainder first, then the oldest queued buffer.
func (o *outbox) sent(r reactor.Reactor, n int) {
	o.inFlight = o.inFlight[n:]
	if len(o.inFlight) == 0 {
		if len(o.queue) == 0 {
			o.busy = false
			o.inFlight = nil
			return
		}
		o.inFlight = o.queue[0]
		o.queue[0] = nil
		o.queue = o.queue[1:]
	}
	r.Send(o.fd, o.inFlight, o.context)
}

// queued returns the number of buffers waiting behind the one in
// flight.
func (o *outbox) queued() int { return len(o.queue) }

func (o *outbox) drop() {
	o.busy = false
	o.inFlight = nil
	o.queue = nil
}
