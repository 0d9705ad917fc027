// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// listenBacklog matches the kernel default somaxconn on most
// distributions.
const listenBacklog = 128

// ListenUnix creates a non-blocking Unix stream socket bound to path
// and listening. The path must not exist.
func ListenUnix(path string) (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return NoFD, fmt.Errorf("creating listener socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return NoFD, fmt.Errorf("binding %s: %w", path, err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return NoFD, fmt.Errorf("listening on %s: %w", path, err)
	}
	return fd, nil
}

// FDWriter is a blocking io.Writer over a non-blocking descriptor. It
// lets a goroutine other than the loop's write to a connection the
// loop also reads from, without touching any reactor state. Writes are
// serialized so concurrent messages never interleave.
//
// The owner calls Detach before closing the descriptor, so a late Write
// fails with ErrClosed instead of reaching a reused descriptor number.
type FDWriter struct {
	mu       sync.Mutex
	fd       int
	detached atomic.Bool
}

// detachPollInterval bounds how long Detach waits for a Write blocked
// on a peer that is not reading.
const detachPollInterval = 100 * time.Millisecond

// NewFDWriter returns a writer for fd. The caller keeps ownership of
// fd.
func NewFDWriter(fd int) *FDWriter {
	return &FDWriter{fd: fd}
}

// Write writes all of data, polling for writability whenever the
// descriptor would block.
func (w *FDWriter) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fd == NoFD {
		return 0, ErrClosed
	}

	written := 0
	for written < len(data) {
		n, err := unix.Write(w.fd, data[written:])
		if n > 0 {
			written += n
		}
		switch {
		case err == nil:
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			if err := w.waitWritable(); err != nil {
				return written, err
			}
		default:
			return written, translateErrno(OpSend, err)
		}
	}
	return written, nil
}

// Detach stops the writer from using its descriptor. It waits for a
// Write in progress to return; one blocked on writability gives up
// within detachPollInterval.
func (w *FDWriter) Detach() {
	w.detached.Store(true)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fd = NoFD
}

func (w *FDWriter) waitWritable() error {
	fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLOUT}}
	for {
		if w.detached.Load() {
			return ErrClosed
		}
		ready, err := unix.Poll(fds, int(detachPollInterval.Milliseconds()))
		if errors.Is(err, unix.EINTR) || (err == nil && ready == 0) {
			continue
		}
		if err != nil {
			return fmt.Errorf("polling fd %d: %w", w.fd, err)
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return ErrClosed
		}
		return nil
	}
}
