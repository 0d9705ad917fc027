// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ptyproc starts child processes on pseudo-terminals for the
// session server.
//
// The master side is handed to the caller as a non-blocking descriptor
// suitable for a reactor: the caller reads and writes it and eventually
// closes it. The Process keeps its own reference to the master for
// window-size ioctls until Release.
package ptyproc

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// Options describes the child to start.
type Options struct {
	// Command is the program to run. Args follow it.
	Command string
	Args    []string

	// Dir is the working directory. Empty inherits the server's.
	Dir string

	// Env entries are appended to the server's environment.
	Env []string

	Rows    int
	Columns int
}

// Process is a child running on a PTY.
type Process interface {
	// FD is the non-blocking master descriptor. The caller owns it.
	FD() int

	PID() int

	// Resize sets the terminal window size, which delivers SIGWINCH to
	// the child's foreground process group.
	Resize(rows, columns int) error

	Signal(signal syscall.Signal) error

	// Wait blocks until the child exits and returns its exit code. A
	// child killed by a signal reports -1.
	Wait() (int, error)

	// Release drops the process's own master reference. It does not
	// close FD.
	Release() error
}

// Spawner starts processes. The server takes a Spawner so tests can
// substitute one that never forks.
type Spawner interface {
	Spawn(options Options) (Process, error)
}

// PTYSpawner starts real processes with github.com/creack/pty.
type PTYSpawner struct {
	// Term is exported to children as TERM. Empty means
	// xterm-256color.
	Term string
}

func (spawner PTYSpawner) Spawn(options Options) (Process, error) {
	if options.Command == "" {
		return nil, errors.New("ptyproc: empty command")
	}
	term := spawner.Term
	if term == "" {
		term = "xterm-256color"
	}

	command := exec.Command(options.Command, options.Args...)
	command.Dir = options.Dir
	command.Env = append(append(os.Environ(), "TERM="+term), options.Env...)

	master, err := pty.StartWithSize(command, &pty.Winsize{
		Rows: uint16(max(options.Rows, 1)),
		Cols: uint16(max(options.Columns, 1)),
	})
	if err != nil {
		return nil, fmt.Errorf("starting %s on a pty: %w", options.Command, err)
	}

	// The reactor gets its own descriptor for the same open file
	// description, so closing it never invalidates master and vice
	// versa. O_NONBLOCK lives on the description and applies to both.
	fd, err := unix.FcntlInt(master.Fd(), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		master.Close()
		command.Process.Kill()
		command.Wait()
		return nil, fmt.Errorf("duplicating pty master: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		master.Close()
		command.Process.Kill()
		command.Wait()
		return nil, fmt.Errorf("setting pty master non-blocking: %w", err)
	}

	return &process{command: command, master: master, fd: fd}, nil
}

type process struct {
	command *exec.Cmd
	master  *os.File
	fd      int
}

func (p *process) FD() int { return p.fd }

func (p *process) PID() int { return p.command.Process.Pid }

func (p *process) Resize(rows, columns int) error {
	return pty.Setsize(p.master, &pty.Winsize{
		Rows: uint16(max(rows, 1)),
		Cols: uint16(max(columns, 1)),
	})
}

func (p *process) Signal(signal syscall.Signal) error {
	return p.command.Process.Signal(signal)
}

func (p *process) Wait() (int, error) {
	err := p.command.Wait()
	if p.command.ProcessState == nil {
		return -1, err
	}
	var exitError *exec.ExitError
	if err != nil && !errors.As(err, &exitError) {
		return -1, err
	}
	return p.command.ProcessState.ExitCode(), nil
}

func (p *process) Release() error {
	return p.master.Close()
}
