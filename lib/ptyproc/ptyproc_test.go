// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ptyproc

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/bureau-mux/lib/testutil"
	"golang.org/x/sys/unix"
)

// readAll reads the master until the child side closes, which Linux
// reports as EIO.
func readAll(t *testing.T, fd int) string {
	t.Helper()
	var output strings.Builder
	buffer := make([]byte, 1024)
	deadline := time.Now().Add(5 * time.Second) //nolint:realclock test hang prevention
	for time.Now().Before(deadline) {           //nolint:realclock test hang prevention
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		if _, err := unix.Poll(fds, 100); err != nil && !errors.Is(err, unix.EINTR) {
			t.Fatalf("poll: %v", err)
		}
		n, err := unix.Read(fd, buffer)
		if n > 0 {
			output.Write(buffer[:n])
		}
		switch {
		case err == nil && n == 0:
			return output.String()
		case errors.Is(err, unix.EIO):
			return output.String()
		case err != nil && !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EINTR):
			t.Fatalf("read: %v", err)
		}
	}
	t.Fatalf("timed out reading pty; got %q", output.String())
	return ""
}

func spawn(t *testing.T, options Options) Process {
	t.Helper()
	process, err := PTYSpawner{}.Spawn(options)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	t.Cleanup(func() {
		process.Release()
		unix.Close(process.FD())
	})
	return process
}

func TestSpawnOutputAndExitCode(t *testing.T) {
	process := spawn(t, Options{
		Command: "/bin/sh",
		Args:    []string{"-c", "printf 'hello from pty'; exit 3"},
		Rows:    24,
		Columns: 80,
	})
	if process.PID() <= 0 {
		t.Errorf("PID = %d", process.PID())
	}

	flags, err := unix.FcntlInt(uintptr(process.FD()), unix.F_GETFL, 0)
	if err != nil {
		t.Fatalf("F_GETFL: %v", err)
	}
	if flags&unix.O_NONBLOCK == 0 {
		t.Error("master descriptor is blocking")
	}

	if output := readAll(t, process.FD()); !strings.Contains(output, "hello from pty") {
		t.Errorf("output = %q", output)
	}

	exitCode := make(chan int, 1)
	go func() {
		code, err := process.Wait()
		if err != nil {
			t.Errorf("Wait: %v", err)
		}
		exitCode <- code
	}()
	if code := testutil.RequireReceive(t, exitCode, 5*time.Second, "child exit"); code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestSpawnWindowSizeAndEnvironment(t *testing.T) {
	process := spawn(t, Options{
		Command: "/bin/sh",
		Args:    []string{"-c", "stty size; printf '%s %s' \"$TERM\" \"$MUX_TEST\""},
		Env:     []string{"MUX_TEST=present"},
		Rows:    30,
		Columns: 100,
	})
	output := readAll(t, process.FD())
	if !strings.Contains(output, "30 100") {
		t.Errorf("output %q does not report 30 100", output)
	}
	if !strings.Contains(output, "xterm-256color present") {
		t.Errorf("output %q lacks TERM and extra environment", output)
	}
	process.Wait()
}

func TestResize(t *testing.T) {
	process := spawn(t, Options{Command: "/bin/sh", Args: []string{"-c", "read line; stty size"}, Rows: 10, Columns: 20})
	if err := process.Resize(40, 120); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if _, err := unix.Write(process.FD(), []byte("\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if output := readAll(t, process.FD()); !strings.Contains(output, "40 120") {
		t.Errorf("output %q does not report 40 120", output)
	}
	process.Wait()
}

func TestSpawnEmptyCommand(t *testing.T) {
	if _, err := (PTYSpawner{}).Spawn(Options{}); err == nil {
		t.Error("Spawn with no command succeeded")
	}
}
