// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package muxproto

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/bureau-mux/lib/value"
)

// Request methods.
const (
	MethodPing      = "ping"
	MethodSpawnPTY  = "spawn_pty"
	MethodAttachPTY = "attach_pty"
	MethodDetachPTY = "detach_pty"
	MethodListPTYs  = "list_ptys"
	MethodKillPTY   = "kill_pty"
)

// Notification methods.
const (
	NotifyInput     = "input"
	NotifyResize    = "resize"
	NotifyWake      = "wake"
	NotifyRedraw    = "redraw"
	NotifyPTYExited = "pty_exited"
)

// Pong is the result of ping.
const Pong = "pong"

// SpawnOptions are the optional parameters of spawn_pty. Zero fields
// take the server's defaults.
type SpawnOptions struct {
	Rows    int
	Cols    int
	Command string
	Args    []string
	Dir     string
}

// Value encodes o as a map of its non-zero fields.
func (o SpawnOptions) Value() value.Value {
	var pairs []value.Pair
	if o.Rows > 0 {
		pairs = append(pairs, value.Field("rows", value.Uint(uint64(o.Rows))))
	}
	if o.Cols > 0 {
		pairs = append(pairs, value.Field("cols", value.Uint(uint64(o.Cols))))
	}
	if o.Command != "" {
		pairs = append(pairs, value.Field("command", value.String(o.Command)))
	}
	if len(o.Args) > 0 {
		args := make([]value.Value, len(o.Args))
		for i, arg := range o.Args {
			args[i] = value.String(arg)
		}
		pairs = append(pairs, value.Field("args", value.Array(args...)))
	}
	if o.Dir != "" {
		pairs = append(pairs, value.Field("cwd", value.String(o.Dir)))
	}
	return value.Map(pairs...)
}

// ParseSpawnOptions decodes spawn_pty's first parameter. A nil value
// yields zero options; unknown keys are ignored.
func ParseSpawnOptions(v value.Value) (SpawnOptions, error) {
	var options SpawnOptions
	if v.IsNil() {
		return options, nil
	}
	if v.Kind() != value.KindMap {
		return options, fmt.Errorf("spawn options are %s, want map", v.Kind())
	}
	var err error
	if options.Rows, err = dimension(v, "rows"); err != nil {
		return options, err
	}
	if options.Cols, err = dimension(v, "cols"); err != nil {
		return options, err
	}
	if options.Command, err = optionalString(v, "command"); err != nil {
		return options, err
	}
	if options.Dir, err = optionalString(v, "cwd"); err != nil {
		return options, err
	}
	if args, ok := v.Lookup("args"); ok {
		for i, arg := range args.Items() {
			text, ok := arg.AsString()
			if !ok {
				return options, fmt.Errorf("spawn option args[%d] is %s, want string", i, arg.Kind())
			}
			options.Args = append(options.Args, text)
		}
	}
	return options, nil
}

func dimension(v value.Value, key string) (int, error) {
	field, ok := v.Lookup(key)
	if !ok {
		return 0, nil
	}
	n, ok := field.AsUint()
	if !ok || n > 0xffff {
		return 0, fmt.Errorf("%s must be an integer between 0 and 65535", key)
	}
	return int(n), nil
}

func optionalString(v value.Value, key string) (string, error) {
	field, ok := v.Lookup(key)
	if !ok {
		return "", nil
	}
	text, ok := field.AsString()
	if !ok {
		return "", fmt.Errorf("%s is %s, want string", key, field.Kind())
	}
	return text, nil
}

// ParseSize decodes resize params [rows, cols].
func ParseSize(params value.Value) (rows, cols int, err error) {
	if params.Len() != 2 {
		return 0, 0, fmt.Errorf("resize wants [rows, cols], got %d params", params.Len())
	}
	r, rowsOK := params.Index(0).AsUint()
	c, colsOK := params.Index(1).AsUint()
	if !rowsOK || !colsOK || r == 0 || c == 0 || r > 0xffff || c > 0xffff {
		return 0, 0, fmt.Errorf("resize dimensions %s out of range", params)
	}
	return int(r), int(c), nil
}

// SessionInfo is one element of list_ptys's result.
type SessionInfo struct {
	ID        uint64
	PID       int
	Rows      int
	Cols      int
	Clients   int
	Command   string
	StartedAt time.Time
}

// Value encodes i as a map. StartedAt is sent as Unix seconds.
func (i SessionInfo) Value() value.Value {
	return value.Map(
		value.Field("id", value.Uint(i.ID)),
		value.Field("pid", value.Int(int64(i.PID))),
		value.Field("rows", value.Uint(uint64(i.Rows))),
		value.Field("cols", value.Uint(uint64(i.Cols))),
		value.Field("clients", value.Uint(uint64(i.Clients))),
		value.Field("command", value.String(i.Command)),
		value.Field("started_at", value.Int(i.StartedAt.Unix())),
	)
}

// ParseSessionInfo decodes one list_ptys element.
func ParseSessionInfo(v value.Value) (SessionInfo, error) {
	if v.Kind() != value.KindMap {
		return SessionInfo{}, fmt.Errorf("session info is %s, want map", v.Kind())
	}
	var info SessionInfo
	field := func(key string) value.Value {
		found, _ := v.Lookup(key)
		return found
	}
	id, ok := field("id").AsUint()
	if !ok {
		return SessionInfo{}, fmt.Errorf("session info has no id")
	}
	info.ID = id
	if pid, ok := field("pid").AsInt(); ok {
		info.PID = int(pid)
	}
	if rows, ok := field("rows").AsUint(); ok {
		info.Rows = int(rows)
	}
	if cols, ok := field("cols").AsUint(); ok {
		info.Cols = int(cols)
	}
	if clients, ok := field("clients").AsUint(); ok {
		info.Clients = int(clients)
	}
	info.Command, _ = field("command").AsString()
	if started, ok := field("started_at").AsInt(); ok {
		info.StartedAt = time.Unix(started, 0)
	}
	return info, nil
}
