// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wbtcp implements the line-based text protocol used to access
// the Wishbone bus of a simulated gateware over TCP.
//
// One command is sent per line; numbers are hexadecimal without a 0x
// prefix:
//
//	read <addr>           reply: <data>
//	write <addr> <data>   no reply
//	wait_event            reply: event <name>
//	debug                 no reply
//	disconnect            no reply, the peer closes the connection
//	exit                  no reply, the peer terminates
package wbtcp // import "github.com/lnls-dig/wbacq/wbtcp"

import (
	"errors"
	"fmt"
	"log"
	"time"
)

// DefaultPort is the TCP port the simulation peer listens on by default.
const DefaultPort = 10022

// ErrTimeout is matched by transport errors caused by an expired read deadline.
var ErrTimeout = errors.New("wbtcp: timeout")

// TransportError reports a failure of the underlying connection.
// Once a client hits a transport error, it is unusable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("wbtcp: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a reply line that could not be understood.
type ProtocolError struct {
	Op   string
	Line string
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("wbtcp: %s: invalid reply %q", e.Op, e.Line)
	}
	return fmt.Sprintf("wbtcp: %s: invalid reply %q: %v", e.Op, e.Line, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

type config struct {
	timeout time.Duration
	msg     *log.Logger
}

// Option configures a Client or a Server.
type Option func(*config)

// WithTimeout bounds the time a client waits for a reply line.
// A zero duration (the default) waits forever.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.timeout = d
	}
}

// WithLogger sets the logger of a server.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

func newConfig(opts []Option) config {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
