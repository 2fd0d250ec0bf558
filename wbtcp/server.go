// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wbtcp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Handler gives a server access to a bus.
type Handler interface {
	ReadWord(addr uint32) uint32
	WriteWord(addr, data uint32)
}

// EventWaiter is implemented by handlers able to signal events.
// WaitEvent blocks until an event occurs and returns its name.
type EventWaiter interface {
	WaitEvent() string
}

// Server is the peer side of the protocol.
// It serves one connection at a time, until a client sends exit.
type Server struct {
	l   net.Listener
	h   Handler
	msg *log.Logger

	mu   sync.Mutex
	conn net.Conn // connection being served

	// last decoded address and data, printed by the debug command.
	addr uint32
	data uint32
}

// NewServer listens on addr and returns a server dispatching bus accesses to h.
func NewServer(addr string, h Handler, opts ...Option) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("wbtcp: could not listen on %q: %w", addr, err)
	}

	cfg := newConfig(opts)
	if cfg.msg == nil {
		cfg.msg = log.New(os.Stdout, "wbtcp: ", 0)
	}

	return &Server{l: l, h: h, msg: cfg.msg}, nil
}

// Addr returns the address the server listens on.
func (srv *Server) Addr() net.Addr { return srv.l.Addr() }

// Serve accepts and serves connections until a client sends exit or the
// server is closed.
func (srv *Server) Serve() error {
	defer srv.l.Close()

	for {
		conn, err := srv.l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("wbtcp: could not accept connection: %w", err)
		}

		exit, err := srv.handle(conn)
		if err != nil {
			srv.msg.Printf("could not serve %v: %+v", conn.RemoteAddr(), err)
		}
		if exit {
			srv.msg.Printf("exit simulation")
			return nil
		}
	}
}

// Close stops the server and drops the connection being served.
func (srv *Server) Close() error {
	srv.mu.Lock()
	conn := srv.conn
	srv.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	return srv.l.Close()
}

func (srv *Server) handle(conn net.Conn) (exit bool, err error) {
	srv.mu.Lock()
	srv.conn = conn
	srv.mu.Unlock()
	defer func() {
		srv.mu.Lock()
		srv.conn = nil
		srv.mu.Unlock()
		conn.Close()
	}()

	srv.msg.Printf("connected %v", conn.RemoteAddr())
	r := bufio.NewReader(conn)
	for {
		line, rerr := r.ReadString('\n')
		if line != "" {
			cmd, err := parseCommand(line)
			if err != nil {
				srv.msg.Printf("parsing error: %+v", err)
			} else {
				quit, err := srv.exec(conn, cmd)
				if err != nil {
					return false, err
				}
				if quit {
					return cmd.op == opExit, nil
				}
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) || errors.Is(rerr, net.ErrClosed) {
				srv.msg.Printf("client disconnected")
				return false, nil
			}
			return false, fmt.Errorf("wbtcp: could not read command: %w", rerr)
		}
	}
}

// exec runs cmd and reports whether the connection must be dropped.
func (srv *Server) exec(w io.Writer, cmd command) (bool, error) {
	switch cmd.op {
	case opRead:
		srv.addr = cmd.addr
		srv.data = srv.h.ReadWord(cmd.addr)
		_, err := fmt.Fprintf(w, "%08x\n", srv.data)
		if err != nil {
			return false, fmt.Errorf("wbtcp: could not send data read from 0x%08x: %w", cmd.addr, err)
		}
	case opWrite:
		srv.addr = cmd.addr
		srv.data = cmd.data
		srv.h.WriteWord(cmd.addr, cmd.data)
	case opWaitEvent:
		name := "none"
		if ew, ok := srv.h.(EventWaiter); ok {
			name = ew.WaitEvent()
		}
		_, err := fmt.Fprintf(w, "event %s\n", name)
		if err != nil {
			return false, fmt.Errorf("wbtcp: could not send event %q: %w", name, err)
		}
	case opDebug:
		srv.msg.Printf("address: 0x%08x", srv.addr)
		srv.msg.Printf("data:    0x%08x", srv.data)
	case opDisconnect, opExit:
		return true, nil
	}
	return false, nil
}

type opcode uint8

const (
	opRead opcode = iota
	opWrite
	opWaitEvent
	opDebug
	opDisconnect
	opExit
)

type command struct {
	op   opcode
	addr uint32
	data uint32
}

// parseCommand decodes one command line.
// Arguments are separated by exactly one space.
func parseCommand(line string) (command, error) {
	var (
		cmd  command
		err  error
		args = strings.Split(strings.Trim(line, " \r\n"), " ")
	)

	arity := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("wbtcp: %s expects %d argument(s), got %d", args[0], n-1, len(args)-1)
		}
		return nil
	}

	switch args[0] {
	case "read":
		cmd.op = opRead
		if err = arity(2); err != nil {
			return cmd, err
		}
		cmd.addr, err = parseHex(args[1])
	case "write":
		cmd.op = opWrite
		if err = arity(3); err != nil {
			return cmd, err
		}
		cmd.addr, err = parseHex(args[1])
		if err == nil {
			cmd.data, err = parseHex(args[2])
		}
	case "wait_event":
		cmd.op = opWaitEvent
	case "debug":
		cmd.op = opDebug
	case "disconnect":
		cmd.op = opDisconnect
	case "exit":
		cmd.op = opExit
	default:
		return cmd, fmt.Errorf("wbtcp: unknown command %q", strings.TrimRight(line, "\r\n"))
	}
	return cmd, err
}

func parseHex(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("wbtcp: invalid hexadecimal word %q: %w", s, err)
	}
	return uint32(v), nil
}
