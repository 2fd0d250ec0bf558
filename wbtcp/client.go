// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wbtcp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client issues commands to a peer over one connection.
// A Client is not safe for concurrent use.
type Client struct {
	rwc io.ReadWriteCloser
	r   *bufio.Reader
	cfg config

	err error // sticky transport error
}

// Dial connects to the peer listening at addr.
func Dial(addr string, opts ...Option) (*Client, error) {
	cfg := newConfig(opts)

	var (
		conn net.Conn
		err  error
	)
	switch {
	case cfg.timeout > 0:
		conn, err = net.DialTimeout("tcp", addr, cfg.timeout)
	default:
		conn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return nil, &TransportError{Op: "dial " + addr, Err: err}
	}
	return NewClient(conn, opts...), nil
}

// NewClient returns a client talking over rwc.
// The client owns rwc and closes it on Close.
func NewClient(rwc io.ReadWriteCloser, opts ...Option) *Client {
	return &Client{
		rwc: rwc,
		r:   bufio.NewReader(rwc),
		cfg: newConfig(opts),
	}
}

// Read returns the 32-bit word at addr.
func (c *Client) Read(addr uint32) (uint32, error) {
	op := fmt.Sprintf("read 0x%08x", addr)
	err := c.send(op, fmt.Sprintf("read %08x\n", addr))
	if err != nil {
		return 0, err
	}

	line, err := c.readLine(op)
	if err != nil {
		return 0, err
	}
	if line == "" {
		return 0, &ProtocolError{Op: op, Line: line}
	}

	v, err := strconv.ParseUint(line, 16, 32)
	if err != nil {
		return 0, &ProtocolError{Op: op, Line: line, Err: err}
	}
	return uint32(v), nil
}

// Write sends a write of v at addr.
// The protocol carries no acknowledgement: Write returns once the command
// is handed to the connection, not when the peer has applied it.
func (c *Client) Write(addr, v uint32) error {
	return c.send(
		fmt.Sprintf("write 0x%08x", addr),
		fmt.Sprintf("write %08x %08x\n", addr, v),
	)
}

// WaitEvent blocks until the peer signals an event and returns its name.
func (c *Client) WaitEvent() (string, error) {
	const op = "wait_event"
	err := c.send(op, "wait_event\n")
	if err != nil {
		return "", err
	}

	line, err := c.readLine(op)
	if err != nil {
		return "", err
	}
	name := strings.TrimPrefix(line, "event ")
	if name == line || name == "" {
		return "", &ProtocolError{Op: op, Line: line}
	}
	return name, nil
}

// Debug asks the peer to print its internal state.
func (c *Client) Debug() error {
	return c.send("debug", "debug\n")
}

// Disconnect asks the peer to drop the connection, then closes it.
func (c *Client) Disconnect() error {
	err := c.send("disconnect", "disconnect\n")
	if err != nil {
		_ = c.rwc.Close()
		return err
	}
	return c.Close()
}

// Exit asks the peer to terminate the simulation.
// Exit does not wait for the peer to shut down.
func (c *Client) Exit() error {
	return c.send("exit", "exit\n")
}

// Close closes the connection.
func (c *Client) Close() error {
	err := c.rwc.Close()
	if err != nil {
		return &TransportError{Op: "close", Err: err}
	}
	return nil
}

func (c *Client) send(op, cmd string) error {
	if c.err != nil {
		return c.err
	}
	_, err := io.WriteString(c.rwc, cmd)
	if err != nil {
		c.err = &TransportError{Op: op, Err: err}
		return c.err
	}
	return nil
}

func (c *Client) readLine(op string) (string, error) {
	if c.err != nil {
		return "", c.err
	}

	if conn, ok := c.rwc.(interface{ SetReadDeadline(time.Time) error }); ok && c.cfg.timeout > 0 {
		err := conn.SetReadDeadline(time.Now().Add(c.cfg.timeout))
		if err != nil {
			c.err = &TransportError{Op: op, Err: err}
			return "", c.err
		}
	}

	line, err := c.r.ReadString('\n')
	if err != nil {
		switch {
		case errors.Is(err, os.ErrDeadlineExceeded):
			err = fmt.Errorf("%w: no reply after %v", ErrTimeout, c.cfg.timeout)
		case errors.Is(err, io.EOF):
			err = io.ErrUnexpectedEOF
		}
		c.err = &TransportError{Op: op, Err: err}
		return "", c.err
	}
	return strings.Trim(line, " \r\n"), nil
}
