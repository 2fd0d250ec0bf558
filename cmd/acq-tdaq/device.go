// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/lnls-dig/wbacq/acq"
	"github.com/lnls-dig/wbacq/regmap"
	"github.com/lnls-dig/wbacq/wbtcp"
)

type device struct {
	name string
	addr string // endpoint of the ACQ core

	mu    sync.Mutex
	ctl   *acq.Controller
	cfg   acq.Acquisition
	armed bool

	n    int // number of completed acquisitions
	data chan []byte
}

func newDevice(name, addr string) *device {
	if addr == "" {
		addr = net.JoinHostPort("localhost", strconv.Itoa(wbtcp.DefaultPort))
	}
	return &device{
		name: name,
		addr: addr,
		cfg:  acq.DefaultAcquisition(),
		data: make(chan []byte, 1024),
	}
}

func (dev *device) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	return dev.configure(string(req.Body))
}

func (dev *device) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command (endpoint=%s)...", dev.addr)
	return dev.init()
}

func (dev *device) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	return dev.reset()
}

func (dev *device) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	return dev.start()
}

func (dev *device) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	err := dev.stop()
	ctx.Msg.Debugf("received /stop command... -> n=%d", dev.count())
	return err
}

func (dev *device) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return dev.quit()
}

func (dev *device) snapshot(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-dev.data:
		dst.Body = data
	}
	return nil
}

func (dev *device) run(ctx tdaq.Context) error {
	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		default:
			raw, err := dev.cycle()
			if err != nil {
				return fmt.Errorf("could not run acquisition: %w", err)
			}
			if raw != nil {
				select {
				case dev.data <- raw:
				default:
					ctx.Msg.Warnf("dropped snapshot #%d", dev.count())
				}
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// configure sets the endpoint of the core, when one is given.
func (dev *device) configure(body string) error {
	addr := strings.TrimSpace(body)
	if addr == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", addr, err)
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return fmt.Errorf("invalid endpoint port %q: %w", port, err)
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.addr = addr
	return nil
}

func (dev *device) init() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.ctl != nil {
		_ = dev.ctl.Close()
		dev.ctl = nil
	}

	host, p, err := net.SplitHostPort(dev.addr)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", dev.addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return fmt.Errorf("invalid endpoint port %q: %w", p, err)
	}

	ctl := acq.New(
		host, port,
		acq.WithLogger(log.New(io.Discard, "", 0)),
		acq.WithTimeout(5*time.Second),
	)
	err = ctl.Connect()
	if err != nil {
		return fmt.Errorf("could not connect to ACQ core: %w", err)
	}
	dev.ctl = ctl
	dev.n = 0
	dev.armed = false
	return nil
}

func (dev *device) reset() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	dev.n = 0
	dev.armed = false
drain:
	for {
		select {
		case <-dev.data:
		default:
			break drain
		}
	}
	if dev.ctl == nil {
		return nil
	}
	return dev.ctl.Stop()
}

func (dev *device) start() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.ctl == nil {
		return acq.ErrNotConnected
	}
	err := dev.ctl.Acquire(dev.cfg)
	if err != nil {
		return err
	}
	dev.armed = true
	return nil
}

func (dev *device) stop() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.ctl == nil {
		return acq.ErrNotConnected
	}
	dev.armed = false
	return dev.ctl.Stop()
}

func (dev *device) quit() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	dev.armed = false
	if dev.ctl == nil {
		return nil
	}
	// leave the simulation running for other clients.
	err := dev.ctl.Close()
	dev.ctl = nil
	return err
}

func (dev *device) count() int {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.n
}

// cycle checks the acquisition in flight.
// Once it is completed, cycle returns the registers of the core as JSON
// and starts the next acquisition.
func (dev *device) cycle() ([]byte, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if !dev.armed {
		return nil, nil
	}

	sta, err := dev.ctl.ReadSTA()
	if err != nil {
		return nil, err
	}
	if sta["FSM_ACQ_DONE"] != regmap.Sym("COMPLETED") {
		return nil, nil
	}

	snap, err := dev.ctl.ReadAll()
	if err != nil {
		return nil, err
	}
	raw, err := snap.JSON()
	if err != nil {
		return nil, fmt.Errorf("could not encode snapshot: %w", err)
	}
	dev.n++

	err = dev.ctl.Acquire(dev.cfg)
	if err != nil {
		return nil, fmt.Errorf("could not re-arm acquisition: %w", err)
	}
	return raw, nil
}
