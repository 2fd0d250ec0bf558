// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package acq drives the data-acquisition core of a simulated gateware
// through its Wishbone register map.
//
// Structured registers are updated with read-modify-write cycles.
// These cycles are not atomic with respect to the core: a change the
// core makes between the read and the write is lost.
package acq // import "github.com/lnls-dig/wbacq/acq"

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/lnls-dig/wbacq/regmap"
	"github.com/lnls-dig/wbacq/wbtcp"
)

var (
	// ErrNotConnected is returned by operations issued before Connect or
	// after Finish.
	ErrNotConnected = errors.New("acq: not connected")

	// ErrReadOnly is returned when writing to a read-only register.
	ErrReadOnly = errors.New("acq: read-only register")

	// ErrWriteMismatch is returned, when writes are verified, if the core
	// does not hold the word just written.
	ErrWriteMismatch = errors.New("acq: write mismatch")
)

type config struct {
	msg     *log.Logger
	timeout time.Duration
	verify  bool
}

// Option configures a Controller.
type Option func(*config)

// WithLogger sets the logger of the controller.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithTimeout bounds the time spent waiting for each reply of the core.
// By default, the controller waits forever.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.timeout = d
	}
}

// WithVerify enables reading back every written word.
// Monostable registers are never verified.
func WithVerify(v bool) Option {
	return func(cfg *config) {
		cfg.verify = v
	}
}

// Controller drives one acquisition core over one connection.
// A Controller is not safe for concurrent use.
type Controller struct {
	addr string
	cfg  config
	msg  *log.Logger

	cli *wbtcp.Client
}

// New returns a controller for the core served at host:port.
// No connection is made until Connect.
func New(host string, port int, opts ...Option) *Controller {
	cfg := config{
		msg: log.New(os.Stdout, "acq: ", 0),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Controller{
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		cfg:  cfg,
		msg:  cfg.msg,
	}
}

// Addr returns the address of the core.
func (ctl *Controller) Addr() string { return ctl.addr }

// Connect establishes the connection to the core.
func (ctl *Controller) Connect() error {
	if ctl.cli != nil {
		return fmt.Errorf("acq: already connected to %s", ctl.addr)
	}

	var opts []wbtcp.Option
	if ctl.cfg.timeout > 0 {
		opts = append(opts, wbtcp.WithTimeout(ctl.cfg.timeout))
	}

	cli, err := wbtcp.Dial(ctl.addr, opts...)
	if err != nil {
		return fmt.Errorf("acq: could not connect to %s: %w", ctl.addr, err)
	}
	ctl.cli = cli
	ctl.msg.Printf("connected to %s", ctl.addr)
	return nil
}

// Finish ends the simulation session and closes the connection.
// The connection is closed even when the session could not be ended.
func (ctl *Controller) Finish() error {
	if ctl.cli == nil {
		return ErrNotConnected
	}
	cli := ctl.cli
	ctl.cli = nil

	err := cli.Exit()
	cerr := cli.Close()
	if err != nil {
		return fmt.Errorf("acq: could not end simulation: %w", err)
	}
	if cerr != nil {
		return fmt.Errorf("acq: could not close connection to %s: %w", ctl.addr, cerr)
	}
	return nil
}

// Close closes the connection without ending the simulation session.
func (ctl *Controller) Close() error {
	if ctl.cli == nil {
		return nil
	}
	cli := ctl.cli
	ctl.cli = nil

	err := cli.Close()
	if err != nil {
		return fmt.Errorf("acq: could not close connection to %s: %w", ctl.addr, err)
	}
	return nil
}

// WaitEvent blocks until the core signals an event and returns its name.
func (ctl *Controller) WaitEvent() (string, error) {
	if ctl.cli == nil {
		return "", ErrNotConnected
	}
	evt, err := ctl.cli.WaitEvent()
	if err != nil {
		return "", fmt.Errorf("acq: could not wait for event: %w", err)
	}
	return evt, nil
}

// ReadRaw returns the word at addr.
func (ctl *Controller) ReadRaw(addr uint32) (uint32, error) {
	return ctl.readWord(addr)
}

// WriteRaw writes v at addr.
func (ctl *Controller) WriteRaw(addr, v uint32) error {
	return ctl.writeWord(addr, v)
}

// Read decodes the structured register named name.
func (ctl *Controller) Read(name string) (regmap.Fields, error) {
	reg, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("acq: unknown register %q", name)
	}
	return ctl.readReg(reg)
}

// Write applies changes to the structured register named name.
func (ctl *Controller) Write(name string, changes regmap.Fields) error {
	reg, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("acq: unknown register %q", name)
	}
	return ctl.writeReg(reg, changes)
}

func (ctl *Controller) readWord(addr uint32) (uint32, error) {
	if ctl.cli == nil {
		return 0, ErrNotConnected
	}
	v, err := ctl.cli.Read(addr)
	if err != nil {
		return 0, fmt.Errorf("acq: could not read 0x%08x: %w", addr, err)
	}
	return v, nil
}

func (ctl *Controller) writeWord(addr, v uint32) error {
	if ctl.cli == nil {
		return ErrNotConnected
	}
	err := ctl.cli.Write(addr, v)
	if err != nil {
		return fmt.Errorf("acq: could not write 0x%08x at 0x%08x: %w", v, addr, err)
	}

	if !ctl.cfg.verify || volatile[addr] {
		return nil
	}

	got, err := ctl.cli.Read(addr)
	if err != nil {
		return fmt.Errorf("acq: could not verify write at 0x%08x: %w", addr, err)
	}
	if got != v {
		return fmt.Errorf(
			"acq: wrote 0x%08x at 0x%08x, read back 0x%08x: %w",
			v, addr, got, ErrWriteMismatch,
		)
	}
	return nil
}

func (ctl *Controller) readReg(reg *regmap.Register) (regmap.Fields, error) {
	word, err := ctl.readWord(reg.Addr())
	if err != nil {
		return nil, err
	}
	fields, err := reg.Read(word)
	if err != nil {
		return nil, fmt.Errorf("acq: could not decode %s=0x%08x: %w", reg.Name(), word, err)
	}
	return fields, nil
}

func (ctl *Controller) writeReg(reg *regmap.Register, changes regmap.Fields) error {
	if readOnly[reg.Name()] {
		return fmt.Errorf("acq: could not write %s: %w", reg.Name(), ErrReadOnly)
	}

	word, err := ctl.readWord(reg.Addr())
	if err != nil {
		return err
	}
	word, err = reg.Modify(word, changes)
	if err != nil {
		return fmt.Errorf("acq: could not encode %s: %w", reg.Name(), err)
	}
	return ctl.writeWord(reg.Addr(), word)
}

// ReadCTL decodes the control register.
func (ctl *Controller) ReadCTL() (regmap.Fields, error) { return ctl.readReg(CTL) }

// WriteCTL applies changes to the control register.
func (ctl *Controller) WriteCTL(changes regmap.Fields) error { return ctl.writeReg(CTL, changes) }

// ReadSTA decodes the status register.
func (ctl *Controller) ReadSTA() (regmap.Fields, error) { return ctl.readReg(STA) }

func (ctl *Controller) ReadTrigCfg() (regmap.Fields, error) { return ctl.readReg(TrigCfg) }

func (ctl *Controller) WriteTrigCfg(changes regmap.Fields) error {
	return ctl.writeReg(TrigCfg, changes)
}

func (ctl *Controller) ReadTrigDataCfg() (regmap.Fields, error) { return ctl.readReg(TrigDataCfg) }

func (ctl *Controller) WriteTrigDataCfg(changes regmap.Fields) error {
	return ctl.writeReg(TrigDataCfg, changes)
}

func (ctl *Controller) ReadShots() (regmap.Fields, error) { return ctl.readReg(Shots) }

func (ctl *Controller) WriteShots(changes regmap.Fields) error {
	return ctl.writeReg(Shots, changes)
}

func (ctl *Controller) ReadAcqChanCtl() (regmap.Fields, error) { return ctl.readReg(AcqChanCtl) }

func (ctl *Controller) WriteAcqChanCtl(changes regmap.Fields) error {
	return ctl.writeReg(AcqChanCtl, changes)
}

func (ctl *Controller) ReadTrigDataThres() (uint32, error) { return ctl.readWord(AddrTrigDataThres) }
func (ctl *Controller) WriteTrigDataThres(v uint32) error  { return ctl.writeWord(AddrTrigDataThres, v) }

func (ctl *Controller) ReadTrigDly() (uint32, error) { return ctl.readWord(AddrTrigDly) }
func (ctl *Controller) WriteTrigDly(v uint32) error  { return ctl.writeWord(AddrTrigDly, v) }

// SendSWTrig fires the software trigger.
// It has no effect unless TRIG_CFG.SW_TRIG_EN is enabled.
func (ctl *Controller) SendSWTrig() error { return ctl.writeWord(AddrSWTrig, 0x1) }

func (ctl *Controller) ReadTrigPos() (uint32, error) { return ctl.readWord(AddrTrigPos) }

func (ctl *Controller) ReadPreSamples() (uint32, error) { return ctl.readWord(AddrPreSamples) }
func (ctl *Controller) WritePreSamples(v uint32) error  { return ctl.writeWord(AddrPreSamples, v) }

func (ctl *Controller) ReadPostSamples() (uint32, error) { return ctl.readWord(AddrPostSamples) }
func (ctl *Controller) WritePostSamples(v uint32) error  { return ctl.writeWord(AddrPostSamples, v) }

func (ctl *Controller) ReadSamplesCnt() (uint32, error) { return ctl.readWord(AddrSamplesCnt) }

func (ctl *Controller) ReadDDR3StartAddr() (uint32, error) { return ctl.readWord(AddrDDR3StartAddr) }
func (ctl *Controller) WriteDDR3StartAddr(v uint32) error  { return ctl.writeWord(AddrDDR3StartAddr, v) }

func (ctl *Controller) ReadDDR3EndAddr() (uint32, error) { return ctl.readWord(AddrDDR3EndAddr) }
func (ctl *Controller) WriteDDR3EndAddr(v uint32) error  { return ctl.writeWord(AddrDDR3EndAddr, v) }

// ReadChannelDesc reads the descriptor of channel ch.
// The CH_DESC and CH_ATOM_DESC fields are merged into one set.
func (ctl *Controller) ReadChannelDesc(ch int) (regmap.Fields, error) {
	if ch < 0 || ch >= MaxChannels {
		return nil, fmt.Errorf("acq: invalid channel %d", ch)
	}

	offset := ChannelAddr(0, ch)
	desc, err := ctl.readReg(ChDesc.At(offset))
	if err != nil {
		return nil, fmt.Errorf("acq: could not read channel %d descriptor: %w", ch, err)
	}
	atom, err := ctl.readReg(ChAtomDesc.At(offset))
	if err != nil {
		return nil, fmt.Errorf("acq: could not read channel %d atom descriptor: %w", ch, err)
	}

	for k, v := range atom {
		if _, dup := desc[k]; dup {
			return nil, fmt.Errorf("acq: channel %d descriptors both define %s", ch, k)
		}
		desc[k] = v
	}
	return desc, nil
}
