// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package acqsim models the register file of the acquisition core.
//
// The model is cycle-free: the acquisition FSM advances by one state on
// every bus access, and the acquired samples are not stored.
//
//	IDLE -> PRE_TRIG -> WAIT_TRIG -> POST_TRIG -> DECR_SHOT -> IDLE
//
// WAIT_TRIG is skipped for immediate acquisitions and only left when the
// software trigger is fired. DECR_SHOT loops back to PRE_TRIG until all
// the requested shots are acquired.
package acqsim // import "github.com/lnls-dig/wbacq/acqsim"

import (
	"fmt"
	"sync"

	"github.com/lnls-dig/wbacq/acq"
	"github.com/lnls-dig/wbacq/regmap"
)

// Event names returned by WaitEvent.
const (
	EventTrigger = "trigger"
	EventAcqDone = "acq_done"
	EventNone    = "none"
)

const multishotRAMSize = 2048

// Channel describes one acquisition channel.
type Channel struct {
	IntWidth    uint16
	NumCoalesce uint16
	NumAtoms    uint16
	AtomWidth   uint16
}

// DefaultChannels returns the channel layout used when none is given.
func DefaultChannels() []Channel {
	return []Channel{
		{IntWidth: 64, NumCoalesce: 4, NumAtoms: 4, AtomWidth: 16},  // adc
		{IntWidth: 128, NumCoalesce: 4, NumAtoms: 4, AtomWidth: 32}, // tbt
		{IntWidth: 128, NumCoalesce: 4, NumAtoms: 4, AtomWidth: 32}, // fofb
		{IntWidth: 128, NumCoalesce: 4, NumAtoms: 4, AtomWidth: 32}, // monit
	}
}

// Core is a model of the acquisition core.
// It is safe for concurrent use.
type Core struct {
	mu    sync.Mutex
	mem   map[uint32]uint32 // read-write registers
	chans []Channel

	state  string
	done   bool
	now    bool   // immediate acquisition
	shots  uint32 // shots left
	pos    uint32 // trigger position
	cnt    uint32 // acquired samples
	events []string
}

// New returns a core in its reset state.
// DefaultChannels is used when chans is empty.
func New(chans ...Channel) (*Core, error) {
	if len(chans) == 0 {
		chans = DefaultChannels()
	}
	if len(chans) >= acq.MaxChannels {
		return nil, fmt.Errorf("acqsim: too many channels (%d >= %d)", len(chans), acq.MaxChannels)
	}

	core := &Core{
		chans: append([]Channel(nil), chans...),
	}
	core.Reset()
	return core, nil
}

// Reset puts the core back into its power-on state.
func (core *Core) Reset() {
	core.mu.Lock()
	defer core.mu.Unlock()

	core.mem = map[uint32]uint32{
		acq.Shots.Addr(): mustModify(acq.Shots, 0, regmap.Fields{"NB": regmap.Uint(1)}),
	}
	core.state = acq.StateIdle
	core.done = false
	core.now = false
	core.shots = 0
	core.pos = 0
	core.cnt = 0
	core.events = nil
}

// State returns the current state of the acquisition FSM.
func (core *Core) State() string {
	core.mu.Lock()
	defer core.mu.Unlock()
	return core.state
}

// ReadWord implements wbtcp.Handler.
func (core *Core) ReadWord(addr uint32) uint32 {
	core.mu.Lock()
	defer core.mu.Unlock()

	core.step()
	return core.read(addr)
}

// WriteWord implements wbtcp.Handler.
func (core *Core) WriteWord(addr, data uint32) {
	core.mu.Lock()
	defer core.mu.Unlock()

	core.step()
	core.write(addr, data)
}

// WaitEvent implements wbtcp.EventWaiter.
// The FSM is run until it produces an event or can not progress anymore,
// in which case EventNone is returned.
func (core *Core) WaitEvent() string {
	core.mu.Lock()
	defer core.mu.Unlock()

	for len(core.events) == 0 && core.running() {
		core.step()
	}
	if len(core.events) == 0 {
		return EventNone
	}
	evt := core.events[0]
	core.events = core.events[1:]
	return evt
}

func (core *Core) running() bool {
	switch core.state {
	case acq.StatePreTrig, acq.StatePostTrig, acq.StateDecrShot:
		return true
	}
	return false
}

func (core *Core) read(addr uint32) uint32 {
	switch addr {
	case acq.CTL.Addr():
		return core.mem[addr]
	case acq.STA.Addr():
		return core.sta()
	case acq.AddrSWTrig:
		return 0
	case acq.AddrTrigPos:
		return core.pos
	case acq.AddrSamplesCnt:
		return core.cnt
	case acq.Shots.Addr():
		return mustModify(acq.Shots, core.mem[addr], regmap.Fields{
			"MULTISHOT_RAM_SIZE_IMPL": regmap.Bool(true),
			"MULTISHOT_RAM_SIZE":      regmap.Uint(multishotRAMSize),
		})
	case acq.AcqChanCtl.Addr():
		return mustModify(acq.AcqChanCtl, core.mem[addr], regmap.Fields{
			"NUM_CHAN": regmap.Uint(uint32(len(core.chans))),
		})
	}

	if ch, ok := channel(acq.ChDesc, addr); ok {
		if ch >= len(core.chans) {
			return 0
		}
		return mustModify(acq.ChDesc, 0, regmap.Fields{
			"INT_WIDTH":    regmap.Uint(uint32(core.chans[ch].IntWidth)),
			"NUM_COALESCE": regmap.Uint(uint32(core.chans[ch].NumCoalesce)),
		})
	}
	if ch, ok := channel(acq.ChAtomDesc, addr); ok {
		if ch >= len(core.chans) {
			return 0
		}
		return mustModify(acq.ChAtomDesc, 0, regmap.Fields{
			"NUM_ATOMS":  regmap.Uint(uint32(core.chans[ch].NumAtoms)),
			"ATOM_WIDTH": regmap.Uint(uint32(core.chans[ch].AtomWidth)),
		})
	}

	return core.mem[addr]
}

func (core *Core) write(addr, data uint32) {
	switch addr {
	case acq.CTL.Addr():
		core.ctl(data)
		return
	case acq.AddrSWTrig:
		if data&0x1 != 0 {
			core.swTrig()
		}
		return
	case acq.STA.Addr(), acq.AddrTrigPos, acq.AddrSamplesCnt:
		return
	case acq.Shots.Addr():
		nb, _ := acq.Shots.Field("NB")
		core.mem[addr] = nb.Insert(nb.Extract(data), 0)
		return
	case acq.AcqChanCtl.Addr():
		num, _ := acq.AcqChanCtl.Field("NUM_CHAN")
		core.mem[addr] = num.Insert(0, data)
		return
	}

	if _, ok := channel(acq.ChDesc, addr); ok {
		return
	}
	if _, ok := channel(acq.ChAtomDesc, addr); ok {
		return
	}

	core.mem[addr] = data
}

// ctl handles a write to the control register.
// Start and stop are monostable and read back as zero.
func (core *Core) ctl(data uint32) {
	fields, err := acq.CTL.Read(data)
	if err != nil {
		panic(fmt.Errorf("acqsim: could not decode CTL: %w", err))
	}

	core.mem[acq.CTL.Addr()] = mustModify(acq.CTL, data, regmap.Fields{
		"FSM_START_ACQ": regmap.Sym("DO_NOTHING"),
		"FSM_STOP_ACQ":  regmap.Sym("DO_NOTHING"),
	})
	core.now = fields["FSM_ACQ_NOW"] == regmap.Sym("IMMEDIATE")

	switch {
	case fields["FSM_STOP_ACQ"] == regmap.Sym("STOP"):
		core.state = acq.StateIdle
	case fields["FSM_START_ACQ"] == regmap.Sym("START") && core.state == acq.StateIdle:
		shots, _ := acq.Shots.Field("NB")
		core.shots = shots.Extract(core.mem[acq.Shots.Addr()])
		if core.shots == 0 {
			core.shots = 1
		}
		core.done = false
		core.pos = 0
		core.cnt = 0
		core.state = acq.StatePreTrig
	}
}

func (core *Core) swTrig() {
	if core.state != acq.StateWaitTrig {
		return
	}
	cfg, err := acq.TrigCfg.Read(core.mem[acq.TrigCfg.Addr()])
	if err != nil {
		panic(fmt.Errorf("acqsim: could not decode TRIG_CFG: %w", err))
	}
	if cfg["SW_TRIG_EN"] != regmap.Sym("ENABLED") {
		return
	}
	core.trigger()
}

func (core *Core) trigger() {
	core.pos = core.cnt
	core.events = append(core.events, EventTrigger)
	core.state = acq.StatePostTrig
}

// step advances the FSM by one state.
func (core *Core) step() {
	switch core.state {
	case acq.StatePreTrig:
		core.cnt += core.mem[acq.AddrPreSamples]
		if core.now {
			core.trigger()
			return
		}
		core.state = acq.StateWaitTrig
	case acq.StatePostTrig:
		core.cnt += core.mem[acq.AddrPostSamples]
		core.state = acq.StateDecrShot
	case acq.StateDecrShot:
		core.shots--
		if core.shots > 0 {
			core.state = acq.StatePreTrig
			return
		}
		core.done = true
		core.state = acq.StateIdle
		core.events = append(core.events, EventAcqDone)
	}
}

func (core *Core) sta() uint32 {
	done := regmap.Sym("IN_PROGRESS")
	if core.done {
		done = regmap.Sym("COMPLETED")
	}
	return mustModify(acq.STA, 0, regmap.Fields{
		"FSM_STATE":       regmap.Sym(core.state),
		"FSM_ACQ_DONE":    done,
		"FC_TRANS_DONE":   done,
		"FC_FULL":         regmap.Sym("NOT_FULL"),
		"DDR3_TRANS_DONE": done,
	})
}

// channel returns the channel whose copy of reg lives at addr.
func channel(reg *regmap.Register, addr uint32) (int, bool) {
	if addr < reg.Addr() {
		return 0, false
	}
	off := addr - reg.Addr()
	if off%acq.ChannelStride != 0 {
		return 0, false
	}
	ch := int(off / acq.ChannelStride)
	if ch >= acq.MaxChannels {
		return 0, false
	}
	return ch, true
}

func mustModify(reg *regmap.Register, word uint32, changes regmap.Fields) uint32 {
	v, err := reg.Modify(word, changes)
	if err != nil {
		panic(fmt.Errorf("acqsim: %w", err))
	}
	return v
}
