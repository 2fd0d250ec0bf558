// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"github.com/lnls-dig/wbacq/regmap"
)

// Structured registers of the acquisition core.
var (
	CTL = regmap.MustRegister("CTL", 0x00,
		regmap.EnumField("FSM_START_ACQ", 0, 0x1, sym("DO_NOTHING", 0), sym("START", 1)),
		regmap.EnumField("FSM_STOP_ACQ", 1, 0x1, sym("DO_NOTHING", 0), sym("STOP", 1)),
		regmap.EnumField("FSM_ACQ_NOW", 16, 0x1, sym("WAIT_TRIG", 0), sym("IMMEDIATE", 1)),
	)

	STA = regmap.MustRegister("STA", 0x04,
		regmap.EnumField("FSM_STATE", 0, 0x7,
			sym(StateIllegal0, 0),
			sym(StateIdle, 1),
			sym(StatePreTrig, 2),
			sym(StateWaitTrig, 3),
			sym(StatePostTrig, 4),
			sym(StateDecrShot, 5),
			sym(StateIllegal6, 6),
			sym(StateIllegal7, 7),
		),
		regmap.EnumField("FSM_ACQ_DONE", 3, 0x1, sym("IN_PROGRESS", 0), sym("COMPLETED", 1)),
		regmap.EnumField("FC_TRANS_DONE", 8, 0x1, sym("IN_PROGRESS", 0), sym("COMPLETED", 1)),
		regmap.EnumField("FC_FULL", 9, 0x1, sym("NOT_FULL", 0), sym("FULL", 1)),
		regmap.EnumField("DDR3_TRANS_DONE", 16, 0x1, sym("IN_PROGRESS", 0), sym("COMPLETED", 1)),
	)

	TrigCfg = regmap.MustRegister("TRIG_CFG", 0x08,
		regmap.EnumField("HW_TRIG_SEL", 0, 0x1, sym("INTERNAL", 0), sym("EXTERNAL", 1)),
		regmap.EnumField("HW_TRIG_POL", 1, 0x1, sym("POS_EDGE", 0), sym("NEG_EDGE", 1)),
		regmap.EnumField("HW_TRIG_EN", 2, 0x1, sym("DISABLED", 0), sym("ENABLED", 1)),
		regmap.EnumField("SW_TRIG_EN", 3, 0x1, sym("DISABLED", 0), sym("ENABLED", 1)),
		regmap.UintField("INT_TRIG_SEL", 4, 0x1f),
	)

	TrigDataCfg = regmap.MustRegister("TRIG_DATA_CFG", 0x0c,
		regmap.UintField("THRES_FILT", 0, 0xff),
	)

	Shots = regmap.MustRegister("SHOTS", 0x1c,
		regmap.UintField("NB", 0, 0xffff),
		regmap.BoolField("MULTISHOT_RAM_SIZE_IMPL", 16),
		regmap.UintField("MULTISHOT_RAM_SIZE", 17, 0x7fff),
	)

	AcqChanCtl = regmap.MustRegister("ACQ_CHAN_CTL", 0x38,
		regmap.UintField("WHICH", 0, 0x1f),
		regmap.UintField("DTRIG_WHICH", 8, 0x1f),
		regmap.UintField("NUM_CHAN", 16, 0x1f),
	)

	// ChDesc and ChAtomDesc describe channel 0.
	// See ChannelAddr for the other channels.
	ChDesc = regmap.MustRegister("CH_DESC", 0x3c,
		regmap.UintField("INT_WIDTH", 0, 0xffff),
		regmap.UintField("NUM_COALESCE", 16, 0xffff),
	)

	ChAtomDesc = regmap.MustRegister("CH_ATOM_DESC", 0x40,
		regmap.UintField("NUM_ATOMS", 0, 0xffff),
		regmap.UintField("ATOM_WIDTH", 16, 0xffff),
	)
)

// Addresses of the scalar registers.
const (
	AddrTrigDataThres uint32 = 0x10
	AddrTrigDly       uint32 = 0x14
	AddrSWTrig        uint32 = 0x18 // write 1 to fire the software trigger
	AddrTrigPos       uint32 = 0x20 // read-only
	AddrPreSamples    uint32 = 0x24
	AddrPostSamples   uint32 = 0x28
	AddrSamplesCnt    uint32 = 0x2c // read-only
	AddrDDR3StartAddr uint32 = 0x30
	AddrDDR3EndAddr   uint32 = 0x34
)

// States of the acquisition FSM, as reported by STA.FSM_STATE.
const (
	StateIllegal0 = "ILLEGAL0"
	StateIdle     = "IDLE"
	StatePreTrig  = "PRE_TRIG"
	StateWaitTrig = "WAIT_TRIG"
	StatePostTrig = "POST_TRIG"
	StateDecrShot = "DECR_SHOT"
	StateIllegal6 = "ILLEGAL6"
	StateIllegal7 = "ILLEGAL7"
)

// ChannelStride is the address distance between the descriptors of two
// consecutive channels.
const ChannelStride = 8

// MaxChannels is the number of channels ACQ_CHAN_CTL.NUM_CHAN can report.
const MaxChannels = 32

// ChannelAddr returns the address of the descriptor of channel ch, given
// the address base of the descriptor of channel 0.
func ChannelAddr(base uint32, ch int) uint32 {
	return base + uint32(ch)*ChannelStride
}

// Scalar describes a register holding a plain 32-bit word.
type Scalar struct {
	Name     string
	Addr     uint32
	ReadOnly bool
}

var (
	registers = []*regmap.Register{
		CTL, STA, TrigCfg, TrigDataCfg, Shots, AcqChanCtl,
	}

	scalars = []Scalar{
		{Name: "TRIG_DATA_THRES", Addr: AddrTrigDataThres},
		{Name: "TRIG_DLY", Addr: AddrTrigDly},
		{Name: "SW_TRIG", Addr: AddrSWTrig},
		{Name: "TRIG_POS", Addr: AddrTrigPos, ReadOnly: true},
		{Name: "PRE_SAMPLES", Addr: AddrPreSamples},
		{Name: "POST_SAMPLES", Addr: AddrPostSamples},
		{Name: "SAMPLES_CNT", Addr: AddrSamplesCnt, ReadOnly: true},
		{Name: "DDR3_START_ADDR", Addr: AddrDDR3StartAddr},
		{Name: "DDR3_END_ADDR", Addr: AddrDDR3EndAddr},
	}

	// readOnly lists the structured registers rejecting writes.
	readOnly = map[string]bool{
		STA.Name(): true,
	}

	// volatile lists the addresses whose content differs from the last
	// word written: monostable bits and pulses.
	volatile = map[uint32]bool{
		CTL.Addr():  true,
		AddrSWTrig: true,
	}
)

// Registers returns the structured registers of the core, channel
// descriptors excluded.
func Registers() []*regmap.Register {
	return append([]*regmap.Register(nil), registers...)
}

// Scalars returns the scalar registers of the core.
func Scalars() []Scalar {
	return append([]Scalar(nil), scalars...)
}

// Lookup returns the structured register named name.
func Lookup(name string) (*regmap.Register, bool) {
	for _, reg := range registers {
		if reg.Name() == name {
			return reg, true
		}
	}
	return nil, false
}

// LookupScalar returns the scalar register named name.
func LookupScalar(name string) (Scalar, bool) {
	for _, s := range scalars {
		if s.Name == name {
			return s, true
		}
	}
	return Scalar{}, false
}

func sym(name string, v uint32) regmap.Symbol {
	return regmap.Symbol{Name: name, Value: v}
}
