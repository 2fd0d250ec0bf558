// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acqsim

import (
	"testing"

	"github.com/lnls-dig/wbacq/acq"
	"github.com/lnls-dig/wbacq/regmap"
)

func newCore(t *testing.T, chans ...Channel) *Core {
	t.Helper()
	core, err := New(chans...)
	if err != nil {
		t.Fatalf("could not create core: %+v", err)
	}
	return core
}

func readReg(t *testing.T, core *Core, reg *regmap.Register) regmap.Fields {
	t.Helper()
	fields, err := reg.Read(core.ReadWord(reg.Addr()))
	if err != nil {
		t.Fatalf("could not decode %s: %+v", reg.Name(), err)
	}
	return fields
}

func ctlWord(t *testing.T, changes regmap.Fields) uint32 {
	t.Helper()
	word, err := acq.CTL.Modify(0, changes)
	if err != nil {
		t.Fatalf("could not encode CTL: %+v", err)
	}
	return word
}

func TestReset(t *testing.T) {
	core := newCore(t)

	sta := readReg(t, core, acq.STA)
	for _, tc := range []struct {
		name string
		want regmap.Value
	}{
		{"FSM_STATE", regmap.Sym(acq.StateIdle)},
		{"FSM_ACQ_DONE", regmap.Sym("IN_PROGRESS")},
		{"FC_FULL", regmap.Sym("NOT_FULL")},
	} {
		if got := sta[tc.name]; got != tc.want {
			t.Fatalf("invalid STA.%s: got=%v, want=%v", tc.name, got, tc.want)
		}
	}

	shots := readReg(t, core, acq.Shots)
	if got, want := shots["NB"], regmap.Uint(1); got != want {
		t.Fatalf("invalid SHOTS.NB: got=%v, want=%v", got, want)
	}
	if got, want := shots["MULTISHOT_RAM_SIZE_IMPL"], regmap.Bool(true); got != want {
		t.Fatalf("invalid SHOTS.MULTISHOT_RAM_SIZE_IMPL: got=%v, want=%v", got, want)
	}
	if got, want := shots["MULTISHOT_RAM_SIZE"], regmap.Uint(multishotRAMSize); got != want {
		t.Fatalf("invalid SHOTS.MULTISHOT_RAM_SIZE: got=%v, want=%v", got, want)
	}

	chans := readReg(t, core, acq.AcqChanCtl)
	if got, want := chans["NUM_CHAN"], regmap.Uint(uint32(len(DefaultChannels()))); got != want {
		t.Fatalf("invalid ACQ_CHAN_CTL.NUM_CHAN: got=%v, want=%v", got, want)
	}
}

func TestTooManyChannels(t *testing.T) {
	_, err := New(make([]Channel, acq.MaxChannels)...)
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestReadOnly(t *testing.T) {
	core := newCore(t)
	sta := core.ReadWord(acq.STA.Addr())

	for _, addr := range []uint32{
		acq.STA.Addr(),
		acq.AddrTrigPos,
		acq.AddrSamplesCnt,
		acq.ChannelAddr(acq.ChDesc.Addr(), 1),
		acq.ChannelAddr(acq.ChAtomDesc.Addr(), 1),
	} {
		before := core.ReadWord(addr)
		core.WriteWord(addr, 0xffffffff)
		if got, want := core.ReadWord(addr), before; got != want {
			t.Fatalf("register 0x%x is writable: got=0x%x, want=0x%x", addr, got, want)
		}
	}

	if got, want := core.ReadWord(acq.STA.Addr()), sta; got != want {
		t.Fatalf("status changed: got=0x%x, want=0x%x", got, want)
	}

	core.WriteWord(acq.AcqChanCtl.Addr(), 0xffffffff)
	chans := readReg(t, core, acq.AcqChanCtl)
	if got, want := chans["NUM_CHAN"], regmap.Uint(4); got != want {
		t.Fatalf("invalid NUM_CHAN: got=%v, want=%v", got, want)
	}
	if got, want := chans["WHICH"], regmap.Uint(0x1f); got != want {
		t.Fatalf("invalid WHICH: got=%v, want=%v", got, want)
	}
}

func TestReadWrite(t *testing.T) {
	core := newCore(t)
	for _, addr := range []uint32{
		acq.TrigCfg.Addr(),
		acq.TrigDataCfg.Addr(),
		acq.AddrTrigDataThres,
		acq.AddrTrigDly,
		acq.AddrPreSamples,
		acq.AddrPostSamples,
		acq.AddrDDR3StartAddr,
		acq.AddrDDR3EndAddr,
		0x200,
	} {
		core.WriteWord(addr, 0xcafe0000|addr)
		if got, want := core.ReadWord(addr), 0xcafe0000|addr; got != want {
			t.Fatalf("invalid word at 0x%x: got=0x%x, want=0x%x", addr, got, want)
		}
	}
}

func TestCTLMonostable(t *testing.T) {
	core := newCore(t)
	core.WriteWord(acq.CTL.Addr(), ctlWord(t, regmap.Fields{
		"FSM_START_ACQ": regmap.Sym("START"),
		"FSM_ACQ_NOW":   regmap.Sym("IMMEDIATE"),
	}))

	ctl := readReg(t, core, acq.CTL)
	want := regmap.Fields{
		"FSM_START_ACQ": regmap.Sym("DO_NOTHING"),
		"FSM_STOP_ACQ":  regmap.Sym("DO_NOTHING"),
		"FSM_ACQ_NOW":   regmap.Sym("IMMEDIATE"),
	}
	for k, v := range want {
		if got := ctl[k]; got != v {
			t.Fatalf("invalid CTL.%s: got=%v, want=%v", k, got, v)
		}
	}
}

func TestFSM(t *testing.T) {
	for _, tc := range []struct {
		name   string
		shots  uint32
		now    bool
		swtrig bool
		want   []string
	}{
		{
			name: "immediate",
			now:  true,
			want: []string{
				acq.StatePostTrig, acq.StateDecrShot, acq.StateIdle,
			},
		},
		{
			name:  "immediate-multishot",
			shots: 2,
			now:   true,
			want: []string{
				acq.StatePostTrig, acq.StateDecrShot,
				acq.StatePreTrig, acq.StatePostTrig, acq.StateDecrShot,
				acq.StateIdle,
			},
		},
		{
			name:   "sw-trigger",
			swtrig: true,
			want: []string{
				acq.StateDecrShot, acq.StateIdle,
			},
		},
		{
			name: "no-trigger",
			want: []string{
				acq.StateWaitTrig, acq.StateWaitTrig, acq.StateWaitTrig,
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			core := newCore(t)
			core.WriteWord(acq.AddrPreSamples, 16)
			core.WriteWord(acq.AddrPostSamples, 32)
			if tc.shots != 0 {
				core.WriteWord(acq.Shots.Addr(), tc.shots)
			}
			core.WriteWord(acq.TrigCfg.Addr(), 0x8) // SW_TRIG_EN

			now := "WAIT_TRIG"
			if tc.now {
				now = "IMMEDIATE"
			}
			core.WriteWord(acq.CTL.Addr(), ctlWord(t, regmap.Fields{
				"FSM_START_ACQ": regmap.Sym("START"),
				"FSM_ACQ_NOW":   regmap.Sym(now),
			}))
			if got, want := core.State(), acq.StatePreTrig; got != want {
				t.Fatalf("invalid state after start: got=%s, want=%s", got, want)
			}

			if tc.swtrig {
				core.WriteWord(acq.AddrSWTrig, 1)
				if got, want := core.State(), acq.StatePostTrig; got != want {
					t.Fatalf("invalid state after trigger: got=%s, want=%s", got, want)
				}
			}

			for i, want := range tc.want {
				sta := readReg(t, core, acq.STA)
				if got := sta["FSM_STATE"]; got != regmap.Sym(want) {
					t.Fatalf("invalid state #%d: got=%v, want=%v", i, got, want)
				}
			}

			sta := readReg(t, core, acq.STA)
			done := tc.now || tc.swtrig
			if got, want := sta["FSM_ACQ_DONE"] == regmap.Sym("COMPLETED"), done; got != want {
				t.Fatalf("invalid done flag: got=%v, want=%v", got, want)
			}
			if !done {
				return
			}

			shots := tc.shots
			if shots == 0 {
				shots = 1
			}
			if got, want := core.ReadWord(acq.AddrSamplesCnt), shots*(16+32); got != want {
				t.Fatalf("invalid samples count: got=%d, want=%d", got, want)
			}
		})
	}
}

func TestSWTrigDisabled(t *testing.T) {
	core := newCore(t)
	core.WriteWord(acq.CTL.Addr(), ctlWord(t, regmap.Fields{
		"FSM_START_ACQ": regmap.Sym("START"),
	}))
	core.WriteWord(acq.AddrSWTrig, 1)
	if got, want := core.State(), acq.StateWaitTrig; got != want {
		t.Fatalf("invalid state: got=%s, want=%s", got, want)
	}
	if got, want := core.WaitEvent(), EventNone; got != want {
		t.Fatalf("invalid event: got=%q, want=%q", got, want)
	}

	core.WriteWord(acq.CTL.Addr(), ctlWord(t, regmap.Fields{
		"FSM_STOP_ACQ": regmap.Sym("STOP"),
	}))
	sta := readReg(t, core, acq.STA)
	if got, want := sta["FSM_STATE"], regmap.Sym(acq.StateIdle); got != want {
		t.Fatalf("invalid state after stop: got=%v, want=%v", got, want)
	}
	if got, want := sta["FSM_ACQ_DONE"], regmap.Sym("IN_PROGRESS"); got != want {
		t.Fatalf("invalid done flag after stop: got=%v, want=%v", got, want)
	}
}

func TestWaitEvent(t *testing.T) {
	core := newCore(t)
	if got, want := core.WaitEvent(), EventNone; got != want {
		t.Fatalf("invalid event: got=%q, want=%q", got, want)
	}

	core.WriteWord(acq.AddrPreSamples, 8)
	core.WriteWord(acq.CTL.Addr(), ctlWord(t, regmap.Fields{
		"FSM_START_ACQ": regmap.Sym("START"),
		"FSM_ACQ_NOW":   regmap.Sym("IMMEDIATE"),
	}))

	for _, want := range []string{EventTrigger, EventAcqDone, EventNone} {
		if got := core.WaitEvent(); got != want {
			t.Fatalf("invalid event: got=%q, want=%q", got, want)
		}
	}
	if got, want := core.State(), acq.StateIdle; got != want {
		t.Fatalf("invalid state: got=%s, want=%s", got, want)
	}
	if got, want := core.ReadWord(acq.AddrTrigPos), uint32(8); got != want {
		t.Fatalf("invalid trigger position: got=%d, want=%d", got, want)
	}
}

func TestChannelDesc(t *testing.T) {
	chans := []Channel{
		{IntWidth: 1, NumCoalesce: 2, NumAtoms: 3, AtomWidth: 4},
		{IntWidth: 5, NumCoalesce: 6, NumAtoms: 7, AtomWidth: 8},
	}
	core := newCore(t, chans...)

	for i, ch := range chans {
		desc, err := acq.ChDesc.Read(core.ReadWord(acq.ChannelAddr(acq.ChDesc.Addr(), i)))
		if err != nil {
			t.Fatalf("could not decode CH_DESC[%d]: %+v", i, err)
		}
		atom, err := acq.ChAtomDesc.Read(core.ReadWord(acq.ChannelAddr(acq.ChAtomDesc.Addr(), i)))
		if err != nil {
			t.Fatalf("could not decode CH_ATOM_DESC[%d]: %+v", i, err)
		}
		for _, tc := range []struct {
			got  regmap.Value
			want uint16
		}{
			{desc["INT_WIDTH"], ch.IntWidth},
			{desc["NUM_COALESCE"], ch.NumCoalesce},
			{atom["NUM_ATOMS"], ch.NumAtoms},
			{atom["ATOM_WIDTH"], ch.AtomWidth},
		} {
			if tc.got != regmap.Uint(uint32(tc.want)) {
				t.Fatalf("ch[%d]: invalid descriptor: got=%v, want=%d", i, tc.got, tc.want)
			}
		}
	}

	if got := core.ReadWord(acq.ChannelAddr(acq.ChDesc.Addr(), len(chans))); got != 0 {
		t.Fatalf("invalid descriptor of missing channel: got=0x%x", got)
	}
}
