// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"encoding/json"
	"fmt"

	"github.com/lnls-dig/wbacq/regmap"
)

// Snapshot holds the content of every register of the core.
type Snapshot struct {
	CTL           regmap.Fields   `json:"CTL"`
	STA           regmap.Fields   `json:"STA"`
	TrigCfg       regmap.Fields   `json:"TRIG_CFG"`
	TrigDataCfg   regmap.Fields   `json:"TRIG_DATA_CFG"`
	TrigDataThres uint32          `json:"TRIG_DATA_THRES"`
	TrigDly       uint32          `json:"TRIG_DLY"`
	Shots         regmap.Fields   `json:"SHOTS"`
	TrigPos       uint32          `json:"TRIG_POS"`
	PreSamples    uint32          `json:"PRE_SAMPLES"`
	PostSamples   uint32          `json:"POST_SAMPLES"`
	SamplesCnt    uint32          `json:"SAMPLES_CNT"`
	DDR3StartAddr uint32          `json:"DDR3_START_ADDR"`
	DDR3EndAddr   uint32          `json:"DDR3_END_ADDR"`
	AcqChanCtl    regmap.Fields   `json:"ACQ_CHAN_CTL"`
	ChDesc        []regmap.Fields `json:"CH_DESC"`
}

// JSON returns the indented JSON encoding of the snapshot.
func (snap Snapshot) JSON() ([]byte, error) {
	return json.MarshalIndent(snap, "", "    ")
}

// ReadAll reads every register of the core.
// ACQ_CHAN_CTL is read first: its NUM_CHAN field gives the number of
// channel descriptors to read.
func (ctl *Controller) ReadAll() (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)

	snap.AcqChanCtl, err = ctl.ReadAcqChanCtl()
	if err != nil {
		return snap, fmt.Errorf("acq: could not read channel control: %w", err)
	}

	for _, reg := range []struct {
		dst *regmap.Fields
		reg *regmap.Register
	}{
		{&snap.CTL, CTL},
		{&snap.STA, STA},
		{&snap.TrigCfg, TrigCfg},
		{&snap.TrigDataCfg, TrigDataCfg},
		{&snap.Shots, Shots},
	} {
		*reg.dst, err = ctl.readReg(reg.reg)
		if err != nil {
			return snap, fmt.Errorf("acq: could not read %s: %w", reg.reg.Name(), err)
		}
	}

	for _, reg := range []struct {
		dst  *uint32
		addr uint32
	}{
		{&snap.TrigDataThres, AddrTrigDataThres},
		{&snap.TrigDly, AddrTrigDly},
		{&snap.TrigPos, AddrTrigPos},
		{&snap.PreSamples, AddrPreSamples},
		{&snap.PostSamples, AddrPostSamples},
		{&snap.SamplesCnt, AddrSamplesCnt},
		{&snap.DDR3StartAddr, AddrDDR3StartAddr},
		{&snap.DDR3EndAddr, AddrDDR3EndAddr},
	} {
		*reg.dst, err = ctl.readWord(reg.addr)
		if err != nil {
			return snap, err
		}
	}

	n := int(snap.AcqChanCtl["NUM_CHAN"].Uint())
	snap.ChDesc = make([]regmap.Fields, 0, n)
	for i := 0; i < n; i++ {
		desc, err := ctl.ReadChannelDesc(i)
		if err != nil {
			return snap, err
		}
		snap.ChDesc = append(snap.ChDesc, desc)
	}

	return snap, nil
}
