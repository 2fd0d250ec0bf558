// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"context"
	"fmt"
	"time"

	"github.com/lnls-dig/wbacq/regmap"
)

// Acquisition configures one acquisition.
type Acquisition struct {
	Channel     uint32 // ACQ_CHAN_CTL.WHICH
	TrigChannel uint32 // ACQ_CHAN_CTL.DTRIG_WHICH

	PreSamples  uint32
	PostSamples uint32 // left untouched when zero
	Shots       uint32 // left untouched when zero

	DDR3StartAddr uint32
	DDR3EndAddr   uint32

	Immediate bool // do not wait for a trigger
	SWTrig    bool // enable and fire the software trigger
}

// DefaultAcquisition returns a software-triggered acquisition of 16
// pre-trigger samples on channel 0.
func DefaultAcquisition() Acquisition {
	return Acquisition{
		Channel:       0,
		TrigChannel:   0,
		PreSamples:    16,
		DDR3StartAddr: 0x0000,
		DDR3EndAddr:   0x1000,
		Immediate:     true,
		SWTrig:        true,
	}
}

// Acquire configures the core with cfg and starts one acquisition.
// When cfg.SWTrig is set, the software trigger is fired once the
// acquisition is started.
// Acquire does not check the state of the acquisition FSM.
func (ctl *Controller) Acquire(cfg Acquisition) error {
	err := ctl.WriteAcqChanCtl(regmap.Fields{
		"WHICH":       regmap.Uint(cfg.Channel),
		"DTRIG_WHICH": regmap.Uint(cfg.TrigChannel),
	})
	if err != nil {
		return fmt.Errorf("acq: could not select channel: %w", err)
	}

	err = ctl.WritePreSamples(cfg.PreSamples)
	if err != nil {
		return fmt.Errorf("acq: could not set pre-trigger samples: %w", err)
	}

	if cfg.PostSamples != 0 {
		err = ctl.WritePostSamples(cfg.PostSamples)
		if err != nil {
			return fmt.Errorf("acq: could not set post-trigger samples: %w", err)
		}
	}

	if cfg.Shots != 0 {
		err = ctl.WriteShots(regmap.Fields{"NB": regmap.Uint(cfg.Shots)})
		if err != nil {
			return fmt.Errorf("acq: could not set number of shots: %w", err)
		}
	}

	err = ctl.WriteDDR3StartAddr(cfg.DDR3StartAddr)
	if err != nil {
		return fmt.Errorf("acq: could not set DDR3 start address: %w", err)
	}

	err = ctl.WriteDDR3EndAddr(cfg.DDR3EndAddr)
	if err != nil {
		return fmt.Errorf("acq: could not set DDR3 end address: %w", err)
	}

	if cfg.SWTrig {
		err = ctl.WriteTrigCfg(regmap.Fields{
			"SW_TRIG_EN": regmap.Sym("ENABLED"),
		})
		if err != nil {
			return fmt.Errorf("acq: could not enable software trigger: %w", err)
		}
	}

	now := "WAIT_TRIG"
	if cfg.Immediate {
		now = "IMMEDIATE"
	}
	err = ctl.WriteCTL(regmap.Fields{
		"FSM_ACQ_NOW":   regmap.Sym(now),
		"FSM_START_ACQ": regmap.Sym("START"),
	})
	if err != nil {
		return fmt.Errorf("acq: could not start acquisition: %w", err)
	}

	if cfg.SWTrig {
		err = ctl.SendSWTrig()
		if err != nil {
			return fmt.Errorf("acq: could not send software trigger: %w", err)
		}
	}

	return nil
}

// Stop aborts the current acquisition.
func (ctl *Controller) Stop() error {
	err := ctl.WriteCTL(regmap.Fields{
		"FSM_STOP_ACQ": regmap.Sym("STOP"),
	})
	if err != nil {
		return fmt.Errorf("acq: could not stop acquisition: %w", err)
	}
	return nil
}

// Poll reads the status register every interval, until the acquisition
// is completed or ctx is done.
// A read in flight is not interrupted by ctx.
func (ctl *Controller) Poll(ctx context.Context, interval time.Duration) (regmap.Fields, error) {
	tck := time.NewTicker(interval)
	defer tck.Stop()

	for {
		sta, err := ctl.ReadSTA()
		if err != nil {
			return nil, fmt.Errorf("acq: could not poll status: %w", err)
		}
		if sta["FSM_ACQ_DONE"] == regmap.Sym("COMPLETED") {
			return sta, nil
		}

		select {
		case <-ctx.Done():
			return sta, fmt.Errorf(
				"acq: acquisition not completed (state=%v): %w",
				sta["FSM_STATE"], ctx.Err(),
			)
		case <-tck.C:
		}
	}
}
