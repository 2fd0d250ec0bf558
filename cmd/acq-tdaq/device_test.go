// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/lnls-dig/wbacq/acq"
	"github.com/lnls-dig/wbacq/acqsim"
	"github.com/lnls-dig/wbacq/regmap"
	"github.com/lnls-dig/wbacq/wbtcp"
	"golang.org/x/sync/errgroup"
)

func TestNewDevice(t *testing.T) {
	if got, want := newDevice("dev", "").addr, "localhost:10022"; got != want {
		t.Fatalf("invalid default endpoint: got=%q, want=%q", got, want)
	}
	if got, want := newDevice("dev", "sim:1234").addr, "sim:1234"; got != want {
		t.Fatalf("invalid endpoint: got=%q, want=%q", got, want)
	}
}

func TestConfigure(t *testing.T) {
	for _, tc := range []struct {
		body string
		want string
		err  bool
	}{
		{body: "", want: "localhost:10022"},
		{body: " \n", want: "localhost:10022"},
		{body: "sim:1234\n", want: "sim:1234"},
		{body: "sim", err: true},
		{body: "sim:http", err: true},
		{body: "sim:70000", err: true},
	} {
		t.Run(tc.body, func(t *testing.T) {
			dev := newDevice("dev", "")
			err := dev.configure(tc.body)
			switch {
			case tc.err:
				if err == nil {
					t.Fatalf("expected an error")
				}
				return
			case err != nil:
				t.Fatalf("could not configure: %+v", err)
			}
			if got, want := dev.addr, tc.want; got != want {
				t.Fatalf("invalid endpoint: got=%q, want=%q", got, want)
			}
		})
	}
}

func TestNotConnected(t *testing.T) {
	dev := newDevice("dev", "")
	for _, tc := range []struct {
		name string
		fct  func() error
	}{
		{"start", dev.start},
		{"stop", dev.stop},
	} {
		if err := tc.fct(); !errors.Is(err, acq.ErrNotConnected) {
			t.Fatalf("%s: invalid error: got=%+v, want=%+v", tc.name, err, acq.ErrNotConnected)
		}
	}
	if err := dev.reset(); err != nil {
		t.Fatalf("could not reset: %+v", err)
	}
	if err := dev.quit(); err != nil {
		t.Fatalf("could not quit: %+v", err)
	}
	raw, err := dev.cycle()
	if err != nil || raw != nil {
		t.Fatalf("invalid idle cycle: raw=%q, err=%+v", raw, err)
	}
}

func TestRunCycle(t *testing.T) {
	core, err := acqsim.New()
	if err != nil {
		t.Fatalf("could not create simulated core: %+v", err)
	}
	srv, err := wbtcp.NewServer("127.0.0.1:0", core, wbtcp.WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("could not create server: %+v", err)
	}
	defer srv.Close()

	var grp errgroup.Group
	grp.Go(srv.Serve)

	dev := newDevice("dev", "")
	err = dev.configure(srv.Addr().String())
	if err != nil {
		t.Fatalf("could not configure: %+v", err)
	}
	err = dev.init()
	if err != nil {
		t.Fatalf("could not init: %+v", err)
	}
	err = dev.start()
	if err != nil {
		t.Fatalf("could not start: %+v", err)
	}

	const nacqs = 3
	var snaps [][]byte
	for i := 0; i < 100 && len(snaps) < nacqs; i++ {
		raw, err := dev.cycle()
		if err != nil {
			t.Fatalf("could not run cycle #%d: %+v", i, err)
		}
		if raw != nil {
			snaps = append(snaps, raw)
		}
	}
	if got, want := len(snaps), nacqs; got != want {
		t.Fatalf("invalid number of snapshots: got=%d, want=%d", got, want)
	}
	if got, want := dev.count(), nacqs; got != want {
		t.Fatalf("invalid count: got=%d, want=%d", got, want)
	}

	for i, raw := range snaps {
		var snap acq.Snapshot
		err := json.Unmarshal(raw, &snap)
		if err != nil {
			t.Fatalf("could not decode snapshot #%d: %+v", i, err)
		}
		if got, want := snap.STA["FSM_ACQ_DONE"], regmap.Sym("COMPLETED"); got != want {
			t.Fatalf("snapshot #%d: invalid FSM_ACQ_DONE: got=%v, want=%v", i, got, want)
		}
		if got, want := snap.PreSamples, uint32(16); got != want {
			t.Fatalf("snapshot #%d: invalid pre-samples: got=%d, want=%d", i, got, want)
		}
	}

	err = dev.stop()
	if err != nil {
		t.Fatalf("could not stop: %+v", err)
	}
	raw, err := dev.cycle()
	if err != nil || raw != nil {
		t.Fatalf("invalid cycle after stop: raw=%q, err=%+v", raw, err)
	}

	err = dev.reset()
	if err != nil {
		t.Fatalf("could not reset: %+v", err)
	}
	if got, want := dev.count(), 0; got != want {
		t.Fatalf("invalid count after reset: got=%d, want=%d", got, want)
	}

	err = dev.quit()
	if err != nil {
		t.Fatalf("could not quit: %+v", err)
	}

	// the simulation outlives the device.
	if got, want := core.State(), acq.StateIdle; got != want {
		t.Fatalf("invalid FSM state: got=%q, want=%q", got, want)
	}
	err = srv.Close()
	if err != nil {
		t.Fatalf("could not close server: %+v", err)
	}
	err = grp.Wait()
	if err != nil {
		t.Fatalf("server failed: %+v", err)
	}
}
