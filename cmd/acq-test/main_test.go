// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"testing"
	"time"

	"github.com/lnls-dig/wbacq/acq"
	"github.com/lnls-dig/wbacq/acqsim"
	"github.com/lnls-dig/wbacq/regmap"
	"github.com/lnls-dig/wbacq/wbtcp"
	"golang.org/x/sync/errgroup"
)

func TestRun(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  config
	}{
		{name: "default"},
		{name: "wait-verify", cfg: config{wait: 5 * time.Second, verify: true, timeout: 5 * time.Second}},
	} {
		t.Run(tc.name, func(t *testing.T) {
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

			cfg := tc.cfg
			cfg.host = "127.0.0.1"
			cfg.port = srv.Addr().(*net.TCPAddr).Port

			out := new(bytes.Buffer)
			err = run(out, cfg)
			if err != nil {
				t.Fatalf("could not run: %+v", err)
			}

			// the simulation is ended by acq-test.
			err = grp.Wait()
			if err != nil {
				t.Fatalf("server failed: %+v", err)
			}

			var (
				dec    = json.NewDecoder(out)
				before acq.Snapshot
				after  acq.Snapshot
			)
			err = dec.Decode(&before)
			if err != nil {
				t.Fatalf("could not decode first snapshot: %+v", err)
			}
			err = dec.Decode(&after)
			if err != nil {
				t.Fatalf("could not decode second snapshot: %+v", err)
			}

			if got, want := before.PreSamples, uint32(0); got != want {
				t.Fatalf("invalid pre-samples before: got=%d, want=%d", got, want)
			}
			if got, want := after.PreSamples, uint32(16); got != want {
				t.Fatalf("invalid pre-samples after: got=%d, want=%d", got, want)
			}
			if got, want := after.DDR3EndAddr, uint32(0x1000); got != want {
				t.Fatalf("invalid DDR3 end address: got=0x%x, want=0x%x", got, want)
			}
			if got, want := after.TrigCfg["SW_TRIG_EN"], regmap.Sym("ENABLED"); got != want {
				t.Fatalf("invalid SW_TRIG_EN: got=%v, want=%v", got, want)
			}
			if got, want := after.CTL["FSM_ACQ_NOW"], regmap.Sym("IMMEDIATE"); got != want {
				t.Fatalf("invalid FSM_ACQ_NOW: got=%v, want=%v", got, want)
			}
			if got, want := len(after.ChDesc), len(acqsim.DefaultChannels()); got != want {
				t.Fatalf("invalid number of channels: got=%d, want=%d", got, want)
			}
			if got, want := after.STA["FSM_ACQ_DONE"], regmap.Sym("COMPLETED"); got != want {
				t.Fatalf("invalid FSM_ACQ_DONE: got=%v, want=%v", got, want)
			}

			if dec.More() {
				t.Fatalf("unexpected output after second snapshot")
			}
		})
	}
}

func TestRunNoServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not listen: %+v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	out := new(bytes.Buffer)
	err = run(out, config{host: "127.0.0.1", port: port})
	var terr *wbtcp.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected a transport error, got %+v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("unexpected output: %q", out.String())
	}
}
