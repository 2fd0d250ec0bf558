// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"reflect"
	"testing"
	"time"

	"github.com/lnls-dig/wbacq/acq"
	"github.com/lnls-dig/wbacq/acqsim"
	"github.com/lnls-dig/wbacq/wbtcp"
)

func TestParseChannels(t *testing.T) {
	for _, tc := range []struct {
		name string
		str  string
		want []acqsim.Channel
		err  bool
	}{
		{name: "empty"},
		{name: "blank", str: "  "},
		{
			name: "one",
			str:  "64/4/4/16",
			want: []acqsim.Channel{{IntWidth: 64, NumCoalesce: 4, NumAtoms: 4, AtomWidth: 16}},
		},
		{
			name: "two",
			str:  "64/4/4/16, 128/2/8/32",
			want: []acqsim.Channel{
				{IntWidth: 64, NumCoalesce: 4, NumAtoms: 4, AtomWidth: 16},
				{IntWidth: 128, NumCoalesce: 2, NumAtoms: 8, AtomWidth: 32},
			},
		},
		{name: "short", str: "64/4/4", err: true},
		{name: "not-a-number", str: "64/4/x/16", err: true},
		{name: "overflow", str: "65536/4/4/16", err: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseChannels(tc.str)
			switch {
			case tc.err && err == nil:
				t.Fatalf("expected an error")
			case !tc.err && err != nil:
				t.Fatalf("could not parse channels: %+v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid channels:\ngot= %+v\nwant=%+v", got, tc.want)
			}
		})
	}
}

func TestNewServerTooManyChannels(t *testing.T) {
	chans := make([]acqsim.Channel, acq.MaxChannels)
	_, err := newServer("127.0.0.1:0", chans)
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestRunExit(t *testing.T) {
	srv, err := newServer("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("could not create server: %+v", err)
	}
	defer srv.Close()

	errc := make(chan error, 1)
	go func() {
		errc <- run(srv)
	}()

	cli, err := wbtcp.Dial(srv.Addr().String(), wbtcp.WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("could not dial simulator: %+v", err)
	}
	defer cli.Close()

	v, err := cli.Read(acq.AcqChanCtl.Addr())
	if err != nil {
		t.Fatalf("could not read ACQ_CHAN_CTL: %+v", err)
	}
	f, err := acq.AcqChanCtl.Read(v)
	if err != nil {
		t.Fatalf("could not decode ACQ_CHAN_CTL: %+v", err)
	}
	if got, want := f["NUM_CHAN"].String(), "4"; got != want {
		t.Fatalf("invalid number of channels: got=%s, want=%s", got, want)
	}

	err = cli.Exit()
	if err != nil {
		t.Fatalf("could not end simulation: %+v", err)
	}

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("could not run simulation: %+v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("simulation did not end")
	}
}
