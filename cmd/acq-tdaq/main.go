// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command acq-tdaq starts a TDAQ server driving an ACQ core.
//
// The core is reached at the endpoint given as the body of the /config
// command, or at the one in ACQ_ENDPOINT, or at localhost:10022.
// Once started, acquisitions are re-armed as soon as they complete and
// the content of the registers of the core is published as JSON on the
// /snapshot output.
package main // import "github.com/lnls-dig/wbacq/cmd/acq-tdaq"

import (
	"context"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
)

func main() {
	cmd := flags.New()

	dev := newDevice(cmd.Args[0], os.Getenv("ACQ_ENDPOINT"))

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/snapshot", dev.snapshot)

	srv.RunHandle(dev.run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
