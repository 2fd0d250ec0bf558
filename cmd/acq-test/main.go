// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command acq-test drives one acquisition of a simulated ACQ core.
//
// acq-test prints the content of every register of the core as JSON,
// starts a software-triggered acquisition of 16 pre-trigger samples on
// channel 0, prints the registers again and ends the simulation.
//
// Usage:
//
//	$> acq-test -hostname localhost -port 10022
package main // import "github.com/lnls-dig/wbacq/cmd/acq-test"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/lnls-dig/wbacq"
	"github.com/lnls-dig/wbacq/acq"
	"github.com/lnls-dig/wbacq/snapdb"
	"github.com/lnls-dig/wbacq/wbtcp"
)

type config struct {
	host    string
	port    int
	timeout time.Duration // reply timeout
	wait    time.Duration // completion timeout, 0 to not wait
	verify  bool
	dsn     string // snapshot database
}

func main() {
	var (
		host    = flag.String("hostname", "", "Wishbone TCP server hostname (required)")
		port    = flag.Int("port", wbtcp.DefaultPort, "Wishbone TCP server port")
		timeout = flag.Duration("timeout", 0, "timeout for each reply of the server (0: wait forever)")
		wait    = flag.Duration("wait", 0, "wait for the acquisition to complete (0: do not wait)")
		verify  = flag.Bool("verify", false, "read back every written register")
		dsn     = flag.String("db", "", "DSN of the database where snapshots are stored")
	)

	flag.Parse()

	log.SetPrefix("acq-test: ")
	log.SetFlags(0)

	if *host == "" {
		flag.Usage()
		log.Fatalf("missing -hostname")
	}

	if v, _ := wbacq.Version(); v != "" {
		log.Printf("version: %s", v)
	}

	err := run(os.Stdout, config{
		host:    *host,
		port:    *port,
		timeout: *timeout,
		wait:    *wait,
		verify:  *verify,
		dsn:     *dsn,
	})
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(w io.Writer, cfg config) error {
	ctl := acq.New(
		cfg.host, cfg.port,
		acq.WithLogger(log.New(os.Stderr, "acq: ", 0)),
		acq.WithTimeout(cfg.timeout),
		acq.WithVerify(cfg.verify),
	)

	err := ctl.Connect()
	if err != nil {
		return fmt.Errorf("could not connect to ACQ core: %w", err)
	}
	defer ctl.Close()

	before, err := dump(w, ctl)
	if err != nil {
		return fmt.Errorf("could not dump registers before acquisition: %w", err)
	}

	err = ctl.Acquire(acq.DefaultAcquisition())
	if err != nil {
		return fmt.Errorf("could not run acquisition: %w", err)
	}

	if cfg.wait > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.wait)
		defer cancel()
		_, err = ctl.Poll(ctx, 10*time.Millisecond)
		if err != nil {
			return fmt.Errorf("could not wait for acquisition: %w", err)
		}
	}

	after, err := dump(w, ctl)
	if err != nil {
		return fmt.Errorf("could not dump registers after acquisition: %w", err)
	}

	if cfg.dsn != "" {
		err = store(cfg.dsn, ctl.Addr(), before, after)
		if err != nil {
			return fmt.Errorf("could not store snapshots: %w", err)
		}
	}

	err = ctl.Finish()
	if err != nil {
		return fmt.Errorf("could not finish simulation: %w", err)
	}
	return nil
}

func dump(w io.Writer, ctl *acq.Controller) (acq.Snapshot, error) {
	snap, err := ctl.ReadAll()
	if err != nil {
		return snap, err
	}
	raw, err := snap.JSON()
	if err != nil {
		return snap, fmt.Errorf("could not encode snapshot: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", raw)
	if err != nil {
		return snap, fmt.Errorf("could not print snapshot: %w", err)
	}
	return snap, nil
}

func store(dsn, host string, before, after acq.Snapshot) error {
	db, err := snapdb.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	err = db.Init(ctx)
	if err != nil {
		return err
	}

	for _, rec := range []snapdb.Record{
		{Host: host, Label: "before", Snapshot: before},
		{Host: host, Label: "after", Snapshot: after},
	} {
		id, err := db.Insert(ctx, rec)
		if err != nil {
			return err
		}
		log.Printf("stored %q snapshot (id=%d)", rec.Label, id)
	}
	return nil
}
