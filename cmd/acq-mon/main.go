// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command acq-mon monitors a set of ACQ cores and sends mail alerts.
//
// acq-mon periodically reads the registers named in the alerts of each
// target listed in its YAML configuration file. When a register field
// holds the value of an alert, a mail is sent to the recipients of the
// configuration file and to the ones listed in MAIL_TGTS.
// When a snapshot database is configured, the content of all the
// registers of the core is stored when an alert is first raised.
//
// The mail server is configured from the environment:
//
//	MAIL_USERNAME, MAIL_PASSWORD, MAIL_SERVER, MAIL_PORT, MAIL_TGTS
//
// Usage:
//
//	$> acq-mon -cfg ./acq-mon.yaml
package main // import "github.com/lnls-dig/wbacq/cmd/acq-mon"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/lnls-dig/wbacq"
	"github.com/lnls-dig/wbacq/internal/config"
	"github.com/lnls-dig/wbacq/snapdb"
)

func main() {
	fname := flag.String("cfg", "acq-mon.yaml", "path to the configuration file")

	flag.Parse()

	log.SetPrefix("acq-mon: ")
	log.SetFlags(0)

	if v, _ := wbacq.Version(); v != "" {
		log.Printf("version: %s", v)
	}

	err := xmain(*fname)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func xmain(fname string) error {
	cfg, err := config.Load(fname)
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}

	var db *snapdb.DB
	if cfg.Monitor.DB != "" {
		db, err = snapdb.Open(cfg.Monitor.DB)
		if err != nil {
			return fmt.Errorf("could not open snapshot database: %w", err)
		}
		defer db.Close()

		err = db.Init(context.Background())
		if err != nil {
			return fmt.Errorf("could not initialize snapshot database: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mon := newMonitor(cfg, newMailer(cfg.Monitor.Mail.To), db, log.Default())
	log.Printf("monitoring %d target(s) every %v...", len(cfg.Targets), cfg.Monitor.Interval())
	return mon.run(ctx)
}
