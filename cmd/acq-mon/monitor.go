// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lnls-dig/wbacq/acq"
	"github.com/lnls-dig/wbacq/internal/config"
	"github.com/lnls-dig/wbacq/regmap"
	"github.com/lnls-dig/wbacq/snapdb"
	"golang.org/x/sync/errgroup"
)

// maxAlerts is the number of mails sent for one alert, until it clears.
const maxAlerts = 5

type monitor struct {
	cfg  *config.Config
	mail mailer
	db   *snapdb.DB // optional
	msg  *log.Logger

	mu     sync.Mutex
	alerts map[string]int // number of consecutive hits per alert
}

func newMonitor(cfg *config.Config, m mailer, db *snapdb.DB, msg *log.Logger) *monitor {
	return &monitor{
		cfg:    cfg,
		mail:   m,
		db:     db,
		msg:    msg,
		alerts: make(map[string]int),
	}
}

// run watches all the targets until ctx is done.
func (mon *monitor) run(ctx context.Context) error {
	grp, ctx := errgroup.WithContext(ctx)
	for i := range mon.cfg.Targets {
		tgt := mon.cfg.Targets[i]
		grp.Go(func() error {
			return mon.watch(ctx, tgt)
		})
	}
	return grp.Wait()
}

func (mon *monitor) watch(ctx context.Context, tgt config.TargetConfig) error {
	host, p, err := net.SplitHostPort(tgt.Endpoint)
	if err != nil {
		return fmt.Errorf("target %q: invalid endpoint: %w", tgt.ID, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return fmt.Errorf("target %q: invalid port: %w", tgt.ID, err)
	}

	ctl := acq.New(
		host, port,
		acq.WithLogger(mon.msg),
		acq.WithTimeout(mon.cfg.Monitor.Timeout()),
	)
	// the simulation keeps running after the monitor is gone.
	defer ctl.Close()

	tck := time.NewTicker(mon.cfg.Monitor.Interval())
	defer tck.Stop()

	connected := false
	for {
		if !connected {
			err := ctl.Connect()
			if err != nil {
				mon.msg.Printf("target %q: %+v", tgt.ID, err)
			}
			connected = err == nil
		}

		if connected {
			err := mon.check(ctx, ctl, tgt)
			if err != nil {
				mon.msg.Printf("target %q: %+v", tgt.ID, err)
				_ = ctl.Close()
				connected = false
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-tck.C:
		}
	}
}

// check reads the registers of the alerts of tgt and raises the alerts
// whose condition holds.
func (mon *monitor) check(ctx context.Context, ctl *acq.Controller, tgt config.TargetConfig) error {
	words := make(map[uint32]uint32)
	for i, a := range tgt.Alerts {
		reg, ok := acq.Lookup(a.Register)
		if !ok {
			return fmt.Errorf("unknown register %q", a.Register)
		}
		f, ok := reg.Field(a.Field)
		if !ok {
			return fmt.Errorf("register %s has no field %q", a.Register, a.Field)
		}
		want, err := f.Encode(regmap.ParseValue(a.Value), 0)
		if err != nil {
			return fmt.Errorf("invalid alert value %q: %w", a.Value, err)
		}

		word, ok := words[reg.Addr()]
		if !ok {
			word, err = ctl.ReadRaw(reg.Addr())
			if err != nil {
				return fmt.Errorf("could not read %s: %w", reg.Name(), err)
			}
			words[reg.Addr()] = word
		}

		key := tgt.ID + "/" + strconv.Itoa(i)
		if f.Extract(word) != f.Extract(want) {
			mon.clear(key)
			continue
		}
		mon.alert(ctx, ctl, tgt, a, key)
	}
	return nil
}

func (mon *monitor) clear(key string) {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	delete(mon.alerts, key)
}

func (mon *monitor) alert(ctx context.Context, ctl *acq.Controller, tgt config.TargetConfig, a config.AlertConfig, key string) {
	mon.mu.Lock()
	mon.alerts[key]++
	n := mon.alerts[key]
	mon.mu.Unlock()

	mon.msg.Printf("target %q: %s.%s=%s (alert #%d)", tgt.ID, a.Register, a.Field, a.Value, n)

	if n == 1 && mon.db != nil {
		err := mon.store(ctx, ctl, tgt, a)
		if err != nil {
			mon.msg.Printf("target %q: could not store snapshot: %+v", tgt.ID, err)
		}
	}

	if n > maxAlerts {
		return
	}

	subject := fmt.Sprintf("%s %s: %s.%s=%s", mon.cfg.Monitor.Mail.Subject, tgt.ID, a.Register, a.Field, a.Value)
	body := new(strings.Builder)
	fmt.Fprintf(body, "target:   %s\n", tgt.ID)
	fmt.Fprintf(body, "endpoint: %s\n", tgt.Endpoint)
	fmt.Fprintf(body, "register: %s\n", a.Register)
	fmt.Fprintf(body, "field:    %s\n", a.Field)
	fmt.Fprintf(body, "value:    %s\n", a.Value)
	fmt.Fprintf(body, "alert:    %d/%d\n", n, maxAlerts)

	err := mon.mail.Send(subject, body.String())
	if err != nil {
		mon.msg.Printf("could not send mail alert: %+v", err)
	}
}

func (mon *monitor) store(ctx context.Context, ctl *acq.Controller, tgt config.TargetConfig, a config.AlertConfig) error {
	snap, err := ctl.ReadAll()
	if err != nil {
		return err
	}
	_, err = mon.db.Insert(ctx, snapdb.Record{
		Host:     tgt.Endpoint,
		Label:    fmt.Sprintf("alert %s.%s=%s", a.Register, a.Field, a.Value),
		Snapshot: snap,
	})
	return err
}
