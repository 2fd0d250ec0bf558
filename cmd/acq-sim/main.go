// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command acq-sim serves a simulated ACQ core over the Wishbone TCP protocol.
//
// The simulation ends when a client sends the exit command.
//
// Usage:
//
//	$> acq-sim -addr :10022
//	$> acq-sim -addr :10022 -chans 64/4/4/16,128/4/4/32 -pmon -pmon-log acq-sim-pmon.log
package main // import "github.com/lnls-dig/wbacq/cmd/acq-sim"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/lnls-dig/wbacq"
	"github.com/lnls-dig/wbacq/acqsim"
	"github.com/lnls-dig/wbacq/wbtcp"
	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		addr   = flag.String("addr", ":"+strconv.Itoa(wbtcp.DefaultPort), "[ip]:port to listen on")
		chans  = flag.String("chans", "", "comma-separated list of int-width/num-coalesce/num-atoms/atom-width channel descriptions")
		doMon  = flag.Bool("pmon", false, "enable pmon monitoring of the simulator")
		doFreq = flag.Duration("pmon-freq", 1*time.Second, "pmon frequency")
		monLog = flag.String("pmon-log", "acq-sim-pmon.log", "pmon output file")
	)

	flag.Parse()

	log.SetPrefix("acq-sim: ")
	log.SetFlags(0)

	if v, _ := wbacq.Version(); v != "" {
		log.Printf("version: %s", v)
	}

	descs, err := parseChannels(*chans)
	if err != nil {
		log.Fatalf("could not parse channels: %+v", err)
	}

	if *doMon {
		f, err := os.Create(*monLog)
		if err != nil {
			log.Fatalf("could not create pmon log file: %+v", err)
		}
		defer f.Close()

		err = monitor(f, *doFreq)
		if err != nil {
			log.Fatalf("could not monitor simulator: %+v", err)
		}
	}

	srv, err := newServer(*addr, descs)
	if err != nil {
		log.Fatalf("could not create simulator: %+v", err)
	}

	err = run(srv)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func newServer(addr string, chans []acqsim.Channel) (*wbtcp.Server, error) {
	core, err := acqsim.New(chans...)
	if err != nil {
		return nil, fmt.Errorf("could not create ACQ core: %w", err)
	}

	srv, err := wbtcp.NewServer(addr, core, wbtcp.WithLogger(log.New(os.Stdout, "wbtcp: ", 0)))
	if err != nil {
		return nil, fmt.Errorf("could not create server: %w", err)
	}
	log.Printf("listening on %v...", srv.Addr())
	return srv, nil
}

// run serves srv until the simulation is ended or the process is interrupted.
func run(srv *wbtcp.Server) error {
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt)
	defer signal.Stop(sigch)

	done := make(chan struct{})

	var grp errgroup.Group
	grp.Go(func() error {
		select {
		case <-sigch:
			log.Printf("interrupted")
			return srv.Close()
		case <-done:
			return nil
		}
	})

	err := srv.Serve()
	close(done)
	if gerr := grp.Wait(); gerr != nil && err == nil {
		err = gerr
	}
	if err != nil {
		return fmt.Errorf("could not serve simulation: %w", err)
	}
	return nil
}

func monitor(f *os.File, freq time.Duration) error {
	p, err := pmon.Monitor(os.Getpid())
	if err != nil {
		return fmt.Errorf("could not start monitoring (pid=%d): %w", os.Getpid(), err)
	}
	p.W = f
	p.Freq = freq

	go func() {
		log.Printf("run pmon...")
		err := p.Run()
		if err != nil {
			log.Printf("could not run monitoring: %+v", err)
		}
	}()
	return nil
}

// parseChannels decodes a list of channel descriptions.
// An empty list selects the default channels.
func parseChannels(s string) ([]acqsim.Channel, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var chans []acqsim.Channel
	for i, desc := range strings.Split(s, ",") {
		toks := strings.Split(strings.TrimSpace(desc), "/")
		if len(toks) != 4 {
			return nil, fmt.Errorf("invalid channel #%d description %q", i, desc)
		}
		var vs [4]uint16
		for j, tok := range toks {
			v, err := strconv.ParseUint(tok, 10, 16)
			if err != nil {
				return nil, fmt.Errorf("invalid channel #%d description %q: %w", i, desc, err)
			}
			vs[j] = uint16(v)
		}
		chans = append(chans, acqsim.Channel{
			IntWidth:    vs[0],
			NumCoalesce: vs[1],
			NumAtoms:    vs[2],
			AtomWidth:   vs[3],
		})
	}
	return chans, nil
}
