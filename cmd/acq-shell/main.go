// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command acq-shell is an interactive shell to inspect and drive an ACQ core.
//
// Usage:
//
//	$> acq-shell -hostname localhost -port 10022
//	acq> read STA
//	acq> write TRIG_CFG SW_TRIG_EN=ENABLED
//	acq> write PRE_SAMPLES 32
//	acq> acquire pre=32 post=8 now=false
//	acq> trig
//	acq> poll 1s
//	acq> exit
package main // import "github.com/lnls-dig/wbacq/cmd/acq-shell"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/lnls-dig/wbacq"
	"github.com/lnls-dig/wbacq/acq"
	"github.com/lnls-dig/wbacq/wbtcp"
	"github.com/peterh/liner"
)

func main() {
	var (
		host    = flag.String("hostname", "localhost", "Wishbone TCP server hostname")
		port    = flag.Int("port", wbtcp.DefaultPort, "Wishbone TCP server port")
		timeout = flag.Duration("timeout", 5*time.Second, "timeout for each reply of the server (0: wait forever)")
		verify  = flag.Bool("verify", false, "read back every written register")
		hist    = flag.String("history", histFile(), "path to the history file")
	)

	flag.Parse()

	log.SetPrefix("acq-shell: ")
	log.SetFlags(0)

	if v, _ := wbacq.Version(); v != "" {
		log.Printf("version: %s", v)
	}

	ctl := acq.New(
		*host, *port,
		acq.WithLogger(log.New(os.Stderr, "acq: ", 0)),
		acq.WithTimeout(*timeout),
		acq.WithVerify(*verify),
	)
	err := ctl.Connect()
	if err != nil {
		log.Fatalf("could not connect to ACQ core: %+v", err)
	}
	defer ctl.Close()

	err = loop(newShell(os.Stdout, ctl), *hist)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func histFile() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, ".acq-shell.history")
}

func loop(sh *shell, hist string) error {
	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(complete)

	if hist != "" {
		if f, err := os.Open(hist); err == nil {
			_, _ = term.ReadHistory(f)
			f.Close()
		}
		defer func() {
			f, err := os.Create(hist)
			if err != nil {
				log.Printf("could not create history file: %+v", err)
				return
			}
			defer f.Close()
			_, err = term.WriteHistory(f)
			if err != nil {
				log.Printf("could not save history: %+v", err)
			}
		}()
	}

	for {
		line, err := term.Prompt("acq> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return sh.ctl.Close()
			}
			return fmt.Errorf("could not read command: %w", err)
		}
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		quit, err := sh.exec(line)
		if err != nil {
			fmt.Fprintf(sh.w, "error: %+v\n", err)
			if isTransport(err) {
				return err
			}
		}
		if quit {
			return nil
		}
	}
}

func isTransport(err error) bool {
	var terr *wbtcp.TransportError
	return errors.As(err, &terr)
}
