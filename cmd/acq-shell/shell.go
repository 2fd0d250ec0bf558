// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/lnls-dig/wbacq/acq"
	"github.com/lnls-dig/wbacq/regmap"
)

type shell struct {
	w   io.Writer
	ctl *acq.Controller
}

func newShell(w io.Writer, ctl *acq.Controller) *shell {
	return &shell{w: w, ctl: ctl}
}

type cmdFunc func(sh *shell, args []string) error

type command struct {
	help string
	fct  cmdFunc
}

var cmds map[string]command

func init() {
	cmds = map[string]command{
		"read":    {"read <REG|0xADDR>: read a register", (*shell).cmdRead},
		"write":   {"write <REG> FIELD=VALUE... | write <REG|0xADDR> VALUE: write a register", (*shell).cmdWrite},
		"desc":    {"desc <CHAN>: describe a channel", (*shell).cmdDesc},
		"dump":    {"dump: print all registers as JSON", (*shell).cmdDump},
		"acquire": {"acquire [ch=N] [trig-ch=N] [pre=N] [post=N] [shots=N] [start=N] [end=N] [now=BOOL] [swtrig=BOOL]: start an acquisition", (*shell).cmdAcquire},
		"stop":    {"stop: stop the acquisition", (*shell).cmdStop},
		"poll":    {"poll [DURATION]: wait for the acquisition to complete", (*shell).cmdPoll},
		"trig":    {"trig: fire the software trigger", (*shell).cmdTrig},
		"event":   {"event: wait for the next event", (*shell).cmdEvent},
		"regs":    {"regs: list registers", (*shell).cmdRegs},
		"help":    {"help: print this help", (*shell).cmdHelp},
		"quit":    {"quit: leave the shell", nil},
		"exit":    {"exit: end the simulation and leave the shell", nil},
	}
}

// exec runs one command line and reports whether the shell must be left.
func (sh *shell) exec(line string) (bool, error) {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return false, nil
	}

	name, args := toks[0], toks[1:]
	switch name {
	case "quit":
		return true, sh.ctl.Close()
	case "exit":
		return true, sh.ctl.Finish()
	}

	cmd, ok := cmds[name]
	if !ok {
		return false, fmt.Errorf("unknown command %q (try help)", name)
	}
	return false, cmd.fct(sh, args)
}

func complete(line string) []string {
	var out []string
	toks := strings.Fields(line)
	switch {
	case len(toks) == 0:
		for name := range cmds {
			out = append(out, name)
		}
	case len(toks) == 1 && !strings.HasSuffix(line, " "):
		for name := range cmds {
			if strings.HasPrefix(name, toks[0]) {
				out = append(out, name)
			}
		}
	case toks[0] == "read" || toks[0] == "write":
		prefix := ""
		if len(toks) == 2 && !strings.HasSuffix(line, " ") {
			prefix = toks[1]
		} else if len(toks) != 1 {
			return nil
		}
		for _, name := range regNames() {
			if strings.HasPrefix(name, prefix) {
				out = append(out, toks[0]+" "+name)
			}
		}
	}
	sort.Strings(out)
	return out
}

func regNames() []string {
	var names []string
	for _, reg := range acq.Registers() {
		names = append(names, reg.Name())
	}
	for _, s := range acq.Scalars() {
		names = append(names, s.Name)
	}
	return names
}

func (sh *shell) cmdRead(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("read: expected one register")
	}
	name := args[0]

	if reg, ok := acq.Lookup(name); ok {
		fields, err := sh.ctl.Read(reg.Name())
		if err != nil {
			return err
		}
		sh.printFields(fields)
		return nil
	}

	addr, err := sh.addr(name)
	if err != nil {
		return err
	}
	v, err := sh.ctl.ReadRaw(addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.w, "0x%08x\n", v)
	return nil
}

func (sh *shell) cmdWrite(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("write: expected a register and a value")
	}
	name := args[0]

	if reg, ok := acq.Lookup(name); ok {
		changes := make(regmap.Fields, len(args)-1)
		for _, arg := range args[1:] {
			k, v, ok := strings.Cut(arg, "=")
			if !ok {
				return fmt.Errorf("write: invalid change %q (want FIELD=VALUE)", arg)
			}
			changes[k] = regmap.ParseValue(v)
		}
		return sh.ctl.Write(reg.Name(), changes)
	}

	if len(args) != 2 {
		return fmt.Errorf("write: expected one value for %q", name)
	}
	if s, ok := acq.LookupScalar(name); ok && s.ReadOnly {
		return fmt.Errorf("write: %s: %w", name, acq.ErrReadOnly)
	}
	addr, err := sh.addr(name)
	if err != nil {
		return err
	}
	v, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("write: invalid value %q: %w", args[1], err)
	}
	return sh.ctl.WriteRaw(addr, uint32(v))
}

func (sh *shell) cmdDesc(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("desc: expected one channel")
	}
	ch, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("desc: invalid channel %q: %w", args[0], err)
	}
	fields, err := sh.ctl.ReadChannelDesc(ch)
	if err != nil {
		return err
	}
	sh.printFields(fields)
	return nil
}

func (sh *shell) cmdDump(args []string) error {
	snap, err := sh.ctl.ReadAll()
	if err != nil {
		return err
	}
	raw, err := snap.JSON()
	if err != nil {
		return fmt.Errorf("dump: could not encode registers: %w", err)
	}
	fmt.Fprintf(sh.w, "%s\n", raw)
	return nil
}

func (sh *shell) cmdAcquire(args []string) error {
	cfg := acq.DefaultAcquisition()
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("acquire: invalid option %q (want KEY=VALUE)", arg)
		}
		var err error
		switch k {
		case "ch":
			cfg.Channel, err = parseUint(v)
		case "trig-ch":
			cfg.TrigChannel, err = parseUint(v)
		case "pre":
			cfg.PreSamples, err = parseUint(v)
		case "post":
			cfg.PostSamples, err = parseUint(v)
		case "shots":
			cfg.Shots, err = parseUint(v)
		case "start":
			cfg.DDR3StartAddr, err = parseUint(v)
		case "end":
			cfg.DDR3EndAddr, err = parseUint(v)
		case "now":
			cfg.Immediate, err = strconv.ParseBool(v)
		case "swtrig":
			cfg.SWTrig, err = strconv.ParseBool(v)
		default:
			return fmt.Errorf("acquire: unknown option %q", k)
		}
		if err != nil {
			return fmt.Errorf("acquire: invalid %s value %q: %w", k, v, err)
		}
	}
	return sh.ctl.Acquire(cfg)
}

func (sh *shell) cmdStop(args []string) error {
	return sh.ctl.Stop()
}

func (sh *shell) cmdPoll(args []string) error {
	timeout := 1 * time.Second
	if len(args) > 0 {
		var err error
		timeout, err = time.ParseDuration(args[0])
		if err != nil {
			return fmt.Errorf("poll: invalid duration %q: %w", args[0], err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sta, err := sh.ctl.Poll(ctx, 10*time.Millisecond)
	if err != nil {
		return err
	}
	sh.printFields(sta)
	return nil
}

func (sh *shell) cmdTrig(args []string) error {
	return sh.ctl.SendSWTrig()
}

func (sh *shell) cmdEvent(args []string) error {
	evt, err := sh.ctl.WaitEvent()
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.w, "event %s\n", evt)
	return nil
}

func (sh *shell) cmdRegs(args []string) error {
	tw := tabwriter.NewWriter(sh.w, 0, 4, 1, ' ', 0)
	for _, reg := range acq.Registers() {
		names := make([]string, 0, len(reg.Fields()))
		for _, f := range reg.Fields() {
			names = append(names, f.Name())
		}
		fmt.Fprintf(tw, "0x%02x\t%s\t%s\n", reg.Addr(), reg.Name(), strings.Join(names, " "))
	}
	for _, s := range acq.Scalars() {
		mode := ""
		if s.ReadOnly {
			mode = "(read-only)"
		}
		fmt.Fprintf(tw, "0x%02x\t%s\t%s\n", s.Addr, s.Name, mode)
	}
	return tw.Flush()
}

func (sh *shell) cmdHelp(args []string) error {
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(sh.w, "  %s\n", cmds[name].help)
	}
	return nil
}

// addr resolves a scalar register name or a numeric address.
func (sh *shell) addr(name string) (uint32, error) {
	if s, ok := acq.LookupScalar(name); ok {
		return s.Addr, nil
	}
	v, err := strconv.ParseUint(name, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown register %q", name)
	}
	return uint32(v), nil
}

func (sh *shell) printFields(fields regmap.Fields) {
	for _, name := range fields.Names() {
		fmt.Fprintf(sh.w, "%s=%v\n", name, fields[name])
	}
}

func parseUint(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	return uint32(v), err
}
