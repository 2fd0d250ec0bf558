// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/lnls-dig/wbacq/acq"
	"github.com/lnls-dig/wbacq/regmap"
)

// Validate checks the configuration.
// It does not modify cfg.
func Validate(cfg *Config) error {
	if cfg.Monitor.IntervalMs < 0 {
		return fmt.Errorf("config: invalid interval_ms %d", cfg.Monitor.IntervalMs)
	}
	if cfg.Monitor.TimeoutMs < 0 {
		return fmt.Errorf("config: invalid timeout_ms %d", cfg.Monitor.TimeoutMs)
	}

	if len(cfg.Targets) == 0 {
		return fmt.Errorf("config: no target")
	}

	var (
		ids       = make(map[string]bool, len(cfg.Targets))
		endpoints = make(map[string]string, len(cfg.Targets))
	)
	for i, t := range cfg.Targets {
		if t.ID == "" {
			return fmt.Errorf("config: target #%d has no id", i)
		}
		if ids[t.ID] {
			return fmt.Errorf("config: duplicate target %q", t.ID)
		}
		ids[t.ID] = true

		// the peer serves one connection at a time.
		if prev, dup := endpoints[t.Endpoint]; dup {
			return fmt.Errorf("config: targets %q and %q share endpoint %q", prev, t.ID, t.Endpoint)
		}
		endpoints[t.Endpoint] = t.ID

		_, port, err := net.SplitHostPort(t.Endpoint)
		if err != nil {
			return fmt.Errorf("config: target %q: invalid endpoint %q: %w", t.ID, t.Endpoint, err)
		}
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return fmt.Errorf("config: target %q: invalid port %q", t.ID, port)
		}

		for j, a := range t.Alerts {
			err := validateAlert(a)
			if err != nil {
				return fmt.Errorf("config: target %q: alert #%d: %w", t.ID, j, err)
			}
		}
	}

	return nil
}

func validateAlert(a AlertConfig) error {
	name := a.Register
	if name == "" {
		name = defaultRegister
	}
	reg, ok := acq.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown register %q", name)
	}
	f, ok := reg.Field(a.Field)
	if !ok {
		return fmt.Errorf("register %s has no field %q: %w", name, a.Field, regmap.ErrUnknownField)
	}
	_, err := f.Encode(regmap.ParseValue(a.Value), 0)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", a.Value, err)
	}
	return nil
}
