// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the YAML configuration of the acquisition monitor.
package config // import "github.com/lnls-dig/wbacq/internal/config"

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultIntervalMs = 1000
	defaultSubject    = "[wbacq] acquisition alert"
	defaultRegister   = "STA"
)

type Config struct {
	Monitor MonitorConfig  `yaml:"monitor"`
	Targets []TargetConfig `yaml:"targets"`
}

type MonitorConfig struct {
	IntervalMs int        `yaml:"interval_ms"`
	TimeoutMs  int        `yaml:"timeout_ms"` // 0: wait forever for replies
	Mail       MailConfig `yaml:"mail"`
	DB         string     `yaml:"db"` // snapshot database DSN (optional)
}

type MailConfig struct {
	To      []string `yaml:"to"`
	Subject string   `yaml:"subject"`
}

type TargetConfig struct {
	ID       string        `yaml:"id"`
	Endpoint string        `yaml:"endpoint"` // host:port
	Alerts   []AlertConfig `yaml:"alerts"`
}

// AlertConfig raises an alert when a register field holds a value.
type AlertConfig struct {
	Register string `yaml:"register"` // defaults to STA
	Field    string `yaml:"field"`
	Value    string `yaml:"value"`
}

// Interval returns the polling period.
func (cfg MonitorConfig) Interval() time.Duration {
	return time.Duration(cfg.IntervalMs) * time.Millisecond
}

// Timeout returns the reply timeout.
func (cfg MonitorConfig) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutMs) * time.Millisecond
}

// Load reads, validates and normalizes the configuration in fname.
func Load(fname string) (*Config, error) {
	raw, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("config: could not read %q: %w", fname, err)
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config: could not load %q: %w", fname, err)
	}
	return cfg, nil
}

// Parse decodes, validates and normalizes a YAML configuration.
// Unknown keys are rejected.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	err := dec.Decode(&cfg)
	if err != nil {
		return nil, fmt.Errorf("config: could not decode YAML: %w", err)
	}

	err = Validate(&cfg)
	if err != nil {
		return nil, err
	}
	Normalize(&cfg)
	return &cfg, nil
}
