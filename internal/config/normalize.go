// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

// Normalize fills in the defaults.
// It must be called after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Monitor.IntervalMs == 0 {
		cfg.Monitor.IntervalMs = defaultIntervalMs
	}
	if cfg.Monitor.Mail.Subject == "" {
		cfg.Monitor.Mail.Subject = defaultSubject
	}

	for i := range cfg.Targets {
		t := &cfg.Targets[i]
		for j := range t.Alerts {
			if t.Alerts[j].Register == "" {
				t.Alerts[j].Register = defaultRegister
			}
		}
	}
}
