// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wbacq holds tools to drive the data-acquisition core of a
// simulated gateware over its Wishbone-over-TCP register interface.
//
// The register description lives in package regmap, the wire protocol in
// package wbtcp and the acquisition controller in package acq.
package wbacq // import "github.com/lnls-dig/wbacq"

import (
	"fmt"
	"runtime/debug"
)

const modPath = "github.com/lnls-dig/wbacq"

// Version returns the version of wbacq and its checksum.
// The returned values are only valid in binaries built with module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}

	mod := b.Main
	if mod.Path != modPath {
		for _, m := range b.Deps {
			if m.Path == modPath {
				mod = *m
				break
			}
		}
	}
	if mod.Path != modPath {
		return "", ""
	}

	if r := mod.Replace; r != nil {
		switch {
		case r.Version != "" && r.Path != "":
			return fmt.Sprintf("%s %s", r.Path, r.Version), r.Sum
		case r.Version != "":
			return r.Version, r.Sum
		case r.Path != "":
			return r.Path, r.Sum
		default:
			return mod.Version + "*", ""
		}
	}
	return mod.Version, mod.Sum
}
