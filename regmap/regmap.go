// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regmap describes 32-bit hardware registers as collections of
// bit fields, optionally named through symbolic enumerations.
//
// Registers hold no value: they decode words fetched from a device and
// compute the words to write back (read-modify-write).
package regmap // import "github.com/lnls-dig/wbacq/regmap"

import (
	"errors"
	"sort"
)

var (
	// ErrUnknownSymbol is returned when a value cannot be encoded into a
	// field, most often a symbol absent from the field's enumeration.
	ErrUnknownSymbol = errors.New("regmap: unknown symbol")

	// ErrUnmappedValue is returned when a field's bits do not correspond
	// to any symbol of its enumeration.
	ErrUnmappedValue = errors.New("regmap: unmapped value")

	// ErrUnknownField is returned when a change names a field the
	// register does not have.
	ErrUnknownField = errors.New("regmap: unknown field")

	// ErrOverlap is returned when two fields of a register share bits.
	ErrOverlap = errors.New("regmap: overlapping fields")

	// ErrInvalidField is returned for malformed field definitions.
	ErrInvalidField = errors.New("regmap: invalid field")
)

// Fields maps field names to values.
// It is both the result of a register read and the set of changes of a
// register modify.
type Fields map[string]Value

// Names returns the sorted field names.
func (fs Fields) Names() []string {
	names := make([]string, 0, len(fs))
	for k := range fs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
