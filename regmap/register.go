// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regmap

import (
	"fmt"
)

// Register is a word address and the fields laid out in that word.
type Register struct {
	name   string
	addr   uint32
	fields []Field
	index  map[string]int
}

// NewRegister validates fields and returns the register holding them.
// Fields must have distinct names and must not share bits.
func NewRegister(name string, addr uint32, fields ...Field) (*Register, error) {
	reg := &Register{
		name:   name,
		addr:   addr,
		fields: append([]Field(nil), fields...),
		index:  make(map[string]int, len(fields)),
	}

	for i, f := range reg.fields {
		err := f.validate()
		if err != nil {
			return nil, fmt.Errorf("regmap: invalid register %s: %w", name, err)
		}
		if _, dup := reg.index[f.name]; dup {
			return nil, fmt.Errorf("regmap: invalid register %s: duplicate field %s: %w",
				name, f.name, ErrInvalidField,
			)
		}
		for _, prev := range reg.fields[:i] {
			if prev.Span()&f.Span() != 0 {
				return nil, fmt.Errorf(
					"regmap: invalid register %s: fields %s (0x%08x) and %s (0x%08x): %w",
					name, prev.name, prev.Span(), f.name, f.Span(), ErrOverlap,
				)
			}
		}
		reg.index[f.name] = i
	}

	return reg, nil
}

// MustRegister is like NewRegister but panics on invalid definitions.
func MustRegister(name string, addr uint32, fields ...Field) *Register {
	reg, err := NewRegister(name, addr, fields...)
	if err != nil {
		panic(err)
	}
	return reg
}

func (reg *Register) Name() string { return reg.name }
func (reg *Register) Addr() uint32 { return reg.addr }

// Fields returns the fields of the register, in declaration order.
func (reg *Register) Fields() []Field {
	return append([]Field(nil), reg.fields...)
}

// Field returns the named field.
func (reg *Register) Field(name string) (Field, bool) {
	i, ok := reg.index[name]
	if !ok {
		return Field{}, false
	}
	return reg.fields[i], true
}

// At returns a copy of the register relocated offset bytes after reg.
func (reg *Register) At(offset uint32) *Register {
	o := *reg
	o.addr += offset
	return &o
}

// Read decodes every field of word.
func (reg *Register) Read(word uint32) (Fields, error) {
	out := make(Fields, len(reg.fields))
	for _, f := range reg.fields {
		v, err := f.Decode(word)
		if err != nil {
			return nil, fmt.Errorf("regmap: could not read %s: %w", reg.name, err)
		}
		out[f.name] = v
	}
	return out, nil
}

// Modify returns word with the fields named in changes set to their new
// values. Bits outside those fields are preserved.
// Nothing is applied if any change is invalid.
func (reg *Register) Modify(word uint32, changes Fields) (uint32, error) {
	for name := range changes {
		if _, ok := reg.index[name]; !ok {
			return word, fmt.Errorf("regmap: register %s has no field %s: %w", reg.name, name, ErrUnknownField)
		}
	}

	out := word
	for _, f := range reg.fields {
		v, ok := changes[f.name]
		if !ok {
			continue
		}
		var err error
		out, err = f.Encode(v, out)
		if err != nil {
			return word, fmt.Errorf("regmap: could not modify %s: %w", reg.name, err)
		}
	}
	return out, nil
}
