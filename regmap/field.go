// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regmap

import (
	"fmt"
	"math/bits"
)

// Symbol associates a state name with its encoding.
type Symbol struct {
	Name  string
	Value uint32
}

// Field is a contiguous bit range of a 32-bit word.
// The mask is applied after the shift.
type Field struct {
	name  string
	shift uint
	mask  uint32
	kind  Kind

	syms []Symbol // declaration order
	s2v  map[string]uint32
	v2s  map[uint32]string

	err error
}

// UintField returns a numeric field.
func UintField(name string, shift uint, mask uint32) Field {
	return Field{name: name, shift: shift, mask: mask, kind: KindUint}
}

// BoolField returns a single-bit boolean field.
func BoolField(name string, shift uint) Field {
	return Field{name: name, shift: shift, mask: 0x1, kind: KindBool}
}

// EnumField returns a field whose values are named by syms.
// The mapping must be bijective.
func EnumField(name string, shift uint, mask uint32, syms ...Symbol) Field {
	f := Field{
		name:  name,
		shift: shift,
		mask:  mask,
		kind:  KindEnum,
		syms:  append([]Symbol(nil), syms...),
		s2v:   make(map[string]uint32, len(syms)),
		v2s:   make(map[uint32]string, len(syms)),
	}
	for _, sym := range syms {
		if _, dup := f.s2v[sym.Name]; dup {
			f.err = fmt.Errorf("regmap: field %s: duplicate symbol %q: %w", name, sym.Name, ErrInvalidField)
			break
		}
		if prev, dup := f.v2s[sym.Value]; dup {
			f.err = fmt.Errorf(
				"regmap: field %s: symbols %q and %q share value 0x%x: %w",
				name, prev, sym.Name, sym.Value, ErrInvalidField,
			)
			break
		}
		f.s2v[sym.Name] = sym.Value
		f.v2s[sym.Value] = sym.Name
	}
	return f
}

func (f Field) Name() string { return f.name }
func (f Field) Shift() uint  { return f.shift }
func (f Field) Mask() uint32 { return f.mask }
func (f Field) Kind() Kind   { return f.kind }

// Width returns the number of bits of the field.
func (f Field) Width() int { return bits.OnesCount32(f.mask) }

// Span returns the bits of a word covered by the field.
func (f Field) Span() uint32 { return f.mask << f.shift }

// Symbols returns the enumeration of the field, in declaration order.
func (f Field) Symbols() []Symbol {
	return append([]Symbol(nil), f.syms...)
}

func (f Field) validate() error {
	if f.err != nil {
		return f.err
	}
	if f.name == "" {
		return fmt.Errorf("regmap: field without a name: %w", ErrInvalidField)
	}
	if f.mask == 0 || f.mask&(f.mask+1) != 0 {
		return fmt.Errorf("regmap: field %s: mask 0x%x is not a contiguous run of low bits: %w",
			f.name, f.mask, ErrInvalidField,
		)
	}
	if f.shift+uint(f.Width()) > 32 {
		return fmt.Errorf("regmap: field %s: bits [%d, %d) do not fit in a 32-bit word: %w",
			f.name, f.shift, f.shift+uint(f.Width()), ErrInvalidField,
		)
	}
	if f.kind == KindEnum {
		if len(f.syms) == 0 {
			return fmt.Errorf("regmap: field %s: empty enumeration: %w", f.name, ErrInvalidField)
		}
		for _, sym := range f.syms {
			if sym.Value&^f.mask != 0 {
				return fmt.Errorf("regmap: field %s: symbol %q (0x%x) does not fit mask 0x%x: %w",
					f.name, sym.Name, sym.Value, f.mask, ErrInvalidField,
				)
			}
		}
	}
	return nil
}

// Extract returns the raw bits of the field held by word.
func (f Field) Extract(word uint32) uint32 {
	return (word >> f.shift) & f.mask
}

// Insert returns word with the field's bits replaced by raw.
// Bits of raw outside the mask are dropped.
func (f Field) Insert(raw, word uint32) uint32 {
	word &^= f.mask << f.shift
	return word | (raw&f.mask)<<f.shift
}

// Encode returns word with the field set to v.
// The other bits of word are preserved.
func (f Field) Encode(v Value, word uint32) (uint32, error) {
	raw, err := f.rawOf(v)
	if err != nil {
		return word, err
	}
	return f.Insert(raw, word), nil
}

func (f Field) rawOf(v Value) (uint32, error) {
	if v.kind != f.kind {
		return 0, fmt.Errorf("regmap: field %s (%v) cannot hold %v value %q: %w",
			f.name, f.kind, v.kind, v, ErrUnknownSymbol,
		)
	}
	switch f.kind {
	case KindEnum:
		raw, ok := f.s2v[v.sym]
		if !ok {
			return 0, fmt.Errorf("regmap: field %s has no symbol %q: %w", f.name, v.sym, ErrUnknownSymbol)
		}
		return raw, nil
	default:
		return v.num, nil
	}
}

// Decode returns the value of the field held by word.
func (f Field) Decode(word uint32) (Value, error) {
	raw := f.Extract(word)
	switch f.kind {
	case KindEnum:
		sym, ok := f.v2s[raw]
		if !ok {
			return Value{}, fmt.Errorf("regmap: field %s has no symbol for value 0x%x: %w",
				f.name, raw, ErrUnmappedValue,
			)
		}
		return Sym(sym), nil
	case KindBool:
		return Bool(raw != 0), nil
	default:
		return Uint(raw), nil
	}
}
