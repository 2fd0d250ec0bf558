// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regmap

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the kind of a field or of a value.
type Kind uint8

const (
	KindUint Kind = iota // plain number
	KindEnum             // symbolic state name
	KindBool             // single-bit boolean
)

func (k Kind) String() string {
	switch k {
	case KindUint:
		return "uint"
	case KindEnum:
		return "enum"
	case KindBool:
		return "bool"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is the decoded content of a field.
// Values are comparable with ==.
type Value struct {
	kind Kind
	num  uint32
	sym  string
}

// Uint returns a numeric value.
func Uint(v uint32) Value { return Value{kind: KindUint, num: v} }

// Sym returns a symbolic value.
func Sym(name string) Value { return Value{kind: KindEnum, sym: name} }

// Bool returns a boolean value.
func Bool(v bool) Value {
	if v {
		return Value{kind: KindBool, num: 1}
	}
	return Value{kind: KindBool}
}

// ParseValue interprets s as a boolean ("true", "false"), a number
// (decimal, 0x-hex, 0o-octal or 0b-binary) or, failing both, a symbol.
func ParseValue(s string) Value {
	s = strings.TrimSpace(s)
	switch s {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	if v, err := strconv.ParseUint(s, 0, 32); err == nil {
		return Uint(uint32(v))
	}
	return Sym(s)
}

func (v Value) Kind() Kind { return v.kind }

// Uint returns the numeric content of v (1 or 0 for booleans, 0 for symbols).
func (v Value) Uint() uint32 { return v.num }

// Sym returns the symbol held by v, or "" if v is not symbolic.
func (v Value) Sym() string { return v.sym }

// Bool reports whether v is a true boolean.
func (v Value) Bool() bool { return v.kind == KindBool && v.num != 0 }

func (v Value) String() string {
	switch v.kind {
	case KindEnum:
		return v.sym
	case KindBool:
		return strconv.FormatBool(v.num != 0)
	}
	return strconv.FormatUint(uint64(v.num), 10)
}

// MarshalJSON encodes numbers as JSON numbers, symbols as JSON strings and
// booleans as JSON booleans.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindEnum:
		return json.Marshal(v.sym)
	case KindBool:
		return json.Marshal(v.num != 0)
	}
	return json.Marshal(v.num)
}

func (v *Value) UnmarshalJSON(p []byte) error {
	var raw interface{}
	err := json.Unmarshal(p, &raw)
	if err != nil {
		return fmt.Errorf("regmap: could not decode value: %w", err)
	}
	switch raw := raw.(type) {
	case string:
		*v = Sym(raw)
	case bool:
		*v = Bool(raw)
	case float64:
		if raw < 0 || raw > 0xffffffff || raw != float64(uint32(raw)) {
			return fmt.Errorf("regmap: value %v is not a 32-bit unsigned integer", raw)
		}
		*v = Uint(uint32(raw))
	default:
		return fmt.Errorf("regmap: invalid JSON value %s", p)
	}
	return nil
}
