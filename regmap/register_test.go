// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regmap

import (
	"errors"
	"reflect"
	"testing"
)

func newCTL(t *testing.T) *Register {
	t.Helper()
	reg, err := NewRegister("CTL", 0x00,
		EnumField("FSM_START_ACQ", 0, 0x1, Symbol{"DO_NOTHING", 0}, Symbol{"START", 1}),
		EnumField("FSM_STOP_ACQ", 1, 0x1, Symbol{"DO_NOTHING", 0}, Symbol{"STOP", 1}),
		EnumField("FSM_ACQ_NOW", 16, 0x1, Symbol{"WAIT_TRIG", 0}, Symbol{"IMMEDIATE", 1}),
	)
	if err != nil {
		t.Fatalf("could not create register: %+v", err)
	}
	return reg
}

func TestRegisterRead(t *testing.T) {
	reg := newCTL(t)

	got, err := reg.Read(0x00010001)
	if err != nil {
		t.Fatalf("could not read register: %+v", err)
	}
	want := Fields{
		"FSM_START_ACQ": Sym("START"),
		"FSM_STOP_ACQ":  Sym("DO_NOTHING"),
		"FSM_ACQ_NOW":   Sym("IMMEDIATE"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid read:\ngot= %v\nwant=%v", got, want)
	}
}

func TestRegisterModify(t *testing.T) {
	reg := newCTL(t)

	for _, tc := range []struct {
		name    string
		word    uint32
		changes Fields
		want    uint32
		err     error
	}{
		{
			name: "identity-nil",
			word: 0xdeadbeef,
			want: 0xdeadbeef,
		},
		{
			name:    "identity-empty",
			word:    0x12345678,
			changes: Fields{},
			want:    0x12345678,
		},
		{
			name:    "preserve-others",
			word:    0xffffffff,
			changes: Fields{"FSM_START_ACQ": Sym("DO_NOTHING")},
			want:    0xfffffffe,
		},
		{
			name: "many",
			word: 0x00000000,
			changes: Fields{
				"FSM_ACQ_NOW":   Sym("IMMEDIATE"),
				"FSM_START_ACQ": Sym("START"),
			},
			want: 0x00010001,
		},
		{
			name:    "unknown-field",
			word:    0x2,
			changes: Fields{"FSM_START_ACQ": Sym("START"), "NOPE": Uint(1)},
			want:    0x2,
			err:     ErrUnknownField,
		},
		{
			name: "unknown-symbol-is-atomic",
			word: 0x2,
			changes: Fields{
				"FSM_START_ACQ": Sym("START"),
				"FSM_ACQ_NOW":   Sym("LATER"),
			},
			want: 0x2,
			err:  ErrUnknownSymbol,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := reg.Modify(tc.word, tc.changes)
			if !errors.Is(err, tc.err) {
				t.Fatalf("invalid error: got=%+v, want=%+v", err, tc.err)
			}
			if got != tc.want {
				t.Fatalf("invalid word: got=0x%08x, want=0x%08x", got, tc.want)
			}
		})
	}
}

func TestRegisterReadModify(t *testing.T) {
	reg := newCTL(t)

	for _, f := range reg.Fields() {
		for _, sym := range f.Symbols() {
			for _, w := range []uint32{0, 0xffffffff, 0xa5a5a5a5} {
				word, err := reg.Modify(w, Fields{f.Name(): Sym(sym.Name)})
				if err != nil {
					t.Fatalf("could not modify %s=%s: %+v", f.Name(), sym.Name, err)
				}
				got, err := reg.Read(word)
				if err != nil {
					t.Fatalf("could not read 0x%08x: %+v", word, err)
				}
				if got, want := got[f.Name()], Sym(sym.Name); got != want {
					t.Fatalf("invalid %s: got=%v, want=%v", f.Name(), got, want)
				}
			}
		}
	}
}

func TestNewRegister(t *testing.T) {
	for _, tc := range []struct {
		name   string
		fields []Field
		err    error
	}{
		{
			name: "ok",
			fields: []Field{
				UintField("WHICH", 0, 0x1f),
				UintField("DTRIG_WHICH", 8, 0x1f),
				UintField("NUM_CHAN", 16, 0x1f),
			},
		},
		{
			name: "overlap",
			fields: []Field{
				UintField("A", 0, 0xff),
				UintField("B", 4, 0xff),
			},
			err: ErrOverlap,
		},
		{
			name: "duplicate",
			fields: []Field{
				UintField("A", 0, 0x1),
				UintField("A", 1, 0x1),
			},
			err: ErrInvalidField,
		},
		{
			name: "invalid-field",
			fields: []Field{
				UintField("A", 0, 0x6),
			},
			err: ErrInvalidField,
		},
		{
			name: "narrow-fsm-mask",
			fields: []Field{
				EnumField("FSM_STATE", 0, 0x03,
					Symbol{"ILLEGAL0", 0}, Symbol{"IDLE", 1}, Symbol{"PRE_TRIG", 2},
					Symbol{"WAIT_TRIG", 3}, Symbol{"POST_TRIG", 4},
				),
			},
			err: ErrInvalidField,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRegister("REG", 0x38, tc.fields...)
			if !errors.Is(err, tc.err) {
				t.Fatalf("invalid error: got=%+v, want=%+v", err, tc.err)
			}
		})
	}
}

func TestMustRegister(t *testing.T) {
	defer func() {
		e := recover()
		if e == nil {
			t.Fatalf("expected a panic")
		}
		err, ok := e.(error)
		if !ok || !errors.Is(err, ErrOverlap) {
			t.Fatalf("invalid panic value: %+v", e)
		}
	}()
	_ = MustRegister("REG", 0, BoolField("A", 0), BoolField("B", 0))
}

func TestRegisterAt(t *testing.T) {
	reg := MustRegister("CH_DESC", 0x3c,
		UintField("INT_WIDTH", 0, 0xffff),
		UintField("NUM_COALESCE", 16, 0xffff),
	)
	ch2 := reg.At(16)
	if got, want := ch2.Addr(), uint32(0x4c); got != want {
		t.Fatalf("invalid address: got=0x%x, want=0x%x", got, want)
	}
	if got, want := reg.Addr(), uint32(0x3c); got != want {
		t.Fatalf("base register modified: got=0x%x, want=0x%x", got, want)
	}
	fs, err := ch2.Read(0x00020010)
	if err != nil {
		t.Fatalf("could not read: %+v", err)
	}
	if got, want := fs, (Fields{"INT_WIDTH": Uint(16), "NUM_COALESCE": Uint(2)}); !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid fields:\ngot= %v\nwant=%v", got, want)
	}
	if got, want := fs.Names(), []string{"INT_WIDTH", "NUM_COALESCE"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid names: got=%q, want=%q", got, want)
	}
}
