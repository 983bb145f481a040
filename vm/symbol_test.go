package vm

import (
	"errors"
	"testing"
)

func TestSymbolTableIntern(t *testing.T) {
	s, tr := openBare(t)
	st := s.Symbols()

	a, err := st.Intern(s, "foo")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := st.Intern(s, "bar")
	again, _ := st.Intern(s, "foo")

	if a != again {
		t.Errorf("Intern(foo) = %d then %d", a, again)
	}
	if a == b {
		t.Error("distinct names should get distinct ids")
	}
	if st.Name(b) != "bar" || st.Name(999) != "" {
		t.Error("Name() lookup wrong")
	}
	if id, ok := st.Lookup("bar"); !ok || id != b {
		t.Error("Lookup(bar) failed")
	}
	if _, ok := st.Lookup("baz"); ok {
		t.Error("Lookup(baz) should fail")
	}
	if all := st.All(); len(all) != 2 || all[0] != "foo" {
		t.Errorf("All() = %v", all)
	}
	closeAndCheck(t, s, tr)
}

func TestSymbolTableInternFailure(t *testing.T) {
	fail := false
	tr := NewTrackingAllocator(func(s *State, block []byte, size int, ud any) []byte {
		if fail && size > 0 {
			return nil
		}
		return DefaultAlloc(s, block, size, ud)
	})
	s, err := Open(tr.Alloc, nil, WithBootstrap(nil))
	if err != nil {
		t.Fatal(err)
	}
	fail = true
	if _, err := s.Intern("x"); !errors.Is(err, ErrAllocationFailure) {
		t.Errorf("Intern() error = %v", err)
	}
	fail = false
	if _, ok := s.Symbols().Lookup("x"); ok {
		t.Error("failed intern should not be recorded")
	}
	closeAndCheck(t, s, tr)
}

func TestGlobalTable(t *testing.T) {
	s, tr := openBare(t)
	for i := 0; i < 20; i++ {
		name := "$g" + string(rune('a'+i))
		if err := s.SetGlobal(name, FromFixnum(int64(i))); err != nil {
			t.Fatal(err)
		}
	}
	s.SetGlobal("$ga", FromFixnum(100))
	if s.Globals().Len() != 20 {
		t.Errorf("Len() = %d, want 20", s.Globals().Len())
	}
	if s.Global("$ga").Fixnum() != 100 || s.Global("$gt").Fixnum() != 19 {
		t.Error("global values wrong")
	}
	closeAndCheck(t, s, tr)
}

func TestValueString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Nil, "nil"},
		{True, "true"},
		{FromFixnum(-3), "-3"},
		{FromFloat(1.5), "1.5"},
		{FromString("hi"), `"hi"`},
		{FromSymbol(4), ":4"},
		{FromObject(nil), "nil"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
	if OpcodeName(OpSend) != "SEND" || OpcodeName(0xFF) != "?" {
		t.Error("OpcodeName() wrong")
	}
}
