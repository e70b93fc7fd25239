package session

import "testing"

func TestStopSetHoldBack(t *testing.T) {
	s := NewStopSet([]string{"<|end|>", "ab", ""})
	if s.HoldBack() != len("<|end|>") {
		t.Fatalf("HoldBack() = %d, want %d", s.HoldBack(), len("<|end|>"))
	}
	if s.Empty() {
		t.Fatalf("set with rules reported Empty")
	}
	if !NewStopSet(nil).Empty() {
		t.Fatalf("empty set not reported Empty")
	}
	if NewStopSet([]string{"", ""}).HoldBack() != 0 {
		t.Fatalf("empty rules should not contribute hold-back")
	}
}

func TestStopSetMatchSuffixOnly(t *testing.T) {
	s := NewStopSet([]string{"STOP"})
	if _, ok := s.Match([]byte("STOP in the middle")); ok {
		t.Fatalf("matched a non-suffix occurrence")
	}
	n, ok := s.Match([]byte("text then STOP"))
	if !ok || n != 4 {
		t.Fatalf("Match = (%d, %v), want (4, true)", n, ok)
	}
}

func TestStopSetConfigurationOrderWins(t *testing.T) {
	// Both rules are suffixes of the text; the first configured wins.
	s := NewStopSet([]string{"xyz", "yz"})
	n, ok := s.Match([]byte("wxyz"))
	if !ok || n != 3 {
		t.Fatalf("Match = (%d, %v), want (3, true)", n, ok)
	}
	s = NewStopSet([]string{"yz", "xyz"})
	n, ok = s.Match([]byte("wxyz"))
	if !ok || n != 2 {
		t.Fatalf("Match = (%d, %v), want (2, true)", n, ok)
	}
}
