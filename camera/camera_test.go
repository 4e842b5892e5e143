package camera

import "testing"

func TestStateRoundTrip(t *testing.T) {
	for _, s := range []State{Unknown, Init, On, Running, Fault} {
		got, err := ParseState(s.String())
		if err != nil {
			t.Fatal(err)
		}
		if got != s {
			t.Errorf("ParseState(%q) = %v, want %v", s.String(), got, s)
		}
	}
}

func TestParseStateRejectsGarbage(t *testing.T) {
	if _, err := ParseState("MOVING"); err == nil {
		t.Error("expected error for unknown state name")
	}
}

func TestFrameStats(t *testing.T) {
	f := Frame{Pix: []uint16{1, 2, 3, 10}, Width: 2, Height: 2}
	if f.Min() != 1 {
		t.Errorf("Min = %d, want 1", f.Min())
	}
	if f.Max() != 10 {
		t.Errorf("Max = %d, want 10", f.Max())
	}
	if f.Mean() != 4 {
		t.Errorf("Mean = %v, want 4", f.Mean())
	}
}

func TestFrameStatsEmpty(t *testing.T) {
	f := Frame{}
	if f.Min() != 0 || f.Max() != 0 || f.Mean() != 0 {
		t.Error("empty frame stats should be zero")
	}
}
