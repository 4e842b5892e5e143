package util_test

import (
	"testing"

	"github.com/siwick-lab/tvipstools/util"
)

func TestLimiterZeroValuePassesEverything(t *testing.T) {
	l := util.Limiter{}
	for _, v := range []float64{-1e9, 0, 27.1083, 1e9} {
		if !l.Check(v) {
			t.Errorf("zero-value limiter rejected %v", v)
		}
	}
}

func TestLimiterBounds(t *testing.T) {
	l := util.Limiter{Min: 0, Max: 250}
	cases := []struct {
		v  float64
		ok bool
	}{
		{-0.001, false},
		{0, true},
		{27.1083, true},
		{250, true},
		{250.5, false},
	}
	for _, tc := range cases {
		if got := l.Check(tc.v); got != tc.ok {
			t.Errorf("Check(%v) = %v, want %v", tc.v, got, tc.ok)
		}
	}
}

func TestAllElementsNumbers(t *testing.T) {
	cases := []struct {
		s  string
		ok bool
	}{
		{"15", true},
		{"15.5", true},
		{"-3.2", true},
		{"15s", false},
		{"", false},
		{"abc", false},
	}
	for _, tc := range cases {
		if got := util.AllElementsNumbers(tc.s); got != tc.ok {
			t.Errorf("AllElementsNumbers(%q) = %v, want %v", tc.s, got, tc.ok)
		}
	}
}
