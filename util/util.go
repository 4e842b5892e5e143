// Package util contains misc internal utilities.
package util

// Limiter is a pair of min/max values which can check if a command is in range.
// The zero value has Min == Max == 0, which Check treats as "no limit".
type Limiter struct {
	// Min is the lower bound
	Min float64 `json:"min" yaml:"Min"`

	// Max is the upper bound
	Max float64 `json:"max" yaml:"Max"`
}

// Check returns true if v is within the limits
func (l Limiter) Check(v float64) bool {
	if l.Min == 0 && l.Max == 0 {
		return true
	}
	return v >= l.Min && v <= l.Max
}

// AllElementsNumbers returns true if the string is entirely numeric,
// i.e. digits, periods, and signs
func AllElementsNumbers(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != '-' && r != '+' {
			return false
		}
	}
	return len(s) > 0
}
