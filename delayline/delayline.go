/*Package delayline maps pump-probe time delays onto delay stage positions.

The stage double-passes the probe beam, so one millimeter of stage travel is
two millimeters of path, and the conversion from picoseconds of delay to
stage millimeters is c/2.
*/
package delayline

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// MMPerPS is the stage displacement per picosecond of delay, c/2
	MMPerPS = 0.149896229

	// DefaultT0 is the stage position of zero pump-probe delay, mm
	DefaultT0 = 27.1083
)

// moveTimeout bounds how long Move waits for the stage to settle
const moveTimeout = 5 * time.Minute

// Mover is a single axis of a motion controller
type Mover interface {
	GetPos(string) (float64, error)
	MoveAbs(string, float64) error
	MoveRel(string, float64) error
	Home(string) error
}

// Waiter is a controller which can block until motion completes
type Waiter interface {
	Wait(string, time.Duration) error
}

// DelayLine is a delay stage axis viewed in units of time
type DelayLine struct {
	// T0 is the stage position of zero delay, mm
	T0 float64

	// Axis is the controller axis the stage is connected to
	Axis string

	mov Mover
}

// New returns a delay line on axis of mov with the given time-zero position
func New(mov Mover, axis string, t0 float64) *DelayLine {
	return &DelayLine{T0: t0, Axis: axis, mov: mov}
}

// MMToPS converts a stage position in mm to a delay in ps
func (dl *DelayLine) MMToPS(mm float64) float64 {
	return (mm - dl.T0) / MMPerPS
}

// PSToMM converts a delay in ps to a stage position in mm
func (dl *DelayLine) PSToMM(ps float64) float64 {
	return dl.T0 + ps*MMPerPS
}

// Move moves the stage to the position of the given delay in ps.  If the
// controller can report motion-done, Move blocks until the stage settles
func (dl *DelayLine) Move(ps float64) error {
	err := dl.mov.MoveAbs(dl.Axis, dl.PSToMM(ps))
	if err != nil {
		return err
	}
	if w, ok := dl.mov.(Waiter); ok {
		return w.Wait(dl.Axis, moveTimeout)
	}
	return nil
}

// Position returns the current delay in ps
func (dl *DelayLine) Position() (float64, error) {
	mm, err := dl.mov.GetPos(dl.Axis)
	if err != nil {
		return 0, err
	}
	return dl.MMToPS(mm), nil
}

// Home homes the underlying stage axis
func (dl *DelayLine) Home() error {
	return dl.mov.Home(dl.Axis)
}

// round3 rounds to femtosecond precision
func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

// ParseDelays parses a comma-separated list of delays in ps.  Elements may be
// floats or start:step:stop ranges (stop exclusive, like a numpy arange; a
// range that walks away from its stop contributes nothing).  Delays are
// rounded to 3 decimals and returned sorted.  Any invalid element renders the
// entire input invalid and an empty list is returned
func ParseDelays(s string) []float64 {
	out := []float64{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	for _, piece := range strings.Split(s, ",") {
		piece = strings.TrimSpace(piece)
		if strings.Contains(piece, ":") {
			bounds := strings.Split(piece, ":")
			if len(bounds) != 3 {
				return []float64{}
			}
			var fs [3]float64
			for i, b := range bounds {
				f, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
				if err != nil {
					return []float64{}
				}
				fs[i] = f
			}
			start, step, stop := fs[0], fs[1], fs[2]
			if step == 0 {
				return []float64{}
			}
			n := int(math.Ceil((stop - start) / step))
			for i := 0; i < n; i++ {
				out = append(out, round3(start+float64(i)*step))
			}
		} else {
			f, err := strconv.ParseFloat(piece, 64)
			if err != nil {
				return []float64{}
			}
			out = append(out, round3(f))
		}
	}
	sort.Float64s(out)
	return out
}
