/*Package camera describes a standard set of interfaces for control of the
scientific cameras used in the lab, and the frame type they produce.

The Viewer interface covers continuous (live) readout, while PictureTaker
covers triggered, integrating acquisitions.  Hardware drivers and simulators
both satisfy these, so the services above them do not care which they hold.
*/
package camera

import (
	"fmt"
	"time"
)

// State describes the device state of a camera
type State int

const (
	// Unknown is the state of a camera that has not reported yet
	Unknown State = iota

	// Init is a camera that is initializing
	Init

	// On is an idle camera, ready to acquire
	On

	// Running is a camera in live readout or integrating
	Running

	// Fault is a camera in a hardware fault condition
	Fault
)

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case On:
		return "ON"
	case Running:
		return "RUNNING"
	case Fault:
		return "FAULT"
	default:
		return "UNKNOWN"
	}
}

// ParseState converts a state name as returned by String back to a State
func ParseState(s string) (State, error) {
	switch s {
	case "INIT":
		return Init, nil
	case "ON":
		return On, nil
	case "RUNNING":
		return Running, nil
	case "FAULT":
		return Fault, nil
	case "UNKNOWN":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("camera: %q is not a state", s)
}

// Frame is a single strided image from a camera.  Pix is row-major,
// len(Pix) == Width*Height.
type Frame struct {
	// Pix holds the pixel values
	Pix []uint16

	// Width is the number of columns
	Width int

	// Height is the number of rows
	Height int
}

// Min returns the smallest pixel value in the frame
func (f Frame) Min() uint16 {
	if len(f.Pix) == 0 {
		return 0
	}
	min := f.Pix[0]
	for _, v := range f.Pix {
		if v < min {
			min = v
		}
	}
	return min
}

// Max returns the largest pixel value in the frame
func (f Frame) Max() uint16 {
	var max uint16
	for _, v := range f.Pix {
		if v > max {
			max = v
		}
	}
	return max
}

// Mean returns the mean pixel value of the frame
func (f Frame) Mean() float64 {
	if len(f.Pix) == 0 {
		return 0
	}
	var sum float64
	for _, v := range f.Pix {
		sum += float64(v)
	}
	return sum / float64(len(f.Pix))
}

// StateReporter describes a camera which has a queryable device state
type StateReporter interface {
	// GetState reads the device state
	GetState() (State, error)

	// InitDevice (re)initializes the device, recovering from Fault or Unknown
	InitDevice() error

	// EnsureOn blocks until the camera reports On, initializing it first
	// if it is faulted, and errors if the deadline passes first
	EnsureOn(time.Duration) error
}

// Viewer describes a camera with a continuous (live) readout mode
type Viewer interface {
	// StartLive begins continuous readout
	StartLive() error

	// StopLive ends continuous readout
	StopLive() error

	// GetLiveFrame retrieves the most recent frame from the live stream
	// without triggering an exposure
	GetLiveFrame() (Frame, error)
}

// PictureTaker describes a camera which can take triggered exposures
type PictureTaker interface {
	// AcquireFrame triggers an exposure and blocks until the frame is read out
	AcquireFrame() (Frame, error)

	// SetExposureTime sets the exposure time
	SetExposureTime(time.Duration) error

	// GetExposureTime gets the exposure time
	GetExposureTime() (time.Duration, error)
}

// Thermometer describes a camera which reports its sensor temperature
type Thermometer interface {
	// GetTemperature gets the sensor temperature in Celsius
	GetTemperature() (float64, error)
}
