package tvips

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/siwick-lab/tvipstools/camera"
)

// mockRes is the edge length of simulated frames
const mockRes = 512

// Mock is a simulated camera for use when the hardware is absent.  It
// produces a radially symmetric diffraction-like pattern with multiplicative
// noise, honors the exposure time on triggered acquisitions, and runs the
// same state machine as the hardware
type Mock struct {
	mu sync.Mutex

	state    camera.State
	exposure time.Duration
	rng      *rand.Rand
}

// NewMock returns a mock camera in the Unknown state, as a freshly powered
// head would be
func NewMock() *Mock {
	return &Mock{
		state:    camera.Unknown,
		exposure: 100 * time.Millisecond,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Identification mimics the hardware identification string
func (m *Mock) Identification() (string, error) {
	return "TVIPS TemCam-F216 [simulated]", nil
}

// GetState reads the device state
func (m *Mock) GetState() (camera.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

// InitDevice brings the mock to On
func (m *Mock) InitDevice() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = camera.On
	return nil
}

// EnsureOn initializes the mock if needed; it is never slow
func (m *Mock) EnsureOn(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != camera.Running {
		m.state = camera.On
	}
	return nil
}

// StartLive begins continuous readout
func (m *Mock) StartLive() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = camera.Running
	return nil
}

// StopLive ends continuous readout
func (m *Mock) StopLive() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = camera.On
	return nil
}

// GetLiveFrame returns a fresh simulated frame
func (m *Mock) GetLiveFrame() (camera.Frame, error) {
	return m.simFrame(), nil
}

// AcquireFrame sleeps for the exposure time, then returns a simulated frame
func (m *Mock) AcquireFrame() (camera.Frame, error) {
	m.mu.Lock()
	texp := m.exposure
	m.state = camera.Running
	m.mu.Unlock()

	time.Sleep(texp)

	m.mu.Lock()
	m.state = camera.On
	m.mu.Unlock()
	return m.simFrame(), nil
}

// GetExposureTime gets the exposure time
func (m *Mock) GetExposureTime() (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exposure, nil
}

// SetExposureTime sets the exposure time
func (m *Mock) SetExposureTime(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exposure = d
	return nil
}

// GetTemperature reports a plausible sensor temperature
func (m *Mock) GetTemperature() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return -19.5 + m.rng.Float64(), nil
}

// GetRes gets the (W, H) of the simulated sensor
func (m *Mock) GetRes() ([2]int, error) {
	return [2]int{mockRes, mockRes}, nil
}

// simFrame renders the synthetic pattern:
// 5e4 * (cos(r)/(r+1) * N(1, 0.4) + 0.3) on a [-10, 10] grid
func (m *Mock) simFrame() camera.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	pix := make([]uint16, mockRes*mockRes)
	step := 20.0 / float64(mockRes-1)
	for i := 0; i < mockRes; i++ {
		y := -10.0 + float64(i)*step
		for j := 0; j < mockRes; j++ {
			x := -10.0 + float64(j)*step
			r := math.Hypot(x, y)
			noise := 1 + 0.4*m.rng.NormFloat64()
			v := 5e4 * ((math.Cos(r)/(r+1))*noise + 0.3)
			if v < 0 {
				v = 0
			} else if v > math.MaxUint16 {
				v = math.MaxUint16
			}
			pix[i*mockRes+j] = uint16(v)
		}
	}
	return camera.Frame{Pix: pix, Width: mockRes, Height: mockRes}
}
