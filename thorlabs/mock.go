package thorlabs

import "sync"

// MockSC10 is a shutter controller simulacrum for development without hardware
type MockSC10 struct {
	mu sync.Mutex

	enabled bool
	mode    int
}

// NewMockSC10 returns a mock shutter, closed, in manual mode
func NewMockSC10() *MockSC10 {
	return &MockSC10{mode: 1}
}

// Identification mimics the hardware identification string
func (m *MockSC10) Identification() (string, error) {
	return "THORLABS SC10 VERSION 1.07 [simulated]", nil
}

// SetOperatingMode sets the mode of the controller
func (m *MockSC10) SetOperatingMode(mode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	return nil
}

// GetOperatingMode returns the mode of the controller
func (m *MockSC10) GetOperatingMode() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode, nil
}

// GetEnabled returns true if the shutter is open
func (m *MockSC10) GetEnabled() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled, nil
}

// Enable opens or closes the shutter
func (m *MockSC10) Enable(b bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = b
	return nil
}
