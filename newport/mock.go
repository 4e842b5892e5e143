package newport

import (
	"fmt"
	"sync"
	"time"
)

// MockESP301 is a motion controller simulacrum whose axes move instantly
type MockESP301 struct {
	mu sync.Mutex

	pos map[string]float64
	vel map[string]float64
}

// NewMockESP301 returns a mock controller with all axes at zero
func NewMockESP301() *MockESP301 {
	return &MockESP301{
		pos: map[string]float64{},
		vel: map[string]float64{},
	}
}

// GetPos gets the position of an axis
func (m *MockESP301) GetPos(axis string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos[axis], nil
}

// MoveAbs moves an axis to an absolute position, instantly
func (m *MockESP301) MoveAbs(axis string, pos float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos[axis] = pos
	return nil
}

// MoveRel moves an axis a relative amount, instantly
func (m *MockESP301) MoveRel(axis string, dist float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos[axis] += dist
	return nil
}

// Home returns the axis to zero
func (m *MockESP301) Home(axis string) error {
	return m.MoveAbs(axis, 0)
}

// GetVelocity gets the velocity setpoint of an axis
func (m *MockESP301) GetVelocity(axis string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vel[axis], nil
}

// SetVelocity sets the velocity setpoint of an axis
func (m *MockESP301) SetVelocity(axis string, v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vel[axis] = v
	return nil
}

// GetInPosition always reports settled
func (m *MockESP301) GetInPosition(axis string) (bool, error) {
	return true, nil
}

// Wait returns immediately
func (m *MockESP301) Wait(axis string, timeout time.Duration) error {
	return nil
}

// Raw acknowledges without doing anything
func (m *MockESP301) Raw(cmd string) (string, error) {
	return fmt.Sprintf("OK %s", cmd), nil
}

// ReadErrors reports a clean error stack
func (m *MockESP301) ReadErrors() ([]string, error) {
	return []string{}, nil
}
