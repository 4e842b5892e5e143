package statemon

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/siwick-lab/tvipstools/camera"
)

type stubDevice struct {
	state camera.State
	texp  time.Duration
	temp  float64
	fail  bool
}

func (s *stubDevice) GetState() (camera.State, error) {
	if s.fail {
		return camera.Unknown, errors.New("link down")
	}
	return s.state, nil
}

func (s *stubDevice) GetExposureTime() (time.Duration, error) {
	return s.texp, nil
}

func (s *stubDevice) GetTemperature() (float64, error) {
	return s.temp, nil
}

func TestSampleAppendsHistory(t *testing.T) {
	dev := &stubDevice{state: camera.On, texp: 15 * time.Second, temp: -20}
	m := New(dev, time.Hour, 10)
	m.Sample()
	dev.temp = -19
	m.Sample()

	st, texp, temp := m.Latest()
	if st != float64(camera.On) {
		t.Errorf("expected state %v, got %v", float64(camera.On), st)
	}
	if texp != 15 {
		t.Errorf("expected 15 s exposure, got %v", texp)
	}
	if temp != -19 {
		t.Errorf("expected -19 C, got %v", temp)
	}

	rec := httptest.NewRecorder()
	m.HTTPYield(rec, httptest.NewRequest("GET", "/history", nil))
	var h struct {
		Temp []float64 `json:"tempC"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
		t.Fatal(err)
	}
	if len(h.Temp) != 2 || h.Temp[0] != -20 || h.Temp[1] != -19 {
		t.Errorf("unexpected temperature history %v", h.Temp)
	}
}

func TestSampleErrorLeavesHistoryAlone(t *testing.T) {
	dev := &stubDevice{state: camera.On}
	m := New(dev, time.Hour, 10)
	m.Sample()
	dev.fail = true
	m.Sample()
	m.mu.Lock()
	n := len(m.Temp.Contiguous())
	m.mu.Unlock()
	if n != 1 {
		t.Errorf("expected 1 sample after a failed poll, got %d", n)
	}
}

func TestRegisterMetrics(t *testing.T) {
	dev := &stubDevice{state: camera.Running, texp: time.Second, temp: -21.5}
	m := New(dev, time.Hour, 10)
	m.Sample()
	reg := prometheus.NewRegistry()
	if err := m.RegisterMetrics(reg); err != nil {
		t.Fatal(err)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := map[string]float64{}
	for _, mf := range mfs {
		for _, metric := range mf.GetMetric() {
			if g := metric.GetGauge(); g != nil {
				found[mf.GetName()] = g.GetValue()
			}
			if c := metric.GetCounter(); c != nil {
				found[mf.GetName()] = c.GetValue()
			}
		}
	}
	if found["camera_temperature_celsius"] != -21.5 {
		t.Errorf("temperature gauge: %v", found["camera_temperature_celsius"])
	}
	if found["camera_state_code"] != float64(camera.Running) {
		t.Errorf("state gauge: %v", found["camera_state_code"])
	}
	if found["camera_statemon_polls_total"] != 1 {
		t.Errorf("polls counter: %v", found["camera_statemon_polls_total"])
	}
}
