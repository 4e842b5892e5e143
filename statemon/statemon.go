/*Package statemon contains the machinery for a camera state monitoring server.

It captures the device state, exposure time, and sensor temperature every
<duration> and stores up to N of them to return over HTTP, and exports the
most recent values as Prometheus gauges.
*/
package statemon

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/brandondube/ringo"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/siwick-lab/tvipstools/camera"
	"github.com/siwick-lab/tvipstools/generichttp"
)

// Device is the subset of camera behavior the monitor samples
type Device interface {
	GetState() (camera.State, error)
	GetExposureTime() (time.Duration, error)
	GetTemperature() (float64, error)
}

// Monitor stores ring buffers of camera state, exposure time, and sensor
// temperature and can serve the slices over HTTP
type Monitor struct {
	mu sync.Mutex

	State    ringo.CircleF64
	Exposure ringo.CircleF64
	Temp     ringo.CircleF64
	Time     ringo.CircleTime

	dev    Device
	ticker *time.Ticker
	stop   chan struct{}

	// latest samples, served to prometheus
	lastState float64
	lastExp   float64
	lastTemp  float64
	polls     float64
}

type history struct {
	State    *[]float64   `json:"state"`
	Exposure *[]float64   `json:"exposureSec"`
	Temp     *[]float64   `json:"tempC"`
	Time     *[]time.Time `json:"timestamp"`
}

// New creates a new Monitor and initializes the internal machinery
func New(dev Device, tick time.Duration, capacity int) *Monitor {
	m := &Monitor{
		dev:    dev,
		ticker: time.NewTicker(tick),
		stop:   make(chan struct{}),
	}
	m.State.Init(capacity)
	m.Exposure.Init(capacity)
	m.Temp.Init(capacity)
	m.Time.Init(capacity)
	return m
}

// Start triggers operation of the monitor
func (m *Monitor) Start() {
	go m.runner()
}

// Stop kills the monitor
func (m *Monitor) Stop() {
	m.stop <- struct{}{}
}

func (m *Monitor) runner() {
	for {
		select {
		case t := <-m.ticker.C:
			m.sample(t)
		case <-m.stop:
			return
		}
	}
}

// Sample takes one reading immediately, outside the ticker cadence
func (m *Monitor) Sample() {
	m.sample(time.Now())
}

func (m *Monitor) sample(t time.Time) {
	st, err := m.dev.GetState()
	if err != nil {
		log.Printf("statemon: error reading state: %v", err)
		return
	}
	texp, err := m.dev.GetExposureTime()
	if err != nil {
		log.Printf("statemon: error reading exposure: %v", err)
		return
	}
	temp, err := m.dev.GetTemperature()
	if err != nil {
		log.Printf("statemon: error reading temperature: %v", err)
		return
	}
	m.mu.Lock()
	m.State.Append(float64(st))
	m.Exposure.Append(texp.Seconds())
	m.Temp.Append(temp)
	m.Time.Append(t)
	m.lastState = float64(st)
	m.lastExp = texp.Seconds()
	m.lastTemp = temp
	m.polls++
	m.mu.Unlock()
}

// Latest returns the most recent state code, exposure (s), and temperature (C)
func (m *Monitor) Latest() (float64, float64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastState, m.lastExp, m.lastTemp
}

// HTTPYield returns an object over HTTP which contains arrays of state codes,
// exposure times, temperatures, and timestamps
func (m *Monitor) HTTPYield(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	bufState := m.State.Contiguous()
	bufExp := m.Exposure.Contiguous()
	bufTemp := m.Temp.Contiguous()
	bufTime := m.Time.Contiguous()
	m.mu.Unlock()
	s := history{
		State:    &bufState,
		Exposure: &bufExp,
		Temp:     &bufTemp,
		Time:     &bufTime}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(s)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// RT satisfies generichttp.HTTPer
func (m *Monitor) RT() generichttp.RouteTable {
	return generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/history"}: m.HTTPYield,
	}
}

// RegisterMetrics registers prometheus gauges for the monitor's latest
// samples on reg (pass nil for the default registerer)
func (m *Monitor) RegisterMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Subsystem: "camera",
			Name:      "temperature_celsius",
			Help:      "Sensor temperature of the camera head.",
		}, func() float64 { m.mu.Lock(); defer m.mu.Unlock(); return m.lastTemp }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Subsystem: "camera",
			Name:      "exposure_seconds",
			Help:      "Exposure time setpoint of the camera.",
		}, func() float64 { m.mu.Lock(); defer m.mu.Unlock(); return m.lastExp }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Subsystem: "camera",
			Name:      "state_code",
			Help:      "Device state of the camera (0 unknown, 1 init, 2 on, 3 running, 4 fault).",
		}, func() float64 { m.mu.Lock(); defer m.mu.Unlock(); return m.lastState }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Subsystem: "camera",
			Name:      "statemon_polls_total",
			Help:      "Number of successful state monitor polls.",
		}, func() float64 { m.mu.Lock(); defer m.mu.Unlock(); return m.polls }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
