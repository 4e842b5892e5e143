/*Package liveview maintains a continuously refreshed view of a camera.

A poller grabs frames from the camera's live stream at a paced rate and
caches the most recent one.  Consumers may register a dark frame, which is
subtracted (clamped at zero) from everything served, and rectangular regions
of interest whose mean intensities are tracked over a short history.
*/
package liveview

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/brandondube/ringo"
	"golang.org/x/time/rate"

	"github.com/siwick-lab/tvipstools/camera"
)

const (
	// DefaultInterval is the default pacing of the frame poller
	DefaultInterval = 50 * time.Millisecond

	// historyLen is how many ROI mean samples are retained
	historyLen = 30
)

// ErrNoFrame is generated when an operation needs a frame before the poller
// has captured one
var ErrNoFrame = errors.New("liveview: no frame captured yet")

// ROI is a rectangular region of interest on the sensor
type ROI struct {
	Name string `json:"name"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	W    int    `json:"w"`
	H    int    `json:"h"`

	hist ringo.CircleF64
}

// Stats describes the most recent frame
type Stats struct {
	Min   uint16  `json:"min"`
	Max   uint16  `json:"max"`
	Mean  float64 `json:"mean"`
	Index uint64  `json:"index"`
}

// Monitor polls a camera's live stream and caches the latest frame
type Monitor struct {
	mu sync.RWMutex

	src     camera.Viewer
	limiter *rate.Limiter

	frame camera.Frame // latest raw frame
	index uint64       // increments only when a poll succeeds
	dark  []uint16     // nil when no dark is registered
	rois  []*ROI

	cancel  context.CancelFunc
	running bool
}

// New returns a monitor polling src no faster than every interval
func New(src camera.Viewer, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		src:     src,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Start puts the camera in live mode and begins polling.  Starting a running
// monitor is a no-op
func (m *Monitor) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	if err := m.src.StartLive(); err != nil {
		m.mu.Lock()
		m.running = false
		m.cancel = nil
		m.mu.Unlock()
		cancel()
		return err
	}
	go m.run(ctx)
	return nil
}

// Stop halts polling and takes the camera out of live mode
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.cancel = nil
	m.running = false
	m.mu.Unlock()
	return m.src.StopLive()
}

// Running reports whether the poller is active
func (m *Monitor) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Monitor) run(ctx context.Context) {
	for {
		if err := m.limiter.Wait(ctx); err != nil {
			return
		}
		frame, err := m.src.GetLiveFrame()
		if err != nil {
			// keep the previous frame, the index does not advance
			log.Printf("liveview: poll error: %v", err)
			continue
		}
		m.ingest(frame)
	}
}

// ingest stores the frame, advances the index, and updates ROI histories
func (m *Monitor) ingest(f camera.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frame = f
	m.index++
	if len(m.rois) == 0 {
		return
	}
	sub := subtractLocked(f, m.dark)
	for _, r := range m.rois {
		mean, err := roiMean(sub, r)
		if err != nil {
			continue
		}
		r.hist.Append(mean)
	}
}

// subtractLocked returns f with the dark removed, clamping at zero.  The
// caller must hold at least a read lock
func subtractLocked(f camera.Frame, dark []uint16) camera.Frame {
	if dark == nil || len(dark) != len(f.Pix) {
		return f
	}
	pix := make([]uint16, len(f.Pix))
	for i, v := range f.Pix {
		d := int32(v) - int32(dark[i])
		if d < 0 {
			d = 0
		}
		pix[i] = uint16(d)
	}
	return camera.Frame{Pix: pix, Width: f.Width, Height: f.Height}
}

func roiMean(f camera.Frame, r *ROI) (float64, error) {
	if r.X < 0 || r.Y < 0 || r.X+r.W > f.Width || r.Y+r.H > f.Height || r.W <= 0 || r.H <= 0 {
		return 0, fmt.Errorf("liveview: ROI %s out of bounds", r.Name)
	}
	var sum float64
	for y := r.Y; y < r.Y+r.H; y++ {
		row := f.Pix[y*f.Width : (y+1)*f.Width]
		for x := r.X; x < r.X+r.W; x++ {
			sum += float64(row[x])
		}
	}
	return sum / float64(r.W*r.H), nil
}

// Frame returns the latest frame with the dark subtracted, and its index
func (m *Monitor) Frame() (camera.Frame, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.index == 0 {
		return camera.Frame{}, 0, ErrNoFrame
	}
	return subtractLocked(m.frame, m.dark), m.index, nil
}

// Stats returns summary statistics of the latest (dark-subtracted) frame
func (m *Monitor) Stats() (Stats, error) {
	f, idx, err := m.Frame()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Min:   f.Min(),
		Max:   f.Max(),
		Mean:  f.Mean(),
		Index: idx,
	}, nil
}

// TakeDark registers the latest raw frame as the dark reference
func (m *Monitor) TakeDark() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == 0 {
		return ErrNoFrame
	}
	dark := make([]uint16, len(m.frame.Pix))
	copy(dark, m.frame.Pix)
	m.dark = dark
	return nil
}

// ClearDark removes the dark reference
func (m *Monitor) ClearDark() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dark = nil
}

// HasDark reports whether a dark reference is registered
func (m *Monitor) HasDark() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dark != nil
}

// AddROI registers a region of interest for mean intensity tracking
func (m *Monitor) AddROI(r ROI) error {
	if r.W <= 0 || r.H <= 0 {
		return fmt.Errorf("liveview: ROI must have positive extent")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	roi := r
	roi.hist.Init(historyLen)
	m.rois = append(m.rois, &roi)
	return nil
}

// ROIHistory pairs an ROI with its mean intensity history, least to most recent
type ROIHistory struct {
	ROI
	Means []float64 `json:"means"`
}

// ROIs returns the registered regions and their histories
func (m *Monitor) ROIs() []ROIHistory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ROIHistory, 0, len(m.rois))
	for _, r := range m.rois {
		out = append(out, ROIHistory{ROI: *r, Means: r.hist.Contiguous()})
	}
	return out
}

// ClearROIs removes all registered regions
func (m *Monitor) ClearROIs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rois = nil
}
