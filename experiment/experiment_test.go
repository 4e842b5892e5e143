package experiment

import (
	"errors"
	"os"
	"path"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/siwick-lab/tvipstools/camera"
)

// scriptCam is a camera which can be told to fail the next N acquisitions
type scriptCam struct {
	failures int
	acquired int
	texp     time.Duration
	ensured  int
}

func (c *scriptCam) GetState() (camera.State, error) { return camera.On, nil }
func (c *scriptCam) InitDevice() error               { return nil }

func (c *scriptCam) EnsureOn(timeout time.Duration) error {
	c.ensured++
	return nil
}

func (c *scriptCam) AcquireFrame() (camera.Frame, error) {
	if c.failures > 0 {
		c.failures--
		return camera.Frame{}, errors.New("readout glitch")
	}
	c.acquired++
	return camera.Frame{Pix: []uint16{1, 2, 3, 4}, Width: 2, Height: 2}, nil
}

func (c *scriptCam) SetExposureTime(d time.Duration) error { c.texp = d; return nil }
func (c *scriptCam) GetExposureTime() (time.Duration, error) {
	return c.texp, nil
}

type recShutter struct {
	state   bool
	history []bool
}

func (s *recShutter) Enable(b bool) error {
	s.state = b
	s.history = append(s.history, b)
	return nil
}

type recStage struct {
	moves []float64
}

func (s *recStage) Move(ps float64) error {
	s.moves = append(s.moves, ps)
	return nil
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func newTestExperiment(t *testing.T, cfg Config) (*Experiment, *scriptCam, *recShutter, *recShutter, *recStage) {
	t.Helper()
	cam := &scriptCam{}
	pump := &recShutter{}
	probe := &recShutter{}
	stage := &recStage{}
	cfg.Savedir = t.TempDir()
	if cfg.Exposure == 0 {
		cfg.Exposure = time.Millisecond
	}
	return New(cam, pump, probe, stage, cfg), cam, pump, probe, stage
}

func TestRunProducesScanLayout(t *testing.T) {
	e, cam, pump, probe, stage := newTestExperiment(t, Config{
		NScans:     2,
		Delays:     "0,1",
		MaxRetries: 3,
	})
	if err := e.Run(); err != nil {
		t.Fatal(err)
	}

	// 2 scans x (dark + laser bg + pump off + 2 delays)
	if cam.acquired != 10 {
		t.Errorf("expected 10 acquisitions, got %d", cam.acquired)
	}
	if cam.texp != time.Millisecond {
		t.Errorf("exposure not applied, got %v", cam.texp)
	}

	root := e.Cfg.Savedir
	for _, dir := range []string{DirDark, DirLaserBG, DirPumpOff} {
		if n := len(listDir(t, path.Join(root, dir))); n != 2 {
			t.Errorf("%s: expected 2 images, got %d", dir, n)
		}
	}
	for _, scandir := range []string{"scan_0001", "scan_0002"} {
		names := listDir(t, path.Join(root, scandir))
		want := []string{"pumpon_+00000.000ps.fits", "pumpon_+00001.000ps.fits"}
		if len(names) != len(want) {
			t.Fatalf("%s: expected %v, got %v", scandir, want, names)
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("%s: expected %q, got %q", scandir, want[i], names[i])
			}
		}
	}

	// the stage visited every delay once per scan
	if len(stage.moves) != 4 {
		t.Errorf("expected 4 stage moves, got %d", len(stage.moves))
	}

	// beams blocked when the experiment ends
	if pump.state || probe.state {
		t.Error("shutters should be closed after the run")
	}

	b, err := os.ReadFile(path.Join(root, "experiment.log"))
	if err != nil {
		t.Fatal(err)
	}
	logTxt := string(b)
	for _, want := range []string{
		"starting experiment with 2 scans at 2 delays",
		"laser background image acquired",
		"pump off image acquired",
		"EXPERIMENT COMPLETE",
	} {
		if !strings.Contains(logTxt, want) {
			t.Errorf("log missing %q", want)
		}
	}
	// log lines carry the timestamp | message shape
	first := strings.SplitN(logTxt, "\n", 2)[0]
	if !strings.Contains(first, " | ") {
		t.Errorf("malformed log line %q", first)
	}
	if _, err := time.Parse("2006-01-02 15:04:05", strings.SplitN(first, " | ", 2)[0]); err != nil {
		t.Errorf("log line timestamp does not parse: %v", err)
	}
}

func TestTransientFailuresAreRetried(t *testing.T) {
	e, cam, _, _, _ := newTestExperiment(t, Config{
		NScans:     1,
		Delays:     "0",
		MaxRetries: 5,
	})
	cam.failures = 3
	if err := e.Run(); err != nil {
		t.Fatal(err)
	}
	if cam.acquired != 4 {
		t.Errorf("expected 4 successful acquisitions, got %d", cam.acquired)
	}
	// each failed attempt triggers a camera recovery
	if cam.ensured < 3 {
		t.Errorf("expected at least 3 recovery attempts, got %d", cam.ensured)
	}
	b, _ := os.ReadFile(path.Join(e.Cfg.Savedir, "experiment.log"))
	if !strings.Contains(string(b), "readout glitch") {
		t.Error("failures should be logged")
	}
}

func TestRetryBudgetIsBounded(t *testing.T) {
	e, cam, pump, probe, _ := newTestExperiment(t, Config{
		NScans:     1,
		Delays:     "0",
		MaxRetries: 2,
	})
	cam.failures = 100
	err := e.Run()
	if err == nil {
		t.Fatal("expected the run to fail once the retry budget is exhausted")
	}
	if !strings.Contains(err.Error(), "failed after 3 attempts") {
		t.Errorf("unexpected error %v", err)
	}
	if pump.state || probe.state {
		t.Error("shutters should be closed after a failed run")
	}
	b, _ := os.ReadFile(path.Join(e.Cfg.Savedir, "experiment.log"))
	if !strings.Contains(string(b), "failed after 3 attempts") {
		t.Error("the terminal error should be logged")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Exposure != 15*time.Second {
		t.Errorf("default exposure: %v", cfg.Exposure)
	}
	if cfg.MaxRetries != 25 {
		t.Errorf("default retry budget: %d", cfg.MaxRetries)
	}
}
