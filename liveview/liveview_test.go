package liveview

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/siwick-lab/tvipstools/camera"
)

// stubViewer serves canned frames and can be made to fail
type stubViewer struct {
	live int32 // atomic
	fail int32 // atomic, non-zero makes GetLiveFrame error

	frame camera.Frame
}

func (s *stubViewer) StartLive() error {
	atomic.StoreInt32(&s.live, 1)
	return nil
}

func (s *stubViewer) StopLive() error {
	atomic.StoreInt32(&s.live, 0)
	return nil
}

func (s *stubViewer) GetLiveFrame() (camera.Frame, error) {
	if atomic.LoadInt32(&s.fail) != 0 {
		return camera.Frame{}, errors.New("link down")
	}
	return s.frame, nil
}

func testFrame(vals ...uint16) camera.Frame {
	return camera.Frame{Pix: vals, Width: len(vals), Height: 1}
}

func waitForIndex(t *testing.T, m *Monitor, idx uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, i, err := m.Frame(); err == nil && i >= idx {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("monitor never reached frame index %d", idx)
}

func TestMonitorPollsAndCaches(t *testing.T) {
	src := &stubViewer{frame: testFrame(1, 2, 3, 4)}
	m := New(src, time.Millisecond)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()
	if atomic.LoadInt32(&src.live) != 1 {
		t.Error("Start should put the camera in live mode")
	}
	waitForIndex(t, m, 1)
	f, _, err := m.Frame()
	if err != nil {
		t.Fatal(err)
	}
	if f.Width != 4 || f.Pix[3] != 4 {
		t.Errorf("unexpected cached frame %+v", f)
	}
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&src.live) != 0 {
		t.Error("Stop should take the camera out of live mode")
	}
}

func TestFrameBeforeFirstPoll(t *testing.T) {
	m := New(&stubViewer{}, time.Millisecond)
	if _, _, err := m.Frame(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("expected ErrNoFrame, got %v", err)
	}
	if _, err := m.Stats(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("expected ErrNoFrame, got %v", err)
	}
	if err := m.TakeDark(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("expected ErrNoFrame, got %v", err)
	}
}

func TestPollErrorKeepsPreviousFrame(t *testing.T) {
	src := &stubViewer{frame: testFrame(7, 7)}
	m := New(src, time.Millisecond)
	// drive the monitor by hand for a deterministic sequence
	f, err := src.GetLiveFrame()
	if err != nil {
		t.Fatal(err)
	}
	m.ingest(f)
	_, idxBefore, err := m.Frame()
	if err != nil {
		t.Fatal(err)
	}

	atomic.StoreInt32(&src.fail, 1)
	if _, err := src.GetLiveFrame(); err == nil {
		t.Fatal("stub should be failing")
	}
	// a failed poll never reaches ingest; the cache is untouched
	got, idxAfter, err := m.Frame()
	if err != nil {
		t.Fatal(err)
	}
	if idxAfter != idxBefore {
		t.Errorf("index moved across a failed poll: %d -> %d", idxBefore, idxAfter)
	}
	if got.Pix[0] != 7 {
		t.Errorf("cached frame changed across a failed poll")
	}
}

func TestDarkSubtractionClampsAtZero(t *testing.T) {
	src := &stubViewer{frame: testFrame(100, 50, 10)}
	m := New(src, time.Millisecond)
	m.ingest(src.frame)
	if err := m.TakeDark(); err != nil {
		t.Fatal(err)
	}
	// new frame dimmer than the dark in one pixel
	m.ingest(testFrame(150, 50, 5))
	f, _, err := m.Frame()
	if err != nil {
		t.Fatal(err)
	}
	want := []uint16{50, 0, 0}
	for i, v := range want {
		if f.Pix[i] != v {
			t.Errorf("pixel %d: expected %d, got %d", i, v, f.Pix[i])
		}
	}
	m.ClearDark()
	f, _, _ = m.Frame()
	if f.Pix[0] != 150 {
		t.Error("ClearDark should stop subtraction")
	}
}

func TestROIMeanHistory(t *testing.T) {
	src := &stubViewer{}
	m := New(src, time.Millisecond)
	err := m.AddROI(ROI{Name: "beam", X: 1, Y: 0, W: 2, H: 1})
	if err != nil {
		t.Fatal(err)
	}
	m.ingest(testFrame(0, 10, 20, 0))
	m.ingest(testFrame(0, 30, 50, 0))
	rois := m.ROIs()
	if len(rois) != 1 {
		t.Fatalf("expected 1 ROI, got %d", len(rois))
	}
	means := rois[0].Means
	if len(means) != 2 || means[0] != 15 || means[1] != 40 {
		t.Errorf("unexpected mean history %v", means)
	}
	m.ClearROIs()
	if len(m.ROIs()) != 0 {
		t.Error("ClearROIs left regions behind")
	}
}

func TestAddROIRejectsDegenerate(t *testing.T) {
	m := New(&stubViewer{}, time.Millisecond)
	if err := m.AddROI(ROI{Name: "bad", W: 0, H: 5}); err == nil {
		t.Error("expected an error for zero-width ROI")
	}
}
