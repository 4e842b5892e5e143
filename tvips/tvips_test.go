package tvips

import (
	"bufio"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/siwick-lab/tvipstools/camera"
)

// fakeHead is an in-process camera head speaking the telegram protocol over
// a real TCP socket
type fakeHead struct {
	ln net.Listener

	exposureMs uint32
	state      byte
	frame      []uint16
	w, h       uint16
}

func newFakeHead(t *testing.T) *fakeHead {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	fh := &fakeHead{
		ln:         ln,
		exposureMs: 100,
		state:      2, // On
		frame:      []uint16{10, 20, 30, 40, 50, 60},
		w:          3,
		h:          2,
	}
	go fh.serve()
	t.Cleanup(func() { ln.Close() })
	return fh
}

func (f *fakeHead) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeHead) handle(conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	for {
		req, err := readTelegram(br)
		if err != nil {
			return
		}
		resp := MessagePrimitive{Op: req.Op, Status: StatusOK}
		var trailer []byte
		switch req.Op {
		case OpIdentify:
			resp.Data = []byte("TVIPS TemCam-F216 FW 9.9")
		case OpState:
			resp.Data = []byte{f.state}
		case OpInitialize:
			f.state = 2
		case OpGetExposure:
			resp.Data = make([]byte, 4)
			binary.LittleEndian.PutUint32(resp.Data, f.exposureMs)
		case OpSetExposure:
			if len(req.Data) < 4 {
				resp.Status = StatusBadOp
				break
			}
			f.exposureMs = binary.LittleEndian.Uint32(req.Data)
		case OpTemperature:
			resp.Data = make([]byte, 2)
			centiDeg := int16(-1850) // -18.50 C
			binary.LittleEndian.PutUint16(resp.Data, uint16(centiDeg))
		case OpResolution:
			resp.Data = make([]byte, 4)
			binary.LittleEndian.PutUint16(resp.Data, f.w)
			binary.LittleEndian.PutUint16(resp.Data[2:], f.h)
		case OpLiveFrame, OpAcquire:
			resp.Data = make([]byte, 4)
			binary.LittleEndian.PutUint16(resp.Data, f.w)
			binary.LittleEndian.PutUint16(resp.Data[2:], f.h)
			trailer = make([]byte, 2*len(f.frame))
			for i, v := range f.frame {
				binary.LittleEndian.PutUint16(trailer[2*i:], v)
			}
		default:
			resp.Status = StatusBadOp
		}
		conn.Write(MakeTelegram(resp))
		if trailer != nil {
			conn.Write(trailer)
		}
	}
}

func TestCameraControlExchanges(t *testing.T) {
	fh := newFakeHead(t)
	cam := NewCamera(fh.ln.Addr().String())

	id, err := cam.Identification()
	if err != nil {
		t.Fatal(err)
	}
	if id != "TVIPS TemCam-F216 FW 9.9" {
		t.Errorf("bad identification %q", id)
	}

	st, err := cam.GetState()
	if err != nil {
		t.Fatal(err)
	}
	if st != camera.On {
		t.Errorf("expected On, got %v", st)
	}

	if err := cam.SetExposureTime(250 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	texp, err := cam.GetExposureTime()
	if err != nil {
		t.Fatal(err)
	}
	if texp != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", texp)
	}

	temp, err := cam.GetTemperature()
	if err != nil {
		t.Fatal(err)
	}
	if temp != -18.5 {
		t.Errorf("expected -18.5, got %v", temp)
	}

	res, err := cam.GetRes()
	if err != nil {
		t.Fatal(err)
	}
	if res != [2]int{3, 2} {
		t.Errorf("expected [3 2], got %v", res)
	}
}

func TestCameraFrameRetrieval(t *testing.T) {
	fh := newFakeHead(t)
	cam := NewCamera(fh.ln.Addr().String())

	frame, err := cam.GetLiveFrame()
	if err != nil {
		t.Fatal(err)
	}
	if frame.Width != 3 || frame.Height != 2 {
		t.Fatalf("bad geometry %dx%d", frame.Width, frame.Height)
	}
	for i, v := range fh.frame {
		if frame.Pix[i] != v {
			t.Errorf("pixel %d: expected %d, got %d", i, v, frame.Pix[i])
		}
	}
	// second retrieval reuses the pooled connection
	if _, err := cam.AcquireFrame(); err != nil {
		t.Fatal(err)
	}
}

func TestCameraEnsureOnInitializesFromFault(t *testing.T) {
	fh := newFakeHead(t)
	fh.state = 4 // Fault
	cam := NewCamera(fh.ln.Addr().String())
	if err := cam.EnsureOn(2 * time.Second); err != nil {
		t.Fatal(err)
	}
	st, err := cam.GetState()
	if err != nil {
		t.Fatal(err)
	}
	if st != camera.On {
		t.Errorf("expected On after EnsureOn, got %v", st)
	}
}

func TestMockImplementsController(t *testing.T) {
	var _ Controller = NewMock()
	var _ Controller = &Camera{}
}

func TestMockAcquireHonorsExposure(t *testing.T) {
	m := NewMock()
	if err := m.SetExposureTime(30 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	f, err := m.AcquireFrame()
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("acquisition returned before the exposure elapsed (%v)", elapsed)
	}
	if f.Width != mockRes || f.Height != mockRes || len(f.Pix) != mockRes*mockRes {
		t.Errorf("bad simulated geometry %dx%d (%d px)", f.Width, f.Height, len(f.Pix))
	}
	st, _ := m.GetState()
	if st != camera.On {
		t.Errorf("expected On after acquisition, got %v", st)
	}
}
