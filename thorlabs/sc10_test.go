package thorlabs

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"testing"
)

// fakeSC10 emulates the controller's echo + prompt conversation over TCP,
// as a serial-ethernet adapter would present it
type fakeSC10 struct {
	ln net.Listener

	enabled int32 // atomic, 0 closed 1 open
	toggles int32 // atomic count of "ens" commands seen
}

func newFakeSC10(t *testing.T) *fakeSC10 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeSC10{ln: ln}
	go f.serve()
	t.Cleanup(func() { ln.Close() })
	return f
}

func (f *fakeSC10) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeSC10) handle(conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	for {
		line, err := br.ReadString('\r')
		if err != nil {
			return
		}
		cmd := strings.TrimSuffix(line, "\r")
		fmt.Fprintf(conn, "%s\r", cmd) // echo
		switch cmd {
		case "id?":
			fmt.Fprint(conn, "THORLABS SC10 VERSION 1.07\r")
		case "mode?":
			fmt.Fprint(conn, "1\r")
		case "ens?":
			fmt.Fprintf(conn, "%d\r", atomic.LoadInt32(&f.enabled))
		case "ens":
			atomic.AddInt32(&f.toggles, 1)
			atomic.StoreInt32(&f.enabled, 1-atomic.LoadInt32(&f.enabled))
		}
		fmt.Fprint(conn, "> ") // prompt, no terminator
	}
}

func TestSC10Identification(t *testing.T) {
	f := newFakeSC10(t)
	sc := NewSC10(f.ln.Addr().String(), false)
	id, err := sc.Identification()
	if err != nil {
		t.Fatal(err)
	}
	if id != "THORLABS SC10 VERSION 1.07" {
		t.Errorf("bad identification %q", id)
	}
}

func TestSC10GetOperatingMode(t *testing.T) {
	f := newFakeSC10(t)
	sc := NewSC10(f.ln.Addr().String(), false)
	mode, err := sc.GetOperatingMode()
	if err != nil {
		t.Fatal(err)
	}
	if mode != 1 {
		t.Errorf("expected manual mode, got %d", mode)
	}
}

func TestSC10EnableIsIdempotent(t *testing.T) {
	f := newFakeSC10(t)
	sc := NewSC10(f.ln.Addr().String(), false)

	// shutter starts closed; enabling twice must toggle exactly once
	for i := 0; i < 2; i++ {
		if err := sc.Enable(true); err != nil {
			t.Fatal(err)
		}
	}
	if n := atomic.LoadInt32(&f.toggles); n != 1 {
		t.Errorf("expected 1 toggle, hardware saw %d", n)
	}
	open, err := sc.GetEnabled()
	if err != nil {
		t.Fatal(err)
	}
	if !open {
		t.Error("shutter should be open")
	}

	// and closing returns it
	if err := sc.Enable(false); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&f.toggles); n != 2 {
		t.Errorf("expected 2 toggles, hardware saw %d", n)
	}
}
