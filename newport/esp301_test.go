package newport

import (
	"bufio"
	"fmt"
	"math"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestMakeTelegram(t *testing.T) {
	cases := []struct {
		alias string
		axis  string
		write bool
		data  float64
		want  string
	}{
		{"move-abs", "1", true, 27.1083, "1PA27.1083"},
		{"get-position", "1", false, 0, "1TP?"},
		{"get-velocity", "2", false, 0, "2TV?"},
		{"origin-search", "1", true, 1, "1OR1"},
	}
	for _, tc := range cases {
		c, err := commandFromAlias(tc.alias)
		if err != nil {
			t.Fatal(err)
		}
		got := makeTelegram(c, tc.axis, tc.write, tc.data)
		if got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.alias, tc.want, got)
		}
	}
}

func TestCommandLookupByCmdOrAlias(t *testing.T) {
	for _, s := range []string{"PA", "move-abs"} {
		c, err := commandFromAlias(s)
		if err != nil {
			t.Fatal(err)
		}
		if c.Cmd != "PA" {
			t.Errorf("lookup %q resolved to %q", s, c.Cmd)
		}
	}
	if _, err := commandFromAlias("no-such-thing"); err == nil {
		t.Error("expected an error for an unknown alias")
	}
}

// fakeESP is a single-axis controller emulator over TCP
type fakeESP struct {
	ln net.Listener

	mu     sync.Mutex
	pos    float64
	errors []string // TB? responses to drain
}

func newFakeESP(t *testing.T) *fakeESP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeESP{ln: ln}
	go f.serve()
	t.Cleanup(func() { ln.Close() })
	return f
}

func (f *fakeESP) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeESP) handle(conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	for {
		line, err := br.ReadString('\r')
		if err != nil {
			return
		}
		cmd := strings.TrimSuffix(line, "\r")
		f.mu.Lock()
		switch {
		case cmd == "1TP?":
			fmt.Fprintf(conn, "%g\r\n", f.pos)
		case cmd == "1MD?":
			fmt.Fprint(conn, "1\r\n")
		case cmd == "TB?":
			if len(f.errors) == 0 {
				fmt.Fprint(conn, "0, NO ERROR DETECTED\r\n")
			} else {
				fmt.Fprintf(conn, "%s\r\n", f.errors[0])
				f.errors = f.errors[1:]
			}
		case strings.HasPrefix(cmd, "1PA"):
			fmt.Sscanf(cmd, "1PA%g", &f.pos)
		case strings.HasPrefix(cmd, "1PR"):
			var d float64
			fmt.Sscanf(cmd, "1PR%g", &d)
			f.pos += d
		}
		f.mu.Unlock()
	}
}

func TestESP301MoveAndReadback(t *testing.T) {
	f := newFakeESP(t)
	esp := NewESP301(f.ln.Addr().String(), false)

	if err := esp.MoveAbs("1", 27.1083); err != nil {
		t.Fatal(err)
	}
	if err := esp.MoveRel("1", -0.5); err != nil {
		t.Fatal(err)
	}
	pos, err := esp.GetPos("1")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(pos-26.6083) > 1e-9 {
		t.Errorf("expected 26.6083, got %v", pos)
	}
}

func TestESP301Wait(t *testing.T) {
	f := newFakeESP(t)
	esp := NewESP301(f.ln.Addr().String(), false)
	if err := esp.Wait("1", time.Second); err != nil {
		t.Fatal(err)
	}
}

func TestESP301ReadErrors(t *testing.T) {
	f := newFakeESP(t)
	f.errors = []string{
		"7, PARAMETER OUT OF RANGE",
		"106, AXIS 1 POSITIVE SOFTWARE LIMIT",
	}
	esp := NewESP301(f.ln.Addr().String(), false)
	msgs, err := esp.ReadErrors()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"PARAMETER OUT OF RANGE",
		"AXIS 1 POSITIVE SOFTWARE LIMIT REACHED",
	}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d: %v", len(want), len(msgs), msgs)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("message %d: expected %q, got %q", i, want[i], msgs[i])
		}
	}
}
