// Package thorlabs provides interfaces to Thorlabs benchtop lab equipment.
package thorlabs

import (
	"fmt"
	"strings"
	"time"

	"github.com/tarm/serial"

	"github.com/siwick-lab/tvipstools/comm"
)

// the SC10 manual specifies 9600 baud, 8 data bits, 1 stop bit, no parity.
// commands are '\r' terminated; the controller echoes the command, then the
// response (for queries), then a "> " prompt with no terminator.  The prompt
// is left in the stream and stripped from the front of the next line.

func makeSerConf(addr string) *serial.Config {
	return &serial.Config{
		Name:        addr,
		Baud:        9600,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 1 * time.Second}
}

// SC10 represents an SC10 shutter controller
type SC10 struct {
	pool *comm.Pool
}

// NewSC10 creates a new SC10 instance.  addr is a serial device path when
// serialMode is true, otherwise host:port of a serial-ethernet adapter
func NewSC10(addr string, serialMode bool) *SC10 {
	var maker comm.CreationFunc
	if serialMode {
		maker = comm.SerialConnMaker(makeSerConf(addr))
	} else {
		maker = comm.BackingOffTCPConnMaker(addr, 3*time.Second)
	}
	pool := comm.NewPool(1, time.Minute, maker)
	return &SC10{pool: pool}
}

// readLine reads one '\r' terminated line, dropping any prompt residue
func readLine(t comm.Terminator) (string, error) {
	buf := make([]byte, 128)
	n, err := t.Read(buf)
	if err != nil {
		return "", err
	}
	s := string(buf[:n])
	s = strings.TrimPrefix(s, "> ")
	return strings.TrimSpace(s), nil
}

// writeRead sends cmd and consumes the echo.  If query is true, the next
// line is read and returned
func (sc *SC10) writeRead(cmd string, query bool) (string, error) {
	conn, err := sc.pool.Get()
	if err != nil {
		return "", err
	}
	defer func() { sc.pool.ReturnWithError(conn, err) }()
	wrap := comm.NewTerminator(conn, '\r', '\r')
	_, err = wrap.Write([]byte(cmd))
	if err != nil {
		return "", err
	}
	var echo string
	echo, err = readLine(wrap)
	if err != nil {
		return "", err
	}
	if echo != cmd {
		err = fmt.Errorf("thorlabs: echo mismatch, sent %q got %q", cmd, echo)
		return "", err
	}
	if !query {
		return "", nil
	}
	var resp string
	resp, err = readLine(wrap)
	return resp, err
}

// Identification returns the identifying string of the controller,
// e.g. "THORLABS SC10 VERSION 1.07"
func (sc *SC10) Identification() (string, error) {
	return sc.writeRead("id?", true)
}

// SetOperatingMode sets the mode of the controller, 1 (manual) .. 5 (external gate)
func (sc *SC10) SetOperatingMode(mode int) error {
	_, err := sc.writeRead(fmt.Sprintf("mode=%d", mode), false)
	return err
}

// GetOperatingMode returns the mode of the controller
func (sc *SC10) GetOperatingMode() (int, error) {
	resp, err := sc.writeRead("mode?", true)
	if err != nil {
		return 0, err
	}
	var mode int
	_, err = fmt.Sscanf(resp, "%d", &mode)
	return mode, err
}

// GetEnabled returns true if the shutter is open
func (sc *SC10) GetEnabled() (bool, error) {
	resp, err := sc.writeRead("ens?", true)
	if err != nil {
		return false, err
	}
	return resp == "1", nil
}

// Enable opens (true) or closes (false) the shutter.  The hardware command is
// a toggle, so the current state is read first and the toggle only sent when
// the states differ, making this idempotent
func (sc *SC10) Enable(b bool) error {
	cur, err := sc.GetEnabled()
	if err != nil {
		return err
	}
	if cur == b {
		return nil
	}
	_, err = sc.writeRead("ens", false)
	return err
}
