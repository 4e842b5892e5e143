/*Package comm provides connection machinery for communication with lab hardware.

Most usages of this package boil down to:
	1.  make a connection maker for your transport (TCP or serial)
	2.  wrap it in a Pool so connections are shared and reaped when idle
	3.  in each method on your device type, Get a connection from the pool,
		wrap it in a Terminator (and Timeout, for network transports) and
		do your I/O, returning the connection with ReturnWithError.

The wrappers are cheap to create and are intended to be remade on every
exchange with the device.
*/
package comm

import (
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

var (
	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("termination byte not found")

	// ErrNotDeadliner is generated when a Timeout is requested on a connection
	// which does not support deadlines
	ErrNotDeadliner = errors.New("connection does not support deadlines")
)

// CreationFunc is a function which returns a new "connection" to something
// a closure should be used to encapsulate the variables and functions needed
type CreationFunc func() (io.ReadWriteCloser, error)

// TCPSetup opens a new TCP connection and sets a timeout on connect, read, and write
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	return conn, nil
}

// BackingOffTCPConnMaker returns a CreationFunc which dials addr with an
// exponential backoff.  Some hardware do not like being connection thrashed,
// so refused connections are retried for up to 3 seconds before the error is
// propagated.
func BackingOffTCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var conn net.Conn
		op := func() error {
			var err error
			conn, err = TCPSetup(addr, timeout)
			if err != nil {
				errS := strings.ToLower(err.Error())
				if strings.Contains(errS, "refused") {
					return err
				}
				// a timeout will not heal on retry, bail
				return backoff.Permanent(err)
			}
			return nil
		}
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock})
		return conn, err
	}
}

// SerialConnMaker returns a CreationFunc which opens the serial port
// described by conf
func SerialConnMaker(conf *serial.Config) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		return serial.OpenPort(conf)
	}
}

// Terminator wraps a ReadWriter, appending the Tx terminator to writes and
// scanning reads up to (and stripping) the Rx terminator
type Terminator struct {
	rw io.ReadWriter

	rx byte
	tx byte
}

// NewTerminator returns a Terminator wrapping rw
func NewTerminator(rw io.ReadWriter, rx, tx byte) Terminator {
	return Terminator{rw: rw, rx: rx, tx: tx}
}

// Write sends b with the Tx terminator appended
func (t Terminator) Write(b []byte) (int, error) {
	b = append(b, t.tx)
	n, err := t.rw.Write(b)
	if n == len(b) {
		n-- // do not count the terminator
	}
	return n, err
}

// Read reads into b one byte at a time until the Rx terminator is seen,
// returning the count of bytes read excluding the terminator.  If b fills
// before the terminator arrives, ErrTerminatorNotFound is returned.
func (t Terminator) Read(b []byte) (int, error) {
	one := make([]byte, 1)
	n := 0
	for n < len(b) {
		nn, err := t.rw.Read(one)
		if err != nil {
			return n, err
		}
		if nn == 0 {
			continue
		}
		if one[0] == t.rx {
			return n, nil
		}
		b[n] = one[0]
		n++
	}
	return n, ErrTerminatorNotFound
}

// deadliner is any connection which can have read and write deadlines armed
type deadliner interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// Timeout wraps a ReadWriter, arming a fresh deadline before every read and
// write.  The underlying connection (possibly below other wrappers) must
// support deadlines, or NewTimeout errors.
type Timeout struct {
	rw io.ReadWriter

	d  deadliner
	to time.Duration
}

// NewTimeout returns a Timeout wrapping rw with timeout to.  rw may itself
// be a wrapper, as long as something in the chain reaches a net.Conn.
func NewTimeout(rw io.ReadWriter, to time.Duration) (Timeout, error) {
	cur := rw
	for {
		if d, ok := cur.(deadliner); ok {
			return Timeout{rw: rw, d: d, to: to}, nil
		}
		if t, ok := cur.(Terminator); ok {
			cur = t.rw
			continue
		}
		return Timeout{}, ErrNotDeadliner
	}
}

func (t Timeout) arm() {
	deadline := time.Now().Add(t.to)
	t.d.SetReadDeadline(deadline)
	t.d.SetWriteDeadline(deadline)
}

func (t Timeout) Write(b []byte) (int, error) {
	t.arm()
	return t.rw.Write(b)
}

func (t Timeout) Read(b []byte) (int, error) {
	t.arm()
	return t.rw.Read(b)
}
