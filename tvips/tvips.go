/*Package tvips provides an interface to TVIPS TemCam CCD cameras.

The camera head is network attached and speaks a framed binary protocol;
see telegram.go for the encoding.  Control exchanges are small telegrams,
while frame retrievals are a telegram carrying the geometry followed by the
raw little-endian pixel stream.

The F216 runs a state machine much like a Tango device: UNKNOWN and FAULT are
recovered by (re)initialization, ON is idle, RUNNING is live readout or an
in-progress integration.
*/
package tvips

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/siwick-lab/tvipstools/camera"
	"github.com/siwick-lab/tvipstools/comm"
)

const (
	// connection timeout for control exchanges
	ctlTimeout = 5 * time.Second

	// statePollInterval is how often EnsureOn rechecks the device state
	statePollInterval = 250 * time.Millisecond

	// readoutSlack is added to the exposure time when waiting for an
	// integration to read out
	readoutSlack = 30 * time.Second
)

// stateCodes maps wire state bytes to camera states
var stateCodes = map[byte]camera.State{
	0: camera.Unknown,
	1: camera.Init,
	2: camera.On,
	3: camera.Running,
	4: camera.Fault,
}

// Camera represents a TemCam F216 camera head
type Camera struct {
	pool *comm.Pool

	// Addr is the network address of the camera head
	Addr string
}

// NewCamera creates a new Camera instance.  The connection is dialed lazily
// on first use
func NewCamera(addr string) *Camera {
	maker := comm.BackingOffTCPConnMaker(addr, 3*time.Second)
	pool := comm.NewPool(1, time.Minute, maker)
	return &Camera{pool: pool, Addr: addr}
}

// readTelegram consumes bytes from r until a complete telegram has been seen
// and decodes it
func readTelegram(r *bufio.Reader) (MessagePrimitive, error) {
	var buf []byte
	// skip to STX
	for {
		b, err := r.ReadByte()
		if err != nil {
			return MessagePrimitive{}, err
		}
		if b == telStart {
			buf = append(buf, b)
			break
		}
	}
	for {
		b, err := r.ReadByte()
		if err != nil {
			return MessagePrimitive{}, err
		}
		buf = append(buf, b)
		if b == telEnd {
			break
		}
	}
	return DecodeTelegram(buf)
}

// statusErr converts a non-OK response status into an error
func statusErr(op byte, status byte) error {
	switch status {
	case StatusOK:
		return nil
	case StatusBusy:
		return fmt.Errorf("tvips: camera busy (opcode %#x)", op)
	case StatusFault:
		return fmt.Errorf("tvips: camera in fault (opcode %#x)", op)
	case StatusBadOp:
		return fmt.Errorf("tvips: camera rejected opcode %#x", op)
	case StatusCRCError:
		return fmt.Errorf("tvips: camera reported CRC error (opcode %#x)", op)
	default:
		return fmt.Errorf("tvips: unknown status %#x (opcode %#x)", status, op)
	}
}

// exchange performs a request-response cycle with the camera with timeout to.
// continuation, if not nil, is called with the response and the connection's
// reader before the conn is returned to the pool, and is used to stream frame
// data that follows the response telegram
func (c *Camera) exchange(mp MessagePrimitive, to time.Duration, continuation func(MessagePrimitive, *bufio.Reader) error) (MessagePrimitive, error) {
	conn, err := c.pool.Get()
	if err != nil {
		return MessagePrimitive{}, err
	}
	defer func() { c.pool.ReturnWithError(conn, err) }()
	var wrap io.ReadWriter
	wrap, err = comm.NewTimeout(conn, to)
	if err != nil {
		return MessagePrimitive{}, err
	}
	_, err = wrap.Write(MakeTelegram(mp))
	if err != nil {
		return MessagePrimitive{}, err
	}
	br := bufio.NewReader(wrap)
	var resp MessagePrimitive
	resp, err = readTelegram(br)
	if err != nil {
		return resp, err
	}
	err = statusErr(mp.Op, resp.Status)
	if err != nil {
		return resp, err
	}
	if continuation != nil {
		err = continuation(resp, br)
	}
	return resp, err
}

// Identification returns the identifying information from the camera head,
// e.g. "TVIPS TemCam-F216 FW 3.2"
func (c *Camera) Identification() (string, error) {
	resp, err := c.exchange(MessagePrimitive{Op: OpIdentify}, ctlTimeout, nil)
	if err != nil {
		return "", err
	}
	return string(resp.Data), nil
}

// GetState reads the device state
func (c *Camera) GetState() (camera.State, error) {
	resp, err := c.exchange(MessagePrimitive{Op: OpState}, ctlTimeout, nil)
	if err != nil {
		return camera.Unknown, err
	}
	if len(resp.Data) < 1 {
		return camera.Unknown, fmt.Errorf("tvips: empty state response")
	}
	st, ok := stateCodes[resp.Data[0]]
	if !ok {
		return camera.Unknown, fmt.Errorf("tvips: unknown state code %#x", resp.Data[0])
	}
	return st, nil
}

// InitDevice (re)initializes the camera head
func (c *Camera) InitDevice() error {
	_, err := c.exchange(MessagePrimitive{Op: OpInitialize}, ctlTimeout, nil)
	return err
}

// EnsureOn blocks until the camera reports On.  A camera in Fault or Unknown
// is initialized first.  If the deadline passes before the camera is On, the
// last seen state is in the error
func (c *Camera) EnsureOn(timeout time.Duration) error {
	st, err := c.GetState()
	if err != nil {
		return err
	}
	if st == camera.Fault || st == camera.Unknown {
		if err := c.InitDevice(); err != nil {
			return err
		}
	}
	deadline := time.Now().Add(timeout)
	for {
		st, err = c.GetState()
		if err != nil {
			return err
		}
		if st == camera.On {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("tvips: camera not ON, but %v", st)
		}
		time.Sleep(statePollInterval)
	}
}

// StartLive begins continuous readout
func (c *Camera) StartLive() error {
	_, err := c.exchange(MessagePrimitive{Op: OpStartLive}, ctlTimeout, nil)
	return err
}

// StopLive ends continuous readout
func (c *Camera) StopLive() error {
	_, err := c.exchange(MessagePrimitive{Op: OpStopLive}, ctlTimeout, nil)
	return err
}

// GetLiveFrame retrieves the most recent frame from the live stream without
// triggering an exposure
func (c *Camera) GetLiveFrame() (camera.Frame, error) {
	return c.frameExchange(OpLiveFrame, ctlTimeout)
}

// AcquireFrame triggers an exposure and blocks until the frame is read out.
// The read deadline covers the exposure time plus readout slack
func (c *Camera) AcquireFrame() (camera.Frame, error) {
	texp, err := c.GetExposureTime()
	if err != nil {
		return camera.Frame{}, err
	}
	return c.frameExchange(OpAcquire, texp+readoutSlack)
}

// frameExchange performs a frame opcode exchange: the response telegram bears
// [width u16][height u16] little endian and the raw pixel stream follows
func (c *Camera) frameExchange(op byte, to time.Duration) (camera.Frame, error) {
	var f camera.Frame
	_, err := c.exchange(MessagePrimitive{Op: op}, to, func(resp MessagePrimitive, br *bufio.Reader) error {
		if len(resp.Data) < 4 {
			return fmt.Errorf("tvips: short frame geometry response")
		}
		w := int(binary.LittleEndian.Uint16(resp.Data))
		h := int(binary.LittleEndian.Uint16(resp.Data[2:]))
		buf := make([]byte, 2*w*h)
		if _, err := io.ReadFull(br, buf); err != nil {
			return err
		}
		pix := make([]uint16, w*h)
		for i := range pix {
			pix[i] = binary.LittleEndian.Uint16(buf[2*i:])
		}
		f = camera.Frame{Pix: pix, Width: w, Height: h}
		return nil
	})
	return f, err
}

// GetExposureTime gets the exposure time
func (c *Camera) GetExposureTime() (time.Duration, error) {
	resp, err := c.exchange(MessagePrimitive{Op: OpGetExposure}, ctlTimeout, nil)
	if err != nil {
		return 0, err
	}
	if len(resp.Data) < 4 {
		return 0, fmt.Errorf("tvips: short exposure response")
	}
	ms := binary.LittleEndian.Uint32(resp.Data)
	return time.Duration(ms) * time.Millisecond, nil
}

// SetExposureTime sets the exposure time.  The head works in integer
// milliseconds; durations are truncated
func (c *Camera) SetExposureTime(d time.Duration) error {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, uint32(d.Milliseconds()))
	_, err := c.exchange(MessagePrimitive{Op: OpSetExposure, Data: data}, ctlTimeout, nil)
	return err
}

// GetTemperature gets the sensor temperature in Celsius
func (c *Camera) GetTemperature() (float64, error) {
	resp, err := c.exchange(MessagePrimitive{Op: OpTemperature}, ctlTimeout, nil)
	if err != nil {
		return 0, err
	}
	if len(resp.Data) < 2 {
		return 0, fmt.Errorf("tvips: short temperature response")
	}
	centi := int16(binary.LittleEndian.Uint16(resp.Data))
	return float64(centi) / 100, nil
}

// GetRes gets the (W, H) of the sensor
func (c *Camera) GetRes() ([2]int, error) {
	resp, err := c.exchange(MessagePrimitive{Op: OpResolution}, ctlTimeout, nil)
	if err != nil {
		return [2]int{}, err
	}
	if len(resp.Data) < 4 {
		return [2]int{}, fmt.Errorf("tvips: short resolution response")
	}
	w := int(binary.LittleEndian.Uint16(resp.Data))
	h := int(binary.LittleEndian.Uint16(resp.Data[2:]))
	return [2]int{w, h}, nil
}
