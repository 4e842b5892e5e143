/*Package newport provides an interface to ESP series motion controllers.

The ESP301 speaks an ASCII protocol where commands look like "1PA27.1083"
(axis 1, position absolute, target) and queries look like "1TP?".  Multiple
commands may be joined with semicolons up to the 80 character remote buffer.
*/
package newport

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tarm/serial"

	"github.com/siwick-lab/tvipstools/comm"
)

const (
	// RemoteBufferSize is the number of ASCII characters that fit in the
	// command buffer on the ESP301
	RemoteBufferSize = 80

	// motionPollInterval is how often Wait rechecks the motion-done flag
	motionPollInterval = 50 * time.Millisecond
)

var (
	// ErrBufferWouldOverflow is generated when the buffer on the ESP
	// controller would overflow if the message was transmitted
	ErrBufferWouldOverflow = errors.New("buffer too long, maximum command length is 80 characters")

	commands = []Command{
		// status functions
		{Cmd: "TB", Alias: "err-msg", Description: "get error message", IsReadOnly: true},
		{Cmd: "TP", Alias: "get-position", Description: "get position", UsesAxis: true, IsReadOnly: true},
		{Cmd: "TV", Alias: "get-velocity", Description: "get velocity", UsesAxis: true, IsReadOnly: true},
		{Cmd: "VE", Alias: "controller-firmware", Description: "get controller firmware version", IsReadOnly: true},
		{Cmd: "MD", Alias: "motion-done", Description: "get motion done status", UsesAxis: true, IsReadOnly: true},

		// motion functions
		{Cmd: "OR", Alias: "origin-search", Description: "origin searching", UsesAxis: true},
		{Cmd: "PA", Alias: "move-abs", Description: "move absolute", UsesAxis: true},
		{Cmd: "PR", Alias: "move-rel", Description: "move relative", UsesAxis: true},
		{Cmd: "ST", Alias: "stop", Description: "stop motion", UsesAxis: true},

		// trajectory definition
		{Cmd: "VA", Alias: "set-velocity", Description: "set velocity", UsesAxis: true},
		{Cmd: "AC", Alias: "set-accel", Description: "set acceleration", UsesAxis: true},
		{Cmd: "AG", Alias: "set-decel", Description: "set deceleration", UsesAxis: true},
	}

	// ErrCodesWithoutAxes maps error codes to error strings when the errors
	// are not axis specific
	ErrCodesWithoutAxes = map[int]string{
		0:  "NO ERROR DETECTED",
		4:  "EMERGENCY STOP ACTIVATED",
		6:  "COMMAND DOES NOT EXIST",
		7:  "PARAMETER OUT OF RANGE",
		8:  "CABLE INTERLOCK ERROR",
		9:  "AXIS NUMBER OUT OF RANGE",
		27: "COMMAND NOT ALLOWED",
		37: "AXIS NUMBER MISSING",
		38: "COMMAND PARAMETER MISSING",
		40: "LAST COMMAND CANNOT BE REPEATED",
	}

	// ErrCodesWithAxes maps the final two digits of an axis-specific error
	// code to a string.  The axis number is excluded from the key
	ErrCodesWithAxes = map[int]string{
		0:  "MOTOR TYPE NOT DEFINED",
		1:  "PARAMETER OUT OF RANGE",
		2:  "AMPLIFIER FAULT DETECTED",
		3:  "FOLLOWING ERROR THRESHOLD EXCEEDED",
		4:  "POSITIVE HARDWARE LIMIT REACHED",
		5:  "NEGATIVE HARDWARE LIMIT REACHED",
		6:  "POSITIVE SOFTWARE LIMIT REACHED",
		7:  "NEGATIVE SOFTWARE LIMIT REACHED",
		8:  "MOTOR / STAGE NOT CONNECTED",
		9:  "FEEDBACK SIGNAL FAULT DETECTED",
		10: "MAXIMUM VELOCITY EXCEEDED",
		11: "MAXIMUM ACCELERATION EXCEEDED",
		13: "MOTOR NOT ENABLED",
		20: "HOMING ABORTED",
		24: "SPEED OUT OF RANGE",
		30: "COMMAND NOT ALLOWED DURING HOMING",
	}
)

// Command describes a command the controller understands
type Command struct {
	Cmd         string `json:"cmd"`
	Alias       string `json:"alias"`
	Description string `json:"description"`
	UsesAxis    bool   `json:"usesAxis"`
	IsReadOnly  bool   `json:"isReadOnly"`
}

// ErrCommandNotFound is generated when a command is unknown to this package
type ErrCommandNotFound struct {
	Cmd string
}

func (e ErrCommandNotFound) Error() string {
	return fmt.Sprintf("command %s not found", e.Cmd)
}

func commandFromAlias(alias string) (Command, error) {
	for _, c := range commands {
		if c.Alias == alias || c.Cmd == alias {
			return c, nil
		}
	}
	return Command{}, ErrCommandNotFound{alias}
}

func makeTelegram(c Command, axis string, write bool, data float64) string {
	pieces := []string{}
	if c.UsesAxis {
		pieces = append(pieces, axis)
	}
	pieces = append(pieces, c.Cmd)
	if c.IsReadOnly || !write {
		pieces = append(pieces, "?")
	} else {
		pieces = append(pieces, strconv.FormatFloat(data, 'g', -1, 64))
	}
	return strings.Join(pieces, "")
}

// makeSerConf makes a new serial.Config with correct parity, baud, etc, set
func makeSerConf(addr string) *serial.Config {
	return &serial.Config{
		Name:        addr,
		Baud:        19200,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 1 * time.Second}
}

// ESP301 represents an ESP301 motion controller
type ESP301 struct {
	pool *comm.Pool
}

// NewESP301 makes a new ESP301 motion controller instance.  addr is a serial
// device path when serialMode is true, otherwise host:port of the ethernet
// interface
func NewESP301(addr string, serialMode bool) *ESP301 {
	var maker comm.CreationFunc
	if serialMode {
		maker = comm.SerialConnMaker(makeSerConf(addr))
	} else {
		maker = comm.BackingOffTCPConnMaker(addr, 3*time.Second)
	}
	pool := comm.NewPool(1, time.Minute, maker)
	return &ESP301{pool: pool}
}

// writeOnly sends a command to the controller without waiting for a reply
func (esp *ESP301) writeOnly(cmd string) error {
	if len(cmd) > RemoteBufferSize {
		return ErrBufferWouldOverflow
	}
	conn, err := esp.pool.Get()
	if err != nil {
		return err
	}
	defer func() { esp.pool.ReturnWithError(conn, err) }()
	wrap := comm.NewTerminator(conn, '\r', '\r')
	_, err = wrap.Write([]byte(cmd))
	return err
}

// writeRead sends a query to the controller and returns the reply
func (esp *ESP301) writeRead(cmd string) (string, error) {
	if len(cmd) > RemoteBufferSize {
		return "", ErrBufferWouldOverflow
	}
	conn, err := esp.pool.Get()
	if err != nil {
		return "", err
	}
	defer func() { esp.pool.ReturnWithError(conn, err) }()
	wrap := comm.NewTerminator(conn, '\n', '\r')
	_, err = wrap.Write([]byte(cmd))
	if err != nil {
		return "", err
	}
	buf := make([]byte, 128)
	var n int
	n, err = wrap.Read(buf)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(buf[:n])), nil
}

func (esp *ESP301) queryFloat(alias, axis string) (float64, error) {
	c, err := commandFromAlias(alias)
	if err != nil {
		return 0, err
	}
	resp, err := esp.writeRead(makeTelegram(c, axis, false, 0))
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(resp, 64)
}

func (esp *ESP301) command(alias, axis string, data float64) error {
	c, err := commandFromAlias(alias)
	if err != nil {
		return err
	}
	return esp.writeOnly(makeTelegram(c, axis, true, data))
}

// Raw sends a command directly to the motion controller.  Commands containing
// a "?" are treated as queries and the reply is returned
func (esp *ESP301) Raw(cmd string) (string, error) {
	if strings.Contains(cmd, "?") {
		return esp.writeRead(cmd)
	}
	return "", esp.writeOnly(cmd)
}

// GetPos gets the absolute position of an axis in controller units (usually mm)
func (esp *ESP301) GetPos(axis string) (float64, error) {
	return esp.queryFloat("get-position", axis)
}

// MoveAbs commands an absolute move of an axis in controller units
func (esp *ESP301) MoveAbs(axis string, pos float64) error {
	return esp.command("move-abs", axis, pos)
}

// MoveRel commands a relative move of an axis in controller units
func (esp *ESP301) MoveRel(axis string, dist float64) error {
	return esp.command("move-rel", axis, dist)
}

// Home homes an axis with a mode 1 origin search, "Find Home and Index
// Signal", which fully homes either linear or rotary axes.  Use Raw for a
// different kind of homing
func (esp *ESP301) Home(axis string) error {
	return esp.command("origin-search", axis, 1)
}

// GetVelocity gets the velocity setpoint of an axis
func (esp *ESP301) GetVelocity(axis string) (float64, error) {
	return esp.queryFloat("get-velocity", axis)
}

// SetVelocity sets the velocity setpoint of an axis
func (esp *ESP301) SetVelocity(axis string, v float64) error {
	return esp.command("set-velocity", axis, v)
}

// GetInPosition returns true if motion on the axis is complete
func (esp *ESP301) GetInPosition(axis string) (bool, error) {
	c, _ := commandFromAlias("motion-done")
	resp, err := esp.writeRead(makeTelegram(c, axis, false, 0))
	if err != nil {
		return false, err
	}
	return resp == "1", nil
}

// Wait blocks until motion on the axis is complete or the timeout passes
func (esp *ESP301) Wait(axis string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		done, err := esp.GetInPosition(axis)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("newport: axis %s still moving after %v", axis, timeout)
		}
		time.Sleep(motionPollInterval)
	}
}

// ReadErrors drains the error stack of the controller, returning a slice of
// the error messages, which is empty if there are no errors.  The slice may
// be partially filled if a communication error interrupts the sequence
func (esp *ESP301) ReadErrors() ([]string, error) {
	msgs := []string{}
	for {
		resp, err := esp.writeRead("TB?")
		if err != nil {
			return msgs, err
		}
		if len(resp) == 0 {
			return msgs, errors.New("newport: empty response to TB?")
		}
		if resp[0] == '0' {
			return msgs, nil
		}
		pieces := strings.Split(resp, ",")
		code := pieces[0]
		axis := -1
		var (
			mapV  map[int]string
			icode int
		)
		if len(code) > 2 {
			// axis-specific codes are the axis number with the code in
			// the last two digits
			mapV = ErrCodesWithAxes
			icode, err = strconv.Atoi(code[len(code)-2:])
			if err != nil {
				return msgs, err
			}
			axis, err = strconv.Atoi(code[:len(code)-2])
		} else {
			mapV = ErrCodesWithoutAxes
			icode, err = strconv.Atoi(code)
		}
		if err != nil {
			return msgs, err
		}
		errS := mapV[icode]
		if axis != -1 {
			errS = fmt.Sprintf("AXIS %d %s", axis, errS)
		}
		msgs = append(msgs, errS)
	}
}
