/*Package experiment runs single-shot pump/probe experiments.

Each scan acquires a dark image (both shutters closed), a laser background
(pump only), and a pump-off image (probe only), then steps through the time
delays in a freshly shuffled order with both beams open, saving one FITS
frame per delay.  Transient acquisition failures are retried a bounded
number of times with the camera re-initialized between attempts.
*/
package experiment

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path"
	"time"

	"github.com/astrogo/fitsio"

	"github.com/siwick-lab/tvipstools/camera"
	"github.com/siwick-lab/tvipstools/delayline"
	"github.com/siwick-lab/tvipstools/tvips"
)

const (
	// DirPumpOff holds the probe-only images
	DirPumpOff = "pump_off"

	// DirLaserBG holds the pump-only images
	DirLaserBG = "laser_background"

	// DirDark holds the all-beams-blocked images
	DirDark = "dark_image"

	// timestampFormat is the prefix format of log lines
	timestampFormat = "2006-01-02 15:04:05"

	// ensureOnTimeout bounds how long we wait for the camera to come up
	ensureOnTimeout = 10 * time.Second
)

// Camera is the subset of camera behavior the runner drives
type Camera interface {
	camera.StateReporter
	camera.PictureTaker
}

// Shutter controls one beam shutter
type Shutter interface {
	Enable(bool) error
}

// Stage positions the pump-probe delay, blocking until the move completes
type Stage interface {
	Move(ps float64) error
}

// Config holds the parameters of an experiment
type Config struct {
	// Savedir is where all output lands.  Empty means the working directory
	Savedir string

	// NScans is the number of scans over the delay list
	NScans int

	// Delays is the unparsed delay list, e.g. "-5,-1:0.25:1,5"
	Delays string

	// Exposure is the integration time of each image
	Exposure time.Duration

	// MaxRetries bounds acquisition attempts for a single image
	MaxRetries int
}

// DefaultConfig returns a config with the customary exposure and retry budget
func DefaultConfig() Config {
	return Config{
		Exposure:   15 * time.Second,
		MaxRetries: 25,
	}
}

// Experiment binds the hardware and configuration of one run
type Experiment struct {
	Cam   Camera
	Pump  Shutter
	Probe Shutter
	Delay Stage
	Cfg   Config

	// Progress, if not nil, is called after every saved image with the scan
	// number and a label for the image
	Progress func(scan int, label string)

	log io.Writer
	rng *rand.Rand
}

// New returns an experiment over the given hardware
func New(cam Camera, pump, probe Shutter, delay Stage, cfg Config) *Experiment {
	return &Experiment{
		Cam:   cam,
		Pump:  pump,
		Probe: probe,
		Delay: delay,
		Cfg:   cfg,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// logf writes a timestamped line to the experiment log
func (e *Experiment) logf(format string, args ...interface{}) {
	if e.log == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(e.log, "%s | %s\n", time.Now().Format(timestampFormat), msg)
}

// acquireTo triggers an exposure and writes the frame to
// <savedir>/<subdir>/<filename>, retrying transient failures up to the
// configured budget.  extraCards are appended to the FITS header
func (e *Experiment) acquireTo(subdir, filename string, extraCards []fitsio.Card) error {
	var lastErr error
	for attempt := 0; attempt <= e.Cfg.MaxRetries; attempt++ {
		frame, err := e.Cam.AcquireFrame()
		if err != nil {
			lastErr = err
			e.logf("%v", err)
			if err2 := e.Cam.EnsureOn(ensureOnTimeout); err2 != nil {
				e.logf("camera recovery failed: %v", err2)
			}
			continue
		}
		return e.writeFrame(subdir, filename, frame, extraCards)
	}
	return fmt.Errorf("experiment: acquisition of %s failed after %d attempts: %w",
		filename, e.Cfg.MaxRetries+1, lastErr)
}

func (e *Experiment) writeFrame(subdir, filename string, frame camera.Frame, extraCards []fitsio.Card) error {
	cards := tvips.CollectHeaderMetadata(e.Cam)
	cards = append(cards, extraCards...)
	fn := path.Join(e.Cfg.Savedir, subdir, filename)
	fid, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer fid.Close()
	return tvips.WriteFits(fid, cards, []camera.Frame{frame})
}

// setShutters sets the pump and probe shutters in one call
func (e *Experiment) setShutters(pump, probe bool) error {
	if err := e.Pump.Enable(pump); err != nil {
		return fmt.Errorf("experiment: pump shutter: %w", err)
	}
	if err := e.Probe.Enable(probe); err != nil {
		return fmt.Errorf("experiment: probe shutter: %w", err)
	}
	return nil
}

func (e *Experiment) progress(scan int, label string) {
	if e.Progress != nil {
		e.Progress(scan, label)
	}
}

// Run executes the experiment.  The log and all images are written under
// Cfg.Savedir.  The shutters are closed when Run returns
func (e *Experiment) Run() (err error) {
	if e.Cfg.Savedir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		e.Cfg.Savedir = wd
	}
	delays := delayline.ParseDelays(e.Cfg.Delays)

	// prepare hardware
	if err := e.Cam.EnsureOn(ensureOnTimeout); err != nil {
		return err
	}
	if err := e.Cam.SetExposureTime(e.Cfg.Exposure); err != nil {
		return err
	}

	if err := os.MkdirAll(e.Cfg.Savedir, 0777); err != nil {
		return err
	}
	logfile, err := os.Create(path.Join(e.Cfg.Savedir, "experiment.log"))
	if err != nil {
		return err
	}
	defer logfile.Close()
	e.log = logfile

	defer func() {
		// the beams never stay open past the experiment
		if err2 := e.setShutters(false, false); err2 != nil && err == nil {
			err = err2
		}
		if err != nil {
			e.logf("%v", err)
		}
	}()

	e.logf("starting experiment with %d scans at %d delays", e.Cfg.NScans, len(delays))
	for _, dir := range []string{DirLaserBG, DirPumpOff, DirDark} {
		if err := os.MkdirAll(path.Join(e.Cfg.Savedir, dir), 0777); err != nil {
			return err
		}
	}

	for i := 0; i < e.Cfg.NScans; i++ {
		scan := i + 1
		if err := e.runScan(scan, delays); err != nil {
			return err
		}
	}

	e.logf("EXPERIMENT COMPLETE")
	return nil
}

func (e *Experiment) runScan(scan int, delays []float64) error {
	// millisecond resolution so back-to-back scans cannot collide on a name
	epoch := func() string { return fmt.Sprintf("%013d", time.Now().UnixMilli()) }
	scanCard := fitsio.Card{Name: "SCANNUM", Value: scan, Comment: "scan number"}

	// dark: all beams blocked
	if err := e.setShutters(false, false); err != nil {
		return err
	}
	err := e.acquireTo(DirDark, fmt.Sprintf("dark_epoch_%sms.fits", epoch()), []fitsio.Card{scanCard})
	if err != nil {
		return err
	}
	e.logf("dark image acquired")
	e.progress(scan, "dark")

	// laser background: pump only
	if err := e.setShutters(true, false); err != nil {
		return err
	}
	err = e.acquireTo(DirLaserBG, fmt.Sprintf("laser_bg_epoch_%sms.fits", epoch()), []fitsio.Card{scanCard})
	if err != nil {
		return err
	}
	e.logf("laser background image acquired")
	e.progress(scan, "laser background")

	// pump off: probe only
	if err := e.setShutters(false, true); err != nil {
		return err
	}
	err = e.acquireTo(DirPumpOff, fmt.Sprintf("pump_off_epoch_%sms.fits", epoch()), []fitsio.Card{scanCard})
	if err != nil {
		return err
	}
	e.logf("pump off image acquired")
	e.progress(scan, "pump off")

	// pump on: both beams open for the delay sweep
	if err := e.setShutters(true, true); err != nil {
		return err
	}
	scandir := fmt.Sprintf("scan_%04d", scan)
	if err := os.MkdirAll(path.Join(e.Cfg.Savedir, scandir), 0777); err != nil {
		return err
	}
	shuffled := make([]float64, len(delays))
	copy(shuffled, delays)
	e.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	for _, delay := range shuffled {
		if err := e.Delay.Move(delay); err != nil {
			return err
		}
		filename := fmt.Sprintf("pumpon_%+010.3fps.fits", delay)
		cards := []fitsio.Card{
			scanCard,
			{Name: "DELAY", Value: delay, Comment: "pump-probe delay, ps"},
		}
		if err := e.acquireTo(scandir, filename, cards); err != nil {
			return err
		}
		e.logf("pump on image acquired at scan %d and time-delay %.1fps", scan, delay)
		e.progress(scan, fmt.Sprintf("%+.3f ps", delay))
	}
	return nil
}
