// snapshot acquires a single frame from the camera and writes it to a FITS
// file.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/theckman/yacspin"

	"github.com/siwick-lab/tvipstools/camera"
	"github.com/siwick-lab/tvipstools/tvips"
)

func main() {
	var (
		camAddr  = flag.String("camera", "192.168.100.20:11320", "address:port of the camera head")
		exposure = flag.Duration("exposure", time.Second, "integration time")
		output   = flag.String("o", "", "output filename, default snapshot_<timestamp>.fits")
		mock     = flag.Bool("mock", false, "use a simulated camera")
	)
	flag.Parse()

	var ctl tvips.Controller
	if *mock {
		ctl = tvips.NewMock()
	} else {
		ctl = tvips.NewCamera(*camAddr)
	}

	fn := *output
	if fn == "" {
		fn = fmt.Sprintf("snapshot_%s.fits", time.Now().Format("2006-01-02T15-04-05"))
	}

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:     100 * time.Millisecond,
		CharSet:       yacspin.CharSets[59],
		Message:       "warming up",
		StopCharacter: "✓",
		StopColors:    []string{"fgGreen"},
	})
	if err != nil {
		log.Fatal(err)
	}
	spinner.Start()

	if err := ctl.EnsureOn(10 * time.Second); err != nil {
		log.Fatal(err)
	}
	if err := ctl.SetExposureTime(*exposure); err != nil {
		log.Fatal(err)
	}
	spinner.Message(fmt.Sprintf("exposing for %v", *exposure))
	frame, err := ctl.AcquireFrame()
	if err != nil {
		log.Fatal(err)
	}
	spinner.Message("writing " + fn)

	fid, err := os.Create(fn)
	if err != nil {
		log.Fatal(err)
	}
	defer fid.Close()
	cards := tvips.CollectHeaderMetadata(ctl)
	if err := tvips.WriteFits(fid, cards, []camera.Frame{frame}); err != nil {
		log.Fatal(err)
	}
	spinner.StopMessage(fn)
	spinner.Stop()
}
