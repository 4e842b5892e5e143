// experiment runs a single-shot pump/probe data collection: per scan it
// acquires dark, laser background, and pump-off reference images, then sweeps
// the pump-probe delays in random order with both beams open.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/theckman/yacspin"

	"github.com/siwick-lab/tvipstools/delayline"
	"github.com/siwick-lab/tvipstools/experiment"
	"github.com/siwick-lab/tvipstools/newport"
	"github.com/siwick-lab/tvipstools/thorlabs"
	"github.com/siwick-lab/tvipstools/tvips"
)

func main() {
	cfg := experiment.DefaultConfig()
	var (
		camAddr   = flag.String("camera", "192.168.100.20:11320", "address:port of the camera head")
		pumpAddr  = flag.String("pump", "/dev/ttyUSB0", "address of the pump shutter controller")
		probeAddr = flag.String("probe", "/dev/ttyUSB1", "address of the probe shutter controller")
		stageAddr = flag.String("stage", "192.168.100.30:5001", "address of the delay stage controller")
		axis      = flag.String("axis", "1", "delay stage axis")
		t0        = flag.Float64("t0", delayline.DefaultT0, "stage position of zero delay, mm")
		serial    = flag.Bool("serial", true, "shutters are on serial ports rather than TCP")
		mock      = flag.Bool("mock", false, "use simulated hardware")
	)
	flag.StringVar(&cfg.Savedir, "savedir", "", "directory for output, default the working directory")
	flag.IntVar(&cfg.NScans, "scans", 1, "number of scans over the delay list")
	flag.StringVar(&cfg.Delays, "delays", "", "delays in ps, e.g. '-5,-1:0.25:1,5', ranges are stop exclusive")
	flag.DurationVar(&cfg.Exposure, "exposure", cfg.Exposure, "integration time of each image")
	flag.IntVar(&cfg.MaxRetries, "retries", cfg.MaxRetries, "retry budget for a single acquisition")
	flag.Parse()

	delays := delayline.ParseDelays(cfg.Delays)
	if len(delays) == 0 {
		log.Fatal("no valid delays, check the -delays argument")
	}

	var (
		cam         tvips.Controller
		pump, probe thorlabs.ShutterController
		stage       delayline.Mover
	)
	if *mock {
		cam = tvips.NewMock()
		pump = thorlabs.NewMockSC10()
		probe = thorlabs.NewMockSC10()
		stage = newport.NewMockESP301()
	} else {
		cam = tvips.NewCamera(*camAddr)
		pump = thorlabs.NewSC10(*pumpAddr, *serial)
		probe = thorlabs.NewSC10(*probeAddr, *serial)
		stage = newport.NewESP301(*stageAddr, false)
	}

	// manual mode, the shutters hold whatever state they are told
	if err := pump.SetOperatingMode(1); err != nil {
		log.Fatal(err)
	}
	if err := probe.SetOperatingMode(1); err != nil {
		log.Fatal(err)
	}

	dl := delayline.New(stage, *axis, *t0)
	e := experiment.New(cam, pump, probe, dl, cfg)

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[59],
		Suffix:          " experiment",
		Message:         fmt.Sprintf("%d scans at %d delays", cfg.NScans, len(delays)),
		StopCharacter:   "✓",
		StopColors:      []string{"fgGreen"},
		SuffixAutoColon: true,
	})
	if err != nil {
		log.Fatal(err)
	}
	spinner.Start()
	e.Progress = func(scan int, label string) {
		spinner.Message(fmt.Sprintf("scan %d/%d: %s", scan, cfg.NScans, label))
	}

	start := time.Now()
	if err := e.Run(); err != nil {
		spinner.StopFail()
		log.Fatal(err)
	}
	spinner.StopMessage(fmt.Sprintf("complete in %v", time.Since(start).Round(time.Second)))
	spinner.Stop()
}
