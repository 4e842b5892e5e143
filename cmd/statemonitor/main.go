// statemonitor polls the camera state, exposure time, and sensor temperature
// on a fixed cadence, keeps a rolling history, and exposes both a JSON history
// endpoint and prometheus metrics.  The latest sample is rendered live in the
// terminal.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/theckman/yacspin"

	"github.com/siwick-lab/tvipstools/camera"
	"github.com/siwick-lab/tvipstools/statemon"
	"github.com/siwick-lab/tvipstools/tvips"
)

func main() {
	var (
		camAddr  = flag.String("camera", "192.168.100.20:11320", "address:port of the camera head")
		listen   = flag.String("listen", ":8002", "address:port to serve HTTP on")
		tick     = flag.Duration("tick", time.Second, "time between samples")
		capacity = flag.Int("capacity", 3600, "number of samples retained in the history")
		mock     = flag.Bool("mock", false, "use a simulated camera")
	)
	flag.Parse()

	var ctl tvips.Controller
	if *mock {
		ctl = tvips.NewMock()
	} else {
		ctl = tvips.NewCamera(*camAddr)
	}

	mon := statemon.New(ctl, *tick, *capacity)
	if err := mon.RegisterMetrics(nil); err != nil {
		log.Fatal(err)
	}
	mon.Start()
	defer mon.Stop()

	root := chi.NewRouter()
	mon.RT().Bind(root)
	root.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Fatal(http.ListenAndServe(*listen, root))
	}()

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[59],
		Suffix:          " camera",
		Message:         "waiting for first sample",
		StopCharacter:   "✓",
		StopColors:      []string{"fgGreen"},
		SuffixAutoColon: true,
	})
	if err != nil {
		log.Fatal(err)
	}
	spinner.Start()
	defer spinner.Stop()
	for range time.Tick(*tick) {
		state, exp, temp := mon.Latest()
		spinner.Message(fmt.Sprintf("%s  %.3g s  %.1f C",
			camera.State(int(state)), exp, temp))
	}
}
