// liveview serves a continuously refreshed, dark-subtracted view of the
// detector over HTTP for alignment work.
package main

import (
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/siwick-lab/tvipstools/liveview"
	"github.com/siwick-lab/tvipstools/tvips"
)

func main() {
	var (
		camAddr  = flag.String("camera", "192.168.100.20:11320", "address:port of the camera head")
		listen   = flag.String("listen", ":8001", "address:port to serve HTTP on")
		interval = flag.Duration("interval", liveview.DefaultInterval, "time between frame polls")
		mock     = flag.Bool("mock", false, "use a simulated camera")
	)
	flag.Parse()

	var ctl tvips.Controller
	if *mock {
		ctl = tvips.NewMock()
	} else {
		ctl = tvips.NewCamera(*camAddr)
	}

	mon := liveview.New(ctl, *interval)
	if err := mon.Start(); err != nil {
		log.Fatal(err)
	}
	defer mon.Stop()

	// let the first frame land before serving
	time.Sleep(*interval)

	w := liveview.NewHTTPWrapper(mon)
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	w.RT().Bind(root)
	log.Println("now listening for requests at ", *listen)
	log.Fatal(http.ListenAndServe(*listen, root))
}
