package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/siwick-lab/tvipstools/generichttp"
	"github.com/siwick-lab/tvipstools/generichttp/ascii"
	"github.com/siwick-lab/tvipstools/generichttp/motion"
	"github.com/siwick-lab/tvipstools/imgrec"
	"github.com/siwick-lab/tvipstools/newport"
	"github.com/siwick-lab/tvipstools/server/middleware/locker"
	"github.com/siwick-lab/tvipstools/thorlabs"
	"github.com/siwick-lab/tvipstools/tvips"
	"github.com/siwick-lab/tvipstools/util"
)

// ObjSetup holds the typical triplet of args for a New<device> call.
// Serial is not always used, and need not be populated in the config file
// if not used.
type ObjSetup struct {
	// Addr holds the network or filesystem address of the remote device,
	// e.g. 192.168.100.123:2006 for a device connected to port 6
	// on a digi portserver, or /dev/ttyS4 for an RS232 device on a serial cable
	Addr string `yaml:"Addr"`

	// Endpoint is the path the routes from this device will be served on,
	// ex. Endpoint="/f216" will produce routes of /f216/image, etc.
	Endpoint string `yaml:"Endpoint"`

	// Serial determines if the connection is serial/RS232 (True) or TCP (False)
	Serial bool `yaml:"Serial"`

	// Type is the "type" of the object, e.g. ESP301
	Type string `yaml:"Type"`

	// Args holds any arguments to pass into the constructor for the object
	Args map[string]interface{} `yaml:"Args"`
}

// Config is a struct that holds the initialization parameters for the
// HTTP adapted devices.  It is to be populated by koanf
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr"`

	// Mock swaps every node for a simulated counterpart
	Mock bool `yaml:"Mock"`

	// Nodes is the list of nodes to set up
	Nodes []ObjSetup `yaml:"Nodes"`
}

// limitersFromArgs decodes an Args.Limits block into per-axis limiters
func limitersFromArgs(args map[string]interface{}) map[string]util.Limiter {
	limiters := map[string]util.Limiter{}
	if args == nil || args["Limits"] == nil {
		return limiters
	}
	rawlimits, ok := args["Limits"].(map[string]interface{})
	if !ok {
		return limiters
	}
	for k, v := range rawlimits {
		limiter := util.Limiter{}
		if m, ok := v.(map[string]interface{}); ok {
			if min, ok := m["Min"]; ok {
				limiter.Min, _ = min.(float64)
			}
			if max, ok := m["Max"]; ok {
				limiter.Max, _ = max.(float64)
			}
		}
		limiters[k] = limiter
	}
	return limiters
}

func stringArg(args map[string]interface{}, key string) string {
	if args == nil {
		return ""
	}
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// BuildMux constructs a chi router with a submux per configured node.
// The mux serves a special route, /endpoints, which returns a map of
// stem => routes as JSON.
func BuildMux(c Config) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	for _, node := range c.Nodes {
		var (
			httper generichttp.HTTPer
			mws    []func(http.Handler) http.Handler
		)
		typ := strings.ToLower(node.Type)
		switch typ {
		case "f216", "tvips", "camera":
			var ctl tvips.Controller
			if c.Mock {
				ctl = tvips.NewMock()
			} else {
				ctl = tvips.NewCamera(node.Addr)
			}
			var rec *imgrec.Recorder
			if dir := stringArg(node.Args, "Root"); dir != "" {
				rec = &imgrec.Recorder{Root: dir, Prefix: stringArg(node.Args, "Prefix"), Enabled: true}
			}
			w := tvips.NewHTTPWrapper(ctl, rec)
			httper = w

		case "sc10", "shutter":
			var ctl thorlabs.ShutterController
			if c.Mock {
				ctl = thorlabs.NewMockSC10()
			} else {
				ctl = thorlabs.NewSC10(node.Addr, node.Serial)
			}
			httper = thorlabs.NewHTTPShutter(ctl)

		case "esp", "esp301", "delaystage":
			var ctl motion.Controller
			if c.Mock {
				ctl = newport.NewMockESP301()
			} else {
				ctl = newport.NewESP301(node.Addr, node.Serial)
			}
			limiter := motion.LimitMiddleware{Limits: limitersFromArgs(node.Args), Mov: ctl}
			w := motion.NewHTTPMotionController(ctl)
			if rawer, ok := ctl.(ascii.RawCommunicator); ok {
				ascii.InjectRawComm(w, rawer)
			}
			limiter.Inject(w)
			mws = append(mws, limiter.Check)
			httper = w

		default:
			log.Fatal("type ", typ, " not understood")
		}

		// prepare the URL, "den/f216" => "/den/f216"
		hndlS := generichttp.SubMuxSanitize(node.Endpoint)

		// add the endpoints to the graph
		supergraph[hndlS] = httper.RT().Endpoints()

		// add a lock interface for this node
		lock := locker.New()
		locker.Inject(httper, lock)

		r := chi.NewRouter()
		r.Use(mws...)
		r.Use(lock.Check)
		httper.RT().Bind(r)
		root.Mount(hndlS, r)
	}
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root
}
