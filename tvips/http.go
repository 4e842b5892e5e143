package tvips

import (
	"go/types"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/siwick-lab/tvipstools/camera"
	"github.com/siwick-lab/tvipstools/generichttp"
	"github.com/siwick-lab/tvipstools/imgrec"
	"github.com/siwick-lab/tvipstools/util"
)

// Controller is the full set of camera behavior the HTTP layer exposes.
// Both *Camera and *Mock satisfy it
type Controller interface {
	Identifier
	camera.StateReporter
	camera.Viewer
	camera.PictureTaker
	camera.Thermometer
}

// HTTPWrapper provides an HTTP interface to a camera
type HTTPWrapper struct {
	// Cam is the camera being wrapped
	Cam Controller

	// Rec is the recorder used to automatically write fits frames to disk
	Rec *imgrec.Recorder

	// RouteTable maps method-paths to handlers
	RouteTable generichttp.RouteTable

	// limiter caps the rate of live-image requests so a hot polling loop
	// cannot starve the camera link
	limiter *rate.Limiter
}

// NewHTTPWrapper returns a new wrapper with the route table populated
func NewHTTPWrapper(c Controller, rec *imgrec.Recorder) HTTPWrapper {
	w := HTTPWrapper{Cam: c, Rec: rec, limiter: rate.NewLimiter(rate.Every(25*time.Millisecond), 1)}
	w.RouteTable = generichttp.RouteTable{
		// image capture
		{Method: http.MethodGet, Path: "/image"}:      w.GetFrame,
		{Method: http.MethodGet, Path: "/live-image"}: w.GetLiveFrame,

		// live mode
		{Method: http.MethodPost, Path: "/start-live"}: generichttp.Trigger(c.StartLive),
		{Method: http.MethodPost, Path: "/stop-live"}:  generichttp.Trigger(c.StopLive),

		// exposure manipulation
		{Method: http.MethodGet, Path: "/exposure-time"}:  w.GetExposureTime,
		{Method: http.MethodPost, Path: "/exposure-time"}: w.SetExposureTime,

		// state machine
		{Method: http.MethodGet, Path: "/state"}:       w.GetState,
		{Method: http.MethodPost, Path: "/initialize"}: generichttp.Trigger(c.InitDevice),

		// misc
		{Method: http.MethodGet, Path: "/temperature"}: generichttp.GetFloat(c.GetTemperature),
		{Method: http.MethodGet, Path: "/id"}:          generichttp.GetString(c.Identification),
	}
	if rec != nil {
		wrap := imgrec.NewHTTPWrapper(rec)
		wrap.Inject(&w)
	}
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// SetExposureTime sets the exposure time on a POST request.
// it can be provided either as a query parameter exposureTime, formatted in a
// way that is parseable by time.ParseDuration, or a json payload with key
// f64, holding the exposure time in seconds
func (h HTTPWrapper) SetExposureTime(w http.ResponseWriter, r *http.Request) {
	texp := r.URL.Query().Get("exposureTime")
	if texp == "" {
		generichttp.SetFloat(func(f float64) error {
			return h.Cam.SetExposureTime(time.Duration(f * 1e9)) // 1e9 s => ns
		})(w, r)
		return
	}
	if util.AllElementsNumbers(texp) {
		texp = texp + "s"
	}
	d, err := time.ParseDuration(texp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.Cam.SetExposureTime(d)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetExposureTime gets the exposure time in seconds on a GET request
func (h HTTPWrapper) GetExposureTime(w http.ResponseWriter, r *http.Request) {
	f, err := h.Cam.GetExposureTime()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	hp := generichttp.HumanPayload{T: types.Float64, Float: f.Seconds()}
	hp.EncodeAndRespond(w, r)
}

// GetState returns the camera state name as JSON
func (h HTTPWrapper) GetState(w http.ResponseWriter, r *http.Request) {
	st, err := h.Cam.GetState()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	hp := generichttp.HumanPayload{T: types.String, String: st.String()}
	hp.EncodeAndRespond(w, r)
}

// GetFrame takes a picture and returns it on a GET request.
//
// the image format may be specified in a query parameter; default to jpg
//
// the exposure time may be specified as a query parameter in any time-looking
// format, such as "25ms" or "10us".  Strictly speaking, it must be a valid
// input to time.ParseDuration.  if no unit is appended, an s (seconds) is added.
//
// if no exposure time is provided, it is not updated and the existing value is used.
func (h HTTPWrapper) GetFrame(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	texp := q.Get("exposureTime")
	if texp != "" {
		if util.AllElementsNumbers(texp) {
			texp = texp + "s"
		}
		T, err := time.ParseDuration(texp)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = h.Cam.SetExposureTime(T)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	frame, err := h.Cam.AcquireFrame()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.respondImage(w, r, frame)
}

// GetLiveFrame returns the most recent frame from the live stream without
// triggering an exposure.  Requests beyond the rate limit get 429
func (h HTTPWrapper) GetLiveFrame(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		http.Error(w, "live-image poll rate exceeded", http.StatusTooManyRequests)
		return
	}
	frame, err := h.Cam.GetLiveFrame()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.respondImage(w, r, frame)
}

// respondImage encodes frame in the format named by the fmt query parameter
func (h HTTPWrapper) respondImage(w http.ResponseWriter, r *http.Request, frame camera.Frame) {
	format := r.URL.Query().Get("fmt")
	if format == "" {
		format = "jpg"
	}
	switch format {
	case "jpg", "png":
		buf := make([]byte, len(frame.Pix))
		for idx := 0; idx < len(frame.Pix); idx++ {
			buf[idx] = byte(frame.Pix[idx] / 256) // scale 16 to 8 bits
		}
		im := &image.Gray{Pix: buf, Stride: frame.Width, Rect: image.Rect(0, 0, frame.Width, frame.Height)}
		if format == "jpg" {
			w.Header().Set("Content-Type", "image/jpeg")
			w.WriteHeader(http.StatusOK)
			jpeg.Encode(w, im, nil)
		} else {
			w.Header().Set("Content-Type", "image/png")
			w.WriteHeader(http.StatusOK)
			png.Encode(w, im)
		}
	case "fits":
		// stream to the recorder as well if it is enabled, so frames land
		// on disk next to the wire
		var w2 io.Writer = w
		if h.Rec != nil && h.Rec.Enabled && h.Rec.Root != "" {
			w2 = io.MultiWriter(w, h.Rec)
			defer h.Rec.Incr()
		}
		hdr := w.Header()
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", "attachment; filename=image.fits")
		cards := CollectHeaderMetadata(h.Cam)
		err := WriteFits(w2, cards, []camera.Frame{frame})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	default:
		http.Error(w, "fmt must be jpg, png, or fits", http.StatusBadRequest)
	}
}
