package liveview

import (
	"encoding/json"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"

	"github.com/siwick-lab/tvipstools/camera"
	"github.com/siwick-lab/tvipstools/generichttp"
	"github.com/siwick-lab/tvipstools/tvips"
)

// HTTPWrapper provides an HTTP interface to a live view monitor
type HTTPWrapper struct {
	// Mon is the monitor being wrapped
	Mon *Monitor

	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns a new wrapper with the route table populated
func NewHTTPWrapper(mon *Monitor) HTTPWrapper {
	w := HTTPWrapper{Mon: mon}
	w.RouteTable = generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/frame"}: w.GetFrame,
		{Method: http.MethodGet, Path: "/stats"}: w.GetStats,

		{Method: http.MethodPost, Path: "/dark"}:   generichttp.Trigger(mon.TakeDark),
		{Method: http.MethodDelete, Path: "/dark"}: w.ClearDark,
		{Method: http.MethodGet, Path: "/dark"}:    generichttp.GetBool(func() (bool, error) { return mon.HasDark(), nil }),

		{Method: http.MethodPost, Path: "/roi"}:   w.AddROI,
		{Method: http.MethodGet, Path: "/roi"}:    w.GetROIs,
		{Method: http.MethodDelete, Path: "/roi"}: w.ClearROIs,

		{Method: http.MethodPost, Path: "/start"}: generichttp.Trigger(mon.Start),
		{Method: http.MethodPost, Path: "/stop"}:  generichttp.Trigger(mon.Stop),
		{Method: http.MethodGet, Path: "/running"}: generichttp.GetBool(
			func() (bool, error) { return mon.Running(), nil }),
	}
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// GetFrame serves the latest dark-subtracted frame as jpg (default), png,
// or fits
func (h HTTPWrapper) GetFrame(w http.ResponseWriter, r *http.Request) {
	frame, _, err := h.Mon.Frame()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	format := r.URL.Query().Get("fmt")
	if format == "" {
		format = "jpg"
	}
	switch format {
	case "jpg", "png":
		buf := make([]byte, len(frame.Pix))
		for idx := 0; idx < len(frame.Pix); idx++ {
			buf[idx] = byte(frame.Pix[idx] / 256)
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
		hdr := w.Header()
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", "attachment; filename=live.fits")
		cards := tvips.CollectHeaderMetadata(h.Mon.src)
		err := tvips.WriteFits(w, cards, []camera.Frame{frame})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	default:
		http.Error(w, "fmt must be jpg, png, or fits", http.StatusBadRequest)
	}
}

// GetStats serves min/max/mean/index of the latest frame as JSON
func (h HTTPWrapper) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Mon.Stats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ClearDark removes the dark reference
func (h HTTPWrapper) ClearDark(w http.ResponseWriter, r *http.Request) {
	h.Mon.ClearDark()
	w.WriteHeader(http.StatusOK)
}

// AddROI registers a region of interest from a JSON body
func (h HTTPWrapper) AddROI(w http.ResponseWriter, r *http.Request) {
	var roi ROI
	err := json.NewDecoder(r.Body).Decode(&roi)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Mon.AddROI(roi); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetROIs serves the regions and their mean histories as JSON
func (h HTTPWrapper) GetROIs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(h.Mon.ROIs()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ClearROIs removes all regions
func (h HTTPWrapper) ClearROIs(w http.ResponseWriter, r *http.Request) {
	h.Mon.ClearROIs()
	w.WriteHeader(http.StatusOK)
}
