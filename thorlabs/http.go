package thorlabs

import (
	"net/http"

	"github.com/siwick-lab/tvipstools/generichttp"
)

// ShutterController is the interface of an SC10 or its mock
type ShutterController interface {
	Identification() (string, error)
	SetOperatingMode(int) error
	GetOperatingMode() (int, error)
	Enable(bool) error
	GetEnabled() (bool, error)
}

// HTTPShutter wraps a shutter controller in an HTTP interface
type HTTPShutter struct {
	Ctl ShutterController

	RouteTable generichttp.RouteTable
}

// NewHTTPShutter returns a newly populated HTTP wrapper
func NewHTTPShutter(ctl ShutterController) HTTPShutter {
	h := HTTPShutter{Ctl: ctl}
	h.RouteTable = generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/id"}:       generichttp.GetString(ctl.Identification),
		{Method: http.MethodGet, Path: "/mode"}:     generichttp.GetInt(ctl.GetOperatingMode),
		{Method: http.MethodPost, Path: "/mode"}:    generichttp.SetInt(ctl.SetOperatingMode),
		{Method: http.MethodGet, Path: "/enabled"}:  generichttp.GetBool(ctl.GetEnabled),
		{Method: http.MethodPost, Path: "/enabled"}: generichttp.SetBool(ctl.Enable),
	}
	return h
}

// RT satisfies generichttp.HTTPer
func (h HTTPShutter) RT() generichttp.RouteTable {
	return h.RouteTable
}
