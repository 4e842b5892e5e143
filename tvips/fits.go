package tvips

import (
	"fmt"
	"io"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/siwick-lab/tvipstools/camera"
)

// HeaderVersion tags the FITS header layout written by this package
const HeaderVersion = "F216-1"

// Identifier is anything with an identification string
type Identifier interface {
	Identification() (string, error)
}

// CollectHeaderMetadata produces the stack of FITS cards for a frame from
// cam.  Errors while gathering are not fatal; the last one is recorded in
// the METAERR card so a bad thermometer cannot cost you a frame
func CollectHeaderMetadata(cam interface{}) []fitsio.Card {
	var (
		id      string
		texp    time.Duration
		temp    float64
		metaerr string
	)
	if i, ok := cam.(Identifier); ok {
		s, err := i.Identification()
		if err != nil {
			metaerr = err.Error()
		}
		id = s
	}
	if pt, ok := cam.(camera.PictureTaker); ok {
		t, err := pt.GetExposureTime()
		if err != nil {
			metaerr = err.Error()
		}
		texp = t
	}
	if th, ok := cam.(camera.Thermometer); ok {
		t, err := th.GetTemperature()
		if err != nil {
			metaerr = err.Error()
		}
		temp = t
	}
	now := time.Now()
	ts := fmt.Sprintf("%d-%02d-%02dT%02d:%02d:%02d",
		now.Year(),
		now.Month(),
		now.Day(),
		now.Hour(),
		now.Minute(),
		now.Second())
	return []fitsio.Card{
		{Name: "HDRVER", Value: HeaderVersion, Comment: "header version"},
		{Name: "METAERR", Value: metaerr, Comment: "error encountered gathering metadata"},
		{Name: "CAMMODL", Value: id, Comment: "camera model"},
		{Name: "BITDEPTH", Value: 16, Comment: "2^BITDEPTH is the maximum possible DN"},
		{Name: "DATE", Value: ts}, // timestamp is standard and does not require comment
		{Name: "EXPTIME", Value: texp.Seconds(), Comment: "exposure time, seconds"},
		{Name: "CAMTEMP", Value: temp, Comment: "sensor temperature, Celsius"},
	}
}

// WriteFits streams frames to w as a FITS file (a cube if len(frames) > 1).
// All frames must share a geometry
func WriteFits(w io.Writer, metadata []fitsio.Card, frames []camera.Frame) error {
	if len(frames) == 0 {
		return fmt.Errorf("tvips: no frames to write")
	}
	metadata = append(metadata,
		fitsio.Card{Name: "BZERO", Value: 32768},
		fitsio.Card{Name: "BSCALE", Value: 1.0})
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	width, height := frames[0].Width, frames[0].Height
	dims := []int{width, height}
	if len(frames) > 1 {
		dims = append(dims, len(frames))
	}
	im := fitsio.NewImage(16, dims)
	defer im.Close()
	err = im.Header().Append(metadata...)
	if err != nil {
		return err
	}
	// underflow on uint16 produces the appropriate wrapping for the FITS standard
	buf := make([]int16, 0, width*height*len(frames))
	for _, f := range frames {
		if f.Width != width || f.Height != height {
			return fmt.Errorf("tvips: frame geometry mismatch in cube")
		}
		for _, v := range f.Pix {
			buf = append(buf, int16(v-32768))
		}
	}
	err = im.Write(buf)
	if err != nil {
		return err
	}
	return fits.Write(im)
}
