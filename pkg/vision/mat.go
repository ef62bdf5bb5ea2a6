// Package vision holds everything that needs OpenCV: the VideoCapture
// source, the YOLO detector, the overlay renderer and JPEG encoding.
package vision

import (
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-rangegate/pkg/frame"
)

// ErrBadFrame is returned for packets whose buffer does not match their size.
var ErrBadFrame = errors.New("vision: malformed frame")

// ToMat copies p into a new BGR Mat. The caller closes it. Drawing on the
// Mat never touches p.Data.
func ToMat(p frame.Packet) (gocv.Mat, error) {
	if !p.Valid() {
		return gocv.NewMat(), fmt.Errorf("%w: %dx%d with %d bytes", ErrBadFrame, p.Width, p.Height, len(p.Data))
	}
	// NewMatFromBytes wraps the Go slice without copying.
	view, err := gocv.NewMatFromBytes(p.Height, p.Width, gocv.MatTypeCV8UC3, p.Data)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer view.Close()
	return view.Clone(), nil
}

// FromMat copies a BGR Mat into a packet. meta supplies Captured and Seq.
func FromMat(m gocv.Mat, meta frame.Packet) frame.Packet {
	out := frame.Packet{
		Data:     m.ToBytes(),
		Width:    m.Cols(),
		Height:   m.Rows(),
		Captured: meta.Captured,
		Seq:      meta.Seq,
	}
	if out.Captured.IsZero() {
		out.Captured = time.Now()
	}
	return out
}
