package vision

import (
	"image"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-rangegate/pkg/camera"
	"github.com/teslashibe/go-rangegate/pkg/frame"
)

// CaptureSource reads frames from an OpenCV VideoCapture.
type CaptureSource struct {
	mu   sync.Mutex
	vc   *gocv.VideoCapture
	mat  gocv.Mat
	size image.Point
}

// OpenCapture is a camera.Opener backed by gocv. A numeric device is opened
// as a camera index; anything else as a path or URL.
func OpenCapture(cfg camera.Config) (camera.Source, error) {
	var device interface{} = cfg.Device
	if idx, err := strconv.Atoi(cfg.Device); err == nil {
		device = idx
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, err
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	if cfg.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	}

	return &CaptureSource{
		vc:   vc,
		mat:  gocv.NewMat(),
		size: image.Pt(cfg.Width, cfg.Height),
	}, nil
}

// Read implements camera.Source. Frames whose size differs from the
// configured one (drivers may ignore the request) are resized.
func (s *CaptureSource) Read() (frame.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vc == nil {
		return frame.Packet{}, camera.ErrClosed
	}
	if ok := s.vc.Read(&s.mat); !ok {
		return frame.Packet{}, errReadFailed
	}
	if s.mat.Empty() {
		return frame.Packet{}, nil
	}

	captured := frame.Packet{Captured: time.Now()}
	if s.mat.Cols() == s.size.X && s.mat.Rows() == s.size.Y {
		return FromMat(s.mat, captured), nil
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(s.mat, &resized, s.size, 0, 0, gocv.InterpolationLinear)
	return FromMat(resized, captured), nil
}

// Close implements camera.Source.
func (s *CaptureSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vc == nil {
		return nil
	}
	err := s.vc.Close()
	s.vc = nil
	s.mat.Close()
	return err
}
