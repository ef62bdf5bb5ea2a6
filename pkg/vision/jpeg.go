package vision

import (
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-rangegate/pkg/frame"
)

// DefaultJPEGQuality is used by the dashboard streams.
const DefaultJPEGQuality = 80

// EncodeJPEG compresses p.
func EncodeJPEG(p frame.Packet, quality int) ([]byte, error) {
	img, err := ToMat(p)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
