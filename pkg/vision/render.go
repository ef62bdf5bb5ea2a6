package vision

import (
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-rangegate/internal/log"
	"github.com/teslashibe/go-rangegate/pkg/frame"
	"github.com/teslashibe/go-rangegate/pkg/fusion"
)

// Zone colours, RGB.
var (
	ColorNear    = color.RGBA{255, 165, 0, 255}
	ColorInRange = color.RGBA{0, 255, 0, 255}
	ColorFar     = color.RGBA{100, 100, 255, 255}
	ColorNone    = color.RGBA{200, 200, 200, 255}

	colorBackdrop = color.RGBA{0, 0, 0, 255}
	colorRangeRow = color.RGBA{200, 200, 200, 255}
)

// ZoneColor returns the overlay colour for z.
func ZoneColor(z fusion.Zone) color.RGBA {
	switch z {
	case fusion.ZoneNear:
		return ColorNear
	case fusion.ZoneInRange:
		return ColorInRange
	case fusion.ZoneFar:
		return ColorFar
	default:
		return ColorNone
	}
}

// Renderer draws overlays with OpenCV. It implements fusion.Renderer.
type Renderer struct {
	// Width and Height size the out-of-range frame.
	Width, Height int
}

// NewRenderer returns a renderer producing width x height placeholder frames.
func NewRenderer(width, height int) *Renderer {
	return &Renderer{Width: width, Height: height}
}

// DistanceOverlay draws "<d> cm" in the top-right corner on a dark box.
func (r *Renderer) DistanceOverlay(f frame.Packet, distanceCM int, zone fusion.Zone) frame.Packet {
	img, err := ToMat(f)
	if err != nil {
		log.For("render").Warn("overlay skipped", "err", err)
		return f
	}
	defer img.Close()

	text := fusion.DistanceCaption(distanceCM, zone)
	const scale, thick, pad = 0.8, 2, 10
	sz := gocv.GetTextSize(text, gocv.FontHersheySimplex, scale, thick)
	org := image.Pt(img.Cols()-sz.X-pad, pad+sz.Y)

	gocv.Rectangle(&img, image.Rect(org.X-5, org.Y-sz.Y-5, org.X+sz.X+5, org.Y+5), colorBackdrop, -1)
	gocv.PutText(&img, text, org, gocv.FontHersheySimplex, scale, ZoneColor(zone), thick)

	return FromMat(img, f)
}

// OutOfRange draws the waiting frame: headline, the violated bound, and
// the valid window.
func (r *Renderer) OutOfRange(distanceCM int, zone fusion.Zone, rng fusion.Range) frame.Packet {
	img := gocv.NewMatWithSize(r.Height, r.Width, gocv.MatTypeCV8UC3)
	defer img.Close()

	c := ZoneColor(zone)
	mid := r.Height / 2
	r.centered(&img, fusion.CaptionWaiting, mid-20, 0.9, c)
	r.centered(&img, fusion.OutOfRangeReason(distanceCM, zone), mid+20, 0.65, c)
	r.centered(&img, "Valid range: "+rng.String(), mid+60, 0.65, colorRangeRow)

	return FromMat(img, frame.Packet{Captured: time.Now()})
}

// NoDetection draws the "No object detected" banner at the top of f.
func (r *Renderer) NoDetection(f frame.Packet) frame.Packet {
	img, err := ToMat(f)
	if err != nil {
		log.For("render").Warn("banner skipped", "err", err)
		return f
	}
	defer img.Close()

	const scale, thick = 0.8, 2
	text := fusion.CaptionNoDetection
	sz := gocv.GetTextSize(text, gocv.FontHersheySimplex, scale, thick)
	x := (img.Cols() - sz.X) / 2
	y := 20 + sz.Y

	gocv.Rectangle(&img, image.Rect(x-10, y-sz.Y-5, x+sz.X+10, y+5), colorBackdrop, -1)
	gocv.PutText(&img, text, image.Pt(x, y), gocv.FontHersheySimplex, scale, ColorInRange, thick)

	return FromMat(img, f)
}

func (r *Renderer) centered(img *gocv.Mat, text string, y int, scale float64, c color.RGBA) {
	sz := gocv.GetTextSize(text, gocv.FontHersheySimplex, scale, 1)
	gocv.PutText(img, text, image.Pt((img.Cols()-sz.X)/2, y), gocv.FontHersheySimplex, scale, c, 1)
}
