// Package frame defines the pixel buffer handed between camera acquisition,
// the fusion scheduler and presentation.
package frame

import "time"

// BytesPerPixel is the channel count of a packed BGR frame.
const BytesPerPixel = 3

// Packet is one captured camera frame.
//
// Data holds packed 8-bit BGR pixels, row-major, Width*Height*3 bytes.
// Holders of a Packet must not modify Data once it has been published;
// use Clone to obtain a private copy.
type Packet struct {
	Data     []byte
	Width    int
	Height   int
	Captured time.Time // source time, not processing time
	Seq      uint64
}

// New allocates a black frame of the given size.
func New(width, height int) Packet {
	return Packet{
		Data:     make([]byte, width*height*BytesPerPixel),
		Width:    width,
		Height:   height,
		Captured: time.Now(),
	}
}

// Empty reports whether the packet carries no pixels.
func (p Packet) Empty() bool {
	return len(p.Data) == 0 || p.Width <= 0 || p.Height <= 0
}

// Valid reports whether Data matches the declared dimensions.
func (p Packet) Valid() bool {
	return !p.Empty() && len(p.Data) == p.Width*p.Height*BytesPerPixel
}

// Clone returns a deep copy.
func (p Packet) Clone() Packet {
	c := p
	if p.Data != nil {
		c.Data = make([]byte, len(p.Data))
		copy(c.Data, p.Data)
	}
	return c
}
