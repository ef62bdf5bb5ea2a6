// Package rangefinder talks to a TFmini/TF-Luna style time-of-flight ranger
// over a serial port.
//
// The device streams fixed 9-byte frames:
//
//	0x59 0x59 DIST_L DIST_H STR_L STR_H TEMP_L TEMP_H CHECKSUM
//
// Distances are little-endian centimeters.
package rangefinder

import "time"

const (
	// PacketSize is the length of one ranger frame.
	PacketSize = 9

	// SyncByte is repeated twice at the start of every frame.
	SyncByte = 0x59
)

// Reading is one decoded distance measurement.
type Reading struct {
	DistanceCM int
	Strength   int
	Received   time.Time
}

// ParserStats counts what the parser has seen since creation or Reset.
type ParserStats struct {
	Packets          uint64
	DiscardedBytes   uint64
	ChecksumFailures uint64
}

// Parser turns a raw byte stream into readings. It resynchronises one byte
// at a time, so at most PacketSize-1 bytes are ever held while waiting for
// the rest of a frame. A Parser is not safe for concurrent use.
type Parser struct {
	buf           []byte
	checkChecksum bool
	stats         ParserStats
	now           func() time.Time
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithChecksum enables checksum validation. Frames whose last byte does not
// equal the low 8 bits of the sum of the first eight are treated as noise.
func WithChecksum(enabled bool) ParserOption {
	return func(p *Parser) {
		p.checkChecksum = enabled
	}
}

// NewParser creates a parser. Checksums are ignored unless WithChecksum is given.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		buf: make([]byte, 0, 4*PacketSize),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Feed appends data to the internal buffer and returns every complete frame
// found, in stream order.
func (p *Parser) Feed(data []byte) []Reading {
	p.buf = append(p.buf, data...)

	var readings []Reading
	start := 0
	for len(p.buf)-start >= PacketSize {
		pkt := p.buf[start : start+PacketSize]
		if !p.recognise(pkt) {
			start++
			p.stats.DiscardedBytes++
			continue
		}

		readings = append(readings, Reading{
			DistanceCM: int(pkt[2]) | int(pkt[3])<<8,
			Strength:   int(pkt[4]) | int(pkt[5])<<8,
			Received:   p.now(),
		})
		p.stats.Packets++
		start += PacketSize
	}

	// Compact so the buffer never grows beyond one partial frame.
	n := copy(p.buf, p.buf[start:])
	p.buf = p.buf[:n]

	return readings
}

func (p *Parser) recognise(pkt []byte) bool {
	if pkt[0] != SyncByte || pkt[1] != SyncByte {
		return false
	}
	if p.checkChecksum && Checksum(pkt[:PacketSize-1]) != pkt[PacketSize-1] {
		p.stats.ChecksumFailures++
		return false
	}
	return true
}

// Buffered returns the number of bytes held pending a complete frame.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Stats returns a copy of the parser counters.
func (p *Parser) Stats() ParserStats {
	return p.stats
}

// Reset drops buffered bytes and counters.
func (p *Parser) Reset() {
	p.buf = p.buf[:0]
	p.stats = ParserStats{}
}

// Checksum is the low byte of the sum of b.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// EncodePacket builds a well-formed frame. Used by the simulator and tests.
func EncodePacket(distanceCM, strength int) []byte {
	pkt := []byte{
		SyncByte, SyncByte,
		byte(distanceCM), byte(distanceCM >> 8),
		byte(strength), byte(strength >> 8),
		0, 0,
		0,
	}
	pkt[PacketSize-1] = Checksum(pkt[:PacketSize-1])
	return pkt
}
