package fusion

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-rangegate/pkg/frame"
)

// Renderer draws the overlays the scheduler emits. Implementations must not
// modify their input frames.
type Renderer interface {
	// DistanceOverlay draws the distance in the zone's colour on a copy of f.
	DistanceOverlay(f frame.Packet, distanceCM int, zone Zone) frame.Packet

	// OutOfRange builds the "waiting for obstacle" frame naming the violated
	// bound and the valid window.
	OutOfRange(distanceCM int, zone Zone, r Range) frame.Packet

	// NoDetection draws the "no object detected" banner on a copy of f.
	NoDetection(f frame.Packet) frame.Packet
}

// AlertMessage formats the warning shown while objects are in range.
func AlertMessage(labels []string) string {
	return fmt.Sprintf("ATTENTION: %s detected!", strings.Join(labels, ", "))
}

// OutOfRangeReason is the reason line of the out-of-range frame.
func OutOfRangeReason(distanceCM int, zone Zone) string {
	switch zone {
	case ZoneNear:
		return fmt.Sprintf("Too close: %d cm", distanceCM)
	case ZoneFar:
		return fmt.Sprintf("Too far: %d cm", distanceCM)
	default:
		return "No distance reading"
	}
}

// DistanceCaption labels the live frame.
func DistanceCaption(distanceCM int, zone Zone) string {
	if zone == ZoneNone {
		return "-- cm"
	}
	return fmt.Sprintf("%d cm", distanceCM)
}

// Captions for the filtered view.
const (
	CaptionWaiting     = "Waiting for obstacle"
	CaptionNoDetection = "No object detected"
	CaptionDetectError = "Detector unavailable"
)
