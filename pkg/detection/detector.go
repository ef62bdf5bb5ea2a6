// Package detection defines the object detector capability used by the
// fusion scheduler.
package detection

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-rangegate/pkg/frame"
)

// ErrEmptyFrame is returned when Detect is given a frame with no pixels.
var ErrEmptyFrame = errors.New("detection: empty frame")

// Object is one detected instance.
type Object struct {
	Label      string  // Class name, e.g. "person"
	ClassID    int     // Model class index
	X, Y       float64 // Top-left corner (0-1 normalized)
	W, H       float64 // Width and height (0-1 normalized)
	Confidence float64 // Detection confidence (0-1)
}

// Center returns the center point of the bounding box
func (o Object) Center() (x, y float64) {
	return o.X + o.W/2, o.Y + o.H/2
}

// Area returns the area of the bounding box
func (o Object) Area() float64 {
	return o.W * o.H
}

// Result is the output of one Detect call.
type Result struct {
	// Labels holds one entry per detected object, in model output order.
	// Duplicates are kept: two people yield ["person", "person"].
	Labels []string

	// Objects carries the boxes behind Labels.
	Objects []Object

	// Annotated is the input frame with detections drawn on it.
	Annotated frame.Packet
}

// Empty reports whether nothing was detected.
func (r Result) Empty() bool {
	return len(r.Labels) == 0
}

// Detector is the interface for object detection backends.
//
// Detect is called synchronously from the scheduler goroutine and may take
// far longer than one tick.
type Detector interface {
	// Detect runs the model on f. It must not retain f.
	Detect(f frame.Packet) (Result, error)

	// Close releases resources
	Close() error
}

// Error reports a detector failure for a single frame.
type Error struct {
	Backend string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("detection: %s: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// LabelsOf returns the labels of objs in order.
func LabelsOf(objs []Object) []string {
	if len(objs) == 0 {
		return nil
	}
	labels := make([]string, len(objs))
	for i, o := range objs {
		labels[i] = o.Label
	}
	return labels
}

// Filter keeps objects whose label is in allow. An empty allow list keeps
// everything.
func Filter(objs []Object, allow []string) []Object {
	if len(allow) == 0 {
		return objs
	}
	set := make(map[string]bool, len(allow))
	for _, a := range allow {
		set[a] = true
	}
	var out []Object
	for _, o := range objs {
		if set[o.Label] {
			out = append(out, o)
		}
	}
	return out
}
