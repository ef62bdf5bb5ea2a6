package vision

import "errors"

var (
	errReadFailed = errors.New("vision: capture read failed")

	// ErrModelNotFound is returned when the ONNX file is missing.
	ErrModelNotFound = errors.New("vision: model file not found")

	// ErrModelLoad is returned when OpenCV cannot parse the model.
	ErrModelLoad = errors.New("vision: model load failed")
)
