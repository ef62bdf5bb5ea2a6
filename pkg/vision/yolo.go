package vision

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-rangegate/internal/log"
	"github.com/teslashibe/go-rangegate/pkg/detection"
	"github.com/teslashibe/go-rangegate/pkg/frame"
)

// YOLOConfig holds YOLO detector configuration
type YOLOConfig struct {
	ModelPath        string   `yaml:"model_path"`
	ConfidenceThresh float32  `yaml:"confidence"`
	NMSThresh        float32  `yaml:"nms"`
	InputWidth       int      `yaml:"input_width"`
	InputHeight      int      `yaml:"input_height"`
	Classes          []string `yaml:"classes"` // empty means all COCO classes
}

// DefaultYOLOConfig returns production defaults for YOLOv8n
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// YOLODetector runs a YOLOv8 ONNX model through OpenCV DNN.
type YOLODetector struct {
	net       gocv.Net
	config    YOLOConfig
	mu        sync.Mutex
	inputSize image.Point
	log       *slog.Logger
}

// NewYOLO loads the model.
func NewYOLO(cfg YOLOConfig) (*YOLODetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrModelLoad, cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	l := log.For("yolo")
	l.Info("model loaded", "path", cfg.ModelPath, "input", fmt.Sprintf("%dx%d", cfg.InputWidth, cfg.InputHeight))

	return &YOLODetector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
		log:       l,
	}, nil
}

// Detect implements detection.Detector. The annotated frame carries a box
// and label for every object.
func (d *YOLODetector) Detect(f frame.Packet) (detection.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if f.Empty() {
		return detection.Result{}, &detection.Error{Backend: "yolo", Err: detection.ErrEmptyFrame}
	}

	img, err := ToMat(f)
	if err != nil {
		return detection.Result{}, &detection.Error{Backend: "yolo", Err: err}
	}
	defer img.Close()

	imgW := float32(img.Cols())
	imgH := float32(img.Rows())

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	objs, err := d.parseYOLOv8Output(output, imgW, imgH)
	if err != nil {
		return detection.Result{}, &detection.Error{Backend: "yolo", Err: err}
	}
	objs = detection.Filter(objs, d.config.Classes)

	if len(objs) > 0 {
		d.log.Debug("objects found", "count", len(objs))
	}

	// img is a private copy of f, so boxes can go straight onto it.
	drawObjects(&img, objs)

	return detection.Result{
		Labels:    detection.LabelsOf(objs),
		Objects:   objs,
		Annotated: FromMat(img, f),
	}, nil
}

// parseYOLOv8Output parses the YOLOv8 output tensor
func (d *YOLODetector) parseYOLOv8Output(output gocv.Mat, imgW, imgH float32) ([]detection.Object, error) {
	var boxes []image.Rectangle
	var confidences []float32
	var classIDs []int

	// Output shape [1, 84, 8400] is read transposed:
	// 84 = 4 (cx, cy, w, h) + 80 class scores, 8400 candidates.
	sizes := output.Size()
	if len(sizes) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", sizes)
	}
	cols := sizes[1]
	rows := sizes[2]

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, err
	}

	for i := 0; i < rows; i++ {
		maxScore := float32(0)
		maxClassID := 0

		for c := 4; c < cols; c++ {
			score := data[c*rows+i]
			if score > maxScore {
				maxScore = score
				maxClassID = c - 4
			}
		}

		if maxScore < d.config.ConfidenceThresh {
			continue
		}

		cx := data[0*rows+i]
		cy := data[1*rows+i]
		w := data[2*rows+i]
		h := data[3*rows+i]

		// Convert to corner format and scale to image size
		x1 := int((cx - w/2) * imgW / float32(d.config.InputWidth))
		y1 := int((cy - h/2) * imgH / float32(d.config.InputHeight))
		x2 := int((cx + w/2) * imgW / float32(d.config.InputWidth))
		y2 := int((cy + h/2) * imgH / float32(d.config.InputHeight))

		boxes = append(boxes, image.Rect(x1, y1, x2, y2))
		confidences = append(confidences, maxScore)
		classIDs = append(classIDs, maxClassID)
	}

	if len(boxes) == 0 {
		return nil, nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, d.config.ConfidenceThresh, d.config.NMSThresh)

	objs := make([]detection.Object, 0, len(indices))
	for _, idx := range indices {
		box := boxes[idx]
		objs = append(objs, detection.Object{
			Label:      ClassName(classIDs[idx]),
			ClassID:    classIDs[idx],
			X:          float64(box.Min.X) / float64(imgW),
			Y:          float64(box.Min.Y) / float64(imgH),
			W:          float64(box.Dx()) / float64(imgW),
			H:          float64(box.Dy()) / float64(imgH),
			Confidence: float64(confidences[idx]),
		})
	}
	return objs, nil
}

// Close releases the detector resources
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

var boxColor = color.RGBA{0, 255, 0, 255}

func drawObjects(img *gocv.Mat, objs []detection.Object) {
	w, h := float64(img.Cols()), float64(img.Rows())
	for _, o := range objs {
		r := image.Rect(int(o.X*w), int(o.Y*h), int((o.X+o.W)*w), int((o.Y+o.H)*h))
		gocv.Rectangle(img, r, boxColor, 2)

		label := fmt.Sprintf("%s %.2f", o.Label, o.Confidence)
		sz := gocv.GetTextSize(label, gocv.FontHersheySimplex, 0.5, 1)
		top := r.Min.Y - sz.Y - 6
		if top < 0 {
			top = r.Min.Y
		}
		gocv.Rectangle(img, image.Rect(r.Min.X, top, r.Min.X+sz.X+6, top+sz.Y+6), boxColor, -1)
		gocv.PutText(img, label, image.Pt(r.Min.X+3, top+sz.Y+2), gocv.FontHersheySimplex, 0.5, color.RGBA{0, 0, 0, 255}, 1)
	}
}

// ClassName maps a COCO class index to its name.
func ClassName(id int) string {
	if id < 0 || id >= len(COCOClasses) {
		return fmt.Sprintf("class_%d", id)
	}
	return COCOClasses[id]
}

// COCOClasses contains the 80 COCO class names
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
