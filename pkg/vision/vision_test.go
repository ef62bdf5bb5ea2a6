package vision

import (
	"bytes"
	"errors"
	"image/jpeg"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-rangegate/pkg/alert"
	"github.com/teslashibe/go-rangegate/pkg/camera"
	"github.com/teslashibe/go-rangegate/pkg/detection"
	"github.com/teslashibe/go-rangegate/pkg/event"
	"github.com/teslashibe/go-rangegate/pkg/frame"
	"github.com/teslashibe/go-rangegate/pkg/fusion"
	"github.com/teslashibe/go-rangegate/pkg/rangefinder"
)

var _ fusion.Renderer = (*Renderer)(nil)
var _ detection.Detector = (*YOLODetector)(nil)
var _ camera.Source = (*CaptureSource)(nil)

func testFrame(t *testing.T) frame.Packet {
	t.Helper()
	cfg := camera.DefaultConfig()
	f, err := camera.NewSyntheticSource(cfg).Read()
	require.NoError(t, err)
	return f
}

func TestMatRoundTrip(t *testing.T) {
	f := testFrame(t)
	f.Seq = 7

	m, err := ToMat(f)
	require.NoError(t, err)
	defer m.Close()

	back := FromMat(m, f)
	assert.Equal(t, f.Data, back.Data)
	assert.Equal(t, uint64(7), back.Seq)
}

func TestToMat_Malformed(t *testing.T) {
	m, err := ToMat(frame.Packet{Data: []byte{1, 2}, Width: 4, Height: 4})
	defer m.Close()
	assert.ErrorIs(t, err, ErrBadFrame)
}

func TestRenderer_DoesNotModifyInput(t *testing.T) {
	f := testFrame(t)
	orig := f.Clone()
	r := NewRenderer(640, 480)

	live := r.DistanceOverlay(f, 120, fusion.ZoneInRange)
	nd := r.NoDetection(f)

	assert.Equal(t, orig.Data, f.Data)
	assert.NotEqual(t, f.Data, live.Data)
	assert.NotEqual(t, f.Data, nd.Data)
	assert.Equal(t, f.Width, live.Width)
}

func TestToMat_DrawingLeavesPacketAlone(t *testing.T) {
	f := testFrame(t)
	orig := f.Clone()

	m, err := ToMat(f)
	require.NoError(t, err)
	defer m.Close()
	m.SetTo(gocv.NewScalar(255, 255, 255, 0))

	assert.Equal(t, orig.Data, f.Data)
}

func TestScheduler_RealRendererKeepsSnapshotPlain(t *testing.T) {
	tests := []struct {
		name string
		step detection.MockStep
	}{
		{"no detection", detection.MockStep{}},
		{"detector error", detection.MockStep{Err: errors.New("inference failed")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			orig := testFrame(t)
			state := fusion.NewSharedState()
			state.PublishFrame(orig)
			state.PublishDistance(rangefinder.Reading{DistanceCM: 120})

			settings, err := fusion.NewSettings(fusion.Range{MinCM: 50, MaxCM: 200}, nil)
			require.NoError(t, err)
			det := detection.NewMock(tc.step)
			rec := &event.Recorder{}
			sched := fusion.NewScheduler(0, fusion.Deps{
				State:    state,
				Settings: settings,
				Detector: det,
				Alert:    alert.New(nil),
				Renderer: NewRenderer(orig.Width, orig.Height),
				Sink:     rec,
			})

			sched.Step()

			snap, _, _ := state.Snapshot()
			require.NotNil(t, snap)
			assert.Equal(t, orig.Data, snap.Data, "overlays never reach the shared frame")

			calls := det.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, orig.Data, calls[0].Data, "the detector sees the plain frame")

			live := rec.Renders(event.LiveFrame)
			require.Len(t, live, 1)
			assert.NotEqual(t, orig.Data, live[0].Image.Data)

			if tc.step.Err != nil {
				filtered := rec.Renders(event.FilteredFrame)
				require.Len(t, filtered, 1)
				assert.Equal(t, orig.Data, filtered[0].Image.Data, "a failed detection shows the plain frame")
			}
		})
	}
}

func TestRenderer_OutOfRange(t *testing.T) {
	r := NewRenderer(320, 240)
	out := r.OutOfRange(30, fusion.ZoneNear, fusion.Range{MinCM: 50, MaxCM: 200})

	assert.True(t, out.Valid())
	assert.Equal(t, 320, out.Width)
	assert.Equal(t, 240, out.Height)
	assert.NotEqual(t, make([]byte, len(out.Data)), out.Data, "text was drawn")
}

func TestZoneColor(t *testing.T) {
	assert.Equal(t, ColorNear, ZoneColor(fusion.ZoneNear))
	assert.Equal(t, ColorFar, ZoneColor(fusion.ZoneFar))
	assert.Equal(t, ColorInRange, ZoneColor(fusion.ZoneInRange))
}

func TestEncodeJPEG(t *testing.T) {
	f := testFrame(t)

	data, err := EncodeJPEG(f, DefaultJPEGQuality)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 480, cfg.Height)
}

func TestClassName(t *testing.T) {
	assert.Equal(t, "person", ClassName(0))
	assert.Equal(t, "toothbrush", ClassName(79))
	assert.Equal(t, "class_99", ClassName(99))
}

func TestNewYOLO_MissingModel(t *testing.T) {
	cfg := DefaultYOLOConfig()
	cfg.ModelPath = "does/not/exist.onnx"
	_, err := NewYOLO(cfg)
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestYOLO_Detect(t *testing.T) {
	cfg := DefaultYOLOConfig()
	if p := os.Getenv("RANGEGATE_MODEL_PATH"); p != "" {
		cfg.ModelPath = p
	}
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		t.Skip("YOLO model not found, skipping test")
	}

	d, err := NewYOLO(cfg)
	require.NoError(t, err)
	defer d.Close()

	f := testFrame(t)
	res, err := d.Detect(f)
	require.NoError(t, err)
	assert.Equal(t, len(res.Labels), len(res.Objects))
	assert.Equal(t, f.Width, res.Annotated.Width)

	_, err = d.Detect(frame.Packet{})
	assert.ErrorIs(t, err, detection.ErrEmptyFrame)
}
