package detection

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-rangegate/pkg/frame"
)

func TestObject_Center(t *testing.T) {
	tests := []struct {
		name    string
		obj     Object
		expectX float64
		expectY float64
	}{
		{"center of image", Object{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}, 0.5, 0.5},
		{"top left corner", Object{X: 0, Y: 0, W: 0.2, H: 0.2}, 0.1, 0.1},
		{"bottom right corner", Object{X: 0.8, Y: 0.8, W: 0.2, H: 0.2}, 0.9, 0.9},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x, y := tc.obj.Center()
			assert.InDelta(t, tc.expectX, x, 1e-9)
			assert.InDelta(t, tc.expectY, y, 1e-9)
		})
	}
}

func TestObject_Area(t *testing.T) {
	assert.InDelta(t, 0.02, Object{W: 0.1, H: 0.2}.Area(), 1e-4)
}

func TestLabelsOf_KeepsDuplicates(t *testing.T) {
	objs := []Object{{Label: "person"}, {Label: "car"}, {Label: "person"}}
	assert.Equal(t, []string{"person", "car", "person"}, LabelsOf(objs))
	assert.Nil(t, LabelsOf(nil))
}

func TestFilter(t *testing.T) {
	objs := []Object{{Label: "person"}, {Label: "car"}, {Label: "dog"}}

	assert.Equal(t, objs, Filter(objs, nil))
	assert.Equal(t, []Object{{Label: "person"}, {Label: "dog"}}, Filter(objs, []string{"dog", "person"}))
	assert.Empty(t, Filter(objs, []string{"truck"}))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("inference failed")
	var err error = &Error{Backend: "yolo", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "detection: yolo: inference failed", err.Error())

	var de *Error
	assert.True(t, errors.As(err, &de))
}

func TestMock_Script(t *testing.T) {
	boom := errors.New("boom")
	m := NewMock(
		MockStep{Labels: []string{"person"}},
		MockStep{Err: boom},
		MockStep{},
	)
	f := frame.New(4, 4)

	res, err := m.Detect(f)
	require.NoError(t, err)
	assert.Equal(t, []string{"person"}, res.Labels)
	assert.Len(t, res.Objects, 1)
	assert.Equal(t, f.Width, res.Annotated.Width)

	_, err = m.Detect(f)
	var de *Error
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, boom)

	res, err = m.Detect(f)
	require.NoError(t, err)
	assert.True(t, res.Empty())

	// last step repeats
	res, err = m.Detect(f)
	require.NoError(t, err)
	assert.True(t, res.Empty())

	assert.Len(t, m.Calls(), 4)
}

func TestMock_EmptyFrame(t *testing.T) {
	_, err := NewMock().Detect(frame.Packet{})
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

func TestMock_AnnotatedIsACopy(t *testing.T) {
	m := NewMock(MockStep{Labels: []string{"cat"}})
	f := frame.New(2, 2)

	res, err := m.Detect(f)
	require.NoError(t, err)
	res.Annotated.Data[0] = 0xFF
	assert.Zero(t, f.Data[0])
}
