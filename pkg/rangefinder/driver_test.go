package rangefinder

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-rangegate/internal/log"
)

func newTestDriver(t *testing.T) (*Driver, *TestablePort) {
	t.Helper()
	port := NewTestablePort()
	cfg := DefaultConfig()
	cfg.Path = "/dev/test"
	d := NewDriver(cfg, port.Opener())
	require.NoError(t, d.Connect())
	return d, port
}

func TestDriver_ConnectSetsReadTimeout(t *testing.T) {
	d, port := newTestDriver(t)
	assert.True(t, d.Connected())
	assert.Equal(t, 10*time.Millisecond, port.ReadTimeout)
}

func TestDriver_ConnectFailure(t *testing.T) {
	boom := errors.New("no such device")
	d := NewDriver(DefaultConfig(), func(string, PortOptions) (Port, error) {
		return nil, boom
	})

	err := d.Connect()
	require.Error(t, err)

	var ce *ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "/dev/ttyUSB0", ce.Path)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrConnect)
	assert.False(t, d.Connected())
}

func TestDriver_ConnectTimeoutFailureClosesPort(t *testing.T) {
	port := NewTestablePort()
	port.TimeoutError = errors.New("ioctl failed")
	d := NewDriver(DefaultConfig(), port.Opener())

	err := d.Connect()
	assert.ErrorIs(t, err, ErrConnect)
	assert.True(t, port.Closed)
}

func TestDriver_PollReturnsReadings(t *testing.T) {
	d, port := newTestDriver(t)

	port.AddReadData(append(EncodePacket(120, 0), EncodePacket(130, 0)...))
	got := d.Poll()
	assert.Equal(t, []int{120, 130}, distances(got))

	assert.Empty(t, d.Poll(), "no data available is not an error")
}

func TestDriver_PollPartialReads(t *testing.T) {
	d, port := newTestDriver(t)
	port.MaxRead = 4
	port.AddReadData(EncodePacket(77, 0))

	var got []Reading
	for i := 0; i < 3; i++ {
		got = append(got, d.Poll()...)
	}
	assert.Equal(t, []int{77}, distances(got))
}

func TestDriver_PollReadErrorIsTolerated(t *testing.T) {
	d, port := newTestDriver(t)
	port.FailNextRead(errors.New("i/o error"))

	assert.Empty(t, d.Poll())

	port.AddReadData(EncodePacket(55, 0))
	assert.Equal(t, []int{55}, distances(d.Poll()), "polling continues after a read error")
}

func TestDriver_PollWhenDisconnected(t *testing.T) {
	d := NewDriver(DefaultConfig(), NewTestablePort().Opener())
	assert.Empty(t, d.Poll())
}

func TestDriver_PollWhenDisconnectedWarnsOnce(t *testing.T) {
	var buf bytes.Buffer
	log.InitWriter(&buf, "info", "text")
	defer log.Init("info", "text")

	d := NewDriver(DefaultConfig(), NewTestablePort().Opener())
	for i := 0; i < 50; i++ {
		d.Poll()
	}
	assert.Equal(t, 1, strings.Count(buf.String(), "poll skipped"))

	require.NoError(t, d.Connect())
	require.NoError(t, d.Disconnect())
	d.Poll()
	d.Poll()
	assert.Equal(t, 2, strings.Count(buf.String(), "poll skipped"), "a new disconnect warns again")
}

func TestDriver_DisconnectIdempotent(t *testing.T) {
	d, port := newTestDriver(t)

	require.NoError(t, d.Disconnect())
	require.NoError(t, d.Disconnect())

	assert.Equal(t, 1, port.CloseCalls, "second disconnect must not touch the port")
	assert.False(t, d.Connected())
}

func TestDriver_ConnectTwiceIsNoop(t *testing.T) {
	opens := 0
	port := NewTestablePort()
	d := NewDriver(DefaultConfig(), func(string, PortOptions) (Port, error) {
		opens++
		return port, nil
	})

	require.NoError(t, d.Connect())
	require.NoError(t, d.Connect())
	assert.Equal(t, 1, opens)
}

func TestDriver_ChecksumValidationFromConfig(t *testing.T) {
	port := NewTestablePort()
	cfg := DefaultConfig()
	cfg.ValidateChecks = true
	d := NewDriver(cfg, port.Opener())
	require.NoError(t, d.Connect())

	bad := EncodePacket(10, 0)
	bad[PacketSize-1]++
	port.AddReadData(append(bad, EncodePacket(20, 0)...))

	assert.Equal(t, []int{20}, distances(d.Poll()))
	assert.Equal(t, uint64(1), d.Stats().ChecksumFailures)
}
