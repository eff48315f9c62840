package media

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"aimon/internal/core/domain"
	"aimon/pkg/config"
)

func testSource(t *testing.T) *RTPSource {
	cfg := config.DefaultConfig()
	cfg.Media.Inputs = append(cfg.Media.Inputs, struct {
		ID       string `yaml:"id"`
		Label    string `yaml:"label"`
		Address  string `yaml:"address"`
		MimeType string `yaml:"mime_type"`
	}{ID: "cam0", Label: "front door", Address: "127.0.0.1:0"})

	return NewRTPSource(cfg, zaptest.NewLogger(t))
}

func TestListVideoInputs(t *testing.T) {
	src := testSource(t)

	inputs, err := src.ListVideoInputs(context.Background())
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, domain.VideoInput{DeviceID: "cam0", Label: "front door"}, inputs[0])
}

func TestListVideoInputsEmptyIsNotError(t *testing.T) {
	src := NewRTPSource(config.DefaultConfig(), zaptest.NewLogger(t))

	inputs, err := src.ListVideoInputs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, inputs)
}

func TestAcquireAndRelease(t *testing.T) {
	src := testSource(t)
	ctx := context.Background()

	stream, err := src.Acquire(ctx, "cam0")
	require.NoError(t, err)
	require.NotNil(t, stream)
	assert.Equal(t, "cam0", stream.DeviceID())
	assert.Len(t, stream.Tracks(), 1)

	// device is exclusive while held
	_, err = src.Acquire(ctx, "cam0")
	assert.ErrorIs(t, err, domain.ErrDeviceUnavailable)

	src.Release(stream)

	// released device can be acquired again
	stream2, err := src.Acquire(ctx, "cam0")
	require.NoError(t, err)
	src.Release(stream2)
}

func TestAcquireUnknownDevice(t *testing.T) {
	src := testSource(t)

	_, err := src.Acquire(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrDeviceUnavailable)
}

func TestReleaseIsNilSafeAndIdempotent(t *testing.T) {
	src := testSource(t)

	src.Release(nil)

	stream, err := src.Acquire(context.Background(), "cam0")
	require.NoError(t, err)
	src.Release(stream)
	src.Release(stream)
}

func TestAcquireWithoutConfiguredInputs(t *testing.T) {
	src := NewRTPSource(config.DefaultConfig(), zaptest.NewLogger(t))

	_, err := src.Acquire(context.Background(), "cam0")
	assert.ErrorIs(t, err, domain.ErrNoMedia)
}
