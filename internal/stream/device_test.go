package stream

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireIOUring skips the test if this kernel/build cannot create an
// io_uring instance (e.g. a restrictive container or a kernel without
// io_uring support), gating tests that need that real OS facility.
func requireIOUring(t *testing.T) *Broker {
	t.Helper()
	b, err := NewBroker(32)
	if err != nil {
		t.Skipf("io_uring unavailable in this environment: %v", err)
	}
	return b
}

func TestBroker_H2DRoundTrip(t *testing.T) {
	broker := requireIOUring(t)
	defer broker.Close()

	f, err := os.CreateTemp(t.TempDir(), "device-*")
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Truncate(4096))

	buf := NewDeviceBuffer(broker, int(f.Fd()), 2, 512)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	empty, err := buf.AcquireEmpty(ctx)
	require.NoError(t, err)
	copy(empty, []byte("hello device"))

	require.NoError(t, buf.SubmitFull(empty))

	// Buffer should be back in the empty pool for reuse.
	again, err := buf.AcquireEmpty(ctx)
	require.NoError(t, err)
	assert.Len(t, again, 512)
}

func TestBroker_D2HRoundTrip(t *testing.T) {
	broker := requireIOUring(t)
	defer broker.Close()

	f, err := os.CreateTemp(t.TempDir(), "device-*")
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Truncate(4096))
	_, err = f.WriteAt([]byte("payload from device"), 0)
	require.NoError(t, err)

	buf := NewDeviceBuffer(broker, int(f.Fd()), 1, 512)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	empty, err := buf.AcquireEmpty(ctx)
	require.NoError(t, err)
	buf.ReleaseEmpty(empty)

	full, err := buf.AcquireFull(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(full[:len("payload from device")]), "payload from device")
}

func TestDeviceBuffer_AcquireEmptyRespectsContextCancellation(t *testing.T) {
	broker := requireIOUring(t)
	defer broker.Close()

	f, err := os.CreateTemp(t.TempDir(), "device-*")
	require.NoError(t, err)
	defer f.Close()

	buf := NewDeviceBuffer(broker, int(f.Fd()), 1, 512)
	// Drain the one buffer so the next acquire must block.
	ctx := context.Background()
	_, err = buf.AcquireEmpty(ctx)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = buf.AcquireEmpty(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
