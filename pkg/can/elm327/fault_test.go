package elm327

import (
	"testing"

	can "github.com/brannstrom/can327/pkg/can"
	"github.com/brannstrom/can327/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTripLatchIsOneWay(t *testing.T) {
	loop := transport.NewLoop()
	var frames []can.Frame
	var fatalCount int
	ch, err := NewChannel(Config{
		Transport: loop,
		BitrateHz: 500000,
		OnFrame:   func(f can.Frame) { frames = append(frames, f) },
		OnFatal:   func() { fatalCount++ },
	})
	require.NoError(t, err)

	ch.mu.Lock()
	ch.tripLatch(ErrRxOverflow)
	ch.tripLatch(ErrInvalidByte) // second call must be a no-op
	ch.mu.Unlock()

	assert.True(t, ch.Failed())
	require.Len(t, frames, 1)
	assert.True(t, frames[0].IsError())
	assert.Equal(t, 1, fatalCount)
}

func TestTripLatchClearsPendingTransmitAndReceiveState(t *testing.T) {
	loop := transport.NewLoop()
	ch, err := NewChannel(Config{Transport: loop, BitrateHz: 500000})
	require.NoError(t, err)

	ch.mu.Lock()
	ch.wantWrite = true
	ch.txRemaining = 4
	ch.rxFill = 10
	ch.tripLatch(ErrLineTooLong)
	wantWrite := ch.wantWrite
	txRemaining := ch.txRemaining
	rxFill := ch.rxFill
	ch.mu.Unlock()

	assert.False(t, wantWrite)
	assert.Zero(t, txRemaining)
	assert.Zero(t, rxFill)
}

func TestTripLatchWithoutOnFatalDoesNotPanic(t *testing.T) {
	loop := transport.NewLoop()
	ch, err := NewChannel(Config{Transport: loop, BitrateHz: 500000})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		ch.mu.Lock()
		ch.tripLatch(ErrTransportFault)
		ch.mu.Unlock()
	})
}
