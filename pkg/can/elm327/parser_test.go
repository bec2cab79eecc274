package elm327

import (
	"testing"

	can "github.com/brannstrom/can327/pkg/can"
	"github.com/brannstrom/can327/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPromptByteToleratesCorruptedHighBits(t *testing.T) {
	assert.True(t, isPromptByte('>'))
	assert.True(t, isPromptByte(0xC0|'>'))
	assert.False(t, isPromptByte('y'))
}

func TestUninitStateDiscardsBufferedBytes(t *testing.T) {
	loop := transport.NewLoop()
	ch, err := NewChannel(Config{Transport: loop, BitrateHz: 500000})
	require.NoError(t, err)

	ch.mu.Lock()
	ch.state = StateUninit
	ch.mu.Unlock()

	ch.Ingest([]byte("GARBAGE"), nil)
	assert.False(t, ch.Failed())
	assert.Equal(t, StateUninit, ch.State())
}

func TestScanAwaitProbeEchoPrefersFirstMatch(t *testing.T) {
	loop := transport.NewLoop()
	ch, err := NewChannel(Config{Transport: loop, BitrateHz: 500000})
	require.NoError(t, err)
	require.NoError(t, ch.Up())
	loop.Calls = nil

	// Noise, then a corrupted-high-bits prompt byte, then the probe byte
	// itself: the prompt byte is seen first and re-probes, and the probe
	// byte right behind it completes the handshake in the same Ingest
	// call.
	ch.Ingest([]byte{'A', 0xC0 | '>', probeByte}, nil)
	require.Len(t, loop.Calls, 2)
	assert.Equal(t, []byte{probeByte}, loop.Calls[0])
	assert.Equal(t, []byte("\r"), loop.Calls[1])
	assert.Equal(t, StateAwaitPrompt, ch.State())
}

func TestReceivingStateLatchesOnUnterminatedFullBuffer(t *testing.T) {
	loop := transport.NewLoop()
	ch, err := NewChannel(Config{Transport: loop, BitrateHz: 500000})
	require.NoError(t, err)

	ch.mu.Lock()
	ch.state = StateReceiving
	ch.mu.Unlock()

	line := make([]byte, rxBufSize)
	for i := range line {
		line[i] = '0'
	}
	ch.Ingest(line, nil)
	assert.True(t, ch.Failed())
}

func TestReceivingStateTimesOutToPromptWithoutCR(t *testing.T) {
	loop := transport.NewLoop()
	ch, err := NewChannel(Config{Transport: loop, BitrateHz: 500000})
	require.NoError(t, err)

	ch.mu.Lock()
	ch.state = StateReceiving
	ch.workMask = 0
	ch.mu.Unlock()

	ch.Ingest([]byte("123 2 AB"), nil)
	assert.False(t, ch.Failed())

	ch.Ingest([]byte(">"), nil)
	assert.False(t, ch.Failed())
	assert.Equal(t, []byte("ATMA\r"), loop.Calls[len(loop.Calls)-1])
}

func TestScanReceivingProcessesMultipleLinesInOneIngest(t *testing.T) {
	loop := transport.NewLoop()
	var frames []can.Frame
	ch, err := NewChannel(Config{
		Transport: loop,
		BitrateHz: 500000,
		OnFrame:   func(f can.Frame) { frames = append(frames, f) },
	})
	require.NoError(t, err)

	ch.mu.Lock()
	ch.state = StateReceiving
	ch.mu.Unlock()

	ch.Ingest([]byte("123 2 AB CD\r321 1 FF\r"), nil)
	require.Len(t, frames, 2)
	assert.EqualValues(t, 0x123, frames[0].ID&can.CanSffMask)
	assert.EqualValues(t, 2, frames[0].DLC)
	assert.EqualValues(t, 0x321, frames[1].ID&can.CanSffMask)
	assert.EqualValues(t, 1, frames[1].DLC)
}
