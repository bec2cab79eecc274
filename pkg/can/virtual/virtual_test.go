package virtual

import (
	"testing"

	can "github.com/brannstrom/can327/pkg/can"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	frames []can.Frame
}

func (r *recorder) Handle(f can.Frame) { r.frames = append(r.frames, f) }

func TestSendFansOutToOtherMembers(t *testing.T) {
	busA, err := NewBus("test-channel-a")
	require.NoError(t, err)
	busB, err := NewBus("test-channel-a")
	require.NoError(t, err)
	defer busA.Disconnect()
	defer busB.Disconnect()

	var recvB recorder
	require.NoError(t, busB.Subscribe(&recvB))

	require.NoError(t, busA.Send(can.Frame{ID: 0x123, DLC: 2}))
	require.Len(t, recvB.frames, 1)
	assert.EqualValues(t, 0x123, recvB.frames[0].ID)
}

func TestSendSkipsSelfUnlessReceiveOwnSet(t *testing.T) {
	raw, err := NewBus("test-channel-b")
	require.NoError(t, err)
	bus := raw.(*Bus)
	defer bus.Disconnect()

	var recv recorder
	require.NoError(t, bus.Subscribe(&recv))

	require.NoError(t, bus.Send(can.Frame{ID: 0x1}))
	assert.Empty(t, recv.frames)

	require.NoError(t, bus.SetReceiveOwn(true))
	require.NoError(t, bus.Send(can.Frame{ID: 0x2}))
	require.Len(t, recv.frames, 1)
}

func TestDisconnectRemovesMemberAndRejectsSend(t *testing.T) {
	busA, err := NewBus("test-channel-c")
	require.NoError(t, err)
	busB, err := NewBus("test-channel-c")
	require.NoError(t, err)

	require.NoError(t, busA.Disconnect())

	var recvB recorder
	require.NoError(t, busB.Subscribe(&recvB))
	require.NoError(t, busB.Send(can.Frame{ID: 0x42}))
	assert.Empty(t, recvB.frames)

	err = busA.Send(can.Frame{ID: 0x1})
	assert.Error(t, err)

	require.NoError(t, busB.Disconnect())
}

func TestNewBusReusesSharedChannelByName(t *testing.T) {
	registryMu.Lock()
	_, alreadyPresent := registry["test-channel-d"]
	registryMu.Unlock()
	require.False(t, alreadyPresent)

	busA, err := NewBus("test-channel-d")
	require.NoError(t, err)
	defer busA.Disconnect()

	registryMu.Lock()
	shared, ok := registry["test-channel-d"]
	registryMu.Unlock()
	require.True(t, ok)
	assert.Len(t, shared.members, 1)
}
