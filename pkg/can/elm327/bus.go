package elm327

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	can "github.com/brannstrom/can327/pkg/can"
)

func init() {
	can.RegisterInterface("elm327", newBusFromRegistry)
}

// Stats mirrors the packet counters a real net_device exposes: tx/rx frame
// and byte counts, plus a fifo/error counter, updated on every
// successful Send or delivered frame.
type Stats struct {
	TxFrames   uint64
	RxFrames   uint64
	TxBytes    uint64
	RxBytes    uint64
	FifoErrors uint64
}

type statsCounter struct {
	mu sync.Mutex
	Stats
}

func (s *statsCounter) addTx(n int) {
	s.mu.Lock()
	s.TxFrames++
	s.TxBytes += uint64(n)
	s.mu.Unlock()
}

func (s *statsCounter) addRx(n int) {
	s.mu.Lock()
	s.RxFrames++
	s.RxBytes += uint64(n)
	s.mu.Unlock()
}

func (s *statsCounter) addFifoError() {
	s.mu.Lock()
	s.FifoErrors++
	s.mu.Unlock()
}

func (s *statsCounter) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Stats
}

// Bus adapts a Channel to the can.Bus backend interface, the same role
// socketcanv2.Bus and virtual.Bus play for their own transports. Unlike
// those two, it needs a Transport injected (there is no bare "channel
// name" that describes a serial link), so it is built with
// NewBusWithTransport; can.NewBus("elm327", ...) always returns an error.
type Bus struct {
	name       string
	transport  Transport
	bitrateHz  int
	listenOnly bool
	logger     *slog.Logger

	mu       sync.Mutex
	channel  *Channel
	listener can.FrameListener
	stats    statsCounter

	closing atomic.Bool
	wg      sync.WaitGroup
}

// NewBusWithTransport builds an elm327 Bus over an already-opened
// Transport. name is cosmetic (returned by Name()).
func NewBusWithTransport(name string, transport Transport, bitrateHz int, listenOnly bool) (*Bus, error) {
	if _, err := DivisorForBitrate(bitrateHz); err != nil {
		return nil, err
	}
	return &Bus{
		name:       name,
		transport:  transport,
		bitrateHz:  bitrateHz,
		listenOnly: listenOnly,
		logger:     slog.Default(),
	}, nil
}

func newBusFromRegistry(channel string) (can.Bus, error) {
	return nil, fmt.Errorf("elm327: interface %q needs a Transport; use elm327.NewBusWithTransport", channel)
}

func (b *Bus) Name() string { return b.name }

// SetListenOnly toggles the adapter's listen-only control mode. Only
// effective before Connect (or after Disconnect/Connect again): it feeds
// SILENT_MONITOR/RESPONSES at the next Up.
func (b *Bus) SetListenOnly(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listenOnly = v
}

func (b *Bus) SetHardwareAddr([]byte) error { return ErrHardwareAddrUnsupported }

// Ioctl forwards unrecognized requests to the transport's own Ioctl
// method, if it implements one; otherwise it is rejected.
func (b *Bus) Ioctl(req int, arg any) error {
	type ioctler interface{ Ioctl(int, any) error }
	if t, ok := b.transport.(ioctler); ok {
		return t.Ioctl(req, arg)
	}
	return fmt.Errorf("elm327: ioctl %d not supported by this transport", req)
}

func (b *Bus) Connect(...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closing.Store(false)
	ch, err := NewChannel(Config{
		Transport:  b.transport,
		BitrateHz:  b.bitrateHz,
		ListenOnly: b.listenOnly,
		Logger:     b.logger,
		OnFrame:    b.deliver,
		OnFatal:    b.onFatal,
	})
	if err != nil {
		return err
	}
	b.channel = ch
	return ch.Up()
}

func (b *Bus) Disconnect() error {
	b.mu.Lock()
	ch := b.channel
	b.mu.Unlock()

	b.closing.Store(true)
	b.wg.Wait()

	if ch != nil {
		ch.Down()
	}
	return nil
}

func (b *Bus) Send(frame can.Frame) error {
	if !b.acquire() {
		return ErrChannelClosed
	}
	defer b.release()

	b.mu.Lock()
	ch := b.channel
	b.mu.Unlock()
	if ch == nil {
		return ErrChannelClosed
	}

	if err := ch.Submit(frame); err != nil {
		return err
	}
	b.stats.addTx(int(frame.DLC))
	return nil
}

func (b *Bus) Subscribe(listener can.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listener = listener
	return nil
}

func (b *Bus) deliver(frame can.Frame) {
	if !b.acquire() {
		return
	}
	defer b.release()

	b.mu.Lock()
	listener := b.listener
	b.mu.Unlock()

	if frame.IsError() {
		b.stats.addFifoError()
	} else {
		b.stats.addRx(int(frame.DLC))
	}
	if listener != nil {
		listener.Handle(frame)
	}
}

func (b *Bus) onFatal() {
	b.logger.Warn("elm327 channel latched to bus-off; reopening the netdev requires tearing the channel down first")
}

func (b *Bus) Stats() Stats { return b.stats.snapshot() }

// Failed reports whether the underlying channel has latched after an
// unrecoverable fault. Disconnect closes the Transport and a later Connect
// reuses it, so a supervisor (e.g. a reconnect loop) recovers by building a
// new Bus over a freshly opened Transport, as cmd/can327bridge does.
func (b *Bus) Failed() bool {
	b.mu.Lock()
	ch := b.channel
	b.mu.Unlock()
	if ch == nil {
		return false
	}
	return ch.Failed()
}

// acquire/release is the callback-liveness guard: external callbacks
// (delivered frames, Send) can race with Disconnect. acquire fails once
// teardown has begun; Disconnect waits for all outstanding acquires to
// release before tearing down the channel.
func (b *Bus) acquire() bool {
	if b.closing.Load() {
		return false
	}
	b.wg.Add(1)
	if b.closing.Load() {
		b.wg.Done()
		return false
	}
	return true
}

func (b *Bus) release() { b.wg.Done() }
