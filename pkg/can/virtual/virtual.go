// Package virtual provides an in-process CAN bus with no hardware or
// SocketCAN dependency, for exercising a can327bridge channel set without
// a real interface attached.
package virtual

import (
	"errors"
	"log/slog"
	"sync"

	can "github.com/brannstrom/can327/pkg/can"
)

func init() {
	can.RegisterInterface("virtual", NewBus)
}

// registry holds one shared in-process bus per channel name, so that
// multiple NewBus("virtual", "busA", ...) callers (e.g. a bridge process
// and its test harness) observe the same traffic.
var (
	registryMu sync.Mutex
	registry   = map[string]*Bus{}
)

// Bus fans out frames submitted via Send to every other subscriber
// registered under the same channel name. There is no wire format and
// no network hop: Send copies the channel's current member list under
// the registry lock, then calls each subscriber's Handle synchronously
// with no lock held.
type Bus struct {
	logger  *slog.Logger
	name    string
	mu      sync.Mutex
	members []*Bus
	handler can.FrameListener
	own     bool
	closed  bool
}

// NewBus returns a new member of the shared bus for channel, creating the
// shared bus on first use.
// All Bus values returned for the same channel name see each other's
// traffic until every one of them has Disconnect called.
func NewBus(channel string) (can.Bus, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	shared, ok := registry[channel]
	if !ok {
		shared = &Bus{logger: slog.Default(), name: channel}
		registry[channel] = shared
	}
	b := &Bus{logger: shared.logger, name: channel}
	shared.members = append(shared.members, b)
	b.members = shared.members
	return b, nil
}

func (b *Bus) Connect(...any) error {
	return nil
}

func (b *Bus) Disconnect() error {
	registryMu.Lock()
	defer registryMu.Unlock()
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	shared, ok := registry[b.name]
	if !ok {
		return nil
	}
	kept := shared.members[:0]
	for _, m := range shared.members {
		if m != b {
			kept = append(kept, m)
		}
	}
	shared.members = kept
	if len(kept) == 0 {
		delete(registry, b.name)
	}
	return nil
}

// Send delivers frame to every other member sharing this channel name
// (and to this member too, if SetReceiveOwn was set).
func (b *Bus) Send(frame can.Frame) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("virtual bus: send on disconnected channel")
	}
	own := b.own
	b.mu.Unlock()

	registryMu.Lock()
	var members []*Bus
	if shared, ok := registry[b.name]; ok {
		members = append([]*Bus(nil), shared.members...)
	}
	registryMu.Unlock()

	for _, m := range members {
		if m == b && !own {
			continue
		}
		m.mu.Lock()
		h := m.handler
		m.mu.Unlock()
		if h != nil {
			h.Handle(frame)
		}
	}
	return nil
}

func (b *Bus) Subscribe(handler can.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
	return nil
}

func (b *Bus) SetReceiveOwn(enabled bool) error {
	b.mu.Lock()
	b.own = enabled
	b.mu.Unlock()
	return nil
}
