// Command can327bridge relays CAN traffic between one or more
// ELM327-backed serial channels and a real SocketCAN interface, the
// userspace analogue of the kernel driver this engine reimplements.
package main

import (
	"flag"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/brannstrom/can327/config"
	can "github.com/brannstrom/can327/pkg/can"
	"github.com/brannstrom/can327/pkg/can/elm327"
	_ "github.com/brannstrom/can327/pkg/can/socketcanv2"
	_ "github.com/brannstrom/can327/pkg/can/virtual"
	"github.com/brannstrom/can327/transport"
)

func main() {
	configPath := flag.String("config", "can327bridge.ini", "path to the channel configuration file")
	socketcanIface := flag.String("socketcan", "vcan0", "SocketCAN interface to bridge onto")
	virtualChannel := flag.String("virtual-hostbus", "", "if set, bridge onto an in-process virtual bus of this name instead of SocketCAN (no hardware required)")
	flag.Parse()

	logger := slog.Default()

	channels, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	if len(channels) == 0 {
		logger.Error("no channels configured")
		os.Exit(1)
	}

	hostBusKind, hostBusChannel := "socketcanv2", *socketcanIface
	if *virtualChannel != "" {
		hostBusKind, hostBusChannel = "virtual", *virtualChannel
	}
	hostBus, err := can.NewBus(hostBusKind, hostBusChannel, 0)
	if err != nil {
		logger.Error("failed to open host bus", "kind", hostBusKind, "err", err)
		os.Exit(1)
	}
	if err := hostBus.Connect(); err != nil {
		logger.Error("failed to connect host bus", "kind", hostBusKind, "err", err)
		os.Exit(1)
	}
	defer hostBus.Disconnect()

	var links []*channelLink
	for _, ch := range channels {
		link := &channelLink{cfg: ch, hostBus: hostBus, logger: logger}
		if err := link.open(); err != nil {
			logger.Error("failed to open elm327 channel", "channel", ch.Name, "err", err)
			continue
		}
		defer link.close()
		go link.supervise()
		links = append(links, link)
		logger.Info("bridging elm327 channel", "channel", ch.Name, "port", ch.SerialPort, "bitrate", ch.BitrateHz)
	}

	// Relay the other direction: frames arriving on the real CAN
	// interface are fanned out to every elm327 channel.
	if err := hostBus.Subscribe(fanout{links: links, logger: logger}); err != nil {
		logger.Error("failed to subscribe to host bus", "kind", hostBusKind, "err", err)
	}

	select {}
}

// channelLink owns one bridged serial channel's current elm327.Bus and
// reopens it with exponential backoff (ch.ReconnectMin..ch.ReconnectMax
// seconds) whenever the channel's failure latch trips.
type channelLink struct {
	cfg     config.Channel
	hostBus can.Bus
	logger  *slog.Logger

	mu  sync.Mutex
	bus *elm327.Bus
}

func (l *channelLink) open() error {
	serialTransport, err := transport.NewSerial(l.cfg.SerialPort, l.cfg.BaudRate)
	if err != nil {
		return err
	}
	bus, err := elm327.NewBusWithTransport(l.cfg.Name, serialTransport, l.cfg.BitrateHz, l.cfg.ListenOnly)
	if err != nil {
		return err
	}
	if err := bus.Subscribe(relay{to: l.hostBus, logger: l.logger}); err != nil {
		return err
	}
	if err := bus.Connect(); err != nil {
		return err
	}
	l.mu.Lock()
	l.bus = bus
	l.mu.Unlock()
	return nil
}

func (l *channelLink) close() {
	l.mu.Lock()
	bus := l.bus
	l.mu.Unlock()
	if bus != nil {
		bus.Disconnect()
	}
}

func (l *channelLink) current() *elm327.Bus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bus
}

func (l *channelLink) supervise() {
	backoff := time.Duration(l.cfg.ReconnectMin) * time.Second
	maxBackoff := time.Duration(l.cfg.ReconnectMax) * time.Second
	for {
		time.Sleep(time.Second)
		bus := l.current()
		if bus == nil || !bus.Failed() {
			backoff = time.Duration(l.cfg.ReconnectMin) * time.Second
			continue
		}
		l.logger.Warn("elm327 channel latched, reopening", "channel", l.cfg.Name, "backoff", backoff)
		bus.Disconnect()
		time.Sleep(backoff)
		if err := l.open(); err != nil {
			l.logger.Error("reconnect failed", "channel", l.cfg.Name, "err", err)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Duration(l.cfg.ReconnectMin) * time.Second
	}
}

type relay struct {
	to     can.Bus
	logger *slog.Logger
}

func (r relay) Handle(frame can.Frame) {
	if err := r.to.Send(frame); err != nil {
		r.logger.Warn("failed relaying frame to host bus", "err", err)
	}
}

type fanout struct {
	links  []*channelLink
	logger *slog.Logger
}

func (f fanout) Handle(frame can.Frame) {
	for _, l := range f.links {
		b := l.current()
		if b == nil {
			continue
		}
		if err := b.Send(frame); err != nil {
			f.logger.Warn("failed relaying frame to elm327 channel", "channel", b.Name(), "err", err)
		}
	}
}
