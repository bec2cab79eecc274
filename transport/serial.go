// Package transport holds concrete collaborators for elm327.Channel's
// Transport contract: Serial for a real adapter reachable over a serial
// port, Loop for driving byte streams in tests without one attached.
package transport

import (
	"sync"

	"go.bug.st/serial"
)

// Serial wraps go.bug.st/serial behind the elm327.Transport shape. It
// owns a background read goroutine that feeds bytes to the registered
// receive callback as they arrive.
type Serial struct {
	mu      sync.Mutex
	port    serial.Port
	onRecv  func(data []byte, errFlags []byte)
	onWrite func()

	closed bool
	wg     sync.WaitGroup
}

// NewSerial opens device at baud (8N1, no flow control) and starts
// reading immediately; register a receive callback with
// SetReceiveCallback to see incoming bytes.
func NewSerial(device string, baud int) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, err
	}
	s := &Serial{port: port}
	s.wg.Add(1)
	go s.readLoop()
	return s, nil
}

func (s *Serial) readLoop() {
	defer s.wg.Done()
	buf := make([]byte, 256)
	for {
		n, err := s.port.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		s.mu.Lock()
		cb := s.onRecv
		s.mu.Unlock()
		if cb != nil {
			cb(append([]byte(nil), buf[:n]...), nil)
		}
	}
}

// Write is a blocking, synchronous write to the serial port; go.bug.st/
// serial does not expose a non-blocking mode, so partial writes here are
// only ever the result of the OS write() itself returning short. The
// writable callback is started in a new goroutine after every write,
// partial or not, since the port is always ready to accept more once
// Write returns and the caller may still hold the lock the callback takes.
func (s *Serial) Write(p []byte) (int, error) {
	n, err := s.port.Write(p)
	s.mu.Lock()
	cb := s.onWrite
	s.mu.Unlock()
	if cb != nil {
		go cb()
	}
	return n, err
}

// SetWritableCallback registers the resume-after-partial-write hook,
// started from Write after each call so the transmit worker can push
// out whatever remains of a capped write.
func (s *Serial) SetWritableCallback(cb func()) {
	s.mu.Lock()
	s.onWrite = cb
	s.mu.Unlock()
}

func (s *Serial) SetReceiveCallback(cb func(data []byte, errFlags []byte)) {
	s.mu.Lock()
	s.onRecv = cb
	s.mu.Unlock()
}

func (s *Serial) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.port.Close()
	s.wg.Wait()
	return err
}
