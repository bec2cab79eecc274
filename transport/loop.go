package transport

import "sync"

// Loop is an in-memory Transport used by elm327's own tests to drive byte
// streams without a real adapter attached, grounded on pkg/can/virtual's
// in-memory loopback Bus.
type Loop struct {
	mu       sync.Mutex
	onRecv   func(data []byte, errFlags []byte)
	onWrite  func()
	Written  []byte
	Calls    [][]byte // one entry per Write call, for step-by-step assertions
	writeErr error
	maxWrite int  // 0 = unlimited; else caps bytes accepted, then stalls
	stalled  bool // set once maxWrite has been applied; cleared by ResumeWrite
}

func NewLoop() *Loop { return &Loop{} }

func (l *Loop) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return -1, l.writeErr
	}
	if l.stalled {
		return 0, nil
	}
	n := len(p)
	if l.maxWrite > 0 && n > l.maxWrite {
		n = l.maxWrite
		l.stalled = true
	}
	l.Written = append(l.Written, p[:n]...)
	l.Calls = append(l.Calls, append([]byte(nil), p[:n]...))
	return n, nil
}

func (l *Loop) SetWritableCallback(cb func()) {
	l.mu.Lock()
	l.onWrite = cb
	l.mu.Unlock()
}

func (l *Loop) SetReceiveCallback(cb func(data []byte, errFlags []byte)) {
	l.mu.Lock()
	l.onRecv = cb
	l.mu.Unlock()
}

func (l *Loop) Close() error { return nil }

// Feed delivers bytes to the registered receive callback, simulating the
// adapter talking back over the wire.
func (l *Loop) Feed(data []byte, errFlags []byte) {
	l.mu.Lock()
	cb := l.onRecv
	l.mu.Unlock()
	if cb != nil {
		cb(data, errFlags)
	}
}

// SetMaxWrite caps how many bytes a single Write call accepts, exercising
// the transmit path's partial-write tail tracking.
func (l *Loop) SetMaxWrite(n int) {
	l.mu.Lock()
	l.maxWrite = n
	l.mu.Unlock()
}

func (l *Loop) SetWriteError(err error) {
	l.mu.Lock()
	l.writeErr = err
	l.mu.Unlock()
}

// ResumeWrite invokes the registered writable callback, simulating the
// transport signalling it can accept more bytes.
func (l *Loop) ResumeWrite() {
	l.mu.Lock()
	l.stalled = false
	cb := l.onWrite
	l.mu.Unlock()
	if cb != nil {
		cb()
	}
}
