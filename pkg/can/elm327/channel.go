// Package elm327 implements the protocol engine that drives an
// ELM327-family OBD-II adapter as a raw CAN frame endpoint: it runs the
// adapter through its init/config sequence, parks it in monitor mode, and
// translates its ASCII line protocol to and from CAN frames.
package elm327

import (
	"log/slog"
	"sync"

	can "github.com/brannstrom/can327/pkg/can"
)

const (
	rxBufSize = 256 // R >= 256, see design notes on receive buffer sizing
	txBufSize = 32  // T >= 32

	// maxTxLine mirrors the original driver's local_txbuf sizing
	// (sizeof("0102030405060708\r")): the longest command line is an
	// 8-byte payload hexdump plus CR, asserted against in scheduler_test.go.
	maxTxLine = len("0102030405060708\r")
)

const (
	probeByte  byte = 'y'
	promptByte byte = '>'
	promptMask byte = 0x3F
)

// State is one of the four states of the receive parser's state machine.
type State int

const (
	StateUninit State = iota
	StateAwaitProbeEcho
	StateAwaitPrompt
	StateReceiving
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "UNINIT"
	case StateAwaitProbeEcho:
		return "AWAIT_PROBE_ECHO"
	case StateAwaitPrompt:
		return "AWAIT_PROMPT"
	case StateReceiving:
		return "RECEIVING"
	default:
		return "UNKNOWN"
	}
}

// WorkMask is the set of pending configuration/transmission steps the
// scheduler walks one item at a time per prompt, highest priority first.
type WorkMask uint16

const (
	WorkInit WorkMask = 1 << iota
	WorkSilentMonitor
	WorkResponses
	WorkCANConfig
	WorkCANConfigPart2
	WorkCANID29High
	WorkCANID29Low
	WorkCANID11
	WorkCANData
)

// Channel is the central entity of the engine: one per bridged serial
// link. All mutating entry points serialize on mu.
type Channel struct {
	mu sync.Mutex

	rx     [rxBufSize]byte
	rxFill int

	tx          [txBufSize]byte
	txCursor    int
	txRemaining int
	wantWrite   bool

	state    State
	workMask WorkMask
	initStep int

	// Staged outgoing frame and the context of the last frame actually
	// committed to the wire, used to decide which config/ID-programming
	// steps the next submission requires.
	stagedID   uint32
	stagedEFF  bool
	stagedRTR  bool
	stagedDLC  uint8
	stagedData [8]byte

	committedID  uint32
	committedEFF bool

	configWord     uint16
	bitrateDivisor uint8
	listenOnly     bool

	dropNextLine bool
	failureLatch bool

	transport Transport
	logger    *slog.Logger

	onFrame func(can.Frame)
	onReady func()
	onFatal func()
}

// Config bundles a Channel's fixed-for-life dependencies and callbacks.
type Config struct {
	Transport  Transport
	BitrateHz  int
	ListenOnly bool
	Logger     *slog.Logger

	// OnFrame delivers a decoded (or error) CAN frame upward.
	OnFrame func(can.Frame)
	// OnReady signals that the transmit queue may accept another frame
	// (the channel has entered monitor mode with no pending work).
	OnReady func()
	// OnFatal fires once, when the failure latch trips.
	OnFatal func()
}

func NewChannel(cfg Config) (*Channel, error) {
	divisor, err := DivisorForBitrate(cfg.BitrateHz)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Channel{
		transport:      cfg.Transport,
		bitrateDivisor: divisor,
		listenOnly:     cfg.ListenOnly,
		logger:         logger,
		onFrame:        cfg.OnFrame,
		onReady:        cfg.OnReady,
		onFatal:        cfg.OnFatal,
	}
	if c.transport != nil {
		c.transport.SetWritableCallback(c.Writable)
		c.transport.SetReceiveCallback(c.Ingest)
	}
	return c, nil
}

// Up resets the channel and begins the init handshake: seeds the work
// mask with {INIT, SILENT_MONITOR, RESPONSES, CAN_CONFIG} and sends the
// probe byte, per the lifecycle in the data model.
func (c *Channel) Up() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rxFill = 0
	c.txCursor = 0
	c.txRemaining = 0
	c.wantWrite = false
	c.failureLatch = false
	c.initStep = 0
	c.dropNextLine = false

	c.workMask = WorkInit | WorkSilentMonitor | WorkResponses | WorkCANConfig

	c.stagedID = defaultStagedID
	c.stagedEFF = false
	c.stagedRTR = false
	c.stagedDLC = 0
	c.committedID = defaultStagedID
	c.committedEFF = false
	c.configWord = buildConfigWord(false, c.bitrateDivisor)

	c.state = StateAwaitProbeEcho
	c.sendRaw([]byte{probeByte})
	return nil
}

// Down interrupts whatever the adapter is mid-sending with a probe byte
// (matching the original driver's closing write of a dummy string before
// clearing its write-wakeup flag), then drives outbound traffic to a stop
// and releases the transport. "Channel close" on top of this additionally
// forbids further entry via the Bus-level acquire/release liveness guard.
func (c *Channel) Down() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sendRaw([]byte{probeByte})
	c.wantWrite = false
	c.txRemaining = 0
	c.state = StateUninit
	if c.transport != nil {
		_ = c.transport.Close()
	}
}

// Failed reports whether the failure latch has tripped.
func (c *Channel) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failureLatch
}

// State reports the current parser state, mostly useful for tests.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) dropPrefix(n int) {
	if n <= 0 {
		return
	}
	if n >= c.rxFill {
		c.rxFill = 0
		return
	}
	copy(c.rx[:c.rxFill-n], c.rx[n:c.rxFill])
	c.rxFill -= n
}

// isPromptByte is the masked prompt compare: the adapter intermittently
// ORs garbage into the two high bits of '>' (bad hardware); match succeeds
// when the low six bits equal the prompt character.
func isPromptByte(b byte) bool {
	return b&promptMask == promptByte
}

func (c *Channel) deliverFrame(f can.Frame) {
	if c.onFrame != nil {
		c.onFrame(f)
	}
}
