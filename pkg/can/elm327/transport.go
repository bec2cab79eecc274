package elm327

// Transport is the serial-side collaborator a Channel drives. Opening the
// device, baud configuration and the byte-level I/O are out of scope for
// the engine; it only needs this contract. See transport.Serial for the
// default go.bug.st/serial-backed implementation and transport.Loop for
// the in-memory double used by this package's own tests.
type Transport interface {
	// Write is non-blocking and may return fewer bytes than len(p); a
	// negative n or non-nil err trips the channel's failure latch.
	Write(p []byte) (n int, err error)

	// SetWritableCallback registers the function the transport invokes
	// once it is ready to accept more bytes after a partial write.
	SetWritableCallback(func())

	// SetReceiveCallback registers the function the transport invokes
	// with newly arrived bytes, plus an optional parallel slice of
	// per-byte error flags (framing/parity/break). A nil errFlags slice
	// means no byte in this batch was flagged.
	SetReceiveCallback(func(data []byte, errFlags []byte))

	Close() error
}
