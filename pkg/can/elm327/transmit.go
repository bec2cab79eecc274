package elm327

// sendRaw and sendCommand both funnel through queueTransmit; sendRaw is
// just the probe-byte / bare-CR single-byte case used by the parser's
// handshake steps.
func (c *Channel) sendRaw(b []byte) {
	c.sendCommand(b)
}

func (c *Channel) sendCommand(cmd []byte) {
	if c.failureLatch {
		return
	}
	if len(cmd) > len(c.tx) {
		c.tripLatch(ErrTransmitTooLong)
		return
	}
	c.queueTransmit(cmd)
}

// queueTransmit copies a command into the fixed outbound buffer and
// starts draining it. At most one command is ever in flight (I3), so the
// buffer is always free when this is called.
func (c *Channel) queueTransmit(cmd []byte) {
	copy(c.tx[:], cmd)
	c.txCursor = 0
	c.txRemaining = len(cmd)
	c.wantWrite = true
	c.drainTransmit()
}

// drainTransmit writes as much of the pending tail as the transport will
// accept. A short write leaves wantWrite set so the next "writable"
// notification resumes it; a negative count or error is fatal.
func (c *Channel) drainTransmit() {
	for c.txRemaining > 0 {
		n, err := c.transport.Write(c.tx[c.txCursor : c.txCursor+c.txRemaining])
		if err != nil || n < 0 {
			c.tripLatch(ErrTransportFault)
			return
		}
		if n == 0 {
			return
		}
		c.txCursor += n
		c.txRemaining -= n
	}
	c.wantWrite = false
}

// Writable is the transport's "ready for more bytes" notification.
// Matches the transport's SetWritableCallback signature.
func (c *Channel) Writable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failureLatch || !c.wantWrite {
		return
	}
	c.drainTransmit()
}
