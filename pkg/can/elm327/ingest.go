package elm327

// isValidChar is the intersection of every token the adapter is ever
// expected to emit. A stray byte outside this set indicates a wiring or
// hardware fault and is fatal. A prompt byte whose two high bits are
// corrupted still counts as valid (see isPromptByte).
func isValidChar(b byte) bool {
	switch {
	case b >= '0' && b <= '9':
		return true
	case b >= 'A' && b <= 'Z':
		return true
	}
	switch b {
	case '<', 'a', 'b', 'v', '.', '?', probeByte, promptByte, ' ', '\r':
		return true
	}
	return isPromptByte(b)
}

// Ingest accepts count bytes from the transport, optionally paired with a
// parallel error-flag array where a non-zero flag marks a framing, parity
// or break error the transport observed on that byte. Matches the
// transport's SetReceiveCallback signature.
func (c *Channel) Ingest(data []byte, errFlags []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failureLatch {
		return
	}

	for i, b := range data {
		if errFlags != nil && i < len(errFlags) && errFlags[i] != 0 {
			c.tripLatch(ErrTransportFault)
			return
		}
		if b == 0 {
			// Documented adapter-microcontroller defect injects stray NULs.
			continue
		}
		if !isValidChar(b) {
			c.tripLatch(ErrInvalidByte)
			return
		}
		if c.rxFill >= len(c.rx) {
			c.tripLatch(ErrRxOverflow)
			return
		}
		c.rx[c.rxFill] = b
		c.rxFill++
	}

	c.runParser()
}
