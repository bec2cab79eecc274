package elm327

// tripLatch is the one-way failure latch. Once set: outgoing bytes stop,
// the host is told bus-off via an error frame, and recovery requires the
// host to tear down and re-open the channel (Up after a fresh Down).
func (c *Channel) tripLatch(err error) {
	if c.failureLatch {
		return
	}
	c.failureLatch = true
	c.wantWrite = false
	c.txRemaining = 0
	c.rxFill = 0

	c.logger.Error("elm327 channel latched", "err", err)
	c.deliverFrame(busOffFrame())

	if c.onFatal != nil {
		c.onFatal()
	}
}
