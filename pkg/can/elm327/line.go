package elm327

import can "github.com/brannstrom/can327/pkg/can"

// handleLine classifies one complete line (CR already stripped).
func (c *Channel) handleLine(line []byte) {
	if len(line) == 0 {
		return
	}
	if c.dropNextLine {
		c.dropNextLine = false
		return
	}
	if len(line) >= 2 && line[0] == 'A' && line[1] == 'T' {
		return // unsolicited adapter command echo
	}
	if c.state != StateReceiving {
		return
	}

	res := parseFrame(line)
	if res.ok {
		c.deliverFrame(res.frame)
		return
	}
	if res.overflow {
		// The adapter's serial TX buffer was full mid-line: the payload
		// was truncated. This still falls through to the error-string
		// match below, which will not find a table entry either, so a
		// second, generic frame follows — both observable outcomes are
		// intentional, matching the literal frame/error-string cascade.
		c.deliverFrame(rxOverflowFrame())
	}

	frame, match := parseErrorString(line)
	switch match {
	case errMatchFrame:
		c.deliverFrame(frame)
	case errMatchController:
		c.logger.Info("adapter reported controller error", "code", string(line[3:5]))
		c.deliverFrame(frame)
	case errMatchLogOnly:
		c.logger.Info("adapter reported unable to connect")
	case errMatchNone:
		c.deliverFrame(genericErrorFrame())
	}
	c.kickIntoCommandMode()
}

type frameParseResult struct {
	frame    can.Frame
	ok       bool
	overflow bool
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'A' && b <= 'F')
}

func isHexOrSpace(b byte) bool {
	return isHexDigit(b) || b == ' '
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }

func hexVal(b byte) (uint8, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}

func spaceAt(line []byte, n int) bool {
	return n < len(line) && line[n] == ' '
}

func hexByteAt(line []byte, offset int) (byte, bool) {
	if offset+1 >= len(line) {
		return 0, false
	}
	hi, ok1 := hexVal(line[offset])
	lo, ok2 := hexVal(line[offset+1])
	if !ok1 || !ok2 {
		return 0, false
	}
	return hi<<4 | lo, true
}

func hexTripleAt(line []byte, offset int) (uint16, bool) {
	if offset+2 >= len(line) {
		return 0, false
	}
	a, ok1 := hexVal(line[offset])
	b, ok2 := hexVal(line[offset+1])
	d, ok3 := hexVal(line[offset+2])
	if !ok1 || !ok2 || !ok3 {
		return 0, false
	}
	return uint16(a)<<8 | uint16(b)<<4 | uint16(d), true
}

// parseFrame implements §4.3.1: scan the leading hex-or-space run,
// classify it as EFF or SFF by its fixed space offsets, then read DLC, ID,
// RTR marker and payload from fixed offsets within that run.
func parseFrame(line []byte) frameParseResult {
	hexlen := 0
	for hexlen < len(line) && isHexOrSpace(line[hexlen]) {
		hexlen++
	}
	if hexlen < len(line) {
		term := line[hexlen]
		if !(term == '<' || isDigit(term) || isUpper(term) || term == ' ') {
			return frameParseResult{}
		}
	}

	var eff bool
	var dataStart int
	switch {
	case spaceAt(line, 2) && spaceAt(line, 5) && spaceAt(line, 8) && spaceAt(line, 11) && spaceAt(line, 13):
		eff = true
		dataStart = 14
	case spaceAt(line, 3) && spaceAt(line, 5):
		eff = false
		dataStart = 6
	default:
		return frameParseResult{}
	}
	if hexlen < dataStart {
		return frameParseResult{}
	}

	dlc, ok := hexVal(line[dataStart-2])
	if !ok || dlc > 8 {
		return frameParseResult{}
	}

	var id uint32
	if eff {
		b0, ok0 := hexByteAt(line, 0)
		b1, ok1 := hexByteAt(line, 3)
		b2, ok2 := hexByteAt(line, 6)
		b3, ok3 := hexByteAt(line, 9)
		if !ok0 || !ok1 || !ok2 || !ok3 {
			return frameParseResult{}
		}
		id = (uint32(b0)<<24 | uint32(b1)<<16 | uint32(b2)<<8 | uint32(b3)) & can.CanEffMask
		id |= can.CanEffFlag
	} else {
		v, ok := hexTripleAt(line, 0)
		if !ok {
			return frameParseResult{}
		}
		id = uint32(v) & can.CanSffMask
	}

	frame := can.Frame{ID: id, DLC: dlc}

	if hexlen+3 <= len(line) && string(line[hexlen:hexlen+3]) == "RTR" {
		frame.ID |= can.CanRtrFlag
		return frameParseResult{frame: frame, ok: true}
	}

	needed := dataStart
	if dlc > 0 {
		needed = dataStart + 3*int(dlc) - 1
	}
	if hexlen < needed {
		return frameParseResult{overflow: true}
	}
	for i := 0; i < int(dlc); i++ {
		b, ok := hexByteAt(line, dataStart+3*i)
		if !ok {
			return frameParseResult{}
		}
		frame.Data[i] = b
	}
	return frameParseResult{frame: frame, ok: true}
}

type errorMatch int

const (
	errMatchNone errorMatch = iota
	errMatchLogOnly
	errMatchFrame
	errMatchController
)

// parseErrorString implements §4.3.2: an exact, length-indexed string
// match. Prefix matches must never fire, hence the length switch before
// any string comparison.
func parseErrorString(line []byte) (can.Frame, errorMatch) {
	s := string(line)
	switch len(line) {
	case 17:
		if s == "UNABLE TO CONNECT" {
			return can.Frame{}, errMatchLogOnly
		}
	case 11:
		if s == "BUFFER FULL" {
			return rxOverflowFrame(), errMatchFrame
		}
	case 9:
		switch s {
		case "BUS ERROR":
			return busErrorFrame(), errMatchFrame
		case "CAN ERROR", "<RX ERROR":
			return protocolErrorFrame(), errMatchFrame
		}
	case 8:
		switch s {
		case "BUS BUSY":
			return protocolOverloadFrame(), errMatchFrame
		case "FB ERROR":
			return protocolTxFrame(), errMatchFrame
		}
	case 5:
		if s[:3] == "ERR" {
			return controllerErrorFrame(), errMatchController
		}
	}
	return can.Frame{}, errMatchNone
}
