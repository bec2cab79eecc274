package elm327

import (
	"fmt"

	can "github.com/brannstrom/can327/pkg/can"
)

// onPrompt is the command scheduler: invoked only when a prompt byte was
// observed. Picks at most one pending work item, in priority order, and
// hands the formatted command to the transmit path.
func (c *Channel) onPrompt() {
	if c.failureLatch {
		return
	}

	if c.workMask == 0 {
		c.sendCommand([]byte("ATMA\r"))
		c.state = StateReceiving
		if c.onReady != nil {
			c.onReady()
		}
		return
	}

	if c.workMask&WorkInit != 0 {
		line := initScript[c.initStep]
		c.initStep++
		if c.initStep >= len(initScript) {
			c.workMask &^= WorkInit
		}
		c.sendCommand([]byte(line))
		return
	}

	switch {
	case c.workMask&WorkSilentMonitor != 0:
		c.workMask &^= WorkSilentMonitor
		c.sendCommand(formatSilentMonitor(c.listenOnly))

	case c.workMask&WorkResponses != 0:
		c.workMask &^= WorkResponses
		c.sendCommand(formatResponses(c.listenOnly))

	case c.workMask&WorkCANConfig != 0:
		c.workMask &^= WorkCANConfig
		c.workMask |= WorkCANConfigPart2
		c.sendCommand([]byte("ATPC\r"))

	case c.workMask&WorkCANConfigPart2 != 0:
		c.workMask &^= WorkCANConfigPart2
		c.sendCommand(formatConfigWord(c.configWord))

	case c.workMask&WorkCANID29High != 0:
		c.workMask &^= WorkCANID29High
		c.sendCommand(formatCANID29High(c.stagedID))

	case c.workMask&WorkCANID29Low != 0:
		c.workMask &^= WorkCANID29Low
		c.sendCommand(formatCANID29Low(c.stagedID))

	case c.workMask&WorkCANID11 != 0:
		c.workMask &^= WorkCANID11
		c.sendCommand(formatCANID11(c.stagedID))

	case c.workMask&WorkCANData != 0:
		c.workMask &^= WorkCANData
		c.sendCommand(formatCANData(c.stagedRTR, c.stagedDLC, c.stagedData))
		c.dropNextLine = true
		c.state = StateReceiving
	}
}

func formatSilentMonitor(listenOnly bool) []byte {
	v := byte('1')
	if listenOnly {
		v = '0'
	}
	return []byte{'A', 'T', 'C', 'S', 'M', v, '\r'}
}

func formatResponses(listenOnly bool) []byte {
	v := byte('1')
	if listenOnly {
		v = '0'
	}
	return []byte{'A', 'T', 'R', v, '\r'}
}

func formatConfigWord(word uint16) []byte {
	return []byte(fmt.Sprintf("ATPB%04X\r", word))
}

func formatCANID29High(id uint32) []byte {
	return []byte(fmt.Sprintf("ATCP%02X\r", (id>>24)&0xFF))
}

func formatCANID29Low(id uint32) []byte {
	return []byte(fmt.Sprintf("ATSH%06X\r", id&0xFFFFFF))
}

func formatCANID11(id uint32) []byte {
	return []byte(fmt.Sprintf("ATSH%03X\r", id&0x7FF))
}

func formatCANData(rtr bool, dlc uint8, data [8]byte) []byte {
	if rtr {
		return []byte("ATRTR\r")
	}
	const hexDigits = "0123456789ABCDEF"
	buf := make([]byte, 0, 2*int(dlc)+1)
	for i := 0; i < int(dlc); i++ {
		buf = append(buf, hexDigits[data[i]>>4], hexDigits[data[i]&0x0F])
	}
	buf = append(buf, '\r')
	return buf
}

// kickIntoCommandMode forces the adapter out of monitor mode. No-op if a
// probe/prompt handshake is already in flight.
func (c *Channel) kickIntoCommandMode() {
	if c.state == StateAwaitProbeEcho || c.state == StateAwaitPrompt {
		return
	}
	c.sendRaw([]byte{probeByte})
	c.state = StateAwaitProbeEcho
}

// Submit is the frame submission path, called from the network side
// whenever a frame is handed to the channel for transmission. Compares
// against the last committed context to decide which config/ID steps the
// new frame requires, stages it, and kicks the adapter into command mode.
//
// Callers must not submit a new frame until CAN_DATA has been retired for
// a previous one (invariant I6: the staged frame is not overwritten mid
// sequence); Submit does not queue.
func (c *Channel) Submit(frame can.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failureLatch {
		return ErrFailureLatched
	}

	eff := frame.ID&can.CanEffFlag != 0
	rtr := frame.ID&can.CanRtrFlag != 0
	var rawID uint32
	if eff {
		rawID = frame.ID & can.CanEffMask
	} else {
		rawID = frame.ID & can.CanSffMask
	}

	if eff != c.committedEFF {
		c.configWord = buildConfigWord(eff, c.bitrateDivisor)
		c.workMask |= WorkCANConfig
	}

	if eff {
		c.workMask |= WorkCANID29High | WorkCANID29Low
		c.workMask &^= WorkCANID11
	} else {
		c.workMask |= WorkCANID11
		c.workMask &^= (WorkCANID29High | WorkCANID29Low)
	}

	c.stagedID = rawID
	c.stagedEFF = eff
	c.stagedRTR = rtr
	c.stagedDLC = frame.DLC
	c.stagedData = frame.Data

	c.committedID = rawID
	c.committedEFF = eff

	c.workMask |= WorkCANData

	c.kickIntoCommandMode()
	return nil
}
