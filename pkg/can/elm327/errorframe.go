package elm327

import can "github.com/brannstrom/can327/pkg/can"

// Error frame constructors. Each mirrors one row of the adapter's
// error-reporting contract; the shape (which flag bits, which Data byte
// carries the subcode) matches Linux's own CAN error frame convention,
// reused here via pkg/can's CanErr* constants.

func busOffFrame() can.Frame {
	return can.Frame{ID: can.CanErrFlag | can.CanErrBusoff, DLC: 8}
}

func rxOverflowFrame() can.Frame {
	f := can.Frame{ID: can.CanErrFlag | can.CanErrCrtl, DLC: 8}
	f.Data[1] = can.CanErrCrtlRxOver
	return f
}

func busErrorFrame() can.Frame {
	return can.Frame{ID: can.CanErrFlag | can.CanErrBuserror, DLC: 8}
}

func protocolErrorFrame() can.Frame {
	return can.Frame{ID: can.CanErrFlag | can.CanErrProt, DLC: 8}
}

func protocolOverloadFrame() can.Frame {
	f := can.Frame{ID: can.CanErrFlag | can.CanErrProt, DLC: 8}
	f.Data[2] = can.CanErrProtOverload
	return f
}

func protocolTxFrame() can.Frame {
	f := can.Frame{ID: can.CanErrFlag | can.CanErrProt, DLC: 8}
	f.Data[2] = can.CanErrProtTx
	return f
}

// controllerErrorFrame mirrors elm327_parse_error()'s "ERR" case: the two
// digits are logged, not encoded into the frame, matching the original
// driver leaving frame->data[] untouched here.
func controllerErrorFrame() can.Frame {
	return can.Frame{ID: can.CanErrFlag | can.CanErrCrtl, DLC: 8}
}

// genericErrorFrame is emitted for any line that parses as neither a frame
// nor a recognized error string. Canonical per the design decision that
// unrecognized lines should be observable on the bus, not swallowed.
func genericErrorFrame() can.Frame {
	return can.Frame{ID: can.CanErrFlag, DLC: 8}
}
