package elm327

import "errors"

var (
	ErrFailureLatched          = errors.New("elm327: channel is latched after an unrecoverable fault")
	ErrRxOverflow              = errors.New("elm327: receive buffer overflow")
	ErrLineTooLong             = errors.New("elm327: line exceeded the receive buffer without a terminating CR")
	ErrInvalidByte             = errors.New("elm327: byte outside the adapter's valid character set")
	ErrTransportFault          = errors.New("elm327: transport reported a framing error or negative write")
	ErrBitrateUnsupported      = errors.New("elm327: requested bitrate is not in the supported 500000/n set")
	ErrHardwareAddrUnsupported = errors.New("elm327: hardware address cannot be set on an elm327 channel")
	ErrChannelClosed           = errors.New("elm327: channel has been torn down")
	ErrTransmitTooLong         = errors.New("elm327: command exceeds the transmit buffer")
)
