package elm327

import "fmt"

// baseBitrate is the adapter's reference clock; every supported bitrate is
// baseBitrate/n for n in 1..64.
const baseBitrate = 500000

// BitrateTable holds the 64 discrete bitrates the adapter accepts, indexed
// by divisor-1.
var BitrateTable [64]int

func init() {
	for n := 1; n <= 64; n++ {
		BitrateTable[n-1] = baseBitrate / n
	}
}

// DivisorForBitrate maps a requested bitrate in Hz to the adapter's 1..64
// divisor, rejecting anything outside the fixed 500000/n set.
func DivisorForBitrate(hz int) (uint8, error) {
	for n := 1; n <= 64; n++ {
		if baseBitrate/n == hz {
			return uint8(n), nil
		}
	}
	return 0, fmt.Errorf("elm327: bitrate %d Hz is not in the supported 500000/n set", hz)
}

// Config word bits, sent as ATPB{word:04X}.
const (
	configSendSFF           uint16 = 0x8000 // clear when the outgoing ID is extended
	configVariableDLC       uint16 = 0x4000 // always set
	configRecvBothSFFAndEFF uint16 = 0x2000 // always set
	configBitrateMultiplier uint16 = 0x1000 // 8/7 multiplier, unused
)

func buildConfigWord(extended bool, divisor uint8) uint16 {
	word := configVariableDLC | configRecvBothSFFAndEFF
	if !extended {
		word |= configSendSFF
	}
	word |= uint16(divisor) & 0x0FFF
	return word
}

// initScript is the fixed, bit-exact sequence issued once per channel-up,
// one line per prompt.
var initScript = []string{
	"AT WS\r",
	"AT PP FF OFF\r",
	"AT M0\r",
	"AT AL\r",
	"AT BI\r",
	"AT CAF0\r",
	"AT CFC0\r",
	"AT CF 000\r",
	"AT CM 000\r",
	"AT E1\r",
	"AT H1\r",
	"AT L0\r",
	"AT SH 7DF\r",
	"AT ST FF\r",
	"AT AT0\r",
	"AT D1\r",
	"AT S1\r",
	"AT TP B\r",
}

// defaultStagedID is the identifier the adapter is left pointed at once
// the init script finishes (set by "AT SH 7DF" above).
const defaultStagedID uint32 = 0x7DF
