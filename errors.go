package glossy

import "errors"

// Sentinel errors of the package. Start returns ErrPayloadTooLarge
// (wrapped with ErrPkg); no function returns ErrNotActive. No
// protocol-level failure (malformed header, CRC failure, hardware
// anomaly) is ever surfaced to the caller — only a caller-argument
// mistake at Start time produces an error.
var (
	ErrPkg             = errors.New("glossy")
	ErrPayloadTooLarge = errors.New("payload exceeds MaxPacketLen for this header")
	ErrNotActive       = errors.New("flood is not active")
)

// SlotTimeout is the fixed retransmission-timeout slot count. The source
// hardcodes this to 2 despite a commented-out random-in-range construct;
// this implementation preserves the fixed value rather than guessing at
// the intended randomization.
const SlotTimeout = 2

// Sentinel values meaning "not yet learned; accept whatever arrives" for
// a receiver that has not seen a valid header yet.
const (
	UnknownNTxMax     byte = 0xFF
	UnknownPayloadLen int  = -1
)
