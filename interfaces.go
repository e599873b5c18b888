// Package glossy implements the per-node state machine of Glossy, a
// low-power wireless flooding protocol for time-synchronized multi-hop
// dissemination of a single packet. A Flood is driven entirely by
// callbacks from a radio driver and a high-resolution timer, both
// external collaborators whose contracts are defined in this file; this
// package never talks to hardware directly.
package glossy

// Tick is a high-frequency timer tick count. Sub-slot time arithmetic
// (t_ref, T_slot, retransmission-timeout deadlines) is carried out
// entirely in this unit.
type Tick int64

// NodeID identifies a node (the local node, or a flood's initiator).
type NodeID uint16

// TimerID identifies a scheduled one-shot callback so it can later be
// cancelled with Timer.Stop.
type TimerID int

// Mode is a radio operating mode used for auto-transition configuration.
type Mode int

const (
	ModeRX Mode = iota
	ModeTX
)

// CalibrationMode selects how the radio calibrates its RF front-end
// between mode transitions.
type CalibrationMode int

const (
	CalibrationAuto CalibrationMode = iota
	CalibrationManual
)

// RadioDriver is the control-primitive surface Glossy drives. The driver
// itself (preamble/sync detection, CRC, FIFO read/write, RSSI
// calibration) is explicitly out of scope and lives outside this package
// (see radionrf24 for a concrete implementation).
type RadioDriver interface {
	// GoToIdle puts the radio in an idle, low-power, non-listening state.
	GoToIdle()
	// GoToSleep puts the radio into its deepest sleep mode.
	GoToSleep()
	// StartTX begins transmitting whatever is currently in the TX FIFO.
	StartTX()
	// StartRX begins listening for an incoming frame.
	StartRX()
	// WriteToTXFIFO loads header and payload into the TX FIFO, back to
	// back, ready for StartTX. It must be safe to call from within an
	// RXEnded callback, before the radio begins emitting its next
	// preamble.
	WriteToTXFIFO(header, payload []byte)
	// FlushRXFIFO discards any buffered received data.
	FlushRXFIFO()
	// FlushTXFIFO discards any buffered data queued for transmission.
	FlushTXFIFO()
	// SetRXOffMode configures which mode the radio automatically enters
	// once the current RX completes.
	SetRXOffMode(next Mode)
	// SetTXOffMode configures which mode the radio automatically enters
	// once the current TX completes.
	SetTXOffMode(next Mode)
	// SetCalibrationMode selects automatic or manual RF calibration.
	SetCalibrationMode(mode CalibrationMode)
	// ManualCalibration triggers an immediate calibration cycle; only
	// meaningful after SetCalibrationMode(CalibrationManual).
	ManualCalibration()
	// SetHeaderLenRX tells the radio how many leading bytes of an
	// incoming frame constitute the Glossy header, so it can fire
	// HeaderReceived as soon as they have arrived.
	SetHeaderLenRX(n int)
	// ReconfigAfterSleep restores radio registers lost by GoToSleep.
	ReconfigAfterSleep()
	// IsBusy reports whether the radio is mid RX or mid TX.
	IsBusy() bool
	// GetRSSI samples the current channel RSSI (used for noise
	// estimation, ahead of any preamble detection).
	GetRSSI() int
	// GetLastPacketRSSI returns the RSSI measured over the most recently
	// received packet.
	GetLastPacketRSSI() int
	// ClearPendingInterrupts acknowledges any latched radio interrupt
	// flags so a new one can be observed.
	ClearPendingInterrupts()
}

// RadioCallbacks is the event sink a RadioDriver invokes. Flood
// implements this interface; a driver is handed one before it starts
// delivering events (GlossyAdapter takes it through SetCallbacks, after
// construction) and must deliver callbacks for a single packet in order: RXStarted,
// HeaderReceived, then exactly one of RXEnded / RXFailed / RXTXError.
// Callbacks must run to completion without yielding and must complete
// before the radio begins the next preamble.
type RadioCallbacks interface {
	// RXStarted fires when the radio detects a preamble/sync word and
	// begins receiving a frame, at high-frequency timestamp ts.
	RXStarted(ts Tick)
	// TXStarted fires when the radio begins emitting a frame, at
	// high-frequency timestamp ts.
	TXStarted(ts Tick)
	// HeaderReceived fires as soon as the configured header length
	// (SetHeaderLenRX) is available in the RX FIFO, before the rest of
	// the frame or its CRC have arrived. It lets Glossy abort a
	// reception early on an invalid header.
	HeaderReceived(header []byte)
	// RXEnded fires on a frame received with a valid CRC, at
	// high-frequency timestamp ts. header and payload are the frame
	// split at the configured header length; rssi is the packet RSSI.
	RXEnded(ts Tick, header, payload []byte, rssi int)
	// TXEnded fires once a queued frame has been fully transmitted, at
	// high-frequency timestamp ts.
	TXEnded(ts Tick)
	// RXFailed fires when a frame's CRC does not validate.
	RXFailed()
	// RXTXError fires on an unexpected hardware/interrupt condition
	// (neither a clean completion nor a clean CRC failure).
	RXTXError()
}

// Timer is the high-resolution timer contract Glossy drives. now_hf/
// now_lf/now read current time; schedule arms a one-shot callback at an
// absolute tick. Schedule takes no period argument: Glossy only ever
// schedules one-shot callbacks.
type Timer interface {
	// NowHF returns the current high-frequency tick count.
	NowHF() Tick
	// NowLF returns the current low-frequency tick count.
	NowLF() Tick
	// Now returns a simultaneous snapshot of both clocks, used to
	// translate a high-frequency timestamp into the low-frequency
	// timebase (GetTRefLF).
	Now() (hf, lf Tick)
	// Schedule arms a one-shot callback at absolute tick `when`. Calling
	// Schedule again with the same id replaces any pending callback for
	// that id.
	Schedule(id TimerID, when Tick, cb func())
	// Stop cancels a previously scheduled callback, if still pending.
	Stop(id TimerID)
	// DisableUpdate suspends the timer-overflow/update interrupt, so
	// that timestamp captures and FIFO operations are never delayed by
	// it.
	DisableUpdate()
	// EnableUpdate re-enables the timer-overflow/update interrupt.
	EnableUpdate()
}
