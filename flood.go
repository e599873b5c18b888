package glossy

import (
	"fmt"
	"sync"
)

// Flood is the per-node Glossy flood controller. There is
// only ever one active flood per node; a single Flood instance is driven
// across its whole lifecycle by the caller's Start/Stop calls and by
// RadioDriver/Timer callbacks. All mutable state is guarded by mu so that
// callbacks arriving on an interrupt-servicing goroutine and calls made
// from the caller's goroutine never race (mirrors radionrf24's
// mutex-guarded Device).
type Flood struct {
	cfg   *Config
	radio RadioDriver
	timer Timer
	stats LifetimeStats

	mu sync.Mutex

	localID     NodeID
	initiatorID NodeID
	isInitiator bool
	active      bool

	header   Header
	known    knownState
	headerOk bool

	payload    []byte // caller-owned buffer
	payloadLen int

	nTx, nRx int

	tTxStart, tTxStop Tick
	tRxStart, tRxStop Tick

	tRef        Tick
	tRefLF      Tick
	tRefUpdated bool
	relayCntRef byte

	tSlotEstimated Tick
	tSlotSum       Tick
	nTSlot         int

	haveLastRx      bool
	relayCntLastRx  byte
	haveLastTx      bool
	relayCntLastTx  byte

	relayCntTimeout byte
	tTimeout        Tick
	timeoutArmed    bool

	withRFCal bool

	floodStats          FloodStats
	tFloodStart         Tick
	rxFailCounted       bool // guards double-counting one packet's failure
	floodCounted        bool // guards FloodCnt to once per flood
	floodSuccessCounted bool // guards FloodCntSuccess to once per flood
}

const timeoutTimerID TimerID = 1

// NewFlood constructs a Flood bound to the given radio driver, timer and
// configuration. localID is this node's identity, compared against the
// initiator_id passed to Start to decide whether this node is the
// flood's initiator.
func NewFlood(localID NodeID, radio RadioDriver, timer Timer, cfg *Config) *Flood {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Flood{
		localID: localID,
		radio:   radio,
		timer:   timer,
		cfg:     cfg,
	}
}

// Start begins a flood. If localID equals initiatorID the
// node is the flood's initiator and must supply a fully-known header
// (withSync, nTxMax, and len(payload)); the payload is copied into the
// TX FIFO immediately. Otherwise the node is a receiver: withSync is
// still honored (every node in a round is scheduled with the same
// with_sync/with_rf_cal, needed upfront to frame the RX header length),
// but nTxMax may be passed as UnknownNTxMax to have it learned from the
// first valid reception, and payload_len is always learned that way.
//
// payload is the caller-owned buffer: on the initiator it is the data to
// send; on a receiver it is the buffer Glossy will copy the first
// reception's payload into (it must have at least PayloadLen capacity).
//
// Start returns an error only for a caller-argument mistake (an
// initiator whose header+payload would exceed MaxPacketLen); no
// protocol-level failure is ever reported to the caller.
func (f *Flood) Start(initiatorID NodeID, payload []byte, nTxMax byte, withSync bool, withRFCal bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.timer.DisableUpdate()
	defer f.timer.EnableUpdate()

	f.resetFloodState()
	f.initiatorID = initiatorID
	f.isInitiator = f.localID == initiatorID
	f.withRFCal = withRFCal
	f.payload = payload

	f.radio.SetRXOffMode(ModeTX)
	f.radio.SetTXOffMode(ModeRX)
	if withRFCal {
		f.radio.SetCalibrationMode(CalibrationManual)
		f.radio.ManualCalibration()
	} else {
		f.radio.SetCalibrationMode(CalibrationAuto)
	}

	f.active = true

	if f.isInitiator {
		f.known = knownState{
			syncKnown: true, withSync: withSync,
			nTxMaxKnown: true, nTxMax: nTxMax,
			lenKnown: true, payloadLen: len(payload),
		}
		f.header = Header{Tag: f.cfg.HeaderByte & 0x07, WithSync: withSync, NTxMax: nTxMax, RelayCnt: 0}
		f.headerOk = true
		f.payloadLen = len(payload)

		hlen := f.header.Len(f.cfg.AlwaysRelayCnt)
		if hlen+len(payload) > f.cfg.MaxPacketLen {
			f.unlockedStop()
			return fmt.Errorf("%w: %w", ErrPkg, ErrPayloadTooLarge)
		}

		f.radio.SetHeaderLenRX(hlen)
		f.tSlotEstimated = f.cfg.tTxTicks(hlen+len(payload)) + f.cfg.T2R - f.cfg.TAU1
		f.tTimeout = f.timer.NowHF()
		f.armTimeout(f.tTimeout)

		globalLogger.Info("glossy: starting flood as initiator")
		f.radio.StartTX()
		f.radio.WriteToTXFIFO(EncodeHeader(f.header, f.cfg.AlwaysRelayCnt), payload)
		return nil
	}

	// Receiver: with_sync is scheduled network-wide (every node in a round
	// is told the same with_sync by the caller, same as with_rf_cal
	// above), so it is known upfront and used to frame the RX header
	// length correctly from the start. n_tx_max and payload_len are the
	// fields actually learned from the first valid reception: n_tx_max
	// unless the caller already knows it (nTxMax != UnknownNTxMax),
	// payload_len always.
	f.known = knownState{syncKnown: true, withSync: withSync}
	if nTxMax != UnknownNTxMax {
		f.known.nTxMaxKnown = true
		f.known.nTxMax = nTxMax
	}
	f.payloadLen = UnknownPayloadLen
	f.header = Header{Tag: f.cfg.HeaderByte & 0x07, WithSync: withSync}

	hlen := f.header.Len(f.cfg.AlwaysRelayCnt)
	f.radio.SetHeaderLenRX(hlen)

	globalLogger.Info("glossy: starting flood as receiver")
	f.radio.StartRX()
	return nil
}

// resetFloodState zeroes every per-flood field at the start of a new
// flood; LifetimeStats is untouched. Caller must hold mu.
func (f *Flood) resetFloodState() {
	f.initiatorID = 0
	f.isInitiator = false
	f.header = Header{}
	f.known = knownState{}
	f.headerOk = false
	f.payload = nil
	f.payloadLen = 0
	f.nTx, f.nRx = 0, 0
	f.tTxStart, f.tTxStop = 0, 0
	f.tRxStart, f.tRxStop = 0, 0
	f.tRef, f.tRefLF = 0, 0
	f.tRefUpdated = false
	f.relayCntRef = 0
	f.tSlotEstimated, f.tSlotSum = 0, 0
	f.nTSlot = 0
	f.haveLastRx, f.haveLastTx = false, false
	f.relayCntLastRx, f.relayCntLastTx = 0, 0
	f.relayCntTimeout = 0
	f.tTimeout = 0
	f.timeoutArmed = false
	f.floodStats = FloodStats{}
	f.tFloodStart = f.timer.NowHF()
	f.rxFailCounted = false
	f.floodCounted = false
	f.floodSuccessCounted = false
}

// Stop ends the current flood: stops the retransmission
// timeout, flushes both radio FIFOs, puts the radio to sleep, finalizes
// t_ref using the averaged T_slot, re-enables interrupts, and returns the
// number of successful receptions this flood. Idempotent: calling Stop
// while already inactive is a no-op.
func (f *Flood) Stop() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unlockedStop()
}

func (f *Flood) unlockedStop() int {
	if !f.active {
		return f.nRx
	}

	f.timer.Stop(timeoutTimerID)
	f.timeoutArmed = false

	f.radio.FlushRXFIFO()
	f.radio.FlushTXFIFO()
	f.radio.GoToSleep()

	f.finalizeTRef()
	f.timer.EnableUpdate()

	if f.cfg.CollectStats {
		f.floodStats.LastFloodDuration = f.timer.NowHF() - f.tFloodStart
	}

	f.active = false
	globalLogger.Info("glossy: flood stopped")
	return f.nRx
}

// --- Pure accessors ---

// IsActive reports whether a flood is currently in progress.
func (f *Flood) IsActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// GetRxCnt returns the number of successful receptions in the current
// (or, after Stop, most recently completed) flood.
func (f *Flood) GetRxCnt() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nRx
}

// GetNTx returns the number of successful transmissions in the current
// (or most recently completed) flood.
func (f *Flood) GetNTx() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nTx
}

// GetPayloadLen returns the learned (or initiator-provided) payload
// length for the current flood, or UnknownPayloadLen if not yet learned.
func (f *Flood) GetPayloadLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloadLen
}

// IsTRefUpdated reports whether a time reference has been captured for
// the current flood.
func (f *Flood) IsTRefUpdated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tRefUpdated
}

// GetTRef returns the estimated local high-frequency time at which the
// initiator began its first transmission, valid once IsTRefUpdated.
func (f *Flood) GetTRef() Tick {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tRef
}

// GetTRefLF returns GetTRef translated to the low-frequency timebase,
// valid once IsTRefUpdated.
func (f *Flood) GetTRefLF() Tick {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tRefLF
}

// GetHeader returns the header currently in flight for this flood.
func (f *Flood) GetHeader() Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.header
}

// GetSyncMode reports whether this flood carries a time reference
// (with_sync).
func (f *Flood) GetSyncMode() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.known.syncKnown && f.known.withSync
}

// Stats returns a copy of this flood's statistics snapshot alongside the
// lifetime counters, or a zero FloodStats/LifetimeStats if
// Config.CollectStats is false.
func (f *Flood) Stats() (FloodStats, LifetimeStats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.floodStats, f.stats
}

// ResetStats clears the lifetime "since-reboot" counters; they are
// otherwise only cleared by an explicit call here. Per-flood statistics
// are unaffected; they are always reset by the next Start.
func (f *Flood) ResetStats() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = LifetimeStats{}
}

// terminationReached reports whether this node has finished its part in
// the flood: a node stops as soon as n_tx reaches n_tx_max when n_tx_max
// is known and nonzero (this always holds for the initiator). While
// n_tx_max is unknown or 0 (unbounded) it never self-terminates and waits
// for an external Stop.
func (f *Flood) terminationReached() bool {
	if f.known.nTxMaxKnown && f.known.nTxMax > 0 {
		return f.nTx >= int(f.known.nTxMax)
	}
	// n_tx_max unknown or 0 ("unbounded"): only an external Stop() ends
	// the flood for a receiver.
	return false
}
