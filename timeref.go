package glossy

// This file implements the time-reference engine: capture of the
// flood's initial reference timestamp, accumulation of T_slot
// measurements, and back-projection to the initiator's t=0 at Stop.
//
// Two asymmetries are deliberately preserved rather than "cleaned up"
// here: the retransmission-timeout slot count stays fixed at
// SlotTimeout (see errors.go), and the T_slot measurement's sign
// asymmetry (+TAU1 for TX-after-RX, -TAU1 for RX-after-TX) is kept
// exactly as below.

// maybeCaptureRXTimeRef captures t_ref from the first successful
// reception in a with_sync flood and derives T_slot_estimated from the
// now-known packet length. Caller must hold mu.
func (f *Flood) maybeCaptureRXTimeRef(tsRX Tick, relayCnt byte, pktLen int) {
	if !f.known.syncKnown || !f.known.withSync {
		return
	}
	if f.tRefUpdated {
		return
	}
	f.tRef = tsRX - f.cfg.TAU1
	f.relayCntRef = relayCnt
	f.tRefUpdated = true
	f.tSlotEstimated = f.cfg.tTxTicks(pktLen) + f.cfg.T2R - f.cfg.TAU1
}

// maybeCaptureTXTimeRef captures t_ref from the first transmission in a
// with_sync flood, when no reception has captured one already (only
// relevant to the initiator, whose first event is always its own TX).
// Caller must hold mu.
func (f *Flood) maybeCaptureTXTimeRef(tsTX Tick) {
	if !f.known.syncKnown || !f.known.withSync {
		return
	}
	if f.tRefUpdated {
		return
	}
	f.tRef = tsTX
	f.relayCntRef = f.header.RelayCnt
	f.tRefUpdated = true
}

// maybeMeasureSlot checks whether the most recent RX/TX pair forms an
// immediate back-to-back transition (detected via relay_cnt continuity)
// and, if so, takes a T_slot measurement and accepts it when within
// tolerance of T_slot_estimated. Caller must hold mu; call this after
// updating tRxStart/tTxStart and relayCntLastRx/relayCntLastTx for the
// event that just occurred.
func (f *Flood) maybeMeasureSlot() {
	if f.haveLastTx && f.haveLastRx && f.relayCntLastTx == f.relayCntLastRx+1 {
		// TX immediately followed RX.
		m := f.tTxStart - f.tRxStart + f.cfg.TAU1
		f.acceptSlotMeasurement(m)
	}
	if f.haveLastRx && f.haveLastTx && f.relayCntLastRx == f.relayCntLastTx+1 {
		// RX immediately followed TX.
		m := f.tRxStart - f.tTxStart - f.cfg.TAU1
		f.acceptSlotMeasurement(m)
	}
}

// acceptSlotMeasurement feeds m into the T_slot accumulator if it lies
// within T_slot_estimated +/- TSlotTolerance. Caller must hold mu.
func (f *Flood) acceptSlotMeasurement(m Tick) {
	delta := m - f.tSlotEstimated
	if delta < 0 {
		delta = -delta
	}
	if delta > f.cfg.TSlotTolerance {
		return
	}
	f.tSlotSum += m
	f.nTSlot++
}

// finalizeTRef back-projects t_ref to the initiator's hop-0 start, using
// the averaged T_slot measurement if any were accepted, or the
// theoretical estimate otherwise. It also computes GetTRefLF's
// low-frequency translation from a simultaneous clock snapshot. Caller
// must hold mu.
func (f *Flood) finalizeTRef() {
	if !f.tRefUpdated {
		return
	}
	var slot Tick
	if f.nTSlot > 0 {
		slot = f.tSlotSum / Tick(f.nTSlot)
	} else {
		slot = f.tSlotEstimated
	}
	f.tRef -= Tick(f.relayCntRef) * slot

	hf, lf := f.timer.Now()
	if f.cfg.HFTicksPerSecond > 0 {
		f.tRefLF = lf + Tick(int64(f.tRef-hf)*f.cfg.LFTicksPerSecond/f.cfg.HFTicksPerSecond)
	} else {
		f.tRefLF = lf
	}
}
