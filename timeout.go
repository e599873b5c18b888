package glossy

// This file implements the retransmission-timeout fallback, relevant
// only to an initiator that has transmitted but received nothing back:
// a one-shot timer re-triggers TX so the flood can restart, backing off
// by one slot if a reception is currently under way.

// armTimeout schedules the retransmission timeout SlotTimeout slot
// lengths after base. Caller must hold mu.
func (f *Flood) armTimeout(base Tick) {
	if !f.cfg.RetransmissionTimeout {
		return
	}
	when := base + Tick(SlotTimeout)*f.tSlotEstimated
	f.timer.Schedule(timeoutTimerID, when, f.onTimeoutFired)
	f.timeoutArmed = true
}

// cancelTimeout disarms a pending retransmission timeout, called when an
// RX starts on the initiator. Caller must hold mu.
func (f *Flood) cancelTimeout() {
	if !f.timeoutArmed {
		return
	}
	f.timer.Stop(timeoutTimerID)
	f.timeoutArmed = false
}

// onTimeoutFired is the retransmission-timeout callback. It acquires mu
// itself since it runs asynchronously off the Timer's own scheduling
// goroutine, exactly like a radio callback.
func (f *Flood) onTimeoutFired() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.active || !f.isInitiator {
		return
	}
	f.timeoutArmed = false

	if f.radio.IsBusy() {
		// A reception is in progress: don't abort a legitimate packet,
		// just back off one more slot.
		f.relayCntTimeout++
		f.tTimeout += f.tSlotEstimated
		f.armTimeout(f.tTimeout)
		return
	}

	f.relayCntTimeout++
	f.header.RelayCnt = f.relayCntTimeout
	f.tTimeout = f.timer.NowHF()

	globalLogger.Warn("glossy: retransmission timeout, resending")
	f.radio.StartTX()
	f.radio.WriteToTXFIFO(EncodeHeader(f.header, f.cfg.AlwaysRelayCnt), f.payload)
	f.armTimeout(f.tTimeout)
}
