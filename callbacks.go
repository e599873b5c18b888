package glossy

// This file implements RadioCallbacks on *Flood: the radio-driver event
// handlers that drive the protocol. Late callbacks for an inactive flood
// are tolerated and ignored.
//
// The timer's overflow/update interrupt is disabled on entering RXStarted
// and re-enabled on exiting RXEnded/RXFailed/RXTXError, so that timestamp
// captures and FIFO operations are never delayed by it.

var _ RadioCallbacks = (*Flood)(nil)

// RXStarted fires when the radio begins receiving a frame.
func (f *Flood) RXStarted(ts Tick) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return
	}

	f.timer.DisableUpdate()
	f.tRxStart = ts
	f.rxFailCounted = false

	if f.isInitiator {
		f.cancelTimeout()
	}

	if f.cfg.CollectStats {
		f.stats.PktCnt++
		f.floodStats.LastFloodNRXStarted++
		if !f.floodStats.rssiNoiseSampled {
			f.floodStats.LastFloodRSSINoise = f.radio.GetRSSI()
			f.floodStats.rssiNoiseSampled = true
		}
		if !f.isInitiator && !f.floodCounted {
			f.stats.FloodCnt++
			f.floodCounted = true
		}
	}
}

// TXStarted fires when the radio begins transmitting a frame.
func (f *Flood) TXStarted(ts Tick) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return
	}
	f.tTxStart = ts
}

// HeaderReceived fires once the configured header length is available in
// the RX FIFO. An invalid header aborts the in-progress reception early,
// before the rest of the frame has even arrived.
func (f *Flood) HeaderReceived(header []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return
	}

	h, err := DecodeHeader(header, f.cfg.AlwaysRelayCnt)
	if err != nil {
		f.abortRX()
		return
	}
	if err := checkHeaderOnly(h, f.cfg, f.known); err != nil {
		f.abortRX()
		return
	}
}

// abortRX discards the in-progress reception, counts the failure once
// per packet, and restarts listening. Caller must hold mu.
func (f *Flood) abortRX() {
	if f.cfg.CollectStats && !f.rxFailCounted {
		f.floodStats.LastFloodNRXFail++
		f.rxFailCounted = true
	}
	f.radio.FlushRXFIFO()
	f.radio.StartRX()
}

// RXEnded fires on a frame received with a valid CRC.
func (f *Flood) RXEnded(ts Tick, header, payload []byte, rssi int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return
	}
	defer f.timer.EnableUpdate()

	h, err := DecodeHeader(header, f.cfg.AlwaysRelayCnt)
	if err != nil {
		f.abortRX()
		return
	}
	pktLen := len(header) + len(payload)
	if err := checkFull(h, pktLen, f.cfg, f.known); err != nil {
		f.abortRX()
		return
	}

	f.tRxStop = ts
	firstReception := !f.headerOk

	if firstReception {
		f.headerOk = true
		if !f.known.syncKnown {
			f.known.syncKnown = true
			f.known.withSync = h.WithSync
		}
		if !f.known.nTxMaxKnown {
			f.known.nTxMaxKnown = true
			f.known.nTxMax = h.NTxMax
		}
		if !f.known.lenKnown {
			f.known.lenKnown = true
			f.known.payloadLen = len(payload)
		}
		f.payloadLen = len(payload)
		f.radio.SetHeaderLenRX(h.Len(f.cfg.AlwaysRelayCnt))
		if f.cfg.CollectStats {
			f.floodStats.LastFloodRelayCnt = h.RelayCnt
		}
	}
	f.header = h

	if !f.isInitiator && f.nRx == 0 && len(f.payload) >= len(payload) {
		copy(f.payload, payload)
	}

	f.nRx++
	f.relayCntLastRx = h.RelayCnt
	f.haveLastRx = true

	f.maybeCaptureRXTimeRef(f.tRxStart, h.RelayCnt, pktLen)
	f.maybeMeasureSlot()

	if f.cfg.CollectStats {
		f.stats.PktCntCRCOK++
		f.floodStats.LastFloodRSSISum += rssi
		if f.nRx == 1 {
			f.floodStats.LastFloodTToRX = ts - f.tFloodStart
		}
		if !f.isInitiator && !f.floodSuccessCounted {
			f.stats.FloodCntSuccess++
			f.floodSuccessCounted = true
		}
	}

	if f.shouldRetransmit() {
		f.header.RelayCnt = h.RelayCnt + 1
		f.radio.WriteToTXFIFO(EncodeHeader(f.header, f.cfg.AlwaysRelayCnt), f.payload[:f.payloadLen])
	}
}

// shouldRetransmit reports whether this node should echo the frame it
// just received: unbounded (n_tx_max == 0) floods always relay; bounded
// floods relay until n_tx reaches n_tx_max. Caller must hold mu.
func (f *Flood) shouldRetransmit() bool {
	if !f.known.nTxMaxKnown {
		return false
	}
	if f.known.nTxMax == 0 {
		return true
	}
	return f.nTx < int(f.known.nTxMax)
}

// TXEnded fires once a queued frame has been fully transmitted.
func (f *Flood) TXEnded(ts Tick) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return
	}

	f.tTxStop = ts
	f.nTx++
	f.relayCntLastTx = f.header.RelayCnt
	f.haveLastTx = true

	f.maybeCaptureTXTimeRef(f.tTxStart)
	f.maybeMeasureSlot()

	if f.terminationReached() {
		f.unlockedStop()
	}
}

// RXFailed fires when a frame's CRC does not validate.
func (f *Flood) RXFailed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return
	}
	defer f.timer.EnableUpdate()
	f.abortRX()
}

// RXTXError fires on an unexpected hardware/interrupt condition.
func (f *Flood) RXTXError() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return
	}
	defer f.timer.EnableUpdate()

	if f.cfg.CollectStats {
		f.stats.ErrorCnt++
	}
	f.radio.FlushRXFIFO()
	f.radio.FlushTXFIFO()
	f.radio.StartRX()
}
