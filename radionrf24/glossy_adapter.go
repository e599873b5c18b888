package radionrf24

import (
	"context"
	"sync"
	"time"

	"github.com/tve-net/glossy"
)

// GlossyAdapter drives a Device as a glossy.RadioDriver, so that a Flood
// can run a constructive-interference flood over an NRF24L01 link. It
// bridges Device's pipe/ACK-oriented, blocking-call API onto Glossy's
// event-callback contract via a single dispatch goroutine.
//
// Hardware limitations, noted rather than hidden: the NRF24L01 has no
// header-only
// interrupt (a full frame, including its trailing CRC check, arrives
// atomically), so HeaderReceived and RXEnded fire back to back for the
// same event instead of HeaderReceived preceding the frame body; a
// CRC-failed frame never raises RX_DR at all, so this adapter never
// raises RXFailed; and the chip exposes no RSSI register (only a coarse
// IsCarrierDetected bit), so GetRSSI/GetLastPacketRSSI return a 0/1
// proxy rather than a dBm reading. All TX is sent with TransmitNoAck,
// since Glossy's flood relays are broadcast and unacknowledged by
// design.
type GlossyAdapter struct {
	dev           *Device
	broadcastAddr Address
	cb            glossy.RadioCallbacks
	start         time.Time

	mu        sync.Mutex
	headerLen int
	rxOffMode glossy.Mode
	txOffMode glossy.Mode
	running   bool
	cancel    context.CancelFunc
}

// NewGlossyAdapter wraps dev for Glossy flooding over broadcastAddr (the
// deployment's shared flood address, which the caller also passes as the
// Device's RxAddr so it is received on RX pipe 1). The RadioCallbacks sink (a
// glossy.Flood) is supplied afterwards via SetCallbacks, since
// constructing a Flood itself requires a RadioDriver: cmd/glossynode
// builds the adapter, then the Flood around it, then wires the two
// together.
func NewGlossyAdapter(dev *Device, broadcastAddr Address) *GlossyAdapter {
	return &GlossyAdapter{
		dev:           dev,
		broadcastAddr: broadcastAddr,
		start:         time.Now(),
		headerLen:     1,
	}
}

// SetCallbacks wires the RadioCallbacks sink the dispatch goroutine
// delivers events to. Must be called before StartRX/WriteToTXFIFO.
func (a *GlossyAdapter) SetCallbacks(cb glossy.RadioCallbacks) {
	a.mu.Lock()
	a.cb = cb
	a.mu.Unlock()
}

func (a *GlossyAdapter) tick() glossy.Tick {
	return glossy.Tick(time.Since(a.start).Microseconds())
}

// GoToIdle puts the radio in standby without receiving.
func (a *GlossyAdapter) GoToIdle() {
	a.stopDispatch()
	a.dev.mu.Lock()
	a.dev.stopListening()
	a.dev.mu.Unlock()
}

// GoToSleep powers the chip down entirely.
func (a *GlossyAdapter) GoToSleep() {
	a.stopDispatch()
	a.dev.PowerDown()
}

// ReconfigAfterSleep restores register state GoToSleep's PowerDown lost.
func (a *GlossyAdapter) ReconfigAfterSleep() {
	a.dev.PowerUp()
}

// StartTX is a no-op: WriteToTXFIFO itself sends the frame, broadcast
// and unacknowledged, and reports TXStarted/TXEnded around the send,
// since Device.TransmitNoAck is one blocking call rather than
// queue-then-fire. StartTX changes no state, so IsBusy is unaffected.
func (a *GlossyAdapter) StartTX() {
}

// StartRX begins the dispatch goroutine, repeatedly blocking on the
// radio for incoming frames and classifying each into Glossy's callback
// sequence.
func (a *GlossyAdapter) StartRX() {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.running = true
	a.mu.Unlock()

	a.dev.mu.Lock()
	a.dev.startListening()
	a.dev.mu.Unlock()

	go a.dispatchLoop(ctx)
}

func (a *GlossyAdapter) stopDispatch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running && a.cancel != nil {
		a.cancel()
		a.running = false
	}
}

func (a *GlossyAdapter) dispatchLoop(ctx context.Context) {
	for {
		data, err := a.dev.ReceiveBlocking(ctx)
		if err != nil {
			return // context cancelled by GoToIdle/GoToSleep/WriteToTXFIFO
		}

		cb := a.callbacks()
		ts := a.tick()
		cb.RXStarted(ts)

		hlen := a.currentHeaderLen()
		if hlen > len(data) {
			cb.RXTXError()
			continue
		}
		header := data[:hlen]
		cb.HeaderReceived(header)
		cb.RXEnded(a.tick(), header, data[hlen:], a.rssiProxy())
	}
}

func (a *GlossyAdapter) currentHeaderLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.headerLen
}

func (a *GlossyAdapter) callbacks() glossy.RadioCallbacks {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cb
}

func (a *GlossyAdapter) rssiProxy() int {
	if a.dev.IsCarrierDetected() {
		return 1
	}
	return 0
}

// WriteToTXFIFO transmits header+payload immediately via TransmitNoAck,
// then raises TXStarted/TXEnded. Device.TransmitNoAck is already
// blocking, so unlike a true interrupt-driven radio there is no
// gap for WriteToTXFIFO to merely queue the frame; it pays for this by
// holding up its caller (an RXEnded callback relaying a frame) for the
// full SPI write plus on-air time instead of returning immediately.
func (a *GlossyAdapter) WriteToTXFIFO(header, payload []byte) {
	frame := make([]byte, 0, len(header)+len(payload))
	frame = append(frame, header...)
	frame = append(frame, payload...)

	a.stopDispatch()
	cb := a.callbacks()
	tsStart := a.tick()
	cb.TXStarted(tsStart)
	if err := a.dev.TransmitNoAck(a.broadcastAddr, frame); err != nil {
		globalLogger.Warn("glossy TX failed")
		cb.RXTXError()
		return
	}
	cb.TXEnded(a.tick())
}

// FlushRXFIFO discards buffered received data.
func (a *GlossyAdapter) FlushRXFIFO() { a.dev.FlushRX() }

// FlushTXFIFO discards buffered data queued for transmission.
func (a *GlossyAdapter) FlushTXFIFO() { a.dev.FlushTX() }

// SetRXOffMode records which mode to resume after RX; NRF24L01 always
// returns to PRIM_RX on its own auto-transitions. The recorded mode is
// not read anywhere else in the adapter (IsBusy does not consult it).
func (a *GlossyAdapter) SetRXOffMode(next glossy.Mode) {
	a.mu.Lock()
	a.rxOffMode = next
	a.mu.Unlock()
}

// SetTXOffMode records which mode to resume after TX.
func (a *GlossyAdapter) SetTXOffMode(next glossy.Mode) {
	a.mu.Lock()
	a.txOffMode = next
	a.mu.Unlock()
}

// SetCalibrationMode is a no-op: the NRF24L01's PLL calibration is
// handled entirely in hardware on every channel/mode change, with no
// exposed manual-calibration register.
func (a *GlossyAdapter) SetCalibrationMode(mode glossy.CalibrationMode) {}

// ManualCalibration is a no-op for the same reason as SetCalibrationMode.
func (a *GlossyAdapter) ManualCalibration() {}

// SetHeaderLenRX records how many leading bytes of the next frame are
// Glossy header rather than payload.
func (a *GlossyAdapter) SetHeaderLenRX(n int) {
	a.mu.Lock()
	a.headerLen = n
	a.mu.Unlock()
}

// IsBusy reports whether the dispatch loop is currently listening.
func (a *GlossyAdapter) IsBusy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// GetRSSI samples the coarse carrier-detect proxy described in the type
// doc comment.
func (a *GlossyAdapter) GetRSSI() int { return a.rssiProxy() }

// GetLastPacketRSSI returns the same coarse proxy; the NRF24L01 has no
// per-packet RSSI latch to read after the fact.
func (a *GlossyAdapter) GetLastPacketRSSI() int { return a.rssiProxy() }

// ClearPendingInterrupts acknowledges the STATUS register's latched
// flags.
func (a *GlossyAdapter) ClearPendingInterrupts() {
	a.dev.clearInterrupts(_RX_DR | _TX_DS | _MAX_RT)
}

var _ glossy.RadioDriver = (*GlossyAdapter)(nil)
