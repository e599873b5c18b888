package glossy

import "testing"

// --- Mocks ---

type mockRadio struct {
	started    []Mode // ModeRX for StartRX, ModeTX for StartTX, in call order
	txWrites   [][2][]byte
	headerLens []int
	busy       bool
	rssi       int
	lastRSSI   int
	asleep     bool
	idleCnt    int
}

func (m *mockRadio) GoToIdle()  { m.idleCnt++ }
func (m *mockRadio) GoToSleep() { m.asleep = true }
func (m *mockRadio) StartTX()   { m.started = append(m.started, ModeTX) }
func (m *mockRadio) StartRX()   { m.started = append(m.started, ModeRX) }
func (m *mockRadio) WriteToTXFIFO(header, payload []byte) {
	h := append([]byte(nil), header...)
	p := append([]byte(nil), payload...)
	m.txWrites = append(m.txWrites, [2][]byte{h, p})
}
func (m *mockRadio) FlushRXFIFO()                          {}
func (m *mockRadio) FlushTXFIFO()                           {}
func (m *mockRadio) SetRXOffMode(next Mode)                 {}
func (m *mockRadio) SetTXOffMode(next Mode)                 {}
func (m *mockRadio) SetCalibrationMode(mode CalibrationMode) {}
func (m *mockRadio) ManualCalibration()                      {}
func (m *mockRadio) SetHeaderLenRX(n int)                     { m.headerLens = append(m.headerLens, n) }
func (m *mockRadio) ReconfigAfterSleep()                      {}
func (m *mockRadio) IsBusy() bool                             { return m.busy }
func (m *mockRadio) GetRSSI() int                             { return m.rssi }
func (m *mockRadio) GetLastPacketRSSI() int                   { return m.lastRSSI }
func (m *mockRadio) ClearPendingInterrupts()                  {}

func (m *mockRadio) lastTX() [2][]byte {
	return m.txWrites[len(m.txWrites)-1]
}

var _ RadioDriver = (*mockRadio)(nil)

// mockTimer never fires on its own: a test drives it explicitly via fire
// rather than relying on real elapsed wall time.
type mockTimer struct {
	now     Tick
	pending map[TimerID]func()
}

func newMockTimer() *mockTimer {
	return &mockTimer{pending: make(map[TimerID]func())}
}

func (m *mockTimer) NowHF() Tick        { return m.now }
func (m *mockTimer) NowLF() Tick        { return m.now }
func (m *mockTimer) Now() (hf, lf Tick) { return m.now, m.now }
func (m *mockTimer) Schedule(id TimerID, when Tick, cb func()) {
	m.pending[id] = cb
}
func (m *mockTimer) Stop(id TimerID) { delete(m.pending, id) }
func (m *mockTimer) DisableUpdate()  {}
func (m *mockTimer) EnableUpdate()   {}

// fire invokes a scheduled callback as if its deadline had elapsed.
func (m *mockTimer) fire(id TimerID) {
	if cb, ok := m.pending[id]; ok {
		delete(m.pending, id)
		cb()
	}
}

var _ Timer = (*mockTimer)(nil)

// --- Scenario 1: initiator, n_tx_max=2, with_sync, two-TX flood ---

func TestScenarioInitiatorTwoTXFlood(t *testing.T) {
	cfg := DefaultConfig()
	radio := &mockRadio{}
	timer := newMockTimer()
	f := NewFlood(1, radio, timer, cfg)

	payload := []byte("HELLO")
	if err := f.Start(1, payload, 2, true, false); err != nil {
		t.Fatalf("Start: %v", err)
	}

	tag := cfg.HeaderByte & 0x07

	timer.now = 0
	f.TXStarted(0)
	timer.now = 100
	f.TXEnded(100)

	if f.GetNTx() != 1 {
		t.Fatalf("after TX#1: n_tx = %d, want 1", f.GetNTx())
	}

	timer.now = 1880
	f.RXStarted(1880)
	inHeader := EncodeHeader(Header{Tag: tag, WithSync: true, NTxMax: 2, RelayCnt: 1}, false)
	f.HeaderReceived(inHeader)
	f.RXEnded(1900, inHeader, []byte("HELLO"), -50)

	if f.GetRxCnt() != 1 {
		t.Fatalf("n_rx = %d, want 1", f.GetRxCnt())
	}
	outHeader, err := DecodeHeader(radio.lastTX()[0], false)
	if err != nil {
		t.Fatalf("decoding relayed header: %v", err)
	}
	if outHeader.RelayCnt != 2 {
		t.Fatalf("relayed relay_cnt = %d, want 2", outHeader.RelayCnt)
	}

	timer.now = 2000
	f.TXStarted(2000)
	timer.now = 2100
	f.TXEnded(2100)

	if f.GetNTx() != 2 {
		t.Fatalf("n_tx = %d, want 2", f.GetNTx())
	}
	if f.IsActive() {
		t.Fatal("flood should have self-terminated after n_tx reached n_tx_max")
	}
	if !f.IsTRefUpdated() {
		t.Fatal("t_ref_updated should be true")
	}
	if f.GetTRef() != 0 {
		t.Fatalf("t_ref = %d, want 0 (t_tx_start of TX#1)", f.GetTRef())
	}
}

// --- Scenario 2: receiver, first flood, all fields learned ---

func TestScenarioReceiverLearnsFields(t *testing.T) {
	cfg := DefaultConfig()
	radio := &mockRadio{}
	timer := newMockTimer()
	f := NewFlood(2, radio, timer, cfg)

	buf := make([]byte, cfg.PayloadLen)
	if err := f.Start(1, buf, UnknownNTxMax, true, false); err != nil {
		t.Fatalf("Start: %v", err)
	}

	tag := cfg.HeaderByte & 0x07
	timer.now = 100
	f.RXStarted(100)
	inHeader := EncodeHeader(Header{Tag: tag, WithSync: true, NTxMax: 2, RelayCnt: 3}, false)
	f.HeaderReceived(inHeader)
	f.RXEnded(150, inHeader, []byte("WORLD"), -40)

	if got := string(buf[:5]); got != "WORLD" {
		t.Fatalf("payload buffer = %q, want %q", got, "WORLD")
	}
	outHeader, err := DecodeHeader(radio.lastTX()[0], false)
	if err != nil {
		t.Fatalf("decoding relayed header: %v", err)
	}
	if outHeader.RelayCnt != 4 {
		t.Fatalf("relayed relay_cnt = %d, want 4", outHeader.RelayCnt)
	}
	if !f.IsTRefUpdated() {
		t.Fatal("t_ref_updated should be true")
	}
	if f.relayCntRef != 3 {
		t.Fatalf("relay_cnt_t_ref = %d, want 3", f.relayCntRef)
	}
}

// --- Scenario 3: CRC fail then ok ---

func TestScenarioCRCFailThenOK(t *testing.T) {
	cfg := DefaultConfig()
	radio := &mockRadio{}
	timer := newMockTimer()
	f := NewFlood(2, radio, timer, cfg)

	buf := make([]byte, cfg.PayloadLen)
	if err := f.Start(1, buf, UnknownNTxMax, false, false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tag := cfg.HeaderByte & 0x07

	f.RXStarted(0)
	f.RXFailed()

	f.RXStarted(10)
	inHeader := EncodeHeader(Header{Tag: tag, WithSync: false, NTxMax: 1, RelayCnt: 0}, false)
	f.HeaderReceived(inHeader)
	f.RXEnded(20, inHeader, []byte("HI"), -30)

	stats, _ := f.Stats()
	if stats.LastFloodNRXFail != 1 {
		t.Fatalf("last_flood_n_rx_fail = %d, want 1", stats.LastFloodNRXFail)
	}
	if f.GetRxCnt() != 1 {
		t.Fatalf("n_rx = %d, want 1", f.GetRxCnt())
	}
	if got := string(buf[:2]); got != "HI" {
		t.Fatalf("payload = %q, want %q", got, "HI")
	}
}

// --- Scenario 4: initiator retransmission-timeout path ---

func TestScenarioInitiatorTimeoutRetransmit(t *testing.T) {
	cfg := DefaultConfig()
	radio := &mockRadio{}
	timer := newMockTimer()
	f := NewFlood(1, radio, timer, cfg)

	payload := []byte("PING")
	if err := f.Start(1, payload, 3, false, false); err != nil {
		t.Fatalf("Start: %v", err)
	}

	timer.now = 0
	f.TXStarted(0)
	timer.now = 50
	f.TXEnded(50)
	if f.GetNTx() != 1 {
		t.Fatalf("n_tx after TX#1 = %d, want 1", f.GetNTx())
	}

	timer.now = 4000
	timer.fire(timeoutTimerID)
	timer.now = 4050
	f.TXStarted(4000)
	f.TXEnded(4050)
	if f.GetNTx() != 2 {
		t.Fatalf("n_tx after TX#2 = %d, want 2", f.GetNTx())
	}
	if f.relayCntTimeout != 1 {
		t.Fatalf("relay_cnt_timeout = %d, want 1", f.relayCntTimeout)
	}

	timer.now = 8000
	timer.fire(timeoutTimerID)
	timer.now = 8050
	f.TXStarted(8000)
	f.TXEnded(8050)
	if f.GetNTx() != 3 {
		t.Fatalf("n_tx after TX#3 = %d, want 3", f.GetNTx())
	}
	if f.relayCntTimeout != 2 {
		t.Fatalf("relay_cnt_timeout = %d, want 2", f.relayCntTimeout)
	}
	if f.IsActive() {
		t.Fatal("flood should terminate after n_tx_max total TXs")
	}
}

// --- Scenario 5: slot-length measurement tolerance ---

func TestScenarioSlotMeasurementTolerance(t *testing.T) {
	cfg := DefaultConfig()
	radio := &mockRadio{}
	timer := newMockTimer()
	f := NewFlood(2, radio, timer, cfg)
	f.tSlotEstimated = 1000

	f.mu.Lock()
	f.acceptSlotMeasurement(1003)
	f.acceptSlotMeasurement(1030)
	f.mu.Unlock()

	if f.nTSlot != 1 {
		t.Fatalf("n_T_slot = %d, want 1 (second measurement outside tolerance)", f.nTSlot)
	}
	if f.tSlotSum != 1003 {
		t.Fatalf("t_slot_sum = %d, want 1003", f.tSlotSum)
	}
}

// --- Scenario 6: t_ref back-projection ---

func TestScenarioTRefBackProjection(t *testing.T) {
	cfg := DefaultConfig()
	radio := &mockRadio{}
	timer := newMockTimer()
	f := NewFlood(2, radio, timer, cfg)

	buf := make([]byte, cfg.PayloadLen)
	if err := f.Start(1, buf, UnknownNTxMax, true, false); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.mu.Lock()
	f.maybeCaptureRXTimeRef(100000, 4, 10)
	f.tSlotEstimated = 1500
	for i := 0; i < 6; i++ {
		f.acceptSlotMeasurement(1500)
	}
	f.finalizeTRef()
	f.mu.Unlock()

	want := Tick(100000) - cfg.TAU1 - 4*1500
	if f.tRef != want {
		t.Fatalf("t_ref = %d, want %d", f.tRef, want)
	}
}

// --- Round-trip / idempotence / boundary behaviors ---

func TestStopTwiceIsNoOp(t *testing.T) {
	cfg := DefaultConfig()
	radio := &mockRadio{}
	timer := newMockTimer()
	f := NewFlood(1, radio, timer, cfg)

	if err := f.Start(1, []byte("X"), 1, false, false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.Stop()
	if !radio.asleep {
		t.Fatal("first Stop should have put the radio to sleep")
	}

	f.Stop() // must be a no-op: already inactive
	if f.IsActive() {
		t.Fatal("flood should remain inactive after a second Stop")
	}
}

func TestUnboundedReceiverNeverSelfTerminates(t *testing.T) {
	cfg := DefaultConfig()
	radio := &mockRadio{}
	timer := newMockTimer()
	f := NewFlood(2, radio, timer, cfg)

	buf := make([]byte, cfg.PayloadLen)
	if err := f.Start(1, buf, UnknownNTxMax, false, false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tag := cfg.HeaderByte & 0x07

	// n_tx_max learned as 0 ("unbounded"): relays forever until an
	// external Stop.
	inHeader := EncodeHeader(Header{Tag: tag, WithSync: false, NTxMax: 0, RelayCnt: 0}, false)
	f.RXStarted(0)
	f.HeaderReceived(inHeader)
	f.RXEnded(10, inHeader, []byte("B"), -30)
	f.TXStarted(20)
	f.TXEnded(30)

	if !f.IsActive() {
		t.Fatal("unbounded flood must not self-terminate")
	}
	if f.Stop() != 1 {
		t.Fatal("expected n_rx == 1 at external stop")
	}
}

func TestBeaconOnlyFloodZeroPayload(t *testing.T) {
	cfg := DefaultConfig()
	radio := &mockRadio{}
	timer := newMockTimer()
	f := NewFlood(1, radio, timer, cfg)

	if err := f.Start(1, nil, 1, true, false); err != nil {
		t.Fatalf("beacon-only (payload_len=0, with_sync=true) flood should be legal: %v", err)
	}
}

func TestPayloadTooLargeRejected(t *testing.T) {
	cfg := DefaultConfig()
	radio := &mockRadio{}
	timer := newMockTimer()
	f := NewFlood(1, radio, timer, cfg)

	huge := make([]byte, cfg.MaxPacketLen)
	err := f.Start(1, huge, 1, true, false)
	if err == nil {
		t.Fatal("expected ErrPayloadTooLarge")
	}
}
