package glossy

import "testing"

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{Tag: 0x02, WithSync: false, NTxMax: 0, RelayCnt: 0},
		{Tag: 0x02, WithSync: true, NTxMax: 5, RelayCnt: 3},
		{Tag: 0x07, WithSync: false, NTxMax: 15, RelayCnt: 0},
	}
	for _, h := range cases {
		buf := EncodeHeader(h, false)
		got, err := DecodeHeader(buf, false)
		if err != nil {
			t.Fatalf("DecodeHeader(%+v): unexpected error: %v", h, err)
		}
		if h.WithSync {
			if got != h {
				t.Errorf("round-trip mismatch: got %+v want %+v", got, h)
			}
		} else {
			// RelayCnt is not on the wire without with_sync/AlwaysRelayCnt.
			want := h
			want.RelayCnt = 0
			if got != want {
				t.Errorf("round-trip mismatch: got %+v want %+v", got, want)
			}
		}
	}
}

func TestEncodeHeaderAlwaysRelayCnt(t *testing.T) {
	h := Header{Tag: 0x02, WithSync: false, NTxMax: 1, RelayCnt: 9}
	buf := EncodeHeader(h, true)
	if len(buf) != 2 {
		t.Fatalf("expected 2-byte header with AlwaysRelayCnt, got %d bytes", len(buf))
	}
	got, err := DecodeHeader(buf, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != h {
		t.Errorf("got %+v want %+v", got, h)
	}
}

func TestDecodeHeaderEmptyBuffer(t *testing.T) {
	if _, err := DecodeHeader(nil, false); err == nil {
		t.Fatal("expected error decoding empty buffer")
	}
}

func TestDecodeHeaderMissingRelayByte(t *testing.T) {
	// with_sync set but only one byte supplied.
	buf := []byte{1 << 4}
	if _, err := DecodeHeader(buf, false); err == nil {
		t.Fatal("expected error decoding truncated relay_cnt byte")
	}
}

func TestHeaderLen(t *testing.T) {
	h := Header{WithSync: false}
	if got := h.Len(false); got != 1 {
		t.Errorf("Len(false) = %d, want 1", got)
	}
	if got := h.Len(true); got != 2 {
		t.Errorf("Len(true) with AlwaysRelayCnt = %d, want 2", got)
	}
	h.WithSync = true
	if got := h.Len(false); got != 2 {
		t.Errorf("Len(false) with with_sync = %d, want 2", got)
	}
}

func TestCheckHeaderOnlyTagMismatch(t *testing.T) {
	cfg := DefaultConfig()
	h := Header{Tag: cfg.HeaderByte&0x07 ^ 0x01}
	if err := checkHeaderOnly(h, cfg, knownState{}); err == nil {
		t.Fatal("expected tag mismatch error")
	}
}

func TestCheckHeaderOnlyKnownFieldMismatch(t *testing.T) {
	cfg := DefaultConfig()
	tag := cfg.HeaderByte & 0x07
	h := Header{Tag: tag, WithSync: false, NTxMax: 2}

	ks := knownState{syncKnown: true, withSync: true}
	if err := checkHeaderOnly(h, cfg, ks); err == nil {
		t.Fatal("expected with_sync mismatch error")
	}

	ks = knownState{nTxMaxKnown: true, nTxMax: 3}
	if err := checkHeaderOnly(h, cfg, ks); err == nil {
		t.Fatal("expected n_tx_max mismatch error")
	}

	ks = knownState{}
	if err := checkHeaderOnly(h, cfg, ks); err != nil {
		t.Fatalf("unknown fields should not be checked: %v", err)
	}
}

func TestCheckFullPayloadLenMismatch(t *testing.T) {
	cfg := DefaultConfig()
	tag := cfg.HeaderByte & 0x07
	h := Header{Tag: tag, WithSync: false, NTxMax: 0}
	ks := knownState{lenKnown: true, payloadLen: 5}

	// header is 1 byte (no sync, no AlwaysRelayCnt); payload claims 6 bytes.
	if err := checkFull(h, 1+6, cfg, ks); err == nil {
		t.Fatal("expected payload length mismatch error")
	}
	if err := checkFull(h, 1+5, cfg, ks); err != nil {
		t.Fatalf("matching payload length should pass: %v", err)
	}
}

func TestCheckFullMaxPacketLen(t *testing.T) {
	cfg := DefaultConfig()
	tag := cfg.HeaderByte & 0x07
	h := Header{Tag: tag}
	if err := checkFull(h, cfg.MaxPacketLen+1, cfg, knownState{}); err == nil {
		t.Fatal("expected MaxPacketLen rejection")
	}
}
