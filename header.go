package glossy

import "fmt"

// Header is the decoded form of the 1- or 2-byte Glossy wire header:
//
//	byte 0: [7:5] common-header tag | [4] with_sync | [3:0] n_tx_max
//	byte 1: relay_cnt, present iff with_sync or AlwaysRelayCnt
type Header struct {
	Tag      byte // 3 bits
	WithSync bool
	NTxMax   byte // 4 bits; 0 means unbounded on the wire
	RelayCnt byte
}

// HasRelayByte reports whether this header carries a relay_cnt byte,
// given the deployment's AlwaysRelayCnt setting.
func (h Header) HasRelayByte(alwaysRelayCnt bool) bool {
	return h.WithSync || alwaysRelayCnt
}

// Len returns the on-wire header length in bytes for this header, given
// the deployment's AlwaysRelayCnt setting.
func (h Header) Len(alwaysRelayCnt bool) int {
	if h.HasRelayByte(alwaysRelayCnt) {
		return 2
	}
	return 1
}

// EncodeHeader serializes h to its wire form.
func EncodeHeader(h Header, alwaysRelayCnt bool) []byte {
	b0 := (h.Tag&0x07)<<5 | (h.NTxMax & 0x0F)
	if h.WithSync {
		b0 |= 1 << 4
	}
	if h.HasRelayByte(alwaysRelayCnt) {
		return []byte{b0, h.RelayCnt}
	}
	return []byte{b0}
}

// DecodeHeader parses the wire header out of buf. alwaysRelayCnt governs
// whether a second (relay_cnt) byte is expected when with_sync is not
// set; buf must contain at least that many bytes.
func DecodeHeader(buf []byte, alwaysRelayCnt bool) (Header, error) {
	if len(buf) < 1 {
		return Header{}, fmt.Errorf("%w: header buffer empty", ErrPkg)
	}
	b0 := buf[0]
	h := Header{
		Tag:      (b0 >> 5) & 0x07,
		WithSync: b0&(1<<4) != 0,
		NTxMax:   b0 & 0x0F,
	}
	if h.HasRelayByte(alwaysRelayCnt) {
		if len(buf) < 2 {
			return Header{}, fmt.Errorf("%w: header buffer too short for relay_cnt", ErrPkg)
		}
		h.RelayCnt = buf[1]
	}
	return h, nil
}

// knownState tracks which header-learned fields a receiver has pinned
// down. A receiver starts with some or all of these unknown and latches
// them from the first validly-received header.
type knownState struct {
	syncKnown   bool
	withSync    bool
	nTxMaxKnown bool
	nTxMax      byte
	lenKnown    bool
	payloadLen  int
}

// checkHeaderOnly applies the three checks available as soon as the
// header bytes are in the FIFO, before the rest of the frame has
// arrived: common-header tag, with_sync flag, and n_tx_max, each only
// enforced against a field the local node already knows.
func checkHeaderOnly(h Header, cfg *Config, ks knownState) error {
	if h.Tag != cfg.HeaderByte&0x07 {
		return fmt.Errorf("%w: common-header tag mismatch: got %d want %d", ErrPkg, h.Tag, cfg.HeaderByte&0x07)
	}
	if ks.syncKnown && h.WithSync != ks.withSync {
		return fmt.Errorf("%w: with_sync mismatch: got %v want %v", ErrPkg, h.WithSync, ks.withSync)
	}
	if ks.nTxMaxKnown && h.NTxMax != ks.nTxMax {
		return fmt.Errorf("%w: n_tx_max mismatch: got %d want %d", ErrPkg, h.NTxMax, ks.nTxMax)
	}
	return nil
}

// checkFull applies the full validation on rx_ended, after CRC has
// passed: everything checkHeaderOnly checks, plus the payload-length
// check against the local, possibly-still-unknown payload length, and
// the absolute MAX_PACKET_LEN ceiling, rechecked here because upstream
// frame-length signalling can be unreliable.
func checkFull(h Header, pktLen int, cfg *Config, ks knownState) error {
	if err := checkHeaderOnly(h, cfg, ks); err != nil {
		return err
	}
	if pktLen > cfg.MaxPacketLen {
		return fmt.Errorf("%w: pkt_len %d exceeds MaxPacketLen %d", ErrPkg, pktLen, cfg.MaxPacketLen)
	}
	hlen := h.Len(cfg.AlwaysRelayCnt)
	payloadLen := pktLen - hlen
	if ks.lenKnown && payloadLen != ks.payloadLen {
		return fmt.Errorf("%w: payload length mismatch: got %d want %d", ErrPkg, payloadLen, ks.payloadLen)
	}
	return nil
}
