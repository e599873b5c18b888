package glossy

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config holds the per-deployment constants a Glossy node needs. Unlike
// the C/TinyOS sources Glossy is modeled on, they are plain struct fields
// here rather than preprocessor defines, so a deployment can load a
// per-hardware-revision Config from disk (see LoadConfig) instead of
// recompiling the protocol engine.
type Config struct {
	// PayloadLen is the maximum payload length in bytes for this
	// deployment; cmd/glossynode sizes its receive buffer from it. Start
	// and RXEnded do not check payloads against it: only MaxPacketLen is
	// enforced.
	PayloadLen int

	// HeaderByte is the deployment-wide 3-bit common-header tag occupying
	// bits [7:5] of header byte 0. Only the low 3 bits are significant.
	HeaderByte byte

	// SetupTimeWithSync is a busy-wait duration in microseconds for an
	// initiator's first TX. Start does not read it: the initiator starts
	// transmitting without any setup wait.
	SetupTimeWithSync int

	// AlwaysRelayCnt, when true, causes relay_cnt to be sent even when
	// with_sync is false.
	AlwaysRelayCnt bool

	// RetransmissionTimeout enables the initiator's retransmission
	// fallback for floods that never hear an echo.
	RetransmissionTimeout bool

	// CollectStats enables the statistics collector.
	CollectStats bool

	// TAU1 and T2R are radio-timing constants expressed directly in
	// high-frequency ticks (see DESIGN.md "TAU1/T2R unit" for why these
	// two are ticks while TTxByteNs/TTxOffsetNs below are nanoseconds).
	TAU1 Tick
	T2R  Tick

	// TTxByteNs is the per-byte on-air transmission time, in nanoseconds.
	TTxByteNs int64
	// TTxOffsetNs is the fixed per-packet TX overhead, in nanoseconds.
	TTxOffsetNs int64

	// HFTicksPerSecond is the frequency of the high-resolution timer used
	// for t_ref/T_slot arithmetic, used to convert TTxByteNs/TTxOffsetNs
	// into ticks.
	HFTicksPerSecond int64

	// LFTicksPerSecond is the frequency of the low-frequency clock
	// get_t_ref_lf() scales t_ref into.
	LFTicksPerSecond int64

	// SlotTimeoutMin and SlotTimeoutMax describe a range for the
	// retransmission-timeout slot count. Both default to 2, and neither is
	// read: the timeout always uses the fixed SlotTimeout constant, with
	// no randomization between them.
	SlotTimeoutMin int
	SlotTimeoutMax int

	// TSlotTolerance is the +/- tick window within which a measured
	// T_slot is accepted.
	TSlotTolerance Tick

	// MaxPacketLen bounds the total wire frame (header + payload); frames
	// that claim to exceed it are rejected even if the radio's own length
	// signalling or CRC already seemed to accept them.
	MaxPacketLen int
}

// DefaultConfig returns the configuration the original Glossy deployment
// constants describe: a single-byte common header tag, sync+relay_cnt
// carried together, a retransmission timeout of 2 slot lengths, and timing
// constants typical of a sub-GHz radio at a few hundred kbps.
func DefaultConfig() *Config {
	return &Config{
		PayloadLen:            64,
		HeaderByte:            0x02,
		SetupTimeWithSync:     2000,
		AlwaysRelayCnt:        false,
		RetransmissionTimeout: true,
		CollectStats:          true,
		TAU1:                  50,
		T2R:                   250,
		TTxByteNs:             32000,
		TTxOffsetNs:           150000,
		HFTicksPerSecond:      4000000,
		LFTicksPerSecond:      32768,
		SlotTimeoutMin:        SlotTimeout,
		SlotTimeoutMax:        SlotTimeout,
		TSlotTolerance:        10,
		MaxPacketLen:          127,
	}
}

// LoadConfig decodes a TOML file into a Config, starting from
// DefaultConfig so a deployment file only needs to override what differs
// from the defaults. Grounded on tve-devices/cmd/mqttradio's
// toml.DecodeFile(cfgFile, &config) config-loading shape.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("glossy: loading config %q: %w", path, err)
	}
	return cfg, nil
}

// nsToTicks converts a nanosecond duration to high-frequency ticks using
// the configured HFTicksPerSecond.
func (c *Config) nsToTicks(ns int64) Tick {
	return Tick(ns * c.HFTicksPerSecond / 1e9)
}

// tTxTicks returns T_TX(pktLen), the on-air transmission time for a frame
// of pktLen bytes, in high-frequency ticks:
// T_TX(len) = T_TX_BYTE * (len + 3) + T_TX_OFFSET.
func (c *Config) tTxTicks(pktLen int) Tick {
	ns := c.TTxByteNs*int64(pktLen+3) + c.TTxOffsetNs
	return c.nsToTicks(ns)
}
