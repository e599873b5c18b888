package glossy

// FloodStats holds the per-flood statistics collector. Fields are only
// meaningful when Config.CollectStats is true; they are zeroed at the
// start of every flood (same lifecycle as Flood itself).
type FloodStats struct {
	LastFloodRelayCnt   byte  // relay count observed on first RX
	LastFloodRSSISum    int   // sum of per-packet RSSI
	LastFloodRSSINoise  int   // RSSI sampled once, early in RX, before any preamble
	LastFloodNRXStarted int   // count of rx_started events this flood
	LastFloodNRXFail    int   // count of failed receptions this flood
	LastFloodDuration   Tick  // wall time from flood start to stop
	LastFloodTToRX      Tick  // ticks from flood start to first successful RX
	rssiNoiseSampled    bool  // internal: LastFloodRSSINoise latched once
}

// LifetimeStats holds the "since-reboot" counters. They persist across
// floods and are only cleared by ResetStats.
type LifetimeStats struct {
	PktCnt          int // packets for which rx_started fired
	PktCntCRCOK     int // packets that passed CRC
	FloodCnt        int // floods with >=1 preamble+sync detection
	FloodCntSuccess int // floods with >=1 CRC-ok reception
	ErrorCnt        int // unexpected radio errors
}

// PacketErrorRate returns the packet-error rate in units of 0.01%
// (per = 10000 - pkt_cnt_crcok*10000/pkt_cnt). Returns 0 if no packets
// have been observed yet.
func (s *LifetimeStats) PacketErrorRate() int {
	if s.PktCnt == 0 {
		return 0
	}
	return 10000 - s.PktCntCRCOK*10000/s.PktCnt
}

// FloodSuccessRate returns the flood-success rate in units of 0.01%
// (fsr = flood_cnt_success*10000/flood_cnt). Returns 0 if no floods have
// been observed yet.
func (s *LifetimeStats) FloodSuccessRate() int {
	if s.FloodCnt == 0 {
		return 0
	}
	return s.FloodCntSuccess * 10000 / s.FloodCnt
}

// SNR returns the average per-packet RSSI over a flood minus that
// flood's sampled noise floor (snr = avg_rssi - rssi_noise). avgRSSI is
// LastFloodRSSISum divided by the number of CRC-ok receptions in the
// flood; callers pass that count since FloodStats itself does not track
// it separately from LifetimeStats.PktCntCRCOK.
func (fs *FloodStats) SNR(nRXOK int) int {
	if nRXOK == 0 {
		return 0
	}
	return fs.LastFloodRSSISum/nRXOK - fs.LastFloodRSSINoise
}
