package glossy

import (
	"sync"
	"time"
)

// SystemTimer is a deployment-agnostic software implementation of Timer,
// built on time.Timer for scheduling and time.Now for the high-frequency
// clock. A hardware platform timer peripheral has no universal Go
// equivalent, so this stands in for it in cmd/glossynode (the package
// tests use their own mockTimer instead). The low-frequency clock it reports is a fixed-ratio
// derivation of the same monotonic source, scaled by
// Config.LFTicksPerSecond, rather than a second independent oscillator
// (grounded on sx1231.go's time.Now()-based timeout bookkeeping, which
// measures elapsed time off a single monotonic reference throughout).
type SystemTimer struct {
	cfg   *Config
	start time.Time

	mu       sync.Mutex
	timers   map[TimerID]*time.Timer
	disabled bool
}

// NewSystemTimer constructs a SystemTimer whose epoch is the moment of
// construction; HF/LF tick conversions use cfg.HFTicksPerSecond and
// cfg.LFTicksPerSecond.
func NewSystemTimer(cfg *Config) *SystemTimer {
	return &SystemTimer{
		cfg:    cfg,
		start:  time.Now(),
		timers: make(map[TimerID]*time.Timer),
	}
}

// NowHF returns elapsed time since construction in high-frequency ticks.
func (t *SystemTimer) NowHF() Tick {
	return Tick(time.Since(t.start).Nanoseconds() * t.cfg.HFTicksPerSecond / 1e9)
}

// NowLF returns elapsed time since construction in low-frequency ticks.
func (t *SystemTimer) NowLF() Tick {
	return Tick(time.Since(t.start).Nanoseconds() * t.cfg.LFTicksPerSecond / 1e9)
}

// Now returns a simultaneous HF/LF snapshot, both derived from the same
// time.Since call so they never drift relative to one another (unlike
// NowHF/NowLF called separately).
func (t *SystemTimer) Now() (hf, lf Tick) {
	elapsed := time.Since(t.start).Nanoseconds()
	return Tick(elapsed * t.cfg.HFTicksPerSecond / 1e9), Tick(elapsed * t.cfg.LFTicksPerSecond / 1e9)
}

// Schedule arms a one-shot callback at HF tick `when`, replacing any
// previously scheduled timer under the same id. A `when` at or before
// NowHF fires as soon as possible.
func (t *SystemTimer) Schedule(id TimerID, when Tick, cb func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.timers[id]; ok {
		existing.Stop()
	}

	d := time.Duration(int64(when-t.NowHF()) * 1e9 / t.cfg.HFTicksPerSecond)
	if d < 0 {
		d = 0
	}
	t.timers[id] = time.AfterFunc(d, cb)
}

// Stop cancels a previously scheduled timer. A no-op if id was never
// scheduled or already fired.
func (t *SystemTimer) Stop(id TimerID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.timers[id]; ok {
		existing.Stop()
		delete(t.timers, id)
	}
}

// DisableUpdate and EnableUpdate are no-ops on SystemTimer: the hazard
// they guard against on real hardware is a free-running counter update
// interrupt colliding with a timestamp capture, which does not exist for
// a software clock backed by time.Since. They are implemented to
// satisfy the Timer interface and kept so Flood's lock/unlock pairing
// stays identical across backends.
func (t *SystemTimer) DisableUpdate() {}

// EnableUpdate is the counterpart of DisableUpdate; see its doc comment.
func (t *SystemTimer) EnableUpdate() {}

var _ Timer = (*SystemTimer)(nil)
