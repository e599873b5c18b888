package radionrf24

// Level represents the logical level of a pin (Low or High).
type Level bool

const (
	Low  Level = false
	High Level = true
)

// SPI represents a generic SPI connection.
type SPI interface {
	// Tx sends w and reads into r.
	// len(r) must be >= len(w).
	Tx(w, r []byte) error
}

// Pin represents a generic GPIO pin. CE only ever needs Out/Read; IRQ is the
// NRF24L01's open-drain, active-low interrupt line, so In/Watch fix the pull
// and edge the chip actually drives rather than taking them as parameters.
type Pin interface {
	// Out sets the pin as output with the given level.
	Out(l Level) error
	// In configures the pin as a pulled-up input, ready to sense IRQ.
	In() error
	// Read returns the current level of the pin.
	Read() Level
	// Watch arms handler on the IRQ's falling edge.
	Watch(handler func()) error
	// Unwatch disarms a previously configured Watch.
	Unwatch() error
}