package host

import "time"

// Config holds the timing parameters of the host stack.
// Zero fields take the value from DefaultConfig.
type Config struct {
	// TransferTimeout bounds the wait for one token to complete.
	TransferTimeout time.Duration

	// SettleDelay is the wait between attach detection and bus reset.
	SettleDelay time.Duration

	// ResetRecovery is the wait after bus reset before configuring.
	ResetRecovery time.Duration

	// ConfDescrDelay is the pause between reading the configuration
	// descriptor header and the full descriptor set.
	ConfDescrDelay time.Duration

	// ControlBufferSize is the chunk size used when streaming a
	// configuration descriptor set through a ReadParser.
	ControlBufferSize int
}

// DefaultConfig returns the default timing parameters.
func DefaultConfig() Config {
	return Config{
		TransferTimeout:   5 * time.Second,
		SettleDelay:       200 * time.Millisecond,
		ResetRecovery:     20 * time.Millisecond,
		ConfDescrDelay:    100 * time.Millisecond,
		ControlBufferSize: 64,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TransferTimeout <= 0 {
		c.TransferTimeout = d.TransferTimeout
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = d.SettleDelay
	}
	if c.ResetRecovery <= 0 {
		c.ResetRecovery = d.ResetRecovery
	}
	if c.ConfDescrDelay <= 0 {
		c.ConfDescrDelay = d.ConfDescrDelay
	}
	if c.ControlBufferSize <= 0 {
		c.ControlBufferSize = d.ControlBufferSize
	}
	return c
}

func millis(d time.Duration) uint32 {
	return uint32(d / time.Millisecond)
}
