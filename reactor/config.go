// File: reactor/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine tuning knobs.

package reactor

// Config holds engine tuning parameters.
type Config struct {
	MaxEvents     int // events drained per poll cycle
	WaitTimeoutMs int // poll wait bound; -1 blocks until activity
	NotifyBacklog int // consumer notifications drained per cycle
	AppletBudget  int // applet activations per cycle
}

// DefaultConfig returns default configuration values.
// These sane defaults support typical use cases without extensive tuning.
func DefaultConfig() *Config {
	return &Config{
		MaxEvents:     128, // 128 events per poll cycle
		WaitTimeoutMs: 100, // 100 ms wait bound keeps shutdown prompt
		NotifyBacklog: 256, // 256 consumer wakeups per cycle
		AppletBudget:  64,  // 64 applet activations per cycle
	}
}
