package synth

import (
	"fmt"

	"github.com/seminarlabs/seminar-core/internal/config"
)

// FromConfig builds the configured synthesis backend.
func FromConfig(cfg config.SynthConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSynth(cfg.SampleRate, cfg.Channels), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
	default:
		return nil, fmt.Errorf("unknown synth mode %q", cfg.Mode)
	}
}
