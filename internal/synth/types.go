package synth

import (
	"context"

	"github.com/seminarlabs/seminar-core/internal/persona"
)

// VoiceSettings tune the expressiveness of a synthesized voice.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"speaker_boost"`
}

// SettingsForRole returns the voice tuning for a synthetic role. Teachers
// speak steadier and with less stylistic variance than students.
func SettingsForRole(role persona.Role) VoiceSettings {
	if role == persona.RoleTeacher {
		return VoiceSettings{
			Stability:       0.70,
			SimilarityBoost: 0.80,
			Style:           0.20,
			SpeakerBoost:    true,
		}
	}
	return VoiceSettings{
		Stability:       0.60,
		SimilarityBoost: 0.70,
		Style:           0.40,
		SpeakerBoost:    true,
	}
}

// SynthRequest contains parameters to synthesize one message body.
type SynthRequest struct {
	SessionID string
	Text      string
	Voice     string
	Settings  VoiceSettings
}

// SynthChunk contains PCM data.
type SynthChunk struct {
	SessionID  string
	Sequence   int
	SampleRate int
	Channels   int
	PCM        []byte
	Final      bool
}

// Synthesizer is the contract for producing audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error)
}
