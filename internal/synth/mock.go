package synth

import (
	"context"
	"time"
)

type mockSynth struct {
	sampleRate int
	channels   int
	delay      time.Duration
}

// NewMockSynth returns a synthesizer that emits one silent final chunk
// after a short delay, enough to drive playback sequencing without audio
// hardware.
func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels, delay: 50 * time.Millisecond}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
			return
		case <-time.After(m.delay):
		}
		chunks <- SynthChunk{
			SessionID:  req.SessionID,
			Sequence:   0,
			SampleRate: m.sampleRate,
			Channels:   m.channels,
			PCM:        []byte{},
			Final:      true,
		}
	}()
	return chunks, errs
}
