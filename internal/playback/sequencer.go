package playback

import (
	"context"
	"log/slog"
	"sync"

	"github.com/seminarlabs/seminar-core/internal/synth"
)

// Sequencer drives the playback state machine against a synthesizer. It
// serializes all transitions, so the machine's mutual exclusion invariant
// holds under concurrent arrivals, and it treats synthesis failure for
// the playing item as playback-ended so the queue never wedges.
type Sequencer struct {
	syn  synth.Synthesizer
	emit func(synth.SynthChunk)
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	machine *Machine
	// cancels the synthesis call of the currently playing item
	stop context.CancelFunc
}

// NewSequencer builds a sequencer. emit receives audio chunks as they
// arrive and may be nil.
func NewSequencer(parent context.Context, syn synth.Synthesizer, emit func(synth.SynthChunk), log *slog.Logger) *Sequencer {
	ctx, cancel := context.WithCancel(parent)
	if emit == nil {
		emit = func(synth.SynthChunk) {}
	}
	return &Sequencer{
		syn:     syn,
		emit:    emit,
		log:     log.With(slog.String("component", "playback")),
		ctx:     ctx,
		cancel:  cancel,
		machine: NewMachine(),
	}
}

// OnArrival feeds one arrived message into the sequencer.
func (s *Sequencer) OnArrival(it Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next, ok := s.machine.OnArrival(it); ok {
		s.play(next)
	}
}

// SetAudioEnabled toggles audio. Disabling stops the current item;
// enabling never replays the accumulated backlog.
func (s *Sequencer) SetAudioEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enabled {
		s.machine.OnAudioEnabled()
		return
	}
	if _, stopped := s.machine.OnAudioDisabled(); stopped {
		s.stopCurrent()
	}
}

// Reset hard-resets sequencing state, as on a chapter or mode change.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, stopped := s.machine.Reset(); stopped {
		s.stopCurrent()
	}
}

// Playing reports the id of the item currently being spoken, or "".
func (s *Sequencer) Playing() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Playing()
}

// Close stops playback and waits for in-flight synthesis to unwind.
func (s *Sequencer) Close() {
	s.cancel()
	s.wg.Wait()
}

// play begins synthesis for the item. Caller holds s.mu.
func (s *Sequencer) play(it Item) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.stop = cancel

	req := synth.SynthRequest{
		SessionID: it.ID,
		Text:      it.Body,
		Voice:     it.Voice,
		Settings:  synth.SettingsForRole(it.Role),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		chunks, errs := s.syn.Synthesize(ctx, req)
		for chunk := range chunks {
			s.emit(chunk)
		}
		if err := <-errs; err != nil {
			// a failed or cancelled synthesis still counts as finished
			s.log.Warn("synthesis failed",
				slog.String("message", it.ID),
				slog.String("error", err.Error()))
		}
		s.finished(it.ID)
	}()
}

func (s *Sequencer) finished(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next, ok := s.machine.OnPlaybackEnd(id); ok {
		s.play(next)
	}
}

// stopCurrent cancels the active synthesis call. Caller holds s.mu; the
// machine has already cleared its playing id, so the late end event from
// the cancelled call is ignored.
func (s *Sequencer) stopCurrent() {
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
}
