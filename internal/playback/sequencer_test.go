package playback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/seminarlabs/seminar-core/internal/synth"
)

type scriptedSynth struct {
	mu       sync.Mutex
	requests []synth.SynthRequest
	failFor  map[string]bool
}

func (s *scriptedSynth) Synthesize(ctx context.Context, req synth.SynthRequest) (<-chan synth.SynthChunk, <-chan error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	fail := s.failFor[req.SessionID]
	s.mu.Unlock()

	chunks := make(chan synth.SynthChunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
			return
		case <-time.After(5 * time.Millisecond):
		}
		if fail {
			errs <- errors.New("voice backend unavailable")
			return
		}
		chunks <- synth.SynthChunk{SessionID: req.SessionID, Final: true}
	}()
	return chunks, errs
}

func (s *scriptedSynth) sessionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	for i, r := range s.requests {
		out[i] = r.SessionID
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitIdle(t *testing.T, seq *Sequencer) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if seq.Playing() == "" {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("sequencer never went idle, still playing %s", seq.Playing())
}

func TestSequencerAdvancesThroughBacklog(t *testing.T) {
	syn := &scriptedSynth{}
	seq := NewSequencer(context.Background(), syn, nil, testLogger())
	defer seq.Close()

	seq.OnArrival(human("h1"))
	seq.OnArrival(teacher("t1"))
	seq.OnArrival(student("s1"))
	seq.OnArrival(teacher("t2"))

	waitIdle(t, seq)
	got := syn.sessionIDs()
	want := []string{"t1", "s1", "t2"}
	if len(got) != len(want) {
		t.Fatalf("synthesized %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("synthesized %v, want %v", got, want)
		}
	}
}

func TestSequencerTreatsSynthFailureAsEnded(t *testing.T) {
	syn := &scriptedSynth{failFor: map[string]bool{"t1": true}}
	seq := NewSequencer(context.Background(), syn, nil, testLogger())
	defer seq.Close()

	seq.OnArrival(teacher("t1"))
	seq.OnArrival(student("s1"))

	waitIdle(t, seq)
	got := syn.sessionIDs()
	if len(got) != 2 || got[1] != "s1" {
		t.Fatalf("expected failed t1 then s1, got %v", got)
	}
}

func TestSequencerUsesRoleVoiceSettings(t *testing.T) {
	syn := &scriptedSynth{}
	seq := NewSequencer(context.Background(), syn, nil, testLogger())
	defer seq.Close()

	seq.OnArrival(teacher("t1"))
	waitIdle(t, seq)
	seq.OnArrival(student("s1"))
	waitIdle(t, seq)

	syn.mu.Lock()
	defer syn.mu.Unlock()
	if len(syn.requests) != 2 {
		t.Fatalf("expected 2 synth requests, got %d", len(syn.requests))
	}
	if syn.requests[0].Settings.Stability != 0.70 {
		t.Fatalf("teacher settings not applied: %+v", syn.requests[0].Settings)
	}
	if syn.requests[1].Settings.Style != 0.40 {
		t.Fatalf("student settings not applied: %+v", syn.requests[1].Settings)
	}
	if syn.requests[0].Voice != "atlas" || syn.requests[1].Voice != "briar" {
		t.Fatalf("voices not forwarded: %v", syn.sessionIDs())
	}
}

func TestSequencerResetStopsPlayback(t *testing.T) {
	syn := &scriptedSynth{failFor: map[string]bool{}}
	seq := NewSequencer(context.Background(), syn, nil, testLogger())
	defer seq.Close()

	seq.OnArrival(teacher("t1"))
	seq.Reset()
	if got := seq.Playing(); got != "" {
		t.Fatalf("still playing %s after reset", got)
	}

	seq.OnArrival(teacher("n1"))
	waitIdle(t, seq)
	ids := syn.sessionIDs()
	if ids[len(ids)-1] != "n1" {
		t.Fatalf("new chapter item not played: %v", ids)
	}
}
