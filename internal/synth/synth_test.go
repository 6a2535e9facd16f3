package synth

import (
	"context"
	"testing"

	"github.com/seminarlabs/seminar-core/internal/config"
	"github.com/seminarlabs/seminar-core/internal/persona"
)

func TestSettingsForRole(t *testing.T) {
	teacher := SettingsForRole(persona.RoleTeacher)
	if teacher.Stability != 0.70 || teacher.SimilarityBoost != 0.80 || teacher.Style != 0.20 {
		t.Fatalf("unexpected teacher settings: %+v", teacher)
	}
	student := SettingsForRole(persona.RoleStudent)
	if student.Stability != 0.60 || student.SimilarityBoost != 0.70 || student.Style != 0.40 {
		t.Fatalf("unexpected student settings: %+v", student)
	}
	if !teacher.SpeakerBoost || !student.SpeakerBoost {
		t.Fatal("speaker boost should be on for both roles")
	}
}

func TestMockSynthEmitsFinalChunk(t *testing.T) {
	s := NewMockSynth(22050, 1)
	chunks, errs := s.Synthesize(context.Background(), SynthRequest{SessionID: "d1", Text: "hello", Voice: "atlas"})

	var got []SynthChunk
	for c := range chunks {
		got = append(got, c)
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || !got[0].Final {
		t.Fatalf("expected a single final chunk, got %+v", got)
	}
	if got[0].SampleRate != 22050 || got[0].Channels != 1 {
		t.Fatalf("chunk format mismatch: %+v", got[0])
	}
}

func TestMockSynthCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewMockSynth(22050, 1)
	chunks, errs := s.Synthesize(ctx, SynthRequest{SessionID: "d1", Text: "hello"})
	for range chunks {
	}
	if err := <-errs; err == nil {
		t.Fatal("expected context error")
	}
}

func TestFromConfig(t *testing.T) {
	if _, err := FromConfig(config.SynthConfig{Mode: "mock", SampleRate: 22050, Channels: 1}); err != nil {
		t.Fatalf("mock mode: %v", err)
	}
	if _, err := FromConfig(config.SynthConfig{Mode: "exec", Command: "synth --stream", SampleRate: 22050, Channels: 1}); err != nil {
		t.Fatalf("exec mode: %v", err)
	}
	if _, err := FromConfig(config.SynthConfig{Mode: "tape"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
