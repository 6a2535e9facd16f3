package playback

import (
	"testing"

	"github.com/seminarlabs/seminar-core/internal/persona"
)

func human(id string) Item {
	return Item{ID: id, Human: true, Name: "Ada"}
}

func teacher(id string) Item {
	return Item{ID: id, Voice: "atlas", Role: persona.RoleTeacher, Name: "Quinn"}
}

func student(id string) Item {
	return Item{ID: id, Voice: "briar", Role: persona.RoleStudent, Name: "Milo"}
}

// Arrival order [Human, Teacher, Student, Teacher]: the sequencer plays
// the three synthetic messages in order and never touches the human one.
func TestPlaysSyntheticsInArrivalOrder(t *testing.T) {
	m := NewMachine()

	if _, ok := m.OnArrival(human("h1")); ok {
		t.Fatal("human message must never start playback")
	}
	next, ok := m.OnArrival(teacher("t1"))
	if !ok || next.ID != "t1" {
		t.Fatalf("expected t1 to start, got %v %v", next, ok)
	}
	if _, ok := m.OnArrival(student("s1")); ok {
		t.Fatal("s1 must wait while t1 plays")
	}
	if _, ok := m.OnArrival(teacher("t2")); ok {
		t.Fatal("t2 must wait while t1 plays")
	}

	next, ok = m.OnPlaybackEnd("t1")
	if !ok || next.ID != "s1" {
		t.Fatalf("expected s1 after t1, got %v %v", next, ok)
	}
	next, ok = m.OnPlaybackEnd("s1")
	if !ok || next.ID != "t2" {
		t.Fatalf("expected t2 after s1, got %v %v", next, ok)
	}
	if _, ok = m.OnPlaybackEnd("t2"); ok {
		t.Fatal("nothing should follow t2")
	}
	if !m.Idle() {
		t.Fatal("machine should be idle after draining")
	}
}

func TestAtMostOnePlaying(t *testing.T) {
	m := NewMachine()
	m.OnArrival(teacher("t1"))
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		if _, ok := m.OnArrival(teacher(id)); ok {
			t.Fatalf("arrival %s started playback while t1 active", id)
		}
		if m.Playing() != "t1" {
			t.Fatalf("playing changed to %s mid-playback", m.Playing())
		}
	}
}

// Chapter change mid-playback: hard reset clears all sequencing state and
// the stale end event for the stopped item is a no-op afterwards.
func TestResetDuringPlayback(t *testing.T) {
	m := NewMachine()
	m.OnArrival(teacher("t1"))
	m.OnArrival(student("s1"))

	stopped, ok := m.Reset()
	if !ok || stopped != "t1" {
		t.Fatalf("expected reset to stop t1, got %q %v", stopped, ok)
	}
	if !m.Idle() || m.LastCompleted() != "" {
		t.Fatalf("reset left state behind: playing=%q lastCompleted=%q", m.Playing(), m.LastCompleted())
	}

	// arrivals for the new chapter
	next, okStart := m.OnArrival(teacher("n1"))
	if !okStart || next.ID != "n1" {
		t.Fatalf("expected n1 to start after reset, got %v %v", next, okStart)
	}

	// late end event from the old chapter's playback must not advance
	if _, okEnd := m.OnPlaybackEnd("t1"); okEnd {
		t.Fatal("stale playback end triggered an advance")
	}
	if m.Playing() != "n1" {
		t.Fatalf("stale end disturbed playback: playing=%q", m.Playing())
	}
}

func TestAudioDisableStopsAndReenableSkipsBacklog(t *testing.T) {
	m := NewMachine()
	m.OnArrival(teacher("t1"))

	stopped, ok := m.OnAudioDisabled()
	if !ok || stopped != "t1" {
		t.Fatalf("expected disable to stop t1, got %q %v", stopped, ok)
	}

	// backlog accumulates silently while audio is off
	if _, ok := m.OnArrival(teacher("t2")); ok {
		t.Fatal("arrival started playback with audio disabled")
	}
	if _, ok := m.OnArrival(student("s1")); ok {
		t.Fatal("arrival started playback with audio disabled")
	}

	m.OnAudioEnabled()
	if !m.Idle() {
		t.Fatal("re-enable must not start backlog playback")
	}

	// only the next new arrival plays
	next, ok := m.OnArrival(teacher("t3"))
	if !ok || next.ID != "t3" {
		t.Fatalf("expected fresh arrival t3 to play, got %v %v", next, ok)
	}
	next, ok = m.OnPlaybackEnd("t3")
	if ok {
		t.Fatalf("backlog item %s replayed after re-enable", next.ID)
	}
}

func TestVoicelessSyntheticSkipped(t *testing.T) {
	m := NewMachine()
	if _, ok := m.OnArrival(Item{ID: "x1", Role: persona.RoleStudent}); ok {
		t.Fatal("synthetic without a voice must not play")
	}
	m.OnArrival(teacher("t1"))
	if m.Playing() != "t1" {
		t.Fatalf("expected t1 playing, got %q", m.Playing())
	}
	if _, ok := m.OnPlaybackEnd("t1"); ok {
		t.Fatal("voiceless item scheduled on advance")
	}
}
