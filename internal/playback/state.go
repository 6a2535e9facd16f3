package playback

import "github.com/seminarlabs/seminar-core/internal/persona"

// Item is one arrived message as the sequencer sees it. Only synthetic
// messages with a voice are eligible for playback.
type Item struct {
	ID    string
	Voice string
	Role  persona.Role
	Human bool
	Body  string
	Name  string
}

func (it Item) eligible() bool {
	return !it.Human && it.Voice != ""
}

// Machine is the pure playback state machine. Exactly zero or one item is
// playing at any time; completed items advance a cursor through the
// arrival order, and eligible items strictly after the cursor auto-play
// when the machine goes idle. Transitions return the item to start next,
// if any; the caller owns actually producing audio.
//
// Machine is not safe for concurrent use; Sequencer serializes access.
type Machine struct {
	arrivals []Item
	playing  string
	// index into arrivals of the last completed item, -1 before any
	cursor       int
	audioEnabled bool
}

func NewMachine() *Machine {
	return &Machine{cursor: -1, audioEnabled: true}
}

func (m *Machine) Playing() string    { return m.playing }
func (m *Machine) Idle() bool         { return m.playing == "" }
func (m *Machine) AudioEnabled() bool { return m.audioEnabled }

// LastCompleted returns the id of the most recently finished item, or ""
func (m *Machine) LastCompleted() string {
	if m.cursor < 0 || m.cursor >= len(m.arrivals) {
		return ""
	}
	return m.arrivals[m.cursor].ID
}

// OnArrival records the item and, when the machine is idle with audio on,
// starts it if eligible.
func (m *Machine) OnArrival(it Item) (Item, bool) {
	m.arrivals = append(m.arrivals, it)
	if !m.audioEnabled || !m.Idle() || !it.eligible() {
		return Item{}, false
	}
	return m.advance()
}

// OnPlaybackEnd completes the given item and scans for the next eligible
// arrival strictly after it. Ends reported for items that are no longer
// playing are ignored; a stop or reset already superseded them.
func (m *Machine) OnPlaybackEnd(id string) (Item, bool) {
	if m.playing != id {
		return Item{}, false
	}
	m.playing = ""
	for i, it := range m.arrivals {
		if it.ID == id {
			m.cursor = i
			break
		}
	}
	if !m.audioEnabled {
		return Item{}, false
	}
	return m.advance()
}

// advance starts the first eligible arrival after the cursor.
func (m *Machine) advance() (Item, bool) {
	for i := m.cursor + 1; i < len(m.arrivals); i++ {
		if m.arrivals[i].eligible() {
			m.playing = m.arrivals[i].ID
			return m.arrivals[i], true
		}
	}
	return Item{}, false
}

// OnAudioDisabled stops any current playback and returns the interrupted
// id, if one was playing.
func (m *Machine) OnAudioDisabled() (string, bool) {
	m.audioEnabled = false
	stopped := m.playing
	m.playing = ""
	return stopped, stopped != ""
}

// OnAudioEnabled turns audio back on. Arrivals accumulated while audio
// was off are never replayed; sequencing resumes with the next arrival.
func (m *Machine) OnAudioEnabled() {
	m.audioEnabled = true
	m.cursor = len(m.arrivals) - 1
}

// Reset discards all sequencing context, as on a chapter or mode change.
// Returns the interrupted id, if one was playing.
func (m *Machine) Reset() (string, bool) {
	stopped := m.playing
	m.playing = ""
	m.arrivals = nil
	m.cursor = -1
	return stopped, stopped != ""
}
