package queue

import "sync"

// Draft is an unpersisted message skeleton awaiting dispatch or discard.
type Draft struct {
	PersonaRef string
	Body       string
}

// Manager owns the per-channel FIFO queues of pending drafts. State is
// ephemeral: entries appear on install and vanish when a channel drains or
// is cleared, so idle channels cost nothing. All mutation is a whole-entry
// replace or remove under one lock; readers never observe a partial queue.
type Manager struct {
	mu       sync.Mutex
	channels map[string][]Draft
}

func NewManager() *Manager {
	return &Manager{channels: make(map[string][]Draft)}
}

// Install replaces the channel's queue wholesale with the given batch. An
// empty batch removes the entry.
func (m *Manager) Install(channel string, drafts []Draft) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(drafts) == 0 {
		delete(m.channels, channel)
		return
	}
	m.channels[channel] = append([]Draft(nil), drafts...)
}

// Clear removes the channel's queue and returns the abandoned backlog in
// FIFO order.
func (m *Manager) Clear(channel string) []Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	backlog := m.channels[channel]
	delete(m.channels, channel)
	return backlog
}

// TakeNext removes and returns the oldest draft. Draining the last draft
// removes the channel entry.
func (m *Manager) TakeNext(channel string) (Draft, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := m.channels[channel]
	if len(pending) == 0 {
		delete(m.channels, channel)
		return Draft{}, false
	}
	next := pending[0]
	if len(pending) == 1 {
		delete(m.channels, channel)
	} else {
		m.channels[channel] = pending[1:]
	}
	return next, true
}

// IsEmpty reports whether the channel has no pending drafts.
func (m *Manager) IsEmpty(channel string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels[channel]) == 0
}

// Len returns the number of pending drafts for a channel.
func (m *Manager) Len(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels[channel])
}

// Channels returns a snapshot of channels with pending drafts.
func (m *Manager) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.channels))
	for ch := range m.channels {
		out = append(out, ch)
	}
	return out
}
