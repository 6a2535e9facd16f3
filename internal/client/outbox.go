package client

import "sync"

// Outbox holds message bodies authored while the connection is down. Flush
// order equals authoring order; a failed send keeps the remainder queued
// for the next reconnect.
type Outbox struct {
	mu      sync.Mutex
	pending []string
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Enqueue(body string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(o.pending, body)
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Flush sends queued bodies in order. It stops at the first send error and
// retains the failed body and everything after it.
func (o *Outbox) Flush(send func(body string) error) error {
	o.mu.Lock()
	pending := o.pending
	o.pending = nil
	o.mu.Unlock()

	for i, body := range pending {
		if err := send(body); err != nil {
			o.mu.Lock()
			o.pending = append(pending[i:], o.pending...)
			o.mu.Unlock()
			return err
		}
	}
	return nil
}

// echoMatcher tracks optimistic local echoes. Delivery is at-least-once,
// so a message the client already rendered locally may arrive again via
// broadcast; matching by author and body absorbs one duplicate per send.
type echoMatcher struct {
	mu      sync.Mutex
	pending []echoKey
}

type echoKey struct {
	author string
	body   string
}

func newEchoMatcher() *echoMatcher {
	return &echoMatcher{}
}

func (e *echoMatcher) expect(author, body string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, echoKey{author: author, body: body})
}

// match consumes one expected echo if the broadcast corresponds to it.
func (e *echoMatcher) match(author, body string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, k := range e.pending {
		if k.author == author && k.body == body {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return true
		}
	}
	return false
}
