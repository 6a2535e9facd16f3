package client

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/seminarlabs/seminar-core/internal/persona"
	"github.com/seminarlabs/seminar-core/internal/playback"
	"github.com/seminarlabs/seminar-core/internal/protocol"
)

// Status is the client's view of the transport connection.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is one client's membership in a discussion channel: it receives
// broadcasts, forwards human messages, rides out disconnects with an
// outbox, and feeds eligible messages to the playback sequencer.
type Session struct {
	conn      *nats.Conn
	channel   string
	humanID   string
	humanName string
	log       *slog.Logger

	onMessage func(protocol.Message)
	sequencer *playback.Sequencer

	outbox *Outbox
	echoes *echoMatcher

	mu     sync.Mutex
	status Status
	sub    *nats.Subscription
}

// NewSession builds a session for one channel. onMessage receives every
// newly rendered message (the optimistic local echo included, duplicates
// absorbed); sequencer may be nil when audio is off entirely.
func NewSession(conn *nats.Conn, channel, humanID, humanName string, onMessage func(protocol.Message), sequencer *playback.Sequencer, log *slog.Logger) *Session {
	if onMessage == nil {
		onMessage = func(protocol.Message) {}
	}
	return &Session{
		conn:      conn,
		channel:   channel,
		humanID:   humanID,
		humanName: humanName,
		log:       log.With(slog.String("component", "client"), slog.String("channel", channel)),
		onMessage: onMessage,
		sequencer: sequencer,
		outbox:    NewOutbox(),
		echoes:    newEchoMatcher(),
		status:    StatusConnecting,
	}
}

// Join subscribes to the channel's broadcast subject.
func (s *Session) Join() error {
	sub, err := s.conn.Subscribe(protocol.MessageSubject(s.channel), s.handleBroadcast)
	if err != nil {
		return fmt.Errorf("join channel %s: %w", s.channel, err)
	}
	s.mu.Lock()
	s.sub = sub
	s.status = StatusConnected
	s.mu.Unlock()
	return nil
}

// Leave drops the channel subscription.
func (s *Session) Leave() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		_ = sub.Drain()
	}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Send delivers a human message, or queues it while disconnected. The
// local echo is rendered immediately either way.
func (s *Session) Send(body string) error {
	s.echoes.expect(s.humanID, body)
	s.onMessage(protocol.Message{
		Channel:   s.channel,
		Persona:   protocol.PersonaInfo{ID: s.humanID, Name: s.humanName, Kind: protocol.PersonaKindHuman},
		Body:      body,
		CreatedAt: time.Now().UTC(),
	})

	s.mu.Lock()
	offline := s.status != StatusConnected
	s.mu.Unlock()
	if offline {
		s.outbox.Enqueue(body)
		return nil
	}
	return s.publish(body)
}

// Pending reports how many messages await a reconnect flush.
func (s *Session) Pending() int {
	return s.outbox.Len()
}

// OnDisconnected marks the transport as down. Wire it into the NATS
// connection's disconnect handler.
func (s *Session) OnDisconnected(err error) {
	s.mu.Lock()
	s.status = StatusDisconnected
	s.mu.Unlock()
	if err != nil {
		s.log.Warn("transport disconnected", slog.String("error", err.Error()))
	}
}

// OnReconnected marks the transport as up and flushes the outbox in
// authoring order.
func (s *Session) OnReconnected() {
	s.mu.Lock()
	s.status = StatusConnected
	s.mu.Unlock()

	if err := s.outbox.Flush(s.publish); err != nil {
		s.log.Warn("outbox flush interrupted", slog.String("error", err.Error()))
	}
}

func (s *Session) publish(body string) error {
	payload := protocol.UserMessage{Channel: s.channel, Body: body, Timestamp: time.Now().UTC()}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode user message: %w", err)
	}
	if err := s.conn.Publish(protocol.SubjectUserMessage, data); err != nil {
		return fmt.Errorf("publish user message: %w", err)
	}
	return nil
}

func (s *Session) handleBroadcast(m *nats.Msg) {
	var evt protocol.MessageEvent
	if err := json.Unmarshal(m.Data, &evt); err != nil {
		s.log.Warn("failed to decode broadcast", slog.String("error", err.Error()))
		return
	}
	s.Deliver(evt.Message)
}

// Deliver processes one broadcast message: duplicates of the local echo
// are absorbed, everything else is rendered and offered to the sequencer.
func (s *Session) Deliver(msg protocol.Message) {
	if msg.Persona.ID == s.humanID && s.echoes.match(msg.Persona.ID, msg.Body) {
		return
	}
	s.onMessage(msg)
	if s.sequencer != nil {
		s.sequencer.OnArrival(itemFrom(msg))
	}
}

func itemFrom(msg protocol.Message) playback.Item {
	role, _ := persona.ParseRole(msg.Persona.Role)
	return playback.Item{
		ID:    msg.ID,
		Voice: msg.Persona.Voice,
		Role:  role,
		Human: msg.Persona.Kind == protocol.PersonaKindHuman,
		Body:  msg.Body,
		Name:  msg.Persona.Name,
	}
}
