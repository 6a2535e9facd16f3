package protocol

import (
	"time"

	"github.com/seminarlabs/seminar-core/internal/persona"
)

// Subjects used on the bus. A discussion channel is addressed by its own
// id; clients join a discussion by subscribing to its message subject.
const (
	// SubjectStartDiscussion is a request/reply subject: the client asks for
	// a discussion on a chapter and receives the channel id (idempotent).
	SubjectStartDiscussion = "seminar.discussion.start"
	// SubjectUserMessage carries human interruptions; the channel id is in
	// the payload.
	SubjectUserMessage = "seminar.discussion.user"
)

// MessageSubject is the per-channel broadcast subject for persisted messages.
func MessageSubject(channel string) string {
	return "seminar.discussion." + channel + ".messages"
}

const (
	PersonaKindHuman     = "human"
	PersonaKindSynthetic = "synthetic"
)

// PersonaInfo is the flat wire form of a roster member.
type PersonaInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Role  string `json:"role,omitempty"`
	Voice string `json:"voice,omitempty"`
}

// PersonaInfoFrom flattens a persona variant for transport.
func PersonaInfoFrom(p persona.Persona) PersonaInfo {
	switch v := p.(type) {
	case persona.Human:
		return PersonaInfo{ID: v.PersonaID, Name: v.Name, Kind: PersonaKindHuman}
	case persona.Synthetic:
		return PersonaInfo{
			ID:    v.PersonaID,
			Name:  v.Name,
			Kind:  PersonaKindSynthetic,
			Role:  string(v.Role),
			Voice: v.Voice,
		}
	default:
		return PersonaInfo{}
	}
}

// Message is one persisted discussion entry broadcast to channel subscribers.
type Message struct {
	ID        string      `json:"id"`
	Channel   string      `json:"channel"`
	Seq       int64       `json:"seq"`
	Persona   PersonaInfo `json:"persona"`
	Body      string      `json:"body"`
	CreatedAt time.Time   `json:"created_at"`
}

// MessageEvent is the server-to-client broadcast envelope.
type MessageEvent struct {
	Channel string  `json:"channel"`
	Message Message `json:"message"`
}

// StartDiscussionRequest asks for the discussion belonging to a chapter,
// creating it on first request. User identity comes from the (external)
// auth layer; it only seeds the human persona on first creation.
type StartDiscussionRequest struct {
	DocID     string `json:"doc_id"`
	ChapterID string `json:"chapter_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
}

// StartDiscussionReply reports the channel to join, or an error. TimedOut
// marks the 15s user-facing abandonment: the discussion exists and content
// may still arrive later.
type StartDiscussionReply struct {
	Channel  string        `json:"channel,omitempty"`
	Roster   []PersonaInfo `json:"roster,omitempty"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// UserMessage is a human interruption for a discussion channel. Delivery is
// at-least-once; the sender reconciles its optimistic local echo against
// the broadcast by author + body comparison.
type UserMessage struct {
	Channel   string    `json:"channel"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}
