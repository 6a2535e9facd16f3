package generator

import (
	"context"

	"github.com/seminarlabs/seminar-core/internal/persona"
	"github.com/seminarlabs/seminar-core/internal/queue"
)

// HistoryEntry is one already-dispatched or abandoned message handed to the
// model for context continuity.
type HistoryEntry struct {
	PersonaRef string
	Body       string
}

// Request carries everything the content generator needs for one batch.
// UserMessage is nil for the opening batch of a fresh discussion.
type Request struct {
	ChapterTitle string
	ChapterBody  string
	Roster       *persona.Roster
	History      []HistoryEntry
	Backlog      []HistoryEntry
	UserMessage  *HistoryEntry
	MaxDrafts    int
	MaxTokens    int
	Temperature  float64
}

// Generator is a pluggable backend turning one request into raw model text
// in the ##MESSAGE## framing. It may fail; retries live in the Adapter.
type Generator interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// rawDraft is a parsed model message before roster checks.
type rawDraft struct {
	personaRef string
	body       string
}

func toDrafts(raw []rawDraft) []queue.Draft {
	out := make([]queue.Draft, 0, len(raw))
	for _, r := range raw {
		out = append(out, queue.Draft{PersonaRef: r.personaRef, Body: r.body})
	}
	return out
}
