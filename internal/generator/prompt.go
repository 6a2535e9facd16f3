package generator

import (
	"fmt"
	"strings"

	"github.com/seminarlabs/seminar-core/internal/persona"
)

// The model speaks the same framing the original classroom service used:
// each message is delimited by ##MESSAGE## markers, the persona line carries
// "id|name", the body sits between ##BODY## markers. Roles presented to the
// model are teacher, ai_student and user; the user role is context only and
// must never author a generated message.

func formatRoster(roster *persona.Roster) string {
	var b strings.Builder
	for _, p := range roster.Members() {
		role := "user"
		if syn, ok := p.(persona.Synthetic); ok {
			role = string(syn.Role)
			if syn.Role == persona.RoleStudent {
				role = "ai_student"
			}
		}
		fmt.Fprintf(&b, "  persona_id: %s\n  persona_name: %s\n  role: %s\n", p.ID(), p.DisplayName(), role)
	}
	return b.String()
}

func formatEntries(roster *persona.Roster, entries []HistoryEntry) string {
	var b strings.Builder
	for _, e := range entries {
		name, role := "unknown", "unknown"
		if p, ok := roster.Resolve(e.PersonaRef); ok {
			name = p.DisplayName()
			role = "user"
			if syn, ok := p.(persona.Synthetic); ok {
				role = string(syn.Role)
			}
		}
		fmt.Fprintf(&b, "  persona_id: %s\n  persona_name: %s\n  role: %s\n  message_body: %s\n", e.PersonaRef, name, role, e.Body)
	}
	return b.String()
}

const framingInstructions = `Your messages must use exactly this format:
##MESSAGE##
##PERSONA##persona_id|persona_name##PERSONA##
##BODY##message_body##BODY##
##MESSAGE##

The persona_id in your response must correspond to a provided persona_id, never to the index of the persona.`

// openingPrompt asks for the initial discussion batch for a chapter.
func openingPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are an AI for generating classroom conversation messages.
You will be provided with a chapter title, chapter content and the personas present in the classroom.
Generate a queue of messages, not more than %d, forming an interactive discussion that simulates a chatroom lecture for the provided chapter.
Roles can be teacher, ai_student or user. Only generate messages for teacher and ai_student personas; the user is referenced for context only and no message may be generated for the user role, nor should questions be directed at the user.

%s

Here is the chapter:
Title - %s

%s

Personas:
%s`, req.MaxDrafts, framingInstructions, req.ChapterTitle, req.ChapterBody, formatRoster(req.Roster))
	return b.String()
}

// extendPrompt asks for a replacement batch after a human interruption,
// carrying the sent history and the abandoned backlog.
func extendPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are an AI assistant managing a simulated classroom chatroom discussion about a chapter.
A new user message has arrived that likely invalidates the previously queued flow. Generate a new queue (maximum of %d messages) that takes the new user message into account while maintaining the context of the previously queued messages.
Only generate messages for teacher and ai_student personas; never generate a message for the user role.

%s

Personas:
%s

Here is the chapter:
Title - %s

%s

Previously sent messages:
%s

Previously queued unsent messages:
%s
`, req.MaxDrafts, framingInstructions, formatRoster(req.Roster), req.ChapterTitle, req.ChapterBody,
		formatEntries(req.Roster, req.History), formatEntries(req.Roster, req.Backlog))

	if req.UserMessage != nil {
		name := "unknown"
		if p, ok := req.Roster.Resolve(req.UserMessage.PersonaRef); ok {
			name = p.DisplayName()
		}
		fmt.Fprintf(&b, `
New user message:
  persona_id: %s
  persona_name: %s
  message_body: %s
`, req.UserMessage.PersonaRef, name, req.UserMessage.Body)
	}
	return b.String()
}

// Prompt renders the request: opening form for a fresh discussion, extend
// form after an interruption.
func Prompt(req Request) string {
	if req.UserMessage == nil && len(req.History) == 0 && len(req.Backlog) == 0 {
		return openingPrompt(req)
	}
	return extendPrompt(req)
}
