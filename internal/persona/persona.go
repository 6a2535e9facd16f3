package persona

import (
	"fmt"

	"github.com/google/uuid"
)

// Role classifies a synthetic participant.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// ParseRole validates a wire or config role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleTeacher, RoleStudent:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown persona role %q", s)
	}
}

// Persona is a sealed variant: every participant is either the Human
// learner or a Synthetic teacher/student. A human never carries a voice
// reference, a synthetic always does.
type Persona interface {
	ID() string
	DisplayName() string
	sealed()
}

// Human is the single real participant of a discussion.
type Human struct {
	PersonaID string
	Identity  string
	Name      string
}

func (h Human) ID() string          { return h.PersonaID }
func (h Human) DisplayName() string { return h.Name }
func (Human) sealed()               {}

// Synthetic is an AI-driven participant with an assigned voice.
type Synthetic struct {
	PersonaID string
	Name      string
	Role      Role
	Voice     string
}

func (s Synthetic) ID() string          { return s.PersonaID }
func (s Synthetic) DisplayName() string { return s.Name }
func (Synthetic) sealed()               {}

// NewHuman mints a human persona with a fresh id.
func NewHuman(identity, name string) Human {
	return Human{PersonaID: uuid.NewString(), Identity: identity, Name: name}
}

// NewSynthetic mints a synthetic persona with a fresh id.
func NewSynthetic(name string, role Role, voice string) Synthetic {
	return Synthetic{PersonaID: uuid.NewString(), Name: name, Role: role, Voice: voice}
}

// IsHuman reports whether p is the human variant.
func IsHuman(p Persona) bool {
	_, ok := p.(Human)
	return ok
}
