package persona

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// Roster is the fixed participant set of one discussion: exactly one human
// plus at least one synthetic. It is immutable after construction.
type Roster struct {
	human      Human
	synthetics []Synthetic
	byID       map[string]Persona
}

func NewRoster(human Human, synthetics []Synthetic) (*Roster, error) {
	if human.PersonaID == "" {
		return nil, errors.New("roster human persona must have an id")
	}
	if len(synthetics) == 0 {
		return nil, errors.New("roster must contain at least one synthetic persona")
	}
	byID := make(map[string]Persona, len(synthetics)+1)
	byID[human.PersonaID] = human
	for _, s := range synthetics {
		if s.PersonaID == "" {
			return nil, errors.New("roster synthetic persona must have an id")
		}
		if s.Voice == "" {
			return nil, fmt.Errorf("synthetic persona %q must have a voice", s.PersonaID)
		}
		if _, err := ParseRole(string(s.Role)); err != nil {
			return nil, err
		}
		if _, dup := byID[s.PersonaID]; dup {
			return nil, fmt.Errorf("duplicate persona id %q in roster", s.PersonaID)
		}
		byID[s.PersonaID] = s
	}
	return &Roster{
		human:      human,
		synthetics: append([]Synthetic(nil), synthetics...),
		byID:       byID,
	}, nil
}

func (r *Roster) Human() Human { return r.human }

func (r *Roster) Synthetics() []Synthetic {
	return append([]Synthetic(nil), r.synthetics...)
}

func (r *Roster) Members() []Persona {
	out := make([]Persona, 0, len(r.synthetics)+1)
	out = append(out, r.human)
	for _, s := range r.synthetics {
		out = append(out, s)
	}
	return out
}

// Resolve looks up a roster member by persona id.
func (r *Roster) Resolve(ref string) (Persona, bool) {
	p, ok := r.byID[ref]
	return p, ok
}

// Display names handed to freshly minted synthetic personas. The original
// catalog came from an external person generator; a built-in pool avoids
// that network dependency.
var namePool = []string{
	"Adaeze Obi", "Bram Kessler", "Carmen Ruiz", "Dayo Adeyemi",
	"Esther Lindqvist", "Farid Nassar", "Greta Holm", "Hiro Tanaka",
	"Imani Walker", "Jonas Petrov", "Kaia Moreno", "Lars Eriksen",
}

// GenerateRoster builds a fresh immutable roster: the given human plus one
// synthetic per requested role, each with a pooled display name and a voice
// drawn from the catalog.
func GenerateRoster(human Human, roles []Role, voiceCatalog []string) (*Roster, error) {
	if len(voiceCatalog) == 0 {
		return nil, errors.New("voice catalog must not be empty")
	}
	nameOffset := rand.IntN(len(namePool))
	synthetics := make([]Synthetic, 0, len(roles))
	for i, role := range roles {
		name := namePool[(nameOffset+i)%len(namePool)]
		voice := voiceCatalog[rand.IntN(len(voiceCatalog))]
		synthetics = append(synthetics, NewSynthetic(name, role, voice))
	}
	return NewRoster(human, synthetics)
}
