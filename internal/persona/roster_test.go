package persona

import "testing"

func TestNewRosterResolve(t *testing.T) {
	human := NewHuman("user-1", "Ada Lovelace")
	teacher := NewSynthetic("Greta Holm", RoleTeacher, "celeste")
	student := NewSynthetic("Hiro Tanaka", RoleStudent, "atlas")

	roster, err := NewRoster(human, []Synthetic{teacher, student})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, ok := roster.Resolve(teacher.PersonaID)
	if !ok {
		t.Fatal("expected teacher to resolve")
	}
	syn, ok := p.(Synthetic)
	if !ok || syn.Role != RoleTeacher {
		t.Fatalf("expected teacher synthetic, got %#v", p)
	}

	p, ok = roster.Resolve(human.PersonaID)
	if !ok || !IsHuman(p) {
		t.Fatalf("expected human to resolve, got %#v", p)
	}

	if _, ok := roster.Resolve("no-such-persona"); ok {
		t.Fatal("expected unknown ref to fail resolution")
	}
}

func TestNewRosterRejectsVoicelessSynthetic(t *testing.T) {
	human := NewHuman("user-1", "Ada Lovelace")
	mute := Synthetic{PersonaID: "p1", Name: "Mute", Role: RoleStudent}
	if _, err := NewRoster(human, []Synthetic{mute}); err == nil {
		t.Fatal("expected error for synthetic without voice")
	}
}

func TestNewRosterRejectsDuplicateIDs(t *testing.T) {
	human := NewHuman("user-1", "Ada Lovelace")
	a := Synthetic{PersonaID: "p1", Name: "A", Role: RoleStudent, Voice: "atlas"}
	b := Synthetic{PersonaID: "p1", Name: "B", Role: RoleTeacher, Voice: "briar"}
	if _, err := NewRoster(human, []Synthetic{a, b}); err == nil {
		t.Fatal("expected error for duplicate persona ids")
	}
}

func TestGenerateRoster(t *testing.T) {
	human := NewHuman("user-1", "Ada Lovelace")
	roles := []Role{RoleTeacher, RoleStudent, RoleStudent}
	roster, err := GenerateRoster(human, roles, []string{"atlas", "briar"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	synthetics := roster.Synthetics()
	if len(synthetics) != 3 {
		t.Fatalf("expected 3 synthetics, got %d", len(synthetics))
	}
	for i, s := range synthetics {
		if s.Role != roles[i] {
			t.Fatalf("expected role %q at %d, got %q", roles[i], i, s.Role)
		}
		if s.Voice != "atlas" && s.Voice != "briar" {
			t.Fatalf("voice %q not drawn from catalog", s.Voice)
		}
	}
}

func TestParseRole(t *testing.T) {
	if _, err := ParseRole("teacher"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseRole("janitor"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}
