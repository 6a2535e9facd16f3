package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/seminarlabs/seminar-core/internal/config"
	"github.com/seminarlabs/seminar-core/internal/persona"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.StoreConfig{Path: filepath.Join(t.TempDir(), "seminar.db")}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRoster(t *testing.T) *persona.Roster {
	t.Helper()
	human := persona.NewHuman("user-1", "Ada Lovelace")
	roster, err := persona.NewRoster(human, []persona.Synthetic{
		persona.NewSynthetic("Greta Holm", persona.RoleTeacher, "celeste"),
		persona.NewSynthetic("Hiro Tanaka", persona.RoleStudent, "atlas"),
	})
	if err != nil {
		t.Fatalf("build roster: %v", err)
	}
	return roster
}

func TestChapterRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	ch, err := s.UpsertChapter(ctx, Chapter{DocID: "doc-1", Title: "Gradient Descent", Body: "chapter body", Index: 1})
	if err != nil {
		t.Fatalf("upsert chapter: %v", err)
	}
	got, err := s.GetChapter(ctx, ch.ID)
	if err != nil {
		t.Fatalf("get chapter: %v", err)
	}
	if got.Title != "Gradient Descent" || got.DocID != "doc-1" {
		t.Fatalf("unexpected chapter: %+v", got)
	}

	if _, err := s.GetChapter(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDiscussionUniquePerChapter(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	ch, err := s.UpsertChapter(ctx, Chapter{DocID: "doc-1", Title: "T", Body: "B"})
	if err != nil {
		t.Fatalf("upsert chapter: %v", err)
	}

	disc, err := s.CreateDiscussion(ctx, ch.ID, "doc-1", testRoster(t))
	if err != nil {
		t.Fatalf("create discussion: %v", err)
	}

	if _, err := s.CreateDiscussion(ctx, ch.ID, "doc-1", testRoster(t)); !errors.Is(err, ErrDiscussionExists) {
		t.Fatalf("expected ErrDiscussionExists, got %v", err)
	}

	found, err := s.FindDiscussionByChapter(ctx, ch.ID)
	if err != nil {
		t.Fatalf("find discussion: %v", err)
	}
	if found.ID != disc.ID {
		t.Fatalf("expected discussion %s, got %s", disc.ID, found.ID)
	}
}

func TestRosterRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	ch, _ := s.UpsertChapter(ctx, Chapter{DocID: "doc-1", Title: "T", Body: "B"})
	roster := testRoster(t)
	disc, err := s.CreateDiscussion(ctx, ch.ID, "doc-1", roster)
	if err != nil {
		t.Fatalf("create discussion: %v", err)
	}

	loaded, err := s.Roster(ctx, disc.ID)
	if err != nil {
		t.Fatalf("load roster: %v", err)
	}
	if loaded.Human().PersonaID != roster.Human().PersonaID {
		t.Fatalf("human persona mismatch")
	}
	if len(loaded.Synthetics()) != 2 {
		t.Fatalf("expected 2 synthetics, got %d", len(loaded.Synthetics()))
	}
	for _, syn := range loaded.Synthetics() {
		if syn.Voice == "" {
			t.Fatalf("synthetic %s lost its voice", syn.PersonaID)
		}
		p, ok := loaded.Resolve(syn.PersonaID)
		if !ok || persona.IsHuman(p) {
			t.Fatalf("synthetic %s did not resolve", syn.PersonaID)
		}
	}
}

func TestMessagesOrderedAndRosterEnforced(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	ch, _ := s.UpsertChapter(ctx, Chapter{DocID: "doc-1", Title: "T", Body: "B"})
	roster := testRoster(t)
	disc, err := s.CreateDiscussion(ctx, ch.ID, "doc-1", roster)
	if err != nil {
		t.Fatalf("create discussion: %v", err)
	}

	teacher := roster.Synthetics()[0]
	human := roster.Human()

	first, err := s.CreateMessage(ctx, disc.ID, teacher.PersonaID, "welcome")
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	second, err := s.CreateMessage(ctx, disc.ID, human.PersonaID, "hello")
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if second.Seq <= first.Seq {
		t.Fatalf("expected strictly increasing seq, got %d then %d", first.Seq, second.Seq)
	}

	if _, err := s.CreateMessage(ctx, disc.ID, "stranger", "boo"); err == nil {
		t.Fatal("expected error for persona outside roster")
	}

	msgs, err := s.ListMessages(ctx, disc.ID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Body != "welcome" || msgs[1].Body != "hello" {
		t.Fatalf("unexpected message order: %+v", msgs)
	}
}

func TestRecentMessagesWindow(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	ch, _ := s.UpsertChapter(ctx, Chapter{DocID: "doc-1", Title: "T", Body: "B"})
	roster := testRoster(t)
	disc, err := s.CreateDiscussion(ctx, ch.ID, "doc-1", roster)
	if err != nil {
		t.Fatalf("create discussion: %v", err)
	}
	teacher := roster.Synthetics()[0]

	bodies := []string{"one", "two", "three", "four", "five"}
	for _, b := range bodies {
		if _, err := s.CreateMessage(ctx, disc.ID, teacher.PersonaID, b); err != nil {
			t.Fatalf("create message %q: %v", b, err)
		}
	}

	recent, err := s.RecentMessages(ctx, disc.ID, 3)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(recent))
	}
	if recent[0].Body != "three" || recent[2].Body != "five" {
		t.Fatalf("expected trailing window in creation order, got %+v", recent)
	}
}
