package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/seminarlabs/seminar-core/internal/config"
	"github.com/seminarlabs/seminar-core/internal/persona"
	"github.com/seminarlabs/seminar-core/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := store.Open(context.Background(), config.StoreConfig{Path: filepath.Join(t.TempDir(), "seminar.db")}, log)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewServer(config.HTTPConfig{Bind: "127.0.0.1", Port: 0}, st, func() bool { return true }, log), st
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rec.Code)
	}
}

func TestReadyzNotReady(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(context.Background(), config.StoreConfig{Path: filepath.Join(t.TempDir(), "seminar.db")}, log)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	srv := NewServer(config.HTTPConfig{}, st, func() bool { return false }, log)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestChapterRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"doc_id":"doc-1","title":"Backpropagation","body":"long text"}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chapters", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("create chapter: %d %s", rec.Code, rec.Body.String())
	}
	var created chapterPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created chapter: %v", err)
	}
	if created.ID == "" {
		t.Fatal("chapter id not assigned")
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/chapters/"+created.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get chapter: %d", rec.Code)
	}
	var got chapterPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode chapter: %v", err)
	}
	if got.Title != "Backpropagation" {
		t.Fatalf("unexpected chapter: %+v", got)
	}
}

func TestChapterValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chapters", strings.NewReader(`{"title":""}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fields, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/chapters/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown chapter, got %d", rec.Code)
	}
}

func TestListDiscussionMessages(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	ch, err := st.UpsertChapter(ctx, store.Chapter{DocID: "doc-1", Title: "Chapter"})
	if err != nil {
		t.Fatalf("upsert chapter: %v", err)
	}
	human := persona.NewHuman("user-1", "Ada")
	roster, err := persona.NewRoster(human, []persona.Synthetic{
		persona.NewSynthetic("Quinn", persona.RoleTeacher, "atlas"),
	})
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	disc, err := st.CreateDiscussion(ctx, ch.ID, "doc-1", roster)
	if err != nil {
		t.Fatalf("create discussion: %v", err)
	}
	for _, body := range []string{"one", "two", "three"} {
		if _, err := st.CreateMessage(ctx, disc.ID, human.PersonaID, body); err != nil {
			t.Fatalf("create message: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/discussions/"+disc.ID+"/messages?limit=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list messages: %d %s", rec.Code, rec.Body.String())
	}
	var msgs []messagePayload
	if err := json.Unmarshal(rec.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Body != "one" || msgs[1].Body != "two" {
		t.Fatalf("unexpected listing: %+v", msgs)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/discussions/ghost/messages", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown discussion, got %d", rec.Code)
	}
}
