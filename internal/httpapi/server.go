package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seminarlabs/seminar-core/internal/config"
	"github.com/seminarlabs/seminar-core/internal/store"
)

// Server is the runtime's HTTP surface: health and metrics plus a small
// chapter registry and message listing API. The realtime path stays on
// the bus; HTTP only covers content management and read access.
type Server struct {
	cfg    config.HTTPConfig
	store  *store.Store
	ready  func() bool
	log    *slog.Logger
	router *mux.Router
	srv    *http.Server
}

func NewServer(cfg config.HTTPConfig, st *store.Store, ready func() bool, log *slog.Logger) *Server {
	s := &Server{
		cfg:   cfg,
		store: st,
		ready: ready,
		log:   log.With(slog.String("component", "httpapi")),
	}
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/chapters", s.handleUpsertChapter).Methods(http.MethodPost)
	v1.HandleFunc("/chapters/{id}", s.handleGetChapter).Methods(http.MethodGet)
	v1.HandleFunc("/discussions/{id}/messages", s.handleListMessages).Methods(http.MethodGet)
	s.router = r
	return s
}

// Handler exposes the routes for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving in the background.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Bind, strconv.Itoa(s.cfg.Port))
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", slog.String("error", err.Error()))
		}
	}()
	s.log.Info("http listening", slog.String("addr", addr))
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil && !s.ready() {
		http.Error(w, `{"error":"not ready"}`, http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type chapterPayload struct {
	ID    string `json:"id,omitempty"`
	DocID string `json:"doc_id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

func chapterResponse(ch store.Chapter) chapterPayload {
	return chapterPayload{ID: ch.ID, DocID: ch.DocID, Title: ch.Title, Body: ch.Body}
}

type messagePayload struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	PersonaID string    `json:"persona_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleUpsertChapter(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var p chapterPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(p.DocID) == "" || strings.TrimSpace(p.Title) == "" {
		http.Error(w, `{"error":"doc_id and title are required"}`, http.StatusBadRequest)
		return
	}

	ch, err := s.store.UpsertChapter(r.Context(), store.Chapter{
		ID:    p.ID,
		DocID: p.DocID,
		Title: p.Title,
		Body:  p.Body,
	})
	if err != nil {
		s.log.Warn("chapter upsert failed", slog.String("error", err.Error()))
		http.Error(w, `{"error":"store failure"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(chapterResponse(ch))
}

func (s *Server) handleGetChapter(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ch, err := s.store.GetChapter(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, `{"error":"chapter not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, `{"error":"store failure"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(chapterResponse(ch))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id := mux.Vars(r)["id"]
	if _, err := s.store.GetDiscussion(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		http.Error(w, `{"error":"discussion not found"}`, http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, `{"error":"store failure"}`, http.StatusInternalServerError)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, `{"error":"limit must be a non-negative integer"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	msgs, err := s.store.ListMessages(r.Context(), id, limit)
	if err != nil {
		http.Error(w, `{"error":"store failure"}`, http.StatusInternalServerError)
		return
	}
	out := make([]messagePayload, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messagePayload{
			ID:        m.ID,
			Seq:       m.Seq,
			PersonaID: m.PersonaID,
			Body:      m.Body,
			CreatedAt: m.CreatedAt,
		})
	}
	_ = json.NewEncoder(w).Encode(out)
}
