package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/seminarlabs/seminar-core/internal/config"
	"github.com/seminarlabs/seminar-core/internal/persona"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Chapter is an immutable learning unit registered by the ingestion pipeline.
type Chapter struct {
	ID        string
	DocID     string
	Title     string
	Body      string
	Index     int
	CreatedAt time.Time
}

// Discussion is the conversation bound 1:1 to a chapter. Its id doubles as
// the realtime channel id.
type Discussion struct {
	ID        string
	ChapterID string
	DocID     string
	CreatedAt time.Time
}

// Message is one append-only discussion entry. Seq is assigned by the store
// and is strictly increasing within a discussion.
type Message struct {
	Seq          int64
	ID           string
	DiscussionID string
	PersonaID    string
	Body         string
	CreatedAt    time.Time
}

// Store wraps the SQLite-backed classroom records.
type Store struct {
	db    *sql.DB
	cfg   config.StoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store according to config.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("store vacuum failed", slog.String("error", err.Error()))
		}
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS chapters (
    chapter_id TEXT PRIMARY KEY,
    doc_id TEXT NOT NULL,
    title TEXT NOT NULL,
    body TEXT NOT NULL,
    idx INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS discussions (
    discussion_id TEXT PRIMARY KEY,
    chapter_id TEXT NOT NULL UNIQUE,
    doc_id TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS personas (
    persona_id TEXT PRIMARY KEY,
    discussion_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    role TEXT,
    name TEXT NOT NULL,
    identity TEXT,
    voice TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(discussion_id) REFERENCES discussions(discussion_id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS messages (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id TEXT NOT NULL UNIQUE,
    discussion_id TEXT NOT NULL,
    persona_id TEXT NOT NULL,
    body TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(discussion_id) REFERENCES discussions(discussion_id) ON DELETE CASCADE,
    FOREIGN KEY(persona_id) REFERENCES personas(persona_id)
);
CREATE INDEX IF NOT EXISTS idx_messages_discussion_seq ON messages(discussion_id, seq);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertChapter registers chapter content from the ingestion pipeline.
func (s *Store) UpsertChapter(ctx context.Context, ch Chapter) (Chapter, error) {
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chapters(chapter_id, doc_id, title, body, idx, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(chapter_id) DO UPDATE SET title=excluded.title, body=excluded.body, idx=excluded.idx`,
		ch.ID, ch.DocID, ch.Title, ch.Body, ch.Index, ch.CreatedAt)
	if err != nil {
		return Chapter{}, fmt.Errorf("upsert chapter: %w", err)
	}
	return ch, nil
}

// GetChapter fetches one chapter by id.
func (s *Store) GetChapter(ctx context.Context, id string) (Chapter, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT chapter_id, doc_id, title, body, idx, created_at FROM chapters WHERE chapter_id = ?`, id)
	var ch Chapter
	var created string
	if err := row.Scan(&ch.ID, &ch.DocID, &ch.Title, &ch.Body, &ch.Index, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Chapter{}, ErrNotFound
		}
		return Chapter{}, err
	}
	ch.CreatedAt = parseTime(created)
	return ch, nil
}

// CreateDiscussion persists a new discussion together with its fixed roster.
// The chapter's UNIQUE constraint enforces at most one discussion per
// chapter; callers should re-find on conflict.
func (s *Store) CreateDiscussion(ctx context.Context, chapterID, docID string, roster *persona.Roster) (Discussion, error) {
	disc := Discussion{
		ID:        uuid.NewString(),
		ChapterID: chapterID,
		DocID:     docID,
		CreatedAt: s.clock().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Discussion{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO discussions(discussion_id, chapter_id, doc_id, created_at) VALUES(?, ?, ?, ?)`,
		disc.ID, disc.ChapterID, disc.DocID, disc.CreatedAt); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return Discussion{}, ErrDiscussionExists
		}
		return Discussion{}, fmt.Errorf("insert discussion: %w", err)
	}

	human := roster.Human()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO personas(persona_id, discussion_id, kind, role, name, identity, voice, created_at)
		 VALUES(?, ?, 'human', NULL, ?, ?, NULL, ?)`,
		human.PersonaID, disc.ID, human.Name, human.Identity, disc.CreatedAt); err != nil {
		return Discussion{}, fmt.Errorf("insert human persona: %w", err)
	}
	for _, syn := range roster.Synthetics() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO personas(persona_id, discussion_id, kind, role, name, identity, voice, created_at)
			 VALUES(?, ?, 'synthetic', ?, ?, NULL, ?, ?)`,
			syn.PersonaID, disc.ID, string(syn.Role), syn.Name, syn.Voice, disc.CreatedAt); err != nil {
			return Discussion{}, fmt.Errorf("insert synthetic persona: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Discussion{}, err
	}
	return disc, nil
}

// ErrDiscussionExists signals a lost create race; the existing discussion
// should be used instead.
var ErrDiscussionExists = errors.New("discussion already exists for chapter")

// FindDiscussionByChapter returns the discussion for a chapter, if any.
func (s *Store) FindDiscussionByChapter(ctx context.Context, chapterID string) (Discussion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT discussion_id, chapter_id, doc_id, created_at FROM discussions WHERE chapter_id = ?`, chapterID)
	return scanDiscussion(row)
}

// GetDiscussion returns one discussion by id.
func (s *Store) GetDiscussion(ctx context.Context, id string) (Discussion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT discussion_id, chapter_id, doc_id, created_at FROM discussions WHERE discussion_id = ?`, id)
	return scanDiscussion(row)
}

func scanDiscussion(row *sql.Row) (Discussion, error) {
	var d Discussion
	var docID sql.NullString
	var created string
	if err := row.Scan(&d.ID, &d.ChapterID, &docID, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Discussion{}, ErrNotFound
		}
		return Discussion{}, err
	}
	d.DocID = docID.String
	d.CreatedAt = parseTime(created)
	return d, nil
}

// Roster reconstructs the immutable persona roster of a discussion.
func (s *Store) Roster(ctx context.Context, discussionID string) (*persona.Roster, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT persona_id, kind, role, name, identity, voice FROM personas WHERE discussion_id = ? ORDER BY created_at, persona_id`,
		discussionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var human *persona.Human
	var synthetics []persona.Synthetic
	for rows.Next() {
		var id, kind, name string
		var role, identity, voice sql.NullString
		if err := rows.Scan(&id, &kind, &role, &name, &identity, &voice); err != nil {
			return nil, err
		}
		switch kind {
		case "human":
			h := persona.Human{PersonaID: id, Identity: identity.String, Name: name}
			human = &h
		case "synthetic":
			parsed, err := persona.ParseRole(role.String)
			if err != nil {
				return nil, fmt.Errorf("persona %s: %w", id, err)
			}
			synthetics = append(synthetics, persona.Synthetic{
				PersonaID: id,
				Name:      name,
				Role:      parsed,
				Voice:     voice.String,
			})
		default:
			return nil, fmt.Errorf("persona %s has unknown kind %q", id, kind)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if human == nil {
		return nil, fmt.Errorf("discussion %s has no human persona", discussionID)
	}
	return persona.NewRoster(*human, synthetics)
}

// CreateMessage appends one immutable message. The persona must belong to
// the discussion's roster.
func (s *Store) CreateMessage(ctx context.Context, discussionID, personaID, body string) (Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM personas WHERE persona_id = ? AND discussion_id = ?`, personaID, discussionID)
	var n int
	if err := row.Scan(&n); err != nil {
		return Message{}, err
	}
	if n == 0 {
		return Message{}, fmt.Errorf("persona %s is not in discussion %s roster", personaID, discussionID)
	}

	msg := Message{
		ID:           uuid.NewString(),
		DiscussionID: discussionID,
		PersonaID:    personaID,
		Body:         body,
		CreatedAt:    s.clock().UTC(),
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(message_id, discussion_id, persona_id, body, created_at) VALUES(?, ?, ?, ?, ?)`,
		msg.ID, msg.DiscussionID, msg.PersonaID, msg.Body, msg.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Message{}, err
	}
	msg.Seq = seq
	return msg, nil
}

// ListMessages returns up to limit messages for a discussion in creation
// order.
func (s *Store) ListMessages(ctx context.Context, discussionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, message_id, discussion_id, persona_id, body, created_at
		 FROM messages WHERE discussion_id = ? ORDER BY seq ASC LIMIT ?`, discussionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentMessages returns the last window messages in creation order.
func (s *Store) RecentMessages(ctx context.Context, discussionID string, window int) ([]Message, error) {
	if window <= 0 {
		window = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, message_id, discussion_id, persona_id, body, created_at FROM (
		   SELECT seq, message_id, discussion_id, persona_id, body, created_at
		   FROM messages WHERE discussion_id = ? ORDER BY seq DESC LIMIT ?
		 ) ORDER BY seq ASC`, discussionID, window)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		var created string
		if err := rows.Scan(&m.Seq, &m.ID, &m.DiscussionID, &m.PersonaID, &m.Body, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func parseTime(raw string) time.Time {
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts
	}
	return time.Time{}
}
