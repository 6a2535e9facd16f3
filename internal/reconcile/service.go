package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/seminarlabs/seminar-core/internal/bus"
	"github.com/seminarlabs/seminar-core/internal/config"
	"github.com/seminarlabs/seminar-core/internal/generator"
	"github.com/seminarlabs/seminar-core/internal/persona"
	"github.com/seminarlabs/seminar-core/internal/protocol"
	"github.com/seminarlabs/seminar-core/internal/queue"
	"github.com/seminarlabs/seminar-core/internal/store"
)

// Publisher broadcasts one persisted message to a channel's subscribers.
type Publisher interface {
	PublishMessage(evt protocol.MessageEvent) error
}

// Service owns discussion lifecycle and reconciliation: idempotent start,
// immediate human-message echo, queue discard and epoch-guarded batch
// installs. A generation result is only installed while its epoch is still
// the latest issued for that discussion; stale results are dropped
// silently. That is the only cancellation mechanism - in-flight generation
// calls are never hard-cancelled.
type Service struct {
	cfg    config.DiscussionConfig
	store  *store.Store
	queues *queue.Manager
	gen    *generator.Adapter
	pub    Publisher
	bus    *bus.Client
	log    *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	subWait time.Duration

	mu     sync.Mutex
	epochs map[string]uint64

	subStart *nats.Subscription
	subUser  *nats.Subscription
}

func NewService(parent context.Context, cfg config.DiscussionConfig, st *store.Store, queues *queue.Manager, gen *generator.Adapter, pub Publisher, busClient *bus.Client, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:     cfg,
		store:   st,
		queues:  queues,
		gen:     gen,
		pub:     pub,
		bus:     busClient,
		log:     log.With(slog.String("component", "reconcile")),
		ctx:     ctx,
		cancel:  cancel,
		subWait: time.Duration(cfg.StartTimeoutMS) * time.Millisecond,
		epochs:  make(map[string]uint64),
	}
}

// Start wires the transport events. With a nil bus the service runs
// handler-only (tests, embedding).
func (s *Service) Start() error {
	if s.bus == nil {
		return nil
	}
	subStart, err := s.bus.Conn().Subscribe(protocol.SubjectStartDiscussion, s.handleStartRequest)
	if err != nil {
		return fmt.Errorf("subscribe start requests: %w", err)
	}
	s.subStart = subStart

	subUser, err := s.bus.Conn().Subscribe(protocol.SubjectUserMessage, s.handleUserMessageEvent)
	if err != nil {
		subStart.Drain()
		return fmt.Errorf("subscribe user messages: %w", err)
	}
	s.subUser = subUser
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.subStart != nil {
		_ = s.subStart.Drain()
	}
	if s.subUser != nil {
		_ = s.subUser.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.bus == nil || (s.subStart != nil && s.subUser != nil)
}

// Started reports the outcome of a start request. Ready closes once the
// initial generation attempt has resolved, successfully or not; callers
// may stop waiting earlier, the install still happens under the epoch
// guard.
type Started struct {
	Discussion store.Discussion
	Roster     *persona.Roster
	Created    bool
	Ready      <-chan struct{}
}

// StartDiscussion returns the chapter's discussion, creating it with a
// fresh roster on first call. Creation kicks off the opening batch out of
// band.
func (s *Service) StartDiscussion(ctx context.Context, req protocol.StartDiscussionRequest) (Started, error) {
	chapter, err := s.store.GetChapter(ctx, req.ChapterID)
	if err != nil {
		return Started{}, fmt.Errorf("load chapter %s: %w", req.ChapterID, err)
	}

	disc, err := s.store.FindDiscussionByChapter(ctx, chapter.ID)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		roles := make([]persona.Role, 0, len(s.cfg.SyntheticRoles))
		for _, r := range s.cfg.SyntheticRoles {
			role, err := persona.ParseRole(r)
			if err != nil {
				return Started{}, err
			}
			roles = append(roles, role)
		}
		human := persona.NewHuman(req.UserID, req.UserName)
		roster, err := persona.GenerateRoster(human, roles, s.cfg.VoiceCatalog)
		if err != nil {
			return Started{}, fmt.Errorf("generate roster: %w", err)
		}
		disc, err = s.store.CreateDiscussion(ctx, chapter.ID, req.DocID, roster)
		if errors.Is(err, store.ErrDiscussionExists) {
			// lost the create race; use the winner
			disc, err = s.store.FindDiscussionByChapter(ctx, chapter.ID)
		}
		if err != nil {
			return Started{}, fmt.Errorf("create discussion: %w", err)
		}
		created = true
	default:
		return Started{}, err
	}

	roster, err := s.store.Roster(ctx, disc.ID)
	if err != nil {
		return Started{}, fmt.Errorf("load roster: %w", err)
	}

	ready := make(chan struct{})
	if created {
		epoch := s.nextEpoch(disc.ID)
		genReq := generator.Request{
			ChapterTitle: chapter.Title,
			ChapterBody:  chapter.Body,
			Roster:       roster,
		}
		s.spawnGeneration(disc.ID, epoch, genReq, ready)
	} else {
		close(ready)
	}

	return Started{Discussion: disc, Roster: roster, Created: created, Ready: ready}, nil
}

// HandleUserMessage runs the reconciliation algorithm for one human
// interruption: echo first, then discard the pending queue and request a
// replacement batch that accounts for sent history, the abandoned backlog
// and the new message.
func (s *Service) HandleUserMessage(ctx context.Context, channel, body string) (store.Message, error) {
	disc, err := s.store.GetDiscussion(ctx, channel)
	if err != nil {
		return store.Message{}, fmt.Errorf("load discussion %s: %w", channel, err)
	}
	roster, err := s.store.Roster(ctx, disc.ID)
	if err != nil {
		return store.Message{}, fmt.Errorf("load roster: %w", err)
	}
	human := roster.Human()

	// echo before any model work so the sender never waits on the AI
	msg, err := s.store.CreateMessage(ctx, disc.ID, human.PersonaID, body)
	if err != nil {
		return store.Message{}, fmt.Errorf("persist human message: %w", err)
	}
	s.broadcast(disc.ID, msg, human)

	history, err := s.store.RecentMessages(ctx, disc.ID, s.cfg.HistoryWindow)
	if err != nil {
		s.log.Warn("failed to load sent history", slog.String("channel", disc.ID), slog.String("error", err.Error()))
	}
	backlog := s.queues.Clear(disc.ID)

	chapter, err := s.store.GetChapter(ctx, disc.ChapterID)
	if err != nil {
		s.log.Warn("failed to load chapter for reconciliation",
			slog.String("channel", disc.ID),
			slog.String("error", err.Error()))
		return msg, nil
	}

	epoch := s.nextEpoch(disc.ID)
	genReq := generator.Request{
		ChapterTitle: chapter.Title,
		ChapterBody:  chapter.Body,
		Roster:       roster,
		History:      historyEntries(history),
		Backlog:      backlogEntries(backlog),
		UserMessage:  &generator.HistoryEntry{PersonaRef: human.PersonaID, Body: body},
	}
	s.spawnGeneration(disc.ID, epoch, genReq, make(chan struct{}))

	return msg, nil
}

func (s *Service) spawnGeneration(channel string, epoch uint64, req generator.Request, ready chan struct{}) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(ready)

		ctx, cancel := context.WithTimeout(s.ctx, 60*time.Second)
		defer cancel()

		drafts := s.gen.GenerateBatch(ctx, req)
		if len(drafts) == 0 {
			s.log.Info("generation produced no drafts", slog.String("channel", channel))
			return
		}
		if s.installIfCurrent(channel, epoch, drafts) {
			s.log.Info("installed draft batch",
				slog.String("channel", channel),
				slog.Uint64("epoch", epoch),
				slog.Int("drafts", len(drafts)))
		} else {
			s.log.Info("discarded stale generation result",
				slog.String("channel", channel),
				slog.Uint64("epoch", epoch))
		}
	}()
}

// nextEpoch bumps and returns the discussion's epoch. Every reconciliation
// request is issued under the epoch current at issue time.
func (s *Service) nextEpoch(channel string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epochs[channel]++
	return s.epochs[channel]
}

// installIfCurrent atomically checks the epoch and installs the batch.
func (s *Service) installIfCurrent(channel string, epoch uint64, drafts []queue.Draft) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epochs[channel] != epoch {
		return false
	}
	s.queues.Install(channel, drafts)
	return true
}

func (s *Service) broadcast(channel string, msg store.Message, author persona.Persona) {
	evt := protocol.MessageEvent{
		Channel: channel,
		Message: protocol.Message{
			ID:        msg.ID,
			Channel:   channel,
			Seq:       msg.Seq,
			Persona:   protocol.PersonaInfoFrom(author),
			Body:      msg.Body,
			CreatedAt: msg.CreatedAt,
		},
	}
	if err := s.pub.PublishMessage(evt); err != nil {
		s.log.Warn("broadcast failed",
			slog.String("channel", channel),
			slog.String("message", msg.ID),
			slog.String("error", err.Error()))
	}
}

func historyEntries(msgs []store.Message) []generator.HistoryEntry {
	out := make([]generator.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, generator.HistoryEntry{PersonaRef: m.PersonaID, Body: m.Body})
	}
	return out
}

func backlogEntries(drafts []queue.Draft) []generator.HistoryEntry {
	out := make([]generator.HistoryEntry, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, generator.HistoryEntry{PersonaRef: d.PersonaRef, Body: d.Body})
	}
	return out
}

func (s *Service) handleStartRequest(msg *nats.Msg) {
	var req protocol.StartDiscussionRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.log.Warn("failed to decode start request", slog.String("error", err.Error()))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		started, err := s.StartDiscussion(s.ctx, req)
		if err != nil {
			s.respond(msg, protocol.StartDiscussionReply{Error: err.Error()})
			return
		}

		reply := protocol.StartDiscussionReply{Channel: started.Discussion.ID}
		for _, p := range started.Roster.Members() {
			reply.Roster = append(reply.Roster, protocol.PersonaInfoFrom(p))
		}

		select {
		case <-started.Ready:
		case <-time.After(s.subWait):
			// user-facing abandonment only; the install still lands later
			// if its epoch is still current
			reply.TimedOut = true
		case <-s.ctx.Done():
			return
		}
		s.respond(msg, reply)
	}()
}

func (s *Service) handleUserMessageEvent(msg *nats.Msg) {
	var req protocol.UserMessage
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.log.Warn("failed to decode user message", slog.String("error", err.Error()))
		return
	}
	if req.Channel == "" || req.Body == "" {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.HandleUserMessage(s.ctx, req.Channel, req.Body); err != nil {
			s.log.Warn("user message reconciliation failed",
				slog.String("channel", req.Channel),
				slog.String("error", err.Error()))
		}
	}()
}

func (s *Service) respond(msg *nats.Msg, reply protocol.StartDiscussionReply) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		s.log.Warn("failed to marshal start reply", slog.String("error", err.Error()))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.log.Warn("failed to respond to start request", slog.String("error", err.Error()))
	}
}
