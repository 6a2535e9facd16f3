package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/seminarlabs/seminar-core/internal/persona"
	"github.com/seminarlabs/seminar-core/internal/protocol"
	"github.com/seminarlabs/seminar-core/internal/queue"
	"github.com/seminarlabs/seminar-core/internal/store"
)

// Store is the slice of the persisted store the dispatcher needs.
type Store interface {
	Roster(ctx context.Context, discussionID string) (*persona.Roster, error)
	CreateMessage(ctx context.Context, discussionID, personaID, body string) (store.Message, error)
}

// Publisher broadcasts one persisted message to a channel's subscribers.
type Publisher interface {
	PublishMessage(evt protocol.MessageEvent) error
}

// Dispatcher is the single process-wide pacing loop: on each tick every
// non-empty channel advances by exactly one draft. Generation never runs on
// the tick path; the two sides meet only in the queue manager.
type Dispatcher struct {
	interval time.Duration
	queues   *queue.Manager
	store    Store
	pub      Publisher
	log      *slog.Logger

	mu      sync.Mutex
	rosters map[string]*persona.Roster

	dispatched metric.Int64Counter
	skipped    metric.Int64Counter
}

func New(interval time.Duration, queues *queue.Manager, st Store, pub Publisher, log *slog.Logger) *Dispatcher {
	meter := otel.Meter("seminar.dispatch")
	dispatched, _ := meter.Int64Counter("seminar.dispatch.messages",
		metric.WithDescription("Drafts dispatched as persisted messages"))
	skipped, _ := meter.Int64Counter("seminar.dispatch.skipped",
		metric.WithDescription("Drafts skipped because persona resolution or persistence failed"))
	return &Dispatcher{
		interval:   interval,
		queues:     queues,
		store:      st,
		pub:        pub,
		log:        log.With(slog.String("component", "dispatcher")),
		rosters:    make(map[string]*persona.Roster),
		dispatched: dispatched,
		skipped:    skipped,
	}
}

// Run drives the shared timer until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	d.log.Info("dispatcher started", slog.Duration("interval", d.interval))
	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopping")
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick advances each non-empty channel by one draft. A failure on one
// channel never affects the others.
func (d *Dispatcher) Tick(ctx context.Context) {
	for _, channel := range d.queues.Channels() {
		d.dispatchOne(ctx, channel)
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, channel string) {
	draft, ok := d.queues.TakeNext(channel)
	if !ok {
		return
	}

	roster, err := d.rosterFor(ctx, channel)
	if err != nil {
		d.skipped.Add(ctx, 1)
		d.log.Warn("dispatch skipped, roster unavailable",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
		return
	}

	member, ok := roster.Resolve(draft.PersonaRef)
	if !ok {
		d.skipped.Add(ctx, 1)
		d.log.Warn("dispatch skipped, persona not in roster",
			slog.String("channel", channel),
			slog.String("persona", draft.PersonaRef))
		return
	}
	if persona.IsHuman(member) {
		d.skipped.Add(ctx, 1)
		d.log.Warn("dispatch skipped, draft attributed to human persona",
			slog.String("channel", channel),
			slog.String("persona", draft.PersonaRef))
		return
	}

	msg, err := d.store.CreateMessage(ctx, channel, draft.PersonaRef, draft.Body)
	if err != nil {
		d.skipped.Add(ctx, 1)
		d.log.Warn("dispatch skipped, persist failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
		return
	}

	evt := protocol.MessageEvent{
		Channel: channel,
		Message: protocol.Message{
			ID:        msg.ID,
			Channel:   channel,
			Seq:       msg.Seq,
			Persona:   protocol.PersonaInfoFrom(member),
			Body:      msg.Body,
			CreatedAt: msg.CreatedAt,
		},
	}
	if err := d.pub.PublishMessage(evt); err != nil {
		d.log.Warn("broadcast failed for dispatched message",
			slog.String("channel", channel),
			slog.String("message", msg.ID),
			slog.String("error", err.Error()))
	}
	d.dispatched.Add(ctx, 1)
}

// rosterFor caches rosters; they are immutable for a discussion's lifetime.
func (d *Dispatcher) rosterFor(ctx context.Context, channel string) (*persona.Roster, error) {
	d.mu.Lock()
	cached, ok := d.rosters[channel]
	d.mu.Unlock()
	if ok {
		return cached, nil
	}
	roster, err := d.store.Roster(ctx, channel)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.rosters[channel] = roster
	d.mu.Unlock()
	return roster, nil
}
