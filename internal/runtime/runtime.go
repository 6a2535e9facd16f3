package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seminarlabs/seminar-core/internal/bus"
	"github.com/seminarlabs/seminar-core/internal/config"
	"github.com/seminarlabs/seminar-core/internal/dispatch"
	"github.com/seminarlabs/seminar-core/internal/generator"
	"github.com/seminarlabs/seminar-core/internal/httpapi"
	"github.com/seminarlabs/seminar-core/internal/natsserver"
	"github.com/seminarlabs/seminar-core/internal/protocol"
	"github.com/seminarlabs/seminar-core/internal/queue"
	"github.com/seminarlabs/seminar-core/internal/reconcile"
	"github.com/seminarlabs/seminar-core/internal/store"
)

// Runtime assembles and supervises the discussion services: store, bus,
// queue manager, generator, reconciliation, dispatcher and the HTTP
// surface. Start blocks until the context is cancelled, then unwinds in
// reverse dependency order.
type Runtime struct {
	cfg    config.Config
	logger *slog.Logger
	ready  atomic.Bool
	wg     sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	var embedded *natsserver.EmbeddedServer
	if r.cfg.Bus.Embedded {
		embedded, err = natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
	}

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		if embedded != nil {
			embedded.Shutdown()
		}
		return fmt.Errorf("failed to connect to bus: %w", err)
	}

	st, err := store.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		busClient.Close()
		if embedded != nil {
			embedded.Shutdown()
		}
		return fmt.Errorf("failed to open store: %w", err)
	}

	queues := queue.NewManager()

	gen, err := generator.FromConfig(r.cfg.Generator, r.logger)
	if err != nil {
		_ = st.Close()
		busClient.Close()
		if embedded != nil {
			embedded.Shutdown()
		}
		return fmt.Errorf("failed to build generator: %w", err)
	}

	pub := &busPublisher{bus: busClient}

	svc := reconcile.NewService(ctx, r.cfg.Discussion, st, queues, gen, pub, busClient, r.logger)
	if err := svc.Start(); err != nil {
		_ = st.Close()
		busClient.Close()
		if embedded != nil {
			embedded.Shutdown()
		}
		return fmt.Errorf("failed to start reconcile service: %w", err)
	}

	interval := time.Duration(r.cfg.Dispatch.IntervalMS) * time.Millisecond
	dispatcher := dispatch.New(interval, queues, st, pub, r.logger)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		dispatcher.Run(ctx)
	}()

	api := httpapi.NewServer(r.cfg.HTTP, st, func() bool {
		return r.ready.Load() && svc.Healthy() && busClient.Healthy()
	}, r.logger)
	if err := api.Start(); err != nil {
		svc.Close()
		_ = st.Close()
		busClient.Close()
		if embedded != nil {
			embedded.Shutdown()
		}
		return fmt.Errorf("failed to start http server: %w", err)
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("runtime", r.cfg.RuntimeName),
		slog.String("environment", r.cfg.Environment))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := api.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	svc.Close()
	cancel()
	r.wg.Wait()
	busClient.Close()
	if embedded != nil {
		embedded.Shutdown()
	}
	if err := st.Close(); err != nil {
		r.logger.Error("store shutdown error", slog.String("error", err.Error()))
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}

	return nil
}

// busPublisher broadcasts persisted messages on the channel's subject. It
// serves both the dispatcher and the reconcile service.
type busPublisher struct {
	bus *bus.Client
}

func (p *busPublisher) PublishMessage(evt protocol.MessageEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode message event: %w", err)
	}
	if err := p.bus.Conn().Publish(protocol.MessageSubject(evt.Channel), data); err != nil {
		return fmt.Errorf("publish message event: %w", err)
	}
	return nil
}
