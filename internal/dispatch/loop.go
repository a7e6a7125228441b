package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/me/tradebot/internal/config"
	"github.com/me/tradebot/internal/request"
	"github.com/me/tradebot/pkg/model"
)

// Loop runs cfg.Routines routines that drain the hub's queue, each driving
// one request at a time through the exchanger.
type Loop struct {
	hub       *Hub
	exchanger Exchanger
	config    config.DispatchConfig
	logger    *slog.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
}

// NewLoop creates a new dispatch loop.
func NewLoop(hub *Hub, ex Exchanger, cfg config.DispatchConfig, logger *slog.Logger) *Loop {
	defaults := config.DefaultDispatchConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = defaults.SearchTimeout
	}
	return &Loop{
		hub:       hub,
		exchanger: ex,
		config:    cfg,
		logger:    logger.With("component", "routines"),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the routines. Blocks until ctx is cancelled or Stop is
// called, then waits for every routine to return.
func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info("routines started", "count", l.config.Routines, "poll_interval", l.config.PollInterval)
	defer close(l.doneCh)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := range l.config.Routines {
		name := fmt.Sprintf("routine-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.run(runCtx, name)
		}()
	}

	var err error
	select {
	case <-ctx.Done():
		l.logger.Info("routines stopping (context cancelled)")
		err = ctx.Err()
	case <-l.stopCh:
		l.logger.Info("routines stopping (stop called)")
	}
	cancel()
	wg.Wait()
	return err
}

// Stop shuts the routines down and waits for in-flight exchanges to be
// canceled. It must only be called after Start.
func (l *Loop) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.doneCh
	return nil
}

func (l *Loop) run(ctx context.Context, name string) {
	logger := l.logger.With("routine", name)
	logger.Debug("routine running")
	for {
		if ctx.Err() != nil {
			logger.Debug("routine stopped")
			return
		}
		if l.Tick(ctx, name) {
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(l.config.PollInterval):
		}
	}
}

// Tick dequeues and processes at most one request. It reports whether a
// request was processed.
func (l *Loop) Tick(ctx context.Context, routine string) bool {
	req, ok := l.hub.queue.TryDequeue()
	if !ok {
		return false
	}
	l.process(request.WithRoutine(ctx, routine), req)
	return true
}

func (l *Loop) process(ctx context.Context, req *request.Request) {
	req.NotifyInitialize(ctx)

	timeout, err := SearchTimeout(l.config, req.Kind())
	if err != nil {
		l.logger.Error("cannot process request", "requester", req.Requester().Name, "error", err)
		req.NotifyCanceled(ctx, model.ResultExchangeError)
		return
	}
	if ctx.Err() != nil {
		req.NotifyCanceled(ctx, model.ResultRoutineStopped)
		return
	}

	req.NotifySearching(ctx)
	searchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	received, err := l.exchanger.Exchange(searchCtx, req)
	if err != nil {
		reason := resultFor(ctx, err)
		l.logger.Info("exchange did not complete",
			"routine", request.RoutineFromContext(ctx),
			"requester", req.Requester().Name,
			"reason", reason.String(),
			"error", err,
		)
		req.NotifyCanceled(ctx, reason)
		return
	}
	req.NotifyFinished(ctx, received)
}
