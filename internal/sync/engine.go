package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	otelScope         = "quoteshelf/sync"
	spanPass          = "sync.pass"
	metricQuotes      = "quoteshelf.sync.quotes.refreshed"
	metricCollections = "quoteshelf.sync.collections.synced"
	metricMemberships = "quoteshelf.sync.memberships.synced"
	metricErrors      = "quoteshelf.sync.errors"
)

// Stats summarizes one engine pass.
type Stats struct {
	Quotes      int
	Collections int
	Memberships int
	Errors      int
	// SignedOut is set when collection sync was skipped for lack of an
	// identity.
	SignedOut bool
}

// Engine runs refresh passes: the quote catalog refresh and the collection
// sync, concurrently. Create one with [NewEngine] and start it with
// [Engine.Run].
type Engine struct {
	quotes      *QuoteCache
	collections *CollectionSync
	interval    time.Duration
	log         *slog.Logger

	// OTel instruments, always non-nil (no-op when telemetry is disabled).
	tracer         trace.Tracer
	cntQuotes      metric.Int64Counter
	cntCollections metric.Int64Counter
	cntMemberships metric.Int64Counter
	cntErrors      metric.Int64Counter
}

// NewEngine creates an Engine that refreshes every interval.
func NewEngine(quotes *QuoteCache, collections *CollectionSync, interval time.Duration, logger *slog.Logger) *Engine {
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Engine{
		quotes:      quotes,
		collections: collections,
		interval:    interval,
		log:         logger,

		tracer:         tracer,
		cntQuotes:      mustCounter(metricQuotes, "Number of quotes written to the cache"),
		cntCollections: mustCounter(metricCollections, "Number of collections written to the cache"),
		cntMemberships: mustCounter(metricMemberships, "Number of collection memberships written to the cache"),
		cntErrors:      mustCounter(metricErrors, "Number of failed refresh steps"),
	}
}

// pass runs one refresh, recording a trace span and metrics. A signed-out
// user is not an error; collection sync is simply skipped.
func (e *Engine) pass(ctx context.Context) (Stats, error) {
	ctx, span := e.tracer.Start(ctx, spanPass)
	defer span.End()

	var (
		stats             Stats
		quoteErr, collErr error
		g                 errgroup.Group
	)
	g.Go(func() error {
		stats.Quotes, quoteErr = e.quotes.RefreshQuotes(ctx)
		return nil
	})
	g.Go(func() error {
		var cs SyncStats
		cs, collErr = e.collections.SyncCollections(ctx)
		if errors.Is(collErr, ErrNotAuthenticated) {
			stats.SignedOut = true
			collErr = nil
		}
		stats.Collections, stats.Memberships = cs.Collections, cs.Memberships
		return nil
	})
	_ = g.Wait()

	for _, err := range []error{quoteErr, collErr} {
		if err != nil {
			stats.Errors++
		}
	}

	if stats.Quotes > 0 {
		e.cntQuotes.Add(ctx, int64(stats.Quotes))
	}
	if stats.Collections > 0 {
		e.cntCollections.Add(ctx, int64(stats.Collections))
	}
	if stats.Memberships > 0 {
		e.cntMemberships.Add(ctx, int64(stats.Memberships))
	}
	if stats.Errors > 0 {
		e.cntErrors.Add(ctx, int64(stats.Errors))
	}

	span.SetAttributes(
		attribute.Int("sync.quotes", stats.Quotes),
		attribute.Int("sync.collections", stats.Collections),
		attribute.Int("sync.memberships", stats.Memberships),
		attribute.Int("sync.errors", stats.Errors),
		attribute.Bool("sync.signed_out", stats.SignedOut),
	)
	err := errors.Join(quoteErr, collErr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh pass failed")
	}
	return stats, err
}

// RunOnce performs a single refresh pass and returns.
func (e *Engine) RunOnce(ctx context.Context) (Stats, error) {
	return e.pass(ctx)
}

// Run refreshes immediately and then every interval. It blocks until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.runLogged(ctx, "initial refresh failed")

	for {
		select {
		case <-ctx.Done():
			e.log.Info("sync engine shutting down")
			return ctx.Err()
		case <-ticker.C:
			e.runLogged(ctx, "refresh failed")
		}
	}
}

func (e *Engine) runLogged(ctx context.Context, failMsg string) {
	stats, err := e.pass(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.log.Error(failMsg, "error", err)
		return
	}
	e.log.Info("refresh complete",
		"quotes", stats.Quotes,
		"collections", stats.Collections,
		"memberships", stats.Memberships,
		"signed_out", stats.SignedOut,
	)
}
