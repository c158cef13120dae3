package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"horizon-web/internal/auth"
	"horizon-web/internal/auth/idp"
	"horizon-web/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "horizon-web/gate"

// Resolver asks the identity provider who owns a session token and folds
// every failure into Anonymous.
type Resolver struct {
	provider idp.Provider
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithMetrics records resolution counts and latency.
func WithMetrics(m *metrics.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a resolver over provider.
func NewResolver(provider idp.Provider, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		provider: provider,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve returns Authenticated when the provider reports a principal for
// token and Anonymous otherwise. It never fails and never writes to the
// provider.
func (r *Resolver) Resolve(ctx context.Context, token string, bypassCache bool) State {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "gate.Resolve",
		trace.WithAttributes(attribute.Bool("bypass_cache", bypassCache)))
	defer span.End()

	st := r.resolve(ctx, token, bypassCache)

	span.SetAttributes(attribute.String("status", st.Status().String()))
	r.metrics.ObserveResolution(st.Status().String(), start)
	return st
}

func (r *Resolver) resolve(ctx context.Context, token string, bypassCache bool) (st State) {
	if token == "" {
		return Anonymous()
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "identity provider panicked", "panic", fmt.Sprint(p))
			st = Anonymous()
		}
	}()

	id, err := r.provider.QueryCurrentPrincipal(ctx, token, bypassCache)
	if err != nil {
		r.logger.DebugContext(ctx, "session resolved anonymous", "error", err)
		return Anonymous()
	}
	if id == nil || id.ID == "" {
		r.logger.WarnContext(ctx, "identity provider returned an empty principal",
			"error", auth.ErrIdentityUnavailable)
		return Anonymous()
	}

	return Authenticated(*id)
}
