// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ericfisherdev/blimp/internal/domain/model"
	"github.com/ericfisherdev/blimp/internal/domain/port/driven"
)

// DefaultUpstreamTimeout bounds a single action when no timeout is configured.
const DefaultUpstreamTimeout = 30 * time.Second

// DispatcherOptions holds the optional collaborators of a Dispatcher.
// Zero values select sensible defaults.
type DispatcherOptions struct {
	Timeout        time.Duration
	Refresher      driven.TokenRefresher
	Recorder       driven.DispatchRecorder
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
	Now            func() time.Time
}

// Dispatcher routes a proxy request to the adapter action for the app,
// scoped to the caller's own credential. It never returns an error: every
// outcome is folded into a model.Envelope.
type Dispatcher struct {
	registry  *Registry
	store     driven.CredentialStore
	timeout   time.Duration
	refresher driven.TokenRefresher
	recorder  driven.DispatchRecorder
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewDispatcher creates a Dispatcher over registry and store.
func NewDispatcher(registry *Registry, store driven.CredentialStore, opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{
		registry:  registry,
		store:     store,
		timeout:   opts.Timeout,
		refresher: opts.Refresher,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if d.timeout <= 0 {
		d.timeout = DefaultUpstreamTimeout
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.now == nil {
		d.now = time.Now
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	d.tracer = tp.Tracer("github.com/ericfisherdev/blimp/internal/application")
	return d
}

// Registry returns the registry the dispatcher routes through.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch resolves app and action, loads the user's active credential and
// runs the action handler under the upstream timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, app, action, userID string, payload model.Payload) model.Envelope {
	start := d.now()
	appName := NormalizeAppName(app)

	ctx, span := d.tracer.Start(ctx, "proxy.dispatch", trace.WithAttributes(
		attribute.String("proxy.app", appName),
		attribute.String("proxy.action", action),
	))
	defer span.End()

	result, err := d.dispatch(ctx, appName, action, userID, payload)
	elapsed := d.now().Sub(start)

	var kind model.ErrorKind
	if err != nil {
		kind = model.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		span.SetAttributes(attribute.String("proxy.outcome", string(kind)))
	} else {
		span.SetAttributes(attribute.String("proxy.outcome", "success"))
	}

	if d.recorder != nil {
		d.recorder.RecordDispatch(appName, action, kind, elapsed)
	}

	if err != nil {
		d.logFailure(appName, action, userID, kind, elapsed, err)
		return model.Fail(err)
	}

	d.logger.Info("proxy dispatch succeeded",
		"app", appName,
		"action", action,
		"user_id", userID,
		"duration", elapsed,
	)
	return model.Succeed(result)
}

func (d *Dispatcher) dispatch(ctx context.Context, app, action, userID string, payload model.Payload) (any, error) {
	adapter, ok := d.registry.Lookup(app)
	if !ok {
		return nil, model.UnsupportedApp(app)
	}
	act, ok := d.registry.Action(app, action)
	if !ok {
		return nil, model.UnsupportedAction(app, action)
	}
	if strings.TrimSpace(userID) == "" {
		return nil, model.PayloadValidation("user_id is required but was not provided")
	}

	cred, err := d.loadCredential(ctx, app, userID)
	if err != nil {
		return nil, err
	}

	validated, err := model.ValidatePayload(act.Fields, payload)
	if err != nil {
		return nil, err
	}

	return d.invoke(ctx, adapter, act, *cred, validated)
}

// loadCredential fetches the active credential and checks it is usable,
// running the refresh hook when the token has expired.
func (d *Dispatcher) loadCredential(ctx context.Context, app, userID string) (*model.CredentialRecord, error) {
	cred, err := d.store.GetActive(ctx, userID, app)
	if err != nil {
		return nil, model.CredentialStoreUnavailable(app, err)
	}
	if cred == nil || !cred.IsActive {
		return nil, model.NoCredentials(app)
	}
	if !cred.HasAccessToken() {
		return nil, model.InvalidCredentials(app)
	}
	if !cred.IsExpired(d.now()) {
		return cred, nil
	}

	if d.refresher == nil {
		return nil, model.TokenExpired(app, nil)
	}
	refreshed, err := d.refresher.Refresh(ctx, *cred)
	if err != nil {
		return nil, model.TokenExpired(app, err)
	}
	if refreshed == nil || !refreshed.HasAccessToken() || refreshed.IsExpired(d.now()) {
		return nil, model.TokenExpired(app, errors.New("refresher returned an unusable credential"))
	}
	if _, err := d.store.Put(ctx, *refreshed); err != nil {
		d.logger.Warn("failed to persist refreshed credential",
			"app", app,
			"user_id", userID,
			"error", err,
		)
	}
	return refreshed, nil
}

// invoke runs the handler under the upstream timeout. Panics are recovered
// and reported as an internal failure.
func (d *Dispatcher) invoke(
	ctx context.Context,
	adapter driven.AppAdapter,
	act driven.Action,
	cred model.CredentialRecord,
	payload model.Payload,
) (result any, err error) {
	bound := d.callBound(ctx)
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("panic in action handler",
				"app", adapter.Name(),
				"action", act.Name,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			result = nil
			err = model.Internal(
				fmt.Sprintf("%s %s failed unexpectedly", adapter.Name(), act.Name),
				fmt.Errorf("panic: %v", rec),
			)
		}
	}()

	result, err = act.Handler(callCtx, cred, payload)
	if err == nil {
		return result, nil
	}
	return nil, d.normalizeError(ctx, callCtx, bound, adapter, act, err)
}

// callBound is the time a handler gets: the dispatch timeout, or what is
// left of the caller's deadline when that is shorter.
func (d *Dispatcher) callBound(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return d.timeout
	}
	left := time.Until(deadline)
	if left >= d.timeout {
		return d.timeout
	}
	if left >= time.Second {
		return left.Round(time.Second)
	}
	return left.Round(time.Millisecond)
}

// normalizeError makes sure every handler failure carries a ProxyError so the
// caller gets a stable message. When the call deadline fired, a timeout names
// that bound rather than the adapter's own client timeout.
func (d *Dispatcher) normalizeError(parent, callCtx context.Context, bound time.Duration, adapter driven.AppAdapter, act driven.Action, err error) error {
	var pe *model.ProxyError
	if errors.As(err, &pe) {
		if pe.Kind == model.KindTimeout && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return model.Timeout(adapter.DisplayName(), bound, err)
		}
		return err
	}

	if parent.Err() != nil && !errors.Is(parent.Err(), context.DeadlineExceeded) {
		return model.Internal(
			fmt.Sprintf("Request cancelled before %s %s completed", adapter.Name(), act.Name),
			err,
		)
	}
	if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil || isNetTimeout(err) {
		return model.Timeout(adapter.DisplayName(), bound, err)
	}
	return model.UpstreamAPI(adapter.DisplayName(), "request failed", err)
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (d *Dispatcher) logFailure(app, action, userID string, kind model.ErrorKind, elapsed time.Duration, err error) {
	level := slog.LevelError
	if kind.UserCorrectable() {
		level = slog.LevelWarn
	}

	attrs := []any{
		"app", app,
		"action", action,
		"user_id", userID,
		"kind", string(kind),
		"user_correctable", kind.UserCorrectable(),
		"duration", elapsed,
		"error", err.Error(),
	}
	if cause := errors.Unwrap(err); cause != nil {
		attrs = append(attrs, "cause", cause.Error())
	}
	d.logger.Log(context.Background(), level, "proxy dispatch failed", attrs...)
}
