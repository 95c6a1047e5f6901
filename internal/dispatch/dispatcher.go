package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/pztrick/television/internal/adapter/metrics"
	"github.com/pztrick/television/internal/domain"
	"github.com/pztrick/television/internal/platform/correlation"
	"github.com/pztrick/television/internal/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/pztrick/television/internal/dispatch"

// ErrRegistryNotSealed is returned by New when bootstrap has not finished.
var ErrRegistryNotSealed = errors.New("dispatcher requires a sealed registry")

// Options configures a Dispatcher.
type Options struct {
	// Debug includes the failing listener in backend error replies.
	Debug   bool
	Metrics *metrics.DispatchMetrics
	Tracer  trace.Tracer
}

// Dispatcher resolves and invokes listeners for one process.
type Dispatcher struct {
	registry *registry.Registry
	debug    bool
	metrics  *metrics.DispatchMetrics
	tracer   trace.Tracer

	mu       sync.Mutex
	closing  bool // set by Wait; Go drops frames afterwards
	inFlight sync.WaitGroup
}

// New creates a dispatcher over a sealed registry.
func New(reg *registry.Registry, opts Options) (*Dispatcher, error) {
	if !reg.Sealed() {
		return nil, ErrRegistryNotSealed
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Dispatcher{
		registry: reg,
		debug:    opts.Debug,
		metrics:  opts.Metrics,
		tracer:   tracer,
	}, nil
}

// Go dispatches raw on its own goroutine. Messages from one connection are not
// ordered. It reports false, and dispatches nothing, once Wait has been called.
func (d *Dispatcher) Go(ctx context.Context, s domain.Session, raw []byte) bool {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		slog.DebugContext(ctx, "Dropping request during shutdown", "conn_id", s.ID())
		return false
	}
	d.inFlight.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.inFlight.Done()
		d.Dispatch(ctx, s, raw)
	}()
	return true
}

// Wait stops Go from accepting new frames and blocks until every dispatch
// already started has returned.
func (d *Dispatcher) Wait() {
	d.mu.Lock()
	d.closing = true
	d.mu.Unlock()
	d.inFlight.Wait()
}

// Dispatch handles one inbound frame and sends the reply to s. The failure, if
// any, is logged after the reply is sent.
func (d *Dispatcher) Dispatch(ctx context.Context, s domain.Session, raw []byte) {
	ctx = correlation.WithID(ctx, correlation.NewID())
	start := time.Now()

	if d.metrics != nil {
		d.metrics.InFlight.Inc()
		defer d.metrics.InFlight.Dec()
	}

	res := d.handle(ctx, s, raw)

	frame, err := json.Marshal(res.reply)
	if err != nil {
		res = d.backendFailure(res, fmt.Errorf("encode reply: %w", err), nil)
		frame, _ = json.Marshal(res.reply)
	}
	s.Send(frame)

	if d.metrics != nil {
		d.metrics.RequestsTotal.WithLabelValues(res.outcome).Inc()
		d.metrics.RequestDuration.WithLabelValues(res.outcome).Observe(time.Since(start).Seconds())
	}
	d.log(ctx, s, res)
}

// result is the outcome of one exchange before it is written.
type result struct {
	channel domain.Channel
	reply   domain.Reply
	outcome string
	errorTo *string
	origin  string
	cause   error
	stack   []byte
}

func (d *Dispatcher) handle(ctx context.Context, s domain.Session, raw []byte) result {
	req, err := decode(raw)
	if err != nil {
		replyTo, errorTo := salvage(raw)
		res := result{reply: domain.Reply{ReplyTo: replyTo}, errorTo: errorTo, origin: "request decoding"}
		res = d.backendFailure(res, err, nil)
		res.outcome = metrics.OutcomeDecodeError
		return res
	}

	res := result{
		channel: req.Channel,
		reply:   domain.Reply{ReplyTo: req.ReplyTo},
		errorTo: req.ErrorTo,
	}

	ctx, span := d.tracer.Start(ctx, "dispatch "+string(req.Channel),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("television.channel", string(req.Channel)),
			attribute.String("television.conn_id", s.ID()),
		))
	defer span.End()

	listener, err := d.registry.Resolve(req.Channel)
	if err != nil {
		span.SetStatus(codes.Error, "listener not found")
		return d.failure(res, err, metrics.OutcomeNotFound)
	}
	res.origin = fmt.Sprintf("%s (%s)", listener.Channel, listener.Origin)

	if err := listener.Authorize(s.Identity()); err != nil {
		span.SetStatus(codes.Error, "unauthorized")
		return d.failure(res, err, metrics.OutcomeUnauthorized)
	}

	value, stack, err := invoke(ctx, listener, s, registry.Args(req.Payload))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var authErr *domain.AuthorizationError
		if errors.As(err, &authErr) {
			return d.failure(res, authErr, metrics.OutcomeUnauthorized)
		}
		return d.backendFailure(res, err, stack)
	}

	res.reply.Payload = value
	res.outcome = metrics.OutcomeOK
	return res
}

// failure turns a tagged error into an error reply addressed to errorTo, falling
// back to replyTo.
func (d *Dispatcher) failure(res result, err error, outcome string) result {
	if res.errorTo != nil {
		res.reply.ReplyTo = res.errorTo
	}
	res.reply.Payload = err.Error()
	res.outcome = outcome
	res.cause = err
	return res
}

func (d *Dispatcher) backendFailure(res result, cause error, stack []byte) result {
	backendErr := &domain.BackendError{
		Origin: res.origin,
		Last:   lastLine(cause.Error()),
		Cause:  cause,
		Stack:  stack,
	}
	res = d.failure(res, backendErr, metrics.OutcomeBackendError)
	res.reply.Payload = backendErr.Message(d.debug)
	res.stack = stack
	return res
}

// invoke runs the handler and converts a panic into an error.
func invoke(ctx context.Context, l *registry.Listener, s domain.Session, args registry.Args) (value any, stack []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("panic: %v", r)
			stack = debug.Stack()
		}
	}()
	value, err = l.Handler(ctx, s, args)
	return value, nil, err
}

func (d *Dispatcher) log(ctx context.Context, s domain.Session, res result) {
	attrs := []any{"conn_id", s.ID(), "channel", res.channel, "outcome", res.outcome}
	switch res.outcome {
	case metrics.OutcomeOK:
		slog.DebugContext(ctx, "Request handled", attrs...)
	case metrics.OutcomeUnauthorized:
		slog.InfoContext(ctx, "Request rejected by guard", append(attrs, "code", res.cause.Error())...)
	case metrics.OutcomeNotFound:
		slog.WarnContext(ctx, "Request for unknown channel", attrs...)
	default:
		attrs = append(attrs, "error", res.cause)
		var backendErr *domain.BackendError
		if errors.As(res.cause, &backendErr) && backendErr.Cause != nil {
			attrs = append(attrs, "cause", backendErr.Cause.Error())
		}
		if len(res.stack) > 0 {
			attrs = append(attrs, "stack", string(res.stack))
		}
		slog.ErrorContext(ctx, "Request failed", attrs...)
	}
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
