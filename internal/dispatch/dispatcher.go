package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/tausound/server/internal/errors"
	"github.com/tausound/server/internal/slot"
)

const tracerName = "github.com/tausound/server/internal/dispatch"

// Session is what a namespace's sessions expose to the dispatcher.
type Session interface {
	slot.Entry
	// Open allocates the engine instance. On failure the dispatcher resets
	// the session and frees its slot.
	Open(ctx context.Context, args json.RawMessage) error
}

// Namespace is the method set of one session kind.
type Namespace[S Session] struct {
	Kind       string
	OpenMethod string
	// New constructs an unopened session bound to slot.
	New      func(slot int) S
	Handlers map[string]Handler[S]
}

// Dispatcher routes commands for one kind. It holds no queue of its own:
// commands are handled in the order the channel delivers them, and each
// handler runs on its session's executor.
type Dispatcher[S Session] struct {
	ns       Namespace[S]
	registry *slot.Registry[S]
	tracer   trace.Tracer
	logger   *slog.Logger
}

// New returns a dispatcher over registry.
func New[S Session](ns Namespace[S], registry *slot.Registry[S], logger *slog.Logger) *Dispatcher[S] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher[S]{
		ns:       ns,
		registry: registry,
		tracer:   otel.Tracer(tracerName),
		logger:   logger.With("component", "dispatch", "kind", ns.Kind),
	}
}

// Registry returns the slot table the dispatcher routes into.
func (d *Dispatcher[S]) Registry() *slot.Registry[S] { return d.registry }

// Methods lists every method the dispatcher answers, including resetPlugin.
func (d *Dispatcher[S]) Methods() []string {
	methods := []string{MethodResetPlugin, d.ns.OpenMethod}
	for m := range d.ns.Handlers {
		methods = append(methods, m)
	}
	return methods
}

// Handle runs cmd and never panics; every outcome is a Result.
func (d *Dispatcher[S]) Handle(ctx context.Context, cmd Command) (res Result) {
	ctx, span := d.tracer.Start(ctx, d.ns.Kind+"."+cmd.Method, trace.WithAttributes(
		attribute.String("tau.kind", d.ns.Kind),
		attribute.String("tau.method", cmd.Method),
	))
	if cmd.Slot != nil {
		span.SetAttributes(attribute.Int("tau.slot", *cmd.Slot))
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked", "method", cmd.Method, "panic", r)
			res = Failure(apperrors.New(apperrors.CodeUnknown, "internal error handling %s", cmd.Method))
		}
		if res.Err != nil {
			span.SetStatus(codes.Error, res.Err.Error())
			span.SetAttributes(attribute.String("tau.error_code", string(res.Code())))
		}
		span.End()
	}()

	switch {
	case cmd.Method == MethodResetPlugin:
		d.registry.ResetAll()
		d.logger.Info("reset all sessions")
		return OK(0)
	case cmd.Method == d.ns.OpenMethod:
		return d.open(ctx, cmd)
	}

	handler, ok := d.ns.Handlers[cmd.Method]
	if !ok {
		return Failure(apperrors.NotImplemented(cmd.Method))
	}
	if cmd.Slot == nil {
		return Failure(apperrors.InvalidArgument("slotNo", "required for %s", cmd.Method))
	}

	s, err := d.registry.Resolve(*cmd.Slot)
	if err != nil {
		return Failure(err)
	}
	value, err := handler(ctx, s, cmd.Args)
	if err != nil {
		d.logger.Debug("command failed", "method", cmd.Method, "slot", *cmd.Slot, "error", err)
		return Failure(err)
	}
	return OK(value)
}

// open binds a new session at the declared slot, or the next one when the
// command omits it, and answers with the slot number.
func (d *Dispatcher[S]) open(ctx context.Context, cmd Command) Result {
	slotNo := d.registry.Next()
	if cmd.Slot != nil {
		slotNo = *cmd.Slot
	}

	s := d.ns.New(slotNo)
	if err := d.registry.Claim(slotNo, s); err != nil {
		s.Reset()
		return Failure(err)
	}

	if err := s.Open(ctx, cmd.Args); err != nil {
		s.Reset()
		d.registry.Release(slotNo, s)
		d.logger.Warn("open failed", "slot", slotNo, "error", err)
		return Failure(err)
	}
	d.logger.Info("session opened", "slot", slotNo)
	return OK(slotNo)
}
