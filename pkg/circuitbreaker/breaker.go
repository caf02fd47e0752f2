// Package circuitbreaker wraps sony/gobreaker with tracing, call counters and
// defaults for a single serially called endpoint.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrOpen is returned without calling the protected function while the circuit is open
var ErrOpen = errors.New("circuit breaker open")

// State represents the circuit breaker state
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Gauge returns the numeric form used by the state gauge (0=closed, 1=open, 2=half-open)
func (s State) Gauge() int {
	switch s {
	case StateOpen:
		return 1
	case StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// Config holds circuit breaker configuration
type Config struct {
	// Name identifies the circuit breaker
	Name string
	// MaxRequests is max requests allowed in half-open state
	MaxRequests uint32
	// Interval is the cyclic period for clearing counts in closed state, zero never clears
	Interval time.Duration
	// Timeout is how long to wait before transitioning from open to half-open
	Timeout time.Duration
	// ConsecutiveFailures opens the circuit
	ConsecutiveFailures uint32
	// OnStateChange is called after every transition
	OnStateChange func(name string, to State)
}

// DefaultConfig returns defaults suited to one registry endpoint called serially
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxRequests:         1,
		Timeout:             2 * time.Minute,
		ConsecutiveFailures: 5,
	}
}

// CircuitBreaker guards calls to one remote endpoint
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *zap.Logger
	tracer trace.Tracer
	calls  metric.Int64Counter
	notify func(name string, to State)
}

// New builds a breaker that opens after cfg.ConsecutiveFailures failed calls
func New(cfg Config, logger *zap.Logger) (*CircuitBreaker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultConfig(cfg.Name).ConsecutiveFailures
	}

	calls, err := otel.Meter("circuit-breaker").Int64Counter("iis_circuit_breaker_calls_total",
		metric.WithDescription("Calls through the circuit breaker by outcome"))
	if err != nil {
		return nil, fmt.Errorf("create calls counter: %w", err)
	}

	c := &CircuitBreaker{
		name:   cfg.Name,
		logger: logger.With(zap.String("breaker", cfg.Name)),
		tracer: otel.Tracer("circuit-breaker"),
		calls:  calls,
		notify: cfg.OnStateChange,
	}
	threshold := cfg.ConsecutiveFailures
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: c.transition,
		// cancellation by the caller does not count against the endpoint
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return c, nil
}

// Execute runs fn through the breaker. While open it returns ErrOpen without calling fn.
func Execute[T any](ctx context.Context, c *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := c.tracer.Start(ctx, "circuit_breaker."+c.name,
		trace.WithAttributes(attribute.String("state", string(c.State()))))
	defer span.End()

	var zero T
	out, err := c.cb.Execute(func() (any, error) { return fn(ctx) })
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.count(ctx, "rejected")
		span.SetAttributes(attribute.Bool("rejected", true))
		return zero, fmt.Errorf("%s: %w", c.name, ErrOpen)
	case err != nil:
		c.count(ctx, "failed")
		span.RecordError(err)
		return zero, err
	}
	c.count(ctx, "ok")

	v, _ := out.(T)
	return v, nil
}

func (c *CircuitBreaker) count(ctx context.Context, outcome string) {
	c.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("name", c.name),
		attribute.String("outcome", outcome)))
}

// State reports the breaker's current state
func (c *CircuitBreaker) State() State {
	return fromGobreaker(c.cb.State())
}

// IsOpen reports whether calls are currently rejected
func (c *CircuitBreaker) IsOpen() bool {
	return c.State() == StateOpen
}

// Name returns the breaker name
func (c *CircuitBreaker) Name() string {
	return c.name
}

func (c *CircuitBreaker) transition(_ string, from, to gobreaker.State) {
	next := fromGobreaker(to)
	c.logger.Warn("circuit breaker state changed",
		zap.String("from", string(fromGobreaker(from))),
		zap.String("to", string(next)))
	if c.notify != nil {
		c.notify(c.name, next)
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	}
	return StateClosed
}
