// Package job runs the registry batch and query jobs.
package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-iis/internal/domain/immunization"
	"github.com/drfirst/go-iis/internal/domain/transmission"
	"github.com/drfirst/go-iis/internal/hl7v2/ack"
	"github.com/drfirst/go-iis/internal/hl7v2/mapper"
	"github.com/drfirst/go-iis/internal/hl7v2/v251"
	"github.com/drfirst/go-iis/internal/observability/metrics"
	"github.com/drfirst/go-iis/pkg/circuitbreaker"
	"github.com/drfirst/go-iis/pkg/idempotency"
)

// Job names used for run locks and metrics pushes
const (
	NameVXU = "vxu"
	NameQBP = "qbp"
)

// DefaultLimit is the candidate page size
const DefaultLimit = 100

// ErrRegistryUnavailable stops a run when the registry breaker rejects a call.
// The rejected record is not logged, so it stays pending for the next run.
var ErrRegistryUnavailable = errors.New("registry unavailable")

// notSent reports whether err means the message never left the process
func notSent(err error) bool {
	return errors.Is(err, circuitbreaker.ErrOpen)
}

// Submitter sends HL7 messages to the registry
type Submitter interface {
	SubmitSingleMessage(ctx context.Context, hl7 string) (string, error)
	// Partner is the msg_partner value for ledger rows
	Partner() string
}

// Deps are the collaborators shared by the registry jobs
type Deps struct {
	Source  immunization.Source
	Builder *mapper.Builder
	Client  Submitter
	Ledger  *transmission.Ledger
	Events  transmission.Publisher
	Guard   *idempotency.RunGuard
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	// Out receives operator-facing output
	Out io.Writer
	// Pushgateway, when set, receives the run's metrics
	Pushgateway string
}

func (d *Deps) defaults() {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Events == nil {
		d.Events = transmission.NopPublisher{}
	}
	if d.Out == nil {
		d.Out = io.Discard
	}
}

// VXUOptions control one batch run
type VXUOptions struct {
	Limit int
	// DryRun builds and prints messages without submitting or logging them
	DryRun bool
}

// VXUReport summarizes a batch run
type VXUReport struct {
	RunID             string
	Selected          int
	Submitted         int
	Skipped           int
	TransportFailures int
	Conflicts         int
	Tally             *ack.Tally
}

// VXURunner exports pending immunizations to the registry
type VXURunner struct {
	deps   Deps
	tracer trace.Tracer
}

// NewVXURunner creates a batch runner
func NewVXURunner(deps Deps) *VXURunner {
	deps.defaults()
	return &VXURunner{deps: deps, tracer: otel.Tracer("job")}
}

// Run selects pending candidates and submits them one at a time.
// Cancellation stops the batch before the next record; rows already written stay.
func (r *VXURunner) Run(ctx context.Context, opts VXUOptions) (*VXUReport, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.DryRun {
		return r.dryRun(ctx, opts.Limit)
	}
	if r.deps.Guard == nil {
		return r.batch(ctx, "", opts.Limit)
	}

	var report *VXUReport
	err := r.deps.Guard.Do(ctx, NameVXU, func(ctx context.Context, run *idempotency.Run) error {
		var err error
		report, err = r.batch(ctx, run.ID, opts.Limit)
		return err
	})
	return report, err
}

func (r *VXURunner) batch(ctx context.Context, runID string, limit int) (*VXUReport, error) {
	ctx, span := r.tracer.Start(ctx, "vxu_run",
		trace.WithAttributes(attribute.String("run_id", runID), attribute.Int("limit", limit)))
	defer span.End()

	log := r.deps.Logger.With(zap.String("run_id", runID))
	report := &VXUReport{RunID: runID, Tally: ack.NewTally()}

	candidates, err := r.deps.Source.SelectPending(ctx, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return report, fmt.Errorf("select pending immunizations: %w", err)
	}
	report.Selected = len(candidates)
	log.Info("pending immunizations selected", zap.Int("count", len(candidates)), zap.Int("limit", limit))

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			log.Warn("batch cancelled", zap.Int("submitted", report.Submitted))
			r.finish(ctx, report, log)
			return report, err
		}
		if err := r.process(ctx, runID, c, report, log); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "batch aborted")
			r.finish(ctx, report, log)
			return report, err
		}
	}

	r.finish(ctx, report, log)
	return report, nil
}

// process handles one candidate. Ledger write failures and an open registry breaker
// stop the batch.
func (r *VXURunner) process(ctx context.Context, runID string, c *immunization.Candidate, report *VXUReport, log *zap.Logger) error {
	ctx, span := r.tracer.Start(ctx, "vxu_record", trace.WithAttributes(attribute.Int64("immunization_id", c.ID)))
	defer span.End()

	log = log.With(zap.Int64("immunization_id", c.ID), zap.Int64("pid", c.PatientID))

	r.resolveRace(ctx, c, log)

	built, err := r.deps.Builder.BuildVXU(c)
	if err != nil {
		var mapErr *mapper.MapError
		if errors.As(err, &mapErr) {
			report.Skipped++
			log.Warn("immunization skipped", zap.String("field", mapErr.Field), zap.Error(err))
			return nil
		}
		return err
	}
	for _, w := range built.Warnings {
		log.Warn(w)
	}
	r.deps.Metrics.MessageBuilt(string(transmission.TypeVXU))

	hl7 := v251.Encode(built.Message)

	start := time.Now()
	response, err := r.deps.Client.SubmitSingleMessage(ctx, hl7)
	elapsed := time.Since(start)
	if err != nil && notSent(err) {
		span.RecordError(err)
		log.Error("registry breaker open, stopping batch with record still pending",
			zap.Int("submitted", report.Submitted), zap.Error(err))
		return fmt.Errorf("immunization %d: %w: %w", c.ID, ErrRegistryUnavailable, err)
	}
	if err != nil {
		report.TransportFailures++
		r.deps.Metrics.TransportFailed()
		span.RecordError(err)
		log.Warn("registry submission failed, logging unknown outcome", zap.Error(err))
		response = ""
	}

	outcome := ack.Interpret(response)
	report.Submitted++
	report.Tally.Add(outcome.Code)
	r.deps.Metrics.Submitted(string(transmission.TypeVXU), string(outcome.Code), elapsed)
	for _, w := range outcome.Warnings {
		log.Warn("registry message", zap.String("ack", string(outcome.Code)), zap.String("text", w))
	}

	// the attempt is logged even when ctx was cancelled mid-call
	rec, err := r.deps.Ledger.Record(context.WithoutCancel(ctx), transmission.Entry{
		Type:     transmission.TypeVXU,
		Partner:  r.deps.Client.Partner(),
		Source:   immunization.SourceTable,
		Key:      strconv.FormatInt(c.ID, 10),
		Body:     hl7,
		Response: response,
	})
	if err != nil {
		if transmission.IsConflict(err) {
			report.Conflicts++
			log.Warn("immunization already logged by another run", zap.Error(err))
			return nil
		}
		return fmt.Errorf("log immunization %d: %w", c.ID, err)
	}

	log.Debug("immunization submitted",
		zap.String("control_id", built.ControlID),
		zap.String("ack", string(outcome.Code)),
		zap.Duration("elapsed", elapsed))

	warnings := append(append([]string(nil), built.Warnings...), outcome.Warnings...)
	r.publish(ctx, transmission.NewEvent(transmission.EventTransmissionLogged, runID, rec, warnings), log)
	return nil
}

func (r *VXURunner) resolveRace(ctx context.Context, c *immunization.Candidate, log *zap.Logger) {
	if c.Race != nil || c.Patient.Race == "" {
		return
	}
	race, err := r.deps.Source.Race(ctx, c.Patient.Race)
	if err != nil {
		log.Warn("race lookup failed, sending default", zap.String("race", c.Patient.Race), zap.Error(err))
		return
	}
	c.Race = race
}

func (r *VXURunner) publish(ctx context.Context, e *transmission.Event, log *zap.Logger) {
	if err := r.deps.Events.Publish(ctx, e); err != nil {
		log.Warn("outcome event not published", zap.String("event_id", e.ID), zap.Error(err))
	}
}

func (r *VXURunner) finish(ctx context.Context, report *VXUReport, log *zap.Logger) {
	for _, line := range report.Tally.Summary() {
		fmt.Fprintf(r.deps.Out, "%s: %d\n", line.Label, line.Count)
	}
	log.Info("vxu batch complete",
		zap.Int("selected", report.Selected),
		zap.Int("submitted", report.Submitted),
		zap.Int("skipped", report.Skipped),
		zap.Int("transport_failures", report.TransportFailures),
		zap.Int("conflicts", report.Conflicts))

	if err := r.deps.Metrics.Push(context.WithoutCancel(ctx), r.deps.Pushgateway, NameVXU); err != nil {
		log.Warn("metrics push failed", zap.Error(err))
	}
}

func (r *VXURunner) dryRun(ctx context.Context, limit int) (*VXUReport, error) {
	report := &VXUReport{Tally: ack.NewTally()}

	candidates, err := r.deps.Source.SelectPending(ctx, limit)
	if err != nil {
		return report, fmt.Errorf("select pending immunizations: %w", err)
	}
	report.Selected = len(candidates)

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		log := r.deps.Logger.With(zap.Int64("immunization_id", c.ID))
		r.resolveRace(ctx, c, log)

		built, err := r.deps.Builder.BuildVXU(c)
		if err != nil {
			report.Skipped++
			log.Warn("immunization skipped", zap.Error(err))
			continue
		}
		for _, w := range built.Warnings {
			log.Warn(w)
		}
		fmt.Fprintf(r.deps.Out, "%s\n\n", Printable(v251.Encode(built.Message)))
	}
	fmt.Fprintf(r.deps.Out, "%d built, %d skipped (dry run)\n", report.Selected-report.Skipped, report.Skipped)
	return report, nil
}

// Printable puts each segment of an encoded message on its own line
func Printable(hl7 string) string {
	return strings.TrimRight(strings.ReplaceAll(hl7, v251.TerminatorCR, "\n"), "\n")
}
