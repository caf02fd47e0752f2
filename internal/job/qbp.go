package job

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-iis/internal/domain/transmission"
	"github.com/drfirst/go-iis/internal/hl7v2/ack"
	"github.com/drfirst/go-iis/internal/hl7v2/mapper"
	"github.com/drfirst/go-iis/internal/hl7v2/v251"
)

// PatientSource is the ledger link source for queries
const PatientSource = "patient_data"

// QueryReport is the decoded registry answer to a QBP
type QueryReport struct {
	ControlID       string
	Code            ack.Code
	Status          ack.QueryStatus
	Administrations []v251.Administration
	Warnings        []string
}

// QueryRunner requests a patient's history or forecast from the registry
type QueryRunner struct {
	deps   Deps
	tracer trace.Tracer
}

// NewQueryRunner creates a query runner
func NewQueryRunner(deps Deps) *QueryRunner {
	deps.defaults()
	return &QueryRunner{deps: deps, tracer: otel.Tracer("job")}
}

// Query sends one QBP for pid, logs it and prints the grouped response.
// A transport failure is logged with an empty response and returned.
func (q *QueryRunner) Query(ctx context.Context, pid int64, intent mapper.Intent) (*QueryReport, error) {
	ctx, span := q.tracer.Start(ctx, "qbp_query",
		trace.WithAttributes(attribute.Int64("pid", pid), attribute.String("intent", intent.String())))
	defer span.End()

	log := q.deps.Logger.With(zap.Int64("pid", pid), zap.String("intent", intent.String()))

	patient, err := q.deps.Source.Patient(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("load patient %d: %w", pid, err)
	}

	built, err := q.deps.Builder.BuildQBP(patient, intent)
	if err != nil {
		return nil, err
	}
	q.deps.Metrics.MessageBuilt(string(transmission.TypeQBP))
	hl7 := v251.Encode(built.Message)

	response, sendErr := q.deps.Client.SubmitSingleMessage(ctx, hl7)
	if sendErr != nil && notSent(sendErr) {
		span.RecordError(sendErr)
		return nil, fmt.Errorf("query patient %d: %w: %w", pid, ErrRegistryUnavailable, sendErr)
	}
	if sendErr != nil {
		q.deps.Metrics.TransportFailed()
		span.RecordError(sendErr)
		log.Warn("registry query failed", zap.Error(sendErr))
		response = ""
	}

	outcome := ack.Interpret(response)
	report := &QueryReport{
		ControlID: built.ControlID,
		Code:      outcome.Code,
		Status:    outcome.QueryStatus,
		Warnings:  outcome.Warnings,
	}
	if outcome.Message != nil {
		report.Administrations = v251.GroupAdministrations(outcome.Message)
	}
	for _, w := range outcome.Warnings {
		log.Warn("registry message", zap.String("ack", string(outcome.Code)), zap.String("text", w))
	}

	_, err = q.deps.Ledger.Record(context.WithoutCancel(ctx), transmission.Entry{
		Type:     transmission.TypeQBP,
		Partner:  q.deps.Client.Partner(),
		Source:   PatientSource,
		Key:      strconv.FormatInt(pid, 10),
		Body:     hl7,
		Response: response,
	})
	if err != nil {
		return report, fmt.Errorf("log query for patient %d: %w", pid, err)
	}
	if sendErr != nil {
		return report, sendErr
	}

	q.print(report)
	if err := q.deps.Metrics.Push(context.WithoutCancel(ctx), q.deps.Pushgateway, NameQBP); err != nil {
		log.Warn("metrics push failed", zap.Error(err))
	}
	return report, nil
}

func (q *QueryRunner) print(r *QueryReport) {
	out := q.deps.Out
	fmt.Fprintf(out, "ACK: %s\n", r.Code.Label())
	if r.Status != "" {
		fmt.Fprintf(out, "QAK: %s (%s)\n", r.Status, r.Status.Meaning())
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "  ! %s\n", w)
	}
	for _, a := range r.Administrations {
		fmt.Fprintf(out, "RXA %s %s lot=%s\n",
			a.RXA.StartAdministration(),
			a.RXA.AdministeredCode(),
			a.RXA.LotNumber())
		for _, rxr := range a.Routes {
			fmt.Fprintf(out, "  RXR %s\n", strings.TrimRight(rxr.Route()+" "+rxr.Site(), " "))
		}
		for _, obx := range a.Observations {
			fmt.Fprintf(out, "  OBX %s = %s\n", obx.ObservationIdentifier(), obx.ObservationValue())
		}
	}
}

// ErrEchoMismatch means the registry answered connectivityTest with a different string
var ErrEchoMismatch = errors.New("connectivity test echo mismatch")

// Echoer is the registry connectivity test
type Echoer interface {
	ConnectivityTest(ctx context.Context, echo string) (string, error)
}

// Ping checks that the registry echoes a connectivityTest
func Ping(ctx context.Context, c Echoer, echo string) error {
	got, err := c.ConnectivityTest(ctx, echo)
	if err != nil {
		return fmt.Errorf("connectivity test: %w", err)
	}
	if !strings.Contains(got, echo) {
		return fmt.Errorf("%w: sent %q, got %q", ErrEchoMismatch, echo, got)
	}
	return nil
}
