// Package results downloads lab result files from SFTP partners and matches them to patients.
package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-iis/internal/domain/immunization"
	"github.com/drfirst/go-iis/internal/domain/transmission"
	"github.com/drfirst/go-iis/internal/hl7v2/v251"
	"github.com/drfirst/go-iis/internal/observability/metrics"
	"github.com/drfirst/go-iis/pkg/idempotency"
	"github.com/drfirst/go-iis/pkg/workerpool"
)

// JobName is used for the run lock and metrics push
const JobName = "results"

const archiveStamp = "20060102150405"

// ErrPartnerFailed wraps the failures of individual partners
var ErrPartnerFailed = errors.New("partner results failed")

// Session is an open connection to one partner
type Session interface {
	List(dir string) ([]string, error)
	Fetch(dir, name, localPath string) error
	Close() error
}

// Dialer opens partner sessions
type Dialer interface {
	Dial(ctx context.Context, p *immunization.Partner) (Session, error)
}

// Config controls a reconciliation run
type Config struct {
	// ArchiveDir receives every downloaded file
	ArchiveDir string
	Workers    int
	// Pushgateway, when set, receives the run's metrics
	Pushgateway string
}

// Deps are the reconciler collaborators
type Deps struct {
	Partners immunization.PartnerSource
	Dialer   Dialer
	Ledger   *transmission.Ledger
	Events   transmission.Publisher
	Guard    *idempotency.RunGuard
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Out      io.Writer
	Now      func() time.Time
}

// PartnerReport is the outcome for one partner
type PartnerReport struct {
	Partner   *immunization.Partner
	Files     int
	Matched   int
	Unmatched int
	Err       error
}

// Report summarizes a run
type Report struct {
	RunID    string
	Partners []*PartnerReport
}

// Files returns the number of files fetched per partner name, in partner order
func (r *Report) Files() ([]string, map[string]int) {
	var names []string
	counts := make(map[string]int)
	for _, p := range r.Partners {
		if _, seen := counts[p.Partner.Name]; !seen {
			names = append(names, p.Partner.Name)
		}
		counts[p.Partner.Name] += p.Files
	}
	return names, counts
}

// Reconciler runs the results job
type Reconciler struct {
	cfg    Config
	deps   Deps
	out    *syncWriter
	tracer trace.Tracer
}

// New creates a reconciler
func New(cfg Config, deps Deps) *Reconciler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Events == nil {
		deps.Events = transmission.NopPublisher{}
	}
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.Workers <= 0 {
		cfg.Workers = workerpool.DefaultConfig().Workers
	}
	return &Reconciler{
		cfg:    cfg,
		deps:   deps,
		out:    &syncWriter{w: deps.Out},
		tracer: otel.Tracer("results"),
	}
}

// Run fetches and reconciles files from every active partner. Partners are
// processed concurrently; files within a partner are processed in order.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	if r.deps.Guard == nil {
		return r.run(ctx, "")
	}
	var report *Report
	err := r.deps.Guard.Do(ctx, JobName, func(ctx context.Context, run *idempotency.Run) error {
		var err error
		report, err = r.run(ctx, run.ID)
		return err
	})
	return report, err
}

func (r *Reconciler) run(ctx context.Context, runID string) (*Report, error) {
	ctx, span := r.tracer.Start(ctx, "results_run", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	log := r.deps.Logger.With(zap.String("run_id", runID))

	if err := os.MkdirAll(r.cfg.ArchiveDir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir %s: %w", r.cfg.ArchiveDir, err)
	}

	partners, err := r.deps.Partners.Partners(ctx)
	if err != nil {
		return nil, fmt.Errorf("list partners: %w", err)
	}
	log.Info("sftp partners selected", zap.Int("count", len(partners)))

	stamp := r.deps.Now().Format(archiveStamp)
	tasks := make([]*workerpool.Task, len(partners))
	for i, p := range partners {
		tasks[i] = &workerpool.Task{ID: strconv.FormatInt(p.ID, 10), Payload: p}
	}

	results, err := workerpool.Run(ctx, workerpool.Config{Workers: r.cfg.Workers}, tasks,
		func(ctx context.Context, task *workerpool.Task) (any, error) {
			pr := r.partner(ctx, runID, stamp, task.Payload.(*immunization.Partner), log)
			return pr, pr.Err
		}, log)

	report := &Report{RunID: runID}
	var failures []error
	for i, res := range results {
		pr, ok := res.Data.(*PartnerReport)
		if !ok {
			pr = &PartnerReport{Partner: partners[i], Err: res.Err}
		}
		report.Partners = append(report.Partners, pr)
		if pr.Err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", pr.Partner.Name, pr.Err))
		}
	}

	names, counts := report.Files()
	for _, name := range names {
		fmt.Fprintf(r.out, "%s => %d files.\n", name, counts[name])
	}

	if err := r.deps.Metrics.Push(context.WithoutCancel(ctx), r.cfg.Pushgateway, JobName); err != nil {
		log.Warn("metrics push failed", zap.Error(err))
	}

	if err != nil {
		return report, err
	}
	if len(failures) > 0 {
		return report, fmt.Errorf("%w: %w", ErrPartnerFailed, errors.Join(failures...))
	}
	return report, nil
}

func (r *Reconciler) partner(ctx context.Context, runID, stamp string, p *immunization.Partner, log *zap.Logger) *PartnerReport {
	ctx, span := r.tracer.Start(ctx, "results_partner",
		trace.WithAttributes(attribute.Int64("ppid", p.ID), attribute.String("partner", p.Name)))
	defer span.End()

	pr := &PartnerReport{Partner: p}
	log = log.With(zap.Int64("ppid", p.ID), zap.String("partner", p.Name))

	fmt.Fprintf(r.out, "Connecting to %s at %s\n", p.Name, p.RemoteHost)
	session, err := r.deps.Dialer.Dial(ctx, p)
	if err != nil {
		fmt.Fprintf(r.out, "Login to %s as %s failed.\n", p.RemoteHost, p.Login)
		span.RecordError(err)
		pr.Err = err
		return pr
	}
	defer session.Close()

	names, err := session.List(p.ResultsPath)
	if err != nil {
		span.RecordError(err)
		pr.Err = err
		return pr
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			pr.Err = err
			return pr
		}

		archived := fmt.Sprintf("%s.%d.%s.%s", stamp, p.ID, p.NPI, name)
		local := filepath.Join(r.cfg.ArchiveDir, archived)
		if err := session.Fetch(p.ResultsPath, name, local); err != nil {
			log.Warn("result file not downloaded", zap.String("file", name), zap.Error(err))
			continue
		}
		pr.Files++
		r.deps.Metrics.ResultFile(p.Name)

		if err := r.reconcile(ctx, runID, p, archived, local, pr, log); err != nil {
			span.RecordError(err)
			pr.Err = err
			return pr
		}
	}

	log.Info("partner results fetched",
		zap.Int("files", pr.Files),
		zap.Int("matched", pr.Matched),
		zap.Int("unmatched", pr.Unmatched))
	return pr
}

// reconcile writes one ORD row per PID in the archived file
func (r *Reconciler) reconcile(ctx context.Context, runID string, p *immunization.Partner, archived, local string, pr *PartnerReport, log *zap.Logger) error {
	log = log.With(zap.String("file", archived))

	content, err := os.ReadFile(local)
	if err != nil {
		return fmt.Errorf("read %s: %w", local, err)
	}
	msg, err := v251.Decode(string(content))
	if err != nil {
		log.Warn("result file is not an HL7 message", zap.Error(err))
		return nil
	}

	for _, pid := range msg.PIDs() {
		lname, fname := pid.FamilyName(), pid.GivenName()
		dob := truncate(pid.DateOfBirth(), 8)

		matches, err := r.deps.Partners.FindPatients(ctx, lname, fname, isoDate(dob))
		if err != nil {
			return fmt.Errorf("match patient in %s: %w", archived, err)
		}

		key, result := "0", transmission.ResultCheck
		if len(matches) == 1 {
			key, result = strconv.FormatInt(matches[0].PID, 10), transmission.ResultPatientMatched
			pr.Matched++
		} else {
			pr.Unmatched++
		}
		r.deps.Metrics.PatientMatch(result)

		body, err := json.Marshal(resultBody{File: archived, LastName: lname, FirstName: fname, DOB: dob})
		if err != nil {
			return err
		}

		rec, err := r.deps.Ledger.Record(context.WithoutCancel(ctx), transmission.Entry{
			Type:    transmission.TypeORD,
			Partner: p.LedgerName(),
			Source:  immunization.OrdersSourceTable,
			Key:     key,
			Body:    string(body),
			Result:  result,
		})
		if err != nil {
			return fmt.Errorf("log result for %s: %w", archived, err)
		}

		log.Debug("result reconciled", zap.String("result", result), zap.Int("matches", len(matches)))
		e := transmission.NewEvent(transmission.EventResultReconciled, runID, rec, nil)
		if err := r.deps.Events.Publish(ctx, e); err != nil {
			log.Warn("reconciled event not published", zap.String("event_id", e.ID), zap.Error(err))
		}
	}
	return nil
}

type resultBody struct {
	File      string `json:"file"`
	LastName  string `json:"lname"`
	FirstName string `json:"fname"`
	DOB       string `json:"DOB"`
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// isoDate turns YYYYMMDD into YYYY-MM-DD, leaving anything else unchanged
func isoDate(compact string) string {
	t, err := time.Parse("20060102", compact)
	if err != nil {
		return compact
	}
	return t.Format(time.DateOnly)
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
