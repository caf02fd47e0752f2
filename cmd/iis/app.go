package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/drfirst/go-iis/internal/config"
	"github.com/drfirst/go-iis/internal/domain/transmission"
	"github.com/drfirst/go-iis/internal/hl7v2/mapper"
	"github.com/drfirst/go-iis/internal/infrastructure/redpanda"
	"github.com/drfirst/go-iis/internal/infrastructure/soap"
	"github.com/drfirst/go-iis/internal/infrastructure/sqlstore"
	"github.com/drfirst/go-iis/internal/job"
	"github.com/drfirst/go-iis/internal/observability/logging"
	"github.com/drfirst/go-iis/internal/observability/metrics"
	"github.com/drfirst/go-iis/internal/observability/tracing"
	"github.com/drfirst/go-iis/pkg/circuitbreaker"
	"github.com/drfirst/go-iis/pkg/idempotency"
)

type loader func() (*config.Config, error)

// app holds the process-wide dependencies of one command
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	db      *sqlstore.DB

	closers []func(context.Context)
}

func setup(ctx context.Context, load loader, service string) (*app, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	a := &app{cfg: cfg, logger: logger.With(zap.String("service", service)), metrics: metrics.New()}
	a.onClose(func(context.Context) { logger.Sync() })

	tcfg := tracing.DefaultConfig(service)
	tcfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	tcfg.SampleRate = cfg.Observability.OTelSampleRate
	tp, err := tracing.Init(ctx, tcfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	if tp.Enabled() {
		a.logger.Info("tracing enabled", zap.String("endpoint", tcfg.OTLPEndpoint))
	}
	a.onClose(func(ctx context.Context) {
		if err := tp.Shutdown(ctx); err != nil {
			a.logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	})

	a.logger.Debug("configuration loaded", zap.String("path", cfg.Path))
	return a, nil
}

func (a *app) onClose(fn func(context.Context)) {
	a.closers = append(a.closers, fn)
}

// close runs the closers in reverse order
func (a *app) close() {
	ctx := context.Background()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
}

// openDB connects to the EHR database. Commands that write the ledger
// require the hl7log table to exist.
func (a *app) openDB(ctx context.Context, requireLedger bool) error {
	c := a.cfg.Database
	db, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:   c.Driver,
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		Name:     c.Name,
	}, a.logger)
	if err != nil {
		return err
	}
	a.db = db
	a.onClose(func(context.Context) { db.Close() })

	if requireLedger {
		if err := db.CheckLedger(ctx); err != nil {
			return fmt.Errorf("%w; run `iis migrate up`", err)
		}
	}
	return nil
}

func (a *app) registry() (*soap.Client, error) {
	c := a.cfg.Registry

	bcfg := circuitbreaker.DefaultConfig("registry")
	bcfg.OnStateChange = func(name string, to circuitbreaker.State) {
		a.metrics.BreakerState(name, to.Gauge())
	}
	breaker, err := circuitbreaker.New(bcfg, a.logger)
	if err != nil {
		return nil, err
	}

	client := soap.New(soap.Config{
		Endpoint:           c.Endpoint,
		WSDL:               c.WSDL,
		Username:           c.User,
		Password:           c.Password,
		FacilityID:         c.Facility,
		Timeout:            c.Timeout,
		InsecureSkipVerify: c.Insecure,
	}, a.logger, soap.WithBreaker(breaker))

	target := client.Target()
	log := a.logger.With(zap.String("target", string(target)), zap.String("endpoint", c.Endpoint), zap.String("wsdl", c.WSDL))
	if target == soap.TargetUnknown {
		log.Warn("registry environment not recognized from wsdl")
	} else {
		log.Info("registry target")
	}
	return client, nil
}

func (a *app) publisher() (transmission.Publisher, error) {
	if !a.cfg.KafkaEnabled() {
		return transmission.NopPublisher{}, nil
	}
	p, err := redpanda.NewProducer(redpanda.DefaultProducerConfig(a.cfg.Kafka.Brokers), a.logger)
	if err != nil {
		return nil, fmt.Errorf("create event producer: %w", err)
	}
	a.onClose(func(context.Context) { p.Close() })
	return p, nil
}

func (a *app) guard() *idempotency.RunGuard {
	return idempotency.NewRunGuard(a.cfg.Jobs.LockDir, dbLock(a.db), a.logger)
}

// dbLock adapts database advisory locks to the run guard
func dbLock(db *sqlstore.DB) idempotency.LockFunc {
	return func(ctx context.Context, name string) (func(context.Context) error, error) {
		l, err := db.TryLock(ctx, name)
		if errors.Is(err, sqlstore.ErrLockHeld) {
			return nil, fmt.Errorf("%w: %w", idempotency.ErrRunInProgress, err)
		}
		if err != nil {
			return nil, err
		}
		return l.Release, nil
	}
}

// jobDeps wires the registry job collaborators
func (a *app) jobDeps(ctx context.Context, out io.Writer) (job.Deps, error) {
	if err := a.openDB(ctx, true); err != nil {
		return job.Deps{}, err
	}
	client, err := a.registry()
	if err != nil {
		return job.Deps{}, err
	}
	events, err := a.publisher()
	if err != nil {
		return job.Deps{}, err
	}

	return job.Deps{
		Source: a.db,
		Builder: mapper.NewBuilder(mapper.SiteConfig{
			Facility: a.cfg.Registry.Facility,
			Region:   a.cfg.Registry.Region,
			OrgCode:  a.cfg.Registry.OrgCode,
		}),
		Client:      client,
		Ledger:      transmission.NewLedger(a.db, a.metrics, a.logger),
		Events:      events,
		Guard:       a.guard(),
		Metrics:     a.metrics,
		Logger:      a.logger,
		Out:         out,
		Pushgateway: a.cfg.Observability.Pushgateway,
	}, nil
}
