// Package soap implements the CDC IIS SOAP 1.2 client used to reach the immunization registry.
package soap

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-iis/pkg/circuitbreaker"
)

// Operations of the IIS service
const (
	OpSubmitSingleMessage = "submitSingleMessage"
	OpConnectivityTest    = "connectivityTest"
)

// DefaultTimeout bounds each call when the configuration does not
const DefaultTimeout = 60 * time.Second

const maxResponseBytes = 8 << 20

var (
	// ErrTimeout means the registry did not answer within the call timeout
	ErrTimeout = errors.New("registry call timed out")
	// ErrTransport covers network failures and non-2xx responses without a fault
	ErrTransport = errors.New("registry transport failure")
)

// FaultError is a SOAP Fault returned by the registry
type FaultError struct {
	Code    string
	Subcode string
	Reason  string
	Detail  string
}

func (e *FaultError) Error() string {
	if e.Subcode != "" {
		return fmt.Sprintf("soap fault %s/%s: %s", e.Code, e.Subcode, e.Reason)
	}
	return fmt.Sprintf("soap fault %s: %s", e.Code, e.Reason)
}

// Target classifies the registry environment
type Target string

const (
	TargetTraining   Target = "training"
	TargetProduction Target = "production"
	TargetUnknown    Target = "unknown"
)

// ClassifyTarget derives the environment from the WSDL name
func ClassifyTarget(wsdl string) Target {
	upper := strings.ToUpper(wsdl)
	switch {
	case strings.Contains(upper, "CATRN"):
		return TargetTraining
	case strings.Contains(upper, "CAPRD"):
		return TargetProduction
	default:
		return TargetUnknown
	}
}

// Config holds registry connection settings
type Config struct {
	Endpoint   string
	WSDL       string
	Username   string
	Password   string
	FacilityID string
	Timeout    time.Duration
	// InsecureSkipVerify disables TLS certificate checks
	InsecureSkipVerify bool
}

// Client calls the registry web service
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
	tracer  trace.Tracer
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBreaker guards calls with a circuit breaker
func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// New creates a registry client
func New(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		logger.Warn("registry TLS verification disabled")
	}

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Transport: transport},
		logger: logger,
		tracer: otel.Tracer("soap"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Target returns the environment the configured WSDL points at
func (c *Client) Target() Target {
	return ClassifyTarget(c.cfg.WSDL)
}

// Partner is the msg_partner value logged for registry submissions
func (c *Client) Partner() string {
	return c.cfg.WSDL
}

// SubmitSingleMessage sends one HL7 message and returns the registry's HL7 response
func (c *Client) SubmitSingleMessage(ctx context.Context, hl7 string) (string, error) {
	return c.call(ctx, OpSubmitSingleMessage, submitSingleMessageRequest{
		Username:   c.cfg.Username,
		Password:   c.cfg.Password,
		FacilityID: c.cfg.FacilityID,
		HL7Message: hl7,
	})
}

// ConnectivityTest asks the registry to echo a string back
func (c *Client) ConnectivityTest(ctx context.Context, echo string) (string, error) {
	return c.call(ctx, OpConnectivityTest, connectivityTestRequest{EchoBack: echo})
}

func (c *Client) call(ctx context.Context, op string, payload any) (string, error) {
	ctx, span := c.tracer.Start(ctx, "soap_"+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("soap.operation", op),
			attribute.String("registry.target", string(c.Target())),
		))
	defer span.End()

	do := func(ctx context.Context) (string, error) {
		return c.roundTrip(ctx, op, payload)
	}

	var (
		out string
		err error
	)
	if c.breaker != nil {
		out, err = circuitbreaker.Execute(ctx, c.breaker, do)
	} else {
		out, err = do(ctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
	}
	return out, err
}

func (c *Client) roundTrip(ctx context.Context, op string, payload any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(newEnvelope(payload)); err != nil {
		return "", fmt.Errorf("encode %s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", fmt.Sprintf(`application/soap+xml; charset=utf-8; action="%s:%s"`, NamespaceIIS, op))

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%s after %s: %w", op, c.cfg.Timeout, ErrTimeout)
		}
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%s: %w: %v", op, ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%s after %s: %w", op, c.cfg.Timeout, ErrTimeout)
		}
		return "", fmt.Errorf("%s: read response: %w: %v", op, ErrTransport, err)
	}

	var env responseEnvelope
	decodeErr := xml.Unmarshal(body, &env)
	if decodeErr == nil && env.Body.Fault != nil {
		return "", env.Body.Fault.toError()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%s: %w: HTTP %d", op, ErrTransport, resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%s: decode response: %w: %v", op, ErrTransport, decodeErr)
	}

	c.logger.Debug("registry call complete", zap.String("operation", op), zap.Int("status", resp.StatusCode))
	return env.Body.Response.Return, nil
}
