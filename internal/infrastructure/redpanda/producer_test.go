package redpanda

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/drfirst/go-iis/internal/domain/transmission"
)

func TestNewRecordRoutesAndKeys(t *testing.T) {
	rec := &transmission.Record{
		Type:    transmission.TypeVXU,
		Partner: "cdc-iis-2011-CATRN.wsdl",
		Source:  "immunizations",
		Key:     "42",
		Result:  "AA",
	}
	e := transmission.NewEvent(transmission.EventTransmissionLogged, "run-1", rec, nil)

	r, err := NewRecord(context.Background(), e)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	if r.Topic != TopicTransmissionOutcomes {
		t.Errorf("expected %s, got %s", TopicTransmissionOutcomes, r.Topic)
	}
	if string(r.Key) != "VXU:immunizations:42" {
		t.Errorf("unexpected key %q", r.Key)
	}

	var decoded map[string]any
	if err := json.Unmarshal(r.Value, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded["run_id"] != "run-1" || decoded["msg_result"] != "AA" {
		t.Errorf("unexpected payload %v", decoded)
	}

	headers := map[string]string{}
	for _, h := range r.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["event_type"] != string(transmission.EventTransmissionLogged) {
		t.Errorf("missing event_type header: %v", headers)
	}
	if _, ok := headers["traceparent"]; ok {
		t.Error("traceparent must be absent without an active span")
	}
}

func TestNewRecordCarriesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	rec := &transmission.Record{Type: transmission.TypeVXU, Source: "immunizations", Key: "7"}
	r, err := NewRecord(ctx, transmission.NewEvent(transmission.EventTransmissionLogged, "run-3", rec, nil))
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}

	carrier := headerCarrier{r}
	got := carrier.Get("traceparent")
	if got != "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01" {
		t.Errorf("unexpected traceparent %q", got)
	}
	if !strings.Contains(strings.Join(carrier.Keys(), ","), "run_id") {
		t.Errorf("expected run_id among header keys, got %v", carrier.Keys())
	}
}

func TestTopicForReconciled(t *testing.T) {
	rec := &transmission.Record{Type: transmission.TypeORD, Source: "procedure_orders", Key: "0", Result: transmission.ResultCheck}
	e := transmission.NewEvent(transmission.EventResultReconciled, "run-2", rec, nil)
	if got := TopicFor(e); got != TopicResultsReconciled {
		t.Errorf("expected %s, got %s", TopicResultsReconciled, got)
	}
}

func TestDefaultTopicConfigs(t *testing.T) {
	names := map[string]bool{}
	for _, c := range DefaultTopicConfigs() {
		names[c.Name] = true
		if got := *c.Configs["retention.ms"]; got != "2592000000" {
			t.Errorf("%s retention: expected 30 days in ms, got %s", c.Name, got)
		}
	}
	if !names[TopicTransmissionOutcomes] || !names[TopicResultsReconciled] || len(names) != 2 {
		t.Errorf("unexpected topics %v", names)
	}
}
