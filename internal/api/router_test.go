package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-iis/internal/api/handlers"
	"github.com/drfirst/go-iis/internal/api/middleware"
	"github.com/drfirst/go-iis/internal/domain/transmission"
	"github.com/drfirst/go-iis/internal/observability/metrics"
)

const (
	ackAA = "MSH|^~\\&|CAIR IIS|CAIR IIS|OPENEMR|DE-000001|20250304150608||ACK^V04^ACK|1|P|2.5.1\rMSA|AA|1\r"
	key   = "k-123"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newServer(t *testing.T, db handlers.Pinger) *httptest.Server {
	t.Helper()
	m := metrics.New()
	ledger := transmission.NewLedger(transmission.NewMemoryStore(), m, nil)

	ctx := context.Background()
	entries := []transmission.Entry{
		{Type: transmission.TypeVXU, Partner: "cdc-iis-2011-CATRN.wsdl", Source: "immunizations", Key: "1", Body: "MSH|1", Response: ackAA},
		{Type: transmission.TypeVXU, Partner: "cdc-iis-2011-CATRN.wsdl", Source: "immunizations", Key: "2", Body: "MSH|2"},
		{Type: transmission.TypeORD, Partner: `{"7":"Quest"}`, Source: "procedure_orders", Key: "42", Body: "{}", Result: transmission.ResultPatientMatched},
	}
	for _, e := range entries {
		_, err := ledger.Record(ctx, e)
		require.NoError(t, err)
	}

	srv := httptest.NewServer(NewRouter(Options{
		Ledger:  ledger,
		DB:      db,
		Metrics: m.Handler(),
		APIKeys: middleware.ParseKeys([]string{"ops:" + key}),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, auth bool) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if auth {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp, body
}

func TestHealthAndReady(t *testing.T) {
	srv := newServer(t, pinger{})

	resp, body := get(t, srv.URL+"/health", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, ServiceName, body["service"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, _ = get(t, srv.URL+"/ready", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := newServer(t, pinger{err: errors.New("connection refused")})
	resp, _ = get(t, down.URL+"/ready", false)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newServer(t, pinger{})
	resp, _ := get(t, srv.URL+"/metrics", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIKeyRequired(t *testing.T) {
	srv := newServer(t, pinger{})

	resp, body := get(t, srv.URL+"/api/v1/transmissions", false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "missing API key", body["error"])

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/transmissions", nil)
	req.Header.Set("Authorization", "Bearer "+key)
	bearer, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	bearer.Body.Close()
	assert.Equal(t, http.StatusOK, bearer.StatusCode)
}

func TestListTransmissions(t *testing.T) {
	srv := newServer(t, pinger{})

	tests := []struct {
		name  string
		query string
		code  int
		count float64
	}{
		{"all", "", http.StatusOK, 3},
		{"by type", "?type=vxu", http.StatusOK, 2},
		{"accepted", "?type=VXU&result=AA", http.StatusOK, 1},
		{"no response", "?type=VXU&result=", http.StatusOK, 1},
		{"by key", "?source=procedure_orders&key=42", http.StatusOK, 1},
		{"limit", "?limit=1", http.StatusOK, 1},
		{"bad type", "?type=ADT", http.StatusBadRequest, 0},
		{"bad limit", "?limit=0", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, srv.URL+"/api/v1/transmissions"+tt.query, true)
			require.Equal(t, tt.code, resp.StatusCode)
			if tt.code == http.StatusOK {
				assert.Equal(t, tt.count, body["count"])
			} else {
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestSummary(t *testing.T) {
	srv := newServer(t, pinger{})

	resp, body := get(t, srv.URL+"/api/v1/transmissions/summary", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rows := body["summary"].([]any)
	require.Len(t, rows, 3)
	first := rows[0].(map[string]any)
	assert.Equal(t, "ORD", first["msg_type"])
	assert.Equal(t, "PT", first["msg_result"])
	assert.Equal(t, float64(1), first["count"])
}

func TestFindTransmission(t *testing.T) {
	srv := newServer(t, pinger{})

	resp, body := get(t, srv.URL+"/api/v1/transmissions/VXU/immunizations/1", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	recs := body["transmissions"].([]any)
	require.Len(t, recs, 1)
	assert.Equal(t, "AA", recs[0].(map[string]any)["msg_result"])

	resp, _ = get(t, srv.URL+"/api/v1/transmissions/VXU/immunizations/99", true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, srv.URL+"/api/v1/transmissions/ADT/immunizations/1", true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestParseKeys(t *testing.T) {
	keys := middleware.ParseKeys([]string{"ops:abc", " def ", ""})
	assert.Equal(t, map[string]string{"abc": "ops", "def": "default"}, keys)
}
