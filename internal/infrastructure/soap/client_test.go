package soap

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/drfirst/go-iis/pkg/circuitbreaker"
)

const ackBody = "MSH|^~\\&|CAIR IIS|CAIR IIS|OPENEMR|DE-000001|20250102030405||ACK^V04^ACK|1|P|2.5.1\rMSA|AA|1\r"

func submitResponse(ret string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope" xmlns:ns2="urn:cdc:iisb:2011">`)
	b.WriteString(`<soap:Body><ns2:submitSingleMessageResponse><ns2:return>`)
	xml.EscapeText(&b, []byte(ret))
	b.WriteString(`</ns2:return></ns2:submitSingleMessageResponse></soap:Body></soap:Envelope>`)
	return b.String()
}

const faultResponse = `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope">
  <soap:Body>
    <soap:Fault>
      <soap:Code><soap:Value>soap:Receiver</soap:Value></soap:Code>
      <soap:Reason><soap:Text xml:lang="en">Security fault: invalid username or password</soap:Text></soap:Reason>
      <soap:Detail><SecurityFault xmlns="urn:cdc:iisb:2011"><Code>10</Code></SecurityFault></soap:Detail>
    </soap:Fault>
  </soap:Body>
</soap:Envelope>`

func testConfig(endpoint string) Config {
	return Config{
		Endpoint:   endpoint,
		WSDL:       "cdc-iis-2011-CATRN.wsdl",
		Username:   "user",
		Password:   "secret",
		FacilityID: "DE-000001",
		Timeout:    2 * time.Second,
	}
}

func TestSubmitSingleMessage(t *testing.T) {
	var gotBody, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/soap+xml")
		io.WriteString(w, submitResponse(ackBody))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), nil)
	resp, err := c.SubmitSingleMessage(context.Background(), "MSH|^~\\&|OPENEMR\rPID|1\r")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != ackBody {
		t.Errorf("expected ack body, got %q", resp)
	}

	want := `application/soap+xml; charset=utf-8; action="urn:cdc:iisb:2011:submitSingleMessage"`
	if gotContentType != want {
		t.Errorf("content type: expected %q, got %q", want, gotContentType)
	}
	for _, fragment := range []string{
		`<urn:submitSingleMessage>`,
		`<urn:username>user</urn:username>`,
		`<urn:password>secret</urn:password>`,
		`<urn:facilityID>DE-000001</urn:facilityID>`,
		`xmlns:urn="urn:cdc:iisb:2011"`,
	} {
		if !strings.Contains(gotBody, fragment) {
			t.Errorf("request missing %s:\n%s", fragment, gotBody)
		}
	}

	var env struct {
		Body struct {
			Submit struct {
				HL7Message string `xml:"hl7Message"`
			} `xml:"submitSingleMessage"`
		} `xml:"Body"`
	}
	if err := xml.Unmarshal([]byte(gotBody), &env); err != nil {
		t.Fatalf("request is not valid XML: %v", err)
	}
	if env.Body.Submit.HL7Message != "MSH|^~\\&|OPENEMR\rPID|1\r" {
		t.Errorf("hl7 message did not survive encoding: %q", env.Body.Submit.HL7Message)
	}
}

func TestSubmitFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, faultResponse)
	}))
	defer srv.Close()

	_, err := New(testConfig(srv.URL), nil).SubmitSingleMessage(context.Background(), "MSH|")

	var fault *FaultError
	if !errors.As(err, &fault) {
		t.Fatalf("expected FaultError, got %v", err)
	}
	if fault.Code != "soap:Receiver" {
		t.Errorf("unexpected fault code %q", fault.Code)
	}
	if !strings.Contains(fault.Reason, "invalid username") {
		t.Errorf("unexpected fault reason %q", fault.Reason)
	}
}

func TestSubmitNon2xxWithoutFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "<html><body>502 Bad Gateway</body></html>")
	}))
	defer srv.Close()

	_, err := New(testConfig(srv.URL), nil).SubmitSingleMessage(context.Background(), "MSH|")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestSubmitTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond

	_, err := New(cfg, nil).SubmitSingleMessage(context.Background(), "MSH|")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestConnectivityTest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Content-Type"), `action="urn:cdc:iisb:2011:connectivityTest"`) {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		b, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(b), "<urn:echoBack>ping</urn:echoBack>") {
			t.Errorf("missing echoBack: %s", b)
		}
		io.WriteString(w, `<Envelope><Body><connectivityTestResponse><return>ping</return></connectivityTestResponse></Body></Envelope>`)
	}))
	defer srv.Close()

	got, err := New(testConfig(srv.URL), nil).ConnectivityTest(context.Background(), "ping")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ping" {
		t.Errorf("expected echo, got %q", got)
	}
}

func TestBreakerFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := circuitbreaker.DefaultConfig("registry")
	cfg.ConsecutiveFailures = 2
	cb, err := circuitbreaker.New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	c := New(testConfig(srv.URL), nil, WithBreaker(cb))

	for i := 0; i < 2; i++ {
		if _, err := c.SubmitSingleMessage(context.Background(), "MSH|"); !errors.Is(err, ErrTransport) {
			t.Fatalf("call %d: expected ErrTransport, got %v", i, err)
		}
	}
	if _, err := c.SubmitSingleMessage(context.Background(), "MSH|"); !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("expected 2 requests to reach the server, got %d", n)
	}
}

func TestClassifyTarget(t *testing.T) {
	tests := map[string]Target{
		"cdc-iis-2011-CATRN.wsdl": TargetTraining,
		"CAPRD.wsdl":              TargetProduction,
		"":                        TargetUnknown,
		"local.wsdl":              TargetUnknown,
	}
	for wsdl, want := range tests {
		if got := ClassifyTarget(wsdl); got != want {
			t.Errorf("ClassifyTarget(%q) = %s, want %s", wsdl, got, want)
		}
	}
}
