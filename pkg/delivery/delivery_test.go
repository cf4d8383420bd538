package delivery

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// testWebhookURL is a public-looking target that passes validateWebhookURL;
// clients from loopbackClient route it to a local httptest server.
const testWebhookURL = "http://webhook.example/hook"

// loopbackClient returns a Client whose transport dials srv for every
// request. httptest servers listen on 127.0.0.1, which validateWebhookURL
// rejects, so tests address srv through testWebhookURL instead.
func loopbackClient(srv *httptest.Server) *Client {
	c := NewClient()
	addr := srv.Listener.Addr().String()
	c.httpClient.Transport = &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(ctx, network, addr)
		},
	}
	return c
}

func TestValidateWebhookURLRejectsLocalhost(t *testing.T) {
	if err := validateWebhookURL("http://localhost:8080/webhook"); err == nil {
		t.Error("expected an error for a localhost URL")
	}
}

func TestValidateWebhookURLRejectsPrivateIP(t *testing.T) {
	if err := validateWebhookURL("http://192.168.1.1/webhook"); err == nil {
		t.Error("expected an error for a private-IP URL")
	}
}

func TestValidateWebhookURLRejectsLinkLocal(t *testing.T) {
	if err := validateWebhookURL("http://169.254.169.254/metadata"); err == nil {
		t.Error("expected an error for a link-local URL (cloud metadata endpoint)")
	}
}

func TestValidateWebhookURLRejectsNonHTTPScheme(t *testing.T) {
	if err := validateWebhookURL("ftp://example.com/webhook"); err == nil {
		t.Error("expected an error for a non-http(s) scheme")
	}
}

func TestValidateWebhookURLAllowsPublicHTTPS(t *testing.T) {
	if err := validateWebhookURL("https://example.com/webhook"); err != nil {
		t.Errorf("validateWebhookURL = %v, want no error for a public host", err)
	}
}

func TestParseOutputConfigRejectsNonObject(t *testing.T) {
	_, err := ParseOutputConfig(json.RawMessage(`"not an object"`))
	if err == nil || !strings.Contains(err.Error(), "must be an object") {
		t.Errorf("err = %v, want a must-be-an-object error", err)
	}
}

func TestParseOutputConfigRejectsOversizedConfig(t *testing.T) {
	large := strings.Repeat("x", maxTransformConfigBytes+1)
	raw, _ := json.Marshal(map[string]string{"data": large})
	_, err := ParseOutputConfig(raw)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("err = %v, want a too-large error", err)
	}
}

func TestApplyRenamesFields(t *testing.T) {
	cfg := &OutputConfig{Transforms: []FieldTransform{
		{Source: "order_id", Target: "id"},
		{Source: "customer_name", Target: "customer"},
	}}
	out, err := cfg.Apply(json.RawMessage(`{"order_id":"12345","customer_name":"John Doe","total":99.99}`))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	var decoded map[string]any
	json.Unmarshal(out, &decoded)
	if decoded["id"] != "12345" || decoded["customer"] != "John Doe" {
		t.Errorf("decoded = %v, want renamed fields", decoded)
	}
	if _, stillPresent := decoded["order_id"]; stillPresent {
		t.Error("expected the original order_id key to be removed after rename")
	}
}

func TestTransformFallsBackToOriginalOnMissingSourceField(t *testing.T) {
	cfg := &OutputConfig{Transforms: []FieldTransform{{Source: "nonexistent_field", Target: "new_field"}}}
	original := json.RawMessage(`{"order_id":"12345","customer":"John Doe"}`)

	out := Transform(cfg, original)
	if string(out) != string(original) {
		t.Errorf("Transform = %s, want fallback to original payload %s", out, original)
	}
}

func TestTransformPassesThroughWithNilConfig(t *testing.T) {
	original := json.RawMessage(`{"a":1}`)
	if out := Transform(nil, original); string(out) != string(original) {
		t.Errorf("Transform(nil,...) = %s, want passthrough", out)
	}
}

func TestDeliverSucceedsOnFirstAttempt(t *testing.T) {
	var gotSignature string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := loopbackClient(srv)
	err := c.Deliver(context.Background(), WebhookConfig{URL: testWebhookURL, Secret: "s3cr3t"}, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if gotSignature == "" {
		t.Error("expected an X-Signature header when a secret is configured")
	}
}

func TestDeliverStripsDangerousHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := loopbackClient(srv)
	err := c.Deliver(context.Background(), WebhookConfig{
		URL:     testWebhookURL,
		Headers: map[string]string{"Authorization": "Bearer smuggled", "X-Custom": "ok"},
	}, []byte(`{}`))
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization header = %q, want stripped", gotAuth)
	}
}

func TestDeliverRejectsOversizedPayload(t *testing.T) {
	c := NewClient()
	big := make([]byte, maxPayloadBytes+1)
	err := c.Deliver(context.Background(), WebhookConfig{URL: "https://example.com/webhook"}, big)
	if err == nil {
		t.Error("expected an error for a payload over the size ceiling")
	}
}

func TestDeliverRejectsSSRFTarget(t *testing.T) {
	c := NewClient()
	err := c.Deliver(context.Background(), WebhookConfig{URL: "http://127.0.0.1/webhook"}, []byte(`{}`))
	if err == nil {
		t.Error("expected an error for a loopback target")
	}
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := loopbackClient(srv)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Deliver(ctx, WebhookConfig{URL: testWebhookURL}, []byte(`{}`)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2 (one failure then a success)", attempts)
	}
}
