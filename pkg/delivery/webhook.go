package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/denizumutdereli/cognidb/pkg/cdberr"
)

const (
	maxPayloadBytes  = 10 * 1024 * 1024
	initialBackoff   = 100 * time.Millisecond
	maxBackoff       = 5 * time.Second
	maxRetries       = 10
	signatureHeader  = "X-Signature"
)

// dangerousHeaders are never forwarded from a subscription's configured
// headers: they could be used to smuggle auth material or override
// routing on the outbound request. Any X-Forwarded-* header is dropped too.
var dangerousHeaders = map[string]struct{}{
	"host":              {},
	"authorization":      {},
	"cookie":            {},
	"content-length":    {},
	"transfer-encoding":  {},
	"connection":        {},
	"x-real-ip":         {},
}

// WebhookConfig describes one webhook subscription's delivery target.
type WebhookConfig struct {
	URL     string
	Secret  string // empty disables signing
	Headers map[string]string
}

// Client delivers webhook payloads with SSRF validation, header
// sanitization, optional HMAC signing, and capped exponential backoff.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a Client with a bounded per-attempt timeout.
func NewClient() *Client {
	return &Client{httpClient: &http.Client{Timeout: 10 * time.Second}}
}

// Deliver validates cfg and payload, then attempts delivery with
// exponential backoff (100ms doubling, capped at 5s), retrying up to
// maxRetries times after the first attempt. It returns the last error if
// every attempt fails.
func (c *Client) Deliver(ctx context.Context, cfg WebhookConfig, payload []byte) error {
	if len(payload) > maxPayloadBytes {
		return cdberr.New(cdberr.Transport, "payload is too large")
	}
	if err := validateWebhookURL(cfg.URL); err != nil {
		return err
	}

	backoff := initialBackoff
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			jittered := backoff/2 + time.Duration(rand.Int63n(int64(backoff/2+1)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jittered):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := c.attempt(ctx, cfg, payload); err != nil {
			lastErr = err
			log.Printf("delivery: webhook attempt %d/%d failed: %v", attempt+1, maxRetries+1, err)
			continue
		}
		return nil
	}
	return cdberr.Wrap(cdberr.Transport, "webhook delivery exhausted retries", lastErr)
}

func (c *Client) attempt(ctx context.Context, cfg WebhookConfig, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		lower := strings.ToLower(k)
		if _, dangerous := dangerousHeaders[lower]; dangerous || strings.HasPrefix(lower, "x-forwarded-") {
			continue
		}
		req.Header.Set(k, v)
	}
	if cfg.Secret != "" {
		req.Header.Set(signatureHeader, signPayload(cfg.Secret, payload))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return cdberr.New(cdberr.Transport, "webhook endpoint returned a non-2xx status")
}

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
