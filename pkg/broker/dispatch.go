package broker

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/denizumutdereli/cognidb/pkg/cdberr"
	"github.com/denizumutdereli/cognidb/pkg/delivery"
)

// Delivery is a subscription's outbound destination: a webhook plus an
// optional payload transform applied before it is sent.
type Delivery struct {
	Webhook delivery.WebhookConfig
	Output  *delivery.OutputConfig
}

type envelope struct {
	EventType string          `json:"event_type"`
	Timestamp uint64          `json:"timestamp"` // Unix seconds
	Data      json.RawMessage `json:"data"`
}

// Dispatcher drives the publish pipeline over a Registry: authenticate and
// validate the publish, resolve matching subscriptions, then transform and
// deliver to each one asynchronously. A single subscription's delivery
// failure is logged and never fails Publish.
type Dispatcher struct {
	registry *Registry
	client   *delivery.Client
	timeout  time.Duration

	mu         sync.RWMutex
	deliveries map[string]Delivery // subscription id -> destination
}

// NewDispatcher creates a Dispatcher over registry, delivering through
// client with perCallTimeout bounding each subscription's whole delivery,
// retries included.
func NewDispatcher(registry *Registry, client *delivery.Client, perCallTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		client:     client,
		timeout:    perCallTimeout,
		deliveries: make(map[string]Delivery),
	}
}

// SetDelivery attaches a webhook destination to an existing subscription.
// secret distinguishes "no secret configured" (nil) from "secret configured
// but blank" (non-nil pointing at ""), which is rejected outright rather
// than silently delivering unsigned.
func (d *Dispatcher) SetDelivery(subID string, url string, secret *string, headers map[string]string, output *OutputConfigJSON) error {
	if secret != nil && *secret == "" {
		return cdberr.New(cdberr.Query, "webhook_secret, if present, cannot be empty")
	}

	var outCfg *delivery.OutputConfig
	if output != nil {
		cfg, err := delivery.ParseOutputConfig(output.Raw)
		if err != nil {
			return err
		}
		outCfg = cfg
	}

	wh := delivery.WebhookConfig{URL: url, Headers: headers}
	if secret != nil {
		wh.Secret = *secret
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliveries[subID] = Delivery{Webhook: wh, Output: outCfg}
	return nil
}

// OutputConfigJSON wraps a raw output_config payload so SetDelivery's
// signature does not force every caller to depend on encoding/json directly.
type OutputConfigJSON struct {
	Raw json.RawMessage
}

// Publish authenticates sourceID, validates eventName, then asynchronously
// transforms and delivers data to every matching subscription's configured
// webhook. Publish itself fails only on authentication, on validation, or
// with a Serialization error when data cannot be marshalled into the
// envelope; per-subscription delivery outcomes are observable solely via
// logs.
func (d *Dispatcher) Publish(ctx context.Context, sourceID, token, eventName string, data json.RawMessage) error {
	if err := d.registry.PublishValidate(sourceID, token, eventName); err != nil {
		return err
	}

	body, err := json.Marshal(envelope{EventType: eventName, Timestamp: uint64(time.Now().Unix()), Data: data})
	if err != nil {
		return cdberr.Wrap(cdberr.Serialization, "marshal publish envelope", err)
	}

	for _, sub := range d.registry.Match(sourceID, eventName) {
		d.mu.RLock()
		deliv, ok := d.deliveries[sub.ID]
		d.mu.RUnlock()
		if !ok {
			continue
		}
		go d.deliverOne(sub.ID, deliv, body)
	}
	return nil
}

func (d *Dispatcher) deliverOne(subID string, deliv Delivery, body []byte) {
	payload := delivery.Transform(deliv.Output, json.RawMessage(body))

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.client.Deliver(ctx, deliv.Webhook, payload); err != nil {
		log.Printf("broker: delivery to subscription %s failed: %v", subID, err)
	}
}
