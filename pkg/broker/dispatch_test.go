package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/denizumutdereli/cognidb/pkg/cdberr"
	"github.com/denizumutdereli/cognidb/pkg/delivery"
)

func TestSetDeliveryRejectsBlankSecret(t *testing.T) {
	r := New()
	r.RegisterActor("origin1", "Origin", Origin, validToken, false)
	sub, _ := r.Subscribe("origin1", validToken, "source1:event")

	d := NewDispatcher(r, delivery.NewClient(), time.Second)
	blank := ""
	err := d.SetDelivery(sub.ID, "https://example.com/hook", &blank, nil, nil)
	if !cdberr.Is(err, cdberr.Query) {
		t.Errorf("err = %v, want a Query-kind error for a blank secret", err)
	}
}

func TestSetDeliveryAllowsNilSecret(t *testing.T) {
	r := New()
	r.RegisterActor("origin1", "Origin", Origin, validToken, false)
	sub, _ := r.Subscribe("origin1", validToken, "source1:event")

	d := NewDispatcher(r, delivery.NewClient(), time.Second)
	if err := d.SetDelivery(sub.ID, "https://example.com/hook", nil, nil, nil); err != nil {
		t.Errorf("SetDelivery with no secret = %v, want nil", err)
	}
}

func TestPublishFailsOnWrongToken(t *testing.T) {
	r := New()
	r.RegisterActor("source1", "Source", Source, validToken, false)
	d := NewDispatcher(r, delivery.NewClient(), time.Second)

	err := d.Publish(context.Background(), "source1", "wrong-token", "evt", json.RawMessage(`{}`))
	if !cdberr.Is(err, cdberr.Authentication) {
		t.Errorf("err = %v, want an Authentication-kind error", err)
	}
}

func TestPublishSucceedsWithNoMatchingSubscriptions(t *testing.T) {
	r := New()
	r.RegisterActor("source1", "Source", Source, validToken, false)
	d := NewDispatcher(r, delivery.NewClient(), time.Second)

	if err := d.Publish(context.Background(), "source1", validToken, "evt", json.RawMessage(`{}`)); err != nil {
		t.Errorf("Publish with no subscribers = %v, want nil", err)
	}
}

func TestPublishSucceedsEvenWithoutDeliveryConfigured(t *testing.T) {
	r := New()
	r.RegisterActor("source1", "Source", Source, validToken, false)
	r.RegisterActor("origin1", "Origin", Origin, validToken, false)
	r.Subscribe("origin1", validToken, "source1:evt")

	d := NewDispatcher(r, delivery.NewClient(), time.Second)
	if err := d.Publish(context.Background(), "source1", validToken, "evt", json.RawMessage(`{}`)); err != nil {
		t.Errorf("Publish = %v, want nil (a subscription with no delivery destination is simply skipped)", err)
	}
}
