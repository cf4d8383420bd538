package broker

import (
	"strings"
	"testing"

	"github.com/denizumutdereli/cognidb/pkg/cdberr"
)

const validToken = "correct-token-123456789012"

func TestRegisterActorRejectsWeakToken(t *testing.T) {
	r := New()
	_, err := r.RegisterActor("test", "Test", Source, "short", false)
	if err == nil || !strings.Contains(err.Error(), "too short") {
		t.Errorf("err = %v, want a too-short token error", err)
	}
}

func TestRegisterActorRejectsControlCharacterID(t *testing.T) {
	r := New()
	_, err := r.RegisterActor("test\nactor", "Test", Source, validToken, false)
	if err == nil || !strings.Contains(err.Error(), "control characters") {
		t.Errorf("err = %v, want a control-character error", err)
	}
}

func TestRegisterActorRejectsDuplicateID(t *testing.T) {
	r := New()
	if _, err := r.RegisterActor("test", "Test1", Source, validToken, false); err != nil {
		t.Fatalf("first RegisterActor: %v", err)
	}
	_, err := r.RegisterActor("test", "Test2", Source, "token2-123456789012", false)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("err = %v, want an already-exists error", err)
	}
}

func TestGetActorNeverLeaksAuthToken(t *testing.T) {
	r := New()
	r.RegisterActor("test", "Test", Source, validToken, false)
	a, err := r.GetActor("test")
	if err != nil {
		t.Fatalf("GetActor: %v", err)
	}
	if a.authTokenHash != nil {
		t.Error("expected authTokenHash to be stripped from a returned Actor")
	}
}

func TestPublishValidateRejectsWrongToken(t *testing.T) {
	r := New()
	r.RegisterActor("source1", "Source", Source, validToken, false)
	err := r.PublishValidate("source1", "wrong-token", "test_event")
	if !cdberr.Is(err, cdberr.Authentication) {
		t.Errorf("err = %v, want an Authentication-kind error", err)
	}
}

func TestActorEnumerationPreventionOnUnknownID(t *testing.T) {
	r := New()
	err := r.PublishValidate("nonexistent", "token", "test_event")
	if err == nil {
		t.Fatal("expected an error for an unknown actor")
	}
	if strings.Contains(err.Error(), "nonexistent") {
		t.Errorf("err = %v, must not leak the actor id", err)
	}
}

func TestPublishValidateRejectsColonAndWildcardEventNames(t *testing.T) {
	r := New()
	r.RegisterActor("source1", "Source", Source, validToken, false)

	if err := r.PublishValidate("source1", validToken, "event:name"); err == nil {
		t.Error("expected an error for an event name containing ':'")
	}
	if err := r.PublishValidate("source1", validToken, "*"); err == nil {
		t.Error("expected an error for the wildcard sentinel event name")
	}
	if err := r.PublishValidate("source1", validToken, ""); err == nil {
		t.Error("expected an error for an empty event name")
	}
}

func TestSubscribeRejectsWildcardWithoutPermission(t *testing.T) {
	r := New()
	r.RegisterActor("origin1", "Origin", Origin, validToken, false)
	_, err := r.Subscribe("origin1", validToken, "test_event")
	if err == nil || !strings.Contains(err.Error(), "Wildcard") {
		t.Errorf("err = %v, want a wildcard-permission error", err)
	}
}

func TestSubscribeAllowsWildcardWithPermission(t *testing.T) {
	r := New()
	r.RegisterActor("origin1", "Origin", Origin, validToken, true)
	sub, err := r.Subscribe("origin1", validToken, "test_event")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if !sub.Wildcard {
		t.Error("expected Wildcard=true for a bare event-name subscription")
	}
}

func TestSubscribeAllowsExactTopicWithoutWildcardPermission(t *testing.T) {
	r := New()
	r.RegisterActor("origin1", "Origin", Origin, validToken, false)
	sub, err := r.Subscribe("origin1", validToken, "source1:event")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if sub.Wildcard {
		t.Error("expected Wildcard=false for a source:event subscription")
	}
}

func TestSubscribeEnforcesPerActorCap(t *testing.T) {
	r := New()
	r.RegisterActor("origin1", "Origin", Origin, validToken, false)
	for i := 0; i < maxSubscriptionsPer; i++ {
		if _, err := r.Subscribe("origin1", validToken, "source1:event_"+itoaTest(i)); err != nil {
			t.Fatalf("Subscribe #%d: %v", i, err)
		}
	}
	_, err := r.Subscribe("origin1", validToken, "source1:event_overflow")
	if err == nil || !strings.Contains(err.Error(), "Maximum subscriptions") {
		t.Errorf("err = %v, want a maximum-subscriptions error", err)
	}
}

func itoaTest(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}

func TestMatchRoutesExactAndWildcardSubscriptions(t *testing.T) {
	r := New()
	r.RegisterActor("source1", "Source", Source, validToken, false)
	r.RegisterActor("origin1", "Origin", Origin, validToken, false)
	r.RegisterActor("origin2", "Origin", Origin, validToken, true)

	exact, _ := r.Subscribe("origin1", validToken, "source1:temp_changed")
	wildcard, _ := r.Subscribe("origin2", validToken, "temp_changed")

	matches := r.Match("source1", "temp_changed")
	if len(matches) != 2 {
		t.Fatalf("Match returned %d subscriptions, want 2", len(matches))
	}
	var sawExact, sawWildcard bool
	for _, m := range matches {
		if m.ID == exact.ID {
			sawExact = true
		}
		if m.ID == wildcard.ID {
			sawWildcard = true
		}
	}
	if !sawExact || !sawWildcard {
		t.Errorf("matches = %+v, want both the exact and wildcard subscriptions", matches)
	}
}

func TestMatchDoesNotCrossMatchOtherSources(t *testing.T) {
	r := New()
	r.RegisterActor("source1", "Source", Source, validToken, false)
	r.RegisterActor("origin1", "Origin", Origin, validToken, false)
	r.Subscribe("origin1", validToken, "source1:temp_changed")

	matches := r.Match("source2", "temp_changed")
	if len(matches) != 0 {
		t.Errorf("Match = %+v, want no matches for an unrelated source", matches)
	}
}
