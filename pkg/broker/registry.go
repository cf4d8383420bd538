// Package broker implements the actor registry and subscription matcher
// for the event-routing fabric: validated actor registration with hashed
// auth tokens, and a by-topic subscription index supporting both exact
// "source:event" subscriptions and permissioned bare-event wildcards.
// Actor names are neither indexed nor checked for uniqueness.
package broker

import (
	"crypto/subtle"
	"sync"
	"unicode/utf8"

	"github.com/denizumutdereli/cognidb/pkg/cdberr"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const (
	maxIDRunes          = 256
	minTokenBytes       = 16
	maxSubscriptionsPer = 10_000
)

// ActorType distinguishes event sources from event origins (subscribers).
type ActorType int

const (
	Source ActorType = iota
	Origin
)

func (t ActorType) String() string {
	if t == Source {
		return "source"
	}
	return "origin"
}

var reservedIDs = map[string]struct{}{
	"*": {},
	":": {},
}

// Actor is a registered participant in the event fabric. AuthTokenHash is
// never populated on a value returned by the registry's read paths.
type Actor struct {
	ID                   string
	Name                 string
	Type                 ActorType
	CanSubscribeWildcard bool

	authTokenHash []byte
}

// Subscription binds an actor to a topic ("source:event" or, with wildcard
// permission, a bare "event").
type Subscription struct {
	ID       string
	ActorID  string
	Topic    string
	Wildcard bool
}

// Registry holds actors (looked up by id only) and subscriptions with a
// per-actor and a by-topic index. Every
// error path is written to never disclose whether a given actor id exists.
type Registry struct {
	mu            sync.RWMutex
	actors        map[string]*Actor
	subsByActor   map[string]map[string]*Subscription
	byTopic       map[string]map[string]*Subscription // topic -> subID -> subscription
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		actors:      make(map[string]*Actor),
		subsByActor: make(map[string]map[string]*Subscription),
		byTopic:     make(map[string]map[string]*Subscription),
	}
}

func validateID(id string) error {
	if id == "" {
		return cdberr.New(cdberr.Registry, "id cannot be empty")
	}
	if utf8.RuneCountInString(id) > maxIDRunes {
		return cdberr.New(cdberr.Registry, "id exceeds maximum length")
	}
	if _, reserved := reservedIDs[id]; reserved {
		return cdberr.New(cdberr.Registry, "id uses a reserved value")
	}
	for _, r := range id {
		if r < 0x20 || r == 0x7f {
			return cdberr.New(cdberr.Registry, "id contains control characters")
		}
	}
	return nil
}

func hashToken(token string) ([]byte, error) {
	if len(token) < minTokenBytes {
		return nil, cdberr.New(cdberr.Authentication, "auth token is too short")
	}
	sum := blake2b.Sum256([]byte(token))
	return sum[:], nil
}

// RegisterActor validates and registers a new actor, returning its
// public (token-stripped) form. The id must be unique.
func (r *Registry) RegisterActor(id, name string, actorType ActorType, token string, canSubscribeWildcard bool) (*Actor, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, cdberr.New(cdberr.Registry, "name cannot be empty")
	}
	hash, err := hashToken(token)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actors[id]; exists {
		return nil, cdberr.New(cdberr.Registry, "actor already exists")
	}

	a := &Actor{
		ID:                   id,
		Name:                 name,
		Type:                 actorType,
		CanSubscribeWildcard: canSubscribeWildcard,
		authTokenHash:        hash,
	}
	r.actors[id] = a
	r.subsByActor[id] = make(map[string]*Subscription)

	cp := *a
	cp.authTokenHash = nil
	return &cp, nil
}

// authenticate reports whether token is valid for the actor at id,
// without ever revealing (via error content) whether id itself exists.
func (r *Registry) authenticate(id, token string) (*Actor, error) {
	r.mu.RLock()
	a, ok := r.actors[id]
	r.mu.RUnlock()
	if !ok {
		return nil, cdberr.ErrAuthFailed
	}
	hash, err := hashToken(token)
	if err != nil {
		return nil, cdberr.ErrAuthFailed
	}
	if subtle.ConstantTimeCompare(hash, a.authTokenHash) != 1 {
		return nil, cdberr.ErrAuthFailed
	}
	return a, nil
}

// GetActor returns the public form of an actor, or ErrNotFound.
func (r *Registry) GetActor(id string) (*Actor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actors[id]
	if !ok {
		return nil, cdberr.ErrNotFound
	}
	cp := *a
	cp.authTokenHash = nil
	return &cp, nil
}

// validateEventName enforces the bare-event-name rule used by publishers:
// non-empty, no control characters, no colon (reserved for topic
// qualification), and not the wildcard sentinel itself.
func validateEventName(name string) error {
	if name == "" {
		return cdberr.New(cdberr.Query, "event name cannot be empty")
	}
	if name == "*" {
		return cdberr.New(cdberr.Query, "event name cannot be the wildcard sentinel")
	}
	for _, r := range name {
		if r == ':' {
			return cdberr.New(cdberr.Query, "event name cannot contain ':'")
		}
		if r < 0x20 || r == 0x7f {
			return cdberr.New(cdberr.Query, "event name contains control characters")
		}
	}
	return nil
}

// Subscribe authenticates actorID, validates topic, and registers a
// subscription. topic is either "source:event" (always permitted) or a
// bare event name (permitted only for actors with CanSubscribeWildcard).
func (r *Registry) Subscribe(actorID, token, topic string) (*Subscription, error) {
	actor, err := r.authenticate(actorID, token)
	if err != nil {
		return nil, err
	}

	wildcard := !containsColon(topic)
	if wildcard {
		if err := validateEventName(topic); err != nil {
			return nil, err
		}
		if !actor.CanSubscribeWildcard {
			return nil, cdberr.New(cdberr.Registry, "Wildcard subscriptions require explicit permission")
		}
	} else if topic == "" {
		return nil, cdberr.New(cdberr.Registry, "topic cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.subsByActor[actorID]
	if len(subs) >= maxSubscriptionsPer {
		return nil, cdberr.New(cdberr.Registry, "Maximum subscriptions reached")
	}

	sub := &Subscription{ID: uuid.NewString(), ActorID: actorID, Topic: topic, Wildcard: wildcard}
	subs[sub.ID] = sub
	if r.byTopic[topic] == nil {
		r.byTopic[topic] = make(map[string]*Subscription)
	}
	r.byTopic[topic][sub.ID] = sub

	return sub, nil
}

func containsColon(s string) bool {
	for _, r := range s {
		if r == ':' {
			return true
		}
	}
	return false
}

// Match returns every subscription that should receive an event named
// eventName published by sourceID: exact "source:event" subscriptions
// plus bare-event wildcard subscriptions for eventName.
func (r *Registry) Match(sourceID, eventName string) []*Subscription {
	exact := sourceID + ":" + eventName

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Subscription
	for _, s := range r.byTopic[exact] {
		out = append(out, s)
	}
	for _, s := range r.byTopic[eventName] {
		out = append(out, s)
	}
	return out
}

// PublishValidate authenticates sourceID and validates eventName without
// recording a delivery; callers combine this with Match to route events.
func (r *Registry) PublishValidate(sourceID, token, eventName string) error {
	if _, err := r.authenticate(sourceID, token); err != nil {
		return err
	}
	return validateEventName(eventName)
}

// SubscriptionCount returns how many subscriptions actorID currently has.
func (r *Registry) SubscriptionCount(actorID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subsByActor[actorID])
}
