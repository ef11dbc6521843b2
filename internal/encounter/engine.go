package encounter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/example/encounters/internal/geo"
	"github.com/example/encounters/internal/models"
	"github.com/example/encounters/internal/observability"
)

const secondsPerHour = 3600

// Policy holds the thresholds of the encounter predicate.
type Policy struct {
	ActiveWindowHours int64
	DistanceKm        float64
	CooldownHours     int64
}

func DefaultPolicy() Policy {
	return Policy{ActiveWindowHours: 6, DistanceKm: 0.15, CooldownHours: 24}
}

// Sink receives encounters in discovery order.
type Sink interface {
	Emit(ctx context.Context, e models.Encounter) error
}

// Engine owns the user population and detects encounters one ping at a time.
type Engine struct {
	policy  Policy
	sink    Sink
	metrics *observability.Metrics
	logger  *slog.Logger

	mu         sync.Mutex
	users      map[string]*UserState
	order      []*UserState // first-sighting order, used for the scan
	encounters int
}

type Option func(*Engine)

func WithMetrics(m *observability.Metrics) Option { return func(e *Engine) { e.metrics = m } }
func WithLogger(l *slog.Logger) Option            { return func(e *Engine) { e.logger = l } }

func NewEngine(policy Policy, sink Sink, opts ...Option) *Engine {
	e := &Engine{
		policy: policy,
		sink:   sink,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		users:  make(map[string]*UserState),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Ingest applies one ping and emits every encounter it produces. The whole
// update, scan and emit step runs under one lock, so concurrent callers are
// serialised ping by ping. A sink error stops the scan and is returned.
func (e *Engine) Ingest(ctx context.Context, p models.Ping) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()

	subject, ok := e.users[p.Username]
	if ok {
		subject.ApplyPing(p.Loc, p.Timestamp)
	} else {
		subject = NewUserState(p.Username, p.Loc, p.Timestamp)
		e.users[p.Username] = subject
		e.order = append(e.order, subject)
		e.logger.Debug("user_added",
			"username", subject.username,
			"lat", p.Loc.Lat,
			"lon", p.Loc.Lon,
			"last_active", p.Timestamp,
		)
	}

	for _, peer := range e.order {
		if peer == subject {
			continue
		}
		if gate := e.failedGate(peer, subject); gate != "" {
			e.metrics.ObserveRejected(gate)
			continue
		}
		enc := e.record(peer, subject)
		if err := e.sink.Emit(ctx, enc); err != nil {
			return fmt.Errorf("emit encounter %s at %d: %w", enc.PairKey(), enc.Time, err)
		}
	}

	e.metrics.ObservePing(len(e.order), time.Since(start))
	return nil
}

// ShouldEncounter reports whether peer and subject qualify for an encounter
// given subject's latest ping.
func (e *Engine) ShouldEncounter(peer, subject *UserState) bool {
	return e.failedGate(peer, subject) == ""
}

// failedGate evaluates the gates in order and returns the name of the first
// one that fails, or "" when all pass.
//
// The recency gate uses the signed difference subject-peer. When the peer is
// ahead of the subject the quotient is negative and the gate passes.
// Divisions truncate toward zero, so a 6h window admits gaps up to 6h-1s.
func (e *Engine) failedGate(peer, subject *UserState) string {
	if (subject.lastActive-peer.lastActive)/secondsPerHour >= e.policy.ActiveWindowHours {
		return observability.GateRecency
	}
	// Written positively so a NaN distance fails the gate.
	if !(geo.Distance(peer.location, subject.location) <= e.policy.DistanceKm) {
		return observability.GateProximity
	}
	if last, ok := subject.LastEncounterWith(peer.username); ok {
		if (subject.lastActive-last)/secondsPerHour < e.policy.CooldownHours {
			return observability.GateCooldown
		}
	}
	return ""
}

func (e *Engine) record(peer, subject *UserState) models.Encounter {
	t := subject.lastActive
	enc := models.NewEncounter(
		models.Participant{Username: peer.username, Loc: peer.location},
		models.Participant{Username: subject.username, Loc: subject.location},
		t,
	)
	subject.RecordEncounterWith(peer.username, t)
	peer.RecordEncounterWith(subject.username, t)
	e.encounters++
	e.metrics.ObserveEncounter()
	e.logger.Debug("encounter_recorded", "earlier", enc.Earlier.Username, "later", enc.Later.Username, "time", t)
	return enc
}

// User returns a copy of the named user's state.
func (e *Engine) User(username string) (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	u, ok := e.users[username]
	if !ok {
		return Snapshot{}, false
	}
	return u.snapshot(), true
}

// Len is the population size.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.order)
}

// Encounters is the number of encounters recorded so far.
func (e *Engine) Encounters() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.encounters
}
