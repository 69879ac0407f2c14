// Package telemetry records routing and arbitration decisions to an
// append-only log. Recording never blocks or fails the request that produced
// the decision: writes happen on a background goroutine and events are dropped
// (and counted) under sustained backpressure.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/adaptive-triage/internal/arbitration"
	"github.com/danielpatrickdp/adaptive-triage/internal/complexity"
	"github.com/danielpatrickdp/adaptive-triage/internal/router"
)

// #region event

// EventType distinguishes the two record kinds.
type EventType string

const (
	EventRouting     EventType = "routing"
	EventArbitration EventType = "arbitration"
)

// Event is one telemetry record. Payload is the JSON encoding of a
// RoutingRecord or an ArbitrationRecord depending on Type.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// #endregion event

// #region records

// RoutingRecord captures everything needed to replay a routing decision
// offline against a different threshold. The query itself is not stored,
// only its digest.
type RoutingRecord struct {
	QueryDigest       string              `json:"query_digest"`
	Features          complexity.Features `json:"features"`
	Decision          router.Decision     `json:"decision"`
	Degraded          bool                `json:"degraded"`
	NoInference       bool                `json:"no_inference"`
	ContextCount      int                 `json:"context_count"`
	RetrievalDegraded bool                `json:"retrieval_degraded"`
	Threshold         float64             `json:"threshold"`
}

// ArbitrationRecord is the arbitration decision as written to telemetry.
type ArbitrationRecord = arbitration.Decision

// Digest hashes query text for the routing record.
func Digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// NewRoutingEvent wraps rec in an Event stamped with now.
func NewRoutingEvent(rec RoutingRecord, now time.Time) (Event, error) {
	return newEvent(EventRouting, rec, now)
}

// NewArbitrationEvent wraps d in an Event stamped with now.
func NewArbitrationEvent(d ArbitrationRecord, now time.Time) (Event, error) {
	return newEvent(EventArbitration, d, now)
}

func newEvent(typ EventType, v any, now time.Time) (Event, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s record: %w", typ, err)
	}
	if now.IsZero() {
		now = time.Now()
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: now.UTC(),
		Payload:   payload,
	}, nil
}

// Routing decodes the payload of a routing event.
func (e Event) Routing() (RoutingRecord, error) {
	var rec RoutingRecord
	if e.Type != EventRouting {
		return rec, fmt.Errorf("decode routing record: event %s has type %s", e.ID, e.Type)
	}
	if err := json.Unmarshal(e.Payload, &rec); err != nil {
		return rec, fmt.Errorf("decode routing record: %w", err)
	}
	return rec, nil
}

// Arbitration decodes the payload of an arbitration event.
func (e Event) Arbitration() (ArbitrationRecord, error) {
	var d ArbitrationRecord
	if e.Type != EventArbitration {
		return d, fmt.Errorf("decode arbitration record: event %s has type %s", e.ID, e.Type)
	}
	if err := json.Unmarshal(e.Payload, &d); err != nil {
		return d, fmt.Errorf("decode arbitration record: %w", err)
	}
	return d, nil
}

// #endregion records
