// Package audit emits mutation records for the wallet/node registry. The core
// produces the records and their before/after diffs; storage and querying
// belong to the external audit service consuming the stream.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/chainapsis/oko-tss/pkg/logger"
	"github.com/chainapsis/oko-tss/pkg/messaging"
)

// Record is one registry mutation.
type Record struct {
	ID       string         `json:"id"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Action   string         `json:"action"`
	Diff     map[string]any `json:"diff,omitempty"`
	At       time.Time      `json:"at"`
}

// FieldChange is one changed field inside a diff.
type FieldChange struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

// Publisher delivers audit records. Delivery is best-effort from the core's
// point of view; registry mutations never fail because auditing did.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
	Close()
}

// NewRecord stamps id and time onto a mutation.
func NewRecord(entity, entityID, action string, diff map[string]any) Record {
	return Record{
		ID:       uuid.NewString(),
		Entity:   entity,
		EntityID: entityID,
		Action:   action,
		Diff:     diff,
		At:       time.Now().UTC(),
	}
}

// Diff computes per-field before/after changes between two flat field maps.
// Fields absent on one side diff against nil.
func Diff(before, after map[string]any) map[string]any {
	diff := make(map[string]any)
	for k, b := range before {
		a, ok := after[k]
		if !ok {
			diff[k] = FieldChange{Before: b, After: nil}
			continue
		}
		if a != b {
			diff[k] = FieldChange{Before: b, After: a}
		}
	}
	for k, a := range after {
		if _, ok := before[k]; !ok {
			diff[k] = FieldChange{Before: nil, After: a}
		}
	}
	if len(diff) == 0 {
		return nil
	}
	return diff
}

// NATSPublisher publishes records onto the audit JetStream stream.
type NATSPublisher struct {
	queue messaging.MessageQueue
}

func NewNATSPublisher(queue messaging.MessageQueue) *NATSPublisher {
	return &NATSPublisher{queue: queue}
}

func (p *NATSPublisher) Publish(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.queue.Enqueue(ctx, messaging.FormatAuditTopic(rec.Entity, rec.Action), data,
		&messaging.EnqueueOptions{IdempotentKey: rec.ID})
}

func (p *NATSPublisher) Close() { p.queue.Close() }

// NoopPublisher drops records; used when no audit collaborator is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, rec Record) error {
	logger.Debug("Audit record dropped (no publisher configured)",
		"entity", rec.Entity, "action", rec.Action, "entity_id", rec.EntityID)
	return nil
}

func (NoopPublisher) Close() {}
