package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is stamped on every envelope this service produces.
const SchemaVersion = "1.0"

// Event type tags carried in Envelope.Type.
const (
	TypeCheckoutCommand = "command.checkout"
	TypeOrderCreated    = "order.created"
	TypeEmail           = "notification.email"
	TypeStockUpdated    = "inventory.stock.updated"
	TypeAudit           = "analytics.audit"
	TypeDeadLetter      = "analytics.deadletter"
)

// Envelope is the canonical wrapper around every message in the pipeline.
// ID is unique per logical business event; a replay of the same logical
// event reuses the same ID so consumers can deduplicate.
type Envelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schemaVersion"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Wrap builds an envelope around payload with a fresh id and the current
// UTC timestamp. correlationID may be empty for the first event of a chain;
// derived events pass the originating command's correlation id through.
func Wrap(eventType string, payload interface{}, source, correlationID string) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload for %s: %w", eventType, err)
	}
	return Envelope{
		ID:            uuid.NewString(),
		Type:          eventType,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Source:        source,
		CorrelationID: correlationID,
		Payload:       body,
	}, nil
}

// derivedNamespace seeds DerivedID. Changing it changes every derived id,
// which would defeat downstream deduplication across deployments.
var derivedNamespace = uuid.MustParse("9d2c7f76-3d4b-4bd4-8f5a-6e1c0a4b9e21")

// DerivedID returns a stable id for an artifact derived from the event with
// parentID. Replays of the same parent derive the same ids, so re-publishing
// a derived event after a partial fan-out failure cannot double-count.
func DerivedID(parentID, discriminator string) string {
	return uuid.NewSHA1(derivedNamespace, []byte(parentID+"/"+discriminator)).String()
}

// Decode unmarshals the envelope payload into out.
func (e Envelope) Decode(out interface{}) error {
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
