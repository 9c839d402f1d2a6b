package ws

import (
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
)

// EventMessage is the wire form of an audit event pushed to live clients.
type EventMessage struct {
	ID                 uuid.UUID      `json:"id"`
	Action             string         `json:"action"`
	EntityType         string         `json:"entity_type"`
	EntityID           uuid.UUID      `json:"entity_id"`
	PreviousState      string         `json:"previous_state,omitempty"`
	NewState           string         `json:"new_state,omitempty"`
	ActorType          string         `json:"actor_type"`
	ActorEmail         string         `json:"actor_email,omitempty"`
	RegulatoryCitation string         `json:"regulatory_citation"`
	CorrelationID      string         `json:"correlation_id,omitempty"`
	Details            map[string]any `json:"details,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

func newEventMessage(ev *domain.AuditEvent) EventMessage {
	return EventMessage{
		ID:                 ev.ID,
		Action:             ev.Action,
		EntityType:         ev.EntityType,
		EntityID:           ev.EntityID,
		PreviousState:      ev.PreviousState,
		NewState:           ev.NewState,
		ActorType:          ev.ActorType,
		ActorEmail:         ev.ActorEmail,
		RegulatoryCitation: ev.RegulatoryCitation,
		CorrelationID:      ev.CorrelationID,
		Details:            ev.Details,
		CreatedAt:          ev.CreatedAt,
	}
}
