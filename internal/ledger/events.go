package ledger

import "github.com/google/uuid"

// MovementCreatedPayload is the outbox payload for TopicMovementCreated.
// Consumers use EventID for at-least-once deduplication.
type MovementCreatedPayload struct {
	EventID        uuid.UUID    `json:"event_id"`
	OrganizationID int64        `json:"organization_id"`
	ProductID      int64        `json:"product_id"`
	WarehouseID    int64        `json:"warehouse_id"`
	MovementType   MovementType `json:"movement_type"`
	ReferenceType  string       `json:"reference_type"`
	ReferenceID    int64        `json:"reference_id"`
}
