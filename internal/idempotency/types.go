package idempotency

import "time"

// Status values for notification records
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// NotificationRecord is the shape persisted in the notifications DynamoDB
// table. One record per gateway notification keeps the worker from applying
// the same webhook twice.
type NotificationRecord struct {
	NotificationKey string    `dynamodbav:"notification_key"` // PK, e.g. "payment:123"
	Status          string    `dynamodbav:"status"`
	PedidoID        string    `dynamodbav:"pedido_id,omitempty"`
	CreatedAt       time.Time `dynamodbav:"created_at"`
	UpdatedAt       time.Time `dynamodbav:"updated_at"`
	ExpiresAt       int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note            string    `dynamodbav:"note,omitempty"`
}
