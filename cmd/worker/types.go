package main

// WorkerMessage is the payload sent from the webhook endpoint -> SQS -> worker.
type WorkerMessage struct {
	Topic      string `json:"topic"`       // e.g. "payment"
	ResourceID string `json:"resource_id"` // gateway-side id of the resource
}
