package model

import "time"

// ProcessedWebhookMessage records that an inbound webhook message id was applied.
type ProcessedWebhookMessage struct {
	MessageID   string    `json:"message_id"`
	ProcessedAt time.Time `json:"processed_at"`
}
