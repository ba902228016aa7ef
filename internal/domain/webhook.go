package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is a durably recorded provider callback. Events are
// acknowledged to the provider immediately after being stored and processed
// asynchronously; delivery is at-least-once and unordered.
type WebhookEvent struct {
	ID             uuid.UUID  `json:"id"`
	Rail           string     `json:"rail"`
	ExternalRef    string     `json:"externalRef"` // provider's order/transaction id
	Payload        []byte     `json:"-"`
	ReceivedAt     time.Time  `json:"receivedAt"`
	ProcessedAt    *time.Time `json:"processedAt,omitempty"`
	ProcessingNote *string    `json:"processingNote,omitempty"`
}
