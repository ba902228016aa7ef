package domain

import (
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus is the lifecycle state of a success-fee invoice
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Invoice bills the success fee deducted from a recovered amount. Invoices
// are only created when TotalDue > 0; below-threshold recoveries are
// fee-exempt and produce no invoice at all.
type Invoice struct {
	ID             uuid.UUID     `json:"id"`
	PayerID        uuid.UUID     `json:"payerId"`
	CaseID         uuid.UUID     `json:"caseId"`
	Currency       string        `json:"currency"`
	RecoveryAmount int64         `json:"recoveryAmount"` // minor units
	PlatformFee    int64         `json:"platformFee"`
	VATAmount      int64         `json:"vatAmount"`
	ProcessingFee  int64         `json:"processingFee"`
	TotalDue       int64         `json:"totalDue"`
	Status         InvoiceStatus `json:"status"`
	DueDate        time.Time     `json:"dueDate"`
	PaidAt         *time.Time    `json:"paidAt,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// EffectiveStatus evaluates overdue lazily: a pending invoice past its due
// date reads as overdue without a separate sweep.
func (i *Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	if i.Status == InvoiceStatusPending && now.After(i.DueDate) {
		return InvoiceStatusOverdue
	}
	return i.Status
}
