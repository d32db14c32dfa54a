package domain

import "time"

// InvoiceStatus represents the payment state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid  InvoiceStatus = "UNPAID"
	InvoiceStatusPartial InvoiceStatus = "PARTIAL"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
	InvoiceStatusOverdue InvoiceStatus = "OVERDUE"
)

// InstallmentPlan splits an invoice total into equal payments.
type InstallmentPlan struct {
	Count    int
	Interval time.Duration
}

// Invoice is issued once per delivered trip.
type Invoice struct {
	ID                  string
	InvoiceNumber       string
	TripID              string
	CustomerID          string
	Subtotal            float64
	Tax                 float64
	HandlingFee         float64
	Total               float64
	Currency            string
	AmountPaid          float64
	RemainingAmount     float64
	Status              InvoiceStatus
	InstallmentsPaid    int
	NextInstallmentDate *time.Time
	DueDate             time.Time
	IssuedAt            time.Time
}
