package service

import (
	"math"
	"time"

	"github.com/google/uuid"

	"fleet/internal/domain"
)

// PaymentInput is what a PaymentCalculator needs to roll up an invoice.
type PaymentInput struct {
	Total          float64
	DueDate        time.Time
	Plan           *domain.InstallmentPlan
	PaymentsToDate float64
	Now            time.Time
}

// PaymentSummary is the derived payment state of an invoice.
type PaymentSummary struct {
	AmountPaid          float64
	RemainingAmount     float64
	Status              domain.InvoiceStatus
	InstallmentsPaid    int
	NextInstallmentDate *time.Time
}

// PaymentCalculator derives the payment state of an invoice. Implementations must be pure.
type PaymentCalculator interface {
	Calculate(in PaymentInput) PaymentSummary
}

// InstallmentCalculator is the default PaymentCalculator. With a plan, the
// k-th installment (zero based) falls due at DueDate + k*Interval.
type InstallmentCalculator struct{}

// Calculate implements PaymentCalculator.
func (InstallmentCalculator) Calculate(in PaymentInput) PaymentSummary {
	paid := roundMoney(math.Min(math.Max(in.PaymentsToDate, 0), in.Total))
	remaining := roundMoney(in.Total - paid)

	out := PaymentSummary{AmountPaid: paid, RemainingAmount: remaining}
	switch {
	case remaining <= 0:
		out.Status = domain.InvoiceStatusPaid
	case in.Now.After(in.DueDate):
		out.Status = domain.InvoiceStatusOverdue
	case paid > 0:
		out.Status = domain.InvoiceStatusPartial
	default:
		out.Status = domain.InvoiceStatusUnpaid
	}

	if in.Plan == nil || in.Plan.Count <= 0 || in.Total <= 0 {
		return out
	}

	per := in.Total / float64(in.Plan.Count)
	n := int(math.Floor(paid/per + 1e-9))
	if n > in.Plan.Count {
		n = in.Plan.Count
	}
	out.InstallmentsPaid = n
	if n < in.Plan.Count {
		next := in.DueDate.Add(time.Duration(n) * in.Plan.Interval)
		out.NextInstallmentDate = &next
	}
	return out
}

// InvoiceSettings are the commercial terms applied to every new invoice.
type InvoiceSettings struct {
	TaxRate     float64
	HandlingFee float64
	DueDays     int
	Currency    string // used when the trip carries none
	Plan        *domain.InstallmentPlan
}

// InvoiceBuilder issues the invoice of a delivered trip.
type InvoiceBuilder struct {
	settings   InvoiceSettings
	calculator PaymentCalculator
}

// NewInvoiceBuilder creates a new InvoiceBuilder. A nil calculator selects InstallmentCalculator.
func NewInvoiceBuilder(settings InvoiceSettings, calculator PaymentCalculator) *InvoiceBuilder {
	if calculator == nil {
		calculator = InstallmentCalculator{}
	}
	return &InvoiceBuilder{settings: settings, calculator: calculator}
}

// Build returns the invoice for trip, delivered at deliveredAt.
func (b *InvoiceBuilder) Build(trip *domain.Trip, deliveredAt time.Time) *domain.Invoice {
	subtotal := roundMoney(trip.Price)
	tax := roundMoney(subtotal * b.settings.TaxRate)
	fee := roundMoney(b.settings.HandlingFee)
	total := roundMoney(subtotal + tax + fee)
	due := deliveredAt.AddDate(0, 0, b.settings.DueDays)

	currency := trip.Currency
	if currency == "" {
		currency = b.settings.Currency
	}

	summary := b.calculator.Calculate(PaymentInput{
		Total:   total,
		DueDate: due,
		Plan:    b.settings.Plan,
		Now:     deliveredAt,
	})

	return &domain.Invoice{
		ID:                  uuid.NewString(),
		InvoiceNumber:       "INV-" + trip.TripNumber,
		TripID:              trip.ID,
		CustomerID:          trip.CustomerID,
		Subtotal:            subtotal,
		Tax:                 tax,
		HandlingFee:         fee,
		Total:               total,
		Currency:            currency,
		AmountPaid:          summary.AmountPaid,
		RemainingAmount:     summary.RemainingAmount,
		Status:              summary.Status,
		InstallmentsPaid:    summary.InstallmentsPaid,
		NextInstallmentDate: summary.NextInstallmentDate,
		DueDate:             due,
		IssuedAt:            deliveredAt,
	}
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
