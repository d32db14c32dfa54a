package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet/internal/domain"
	"fleet/internal/service"
)

func TestInstallmentCalculator(t *testing.T) {
	due := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	plan := &domain.InstallmentPlan{Count: 4, Interval: 30 * 24 * time.Hour}

	tests := []struct {
		name         string
		in           service.PaymentInput
		wantStatus   domain.InvoiceStatus
		wantPaid     float64
		wantLeft     float64
		wantInstalls int
		wantNext     *time.Time
	}{
		{
			name:       "nothing paid before due date",
			in:         service.PaymentInput{Total: 1000, DueDate: due, Now: due.Add(-time.Hour)},
			wantStatus: domain.InvoiceStatusUnpaid,
			wantLeft:   1000,
		},
		{
			name:       "partially paid",
			in:         service.PaymentInput{Total: 1000, DueDate: due, PaymentsToDate: 400, Now: due.Add(-time.Hour)},
			wantStatus: domain.InvoiceStatusPartial,
			wantPaid:   400,
			wantLeft:   600,
		},
		{
			name:       "overdue",
			in:         service.PaymentInput{Total: 1000, DueDate: due, PaymentsToDate: 400, Now: due.Add(time.Hour)},
			wantStatus: domain.InvoiceStatusOverdue,
			wantPaid:   400,
			wantLeft:   600,
		},
		{
			name:       "overpayment is capped",
			in:         service.PaymentInput{Total: 1000, DueDate: due, PaymentsToDate: 1200, Now: due.Add(time.Hour)},
			wantStatus: domain.InvoiceStatusPaid,
			wantPaid:   1000,
		},
		{
			name:         "installments",
			in:           service.PaymentInput{Total: 1000, DueDate: due, Plan: plan, PaymentsToDate: 500, Now: due.Add(-time.Hour)},
			wantStatus:   domain.InvoiceStatusPartial,
			wantPaid:     500,
			wantLeft:     500,
			wantInstalls: 2,
			wantNext:     timePtr(due.Add(60 * 24 * time.Hour)),
		},
		{
			name:         "installments settled",
			in:           service.PaymentInput{Total: 1000, DueDate: due, Plan: plan, PaymentsToDate: 1000, Now: due},
			wantStatus:   domain.InvoiceStatusPaid,
			wantPaid:     1000,
			wantInstalls: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := service.InstallmentCalculator{}.Calculate(tt.in)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.InDelta(t, tt.wantPaid, got.AmountPaid, 0.001)
			assert.InDelta(t, tt.wantLeft, got.RemainingAmount, 0.001)
			assert.Equal(t, tt.wantInstalls, got.InstallmentsPaid)
			assert.Equal(t, tt.wantNext, got.NextInstallmentDate)
		})
	}
}

func TestInvoiceBuilder_Build(t *testing.T) {
	delivered := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	builder := service.NewInvoiceBuilder(service.InvoiceSettings{
		TaxRate:     0.15,
		HandlingFee: 25.5,
		DueDays:     30,
		Currency:    "SAR",
		Plan:        &domain.InstallmentPlan{Count: 2, Interval: 15 * 24 * time.Hour},
	}, nil)

	inv := builder.Build(&domain.Trip{ID: "t1", TripNumber: "TRP-1", CustomerID: "c1", Price: 999.99}, delivered)

	require.NotEmpty(t, inv.ID)
	assert.Equal(t, "INV-TRP-1", inv.InvoiceNumber)
	assert.Equal(t, "c1", inv.CustomerID)
	assert.InDelta(t, 999.99, inv.Subtotal, 0.001)
	assert.InDelta(t, 150.0, inv.Tax, 0.001)
	assert.InDelta(t, 1175.49, inv.Total, 0.001)
	assert.Equal(t, "SAR", inv.Currency, "falls back to the configured currency")
	assert.Equal(t, delivered.AddDate(0, 0, 30), inv.DueDate)
	assert.Equal(t, delivered, inv.IssuedAt)
	assert.Equal(t, domain.InvoiceStatusUnpaid, inv.Status)
	require.NotNil(t, inv.NextInstallmentDate)
	assert.Equal(t, inv.DueDate, *inv.NextInstallmentDate)
}

func timePtr(t time.Time) *time.Time { return &t }
