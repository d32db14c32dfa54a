package postgres

import (
	"context"
	"database/sql"
	"errors"

	"fleet/internal/domain"
	"fleet/internal/repository"
)

// InvoiceRepository is a PostgreSQL implementation of repository.InvoiceRepository.
type InvoiceRepository struct {
	q Querier
}

// NewInvoiceRepository creates a invoice repository over q, which is either the
// pool or an open transaction.
func NewInvoiceRepository(q Querier) *InvoiceRepository {
	return &InvoiceRepository{q: q}
}

// Create persists a new invoice.
func (r *InvoiceRepository) Create(ctx context.Context, inv *domain.Invoice) error {
	query := `
		INSERT INTO invoices (
			id, invoice_number, trip_id, customer_id, subtotal, tax, handling_fee, total, currency,
			amount_paid, remaining_amount, status, installments_paid, next_installment_date,
			due_date, issued_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.q.ExecContext(ctx, query,
		inv.ID,
		inv.InvoiceNumber,
		inv.TripID,
		inv.CustomerID,
		inv.Subtotal,
		inv.Tax,
		inv.HandlingFee,
		inv.Total,
		inv.Currency,
		inv.AmountPaid,
		inv.RemainingAmount,
		inv.Status,
		inv.InstallmentsPaid,
		nullTime(inv.NextInstallmentDate),
		inv.DueDate,
		inv.IssuedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

// GetByTripID retrieves a trip's invoice.
func (r *InvoiceRepository) GetByTripID(ctx context.Context, tripID string) (*domain.Invoice, error) {
	query := `
		SELECT id, invoice_number, trip_id, customer_id, subtotal, tax, handling_fee, total, currency,
		       amount_paid, remaining_amount, status, installments_paid, next_installment_date,
		       due_date, issued_at
		FROM invoices WHERE trip_id = $1
	`

	var inv domain.Invoice
	var nextInstallment sql.NullTime
	err := r.q.QueryRowContext(ctx, query, tripID).Scan(
		&inv.ID,
		&inv.InvoiceNumber,
		&inv.TripID,
		&inv.CustomerID,
		&inv.Subtotal,
		&inv.Tax,
		&inv.HandlingFee,
		&inv.Total,
		&inv.Currency,
		&inv.AmountPaid,
		&inv.RemainingAmount,
		&inv.Status,
		&inv.InstallmentsPaid,
		&nextInstallment,
		&inv.DueDate,
		&inv.IssuedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	inv.NextInstallmentDate = toTimePtr(nextInstallment)

	return &inv, nil
}

// Ensure InvoiceRepository implements repository.InvoiceRepository.
var _ repository.InvoiceRepository = (*InvoiceRepository)(nil)
