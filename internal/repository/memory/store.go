// Package memory provides an in-process implementation of repository.Store.
//
// Transactions are serializable: WithTx takes the store-wide lock, runs fn
// against a private copy of the data and swaps the copy in on success. That
// makes it a faithful stand-in for row-locked PostgreSQL transactions in
// concurrency tests.
package memory

import (
	"context"
	"sync"

	"fleet/internal/domain"
	"fleet/internal/repository"
)

type state struct {
	trips    map[string]*domain.Trip
	drivers  map[string]*domain.Driver
	requests map[string]*domain.TripRequest
	order    []string // request IDs in insertion order
	tracking []*domain.TrackingLog
	invoices map[string]*domain.Invoice // keyed by trip ID
}

func newState() *state {
	return &state{
		trips:    make(map[string]*domain.Trip),
		drivers:  make(map[string]*domain.Driver),
		requests: make(map[string]*domain.TripRequest),
		invoices: make(map[string]*domain.Invoice),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, t := range s.trips {
		cp := *t
		c.trips[id] = &cp
	}
	for id, d := range s.drivers {
		c.drivers[id] = copyDriver(d)
	}
	for id, r := range s.requests {
		cp := *r
		c.requests[id] = &cp
	}
	c.order = append([]string(nil), s.order...)
	c.tracking = append([]*domain.TrackingLog(nil), s.tracking...)
	for id, inv := range s.invoices {
		cp := *inv
		c.invoices[id] = &cp
	}
	return c
}

type db struct {
	mu sync.Mutex
	st *state
}

// Store is an in-memory repository.Store.
type Store struct {
	db *db
	tx *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{db: &db{st: newState()}}
}

// do runs fn against the transaction's state, or against the shared state
// under the store lock when not in a transaction.
func (s *Store) do(fn func(st *state) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return fn(s.db.st)
}

// WithTx runs fn against a private copy of the data and commits it if fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	work := s.db.st.clone()
	if err := fn(&Store{db: s.db, tx: work}); err != nil {
		return err
	}
	s.db.st = work
	return nil
}

func (s *Store) Trips() repository.TripRepository { return tripRepo{s} }
func (s *Store) Drivers() repository.DriverRepository { return driverRepo{s} }
func (s *Store) Requests() repository.TripRequestRepository { return requestRepo{s} }
func (s *Store) Tracking() repository.TrackingRepository { return trackingRepo{s} }
func (s *Store) Invoices() repository.InvoiceRepository { return invoiceRepo{s} }

var _ repository.Store = (*Store)(nil)

func copyDriver(d *domain.Driver) *domain.Driver {
	cp := *d
	cp.VehicleTypes = append([]string(nil), d.VehicleTypes...)
	return &cp
}
