package memory

import (
	"context"
	"sort"
	"time"

	"fleet/internal/domain"
	"fleet/internal/repository"
)

type tripRepo struct{ s *Store }

func (r tripRepo) Create(_ context.Context, trip *domain.Trip) error {
	return r.s.do(func(st *state) error {
		if _, ok := st.trips[trip.ID]; ok {
			return repository.ErrConflict
		}
		cp := *trip
		st.trips[trip.ID] = &cp
		return nil
	})
}

func (r tripRepo) GetByID(_ context.Context, id string) (*domain.Trip, error) {
	var out *domain.Trip
	err := r.s.do(func(st *state) error {
		t, ok := st.trips[id]
		if !ok {
			return repository.ErrNotFound
		}
		cp := *t
		out = &cp
		return nil
	})
	return out, err
}

// GetByIDForUpdate needs no extra locking: a transaction already holds the store lock.
func (r tripRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Trip, error) {
	return r.GetByID(ctx, id)
}

func (r tripRepo) AssignDriver(_ context.Context, tripID, driverID string) (bool, error) {
	var assigned bool
	err := r.s.do(func(st *state) error {
		t, ok := st.trips[tripID]
		if !ok || t.DriverID != "" {
			return nil
		}
		t.DriverID = driverID
		assigned = true
		return nil
	})
	return assigned, err
}

func (r tripRepo) Update(_ context.Context, trip *domain.Trip) error {
	return r.s.do(func(st *state) error {
		if _, ok := st.trips[trip.ID]; !ok {
			return repository.ErrNotFound
		}
		cp := *trip
		st.trips[trip.ID] = &cp
		return nil
	})
}

type driverRepo struct{ s *Store }

func (r driverRepo) Create(_ context.Context, driver *domain.Driver) error {
	return r.s.do(func(st *state) error {
		if _, ok := st.drivers[driver.ID]; ok {
			return repository.ErrConflict
		}
		st.drivers[driver.ID] = copyDriver(driver)
		return nil
	})
}

func (r driverRepo) GetByID(_ context.Context, id string) (*domain.Driver, error) {
	var out *domain.Driver
	err := r.s.do(func(st *state) error {
		d, ok := st.drivers[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = withActiveTrips(st, d)
		return nil
	})
	return out, err
}

func (r driverRepo) ListAvailable(_ context.Context, vehicleType string) ([]*domain.Driver, error) {
	var out []*domain.Driver
	err := r.s.do(func(st *state) error {
		for _, d := range st.drivers {
			if d.IsAvailable && d.CanOperate(vehicleType) {
				out = append(out, withActiveTrips(st, d))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r driverRepo) HasCapabilities(_ context.Context) (bool, error) {
	var has bool
	err := r.s.do(func(st *state) error {
		for _, d := range st.drivers {
			if len(d.VehicleTypes) > 0 {
				has = true
				return nil
			}
		}
		return nil
	})
	return has, err
}

func (r driverRepo) SetAvailability(_ context.Context, id string, available bool) error {
	return r.s.do(func(st *state) error {
		d, ok := st.drivers[id]
		if !ok {
			return repository.ErrNotFound
		}
		d.IsAvailable = available
		return nil
	})
}

func withActiveTrips(st *state, d *domain.Driver) *domain.Driver {
	cp := copyDriver(d)
	cp.ActiveTrips = 0
	for _, t := range st.trips {
		if t.DriverID == d.ID && !t.Status.Terminal() {
			cp.ActiveTrips++
		}
	}
	return cp
}

type requestRepo struct{ s *Store }

func (r requestRepo) Create(_ context.Context, req *domain.TripRequest) (bool, error) {
	var created bool
	err := r.s.do(func(st *state) error {
		for _, existing := range st.requests {
			if existing.TripID == req.TripID && existing.DriverID == req.DriverID {
				return nil
			}
		}
		cp := *req
		st.requests[req.ID] = &cp
		st.order = append(st.order, req.ID)
		created = true
		return nil
	})
	return created, err
}

func (r requestRepo) GetByTripAndDriver(_ context.Context, tripID, driverID string) (*domain.TripRequest, error) {
	var out *domain.TripRequest
	err := r.s.do(func(st *state) error {
		for _, req := range st.requests {
			if req.TripID == tripID && req.DriverID == driverID {
				cp := *req
				out = &cp
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r requestRepo) ListByTrip(_ context.Context, tripID string) ([]*domain.TripRequest, error) {
	return r.collect(func(req *domain.TripRequest) bool { return req.TripID == tripID }, nil)
}

func (r requestRepo) ListPendingByDriver(_ context.Context, driverID string) ([]*domain.TripRequest, error) {
	out, err := r.collect(func(req *domain.TripRequest) bool {
		return req.DriverID == driverID && req.Status == domain.TripRequestPending
	}, nil)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, err
}

func (r requestRepo) Transition(_ context.Context, id string, status domain.TripRequestStatus, respondedAt *time.Time) (bool, error) {
	var moved bool
	err := r.s.do(func(st *state) error {
		req, ok := st.requests[id]
		if !ok || req.Status != domain.TripRequestPending {
			return nil
		}
		req.Status = status
		req.RespondedAt = respondedAt
		moved = true
		return nil
	})
	return moved, err
}

func (r requestRepo) RejectPending(_ context.Context, tripID, exceptID string) ([]*domain.TripRequest, error) {
	return r.collect(func(req *domain.TripRequest) bool {
		return req.TripID == tripID && req.ID != exceptID && req.Status == domain.TripRequestPending
	}, func(req *domain.TripRequest) {
		req.Status = domain.TripRequestRejected
	})
}

func (r requestRepo) CountPending(_ context.Context, tripID string) (int, error) {
	out, err := r.collect(func(req *domain.TripRequest) bool {
		return req.TripID == tripID && req.Status == domain.TripRequestPending
	}, nil)
	return len(out), err
}

func (r requestRepo) ListTripsWithOverdue(_ context.Context, now time.Time) ([]string, error) {
	seen := make(map[string]bool)
	var tripIDs []string
	_, err := r.collect(func(req *domain.TripRequest) bool {
		return req.Status == domain.TripRequestPending && req.ExpiresAt.Before(now)
	}, func(req *domain.TripRequest) {
		if !seen[req.TripID] {
			seen[req.TripID] = true
			tripIDs = append(tripIDs, req.TripID)
		}
	})
	sort.Strings(tripIDs)
	return tripIDs, err
}

func (r requestRepo) ExpireOverdue(_ context.Context, tripID string, now time.Time) ([]*domain.TripRequest, error) {
	return r.collect(func(req *domain.TripRequest) bool {
		return req.TripID == tripID && req.Status == domain.TripRequestPending && req.ExpiresAt.Before(now)
	}, func(req *domain.TripRequest) {
		req.Status = domain.TripRequestExpired
	})
}

// collect walks requests in insertion order, applies mutate to each match
// and returns copies taken after mutation.
func (r requestRepo) collect(match func(*domain.TripRequest) bool, mutate func(*domain.TripRequest)) ([]*domain.TripRequest, error) {
	var out []*domain.TripRequest
	err := r.s.do(func(st *state) error {
		for _, id := range st.order {
			req := st.requests[id]
			if !match(req) {
				continue
			}
			if mutate != nil {
				mutate(req)
			}
			cp := *req
			out = append(out, &cp)
		}
		return nil
	})
	return out, err
}

type trackingRepo struct{ s *Store }

func (r trackingRepo) Append(_ context.Context, entry *domain.TrackingLog) error {
	return r.s.do(func(st *state) error {
		cp := *entry
		st.tracking = append(st.tracking, &cp)
		return nil
	})
}

func (r trackingRepo) ListByTrip(_ context.Context, tripID string) ([]*domain.TrackingLog, error) {
	var out []*domain.TrackingLog
	err := r.s.do(func(st *state) error {
		for _, e := range st.tracking {
			if e.TripID == tripID {
				cp := *e
				out = append(out, &cp)
			}
		}
		return nil
	})
	return out, err
}

type invoiceRepo struct{ s *Store }

func (r invoiceRepo) Create(_ context.Context, inv *domain.Invoice) error {
	return r.s.do(func(st *state) error {
		if _, ok := st.invoices[inv.TripID]; ok {
			return repository.ErrConflict
		}
		cp := *inv
		st.invoices[inv.TripID] = &cp
		return nil
	})
}

func (r invoiceRepo) GetByTripID(_ context.Context, tripID string) (*domain.Invoice, error) {
	var out *domain.Invoice
	err := r.s.do(func(st *state) error {
		inv, ok := st.invoices[tripID]
		if !ok {
			return repository.ErrNotFound
		}
		cp := *inv
		out = &cp
		return nil
	})
	return out, err
}
