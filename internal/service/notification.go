package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleet/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationTripRequested     NotificationType = "TRIP_REQUESTED"
	NotificationRequestWithdrawn  NotificationType = "REQUEST_WITHDRAWN"
	NotificationRequestExpired    NotificationType = "REQUEST_EXPIRED"
	NotificationDriverAssigned    NotificationType = "DRIVER_ASSIGNED"
	NotificationNoDriverAvailable NotificationType = "NO_DRIVER_AVAILABLE"
	NotificationTripStatusChanged NotificationType = "TRIP_STATUS_CHANGED"
	NotificationTripCancelled     NotificationType = "TRIP_CANCELLED"
	NotificationInvoiceIssued     NotificationType = "INVOICE_ISSUED"
)

// Notification represents a notification to be sent.
type Notification struct {
	ID          string                 `json:"id"`
	Type        NotificationType       `json:"type"`
	RecipientID string                 `json:"recipient_id"` // customer or driver ID
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Data        map[string]interface{} `json:"data,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Notifier delivers a notification to its recipient.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log. It is the sink used when no
// broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a new LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs n.
func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.logger.Info("notification",
		zap.String("type", string(n.Type)),
		zap.String("recipient_id", n.RecipientID),
		zap.String("title", n.Title),
		zap.String("message", n.Message),
	)
	return nil
}

// MultiNotifier fans a notification out to several sinks.
type MultiNotifier []Notifier

// Notify delivers n to every sink and joins their errors.
func (m MultiNotifier) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const defaultDeliveryTimeout = 2 * time.Second

// NotificationService builds dispatch notifications and hands them to a Notifier.
// Delivery is fire-and-forget: failures are logged and never returned, and
// each delivery is cut off after the delivery timeout.
type NotificationService struct {
	notifier Notifier
	logger   *zap.Logger
	timeout  time.Duration
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(notifier Notifier, logger *zap.Logger) *NotificationService {
	return &NotificationService{notifier: notifier, logger: logger, timeout: defaultDeliveryTimeout}
}

// WithDeliveryTimeout bounds how long a single delivery may take. A
// non-positive d keeps the current timeout.
func (s *NotificationService) WithDeliveryTimeout(d time.Duration) *NotificationService {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// NotifyTripRequested offers a trip to a driver.
func (s *NotificationService) NotifyTripRequested(ctx context.Context, trip *domain.Trip, req *domain.TripRequest) {
	s.send(ctx, Notification{
		Type:        NotificationTripRequested,
		RecipientID: req.DriverID,
		Title:       "New Trip Request",
		Message:     fmt.Sprintf("Trip %s from %s to %s is available", trip.TripNumber, trip.Origin, trip.Destination),
		Data: map[string]interface{}{
			"trip_id":      trip.ID,
			"request_id":   req.ID,
			"vehicle_type": trip.VehicleType,
			"expires_at":   req.ExpiresAt,
		},
	})
}

// NotifyRequestWithdrawn tells a driver their offer is no longer open.
func (s *NotificationService) NotifyRequestWithdrawn(ctx context.Context, trip *domain.Trip, req *domain.TripRequest) {
	s.send(ctx, Notification{
		Type:        NotificationRequestWithdrawn,
		RecipientID: req.DriverID,
		Title:       "Trip Request Closed",
		Message:     fmt.Sprintf("Trip %s is no longer available", trip.TripNumber),
		Data: map[string]interface{}{
			"trip_id":    trip.ID,
			"request_id": req.ID,
		},
	})
}

// NotifyRequestExpired tells a driver their response window closed.
func (s *NotificationService) NotifyRequestExpired(ctx context.Context, trip *domain.Trip, req *domain.TripRequest) {
	s.send(ctx, Notification{
		Type:        NotificationRequestExpired,
		RecipientID: req.DriverID,
		Title:       "Trip Request Expired",
		Message:     fmt.Sprintf("Your window to answer trip %s has closed", trip.TripNumber),
		Data: map[string]interface{}{
			"trip_id":    trip.ID,
			"request_id": req.ID,
		},
	})
}

// NotifyDriverAssigned tells the customer a driver took the trip.
func (s *NotificationService) NotifyDriverAssigned(ctx context.Context, trip *domain.Trip) {
	s.send(ctx, Notification{
		Type:        NotificationDriverAssigned,
		RecipientID: trip.CustomerID,
		Title:       "Driver Assigned",
		Message:     fmt.Sprintf("A driver has been assigned to trip %s", trip.TripNumber),
		Data: map[string]interface{}{
			"trip_id":   trip.ID,
			"driver_id": trip.DriverID,
		},
	})
}

// NotifyNoDriverAvailable tells the customer the trip was cancelled for lack of drivers.
func (s *NotificationService) NotifyNoDriverAvailable(ctx context.Context, trip *domain.Trip) {
	s.send(ctx, Notification{
		Type:        NotificationNoDriverAvailable,
		RecipientID: trip.CustomerID,
		Title:       "No Driver Available",
		Message:     fmt.Sprintf("No driver accepted trip %s; it has been cancelled", trip.TripNumber),
		Data: map[string]interface{}{
			"trip_id": trip.ID,
		},
	})
}

// NotifyTripStatusChanged tells the customer the trip progressed.
func (s *NotificationService) NotifyTripStatusChanged(ctx context.Context, trip *domain.Trip, from domain.TripStatus) {
	s.send(ctx, Notification{
		Type:        NotificationTripStatusChanged,
		RecipientID: trip.CustomerID,
		Title:       "Trip Update",
		Message:     fmt.Sprintf("Trip %s is now %s", trip.TripNumber, trip.Status),
		Data: map[string]interface{}{
			"trip_id": trip.ID,
			"from":    from,
			"to":      trip.Status,
		},
	})
}

// NotifyTripCancelled tells the other party that a trip was cancelled.
func (s *NotificationService) NotifyTripCancelled(ctx context.Context, trip *domain.Trip, cancelledBy string) {
	recipientID := trip.CustomerID
	if cancelledBy == trip.CustomerID {
		recipientID = trip.DriverID
	}
	if recipientID == "" {
		return
	}

	s.send(ctx, Notification{
		Type:        NotificationTripCancelled,
		RecipientID: recipientID,
		Title:       "Trip Cancelled",
		Message:     fmt.Sprintf("Trip %s has been cancelled", trip.TripNumber),
		Data: map[string]interface{}{
			"trip_id":      trip.ID,
			"cancelled_by": cancelledBy,
		},
	})
}

// NotifyInvoiceIssued tells the customer an invoice is ready.
func (s *NotificationService) NotifyInvoiceIssued(ctx context.Context, inv *domain.Invoice) {
	s.send(ctx, Notification{
		Type:        NotificationInvoiceIssued,
		RecipientID: inv.CustomerID,
		Title:       "Invoice Issued",
		Message:     fmt.Sprintf("Invoice %s for %.2f %s is ready", inv.InvoiceNumber, inv.Total, inv.Currency),
		Data: map[string]interface{}{
			"invoice_id": inv.ID,
			"trip_id":    inv.TripID,
			"total":      inv.Total,
			"due_date":   inv.DueDate,
		},
	})
}

func (s *NotificationService) send(ctx context.Context, n Notification) {
	if n.RecipientID == "" {
		return
	}
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now().UTC()

	// The caller's response must not wait on a slow broker, and a request
	// cancelled after commit must not drop the notification.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("notification delivery failed",
			zap.String("type", string(n.Type)),
			zap.String("recipient_id", n.RecipientID),
			zap.Error(err),
		)
	}
}
