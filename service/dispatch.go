package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"voltcare/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// dispatchWindow is the fixed ETA handed to the customer when a partner
// accepts: the partner is expected on site within 30 minutes.
const dispatchWindow = 30 * time.Minute

// defaultRates is the priority-indexed rate table used for the initial cost
// estimate when a booking does not carry one.
var defaultRates = map[domain.Priority]string{
	domain.PriorityNormal:    "850.00",
	domain.PriorityUrgent:    "1100.00",
	domain.PriorityEmergency: "1500.00",
}

// Dispatcher is the service lifecycle engine: creation, partner assignment,
// completion, and cancellation, plus the notification and outbox side effects
// of each transition.
type Dispatcher struct {
	store    domain.Store
	notifier Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewDispatcher creates a Dispatcher. The notifier is called synchronously on
// transitions but its failures never roll a transition back.
func NewDispatcher(store domain.Store, notifier Notifier, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		notifier: notifier,
		logger:   logger,
		tracer:   otel.Tracer("voltcare"),
	}
}

// CreateServiceRequest carries a new booking.
type CreateServiceRequest struct {
	CustomerID       string
	VehicleID        string
	ServiceType      string
	IssueDescription string
	Priority         domain.Priority
	Location         *domain.Location
	ScheduledDate    *time.Time
	EstimatedCost    string
}

// CreateService validates a booking and creates it in the pending pool.
// A customer with an open (pending, assigned, or in-progress) service cannot
// book another one.
func (d *Dispatcher) CreateService(ctx context.Context, req CreateServiceRequest) (*domain.Service, error) {
	ctx, span := d.tracer.Start(ctx, "CreateService")
	defer span.End()
	span.SetAttributes(
		attribute.String("customerID", req.CustomerID),
		attribute.String("serviceType", req.ServiceType),
		attribute.String("priority", string(req.Priority)),
	)

	if req.CustomerID == "" {
		return nil, domain.NewValidationError("customerId", "customer id is required")
	}
	if req.VehicleID == "" {
		return nil, domain.NewValidationError("vehicleId", "vehicle id is required")
	}
	if req.ServiceType == "" {
		return nil, domain.NewValidationError("serviceType", "service type is required")
	}
	if req.Location == nil {
		return nil, domain.NewValidationError("serviceLocation", "service location is required")
	}
	if req.Priority == "" {
		req.Priority = domain.PriorityNormal
	}
	if _, ok := defaultRates[req.Priority]; !ok {
		return nil, domain.NewValidationError("priority", "unknown priority")
	}

	vehicle, err := d.store.GetVehicle(ctx, req.VehicleID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Vehicle lookup failed")
		return nil, err
	}
	if vehicle.UserID != req.CustomerID {
		err := domain.NewValidationError("vehicleId", "vehicle does not belong to the customer")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// One open service per customer: a pending booking blocks the next one,
	// so no sequence of accepts can yield two active services.
	history, err := d.store.GetServicesByCustomer(ctx, req.CustomerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Service history lookup failed")
		return nil, err
	}
	for _, open := range history {
		if domain.OpenServiceStatus(open.Status) {
			err := domain.NewConflictError("customer already has an open service")
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	estimated := req.EstimatedCost
	if estimated == "" {
		estimated = defaultRates[req.Priority]
	} else if _, err := domain.ParseMoney(estimated); err != nil {
		return nil, domain.NewValidationError("estimatedCost", "not a valid decimal amount")
	}

	svc, err := d.store.CreateService(ctx, &domain.Service{
		CustomerID:       req.CustomerID,
		VehicleID:        req.VehicleID,
		ServiceType:      req.ServiceType,
		IssueDescription: req.IssueDescription,
		Status:           domain.ServicePending,
		Priority:         req.Priority,
		ServiceLocation:  req.Location,
		ScheduledDate:    req.ScheduledDate,
		EstimatedCost:    estimated,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create service")
		d.logger.Error("Failed to create service", "customerID", req.CustomerID, "error", err)
		return nil, err
	}
	d.logger.Info("Service created",
		"serviceID", svc.ID,
		"customerID", svc.CustomerID,
		"priority", string(svc.Priority),
		"estimatedCost", svc.EstimatedCost)
	span.SetAttributes(attribute.String("serviceID", svc.ID))

	title, message := "Service Booked", "Your service has been booked successfully. We'll find a technician for you."
	if svc.Priority == domain.PriorityEmergency {
		title = "Emergency Service Requested"
		message = "Your emergency service request has been received. A technician will contact you shortly."
	}
	d.notify(ctx, svc.CustomerID, title, message, domain.NotificationServiceUpdate, map[string]string{"serviceId": svc.ID})
	d.appendEvent(ctx, domain.EventServiceRequested, svc)
	return svc, nil
}

// AcceptService claims a pending service for the partner. The claim is a
// compare-and-set at the store layer, so with N concurrent accepts exactly
// one wins; the rest observe a ConflictError. The winner gets a fresh
// tracking record in the on_way state.
func (d *Dispatcher) AcceptService(ctx context.Context, serviceID, partnerID string, location *domain.Location) (*domain.Service, error) {
	ctx, span := d.tracer.Start(ctx, "AcceptService")
	defer span.End()
	span.SetAttributes(
		attribute.String("serviceID", serviceID),
		attribute.String("partnerID", partnerID),
	)

	if partnerID == "" {
		return nil, domain.NewValidationError("partnerId", "partner id is required")
	}

	svc, err := d.store.ClaimService(ctx, serviceID, partnerID)
	if err != nil {
		if domain.IsConflict(err) {
			d.logger.Warn("Accept lost the claim race", "serviceID", serviceID, "partnerID", partnerID)
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Claim failed")
		}
		return nil, err
	}

	eta := time.Now().UTC().Add(dispatchWindow)
	initial := location
	if initial == nil {
		initial = svc.ServiceLocation
	}
	if _, err := d.store.CreateServiceTracking(ctx, &domain.ServiceTracking{
		ServiceID:        svc.ID,
		PartnerID:        partnerID,
		CurrentLocation:  initial,
		EstimatedArrival: &eta,
		Status:           domain.TrackingOnWay,
	}); err != nil {
		// The claim stands; the service proceeds without a live tracking
		// feed until the record can be created out of band.
		span.RecordError(err)
		d.logger.Error("Failed to create tracking record", "serviceID", svc.ID, "error", err)
	}

	d.logger.Info("Service assigned", "serviceID", svc.ID, "partnerID", partnerID)
	d.notify(ctx, svc.CustomerID, "Technician Assigned",
		"A technician has been assigned to your service. They are on their way!",
		domain.NotificationServiceUpdate, map[string]string{"serviceId": svc.ID})
	d.appendEvent(ctx, domain.EventServiceAssigned, svc)
	return svc, nil
}

// DeclineService records that the partner passed on a pending service. The
// status stays pending so the request remains visible to other partners, but
// the declining partner is filtered out of its pending pool from now on.
func (d *Dispatcher) DeclineService(ctx context.Context, serviceID, partnerID string) (*domain.Service, error) {
	ctx, span := d.tracer.Start(ctx, "DeclineService")
	defer span.End()
	span.SetAttributes(
		attribute.String("serviceID", serviceID),
		attribute.String("partnerID", partnerID),
	)

	if partnerID == "" {
		return nil, domain.NewValidationError("partnerId", "partner id is required")
	}

	svc, err := d.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if svc.Status != domain.ServicePending {
		return nil, domain.NewConflictError("service is no longer pending")
	}

	svc, err = d.store.UpdateService(ctx, serviceID, func(s *domain.Service) {
		if !declinedBy(s, partnerID) {
			s.DeclinedPartnerIDs = append(s.DeclinedPartnerIDs, partnerID)
		}
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to record decline")
		return nil, err
	}
	d.logger.Info("Service declined", "serviceID", serviceID, "partnerID", partnerID)
	return svc, nil
}

// ServicePatch is an administrative partial update. Nil fields are left
// untouched. Status changes must follow the state machine.
type ServicePatch struct {
	Status           *domain.ServiceStatus
	IssueDescription *string
	ScheduledDate    *time.Time
	EstimatedCost    *string
	FinalCost        *string
	Rating           *int
	Feedback         *string
}

// UpdateService applies a guarded partial update. A patch that would move the
// status somewhere unreachable from the current one fails with a
// ValidationError, as does a rating on a service that is not completed.
func (d *Dispatcher) UpdateService(ctx context.Context, serviceID string, patch ServicePatch) (*domain.Service, error) {
	ctx, span := d.tracer.Start(ctx, "UpdateService")
	defer span.End()
	span.SetAttributes(attribute.String("serviceID", serviceID))

	svc, err := d.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	if patch.Status != nil && !domain.CanTransitionService(svc.Status, *patch.Status) {
		err := domain.NewValidationError("status",
			"cannot transition from "+string(svc.Status)+" to "+string(*patch.Status))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	finalStatus := svc.Status
	if patch.Status != nil {
		finalStatus = *patch.Status
	}
	if (patch.Rating != nil || patch.Feedback != nil) && finalStatus != domain.ServiceCompleted {
		return nil, domain.NewValidationError("rating", "rating and feedback require a completed service")
	}
	if patch.Rating != nil && (*patch.Rating < 1 || *patch.Rating > 5) {
		return nil, domain.NewValidationError("rating", "rating must be between 1 and 5")
	}
	for field, cost := range map[string]*string{"estimatedCost": patch.EstimatedCost, "finalCost": patch.FinalCost} {
		if cost != nil {
			if _, err := domain.ParseMoney(*cost); err != nil {
				return nil, domain.NewValidationError(field, "not a valid decimal amount")
			}
		}
	}

	// Patching assigned back to pending releases the partner's claim: the
	// partner is cleared, recorded as declined, and the tracking record is
	// closed so the next accept starts a fresh one.
	releasing := patch.Status != nil && *patch.Status == domain.ServicePending && svc.Status == domain.ServiceAssigned
	releasedPartner := svc.PartnerID

	svc, err = d.store.UpdateService(ctx, serviceID, func(s *domain.Service) {
		if patch.Status != nil {
			if releasing && s.PartnerID != "" {
				if !declinedBy(s, s.PartnerID) {
					s.DeclinedPartnerIDs = append(s.DeclinedPartnerIDs, s.PartnerID)
				}
				s.PartnerID = ""
			}
			s.Status = *patch.Status
			if *patch.Status == domain.ServiceCompleted && s.CompletedDate == nil {
				now := time.Now().UTC()
				s.CompletedDate = &now
			}
		}
		if patch.IssueDescription != nil {
			s.IssueDescription = *patch.IssueDescription
		}
		if patch.ScheduledDate != nil {
			s.ScheduledDate = patch.ScheduledDate
		}
		if patch.EstimatedCost != nil {
			s.EstimatedCost = *patch.EstimatedCost
		}
		if patch.FinalCost != nil {
			s.FinalCost = *patch.FinalCost
		}
		if patch.Rating != nil {
			s.Rating = *patch.Rating
		}
		if patch.Feedback != nil {
			s.Feedback = *patch.Feedback
		}
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update service")
		return nil, err
	}

	if releasing {
		if _, err := d.store.UpdateServiceTracking(ctx, serviceID, func(t *domain.ServiceTracking) error {
			t.Status = domain.TrackingCompleted
			return nil
		}); err != nil && !domain.IsNotFound(err) {
			d.logger.Error("Failed to close tracking record", "serviceID", serviceID, "error", err)
		}
		d.logger.Info("Claim released", "serviceID", serviceID, "partnerID", releasedPartner)
	}

	d.logger.Info("Service updated", "serviceID", serviceID, "status", string(svc.Status))
	return svc, nil
}

// CompleteService finishes a service from the assigned or in_progress state,
// records the final cost, closes the tracking record, and stamps the
// vehicle's last service date.
func (d *Dispatcher) CompleteService(ctx context.Context, serviceID, finalCost string, rating int, feedback string) (*domain.Service, error) {
	ctx, span := d.tracer.Start(ctx, "CompleteService")
	defer span.End()
	span.SetAttributes(attribute.String("serviceID", serviceID))

	svc, err := d.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if svc.Status != domain.ServiceAssigned && svc.Status != domain.ServiceInProgress {
		err := domain.NewConflictError("service cannot be completed from status " + string(svc.Status))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if rating != 0 && (rating < 1 || rating > 5) {
		return nil, domain.NewValidationError("rating", "rating must be between 1 and 5")
	}
	if finalCost == "" {
		finalCost = svc.EstimatedCost
	} else if _, err := domain.ParseMoney(finalCost); err != nil {
		return nil, domain.NewValidationError("finalCost", "not a valid decimal amount")
	}

	now := time.Now().UTC()
	svc, err = d.store.UpdateService(ctx, serviceID, func(s *domain.Service) {
		s.Status = domain.ServiceCompleted
		s.CompletedDate = &now
		s.FinalCost = finalCost
		if rating != 0 {
			s.Rating = rating
		}
		if feedback != "" {
			s.Feedback = feedback
		}
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to complete service")
		return nil, err
	}

	if _, err := d.store.UpdateServiceTracking(ctx, serviceID, func(t *domain.ServiceTracking) error {
		t.Status = domain.TrackingCompleted
		return nil
	}); err != nil && !domain.IsNotFound(err) {
		d.logger.Error("Failed to close tracking record", "serviceID", serviceID, "error", err)
	}

	if _, err := d.store.UpdateVehicle(ctx, svc.VehicleID, func(v *domain.Vehicle) {
		v.LastServiceDate = &now
	}); err != nil {
		d.logger.Error("Failed to stamp vehicle service date", "vehicleID", svc.VehicleID, "error", err)
	}

	d.logger.Info("Service completed", "serviceID", serviceID, "finalCost", svc.FinalCost)
	d.notify(ctx, svc.CustomerID, "Service Completed",
		"Your service has been completed. Total cost: "+svc.FinalCost,
		domain.NotificationPayment, map[string]string{"serviceId": svc.ID})
	d.appendEvent(ctx, domain.EventServiceCompleted, svc)
	return svc, nil
}

// CancelService cancels a booking. Cancellation is reachable from pending
// only.
func (d *Dispatcher) CancelService(ctx context.Context, serviceID string) (*domain.Service, error) {
	ctx, span := d.tracer.Start(ctx, "CancelService")
	defer span.End()
	span.SetAttributes(attribute.String("serviceID", serviceID))

	svc, err := d.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if svc.Status != domain.ServicePending {
		return nil, domain.NewConflictError("only pending services can be cancelled")
	}
	svc, err = d.store.UpdateService(ctx, serviceID, func(s *domain.Service) {
		s.Status = domain.ServiceCancelled
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to cancel service")
		return nil, err
	}
	d.logger.Info("Service cancelled", "serviceID", serviceID)
	d.notify(ctx, svc.CustomerID, "Service Cancelled",
		"Your service request has been cancelled.",
		domain.NotificationServiceUpdate, map[string]string{"serviceId": svc.ID})
	d.appendEvent(ctx, domain.EventServiceCancelled, svc)
	return svc, nil
}

// Service fetches a single service.
func (d *Dispatcher) Service(ctx context.Context, serviceID string) (*domain.Service, error) {
	return d.store.GetService(ctx, serviceID)
}

// ServicesByCustomer lists a customer's history, newest first.
func (d *Dispatcher) ServicesByCustomer(ctx context.Context, customerID string) ([]*domain.Service, error) {
	return d.store.GetServicesByCustomer(ctx, customerID)
}

// ActiveService returns the customer's single assigned or in-progress
// service, or nil when there is none.
func (d *Dispatcher) ActiveService(ctx context.Context, customerID string) (*domain.Service, error) {
	svc, err := d.store.GetActiveServiceByCustomer(ctx, customerID)
	if domain.IsNotFound(err) {
		return nil, nil
	}
	return svc, err
}

// PendingServices returns the pending pool, filtered so a partner never sees
// a request they already declined.
func (d *Dispatcher) PendingServices(ctx context.Context, partnerID string) ([]*domain.Service, error) {
	return d.store.GetPendingServices(ctx, partnerID)
}

// CustomerStats summarizes a customer's completed services.
type CustomerStats struct {
	TotalServices     int    `json:"totalServices"`
	Savings           string `json:"savings"`
	CompletedServices int    `json:"completedServices"`
}

// Stats aggregates completed-service counts and the 10% savings figure shown
// on the customer home screen.
func (d *Dispatcher) Stats(ctx context.Context, customerID string) (*CustomerStats, error) {
	services, err := d.store.GetServicesByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	savings := decimal.Zero
	completed := 0
	for _, svc := range services {
		if svc.Status != domain.ServiceCompleted {
			continue
		}
		completed++
		cost := svc.FinalCost
		if cost == "" {
			cost = svc.EstimatedCost
		}
		c, err := domain.ParseMoney(cost)
		if err != nil {
			continue
		}
		savings = savings.Add(c.Mul(decimal.NewFromFloat(0.1)))
	}
	return &CustomerStats{
		TotalServices:     completed,
		Savings:           domain.FormatMoney(savings),
		CompletedServices: completed,
	}, nil
}

// PartnerStats summarizes a partner's completed work for the current day.
type PartnerStats struct {
	TodayEarnings     string `json:"todayEarnings"`
	CompletedServices int    `json:"completedServices"`
}

// StatsForPartner aggregates today's earnings for a partner.
func (d *Dispatcher) StatsForPartner(ctx context.Context, partnerID string) (*PartnerStats, error) {
	services, err := d.store.GetServicesByPartner(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	earnings := decimal.Zero
	completed := 0
	for _, svc := range services {
		if svc.Status != domain.ServiceCompleted {
			continue
		}
		if svc.CompletedDate == nil || svc.CompletedDate.Before(dayStart) {
			continue
		}
		completed++
		cost := svc.FinalCost
		if cost == "" {
			cost = svc.EstimatedCost
		}
		c, err := domain.ParseMoney(cost)
		if err != nil {
			continue
		}
		earnings = earnings.Add(c)
	}
	return &PartnerStats{
		TodayEarnings:     domain.FormatMoney(earnings),
		CompletedServices: completed,
	}, nil
}

func declinedBy(s *domain.Service, partnerID string) bool {
	for _, id := range s.DeclinedPartnerIDs {
		if id == partnerID {
			return true
		}
	}
	return false
}

func (d *Dispatcher) notify(ctx context.Context, userID, title, message string, typ domain.NotificationType, data map[string]string) {
	if err := d.notifier.Notify(ctx, userID, title, message, typ, data); err != nil {
		d.logger.Error("Notification failed", "userID", userID, "title", title, "error", err)
	}
}

func (d *Dispatcher) appendEvent(ctx context.Context, eventType string, svc *domain.Service) {
	payload, err := json.Marshal(domain.ServiceEvent{
		ServiceID:  svc.ID,
		CustomerID: svc.CustomerID,
		PartnerID:  svc.PartnerID,
		Status:     string(svc.Status),
		Priority:   string(svc.Priority),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		d.logger.Error("Failed to encode service event", "serviceID", svc.ID, "error", err)
		return
	}
	if err := d.store.AppendOutboxEvent(ctx, &domain.OutboxEvent{
		EventType:   eventType,
		AggregateID: svc.ID,
		Payload:     payload,
	}); err != nil {
		d.logger.Error("Failed to append outbox event", "serviceID", svc.ID, "error", err)
	}
}
