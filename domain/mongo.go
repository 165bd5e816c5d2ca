package domain

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "voltcare"

// MongoStore implements Store on MongoDB. The claim primitive relies on a
// conditional FindOneAndUpdate so the assignment race is closed by the
// database, not by application locks.
type MongoStore struct {
	Users         *mongo.Collection
	Vehicles      *mongo.Collection
	Services      *mongo.Collection
	Tracking      *mongo.Collection
	Transactions  *mongo.Collection
	Notifications *mongo.Collection
	Outbox        *mongo.Collection
}

// NewMongoStore creates a MongoStore over the voltcare database.
func NewMongoStore(client *mongo.Client) *MongoStore {
	db := client.Database("voltcare")
	return &MongoStore{
		Users:         db.Collection("users"),
		Vehicles:      db.Collection("vehicles"),
		Services:      db.Collection("services"),
		Tracking:      db.Collection("service_tracking"),
		Transactions:  db.Collection("wallet_transactions"),
		Notifications: db.Collection("notifications"),
		Outbox:        db.Collection("outbox"),
	}
}

func (s *MongoStore) GetUser(ctx context.Context, id string) (*User, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoGetUser")
	defer span.End()

	var u User
	err := s.Users.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, NewNotFoundError("user", id)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find user")
		return nil, err
	}
	span.SetAttributes(attribute.String("userID", id))
	return &u, nil
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoGetUserByEmail")
	defer span.End()

	var u User
	err := s.Users.FindOne(ctx, bson.M{"email": email}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, NewNotFoundError("user", email)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find user by email")
		return nil, err
	}
	return &u, nil
}

func (s *MongoStore) CreateUser(ctx context.Context, user *User) (*User, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoCreateUser")
	defer span.End()

	count, err := s.Users.CountDocuments(ctx, bson.M{"email": user.Email})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to check email uniqueness")
		return nil, err
	}
	if count > 0 {
		return nil, NewConflictError("user with this email already exists")
	}

	now := time.Now().UTC()
	u := *user
	u.ID = newID()
	if u.Role == "" {
		u.Role = RoleCustomer
	}
	if u.WalletBalance == "" {
		u.WalletBalance = "0.00"
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	if _, err := s.Users.InsertOne(ctx, &u); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to insert user")
		return nil, err
	}
	span.SetAttributes(attribute.String("userID", u.ID))
	return &u, nil
}

func (s *MongoStore) UpdateUser(ctx context.Context, id string, update func(*User)) (*User, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoUpdateUser")
	defer span.End()

	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	update(u)
	u.ID = id
	u.UpdatedAt = time.Now().UTC()
	if _, err := s.Users.ReplaceOne(ctx, bson.M{"_id": id}, u); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update user")
		return nil, err
	}
	return u, nil
}

func (s *MongoStore) GetVehicle(ctx context.Context, id string) (*Vehicle, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoGetVehicle")
	defer span.End()

	var v Vehicle
	err := s.Vehicles.FindOne(ctx, bson.M{"_id": id}).Decode(&v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, NewNotFoundError("vehicle", id)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find vehicle")
		return nil, err
	}
	return &v, nil
}

func (s *MongoStore) GetVehiclesByUser(ctx context.Context, userID string) ([]*Vehicle, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoGetVehiclesByUser")
	defer span.End()

	cursor, err := s.Vehicles.Find(ctx, bson.M{"userID": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find vehicles")
		return nil, err
	}
	var out []*Vehicle
	if err := cursor.All(ctx, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode vehicles")
		return nil, err
	}
	span.SetAttributes(attribute.Int("vehicleCount", len(out)))
	return out, nil
}

func (s *MongoStore) CreateVehicle(ctx context.Context, vehicle *Vehicle) (*Vehicle, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoCreateVehicle")
	defer span.End()

	count, err := s.Vehicles.CountDocuments(ctx, bson.M{"registrationNumber": vehicle.RegistrationNumber})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to check registration uniqueness")
		return nil, err
	}
	if count > 0 {
		return nil, NewConflictError("registration number already in use")
	}

	v := *vehicle
	v.ID = newID()
	if v.CurrentBattery == 0 {
		v.CurrentBattery = 100
	}
	v.CreatedAt = time.Now().UTC()
	if _, err := s.Vehicles.InsertOne(ctx, &v); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to insert vehicle")
		return nil, err
	}
	span.SetAttributes(attribute.String("vehicleID", v.ID))
	return &v, nil
}

func (s *MongoStore) UpdateVehicle(ctx context.Context, id string, update func(*Vehicle)) (*Vehicle, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoUpdateVehicle")
	defer span.End()

	v, err := s.GetVehicle(ctx, id)
	if err != nil {
		return nil, err
	}
	update(v)
	v.ID = id
	if _, err := s.Vehicles.ReplaceOne(ctx, bson.M{"_id": id}, v); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update vehicle")
		return nil, err
	}
	return v, nil
}

func (s *MongoStore) DeleteVehicle(ctx context.Context, id string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoDeleteVehicle")
	defer span.End()

	res, err := s.Vehicles.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to delete vehicle")
		return err
	}
	if res.DeletedCount == 0 {
		return NewNotFoundError("vehicle", id)
	}
	return nil
}

func (s *MongoStore) GetService(ctx context.Context, id string) (*Service, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoGetService")
	defer span.End()

	var svc Service
	err := s.Services.FindOne(ctx, bson.M{"_id": id}).Decode(&svc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, NewNotFoundError("service", id)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find service")
		return nil, err
	}
	return &svc, nil
}

func (s *MongoStore) GetServicesByCustomer(ctx context.Context, customerID string) ([]*Service, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoGetServicesByCustomer")
	defer span.End()

	cursor, err := s.Services.Find(ctx, bson.M{"customerID": customerID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find services")
		return nil, err
	}
	var out []*Service
	if err := cursor.All(ctx, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode services")
		return nil, err
	}
	span.SetAttributes(attribute.Int("serviceCount", len(out)))
	return out, nil
}

func (s *MongoStore) GetServicesByPartner(ctx context.Context, partnerID string) ([]*Service, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoGetServicesByPartner")
	defer span.End()

	cursor, err := s.Services.Find(ctx, bson.M{"partnerID": partnerID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find services by partner")
		return nil, err
	}
	var out []*Service
	if err := cursor.All(ctx, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode services")
		return nil, err
	}
	span.SetAttributes(attribute.Int("serviceCount", len(out)))
	return out, nil
}

func (s *MongoStore) GetActiveServiceByCustomer(ctx context.Context, customerID string) (*Service, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoGetActiveServiceByCustomer")
	defer span.End()

	var svc Service
	err := s.Services.FindOne(ctx, bson.M{
		"customerID": customerID,
		"status":     bson.M{"$in": []ServiceStatus{ServiceAssigned, ServiceInProgress}},
	}).Decode(&svc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, NewNotFoundError("active service", customerID)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find active service")
		return nil, err
	}
	return &svc, nil
}

func (s *MongoStore) GetPendingServices(ctx context.Context, excludeDeclinedBy string) ([]*Service, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoGetPendingServices")
	defer span.End()

	filter := bson.M{"status": ServicePending}
	if excludeDeclinedBy != "" {
		filter["declinedPartnerIDs"] = bson.M{"$ne": excludeDeclinedBy}
	}
	cursor, err := s.Services.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find pending services")
		return nil, err
	}
	var out []*Service
	if err := cursor.All(ctx, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode pending services")
		return nil, err
	}
	span.SetAttributes(attribute.Int("pendingCount", len(out)))
	return out, nil
}

func (s *MongoStore) CreateService(ctx context.Context, service *Service) (*Service, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoCreateService")
	defer span.End()

	now := time.Now().UTC()
	svc := *service
	svc.ID = newID()
	if svc.Status == "" {
		svc.Status = ServicePending
	}
	if svc.Priority == "" {
		svc.Priority = PriorityNormal
	}
	svc.CreatedAt = now
	svc.UpdatedAt = now
	if _, err := s.Services.InsertOne(ctx, &svc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to insert service")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("serviceID", svc.ID),
		attribute.String("status", string(svc.Status)),
	)
	return &svc, nil
}

func (s *MongoStore) UpdateService(ctx context.Context, id string, update func(*Service)) (*Service, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoUpdateService")
	defer span.End()

	svc, err := s.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	update(svc)
	svc.ID = id
	svc.UpdatedAt = time.Now().UTC()
	if _, err := s.Services.ReplaceOne(ctx, bson.M{"_id": id}, svc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update service")
		return nil, err
	}
	return svc, nil
}

func (s *MongoStore) ClaimService(ctx context.Context, id, partnerID string) (*Service, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoClaimService")
	defer span.End()

	var svc Service
	err := s.Services.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": ServicePending},
		bson.M{"$set": bson.M{
			"partnerID": partnerID,
			"status":    ServiceAssigned,
			"updatedAt": time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&svc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Either the service does not exist or someone else won the claim.
		if _, getErr := s.GetService(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, NewConflictError("service is no longer pending")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to claim service")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("serviceID", id),
		attribute.String("partnerID", partnerID),
	)
	return &svc, nil
}

func (s *MongoStore) GetServiceTracking(ctx context.Context, serviceID string) (*ServiceTracking, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoGetServiceTracking")
	defer span.End()

	var t ServiceTracking
	err := s.Tracking.FindOne(ctx,
		bson.M{"serviceID": serviceID, "status": bson.M{"$ne": TrackingCompleted}},
	).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		err = s.Tracking.FindOne(ctx, bson.M{"serviceID": serviceID},
			options.FindOne().SetSort(bson.D{{Key: "lastUpdated", Value: -1}})).Decode(&t)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, NewNotFoundError("tracking", serviceID)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find tracking")
		return nil, err
	}
	return &t, nil
}

func (s *MongoStore) CreateServiceTracking(ctx context.Context, tracking *ServiceTracking) (*ServiceTracking, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoCreateServiceTracking")
	defer span.End()

	count, err := s.Tracking.CountDocuments(ctx,
		bson.M{"serviceID": tracking.ServiceID, "status": bson.M{"$ne": TrackingCompleted}})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to check active tracking")
		return nil, err
	}
	if count > 0 {
		return nil, NewConflictError("service already has an active tracking record")
	}

	t := *tracking
	t.ID = newID()
	if t.Status == "" {
		t.Status = TrackingOnWay
	}
	t.LastUpdated = time.Now().UTC()
	if _, err := s.Tracking.InsertOne(ctx, &t); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to insert tracking")
		return nil, err
	}
	span.SetAttributes(attribute.String("trackingID", t.ID))
	return &t, nil
}

func (s *MongoStore) UpdateServiceTracking(ctx context.Context, serviceID string, update func(*ServiceTracking) error) (*ServiceTracking, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoUpdateServiceTracking")
	defer span.End()

	var t ServiceTracking
	err := s.Tracking.FindOne(ctx,
		bson.M{"serviceID": serviceID, "status": bson.M{"$ne": TrackingCompleted}},
	).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, NewNotFoundError("tracking", serviceID)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find tracking")
		return nil, err
	}

	id := t.ID
	if err := update(&t); err != nil {
		return nil, err
	}
	t.ID = id
	t.ServiceID = serviceID
	if now := time.Now().UTC(); now.After(t.LastUpdated) {
		t.LastUpdated = now
	}
	if _, err := s.Tracking.ReplaceOne(ctx, bson.M{"_id": id}, &t); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update tracking")
		return nil, err
	}
	return &t, nil
}

func (s *MongoStore) GetWalletTransactionsByUser(ctx context.Context, userID string) ([]*WalletTransaction, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoGetWalletTransactionsByUser")
	defer span.End()

	cursor, err := s.Transactions.Find(ctx, bson.M{"userID": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find transactions")
		return nil, err
	}
	var out []*WalletTransaction
	if err := cursor.All(ctx, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode transactions")
		return nil, err
	}
	span.SetAttributes(attribute.Int("transactionCount", len(out)))
	return out, nil
}

func (s *MongoStore) CreateWalletTransaction(ctx context.Context, tx *WalletTransaction) (*WalletTransaction, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoCreateWalletTransaction")
	defer span.End()

	t := *tx
	t.ID = newID()
	t.CreatedAt = time.Now().UTC()
	if _, err := s.Transactions.InsertOne(ctx, &t); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to insert transaction")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("transactionID", t.ID),
		attribute.String("type", string(t.Type)),
	)
	return &t, nil
}

func (s *MongoStore) GetNotificationsByUser(ctx context.Context, userID string) ([]*Notification, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoGetNotificationsByUser")
	defer span.End()

	cursor, err := s.Notifications.Find(ctx, bson.M{"userID": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find notifications")
		return nil, err
	}
	var out []*Notification
	if err := cursor.All(ctx, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode notifications")
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) CreateNotification(ctx context.Context, n *Notification) (*Notification, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoCreateNotification")
	defer span.End()

	nc := *n
	nc.ID = newID()
	nc.IsRead = false
	nc.CreatedAt = time.Now().UTC()
	if _, err := s.Notifications.InsertOne(ctx, &nc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to insert notification")
		return nil, err
	}
	return &nc, nil
}

func (s *MongoStore) MarkNotificationRead(ctx context.Context, id string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoMarkNotificationRead")
	defer span.End()

	res, err := s.Notifications.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"isRead": true}})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to mark notification read")
		return err
	}
	if res.MatchedCount == 0 {
		return NewNotFoundError("notification", id)
	}
	return nil
}

func (s *MongoStore) AppendOutboxEvent(ctx context.Context, event *OutboxEvent) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoAppendOutboxEvent")
	defer span.End()

	e := *event
	if e.ID == "" {
		e.ID = newID()
	}
	e.CreatedAt = time.Now().UTC()
	if _, err := s.Outbox.InsertOne(ctx, &e); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to append outbox event")
		return err
	}
	span.SetAttributes(
		attribute.String("eventID", e.ID),
		attribute.String("eventType", e.EventType),
	)
	return nil
}

func (s *MongoStore) UnprocessedOutboxEvents(ctx context.Context) ([]*OutboxEvent, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoUnprocessedOutboxEvents")
	defer span.End()

	cursor, err := s.Outbox.Find(ctx, bson.M{"processed": false})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find unprocessed outbox events")
		return nil, err
	}
	var out []*OutboxEvent
	if err := cursor.All(ctx, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode outbox events")
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) MarkOutboxEventProcessed(ctx context.Context, id string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoMarkOutboxEventProcessed")
	defer span.End()

	now := time.Now().UTC()
	res, err := s.Outbox.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"processed": true, "processed_at": now},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to mark outbox event as processed")
		return err
	}
	if res.MatchedCount == 0 {
		return NewNotFoundError("outbox event", id)
	}
	return nil
}
