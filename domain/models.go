package domain

import "time"

// Role classifies a user account.
type Role string

const (
	RoleCustomer Role = "customer"
	RolePartner  Role = "partner"
	RoleAdmin    Role = "admin"
)

// ServiceStatus is the lifecycle state of a service request.
type ServiceStatus string

const (
	ServicePending    ServiceStatus = "pending"
	ServiceAssigned   ServiceStatus = "assigned"
	ServiceInProgress ServiceStatus = "in_progress"
	ServiceCompleted  ServiceStatus = "completed"
	ServiceCancelled  ServiceStatus = "cancelled"
)

// Priority of a service request. Higher priorities carry a higher base rate.
type Priority string

const (
	PriorityNormal    Priority = "normal"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

// TrackingStatus is the partner-reported progress of an in-flight service.
// Statuses only ever move forward: on_way -> arrived -> working -> completed.
type TrackingStatus string

const (
	TrackingOnWay     TrackingStatus = "on_way"
	TrackingArrived   TrackingStatus = "arrived"
	TrackingWorking   TrackingStatus = "working"
	TrackingCompleted TrackingStatus = "completed"
)

// TransactionType distinguishes wallet credits from debits.
type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

// NotificationType categorizes notifications for the client inbox.
type NotificationType string

const (
	NotificationServiceUpdate NotificationType = "service_update"
	NotificationPayment       NotificationType = "payment"
	NotificationPromotion     NotificationType = "promotion"
	NotificationSystem        NotificationType = "system"
)

// Location is a geographic point with an optional address snapshot.
type Location struct {
	Address   string  `bson:"address,omitempty" json:"address,omitempty"`
	Latitude  float64 `bson:"lat" json:"lat"`
	Longitude float64 `bson:"lng" json:"lng"`
}

// User is a customer, field partner, or admin account. Users are never
// hard-deleted; deactivation flips IsActive.
type User struct {
	ID            string    `bson:"_id,omitempty" json:"id"`
	Email         string    `bson:"email" json:"email"`
	Name          string    `bson:"name" json:"name"`
	Phone         string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Role          Role      `bson:"role" json:"role"`
	WalletBalance string    `bson:"walletBalance" json:"walletBalance"`
	ProfileImage  string    `bson:"profileImage,omitempty" json:"profileImage,omitempty"`
	IsActive      bool      `bson:"isActive" json:"isActive"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Vehicle is owned by exactly one user. RegistrationNumber is unique across
// the fleet.
type Vehicle struct {
	ID                 string     `bson:"_id,omitempty" json:"id"`
	UserID             string     `bson:"userID" json:"userId"`
	Brand              string     `bson:"brand" json:"brand"`
	Model              string     `bson:"model" json:"model"`
	RegistrationNumber string     `bson:"registrationNumber" json:"registrationNumber"`
	Year               int        `bson:"year" json:"year"`
	Color              string     `bson:"color,omitempty" json:"color,omitempty"`
	BatteryCapacity    int        `bson:"batteryCapacity,omitempty" json:"batteryCapacity,omitempty"`
	CurrentBattery     int        `bson:"currentBattery" json:"currentBattery"`
	LastServiceDate    *time.Time `bson:"lastServiceDate,omitempty" json:"lastServiceDate,omitempty"`
	CreatedAt          time.Time  `bson:"createdAt" json:"createdAt"`
}

// Service is a single on-site service request. It is created by a customer,
// claimed by a partner, and never deleted (soft history). All monetary fields
// are decimal strings with two fraction digits.
type Service struct {
	ID                 string        `bson:"_id,omitempty" json:"id"`
	CustomerID         string        `bson:"customerID" json:"customerId"`
	PartnerID          string        `bson:"partnerID,omitempty" json:"partnerId,omitempty"`
	VehicleID          string        `bson:"vehicleID" json:"vehicleId"`
	ServiceType        string        `bson:"serviceType" json:"serviceType"`
	IssueDescription   string        `bson:"issueDescription,omitempty" json:"issueDescription,omitempty"`
	Status             ServiceStatus `bson:"status" json:"status"`
	Priority           Priority      `bson:"priority" json:"priority"`
	ServiceLocation    *Location     `bson:"serviceLocation,omitempty" json:"serviceLocation,omitempty"`
	ScheduledDate      *time.Time    `bson:"scheduledDate,omitempty" json:"scheduledDate,omitempty"`
	CompletedDate      *time.Time    `bson:"completedDate,omitempty" json:"completedDate,omitempty"`
	EstimatedCost      string        `bson:"estimatedCost,omitempty" json:"estimatedCost,omitempty"`
	FinalCost          string        `bson:"finalCost,omitempty" json:"finalCost,omitempty"`
	Rating             int           `bson:"rating,omitempty" json:"rating,omitempty"`
	Feedback           string        `bson:"feedback,omitempty" json:"feedback,omitempty"`
	DeclinedPartnerIDs []string      `bson:"declinedPartnerIDs,omitempty" json:"declinedPartnerIds,omitempty"`
	CreatedAt          time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// ServiceTracking is the live location/status snapshot for an in-flight
// service. At most one tracking record with a non-completed status exists per
// service, and LastUpdated never moves backward.
type ServiceTracking struct {
	ID               string         `bson:"_id,omitempty" json:"id"`
	ServiceID        string         `bson:"serviceID" json:"serviceId"`
	PartnerID        string         `bson:"partnerID" json:"partnerId"`
	CurrentLocation  *Location      `bson:"currentLocation,omitempty" json:"currentLocation,omitempty"`
	EstimatedArrival *time.Time     `bson:"estimatedArrival,omitempty" json:"estimatedArrival,omitempty"`
	Status           TrackingStatus `bson:"status" json:"status"`
	LastUpdated      time.Time      `bson:"lastUpdated" json:"lastUpdated"`
}

// WalletTransaction is one immutable entry in a user's wallet ledger.
// BalanceAfter is the running total immediately after this entry.
type WalletTransaction struct {
	ID           string          `bson:"_id,omitempty" json:"id"`
	UserID       string          `bson:"userID" json:"userId"`
	Type         TransactionType `bson:"type" json:"type"`
	Amount       string          `bson:"amount" json:"amount"`
	Description  string          `bson:"description" json:"description"`
	ServiceID    string          `bson:"serviceID,omitempty" json:"serviceId,omitempty"`
	BalanceAfter string          `bson:"balanceAfter" json:"balanceAfter"`
	CreatedAt    time.Time       `bson:"createdAt" json:"createdAt"`
}

// Notification is a fire-and-forget message to a user. IsRead flips exactly
// once from false to true.
type Notification struct {
	ID        string            `bson:"_id,omitempty" json:"id"`
	UserID    string            `bson:"userID" json:"userId"`
	Title     string            `bson:"title" json:"title"`
	Message   string            `bson:"message" json:"message"`
	Type      NotificationType  `bson:"type" json:"type"`
	IsRead    bool              `bson:"isRead" json:"isRead"`
	Data      map[string]string `bson:"data,omitempty" json:"data,omitempty"`
	CreatedAt time.Time         `bson:"createdAt" json:"createdAt"`
}

// OutboxEvent is a pending domain event awaiting publication to Kafka.
type OutboxEvent struct {
	ID          string     `bson:"_id,omitempty" json:"id"`
	EventType   string     `bson:"eventType" json:"eventType"`
	AggregateID string     `bson:"aggregateID" json:"aggregateId"`
	Payload     []byte     `bson:"payload" json:"payload"`
	Processed   bool       `bson:"processed" json:"processed"`
	ProcessedAt *time.Time `bson:"processed_at,omitempty" json:"processedAt,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
}

// trackingRank orders tracking statuses for the monotonicity guard.
var trackingRank = map[TrackingStatus]int{
	TrackingOnWay:     0,
	TrackingArrived:   1,
	TrackingWorking:   2,
	TrackingCompleted: 3,
}

// ValidTrackingStatus reports whether s is a known tracking status.
func ValidTrackingStatus(s TrackingStatus) bool {
	_, ok := trackingRank[s]
	return ok
}

// TrackingStatusBefore reports whether a precedes b in the tracking sequence.
func TrackingStatusBefore(a, b TrackingStatus) bool {
	return trackingRank[a] < trackingRank[b]
}

// serviceTransitions is the allowed flow of the service state machine.
// assigned -> pending covers a partner decline releasing the claim;
// completed and cancelled are terminal.
var serviceTransitions = map[ServiceStatus][]ServiceStatus{
	ServicePending:    {ServiceAssigned, ServiceCancelled},
	ServiceAssigned:   {ServicePending, ServiceInProgress, ServiceCompleted},
	ServiceInProgress: {ServiceCompleted},
	ServiceCompleted:  {},
	ServiceCancelled:  {},
}

// CanTransitionService reports whether from -> to is an allowed service
// status change. A no-op transition is always allowed.
func CanTransitionService(from, to ServiceStatus) bool {
	if from == to {
		return true
	}
	for _, s := range serviceTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ActiveServiceStatus reports whether s counts toward the one-active-service
// rule for a customer.
func ActiveServiceStatus(s ServiceStatus) bool {
	return s == ServiceAssigned || s == ServiceInProgress
}

// OpenServiceStatus reports whether s is non-terminal. A customer holds at
// most one open service at a time, so a pending booking blocks the next one.
func OpenServiceStatus(s ServiceStatus) bool {
	return s == ServicePending || ActiveServiceStatus(s)
}
