package domain

import "context"

// Store is the key-addressable persistence contract the dispatch engine,
// wallet ledger, and tracking feed run against. Every operation is atomic
// per entity; composite invariants (wallet balances, single-winner claims)
// are enforced by the callers or by the claim primitives below.
type Store interface {
	// User operations.
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, user *User) (*User, error)
	UpdateUser(ctx context.Context, id string, update func(*User)) (*User, error)

	// Vehicle operations.
	GetVehicle(ctx context.Context, id string) (*Vehicle, error)
	GetVehiclesByUser(ctx context.Context, userID string) ([]*Vehicle, error)
	CreateVehicle(ctx context.Context, vehicle *Vehicle) (*Vehicle, error)
	UpdateVehicle(ctx context.Context, id string, update func(*Vehicle)) (*Vehicle, error)
	DeleteVehicle(ctx context.Context, id string) error

	// Service operations.
	GetService(ctx context.Context, id string) (*Service, error)
	GetServicesByCustomer(ctx context.Context, customerID string) ([]*Service, error)
	GetServicesByPartner(ctx context.Context, partnerID string) ([]*Service, error)
	GetActiveServiceByCustomer(ctx context.Context, customerID string) (*Service, error)
	GetPendingServices(ctx context.Context, excludeDeclinedBy string) ([]*Service, error)
	CreateService(ctx context.Context, service *Service) (*Service, error)
	UpdateService(ctx context.Context, id string, update func(*Service)) (*Service, error)

	// ClaimService atomically moves a pending service to assigned with the
	// given partner. Exactly one concurrent claim succeeds; the rest observe
	// a ConflictError.
	ClaimService(ctx context.Context, id, partnerID string) (*Service, error)

	// Tracking operations. GetServiceTracking returns the current record for
	// the service, newest first if several completed records exist. The
	// update closure may return an error to abort the write, in which case
	// the stored record is left untouched (lastUpdated included).
	GetServiceTracking(ctx context.Context, serviceID string) (*ServiceTracking, error)
	CreateServiceTracking(ctx context.Context, tracking *ServiceTracking) (*ServiceTracking, error)
	UpdateServiceTracking(ctx context.Context, serviceID string, update func(*ServiceTracking) error) (*ServiceTracking, error)

	// Wallet operations. Transactions are append-only.
	GetWalletTransactionsByUser(ctx context.Context, userID string) ([]*WalletTransaction, error)
	CreateWalletTransaction(ctx context.Context, tx *WalletTransaction) (*WalletTransaction, error)

	// Notification operations.
	GetNotificationsByUser(ctx context.Context, userID string) ([]*Notification, error)
	CreateNotification(ctx context.Context, n *Notification) (*Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error

	// Outbox operations, used by the Kafka event pipeline.
	AppendOutboxEvent(ctx context.Context, event *OutboxEvent) error
	UnprocessedOutboxEvents(ctx context.Context) ([]*OutboxEvent, error)
	MarkOutboxEventProcessed(ctx context.Context, id string) error
}
