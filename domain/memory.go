package domain

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-process Store implementation. It backs all tests and
// is the default when no Mongo URI is configured. Entities are stored by
// value and copied on the way in and out, so a failed operation never leaves
// a caller holding a live reference into the store.
type MemoryStore struct {
	mu sync.RWMutex

	users         map[string]User
	vehicles      map[string]Vehicle
	services      map[string]Service
	tracking      map[string]ServiceTracking
	transactions  []WalletTransaction
	notifications map[string]Notification
	outbox        []OutboxEvent
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]User),
		vehicles:      make(map[string]Vehicle),
		services:      make(map[string]Service),
		tracking:      make(map[string]ServiceTracking),
		notifications: make(map[string]Notification),
	}
}

func newID() string {
	return uuid.NewString()
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, NewNotFoundError("user", id)
	}
	out := u
	return &out, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			out := u
			return &out, nil
		}
	}
	return nil, NewNotFoundError("user", email)
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return nil, NewConflictError("user with this email already exists")
		}
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
	s.users[u.ID] = u
	out := u
	return &out, nil
}

func (s *MemoryStore) UpdateUser(ctx context.Context, id string, update func(*User)) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, NewNotFoundError("user", id)
	}
	update(&u)
	u.ID = id
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	out := u
	return &out, nil
}

func (s *MemoryStore) GetVehicle(ctx context.Context, id string) (*Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[id]
	if !ok {
		return nil, NewNotFoundError("vehicle", id)
	}
	out := v
	return &out, nil
}

func (s *MemoryStore) GetVehiclesByUser(ctx context.Context, userID string) ([]*Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Vehicle
	for _, v := range s.vehicles {
		if v.UserID == userID {
			vc := v
			out = append(out, &vc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateVehicle(ctx context.Context, vehicle *Vehicle) (*Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.vehicles {
		if v.RegistrationNumber == vehicle.RegistrationNumber {
			return nil, NewConflictError("registration number already in use")
		}
	}
	v := *vehicle
	v.ID = newID()
	if v.CurrentBattery == 0 {
		v.CurrentBattery = 100
	}
	v.CreatedAt = time.Now().UTC()
	s.vehicles[v.ID] = v
	out := v
	return &out, nil
}

func (s *MemoryStore) UpdateVehicle(ctx context.Context, id string, update func(*Vehicle)) (*Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return nil, NewNotFoundError("vehicle", id)
	}
	update(&v)
	v.ID = id
	s.vehicles[id] = v
	out := v
	return &out, nil
}

func (s *MemoryStore) DeleteVehicle(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vehicles[id]; !ok {
		return NewNotFoundError("vehicle", id)
	}
	delete(s.vehicles, id)
	return nil
}

func (s *MemoryStore) GetService(ctx context.Context, id string) (*Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, NewNotFoundError("service", id)
	}
	out := svc
	return &out, nil
}

func (s *MemoryStore) GetServicesByCustomer(ctx context.Context, customerID string) ([]*Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Service
	for _, svc := range s.services {
		if svc.CustomerID == customerID {
			sc := svc
			out = append(out, &sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetServicesByPartner(ctx context.Context, partnerID string) ([]*Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Service
	for _, svc := range s.services {
		if svc.PartnerID == partnerID {
			sc := svc
			out = append(out, &sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetActiveServiceByCustomer(ctx context.Context, customerID string) (*Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, svc := range s.services {
		if svc.CustomerID == customerID && ActiveServiceStatus(svc.Status) {
			out := svc
			return &out, nil
		}
	}
	return nil, NewNotFoundError("active service", customerID)
}

func (s *MemoryStore) GetPendingServices(ctx context.Context, excludeDeclinedBy string) ([]*Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Service
	for _, svc := range s.services {
		if svc.Status != ServicePending {
			continue
		}
		if excludeDeclinedBy != "" && declined(&svc, excludeDeclinedBy) {
			continue
		}
		sc := svc
		out = append(out, &sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func declined(svc *Service, partnerID string) bool {
	for _, id := range svc.DeclinedPartnerIDs {
		if id == partnerID {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreateService(ctx context.Context, service *Service) (*Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
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
	s.services[svc.ID] = svc
	out := svc
	return &out, nil
}

func (s *MemoryStore) UpdateService(ctx context.Context, id string, update func(*Service)) (*Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, NewNotFoundError("service", id)
	}
	update(&svc)
	svc.ID = id
	svc.UpdatedAt = time.Now().UTC()
	s.services[id] = svc
	out := svc
	return &out, nil
}

// ClaimService is the compare-and-set closing the assignment race: the status
// check and the assignment happen under one critical section.
func (s *MemoryStore) ClaimService(ctx context.Context, id, partnerID string) (*Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, NewNotFoundError("service", id)
	}
	if svc.Status != ServicePending {
		return nil, NewConflictError("service is no longer pending")
	}
	svc.PartnerID = partnerID
	svc.Status = ServiceAssigned
	svc.UpdatedAt = time.Now().UTC()
	s.services[id] = svc
	out := svc
	return &out, nil
}

func (s *MemoryStore) GetServiceTracking(ctx context.Context, serviceID string) (*ServiceTracking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *ServiceTracking
	for _, t := range s.tracking {
		if t.ServiceID != serviceID {
			continue
		}
		tc := t
		if tc.Status != TrackingCompleted {
			return &tc, nil
		}
		if latest == nil || tc.LastUpdated.After(latest.LastUpdated) {
			latest = &tc
		}
	}
	if latest == nil {
		return nil, NewNotFoundError("tracking", serviceID)
	}
	return latest, nil
}

func (s *MemoryStore) CreateServiceTracking(ctx context.Context, tracking *ServiceTracking) (*ServiceTracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracking {
		if t.ServiceID == tracking.ServiceID && t.Status != TrackingCompleted {
			return nil, NewConflictError("service already has an active tracking record")
		}
	}
	t := *tracking
	t.ID = newID()
	if t.Status == "" {
		t.Status = TrackingOnWay
	}
	t.LastUpdated = time.Now().UTC()
	s.tracking[t.ID] = t
	out := t
	return &out, nil
}

func (s *MemoryStore) UpdateServiceTracking(ctx context.Context, serviceID string, update func(*ServiceTracking) error) (*ServiceTracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tracking {
		if t.ServiceID != serviceID || t.Status == TrackingCompleted {
			continue
		}
		if err := update(&t); err != nil {
			return nil, err
		}
		t.ID = id
		t.ServiceID = serviceID
		if now := time.Now().UTC(); now.After(t.LastUpdated) {
			t.LastUpdated = now
		}
		s.tracking[id] = t
		out := t
		return &out, nil
	}
	return nil, NewNotFoundError("tracking", serviceID)
}

func (s *MemoryStore) GetWalletTransactionsByUser(ctx context.Context, userID string) ([]*WalletTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*WalletTransaction
	// transactions is an append-only log; walk backwards for newest-first.
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].UserID == userID {
			tc := s.transactions[i]
			out = append(out, &tc)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateWalletTransaction(ctx context.Context, tx *WalletTransaction) (*WalletTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := *tx
	t.ID = newID()
	t.CreatedAt = time.Now().UTC()
	s.transactions = append(s.transactions, t)
	out := t
	return &out, nil
}

func (s *MemoryStore) GetNotificationsByUser(ctx context.Context, userID string) ([]*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			nc := n
			out = append(out, &nc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateNotification(ctx context.Context, n *Notification) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nc := *n
	nc.ID = newID()
	nc.IsRead = false
	nc.CreatedAt = time.Now().UTC()
	s.notifications[nc.ID] = nc
	out := nc
	return &out, nil
}

func (s *MemoryStore) MarkNotificationRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return NewNotFoundError("notification", id)
	}
	n.IsRead = true
	s.notifications[id] = n
	return nil
}

func (s *MemoryStore) AppendOutboxEvent(ctx context.Context, event *OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *event
	if e.ID == "" {
		e.ID = newID()
	}
	e.CreatedAt = time.Now().UTC()
	s.outbox = append(s.outbox, e)
	return nil
}

func (s *MemoryStore) UnprocessedOutboxEvents(ctx context.Context) ([]*OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*OutboxEvent
	for i := range s.outbox {
		if !s.outbox[i].Processed {
			ec := s.outbox[i]
			out = append(out, &ec)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkOutboxEventProcessed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			now := time.Now().UTC()
			s.outbox[i].Processed = true
			s.outbox[i].ProcessedAt = &now
			return nil
		}
	}
	return NewNotFoundError("outbox event", id)
}
