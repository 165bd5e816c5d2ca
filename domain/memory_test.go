package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreUserUniqueEmail(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	user, err := store.CreateUser(ctx, &User{Email: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, RoleCustomer, user.Role)
	assert.Equal(t, "0.00", user.WalletBalance)

	_, err = store.CreateUser(ctx, &User{Email: "A@Example.com"})
	assert.True(t, IsConflict(err), "email uniqueness is case-insensitive")

	got, err := store.GetUserByEmail(ctx, "A@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestMemoryStoreVehicleUniqueRegistration(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	v, err := store.CreateVehicle(ctx, &Vehicle{UserID: "u1", RegistrationNumber: "KA01X1"})
	require.NoError(t, err)
	assert.Equal(t, 100, v.CurrentBattery)

	_, err = store.CreateVehicle(ctx, &Vehicle{UserID: "u2", RegistrationNumber: "KA01X1"})
	assert.True(t, IsConflict(err))
}

func TestMemoryStoreClaimService(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	svc, err := store.CreateService(ctx, &Service{CustomerID: "c1", VehicleID: "v1"})
	require.NoError(t, err)
	assert.Equal(t, ServicePending, svc.Status)

	claimed, err := store.ClaimService(ctx, svc.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, ServiceAssigned, claimed.Status)
	assert.Equal(t, "p1", claimed.PartnerID)

	_, err = store.ClaimService(ctx, svc.ID, "p2")
	assert.True(t, IsConflict(err), "second claim loses")

	_, err = store.ClaimService(ctx, "missing", "p2")
	assert.True(t, IsNotFound(err))
}

func TestMemoryStorePendingPoolDeclineFilter(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	svc, err := store.CreateService(ctx, &Service{CustomerID: "c1", VehicleID: "v1"})
	require.NoError(t, err)
	_, err = store.UpdateService(ctx, svc.ID, func(s *Service) {
		s.DeclinedPartnerIDs = append(s.DeclinedPartnerIDs, "p1")
	})
	require.NoError(t, err)

	pool, err := store.GetPendingServices(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, pool)

	pool, err = store.GetPendingServices(ctx, "p2")
	require.NoError(t, err)
	assert.Len(t, pool, 1)
}

func TestMemoryStoreSingleActiveTracking(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.CreateServiceTracking(ctx, &ServiceTracking{ServiceID: "s1", PartnerID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, TrackingOnWay, first.Status)

	_, err = store.CreateServiceTracking(ctx, &ServiceTracking{ServiceID: "s1", PartnerID: "p2"})
	assert.True(t, IsConflict(err))

	// Closing the record frees the slot for a new one.
	_, err = store.UpdateServiceTracking(ctx, "s1", func(tr *ServiceTracking) error {
		tr.Status = TrackingCompleted
		return nil
	})
	require.NoError(t, err)

	second, err := store.CreateServiceTracking(ctx, &ServiceTracking{ServiceID: "s1", PartnerID: "p2"})
	require.NoError(t, err)

	current, err := store.GetServiceTracking(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID, "the active record wins over completed ones")
}

func TestMemoryStoreTrackingUpdateAbort(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, err := store.CreateServiceTracking(ctx, &ServiceTracking{ServiceID: "s1", PartnerID: "p1"})
	require.NoError(t, err)

	_, err = store.UpdateServiceTracking(ctx, "s1", func(tr *ServiceTracking) error {
		tr.Status = TrackingCompleted
		return NewConflictError("abort")
	})
	require.Error(t, err)

	got, err := store.GetServiceTracking(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, TrackingOnWay, got.Status)
	assert.Equal(t, created.LastUpdated, got.LastUpdated)
}

func TestMemoryStoreNotifications(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	n, err := store.CreateNotification(ctx, &Notification{UserID: "u1", Title: "Hi", Type: NotificationSystem})
	require.NoError(t, err)
	assert.False(t, n.IsRead)

	require.NoError(t, store.MarkNotificationRead(ctx, n.ID))

	list, err := store.GetNotificationsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsRead)

	assert.True(t, IsNotFound(store.MarkNotificationRead(ctx, "missing")))
}

func TestMemoryStoreOutbox(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.AppendOutboxEvent(ctx, &OutboxEvent{EventType: EventServiceRequested, AggregateID: "s1", Payload: []byte("{}")}))
	require.NoError(t, store.AppendOutboxEvent(ctx, &OutboxEvent{EventType: EventServiceAssigned, AggregateID: "s1", Payload: []byte("{}")}))

	events, err := store.UnprocessedOutboxEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.NoError(t, store.MarkOutboxEventProcessed(ctx, events[0].ID))

	events, err = store.UnprocessedOutboxEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventServiceAssigned, events[0].EventType)
}

func TestServiceStateMachine(t *testing.T) {
	cases := []struct {
		from, to ServiceStatus
		ok       bool
	}{
		{ServicePending, ServiceAssigned, true},
		{ServicePending, ServiceCancelled, true},
		{ServicePending, ServiceInProgress, false},
		{ServicePending, ServiceCompleted, false},
		{ServiceAssigned, ServicePending, true},
		{ServiceAssigned, ServiceInProgress, true},
		{ServiceAssigned, ServiceCompleted, true},
		{ServiceAssigned, ServiceCancelled, false},
		{ServiceInProgress, ServiceCompleted, true},
		{ServiceInProgress, ServicePending, false},
		{ServiceCompleted, ServicePending, false},
		{ServiceCancelled, ServiceAssigned, false},
		{ServiceCompleted, ServiceCompleted, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransitionService(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestTrackingStatusOrder(t *testing.T) {
	assert.True(t, TrackingStatusBefore(TrackingOnWay, TrackingArrived))
	assert.True(t, TrackingStatusBefore(TrackingArrived, TrackingWorking))
	assert.True(t, TrackingStatusBefore(TrackingWorking, TrackingCompleted))
	assert.False(t, TrackingStatusBefore(TrackingArrived, TrackingArrived))
	assert.False(t, TrackingStatusBefore(TrackingCompleted, TrackingOnWay))

	assert.True(t, ValidTrackingStatus(TrackingOnWay))
	assert.False(t, ValidTrackingStatus("paused"))
}

func TestParseMoney(t *testing.T) {
	zero, err := ParseMoney("")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	v, err := ParseMoney("850.00")
	require.NoError(t, err)
	assert.Equal(t, "850.00", FormatMoney(v))

	v, err = ParseMoney("850.5")
	require.NoError(t, err)
	assert.Equal(t, "850.50", FormatMoney(v))

	_, err = ParseMoney("abc")
	assert.True(t, IsValidation(err))
}
