package service

import (
	"context"
	"testing"

	"voltcare/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) assignedService(t *testing.T) *domain.Service {
	t.Helper()
	svc := e.book(t, "")
	svc, err := e.dispatcher.AcceptService(context.Background(), svc.ID, e.partner.ID, nil)
	require.NoError(t, err)
	return svc
}

func TestTrackingRegressionRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.assignedService(t)

	_, err := env.tracking.PushUpdate(ctx, svc.ID, nil, domain.TrackingArrived)
	require.NoError(t, err)

	before, err := env.tracking.Current(ctx, svc.ID)
	require.NoError(t, err)

	_, err = env.tracking.PushUpdate(ctx, svc.ID, &domain.Location{Latitude: 1, Longitude: 1}, domain.TrackingOnWay)
	require.True(t, domain.IsInvalidTransition(err))

	after, err := env.tracking.Current(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TrackingArrived, after.Status, "stored status must not move backward")
	assert.Equal(t, before.CurrentLocation, after.CurrentLocation)
	assert.Equal(t, before.LastUpdated, after.LastUpdated, "rejected push must not touch the record")
}

func TestTrackingLocationRefresh(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.assignedService(t)

	_, err := env.tracking.PushUpdate(ctx, svc.ID, nil, domain.TrackingArrived)
	require.NoError(t, err)

	loc := &domain.Location{Latitude: 12.98, Longitude: 77.60}
	updated, err := env.tracking.PushUpdate(ctx, svc.ID, loc, "")
	require.NoError(t, err)
	assert.Equal(t, domain.TrackingArrived, updated.Status, "location refresh leaves the status alone")
	assert.Equal(t, loc, updated.CurrentLocation)
}

func TestTrackingMonotonicSequence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.assignedService(t)

	for _, status := range []domain.TrackingStatus{
		domain.TrackingArrived,
		domain.TrackingWorking,
		domain.TrackingCompleted,
	} {
		updated, err := env.tracking.PushUpdate(ctx, svc.ID, nil, status)
		require.NoError(t, err)
		assert.Equal(t, status, updated.Status)
	}
}

func TestTrackingWorkingMovesServiceInProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.assignedService(t)

	_, err := env.tracking.PushUpdate(ctx, svc.ID, nil, domain.TrackingWorking)
	require.NoError(t, err)

	got, err := env.store.GetService(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ServiceInProgress, got.Status)
}

func TestPushUpdateWithoutTrackingRecord(t *testing.T) {
	env := newTestEnv(t)
	svc := env.book(t, "")

	// A pending service has no tracking record yet; a push does not create
	// one.
	_, err := env.tracking.PushUpdate(context.Background(), svc.ID, nil, domain.TrackingArrived)
	assert.True(t, domain.IsNotFound(err))
}

func TestTrackingUnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	svc := env.assignedService(t)

	_, err := env.tracking.PushUpdate(context.Background(), svc.ID, nil, "teleporting")
	assert.True(t, domain.IsValidation(err))
}

func TestTrackingSameStatusIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.assignedService(t)

	_, err := env.tracking.PushUpdate(ctx, svc.ID, nil, domain.TrackingArrived)
	require.NoError(t, err)
	updated, err := env.tracking.PushUpdate(ctx, svc.ID, nil, domain.TrackingArrived)
	require.NoError(t, err)
	assert.Equal(t, domain.TrackingArrived, updated.Status)
}
