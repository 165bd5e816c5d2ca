package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"log/slog"

	"voltcare/domain"
	"voltcare/service"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	store    *domain.MemoryStore
	router   *mux.Router
	customer *domain.User
	partner  *domain.User
	vehicle  *domain.Vehicle
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := domain.NewMemoryStore()
	notifier := service.NewStoreNotifier(store, logger)
	dispatcher := service.NewDispatcher(store, notifier, logger)
	wallet := service.NewWalletLedger(store, logger)
	tracking := service.NewTrackingFeed(store, logger)

	router := mux.NewRouter()
	NewHandler(store, dispatcher, wallet, tracking, notifier, logger).Register(router)

	ctx := context.Background()
	customer, err := store.CreateUser(ctx, &domain.User{Email: "rita@example.com", Name: "Rita"})
	require.NoError(t, err)
	partner, err := store.CreateUser(ctx, &domain.User{Email: "tech@example.com", Name: "Theo", Role: domain.RolePartner})
	require.NoError(t, err)
	vehicle, err := store.CreateVehicle(ctx, &domain.Vehicle{
		UserID:             customer.ID,
		Brand:              "Tata",
		Model:              "Nexon EV",
		RegistrationNumber: "KA01AB1234",
	})
	require.NoError(t, err)

	return &testServer{store: store, router: router, customer: customer, partner: partner, vehicle: vehicle}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (s *testServer) bookService(t *testing.T) string {
	t.Helper()
	rec := s.do(t, "POST", "/api/services", s.customer.ID, map[string]any{
		"vehicleId":       s.vehicle.ID,
		"serviceType":     "battery_swap",
		"serviceLocation": map[string]float64{"lat": 12.97, "lng": 77.59},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode[map[string]any](t, rec)
	return body["id"].(string)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingIdentityHeader(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "GET", "/api/services", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateUserIdempotentByEmail(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "POST", "/api/users", "", map[string]string{"email": "new@example.com", "name": "Nia"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[domain.User](t, rec)

	rec = s.do(t, "POST", "/api/users", "", map[string]string{"email": "new@example.com", "name": "Someone Else"})
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[domain.User](t, rec)
	assert.Equal(t, created.ID, again.ID)
	assert.Equal(t, "Nia", again.Name)
}

func TestGetUserNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "GET", "/api/users/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateServiceDefaults(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "POST", "/api/services", s.customer.ID, map[string]any{
		"vehicleId":       s.vehicle.ID,
		"serviceType":     "battery_swap",
		"serviceLocation": map[string]float64{"lat": 12.97, "lng": 77.59},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "850.00", body["estimatedCost"])
	vehicle, ok := body["vehicle"].(map[string]any)
	require.True(t, ok, "service responses carry the vehicle")
	assert.Equal(t, "Nexon EV", vehicle["model"])
}

func TestEmergencyForcesPriority(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "POST", "/api/emergency", s.customer.ID, map[string]any{
		"vehicleId":       s.vehicle.ID,
		"serviceLocation": map[string]float64{"lat": 12.97, "lng": 77.59},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "emergency", body["priority"])
	assert.Equal(t, "1500.00", body["estimatedCost"])
}

func TestAcceptRace(t *testing.T) {
	s := newTestServer(t)
	id := s.bookService(t)

	rec := s.do(t, "POST", "/api/services/"+id+"/accept", s.partner.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "POST", "/api/services/"+id+"/accept", "other-partner", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAcceptUnknownService(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "POST", "/api/services/missing/accept", s.partner.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrackingLifecycle(t *testing.T) {
	s := newTestServer(t)
	id := s.bookService(t)

	rec := s.do(t, "GET", "/api/services/"+id+"/tracking", s.customer.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no tracking before assignment")

	rec = s.do(t, "POST", "/api/services/"+id+"/accept", s.partner.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "GET", "/api/services/"+id+"/tracking", s.customer.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tracking := decode[domain.ServiceTracking](t, rec)
	assert.Equal(t, domain.TrackingOnWay, tracking.Status)

	rec = s.do(t, "PATCH", "/api/services/"+id+"/tracking", s.partner.ID, map[string]string{"status": "arrived"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "PATCH", "/api/services/"+id+"/tracking", s.partner.ID, map[string]string{"status": "on_way"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "status regression is rejected")
}

func TestWalletEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "POST", "/api/wallet/transactions", s.customer.ID, map[string]string{
		"type": "credit", "amount": "50.00", "description": "top up",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, "POST", "/api/wallet/transactions", s.customer.ID, map[string]string{
		"type": "debit", "amount": "100.00", "description": "payment",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "overdraft yields 400")

	rec = s.do(t, "GET", "/api/wallet/transactions", s.customer.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	txs := decode[[]domain.WalletTransaction](t, rec)
	assert.Len(t, txs, 1)
}

func TestNotificationEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "POST", "/api/notifications", s.customer.ID, map[string]string{
		"title": "Welcome", "message": "hello",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, "GET", "/api/notifications", s.customer.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]domain.Notification](t, rec)
	require.Len(t, list, 1)

	rec = s.do(t, "PATCH", "/api/notifications/"+list[0].ID+"/read", s.customer.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestVehicleCRUD(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "POST", "/api/vehicles", s.customer.ID, map[string]any{
		"brand": "Ola", "model": "S1 Pro", "registrationNumber": "KA02ZZ9999",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[domain.Vehicle](t, rec)

	rec = s.do(t, "PATCH", "/api/vehicles/"+created.ID, s.customer.ID, map[string]int{"currentBattery": 40})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[domain.Vehicle](t, rec)
	assert.Equal(t, 40, updated.CurrentBattery)

	rec = s.do(t, "DELETE", "/api/vehicles/"+created.ID, s.customer.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, "GET", "/api/vehicles/"+created.ID, s.customer.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActiveServiceNull(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "GET", "/api/services/active", s.customer.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())
}

func TestPendingPoolForPartner(t *testing.T) {
	s := newTestServer(t)
	id := s.bookService(t)

	rec := s.do(t, "POST", "/api/services/"+id+"/decline", s.partner.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "GET", "/api/services/pending", s.partner.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pool := decode[[]map[string]any](t, rec)
	assert.Empty(t, pool)

	rec = s.do(t, "GET", "/api/services/pending", "other-partner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pool = decode[[]map[string]any](t, rec)
	assert.Len(t, pool, 1)
}

func TestCancelViaPatch(t *testing.T) {
	s := newTestServer(t)
	id := s.bookService(t)

	rec := s.do(t, "PATCH", "/api/services/"+id, s.customer.ID, map[string]string{"status": "cancelled"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "cancelled", body["status"])
}
