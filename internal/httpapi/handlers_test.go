package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Leganyst/dispatch-core/internal/auth"
	"github.com/Leganyst/dispatch-core/internal/cache"
	"github.com/Leganyst/dispatch-core/internal/db/dbtest"
	"github.com/Leganyst/dispatch-core/internal/httpapi"
	"github.com/Leganyst/dispatch-core/internal/logger"
	"github.com/Leganyst/dispatch-core/internal/model"
	"github.com/Leganyst/dispatch-core/internal/repository"
	"github.com/Leganyst/dispatch-core/internal/service"
)

type pingerMock struct {
	mock.Mock
}

func (m *pingerMock) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type apiClient struct {
	t      *testing.T
	router *gin.Engine
}

func newAPI(t *testing.T, checks map[string]httpapi.Pinger) *apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repos := repository.New(dbtest.Open(t))
	log := logger.Discard()
	var c cache.Cache = cache.Nop{}

	h := httpapi.New(httpapi.Deps{
		Auth: service.NewAuthService(repos, auth.NewJWTService([]byte("http-test"), time.Minute), service.AuthOptions{
			SessionTTL:      time.Hour,
			VerificationTTL: time.Hour,
			BcryptCost:      bcrypt.MinCost,
		}, log),
		Cities:  service.NewCityService(repos, log),
		Drivers: service.NewDriverService(repos, log),
		Orders:  service.NewOrderService(repos, c, log),
		Sheets:  service.NewDelegateSheetService(repos, c, time.Minute, log),
		Reports: service.NewReportService(repos, c, time.Minute, log),
		Checks:  checks,
		Log:     log,
	})
	return &apiClient{t: t, router: h.Router()}
}

func (a *apiClient) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Error string `json:"error"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *apiClient) login(email, password string) string {
	a.t.Helper()
	w := a.do(http.MethodPost, "/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	return decode[service.LoginResult](a.t, w).AccessToken
}

// bootstrap registers the first admin and a dispatcher, returning their tokens.
func (a *apiClient) bootstrap() (admin, dispatcher string) {
	a.t.Helper()
	w := a.do(http.MethodPost, "/auth/register", "", gin.H{
		"username": "root", "email": "root@example.com", "password": "password123",
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(a.t, model.RoleAdmin, decode[model.User](a.t, w).Role)
	admin = a.login("root@example.com", "password123")

	w = a.do(http.MethodPost, "/auth/register", admin, gin.H{
		"username": "desk", "email": "desk@example.com", "password": "password123", "role": "dispatcher",
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	dispatcher = a.login("desk@example.com", "password123")
	return admin, dispatcher
}

func TestHealth(t *testing.T) {
	db := new(pingerMock)
	db.On("Ping", mock.Anything).Return(nil)
	redis := new(pingerMock)
	redis.On("Ping", mock.Anything).Return(errors.New("connection refused")).Once()
	redis.On("Ping", mock.Anything).Return(nil)

	api := newAPI(t, map[string]httpapi.Pinger{"db": db, "cache": redis})

	w := api.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"db": "ok", "cache": "connection refused"}, body["components"])

	w = api.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	db.AssertNumberOfCalls(t, "Ping", 2)
	redis.AssertExpectations(t)
}

func TestAuthFlow(t *testing.T) {
	api := newAPI(t, nil)
	admin, dispatcher := api.bootstrap()

	w := api.do(http.MethodPost, "/auth/register", "", gin.H{
		"username": "late", "email": "late@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "only the first user registers anonymously")

	w = api.do(http.MethodPost, "/auth/register", dispatcher, gin.H{
		"username": "late", "email": "late@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodPost, "/auth/register", admin, gin.H{
		"username": "dup", "email": "DESK@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(http.MethodPost, "/auth/login", "", gin.H{"email": "desk@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(http.MethodGet, "/me", dispatcher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[model.User](t, w)
	assert.Equal(t, "desk@example.com", me.Email)
	assert.Equal(t, model.RoleDispatcher, me.Role)
	assert.NotContains(t, w.Body.String(), "password")

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/me", "not-a-jwt", nil).Code)

	w = api.do(http.MethodPost, "/auth/logout", dispatcher, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/me", dispatcher, nil).Code)
}

func TestVerificationTokens(t *testing.T) {
	api := newAPI(t, nil)
	admin, _ := api.bootstrap()

	w := api.do(http.MethodPost, "/auth/verification-tokens", admin, gin.H{"identifier": "desk@example.com"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	vt := decode[model.VerificationToken](t, w)

	use := gin.H{"identifier": "desk@example.com", "token": vt.Token}
	assert.Equal(t, http.StatusNoContent, api.do(http.MethodPost, "/auth/verification-tokens/use", "", use).Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodPost, "/auth/verification-tokens/use", "", use).Code)
}

func TestCatalogRoutes(t *testing.T) {
	api := newAPI(t, nil)
	admin, dispatcher := api.bootstrap()

	assert.Equal(t, http.StatusForbidden, api.do(http.MethodPost, "/cities", dispatcher, gin.H{"name": "Cairo"}).Code)

	w := api.do(http.MethodPost, "/cities", admin, gin.H{"name": "Cairo"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	city := decode[model.City](t, w)
	assert.Equal(t, http.StatusConflict, api.do(http.MethodPost, "/cities", admin, gin.H{"name": "Cairo"}).Code)

	w = api.do(http.MethodPost, "/drivers", admin, gin.H{"name": "Ali", "phone": "+20 100", "assigned_areas": []string{"Cairo"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	driver := decode[model.Driver](t, w)
	assert.Equal(t, "20100", driver.Phone)

	w = api.do(http.MethodPost, "/drivers", admin, gin.H{"name": "Omar", "phone": "1", "assigned_areas": []string{"Atlantis"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodGet, "/drivers?city=Cairo", dispatcher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.Driver](t, w), 1)

	w = api.do(http.MethodGet, "/drivers?page=1&page_size=10", dispatcher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[map[string]any](t, w)
	assert.EqualValues(t, 1, page["total"])
	assert.Equal(t, false, page["has_next"])

	w = api.do(http.MethodDelete, "/cities/"+itoa(city.ID), admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode[errorBody](t, w).Error, "still in use")
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/drivers/abc", admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/drivers/999", admin, nil).Code)

	w = api.do(http.MethodPatch, "/drivers/"+itoa(driver.ID), admin, gin.H{"assigned_areas": []string{}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/cities/"+itoa(city.ID), admin, nil).Code)
}

func TestDispatchRoutes(t *testing.T) {
	api := newAPI(t, nil)
	admin, dispatcher := api.bootstrap()

	w := api.do(http.MethodPost, "/drivers", admin, gin.H{"name": "Ali", "phone": "0100"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	driver := decode[model.Driver](t, w)

	for i, cod := range []string{"10.50", "4.50"} {
		w = api.do(http.MethodPost, "/orders", dispatcher, gin.H{
			"barcode":           "H-" + itoa(uint(i+1)),
			"recipient_name":    "R",
			"recipient_phone":   "1",
			"recipient_address": "A",
			"cod_amount":        cod,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w = api.do(http.MethodGet, "/orders?status=pending&page_size=1", dispatcher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[map[string]any](t, w)
	assert.EqualValues(t, 2, page["total"])
	assert.Equal(t, true, page["has_next"])
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/orders?status=lost", dispatcher, nil).Code)

	w = api.do(http.MethodPost, "/delegate-sheets", dispatcher, gin.H{"driver_id": driver.ID, "barcodes": []string{"h-1", "H-2"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sheet := decode[model.DelegateSheet](t, w)
	assert.Equal(t, 2, sheet.OrderCount)
	assert.True(t, sheet.TotalAmount.Equal(decimal.NewFromInt(15)), sheet.TotalAmount.String())

	w = api.do(http.MethodPost, "/delegate-sheets", dispatcher, gin.H{"driver_id": driver.ID, "barcodes": []string{"H-1"}})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = api.do(http.MethodPost, "/delegate-sheets", dispatcher, gin.H{"driver_id": driver.ID, "barcodes": []string{"NOPE"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(http.MethodGet, "/orders/barcode/h-1", dispatcher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	order := decode[model.Order](t, w)
	assert.Equal(t, model.OrderStatusOutForDelivery, order.Status)

	w = api.do(http.MethodPost, "/orders/"+itoa(order.ID)+"/status", dispatcher, gin.H{"status": "delivered"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = api.do(http.MethodPost, "/orders/"+itoa(order.ID)+"/status", dispatcher, gin.H{"status": "pending"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(http.MethodPost, "/delegate-sheets/"+itoa(sheet.ID)+"/reconcile", dispatcher, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rec := decode[service.Reconciliation](t, w)
	assert.Equal(t, 1, rec.Delivered)
	assert.Equal(t, 1, rec.Outstanding)
	assert.True(t, rec.CollectedAmount.Equal(decimal.RequireFromString("10.5")), rec.CollectedAmount.String())

	w = api.do(http.MethodGet, "/delegate-sheets/barcode/"+sheet.SheetBarcode, dispatcher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[model.DelegateSheet](t, w).Orders, 2)

	assert.Equal(t, http.StatusForbidden, api.do(http.MethodGet, "/reports/summary", dispatcher, nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/reports/summary?from=yesterday", admin, nil).Code)
	w = api.do(http.MethodGet, "/reports/summary", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode[service.Summary](t, w)
	assert.EqualValues(t, 1, summary.Sheets.Sheets)
	require.Len(t, summary.CollectedByDriver, 1)
	assert.Equal(t, "Ali", summary.CollectedByDriver[0].DriverName)

	assert.Equal(t, http.StatusConflict, api.do(http.MethodDelete, "/orders/"+itoa(order.ID), dispatcher, nil).Code)
	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/delegate-sheets/"+itoa(sheet.ID), dispatcher, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/delegate-sheets/"+itoa(sheet.ID), dispatcher, nil).Code)
}

func itoa(v uint) string { return strconv.FormatUint(uint64(v), 10) }
