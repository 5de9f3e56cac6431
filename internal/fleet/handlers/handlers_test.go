package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gartstein/fleet/internal/fleet/auth"
	"github.com/gartstein/fleet/internal/fleet/billing"
	"github.com/gartstein/fleet/internal/fleet/cache"
	"github.com/gartstein/fleet/internal/fleet/controller"
	"github.com/gartstein/fleet/internal/fleet/db"
	"github.com/gartstein/fleet/internal/fleet/events"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap/zaptest"
)

const testWebhookSecret = "whsec_http_test"

type apiFixture struct {
	repo   *db.Repository
	tokens *auth.TokenService
	router *gin.Engine
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)

	repo, err := db.NewRepository(&db.Config{Driver: db.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	tokens := auth.NewTokenService("http-test-secret", time.Hour)
	access := billing.NewAccessChecker(repo, cache.Noop{}, logger)
	producer := events.NewInlineProducer(events.NewAuditRecorder(repo, logger))
	registry := billing.NewRegistry(billing.NewStripeProvider(testWebhookSecret))
	processor := billing.NewProcessor(repo, registry, access, producer, logger)

	h := NewHandler(Services{
		Accounts:    controller.NewAccountService(repo, tokens, 0, logger),
		Vehicles:    controller.NewVehicleService(repo, access, producer, logger),
		Shifts:      controller.NewShiftService(repo, access, producer, logger),
		Inspections: controller.NewInspectionService(repo, access, producer, logger),
		Issues:      controller.NewIssueService(repo, access, producer, logger),
		Tickets:     controller.NewTicketService(repo, access, producer, logger),
		Telemetry:   controller.NewTelemetryService(repo, access),
		Billing:     controller.NewBillingService(repo, access, nil, processor, logger),
		Platform:    controller.NewPlatformService(repo, access, processor, producer, logger),
	}, logger)
	authn := auth.NewAuthenticator(tokens, repo)

	return &apiFixture{
		repo:   repo,
		tokens: tokens,
		router: NewRouter(h, authn.Middleware(logger)),
	}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// signup registers a company and one user of the given role, and returns
// the company id and a token for the user.
func (f *apiFixture) signup(t *testing.T, slug string, role models.Role) (string, string) {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/account/register-company/", "", map[string]any{"name": slug, "slug": slug})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	companyID := decode(t, w)["id"].(string)
	return companyID, f.member(t, slug, role)
}

func (f *apiFixture) member(t *testing.T, slug string, role models.Role) string {
	t.Helper()
	username := fmt.Sprintf("%s-%s", slug, role)
	w := f.do(t, http.MethodPost, "/api/account/register/", "", map[string]any{
		"username": username, "password": "s3cret-pass", "role": role, "company_slug": slug,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/account/login/", "", map[string]any{"username": username, "password": "s3cret-pass"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)["token"].(string)
}

func TestAPI_SignupToVehicle(t *testing.T) {
	f := newAPIFixture(t)
	companyID, token := f.signup(t, "acme", models.RoleAdmin)

	w := f.do(t, http.MethodGet, "/api/account/me/", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode(t, w)
	assert.Equal(t, "acme-admin", me["username"])
	assert.Equal(t, companyID, me["company"])
	assert.Equal(t, "acme", me["company_name"])

	w = f.do(t, http.MethodPost, "/api/fleet/vehicles/", token, map[string]any{"reg_number": "V-1", "make": "Ford"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	vehicle := decode(t, w)
	assert.Equal(t, companyID, vehicle["org"])
	assert.Equal(t, "V-1", vehicle["reg_number"])

	w = f.do(t, http.MethodPost, "/api/fleet/vehicles/", token, map[string]any{"reg_number": "v-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w), "reg_number")

	w = f.do(t, http.MethodGet, "/api/fleet/vehicles/", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])
}

func TestAPI_Authentication(t *testing.T) {
	f := newAPIFixture(t)
	_, _ = f.signup(t, "acme", models.RoleAdmin)

	w := f.do(t, http.MethodGet, "/api/fleet/vehicles/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/api/fleet/vehicles/", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/account/login/", "", map[string]any{"username": "acme-admin", "password": "wrong"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/billing/plans/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code, "plans are public")

	w = f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPI_DriverCannotCreateVehicle(t *testing.T) {
	f := newAPIFixture(t)
	_, _ = f.signup(t, "acme", models.RoleAdmin)
	driver := f.member(t, "acme", models.RoleDriver)

	w := f.do(t, http.MethodPost, "/api/fleet/vehicles/", driver, map[string]any{"reg_number": "V-2", "make": "Ford"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, "/api/fleet/vehicles/", driver, nil)
	assert.Equal(t, http.StatusOK, w.Code, "drivers may read vehicles")
}

func TestAPI_CrossTenantIsolation(t *testing.T) {
	f := newAPIFixture(t)
	_, acme := f.signup(t, "acme", models.RoleAdmin)
	_, globex := f.signup(t, "globex", models.RoleAdmin)

	w := f.do(t, http.MethodPost, "/api/fleet/vehicles/", globex, map[string]any{"reg_number": "G-1"})
	require.Equal(t, http.StatusCreated, w.Code)
	vehicleID := decode(t, w)["id"].(string)

	for _, method := range []string{http.MethodGet, http.MethodPatch, http.MethodDelete} {
		w = f.do(t, method, "/api/fleet/vehicles/"+vehicleID+"/", acme, map[string]any{"status": "retired"})
		assert.Equal(t, http.StatusNotFound, w.Code, method)
	}

	w = f.do(t, http.MethodPost, "/api/fleet/shifts/", acme, map[string]any{"vehicle": vehicleID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w), "vehicle")

	w = f.do(t, http.MethodGet, "/api/fleet/vehicles/not-a-uuid/", acme, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_ShiftWorkflow(t *testing.T) {
	f := newAPIFixture(t)
	_, admin := f.signup(t, "acme", models.RoleAdmin)
	driver := f.member(t, "acme", models.RoleDriver)
	staff := f.member(t, "acme", models.RoleStaff)

	w := f.do(t, http.MethodPost, "/api/fleet/vehicles/", admin, map[string]any{"reg_number": "S-1", "mileage": 500})
	require.Equal(t, http.StatusCreated, w.Code)
	vehicleID := decode(t, w)["id"].(string)

	w = f.do(t, http.MethodPost, "/api/fleet/shifts/", driver, map[string]any{"vehicle": vehicleID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	shift := decode(t, w)
	assert.Equal(t, "S-1", shift["vehicle_reg"])
	assert.EqualValues(t, 500, shift["start_mileage"])
	shiftID := shift["id"].(string)

	w = f.do(t, http.MethodPost, "/api/fleet/shifts/"+shiftID+"/end/", driver, map[string]any{"end_mileage": 650})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "completed", decode(t, w)["status"])

	w = f.do(t, http.MethodGet, "/api/fleet/vehicles/"+vehicleID+"/", admin, nil)
	assert.EqualValues(t, 650, decode(t, w)["mileage"])

	w = f.do(t, http.MethodPost, "/api/issues/", driver, map[string]any{"vehicle": vehicleID, "title": "Wipers"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	issueID := decode(t, w)["id"].(string)

	w = f.do(t, http.MethodPatch, "/api/issues/"+issueID+"/", staff, map[string]any{"status": "resolved"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/issues/"+issueID+"/history/", driver, nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode(t, w)
	require.EqualValues(t, 1, history["count"])
	entry := history["results"].([]any)[0].(map[string]any)
	assert.Equal(t, "open", entry["old_status"])
	assert.Equal(t, "resolved", entry["new_status"])
}

func signedStripe(t *testing.T, id, eventType string, object map[string]any) ([]byte, string) {
	t.Helper()
	obj, err := json.Marshal(object)
	require.NoError(t, err)
	payload := []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"api_version":"2024-06-20","data":{"object":%s}}`,
		id, eventType, obj))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return payload, signed.Header
}

func (f *apiFixture) webhook(t *testing.T, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhooks/stripe/", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestAPI_WebhookIdempotency(t *testing.T) {
	f := newAPIFixture(t)
	companyID, admin := f.signup(t, "acme", models.RoleAdmin)
	require.NoError(t, f.repo.SetPaymentCustomerID(context.Background(), uuid.MustParse(companyID), "cus_acme"))

	invoice := map[string]any{
		"id": "in_1", "customer": "cus_acme", "amount_paid": 4900, "amount_due": 4900, "currency": "usd",
		"status_transitions": map[string]any{"paid_at": time.Now().Unix()},
	}
	payload, signature := signedStripe(t, "evt_http_1", "invoice.payment_succeeded", invoice)

	w := f.webhook(t, payload, signature)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "processed", decode(t, w)["status"])

	w = f.webhook(t, payload, signature)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "already_processed", decode(t, w)["status"])

	w = f.do(t, http.MethodGet, "/api/billing/payments/", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])
}

func TestAPI_WebhookBadSignature(t *testing.T) {
	f := newAPIFixture(t)
	payload, _ := signedStripe(t, "evt_forged", "invoice.payment_succeeded", map[string]any{"id": "in_x", "customer": "cus_x"})

	w := f.webhook(t, payload, "t=1,v1=deadbeef")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, err := f.repo.GetWebhookEvent(context.Background(), billing.ProviderStripe, "evt_forged")
	assert.Error(t, err, "rejected deliveries leave no record")

	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhooks/unknown/", bytes.NewReader(payload))
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_Platform(t *testing.T) {
	f := newAPIFixture(t)
	companyID, admin := f.signup(t, "acme", models.RoleAdmin)

	operator := &models.User{Username: "ops", PasswordHash: "x", Role: models.RoleAdmin, IsActive: true, IsPlatformAdmin: true}
	require.NoError(t, f.repo.CreateUser(context.Background(), operator))
	opsToken, err := f.tokens.Issue(operator)
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/api/platform/companies/", admin, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/platform/companies/"+companyID+"/suspend/", opsToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, decode(t, w)["is_active"])

	w = f.do(t, http.MethodPost, "/api/fleet/vehicles/", admin, map[string]any{"reg_number": "X-1"})
	assert.Equal(t, http.StatusForbidden, w.Code, "suspended companies lose write access")

	w = f.do(t, http.MethodPost, "/api/platform/companies/"+companyID+"/activate/", opsToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/fleet/vehicles/", admin, map[string]any{"reg_number": "X-1"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodGet, "/api/platform/webhooks/?processed=false", opsToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["count"])
}

func TestAPI_TelemetryStatusFilter(t *testing.T) {
	f := newAPIFixture(t)
	_, admin := f.signup(t, "acme", models.RoleAdmin)

	w := f.do(t, http.MethodGet, "/api/telemetry/?status=active", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 0, decode(t, w)["count"])
}

func TestAPI_VehicleFieldLengths(t *testing.T) {
	f := newAPIFixture(t)
	_, admin := f.signup(t, "acme", models.RoleAdmin)

	w := f.do(t, http.MethodPost, "/api/fleet/vehicles/", admin, map[string]any{"reg_number": "LEN-1", "vin": strings.Repeat("V", 18)})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Contains(t, decode(t, w), "vin")

	w = f.do(t, http.MethodPost, "/api/fleet/vehicles/", admin, map[string]any{"reg_number": "LEN-1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["id"].(string)

	w = f.do(t, http.MethodPatch, "/api/fleet/vehicles/"+id+"/", admin, map[string]any{"reg_number": strings.Repeat("R", 21)})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Contains(t, decode(t, w), "reg_number")
}

func TestAPI_WebhookProcessingFailure(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	companyID, _ := f.signup(t, "acme", models.RoleAdmin)
	require.NoError(t, f.repo.SetPaymentCustomerID(ctx, uuid.MustParse(companyID), "cus_acme"))

	now := time.Now()
	subscription := map[string]any{
		"id": "sub_1", "customer": "cus_acme", "status": "bogus",
		"items": map[string]any{"data": []map[string]any{{
			"current_period_start": now.Unix(),
			"current_period_end":   now.AddDate(0, 1, 0).Unix(),
			"price":                map[string]any{"id": "price_pro"},
		}}},
	}
	payload, signature := signedStripe(t, "evt_http_bad", "customer.subscription.updated", subscription)

	w := f.webhook(t, payload, signature)
	require.Equal(t, http.StatusInternalServerError, w.Code, "the provider retries on 5xx")
	assert.NotContains(t, w.Body.String(), "bogus")

	stored, err := f.repo.GetWebhookEvent(ctx, billing.ProviderStripe, "evt_http_bad")
	require.NoError(t, err)
	assert.False(t, stored.Processed)
	assert.Equal(t, 1, stored.RetryCount)
}
