package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gartstein/fleet/internal/fleet/authz"
	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/gartstein/fleet/internal/pkg/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SetupTestDB initializes an in-memory SQLite database for testing.
func SetupTestDB(t *testing.T) *Repository {
	repo, err := NewRepository(&Config{Driver: DriverSQLite, Path: ":memory:"})
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func createTestCompany(t *testing.T, repo *Repository, slug string) *models.Company {
	t.Helper()
	company := &models.Company{Name: "Company " + slug, Slug: slug, IsActive: true}
	require.NoError(t, repo.CreateCompany(context.Background(), company), "CreateCompany should succeed")
	return company
}

func TestNewRepository_UnknownDriver(t *testing.T) {
	_, err := NewRepository(&Config{Driver: "oracle"})
	assert.Error(t, err)
}

func TestCreateCompany(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()

	company := createTestCompany(t, repo, "acme")

	retrieved, err := repo.GetCompany(ctx, company.ID)
	require.NoError(t, err, "GetCompany should retrieve the created company")
	assert.Equal(t, company.Name, retrieved.Name)
	assert.Equal(t, models.CompanyTrial, retrieved.SubscriptionStatus)
	require.NotNil(t, retrieved.TrialEndsAt)
	assert.WithinDuration(t, retrieved.TrialStartedAt.Add(models.DefaultTrialPeriod), *retrieved.TrialEndsAt, time.Second)
}

func TestCreateCompany_DuplicateSlug(t *testing.T) {
	repo := SetupTestDB(t)
	createTestCompany(t, repo, "acme")

	err := repo.CreateCompany(context.Background(), &models.Company{Name: "Other", Slug: "acme"})
	assert.ErrorIs(t, err, e.ErrDuplicateSlug)
}

func TestGetCompanyNotFound(t *testing.T) {
	repo := SetupTestDB(t)

	_, err := repo.GetCompany(context.Background(), uuid.New())
	assert.ErrorIs(t, err, e.ErrNotFound, "GetCompany should return ErrNotFound for non-existent company")
}

func TestCompanyLookups(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	company := createTestCompany(t, repo, "lookup")

	bySlug, err := repo.GetCompanyBySlug(ctx, "lookup")
	require.NoError(t, err)
	assert.Equal(t, company.ID, bySlug.ID)

	exists, err := repo.CompanyExistsBySlug(ctx, "lookup")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.CompanyExistsBySlug(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.GetCompanyByCustomerID(ctx, "cus_1")
	assert.ErrorIs(t, err, e.ErrNotFound)
	_, err = repo.GetCompanyByCustomerID(ctx, "")
	assert.ErrorIs(t, err, e.ErrNotFound)

	require.NoError(t, repo.SetPaymentCustomerID(ctx, company.ID, "cus_1"))
	byCustomer, err := repo.GetCompanyByCustomerID(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, company.ID, byCustomer.ID)
}

func TestUpdateCompany(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	company := createTestCompany(t, repo, "old-name")

	err := repo.UpdateCompany(ctx, &models.CompanyUpdate{ID: company.ID, Name: utils.Ptr("New Name")})
	assert.NoError(t, err)

	updated, err := repo.GetCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.Name)
	assert.Equal(t, "old-name", updated.Slug)
}

func TestUpdateCompanyNotFound(t *testing.T) {
	repo := SetupTestDB(t)

	err := repo.UpdateCompany(context.Background(), &models.CompanyUpdate{ID: uuid.New(), Name: utils.Ptr("x")})
	assert.ErrorIs(t, err, e.ErrNotFound)
}

func TestSetCompanyBilling(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	company := createTestCompany(t, repo, "billing")

	require.NoError(t, repo.SetCompanyBilling(ctx, company.ID, models.CompanySuspended, true))
	got, err := repo.GetCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CompanySuspended, got.SubscriptionStatus)
	assert.True(t, got.IsPaymentOverdue)

	require.NoError(t, repo.SetCompanyBilling(ctx, company.ID, models.CompanyActive, false))
	got, err = repo.GetCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CompanyActive, got.SubscriptionStatus)
	assert.False(t, got.IsPaymentOverdue)
}

func TestUsers(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	company := createTestCompany(t, repo, "users")

	user := &models.User{Username: "alice", PasswordHash: "x", Role: models.RoleDriver, CompanyID: &company.ID, IsActive: true}
	require.NoError(t, repo.CreateUser(ctx, user))

	err := repo.CreateUser(ctx, &models.User{Username: "alice", PasswordHash: "y", Role: models.RoleAdmin})
	assert.ErrorIs(t, err, e.ErrDuplicate)

	got, err := repo.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got.Company)
	assert.Equal(t, "users", got.Company.Slug)

	require.NoError(t, repo.UpdateUser(ctx, &models.UserUpdate{ID: user.ID, IsActive: utils.Ptr(false), Role: utils.Ptr(models.RoleStaff)}))
	got, err = repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, models.RoleStaff, got.Role)

	list, err := repo.ListUsers(ctx, ListQuery{Scope: authz.Scope{CompanyID: company.ID}})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = repo.ListUsers(ctx, ListQuery{Scope: authz.Scope{CompanyID: uuid.New()}})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestVehicles_ScopedToCompany(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	a := createTestCompany(t, repo, "company-a")
	b := createTestCompany(t, repo, "company-b")

	require.NoError(t, repo.CreateVehicle(ctx, &models.Vehicle{CompanyID: a.ID, RegNumber: "AAA-1"}))
	require.NoError(t, repo.CreateVehicle(ctx, &models.Vehicle{CompanyID: a.ID, RegNumber: "AAA-2", Status: models.VehicleMaintenance}))
	// the same registration may exist in another company
	require.NoError(t, repo.CreateVehicle(ctx, &models.Vehicle{CompanyID: b.ID, RegNumber: "AAA-1"}))

	err := repo.CreateVehicle(ctx, &models.Vehicle{CompanyID: a.ID, RegNumber: "AAA-1"})
	assert.ErrorIs(t, err, e.ErrDuplicate)

	list, err := repo.ListVehicles(ctx, ListQuery{Scope: authz.Scope{CompanyID: a.ID}})
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, v := range list {
		assert.Equal(t, a.ID, v.CompanyID)
	}

	list, err = repo.ListVehicles(ctx, ListQuery{Scope: authz.Scope{CompanyID: a.ID}, Status: string(models.VehicleMaintenance)})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "AAA-2", list[0].RegNumber)

	list, err = repo.ListVehicles(ctx, ListQuery{Scope: authz.Scope{All: true}})
	require.NoError(t, err)
	assert.Len(t, list, 3)

	count, err := repo.CountVehicles(ctx, a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestVehicle_UpdateDelete(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	company := createTestCompany(t, repo, "fleet")

	v := &models.Vehicle{CompanyID: company.ID, RegNumber: "XYZ-9"}
	require.NoError(t, repo.CreateVehicle(ctx, v))
	assert.Equal(t, models.VehicleActive, v.Status)

	status := models.VehicleRetired
	require.NoError(t, repo.UpdateVehicle(ctx, &models.VehicleUpdate{ID: v.ID, Status: &status, Mileage: utils.Ptr(1200)}))

	got, err := repo.GetVehicle(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VehicleRetired, got.Status)
	assert.Equal(t, 1200, got.Mileage)

	require.NoError(t, repo.DeleteVehicle(ctx, v.ID))
	_, err = repo.GetVehicle(ctx, v.ID)
	assert.ErrorIs(t, err, e.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteVehicle(ctx, v.ID), e.ErrNotFound)
}

func TestVehicle_DeleteReferenced(t *testing.T) {
	// sqlite only enforces foreign keys when asked to
	repo, err := NewRepository(&Config{Driver: DriverSQLite, Path: "file::memory:?_foreign_keys=on"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	ctx := context.Background()
	company := createTestCompany(t, repo, "fk")

	v := &models.Vehicle{CompanyID: company.ID, RegNumber: "FK-1"}
	require.NoError(t, repo.CreateVehicle(ctx, v))
	require.NoError(t, repo.CreateShift(ctx, &models.Shift{CompanyID: company.ID, VehicleID: v.ID, DriverID: uuid.New()}))

	assert.ErrorIs(t, repo.DeleteVehicle(ctx, v.ID), e.ErrInUse)
	_, err = repo.GetVehicle(ctx, v.ID)
	assert.NoError(t, err, "referenced vehicle is kept")

	unused := &models.Vehicle{CompanyID: company.ID, RegNumber: "FK-2"}
	require.NoError(t, repo.CreateVehicle(ctx, unused))
	assert.NoError(t, repo.DeleteVehicle(ctx, unused.ID))
}

func TestUpdate_RefreshesUpdatedAt(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	company := createTestCompany(t, repo, "stamps")

	v := &models.Vehicle{CompanyID: company.ID, RegNumber: "TS-1"}
	require.NoError(t, repo.CreateVehicle(ctx, v))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, repo.Exec(ctx, "UPDATE vehicles SET updated_at = ? WHERE id = ?", past, v.ID))

	require.NoError(t, repo.UpdateVehicle(ctx, &models.VehicleUpdate{ID: v.ID, Mileage: utils.Ptr(10)}))

	got, err := repo.GetVehicle(ctx, v.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), got.UpdatedAt, 5*time.Second)

	require.NoError(t, repo.Exec(ctx, "UPDATE companies SET updated_at = ? WHERE id = ?", past, company.ID))
	require.NoError(t, repo.UpdateCompany(ctx, &models.CompanyUpdate{ID: company.ID, Name: utils.Ptr("Renamed")}))
	c, err := repo.GetCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), c.UpdatedAt, 5*time.Second)
}

func TestShifts_OwnerScope(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	company := createTestCompany(t, repo, "shifts")
	v := &models.Vehicle{CompanyID: company.ID, RegNumber: "S-1"}
	require.NoError(t, repo.CreateVehicle(ctx, v))

	driverA, driverB := uuid.New(), uuid.New()
	require.NoError(t, repo.CreateShift(ctx, &models.Shift{CompanyID: company.ID, VehicleID: v.ID, DriverID: driverA}))
	require.NoError(t, repo.CreateShift(ctx, &models.Shift{CompanyID: company.ID, VehicleID: v.ID, DriverID: driverB}))

	list, err := repo.ListShifts(ctx, ListQuery{Scope: authz.Scope{CompanyID: company.ID, OwnerID: &driverA}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, driverA, list[0].DriverID)

	list, err = repo.ListShifts(ctx, ListQuery{Scope: authz.Scope{CompanyID: company.ID}, VehicleID: &v.ID})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestListQuery_Paging(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	company := createTestCompany(t, repo, "paging")
	v := &models.Vehicle{CompanyID: company.ID, RegNumber: "P-1"}
	require.NoError(t, repo.CreateVehicle(ctx, v))

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.CreateTelemetry(ctx, &models.TelemetryRecord{
			CompanyID: company.ID, VehicleID: v.ID, RecordedAt: time.Now().Add(time.Duration(i) * time.Minute),
		}))
	}

	page, err := repo.ListTelemetry(ctx, ListQuery{Scope: authz.Scope{CompanyID: company.ID}, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := repo.ListTelemetry(ctx, ListQuery{Scope: authz.Scope{CompanyID: company.ID}, Limit: 10, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, rest, 3)
}

func TestPlans(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()

	plan := &models.Plan{Code: "basic", Name: "Basic", Tier: models.TierBasic, Amount: decimal.RequireFromString("29.00"),
		Currency: "USD", Interval: models.IntervalMonth, ProviderPriceID: "price_basic", IsActive: true,
		Features: map[string]bool{"telemetry": true}}
	require.NoError(t, repo.UpsertPlan(ctx, plan))

	again := &models.Plan{Code: "basic", Name: "Basic v2", Tier: models.TierBasic, Amount: decimal.RequireFromString("39.00"),
		Currency: "USD", Interval: models.IntervalMonth, ProviderPriceID: "price_basic", IsActive: true}
	require.NoError(t, repo.UpsertPlan(ctx, again))

	plans, err := repo.ListActivePlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "Basic v2", plans[0].Name)
	assert.True(t, decimal.RequireFromString("39").Equal(plans[0].Amount))

	got, err := repo.GetPlanByProviderPriceID(ctx, "price_basic")
	require.NoError(t, err)
	assert.Equal(t, "basic", got.Code)

	_, err = repo.GetPlanByCode(ctx, "enterprise")
	assert.ErrorIs(t, err, e.ErrNotFound)
}

func TestSaveSubscription_OnePerCompany(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	company := createTestCompany(t, repo, "subs")

	_, err := repo.GetSubscription(ctx, company.ID)
	assert.ErrorIs(t, err, e.ErrNotFound)

	require.NoError(t, repo.SaveSubscription(ctx, &models.CompanySubscription{
		CompanyID: company.ID, Status: models.SubTrialing, Provider: "stripe", ProviderSubscriptionID: "sub_1",
	}))
	require.NoError(t, repo.SaveSubscription(ctx, &models.CompanySubscription{
		CompanyID: company.ID, Status: models.SubActive, Provider: "stripe", ProviderSubscriptionID: "sub_1",
	}))

	sub, err := repo.GetSubscription(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubActive, sub.Status)

	var count int64
	require.NoError(t, repo.db.Model(&models.CompanySubscription{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestGetOrCreateWebhookEvent(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()

	first, created, err := repo.GetOrCreateWebhookEvent(ctx, &models.WebhookEvent{
		Provider: "stripe", EventID: "evt_1", EventType: "subscription.updated", Payload: `{"a":1}`,
	})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := repo.GetOrCreateWebhookEvent(ctx, &models.WebhookEvent{
		Provider: "stripe", EventID: "evt_1", EventType: "subscription.updated", Payload: `{"a":2}`,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, `{"a":1}`, second.Payload)

	// same event id from another provider is a different event
	_, created, err = repo.GetOrCreateWebhookEvent(ctx, &models.WebhookEvent{Provider: "paystack", EventID: "evt_1"})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestWebhookBookkeeping(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()

	ev, _, err := repo.GetOrCreateWebhookEvent(ctx, &models.WebhookEvent{Provider: "stripe", EventID: "evt_2"})
	require.NoError(t, err)

	require.NoError(t, repo.RecordWebhookFailure(ctx, ev.ID, "boom"))
	require.NoError(t, repo.RecordWebhookFailure(ctx, ev.ID, "boom again"))

	got, err := repo.GetWebhookEvent(ctx, "stripe", "evt_2")
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, "boom again", got.ErrorMessage)
	assert.False(t, got.Processed)

	now := time.Now()
	require.NoError(t, repo.MarkWebhookProcessed(ctx, ev.ID, now))
	got, err = repo.GetWebhookEvent(ctx, "stripe", "evt_2")
	require.NoError(t, err)
	assert.True(t, got.Processed)
	require.NotNil(t, got.ProcessedAt)
	assert.Empty(t, got.ErrorMessage)
}

func TestAuditEntries(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()
	entity := uuid.New()
	company := uuid.New()
	t0 := time.Now().Add(-time.Minute)

	require.NoError(t, repo.CreateAuditEntry(ctx, &models.AuditEntry{CompanyID: company, EntityType: "vehicle", EntityID: entity,
		Action: "vehicle.status_changed", OldStatus: "active", NewStatus: "maintenance", OccurredAt: t0}))
	require.NoError(t, repo.CreateAuditEntry(ctx, &models.AuditEntry{CompanyID: company, EntityType: "vehicle", EntityID: entity,
		Action: "vehicle.status_changed", OldStatus: "maintenance", NewStatus: "active", OccurredAt: t0.Add(time.Second)}))

	entries, err := repo.ListAuditEntries(ctx, "vehicle", entity)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "maintenance", entries[0].NewStatus)
	assert.Equal(t, "active", entries[1].NewStatus)
}

func TestWithTransaction(t *testing.T) {
	repo := SetupTestDB(t)
	ctx := context.Background()

	err := repo.WithTransaction(ctx, func(txRepo *Repository) error {
		return txRepo.CreateCompany(ctx, &models.Company{Name: "Transactional", Slug: "tx-ok"})
	})
	assert.NoError(t, err, "WithTransaction should execute successfully")

	exists, _ := repo.CompanyExistsBySlug(ctx, "tx-ok")
	assert.True(t, exists, "Company should exist after transaction")

	rollback := errors.New("rollback")
	err = repo.WithTransaction(ctx, func(txRepo *Repository) error {
		if err := txRepo.CreateCompany(ctx, &models.Company{Name: "Rolled back", Slug: "tx-fail"}); err != nil {
			return err
		}
		return rollback
	})
	assert.ErrorIs(t, err, rollback)

	exists, _ = repo.CompanyExistsBySlug(ctx, "tx-fail")
	assert.False(t, exists, "Company should not exist after rollback")
}
