package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/gartstein/fleet/internal/fleet/authz"
	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/models"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultPageSize = 50
	maxPageSize     = 200
)

type Repository struct {
	db *gorm.DB
}

type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Path is the SQLite DSN, e.g. ":memory:" or "fleet.db".
	Path string
	// Debug enables SQL statement logging.
	Debug bool
}

// DSN returns the driver-specific connection string.
func (c *Config) DSN() string {
	if c.Driver == DriverSQLite {
		return c.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func NewRepository(cfg *Config) (*Repository, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres, "":
		dialector = postgres.Open(cfg.DSN())
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	gcfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}
	if cfg.Debug {
		gcfg.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// every new connection to an in-memory database is a fresh database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Repository{db: db}, nil
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *Repository) WithTransaction(ctx context.Context, fn func(repo *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

func (r *Repository) Exec(ctx context.Context, query string, params ...interface{}) error {
	result := r.db.WithContext(ctx).Exec(query, params...)
	if result.Error != nil {
		return result.Error
	}
	return nil
}

func (r *Repository) Close() error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

// ListQuery narrows a list of company-owned rows.
type ListQuery struct {
	Scope     authz.Scope
	Status    string
	VehicleID *uuid.UUID
	Limit     int
	Offset    int
}

// apply adds tenant, ownership, filter and paging clauses. ownerColumn names
// the column compared with Scope.OwnerID.
func (q ListQuery) apply(tx *gorm.DB, ownerColumn string) *gorm.DB {
	if !q.Scope.All {
		tx = tx.Where("company_id = ?", q.Scope.CompanyID)
	}
	if q.Scope.OwnerID != nil && ownerColumn != "" {
		tx = tx.Where(ownerColumn+" = ?", *q.Scope.OwnerID)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.VehicleID != nil {
		tx = tx.Where("vehicle_id = ?", *q.VehicleID)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return tx.Limit(limit).Offset(q.Offset)
}

func getByID[T any](ctx context.Context, db *gorm.DB, id uuid.UUID, preload ...string) (*T, error) {
	var out T
	result := withPreloads(db.WithContext(ctx), preload).First(&out, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, e.ErrNotFound
		}
		return nil, result.Error
	}
	return &out, nil
}

func listBy[T any](ctx context.Context, db *gorm.DB, q ListQuery, ownerColumn, order string, preload ...string) ([]T, error) {
	var out []T
	tx := withPreloads(db.WithContext(ctx).Model(new(T)), preload)
	result := q.apply(tx, ownerColumn).Order(order).Find(&out)
	if result.Error != nil {
		return nil, result.Error
	}
	return out, nil
}

func withPreloads(tx *gorm.DB, preload []string) *gorm.DB {
	for _, rel := range preload {
		tx = tx.Preload(rel)
	}
	return tx
}

func create(ctx context.Context, db *gorm.DB, value any, duplicate error) error {
	result := db.WithContext(ctx).Create(value)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return duplicate
		}
		return result.Error
	}
	return nil
}

func updateByID(ctx context.Context, db *gorm.DB, model any, id uuid.UUID, update any, duplicate error) error {
	result := db.WithContext(ctx).Model(model).
		Where("id = ?", id).
		Updates(update)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return duplicate
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

func deleteByID(ctx context.Context, db *gorm.DB, model any, id uuid.UUID) error {
	result := db.WithContext(ctx).Delete(model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrForeignKeyViolated) {
			return e.ErrInUse
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}
