package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lojf/formdesk/internal/logger"
	"github.com/lojf/formdesk/internal/models"
)

var conn *gorm.DB

// Init opens the configured database, migrates it and keeps the handle for
// Conn.
func Init(driver, dsn string, log *logger.Logger) error {
	c, err := Open(driver, dsn)
	if err != nil {
		return err
	}
	conn = c
	log.Info("database ready", "driver", driver)
	return nil
}

func Conn() *gorm.DB {
	return conn
}

// Open connects to sqlite or postgres and runs Migrate.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}

	var (
		c   *gorm.DB
		err error
	)
	switch driver {
	case "sqlite", "":
		c, err = gorm.Open(sqlite.Open(dsn), cfg)
	case "postgres":
		c, err = gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := c.DB()
	if err != nil {
		return nil, err
	}
	if c.Dialector.Name() == "sqlite" {
		// SQLite works best with a single writer; this also serialises the
		// single-active form transactions.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
	}

	if err := Migrate(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Migrate creates the tables and the indexes GORM does not derive from
// struct tags.
func Migrate(c *gorm.DB) error {
	if err := c.AutoMigrate(
		&models.Form{},
		&models.FormField{},
		&models.FieldOption{},
		&models.FormSubmission{},
		&models.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	for _, stmt := range []string{
		// at most one active form
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_forms_single_active ON forms(is_active) WHERE is_active",
		"CREATE INDEX IF NOT EXISTS idx_fields_form_position ON form_fields(form_id, position)",
		"CREATE INDEX IF NOT EXISTS idx_options_field_position ON field_options(field_id, position)",
		"CREATE INDEX IF NOT EXISTS idx_submissions_form_status ON form_submissions(form_id, status)",
	} {
		if err := c.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
