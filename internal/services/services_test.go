package services

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lojf/formdesk/internal/audit"
	"github.com/lojf/formdesk/internal/cache"
	"github.com/lojf/formdesk/internal/db"
	"github.com/lojf/formdesk/internal/logger"
	"github.com/lojf/formdesk/internal/models"
)

var (
	ctx   = context.Background()
	admin = audit.Actor{ID: "admin-1", Request: audit.RequestContext{RequestID: "req-1"}}
)

// openTestDB returns an isolated in-file SQLite database in a temp directory.
func openTestDB(t *testing.T, params string) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + params
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, _ := gdb.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

type fixture struct {
	db    *gorm.DB
	cache *cache.Memory
	forms *Forms
	subs  *Submissions
}

func newFixture(t *testing.T) *fixture {
	return newFixtureDSN(t, "?_foreign_keys=on")
}

func newFixtureDSN(t *testing.T, params string) *fixture {
	t.Helper()
	gdb := openTestDB(t, params)
	c := cache.NewMemory()
	log := logger.Nop()
	sink := audit.NewDBSink(gdb)
	forms := NewForms(gdb, sink, c, time.Minute, log)
	return &fixture{db: gdb, cache: c, forms: forms, subs: NewSubmissions(gdb, forms, sink, log)}
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

// countryInput is the country/district form: district is only shown for
// UG and its options depend on the country.
func countryInput() FormInput {
	return FormInput{
		Title: "Apply Now",
		Fields: []FieldInput{
			{Name: "country", Label: "Country", Type: "select", Required: true, Options: []OptionInput{
				{Value: "UG", Label: "Uganda"}, {Value: "KE", Label: "Kenya"},
			}},
			{Name: "district", Label: "District", Type: "select", Required: true,
				Visibility: raw(`{"join":"all","conditions":[{"field":"country","operator":"equals","value":"UG"}]}`),
				OptionSource: raw(`{"source":"country","options":{"UG":[{"value":"Kampala","order":1},{"value":"Gulu","order":2}]}}`),
			},
			{Name: "email", Label: "Email", Type: "email", Required: true},
			{Name: "address", Label: "Address", Type: "compound", SubFields: []FieldInput{
				{Name: "street", Label: "Street", Type: "text", Required: true},
				{Name: "city", Label: "City", Type: "text"},
			}},
		},
	}
}

func mustCreate(t *testing.T, fx *fixture, in FormInput) *models.Form {
	t.Helper()
	form, warnings, err := fx.forms.Create(ctx, admin, in)
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	return form
}

func countRows(t *testing.T, gdb *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := gdb.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func activeCount(t *testing.T, gdb *gorm.DB) int64 {
	t.Helper()
	var n int64
	gdb.Model(&models.Form{}).Where("is_active = ?", true).Count(&n)
	return n
}
