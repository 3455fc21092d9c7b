package audit

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lojf/formdesk/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := gdb.AutoMigrate(&models.AuditLog{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return gdb
}

func TestDBSinkRecord(t *testing.T) {
	gdb := openTestDB(t)
	sink := NewDBSink(gdb)
	ctx := context.Background()

	actor := Actor{ID: "admin-1", Request: RequestContext{RequestID: "req-9", IPAddress: "10.1.1.1", UserAgent: "curl"}}
	if err := sink.Record(ctx, Entry{Actor: actor, Action: "form.create", Entity: "form", EntityID: 3,
		Detail: map[string]any{"slug": "apply"}}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := sink.Record(ctx, Entry{Actor: actor, Action: "form.update", Entity: "form", EntityID: 3}); err != nil {
		t.Fatalf("record: %v", err)
	}

	rows, err := sink.List(ctx, "form", 3, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Action != "form.update" {
		t.Errorf("newest first: got %q", rows[0].Action)
	}
	first := rows[1]
	if first.Actor != "admin-1" || first.RequestID != "req-9" || first.IPAddress != "10.1.1.1" {
		t.Errorf("actor metadata not stored: %+v", first)
	}
	var detail map[string]any
	if err := json.Unmarshal(first.Detail, &detail); err != nil || detail["slug"] != "apply" {
		t.Errorf("detail = %s (%v)", first.Detail, err)
	}
}
