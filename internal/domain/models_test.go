package domain

import (
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	if (GuestUsage{}).TableName() != "guest_usage" {
		t.Fatalf("GuestUsage.TableName() = %q; want %q", (GuestUsage{}).TableName(), "guest_usage")
	}
	if (UserUsage{}).TableName() != "user_usage" {
		t.Fatalf("UserUsage.TableName() = %q; want %q", (UserUsage{}).TableName(), "user_usage")
	}
	if (ChatSession{}).TableName() != "chat_sessions" {
		t.Fatalf("ChatSession.TableName() = %q; want %q", (ChatSession{}).TableName(), "chat_sessions")
	}
	if (StoredMessage{}).TableName() != "chat_messages" {
		t.Fatalf("StoredMessage.TableName() = %q; want %q", (StoredMessage{}).TableName(), "chat_messages")
	}
	if (Receipt{}).TableName() != "receipts" {
		t.Fatalf("Receipt.TableName() = %q; want %q", (Receipt{}).TableName(), "receipts")
	}
}

func TestMigrations_Indexes(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&GuestUsage{}, &UserUsage{}, &ChatSession{}, &StoredMessage{}, &Receipt{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range []any{&GuestUsage{}, &UserUsage{}, &ChatSession{}, &StoredMessage{}, &Receipt{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	if !m.HasIndex(&StoredMessage{}, "idx_session_msgs") {
		t.Fatalf("expected index idx_session_msgs on chat_messages")
	}
	if !m.HasIndex(&Receipt{}, "ux_session_client_msg") {
		t.Fatalf("expected unique index ux_session_client_msg on receipts")
	}

	// The receipt unique index is what makes replays safe: a second insert of
	// the same (session_id, client_message_id) must fail.
	r1 := &Receipt{ID: "r1", SessionID: "s1", ClientMessageID: "m1", Reply: "hi", Count: 1}
	if err := db.Create(r1).Error; err != nil {
		t.Fatalf("insert receipt: %v", err)
	}
	r2 := &Receipt{ID: "r2", SessionID: "s1", ClientMessageID: "m1", Reply: "hi again", Count: 2}
	if err := db.Create(r2).Error; err == nil {
		t.Fatalf("expected unique violation for duplicate client_message_id")
	}
}
