package localstate

import (
	"context"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:localstate_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestGetSet_Roundtrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if v, err := s.Get(ctx, "missing"); err != nil || v != "" {
		t.Fatalf("Get(missing) = (%q, %v); want empty, nil", v, err)
	}
	if err := s.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if v, _ := s.Get(ctx, "k"); v != "v2" {
		t.Fatalf("Get = %q; want v2", v)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if v, _ := s.Get(ctx, "k"); v != "" {
		t.Fatalf("after delete Get = %q; want empty", v)
	}
}

func TestSessionID_CreatedOnceAndStable(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	first, err := s.SessionID(ctx)
	if err != nil {
		t.Fatalf("session id: %v", err)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Fatalf("session id %q is not a UUID: %v", first, err)
	}
	second, err := s.SessionID(ctx)
	if err != nil {
		t.Fatalf("session id again: %v", err)
	}
	if first != second {
		t.Fatalf("session id must be stable: %q vs %q", first, second)
	}
}

func TestCapturedEmail_Lifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.SetCapturedEmail(ctx, "a@b.c"); err != nil {
		t.Fatalf("set email: %v", err)
	}
	if err := s.SetRecordedEmail(ctx, "a@b.c"); err != nil {
		t.Fatalf("set recorded: %v", err)
	}
	if v, _ := s.CapturedEmail(ctx); v != "a@b.c" {
		t.Fatalf("captured = %q", v)
	}
	if v, _ := s.RecordedEmail(ctx); v != "a@b.c" {
		t.Fatalf("recorded = %q", v)
	}

	// Sign-out clears both the email and the recorded marker.
	if err := s.ClearCapturedEmail(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if v, _ := s.CapturedEmail(ctx); v != "" {
		t.Fatalf("captured after clear = %q; want empty", v)
	}
	if v, _ := s.RecordedEmail(ctx); v != "" {
		t.Fatalf("recorded after clear = %q; want empty", v)
	}
}

func TestSystemInstruction_Durable(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.SetSystemInstruction(ctx, "answer in haiku"); err != nil {
		t.Fatalf("set instruction: %v", err)
	}
	if v, _ := s.SystemInstruction(ctx); v != "answer in haiku" {
		t.Fatalf("instruction = %q", v)
	}
}
