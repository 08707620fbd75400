// Package localstate persists the small amount of durable per-device state
// the gate depends on: the conversation session id, an optionally captured
// email, and the user-editable system instruction. It is pure storage with a
// load/save contract; no business logic lives here.
//
// State is kept in a SQLite key-value table so it survives restarts the way
// the browser original survived reloads. Values are created on first load if
// absent and durable thereafter.
package localstate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Durable keys. KeySessionID is created once per device and never regenerated
// on identity change; KeyCapturedEmail lives until sign-out;
// KeyEmailRecorded holds the email the backend has durably recorded for this
// session, so the dispatcher can stop resending it.
const (
	KeySessionID         = "chat_session_id"
	KeyCapturedEmail     = "guest_email"
	KeyEmailRecorded     = "email_recorded"
	KeySystemInstruction = "system_instruction"
)

// Setting is one durable key-value row.
type Setting struct {
	Key       string    `gorm:"type:varchar(64);primaryKey"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName returns the database table name for Setting.
func (Setting) TableName() string { return "settings" }

// Store reads and writes durable key-value state on the caller's device.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the state database at path and migrates the schema.
func Open(path string) (*Store, error) {
	// Fail early if the parent directory does not exist.
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	return NewStore(db)
}

// NewStore wraps an already-open GORM handle (tests use an in-memory one).
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Setting{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Get returns the value for key, or "" when the key has never been set.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var row Setting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.Value, nil
}

// Set upserts the value for key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	row := Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	res := s.db.WithContext(ctx).
		Model(&Setting{}).
		Where("key = ?", key).
		Updates(map[string]any{"value": value, "updated_at": row.UpdatedAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.db.WithContext(ctx).Create(&row).Error
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&Setting{}).Error
}

// SessionID returns the device's stable session id, creating it on first use.
// The id persists across restarts and identity changes.
func (s *Store) SessionID(ctx context.Context) (string, error) {
	v, err := s.Get(ctx, KeySessionID)
	if err != nil {
		return "", err
	}
	if v != "" {
		return v, nil
	}
	v = uuid.NewString()
	if err := s.Set(ctx, KeySessionID, v); err != nil {
		return "", err
	}
	return v, nil
}

// CapturedEmail returns the email captured while anonymous, if any.
func (s *Store) CapturedEmail(ctx context.Context) (string, error) {
	return s.Get(ctx, KeyCapturedEmail)
}

// SetCapturedEmail persists the captured email.
func (s *Store) SetCapturedEmail(ctx context.Context, email string) error {
	return s.Set(ctx, KeyCapturedEmail, email)
}

// ClearCapturedEmail removes the captured email and its recorded marker.
// Called on sign-out.
func (s *Store) ClearCapturedEmail(ctx context.Context) error {
	if err := s.Delete(ctx, KeyCapturedEmail); err != nil {
		return err
	}
	return s.Delete(ctx, KeyEmailRecorded)
}

// RecordedEmail returns the email the backend has durably recorded for this
// session, or "" when none has been confirmed yet.
func (s *Store) RecordedEmail(ctx context.Context) (string, error) {
	return s.Get(ctx, KeyEmailRecorded)
}

// SetRecordedEmail marks email as durably recorded server-side, so subsequent
// sends may omit it from the wire.
func (s *Store) SetRecordedEmail(ctx context.Context, email string) error {
	return s.Set(ctx, KeyEmailRecorded, email)
}

// SystemInstruction returns the user-editable system instruction text.
func (s *Store) SystemInstruction(ctx context.Context) (string, error) {
	return s.Get(ctx, KeySystemInstruction)
}

// SetSystemInstruction persists the system instruction text.
func (s *Store) SetSystemInstruction(ctx context.Context, text string) error {
	return s.Set(ctx, KeySystemInstruction, text)
}
