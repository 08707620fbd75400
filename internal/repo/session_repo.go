// Package repo implements the data persistence layer for the quota store and
// transcript tables, backed by GORM. This file provides repository helpers
// for chat sessions and their stored messages. Sessions are created by
// guests and claimed by a user on their first authenticated send; claiming
// never overwrites an existing owner.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luminahq/go-chat-gate/internal/domain"
)

// GetSession fetches a session by id or returns ErrNotFound.
func GetSession(ctx context.Context, db *gorm.DB, sessionID string) (*domain.ChatSession, error) {
	var row domain.ChatSession
	err := db.WithContext(ctx).Where("session_id = ?", sessionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// EnsureSession returns the session row, creating it on first contact.
func EnsureSession(ctx context.Context, db *gorm.DB, sessionID, fingerprint string) (*domain.ChatSession, error) {
	row, err := GetSession(ctx, db, sessionID)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	row = &domain.ChatSession{SessionID: sessionID, FingerprintID: fingerprint}
	if err := db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// ClaimSession assigns a user to a previously guest-owned session. A session
// that already has an owner is left untouched.
func ClaimSession(ctx context.Context, db *gorm.DB, sessionID, userID string) error {
	return db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("session_id = ? AND (user_id = '' OR user_id IS NULL)", sessionID).
		Update("user_id", userID).Error
}

// UpdateSessionTitle replaces the session title.
func UpdateSessionTitle(ctx context.Context, db *gorm.DB, sessionID, title string) error {
	return db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("session_id = ?", sessionID).
		Update("title", title).Error
}

// MarkEmailRecorded flags the session as having durably captured an email.
func MarkEmailRecorded(ctx context.Context, db *gorm.DB, sessionID string) error {
	return db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("session_id = ?", sessionID).
		Update("email_recorded", true).Error
}

// AppendMessage persists one transcript row.
func AppendMessage(ctx context.Context, db *gorm.DB, sessionID, role, content string) (*domain.StoredMessage, error) {
	row := &domain.StoredMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// ListMessages returns a session's transcript in append order.
func ListMessages(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.StoredMessage, error) {
	var rows []domain.StoredMessage
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}
