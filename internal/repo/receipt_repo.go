// Package repo implements the data persistence layer for the quota store and
// transcript tables, backed by GORM. This file provides repository helpers
// for the Receipt model used to implement safe-retry semantics for the
// conversation endpoint: a replayed client message id returns the recorded
// reply without re-incrementing the counter.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luminahq/go-chat-gate/internal/domain"
)

// ErrDuplicate indicates that a receipt already exists for the given
// (session_id, client_message_id) tuple.
var ErrDuplicate = errors.New("duplicate")

// GetReceipt returns a non-expired receipt or ErrNotFound.
func GetReceipt(ctx context.Context, db *gorm.DB, sessionID, clientMessageID string, now time.Time) (*domain.Receipt, error) {
	if strings.TrimSpace(clientMessageID) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Receipt
	err := db.WithContext(ctx).
		Where("session_id = ? AND client_message_id = ? AND expires_at > ?", sessionID, clientMessageID, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &rec, err
}

// CreateReceipt inserts a receipt and returns ErrDuplicate on unique violation.
func CreateReceipt(ctx context.Context, db *gorm.DB, sessionID, clientMessageID, reply string, count int, ttl time.Duration) (*domain.Receipt, error) {
	now := time.Now().UTC()
	rec := &domain.Receipt{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		ClientMessageID: clientMessageID,
		Reply:           reply,
		Count:           count,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}
