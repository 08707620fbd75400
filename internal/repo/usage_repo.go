// Package repo implements the data persistence layer for the quota store and
// transcript tables, backed by GORM. This file provides the usage counters:
// one table keyed by device fingerprint for anonymous subjects and one keyed
// by user id or email for identified subjects. Increments run inside a
// transaction so concurrent sends from the same subject serialize on the row.
package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luminahq/go-chat-gate/internal/domain"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// GuestCount returns the prompt count for a fingerprint, or 0 when the
// fingerprint has never been seen.
func GuestCount(ctx context.Context, db *gorm.DB, fingerprint string) (int, error) {
	var row domain.GuestUsage
	err := db.WithContext(ctx).Where("fingerprint_id = ?", fingerprint).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.PromptCount, nil
}

// IncrementGuest bumps the counter for a fingerprint, creating the row on
// first use, and returns the new count.
func IncrementGuest(ctx context.Context, db *gorm.DB, fingerprint, ip string) (int, error) {
	var count int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row domain.GuestUsage
		err := tx.Where("fingerprint_id = ?", fingerprint).First(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = domain.GuestUsage{FingerprintID: fingerprint, PromptCount: 1, LastIP: ip}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			row.PromptCount++
			row.LastIP = ip
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		}
		count = row.PromptCount
		return nil
	})
	return count, err
}

// FindUser locates an identified subject's row by user id first, then by
// email. Returns ErrNotFound when neither matches.
func FindUser(ctx context.Context, db *gorm.DB, userID, email string) (*domain.UserUsage, error) {
	var row domain.UserUsage
	if userID != "" {
		err := db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
		if err == nil {
			return &row, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if email != "" {
		err := db.WithContext(ctx).Where("email = ?", email).First(&row).Error
		if err == nil {
			return &row, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// EnsureUser returns the row for an identified subject, creating it when
// absent with the inherited count carried over from the caller's guest
// history. A row previously created through the email side channel adopts
// the user id the first time one is supplied.
func EnsureUser(ctx context.Context, db *gorm.DB, userID, email string, inherited int) (*domain.UserUsage, error) {
	row, err := FindUser(ctx, db, userID, email)
	if err == nil {
		if userID != "" && row.UserID == "" {
			row.UserID = userID
			if err := db.WithContext(ctx).Save(row).Error; err != nil {
				return nil, err
			}
		}
		return row, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	row = &domain.UserUsage{
		ID:          uuid.NewString(),
		UserID:      userID,
		Email:       strings.ToLower(strings.TrimSpace(email)),
		PromptCount: inherited,
	}
	if err := db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// IncrementUser bumps an identified subject's counter and returns the new
// count.
func IncrementUser(ctx context.Context, db *gorm.DB, id string) (int, error) {
	var count int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row domain.UserUsage
		if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
			return err
		}
		row.PromptCount++
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		count = row.PromptCount
		return nil
	})
	return count, err
}
