package domain

import (
	"time"
)

// GORM models for the reference backend's quota store and transcript tables.
// The two usage tables mirror the remote store's split: one collection keyed
// by device fingerprint for anonymous subjects, one keyed by user id or email
// for identified subjects. Rows are created server-side on first send and
// never deleted by this subsystem.

// GuestUsage is the per-fingerprint counter for anonymous callers.
type GuestUsage struct {
	FingerprintID string    `json:"fingerprint_id" gorm:"type:varchar(128);primaryKey"`
	PromptCount   int       `json:"prompt_count"   gorm:"not null;default:0"`
	LastIP        string    `json:"-"              gorm:"type:varchar(64)"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for GuestUsage.
func (GuestUsage) TableName() string { return "guest_usage" }

// UserUsage is the counter for identified subjects. A row is keyed by user id
// once known; rows created through the email side channel before any sign-in
// carry the email with an empty UserID until the store matches one.
type UserUsage struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID      string    `json:"user_id"      gorm:"type:varchar(64);index"`
	Email       string    `json:"email"        gorm:"type:varchar(255);index"`
	PromptCount int       `json:"prompt_count" gorm:"not null;default:0"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for UserUsage.
func (UserUsage) TableName() string { return "user_usage" }

// ChatSession is one device conversation. A session created by a guest is
// claimed by a user on their first authenticated send.
type ChatSession struct {
	SessionID     string    `json:"session_id"     gorm:"type:char(36);primaryKey"`
	FingerprintID string    `json:"fingerprint_id" gorm:"type:varchar(128);index"`
	UserID        string    `json:"user_id"        gorm:"type:varchar(64);index"`
	Title         string    `json:"title"          gorm:"type:varchar(255);not null;default:'New Chat'"`
	EmailRecorded bool      `json:"-"              gorm:"not null;default:false"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for ChatSession.
func (ChatSession) TableName() string { return "chat_sessions" }

// StoredMessage is a persisted transcript row.
type StoredMessage struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	SessionID string    `json:"session_id" gorm:"type:char(36);not null;index:idx_session_msgs,priority:1"`
	Role      string    `json:"role"       gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_session_msgs,priority:2"`
}

// TableName returns the database table name for StoredMessage.
func (StoredMessage) TableName() string { return "chat_messages" }

// Receipt records the outcome of an accepted send, keyed by
// (session_id, client_message_id). Replays of the same client message id
// return the recorded reply without re-incrementing the counter.
type Receipt struct {
	ID              string    `gorm:"type:char(36);primaryKey"`
	SessionID       string    `gorm:"type:char(36);not null;uniqueIndex:ux_session_client_msg,priority:1"`
	ClientMessageID string    `gorm:"type:char(36);not null;uniqueIndex:ux_session_client_msg,priority:2"`
	Reply           string    `gorm:"type:text;not null"`
	Count           int       `gorm:"not null"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	ExpiresAt       time.Time `gorm:"index"`
}

// TableName returns the database table name for Receipt.
func (Receipt) TableName() string { return "receipts" }
