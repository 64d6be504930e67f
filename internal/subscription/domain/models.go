// Package domain contains persistence models for user subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status represents lifecycle states for a subscription.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusCanceled Status = "CANCELED"
	StatusPastDue  Status = "PAST_DUE"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusCanceled, StatusPastDue:
		return true
	}
	return false
}

// Subscription binds a user to a plan.
type Subscription struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    string       `gorm:"type:text;not null;uniqueIndex:uidx_subscriptions_user_id"`
	PlanID    string       `gorm:"type:text;not null;default:FREE"`
	Status    Status       `gorm:"type:text;not null;default:ACTIVE"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }
