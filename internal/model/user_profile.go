package model

import "time"

// UserProfile is the tenant root: every tenant-owned entity (Agent, Lead,
// Category) hangs off one of these. Created in the same transaction as its
// User at signup.
type UserProfile struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
