package model

import "time"

// Agent wraps a User account and binds it to exactly one tenant.
type Agent struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	UserID         uint      `json:"user_id" gorm:"uniqueIndex;not null"`
	OrganisationID uint      `json:"organisation_id" gorm:"index;not null"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Relations
	User         User        `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Organisation UserProfile `json:"-" gorm:"foreignKey:OrganisationID"`
}
