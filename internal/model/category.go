package model

import "time"

// Category is a named pipeline stage scoped to one tenant.
type Category struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	Name           string    `json:"name" gorm:"type:varchar(30);not null"`
	OrganisationID uint      `json:"organisation_id" gorm:"index;not null"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Relations
	Organisation UserProfile `json:"-" gorm:"foreignKey:OrganisationID"`
}
