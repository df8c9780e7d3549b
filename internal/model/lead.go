package model

import "time"

// Lead source choices
const (
	SourceYouTube    = "YouTube"
	SourceYandex     = "Yandex"
	SourceNewsletter = "Newsletter"
)

// ValidSource reports whether s is one of the known lead sources.
func ValidSource(s string) bool {
	switch s {
	case SourceYouTube, SourceYandex, SourceNewsletter:
		return true
	}
	return false
}

// Lead is a prospective customer record owned by a tenant. The agent and
// category references are nullable: a lead may sit unassigned and
// uncategorized.
type Lead struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	FirstName      string    `json:"first_name" gorm:"type:varchar(20);not null"`
	LastName       string    `json:"last_name" gorm:"type:varchar(20);not null"`
	PhoneNumber    string    `json:"phone_number" gorm:"type:varchar(20)"`
	OrganisationID uint      `json:"organisation_id" gorm:"index;not null"`
	AgentID        *uint     `json:"agent_id" gorm:"index"`
	Phoned         bool      `json:"phoned" gorm:"default:false"`
	Source         string    `json:"source" gorm:"type:varchar(100)"`
	Company        string    `json:"company" gorm:"type:varchar(40)"`
	PhoneCompany   string    `json:"phone_company" gorm:"type:varchar(20)"`
	EmailCompany   string    `json:"email_company" gorm:"type:varchar(100);uniqueIndex"`
	AddressCompany string    `json:"address_company" gorm:"type:varchar(50)"`
	ProfilePicture string    `json:"profile_picture,omitempty" gorm:"type:varchar(255)"`
	SpecialFiles   string    `json:"special_files,omitempty" gorm:"type:varchar(255)"`
	CategoryID     *uint     `json:"category_id" gorm:"index"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Relations
	Organisation UserProfile `json:"-" gorm:"foreignKey:OrganisationID"`
	Agent        *Agent      `json:"agent,omitempty" gorm:"foreignKey:AgentID;constraint:OnDelete:SET NULL"`
	Category     *Category   `json:"category,omitempty" gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL"`
}
