package model

import (
	"regexp"
	"time"
)

// User represents an account identity. Role flags mirror the account's
// function: organisors own a tenant (UserProfile), agents are wrapped by
// an Agent row belonging to someone else's tenant.
type User struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Username    string    `json:"username" gorm:"type:varchar(100);uniqueIndex"`
	FirstName   string    `json:"first_name" gorm:"type:varchar(50)"`
	LastName    string    `json:"last_name" gorm:"type:varchar(50)"`
	Email       string    `json:"email" gorm:"type:varchar(100);uniqueIndex"`
	PhoneNumber string    `json:"phone_number" gorm:"type:varchar(20)"`
	Password    string    `json:"-" gorm:"type:varchar(255)"`
	IsOrganisor bool      `json:"is_organisor"`
	IsAgent     bool      `json:"is_agent"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var phoneRe = regexp.MustCompile(`^\+?[0-9][0-9 ()-]{5,18}$`)

// ValidPhone reports whether s looks like a phone number. Empty is
// allowed; phone fields are optional throughout.
func ValidPhone(s string) bool {
	if s == "" {
		return true
	}
	return phoneRe.MatchString(s)
}
