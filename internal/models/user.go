package models

import "gorm.io/gorm"

// User roles.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// User represents a registered account of the store.
type User struct {
	ID               string `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Username         string `json:"username" gorm:"uniqueIndex;type:varchar(100)" validate:"required,min=3,max=100"`
	Email            string `json:"email" gorm:"uniqueIndex;type:varchar(255)" validate:"required,email"`
	Password         string `gorm:"type:varchar(255)" validate:"required,min=6"` // No json tag for security
	Phone            string `json:"phone" gorm:"type:varchar(20)" validate:"omitempty,min=9,max=15"`
	Role             string `json:"role" gorm:"type:varchar(20);default:customer"`
	Verified         bool   `json:"verified" gorm:"default:false"`
	VerificationCode string `json:"-" gorm:"type:varchar(10)"`
	gorm.Model              // Embed gorm.Model for CreatedAt, UpdatedAt, DeletedAt
}

// UserSummary is the subset of User attached to order listings.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Summary returns the public projection of a user.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, Email: u.Email}
}
