package model

import "time"

// Roles accepted at signup.
const (
	RoleCustomer     = "customer"
	RolePharmacist   = "pharmacist"
	RolePractitioner = "practitioner"
)

// User is an API account. PasswordDigest holds a bcrypt hash, never the password.
type User struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	Username       string    `gorm:"size:50;not null;uniqueIndex" json:"username"`
	Email          string    `gorm:"size:254;not null;uniqueIndex" json:"email"`
	PasswordDigest string    `gorm:"size:60;not null" json:"-"`
	Role           string    `gorm:"size:20;not null;default:customer" json:"role"`
	CreatedDate    time.Time `gorm:"column:created_date;autoCreateTime" json:"created_date"`
}

func (User) TableName() string { return "users" }
