// Package domain contains core types for the credential service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents an account that can hold subscriptions.
type User struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	Name             string       `gorm:"type:text;not null"`
	Email            string       `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash     string       `gorm:"column:password_hash;type:text;not null"`
	Role             Role         `gorm:"type:text;not null;default:user"`
	RefreshTokenHash *string      `gorm:"column:refresh_token_hash;type:text"`
	CreatedAt        time.Time    `gorm:"not null"`
	UpdatedAt        time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Identity is what every authenticated request carries downstream.
type Identity struct {
	UserID snowflake.ID
	Role   Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
