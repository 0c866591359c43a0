package models

import "time"

// User is a registered account. Passwords are only ever stored hashed.
type User struct {
	ID           uint      `gorm:"primaryKey"`
	Email        string    `gorm:"size:50;not null;uniqueIndex"`
	PasswordHash string    `gorm:"size:200"`
	CreatedAt    time.Time
	IsActive     bool      `gorm:"default:true"`
	Balances     []Balance `gorm:"constraint:OnDelete:CASCADE;"`
}

// UserProjection is the API view of a user. The view layer rebuilds its session
// identity from it.
type UserProjection struct {
	ID              uint   `json:"id"`
	Email           string `json:"email"`
	IsActive        bool   `json:"is_active"`
	IsAuthenticated bool   `json:"is_authenticated"`
}

// Projection returns the API view of u. A persisted user is always authenticated;
// anonymous visitors never have a User row.
func (u User) Projection() UserProjection {
	return UserProjection{
		ID:              u.ID,
		Email:           u.Email,
		IsActive:        u.IsActive,
		IsAuthenticated: u.ID != 0,
	}
}
