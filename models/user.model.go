package models

import (
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
	RoleSeller   = "seller"
)

// Address is used both as a user's saved address and as an order's shipping address
type Address struct {
	FullName   string `bson:"fullName,omitempty" json:"fullName,omitempty"`
	Phone      string `bson:"phone,omitempty" json:"phone,omitempty"`
	Street     string `bson:"street" json:"street"`
	City       string `bson:"city" json:"city"`
	State      string `bson:"state" json:"state"`
	PostalCode string `bson:"postalCode" json:"postalCode"`
	Country    string `bson:"country" json:"country"`
}

// ValidateForShipping checks the minimum an order needs to be delivered
func (a Address) ValidateForShipping() error {
	var missing []string
	if strings.TrimSpace(a.FullName) == "" {
		missing = append(missing, "fullName")
	}
	if strings.TrimSpace(a.Phone) == "" {
		missing = append(missing, "phone")
	}
	if strings.TrimSpace(a.Street) == "" {
		missing = append(missing, "street")
	}
	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}
	if len(missing) > 0 {
		return errors.New("shipping address is missing: " + strings.Join(missing, ", "))
	}
	return nil
}

// User represents an account in the system
type User struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name            string             `bson:"name" json:"name"`
	Email           string             `bson:"email" json:"email"`
	Password        string             `bson:"password,omitempty" json:"-"`
	Phone           string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Avatar          string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Role            string             `bson:"role" json:"role"`
	IsVerified      bool               `bson:"isVerified" json:"isVerified"`
	IsEmailVerified bool               `bson:"isEmailVerified" json:"isEmailVerified"`
	IsBlocked       bool               `bson:"isBlocked" json:"isBlocked"`
	GoogleID        string             `bson:"googleId,omitempty" json:"googleId,omitempty"`
	Address         *Address           `bson:"address,omitempty" json:"address,omitempty"`
	LastLogin       *time.Time         `bson:"lastLogin,omitempty" json:"lastLogin,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Validate enforces the document invariants. A password hash is only
// optional for accounts linked to a federated identity.
func (u *User) Validate() error {
	if strings.TrimSpace(u.Email) == "" {
		return errors.New("email is required")
	}
	if u.Password == "" && u.GoogleID == "" {
		return errors.New("password is required")
	}
	if !IsValidRole(u.Role) {
		return errors.New("invalid role")
	}
	return nil
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func IsValidRole(role string) bool {
	switch role {
	case RoleCustomer, RoleAdmin, RoleSeller:
		return true
	}
	return false
}

// NormalizeEmail lowercases and trims an address so lookups are case-insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
