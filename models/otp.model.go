package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	OtpPurposeLogin = "login"
	OtpPurposeReset = "reset"
)

// Otp is a single-use code keyed by email and purpose. Code holds a bcrypt
// hash, never the plaintext.
type Otp struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Email     string             `bson:"email" json:"email"`
	Code      string             `bson:"code" json:"-"`
	Purpose   string             `bson:"purpose" json:"purpose"`
	Attempts  int                `bson:"attempts" json:"-"`
	ExpiresAt time.Time          `bson:"expiresAt" json:"expiresAt"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

func (o *Otp) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}
