package models

import "time"

// Agent is an agency staff member who operates on schedules. Agents are the
// creator identities recorded on schedules for audit purposes.
type Agent struct {
	Base         `bson:",inline"`
	Name         string    `bson:"name" json:"name"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"password_hash" json:"-"`
	IsAdmin      bool      `bson:"is_admin" json:"is_admin"`
	Suspended    bool      `bson:"suspended" json:"suspended"`
	Deleted      bool      `bson:"deleted" json:"-"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}
