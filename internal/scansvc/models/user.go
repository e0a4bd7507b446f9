package models

import (
	"time"
)

type Role string

const (
	RolePatient    Role = "patient"
	RoleDoctor     Role = "doctor"
	RolePharmacist Role = "pharmacist"
	RoleAdmin      Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RolePharmacist, RoleAdmin:
		return true
	}
	return false
}

// Staff roles may look at any patient's scans.
func (r Role) Staff() bool {
	return r == RoleDoctor || r == RolePharmacist || r == RoleAdmin
}

// User represents the users table in the database.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Password  string    `json:"-"` // bcrypt hash
	Role      Role      `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
