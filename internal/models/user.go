package models

import "time"

const (
	RoleDonor     = "donor"
	RoleVolunteer = "volunteer"
)

type User struct {
	ID           uint64    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Phone        *string   `json:"phone,omitempty"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	ImpactScore  int       `json:"impact_score"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
