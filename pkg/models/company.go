package models

import "time"

type CompanyStatus string

const (
	CompanyStatusActive    CompanyStatus = "active"
	CompanyStatusPending   CompanyStatus = "pending"
	CompanyStatusInactive  CompanyStatus = "inactive"
	CompanyStatusSuspended CompanyStatus = "suspended"
)

func (s CompanyStatus) Valid() bool {
	switch s {
	case CompanyStatusActive, CompanyStatusPending, CompanyStatusInactive, CompanyStatusSuspended:
		return true
	}
	return false
}

// Company is a transport company competing for bookings.
// QueuePosition is nil until the company has been placed in the rotation.
type Company struct {
	ID             int64         `json:"id"`
	Name           string        `json:"name"`
	Status         CompanyStatus `json:"status"`
	QueuePosition  *int          `json:"queue_position"`
	LastAssignedAt *time.Time    `json:"last_assigned_at"`
	CreatedAt      time.Time     `json:"created_at"`
}

func (c *Company) IsActive() bool {
	return c != nil && c.Status == CompanyStatusActive
}

// HasValidPosition reports whether the company holds a usable rank.
func (c *Company) HasValidPosition() bool {
	return c.QueuePosition != nil && *c.QueuePosition > 0
}
