package models

import "time"

type AssignmentStatus string

const (
	AssignmentStatusPending          AssignmentStatus = "pending"
	AssignmentStatusAssignedToDriver AssignmentStatus = "assigned_to_driver"
	AssignmentStatusInProgress       AssignmentStatus = "in_progress"
	AssignmentStatusCompleted        AssignmentStatus = "completed"
	AssignmentStatusCancelled        AssignmentStatus = "cancelled"
)

// AssignmentSource tells whether the company came from the rotation or an operator.
type AssignmentSource string

const (
	AssignmentSourceAuto   AssignmentSource = "auto"
	AssignmentSourceManual AssignmentSource = "manual"
)

// Assignment binds one booking to one company. BookingID is unique.
type Assignment struct {
	ID          int64            `json:"id"`
	BookingID   int64            `json:"booking_id"`
	CompanyID   int64            `json:"company_id"`
	Origin      string           `json:"origin"`
	Destination string           `json:"destination"`
	PickupAt    time.Time        `json:"pickup_at"`
	DeliveryAt  *time.Time       `json:"delivery_at"`
	Status      AssignmentStatus `json:"status"`
	Source      AssignmentSource `json:"source"`
	CreatedAt   time.Time        `json:"created_at"`
}

// NewAssignment copies the trip fields from the booking.
func NewAssignment(b *Booking, companyID int64, source AssignmentSource) *Assignment {
	a := &Assignment{
		BookingID:   b.ID,
		CompanyID:   companyID,
		Origin:      b.Origin,
		Destination: b.Destination,
		PickupAt:    b.TravelDate,
		Status:      AssignmentStatusPending,
		Source:      source,
	}
	if b.ReturnDate != nil {
		d := *b.ReturnDate
		a.DeliveryAt = &d
	}
	return a
}
