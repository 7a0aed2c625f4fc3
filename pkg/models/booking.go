package models

import "time"

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Dispatchable reports whether a booking in this status may still receive an assignment.
func (s BookingStatus) Dispatchable() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

type Booking struct {
	ID            int64         `json:"id"`
	ReferenceCode string        `json:"reference_code"`
	Origin        string        `json:"origin"`
	Destination   string        `json:"destination"`
	TravelDate    time.Time     `json:"travel_date"`
	ReturnDate    *time.Time    `json:"return_date"`
	Status        BookingStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
}
