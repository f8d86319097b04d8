package domain

import "time"

const (
	TypeBookingCreated        = "BookingCreated"
	TypeCancellationRequested = "CancellationRequested"
)

// BookingCreated starts the creation saga. ExpectedVersion is the inventory
// version the caller observed; the ledger rejects the lock if it moved.
type BookingCreated struct {
	BookingID       int64     `json:"bookingId"`
	UserID          int64     `json:"userId"`
	AccommodationID int64     `json:"accommodationId"`
	CheckIn         time.Time `json:"checkInDate"`
	CheckOut        time.Time `json:"checkOutDate"`
	TotalPrice      int64     `json:"totalPrice"`
	Phone           string    `json:"phoneNumber"`
	ExpectedVersion int64     `json:"expectedVersion"`
}

// CancellationRequested fans out to both compensating sides. RefundNeeded
// tells the payment service whether money actually moved.
type CancellationRequested struct {
	BookingID       int64     `json:"bookingId"`
	AccommodationID int64     `json:"accommodationId"`
	CheckIn         time.Time `json:"checkInDate"`
	CheckOut        time.Time `json:"checkOutDate"`
	PaymentID       string    `json:"paymentId"`
	RefundNeeded    bool      `json:"refundNeeded"`
}
