package domain

const (
	TypeInventoryReserved          = "InventoryReserved"
	TypeInventoryReservationFailed = "InventoryReservationFailed"
	TypeDatesUnlocked              = "DatesUnlocked"
)

// InventoryReserved hands the saga to the payment service; amount and phone
// ride along so it needs no callback to the booking store.
type InventoryReserved struct {
	BookingID  int64  `json:"bookingId"`
	UserID     int64  `json:"userId"`
	TotalPrice int64  `json:"totalPrice"`
	Phone      string `json:"phoneNumber"`
}

type InventoryReservationFailed struct {
	BookingID int64  `json:"bookingId"`
	UserID    int64  `json:"userId"`
	Reason    string `json:"reason"`
}

type DatesUnlocked struct {
	BookingID int64 `json:"bookingId"`
}
