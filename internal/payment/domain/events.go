package domain

const (
	TypePaymentSuccess  = "PaymentSuccess"
	TypePaymentFailed   = "PaymentFailed"
	TypePaymentCanceled = "PaymentCanceled"
)

type PaymentSuccess struct {
	BookingID  int64  `json:"bookingId"`
	UserID     int64  `json:"userId"`
	SessionRef string `json:"sessionRef"`
}

type PaymentFailed struct {
	BookingID int64  `json:"bookingId"`
	UserID    int64  `json:"userId"`
	Reason    string `json:"reason"`
}

type PaymentCanceled struct {
	BookingID int64 `json:"bookingId"`
}
