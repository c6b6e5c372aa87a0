package domain

type AvailabilityStatus string

const (
	AvailabilityAvailable AvailabilityStatus = "available"
	AvailabilityBooked    AvailabilityStatus = "booked"
)

// Equipment is a rentable item. AvailabilityStatus is derived from the booking ledger
// and is only ever written by the scheduler.
type Equipment struct {
	ID                 int64              `json:"id"`
	Name               string             `json:"name"`
	BasePrice          float64            `json:"base_price"`
	AvailabilityStatus AvailabilityStatus `json:"availability_status"`
}

type Customer struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Segment string `json:"segment"` // e.g. "corporate", "government"
}
