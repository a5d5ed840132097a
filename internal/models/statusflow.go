package models

// BookingStatus enumerates booking workflow states. The casing is part of the
// public API contract and must not change.
type BookingStatus string

const (
	StatusCreated           BookingStatus = "CREATED"
	StatusAssigned          BookingStatus = "ASSIGNED"
	StatusAccepted          BookingStatus = "ACCEPTED"
	StatusReachedCustomer   BookingStatus = "REACHED_CUSTOMER"
	StatusVehiclePicked     BookingStatus = "VEHICLE_PICKED"
	StatusReachedMerchant   BookingStatus = "REACHED_MERCHANT"
	StatusVehicleAtMerchant BookingStatus = "VEHICLE_AT_MERCHANT"
	StatusServiceStarted    BookingStatus = "SERVICE_STARTED"
	StatusServiceCompleted  BookingStatus = "SERVICE_COMPLETED"
	StatusOutForDelivery    BookingStatus = "OUT_FOR_DELIVERY"
	StatusDelivered         BookingStatus = "DELIVERED"

	// Out-of-band states: never part of a flow sequence.
	StatusCancelled BookingStatus = "CANCELLED"
	StatusOnHold    BookingStatus = "ON_HOLD"
)

// pickupFlow is the ordered sequence for bookings where the vehicle is
// collected from the customer.
var pickupFlow = []BookingStatus{
	StatusCreated,
	StatusAssigned,
	StatusAccepted,
	StatusReachedCustomer,
	StatusVehiclePicked,
	StatusReachedMerchant,
	StatusVehicleAtMerchant,
	StatusServiceStarted,
	StatusServiceCompleted,
	StatusOutForDelivery,
	StatusDelivered,
}

// directFlow is the ordered sequence for drop-off bookings.
var directFlow = []BookingStatus{
	StatusCreated,
	StatusAssigned,
	StatusAccepted,
	StatusVehicleAtMerchant,
	StatusServiceStarted,
	StatusServiceCompleted,
	StatusDelivered,
}

var statusLabels = map[BookingStatus]string{
	StatusCreated:           "Booking Created",
	StatusAssigned:          "Merchant Assigned",
	StatusAccepted:          "Booking Accepted",
	StatusReachedCustomer:   "Reached Customer Location",
	StatusVehiclePicked:     "Vehicle Picked Up",
	StatusReachedMerchant:   "Reached Workshop",
	StatusVehicleAtMerchant: "Vehicle At Workshop",
	StatusServiceStarted:    "Service In Progress",
	StatusServiceCompleted:  "Service Completed",
	StatusOutForDelivery:    "Out For Delivery",
	StatusDelivered:         "Delivered",
	StatusCancelled:         "Cancelled",
	StatusOnHold:            "On Hold",
}

// FlowFor returns a copy of the ordered state sequence for the given path.
func FlowFor(pickupRequired bool) []BookingStatus {
	src := directFlow
	if pickupRequired {
		src = pickupFlow
	}
	flow := make([]BookingStatus, len(src))
	copy(flow, src)
	return flow
}

// ProgressIndex returns the position of the status within the active flow.
// Out-of-band states report false.
func ProgressIndex(status BookingStatus, pickupRequired bool) (int, bool) {
	flow := directFlow
	if pickupRequired {
		flow = pickupFlow
	}
	for i, s := range flow {
		if s == status {
			return i, true
		}
	}
	return 0, false
}

// NextStatus returns the state immediately following current in the active
// flow, or false when current is terminal or not part of the sequence.
func NextStatus(current BookingStatus, pickupRequired bool) (BookingStatus, bool) {
	flow := directFlow
	if pickupRequired {
		flow = pickupFlow
	}
	for i, s := range flow {
		if s != current {
			continue
		}
		if i+1 >= len(flow) {
			return "", false
		}
		return flow[i+1], true
	}
	return "", false
}

// StageCompleted reports whether the given stage lies strictly before the
// booking's current state within the same sequence.
func StageCompleted(stage, current BookingStatus, pickupRequired bool) bool {
	stageIdx, ok := ProgressIndex(stage, pickupRequired)
	if !ok {
		return false
	}
	currentIdx, ok := ProgressIndex(current, pickupRequired)
	if !ok {
		return false
	}
	return stageIdx < currentIdx
}

// IsOutOfBand reports whether the status sits outside both flow sequences.
func IsOutOfBand(status BookingStatus) bool {
	return status == StatusCancelled || status == StatusOnHold
}

// IsTerminal reports whether no further transitions are allowed.
func IsTerminal(status BookingStatus) bool {
	return status == StatusDelivered || status == StatusCancelled
}

// Label returns the human-readable name for a status.
func (s BookingStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// ParseStatus validates raw status input. Legacy spellings from older clients
// are normalized: "On Hold" maps to ON_HOLD and "COMPLETED" to
// SERVICE_COMPLETED.
func ParseStatus(raw string) (BookingStatus, bool) {
	switch raw {
	case "On Hold":
		return StatusOnHold, true
	case "COMPLETED":
		return StatusServiceCompleted, true
	}
	s := BookingStatus(raw)
	if _, ok := statusLabels[s]; !ok {
		return "", false
	}
	return s, true
}
