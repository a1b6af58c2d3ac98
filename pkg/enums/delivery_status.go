package enums

import "fmt"

// DeliveryStatus tracks the agent-side fulfillment sub-state of an order.
type DeliveryStatus string

const (
	DeliveryStatusUnassigned        DeliveryStatus = "unassigned"
	DeliveryStatusAssigned          DeliveryStatus = "assigned"
	DeliveryStatusAccepted          DeliveryStatus = "accepted"
	DeliveryStatusRejected          DeliveryStatus = "rejected"
	DeliveryStatusPickupCompleted   DeliveryStatus = "pickup_completed"
	DeliveryStatusLocationReached   DeliveryStatus = "location_reached"
	DeliveryStatusDeliveryCompleted DeliveryStatus = "delivery_completed"
)

var validDeliveryStatuses = []DeliveryStatus{
	DeliveryStatusUnassigned,
	DeliveryStatusAssigned,
	DeliveryStatusAccepted,
	DeliveryStatusRejected,
	DeliveryStatusPickupCompleted,
	DeliveryStatusLocationReached,
	DeliveryStatusDeliveryCompleted,
}

// deliveryTransitions is the closed forward-only transition table. Rejection
// and cancellation release ownership instead of advancing, so they are the
// only edges that point at a non-forward state.
var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryStatusUnassigned:      {DeliveryStatusAssigned},
	DeliveryStatusAssigned:        {DeliveryStatusAccepted, DeliveryStatusRejected, DeliveryStatusUnassigned},
	DeliveryStatusAccepted:        {DeliveryStatusPickupCompleted, DeliveryStatusUnassigned},
	DeliveryStatusPickupCompleted: {DeliveryStatusLocationReached, DeliveryStatusDeliveryCompleted, DeliveryStatusUnassigned},
	DeliveryStatusLocationReached: {DeliveryStatusDeliveryCompleted, DeliveryStatusUnassigned},
	DeliveryStatusRejected:        {DeliveryStatusAssigned},
}

// String implements fmt.Stringer.
func (d DeliveryStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DeliveryStatus.
func (d DeliveryStatus) IsValid() bool {
	for _, candidate := range validDeliveryStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the transition table allows d -> target.
func (d DeliveryStatus) CanTransitionTo(target DeliveryStatus) bool {
	for _, next := range deliveryTransitions[d] {
		if next == target {
			return true
		}
	}
	return false
}

// OwnsOrder reports whether an agent holds exclusive ownership in this state.
func (d DeliveryStatus) OwnsOrder() bool {
	switch d {
	case DeliveryStatusAssigned, DeliveryStatusAccepted, DeliveryStatusPickupCompleted, DeliveryStatusLocationReached:
		return true
	default:
		return false
	}
}

// ParseDeliveryStatus converts raw input into a DeliveryStatus.
func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	for _, candidate := range validDeliveryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery status %q", value)
}
