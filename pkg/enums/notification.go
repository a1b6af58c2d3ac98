package enums

// NotificationChannel is the audience a delivery event is fanned out to.
type NotificationChannel string

const (
	NotificationChannelBuyer  NotificationChannel = "buyer"
	NotificationChannelSeller NotificationChannel = "seller"
	NotificationChannelAdmin  NotificationChannel = "admin"
	NotificationChannelAgent  NotificationChannel = "agent"
)

// NotificationEvent names a delivery lifecycle event emitted to channels.
type NotificationEvent string

const (
	NotificationEventOrderAccepted      NotificationEvent = "delivery.order_accepted"
	NotificationEventOrderRejected      NotificationEvent = "delivery.order_rejected"
	NotificationEventOrderAssigned      NotificationEvent = "delivery.order_assigned"
	NotificationEventPickupCompleted    NotificationEvent = "delivery.pickup_completed"
	NotificationEventLocationReached    NotificationEvent = "delivery.location_reached"
	NotificationEventPaymentConfirmed   NotificationEvent = "delivery.payment_confirmed"
	NotificationEventDeliveryCompleted  NotificationEvent = "delivery.completed"
	NotificationEventOrderCancelled     NotificationEvent = "delivery.order_cancelled"
	NotificationEventReassignmentNeeded NotificationEvent = "delivery.reassignment_needed"
)

// String implements fmt.Stringer.
func (n NotificationChannel) String() string {
	return string(n)
}

// IsValid reports whether the channel is one of the known audiences.
func (n NotificationChannel) IsValid() bool {
	switch n {
	case NotificationChannelBuyer, NotificationChannelSeller, NotificationChannelAdmin, NotificationChannelAgent:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (n NotificationEvent) String() string {
	return string(n)
}

// IsValid reports whether the event is one of the known lifecycle events.
func (n NotificationEvent) IsValid() bool {
	switch n {
	case NotificationEventOrderAccepted,
		NotificationEventOrderRejected,
		NotificationEventOrderAssigned,
		NotificationEventPickupCompleted,
		NotificationEventLocationReached,
		NotificationEventPaymentConfirmed,
		NotificationEventDeliveryCompleted,
		NotificationEventOrderCancelled,
		NotificationEventReassignmentNeeded:
		return true
	}
	return false
}
