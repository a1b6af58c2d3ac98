package enums

// QRIntentStatus tracks the gateway-side payment intent for a COD order.
type QRIntentStatus string

const (
	QRIntentStatusNone      QRIntentStatus = ""
	QRIntentStatusCreated   QRIntentStatus = "created"
	QRIntentStatusGenerated QRIntentStatus = "generated"
	QRIntentStatusPaid      QRIntentStatus = "paid"
	QRIntentStatusExpired   QRIntentStatus = "expired"
)

// String implements fmt.Stringer.
func (q QRIntentStatus) String() string {
	return string(q)
}

// IsLive reports whether the intent can still receive a settlement.
func (q QRIntentStatus) IsLive() bool {
	return q == QRIntentStatusCreated || q == QRIntentStatusGenerated
}
