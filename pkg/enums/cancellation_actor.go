package enums

import "fmt"

// CancellationActor identifies which party cancelled an order.
type CancellationActor string

const (
	CancellationActorBuyer  CancellationActor = "buyer"
	CancellationActorSeller CancellationActor = "seller"
	CancellationActorAdmin  CancellationActor = "admin"
	CancellationActorAgent  CancellationActor = "delivery_agent"
)

var validCancellationActors = []CancellationActor{
	CancellationActorBuyer,
	CancellationActorSeller,
	CancellationActorAdmin,
	CancellationActorAgent,
}

// String implements fmt.Stringer.
func (c CancellationActor) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CancellationActor.
func (c CancellationActor) IsValid() bool {
	for _, candidate := range validCancellationActors {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCancellationActor converts raw input into a CancellationActor.
func ParseCancellationActor(value string) (CancellationActor, error) {
	for _, candidate := range validCancellationActors {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cancellation actor %q", value)
}
