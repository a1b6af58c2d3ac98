package enums

import "fmt"

// CODMethod is how a collect-on-delivery payment was actually taken.
type CODMethod string

const (
	CODMethodCash CODMethod = "cash"
	CODMethodUPI  CODMethod = "upi"
)

var validCODMethods = []CODMethod{
	CODMethodCash,
	CODMethodUPI,
}

// String implements fmt.Stringer.
func (c CODMethod) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CODMethod.
func (c CODMethod) IsValid() bool {
	for _, candidate := range validCODMethods {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCODMethod converts raw input into a CODMethod.
func ParseCODMethod(value string) (CODMethod, error) {
	for _, candidate := range validCODMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cod method %q", value)
}
