package enums

// ApprovalStatus is the admin gate an order passes before fulfillment starts.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// String implements fmt.Stringer.
func (a ApprovalStatus) String() string {
	return string(a)
}

// IsValid reports whether the value is a known ApprovalStatus.
func (a ApprovalStatus) IsValid() bool {
	switch a {
	case ApprovalStatusPending, ApprovalStatusApproved, ApprovalStatusRejected:
		return true
	default:
		return false
	}
}
