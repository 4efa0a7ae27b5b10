package orders

type Status string

const (
	StatusOffered    Status = "OFFERED"
	StatusDenied     Status = "DENIED"
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusAccepted   Status = "ACCEPTED"
	StatusCompleted  Status = "COMPLETED"
)

// available: product stays (or becomes) purchasable.
// sold: product is held by the order.
var (
	availableSet = map[Status]bool{StatusOffered: true, StatusDenied: true, StatusPending: true}
	soldSet      = map[Status]bool{StatusProcessing: true, StatusAccepted: true, StatusCompleted: true}
)

func (s Status) Valid() bool { return availableSet[s] || soldSet[s] }

// KeepsAvailable reports whether the product must be available while an order is in s.
func (s Status) KeepsAvailable() bool { return availableSet[s] }

// HoldsProduct reports whether an order in s owns the product's sale.
func (s Status) HoldsProduct() bool { return soldSet[s] }

// Terminal statuses accept no further changes.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusDenied }
