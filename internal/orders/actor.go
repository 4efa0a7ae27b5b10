package orders

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleVendor Role = "vendor"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleBuyer, RoleVendor:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
}

// Actor is an identity already resolved by the caller, asserted in one role.
type Actor struct {
	ID   string
	Role Role
}

// Action is a role-tagged update intent: BuyerAction or VendorAction.
type Action interface {
	role() Role
}

// BuyerAction amends the offered amount. A nil Amount keeps the current one
// but still recomputes the status against the product price.
type BuyerAction struct {
	Amount *decimal.Decimal
}

// VendorAction sets the status directly.
type VendorAction struct {
	Status Status
}

func (BuyerAction) role() Role  { return RoleBuyer }
func (VendorAction) role() Role { return RoleVendor }
