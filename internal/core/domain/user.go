package domain

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

type Capability string

const (
	CapCreateListing   Capability = "listing.create"
	CapApproveListing  Capability = "listing.approve"
	CapPurchase        Capability = "order.purchase"
	CapConfirmDelivery Capability = "order.confirm_delivery"
	CapViewLedger      Capability = "ledger.read"
)

var roleCapabilities = map[Role][]Capability{
	RoleAdmin:  {CapApproveListing, CapViewLedger},
	RoleBuyer:  {CapPurchase},
	RoleSeller: {CapCreateListing, CapPurchase, CapConfirmDelivery},
}

func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID string
	Role   Role
}

func (p Principal) Can(c Capability) bool {
	for _, have := range roleCapabilities[p.Role] {
		if have == c {
			return true
		}
	}
	return false
}

// Require returns ErrNotAuthorized unless p holds every capability.
func (p Principal) Require(caps ...Capability) error {
	for _, c := range caps {
		if !p.Can(c) {
			return fmt.Errorf("%w: %s lacks %s", ErrNotAuthorized, p.Role, c)
		}
	}
	return nil
}

type Address struct {
	Label        string `json:"label,omitempty"`
	FullName     string `json:"fullName"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	Pincode      string `json:"pincode"`
	IsDefault    bool   `json:"isDefault,omitempty"`
}

func (a Address) Empty() bool {
	return a.AddressLine1 == "" && a.City == "" && a.Pincode == ""
}

// String renders the address on a single line for notifications.
func (a Address) String() string {
	if a.Empty() {
		return "Address not provided"
	}
	parts := make([]string, 0, 6)
	for _, s := range []string{a.FullName, a.AddressLine1, a.AddressLine2, a.City, a.State} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	out := strings.Join(parts, ", ")
	if a.Pincode != "" {
		out += " - " + a.Pincode
	}
	return out
}

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      Role      `json:"role"`
	Addresses []Address `json:"addresses"`
}

// DefaultAddress returns the address flagged default, else the first one.
func (u User) DefaultAddress() (Address, bool) {
	for _, a := range u.Addresses {
		if a.IsDefault {
			return a, true
		}
	}
	if len(u.Addresses) > 0 {
		return u.Addresses[0], true
	}
	return Address{}, false
}

// Contact is the subset of a user shared with a counterparty of an order.
type Contact struct {
	UserID  string  `json:"userId"`
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Phone   string  `json:"phone"`
	Address Address `json:"address"`
}

func (u User) Contact() Contact {
	addr, _ := u.DefaultAddress()
	return Contact{UserID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone, Address: addr}
}
