package models

import "fmt"

// Role is the closed set of account roles. Only the types declared in this
// file implement it, so a type switch over Investor, Operator and Admin is
// exhaustive.
type Role interface {
	Name() string
	role()
}

type Investor struct{}
type Operator struct{}
type Admin struct{}

func (Investor) Name() string { return "investor" }
func (Operator) Name() string { return "operator" }
func (Admin) Name() string    { return "admin" }

func (Investor) role() {}
func (Operator) role() {}
func (Admin) role()    {}

const (
	RoleInvestor = "investor"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// ParseRole maps a stored role string to its variant.
func ParseRole(s string) (Role, error) {
	switch s {
	case RoleInvestor:
		return Investor{}, nil
	case RoleOperator:
		return Operator{}, nil
	case RoleAdmin:
		return Admin{}, nil
	}
	return nil, fmt.Errorf("unknown role %q", s)
}

// SelfServiceRole reports whether a role can be chosen at signup.
func SelfServiceRole(s string) bool {
	r, err := ParseRole(s)
	if err != nil {
		return false
	}
	switch r.(type) {
	case Investor, Operator:
		return true
	}
	return false
}
