package services

import "DealRoom/internal/models"

// Viewer is the authenticated caller. A nil *Viewer is an anonymous request.
type Viewer struct {
	ID    uint
	Role  models.Role
	Email string
	Name  string
}

func (v *Viewer) IsAdmin() bool {
	if v == nil {
		return false
	}
	_, ok := v.Role.(models.Admin)
	return ok
}

func (v *Viewer) IsOperator() bool {
	if v == nil {
		return false
	}
	_, ok := v.Role.(models.Operator)
	return ok
}

func (v *Viewer) IsInvestor() bool {
	if v == nil {
		return false
	}
	_, ok := v.Role.(models.Investor)
	return ok
}

// ViewerFromProfile builds a Viewer, rejecting profiles with an unknown role.
func ViewerFromProfile(p *models.Profile) (*Viewer, error) {
	role, err := p.ParsedRole()
	if err != nil {
		return nil, Forbidden("Unrecognized role")
	}
	return &Viewer{ID: p.ID, Role: role, Email: p.Email, Name: p.FullName}, nil
}
