package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Profile struct {
	ID                 uint           `gorm:"primarykey" json:"id"`
	FullName           string         `gorm:"not null" json:"full_name"`
	Email              string         `gorm:"uniqueIndex;not null" json:"email"`
	Password           string         `gorm:"not null" json:"-"`
	Role               string         `gorm:"type:varchar(20);not null;default:'investor';index" json:"role"`
	Company            string         `json:"company,omitempty"`
	Bio                string         `gorm:"type:text" json:"bio,omitempty"`
	CheckSize          string         `json:"check_size,omitempty"`
	InvestmentTimeline string         `json:"investment_timeline,omitempty"`
	Categories         datatypes.JSON `json:"categories,omitempty"`
	Tags               datatypes.JSON `json:"tags,omitempty"`

	// Mirrors of the latest KYC submission and verification request.
	KYCStatus          string `gorm:"type:varchar(20);not null;default:'none'" json:"kyc_status"`
	VerificationStatus string `gorm:"type:varchar(20);not null;default:'none'" json:"verification_status"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Profile) TableName() string {
	return "profiles"
}

// BeforeCreate hook to set default role
func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.Role == "" {
		p.Role = RoleInvestor
	}
	if p.KYCStatus == "" {
		p.KYCStatus = "none"
	}
	if p.VerificationStatus == "" {
		p.VerificationStatus = "none"
	}
	return nil
}

// ParsedRole returns the closed role variant for the stored role string.
func (p *Profile) ParsedRole() (Role, error) {
	return ParseRole(p.Role)
}

// IsAdmin checks if profile has admin role
func (p *Profile) IsAdmin() bool {
	_, ok := mustRole(p.Role).(Admin)
	return ok
}

func mustRole(s string) Role {
	r, err := ParseRole(s)
	if err != nil {
		return nil
	}
	return r
}

// CategoryList decodes the JSON categories column.
func (p *Profile) CategoryList() []string {
	return decodeStrings(p.Categories)
}

// TagList decodes the JSON tags column.
func (p *Profile) TagList() []string {
	return decodeStrings(p.Tags)
}

// StringList encodes a string slice for a datatypes.JSON column.
func StringList(values []string) datatypes.JSON {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return datatypes.JSON(b)
}

func decodeStrings(raw datatypes.JSON) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return []string{}
	}
	return out
}
