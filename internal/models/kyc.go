package models

import "time"

type ReviewStatus string

const (
	ReviewNone     ReviewStatus = "none"
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewVerified ReviewStatus = "verified"
	ReviewRejected ReviewStatus = "rejected"
	ReviewExpired  ReviewStatus = "expired"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// NormalizeRiskLevel maps free input onto low/medium/high, defaulting to low.
func NormalizeRiskLevel(s string) RiskLevel {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh:
		return RiskLevel(s)
	}
	return RiskLow
}

// KYCSubmission is one identity review cycle for a user.
type KYCSubmission struct {
	ID               uint         `gorm:"primarykey" json:"id"`
	UserID           uint         `gorm:"not null;index" json:"user_id"`
	DocumentType     string       `gorm:"type:varchar(50);not null" json:"document_type"`
	DocumentURL      string       `gorm:"type:text" json:"document_url,omitempty"`
	DocumentPublicID string       `gorm:"type:text" json:"-"`
	Status           ReviewStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	RiskLevel        RiskLevel    `gorm:"type:varchar(10)" json:"risk_level,omitempty"`
	ReviewedBy       *uint        `gorm:"index" json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time   `json:"reviewed_at,omitempty"`
	RejectionReason  string       `gorm:"type:text" json:"rejection_reason,omitempty"`
	ExpiresAt        *time.Time   `gorm:"index" json:"expires_at,omitempty"`
	CreatedAt        time.Time    `json:"submitted_at"`
	UpdatedAt        time.Time    `json:"updated_at"`

	User *Profile `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (KYCSubmission) TableName() string {
	return "kyc_submissions"
}

// VerificationRequest is one accreditation review cycle for a user.
type VerificationRequest struct {
	ID               uint         `gorm:"primarykey" json:"id"`
	UserID           uint         `gorm:"not null;index" json:"user_id"`
	Method           string       `gorm:"type:varchar(50);not null" json:"method"`
	EvidenceURL      string       `gorm:"type:text" json:"evidence_url,omitempty"`
	EvidencePublicID string       `gorm:"type:text" json:"-"`
	Notes            string       `gorm:"type:text" json:"notes,omitempty"`
	Status           ReviewStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ReviewedBy       *uint        `gorm:"index" json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time   `json:"reviewed_at,omitempty"`
	RejectionReason  string       `gorm:"type:text" json:"rejection_reason,omitempty"`
	ExpiresAt        *time.Time   `gorm:"index" json:"expires_at,omitempty"`
	CreatedAt        time.Time    `json:"submitted_at"`
	UpdatedAt        time.Time    `json:"updated_at"`

	User *Profile `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (VerificationRequest) TableName() string {
	return "verification_requests"
}
