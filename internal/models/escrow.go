package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EscrowType string
type EscrowStatus string
type PaymentStatus string

const (
	EscrowDeposit EscrowType = "deposit"
	EscrowRefund  EscrowType = "refund"
)

const (
	EscrowOpen              EscrowStatus = "open"
	EscrowHeld              EscrowStatus = "held"
	EscrowPartiallyRefunded EscrowStatus = "partially_refunded"
	EscrowRefunded          EscrowStatus = "refunded"
	EscrowFailed            EscrowStatus = "failed"
)

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// EscrowTransaction records one provider-mediated money movement for a
// commitment. PaymentStatus and the refund fields are written only by the
// payment confirmation handler.
type EscrowTransaction struct {
	ID              uint             `gorm:"primarykey" json:"id"`
	CommitmentID    uint             `gorm:"not null;index" json:"commitment_id"`
	InvestorID      uint             `gorm:"not null;index" json:"investor_id"`
	Type            EscrowType       `gorm:"type:varchar(20);not null;default:'deposit'" json:"type"`
	Amount          decimal.Decimal  `gorm:"type:numeric(18,2);not null" json:"amount"`
	Currency        string           `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	Status          EscrowStatus     `gorm:"type:varchar(20);not null;default:'open'" json:"status"`
	PaymentStatus   PaymentStatus    `gorm:"type:varchar(20);not null;default:'pending';index" json:"payment_status"`
	PaymentIntentID string           `gorm:"index" json:"payment_intent_id,omitempty"`
	ClientSecret    string           `gorm:"type:text" json:"-"`
	RefundID        *string          `gorm:"uniqueIndex" json:"refund_id,omitempty"`
	RefundedAt      *time.Time       `json:"refunded_at,omitempty"`
	RefundAmount    *decimal.Decimal `gorm:"type:numeric(18,2)" json:"refund_amount,omitempty"`
	FailureMessage  string           `gorm:"type:text" json:"failure_message,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`

	Commitment *InvestmentCommitment `gorm:"foreignKey:CommitmentID" json:"commitment,omitempty"`
}

func (EscrowTransaction) TableName() string {
	return "escrow_transactions"
}

// Refundable is the amount still available to refund.
func (e *EscrowTransaction) Refundable() decimal.Decimal {
	if e.RefundAmount == nil {
		return e.Amount
	}
	left := e.Amount.Sub(*e.RefundAmount)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}
