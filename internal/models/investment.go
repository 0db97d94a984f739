package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CommitmentStatus string
type FundingStatus string

const (
	CommitmentDraft     CommitmentStatus = "draft"
	CommitmentCommitted CommitmentStatus = "committed"
	CommitmentFunded    CommitmentStatus = "funded"
	CommitmentCompleted CommitmentStatus = "completed"
	CommitmentCancelled CommitmentStatus = "cancelled"
)

const (
	FundingNone           FundingStatus = "none"
	FundingPendingPayment FundingStatus = "pending_payment"
	FundingFunded         FundingStatus = "funded"
)

// CountedStatuses are the commitment states included in investment totals.
var CountedStatuses = []CommitmentStatus{CommitmentCommitted, CommitmentFunded, CommitmentCompleted}

var commitmentTransitions = map[CommitmentStatus][]CommitmentStatus{
	CommitmentDraft:     {CommitmentCommitted, CommitmentCancelled},
	CommitmentCommitted: {CommitmentFunded, CommitmentCancelled},
	CommitmentFunded:    {CommitmentCompleted, CommitmentCancelled},
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s CommitmentStatus) CanTransitionTo(next CommitmentStatus) bool {
	for _, allowed := range commitmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s CommitmentStatus) Terminal() bool {
	return len(commitmentTransitions[s]) == 0
}

type InvestmentCommitment struct {
	ID                  uint             `gorm:"primarykey" json:"id"`
	InvestorID          uint             `gorm:"not null;index" json:"investor_id"`
	DealID              uint             `gorm:"not null;index" json:"deal_id"`
	Amount              decimal.Decimal  `gorm:"type:numeric(18,2);not null" json:"amount"`
	Status              CommitmentStatus `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	FundingStatus       FundingStatus    `gorm:"type:varchar(20);not null;default:'none'" json:"funding_status"`
	EscrowTransactionID *uint            `gorm:"index" json:"escrow_transaction_id,omitempty"`
	Notes               string           `gorm:"type:text" json:"notes,omitempty"`
	CommittedAt         *time.Time       `json:"committed_at,omitempty"`
	FundedAt            *time.Time       `json:"funded_at,omitempty"`
	CompletedAt         *time.Time       `json:"completed_at,omitempty"`
	CancelledAt         *time.Time       `json:"cancelled_at,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`

	Investor *Profile `gorm:"foreignKey:InvestorID" json:"investor,omitempty"`
	Deal     *Deal    `gorm:"foreignKey:DealID" json:"deal,omitempty"`
}

func (InvestmentCommitment) TableName() string {
	return "investment_commitments"
}

// MinorUnits converts a major-currency amount to integer minor units,
// rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromMinorUnits is the inverse of MinorUnits.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
