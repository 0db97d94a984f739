package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DealStatus string

const (
	DealPending  DealStatus = "pending"
	DealActive   DealStatus = "active"
	DealInactive DealStatus = "inactive"
)

func (s DealStatus) Valid() bool {
	switch s {
	case DealPending, DealActive, DealInactive:
		return true
	}
	return false
}

type Deal struct {
	ID               uint            `gorm:"primarykey" json:"id"`
	Title            string          `gorm:"not null" json:"title"`
	Category         string          `gorm:"type:varchar(100);index" json:"category"`
	Description      string          `gorm:"type:text" json:"description,omitempty"`
	Status           DealStatus      `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	OperatorID       uint            `gorm:"not null;index" json:"operator_id"`
	MinimumCheckSize string          `json:"minimum_check_size,omitempty"`
	TargetRaise      decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"target_raise"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	ActivatedAt      *time.Time      `json:"activated_at,omitempty"`

	Operator *Profile `gorm:"foreignKey:OperatorID" json:"operator,omitempty"`
}

func (Deal) TableName() string {
	return "deals"
}

// MinimumCheckAmount is the parsed minimum check size, zero when unset or
// unparseable.
func (d *Deal) MinimumCheckAmount() decimal.Decimal {
	v, ok := ParseCheckSize(d.MinimumCheckSize)
	if !ok {
		return decimal.Zero
	}
	return v
}

// ParseCheckSize reads free-text amounts such as "$25K", "25,000",
// "1.5M" or "$100k+" into a number. Ranges ("25k-50k") use the lower bound.
func ParseCheckSize(text string) (decimal.Decimal, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return decimal.Zero, false
	}
	if i := strings.IndexAny(s, "-–"); i > 0 {
		s = s[:i]
	}
	s = strings.NewReplacer("$", "", ",", "", "+", "", " ", "", "usd", "").Replace(s)

	multiplier := decimal.NewFromInt(1)
	switch {
	case strings.HasSuffix(s, "k"):
		multiplier = decimal.NewFromInt(1_000)
		s = strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "mm"):
		multiplier = decimal.NewFromInt(1_000_000)
		s = strings.TrimSuffix(s, "mm")
	case strings.HasSuffix(s, "m"):
		multiplier = decimal.NewFromInt(1_000_000)
		s = strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "b"):
		multiplier = decimal.NewFromInt(1_000_000_000)
		s = strings.TrimSuffix(s, "b")
	}

	v, err := decimal.NewFromString(s)
	if err != nil || v.IsNegative() {
		return decimal.Zero, false
	}
	return v.Mul(multiplier), true
}
