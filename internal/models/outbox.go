package models

import (
	"time"

	"gorm.io/datatypes"
)

type OutboxKind string

const OutboxEmail OutboxKind = "email"

// OutboxTask is a queued side effect delivered at least once by the outbox
// worker. A claimed row has ClaimToken set and NextAttemptAt pushed out by
// the claim lease. DeadLetteredAt is set once attempts are exhausted.
type OutboxTask struct {
	ID             string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Kind           OutboxKind     `gorm:"type:varchar(20);not null;index" json:"kind"`
	Payload        datatypes.JSON `gorm:"not null" json:"payload"`
	Attempts       int            `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts    int            `gorm:"not null;default:5" json:"max_attempts"`
	NextAttemptAt  time.Time      `gorm:"not null;index" json:"next_attempt_at"`
	LastError      string         `gorm:"type:text" json:"last_error,omitempty"`
	ClaimToken     string         `gorm:"type:varchar(36);index" json:"-"`
	DeliveredAt    *time.Time     `gorm:"index" json:"delivered_at,omitempty"`
	DeadLetteredAt *time.Time     `gorm:"index" json:"dead_lettered_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (OutboxTask) TableName() string {
	return "outbox_tasks"
}
