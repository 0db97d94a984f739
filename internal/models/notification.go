package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationDealActivated      NotificationType = "deal_activated"
	NotificationInterestReceived   NotificationType = "interest_received"
	NotificationInterestAccepted   NotificationType = "interest_accepted"
	NotificationInterestRejected   NotificationType = "interest_rejected"
	NotificationInvestmentUpdated  NotificationType = "investment_updated"
	NotificationPaymentReceived    NotificationType = "payment_received"
	NotificationPaymentFailed      NotificationType = "payment_failed"
	NotificationRefundProcessed    NotificationType = "refund_processed"
	NotificationKYCSubmitted       NotificationType = "kyc_submitted"
	NotificationKYCReviewed        NotificationType = "kyc_reviewed"
	NotificationVerificationUpdate NotificationType = "verification_reviewed"
	NotificationNewMessage         NotificationType = "new_message"
	NotificationSystem             NotificationType = "system"
)

type Notification struct {
	ID        uint             `json:"id" gorm:"primaryKey"`
	UserID    uint             `json:"user_id" gorm:"not null;index"`
	Type      NotificationType `json:"type" gorm:"type:varchar(50);not null"`
	Title     string           `json:"title" gorm:"type:varchar(255);not null"`
	Message   string           `json:"message" gorm:"type:text;not null"`
	Link      string           `json:"link,omitempty" gorm:"type:text"`
	IsRead    bool             `json:"is_read" gorm:"default:false;index"`
	Data      datatypes.JSON   `json:"data,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	ReadAt    *time.Time       `json:"read_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

// BeforeCreate hook
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return nil
}
