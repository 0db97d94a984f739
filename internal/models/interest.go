package models

import "time"

type InterestStatus string

const (
	InterestPending  InterestStatus = "pending"
	InterestAccepted InterestStatus = "accepted"
	InterestRejected InterestStatus = "rejected"
)

// DealInterest is an investor's request for an introduction to the deal's
// operator. It leaves pending exactly once.
type DealInterest struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	DealID      uint           `gorm:"not null;uniqueIndex:idx_interest_deal_investor" json:"deal_id"`
	InvestorID  uint           `gorm:"not null;uniqueIndex:idx_interest_deal_investor;index" json:"investor_id"`
	Message     string         `gorm:"type:text" json:"message,omitempty"`
	Status      InterestStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	RespondedAt *time.Time     `json:"responded_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`

	Deal *Deal `gorm:"foreignKey:DealID" json:"deal,omitempty"`
}

func (DealInterest) TableName() string {
	return "deal_interests"
}

// Conversation is opened when an operator accepts an interest.
type Conversation struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	InterestID uint      `gorm:"not null;uniqueIndex" json:"interest_id"`
	DealID     uint      `gorm:"not null;index" json:"deal_id"`
	InvestorID uint      `gorm:"not null;index" json:"investor_id"`
	OperatorID uint      `gorm:"not null;index" json:"operator_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// HasParticipant checks whether the user belongs to the conversation
func (c *Conversation) HasParticipant(userID uint) bool {
	return c.InvestorID == userID || c.OperatorID == userID
}

type Message struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	ConversationID uint      `gorm:"not null;index" json:"conversation_id"`
	SenderID       uint      `gorm:"not null" json:"sender_id"`
	Body           string    `gorm:"type:text;not null" json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}
