package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"DealRoom/internal/models"
)

type InterestService struct {
	db     *gorm.DB
	notify *NotificationService
	emails *EmailQueue
	now    func() time.Time
}

func NewInterestService(db *gorm.DB, notify *NotificationService, emails *EmailQueue) *InterestService {
	return &InterestService{db: db, notify: notify, emails: emails, now: func() time.Time { return time.Now().UTC() }}
}

// Express records an investor's request for an introduction to a deal.
func (s *InterestService) Express(ctx context.Context, viewer *Viewer, dealID uint, message string) (*models.DealInterest, error) {
	if err := requireInvestor(viewer); err != nil {
		return nil, err
	}
	var deal models.Deal
	if err := s.db.WithContext(ctx).Preload("Operator").First(&deal, dealID).Error; err != nil {
		return nil, notFoundOr(err, "Deal")
	}
	if deal.Status != models.DealActive {
		return nil, BadRequest("Deal is not accepting interest")
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&models.DealInterest{}).
		Where("deal_id = ? AND investor_id = ?", deal.ID, viewer.ID).
		Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, Conflict("You have already expressed interest in this deal")
	}

	interest := models.DealInterest{
		DealID:     deal.ID,
		InvestorID: viewer.ID,
		Message:    strings.TrimSpace(message),
		Status:     models.InterestPending,
	}
	if err := s.db.WithContext(ctx).Create(&interest).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, Conflict("You have already expressed interest in this deal")
		}
		return nil, fmt.Errorf("failed to record interest: %w", err)
	}

	s.notify.NotifyUser(ctx, deal.OperatorID, NotificationInput{
		Type:    models.NotificationInterestReceived,
		Title:   "New interest in " + deal.Title,
		Message: Pseudonym(viewer.ID) + " requested an introduction",
		Link:    "/operator/interests",
		Data:    map[string]any{"interest_id": interest.ID, "deal_id": deal.ID},
	})
	if deal.Operator != nil {
		s.emails.Enqueue(ctx, deal.Operator.Email, TemplateInterestReceived, map[string]any{
			"Name":      deal.Operator.FullName,
			"DealTitle": deal.Title,
			"Message":   interest.Message,
		})
	}
	interest.Deal = &deal
	interest.Deal.Operator = nil
	return &interest, nil
}

// List returns interests scoped by role.
func (s *InterestService) List(ctx context.Context, viewer *Viewer, status string) ([]models.DealInterest, error) {
	if viewer == nil {
		return nil, Unauthorized("Authentication required")
	}
	q := s.db.WithContext(ctx).Model(&models.DealInterest{}).Preload("Deal")
	switch viewer.Role.(type) {
	case models.Investor:
		q = q.Where("deal_interests.investor_id = ?", viewer.ID)
	case models.Operator:
		q = q.Joins("JOIN deals ON deals.id = deal_interests.deal_id").
			Where("deals.operator_id = ?", viewer.ID)
	case models.Admin:
	default:
		return nil, Forbidden("Unrecognized role")
	}
	if status != "" {
		q = q.Where("deal_interests.status = ?", status)
	}
	rows := []models.DealInterest{}
	err := q.Order("deal_interests.created_at DESC").Order("deal_interests.id DESC").Find(&rows).Error
	return rows, err
}

type InterestDecision struct {
	Interest     *models.DealInterest `json:"interest"`
	Conversation *models.Conversation `json:"conversation,omitempty"`
}

func (s *InterestService) Accept(ctx context.Context, viewer *Viewer, id uint) (*InterestDecision, error) {
	return s.respond(ctx, viewer, id, models.InterestAccepted)
}

func (s *InterestService) Reject(ctx context.Context, viewer *Viewer, id uint) (*InterestDecision, error) {
	return s.respond(ctx, viewer, id, models.InterestRejected)
}

func (s *InterestService) respond(ctx context.Context, viewer *Viewer, id uint, next models.InterestStatus) (*InterestDecision, error) {
	if viewer == nil {
		return nil, Unauthorized("Authentication required")
	}
	switch viewer.Role.(type) {
	case models.Operator:
	case models.Investor, models.Admin:
		return nil, Forbidden("Only the deal operator can respond to interest")
	default:
		return nil, Forbidden("Unrecognized role")
	}

	var interest models.DealInterest
	if err := s.db.WithContext(ctx).Preload("Deal").First(&interest, id).Error; err != nil {
		return nil, notFoundOr(err, "Interest")
	}
	if interest.Deal == nil || interest.Deal.OperatorID != viewer.ID {
		return nil, Forbidden("You can only respond to interest in your own deals")
	}
	if interest.Status != models.InterestPending {
		return nil, Conflict("Interest is already %s", interest.Status)
	}

	now := s.now()
	var conv *models.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.DealInterest{}).
			Where("id = ? AND status = ?", interest.ID, models.InterestPending).
			Updates(map[string]any{"status": next, "responded_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var current models.DealInterest
			if err := tx.Select("status").First(&current, interest.ID).Error; err != nil {
				return err
			}
			return Conflict("Interest is already %s", current.Status)
		}
		if next != models.InterestAccepted {
			return nil
		}
		conv = &models.Conversation{
			InterestID: interest.ID,
			DealID:     interest.DealID,
			InvestorID: interest.InvestorID,
			OperatorID: interest.Deal.OperatorID,
		}
		return tx.Create(conv).Error
	})
	if err != nil {
		return nil, err
	}
	interest.Status = next
	interest.RespondedAt = &now

	s.notifyDecision(ctx, &interest, conv)
	return &InterestDecision{Interest: &interest, Conversation: conv}, nil
}

func (s *InterestService) notifyDecision(ctx context.Context, interest *models.DealInterest, conv *models.Conversation) {
	title := dealTitle(interest.Deal)
	if interest.Status == models.InterestRejected {
		s.notify.NotifyUser(ctx, interest.InvestorID, NotificationInput{
			Type:    models.NotificationInterestRejected,
			Title:   "Introduction declined",
			Message: fmt.Sprintf("The operator of %s declined your request", title),
			Link:    fmt.Sprintf("/deals/%d", interest.DealID),
			Data:    map[string]any{"interest_id": interest.ID, "deal_id": interest.DealID},
		})
		return
	}

	s.notify.NotifyUser(ctx, interest.InvestorID, NotificationInput{
		Type:    models.NotificationInterestAccepted,
		Title:   "Introduction accepted",
		Message: fmt.Sprintf("The operator of %s accepted your request", title),
		Link:    fmt.Sprintf("/conversations/%d", conv.ID),
		Data:    map[string]any{"interest_id": interest.ID, "deal_id": interest.DealID, "conversation_id": conv.ID},
	})

	var investor models.Profile
	if err := s.db.WithContext(ctx).Select("id", "full_name", "email").First(&investor, interest.InvestorID).Error; err != nil {
		log.Printf("⚠️  Interest %d accepted but investor email not loaded: %v", interest.ID, err)
		return
	}
	s.emails.Enqueue(ctx, investor.Email, TemplateInterestAccepted, map[string]any{
		"Name":           investor.FullName,
		"DealTitle":      title,
		"ConversationID": conv.ID,
	})
}
