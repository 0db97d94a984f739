package services

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"DealRoom/internal/models"
)

type ConversationService struct {
	db     *gorm.DB
	notify *NotificationService
}

func NewConversationService(db *gorm.DB, notify *NotificationService) *ConversationService {
	return &ConversationService{db: db, notify: notify}
}

func (s *ConversationService) List(ctx context.Context, viewer *Viewer) ([]models.Conversation, error) {
	if viewer == nil {
		return nil, Unauthorized("Authentication required")
	}
	rows := []models.Conversation{}
	err := s.db.WithContext(ctx).
		Where("investor_id = ? OR operator_id = ?", viewer.ID, viewer.ID).
		Order("updated_at DESC").Order("id DESC").
		Find(&rows).Error
	return rows, err
}

func (s *ConversationService) load(ctx context.Context, viewer *Viewer, id uint) (*models.Conversation, error) {
	if viewer == nil {
		return nil, Unauthorized("Authentication required")
	}
	var conv models.Conversation
	if err := s.db.WithContext(ctx).First(&conv, id).Error; err != nil {
		return nil, notFoundOr(err, "Conversation")
	}
	if !conv.HasParticipant(viewer.ID) {
		return nil, Forbidden("You are not part of this conversation")
	}
	return &conv, nil
}

func (s *ConversationService) Messages(ctx context.Context, viewer *Viewer, id uint, limit, offset int) ([]models.Message, error) {
	if _, err := s.load(ctx, viewer, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows := []models.Message{}
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", id).
		Order("created_at ASC").Order("id ASC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	return rows, err
}

func (s *ConversationService) Send(ctx context.Context, viewer *Viewer, id uint, body string) (*models.Message, error) {
	conv, err := s.load(ctx, viewer, id)
	if err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, BadRequest("Message body is required")
	}

	msg := models.Message{ConversationID: conv.ID, SenderID: viewer.ID, Body: body}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(conv).Update("updated_at", msg.CreatedAt).Error; err != nil {
		return nil, err
	}

	recipient := conv.OperatorID
	if viewer.ID == conv.OperatorID {
		recipient = conv.InvestorID
	}
	s.notify.NotifyUser(ctx, recipient, NotificationInput{
		Type:    models.NotificationNewMessage,
		Title:   "New message",
		Message: truncate(body, 120),
		Link:    fmt.Sprintf("/conversations/%d", conv.ID),
		Data:    map[string]any{"conversation_id": conv.ID, "message_id": msg.ID},
	})
	return &msg, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
