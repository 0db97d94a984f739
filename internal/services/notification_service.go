package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"DealRoom/internal/models"
)

type NotificationService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// NotificationInput describes one in-app notification.
type NotificationInput struct {
	Type    models.NotificationType
	Title   string
	Message string
	Link    string
	Data    map[string]any
}

func (in NotificationInput) build(userID uint) (models.Notification, error) {
	n := models.Notification{
		UserID:  userID,
		Type:    in.Type,
		Title:   in.Title,
		Message: in.Message,
		Link:    in.Link,
	}
	if in.Data != nil {
		raw, err := json.Marshal(in.Data)
		if err != nil {
			return n, fmt.Errorf("failed to marshal notification data: %w", err)
		}
		n.Data = datatypes.JSON(raw)
	}
	return n, nil
}

// Create inserts a notification for userID and reports the failure.
func (s *NotificationService) Create(ctx context.Context, userID uint, in NotificationInput) (*models.Notification, error) {
	n, err := in.build(userID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	return &n, nil
}

// NotifyUser is the best-effort form of Create. Failures are logged only.
func (s *NotificationService) NotifyUser(ctx context.Context, userID uint, in NotificationInput) {
	if s == nil {
		return
	}
	if _, err := s.Create(ctx, userID, in); err != nil {
		log.Printf("⚠️  notification %s for user %d not stored: %v", in.Type, userID, err)
	}
}

// CreateForAdmins inserts one notification per admin profile and returns how many were written.
func (s *NotificationService) CreateForAdmins(ctx context.Context, in NotificationInput) (int, error) {
	var adminIDs []uint
	if err := s.db.WithContext(ctx).Model(&models.Profile{}).
		Where("role = ?", models.RoleAdmin).
		Pluck("id", &adminIDs).Error; err != nil {
		return 0, fmt.Errorf("failed to load admins: %w", err)
	}
	if len(adminIDs) == 0 {
		return 0, nil
	}

	rows := make([]models.Notification, 0, len(adminIDs))
	for _, id := range adminIDs {
		n, err := in.build(id)
		if err != nil {
			return 0, err
		}
		rows = append(rows, n)
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return 0, fmt.Errorf("failed to create admin notifications: %w", err)
	}
	return len(rows), nil
}

// NotifyAdmins is the best-effort form of CreateForAdmins.
func (s *NotificationService) NotifyAdmins(ctx context.Context, in NotificationInput) {
	if s == nil {
		return
	}
	if _, err := s.CreateForAdmins(ctx, in); err != nil {
		log.Printf("⚠️  admin notification %s not stored: %v", in.Type, err)
	}
}

type NotificationPage struct {
	Notifications []models.Notification `json:"notifications"`
	Total         int64                 `json:"total"`
	UnreadCount   int64                 `json:"unread_count"`
	Limit         int                   `json:"limit"`
	Offset        int                   `json:"offset"`
}

// List returns the caller's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID uint, unreadOnly bool, limit, offset int) (*NotificationPage, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}

	page := &NotificationPage{Limit: limit, Offset: offset, Notifications: []models.Notification{}}
	if err := q.Session(&gorm.Session{}).Count(&page.Total).Error; err != nil {
		return nil, err
	}
	if err := q.Session(&gorm.Session{}).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&page.Notifications).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&page.UnreadCount).Error; err != nil {
		return nil, err
	}
	return page, nil
}

// MarkRead marks the given ids, or every unread row when all is set.
// Only rows owned by userID are touched.
func (s *NotificationService) MarkRead(ctx context.Context, userID uint, ids []uint, all bool) (int64, error) {
	if !all && len(ids) == 0 {
		return 0, BadRequest("Provide notification ids or set all")
	}
	q := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false)
	if !all {
		q = q.Where("id IN ?", ids)
	}
	res := q.Updates(map[string]any{"is_read": true, "read_at": s.now()})
	return res.RowsAffected, res.Error
}

// Delete removes the given ids, or every read row when readOnly is set.
func (s *NotificationService) Delete(ctx context.Context, userID uint, ids []uint, readOnly bool) (int64, error) {
	if !readOnly && len(ids) == 0 {
		return 0, BadRequest("Provide notification ids or set read_only")
	}
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	if readOnly {
		q = q.Where("is_read = ?", true)
	}
	res := q.Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
