package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"DealRoom/internal/models"
)

type DealService struct {
	db     *gorm.DB
	notify *NotificationService
	emails *EmailQueue
	now    func() time.Time
}

func NewDealService(db *gorm.DB, notify *NotificationService, emails *EmailQueue) *DealService {
	return &DealService{db: db, notify: notify, emails: emails, now: func() time.Time { return time.Now().UTC() }}
}

// visible narrows q to the deals the viewer may see.
func visible(q *gorm.DB, viewer *Viewer) *gorm.DB {
	if viewer == nil {
		return q.Where("status = ?", models.DealActive)
	}
	switch viewer.Role.(type) {
	case models.Admin:
		return q
	case models.Operator:
		return q.Where("status = ? OR operator_id = ?", models.DealActive, viewer.ID)
	case models.Investor:
		return q.Where("status = ?", models.DealActive)
	}
	return q.Where("1 = 0")
}

func (s *DealService) List(ctx context.Context, viewer *Viewer, status string) ([]models.Deal, error) {
	q := visible(s.db.WithContext(ctx).Model(&models.Deal{}), viewer)
	if status != "" {
		if !models.DealStatus(status).Valid() {
			return nil, BadRequest("Invalid status filter")
		}
		q = q.Where("status = ?", status)
	}
	deals := []models.Deal{}
	err := q.Order("created_at DESC").Order("id DESC").Find(&deals).Error
	return deals, err
}

func (s *DealService) Get(ctx context.Context, viewer *Viewer, id uint) (*models.Deal, error) {
	var d models.Deal
	err := visible(s.db.WithContext(ctx).Model(&models.Deal{}), viewer).Where("id = ?", id).First(&d).Error
	if err != nil {
		return nil, notFoundOr(err, "Deal")
	}
	return &d, nil
}

type DealInput struct {
	Title            *string
	Category         *string
	Description      *string
	MinimumCheckSize *string
	TargetRaise      *decimal.Decimal
	Status           *string
	OperatorID       *uint
}

func (in DealInput) touchesAdminFields() bool {
	return in.Status != nil || in.OperatorID != nil
}

// Create adds a deal. Operators create pending deals for themselves;
// admins create active deals on an operator's behalf.
func (s *DealService) Create(ctx context.Context, viewer *Viewer, in DealInput) (*models.Deal, error) {
	if viewer == nil {
		return nil, Unauthorized("Authentication required")
	}
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return nil, BadRequest("Title is required")
	}

	d := models.Deal{Title: strings.TrimSpace(*in.Title)}
	applyDealFields(&d, in)

	switch viewer.Role.(type) {
	case models.Operator:
		if in.touchesAdminFields() {
			return nil, Forbidden("Operators cannot set deal status or owner")
		}
		d.Status = models.DealPending
		d.OperatorID = viewer.ID
	case models.Admin:
		if in.OperatorID == nil {
			return nil, BadRequest("operator_id is required")
		}
		if err := s.requireOperator(ctx, *in.OperatorID); err != nil {
			return nil, err
		}
		d.OperatorID = *in.OperatorID
		d.Status = models.DealActive
		if in.Status != nil {
			if !models.DealStatus(*in.Status).Valid() {
				return nil, BadRequest("Invalid status")
			}
			d.Status = models.DealStatus(*in.Status)
		}
	case models.Investor:
		return nil, Forbidden("Investors cannot create deals")
	default:
		return nil, Forbidden("Unrecognized role")
	}

	if d.Status == models.DealActive {
		now := s.now()
		d.ActivatedAt = &now
	}
	if err := s.db.WithContext(ctx).Create(&d).Error; err != nil {
		return nil, fmt.Errorf("failed to create deal: %w", err)
	}
	log.Printf("✅ Deal %d created (%s) by user %d", d.ID, d.Status, viewer.ID)
	if d.Status == models.DealActive {
		s.alertInvestors(ctx, &d)
	}
	return &d, nil
}

func (s *DealService) requireOperator(ctx context.Context, id uint) error {
	var p models.Profile
	if err := s.db.WithContext(ctx).Select("id", "role").First(&p, id).Error; err != nil {
		return notFoundOr(err, "Operator")
	}
	if p.Role != models.RoleOperator {
		return BadRequest("operator_id must reference an operator")
	}
	return nil
}

func applyDealFields(d *models.Deal, in DealInput) {
	if in.Title != nil {
		d.Title = strings.TrimSpace(*in.Title)
	}
	if in.Category != nil {
		d.Category = strings.TrimSpace(*in.Category)
	}
	if in.Description != nil {
		d.Description = *in.Description
	}
	if in.MinimumCheckSize != nil {
		d.MinimumCheckSize = strings.TrimSpace(*in.MinimumCheckSize)
	}
	if in.TargetRaise != nil {
		d.TargetRaise = in.TargetRaise.Round(2)
	}
}

// Update edits a deal. Owners edit descriptive fields; status and owner are admin-only.
func (s *DealService) Update(ctx context.Context, viewer *Viewer, id uint, in DealInput) (*models.Deal, error) {
	if viewer == nil {
		return nil, Unauthorized("Authentication required")
	}
	var d models.Deal
	if err := s.db.WithContext(ctx).First(&d, id).Error; err != nil {
		return nil, notFoundOr(err, "Deal")
	}

	switch viewer.Role.(type) {
	case models.Admin:
	case models.Operator:
		if d.OperatorID != viewer.ID {
			return nil, Forbidden("You can only edit your own deals")
		}
		if in.touchesAdminFields() {
			return nil, Forbidden("Only admins can change deal status or owner")
		}
	case models.Investor:
		return nil, Forbidden("Investors cannot edit deals")
	default:
		return nil, Forbidden("Unrecognized role")
	}

	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, BadRequest("Title cannot be empty")
	}
	wasActive := d.Status == models.DealActive
	applyDealFields(&d, in)
	if in.OperatorID != nil {
		if err := s.requireOperator(ctx, *in.OperatorID); err != nil {
			return nil, err
		}
		d.OperatorID = *in.OperatorID
	}
	if in.Status != nil {
		next := models.DealStatus(*in.Status)
		if !next.Valid() {
			return nil, BadRequest("Invalid status")
		}
		d.Status = next
	}
	activated := !wasActive && d.Status == models.DealActive
	if activated {
		now := s.now()
		d.ActivatedAt = &now
	}

	if err := s.db.WithContext(ctx).Model(&models.Deal{}).Where("id = ?", d.ID).Updates(map[string]any{
		"title":              d.Title,
		"category":           d.Category,
		"description":        d.Description,
		"minimum_check_size": d.MinimumCheckSize,
		"target_raise":       d.TargetRaise,
		"status":             d.Status,
		"operator_id":        d.OperatorID,
		"activated_at":       d.ActivatedAt,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to update deal: %w", err)
	}
	if activated {
		log.Printf("🚀 Deal %d activated", d.ID)
		s.alertInvestors(ctx, &d)
	}
	return &d, nil
}

func (s *DealService) Delete(ctx context.Context, viewer *Viewer, id uint) error {
	if !viewer.IsAdmin() {
		return Forbidden("Admin access required")
	}
	res := s.db.WithContext(ctx).Delete(&models.Deal{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return NotFound("Deal not found")
	}
	return nil
}

// MatchesCategory reports whether an investor with the given categories
// wants alerts for category. An empty list matches everything.
func MatchesCategory(categories []string, category string) bool {
	if len(categories) == 0 {
		return true
	}
	for _, c := range categories {
		if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(category)) {
			return true
		}
	}
	return false
}

// alertInvestors fans a new active deal out to matching investors. Failures are logged.
func (s *DealService) alertInvestors(ctx context.Context, d *models.Deal) {
	var investors []models.Profile
	if err := s.db.WithContext(ctx).
		Select("id", "full_name", "email", "categories").
		Where("role = ?", models.RoleInvestor).
		Find(&investors).Error; err != nil {
		log.Printf("⚠️  Deal %d alerts skipped: %v", d.ID, err)
		return
	}

	sent := 0
	for i := range investors {
		inv := &investors[i]
		if !MatchesCategory(inv.CategoryList(), d.Category) {
			continue
		}
		sent++
		s.notify.NotifyUser(ctx, inv.ID, NotificationInput{
			Type:    models.NotificationDealActivated,
			Title:   "New deal: " + d.Title,
			Message: fmt.Sprintf("A new %s deal is open for investment", displayCategory(d.Category)),
			Link:    fmt.Sprintf("/deals/%d", d.ID),
			Data:    map[string]any{"deal_id": d.ID, "category": d.Category},
		})
		s.emails.Enqueue(ctx, inv.Email, TemplateDealAlert, map[string]any{
			"Name":             inv.FullName,
			"DealID":           d.ID,
			"DealTitle":        d.Title,
			"Category":         displayCategory(d.Category),
			"MinimumCheckSize": d.MinimumCheckSize,
		})
	}
	log.Printf("📧 Deal %d alerts sent to %d investors", d.ID, sent)
}

func displayCategory(c string) string {
	if c == "" {
		return "private"
	}
	return c
}
