package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"DealRoom/internal/models"
)

type CommitmentService struct {
	db                 *gorm.DB
	highValueThreshold decimal.Decimal
	now                func() time.Time
}

func NewCommitmentService(db *gorm.DB, highValueThreshold decimal.Decimal) *CommitmentService {
	return &CommitmentService{
		db:                 db,
		highValueThreshold: highValueThreshold,
		now:                func() time.Time { return time.Now().UTC() },
	}
}

type CreateCommitmentInput struct {
	DealID uint
	Amount decimal.Decimal
	Commit bool
	Notes  string
}

func requireInvestor(viewer *Viewer) error {
	if viewer == nil {
		return Unauthorized("Authentication required")
	}
	switch viewer.Role.(type) {
	case models.Investor:
		return nil
	case models.Operator, models.Admin:
		return Forbidden("Investor access required")
	}
	return Forbidden("Unrecognized role")
}

// Create records a commitment to an active deal, optionally committing it at once.
func (s *CommitmentService) Create(ctx context.Context, viewer *Viewer, in CreateCommitmentInput) (*models.InvestmentCommitment, error) {
	if err := requireInvestor(viewer); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, BadRequest("Amount must be greater than zero")
	}
	var deal models.Deal
	if err := s.db.WithContext(ctx).First(&deal, in.DealID).Error; err != nil {
		return nil, notFoundOr(err, "Deal")
	}
	if deal.Status != models.DealActive {
		return nil, BadRequest("Deal is not open for commitments")
	}
	if err := s.checkAmount(ctx, viewer.ID, &deal, in.Amount); err != nil {
		return nil, err
	}

	var open int64
	if err := s.db.WithContext(ctx).Model(&models.InvestmentCommitment{}).
		Where("investor_id = ? AND deal_id = ? AND status IN ?", viewer.ID, deal.ID,
			[]models.CommitmentStatus{models.CommitmentDraft, models.CommitmentCommitted, models.CommitmentFunded}).
		Count(&open).Error; err != nil {
		return nil, err
	}
	if open > 0 {
		return nil, Conflict("You already have an open commitment to this deal")
	}

	c := models.InvestmentCommitment{
		InvestorID:    viewer.ID,
		DealID:        deal.ID,
		Amount:        in.Amount.Round(2),
		Status:        models.CommitmentDraft,
		FundingStatus: models.FundingNone,
		Notes:         in.Notes,
	}
	if in.Commit {
		now := s.now()
		c.Status = models.CommitmentCommitted
		c.CommittedAt = &now
	}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, err
	}
	c.Deal = &deal
	return &c, nil
}

// checkAmount enforces the deal minimum and the KYC gate for large commitments.
func (s *CommitmentService) checkAmount(ctx context.Context, investorID uint, deal *models.Deal, amount decimal.Decimal) error {
	if min, ok := models.ParseCheckSize(deal.MinimumCheckSize); ok && amount.LessThan(min) {
		return BadRequest("Amount is below the minimum check size of %s", deal.MinimumCheckSize)
	}
	if s.highValueThreshold.IsPositive() && amount.GreaterThanOrEqual(s.highValueThreshold) {
		var p models.Profile
		if err := s.db.WithContext(ctx).Select("id", "kyc_status").First(&p, investorID).Error; err != nil {
			return notFoundOr(err, "Profile")
		}
		if models.ReviewStatus(p.KYCStatus) != models.ReviewApproved {
			return Forbidden("Approved KYC is required for commitments of %s or more", s.highValueThreshold.StringFixed(2))
		}
	}
	return nil
}

// Commit moves the caller's draft commitment to committed.
func (s *CommitmentService) Commit(ctx context.Context, viewer *Viewer, id uint) (*models.InvestmentCommitment, error) {
	if err := requireInvestor(viewer); err != nil {
		return nil, err
	}
	var c models.InvestmentCommitment
	if err := s.db.WithContext(ctx).Preload("Deal").First(&c, id).Error; err != nil {
		return nil, notFoundOr(err, "Commitment")
	}
	if c.InvestorID != viewer.ID {
		return nil, Forbidden("You can only commit your own commitments")
	}
	if !c.Status.CanTransitionTo(models.CommitmentCommitted) {
		return nil, Conflict("Commitment is already %s", c.Status)
	}
	if c.Deal == nil || c.Deal.Status != models.DealActive {
		return nil, BadRequest("Deal is not open for commitments")
	}
	if err := s.checkAmount(ctx, viewer.ID, c.Deal, c.Amount); err != nil {
		return nil, err
	}

	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.InvestmentCommitment{}).
		Where("id = ? AND status = ?", c.ID, models.CommitmentDraft).
		Updates(map[string]any{"status": models.CommitmentCommitted, "committed_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, Conflict("Commitment was updated by someone else, please reload")
	}
	c.Status = models.CommitmentCommitted
	c.CommittedAt = &now
	return &c, nil
}

func (s *CommitmentService) ListMine(ctx context.Context, viewer *Viewer) ([]models.InvestmentCommitment, error) {
	if err := requireInvestor(viewer); err != nil {
		return nil, err
	}
	rows := []models.InvestmentCommitment{}
	err := s.db.WithContext(ctx).Preload("Deal").
		Where("investor_id = ?", viewer.ID).
		Order("created_at DESC").Order("id DESC").
		Find(&rows).Error
	return rows, err
}

func (s *CommitmentService) Get(ctx context.Context, viewer *Viewer, id uint) (*models.InvestmentCommitment, error) {
	if viewer == nil {
		return nil, Unauthorized("Authentication required")
	}
	var c models.InvestmentCommitment
	err := s.db.WithContext(ctx).Preload("Deal").First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFound("Commitment not found")
	}
	if err != nil {
		return nil, err
	}
	if !viewer.IsAdmin() && c.InvestorID != viewer.ID {
		return nil, Forbidden("You can only view your own commitments")
	}
	return &c, nil
}
