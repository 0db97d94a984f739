package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"DealRoom/internal/models"
)

type DisclosureLevel string

const (
	DisclosureSelf    DisclosureLevel = "self"
	DisclosureFull    DisclosureLevel = "full"
	DisclosureLimited DisclosureLevel = "limited"
)

type DisclosureService struct {
	db *gorm.DB
}

func NewDisclosureService(db *gorm.DB) *DisclosureService {
	return &DisclosureService{db: db}
}

// Resolve decides how much of targetID's investor profile the viewer may see.
func (s *DisclosureService) Resolve(ctx context.Context, viewer *Viewer, targetID uint) (DisclosureLevel, error) {
	if viewer == nil {
		return DisclosureLimited, nil
	}
	if viewer.ID == targetID {
		return DisclosureSelf, nil
	}
	switch viewer.Role.(type) {
	case models.Admin:
		return DisclosureFull, nil
	case models.Operator:
		var n int64
		err := s.db.WithContext(ctx).Model(&models.DealInterest{}).
			Joins("JOIN deals ON deals.id = deal_interests.deal_id").
			Where("deal_interests.investor_id = ? AND deal_interests.status = ? AND deals.operator_id = ?",
				targetID, models.InterestAccepted, viewer.ID).
			Count(&n).Error
		if err != nil {
			return DisclosureLimited, err
		}
		if n > 0 {
			return DisclosureFull, nil
		}
		return DisclosureLimited, nil
	case models.Investor:
		return DisclosureLimited, nil
	}
	return DisclosureLimited, nil
}

// Pseudonym is the stable public handle for an investor.
func Pseudonym(investorID uint) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("investor:%d", investorID)))
	return "Investor " + strings.ToUpper(hex.EncodeToString(sum[:])[:6])
}

type InvestorView struct {
	ID                 uint            `json:"id"`
	Disclosure         DisclosureLevel `json:"disclosure"`
	DisplayName        string          `json:"display_name"`
	CheckSize          string          `json:"check_size,omitempty"`
	InvestmentTimeline string          `json:"investment_timeline,omitempty"`
	Categories         []string        `json:"categories"`
	Tags               []string        `json:"tags"`

	FullName      string           `json:"full_name,omitempty"`
	Bio           string           `json:"bio,omitempty"`
	Company       string           `json:"company,omitempty"`
	TotalInvested *decimal.Decimal `json:"totalInvested,omitempty"`
	DealCount     *int64           `json:"dealCount,omitempty"`
}

// InvestorProfile returns the investor's profile at the disclosure level
// computed for viewer.
func (s *DisclosureService) InvestorProfile(ctx context.Context, viewer *Viewer, targetID uint) (*InvestorView, error) {
	var p models.Profile
	if err := s.db.WithContext(ctx).First(&p, targetID).Error; err != nil {
		return nil, notFoundOr(err, "Investor")
	}
	if role, err := p.ParsedRole(); err != nil {
		return nil, NotFound("Investor not found")
	} else if _, ok := role.(models.Investor); !ok {
		return nil, NotFound("Investor not found")
	}

	level, err := s.Resolve(ctx, viewer, targetID)
	if err != nil {
		return nil, err
	}

	view := &InvestorView{
		ID:                 p.ID,
		Disclosure:         level,
		DisplayName:        Pseudonym(p.ID),
		CheckSize:          p.CheckSize,
		InvestmentTimeline: p.InvestmentTimeline,
		Categories:         p.CategoryList(),
		Tags:               p.TagList(),
	}
	if level == DisclosureLimited {
		return view, nil
	}

	total, count, err := s.investorStats(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	view.DisplayName = p.FullName
	view.FullName = p.FullName
	view.Bio = p.Bio
	view.Company = p.Company
	view.TotalInvested = &total
	view.DealCount = &count
	return view, nil
}

func (s *DisclosureService) investorStats(ctx context.Context, investorID uint) (decimal.Decimal, int64, error) {
	var amounts []decimal.Decimal
	var deals int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.InvestmentCommitment{}).
			Where("investor_id = ? AND status IN ?", investorID, models.CountedStatuses).
			Pluck("amount", &amounts).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.InvestmentCommitment{}).
			Where("investor_id = ? AND status IN ?", investorID, models.CountedStatuses).
			Distinct("deal_id").
			Count(&deals).Error
	})
	if err := g.Wait(); err != nil {
		return decimal.Zero, 0, err
	}
	return sumDecimals(amounts), deals, nil
}

func sumDecimals(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
