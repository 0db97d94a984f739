package services

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"DealRoom/internal/models"
)

type AnalyticsService struct {
	db *gorm.DB
}

func NewAnalyticsService(db *gorm.DB) *AnalyticsService {
	return &AnalyticsService{db: db}
}

type statusCount struct {
	Status string
	Count  int64
}

type InvestorAnalytics struct {
	CommitmentsByStatus map[string]int64 `json:"commitments_by_status"`
	TotalCommitted      decimal.Decimal  `json:"total_committed"`
	TotalFunded         decimal.Decimal  `json:"total_funded"`
	InterestsByStatus   map[string]int64 `json:"interests_by_status"`
	DealsFollowed       int64            `json:"deals_followed"`
}

func (s *AnalyticsService) countBy(ctx context.Context, model any, where string, args ...any) (map[string]int64, error) {
	var rows []statusCount
	if err := s.db.WithContext(ctx).Model(model).
		Select("status, COUNT(*) AS count").
		Where(where, args...).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

func (s *AnalyticsService) Investor(ctx context.Context, viewer *Viewer) (*InvestorAnalytics, error) {
	if err := requireInvestor(viewer); err != nil {
		return nil, err
	}
	out := &InvestorAnalytics{}
	var committed, funded []decimal.Decimal

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := s.countBy(gctx, &models.InvestmentCommitment{}, "investor_id = ?", viewer.ID)
		out.CommitmentsByStatus = m
		return err
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.InvestmentCommitment{}).
			Where("investor_id = ? AND status IN ?", viewer.ID, models.CountedStatuses).
			Pluck("amount", &committed).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.InvestmentCommitment{}).
			Where("investor_id = ? AND funding_status = ?", viewer.ID, models.FundingFunded).
			Pluck("amount", &funded).Error
	})
	g.Go(func() error {
		m, err := s.countBy(gctx, &models.DealInterest{}, "investor_id = ?", viewer.ID)
		out.InterestsByStatus = m
		return err
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.DealInterest{}).
			Where("investor_id = ?", viewer.ID).
			Distinct("deal_id").
			Count(&out.DealsFollowed).Error
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out.TotalCommitted = sumDecimals(committed)
	out.TotalFunded = sumDecimals(funded)
	return out, nil
}

type DealCapital struct {
	DealID    uint            `json:"deal_id"`
	Title     string          `json:"title"`
	Committed decimal.Decimal `json:"committed"`
}

type OperatorAnalytics struct {
	DealsByStatus     map[string]int64 `json:"deals_by_status"`
	InterestsByStatus map[string]int64 `json:"interests_by_status"`
	ConversationsOpen int64            `json:"conversations_opened"`
	CommittedByDeal   []DealCapital    `json:"committed_by_deal"`
	TotalCommitted    decimal.Decimal  `json:"total_committed"`
}

func (s *AnalyticsService) Operator(ctx context.Context, viewer *Viewer) (*OperatorAnalytics, error) {
	if viewer == nil {
		return nil, Unauthorized("Authentication required")
	}
	switch viewer.Role.(type) {
	case models.Operator:
	case models.Investor, models.Admin:
		return nil, Forbidden("Operator access required")
	default:
		return nil, Forbidden("Unrecognized role")
	}

	out := &OperatorAnalytics{}
	var deals []models.Deal
	var commitments []models.InvestmentCommitment

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := s.countBy(gctx, &models.Deal{}, "operator_id = ?", viewer.ID)
		out.DealsByStatus = m
		return err
	})
	g.Go(func() error {
		var rows []statusCount
		err := s.db.WithContext(gctx).Model(&models.DealInterest{}).
			Select("deal_interests.status AS status, COUNT(*) AS count").
			Joins("JOIN deals ON deals.id = deal_interests.deal_id").
			Where("deals.operator_id = ?", viewer.ID).
			Group("deal_interests.status").
			Scan(&rows).Error
		out.InterestsByStatus = make(map[string]int64, len(rows))
		for _, r := range rows {
			out.InterestsByStatus[r.Status] = r.Count
		}
		return err
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.Conversation{}).
			Where("operator_id = ?", viewer.ID).
			Count(&out.ConversationsOpen).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Select("id", "title").
			Where("operator_id = ?", viewer.ID).
			Order("id ASC").
			Find(&deals).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.InvestmentCommitment{}).
			Select("investment_commitments.deal_id", "investment_commitments.amount").
			Joins("JOIN deals ON deals.id = investment_commitments.deal_id").
			Where("deals.operator_id = ? AND investment_commitments.status IN ?", viewer.ID, models.CountedStatuses).
			Find(&commitments).Error
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byDeal := make(map[uint]decimal.Decimal, len(deals))
	out.TotalCommitted = decimal.Zero
	for _, c := range commitments {
		byDeal[c.DealID] = byDeal[c.DealID].Add(c.Amount)
		out.TotalCommitted = out.TotalCommitted.Add(c.Amount)
	}
	out.CommittedByDeal = make([]DealCapital, 0, len(deals))
	for _, d := range deals {
		out.CommittedByDeal = append(out.CommittedByDeal, DealCapital{DealID: d.ID, Title: d.Title, Committed: byDeal[d.ID]})
	}
	return out, nil
}
