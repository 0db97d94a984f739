package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"DealRoom/internal/models"
	"DealRoom/internal/testutil"
)

func TestInvestorAndOperatorAnalytics(t *testing.T) {
	f := newFixture(t)
	svc := NewAnalyticsService(f.db)
	ctx := context.Background()

	dealA := testutil.CreateDeal(t, f.db, f.operator.ID, models.DealActive)
	dealB := testutil.CreateDeal(t, f.db, f.operator.ID, models.DealPending)
	for _, c := range []models.InvestmentCommitment{
		{InvestorID: f.investor.ID, DealID: dealA.ID, Amount: decimal.NewFromInt(1000), Status: models.CommitmentCommitted},
		{InvestorID: f.investor.ID, DealID: dealA.ID, Amount: decimal.NewFromInt(400), Status: models.CommitmentFunded, FundingStatus: models.FundingFunded},
		{InvestorID: f.investor.ID, DealID: dealB.ID, Amount: decimal.NewFromInt(99), Status: models.CommitmentDraft},
	} {
		c := c
		if err := f.db.Create(&c).Error; err != nil {
			t.Fatalf("seed commitment: %v", err)
		}
	}
	interest := models.DealInterest{DealID: dealA.ID, InvestorID: f.investor.ID, Status: models.InterestAccepted}
	f.db.Create(&interest)
	f.db.Create(&models.Conversation{InterestID: interest.ID, DealID: dealA.ID, InvestorID: f.investor.ID, OperatorID: f.operator.ID})

	inv, err := svc.Investor(ctx, viewerFor(t, f.investor))
	if err != nil {
		t.Fatalf("investor analytics: %v", err)
	}
	if inv.CommitmentsByStatus["committed"] != 1 || inv.CommitmentsByStatus["draft"] != 1 {
		t.Fatalf("commitments by status %v", inv.CommitmentsByStatus)
	}
	if !inv.TotalCommitted.Equal(decimal.NewFromInt(1400)) || !inv.TotalFunded.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("totals committed=%s funded=%s", inv.TotalCommitted, inv.TotalFunded)
	}
	if inv.DealsFollowed != 1 || inv.InterestsByStatus["accepted"] != 1 {
		t.Fatalf("interests %v followed=%d", inv.InterestsByStatus, inv.DealsFollowed)
	}

	op, err := svc.Operator(ctx, viewerFor(t, f.operator))
	if err != nil {
		t.Fatalf("operator analytics: %v", err)
	}
	if op.DealsByStatus["active"] != 1 || op.DealsByStatus["pending"] != 1 || op.ConversationsOpen != 1 {
		t.Fatalf("operator analytics %+v", op)
	}
	if len(op.CommittedByDeal) != 2 || !op.CommittedByDeal[0].Committed.Equal(decimal.NewFromInt(1400)) || !op.CommittedByDeal[1].Committed.IsZero() {
		t.Fatalf("committed by deal %+v", op.CommittedByDeal)
	}

	if _, err := svc.Operator(ctx, viewerFor(t, f.investor)); !IsKind(err, KindForbidden) {
		t.Fatalf("investor on operator analytics: got %v", err)
	}
	if _, err := svc.Investor(ctx, viewerFor(t, f.operator)); !IsKind(err, KindForbidden) {
		t.Fatalf("operator on investor analytics: got %v", err)
	}
}
