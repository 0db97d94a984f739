package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"DealRoom/internal/models"
	"DealRoom/internal/testutil"
)

func TestCreateCommitment(t *testing.T) {
	f := newFixture(t)
	svc := NewCommitmentService(f.db, decimal.NewFromInt(100_000))
	ctx := context.Background()
	inv := viewerFor(t, f.investor)

	deal := testutil.CreateDeal(t, f.db, f.operator.ID, models.DealActive) // minimum $25K
	pending := testutil.CreateDeal(t, f.db, f.operator.ID, models.DealPending)

	if _, err := svc.Create(ctx, inv, CreateCommitmentInput{DealID: pending.ID, Amount: decimal.NewFromInt(50_000)}); !IsKind(err, KindBadRequest) {
		t.Fatalf("pending deal: got %v", err)
	}
	if _, err := svc.Create(ctx, inv, CreateCommitmentInput{DealID: deal.ID, Amount: decimal.NewFromInt(24_999)}); !IsKind(err, KindBadRequest) {
		t.Fatalf("below minimum: got %v", err)
	}
	if _, err := svc.Create(ctx, inv, CreateCommitmentInput{DealID: deal.ID, Amount: decimal.NewFromInt(150_000)}); !IsKind(err, KindForbidden) {
		t.Fatalf("high value without KYC: got %v", err)
	}
	if _, err := svc.Create(ctx, viewerFor(t, f.operator), CreateCommitmentInput{DealID: deal.ID, Amount: decimal.NewFromInt(50_000)}); !IsKind(err, KindForbidden) {
		t.Fatalf("operator: got %v", err)
	}

	c, err := svc.Create(ctx, inv, CreateCommitmentInput{DealID: deal.ID, Amount: decimal.NewFromInt(25_000)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Status != models.CommitmentDraft || c.FundingStatus != models.FundingNone {
		t.Fatalf("new commitment: %+v", c)
	}
	if _, err := svc.Create(ctx, inv, CreateCommitmentInput{DealID: deal.ID, Amount: decimal.NewFromInt(30_000)}); !IsKind(err, KindConflict) {
		t.Fatalf("second open commitment: got %v", err)
	}

	committed, err := svc.Commit(ctx, inv, c.ID)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if committed.Status != models.CommitmentCommitted || committed.CommittedAt == nil {
		t.Fatalf("after commit: %+v", committed)
	}
	if _, err := svc.Commit(ctx, inv, c.ID); !IsKind(err, KindConflict) {
		t.Fatalf("commit twice: got %v", err)
	}

	rows, err := svc.ListMine(ctx, inv)
	if err != nil || len(rows) != 1 {
		t.Fatalf("list: %d %v", len(rows), err)
	}
}

func TestHighValueCommitmentNeedsApprovedKYC(t *testing.T) {
	f := newFixture(t)
	svc := NewCommitmentService(f.db, decimal.NewFromInt(100_000))
	ctx := context.Background()
	deal := testutil.CreateDeal(t, f.db, f.operator.ID, models.DealActive)

	f.db.Model(&models.Profile{}).Where("id = ?", f.investor.ID).Update("kyc_status", "approved")
	c, err := svc.Create(ctx, viewerFor(t, f.investor), CreateCommitmentInput{DealID: deal.ID, Amount: decimal.NewFromInt(100_000), Commit: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Status != models.CommitmentCommitted {
		t.Fatalf("status %s", c.Status)
	}

	f.db.Model(&models.Profile{}).Where("id = ?", f.investor.ID).Update("kyc_status", "expired")
	deal2 := testutil.CreateDeal(t, f.db, f.operator.ID, models.DealActive)
	if _, err := svc.Create(ctx, viewerFor(t, f.investor), CreateCommitmentInput{DealID: deal2.ID, Amount: decimal.NewFromInt(100_000)}); !IsKind(err, KindForbidden) {
		t.Fatalf("expired KYC: got %v", err)
	}
}
