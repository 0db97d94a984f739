package services

import (
	"context"
	"testing"

	"DealRoom/internal/models"
	"DealRoom/internal/testutil"
)

func strPtr(s string) *string { return &s }

func TestDealVisibility(t *testing.T) {
	f := newFixture(t)
	svc := NewDealService(f.db, f.notify, f.emails)
	ctx := context.Background()

	other := testutil.CreateProfile(t, f.db, "Opal Other", models.RoleOperator)
	active := testutil.CreateDeal(t, f.db, other.ID, models.DealActive)
	ownPending := testutil.CreateDeal(t, f.db, f.operator.ID, models.DealPending)
	otherPending := testutil.CreateDeal(t, f.db, other.ID, models.DealPending)
	testutil.CreateDeal(t, f.db, other.ID, models.DealInactive)

	cases := []struct {
		name   string
		viewer *Viewer
		status string
		want   int
	}{
		{"anonymous", nil, "", 1},
		{"investor", viewerFor(t, f.investor), "", 1},
		{"investor asking for pending", viewerFor(t, f.investor), "pending", 0},
		{"operator", viewerFor(t, f.operator), "", 2},
		{"operator pending filter", viewerFor(t, f.operator), "pending", 1},
		{"admin", viewerFor(t, f.admin), "", 4},
		{"admin pending filter", viewerFor(t, f.admin), "pending", 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deals, err := svc.List(ctx, tc.viewer, tc.status)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(deals) != tc.want {
				t.Fatalf("expected %d deals, got %d", tc.want, len(deals))
			}
		})
	}

	if _, err := svc.Get(ctx, nil, active.ID); err != nil {
		t.Fatalf("anonymous get active: %v", err)
	}
	if _, err := svc.Get(ctx, viewerFor(t, f.investor), ownPending.ID); !IsKind(err, KindNotFound) {
		t.Fatalf("investor get pending: got %v", err)
	}
	if _, err := svc.Get(ctx, viewerFor(t, f.operator), ownPending.ID); err != nil {
		t.Fatalf("owner get pending: %v", err)
	}
	if _, err := svc.Get(ctx, viewerFor(t, f.operator), otherPending.ID); !IsKind(err, KindNotFound) {
		t.Fatalf("operator get foreign pending: got %v", err)
	}
	if _, err := svc.List(ctx, nil, "bogus"); !IsKind(err, KindBadRequest) {
		t.Fatalf("bad filter: got %v", err)
	}
}

func TestOperatorCannotChangeStatus(t *testing.T) {
	f := newFixture(t)
	svc := NewDealService(f.db, f.notify, f.emails)
	ctx := context.Background()
	op := viewerFor(t, f.operator)

	d, err := svc.Create(ctx, op, DealInput{Title: strPtr("Seed round"), Category: strPtr("fintech")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.Status != models.DealPending || d.OperatorID != f.operator.ID {
		t.Fatalf("operator deal: %+v", d)
	}

	if _, err := svc.Update(ctx, op, d.ID, DealInput{Status: strPtr("active")}); !IsKind(err, KindForbidden) {
		t.Fatalf("status change: got %v", err)
	}
	updated, err := svc.Update(ctx, op, d.ID, DealInput{Description: strPtr("Raising $2M")})
	if err != nil {
		t.Fatalf("description change: %v", err)
	}
	if updated.Description != "Raising $2M" || updated.Status != models.DealPending {
		t.Fatalf("after update: %+v", updated)
	}

	other := testutil.CreateProfile(t, f.db, "Odin Other", models.RoleOperator)
	if _, err := svc.Update(ctx, viewerFor(t, other), d.ID, DealInput{Title: strPtr("Mine now")}); !IsKind(err, KindForbidden) {
		t.Fatalf("non-owner update: got %v", err)
	}
	if _, err := svc.Create(ctx, viewerFor(t, f.investor), DealInput{Title: strPtr("x")}); !IsKind(err, KindForbidden) {
		t.Fatalf("investor create: got %v", err)
	}
	if err := svc.Delete(ctx, op, d.ID); !IsKind(err, KindForbidden) {
		t.Fatalf("operator delete: got %v", err)
	}
}

func TestActivationAlertsMatchingInvestors(t *testing.T) {
	f := newFixture(t)
	svc := NewDealService(f.db, f.notify, f.emails)
	ctx := context.Background()

	fintech := testutil.CreateProfile(t, f.db, "Fin Fan", models.RoleInvestor)
	f.db.Model(&models.Profile{}).Where("id = ?", fintech.ID).Update("categories", models.StringList([]string{"FinTech"}))
	bio := testutil.CreateProfile(t, f.db, "Bio Buff", models.RoleInvestor)
	f.db.Model(&models.Profile{}).Where("id = ?", bio.ID).Update("categories", models.StringList([]string{"biotech"}))

	d, err := svc.Create(ctx, viewerFor(t, f.operator), DealInput{Title: strPtr("Ledger"), Category: strPtr("fintech")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if n := countRows(t, f.db, &models.Notification{}, "type = ?", models.NotificationDealActivated); n != 0 {
		t.Fatalf("pending deal alerted %d investors", n)
	}

	activated, err := svc.Update(ctx, viewerFor(t, f.admin), d.ID, DealInput{Status: strPtr("active")})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if activated.ActivatedAt == nil {
		t.Fatal("activated_at not set")
	}

	alerted := func(id uint) int64 {
		return countRows(t, f.db, &models.Notification{}, "user_id = ? AND type = ?", id, models.NotificationDealActivated)
	}
	if alerted(fintech.ID) != 1 || alerted(f.investor.ID) != 1 || alerted(bio.ID) != 0 {
		t.Fatalf("alerts fintech=%d open=%d bio=%d", alerted(fintech.ID), alerted(f.investor.ID), alerted(bio.ID))
	}
	if n := f.outboxCount(t, TemplateDealAlert); n != 2 {
		t.Fatalf("alert emails: %d", n)
	}

	if _, err := svc.Update(ctx, viewerFor(t, f.admin), d.ID, DealInput{Title: strPtr("Ledger II")}); err != nil {
		t.Fatalf("edit active: %v", err)
	}
	if n := countRows(t, f.db, &models.Notification{}, "type = ?", models.NotificationDealActivated); n != 2 {
		t.Fatalf("re-alerted on edit: %d", n)
	}
}

func TestAdminCreatesActiveDeal(t *testing.T) {
	f := newFixture(t)
	svc := NewDealService(f.db, f.notify, f.emails)
	ctx := context.Background()
	admin := viewerFor(t, f.admin)

	if _, err := svc.Create(ctx, admin, DealInput{Title: strPtr("No owner")}); !IsKind(err, KindBadRequest) {
		t.Fatalf("missing operator: got %v", err)
	}
	invID := f.investor.ID
	if _, err := svc.Create(ctx, admin, DealInput{Title: strPtr("Bad owner"), OperatorID: &invID}); !IsKind(err, KindBadRequest) {
		t.Fatalf("investor owner: got %v", err)
	}
	opID := f.operator.ID
	d, err := svc.Create(ctx, admin, DealInput{Title: strPtr("Admin deal"), OperatorID: &opID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.Status != models.DealActive || d.OperatorID != opID {
		t.Fatalf("admin deal: %+v", d)
	}
	if err := svc.Delete(ctx, admin, d.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, admin, d.ID); !IsKind(err, KindNotFound) {
		t.Fatalf("second delete: got %v", err)
	}
}

func TestMatchesCategory(t *testing.T) {
	if !MatchesCategory(nil, "fintech") {
		t.Fatal("empty preferences should match")
	}
	if !MatchesCategory([]string{" FinTech "}, "fintech") {
		t.Fatal("case-insensitive match failed")
	}
	if MatchesCategory([]string{"biotech"}, "fintech") {
		t.Fatal("unexpected match")
	}
}
