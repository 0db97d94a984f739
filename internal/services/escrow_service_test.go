package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"DealRoom/internal/models"
	"DealRoom/internal/testutil"
)

func (f *fixture) commitment(t *testing.T, status models.CommitmentStatus, amount string) models.InvestmentCommitment {
	t.Helper()
	deal := testutil.CreateDeal(t, f.db, f.operator.ID, models.DealActive)
	c := models.InvestmentCommitment{
		InvestorID:    f.investor.ID,
		DealID:        deal.ID,
		Amount:        decimal.RequireFromString(amount),
		Status:        status,
		FundingStatus: models.FundingNone,
	}
	if status == models.CommitmentFunded || status == models.CommitmentCompleted {
		c.FundingStatus = models.FundingFunded
	}
	if err := f.db.Create(&c).Error; err != nil {
		t.Fatalf("create commitment: %v", err)
	}
	return c
}

func (f *fixture) escrowService(p PaymentProvider) *EscrowService {
	return NewEscrowService(f.db, p, f.notify, f.emails, "usd")
}

func reloadCommitment(t *testing.T, f *fixture, id uint) models.InvestmentCommitment {
	t.Helper()
	var c models.InvestmentCommitment
	if err := f.db.First(&c, id).Error; err != nil {
		t.Fatalf("reload commitment: %v", err)
	}
	return c
}

func reloadEscrow(t *testing.T, f *fixture, id uint) models.EscrowTransaction {
	t.Helper()
	var e models.EscrowTransaction
	if err := f.db.First(&e, id).Error; err != nil {
		t.Fatalf("reload escrow: %v", err)
	}
	return e
}

func TestCreatePaymentIntentGuards(t *testing.T) {
	f := newFixture(t)
	svc := f.escrowService(&fakeProvider{})
	ctx := context.Background()
	inv := viewerFor(t, f.investor)

	if _, err := svc.CreatePaymentIntent(ctx, inv, 9999); !IsKind(err, KindNotFound) {
		t.Fatalf("missing commitment: got %v", err)
	}

	other := testutil.CreateProfile(t, f.db, "Other Investor", models.RoleInvestor)
	c := f.commitment(t, models.CommitmentCommitted, "50000")
	if _, err := svc.CreatePaymentIntent(ctx, viewerFor(t, other), c.ID); !IsKind(err, KindForbidden) {
		t.Fatalf("foreign commitment: got %v", err)
	}
	if _, err := svc.CreatePaymentIntent(ctx, viewerFor(t, f.operator), c.ID); !IsKind(err, KindForbidden) {
		t.Fatalf("operator: got %v", err)
	}

	draft := f.commitment(t, models.CommitmentDraft, "50000")
	if _, err := svc.CreatePaymentIntent(ctx, inv, draft.ID); !IsKind(err, KindBadRequest) {
		t.Fatalf("draft: got %v", err)
	}
	cancelled := f.commitment(t, models.CommitmentCancelled, "50000")
	if _, err := svc.CreatePaymentIntent(ctx, inv, cancelled.ID); !IsKind(err, KindConflict) {
		t.Fatalf("cancelled: got %v", err)
	}
	funded := f.commitment(t, models.CommitmentFunded, "50000")
	if _, err := svc.CreatePaymentIntent(ctx, inv, funded.ID); !IsKind(err, KindConflict) {
		t.Fatalf("funded: got %v", err)
	}
}

func TestCreatePaymentIntentIsIdempotentWhilePending(t *testing.T) {
	f := newFixture(t)
	provider := &fakeProvider{}
	svc := f.escrowService(provider)
	ctx := context.Background()
	c := f.commitment(t, models.CommitmentCommitted, "10.005")

	first, err := svc.CreatePaymentIntent(ctx, viewerFor(t, f.investor), c.ID)
	if err != nil {
		t.Fatalf("first intent: %v", err)
	}
	if got := provider.created[0].AmountMinor; got != 1001 {
		t.Fatalf("expected 1001 minor units, got %d", got)
	}

	second, err := svc.CreatePaymentIntent(ctx, viewerFor(t, f.investor), c.ID)
	if err != nil {
		t.Fatalf("second intent: %v", err)
	}
	if !second.Reused || second.ClientSecret != first.ClientSecret {
		t.Fatalf("expected reused secret %q, got %+v", first.ClientSecret, second)
	}
	if len(provider.created) != 1 {
		t.Fatalf("provider called %d times", len(provider.created))
	}

	got := reloadCommitment(t, f, c.ID)
	if got.FundingStatus != models.FundingPendingPayment || got.EscrowTransactionID == nil || *got.EscrowTransactionID != first.EscrowTransactionID {
		t.Fatalf("commitment not linked: %+v", got)
	}
}

func TestCreatePaymentIntentLosingRaceCancelsOrphan(t *testing.T) {
	f := newFixture(t)
	c := f.commitment(t, models.CommitmentCommitted, "25000")

	provider := &fakeProvider{}
	provider.CreateFn = func(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error) {
		// Another request links its own escrow while this one talks to the provider.
		other := models.EscrowTransaction{
			CommitmentID: c.ID, InvestorID: c.InvestorID, Type: models.EscrowDeposit,
			Amount: c.Amount, PaymentIntentID: "pi_winner", ClientSecret: "winner_secret",
		}
		if err := f.db.Create(&other).Error; err != nil {
			t.Fatalf("create winner: %v", err)
		}
		if err := f.db.Model(&models.InvestmentCommitment{}).Where("id = ?", c.ID).Updates(map[string]any{
			"escrow_transaction_id": other.ID,
			"funding_status":        models.FundingPendingPayment,
		}).Error; err != nil {
			t.Fatalf("link winner: %v", err)
		}
		return &PaymentIntent{ID: "pi_loser", ClientSecret: "loser_secret"}, nil
	}
	svc := f.escrowService(provider)

	_, err := svc.CreatePaymentIntent(context.Background(), viewerFor(t, f.investor), c.ID)
	wantKind(t, err, KindConflict)

	if len(provider.cancelled) != 1 || provider.cancelled[0] != "pi_loser" {
		t.Fatalf("orphan intent not cancelled: %v", provider.cancelled)
	}
	if n := countRows(t, f.db, &models.EscrowTransaction{}, "payment_intent_id = ?", "pi_loser"); n != 0 {
		t.Fatalf("losing escrow row kept: %d", n)
	}
	got := reloadCommitment(t, f, c.ID)
	var winner models.EscrowTransaction
	f.db.Where("payment_intent_id = ?", "pi_winner").First(&winner)
	if got.EscrowTransactionID == nil || *got.EscrowTransactionID != winner.ID {
		t.Fatalf("winner link overwritten: %+v", got)
	}
}

func TestWebhookSuccessFundsCommitmentOnce(t *testing.T) {
	f := newFixture(t)
	svc := f.escrowService(&fakeProvider{})
	ctx := context.Background()
	c := f.commitment(t, models.CommitmentCommitted, "25000")

	intent, err := svc.CreatePaymentIntent(ctx, viewerFor(t, f.investor), c.ID)
	if err != nil {
		t.Fatalf("intent: %v", err)
	}
	event := &PaymentEvent{ID: "evt_1", Type: PaymentEventSucceeded, PaymentIntentID: intent.PaymentIntentID}
	if err := svc.HandlePaymentEvent(ctx, event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got := reloadCommitment(t, f, c.ID)
	if got.Status != models.CommitmentFunded || got.FundingStatus != models.FundingFunded || got.FundedAt == nil {
		t.Fatalf("commitment not funded: %+v", got)
	}
	e := reloadEscrow(t, f, intent.EscrowTransactionID)
	if e.PaymentStatus != models.PaymentSucceeded || e.Status != models.EscrowHeld {
		t.Fatalf("escrow not settled: %+v", e)
	}

	investorNotes := countRows(t, f.db, &models.Notification{}, "user_id = ? AND type = ?", f.investor.ID, models.NotificationPaymentReceived)
	adminNotes := countRows(t, f.db, &models.Notification{}, "user_id = ? AND type = ?", f.admin.ID, models.NotificationPaymentReceived)
	if investorNotes != 1 || adminNotes != 1 {
		t.Fatalf("notifications investor=%d admin=%d", investorNotes, adminNotes)
	}

	if err := svc.HandlePaymentEvent(ctx, event); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if n := countRows(t, f.db, &models.Notification{}, "type = ?", models.NotificationPaymentReceived); n != 2 {
		t.Fatalf("replay produced notifications: %d", n)
	}
	if n := f.outboxCount(t, TemplatePaymentReceived); n != 1 {
		t.Fatalf("payment emails queued: %d", n)
	}

	if _, err := svc.CreatePaymentIntent(ctx, viewerFor(t, f.investor), c.ID); !IsKind(err, KindConflict) {
		t.Fatalf("intent after funding: got %v", err)
	}
}

func TestWebhookFailureResetsFunding(t *testing.T) {
	f := newFixture(t)
	provider := &fakeProvider{}
	svc := f.escrowService(provider)
	ctx := context.Background()
	c := f.commitment(t, models.CommitmentCommitted, "25000")

	intent, err := svc.CreatePaymentIntent(ctx, viewerFor(t, f.investor), c.ID)
	if err != nil {
		t.Fatalf("intent: %v", err)
	}
	err = svc.HandlePaymentEvent(ctx, &PaymentEvent{Type: PaymentEventFailed, PaymentIntentID: intent.PaymentIntentID, FailureMessage: "card declined"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	got := reloadCommitment(t, f, c.ID)
	if got.FundingStatus != models.FundingNone || got.Status != models.CommitmentCommitted {
		t.Fatalf("commitment after failure: %+v", got)
	}
	e := reloadEscrow(t, f, intent.EscrowTransactionID)
	if e.PaymentStatus != models.PaymentFailed || e.FailureMessage != "card declined" {
		t.Fatalf("escrow after failure: %+v", e)
	}

	retry, err := svc.CreatePaymentIntent(ctx, viewerFor(t, f.investor), c.ID)
	if err != nil {
		t.Fatalf("retry intent: %v", err)
	}
	if retry.Reused || retry.EscrowTransactionID == intent.EscrowTransactionID {
		t.Fatalf("expected a fresh intent, got %+v", retry)
	}
}

func TestWebhookRefundRecordsEachRefundOnce(t *testing.T) {
	f := newFixture(t)
	svc := f.escrowService(&fakeProvider{})
	ctx := context.Background()
	c := f.commitment(t, models.CommitmentCommitted, "100")

	intent, _ := svc.CreatePaymentIntent(ctx, viewerFor(t, f.investor), c.ID)
	_ = svc.HandlePaymentEvent(ctx, &PaymentEvent{Type: PaymentEventSucceeded, PaymentIntentID: intent.PaymentIntentID})

	partial := &PaymentEvent{
		Type:                PaymentEventRefunded,
		PaymentIntentID:     intent.PaymentIntentID,
		AmountRefundedMinor: 4000,
		Refunds:             []ProviderRefund{{ID: "re_1", AmountMinor: 4000}},
	}
	if err := svc.HandlePaymentEvent(ctx, partial); err != nil {
		t.Fatalf("partial refund: %v", err)
	}
	e := reloadEscrow(t, f, intent.EscrowTransactionID)
	if e.Status != models.EscrowPartiallyRefunded || e.RefundAmount == nil || !e.RefundAmount.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("after partial refund: %+v", e)
	}

	if err := svc.HandlePaymentEvent(ctx, partial); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if n := countRows(t, f.db, &models.EscrowTransaction{}, "type = ?", models.EscrowRefund); n != 1 {
		t.Fatalf("refund rows after replay: %d", n)
	}

	full := &PaymentEvent{
		Type:                PaymentEventRefunded,
		PaymentIntentID:     intent.PaymentIntentID,
		AmountRefundedMinor: 10000,
		Refunds:             []ProviderRefund{{ID: "re_2", AmountMinor: 6000}, {ID: "re_1", AmountMinor: 4000}},
	}
	if err := svc.HandlePaymentEvent(ctx, full); err != nil {
		t.Fatalf("full refund: %v", err)
	}
	e = reloadEscrow(t, f, intent.EscrowTransactionID)
	if e.Status != models.EscrowRefunded || e.RefundedAt == nil || !e.Refundable().IsZero() {
		t.Fatalf("after full refund: %+v", e)
	}
	if n := countRows(t, f.db, &models.EscrowTransaction{}, "type = ?", models.EscrowRefund); n != 2 {
		t.Fatalf("refund rows: %d", n)
	}
	if n := countRows(t, f.db, &models.Notification{}, "type = ?", models.NotificationRefundProcessed); n != 2 {
		t.Fatalf("refund notifications: %d", n)
	}
}

func TestRefundValidatesWithoutMutating(t *testing.T) {
	f := newFixture(t)
	provider := &fakeProvider{}
	svc := f.escrowService(provider)
	ctx := context.Background()
	admin := viewerFor(t, f.admin)
	c := f.commitment(t, models.CommitmentCommitted, "250")

	intent, _ := svc.CreatePaymentIntent(ctx, viewerFor(t, f.investor), c.ID)

	if _, err := svc.Refund(ctx, viewerFor(t, f.investor), intent.EscrowTransactionID, nil); !IsKind(err, KindForbidden) {
		t.Fatalf("investor refund: got %v", err)
	}
	if _, err := svc.Refund(ctx, admin, 424242, nil); !IsKind(err, KindNotFound) {
		t.Fatalf("missing escrow: got %v", err)
	}
	if _, err := svc.Refund(ctx, admin, intent.EscrowTransactionID, nil); !IsKind(err, KindBadRequest) {
		t.Fatalf("pending payment: got %v", err)
	}

	_ = svc.HandlePaymentEvent(ctx, &PaymentEvent{Type: PaymentEventSucceeded, PaymentIntentID: intent.PaymentIntentID})

	tooMuch := decimal.NewFromInt(251)
	if _, err := svc.Refund(ctx, admin, intent.EscrowTransactionID, &tooMuch); !IsKind(err, KindBadRequest) {
		t.Fatalf("excess refund: got %v", err)
	}
	zero := decimal.Zero
	if _, err := svc.Refund(ctx, admin, intent.EscrowTransactionID, &zero); !IsKind(err, KindBadRequest) {
		t.Fatalf("zero refund: got %v", err)
	}

	part := decimal.RequireFromString("99.99")
	res, err := svc.Refund(ctx, admin, intent.EscrowTransactionID, &part)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if res.RefundID == "" || provider.refunds[0] != 9999 {
		t.Fatalf("unexpected refund %+v / %v", res, provider.refunds)
	}
	e := reloadEscrow(t, f, intent.EscrowTransactionID)
	if e.RefundAmount != nil || e.RefundedAt != nil || e.Status != models.EscrowHeld {
		t.Fatalf("refund request mutated escrow: %+v", e)
	}
}

func TestApplyAdminAction(t *testing.T) {
	f := newFixture(t)
	svc := f.escrowService(&fakeProvider{})
	ctx := context.Background()
	admin := viewerFor(t, f.admin)

	c := f.commitment(t, models.CommitmentCommitted, "1000")
	if _, err := svc.ApplyAdminAction(ctx, viewerFor(t, f.operator), c.ID, ActionFund, ""); !IsKind(err, KindForbidden) {
		t.Fatalf("operator action: got %v", err)
	}
	if _, err := svc.ApplyAdminAction(ctx, admin, c.ID, "archive", ""); !IsKind(err, KindBadRequest) {
		t.Fatalf("unknown action: got %v", err)
	}
	if _, err := svc.ApplyAdminAction(ctx, admin, c.ID, ActionComplete, ""); !IsKind(err, KindConflict) {
		t.Fatalf("complete committed: got %v", err)
	}

	funded, err := svc.ApplyAdminAction(ctx, admin, c.ID, ActionFund, "wire received")
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if funded.Status != models.CommitmentFunded || funded.FundingStatus != models.FundingFunded || funded.Notes != "wire received" {
		t.Fatalf("after fund: %+v", funded)
	}
	completed, err := svc.ApplyAdminAction(ctx, admin, c.ID, ActionComplete, "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != models.CommitmentCompleted || completed.CompletedAt == nil {
		t.Fatalf("after complete: %+v", completed)
	}
	if _, err := svc.ApplyAdminAction(ctx, admin, c.ID, ActionCancel, ""); !IsKind(err, KindConflict) {
		t.Fatalf("cancel completed: got %v", err)
	}

	flagged, err := svc.ApplyAdminAction(ctx, admin, c.ID, ActionFlag, "check wire origin")
	if err != nil {
		t.Fatalf("flag: %v", err)
	}
	if flagged.Status != models.CommitmentCompleted || flagged.Notes != "check wire origin" {
		t.Fatalf("after flag: %+v", flagged)
	}

	if n := countRows(t, f.db, &models.Notification{}, "user_id = ? AND type = ?", f.investor.ID, models.NotificationInvestmentUpdated); n != 2 {
		t.Fatalf("status notifications: %d", n)
	}
	if n := f.outboxCount(t, TemplateInvestmentStatus); n != 2 {
		t.Fatalf("status emails: %d", n)
	}
}

func TestAdminCancelReleasesOpenIntent(t *testing.T) {
	f := newFixture(t)
	provider := &fakeProvider{}
	svc := f.escrowService(provider)
	ctx := context.Background()
	c := f.commitment(t, models.CommitmentCommitted, "1000")

	intent, err := svc.CreatePaymentIntent(ctx, viewerFor(t, f.investor), c.ID)
	if err != nil {
		t.Fatalf("intent: %v", err)
	}
	got, err := svc.ApplyAdminAction(ctx, viewerFor(t, f.admin), c.ID, ActionCancel, "")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != models.CommitmentCancelled || got.FundingStatus != models.FundingNone {
		t.Fatalf("after cancel: %+v", got)
	}
	if len(provider.cancelled) != 1 || provider.cancelled[0] != intent.PaymentIntentID {
		t.Fatalf("intent not cancelled: %v", provider.cancelled)
	}
}
