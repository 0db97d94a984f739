package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"DealRoom/internal/models"
)

var errLostFundingRace = errors.New("commitment escrow link changed")

type EscrowService struct {
	db       *gorm.DB
	provider PaymentProvider
	notify   *NotificationService
	emails   *EmailQueue
	currency string
	now      func() time.Time
}

func NewEscrowService(db *gorm.DB, provider PaymentProvider, notify *NotificationService, emails *EmailQueue, currency string) *EscrowService {
	if currency == "" {
		currency = "usd"
	}
	return &EscrowService{
		db:       db,
		provider: provider,
		notify:   notify,
		emails:   emails,
		currency: strings.ToLower(currency),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type PaymentIntentResult struct {
	ClientSecret        string          `json:"client_secret"`
	PaymentIntentID     string          `json:"payment_intent_id"`
	EscrowTransactionID uint            `json:"escrow_transaction_id"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	Reused              bool            `json:"reused"`
}

// CreatePaymentIntent opens (or returns the open) deposit for a committed
// commitment owned by the caller.
func (s *EscrowService) CreatePaymentIntent(ctx context.Context, viewer *Viewer, commitmentID uint) (*PaymentIntentResult, error) {
	if viewer == nil {
		return nil, Unauthorized("Authentication required")
	}
	switch viewer.Role.(type) {
	case models.Investor:
	case models.Operator, models.Admin:
		return nil, Forbidden("Only investors can fund commitments")
	default:
		return nil, Forbidden("Unrecognized role")
	}

	var c models.InvestmentCommitment
	if err := s.db.WithContext(ctx).First(&c, commitmentID).Error; err != nil {
		return nil, notFoundOr(err, "Commitment")
	}
	if c.InvestorID != viewer.ID {
		return nil, Forbidden("You can only fund your own commitments")
	}
	if c.FundingStatus == models.FundingFunded {
		return nil, Conflict("Commitment is already funded")
	}
	switch c.Status {
	case models.CommitmentCancelled, models.CommitmentCompleted:
		return nil, Conflict("Commitment is %s", c.Status)
	case models.CommitmentDraft:
		return nil, BadRequest("Commitment must be committed before payment")
	case models.CommitmentFunded:
		return nil, Conflict("Commitment is already funded")
	}

	if c.EscrowTransactionID != nil {
		var existing models.EscrowTransaction
		err := s.db.WithContext(ctx).First(&existing, *c.EscrowTransactionID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if err == nil && existing.PaymentStatus == models.PaymentPending && existing.ClientSecret != "" {
			return &PaymentIntentResult{
				ClientSecret:        existing.ClientSecret,
				PaymentIntentID:     existing.PaymentIntentID,
				EscrowTransactionID: existing.ID,
				Amount:              existing.Amount,
				Currency:            existing.Currency,
				Reused:              true,
			}, nil
		}
	}

	minor := models.MinorUnits(c.Amount)
	if minor <= 0 {
		return nil, BadRequest("Commitment amount must be positive")
	}

	intent, err := s.provider.CreatePaymentIntent(ctx, PaymentIntentRequest{
		AmountMinor:    minor,
		Currency:       s.currency,
		IdempotencyKey: "pi-" + uuid.NewString(),
		Metadata: map[string]string{
			"commitment_id": strconv.FormatUint(uint64(c.ID), 10),
			"investor_id":   strconv.FormatUint(uint64(c.InvestorID), 10),
			"deal_id":       strconv.FormatUint(uint64(c.DealID), 10),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	escrow := models.EscrowTransaction{
		CommitmentID:    c.ID,
		InvestorID:      c.InvestorID,
		Type:            models.EscrowDeposit,
		Amount:          models.FromMinorUnits(minor),
		Currency:        s.currency,
		Status:          models.EscrowOpen,
		PaymentStatus:   models.PaymentPending,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&escrow).Error; err != nil {
			return err
		}
		q := tx.Model(&models.InvestmentCommitment{}).
			Where("id = ? AND funding_status <> ?", c.ID, models.FundingFunded)
		if c.EscrowTransactionID == nil {
			q = q.Where("escrow_transaction_id IS NULL")
		} else {
			q = q.Where("escrow_transaction_id = ?", *c.EscrowTransactionID)
		}
		res := q.Updates(map[string]any{
			"escrow_transaction_id": escrow.ID,
			"funding_status":        models.FundingPendingPayment,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errLostFundingRace
		}
		return nil
	})
	if err != nil {
		if cancelErr := s.provider.CancelPaymentIntent(ctx, intent.ID); cancelErr != nil {
			log.Printf("⚠️  Orphan payment intent %s not cancelled: %v", intent.ID, cancelErr)
		}
		if errors.Is(err, errLostFundingRace) {
			return nil, Conflict("Commitment payment changed, please retry")
		}
		return nil, fmt.Errorf("failed to record escrow transaction: %w", err)
	}

	log.Printf("✅ Payment intent %s opened for commitment %d", intent.ID, c.ID)
	return &PaymentIntentResult{
		ClientSecret:        intent.ClientSecret,
		PaymentIntentID:     intent.ID,
		EscrowTransactionID: escrow.ID,
		Amount:              escrow.Amount,
		Currency:            escrow.Currency,
	}, nil
}

type RefundResult struct {
	RefundID            string          `json:"refund_id"`
	Amount              decimal.Decimal `json:"amount"`
	Status              string          `json:"status"`
	EscrowTransactionID uint            `json:"escrow_transaction_id"`
}

// Refund asks the provider to refund a settled deposit. Local escrow state
// changes only when the provider confirms the refund.
func (s *EscrowService) Refund(ctx context.Context, viewer *Viewer, escrowID uint, amount *decimal.Decimal) (*RefundResult, error) {
	if !viewer.IsAdmin() {
		return nil, Forbidden("Admin access required")
	}

	var e models.EscrowTransaction
	if err := s.db.WithContext(ctx).First(&e, escrowID).Error; err != nil {
		return nil, notFoundOr(err, "Escrow transaction")
	}
	if e.Type != models.EscrowDeposit || e.PaymentIntentID == "" {
		return nil, BadRequest("Escrow transaction has no payment to refund")
	}
	if e.PaymentStatus != models.PaymentSucceeded {
		return nil, BadRequest("Payment has not succeeded")
	}

	remaining := e.Refundable()
	value := remaining
	if amount != nil {
		value = *amount
	}
	if !value.IsPositive() {
		return nil, BadRequest("Refund amount must be positive")
	}
	if value.GreaterThan(remaining) {
		return nil, BadRequest("Refund amount exceeds refundable balance of %s", remaining.StringFixed(2))
	}

	refund, err := s.provider.CreateRefund(ctx, e.PaymentIntentID, models.MinorUnits(value), "refund-"+uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}
	log.Printf("✅ Refund %s requested for escrow %d (%s)", refund.ID, e.ID, value.StringFixed(2))
	return &RefundResult{
		RefundID:            refund.ID,
		Amount:              models.FromMinorUnits(refund.AmountMinor),
		Status:              refund.Status,
		EscrowTransactionID: e.ID,
	}, nil
}

type AdminAction string

const (
	ActionFund     AdminAction = "fund"
	ActionComplete AdminAction = "complete"
	ActionCancel   AdminAction = "cancel"
	ActionFlag     AdminAction = "flag"
)

var actionTargets = map[AdminAction]models.CommitmentStatus{
	ActionFund:     models.CommitmentFunded,
	ActionComplete: models.CommitmentCompleted,
	ActionCancel:   models.CommitmentCancelled,
}

// ApplyAdminAction moves a commitment through its lifecycle on an admin's behalf.
func (s *EscrowService) ApplyAdminAction(ctx context.Context, viewer *Viewer, commitmentID uint, action AdminAction, notes string) (*models.InvestmentCommitment, error) {
	if !viewer.IsAdmin() {
		return nil, Forbidden("Admin access required")
	}
	target, isTransition := actionTargets[action]
	if !isTransition && action != ActionFlag {
		return nil, BadRequest("Unknown action %q", action)
	}

	var c models.InvestmentCommitment
	if err := s.db.WithContext(ctx).Preload("Deal").Preload("Investor").First(&c, commitmentID).Error; err != nil {
		return nil, notFoundOr(err, "Commitment")
	}

	if action == ActionFlag {
		if strings.TrimSpace(notes) == "" {
			return nil, BadRequest("Notes are required to flag a commitment")
		}
		if err := s.db.WithContext(ctx).Model(&models.InvestmentCommitment{}).Where("id = ?", c.ID).Update("notes", notes).Error; err != nil {
			return nil, err
		}
		c.Notes = notes
		return &c, nil
	}

	from := c.Status
	if !from.CanTransitionTo(target) {
		return nil, Conflict("Cannot %s a %s commitment", action, from)
	}

	now := s.now()
	updates := map[string]any{"status": target}
	switch target {
	case models.CommitmentFunded:
		updates["funding_status"] = models.FundingFunded
		updates["funded_at"] = now
	case models.CommitmentCompleted:
		updates["completed_at"] = now
	case models.CommitmentCancelled:
		updates["cancelled_at"] = now
		if c.FundingStatus == models.FundingPendingPayment {
			updates["funding_status"] = models.FundingNone
		}
	}
	if notes != "" {
		updates["notes"] = notes
	}

	res := s.db.WithContext(ctx).Model(&models.InvestmentCommitment{}).
		Where("id = ? AND status = ?", c.ID, from).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, Conflict("Commitment was updated by someone else, please reload")
	}
	if err := s.db.WithContext(ctx).Preload("Deal").Preload("Investor").First(&c, c.ID).Error; err != nil {
		return nil, err
	}

	if target == models.CommitmentCancelled && from == models.CommitmentCommitted {
		s.cancelOpenIntent(ctx, &c)
	}
	s.notifyCommitmentStatus(ctx, &c)
	return &c, nil
}

func (s *EscrowService) cancelOpenIntent(ctx context.Context, c *models.InvestmentCommitment) {
	if c.EscrowTransactionID == nil {
		return
	}
	var e models.EscrowTransaction
	if err := s.db.WithContext(ctx).First(&e, *c.EscrowTransactionID).Error; err != nil {
		return
	}
	if e.PaymentStatus != models.PaymentPending || e.PaymentIntentID == "" {
		return
	}
	if err := s.provider.CancelPaymentIntent(ctx, e.PaymentIntentID); err != nil {
		log.Printf("⚠️  Payment intent %s not cancelled: %v", e.PaymentIntentID, err)
	}
}

func (s *EscrowService) notifyCommitmentStatus(ctx context.Context, c *models.InvestmentCommitment) {
	title := dealTitle(c.Deal)
	amount := formatMoney(c.Amount, s.currency)
	s.notify.NotifyUser(ctx, c.InvestorID, NotificationInput{
		Type:    models.NotificationInvestmentUpdated,
		Title:   "Commitment " + string(c.Status),
		Message: fmt.Sprintf("Your commitment of %s to %s is now %s", amount, title, c.Status),
		Link:    "/investments",
		Data:    map[string]any{"commitment_id": c.ID, "deal_id": c.DealID, "status": c.Status},
	})
	if c.Investor != nil {
		s.emails.Enqueue(ctx, c.Investor.Email, TemplateInvestmentStatus, map[string]any{
			"Name":      c.Investor.FullName,
			"DealTitle": title,
			"Amount":    amount,
			"Status":    string(c.Status),
			"Notes":     c.Notes,
		})
	}
}

// HandlePaymentEvent applies a verified provider event. It is the only
// writer of payment_status and refund fields, and replays are no-ops.
func (s *EscrowService) HandlePaymentEvent(ctx context.Context, event *PaymentEvent) error {
	if event == nil || event.PaymentIntentID == "" {
		return nil
	}
	switch event.Type {
	case PaymentEventSucceeded:
		return s.applySucceeded(ctx, event)
	case PaymentEventFailed:
		return s.applyFailed(ctx, event)
	case PaymentEventRefunded:
		return s.applyRefunded(ctx, event)
	}
	log.Printf("ℹ️  Ignoring payment event %s (%s)", event.ID, event.Type)
	return nil
}

func (s *EscrowService) findDeposit(ctx context.Context, paymentIntentID string) (*models.EscrowTransaction, error) {
	var e models.EscrowTransaction
	err := s.db.WithContext(ctx).
		Where("payment_intent_id = ? AND type = ?", paymentIntentID, models.EscrowDeposit).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("⚠️  No escrow transaction for payment intent %s", paymentIntentID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *EscrowService) applySucceeded(ctx context.Context, event *PaymentEvent) error {
	e, err := s.findDeposit(ctx, event.PaymentIntentID)
	if err != nil || e == nil {
		return err
	}
	if e.PaymentStatus == models.PaymentSucceeded {
		return nil
	}

	now := s.now()
	funded := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.EscrowTransaction{}).
			Where("id = ? AND payment_status <> ?", e.ID, models.PaymentSucceeded).
			Updates(map[string]any{
				"payment_status":  models.PaymentSucceeded,
				"status":          models.EscrowHeld,
				"failure_message": "",
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		res = tx.Model(&models.InvestmentCommitment{}).
			Where("id = ? AND escrow_transaction_id = ? AND status = ?", e.CommitmentID, e.ID, models.CommitmentCommitted).
			Updates(map[string]any{
				"status":         models.CommitmentFunded,
				"funding_status": models.FundingFunded,
				"funded_at":      now,
			})
		if res.Error != nil {
			return res.Error
		}
		funded = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply payment success: %w", err)
	}
	if !funded {
		log.Printf("⚠️  Payment %s succeeded but commitment %d was not awaiting it", event.PaymentIntentID, e.CommitmentID)
		return nil
	}

	var c models.InvestmentCommitment
	if err := s.db.WithContext(ctx).Preload("Deal").Preload("Investor").First(&c, e.CommitmentID).Error; err != nil {
		log.Printf("⚠️  Commitment %d funded but not reloaded: %v", e.CommitmentID, err)
		return nil
	}
	title := dealTitle(c.Deal)
	amount := formatMoney(e.Amount, e.Currency)
	s.notify.NotifyUser(ctx, c.InvestorID, NotificationInput{
		Type:    models.NotificationPaymentReceived,
		Title:   "Payment received",
		Message: fmt.Sprintf("We received %s for %s", amount, title),
		Link:    "/investments",
		Data:    map[string]any{"commitment_id": c.ID, "escrow_transaction_id": e.ID},
	})
	s.notify.NotifyAdmins(ctx, NotificationInput{
		Type:    models.NotificationPaymentReceived,
		Title:   "Commitment funded",
		Message: fmt.Sprintf("Commitment %d to %s was funded with %s", c.ID, title, amount),
		Link:    "/admin/investments",
		Data:    map[string]any{"commitment_id": c.ID, "escrow_transaction_id": e.ID},
	})
	if c.Investor != nil {
		s.emails.Enqueue(ctx, c.Investor.Email, TemplatePaymentReceived, map[string]any{
			"Name":      c.Investor.FullName,
			"DealTitle": title,
			"Amount":    amount,
		})
	}
	log.Printf("✅ Commitment %d funded by payment %s", c.ID, event.PaymentIntentID)
	return nil
}

func (s *EscrowService) applyFailed(ctx context.Context, event *PaymentEvent) error {
	e, err := s.findDeposit(ctx, event.PaymentIntentID)
	if err != nil || e == nil {
		return err
	}
	if e.PaymentStatus != models.PaymentPending {
		return nil
	}

	changed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.EscrowTransaction{}).
			Where("id = ? AND payment_status = ?", e.ID, models.PaymentPending).
			Updates(map[string]any{
				"payment_status":  models.PaymentFailed,
				"status":          models.EscrowFailed,
				"failure_message": event.FailureMessage,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true
		return tx.Model(&models.InvestmentCommitment{}).
			Where("id = ? AND escrow_transaction_id = ? AND funding_status = ?", e.CommitmentID, e.ID, models.FundingPendingPayment).
			Update("funding_status", models.FundingNone).Error
	})
	if err != nil {
		return fmt.Errorf("apply payment failure: %w", err)
	}
	if changed {
		msg := "Your payment could not be completed. You can try again from your portfolio."
		if event.FailureMessage != "" {
			msg = "Your payment could not be completed: " + event.FailureMessage
		}
		s.notify.NotifyUser(ctx, e.InvestorID, NotificationInput{
			Type:    models.NotificationPaymentFailed,
			Title:   "Payment failed",
			Message: msg,
			Link:    "/investments",
			Data:    map[string]any{"commitment_id": e.CommitmentID, "escrow_transaction_id": e.ID},
		})
	}
	return nil
}

func (s *EscrowService) applyRefunded(ctx context.Context, event *PaymentEvent) error {
	e, err := s.findDeposit(ctx, event.PaymentIntentID)
	if err != nil || e == nil {
		return err
	}

	total := models.FromMinorUnits(event.AmountRefundedMinor)
	status := models.EscrowPartiallyRefunded
	if event.AmountRefundedMinor >= models.MinorUnits(e.Amount) {
		status = models.EscrowRefunded
	}
	now := s.now()
	var recorded []models.EscrowTransaction

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range event.Refunds {
			if r.ID == "" {
				continue
			}
			var n int64
			if err := tx.Model(&models.EscrowTransaction{}).Where("refund_id = ?", r.ID).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				continue
			}
			refundID := r.ID
			row := models.EscrowTransaction{
				CommitmentID:    e.CommitmentID,
				InvestorID:      e.InvestorID,
				Type:            models.EscrowRefund,
				Amount:          models.FromMinorUnits(r.AmountMinor),
				Currency:        e.Currency,
				Status:          models.EscrowRefunded,
				PaymentStatus:   models.PaymentSucceeded,
				PaymentIntentID: e.PaymentIntentID,
				RefundID:        &refundID,
				RefundedAt:      &now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			recorded = append(recorded, row)
		}

		if e.RefundAmount != nil && e.RefundAmount.Equal(total) && e.Status == status {
			return nil
		}
		return tx.Model(&models.EscrowTransaction{}).Where("id = ?", e.ID).Updates(map[string]any{
			"refund_amount": total,
			"refunded_at":   now,
			"status":        status,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("apply refund: %w", err)
	}

	for _, r := range recorded {
		s.notify.NotifyUser(ctx, e.InvestorID, NotificationInput{
			Type:    models.NotificationRefundProcessed,
			Title:   "Refund processed",
			Message: fmt.Sprintf("A refund of %s was issued to your payment method", formatMoney(r.Amount, r.Currency)),
			Link:    "/investments",
			Data:    map[string]any{"commitment_id": e.CommitmentID, "refund_id": *r.RefundID},
		})
	}
	return nil
}

type CommitmentFilter struct {
	Status        string
	FundingStatus string
	Limit         int
	Offset        int
}

func (s *EscrowService) ListCommitments(ctx context.Context, f CommitmentFilter) ([]models.InvestmentCommitment, int64, error) {
	limit, offset := PageBounds(f.Limit, f.Offset)
	q := s.db.WithContext(ctx).Model(&models.InvestmentCommitment{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.FundingStatus != "" {
		q = q.Where("funding_status = ?", f.FundingStatus)
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	rows := []models.InvestmentCommitment{}
	err := q.Session(&gorm.Session{}).Preload("Deal").Preload("Investor").
		Order("created_at DESC").Order("id DESC").
		Limit(limit).Offset(offset).Find(&rows).Error
	return rows, total, err
}

func (s *EscrowService) ListEscrow(ctx context.Context, paymentStatus string, limit, offset int) ([]models.EscrowTransaction, int64, error) {
	limit, offset = PageBounds(limit, offset)
	q := s.db.WithContext(ctx).Model(&models.EscrowTransaction{})
	if paymentStatus != "" {
		q = q.Where("payment_status = ?", paymentStatus)
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	rows := []models.EscrowTransaction{}
	err := q.Session(&gorm.Session{}).Order("created_at DESC").Order("id DESC").
		Limit(limit).Offset(offset).Find(&rows).Error
	return rows, total, err
}

// PageBounds clamps paging to at most 100 rows, defaulting to 20.
func PageBounds(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func dealTitle(d *models.Deal) string {
	if d == nil || d.Title == "" {
		return "the deal"
	}
	return d.Title
}

func formatMoney(amount decimal.Decimal, currency string) string {
	return strings.ToUpper(currency) + " " + amount.StringFixed(2)
}
