package services

import (
	"context"
	"fmt"
	"log"
	"mime/multipart"
	"strings"
	"time"

	"gorm.io/gorm"

	"DealRoom/internal/models"
)

const (
	reviewValidity   = 365 * 24 * time.Hour
	maxDocumentBytes = 10 * 1024 * 1024
)

type ReviewAction string

const (
	ReviewApprove ReviewAction = "approve"
	ReviewReject  ReviewAction = "reject"
)

type ReviewInput struct {
	Action    ReviewAction
	RiskLevel string
	Reason    string
}

type KYCService struct {
	db     *gorm.DB
	store  DocumentStore
	notify *NotificationService
	emails *EmailQueue
	now    func() time.Time
}

func NewKYCService(db *gorm.DB, store DocumentStore, notify *NotificationService, emails *EmailQueue) *KYCService {
	return &KYCService{db: db, store: store, notify: notify, emails: emails, now: func() time.Time { return time.Now().UTC() }}
}

func (s *KYCService) upload(ctx context.Context, file *multipart.FileHeader, folder string) (*StoredDocument, error) {
	if err := ValidateDocument(file, maxDocumentBytes); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, fmt.Errorf("document storage is not configured")
	}
	return s.store.Upload(ctx, file, folder)
}

// SubmitKYC stores an identity document and opens a pending review.
func (s *KYCService) SubmitKYC(ctx context.Context, viewer *Viewer, documentType string, file *multipart.FileHeader) (*models.KYCSubmission, error) {
	if viewer == nil {
		return nil, Unauthorized("Authentication required")
	}
	switch viewer.Role.(type) {
	case models.Investor, models.Operator:
	case models.Admin:
		return nil, Forbidden("Admins do not submit KYC")
	default:
		return nil, Forbidden("Unrecognized role")
	}
	documentType = strings.TrimSpace(documentType)
	if documentType == "" {
		return nil, BadRequest("document_type is required")
	}
	if err := s.ensureNoPending(ctx, &models.KYCSubmission{}, viewer.ID); err != nil {
		return nil, err
	}

	doc, err := s.upload(ctx, file, "dealroom/kyc")
	if err != nil {
		return nil, err
	}
	sub := models.KYCSubmission{
		UserID:           viewer.ID,
		DocumentType:     documentType,
		DocumentURL:      doc.URL,
		DocumentPublicID: doc.PublicID,
		Status:           models.ReviewPending,
	}
	if err := s.db.WithContext(ctx).Create(&sub).Error; err != nil {
		s.discard(ctx, doc.PublicID)
		return nil, fmt.Errorf("failed to store KYC submission: %w", err)
	}
	s.mirror(ctx, viewer.ID, "kyc_status", models.ReviewPending)
	s.notify.NotifyAdmins(ctx, NotificationInput{
		Type:    models.NotificationKYCSubmitted,
		Title:   "New KYC submission",
		Message: fmt.Sprintf("%s submitted a %s for review", viewer.Name, documentType),
		Link:    fmt.Sprintf("/admin/kyc/%d", sub.ID),
		Data:    map[string]any{"kyc_id": sub.ID, "user_id": viewer.ID},
	})
	return &sub, nil
}

// SubmitVerification opens a pending accreditation review. Evidence is optional.
func (s *KYCService) SubmitVerification(ctx context.Context, viewer *Viewer, method, notes string, file *multipart.FileHeader) (*models.VerificationRequest, error) {
	if err := requireInvestor(viewer); err != nil {
		return nil, err
	}
	method = strings.TrimSpace(method)
	if method == "" {
		return nil, BadRequest("method is required")
	}
	if err := s.ensureNoPending(ctx, &models.VerificationRequest{}, viewer.ID); err != nil {
		return nil, err
	}

	req := models.VerificationRequest{
		UserID: viewer.ID,
		Method: method,
		Notes:  strings.TrimSpace(notes),
		Status: models.ReviewPending,
	}
	if file != nil {
		doc, err := s.upload(ctx, file, "dealroom/accreditation")
		if err != nil {
			return nil, err
		}
		req.EvidenceURL = doc.URL
		req.EvidencePublicID = doc.PublicID
	}
	if err := s.db.WithContext(ctx).Create(&req).Error; err != nil {
		if req.EvidencePublicID != "" {
			s.discard(ctx, req.EvidencePublicID)
		}
		return nil, fmt.Errorf("failed to store verification request: %w", err)
	}
	s.mirror(ctx, viewer.ID, "verification_status", models.ReviewPending)
	s.notify.NotifyAdmins(ctx, NotificationInput{
		Type:    models.NotificationKYCSubmitted,
		Title:   "New accreditation request",
		Message: fmt.Sprintf("%s requested accreditation via %s", viewer.Name, method),
		Link:    fmt.Sprintf("/admin/verifications/%d", req.ID),
		Data:    map[string]any{"verification_id": req.ID, "user_id": viewer.ID},
	})
	return &req, nil
}

func (s *KYCService) ensureNoPending(ctx context.Context, model any, userID uint) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(model).
		Where("user_id = ? AND status = ?", userID, models.ReviewPending).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return Conflict("A submission is already pending review")
	}
	return nil
}

func (s *KYCService) discard(ctx context.Context, publicID string) {
	if s.store == nil || publicID == "" {
		return
	}
	if err := s.store.Delete(ctx, publicID); err != nil {
		log.Printf("⚠️  Orphan document %s not deleted: %v", publicID, err)
	}
}

// mirror copies a review status onto the profile. Failures are logged only.
func (s *KYCService) mirror(ctx context.Context, userID uint, column string, status models.ReviewStatus) {
	if err := s.db.WithContext(ctx).Model(&models.Profile{}).
		Where("id = ?", userID).
		Update(column, string(status)).Error; err != nil {
		log.Printf("⚠️  Profile %d %s not updated to %s: %v", userID, column, status, err)
	}
}

type ReviewFilter struct {
	Status string
	Limit  int
	Offset int
}

func (s *KYCService) ListKYC(ctx context.Context, f ReviewFilter) ([]models.KYCSubmission, int64, error) {
	rows := []models.KYCSubmission{}
	total, err := s.listReviews(ctx, &models.KYCSubmission{}, &rows, f)
	return rows, total, err
}

func (s *KYCService) ListVerifications(ctx context.Context, f ReviewFilter) ([]models.VerificationRequest, int64, error) {
	rows := []models.VerificationRequest{}
	total, err := s.listReviews(ctx, &models.VerificationRequest{}, &rows, f)
	return rows, total, err
}

func (s *KYCService) listReviews(ctx context.Context, model, dest any, f ReviewFilter) (int64, error) {
	limit, offset := PageBounds(f.Limit, f.Offset)
	q := s.db.WithContext(ctx).Model(model)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return 0, err
	}
	err := q.Session(&gorm.Session{}).Preload("User").
		Order("created_at DESC").Order("id DESC").
		Limit(limit).Offset(offset).
		Find(dest).Error
	return total, err
}

func (s *KYCService) GetKYC(ctx context.Context, id uint) (*models.KYCSubmission, error) {
	var sub models.KYCSubmission
	if err := s.db.WithContext(ctx).Preload("User").First(&sub, id).Error; err != nil {
		return nil, notFoundOr(err, "KYC submission")
	}
	return &sub, nil
}

func (s *KYCService) GetVerification(ctx context.Context, id uint) (*models.VerificationRequest, error) {
	var req models.VerificationRequest
	if err := s.db.WithContext(ctx).Preload("User").First(&req, id).Error; err != nil {
		return nil, notFoundOr(err, "Verification request")
	}
	return &req, nil
}

type reviewOutcome struct {
	status    models.ReviewStatus
	riskLevel models.RiskLevel
	reason    string
	expiresAt *time.Time
}

func (s *KYCService) decide(in ReviewInput, approved models.ReviewStatus) (*reviewOutcome, error) {
	switch in.Action {
	case ReviewApprove:
		exp := s.now().Add(reviewValidity)
		return &reviewOutcome{
			status:    approved,
			riskLevel: models.NormalizeRiskLevel(strings.ToLower(strings.TrimSpace(in.RiskLevel))),
			expiresAt: &exp,
		}, nil
	case ReviewReject:
		reason := strings.TrimSpace(in.Reason)
		if reason == "" {
			return nil, BadRequest("A reason is required to reject")
		}
		return &reviewOutcome{status: models.ReviewRejected, reason: reason}, nil
	}
	return nil, BadRequest("Invalid action. Use approve or reject")
}

// ReviewKYC approves or rejects a pending KYC submission.
func (s *KYCService) ReviewKYC(ctx context.Context, viewer *Viewer, id uint, in ReviewInput) (*models.KYCSubmission, error) {
	if !viewer.IsAdmin() {
		return nil, Forbidden("Admin access required")
	}
	out, err := s.decide(in, models.ReviewApproved)
	if err != nil {
		return nil, err
	}
	sub, err := s.GetKYC(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.ReviewPending {
		return nil, Conflict("KYC submission is already %s", sub.Status)
	}

	now := s.now()
	updates := map[string]any{
		"status":           out.status,
		"reviewed_by":      viewer.ID,
		"reviewed_at":      now,
		"rejection_reason": out.reason,
		"expires_at":       out.expiresAt,
	}
	if out.status == models.ReviewApproved {
		updates["risk_level"] = out.riskLevel
	}
	res := s.db.WithContext(ctx).Model(&models.KYCSubmission{}).
		Where("id = ? AND status = ?", sub.ID, models.ReviewPending).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, Conflict("KYC submission was already reviewed")
	}
	sub.Status = out.status
	sub.ReviewedBy = &viewer.ID
	sub.ReviewedAt = &now
	sub.RejectionReason = out.reason
	sub.ExpiresAt = out.expiresAt
	if out.status == models.ReviewApproved {
		sub.RiskLevel = out.riskLevel
	}

	s.mirror(ctx, sub.UserID, "kyc_status", out.status)

	template := TemplateKYCRejected
	if out.status == models.ReviewApproved {
		template = TemplateKYCApproved
	}
	s.notifyReview(ctx, sub.User, models.NotificationKYCReviewed, "Identity verification "+string(out.status), template, out)
	log.Printf("✅ KYC submission %d %s by admin %d", sub.ID, out.status, viewer.ID)
	return sub, nil
}

// ReviewVerification verifies or rejects a pending accreditation request.
func (s *KYCService) ReviewVerification(ctx context.Context, viewer *Viewer, id uint, in ReviewInput) (*models.VerificationRequest, error) {
	if !viewer.IsAdmin() {
		return nil, Forbidden("Admin access required")
	}
	out, err := s.decide(in, models.ReviewVerified)
	if err != nil {
		return nil, err
	}
	req, err := s.GetVerification(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.ReviewPending {
		return nil, Conflict("Verification request is already %s", req.Status)
	}

	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.VerificationRequest{}).
		Where("id = ? AND status = ?", req.ID, models.ReviewPending).
		Updates(map[string]any{
			"status":           out.status,
			"reviewed_by":      viewer.ID,
			"reviewed_at":      now,
			"rejection_reason": out.reason,
			"expires_at":       out.expiresAt,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, Conflict("Verification request was already reviewed")
	}
	req.Status = out.status
	req.ReviewedBy = &viewer.ID
	req.ReviewedAt = &now
	req.RejectionReason = out.reason
	req.ExpiresAt = out.expiresAt

	s.mirror(ctx, req.UserID, "verification_status", out.status)

	template := TemplateVerificationRejected
	if out.status == models.ReviewVerified {
		template = TemplateVerificationApproved
	}
	s.notifyReview(ctx, req.User, models.NotificationVerificationUpdate, "Accreditation "+string(out.status), template, out)
	log.Printf("✅ Verification request %d %s by admin %d", req.ID, out.status, viewer.ID)
	return req, nil
}

func (s *KYCService) notifyReview(ctx context.Context, user *models.Profile, kind models.NotificationType, title, template string, out *reviewOutcome) {
	if user == nil {
		return
	}
	message := "Your submission was " + string(out.status)
	if out.reason != "" {
		message += ": " + out.reason
	}
	s.notify.NotifyUser(ctx, user.ID, NotificationInput{
		Type:    kind,
		Title:   title,
		Message: message,
		Link:    "/settings/verification",
		Data:    map[string]any{"status": out.status},
	})

	data := map[string]any{"Name": user.FullName, "Reason": out.reason}
	if out.expiresAt != nil {
		data["ExpiresAt"] = out.expiresAt.Format("January 2, 2006")
	}
	s.emails.Enqueue(ctx, user.Email, template, data)
}

// ExpireStale marks approved reviews past their expiry as expired and
// mirrors that onto profiles whose latest review it was. It returns how
// many rows changed.
func (s *KYCService) ExpireStale(ctx context.Context) (int, error) {
	now := s.now()

	changed, err := s.expire(ctx, &models.KYCSubmission{}, models.ReviewApproved, "kyc_status", now)
	if err != nil {
		return 0, err
	}
	n, err := s.expire(ctx, &models.VerificationRequest{}, models.ReviewVerified, "verification_status", now)
	changed += n
	if err != nil {
		return changed, err
	}
	if changed > 0 {
		log.Printf("⚠️  %d verification reviews expired", changed)
	}
	return changed, nil
}

func (s *KYCService) expire(ctx context.Context, model any, live models.ReviewStatus, column string, now time.Time) (int, error) {
	stale := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(model).
			Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", live, now)
	}

	var users []uint
	if err := stale().Distinct("user_id").Pluck("user_id", &users).Error; err != nil {
		return 0, err
	}
	if len(users) == 0 {
		return 0, nil
	}
	res := stale().Update("status", models.ReviewExpired)
	if res.Error != nil {
		return 0, res.Error
	}

	for _, id := range users {
		// A newer submission owns the profile status.
		var latest []string
		if err := s.db.WithContext(ctx).Model(model).
			Where("user_id = ?", id).
			Order("id DESC").Limit(1).
			Pluck("status", &latest).Error; err != nil {
			log.Printf("⚠️  Latest %s for user %d not loaded: %v", column, id, err)
			continue
		}
		if len(latest) == 1 && latest[0] == string(models.ReviewExpired) {
			s.mirror(ctx, id, column, models.ReviewExpired)
		}
	}
	return int(res.RowsAffected), nil
}
