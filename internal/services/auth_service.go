package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"DealRoom/internal/models"
)

type AuthService struct {
	db     *gorm.DB
	emails *EmailQueue
}

func NewAuthService(db *gorm.DB, emails *EmailQueue) *AuthService {
	return &AuthService{db: db, emails: emails}
}

type SignupInput struct {
	FullName string
	Email    string
	Password string
	Role     string
}

func (s *AuthService) createProfile(ctx context.Context, in SignupInput, role string) (*models.Profile, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Profile{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, Conflict("Email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	p := models.Profile{
		FullName:           strings.TrimSpace(in.FullName),
		Email:              email,
		Password:           string(hash),
		Role:               role,
		KYCStatus:          string(models.ReviewNone),
		VerificationStatus: string(models.ReviewNone),
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return &p, nil
}

// Signup creates an investor or operator account. The welcome email is best-effort.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*models.Profile, error) {
	if !models.SelfServiceRole(in.Role) {
		return nil, BadRequest("Role must be investor or operator")
	}
	p, err := s.createProfile(ctx, in, in.Role)
	if err != nil {
		return nil, err
	}
	log.Printf("✅ Profile %d created (%s)", p.ID, p.Role)
	s.emails.Enqueue(ctx, p.Email, TemplateWelcome, map[string]any{
		"Name": p.FullName,
		"Role": p.Role,
	})
	return p, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.Profile, error) {
	var p models.Profile
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Unauthorized("Invalid email or password")
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(p.Password), []byte(password)) != nil {
		return nil, Unauthorized("Invalid email or password")
	}
	return &p, nil
}

// InitializeAdmin creates the first admin when the setup key matches and no admin exists yet.
func (s *AuthService) InitializeAdmin(ctx context.Context, setupKey, providedKey string, in SignupInput) (*models.Profile, error) {
	if setupKey == "" {
		return nil, Forbidden("Admin setup is disabled")
	}
	if subtle.ConstantTimeCompare([]byte(setupKey), []byte(providedKey)) != 1 {
		return nil, Forbidden("Invalid setup key")
	}
	var admins int64
	if err := s.db.WithContext(ctx).Model(&models.Profile{}).Where("role = ?", models.RoleAdmin).Count(&admins).Error; err != nil {
		return nil, err
	}
	if admins > 0 {
		return nil, Conflict("An admin already exists")
	}
	p, err := s.createProfile(ctx, in, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	log.Printf("✅ First admin created: %s", p.Email)
	return p, nil
}

func (s *AuthService) Profile(ctx context.Context, id uint) (*models.Profile, error) {
	var p models.Profile
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFoundOr(err, "Profile")
	}
	return &p, nil
}

type ProfileUpdate struct {
	FullName           *string
	Company            *string
	Bio                *string
	CheckSize          *string
	InvestmentTimeline *string
	Categories         []string
	Tags               []string
}

// UpdateProfile edits the caller's own descriptive fields.
func (s *AuthService) UpdateProfile(ctx context.Context, viewer *Viewer, in ProfileUpdate) (*models.Profile, error) {
	if viewer == nil {
		return nil, Unauthorized("Authentication required")
	}
	updates := map[string]any{}
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" {
			return nil, BadRequest("full_name cannot be empty")
		}
		updates["full_name"] = name
	}
	if in.Company != nil {
		updates["company"] = strings.TrimSpace(*in.Company)
	}
	if in.Bio != nil {
		updates["bio"] = *in.Bio
	}
	if in.CheckSize != nil {
		updates["check_size"] = strings.TrimSpace(*in.CheckSize)
	}
	if in.InvestmentTimeline != nil {
		updates["investment_timeline"] = strings.TrimSpace(*in.InvestmentTimeline)
	}
	if in.Categories != nil {
		updates["categories"] = models.StringList(in.Categories)
	}
	if in.Tags != nil {
		updates["tags"] = models.StringList(in.Tags)
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", viewer.ID).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.Profile(ctx, viewer.ID)
}
