package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"DealRoom/internal/middleware"
	"DealRoom/internal/models"
	"DealRoom/internal/services"
)

type SignupRequest struct {
	FullName string `json:"full_name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type InitializeAdminRequest struct {
	FullName string `json:"full_name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	SetupKey string `json:"setup_key" validate:"required"`
}

type AuthHandler struct {
	auth          *services.AuthService
	sessions      *services.SessionManager
	cookieName    string
	secureCookie  bool
	adminSetupKey string
}

func NewAuthHandler(auth *services.AuthService, sessions *services.SessionManager, cookieName string, secureCookie bool, adminSetupKey string) *AuthHandler {
	return &AuthHandler{
		auth:          auth,
		sessions:      sessions,
		cookieName:    cookieName,
		secureCookie:  secureCookie,
		adminSetupKey: adminSetupKey,
	}
}

// startSession issues a token for p, sets the session cookie and writes the response.
func (h *AuthHandler) startSession(c *fiber.Ctx, status int, message string, p *models.Profile) error {
	token, exp, err := h.sessions.Issue(p.ID)
	if err != nil {
		return respondError(c, err)
	}
	c.Cookie(&fiber.Cookie{
		Name:     h.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Status(status).JSON(fiber.Map{
		"message":    message,
		"token":      token,
		"expires_at": exp,
		"user":       p,
	})
}

// Signup creates an investor or operator account and signs it in.
func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	req := new(SignupRequest)
	if err := parseBody(c, req); err != nil {
		return respondError(c, err)
	}
	p, err := h.auth.Signup(c.UserContext(), services.SignupInput{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return respondError(c, err)
	}
	return h.startSession(c, fiber.StatusCreated, "Account created successfully", p)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	req := new(LoginRequest)
	if err := parseBody(c, req); err != nil {
		return respondError(c, err)
	}
	p, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return h.startSession(c, fiber.StatusOK, "Login successful", p)
}

// Logout revokes the current session when there is one and clears the cookie.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if claims := middleware.Session(c); claims != nil {
		if err := h.sessions.Revoke(c.UserContext(), claims); err != nil {
			return respondError(c, err)
		}
	}
	c.Cookie(&fiber.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// InitializeAdmin creates the first admin account using the setup key.
func (h *AuthHandler) InitializeAdmin(c *fiber.Ctx) error {
	req := new(InitializeAdminRequest)
	if err := parseBody(c, req); err != nil {
		return respondError(c, err)
	}
	p, err := h.auth.InitializeAdmin(c.UserContext(), h.adminSetupKey, req.SetupKey, services.SignupInput{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return respondError(c, err)
	}
	return h.startSession(c, fiber.StatusCreated, "First admin created successfully", p)
}
