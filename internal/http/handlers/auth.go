package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/workbench-backend/internal/http/middleware"
	"github.com/yungbote/workbench-backend/internal/http/response"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
	"github.com/yungbote/workbench-backend/internal/requestdata"
	"github.com/yungbote/workbench-backend/internal/schema"
	"github.com/yungbote/workbench-backend/internal/services"
)

const (
	refreshCookie     = "refresh_token"
	refreshCookiePath = "/auth"
)

// CookieConfig controls the session cookies. Production runs Secure with
// SameSite=None so a separately hosted frontend can send them.
type CookieConfig struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

type AuthHandler struct {
	log         *logger.Logger
	authService services.AuthService
	cookies     CookieConfig
}

func NewAuthHandler(log *logger.Logger, authService services.AuthService, cookies CookieConfig) *AuthHandler {
	if cookies.SameSite == 0 {
		cookies.SameSite = http.SameSiteNoneMode
	}
	return &AuthHandler{log: log.With("handler", "AuthHandler"), authService: authService, cookies: cookies}
}

// POST /auth/register
func (ah *AuthHandler) Register(c *gin.Context) {
	body, ok := bind(c, schema.Credentials)
	if !ok {
		return
	}
	tokens, err := ah.authService.Register(c.Request.Context(), schema.StringField(body, "email"), schema.StringField(body, "password"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	ah.setSession(c, tokens)
	response.RespondOK(c, gin.H{"message": "Registration successful. Check your email to verify your address."})
}

// POST /auth/login
func (ah *AuthHandler) Login(c *gin.Context) {
	body, ok := bind(c, schema.Credentials)
	if !ok {
		return
	}
	tokens, err := ah.authService.Login(c.Request.Context(), schema.StringField(body, "email"), schema.StringField(body, "password"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	ah.setSession(c, tokens)
	response.RespondOK(c, gin.H{"message": "Login successful"})
}

// POST /auth/refresh
func (ah *AuthHandler) Refresh(c *gin.Context) {
	raw, _ := c.Cookie(refreshCookie)
	tokens, err := ah.authService.Refresh(c.Request.Context(), raw)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	ah.setSession(c, tokens)
	response.RespondOK(c, gin.H{"message": "Token refreshed"})
}

// POST /auth/logout
func (ah *AuthHandler) Logout(c *gin.Context) {
	refresh, _ := c.Cookie(refreshCookie)
	if err := ah.authService.Logout(c.Request.Context(), middleware.AccessToken(c), refresh); err != nil {
		ah.log.Warn("logout revocation failed", "error", err)
	}
	ah.clearSession(c)
	response.RespondOK(c, gin.H{"message": "Logged out"})
}

// GET /auth/validate
func (ah *AuthHandler) Validate(c *gin.Context) {
	response.RespondOK(c, gin.H{"status": "valid", "user_id": requestdata.UserID(c.Request.Context())})
}

// GET /auth/verify?token=...
func (ah *AuthHandler) VerifyEmail(c *gin.Context) {
	promo, err := ah.authService.VerifyEmail(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"message": "Email verified", "promo_applied": promo})
}

func (ah *AuthHandler) setSession(c *gin.Context, t *services.Tokens) {
	c.SetSameSite(ah.cookies.SameSite)
	c.SetCookie(middleware.AccessCookie, t.Access, maxAge(t.AccessExpires, ah.authService.AccessTTL()), "/", ah.cookies.Domain, ah.cookies.Secure, true)
	c.SetCookie(refreshCookie, t.Refresh, maxAge(t.RefreshExpires, ah.authService.RefreshTTL()), refreshCookiePath, ah.cookies.Domain, ah.cookies.Secure, true)
	// Readable by the frontend so it can echo it in the CSRF header.
	c.SetCookie(middleware.CSRFCookie, t.CSRF, maxAge(t.RefreshExpires, ah.authService.RefreshTTL()), "/", ah.cookies.Domain, ah.cookies.Secure, false)
}

func (ah *AuthHandler) clearSession(c *gin.Context) {
	c.SetSameSite(ah.cookies.SameSite)
	c.SetCookie(middleware.AccessCookie, "", -1, "/", ah.cookies.Domain, ah.cookies.Secure, true)
	c.SetCookie(refreshCookie, "", -1, refreshCookiePath, ah.cookies.Domain, ah.cookies.Secure, true)
	c.SetCookie(middleware.CSRFCookie, "", -1, "/", ah.cookies.Domain, ah.cookies.Secure, false)
}

func maxAge(exp time.Time, fallback time.Duration) int {
	if !exp.IsZero() {
		if s := int(time.Until(exp).Seconds()); s > 0 {
			return s
		}
	}
	return int(fallback.Seconds())
}
