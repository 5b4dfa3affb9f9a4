package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/yungbote/workbench-backend/internal/data/graph"
	"github.com/yungbote/workbench-backend/internal/data/revocation"
	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/observability"
	"github.com/yungbote/workbench-backend/internal/platform/apierr"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
	"github.com/yungbote/workbench-backend/internal/platform/sendgrid"
	"github.com/yungbote/workbench-backend/internal/requestdata"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
	TokenVerify  = "verify"

	minPasswordLen = 8
)

type Claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Tokens is a freshly issued session: the cookie values and their expiries.
type Tokens struct {
	Access         string
	Refresh        string
	CSRF           string
	AccessExpires  time.Time
	RefreshExpires time.Time
}

type AuthService interface {
	Register(ctx context.Context, email, password string) (*Tokens, error)
	Login(ctx context.Context, email, password string) (*Tokens, error)
	// Refresh rotates the session. The presented refresh token is revoked.
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
	// Logout revokes both tokens. Either may be empty or already expired.
	Logout(ctx context.Context, accessToken, refreshToken string) error
	// VerifyAccess validates an access token and returns its claims.
	VerifyAccess(ctx context.Context, token string) (*Claims, error)
	// SetContextFromToken verifies token and returns ctx carrying the session context.
	SetContextFromToken(ctx context.Context, token string) (context.Context, error)
	// VerifyEmail consumes an email-verification token. It reports whether the
	// promotional credit was applied.
	VerifyEmail(ctx context.Context, token string) (bool, error)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

type AuthConfig struct {
	Secret      string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	VerifyTTL   time.Duration
	PromoCredit float64
	// PublicBaseURL prefixes the verification link in the email.
	PublicBaseURL string
	BcryptCost    int
	// Now is the clock used for issuing and validating tokens.
	Now func() time.Time
}

type authService struct {
	log     *logger.Logger
	store   graph.Store
	revoked revocation.Set
	ledger  LedgerService
	mailer  sendgrid.Client
	metrics *observability.Metrics
	cfg     AuthConfig
}

func NewAuthService(log *logger.Logger, store graph.Store, revoked revocation.Set, ledger LedgerService, mailer sendgrid.Client, metrics *observability.Metrics, cfg AuthConfig) (AuthService, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("jwt secret required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.VerifyTTL <= 0 {
		cfg.VerifyTTL = 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &authService{
		log:     log.With("service", "AuthService"),
		store:   store,
		revoked: revoked,
		ledger:  ledger,
		mailer:  mailer,
		metrics: metrics,
		cfg:     cfg,
	}, nil
}

func (as *authService) AccessTTL() time.Duration  { return as.cfg.AccessTTL }
func (as *authService) RefreshTTL() time.Duration { return as.cfg.RefreshTTL }

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}

func (as *authService) Register(ctx context.Context, email, password string) (*Tokens, error) {
	email = domain.NormalizeEmail(email)
	if !validEmail(email) {
		return nil, apierr.BadRequest(apierr.CodeInvalidRequest, fmt.Errorf("invalid email address"))
	}
	if len(password) < minPasswordLen {
		return nil, apierr.BadRequest(apierr.CodeInvalidRequest, fmt.Errorf("password must be at least %d characters", minPasswordLen))
	}
	existing, err := as.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return nil, apierr.New(http.StatusConflict, apierr.CodeDuplicateEmail, fmt.Errorf("email already registered"))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), as.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		ID:           domain.NewUserID(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    as.cfg.Now().UTC(),
	}
	if _, err := as.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	as.log.Info("user registered", "user_id", user.ID)
	as.sendVerification(ctx, user)
	return as.issue(user.ID)
}

func (as *authService) sendVerification(ctx context.Context, user *domain.User) {
	token, _, err := as.sign(user.ID, TokenVerify, as.cfg.VerifyTTL)
	if err != nil {
		as.log.Warn("sign verification token failed", "user_id", user.ID, "error", err)
		return
	}
	link := strings.TrimRight(as.cfg.PublicBaseURL, "/") + "/auth/verify?token=" + url.QueryEscape(token)
	if as.mailer == nil {
		as.log.Info("verification link", "user_id", user.ID, "link", link)
		return
	}
	err = as.mailer.Send(ctx, sendgrid.Message{
		To:      user.Email,
		Subject: "Verify your email",
		Text:    "Confirm your address to activate your workspace:\n\n" + link + "\n",
	})
	if err != nil {
		as.log.Warn("verification email failed", "user_id", user.ID, "error", err)
	}
}

func (as *authService) Login(ctx context.Context, email, password string) (*Tokens, error) {
	bad := apierr.BadRequest(apierr.CodeBadCredentials, fmt.Errorf("invalid email or password"))
	userID, err := as.store.FindUserByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if userID == "" {
		as.metrics.IncSecurityEvent("bad_credentials")
		return nil, bad
	}
	hash, err := as.store.GetPasswordHash(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		as.metrics.IncSecurityEvent("bad_credentials")
		return nil, bad
	}
	return as.issue(userID)
}

func (as *authService) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	claims, err := as.parse(ctx, refreshToken, TokenRefresh)
	if err != nil {
		return nil, err
	}
	if _, err := as.store.GetUser(ctx, claims.Subject); err != nil {
		if apierr.Is(err, apierr.CodeNotFound) {
			return nil, apierr.Unauthorized(apierr.CodeInvalidToken, fmt.Errorf("unknown user"))
		}
		return nil, err
	}
	if err := as.revoke(ctx, claims); err != nil {
		return nil, err
	}
	return as.issue(claims.Subject)
}

func (as *authService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	for _, raw := range []string{accessToken, refreshToken} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		claims, err := as.parseUnverifiedExpiry(raw)
		if err != nil {
			continue
		}
		if err := as.revoke(ctx, claims); err != nil {
			return err
		}
	}
	return nil
}

func (as *authService) VerifyAccess(ctx context.Context, token string) (*Claims, error) {
	return as.parse(ctx, token, TokenAccess)
}

func (as *authService) SetContextFromToken(ctx context.Context, token string) (context.Context, error) {
	claims, err := as.VerifyAccess(ctx, token)
	if err != nil {
		return ctx, err
	}
	if rd := requestdata.GetRequestData(ctx); rd != nil {
		rd.UserID = claims.Subject
		rd.TokenID = claims.ID
		return ctx, nil
	}
	return WithUser(ctx, claims.Subject, claims.ID), nil
}

func (as *authService) VerifyEmail(ctx context.Context, token string) (bool, error) {
	claims, err := as.parse(ctx, token, TokenVerify)
	if err != nil {
		return false, err
	}
	first, err := as.store.MarkEmailVerified(ctx, claims.Subject)
	if err != nil {
		return false, err
	}
	if !first || as.cfg.PromoCredit <= 0 {
		return false, nil
	}
	applied, err := as.ledger.ApplyPromo(WithUser(ctx, claims.Subject, claims.ID), as.cfg.PromoCredit)
	if err != nil {
		as.log.Warn("promo credit failed", "user_id", claims.Subject, "error", err)
		return false, nil
	}
	return applied, nil
}

func (as *authService) issue(userID string) (*Tokens, error) {
	access, accessExp, err := as.sign(userID, TokenAccess, as.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := as.sign(userID, TokenRefresh, as.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	csrf, err := randomHex(32)
	if err != nil {
		return nil, err
	}
	return &Tokens{
		Access:         access,
		Refresh:        refresh,
		CSRF:           csrf,
		AccessExpires:  accessExp,
		RefreshExpires: refreshExp,
	}, nil
}

func (as *authService) sign(userID, typ string, ttl time.Duration) (string, time.Time, error) {
	now := as.cfg.Now()
	exp := now.Add(ttl)
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(as.cfg.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, exp, nil
}

func (as *authService) keyFunc(t *jwt.Token) (any, error) {
	return []byte(as.cfg.Secret), nil
}

// parse validates signature, expiry, type and revocation.
func (as *authService) parse(ctx context.Context, raw, typ string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apierr.Unauthorized(apierr.CodeTokenMissing, fmt.Errorf("token missing"))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, as.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(as.cfg.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			as.metrics.IncSecurityEvent("token_expired")
			return nil, apierr.Unauthorized(apierr.CodeTokenExpired, fmt.Errorf("token expired"))
		}
		as.metrics.IncSecurityEvent("invalid_token")
		return nil, apierr.Unauthorized(apierr.CodeInvalidToken, fmt.Errorf("invalid token"))
	}
	if claims.Type != typ || claims.Subject == "" || claims.ID == "" {
		as.metrics.IncSecurityEvent("invalid_token")
		return nil, apierr.Unauthorized(apierr.CodeInvalidToken, fmt.Errorf("invalid token"))
	}
	if as.revoked != nil {
		revoked, err := as.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			as.metrics.IncSecurityEvent("revoked")
			return nil, apierr.Unauthorized(apierr.CodeRevoked, fmt.Errorf("token revoked"))
		}
	}
	return claims, nil
}

// parseUnverifiedExpiry checks the signature but tolerates expiry, for logout.
func (as *authService) parseUnverifiedExpiry(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, as.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(as.cfg.Now),
	)
	if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		return nil, err
	}
	return claims, nil
}

func (as *authService) revoke(ctx context.Context, claims *Claims) error {
	if as.revoked == nil || claims.ID == "" {
		return nil
	}
	until := as.cfg.Now().Add(as.cfg.RefreshTTL)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	if !until.After(as.cfg.Now()) {
		return nil
	}
	if err := as.revoked.Revoke(ctx, claims.ID, until); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("random: %w", err)
	}
	return hex.EncodeToString(b), nil
}
