package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/yungbote/workbench-backend/internal/data/repos/testutil"
	"github.com/yungbote/workbench-backend/internal/data/revocation"
	"github.com/yungbote/workbench-backend/internal/platform/apierr"
	"github.com/yungbote/workbench-backend/internal/platform/sendgrid"
	"github.com/yungbote/workbench-backend/internal/requestdata"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sendgrid.Message
}

func (m *captureMailer) Send(_ context.Context, msg sendgrid.Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

type authFixture struct {
	svc    AuthService
	ledger LedgerService
	clock  *clock
	mail   *captureMailer
	d      *deps
}

func newAuth(t *testing.T) *authFixture {
	t.Helper()
	d := newDeps(t)
	led, _ := newLedger(t, d)
	clk := &clock{now: time.Now()}
	mail := &captureMailer{}
	svc, err := NewAuthService(testutil.Logger(t), d.store, revocation.NewMemory(), led, mail, nil, AuthConfig{
		Secret:        "test-secret",
		PromoCredit:   1,
		PublicBaseURL: "http://api.test",
		BcryptCost:    bcrypt.MinCost,
		Now:           clk.Now,
	})
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return &authFixture{svc: svc, ledger: led, clock: clk, mail: mail, d: d}
}

func TestRegisterAndLogin(t *testing.T) {
	f := newAuth(t)
	ctx := context.Background()

	tok, err := f.svc.Register(ctx, " Alice@X ", "password1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if tok.Access == "" || tok.Refresh == "" || tok.CSRF == "" {
		t.Fatalf("incomplete tokens: %+v", tok)
	}
	if _, err := f.svc.Register(ctx, "alice@x", "password2"); !apierr.Is(err, apierr.CodeDuplicateEmail) {
		t.Fatalf("expected duplicate_email, got %v", err)
	}
	if _, err := f.svc.Login(ctx, "alice@x", "wrong-password"); !apierr.Is(err, apierr.CodeBadCredentials) {
		t.Fatalf("expected bad_credentials, got %v", err)
	}
	if _, err := f.svc.Login(ctx, "nobody@x", "password1"); !apierr.Is(err, apierr.CodeBadCredentials) {
		t.Fatalf("expected bad_credentials for unknown email, got %v", err)
	}
	login, err := f.svc.Login(ctx, "ALICE@x", "password1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := f.svc.VerifyAccess(ctx, login.Access)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	id, _ := f.d.store.FindUserByEmail(ctx, "alice@x")
	if claims.Subject != id {
		t.Fatalf("subject %q, user %q", claims.Subject, id)
	}
	if _, err := f.svc.Register(ctx, "bob@x", "short"); !apierr.Is(err, apierr.CodeInvalidRequest) {
		t.Fatalf("short password accepted: %v", err)
	}
}

func TestVerifyAccessFailures(t *testing.T) {
	f := newAuth(t)
	ctx := context.Background()
	tok, err := f.svc.Register(ctx, "a@x", "password1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	cases := map[string]struct {
		token string
		code  string
	}{
		"missing":  {"", apierr.CodeTokenMissing},
		"garbage":  {"not-a-jwt", apierr.CodeInvalidToken},
		"tampered": {tok.Access[:len(tok.Access)-2] + "xx", apierr.CodeInvalidToken},
		"refresh":  {tok.Refresh, apierr.CodeInvalidToken},
	}
	for name, tc := range cases {
		if _, err := f.svc.VerifyAccess(ctx, tc.token); !apierr.Is(err, tc.code) {
			t.Fatalf("%s: expected %s, got %v", name, tc.code, err)
		}
	}
}

func TestAccessExpiryAndRefresh(t *testing.T) {
	f := newAuth(t)
	ctx := context.Background()
	tok, _ := f.svc.Register(ctx, "a@x", "password1")

	f.clock.Advance(16 * time.Minute)
	if _, err := f.svc.VerifyAccess(ctx, tok.Access); !apierr.Is(err, apierr.CodeTokenExpired) {
		t.Fatalf("expected token_expired, got %v", err)
	}
	next, err := f.svc.Refresh(ctx, tok.Refresh)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := f.svc.VerifyAccess(ctx, next.Access); err != nil {
		t.Fatalf("refreshed access token rejected: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, tok.Refresh); !apierr.Is(err, apierr.CodeRevoked) {
		t.Fatalf("old refresh token reusable: %v", err)
	}

	f.clock.Advance(8 * 24 * time.Hour)
	if _, err := f.svc.Refresh(ctx, next.Refresh); !apierr.Is(err, apierr.CodeTokenExpired) {
		t.Fatalf("expected expired refresh, got %v", err)
	}
}

func TestLogoutRevokesTokens(t *testing.T) {
	f := newAuth(t)
	ctx := context.Background()
	tok, _ := f.svc.Register(ctx, "a@x", "password1")
	if err := f.svc.Logout(ctx, tok.Access, tok.Refresh); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.svc.VerifyAccess(ctx, tok.Access); !apierr.Is(err, apierr.CodeRevoked) {
		t.Fatalf("expected revoked access, got %v", err)
	}
	if _, err := f.svc.Refresh(ctx, tok.Refresh); !apierr.Is(err, apierr.CodeRevoked) {
		t.Fatalf("expected revoked refresh, got %v", err)
	}
	if err := f.svc.Logout(ctx, "", "garbage"); err != nil {
		t.Fatalf("Logout with junk should be a no-op: %v", err)
	}
}

func TestVerifyEmailAppliesPromoOnce(t *testing.T) {
	f := newAuth(t)
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, "a@x", "password1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(f.mail.sent) != 1 {
		t.Fatalf("expected one verification email, got %d", len(f.mail.sent))
	}
	body := f.mail.sent[0].Text
	i := strings.Index(body, "token=")
	if i < 0 {
		t.Fatalf("no token in email: %q", body)
	}
	token := strings.TrimSpace(body[i+len("token="):])

	applied, err := f.svc.VerifyEmail(ctx, token)
	if err != nil || !applied {
		t.Fatalf("first VerifyEmail applied=%v err=%v", applied, err)
	}
	again, err := f.svc.VerifyEmail(ctx, token)
	if err != nil || again {
		t.Fatalf("second VerifyEmail applied=%v err=%v", again, err)
	}
	id, _ := f.d.store.FindUserByEmail(ctx, "a@x")
	if bal, _ := f.ledger.Balance(WithUser(ctx, id, "")); bal != 1 {
		t.Fatalf("balance after promo = %v", bal)
	}
}

func TestSetContextFromTokenFillsRequestData(t *testing.T) {
	f := newAuth(t)
	tok, _ := f.svc.Register(context.Background(), "a@x", "password1")
	rd := requestdata.New("", "")
	ctx, err := f.svc.SetContextFromToken(requestdata.WithRequestData(context.Background(), rd), tok.Access)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	if rd.UserID == "" || requestdata.UserID(ctx) != rd.UserID || rd.TokenID == "" {
		t.Fatalf("request data not populated: %+v", rd)
	}
}
