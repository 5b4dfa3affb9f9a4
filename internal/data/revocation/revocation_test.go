package revocation

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

func TestMemoryRevokeAndExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	if err := m.Revoke(ctx, "jti-1", now.Add(time.Minute)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if ok, _ := m.IsRevoked(ctx, "jti-1"); !ok {
		t.Fatal("expected revoked")
	}
	if ok, _ := m.IsRevoked(ctx, "jti-2"); ok {
		t.Fatal("unexpected revoked")
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := m.IsRevoked(ctx, "jti-1"); ok {
		t.Fatal("entry should lapse with the token")
	}
	if m.Len() != 0 {
		t.Fatalf("expected expired entry dropped, len=%d", m.Len())
	}
}

func TestMemoryIgnoresEmptyID(t *testing.T) {
	m := NewMemory()
	_ = m.Revoke(context.Background(), "", time.Now().Add(time.Hour))
	if m.Len() != 0 {
		t.Fatal("empty jti stored")
	}
}

func TestRedisIntegration(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run Redis integration tests")
	}
	log, _ := logger.New("test")
	r, err := NewRedis(log, addr)
	if err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	defer r.Close()

	ctx := context.Background()
	jti := uuid.NewString()
	if err := r.Revoke(ctx, jti, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if ok, err := r.IsRevoked(ctx, jti); err != nil || !ok {
		t.Fatalf("IsRevoked = %v, %v", ok, err)
	}
	if ok, _ := r.IsRevoked(ctx, uuid.NewString()); ok {
		t.Fatal("unknown jti reported revoked")
	}
}
