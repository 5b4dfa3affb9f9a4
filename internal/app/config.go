package app

import (
	"strings"
	"time"

	"github.com/yungbote/workbench-backend/internal/platform/envutil"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

const defaultJWTSecret = "defaultsecret"

type Config struct {
	Port        string
	Environment string
	Version     string

	JWTSecretKey    string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	VerifyTokenTTL  time.Duration
	PromoCredit     float64
	PublicBaseURL   string

	AllowedOrigins []string
	CookieDomain   string
	CookieSecure   bool

	FilesRoot  string
	ConfigRoot string
	RedisAddr  string

	TopicExtraction bool

	// now overrides the token clock; nil means time.Now.
	now func() time.Time
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:        envutil.String("PORT", "8080"),
		Environment: envutil.String("ENVIRONMENT", "development"),
		Version:     envutil.String("SERVICE_VERSION", ""),

		JWTSecretKey:    envutil.String("JWT_SECRET_KEY", defaultJWTSecret),
		AccessTokenTTL:  time.Duration(envutil.Int("ACCESS_TOKEN_TTL_SECONDS", 900)) * time.Second,
		RefreshTokenTTL: time.Duration(envutil.Int("REFRESH_TOKEN_TTL_SECONDS", 604800)) * time.Second,
		VerifyTokenTTL:  time.Duration(envutil.Int("VERIFY_TOKEN_TTL_SECONDS", 86400)) * time.Second,
		PromoCredit:     envutil.Float("PROMO_CREDIT", 1.0),
		PublicBaseURL:   envutil.String("PUBLIC_BASE_URL", "http://localhost:8080"),

		AllowedOrigins: splitList(envutil.String("FRONTEND_ORIGIN", "")),
		CookieDomain:   envutil.String("COOKIE_DOMAIN", ""),

		FilesRoot:  envutil.String("FILES_ROOT", "./data/files"),
		ConfigRoot: envutil.String("CONFIG_ROOT", "./data/config"),
		RedisAddr:  envutil.String("REDIS_ADDR", ""),

		TopicExtraction: envutil.Bool("TOPIC_EXTRACTION_ENABLED", true),
	}
	cfg.CookieSecure = envutil.Bool("COOKIE_SECURE", cfg.production())

	if cfg.JWTSecretKey == defaultJWTSecret {
		log.Warn("JWT_SECRET_KEY not set; using the development default")
	}
	return cfg
}

func (c Config) production() bool {
	switch strings.ToLower(c.Environment) {
	case "prod", "production":
		return true
	}
	return false
}

// Addr is the listen address derived from Port.
func (c Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
