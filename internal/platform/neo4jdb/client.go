package neo4jdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/workbench-backend/internal/platform/envutil"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

type Config struct {
	URI         string
	User        string
	Password    string
	Database    string
	Timeout     time.Duration
	MaxPoolSize int
}

func ConfigFromEnv() Config {
	return Config{
		URI:         envutil.String("NEO4J_URI", ""),
		User:        envutil.String("NEO4J_USER", "neo4j"),
		Password:    envutil.String("NEO4J_PASSWORD", ""),
		Database:    envutil.String("NEO4J_DATABASE", ""),
		Timeout:     time.Duration(envutil.Int("NEO4J_TIMEOUT_SECONDS", 10)) * time.Second,
		MaxPoolSize: envutil.Int("NEO4J_MAX_POOL_SIZE", 50),
	}
}

// Client owns the process-wide driver (and its connection pool).
type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
	log      *logger.Logger
}

// New returns (nil, nil) when no URI is configured.
func New(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("neo4jdb: logger required")
	}
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, nil
	}
	if cfg.User == "" {
		cfg.User = "neo4j"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxPoolSize <= 0 {
		cfg.MaxPoolSize = 50
	}

	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(uri, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxPoolSize
		c.SocketConnectTimeout = cfg.Timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: init driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4jdb: verify connectivity: %w", err)
	}

	return &Client{
		Driver:   driver,
		Database: strings.TrimSpace(cfg.Database),
		log:      log.With("client", "Neo4jDB"),
	}, nil
}

func NewFromEnv(log *logger.Logger) (*Client, error) {
	return New(log, ConfigFromEnv())
}

// Session opens a short-lived session; callers must Close it.
func (c *Client) Session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: c.Database,
	})
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return fmt.Errorf("neo4jdb: client closed")
	}
	return c.Driver.VerifyConnectivity(ctx)
}
