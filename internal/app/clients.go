package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/workbench-backend/internal/data/db"
	"github.com/yungbote/workbench-backend/internal/data/graph"
	"github.com/yungbote/workbench-backend/internal/data/revocation"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
	"github.com/yungbote/workbench-backend/internal/platform/neo4jdb"
	"github.com/yungbote/workbench-backend/internal/platform/openai"
	"github.com/yungbote/workbench-backend/internal/platform/sendgrid"
)

type Clients struct {
	Neo4j   *neo4jdb.Client
	Graph   graph.Store
	DB      *gorm.DB
	Revoked revocation.Set
	Mailer  sendgrid.Client
	OpenAI  openai.Client

	redis *revocation.Redis
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (*Clients, error) {
	log.Info("Wiring clients...")
	c := &Clients{}

	// Neo4j
	nc, err := neo4jdb.New(log, neo4jdb.ConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("init neo4j: %w", err)
	}
	if nc == nil {
		log.Warn("NEO4J_URI not set; using the in-memory graph store")
		c.Graph = graph.NewMemoryStore()
	} else {
		c.Neo4j = nc
		store, err := graph.NewNeo4jStore(nc, log)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init graph store: %w", err)
		}
		schemaCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = store.EnsureSchema(schemaCtx)
		cancel()
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("ensure graph schema: %w", err)
		}
		c.Graph = store
	}

	// Audit ledger
	gdb, err := db.Open(log, db.ConfigFromEnv())
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init audit db: %w", err)
	}
	c.DB = gdb

	// Redis
	if cfg.RedisAddr != "" {
		r, err := revocation.NewRedis(log, cfg.RedisAddr)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init redis revocation set: %w", err)
		}
		c.redis, c.Revoked = r, r
	} else {
		c.Revoked = revocation.NewMemory()
	}

	// SendGrid
	mailer, err := sendgrid.New(log, sendgrid.ConfigFromEnv())
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init sendgrid client: %w", err)
	}
	c.Mailer = mailer

	// Openai
	oc, err := openai.NewClient(log, openai.ConfigFromEnv())
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init openai client: %w", err)
	}
	c.OpenAI = oc

	return c, nil
}

// ReadinessChecks lists the backing services a ready instance must reach.
func (c *Clients) ReadinessChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if c.Neo4j != nil {
		checks["neo4j"] = c.Neo4j.Ping
	}
	if c.redis != nil {
		checks["redis"] = c.redis.Ping
	}
	if c.DB != nil {
		checks["audit_db"] = func(ctx context.Context) error {
			sqlDB, err := c.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	return checks
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if c.Neo4j != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = c.Neo4j.Close(ctx)
		cancel()
	}
}
