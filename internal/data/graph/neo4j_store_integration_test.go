package graph

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/workbench-backend/internal/platform/logger"
	"github.com/yungbote/workbench-backend/internal/platform/neo4jdb"
)

func TestNeo4jStoreIntegration(t *testing.T) {
	uri := strings.TrimSpace(os.Getenv("TEST_NEO4J_URI"))
	if uri == "" {
		t.Skip("set TEST_NEO4J_URI to run Neo4j integration tests")
	}
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	client, err := neo4jdb.New(log, neo4jdb.Config{
		URI:      uri,
		User:     os.Getenv("TEST_NEO4J_USER"),
		Password: os.Getenv("TEST_NEO4J_PASSWORD"),
		Timeout:  10 * time.Second,
	})
	if err != nil {
		t.Skipf("neo4j not reachable at %s: %v", uri, err)
	}
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	store, err := NewNeo4jStore(client, log)
	if err != nil {
		t.Fatalf("NewNeo4jStore: %v", err)
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	exerciseStore(t, store, "+"+uuid.NewString()[:8])
}
