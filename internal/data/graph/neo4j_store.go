package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/platform/apierr"
	"github.com/yungbote/workbench-backend/internal/platform/ctxutil"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
	"github.com/yungbote/workbench-backend/internal/platform/neo4jdb"
)

type Neo4jStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jStore(client *neo4jdb.Client, log *logger.Logger) (*Neo4jStore, error) {
	if client == nil || client.Driver == nil {
		return nil, fmt.Errorf("graph: neo4j client required")
	}
	if log == nil {
		return nil, fmt.Errorf("graph: logger required")
	}
	return &Neo4jStore{client: client, log: log.With("service", "GraphStore")}, nil
}

// run executes one statement in its own managed transaction and collects the records.
func (s *Neo4jStore) run(ctx context.Context, mode neo4j.AccessMode, op, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	ctx = ctxutil.Default(ctx)
	session := s.client.Session(ctx, mode)
	defer session.Close(ctx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	}
	var (
		out any
		err error
	)
	if mode == neo4j.AccessModeRead {
		out, err = session.ExecuteRead(ctx, work)
	} else {
		out, err = session.ExecuteWrite(ctx, work)
	}
	if err != nil {
		return nil, s.mapErr(op, err)
	}
	recs, _ := out.([]*neo4j.Record)
	return recs, nil
}

func (s *Neo4jStore) read(ctx context.Context, op, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	return s.run(ctx, neo4j.AccessModeRead, op, cypher, params)
}

func (s *Neo4jStore) write(ctx context.Context, op, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	return s.run(ctx, neo4j.AccessModeWrite, op, cypher, params)
}

func (s *Neo4jStore) mapErr(op string, err error) error {
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) && neoErr.Code == "Neo.ClientError.Schema.ConstraintValidationFailed" {
		if strings.Contains(neoErr.Msg, "email") {
			return apierr.New(http.StatusConflict, apierr.CodeDuplicateEmail, fmt.Errorf("email already registered"))
		}
	}
	return apierr.Database(fmt.Errorf("graph %s: %w", op, err))
}

// single returns the first record, warning when the query matched more than one.
func (s *Neo4jStore) single(op string, recs []*neo4j.Record) *neo4j.Record {
	if len(recs) == 0 {
		return nil
	}
	if len(recs) > 1 {
		s.log.Warn("query expected one row", "op", op, "rows", len(recs))
	}
	return recs[0]
}

func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	ctx = ctxutil.Default(ctx)
	session := s.client.Session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	stmts := []string{
		`CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`,
		`CREATE CONSTRAINT user_email_unique IF NOT EXISTS FOR (u:User) REQUIRE u.email IS UNIQUE`,
		`CREATE CONSTRAINT category_id_unique IF NOT EXISTS FOR (c:Category) REQUIRE c.id IS UNIQUE`,
		`CREATE CONSTRAINT category_user_name_unique IF NOT EXISTS FOR (c:Category) REQUIRE (c.user_id, c.name_norm) IS UNIQUE`,
		`CREATE CONSTRAINT prompt_id_unique IF NOT EXISTS FOR (p:Prompt) REQUIRE p.id IS UNIQUE`,
		`CREATE CONSTRAINT file_id_unique IF NOT EXISTS FOR (f:File) REQUIRE f.id IS UNIQUE`,
		`CREATE CONSTRAINT user_topic_user_name_unique IF NOT EXISTS FOR (t:UserTopic) REQUIRE (t.user_id, t.name_norm) IS UNIQUE`,
	}
	for _, q := range stmts {
		if res, err := session.Run(ctx, q, nil); err != nil {
			s.log.Warn("neo4j schema init failed (continuing)", "error", err)
		} else {
			_, _ = res.Consume(ctx)
		}
	}
	return nil
}

// -------------------- users --------------------

func (s *Neo4jStore) CreateUser(ctx context.Context, u *domain.User) (bool, error) {
	if u == nil || strings.TrimSpace(u.ID) == "" {
		return false, apierr.BadRequest(apierr.CodeInvalidRequest, fmt.Errorf("user id required"))
	}
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	recs, err := s.write(ctx, "create_user", `
MERGE (u:User {id: $id})
ON CREATE SET
  u.email = $email,
  u.password_hash = $password_hash,
  u.email_verified = false,
  u.promo_applied = false,
  u.balance = 0.0,
  u.created_at = $created_at,
  u.pending_create = true
WITH u, coalesce(u.pending_create, false) AS created
REMOVE u.pending_create
RETURN created
`, map[string]any{
		"id":            u.ID,
		"email":         domain.NormalizeEmail(u.Email),
		"password_hash": u.PasswordHash,
		"created_at":    created.UTC(),
	})
	if err != nil {
		return false, err
	}
	rec := s.single("create_user", recs)
	if rec == nil {
		return false, nil
	}
	return recBool(rec, "created"), nil
}

func (s *Neo4jStore) FindUserByEmail(ctx context.Context, email string) (string, error) {
	recs, err := s.read(ctx, "find_user_by_email",
		`MATCH (u:User {email: $email}) RETURN u.id AS id`,
		map[string]any{"email": domain.NormalizeEmail(email)})
	if err != nil {
		return "", err
	}
	rec := s.single("find_user_by_email", recs)
	if rec == nil {
		return "", nil
	}
	return recString(rec, "id"), nil
}

func (s *Neo4jStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	recs, err := s.read(ctx, "get_user", `
MATCH (u:User {id: $user_id})
RETURN u.id AS id, u.email AS email, u.password_hash AS password_hash,
       coalesce(u.email_verified, false) AS email_verified,
       coalesce(u.promo_applied, false) AS promo_applied,
       coalesce(u.balance, 0.0) AS balance, u.created_at AS created_at
`, map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}
	rec := s.single("get_user", recs)
	if rec == nil {
		return nil, apierr.NotFound(fmt.Errorf("user not found"))
	}
	return &domain.User{
		ID:            recString(rec, "id"),
		Email:         recString(rec, "email"),
		PasswordHash:  recString(rec, "password_hash"),
		EmailVerified: recBool(rec, "email_verified"),
		PromoApplied:  recBool(rec, "promo_applied"),
		Balance:       recFloat(rec, "balance"),
		CreatedAt:     recTime(rec, "created_at"),
	}, nil
}

func (s *Neo4jStore) GetPasswordHash(ctx context.Context, userID string) (string, error) {
	recs, err := s.read(ctx, "get_password_hash",
		`MATCH (u:User {id: $user_id}) RETURN u.password_hash AS password_hash`,
		map[string]any{"user_id": userID})
	if err != nil {
		return "", err
	}
	rec := s.single("get_password_hash", recs)
	if rec == nil {
		return "", apierr.NotFound(fmt.Errorf("user not found"))
	}
	return recString(rec, "password_hash"), nil
}

func (s *Neo4jStore) MarkEmailVerified(ctx context.Context, userID string) (bool, error) {
	recs, err := s.write(ctx, "mark_email_verified", `
MATCH (u:User {id: $user_id})
WITH u, coalesce(u.email_verified, false) AS was
SET u.email_verified = true
RETURN was
`, map[string]any{"user_id": userID})
	if err != nil {
		return false, err
	}
	rec := s.single("mark_email_verified", recs)
	if rec == nil {
		return false, apierr.NotFound(fmt.Errorf("user not found"))
	}
	return !recBool(rec, "was"), nil
}

// -------------------- balance --------------------

func (s *Neo4jStore) GetBalance(ctx context.Context, userID string) (float64, error) {
	recs, err := s.read(ctx, "get_balance",
		`MATCH (u:User {id: $user_id}) RETURN coalesce(u.balance, 0.0) AS balance`,
		map[string]any{"user_id": userID})
	if err != nil {
		return 0, err
	}
	rec := s.single("get_balance", recs)
	if rec == nil {
		return 0, apierr.NotFound(fmt.Errorf("user not found"))
	}
	return recFloat(rec, "balance"), nil
}

func (s *Neo4jStore) AddBalance(ctx context.Context, userID string, amount float64) (float64, error) {
	recs, err := s.write(ctx, "add_balance", `
MATCH (u:User {id: $user_id})
SET u.balance = coalesce(u.balance, 0.0) + $amount
RETURN u.balance AS balance
`, map[string]any{"user_id": userID, "amount": amount})
	if err != nil {
		return 0, err
	}
	rec := s.single("add_balance", recs)
	if rec == nil {
		return 0, apierr.NotFound(fmt.Errorf("user not found"))
	}
	return recFloat(rec, "balance"), nil
}

func (s *Neo4jStore) DebitBalance(ctx context.Context, userID string, amount float64) (float64, bool, error) {
	recs, err := s.write(ctx, "debit_balance", `
MATCH (u:User {id: $user_id})
WHERE coalesce(u.balance, 0.0) >= $amount
SET u.balance = coalesce(u.balance, 0.0) - $amount
RETURN u.balance AS balance
`, map[string]any{"user_id": userID, "amount": amount})
	if err != nil {
		return 0, false, err
	}
	rec := s.single("debit_balance", recs)
	if rec == nil {
		return 0, false, nil
	}
	return recFloat(rec, "balance"), true, nil
}

func (s *Neo4jStore) DrainBalance(ctx context.Context, userID string, amount float64) (float64, float64, error) {
	recs, err := s.write(ctx, "drain_balance", `
MATCH (u:User {id: $user_id})
WITH u, coalesce(u.balance, 0.0) AS before
WITH u, before, CASE WHEN before < $amount THEN before ELSE $amount END AS taken
SET u.balance = before - taken
RETURN taken, u.balance AS balance
`, map[string]any{"user_id": userID, "amount": amount})
	if err != nil {
		return 0, 0, err
	}
	rec := s.single("drain_balance", recs)
	if rec == nil {
		return 0, 0, apierr.NotFound(fmt.Errorf("user not found"))
	}
	return recFloat(rec, "taken"), recFloat(rec, "balance"), nil
}

func (s *Neo4jStore) ApplyPromo(ctx context.Context, userID string, amount float64) (bool, float64, error) {
	recs, err := s.write(ctx, "apply_promo", `
MATCH (u:User {id: $user_id})
WHERE coalesce(u.promo_applied, false) = false
SET u.promo_applied = true, u.balance = coalesce(u.balance, 0.0) + $amount
RETURN u.balance AS balance
`, map[string]any{"user_id": userID, "amount": amount})
	if err != nil {
		return false, 0, err
	}
	rec := s.single("apply_promo", recs)
	if rec == nil {
		return false, 0, nil
	}
	return true, recFloat(rec, "balance"), nil
}

// -------------------- categories --------------------

const mergeCategory = `
MATCH (u:User {id: $user_id})
MERGE (c:Category {user_id: $user_id, name_norm: $name})
ON CREATE SET c.id = $id, c.name = $name, c.created_at = $now
MERGE (u)-[:HAS_CATEGORY]->(c)
`

func (s *Neo4jStore) CreateOrGetCategory(ctx context.Context, userID, name string) (string, error) {
	name = domain.NormalizeCategory(name)
	if name == "" {
		return "", apierr.BadRequest(apierr.CodeMissingField, fmt.Errorf("category name required"))
	}
	recs, err := s.write(ctx, "create_or_get_category", mergeCategory+`RETURN c.id AS id`, map[string]any{
		"user_id": userID,
		"name":    name,
		"id":      uuid.NewString(),
		"now":     time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	rec := s.single("create_or_get_category", recs)
	if rec == nil {
		return "", apierr.NotFound(fmt.Errorf("user not found"))
	}
	return recString(rec, "id"), nil
}

func (s *Neo4jStore) GetCategoryInstructions(ctx context.Context, userID, name string) (string, error) {
	recs, err := s.read(ctx, "get_category_instructions", `
MATCH (:User {id: $user_id})-[:HAS_CATEGORY]->(c:Category {user_id: $user_id, name_norm: $name})
RETURN coalesce(c.instructions, '') AS instructions
`, map[string]any{"user_id": userID, "name": domain.NormalizeCategory(name)})
	if err != nil {
		return "", err
	}
	rec := s.single("get_category_instructions", recs)
	if rec == nil {
		return "", nil
	}
	return recString(rec, "instructions"), nil
}

func (s *Neo4jStore) SetCategoryInstructions(ctx context.Context, userID, name, instructions string) error {
	name = domain.NormalizeCategory(name)
	if name == "" {
		return apierr.BadRequest(apierr.CodeMissingField, fmt.Errorf("category name required"))
	}
	recs, err := s.write(ctx, "set_category_instructions", mergeCategory+`SET c.instructions = $instructions RETURN c.id AS id`, map[string]any{
		"user_id":      userID,
		"name":         name,
		"id":           uuid.NewString(),
		"now":          time.Now().UTC(),
		"instructions": instructions,
	})
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return apierr.NotFound(fmt.Errorf("user not found"))
	}
	return nil
}

func (s *Neo4jStore) listNames(ctx context.Context, op, where string, userID string) ([]string, error) {
	recs, err := s.read(ctx, op, `
MATCH (:User {id: $user_id})-[:HAS_CATEGORY]->(c:Category {user_id: $user_id})
`+where+`
RETURN c.name AS name
ORDER BY name
`, map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, recString(r, "name"))
	}
	return out, nil
}

func (s *Neo4jStore) ListCategories(ctx context.Context, userID string) ([]string, error) {
	return s.listNames(ctx, "list_categories", "", userID)
}

func (s *Neo4jStore) ListCategoriesWithFiles(ctx context.Context, userID string) ([]string, error) {
	return s.listNames(ctx, "list_categories_with_files",
		`WHERE EXISTS { MATCH (:File {user_id: $user_id})-[:BELONGS_TO]->(c) }`, userID)
}

func (s *Neo4jStore) ListCategoriesWithMessages(ctx context.Context, userID string) ([]string, error) {
	return s.listNames(ctx, "list_categories_with_messages",
		`WHERE EXISTS { MATCH (:Prompt {user_id: $user_id})-[:BELONGS_TO]->(c) }`, userID)
}

// -------------------- prompts --------------------

// WritePrompt upserts the category and inserts the prompt as two independently
// committed statements.
func (s *Neo4jStore) WritePrompt(ctx context.Context, userID, category, prompt, response string, at time.Time) (PromptRef, error) {
	category = domain.NormalizeCategory(category)
	categoryID, err := s.CreateOrGetCategory(ctx, userID, category)
	if err != nil {
		return PromptRef{}, err
	}
	if at.IsZero() {
		at = time.Now()
	}
	recs, err := s.write(ctx, "write_prompt", `
MATCH (:User {id: $user_id})-[:HAS_CATEGORY]->(c:Category {id: $category_id, user_id: $user_id})
CREATE (p:Prompt {id: $id, user_id: $user_id, prompt: $prompt, response: $response, created_at: $created_at})
CREATE (p)-[:BELONGS_TO]->(c)
RETURN p.id AS id
`, map[string]any{
		"user_id":     userID,
		"category_id": categoryID,
		"id":          uuid.NewString(),
		"prompt":      prompt,
		"response":    response,
		"created_at":  at.UTC(),
	})
	if err != nil {
		return PromptRef{}, err
	}
	rec := s.single("write_prompt", recs)
	if rec == nil {
		return PromptRef{}, apierr.Database(fmt.Errorf("graph write_prompt: category %s vanished", categoryID))
	}
	return PromptRef{ID: recString(rec, "id"), CategoryID: categoryID, Category: category}, nil
}

func (s *Neo4jStore) GetMessages(ctx context.Context, userID, category string) ([]domain.Message, error) {
	recs, err := s.read(ctx, "get_messages", `
MATCH (:User {id: $user_id})-[:HAS_CATEGORY]->(c:Category {user_id: $user_id, name_norm: $category})<-[:BELONGS_TO]-(p:Prompt {user_id: $user_id})
RETURN p.id AS id, p.prompt AS prompt, p.response AS response, p.created_at AS created_at
ORDER BY p.created_at DESC
`, map[string]any{"user_id": userID, "category": domain.NormalizeCategory(category)})
	if err != nil {
		return nil, err
	}
	return recMessages(recs), nil
}

func (s *Neo4jStore) GetMessagesByIDs(ctx context.Context, userID string, ids []string) ([]domain.Message, error) {
	if len(ids) == 0 {
		return []domain.Message{}, nil
	}
	recs, err := s.read(ctx, "get_messages_by_ids", `
MATCH (:User {id: $user_id})-[:HAS_CATEGORY]->(:Category {user_id: $user_id})<-[:BELONGS_TO]-(p:Prompt {user_id: $user_id})
WHERE p.id IN $ids
RETURN p.id AS id, p.prompt AS prompt, p.response AS response, p.created_at AS created_at
ORDER BY p.created_at DESC
`, map[string]any{"user_id": userID, "ids": ids})
	if err != nil {
		return nil, err
	}
	return recMessages(recs), nil
}

func (s *Neo4jStore) DeleteMessage(ctx context.Context, userID, promptID string) (bool, error) {
	recs, err := s.write(ctx, "delete_message", `
MATCH (:User {id: $user_id})-[:HAS_CATEGORY]->(c:Category {user_id: $user_id})<-[:BELONGS_TO]-(p:Prompt {id: $prompt_id, user_id: $user_id})
DETACH DELETE p
WITH DISTINCT c
OPTIONAL MATCH (c)<-[:BELONGS_TO]-(rest:Prompt)
WITH c, count(rest) AS remaining
FOREACH (_ IN CASE WHEN remaining = 0 THEN [1] ELSE [] END | DETACH DELETE c)
RETURN remaining = 0 AS category_deleted
`, map[string]any{"user_id": userID, "prompt_id": promptID})
	if err != nil {
		return false, err
	}
	rec := s.single("delete_message", recs)
	if rec == nil {
		return false, apierr.NotFound(fmt.Errorf("message not found"))
	}
	return recBool(rec, "category_deleted"), nil
}

// -------------------- files --------------------

func (s *Neo4jStore) AttachFile(ctx context.Context, userID, promptID, category string, f FileInput) (string, error) {
	at := f.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	recs, err := s.write(ctx, "attach_file", `
MATCH (:User {id: $user_id})-[:HAS_CATEGORY]->(c:Category {user_id: $user_id, name_norm: $category})<-[:BELONGS_TO]-(p:Prompt {id: $prompt_id, user_id: $user_id})
CREATE (f:File {id: $id, user_id: $user_id, category_id: c.id, name: $name, summary: $summary, structure: $structure, created_at: $created_at})
CREATE (f)-[:BELONGS_TO]->(c)
CREATE (f)-[:ORIGINATES_FROM]->(p)
RETURN f.id AS id
`, map[string]any{
		"user_id":    userID,
		"category":   domain.NormalizeCategory(category),
		"prompt_id":  promptID,
		"id":         uuid.NewString(),
		"name":       f.Name,
		"summary":    f.Summary,
		"structure":  f.Structure,
		"created_at": at.UTC(),
	})
	if err != nil {
		return "", err
	}
	rec := s.single("attach_file", recs)
	if rec == nil {
		return "", apierr.NotFound(fmt.Errorf("prompt %s not found in category %q", promptID, category))
	}
	return recString(rec, "id"), nil
}

func (s *Neo4jStore) GetFiles(ctx context.Context, userID, category string) ([]domain.File, error) {
	recs, err := s.read(ctx, "get_files", `
MATCH (:User {id: $user_id})-[:HAS_CATEGORY]->(c:Category {user_id: $user_id, name_norm: $category})<-[:BELONGS_TO]-(f:File {user_id: $user_id})
RETURN f.id AS id, c.id AS category_id, f.name AS name, f.summary AS summary, f.structure AS structure, f.created_at AS created_at
ORDER BY f.created_at DESC
`, map[string]any{"user_id": userID, "category": domain.NormalizeCategory(category)})
	if err != nil {
		return nil, err
	}
	out := make([]domain.File, 0, len(recs))
	for _, r := range recs {
		out = append(out, domain.File{
			ID:         recString(r, "id"),
			CategoryID: recString(r, "category_id"),
			Name:       recString(r, "name"),
			Summary:    recString(r, "summary"),
			Structure:  recString(r, "structure"),
			CreatedAt:  recTime(r, "created_at"),
		})
	}
	return out, nil
}

func (s *Neo4jStore) GetFile(ctx context.Context, userID, fileID string) (*domain.File, error) {
	recs, err := s.read(ctx, "get_file", `
MATCH (f:File {id: $file_id, user_id: $user_id})
RETURN f.id AS id, f.category_id AS category_id, f.name AS name, f.summary AS summary, f.structure AS structure, f.created_at AS created_at
`, map[string]any{"user_id": userID, "file_id": fileID})
	if err != nil {
		return nil, err
	}
	r := s.single("get_file", recs)
	if r == nil {
		return nil, apierr.NotFound(fmt.Errorf("file not found"))
	}
	return &domain.File{
		ID:         recString(r, "id"),
		CategoryID: recString(r, "category_id"),
		Name:       recString(r, "name"),
		Summary:    recString(r, "summary"),
		Structure:  recString(r, "structure"),
		CreatedAt:  recTime(r, "created_at"),
	}, nil
}

func (s *Neo4jStore) DeleteFile(ctx context.Context, userID, fileID string) (domain.FileRef, error) {
	recs, err := s.write(ctx, "delete_file", `
MATCH (f:File {id: $file_id, user_id: $user_id})
WITH f, f.id AS id, f.name AS name, f.category_id AS category_id
DETACH DELETE f
RETURN id, name, category_id
`, map[string]any{"user_id": userID, "file_id": fileID})
	if err != nil {
		return domain.FileRef{}, err
	}
	rec := s.single("delete_file", recs)
	if rec == nil {
		return domain.FileRef{}, apierr.NotFound(fmt.Errorf("file not found"))
	}
	return domain.FileRef{
		ID:         recString(rec, "id"),
		CategoryID: recString(rec, "category_id"),
		Name:       recString(rec, "name"),
	}, nil
}

// -------------------- topics --------------------

func (s *Neo4jStore) UpsertUserTopics(ctx context.Context, userID string, facts []domain.TopicFact) error {
	rows := topicRows(facts)
	if len(rows) == 0 {
		return nil
	}
	_, err := s.write(ctx, "upsert_user_topics", `
MATCH (u:User {id: $user_id})
UNWIND $rows AS row
MERGE (t:UserTopic {user_id: $user_id, name_norm: row.name_norm})
ON CREATE SET t.name = row.name, t.created_at = $now
SET t += row.props, t.updated_at = $now
MERGE (t)-[:RELATES_TO]->(u)
`, map[string]any{"user_id": userID, "rows": rows, "now": time.Now().UTC()})
	return err
}

func (s *Neo4jStore) SearchUserTopic(ctx context.Context, userID, name string) (*domain.UserTopic, error) {
	norm := normalizeTopic(name)
	if norm == "" {
		return nil, nil
	}
	recs, err := s.read(ctx, "search_user_topic", `
MATCH (t:UserTopic {user_id: $user_id, name_norm: $name})-[:RELATES_TO]->(:User {id: $user_id})
RETURN t.name AS name, properties(t) AS props
`, map[string]any{"user_id": userID, "name": norm})
	if err != nil {
		return nil, err
	}
	rec := s.single("search_user_topic", recs)
	if rec == nil {
		return nil, nil
	}
	topic := &domain.UserTopic{Name: recString(rec, "name"), Params: map[string]string{}}
	if raw, ok := rec.Get("props"); ok {
		if props, ok := raw.(map[string]any); ok {
			for k, v := range props {
				if !strings.HasPrefix(k, topicParamPrefix) {
					continue
				}
				if sv, ok := v.(string); ok {
					topic.Params[strings.TrimPrefix(k, topicParamPrefix)] = sv
				}
			}
		}
	}
	return topic, nil
}

// topicRows groups facts by normalised topic name.
func topicRows(facts []domain.TopicFact) []map[string]any {
	byName := map[string]map[string]any{}
	order := []string{}
	for _, f := range facts {
		norm := normalizeTopic(f.Name)
		if norm == "" || strings.TrimSpace(f.Parameter) == "" {
			continue
		}
		row, ok := byName[norm]
		if !ok {
			row = map[string]any{"name": strings.TrimSpace(f.Name), "name_norm": norm, "props": map[string]any{}}
			byName[norm] = row
			order = append(order, norm)
		}
		row["props"].(map[string]any)[topicParamKey(f.Parameter)] = f.Content
	}
	out := make([]map[string]any, 0, len(order))
	for _, n := range order {
		out = append(out, byName[n])
	}
	return out
}

// -------------------- record helpers --------------------

func recMessages(recs []*neo4j.Record) []domain.Message {
	out := make([]domain.Message, 0, len(recs))
	for _, r := range recs {
		out = append(out, domain.Message{
			ID:        recString(r, "id"),
			Prompt:    recString(r, "prompt"),
			Response:  recString(r, "response"),
			CreatedAt: recTime(r, "created_at"),
		})
	}
	return out
}

func recString(r *neo4j.Record, key string) string {
	v, _ := r.Get(key)
	s, _ := v.(string)
	return s
}

func recBool(r *neo4j.Record, key string) bool {
	v, _ := r.Get(key)
	b, _ := v.(bool)
	return b
}

func recFloat(r *neo4j.Record, key string) float64 {
	v, _ := r.Get(key)
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func recTime(r *neo4j.Record, key string) time.Time {
	v, _ := r.Get(key)
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case neo4j.LocalDateTime:
		return t.Time().UTC()
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
