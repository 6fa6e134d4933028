package services

import (
	"context"
	"fmt"

	"bioguard/models"
	"bioguard/utils"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// GraphRunner executes one Cypher statement and buffers the result.
type GraphRunner interface {
	Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)
}

// Neo4jRunner runs statements through the driver's managed transactions.
type Neo4jRunner struct {
	driver neo4j.DriverWithContext
	dbName string
}

func NewNeo4jRunner(ctx context.Context, uri, user, password, dbName string) (*Neo4jRunner, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("could not create Neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j unreachable: %w", err)
	}
	return &Neo4jRunner{driver: driver, dbName: dbName}, nil
}

func (r *Neo4jRunner) Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(ctx, r.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(r.dbName),
	)
}

func (r *Neo4jRunner) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

const (
	syncEdgesCypher = `
UNWIND $edges AS e
MERGE (i:Ingredient {name: e.ingredient})
MERGE (c:Condition {name: e.condition})
MERGE (i)-[r:AFFECTS]->(c)
SET r.relationship = e.relationship, r.severity = e.severity`

	loadEdgesCypher = `
MATCH (i:Ingredient)-[r:AFFECTS]->(c:Condition)
RETURN i.name AS ingredient, c.name AS condition, r.relationship AS relationship, r.severity AS severity
ORDER BY ingredient, condition`
)

// GraphStore mirrors the in-memory conflict graph to Neo4j and reads back
// edges curated there.
type GraphStore struct {
	runner GraphRunner
	log    *utils.Logger
}

func NewGraphStore(runner GraphRunner, log *utils.Logger) *GraphStore {
	if log == nil {
		log = utils.NopLogger()
	}
	return &GraphStore{runner: runner, log: log.With("service", "graph_store")}
}

// SyncEdges upserts every edge in one statement. Node names use the same
// trimmed, lowercased keys as the in-memory graph; edges with an empty end are
// dropped.
func (s *GraphStore) SyncEdges(ctx context.Context, edges []models.ConflictEdge) error {
	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		ing, cond := normalizeKey(e.Ingredient), normalizeKey(e.Condition)
		if ing == "" || cond == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"ingredient":   ing,
			"condition":    cond,
			"relationship": string(e.Relationship),
			"severity":     string(e.Severity),
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := s.runner.Run(ctx, syncEdgesCypher, map[string]any{"edges": rows}); err != nil {
		return fmt.Errorf("sync conflict edges: %w", err)
	}
	return nil
}

// LoadInto adds every stored edge to g. Rows with an unknown relationship or
// severity are skipped. It returns how many edges were added.
func (s *GraphStore) LoadInto(ctx context.Context, g *ConflictGraph) (int, error) {
	res, err := s.runner.Run(ctx, loadEdgesCypher, nil)
	if err != nil {
		return 0, fmt.Errorf("load conflict edges: %w", err)
	}
	n := 0
	for _, rec := range res.Records {
		e := models.ConflictEdge{
			Ingredient:   recordString(rec, "ingredient"),
			Condition:    recordString(rec, "condition"),
			Relationship: models.Relationship(recordString(rec, "relationship")),
			Severity:     models.Severity(recordString(rec, "severity")),
		}
		if e.Ingredient == "" || e.Condition == "" || !e.Relationship.Valid() || !e.Severity.Valid() {
			s.log.Warn("skipping invalid graph edge", "ingredient", e.Ingredient, "condition", e.Condition)
			continue
		}
		g.AddEdge(e)
		n++
	}
	return n, nil
}

func recordString(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
