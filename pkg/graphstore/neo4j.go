package graphstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
)

// Neo4jConfig configures the Neo4j HTTP adapter.
type Neo4jConfig struct {
	URL      string // e.g. http://localhost:7474
	Database string // defaults to neo4j
	Username string
	Password string
	Timeout  time.Duration
}

// Neo4j implements Store against the Neo4j transactional HTTP API. Entities
// are (:Entity {name, project}) nodes and relationships are generic [:REL]
// edges carrying type, weight and document_id properties, so every statement
// stays static Cypher with parameters.
type Neo4j struct {
	endpoint   string
	username   string
	password   string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewNeo4j creates a Neo4j adapter.
func NewNeo4j(cfg Neo4jConfig, logger zerolog.Logger) *Neo4j {
	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Neo4j{
		endpoint: cfg.URL + "/db/" + database + "/tx/commit",
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With().Str("component", "neo4j").Logger(),
	}
}

type statement struct {
	Statement  string         `json:"statement"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (n *Neo4j) IsHealthy(ctx context.Context) error {
	_, err := n.commit(ctx, statement{Statement: "RETURN 1"})
	return err
}

func (n *Neo4j) EnsureProject(ctx context.Context, project string) error {
	_, err := n.commit(ctx, statement{
		Statement: "CREATE INDEX entity_project_name IF NOT EXISTS FOR (e:Entity) ON (e.project, e.name)",
	})
	return err
}

func (n *Neo4j) UpsertRelationships(ctx context.Context, project string, relationships []memory.Relationship) error {
	if len(relationships) == 0 {
		return nil
	}

	rows := make([]map[string]any, len(relationships))
	for i, r := range relationships {
		rows[i] = map[string]any{
			"source":      r.Source,
			"target":      r.Target,
			"type":        r.Type,
			"weight":      r.Weight,
			"document_id": r.DocumentID,
		}
	}

	_, err := n.commit(ctx, statement{
		Statement: `UNWIND $rels AS rel
MERGE (s:Entity {name: rel.source, project: $project})
MERGE (t:Entity {name: rel.target, project: $project})
MERGE (s)-[r:REL {type: rel.type, document_id: rel.document_id, project: $project}]->(t)
SET r.weight = rel.weight`,
		Parameters: map[string]any{"project": project, "rels": rows},
	})
	return err
}

const relReturn = "RETURN r.type, s.name, t.name, r.weight, r.document_id"

func (n *Neo4j) GetRelationships(ctx context.Context, project, entity string, direction Direction, relType string) ([]memory.Relationship, error) {
	var where string
	switch direction {
	case DirectionOut:
		where = "s.name = $entity"
	case DirectionIn:
		where = "t.name = $entity"
	default:
		where = "(s.name = $entity OR t.name = $entity)"
	}
	if relType != "" {
		where += " AND r.type = $type"
	}

	rows, err := n.commit(ctx, statement{
		Statement: fmt.Sprintf(
			"MATCH (s:Entity {project: $project})-[r:REL {project: $project}]->(t:Entity) WHERE %s %s",
			where, relReturn),
		Parameters: map[string]any{"project": project, "entity": entity, "type": relType},
	})
	if err != nil {
		return nil, err
	}
	rels := decodeRelationships(rows)
	sortRelationships(rels)
	return rels, nil
}

func (n *Neo4j) Traverse(ctx context.Context, project string, seeds []string, maxDepth int) (*Subgraph, error) {
	visited := make(map[string]bool, len(seeds))
	frontier := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if !visited[s] {
			visited[s] = true
			frontier = append(frontier, s)
		}
	}

	collected := make(map[string]memory.Relationship)
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		rows, err := n.commit(ctx, statement{
			Statement: "MATCH (s:Entity {project: $project})-[r:REL {project: $project}]->(t:Entity) " +
				"WHERE s.name IN $frontier OR t.name IN $frontier " + relReturn,
			Parameters: map[string]any{"project": project, "frontier": frontier},
		})
		if err != nil {
			return nil, err
		}

		var next []string
		for _, r := range decodeRelationships(rows) {
			collected[edgeKey(r)] = r
			for _, entity := range []string{r.Source, r.Target} {
				if !visited[entity] {
					visited[entity] = true
					next = append(next, entity)
				}
			}
		}
		frontier = next
	}

	sub := &Subgraph{
		Entities:      make([]string, 0, len(visited)),
		Relationships: make([]memory.Relationship, 0, len(collected)),
	}
	for entity := range visited {
		sub.Entities = append(sub.Entities, entity)
	}
	for _, r := range collected {
		sub.Relationships = append(sub.Relationships, r)
	}
	sortStrings(sub.Entities)
	sortRelationships(sub.Relationships)
	return sub, nil
}

func (n *Neo4j) EntitiesForDocument(ctx context.Context, project, documentID string) ([]string, error) {
	rows, err := n.commit(ctx, statement{
		Statement: "MATCH (s:Entity)-[r:REL {project: $project, document_id: $document_id}]->(t:Entity) " +
			"RETURN DISTINCT s.name, t.name",
		Parameters: map[string]any{"project": project, "document_id": documentID},
	})
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	for _, row := range rows {
		for _, cell := range row {
			if name, ok := cell.(string); ok {
				set[name] = true
			}
		}
	}
	entities := make([]string, 0, len(set))
	for e := range set {
		entities = append(entities, e)
	}
	sortStrings(entities)
	return entities, nil
}

func (n *Neo4j) DeleteByDocumentID(ctx context.Context, project, documentID string) error {
	_, err := n.commit(ctx,
		statement{
			Statement:  "MATCH ()-[r:REL {project: $project, document_id: $document_id}]->() DELETE r",
			Parameters: map[string]any{"project": project, "document_id": documentID},
		},
		statement{
			Statement:  "MATCH (e:Entity {project: $project}) WHERE NOT (e)--() DELETE e",
			Parameters: map[string]any{"project": project},
		})
	return err
}

func (n *Neo4j) Stats(ctx context.Context, project string) (Stats, error) {
	rows, err := n.commit(ctx, statement{
		Statement: "MATCH (e:Entity {project: $project}) " +
			"OPTIONAL MATCH ()-[r:REL {project: $project}]->() " +
			"RETURN count(DISTINCT e), count(DISTINCT r)",
		Parameters: map[string]any{"project": project},
	})
	if err != nil {
		return Stats{}, err
	}
	if len(rows) == 0 || len(rows[0]) < 2 {
		return Stats{}, nil
	}

	stats := Stats{}
	if v, ok := rows[0][0].(float64); ok {
		stats.Entities = int(v)
	}
	if v, ok := rows[0][1].(float64); ok {
		stats.Relationships = int(v)
	}
	return stats, nil
}

func (n *Neo4j) ExportAll(ctx context.Context, project string) ([]memory.Relationship, error) {
	rows, err := n.commit(ctx, statement{
		Statement: "MATCH (s:Entity {project: $project})-[r:REL {project: $project}]->(t:Entity) " + relReturn,
		Parameters: map[string]any{"project": project},
	})
	if err != nil {
		return nil, err
	}
	rels := decodeRelationships(rows)
	sortRelationships(rels)
	return rels, nil
}

func (n *Neo4j) DropProject(ctx context.Context, project string) error {
	_, err := n.commit(ctx, statement{
		Statement:  "MATCH (e:Entity {project: $project}) DETACH DELETE e",
		Parameters: map[string]any{"project": project},
	})
	return err
}

// commit executes statements in one auto-committed transaction and returns
// the rows of the first result.
func (n *Neo4j) commit(ctx context.Context, statements ...statement) ([][]any, error) {
	data, err := json.Marshal(map[string]any{"statements": statements})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if n.username != "" {
		req.SetBasicAuth(n.username, n.password)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, memory.NewUnavailable(err, "neo4j unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, memory.NewUnavailable(nil, "neo4j error (status %d): %s", resp.StatusCode, string(body))
		}
		return nil, memory.NewValidation("neo4j rejected request (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Results []struct {
			Data []struct {
				Row []any `json:"row"`
			} `json:"data"`
		} `json:"results"`
		Errors []struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Errors) > 0 {
		first := result.Errors[0]
		// Cypher errors come back with HTTP 200; the code tells transient
		// from client mistakes.
		if isTransientNeo4jCode(first.Code) {
			return nil, memory.NewUnavailable(nil, "neo4j: %s: %s", first.Code, first.Message)
		}
		return nil, memory.NewValidation("neo4j: %s: %s", first.Code, first.Message)
	}

	if len(result.Results) == 0 {
		return nil, nil
	}
	rows := make([][]any, len(result.Results[0].Data))
	for i, d := range result.Results[0].Data {
		rows[i] = d.Row
	}
	return rows, nil
}

func isTransientNeo4jCode(code string) bool {
	return strings.HasPrefix(code, "Neo.TransientError") || strings.HasPrefix(code, "Neo.DatabaseError")
}

func sortStrings(s []string) {
	sort.Strings(s)
}

func decodeRelationships(rows [][]any) []memory.Relationship {
	rels := make([]memory.Relationship, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		r := memory.Relationship{}
		r.Type, _ = row[0].(string)
		r.Source, _ = row[1].(string)
		r.Target, _ = row[2].(string)
		if w, ok := row[3].(float64); ok {
			r.Weight = w
		}
		r.DocumentID, _ = row[4].(string)
		rels = append(rels, r)
	}
	return rels
}
