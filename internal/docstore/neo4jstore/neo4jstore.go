// Package neo4jstore repurposes a Neo4j connection as the document-store
// backend: each document becomes a node labeled by its
// kind, keyed by id, carrying the JSON body as a single string property.
// This deliberately ignores Neo4j's relationship/graph features — the spec
// only asks for key-value semantics here.
package neo4jstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ragforge/ragcore/internal/docstore"
)

// Store implements docstore.Store over a Neo4j driver.
type Store struct {
	driver neo4j.DriverWithContext
}

func New(driver neo4j.DriverWithContext) *Store {
	return &Store{driver: driver}
}

func label(kind string) string {
	return "Doc_" + kind
}

func (s *Store) Get(ctx context.Context, kind, id string) (json.RawMessage, error) {
	query := fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN n.body AS body", label(kind))
	result, err := neo4j.ExecuteQuery(ctx, s.driver, query,
		map[string]any{"id": id}, neo4j.EagerResultTransformer)
	if err != nil {
		return nil, fmt.Errorf("neo4j get %s/%s: %w", kind, id, err)
	}
	if len(result.Records) == 0 {
		return nil, docstore.ErrNotFound
	}
	body, _, err := neo4j.GetRecordValue[string](result.Records[0], "body")
	if err != nil {
		return nil, fmt.Errorf("neo4j decode body for %s/%s: %w", kind, id, err)
	}
	return json.RawMessage(body), nil
}

func (s *Store) Put(ctx context.Context, kind, id string, value any, indexed map[string]string) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	params := map[string]any{"id": id, "body": string(body)}
	sets := "n.body = $body, n.updatedAt = timestamp()"
	for k, v := range indexed {
		pname := "idx_" + k
		params[pname] = v
		sets += fmt.Sprintf(", n.%s = $%s", k, pname)
	}
	query := fmt.Sprintf("MERGE (n:%s {id: $id}) SET %s", label(kind), sets)
	_, err = neo4j.ExecuteQuery(ctx, s.driver, query, params, neo4j.EagerResultTransformer)
	if err != nil {
		return fmt.Errorf("neo4j put %s/%s: %w", kind, id, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, kind, id string) error {
	query := fmt.Sprintf("MATCH (n:%s {id: $id}) DETACH DELETE n", label(kind))
	_, err := neo4j.ExecuteQuery(ctx, s.driver, query,
		map[string]any{"id": id}, neo4j.EagerResultTransformer)
	if err != nil {
		return fmt.Errorf("neo4j delete %s/%s: %w", kind, id, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, kind string, filter map[string]string) ([]json.RawMessage, error) {
	where := ""
	params := map[string]any{}
	i := 0
	for k, v := range filter {
		if i > 0 {
			where += " AND "
		} else {
			where = " WHERE "
		}
		pname := fmt.Sprintf("f%d", i)
		where += fmt.Sprintf("n.%s = $%s", k, pname)
		params[pname] = v
		i++
	}
	query := fmt.Sprintf("MATCH (n:%s)%s RETURN n.body AS body", label(kind), where)
	result, err := neo4j.ExecuteQuery(ctx, s.driver, query, params, neo4j.EagerResultTransformer)
	if err != nil {
		return nil, fmt.Errorf("neo4j list %s: %w", kind, err)
	}
	out := make([]json.RawMessage, 0, len(result.Records))
	for _, rec := range result.Records {
		body, _, err := neo4j.GetRecordValue[string](rec, "body")
		if err != nil {
			continue
		}
		out = append(out, json.RawMessage(body))
	}
	return out, nil
}
