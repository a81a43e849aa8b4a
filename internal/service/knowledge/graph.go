package knowledge

import (
	"context"
	"fmt"
	"log"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/liuxinyu/starlight/backend/internal/config"
)

// Record 是图查询返回的一行，保持存储的遍历顺序。
type Record map[string]any

// Preference 是图谱中记录的一条用户偏好。
type Preference struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Context 聚合一次图谱查询的结果：相关子图与用户偏好。
type Context struct {
	Subgraph    []Record     `json:"subgraph"`
	Preferences []Preference `json:"preferences"`
}

// Stats 统计一次知识写入创建的节点与关系数。
type Stats struct {
	NodesCreated         int `json:"nodesCreated"`
	RelationshipsCreated int `json:"relationshipsCreated"`
}

// Graph 封装 Neo4j 驱动，提供会话作用域的读写。
type Graph struct {
	driver neo4j.DriverWithContext
}

// NewGraph 连接图数据库并确保约束存在。
func NewGraph(ctx context.Context, cfg config.GraphConfig) (*Graph, error) {
	if cfg.URI == "" || cfg.Password == "" {
		return nil, fmt.Errorf("Neo4j URI 和密码必须配置")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	g := &Graph{driver: driver}
	g.createConstraints(ctx)
	return g, nil
}

// Close 释放驱动资源。
func (g *Graph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// createConstraints 创建唯一性约束，已存在时忽略错误。
func (g *Graph) createConstraints(ctx context.Context) {
	constraints := []string{
		"CREATE CONSTRAINT entity_name IF NOT EXISTS FOR (e:Entity) REQUIRE e.name IS UNIQUE",
		"CREATE CONSTRAINT session_id IF NOT EXISTS FOR (s:Session) REQUIRE s.id IS UNIQUE",
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	for _, constraint := range constraints {
		if _, err := session.Run(ctx, constraint, nil); err != nil {
			log.Printf("[knowledge] create constraint failed: %v", err)
		}
	}
}

// EnsureSession 幂等地创建会话锚点节点。
func (g *Graph) EnsureSession(ctx context.Context, sessionID string) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (s:Session {id: $sessionID})
		ON CREATE SET s.created_at = datetime()
		RETURN s.id`

	if _, err := session.Run(ctx, query, map[string]any{"sessionID": sessionID}); err != nil {
		return fmt.Errorf("ensure session node: %w", err)
	}
	return nil
}

// FetchContext 查询与输入相关的子图以及会话内记录的用户偏好。
// 结果保持存储的遍历顺序，无结果是合法的空输出。
func (g *Graph) FetchContext(ctx context.Context, query, sessionID string, limit, preferenceLimit int) (Context, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	out := Context{}

	subgraphQuery := `
		MATCH (n:Entity)
		WHERE n.session_id = $sessionID
		  AND (n.name CONTAINS $query OR n.description CONTAINS $query)
		OPTIONAL MATCH (n)-[r]->(m:Entity)
		RETURN n.name AS name, n.type AS type, n.description AS description,
		       type(r) AS relation, m.name AS target
		LIMIT $limit`

	result, err := session.Run(ctx, subgraphQuery, map[string]any{
		"sessionID": sessionID,
		"query":     query,
		"limit":     limit,
	})
	if err != nil {
		return Context{}, fmt.Errorf("query subgraph: %w", err)
	}
	for result.Next(ctx) {
		out.Subgraph = append(out.Subgraph, Record(result.Record().AsMap()))
	}
	if err := result.Err(); err != nil {
		return Context{}, fmt.Errorf("read subgraph records: %w", err)
	}

	preferenceQuery := `
		MATCH (u:Entity {session_id: $sessionID})-[:LIKES]->(p:Entity)
		RETURN p.name AS name, p.description AS description
		LIMIT $limit`

	result, err = session.Run(ctx, preferenceQuery, map[string]any{
		"sessionID": sessionID,
		"limit":     preferenceLimit,
	})
	if err != nil {
		return Context{}, fmt.Errorf("query preferences: %w", err)
	}
	for result.Next(ctx) {
		record := result.Record()
		out.Preferences = append(out.Preferences, Preference{
			Name:        stringValue(record, "name"),
			Description: stringValue(record, "description"),
		})
	}
	if err := result.Err(); err != nil {
		return Context{}, fmt.Errorf("read preference records: %w", err)
	}

	return out, nil
}

// GraphData 返回会话子图的节点与边，用于可视化，上限各 100 条。
func (g *Graph) GraphData(ctx context.Context, sessionID string) ([]Record, []Record, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	nodesQuery := `
		MATCH (n:Entity)
		WHERE n.session_id = $sessionID
		RETURN DISTINCT n.name AS id, n.type AS type
		LIMIT 100`

	result, err := session.Run(ctx, nodesQuery, map[string]any{"sessionID": sessionID})
	if err != nil {
		return nil, nil, fmt.Errorf("query nodes: %w", err)
	}
	var nodes []Record
	for result.Next(ctx) {
		nodes = append(nodes, Record(result.Record().AsMap()))
	}
	if err := result.Err(); err != nil {
		return nil, nil, fmt.Errorf("read node records: %w", err)
	}

	edgesQuery := `
		MATCH (n:Entity)-[r]->(m:Entity)
		WHERE n.session_id = $sessionID OR m.session_id = $sessionID
		RETURN n.name AS source, m.name AS target, type(r) AS relation
		LIMIT 100`

	result, err = session.Run(ctx, edgesQuery, map[string]any{"sessionID": sessionID})
	if err != nil {
		return nil, nil, fmt.Errorf("query edges: %w", err)
	}
	var edges []Record
	for result.Next(ctx) {
		edges = append(edges, Record(result.Record().AsMap()))
	}
	if err := result.Err(); err != nil {
		return nil, nil, fmt.Errorf("read edge records: %w", err)
	}

	return nodes, edges, nil
}

// ClearSession 删除会话的所有图数据。
func (g *Graph) ClearSession(ctx context.Context, sessionID string) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (n)
		WHERE n.session_id = $sessionID OR (n:Session AND n.id = $sessionID)
		DETACH DELETE n`

	if _, err := session.Run(ctx, query, map[string]any{"sessionID": sessionID}); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// persistExtraction 将抽取结果写入图谱：实体挂到会话锚点，
// 关系类型经过白名单校验后再拼入 Cypher。
func (g *Graph) persistExtraction(ctx context.Context, sessionID string, extraction extractionPayload) (Stats, error) {
	if err := g.EnsureSession(ctx, sessionID); err != nil {
		return Stats{}, err
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	stats := Stats{}

	entityQuery := `
		MATCH (s:Session {id: $sessionID})
		MERGE (e:Entity {name: $name})
		SET e.type = $type, e.description = $description, e.session_id = $sessionID
		MERGE (s)-[:HAS_ENTITY]->(e)`

	for _, entity := range extraction.Entities {
		if entity.Name == "" {
			continue
		}
		_, err := session.Run(ctx, entityQuery, map[string]any{
			"sessionID":   sessionID,
			"name":        entity.Name,
			"type":        normalizeNodeType(entity.Type),
			"description": entity.Description,
		})
		if err != nil {
			return stats, fmt.Errorf("merge entity %q: %w", entity.Name, err)
		}
		stats.NodesCreated++
	}

	for _, rel := range extraction.Relationships {
		if rel.Source == "" || rel.Target == "" {
			continue
		}
		relType := normalizeRelationshipType(rel.Type)
		relQuery := fmt.Sprintf(`
			MATCH (a:Entity {name: $source}), (b:Entity {name: $target})
			MERGE (a)-[r:%s]->(b)
			SET r.weight = $weight, r.session_id = $sessionID`, relType)

		_, err := session.Run(ctx, relQuery, map[string]any{
			"source":    rel.Source,
			"target":    rel.Target,
			"weight":    rel.Weight,
			"sessionID": sessionID,
		})
		if err != nil {
			return stats, fmt.Errorf("merge relationship %s-[%s]->%s: %w", rel.Source, relType, rel.Target, err)
		}
		stats.RelationshipsCreated++
	}

	return stats, nil
}

func stringValue(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	s, _ := val.(string)
	return s
}
