package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Apply renders m and executes it in one write transaction. Create and
// update return the upserted root node; delete returns nil.
func (c *Client) Apply(ctx context.Context, m *Mutation) (*models.GraphNode, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.Apply")
	defer span.End()

	stmt, err := Render(m, c.Dialect())
	if err != nil {
		return nil, err
	}

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"mutation": m.Kind.String(),
		"root_id":  m.RootKey,
	})
	verbose := c.Verbose()
	if verbose {
		log.WithField("cypher", stmt.Cypher).Info("Executing graph mutation")
	}

	result, err := c.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, stmt.Cypher, stmt.Params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		log.WithError(err).Error("Failed to execute graph mutation")
		return nil, fmt.Errorf("failed to execute graph %s: %w", m.Kind, err)
	}

	records, _ := result.([]*neo4j.Record)
	if verbose {
		for _, record := range records {
			log.WithField("record", record.AsMap()).Info("Graph mutation returned record")
		}
	}

	if m.Kind == MutationDelete {
		return nil, nil
	}
	if len(records) == 0 || len(records[0].Values) == 0 {
		return nil, fmt.Errorf("graph %s returned no root node", m.Kind)
	}
	node, ok := records[0].Values[0].(neo4j.Node)
	if !ok {
		return nil, fmt.Errorf("graph %s returned %T instead of a node", m.Kind, records[0].Values[0])
	}
	return toGraphNode(node), nil
}

// DeleteAll removes every document and internal node in one write transaction
func (c *Client) DeleteAll(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.DeleteAll")
	defer span.End()

	verbose := c.Verbose()
	_, err := c.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, stmt := range DeleteAllStatements() {
			if verbose {
				c.logger.WithContext(ctx).WithField("cypher", stmt.Cypher).Info("Executing graph mutation")
			}
			res, err := tx.Run(ctx, stmt.Cypher, stmt.Params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Error("Failed to delete all graph documents")
		return fmt.Errorf("failed to delete all graph documents: %w", err)
	}
	return nil
}

// IsUnavailable reports whether err means the client cannot serve requests
// at all, as opposed to a failed statement
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrClientClosed)
}

func toGraphNode(node neo4j.Node) *models.GraphNode {
	return &models.GraphNode{
		ID:         nodeID(node),
		Labels:     node.Labels,
		Properties: node.Props,
	}
}
