// Package graph provides the Neo4j/Memgraph client and the Cypher rendering
// of document mutations, over the Bolt protocol
package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	// ErrNotConfigured is returned before the first successful Configure
	ErrNotConfigured = errors.New("graph client is not configured")
	// ErrClientClosed is returned once Close has been called
	ErrClientClosed = errors.New("graph client is closed")
)

// Settings identify the graph store to connect to
type Settings struct {
	URI          string
	Username     string
	Password     string
	DatabaseName string
	Dialect      Dialect
	// Verbose logs every rendered statement and returned record
	Verbose bool
}

// DriverFactory opens a driver. Swapped out in tests.
type DriverFactory func(uri string, auth neo4j.AuthToken) (neo4j.DriverWithContext, error)

// Client owns the driver. Transactions share a read lock; Configure and
// Close take the write lock, so a reconfiguration waits for in-flight work
// and only one proceeds at a time.
type Client struct {
	mu        sync.RWMutex
	driver    neo4j.DriverWithContext
	settings  Settings
	closed    bool
	newDriver DriverFactory
	logger    ectologger.Logger
}

// NewClient creates an unconfigured client
func NewClient(logger ectologger.Logger) *Client {
	return &Client{
		logger: logger,
		newDriver: func(uri string, auth neo4j.AuthToken) (neo4j.DriverWithContext, error) {
			return neo4j.NewDriverWithContext(uri, auth)
		},
	}
}

// NewClientWithDriverFactory creates a client that opens drivers through f
func NewClientWithDriverFactory(logger ectologger.Logger, f DriverFactory) *Client {
	c := NewClient(logger)
	c.newDriver = f
	return c
}

// Configure opens a driver for s and replaces the active one, closing the
// old driver once no transaction holds it.
func (c *Client) Configure(ctx context.Context, s Settings) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.Configure")
	defer span.End()

	auth := neo4j.NoAuth()
	if s.Username != "" {
		auth = neo4j.BasicAuth(s.Username, s.Password, "")
	}

	driver, err := c.newDriver(s.URI, auth)
	if err != nil {
		return fmt.Errorf("failed to create graph driver: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		_ = driver.Close(ctx)
		return ErrClientClosed
	}

	previous := c.driver
	c.driver = driver
	c.settings = s

	if previous != nil {
		if err := previous.Close(ctx); err != nil {
			c.logger.WithContext(ctx).WithError(err).Warn("Failed to close previous graph driver")
		}
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"uri":      s.URI,
		"database": s.DatabaseName,
	}).Info("Graph client configured")
	return nil
}

// Close releases the driver. Calls after the first are no-ops.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.driver == nil {
		return nil
	}
	driver := c.driver
	c.driver = nil
	return driver.Close(ctx)
}

// VerifyConnectivity checks if the database is reachable
func (c *Client) VerifyConnectivity(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.usable(); err != nil {
		return err
	}
	return c.driver.VerifyConnectivity(ctx)
}

// ExecuteWrite runs work in one managed write transaction
func (c *Client) ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.ExecuteWrite")
	defer span.End()

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.usable(); err != nil {
		return nil, tracing.RecordError(span, err)
	}

	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, work)
	return result, tracing.RecordError(span, err)
}

// ExecuteRead runs work in one managed read transaction
func (c *Client) ExecuteRead(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.ExecuteRead")
	defer span.End()

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.usable(); err != nil {
		return nil, tracing.RecordError(span, err)
	}

	session := c.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, work)
	return result, tracing.RecordError(span, err)
}

// Verbose reports whether statements should be logged
func (c *Client) Verbose() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.Verbose
}

// Dialect reports the Cypher dialect of the configured store
func (c *Client) Dialect() Dialect {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.settings.Dialect == "" {
		return DialectNeo4j
	}
	return c.settings.Dialect
}

func (c *Client) usable() error {
	if c.closed {
		return ErrClientClosed
	}
	if c.driver == nil {
		return ErrNotConfigured
	}
	return nil
}

func (c *Client) session(ctx context.Context, accessMode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   accessMode,
		DatabaseName: c.settings.DatabaseName,
	})
}
