package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/JakeFAU/frontier-crawler/internal/progress"
)

// SessionRunner abstracts neo4j.SessionWithContext.
type SessionRunner interface {
	ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork, configurers ...func(*neo4j.TransactionConfig)) (any, error)
	Close(ctx context.Context) error
}

// DriverSessioner abstracts neo4j.DriverWithContext.
type DriverSessioner interface {
	NewSession(ctx context.Context, config neo4j.SessionConfig) SessionRunner
	Close(ctx context.Context) error
}

const (
	linkQuery = "UNWIND $links AS link " +
		"MERGE (p:Page {url: link.parent}) " +
		"MERGE (c:Page {url: link.child}) " +
		"ON CREATE SET c.depth = link.depth, c.classification = link.classification, c.status = link.status " +
		"MERGE (p)-[r:LINKS_TO]->(c) " +
		"ON CREATE SET r.depth = link.depth"
	statusQuery = "UNWIND $pages AS page " +
		"MERGE (p:Page {url: page.url}) " +
		"SET p.status = page.status, p.depth = page.depth"
)

// GraphSink records the discovered link graph in Neo4j: one Page node per URL
// and a LINKS_TO edge from parent to child for every DISCOVERED event.
type GraphSink struct {
	driver   DriverSessioner
	database string
}

// GraphConfig controls the Neo4j connection.
type GraphConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

type neo4jDriver struct {
	driver neo4j.DriverWithContext
}

func (d *neo4jDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) SessionRunner {
	return d.driver.NewSession(ctx, config)
}

func (d *neo4jDriver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

// NewGraphSink connects to Neo4j and verifies connectivity.
func NewGraphSink(ctx context.Context, cfg GraphConfig) (*GraphSink, error) {
	if cfg.URI == "" {
		return nil, errors.New("progress.neo4j.uri is required")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return NewGraphSinkWithDriver(&neo4jDriver{driver: driver}, cfg.Database), nil
}

// NewGraphSinkWithDriver builds a sink around an existing driver (tests).
func NewGraphSinkWithDriver(driver DriverSessioner, database string) *GraphSink {
	return &GraphSink{driver: driver, database: database}
}

// Name implements progress.NamedSink.
func (s *GraphSink) Name() string { return "neo4j" }

// Consume writes the batch's edges and page statuses in one transaction.
func (s *GraphSink) Consume(ctx context.Context, batch []progress.Event) error {
	links, pages := graphParams(batch)
	if len(links) == 0 && len(pages) == 0 {
		return nil
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer func() { _ = session.Close(ctx) }()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if len(links) > 0 {
			if _, err := tx.Run(ctx, linkQuery, map[string]any{"links": links}); err != nil {
				return nil, err
			}
		}
		if len(pages) > 0 {
			if _, err := tx.Run(ctx, statusQuery, map[string]any{"pages": pages}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("write link graph: %w", err)
	}
	return nil
}

// Close closes the driver.
func (s *GraphSink) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// graphParams splits a batch into edge rows (DISCOVERED with a parent) and page
// status rows (SEED, CRAWLED, FAILED).
func graphParams(batch []progress.Event) (links, pages []map[string]any) {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageDiscovered:
			if evt.ParentURL == "" {
				continue
			}
			links = append(links, map[string]any{
				"parent":         evt.ParentURL,
				"child":          evt.URL,
				"depth":          int64(evt.Depth),
				"classification": evt.Classification,
				"status":         discoveredStatus(evt.Classification),
			})
		case progress.StageSeed:
			pages = append(pages, pageRow(evt, "pending"))
		case progress.StageCrawled:
			pages = append(pages, pageRow(evt, "crawled"))
		case progress.StageFailed:
			pages = append(pages, pageRow(evt, "failed"))
		}
	}
	return links, pages
}

// discoveredStatus mirrors the frontier: only crawlable links start pending,
// media and web-support leaves are stored crawled on insert.
func discoveredStatus(classification string) string {
	if classification == "" || classification == "crawlable" {
		return "pending"
	}
	return "crawled"
}

func pageRow(evt progress.Event, status string) map[string]any {
	return map[string]any{"url": evt.URL, "status": status, "depth": int64(evt.Depth)}
}
