// Package progress carries crawl lifecycle events from the controller and worker
// to external observers. Emit never blocks the crawl loop: events are buffered,
// batched on a background goroutine, and fanned out to pluggable sinks such as
// logs, Prometheus, Kafka, Pub/Sub, Redis, or a Neo4j link graph.
package progress
