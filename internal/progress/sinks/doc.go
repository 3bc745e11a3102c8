// Package sinks implements concrete progress consumers: structured logs,
// Prometheus collectors, Kafka and Pub/Sub event streams, a Redis dashboard
// mirror, and a Neo4j link graph. Each sink satisfies progress.Sink.
package sinks
