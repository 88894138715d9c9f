// Package backend implements the streaming bridge between the Kafka
// security-audit topics and browser clients. Live audit events are read with
// per-user SCRAM credentials, normalized, and fanned out over long-lived
// Server-Sent-Events (and WebSocket) connections.
//
// The core lives in the stream package: a session registry tracking every
// open client connection per (user, category) pair, and the per-pair category
// consumers bridging Kafka to those connections. Supporting packages provide
// the Kafka consumer factory (kafkaclient), message normalization (transform),
// capability checks and credential handling (auth), and the HTTP push surface
// (web).
package backend
