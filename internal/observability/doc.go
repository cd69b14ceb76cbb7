// Package observability provides event logging, capture metrics and health
// alerting for chatrange. Events are persisted as JSON Lines (JSONL) and
// metrics and alerts are derived on demand from the event log.
package observability
