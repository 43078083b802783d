// Package observability provides structured logging and metrics
// for the market gateway.
//
// This package implements:
//   - Structured logging with zap
//   - Prometheus counters for provider selections and failures
//   - Cache hit and miss counters per cache and tier
//   - A quota gauge per provider
package observability
