// Package api implements the HTTP REST API and WebSocket server of the ISM7
// bridge.
//
// This package provides:
//   - REST endpoints listing devices, parameters and their latest values
//   - Reading and write history backed by SQLite
//   - Parameter writes routed through the bridge's per-device workers
//   - WebSocket hub streaming every published reading
//   - Prometheus exposition at /metrics
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Security
//
// Accounts come from the service configuration (see package auth). Reads
// need the viewer role, writes the operator role and system endpoints the
// admin role. WebSocket connections authenticate with a single-use ticket
// from POST /api/v1/auth/ws-ticket or, for simple clients, a JWT in the
// token query parameter.
//
// # Graceful Degradation
//
// The server runs without history or Prometheus; the matching endpoints
// answer 503.
package api
