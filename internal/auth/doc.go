// Package auth provides authentication and authorisation for the ISM7
// bridge API.
//
// Accounts are declared in the service configuration with an Argon2id
// password hash and one of three roles:
//   - viewer: read devices, parameters and history
//   - operator: viewer plus parameter writes
//   - admin: operator plus system information (metrics, bridge stats)
//
// A successful login returns a short-lived HS256 JWT carrying the role.
// Tokens are validated by signature only; there is no session store.
package auth
