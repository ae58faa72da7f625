// Package ctxkey defines context keys shared across adapters.
package ctxkey

type contextKey string

// APIKeyName carries the name of the authenticated API key.
const APIKeyName contextKey = "api_key_name"
